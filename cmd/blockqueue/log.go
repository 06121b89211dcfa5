package main

import (
	"io"
	"os"

	"github.com/ethereum/go-ethereum/log"
	"github.com/mattn/go-colorable"
	"github.com/mattn/go-isatty"
	"github.com/urfave/cli/v2"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/ethereum-mive/blockqueue/internal/flags"
)

var (
	verbosityFlag = &cli.IntFlag{
		Name:     "verbosity",
		Usage:    "Logging verbosity: 0=crit, 1=error, 2=warn, 3=info, 4=debug, 5=trace",
		Value:    3,
		Category: flags.LoggingCategory,
	}
	logFileFlag = &cli.StringFlag{
		Name:     "log-file",
		Usage:    "Write log output to this file (rotated with lumberjack) instead of stderr",
		Category: flags.LoggingCategory,
	}
)

var loggingFlags = []cli.Flag{verbosityFlag, logFileFlag}

// setupLogging installs the root logger: a glog handler behind --verbosity,
// terminal color detection via go-isatty/go-colorable when writing to a TTY,
// and a lumberjack rotating writer when --log-file is given.
func setupLogging(ctx *cli.Context) error {
	var output io.Writer = os.Stderr
	usecolor := isatty.IsTerminal(os.Stderr.Fd()) || isatty.IsCygwinTerminal(os.Stderr.Fd())

	if file := ctx.String(logFileFlag.Name); file != "" {
		output = &lumberjack.Logger{
			Filename:   file,
			MaxSize:    100, // megabytes
			MaxBackups: 5,
			MaxAge:     28, // days
		}
		usecolor = false
	} else if usecolor {
		output = colorable.NewColorableStderr()
	}

	glogger := log.NewGlogHandler(log.StreamHandler(output, log.TerminalFormat(usecolor)))
	glogger.Verbosity(log.Lvl(ctx.Int(verbosityFlag.Name)))
	log.Root().SetHandler(glogger)
	return nil
}
