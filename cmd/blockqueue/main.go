// Command blockqueue runs the block-ingestion pipeline standalone: it dials
// the configured node providers, drives the loader and iterator, and hands
// dispatched batches to a demo executor that logs and immediately confirms
// them. It exists to exercise the pipeline end to end; a real deployment
// would swap executor.LoggingExecutor for its own command executor.
package main

import (
	"fmt"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/ethereum-mive/blockqueue/internal/flags"
)

var app = flags.NewApp("an ingestion pipeline for EVM blocks into a bounded in-memory queue")

func init() {
	app.Flags = append(app.Flags, configFileFlag)
	app.Flags = append(app.Flags, providerFlags...)
	app.Flags = append(app.Flags, queueFlags...)
	app.Flags = append(app.Flags, loaderFlags...)
	app.Flags = append(app.Flags, loggingFlags...)
	app.Action = run
	app.Before = func(ctx *cli.Context) error {
		return setupLogging(ctx)
	}
}

func main() {
	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
