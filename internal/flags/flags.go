// Package flags provides the CLI flag categories and App constructor shared
// by cmd/blockqueue.
package flags

import (
	"fmt"

	"github.com/urfave/cli/v2"

	"github.com/ethereum-mive/blockqueue/internal/version"
)

// Flag categories grouped for --help output.
const (
	ProviderCategory = "PROVIDER"
	QueueCategory    = "QUEUE"
	LoaderCategory   = "LOADER"
	LoggingCategory  = "LOGGING"
)

// NewApp creates a cli.App with the client's name, usage string and version
// already filled in.
func NewApp(usage string) *cli.App {
	app := cli.NewApp()
	app.Name = "blockqueue"
	app.Usage = usage
	app.Version = version.WithCommit()
	app.Copyright = fmt.Sprintf("Copyright %d The blockqueue Authors", version.BuildYear())
	return app
}
