// Command mediaflow runs the media pipelines: the decider, activity workers, and the tooling to
// start and inspect executions.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v3"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := newCommand(os.Stdout, os.Stderr).Run(ctx, os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func newCommand(stdout, stderr io.Writer) *cli.Command {
	return &cli.Command{
		Name:                  "mediaflow",
		Usage:                 "Ingest media assets and move them between storage tiers",
		EnableShellCompletion: true,
		Writer:                stdout,
		ErrWriter:             stderr,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Path to the configuration file (built-in defaults if not set)",
				Sources: cli.EnvVars("MEDIAFLOW_CONFIG"),
			},
			&cli.StringFlag{
				Name:    "broker",
				Usage:   "Broker kind (memory, sqlite, mysql, redis), overrides the configuration",
				Sources: cli.EnvVars("MEDIAFLOW_BROKER"),
			},
			&cli.StringFlag{
				Name:    "log-level",
				Usage:   "Log level (debug, info, warn, error), overrides the configuration",
				Sources: cli.EnvVars("MEDIAFLOW_LOG_LEVEL"),
			},
			&cli.StringSliceFlag{
				Name:    "pipeline-file",
				Usage:   "Pipeline definition replacing the built-in definition of the same name",
				Sources: cli.EnvVars("MEDIAFLOW_PIPELINE_FILES"),
			},
		},
		Commands: []*cli.Command{
			deciderCommand(),
			workerCommand(),
			runCommand(),
			startCommand(),
			statusCommand(),
			diagCommand(),
			configCommand(),
		},
	}
}
