package main

import (
	"context"

	"github.com/urfave/cli/v3"

	"github.com/cschleiden/go-mediaflow/config"
)

func diagCommand() *cli.Command {
	return &cli.Command{
		Name:  "diag",
		Usage: "Serve the diagnostics API",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "listen",
				Usage:   "Address to listen on, overrides diag.listen",
				Sources: cli.EnvVars("MEDIAFLOW_DIAG_LISTEN"),
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			env, err := newEnvironment(ctx, cmd)
			if err != nil {
				return err
			}
			defer env.Close(context.Background())

			if addr := cmd.String("listen"); addr != "" {
				env.cfg.Diag.Listen = addr
			}

			return listen(ctx, env)
		},
	}
}

func configCommand() *cli.Command {
	return &cli.Command{
		Name:  "config",
		Usage: "Print the built-in configuration, for use as a template",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			_, err := cmd.Root().Writer.Write(config.DefaultTOML())
			return err
		},
	}
}
