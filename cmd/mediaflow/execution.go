package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/urfave/cli/v3"

	"github.com/cschleiden/go-mediaflow/backend/history"
	"github.com/cschleiden/go-mediaflow/client"
	"github.com/cschleiden/go-mediaflow/core"
	"github.com/cschleiden/go-mediaflow/pipeline"
	"github.com/cschleiden/go-mediaflow/stages"
)

func startCommand() *cli.Command {
	return &cli.Command{
		Name:      "start",
		Usage:     "Start a pipeline execution and print its ID",
		ArgsUsage: "<asset>",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "pipeline",
				Aliases: []string{"p"},
				Usage:   "Pipeline to run (ingest, lifecycle)",
				Value:   pipeline.Ingest,
			},
			&cli.StringFlag{
				Name:  "id",
				Usage: "Execution ID (random if not set)",
			},
			&cli.StringFlag{
				Name:  "asset-class",
				Usage: "Asset class (Image, Video, Audio, Other); classified from the extension if not set",
			},
			&cli.StringFlag{
				Name:  "catalog-key",
				Usage: "Catalog key of the asset, required by lifecycle",
			},
			&cli.StringFlag{
				Name:  "metadata",
				Usage: "User metadata as a JSON object, merged into the asset document",
			},
			&cli.StringFlag{
				Name:  "source",
				Usage: "Tier the asset is currently stored in (lifecycle)",
			},
			&cli.StringFlag{
				Name:  "destination",
				Usage: "Tier to move the asset to, or \"delete\" (lifecycle)",
			},
			&cli.DurationFlag{
				Name:  "wait",
				Usage: "Wait up to this long for the execution to finish and print its result",
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			input, err := startInput(cmd)
			if err != nil {
				return err
			}

			env, err := newEnvironment(ctx, cmd)
			if err != nil {
				return err
			}
			defer env.Close(context.Background())

			c := env.client()
			execution, err := c.StartExecution(ctx, client.ExecutionOptions{ExecutionID: cmd.String("id")}, cmd.String("pipeline"), input)
			if err != nil {
				return err
			}

			out := cmd.Root().Writer
			fmt.Fprintln(out, execution.ID)

			if wait := cmd.Duration("wait"); wait > 0 {
				result, err := c.GetExecutionResult(ctx, execution, wait)
				if err != nil {
					return err
				}

				return writeJSON(out, result)
			}

			return nil
		},
	}
}

func startInput(cmd *cli.Command) (core.Record, error) {
	asset := cmd.Args().First()
	if asset == "" {
		return core.Record{}, errors.New("missing asset argument")
	}

	input := core.NewRecord(asset)
	input.AssetClass = core.AssetClass(cmd.String("asset-class"))
	input.CatalogKey = cmd.String("catalog-key")

	if m := cmd.String("metadata"); m != "" {
		var metadata map[string]any
		if err := json.Unmarshal([]byte(m), &metadata); err != nil {
			return core.Record{}, fmt.Errorf("parsing metadata: %w", err)
		}

		input = input.With(stages.FieldMetadata, metadata)
	}

	if src := cmd.String("source"); src != "" {
		input = input.With(stages.FieldLocationSource, src)
	}

	if dst := cmd.String("destination"); dst != "" {
		input = input.With(stages.FieldLocationDestination, dst)
	}

	return input, nil
}

type status struct {
	ID      string           `json:"id"`
	State   string           `json:"state"`
	Result  *core.Record     `json:"result,omitempty"`
	Failure *history.Failure `json:"failure,omitempty"`
}

func statusCommand() *cli.Command {
	return &cli.Command{
		Name:      "status",
		Usage:     "Print the state and outcome of an execution, or broker statistics without an ID",
		ArgsUsage: "[execution-id]",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			env, err := newEnvironment(ctx, cmd)
			if err != nil {
				return err
			}
			defer env.Close(context.Background())

			c := env.client()
			out := cmd.Root().Writer

			id := cmd.Args().First()
			if id == "" {
				stats, err := c.GetStats(ctx)
				if err != nil {
					return err
				}

				return writeJSON(out, stats)
			}

			execution := &core.Execution{ID: id}
			state, err := c.GetExecutionState(ctx, execution)
			if err != nil {
				return err
			}

			s := status{ID: id, State: state.String()}
			if state == core.ExecutionStateFinished {
				h, err := c.GetExecutionHistory(ctx, execution)
				if err != nil {
					return err
				}

				result, err := client.Result(h)
				var failed *client.ExecutionFailedError
				switch {
				case errors.As(err, &failed):
					s.Failure = failed.Failure
				case err != nil:
					return err
				default:
					s.Result = &result
				}
			}

			return writeJSON(out, s)
		},
	}
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
