package main

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/urfave/cli/v3"
	"golang.org/x/sync/errgroup"

	"github.com/cschleiden/go-mediaflow/activity"
	"github.com/cschleiden/go-mediaflow/backend/monoprocess"
	"github.com/cschleiden/go-mediaflow/config"
	"github.com/cschleiden/go-mediaflow/diag"
	"github.com/cschleiden/go-mediaflow/log"
	"github.com/cschleiden/go-mediaflow/worker"
)

const expirationInterval = 10 * time.Minute

func deciderCommand() *cli.Command {
	return &cli.Command{
		Name:  "decider",
		Usage: "Run the decision worker for all pipelines",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			env, err := newEnvironment(ctx, cmd)
			if err != nil {
				return err
			}
			defer env.Close(context.Background())

			w := worker.NewDecisionWorker(env.backend, env.definitions, decisionOptions(env.cfg))

			return serve(ctx, env, w, false)
		},
	}
}

func workerCommand() *cli.Command {
	return &cli.Command{
		Name:  "worker",
		Usage: "Run activity workers for the pipeline stages",
		Flags: []cli.Flag{
			&cli.StringSliceFlag{
				Name:    "activity",
				Aliases: []string{"a"},
				Usage:   "Activity to run, repeatable; overrides worker.activities (all activities if neither is set)",
				Sources: cli.EnvVars("MEDIAFLOW_ACTIVITIES"),
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			env, err := newEnvironment(ctx, cmd)
			if err != nil {
				return err
			}
			defer env.Close(context.Background())

			actions, err := selectActions(env, cmd.StringSlice("activity"))
			if err != nil {
				return err
			}

			w, err := worker.New(env.backend, nil, actions, &worker.Options{
				ActivityWorkerOptions: *activityOptions(env.cfg),
			})
			if err != nil {
				return err
			}

			return serve(ctx, env, w, false)
		},
	}
}

func runCommand() *cli.Command {
	return &cli.Command{
		Name:  "run",
		Usage: "Run the decider, all activity workers and the diagnostics server in one process",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			env, err := newEnvironment(ctx, cmd)
			if err != nil {
				return err
			}
			defer env.Close(context.Background())

			actions, err := selectActions(env, nil)
			if err != nil {
				return err
			}

			// Workers share the process with the broker client and are woken up directly
			env.backend = monoprocess.NewMonoprocessBackend(env.backend, 1, 10*time.Millisecond)

			w, err := worker.New(env.backend, env.definitions, actions, &worker.Options{
				DecisionWorkerOptions: *decisionOptions(env.cfg),
				ActivityWorkerOptions: *activityOptions(env.cfg),
			})
			if err != nil {
				return err
			}

			return serve(ctx, env, w, true)
		},
	}
}

func selectActions(env *environment, names []string) (map[string]activity.Action, error) {
	st, err := env.stages()
	if err != nil {
		return nil, err
	}

	if len(names) == 0 {
		names = env.cfg.Worker.Activities
	}

	return st.Select(names...)
}

func decisionOptions(cfg *config.Config) *worker.DecisionWorkerOptions {
	return &worker.DecisionWorkerOptions{
		DecisionPollers:           cfg.Worker.Pollers,
		DecisionHeartbeatInterval: cfg.Worker.HeartbeatInterval.Duration,
		DecisionPollingInterval:   cfg.Worker.PollingInterval.Duration,
		DecisionPollTimeout:       cfg.Worker.PollTimeout.Duration,
	}
}

func activityOptions(cfg *config.Config) *worker.ActivityWorkerOptions {
	return &worker.ActivityWorkerOptions{
		ActivityPollers:           cfg.Worker.Pollers,
		ActivityHeartbeatInterval: cfg.Worker.HeartbeatInterval.Duration,
		ActivityPollingInterval:   cfg.Worker.PollingInterval.Duration,
		ActivityPollTimeout:       cfg.Worker.PollTimeout.Duration,
	}
}

// serve runs w until ctx is canceled or a background task fails, then waits for the tasks in
// flight. Processes running the decider also expire finished executions.
func serve(ctx context.Context, env *environment, w *worker.Worker, withDiag bool) error {
	logger := log.WithModule(env.logger, "worker")

	g, gctx := errgroup.WithContext(ctx)

	if err := w.Start(gctx); err != nil {
		return err
	}

	logger.InfoContext(ctx, "Worker started", "broker", env.cfg.Broker.Kind)

	if w.Decides() && env.cfg.Broker.Retention.Duration > 0 {
		c := env.client()
		g.Go(func() error {
			return c.RunAutoExpiration(gctx, env.cfg.Broker.Retention.Duration, expirationInterval)
		})
	}

	if withDiag {
		g.Go(func() error {
			return listen(gctx, env)
		})
	}

	<-gctx.Done()

	logger.Info("Shutting down, waiting for tasks in flight")

	werr := w.WaitForCompletion()
	return errors.Join(werr, g.Wait())
}

// listen serves the diagnostics API until ctx is canceled.
func listen(ctx context.Context, env *environment) error {
	cat, err := env.catalog()
	if err != nil {
		return err
	}

	srv := &http.Server{
		Addr:              env.cfg.Diag.Listen,
		Handler:           diag.NewServeMux(env.backend, cat, log.WithModule(env.logger, "diag")),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			env.logger.Error("Shutting down diagnostics server", "error", err)
		}
	}()

	env.logger.InfoContext(ctx, "Diagnostics server listening", "addr", srv.Addr)

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}

	return nil
}
