// Package worker runs the pipeline roles: decision workers and activity workers.
package worker

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/cschleiden/go-mediaflow/activity"
	"github.com/cschleiden/go-mediaflow/backend"
	"github.com/cschleiden/go-mediaflow/core"
	internal "github.com/cschleiden/go-mediaflow/internal/worker"
	"github.com/cschleiden/go-mediaflow/pipeline"
)

type Worker struct {
	backend backend.Backend

	workers []worker
	decides bool
}

type worker interface {
	Start(context.Context) error
	WaitForCompletion() error
}

// New creates a worker that decides executions of the given definitions and runs every given
// action, each as its own activity worker. A task queue per activity is used unless options set
// one.
func New(b backend.Backend, definitions []*pipeline.Definition, actions map[string]activity.Action, options *Options) (*Worker, error) {
	if options == nil {
		options = &DefaultOptions
	}

	if len(definitions) == 0 && len(actions) == 0 {
		return nil, errors.New("worker has nothing to do")
	}

	var workers []worker
	if len(definitions) > 0 {
		workers = append(workers, newDecisionWorker(b, definitions, &options.DecisionWorkerOptions))
	}

	names := make([]string, 0, len(actions))
	for name := range actions {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		if actions[name] == nil {
			return nil, fmt.Errorf("no action for activity %q", name)
		}

		aw, err := newActivityWorker(b, name, actions[name], &options.ActivityWorkerOptions)
		if err != nil {
			return nil, err
		}

		workers = append(workers, aw)
	}

	return &Worker{
		backend: b,
		workers: workers,
		decides: len(definitions) > 0,
	}, nil
}

// NewDecisionWorker creates a worker that only decides executions of the given definitions.
func NewDecisionWorker(b backend.Backend, definitions []*pipeline.Definition, options *DecisionWorkerOptions) *Worker {
	return &Worker{
		backend: b,
		workers: []worker{newDecisionWorker(b, definitions, options)},
		decides: true,
	}
}

// NewActivityWorker creates a worker that runs action for every task of the named activity.
func NewActivityWorker(b backend.Backend, name string, action activity.Action, options *ActivityWorkerOptions) (*Worker, error) {
	aw, err := newActivityWorker(b, name, action, options)
	if err != nil {
		return nil, err
	}

	return &Worker{
		backend: b,
		workers: []worker{aw},
	}, nil
}

func newDecisionWorker(b backend.Backend, definitions []*pipeline.Definition, options *DecisionWorkerOptions) worker {
	if options == nil {
		options = &DefaultDecisionWorkerOptions
	}

	return internal.NewDecisionWorker(b, definitions, internal.WorkerOptions{
		Pollers:           options.DecisionPollers,
		MaxParallelTasks:  1,
		HeartbeatInterval: options.DecisionHeartbeatInterval,
		PollingInterval:   options.DecisionPollingInterval,
		PollTimeout:       options.DecisionPollTimeout,
	})
}

func newActivityWorker(b backend.Backend, name string, action activity.Action, options *ActivityWorkerOptions) (worker, error) {
	if options == nil {
		options = &DefaultActivityWorkerOptions
	}

	queue := options.ActivityQueue
	if queue == "" {
		queue = core.Queue(name)
	}

	if err := core.ValidQueue(queue); err != nil {
		return nil, fmt.Errorf("activity %q: %w", name, err)
	}

	return internal.NewActivityWorker(b, name, queue, action, internal.WorkerOptions{
		Pollers:           options.ActivityPollers,
		MaxParallelTasks:  1,
		HeartbeatInterval: options.ActivityHeartbeatInterval,
		PollingInterval:   options.ActivityPollingInterval,
		PollTimeout:       options.ActivityPollTimeout,
	}), nil
}

// Start starts the worker.
//
// To stop the worker, cancel the context passed to Start. To wait for completion of the active
// tasks, call `WaitForCompletion`.
func (w *Worker) Start(ctx context.Context) error {
	for _, worker := range w.workers {
		if err := worker.Start(ctx); err != nil {
			return fmt.Errorf("starting worker: %w", err)
		}
	}

	return nil
}

// Decides reports whether the worker decides executions.
func (w *Worker) Decides() bool {
	return w.decides
}

// WaitForCompletion waits for all active tasks to complete.
func (w *Worker) WaitForCompletion() error {
	for _, worker := range w.workers {
		if err := worker.WaitForCompletion(); err != nil {
			return fmt.Errorf("waiting for worker completion: %w", err)
		}
	}

	return nil
}
