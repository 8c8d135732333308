package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/benbjohnson/clock"

	"github.com/cschleiden/go-mediaflow/activity"
	"github.com/cschleiden/go-mediaflow/backend"
	"github.com/cschleiden/go-mediaflow/backend/history"
	"github.com/cschleiden/go-mediaflow/backend/metrics"
	"github.com/cschleiden/go-mediaflow/core"
	iactivity "github.com/cschleiden/go-mediaflow/internal/activity"
	"github.com/cschleiden/go-mediaflow/internal/metrickeys"
	im "github.com/cschleiden/go-mediaflow/internal/metrics"
	"github.com/cschleiden/go-mediaflow/log"
)

// NewActivityWorker creates a worker that runs action for every task of the named activity on queue.
func NewActivityWorker(
	b backend.Backend, name string, queue core.Queue, action activity.Action, options WorkerOptions,
) *Worker[backend.ActivityTask, history.Event] {
	tw := NewActivityTaskWorker(b, name, queue, action)

	return NewWorker[backend.ActivityTask, history.Event](tw.logger, tw, &options)
}

type ActivityTaskWorker struct {
	backend  backend.Backend
	name     string
	queues   []core.Queue
	executor *iactivity.Executor
	logger   *slog.Logger
	metrics  metrics.Client
	clock    clock.Clock
}

func NewActivityTaskWorker(b backend.Backend, name string, queue core.Queue, action activity.Action) *ActivityTaskWorker {
	options := b.Options()
	logger := options.Logger.With(log.ActivityNameKey, name, log.QueueKey, string(queue))

	return &ActivityTaskWorker{
		backend:  b,
		name:     name,
		queues:   []core.Queue{queue},
		executor: iactivity.NewExecutor(logger, b.Tracer(), name, action.Run),
		logger:   logger,
		metrics:  b.Metrics().WithTags(metrics.Tags{metrickeys.ActivityName: name}),
		clock:    options.Clock,
	}
}

func (atw *ActivityTaskWorker) Get(ctx context.Context) (*backend.ActivityTask, error) {
	return atw.backend.GetActivityTask(ctx, atw.queues)
}

func (atw *ActivityTaskWorker) Extend(ctx context.Context, task *backend.ActivityTask) error {
	return atw.backend.ExtendActivityTask(ctx, task)
}

// Execute runs the action and returns the event reporting its outcome. Action errors are part of
// the outcome, Execute itself does not fail for them.
func (atw *ActivityTaskWorker) Execute(ctx context.Context, task *backend.ActivityTask) (*history.Event, error) {
	logger := atw.logger.With(
		log.ExecutionIDKey, task.Execution.ID,
		log.AssetKey, task.Input().Asset,
	)

	// Record how long this task was in the queue
	if task.Event != nil {
		timeInQueue := atw.clock.Since(task.Event.Timestamp)
		atw.metrics.Distribution(metrickeys.ActivityTaskDelay, metrics.Tags{}, float64(timeInQueue.Milliseconds()))
	}

	timer := im.NewTimerWithClock(atw.clock, atw.metrics, metrickeys.ActivityTaskDuration, metrics.Tags{})
	result, err := atw.executor.ExecuteActivity(ctx, task)
	elapsed := timer.Stop()

	if err != nil {
		f := toFailure(err)

		logger.ErrorContext(ctx, "activity failed",
			log.ReasonKey, f.Reason,
			"error", f.Detail,
			log.DurationKey, elapsed.Milliseconds(),
		)

		atw.metrics.Counter(metrickeys.ActivityTaskProcessed, metrics.Tags{
			metrickeys.Outcome: "failed",
			metrickeys.Reason:  f.Reason,
		}, 1)

		return history.NewHistoryEvent(
			atw.clock.Now(),
			history.EventType_ActivityFailed,
			&history.ActivityFailedAttributes{
				Name:   atw.name,
				Reason: f.Reason,
				Detail: f.Detail,
			},
			history.ScheduleEventID(task.Event.SequenceID),
		), nil
	}

	logger.DebugContext(ctx, "activity completed", log.DurationKey, elapsed.Milliseconds())

	atw.metrics.Counter(metrickeys.ActivityTaskProcessed, metrics.Tags{metrickeys.Outcome: "completed"}, 1)

	return history.NewHistoryEvent(
		atw.clock.Now(),
		history.EventType_ActivityCompleted,
		&history.ActivityCompletedAttributes{
			Name:   atw.name,
			Result: result,
		},
		history.ScheduleEventID(task.Event.SequenceID),
	), nil
}

func (atw *ActivityTaskWorker) Complete(ctx context.Context, event *history.Event, task *backend.ActivityTask) error {
	if err := atw.backend.CompleteActivityTask(ctx, task, event); err != nil {
		if errors.Is(err, backend.ErrTaskNotFound) || errors.Is(err, backend.ErrTaskTokenConsumed) {
			// The lease expired and the task was handed out again, the new claimant reports it.
			atw.logger.WarnContext(ctx, "activity task no longer held",
				log.ExecutionIDKey, task.Execution.ID,
				log.TaskTokenKey, task.Token.String(),
				"error", err,
			)

			atw.metrics.Counter(metrickeys.TaskLeaseExpired, metrics.Tags{}, 1)

			return nil
		}

		return fmt.Errorf("completing activity task: %w", err)
	}

	return nil
}

func toFailure(err error) *activity.Failure {
	var pe *iactivity.PanicError
	if errors.As(err, &pe) {
		return activity.NewFailure(activity.ReasonActivityPanic, pe.Message()+"\n"+pe.Stacktrace())
	}

	return activity.ToFailure(err)
}
