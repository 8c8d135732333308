package monoprocess

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/cschleiden/go-mediaflow/backend"
	"github.com/cschleiden/go-mediaflow/backend/history"
	"github.com/cschleiden/go-mediaflow/core"
	"github.com/cschleiden/go-mediaflow/decision"
	"github.com/cschleiden/go-mediaflow/log"
)

type monoprocessBackend struct {
	backend.Backend

	decisionSignal chan struct{}

	mu               sync.Mutex
	activitySignals  map[core.Queue]chan struct{}
	signalBufferSize int
	signalTimeout    time.Duration

	logger *slog.Logger
}

// NewMonoprocessBackend wraps an existing backend and improves its responsiveness
// in case the backend and workers are running in the same process. This backend
// uses channels to notify a worker every time there is a new task ready to be
// worked on. Note that only one worker will be notified, and only activity workers
// polling a single queue wait for a signal.
// IMPORTANT: Only use this backend if the backend and workers are running in the
// same process.
func NewMonoprocessBackend(b backend.Backend, signalBufferSize int, signalTimeout time.Duration) *monoprocessBackend {
	if signalTimeout <= 0 {
		signalTimeout = time.Second // default
	}

	return &monoprocessBackend{
		Backend:          b,
		decisionSignal:   make(chan struct{}, signalBufferSize),
		activitySignals:  make(map[core.Queue]chan struct{}),
		signalBufferSize: signalBufferSize,
		signalTimeout:    signalTimeout,
		logger:           b.Options().Logger.With(log.NamespaceKey+".backend", "monoprocess"),
	}
}

func (b *monoprocessBackend) activitySignal(queue core.Queue) chan struct{} {
	b.mu.Lock()
	defer b.mu.Unlock()

	c, ok := b.activitySignals[queue]
	if !ok {
		c = make(chan struct{}, b.signalBufferSize)
		b.activitySignals[queue] = c
	}

	return c
}

func (b *monoprocessBackend) GetDecisionTask(ctx context.Context, workflowTypes []string) (*backend.DecisionTask, error) {
	if t, err := b.Backend.GetDecisionTask(ctx, workflowTypes); t != nil || err != nil {
		return t, err
	}

	b.logger.DebugContext(ctx, "worker waiting for decision task signal")

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-b.decisionSignal:
		b.logger.DebugContext(ctx, "worker got a decision task signal")
		return b.GetDecisionTask(ctx, workflowTypes)
	}
}

func (b *monoprocessBackend) GetActivityTask(ctx context.Context, queues []core.Queue) (*backend.ActivityTask, error) {
	if t, err := b.Backend.GetActivityTask(ctx, queues); t != nil || err != nil || len(queues) != 1 {
		return t, err
	}

	b.logger.DebugContext(ctx, "worker waiting for activity task signal", log.QueueKey, queues[0])

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-b.activitySignal(queues[0]):
		b.logger.DebugContext(ctx, "worker got an activity task signal", log.QueueKey, queues[0])
		return b.GetActivityTask(ctx, queues)
	}
}

func (b *monoprocessBackend) CreateExecution(ctx context.Context, execution *core.Execution, event *history.Event) error {
	if err := b.Backend.CreateExecution(ctx, execution, event); err != nil {
		return err
	}

	b.notify(ctx, b.decisionSignal, "decision")
	return nil
}

func (b *monoprocessBackend) CompleteDecisionTask(ctx context.Context, task *backend.DecisionTask, d *decision.Decision) error {
	if err := b.Backend.CompleteDecisionTask(ctx, task, d); err != nil {
		return err
	}

	if d.Type == decision.Type_ScheduleActivityTask {
		b.notify(ctx, b.activitySignal(d.ScheduleActivity.Queue), "activity")
	}

	return nil
}

func (b *monoprocessBackend) CompleteActivityTask(ctx context.Context, task *backend.ActivityTask, result *history.Event) error {
	if err := b.Backend.CompleteActivityTask(ctx, task, result); err != nil {
		return err
	}

	b.notify(ctx, b.decisionSignal, "decision")
	return nil
}

func (b *monoprocessBackend) notify(ctx context.Context, signal chan struct{}, kind string) bool {
	ctx, cancel := context.WithTimeout(ctx, b.signalTimeout)
	defer cancel()

	select {
	case <-ctx.Done():
		// we didn't manage to notify a worker that there is a new task, it
		// will pick it up after the poll timeout
		b.logger.DebugContext(ctx, "failed to signal task to worker", "kind", kind, "reason", ctx.Err())
		return false
	case signal <- struct{}{}:
		b.logger.DebugContext(ctx, "signalled a new task to worker", "kind", kind)
		return true
	}
}
