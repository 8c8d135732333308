// Package memory provides an in-process backend. State is lost when the process exits; it's meant
// for tests and single process deployments.
package memory

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/jellydator/ttlcache/v3"
	"go.opentelemetry.io/otel/trace"

	"github.com/cschleiden/go-mediaflow/backend"
	"github.com/cschleiden/go-mediaflow/backend/history"
	"github.com/cschleiden/go-mediaflow/backend/metrics"
	"github.com/cschleiden/go-mediaflow/core"
	"github.com/cschleiden/go-mediaflow/decision"
	"github.com/cschleiden/go-mediaflow/internal/metrickeys"
	"github.com/cschleiden/go-mediaflow/log"
)

type execution struct {
	execution *core.Execution
	state     core.ExecutionState
	history   []*history.Event

	createdAt   time.Time
	completedAt time.Time

	// decisionPending is set while the execution has a queued or claimed decision task
	decisionPending bool

	// redecide is set when a routing event arrived while the decision task was claimed
	redecide bool

	decisionToken       core.TaskToken
	decisionLockedUntil time.Time
}

func (e *execution) lastSequenceID() int64 {
	if len(e.history) == 0 {
		return 0
	}

	return e.history[len(e.history)-1].SequenceID
}

type activity struct {
	execution *core.Execution
	queue     core.Queue
	event     *history.Event

	token       core.TaskToken
	lockedUntil time.Time
}

type memoryBackend struct {
	options *backend.Options
	logger  *slog.Logger
	metrics metrics.Client

	mu sync.Mutex

	executions map[string]*execution
	order      []string

	activities map[core.Queue][]*activity

	// consumed remembers retired tokens for TokenRetention
	consumed *ttlcache.Cache[core.TaskToken, struct{}]
}

var _ backend.Backend = (*memoryBackend)(nil)

func NewMemoryBackend(opts ...backend.BackendOption) backend.Backend {
	options := backend.ApplyOptions(opts...)

	return &memoryBackend{
		options: &options,
		logger:  options.Logger.With(log.NamespaceKey+".backend", "memory"),
		metrics: options.Metrics.WithTags(metrics.Tags{metrickeys.Backend: "memory"}),

		executions: make(map[string]*execution),
		activities: make(map[core.Queue][]*activity),
		consumed: ttlcache.New(
			ttlcache.WithTTL[core.TaskToken, struct{}](options.TokenRetention),
		),
	}
}

func (mb *memoryBackend) CreateExecution(ctx context.Context, e *core.Execution, event *history.Event) error {
	if event == nil || event.Type != history.EventType_ExecutionStarted {
		return fmt.Errorf("creating execution: first event must be %v", history.EventType_ExecutionStarted)
	}

	mb.mu.Lock()
	defer mb.mu.Unlock()

	if _, ok := mb.executions[e.ID]; ok {
		return backend.ErrExecutionAlreadyExists
	}

	now := mb.options.Clock.Now()

	exec := &execution{
		execution: e,
		state:     core.ExecutionStateActive,
		createdAt: now,
	}

	mb.executions[e.ID] = exec
	mb.order = append(mb.order, e.ID)

	mb.appendEvents(exec, event)

	mb.metrics.Counter(metrickeys.ExecutionCreated, metrics.Tags{metrickeys.WorkflowType: e.WorkflowType}, 1)

	return nil
}

// appendEvents numbers and appends events, and schedules a decision task if one of them needs
// routing.
func (mb *memoryBackend) appendEvents(exec *execution, events ...*history.Event) {
	backend.AssignSequenceIDs(exec.lastSequenceID(), events...)
	exec.history = append(exec.history, events...)

	for _, event := range events {
		if backend.RoutingEvent(event.Type) {
			mb.scheduleDecision(exec)
			return
		}
	}
}

func (mb *memoryBackend) scheduleDecision(exec *execution) {
	if exec.decisionPending {
		if exec.decisionToken != "" {
			exec.redecide = true
		}

		return
	}

	e := backend.NewDecisionTaskScheduledEvent(mb.options.Clock.Now())
	backend.AssignSequenceIDs(exec.lastSequenceID(), e)
	exec.history = append(exec.history, e)
	exec.decisionPending = true

	mb.metrics.Counter(metrickeys.DecisionTaskScheduled, metrics.Tags{metrickeys.WorkflowType: exec.execution.WorkflowType}, 1)
}

func (mb *memoryBackend) GetExecutionState(ctx context.Context, e *core.Execution) (core.ExecutionState, error) {
	mb.mu.Lock()
	defer mb.mu.Unlock()

	exec, ok := mb.executions[e.ID]
	if !ok {
		return core.ExecutionStateActive, backend.ErrExecutionNotFound
	}

	return exec.state, nil
}

func (mb *memoryBackend) GetExecutionHistory(ctx context.Context, e *core.Execution) ([]*history.Event, error) {
	mb.mu.Lock()
	defer mb.mu.Unlock()

	exec, ok := mb.executions[e.ID]
	if !ok {
		return nil, backend.ErrExecutionNotFound
	}

	h := make([]*history.Event, len(exec.history))
	copy(h, exec.history)

	return h, nil
}

func (mb *memoryBackend) RemoveExecutions(ctx context.Context, options ...backend.RemovalOption) error {
	ro := backend.ApplyRemovalOptions(mb.options.Clock.Now(), options...)

	mb.mu.Lock()
	defer mb.mu.Unlock()

	order := mb.order[:0]
	for _, id := range mb.order {
		exec := mb.executions[id]
		if exec.state == core.ExecutionStateFinished && exec.completedAt.Before(ro.FinishedBefore) {
			delete(mb.executions, id)
			continue
		}

		order = append(order, id)
	}

	mb.order = order

	return nil
}

func (mb *memoryBackend) GetDecisionTask(ctx context.Context, workflowTypes []string) (*backend.DecisionTask, error) {
	mb.mu.Lock()
	defer mb.mu.Unlock()

	mb.consumed.DeleteExpired()

	now := mb.options.Clock.Now()

	for _, id := range mb.order {
		exec := mb.executions[id]
		if exec.state != core.ExecutionStateActive || !exec.decisionPending || !contains(workflowTypes, exec.execution.WorkflowType) {
			continue
		}

		if exec.decisionToken != "" {
			if now.Before(exec.decisionLockedUntil) {
				continue
			}

			mb.logger.WarnContext(ctx, "decision task lease expired, handing out again",
				log.ExecutionIDKey, exec.execution.ID,
				log.TaskTokenKey, exec.decisionToken.String(),
			)
			mb.metrics.Counter(metrickeys.TaskLeaseExpired, metrics.Tags{}, 1)
		}

		exec.decisionToken = core.NewTaskToken()
		exec.decisionLockedUntil = now.Add(mb.options.DecisionLockTimeout)
		exec.redecide = false

		mb.appendEvents(exec, backend.NewDecisionTaskStartedEvent(now, mb.options.WorkerName))

		h := make([]*history.Event, len(exec.history))
		copy(h, exec.history)

		return &backend.DecisionTask{
			Token:          exec.decisionToken,
			Execution:      exec.execution,
			LastSequenceID: exec.lastSequenceID(),
			History:        h,
			LockedUntil:    exec.decisionLockedUntil,
		}, nil
	}

	return nil, nil
}

// decisionHolder returns the execution whose claimed decision task token retires.
func (mb *memoryBackend) decisionHolder(task *backend.DecisionTask) (*execution, error) {
	exec, ok := mb.executions[task.Execution.ID]
	if !ok || exec.decisionToken == "" || exec.decisionToken != task.Token {
		return nil, mb.tokenError(task.Token)
	}

	return exec, nil
}

func (mb *memoryBackend) tokenError(token core.TaskToken) error {
	if mb.consumed.Get(token) != nil {
		return backend.ErrTaskTokenConsumed
	}

	return backend.ErrTaskNotFound
}

func (mb *memoryBackend) ExtendDecisionTask(ctx context.Context, task *backend.DecisionTask) error {
	mb.mu.Lock()
	defer mb.mu.Unlock()

	exec, err := mb.decisionHolder(task)
	if err != nil {
		return err
	}

	exec.decisionLockedUntil = mb.options.Clock.Now().Add(mb.options.DecisionLockTimeout)
	task.LockedUntil = exec.decisionLockedUntil

	return nil
}

func (mb *memoryBackend) CompleteDecisionTask(ctx context.Context, task *backend.DecisionTask, d *decision.Decision) error {
	mb.mu.Lock()
	defer mb.mu.Unlock()

	exec, err := mb.decisionHolder(task)
	if err != nil {
		return err
	}

	now := mb.options.Clock.Now()

	events, err := backend.DecisionEvents(now, exec.lastSequenceID(), mb.options.WorkerName, d)
	if err != nil {
		return fmt.Errorf("completing decision task: %w", err)
	}

	exec.history = append(exec.history, events...)

	mb.consumed.Set(exec.decisionToken, struct{}{}, ttlcache.DefaultTTL)
	exec.decisionToken = ""
	exec.decisionPending = false

	switch d.Type {
	case decision.Type_ScheduleActivityTask:
		scheduled := events[len(events)-1]
		queue := d.ScheduleActivity.Queue
		mb.activities[queue] = append(mb.activities[queue], &activity{
			execution: exec.execution,
			queue:     queue,
			event:     scheduled,
		})

		mb.metrics.Counter(metrickeys.ActivityTaskScheduled, metrics.Tags{
			metrickeys.ActivityName: d.ScheduleActivity.Activity,
		}, 1)

	case decision.Type_CompleteExecution:
		exec.state = core.ExecutionStateFinished
		exec.completedAt = now
		exec.redecide = false

		mb.metrics.Counter(metrickeys.ExecutionFinished, metrics.Tags{metrickeys.WorkflowType: exec.execution.WorkflowType}, 1)
	}

	if exec.redecide {
		exec.redecide = false
		mb.scheduleDecision(exec)
	}

	return nil
}

func (mb *memoryBackend) GetActivityTask(ctx context.Context, queues []core.Queue) (*backend.ActivityTask, error) {
	mb.mu.Lock()
	defer mb.mu.Unlock()

	now := mb.options.Clock.Now()

	for _, queue := range queues {
		for _, a := range mb.activities[queue] {
			if a.token != "" {
				if now.Before(a.lockedUntil) {
					continue
				}

				mb.logger.WarnContext(ctx, "activity task lease expired, handing out again",
					log.ExecutionIDKey, a.execution.ID,
					log.QueueKey, string(queue),
					log.TaskTokenKey, a.token.String(),
				)
				mb.metrics.Counter(metrickeys.TaskLeaseExpired, metrics.Tags{}, 1)
			}

			a.token = core.NewTaskToken()
			a.lockedUntil = now.Add(mb.options.ActivityLockTimeout)

			return &backend.ActivityTask{
				Token:       a.token,
				Execution:   a.execution,
				Queue:       a.queue,
				Event:       a.event,
				LockedUntil: a.lockedUntil,
			}, nil
		}
	}

	return nil, nil
}

// activityHolder returns the claimed activity token retires together with its index in its queue.
func (mb *memoryBackend) activityHolder(task *backend.ActivityTask) (*activity, int, error) {
	if task.Token != "" {
		for i, a := range mb.activities[task.Queue] {
			if a.token == task.Token {
				return a, i, nil
			}
		}
	}

	return nil, 0, mb.tokenError(task.Token)
}

func (mb *memoryBackend) ExtendActivityTask(ctx context.Context, task *backend.ActivityTask) error {
	mb.mu.Lock()
	defer mb.mu.Unlock()

	a, _, err := mb.activityHolder(task)
	if err != nil {
		return err
	}

	a.lockedUntil = mb.options.Clock.Now().Add(mb.options.ActivityLockTimeout)
	task.LockedUntil = a.lockedUntil

	return nil
}

func (mb *memoryBackend) CompleteActivityTask(ctx context.Context, task *backend.ActivityTask, result *history.Event) error {
	mb.mu.Lock()
	defer mb.mu.Unlock()

	a, idx, err := mb.activityHolder(task)
	if err != nil {
		return err
	}

	if err := backend.ValidateActivityResult(task, result); err != nil {
		return fmt.Errorf("completing activity task: %w", err)
	}

	queue := mb.activities[task.Queue]
	mb.activities[task.Queue] = append(queue[:idx:idx], queue[idx+1:]...)

	mb.consumed.Set(a.token, struct{}{}, ttlcache.DefaultTTL)

	exec, ok := mb.executions[a.execution.ID]
	if !ok || exec.state != core.ExecutionStateActive {
		mb.logger.WarnContext(ctx, "dropping activity result for inactive execution", log.ExecutionIDKey, a.execution.ID)
		return nil
	}

	mb.appendEvents(exec, result)

	return nil
}

func (mb *memoryBackend) GetStats(ctx context.Context) (*backend.Stats, error) {
	mb.mu.Lock()
	defer mb.mu.Unlock()

	s := &backend.Stats{
		PendingActivities: make(map[core.Queue]int64),
	}

	for _, exec := range mb.executions {
		if exec.state == core.ExecutionStateActive {
			s.ActiveExecutions++

			if exec.decisionPending {
				s.PendingDecisionTasks++
			}
		}
	}

	for queue, activities := range mb.activities {
		if len(activities) > 0 {
			s.PendingActivities[queue] = int64(len(activities))
		}
	}

	return s, nil
}

func (mb *memoryBackend) Tracer() trace.Tracer {
	return mb.options.TracerProvider.Tracer(backend.TracerName)
}

func (mb *memoryBackend) Metrics() metrics.Client {
	return mb.metrics
}

func (mb *memoryBackend) Options() *backend.Options {
	return mb.options
}

func (mb *memoryBackend) Close() error {
	return nil
}

func contains(s []string, v string) bool {
	for _, x := range s {
		if x == v {
			return true
		}
	}

	return false
}
