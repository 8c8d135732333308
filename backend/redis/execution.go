package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/cschleiden/go-mediaflow/backend"
	"github.com/cschleiden/go-mediaflow/backend/history"
	"github.com/cschleiden/go-mediaflow/backend/metrics"
	"github.com/cschleiden/go-mediaflow/core"
	"github.com/cschleiden/go-mediaflow/internal/metrickeys"
)

type executionState struct {
	Execution *core.Execution `json:"execution,omitempty"`

	CreatedAt   time.Time  `json:"created_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`

	LastSequenceID int64 `json:"last_sequence_id,omitempty"`

	// DecisionPending is set while the execution has a queued or claimed decision task
	DecisionPending bool `json:"decision_pending,omitempty"`

	// Redecide is set when a routing event arrived while the decision task was claimed
	Redecide bool `json:"redecide,omitempty"`

	DecisionToken core.TaskToken `json:"decision_token,omitempty"`
	LockedUntil   time.Time      `json:"locked_until,omitempty"`
}

func readExecution(ctx context.Context, c redis.Cmdable, key string) (*executionState, error) {
	val, err := c.Get(ctx, key).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, backend.ErrExecutionNotFound
		}

		return nil, fmt.Errorf("reading execution: %w", err)
	}

	var state executionState
	if err := json.Unmarshal([]byte(val), &state); err != nil {
		return nil, fmt.Errorf("unmarshaling execution: %w", err)
	}

	return &state, nil
}

func (rb *redisBackend) writeExecutionP(ctx context.Context, p redis.Pipeliner, state *executionState) error {
	data, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("marshaling execution: %w", err)
	}

	p.Set(ctx, rb.keys.executionKey(state.Execution.ID), string(data), 0)

	return nil
}

// appendEvents numbers events and schedules a decision task if one of them needs routing. It
// returns the events to store, including a DecisionTaskScheduled event.
func (rb *redisBackend) appendEvents(state *executionState, events ...*history.Event) []*history.Event {
	state.LastSequenceID = backend.AssignSequenceIDs(state.LastSequenceID, events...)

	for _, event := range events {
		if backend.RoutingEvent(event.Type) {
			return append(events, rb.scheduleDecision(state)...)
		}
	}

	return events
}

func (rb *redisBackend) scheduleDecision(state *executionState) []*history.Event {
	if state.DecisionPending {
		if state.DecisionToken != "" {
			state.Redecide = true
		}

		return nil
	}

	e := backend.NewDecisionTaskScheduledEvent(rb.now())
	state.LastSequenceID = backend.AssignSequenceIDs(state.LastSequenceID, e)
	state.DecisionPending = true

	return []*history.Event{e}
}

// storeP queues writing the execution state and its new events. A newly scheduled decision task
// is made claimable immediately.
func (rb *redisBackend) storeP(ctx context.Context, p redis.Pipeliner, state *executionState, wasPending bool, events []*history.Event) error {
	if err := rb.writeExecutionP(ctx, p, state); err != nil {
		return err
	}

	if len(events) > 0 {
		values := make([]interface{}, 0, len(events))
		for _, e := range events {
			data, err := json.Marshal(e)
			if err != nil {
				return fmt.Errorf("marshaling event: %w", err)
			}

			values = append(values, string(data))
		}

		p.RPush(ctx, rb.keys.historyKey(state.Execution.ID), values...)
	}

	queueKey := rb.keys.decisionQueueKey(state.Execution.WorkflowType)

	switch {
	case decisionScheduled(events) > 0:
		p.SAdd(ctx, rb.keys.workflowTypesKey(), state.Execution.WorkflowType)
		p.ZAdd(ctx, queueKey, redis.Z{Score: score(rb.now()), Member: state.Execution.ID})

	case !state.DecisionPending && wasPending:
		p.ZRem(ctx, queueKey, state.Execution.ID)
	}

	return nil
}

func decisionScheduled(events []*history.Event) int {
	n := 0
	for _, e := range events {
		if e.Type == history.EventType_DecisionTaskScheduled {
			n++
		}
	}

	return n
}

func (rb *redisBackend) recordScheduled(e *core.Execution, events []*history.Event) {
	if n := decisionScheduled(events); n > 0 {
		rb.metrics.Counter(metrickeys.DecisionTaskScheduled, metrics.Tags{metrickeys.WorkflowType: e.WorkflowType}, int64(n))
	}
}

func (rb *redisBackend) CreateExecution(ctx context.Context, e *core.Execution, event *history.Event) error {
	if event == nil || event.Type != history.EventType_ExecutionStarted {
		return fmt.Errorf("creating execution: first event must be %v", history.EventType_ExecutionStarted)
	}

	key := rb.keys.executionKey(e.ID)

	var events []*history.Event
	err := rb.watch(ctx, func(tx *redis.Tx) error {
		n, err := tx.Exists(ctx, key).Result()
		if err != nil {
			return fmt.Errorf("checking execution: %w", err)
		}

		if n > 0 {
			return backend.ErrExecutionAlreadyExists
		}

		state := &executionState{
			Execution: e,
			CreatedAt: rb.now(),
		}

		events = rb.appendEvents(state, event)

		_, err = tx.TxPipelined(ctx, func(p redis.Pipeliner) error {
			p.SAdd(ctx, rb.keys.executionsActiveKey(), e.ID)

			return rb.storeP(ctx, p, state, false, events)
		})

		return err
	}, key)
	if err != nil {
		if errors.Is(err, backend.ErrExecutionAlreadyExists) {
			return err
		}

		return fmt.Errorf("creating execution: %w", err)
	}

	rb.metrics.Counter(metrickeys.ExecutionCreated, metrics.Tags{metrickeys.WorkflowType: e.WorkflowType}, 1)
	rb.recordScheduled(e, events)

	return nil
}

func (rb *redisBackend) GetExecutionState(ctx context.Context, e *core.Execution) (core.ExecutionState, error) {
	state, err := readExecution(ctx, rb.rdb, rb.keys.executionKey(e.ID))
	if err != nil {
		return core.ExecutionStateActive, err
	}

	if state.CompletedAt != nil {
		return core.ExecutionStateFinished, nil
	}

	return core.ExecutionStateActive, nil
}

func (rb *redisBackend) GetExecutionHistory(ctx context.Context, e *core.Execution) ([]*history.Event, error) {
	n, err := rb.rdb.Exists(ctx, rb.keys.executionKey(e.ID)).Result()
	if err != nil {
		return nil, fmt.Errorf("reading execution: %w", err)
	}

	if n == 0 {
		return nil, backend.ErrExecutionNotFound
	}

	return rb.readHistory(ctx, rb.rdb, e.ID)
}

func (rb *redisBackend) readHistory(ctx context.Context, c redis.Cmdable, executionID string) ([]*history.Event, error) {
	msgs, err := c.LRange(ctx, rb.keys.historyKey(executionID), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("reading history: %w", err)
	}

	events := make([]*history.Event, 0, len(msgs))
	for _, msg := range msgs {
		var event *history.Event
		if err := json.Unmarshal([]byte(msg), &event); err != nil {
			return nil, fmt.Errorf("unmarshaling event: %w", err)
		}

		events = append(events, event)
	}

	return events, nil
}
