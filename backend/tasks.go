package backend

import (
	"time"

	"github.com/cschleiden/go-mediaflow/backend/history"
	"github.com/cschleiden/go-mediaflow/core"
)

// DecisionTask represents one pending decision for an execution.
type DecisionTask struct {
	// Token retires the task. It's set by the backend when the task is claimed.
	Token core.TaskToken

	Execution *core.Execution

	// LastSequenceID is the sequence ID of the newest event in History
	LastSequenceID int64

	// History is the full history of the execution, including the DecisionTaskStarted event of
	// this claim.
	History []*history.Event

	// LockedUntil is the end of the current lease.
	LockedUntil time.Time

	// Backend specific data, only the producer of the task should rely on this.
	CustomData any
}

// ActivityTask represents one activity execution.
type ActivityTask struct {
	Token core.TaskToken

	Execution *core.Execution

	Queue core.Queue

	// Event is the ActivityScheduled event this task was created from
	Event *history.Event

	LockedUntil time.Time

	CustomData any
}

func (t *ActivityTask) attributes() *history.ActivityScheduledAttributes {
	if t.Event == nil {
		return &history.ActivityScheduledAttributes{}
	}

	a, _ := t.Event.Attributes.(*history.ActivityScheduledAttributes)
	if a == nil {
		return &history.ActivityScheduledAttributes{}
	}

	return a
}

// Name returns the name of the scheduled activity.
func (t *ActivityTask) Name() string {
	return t.attributes().Name
}

// Input returns the record the activity was scheduled with.
func (t *ActivityTask) Input() core.Record {
	return t.attributes().Input
}

// TraceContext returns the trace context the activity was scheduled with.
func (t *ActivityTask) TraceContext() map[string]string {
	return t.attributes().TraceContext
}
