package diag

import (
	"time"

	"github.com/cschleiden/go-mediaflow/backend/history"
	"github.com/cschleiden/go-mediaflow/core"
)

type ExecutionRef struct {
	Execution   *core.Execution `json:"execution"`
	CreatedAt   time.Time       `json:"created_at,omitempty"`
	CompletedAt *time.Time      `json:"completed_at,omitempty"`
	State       string          `json:"state"`

	// Failure is set for executions that completed with a failure.
	Failure *history.Failure `json:"failure,omitempty"`
}

type Event struct {
	ID              string      `json:"id,omitempty"`
	SequenceID      int64       `json:"sequence_id,omitempty"`
	Type            string      `json:"type,omitempty"`
	Timestamp       time.Time   `json:"timestamp,omitempty"`
	ScheduleEventID int64       `json:"schedule_event_id,omitempty"`
	Attributes      interface{} `json:"attributes,omitempty"`
}

type ExecutionInfo struct {
	*ExecutionRef

	History []*Event `json:"history,omitempty"`
}

// newExecutionInfo summarizes an execution from its history.
func newExecutionInfo(id string, state core.ExecutionState, h []*history.Event) *ExecutionInfo {
	ref := &ExecutionRef{
		Execution: &core.Execution{ID: id},
		State:     state.String(),
	}

	events := make([]*Event, 0, len(h))
	for _, event := range h {
		switch a := event.Attributes.(type) {
		case *history.ExecutionStartedAttributes:
			ref.Execution.WorkflowType = a.WorkflowType
			ref.Execution.Version = a.Version
			ref.CreatedAt = event.Timestamp
		case *history.ExecutionCompletedAttributes:
			ts := event.Timestamp
			ref.CompletedAt = &ts
			ref.Failure = a.Failure
		}

		events = append(events, &Event{
			ID:              event.ID,
			SequenceID:      event.SequenceID,
			Type:            event.Type.String(),
			Timestamp:       event.Timestamp,
			ScheduleEventID: event.ScheduleEventID,
			Attributes:      event.Attributes,
		})
	}

	return &ExecutionInfo{
		ExecutionRef: ref,
		History:      events,
	}
}
