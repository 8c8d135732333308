package backend

import (
	"errors"
	"fmt"
	"time"

	"github.com/cschleiden/go-mediaflow/backend/history"
	"github.com/cschleiden/go-mediaflow/decision"
)

// AssignSequenceIDs numbers events consecutively after lastSequenceID and returns the sequence ID
// of the last event. ActivityScheduled events are their own schedule event.
func AssignSequenceIDs(lastSequenceID int64, events ...*history.Event) int64 {
	for _, e := range events {
		lastSequenceID++
		e.SequenceID = lastSequenceID

		if e.Type == history.EventType_ActivityScheduled {
			e.ScheduleEventID = e.SequenceID
		}
	}

	return lastSequenceID
}

// RoutingEvent reports whether appending an event of this type makes a new decision necessary.
func RoutingEvent(t history.EventType) bool {
	switch t {
	case history.EventType_ExecutionStarted, history.EventType_ActivityCompleted, history.EventType_ActivityFailed:
		return true
	}

	return false
}

func NewDecisionTaskScheduledEvent(now time.Time) *history.Event {
	return history.NewHistoryEvent(now, history.EventType_DecisionTaskScheduled, &history.DecisionTaskScheduledAttributes{})
}

func NewDecisionTaskStartedEvent(now time.Time, worker string) *history.Event {
	return history.NewHistoryEvent(now, history.EventType_DecisionTaskStarted, &history.DecisionTaskStartedAttributes{
		Worker: worker,
	})
}

// DecisionEvents returns the events to append to history when a decision task is completed with d.
// Sequence IDs are assigned following lastSequenceID.
func DecisionEvents(now time.Time, lastSequenceID int64, worker string, d *decision.Decision) ([]*history.Event, error) {
	if d == nil {
		return nil, errors.New("no decision")
	}

	if err := d.Validate(); err != nil {
		return nil, fmt.Errorf("invalid decision: %w", err)
	}

	events := []*history.Event{
		history.NewHistoryEvent(now, history.EventType_DecisionTaskCompleted, &history.DecisionTaskCompletedAttributes{
			Worker: worker,
		}),
	}
	events = append(events, d.Events(now, lastSequenceID+2)...)

	AssignSequenceIDs(lastSequenceID, events...)

	return events, nil
}

// ValidateActivityResult ensures result reports the outcome of the activity of task.
func ValidateActivityResult(task *ActivityTask, result *history.Event) error {
	if result == nil {
		return errors.New("no result event")
	}

	switch result.Type {
	case history.EventType_ActivityCompleted, history.EventType_ActivityFailed:
	default:
		return fmt.Errorf("unexpected result event type %v", result.Type)
	}

	if task.Event != nil && result.ScheduleEventID != task.Event.SequenceID {
		return fmt.Errorf("result for schedule event %d does not match task schedule event %d",
			result.ScheduleEventID, task.Event.SequenceID)
	}

	return nil
}

// FindStartedEvent returns the ExecutionStarted attributes of a history.
func FindStartedEvent(events []*history.Event) (*history.ExecutionStartedAttributes, bool) {
	for _, e := range events {
		if e.Type == history.EventType_ExecutionStarted {
			a, ok := e.Attributes.(*history.ExecutionStartedAttributes)
			return a, ok
		}
	}

	return nil, false
}
