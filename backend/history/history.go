package history

import (
	"time"

	"github.com/google/uuid"
)

type EventType uint

const (
	_ EventType = iota

	EventType_ExecutionStarted
	EventType_ExecutionCompleted

	EventType_DecisionTaskScheduled
	EventType_DecisionTaskStarted
	EventType_DecisionTaskCompleted

	EventType_ActivityScheduled
	EventType_ActivityCompleted
	EventType_ActivityFailed
)

func (et EventType) String() string {
	switch et {
	case EventType_ExecutionStarted:
		return "ExecutionStarted"
	case EventType_ExecutionCompleted:
		return "ExecutionCompleted"

	case EventType_DecisionTaskScheduled:
		return "DecisionTaskScheduled"
	case EventType_DecisionTaskStarted:
		return "DecisionTaskStarted"
	case EventType_DecisionTaskCompleted:
		return "DecisionTaskCompleted"

	case EventType_ActivityScheduled:
		return "ActivityScheduled"
	case EventType_ActivityCompleted:
		return "ActivityCompleted"
	case EventType_ActivityFailed:
		return "ActivityFailed"

	default:
		return "Unknown"
	}
}

// Bookkeeping reports whether events of this type only record decision task progress and never
// drive routing.
func (et EventType) Bookkeeping() bool {
	switch et {
	case EventType_DecisionTaskScheduled, EventType_DecisionTaskStarted, EventType_DecisionTaskCompleted:
		return true
	}

	return false
}

type Event struct {
	// ID is a unique identifier for this event
	ID string `json:"id,omitempty"`

	// SequenceID is the position of the event in the execution history, starting at 1. It's
	// assigned by the backend when the event is appended.
	SequenceID int64 `json:"sid,omitempty"`

	Type EventType `json:"t,omitempty"`

	Timestamp time.Time `json:"ts,omitempty"`

	// ScheduleEventID correlates events belonging together. The completion or failure of an
	// activity carries the sequence id of its ActivityScheduled event.
	ScheduleEventID int64 `json:"seid,omitempty"`

	// Attributes are event type specific attributes
	Attributes interface{} `json:"attr,omitempty"`
}

func (e Event) String() string {
	return e.Type.String()
}

type HistoryEventOption func(e *Event)

func ScheduleEventID(scheduleEventID int64) HistoryEventOption {
	return func(e *Event) {
		e.ScheduleEventID = scheduleEventID
	}
}

func NewHistoryEvent(timestamp time.Time, eventType EventType, attributes interface{}, opts ...HistoryEventOption) *Event {
	e := &Event{
		ID:         uuid.NewString(),
		Type:       eventType,
		Timestamp:  timestamp,
		Attributes: attributes,
	}

	for _, opt := range opts {
		opt(e)
	}

	return e
}
