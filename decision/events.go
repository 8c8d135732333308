package decision

import (
	"time"

	"github.com/cschleiden/go-mediaflow/backend/history"
)

// Events converts the decision into the history events a backend appends when the decision task
// is completed. nextSequenceID is the sequence id the first new event will receive.
func (d *Decision) Events(now time.Time, nextSequenceID int64) []*history.Event {
	switch d.Type {
	case Type_ScheduleActivityTask:
		s := d.ScheduleActivity
		return []*history.Event{
			history.NewHistoryEvent(now, history.EventType_ActivityScheduled, &history.ActivityScheduledAttributes{
				Name:         s.Activity,
				Queue:        s.Queue,
				Input:        s.Input,
				TraceContext: s.TraceContext,
			}, history.ScheduleEventID(nextSequenceID)),
		}

	case Type_CompleteExecution:
		c := d.CompleteExecution
		return []*history.Event{
			history.NewHistoryEvent(now, history.EventType_ExecutionCompleted, &history.ExecutionCompletedAttributes{
				Result:  c.Result,
				Failure: c.Failure,
			}),
		}
	}

	return nil
}
