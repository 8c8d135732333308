// Package decider turns the history of an execution into its single next decision.
//
// Decide is a pure function of the pipeline definition and the history. It keeps no state
// between calls, so deciding the same decision task twice yields the same decision.
package decider

import (
	"errors"
	"fmt"

	"github.com/cschleiden/go-mediaflow/backend"
	"github.com/cschleiden/go-mediaflow/backend/history"
	"github.com/cschleiden/go-mediaflow/core"
	"github.com/cschleiden/go-mediaflow/decision"
	"github.com/cschleiden/go-mediaflow/pipeline"
)

// ReasonRoutingError is the failure reason of executions stopped by a routing configuration error.
const ReasonRoutingError = "ROUTE-0001_Routing configuration error"

var (
	ErrNoRoutingEvent     = errors.New("history contains no routing event")
	ErrExecutionCompleted = errors.New("execution already completed")
)

// SelectLastEvent returns the most recent ExecutionStarted, ActivityCompleted, or ActivityFailed
// event. Decision bookkeeping and scheduling events are skipped.
func SelectLastEvent(events []*history.Event) (*history.Event, error) {
	for i := len(events) - 1; i >= 0; i-- {
		e := events[i]

		switch e.Type {
		case history.EventType_ExecutionStarted,
			history.EventType_ActivityCompleted,
			history.EventType_ActivityFailed:
			return e, nil

		case history.EventType_ExecutionCompleted:
			return nil, ErrExecutionCompleted
		}
	}

	return nil, ErrNoRoutingEvent
}

// Decide determines the next decision for an execution of def. Routing configuration errors are
// returned as *pipeline.RoutingError; see RoutingFailure.
func Decide(def *pipeline.Definition, events []*history.Event) (*decision.Decision, error) {
	last, err := SelectLastEvent(events)
	if err != nil {
		return nil, err
	}

	var traceContext map[string]string
	if started, ok := backend.FindStartedEvent(events); ok {
		traceContext = started.TraceContext
	}

	switch a := last.Attributes.(type) {
	case *history.ExecutionStartedAttributes:
		entry, err := def.Lookup(pipeline.Start, a.Input)
		if err != nil {
			return nil, err
		}

		if entry.Terminal {
			return decision.NewCompleteExecution(entry.BuildInput(a.Input)), nil
		}

		return schedule(entry, a.Input, traceContext), nil

	case *history.ActivityCompletedAttributes:
		entry, err := def.Lookup(a.Name, a.Result)
		if err != nil {
			return nil, err
		}

		if entry.Terminal {
			return decision.NewCompleteExecution(entry.BuildInput(a.Result)), nil
		}

		return schedule(entry, a.Result, traceContext), nil

	case *history.ActivityFailedAttributes:
		return decision.NewFailExecution(a.Name, a.Reason, a.Detail), nil

	default:
		return nil, fmt.Errorf("unexpected attributes %T for %v event", last.Attributes, last.Type)
	}
}

// RoutingFailure is the decision that stops an execution that could not be routed.
func RoutingFailure(err error) *decision.Decision {
	return decision.NewFailExecution("", ReasonRoutingError, err.Error())
}

func schedule(entry *pipeline.Entry, result core.Record, traceContext map[string]string) *decision.Decision {
	d := decision.NewScheduleActivityTask(entry.To, entry.NextQueue(), entry.BuildInput(result))
	d.ScheduleActivity.TraceContext = traceContext
	return d
}
