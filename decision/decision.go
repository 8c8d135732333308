package decision

import (
	"fmt"

	"github.com/cschleiden/go-mediaflow/backend/history"
	"github.com/cschleiden/go-mediaflow/core"
)

type Type int

const (
	_ Type = iota
	Type_ScheduleActivityTask
	Type_CompleteExecution
)

func (t Type) String() string {
	switch t {
	case Type_ScheduleActivityTask:
		return "ScheduleActivityTask"
	case Type_CompleteExecution:
		return "CompleteExecution"
	default:
		return "Unknown"
	}
}

// Decision is the single outcome of a decision task. Exactly one of the attribute fields is set,
// matching Type.
type Decision struct {
	Type Type `json:"type"`

	ScheduleActivity *ScheduleActivityTask `json:"schedule_activity,omitempty"`

	CompleteExecution *CompleteExecution `json:"complete_execution,omitempty"`
}

type ScheduleActivityTask struct {
	Activity string `json:"activity"`

	Queue core.Queue `json:"queue"`

	Input core.Record `json:"input"`

	// TraceContext is handed to the activity so its span joins the execution trace.
	TraceContext map[string]string `json:"trace_context,omitempty"`
}

type CompleteExecution struct {
	Result *core.Record `json:"result,omitempty"`

	Failure *history.Failure `json:"failure,omitempty"`
}

func NewScheduleActivityTask(activity string, queue core.Queue, input core.Record) *Decision {
	return &Decision{
		Type: Type_ScheduleActivityTask,
		ScheduleActivity: &ScheduleActivityTask{
			Activity: activity,
			Queue:    queue,
			Input:    input,
		},
	}
}

func NewCompleteExecution(result core.Record) *Decision {
	return &Decision{
		Type: Type_CompleteExecution,
		CompleteExecution: &CompleteExecution{
			Result: &result,
		},
	}
}

func NewFailExecution(activity, reason, detail string) *Decision {
	return &Decision{
		Type: Type_CompleteExecution,
		CompleteExecution: &CompleteExecution{
			Failure: &history.Failure{
				Activity: activity,
				Reason:   reason,
				Detail:   detail,
			},
		},
	}
}

func (d *Decision) Validate() error {
	switch d.Type {
	case Type_ScheduleActivityTask:
		if d.ScheduleActivity == nil || d.CompleteExecution != nil {
			return fmt.Errorf("schedule decision must only carry schedule attributes")
		}
		if d.ScheduleActivity.Activity == "" {
			return fmt.Errorf("schedule decision without activity")
		}
		if err := core.ValidQueue(d.ScheduleActivity.Queue); err != nil {
			return fmt.Errorf("schedule decision for %q: %w", d.ScheduleActivity.Activity, err)
		}

	case Type_CompleteExecution:
		if d.CompleteExecution == nil || d.ScheduleActivity != nil {
			return fmt.Errorf("completion decision must only carry completion attributes")
		}
		if (d.CompleteExecution.Result == nil) == (d.CompleteExecution.Failure == nil) {
			return fmt.Errorf("completion decision must carry either a result or a failure")
		}

	default:
		return fmt.Errorf("unknown decision type %d", d.Type)
	}

	return nil
}

func (d *Decision) String() string {
	switch d.Type {
	case Type_ScheduleActivityTask:
		return fmt.Sprintf("%s(%s)", d.Type, d.ScheduleActivity.Activity)
	case Type_CompleteExecution:
		if f := d.CompleteExecution.Failure; f != nil {
			return fmt.Sprintf("%s(failure %s)", d.Type, f.Reason)
		}
	}

	return d.Type.String()
}
