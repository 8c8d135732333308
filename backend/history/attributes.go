package history

import "github.com/cschleiden/go-mediaflow/core"

type ExecutionStartedAttributes struct {
	WorkflowType string `json:"workflow_type,omitempty"`

	Version string `json:"version,omitempty"`

	Input core.Record `json:"input"`

	// TraceContext carries the span of the caller that started the execution.
	TraceContext map[string]string `json:"trace_context,omitempty"`
}

// ExecutionCompletedAttributes holds either the final record or the failure that stopped the
// execution.
type ExecutionCompletedAttributes struct {
	Result *core.Record `json:"result,omitempty"`

	Failure *Failure `json:"failure,omitempty"`
}

type Failure struct {
	// Activity is the name of the activity that failed. Empty for routing failures.
	Activity string `json:"activity,omitempty"`

	Reason string `json:"reason"`

	Detail string `json:"detail,omitempty"`
}

type DecisionTaskScheduledAttributes struct{}

type DecisionTaskStartedAttributes struct {
	// Worker identifies the decider that claimed the task.
	Worker string `json:"worker,omitempty"`
}

type DecisionTaskCompletedAttributes struct {
	Worker string `json:"worker,omitempty"`
}

type ActivityScheduledAttributes struct {
	Name string `json:"name"`

	Queue core.Queue `json:"queue"`

	Input core.Record `json:"input"`

	TraceContext map[string]string `json:"trace_context,omitempty"`
}

type ActivityCompletedAttributes struct {
	Name string `json:"name"`

	Result core.Record `json:"result"`
}

type ActivityFailedAttributes struct {
	Name string `json:"name"`

	Reason string `json:"reason"`

	Detail string `json:"detail,omitempty"`
}
