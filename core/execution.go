package core

// Execution identifies one run of a pipeline.
type Execution struct {
	// ID is the unique identifier of the execution.
	ID string `json:"id,omitempty"`

	// WorkflowType is the name of the pipeline definition driving this execution.
	WorkflowType string `json:"workflow_type,omitempty"`

	// Version is the version of the pipeline definition.
	Version string `json:"version,omitempty"`
}

func NewExecution(id, workflowType, version string) *Execution {
	return &Execution{
		ID:           id,
		WorkflowType: workflowType,
		Version:      version,
	}
}

func (e *Execution) String() string {
	return e.WorkflowType + "/" + e.ID
}

type ExecutionState int

const (
	ExecutionStateActive ExecutionState = iota
	ExecutionStateFinished
)

func (s ExecutionState) String() string {
	switch s {
	case ExecutionStateActive:
		return "Active"
	case ExecutionStateFinished:
		return "Finished"
	default:
		return "Unknown"
	}
}
