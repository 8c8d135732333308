package backend

import (
	"context"
	"errors"

	"go.opentelemetry.io/otel/trace"

	"github.com/cschleiden/go-mediaflow/backend/history"
	"github.com/cschleiden/go-mediaflow/backend/metrics"
	"github.com/cschleiden/go-mediaflow/core"
	"github.com/cschleiden/go-mediaflow/decision"
)

var (
	ErrExecutionNotFound      = errors.New("execution not found")
	ErrExecutionAlreadyExists = errors.New("execution already exists")
	ErrExecutionNotFinished   = errors.New("execution is not finished")

	// ErrTaskNotFound is returned for tokens the backend does not know, including tokens whose
	// lease expired and whose task was handed out again.
	ErrTaskNotFound = errors.New("task not found")

	// ErrTaskTokenConsumed is returned when a task is reported with a token that already retired it.
	ErrTaskTokenConsumed = errors.New("task token already consumed")
)

const TracerName = "go-mediaflow"

//go:generate mockery --name=Backend --inpackage
type Backend interface {
	// CreateExecution creates a new execution. event must be the ExecutionStarted event.
	CreateExecution(ctx context.Context, execution *core.Execution, event *history.Event) error

	// GetExecutionState returns the state of the given execution
	GetExecutionState(ctx context.Context, execution *core.Execution) (core.ExecutionState, error)

	// GetExecutionHistory returns the full history of the given execution
	GetExecutionHistory(ctx context.Context, execution *core.Execution) ([]*history.Event, error)

	// RemoveExecutions removes finished executions together with their history
	RemoveExecutions(ctx context.Context, options ...RemovalOption) error

	// GetDecisionTask claims a pending decision task for one of the given workflow types. Returns
	// nil if there is none.
	GetDecisionTask(ctx context.Context, workflowTypes []string) (*DecisionTask, error)

	// ExtendDecisionTask extends the lease of a claimed decision task
	ExtendDecisionTask(ctx context.Context, task *DecisionTask) error

	// CompleteDecisionTask retires the decision task and applies the decision to the execution.
	CompleteDecisionTask(ctx context.Context, task *DecisionTask, d *decision.Decision) error

	// GetActivityTask claims a pending activity task from one of the given queues. Returns nil if
	// there is none.
	GetActivityTask(ctx context.Context, queues []core.Queue) (*ActivityTask, error)

	// ExtendActivityTask extends the lease of a claimed activity task
	ExtendActivityTask(ctx context.Context, task *ActivityTask) error

	// CompleteActivityTask retires the activity task. result is either an ActivityCompleted or an
	// ActivityFailed event.
	CompleteActivityTask(ctx context.Context, task *ActivityTask, result *history.Event) error

	// GetStats returns stats about the backend
	GetStats(ctx context.Context) (*Stats, error)

	// Tracer returns the configured tracer for the backend
	Tracer() trace.Tracer

	// Metrics returns the configured metrics client for the backend
	Metrics() metrics.Client

	// Options returns the configured options for the backend
	Options() *Options

	// Close closes any underlying resources
	Close() error
}
