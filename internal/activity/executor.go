package activity

import (
	"context"
	"fmt"
	"log/slog"

	goerrors "github.com/go-errors/errors"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/cschleiden/go-mediaflow/backend"
	"github.com/cschleiden/go-mediaflow/core"
	"github.com/cschleiden/go-mediaflow/internal/tracing"
)

// RunFunc is the domain action bound to an executor.
type RunFunc func(ctx context.Context, input core.Record) (core.Record, error)

type Executor struct {
	logger *slog.Logger
	tracer trace.Tracer
	name   string
	run    RunFunc
}

func NewExecutor(logger *slog.Logger, tracer trace.Tracer, name string, run RunFunc) *Executor {
	return &Executor{
		logger: logger,
		tracer: tracer,
		name:   name,
		run:    run,
	}
}

// ExecuteActivity runs the action for task. The action's output is merged over the scheduled
// input. Panics are recovered and returned as *PanicError.
func (e *Executor) ExecuteActivity(ctx context.Context, task *backend.ActivityTask) (result core.Record, err error) {
	if name := task.Name(); name != e.name {
		return core.Record{}, fmt.Errorf("executor for %q cannot run activity %q", e.name, name)
	}

	input := task.Input()

	// Add activity state to context
	as := NewActivityState(e.name, task.Execution, e.logger)
	activityCtx := WithActivityState(ctx, as)

	activityCtx = tracing.Extract(activityCtx, task.TraceContext())
	activityCtx, span := e.tracer.Start(activityCtx, "ActivityTaskExecution", trace.WithAttributes(
		attribute.String(tracing.ActivityName, e.name),
		attribute.String(tracing.ExecutionID, task.Execution.ID),
		attribute.String(tracing.WorkflowType, task.Execution.WorkflowType),
		attribute.Int64(tracing.ScheduleEventID, task.Event.SequenceID),
	))
	defer span.End()

	defer func() {
		if r := recover(); r != nil {
			goerr := goerrors.Wrap(r, 2)
			err = &PanicError{
				message:    fmt.Sprint(r),
				stacktrace: string(goerr.Stack()),
			}
			_ = tracing.WithSpanError(span, err)
		}
	}()

	output, err := e.run(activityCtx, input.Clone())
	if err != nil {
		return core.Record{}, tracing.WithSpanError(span, err)
	}

	return input.Merge(output), nil
}
