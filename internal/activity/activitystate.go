package activity

import (
	"context"
	"log/slog"

	"github.com/cschleiden/go-mediaflow/core"
	"github.com/cschleiden/go-mediaflow/log"
)

type ActivityState struct {
	Name      string
	Execution *core.Execution
	Logger    *slog.Logger
}

func NewActivityState(name string, execution *core.Execution, logger *slog.Logger) *ActivityState {
	return &ActivityState{
		name,
		execution,
		logger.With(
			log.ActivityNameKey, name,
			log.ExecutionIDKey, execution.ID,
			log.WorkflowTypeKey, execution.WorkflowType,
		)}
}

type key int

var activityCtxKey key

func WithActivityState(ctx context.Context, as *ActivityState) context.Context {
	return context.WithValue(ctx, activityCtxKey, as)
}

func GetActivityState(ctx context.Context) *ActivityState {
	as, _ := ctx.Value(activityCtxKey).(*ActivityState)
	return as
}
