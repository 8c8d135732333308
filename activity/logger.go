package activity

import (
	"context"
	"log/slog"

	"github.com/cschleiden/go-mediaflow/core"
	"github.com/cschleiden/go-mediaflow/internal/activity"
)

// Logger returns a logger with the execution and activity this action is run for set as default fields
func Logger(ctx context.Context) *slog.Logger {
	if as := activity.GetActivityState(ctx); as != nil {
		return as.Logger
	}

	return slog.Default()
}

// Execution returns the execution this action is run for, or nil outside of an activity worker.
func Execution(ctx context.Context) *core.Execution {
	if as := activity.GetActivityState(ctx); as != nil {
		return as.Execution
	}

	return nil
}

// Name returns the name of the running activity.
func Name(ctx context.Context) string {
	if as := activity.GetActivityState(ctx); as != nil {
		return as.Name
	}

	return ""
}
