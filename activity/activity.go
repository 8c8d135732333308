// Package activity defines the domain actions run by activity workers.
package activity

import (
	"context"

	"github.com/cschleiden/go-mediaflow/core"
)

// Action is one unit of domain work. It receives the record the activity was scheduled with and
// returns the record handed to the next stage. Fields missing from the returned record are carried
// over from the input.
//
// Return a *Failure to report a stable reason code. Any other error is reported as
// ReasonActivityError.
type Action interface {
	Run(ctx context.Context, input core.Record) (core.Record, error)
}

// ActionFunc adapts a function to the Action interface.
type ActionFunc func(ctx context.Context, input core.Record) (core.Record, error)

func (f ActionFunc) Run(ctx context.Context, input core.Record) (core.Record, error) {
	return f(ctx, input)
}
