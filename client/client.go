// Package client starts pipeline executions and reads their outcome.
package client

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/cschleiden/go-mediaflow/backend"
	"github.com/cschleiden/go-mediaflow/backend/history"
	"github.com/cschleiden/go-mediaflow/core"
	"github.com/cschleiden/go-mediaflow/internal/tracing"
	"github.com/cschleiden/go-mediaflow/log"
	"github.com/cschleiden/go-mediaflow/pipeline"
)

var (
	ErrUnknownWorkflowType = errors.New("unknown workflow type")
	ErrInvalidInput        = errors.New("invalid execution input")
	ErrNoResult            = errors.New("execution finished, but could not find result event")
)

// ExecutionFailedError is returned for executions that completed with a failure.
type ExecutionFailedError struct {
	Failure *history.Failure
}

func (e *ExecutionFailedError) Error() string {
	msg := "execution failed: " + e.Failure.Reason
	if e.Failure.Activity != "" {
		msg += " in " + e.Failure.Activity
	}

	if e.Failure.Detail != "" {
		msg += ": " + e.Failure.Detail
	}

	return msg
}

type ExecutionOptions struct {
	// ExecutionID identifies the execution. A random ID is used if not set.
	ExecutionID string
}

type Client struct {
	backend     backend.Backend
	clock       clock.Clock
	definitions map[string]*pipeline.Definition
}

// New creates a client that can start executions of the given definitions.
func New(b backend.Backend, definitions ...*pipeline.Definition) *Client {
	defs := make(map[string]*pipeline.Definition, len(definitions))
	for _, def := range definitions {
		defs[def.Name] = def
	}

	return &Client{
		backend:     b,
		clock:       b.Options().Clock,
		definitions: defs,
	}
}

// StartExecution starts a new execution of the pipeline registered for workflowType. The input is
// validated against the pipeline's input schema before anything is persisted.
func (c *Client) StartExecution(ctx context.Context, options ExecutionOptions, workflowType string, input core.Record) (*core.Execution, error) {
	def, ok := c.definitions[workflowType]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownWorkflowType, workflowType)
	}

	if err := def.ValidateInput(input); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidInput, err)
	}

	id := options.ExecutionID
	if id == "" {
		id = uuid.NewString()
	}

	execution := core.NewExecution(id, def.Name, def.Version)

	// Start new span for the execution
	ctx, span := c.backend.Tracer().Start(ctx, fmt.Sprintf("StartExecution: %s", workflowType), trace.WithAttributes(
		attribute.String(tracing.ExecutionID, execution.ID),
		attribute.String(tracing.WorkflowType, execution.WorkflowType),
	))
	defer span.End()

	startedEvent := history.NewHistoryEvent(
		c.clock.Now(),
		history.EventType_ExecutionStarted,
		&history.ExecutionStartedAttributes{
			WorkflowType: def.Name,
			Version:      def.Version,
			Input:        input,
			TraceContext: tracing.Inject(ctx),
		})

	if err := c.backend.CreateExecution(ctx, execution, startedEvent); err != nil {
		return nil, tracing.WithSpanError(span, fmt.Errorf("creating execution: %w", err))
	}

	c.backend.Options().Logger.DebugContext(ctx,
		"Started execution",
		log.ExecutionIDKey, execution.ID,
		log.WorkflowTypeKey, execution.WorkflowType,
		log.AssetKey, input.Asset,
	)

	return execution, nil
}

// WaitForExecution waits for the given execution to finish or until the given timeout has expired.
func (c *Client) WaitForExecution(ctx context.Context, execution *core.Execution, timeout time.Duration) error {
	if timeout == 0 {
		timeout = time.Second * 20
	}

	ctx, span := c.backend.Tracer().Start(ctx, "WaitForExecution", trace.WithAttributes(
		attribute.String(tracing.ExecutionID, execution.ID),
	))
	defer span.End()

	b := backoff.ExponentialBackOff{
		InitialInterval:     time.Millisecond * 1,
		MaxInterval:         time.Second * 1,
		Multiplier:          1.5,
		RandomizationFactor: 0.5,
		MaxElapsedTime:      timeout,
		Stop:                backoff.Stop,
		Clock:               c.clock,
	}
	b.Reset()

	ticker := backoff.NewTickerWithTimer(backoff.WithContext(&b, ctx), &clockTimer{clock: c.clock})
	defer ticker.Stop()

	for range ticker.C {
		s, err := c.backend.GetExecutionState(ctx, execution)
		if err != nil {
			return tracing.WithSpanError(span, fmt.Errorf("getting execution state: %w", err))
		}

		if s == core.ExecutionStateFinished {
			return nil
		}
	}

	if err := ctx.Err(); err != nil {
		return err
	}

	return errors.New("execution did not finish in specified timeout")
}

// GetExecutionResult waits for the execution to finish and returns the record it completed with.
// An execution that completed with a failure returns an *ExecutionFailedError.
func (c *Client) GetExecutionResult(ctx context.Context, execution *core.Execution, timeout time.Duration) (core.Record, error) {
	ctx, span := c.backend.Tracer().Start(ctx, "GetExecutionResult", trace.WithAttributes(
		attribute.String(tracing.ExecutionID, execution.ID),
	))
	defer span.End()

	if err := c.WaitForExecution(ctx, execution, timeout); err != nil {
		return core.Record{}, fmt.Errorf("execution did not finish in time: %w", err)
	}

	h, err := c.backend.GetExecutionHistory(ctx, execution)
	if err != nil {
		return core.Record{}, fmt.Errorf("getting execution history: %w", err)
	}

	return Result(h)
}

// Result extracts the outcome of a finished execution from its history.
func Result(h []*history.Event) (core.Record, error) {
	// Iterate over history backwards
	for i := len(h) - 1; i >= 0; i-- {
		event := h[i]
		if event.Type != history.EventType_ExecutionCompleted {
			continue
		}

		a := event.Attributes.(*history.ExecutionCompletedAttributes)
		if a.Failure != nil {
			return core.Record{}, &ExecutionFailedError{Failure: a.Failure}
		}

		if a.Result == nil {
			return core.Record{}, nil
		}

		return *a.Result, nil
	}

	return core.Record{}, ErrNoResult
}

// GetExecutionHistory returns the full history of the given execution.
func (c *Client) GetExecutionHistory(ctx context.Context, execution *core.Execution) ([]*history.Event, error) {
	return c.backend.GetExecutionHistory(ctx, execution)
}

// GetExecutionState returns whether the given execution is still active.
func (c *Client) GetExecutionState(ctx context.Context, execution *core.Execution) (core.ExecutionState, error) {
	return c.backend.GetExecutionState(ctx, execution)
}

// clockTimer adapts a clock to backoff.Timer so waits follow the backend's clock.
type clockTimer struct {
	clock clock.Clock
	timer *clock.Timer
}

func (t *clockTimer) Start(duration time.Duration) {
	if t.timer == nil {
		t.timer = t.clock.Timer(duration)
	} else {
		t.timer.Reset(duration)
	}
}

func (t *clockTimer) Stop() {
	if t.timer != nil {
		t.timer.Stop()
	}
}

func (t *clockTimer) C() <-chan time.Time {
	return t.timer.C
}
