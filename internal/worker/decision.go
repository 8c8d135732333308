package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"

	"github.com/benbjohnson/clock"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/cschleiden/go-mediaflow/backend"
	"github.com/cschleiden/go-mediaflow/backend/metrics"
	"github.com/cschleiden/go-mediaflow/decider"
	"github.com/cschleiden/go-mediaflow/decision"
	"github.com/cschleiden/go-mediaflow/internal/metrickeys"
	im "github.com/cschleiden/go-mediaflow/internal/metrics"
	"github.com/cschleiden/go-mediaflow/internal/tracing"
	"github.com/cschleiden/go-mediaflow/log"
	"github.com/cschleiden/go-mediaflow/pipeline"
)

// NewDecisionWorker creates a worker that decides executions of the given pipeline definitions.
func NewDecisionWorker(
	b backend.Backend, definitions []*pipeline.Definition, options WorkerOptions,
) *Worker[backend.DecisionTask, decision.Decision] {
	tw := NewDecisionTaskWorker(b, definitions)

	return NewWorker[backend.DecisionTask, decision.Decision](tw.logger, tw, &options)
}

type DecisionTaskWorker struct {
	backend       backend.Backend
	definitions   map[string]*pipeline.Definition
	workflowTypes []string
	logger        *slog.Logger
	tracer        trace.Tracer
	metrics       metrics.Client
	clock         clock.Clock
}

func NewDecisionTaskWorker(b backend.Backend, definitions []*pipeline.Definition) *DecisionTaskWorker {
	options := b.Options()

	defs := make(map[string]*pipeline.Definition, len(definitions))
	types := make([]string, 0, len(definitions))
	for _, def := range definitions {
		if _, ok := defs[def.Name]; !ok {
			types = append(types, def.Name)
		}

		defs[def.Name] = def
	}

	sort.Strings(types)

	return &DecisionTaskWorker{
		backend:       b,
		definitions:   defs,
		workflowTypes: types,
		logger:        options.Logger,
		tracer:        b.Tracer(),
		metrics:       b.Metrics(),
		clock:         options.Clock,
	}
}

func (dtw *DecisionTaskWorker) Get(ctx context.Context) (*backend.DecisionTask, error) {
	return dtw.backend.GetDecisionTask(ctx, dtw.workflowTypes)
}

func (dtw *DecisionTaskWorker) Extend(ctx context.Context, task *backend.DecisionTask) error {
	return dtw.backend.ExtendDecisionTask(ctx, task)
}

// Execute decides the next step of the execution. Routing configuration errors don't fail the
// task: they complete the execution with a ROUTE-0001 failure so it's never mis-routed.
func (dtw *DecisionTaskWorker) Execute(ctx context.Context, task *backend.DecisionTask) (*decision.Decision, error) {
	logger := dtw.logger.With(
		log.ExecutionIDKey, task.Execution.ID,
		log.WorkflowTypeKey, task.Execution.WorkflowType,
		log.HistoryLengthKey, len(task.History),
	)

	dmetrics := dtw.metrics.WithTags(metrics.Tags{metrickeys.WorkflowType: task.Execution.WorkflowType})

	if started, ok := backend.FindStartedEvent(task.History); ok {
		ctx = tracing.Extract(ctx, started.TraceContext)
	}

	ctx, span := dtw.tracer.Start(ctx, "DecisionTaskExecution", trace.WithAttributes(
		attribute.String(tracing.ExecutionID, task.Execution.ID),
		attribute.String(tracing.WorkflowType, task.Execution.WorkflowType),
		attribute.Int(tracing.HistoryLength, len(task.History)),
	))
	defer span.End()

	timer := im.NewTimerWithClock(dtw.clock, dmetrics, metrickeys.DecisionTaskDuration, metrics.Tags{})
	defer timer.Stop()

	def, ok := dtw.definitions[task.Execution.WorkflowType]
	if !ok {
		return nil, tracing.WithSpanError(span, fmt.Errorf("no pipeline definition for workflow type %q", task.Execution.WorkflowType))
	}

	d, err := decider.Decide(def, task.History)
	if err != nil {
		var rerr *pipeline.RoutingError
		if !errors.As(err, &rerr) {
			return nil, tracing.WithSpanError(span, fmt.Errorf("deciding: %w", err))
		}

		logger.ErrorContext(ctx, "routing configuration error", "error", err)
		span.RecordError(err)
		dmetrics.Counter(metrickeys.DecisionRoutingError, metrics.Tags{}, 1)

		d = decider.RoutingFailure(err)
	}

	span.SetAttributes(attribute.String(tracing.DecisionType, d.Type.String()))

	switch d.Type {
	case decision.Type_ScheduleActivityTask:
		span.SetAttributes(attribute.String(tracing.NextActivity, d.ScheduleActivity.Activity))
		logger.DebugContext(ctx, "scheduling activity",
			log.DecisionTypeKey, d.Type.String(),
			log.NextActivityKey, d.ScheduleActivity.Activity,
			log.QueueKey, string(d.ScheduleActivity.Queue),
		)

	case decision.Type_CompleteExecution:
		if f := d.CompleteExecution.Failure; f != nil {
			logger.InfoContext(ctx, "completing execution with failure",
				log.DecisionTypeKey, d.Type.String(),
				log.ActivityNameKey, f.Activity,
				log.ReasonKey, f.Reason,
			)
		} else {
			logger.InfoContext(ctx, "completing execution", log.DecisionTypeKey, d.Type.String())
		}
	}

	dmetrics.Counter(metrickeys.DecisionTaskProcessed, metrics.Tags{metrickeys.DecisionType: d.Type.String()}, 1)

	return d, nil
}

func (dtw *DecisionTaskWorker) Complete(ctx context.Context, d *decision.Decision, task *backend.DecisionTask) error {
	if err := dtw.backend.CompleteDecisionTask(ctx, task, d); err != nil {
		if errors.Is(err, backend.ErrTaskNotFound) || errors.Is(err, backend.ErrTaskTokenConsumed) {
			dtw.logger.WarnContext(ctx, "decision task no longer held",
				log.ExecutionIDKey, task.Execution.ID,
				log.TaskTokenKey, task.Token.String(),
				"error", err,
			)

			dtw.metrics.Counter(metrickeys.TaskLeaseExpired, metrics.Tags{}, 1)

			return nil
		}

		return fmt.Errorf("completing decision task: %w", err)
	}

	return nil
}
