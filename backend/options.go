package backend

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/cschleiden/go-mediaflow/backend/metrics"
	mi "github.com/cschleiden/go-mediaflow/internal/metrics"
)

type Options struct {
	Logger *slog.Logger

	Metrics metrics.Client

	TracerProvider trace.TracerProvider

	// Clock is used for timestamps and leases.
	Clock clock.Clock

	// WorkerName identifies this backend instance as the holder of task leases. If not set, a
	// random name is generated.
	WorkerName string

	// DecisionLockTimeout determines how long a decision task can be locked for. If the decision task is
	// not completed by that timeframe, it's considered abandoned and it's handed out again with a new token.
	DecisionLockTimeout time.Duration

	// ActivityLockTimeout determines how long an activity task can be locked for. If the activity task is not
	// completed or extended by that timeframe, it's considered abandoned and it's handed out again with a new
	// token.
	//
	// For long running activities, combine this with heartbeats.
	ActivityLockTimeout time.Duration

	// TokenRetention is how long consumed tokens are remembered so that a second report can be told
	// apart from an unknown token.
	TokenRetention time.Duration
}

var DefaultOptions Options = Options{
	DecisionLockTimeout: time.Minute,
	ActivityLockTimeout: time.Minute * 2,
	TokenRetention:      time.Hour * 24,

	Logger:         slog.Default(),
	Metrics:        mi.NewNoopMetricsClient(),
	TracerProvider: noop.NewTracerProvider(),
	Clock:          clock.New(),
}

type BackendOption func(*Options)

func WithLogger(logger *slog.Logger) BackendOption {
	return func(o *Options) {
		o.Logger = logger
	}
}

func WithMetrics(client metrics.Client) BackendOption {
	return func(o *Options) {
		o.Metrics = client
	}
}

func WithTracerProvider(tp trace.TracerProvider) BackendOption {
	return func(o *Options) {
		o.TracerProvider = tp
	}
}

func WithClock(clk clock.Clock) BackendOption {
	return func(o *Options) {
		o.Clock = clk
	}
}

func WithWorkerName(name string) BackendOption {
	return func(o *Options) {
		o.WorkerName = name
	}
}

// WithDecisionLockTimeout sets the lease duration of claimed decision tasks.
func WithDecisionLockTimeout(timeout time.Duration) BackendOption {
	return func(o *Options) {
		o.DecisionLockTimeout = timeout
	}
}

// WithActivityLockTimeout sets the lease duration of claimed activity tasks.
func WithActivityLockTimeout(timeout time.Duration) BackendOption {
	return func(o *Options) {
		o.ActivityLockTimeout = timeout
	}
}

func WithTokenRetention(retention time.Duration) BackendOption {
	return func(o *Options) {
		o.TokenRetention = retention
	}
}

func ApplyOptions(opts ...BackendOption) Options {
	options := DefaultOptions

	for _, opt := range opts {
		opt(&options)
	}

	if options.Logger == nil {
		options.Logger = slog.Default()
	}

	if options.Clock == nil {
		options.Clock = clock.New()
	}

	if options.WorkerName == "" {
		options.WorkerName = fmt.Sprintf("worker-%v", uuid.NewString())
	}

	return options
}
