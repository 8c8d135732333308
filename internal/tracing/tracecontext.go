package tracing

import (
	"context"

	"go.opentelemetry.io/otel/propagation"
)

// Context is a carrier for W3C trace context persisted alongside history events.
type Context map[string]string

var _ propagation.TextMapCarrier = Context(nil)

func (c Context) Get(key string) string {
	return c[key]
}

func (c Context) Set(key string, value string) {
	c[key] = value
}

func (c Context) Keys() []string {
	r := make([]string, 0, len(c))

	for k := range c {
		r = append(r, k)
	}

	return r
}

var propagator propagation.TraceContext

// Inject captures the span of ctx into a carrier. Returns nil when there is no span to carry.
func Inject(ctx context.Context) Context {
	carrier := make(Context)
	propagator.Inject(ctx, carrier)
	if len(carrier) == 0 {
		return nil
	}

	return carrier
}

// Extract restores a remote span context from the carrier into ctx.
func Extract(ctx context.Context, tctx Context) context.Context {
	if len(tctx) == 0 {
		return ctx
	}

	return propagator.Extract(ctx, tctx)
}
