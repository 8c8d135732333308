// Package redis provides a backend for Redis. Execution state is stored as JSON, history in lists,
// and pending tasks in sorted sets scored by the time they become claimable.
package redis

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel/trace"

	"github.com/cschleiden/go-mediaflow/backend"
	"github.com/cschleiden/go-mediaflow/backend/metrics"
	"github.com/cschleiden/go-mediaflow/core"
	"github.com/cschleiden/go-mediaflow/internal/metrickeys"
	"github.com/cschleiden/go-mediaflow/log"
)

// maxTxAttempts bounds how often an optimistic transaction is retried when a watched key changed.
const maxTxAttempts = 10

var _ backend.Backend = (*redisBackend)(nil)

func NewRedisBackend(client redis.UniversalClient, opts ...RedisBackendOption) (*redisBackend, error) {
	backendOptions := backend.ApplyOptions()
	options := &RedisOptions{
		Options: &backendOptions,
	}

	for _, opt := range opts {
		opt(options)
	}

	rb := &redisBackend{
		rdb:     client,
		options: options,
		keys:    newKeys(options.KeyPrefix),
		logger:  options.Logger.With(log.NamespaceKey+".backend", "redis"),
		metrics: options.Metrics.WithTags(metrics.Tags{metrickeys.Backend: "redis"}),
	}

	// Preload scripts here. Usually go-redis attempts to execute them first, and if redis doesn't
	// know them, loads them. This doesn't work in pipelines, so eagerly load them on startup.
	ctx := context.Background()
	cmds := map[string]*redis.StringCmd{
		"removeExecutionsCmd": removeExecutionsCmd.Load(ctx, rb.rdb),
	}
	for name, cmd := range cmds {
		if cmd.Err() != nil {
			return nil, fmt.Errorf("loading redis script: %v %w", name, cmd.Err())
		}
	}

	return rb, nil
}

type redisBackend struct {
	rdb     redis.UniversalClient
	options *RedisOptions
	keys    *keys
	logger  *slog.Logger
	metrics metrics.Client
}

func (rb *redisBackend) Metrics() metrics.Client {
	return rb.metrics
}

func (rb *redisBackend) Tracer() trace.Tracer {
	return rb.options.TracerProvider.Tracer(backend.TracerName)
}

func (rb *redisBackend) Options() *backend.Options {
	return rb.options.Options
}

func (rb *redisBackend) Close() error {
	return rb.rdb.Close()
}

func (rb *redisBackend) now() time.Time {
	return rb.options.Clock.Now()
}

// watch runs fn in an optimistic transaction over keys and retries when one of them changed
// before the transaction executed.
func (rb *redisBackend) watch(ctx context.Context, fn func(tx *redis.Tx) error, keys ...string) error {
	for i := 0; i < maxTxAttempts; i++ {
		err := rb.rdb.Watch(ctx, fn, keys...)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}

		return err
	}

	return fmt.Errorf("transaction on %v: %w", keys, redis.TxFailedErr)
}

// tokenError tells a retired token apart from one the backend never handed out or handed out again.
func (rb *redisBackend) tokenError(ctx context.Context, c redis.Cmdable, token core.TaskToken) error {
	if token == "" {
		return backend.ErrTaskNotFound
	}

	n, err := c.Exists(ctx, rb.keys.consumedTokenKey(token)).Result()
	if err != nil {
		return fmt.Errorf("looking up token: %w", err)
	}

	if n > 0 {
		return backend.ErrTaskTokenConsumed
	}

	return backend.ErrTaskNotFound
}

func (rb *redisBackend) consumeTokenP(ctx context.Context, p redis.Pipeliner, token core.TaskToken) {
	p.Set(ctx, rb.keys.consumedTokenKey(token), rb.now().UnixMilli(), rb.options.TokenRetention)
}

func score(t time.Time) float64 {
	return float64(t.UnixMilli())
}
