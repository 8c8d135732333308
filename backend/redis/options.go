package redis

import (
	"time"

	"github.com/cschleiden/go-mediaflow/backend"
)

type RedisOptions struct {
	*backend.Options

	// AutoExpiration is the duration after which finished executions expire from the data store. If
	// set to 0 (default), executions never expire and need to be removed with RemoveExecutions.
	AutoExpiration time.Duration

	KeyPrefix string
}

type RedisBackendOption func(*RedisOptions)

func WithBackendOptions(opts ...backend.BackendOption) RedisBackendOption {
	return func(o *RedisOptions) {
		for _, opt := range opts {
			opt(o.Options)
		}
	}
}

// WithAutoExpiration sets the duration after which finished executions will expire from the data store.
func WithAutoExpiration(expireFinishedAfter time.Duration) RedisBackendOption {
	return func(o *RedisOptions) {
		o.AutoExpiration = expireFinishedAfter
	}
}

func WithKeyPrefix(keyPrefix string) RedisBackendOption {
	return func(o *RedisOptions) {
		o.KeyPrefix = keyPrefix
	}
}
