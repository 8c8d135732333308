package mysql

import (
	"database/sql"
	"time"

	"github.com/cschleiden/go-mediaflow/backend"
)

type options struct {
	*backend.Options

	// ApplyMigrations applies the broker schema when the backend is created.
	ApplyMigrations bool

	// MaxOpenConns caps the connection pool. Every decision and activity poller holds at most one
	// connection while it claims a task. Zero leaves the pool unbounded.
	MaxOpenConns int

	// ConnMaxLifetime recycles connections before the server drops them as idle.
	ConnMaxLifetime time.Duration
}

type option func(*options)

func newOptions(applyMigrations bool, opts ...option) *options {
	backendOptions := backend.ApplyOptions()
	o := &options{
		Options:         &backendOptions,
		ApplyMigrations: applyMigrations,
		ConnMaxLifetime: 3 * time.Minute,
	}

	for _, opt := range opts {
		opt(o)
	}

	return o
}

// configure applies the pool settings to a handle the backend opened itself.
func (o *options) configure(db *sql.DB) {
	if o.MaxOpenConns > 0 {
		db.SetMaxOpenConns(o.MaxOpenConns)
		db.SetMaxIdleConns(o.MaxOpenConns)
	}

	db.SetConnMaxLifetime(o.ConnMaxLifetime)
}

func WithApplyMigrations(applyMigrations bool) option {
	return func(o *options) {
		o.ApplyMigrations = applyMigrations
	}
}

// WithConnectionPool bounds the pool of a backend created from a DSN. It has no effect on handles
// passed to NewMysqlBackendWithDB.
func WithConnectionPool(maxOpen int, maxLifetime time.Duration) option {
	return func(o *options) {
		o.MaxOpenConns = maxOpen
		if maxLifetime > 0 {
			o.ConnMaxLifetime = maxLifetime
		}
	}
}

// WithBackendOptions allows to pass generic backend options.
func WithBackendOptions(opts ...backend.BackendOption) option {
	return func(o *options) {
		for _, opt := range opts {
			opt(o.Options)
		}
	}
}
