// Package sqlite provides a backend storing executions, history, and task queues in SQLite.
package sqlite

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"go.opentelemetry.io/otel/trace"
	_ "modernc.org/sqlite"

	"github.com/cschleiden/go-mediaflow/backend"
	"github.com/cschleiden/go-mediaflow/backend/history"
	"github.com/cschleiden/go-mediaflow/backend/metrics"
	"github.com/cschleiden/go-mediaflow/core"
	"github.com/cschleiden/go-mediaflow/internal/metrickeys"
	"github.com/cschleiden/go-mediaflow/log"
)

//go:embed db/migrations/*.sql
var migrationsFS embed.FS

func NewInMemoryBackend(opts ...option) *sqliteBackend {
	b := newSqliteBackend("file::memory:?_pragma=foreign_keys(1)", opts...)

	return b
}

func NewSqliteBackend(path string, opts ...option) *sqliteBackend {
	return newSqliteBackend(
		fmt.Sprintf("file:%v?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)", path),
		opts...,
	)
}

// NewSqliteBackendWithDB creates a backend on an existing database handle. The handle is not closed
// by Close, and migrations only run when enabled with WithApplyMigrations.
func NewSqliteBackendWithDB(db *sql.DB, opts ...option) *sqliteBackend {
	return setup(db, false, false, opts...)
}

func newSqliteBackend(dsn string, opts ...option) *sqliteBackend {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		panic(err)
	}

	// SQLite allows a single writer. One connection serializes transactions and keeps in-memory
	// databases alive.
	db.SetMaxOpenConns(1)

	return setup(db, true, true, opts...)
}

func setup(db *sql.DB, ownsConnection, applyMigrations bool, opts ...option) *sqliteBackend {
	backendOptions := backend.ApplyOptions()
	options := &options{
		Options:         &backendOptions,
		ApplyMigrations: applyMigrations,
	}

	for _, opt := range opts {
		opt(options)
	}

	b := &sqliteBackend{
		db:             db,
		workerName:     options.WorkerName,
		options:        options,
		logger:         options.Logger.With(log.NamespaceKey+".backend", "sqlite"),
		metrics:        options.Metrics.WithTags(metrics.Tags{metrickeys.Backend: "sqlite"}),
		ownsConnection: ownsConnection,
	}

	if options.ApplyMigrations {
		if err := b.Migrate(); err != nil {
			panic(err)
		}
	}

	return b
}

type sqliteBackend struct {
	db             *sql.DB
	workerName     string
	options        *options
	logger         *slog.Logger
	metrics        metrics.Client
	ownsConnection bool
}

var _ backend.Backend = (*sqliteBackend)(nil)

// DB returns the database handle of the backend.
func (sb *sqliteBackend) DB() *sql.DB {
	return sb.db
}

// Migrate applies any pending database migrations.
func (sb *sqliteBackend) Migrate() error {
	dbi, err := sqlite.WithInstance(sb.db, &sqlite.Config{})
	if err != nil {
		return fmt.Errorf("creating migration instance: %w", err)
	}

	migrations, err := iofs.New(migrationsFS, "db/migrations")
	if err != nil {
		return fmt.Errorf("creating migration source: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", migrations, "sqlite", dbi)
	if err != nil {
		return fmt.Errorf("creating migration: %w", err)
	}

	if err := m.Up(); err != nil {
		if !errors.Is(err, migrate.ErrNoChange) {
			return fmt.Errorf("running migrations: %w", err)
		}
	}

	return nil
}

func (sb *sqliteBackend) Close() error {
	if !sb.ownsConnection {
		return nil
	}

	return sb.db.Close()
}

func (sb *sqliteBackend) Tracer() trace.Tracer {
	return sb.options.TracerProvider.Tracer(backend.TracerName)
}

func (sb *sqliteBackend) Metrics() metrics.Client {
	return sb.metrics
}

func (sb *sqliteBackend) Options() *backend.Options {
	return sb.options.Options
}

func (sb *sqliteBackend) now() time.Time {
	return sb.options.Clock.Now()
}

func (sb *sqliteBackend) CreateExecution(ctx context.Context, e *core.Execution, event *history.Event) error {
	if event == nil || event.Type != history.EventType_ExecutionStarted {
		return fmt.Errorf("creating execution: first event must be %v", history.EventType_ExecutionStarted)
	}

	tx, err := sb.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("starting transaction: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(
		ctx,
		"INSERT OR IGNORE INTO `executions` (execution_id, workflow_type, version, created_at) VALUES (?, ?, ?, ?)",
		e.ID,
		e.WorkflowType,
		e.Version,
		millis(sb.now()),
	)
	if err != nil {
		return fmt.Errorf("inserting execution: %w", err)
	}

	if rows, err := res.RowsAffected(); err != nil {
		return fmt.Errorf("inserting execution: %w", err)
	} else if rows != 1 {
		return backend.ErrExecutionAlreadyExists
	}

	exec, err := getExecution(ctx, tx, e.ID)
	if err != nil {
		return err
	}

	if err := sb.appendEvents(ctx, tx, exec, event); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("creating execution: %w", err)
	}

	sb.metrics.Counter(metrickeys.ExecutionCreated, metrics.Tags{metrickeys.WorkflowType: e.WorkflowType}, 1)

	return nil
}

func (sb *sqliteBackend) GetExecutionState(ctx context.Context, e *core.Execution) (core.ExecutionState, error) {
	row := sb.db.QueryRowContext(ctx, "SELECT completed_at FROM `executions` WHERE execution_id = ?", e.ID)

	var completedAt sql.NullInt64
	if err := row.Scan(&completedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return core.ExecutionStateActive, backend.ErrExecutionNotFound
		}

		return core.ExecutionStateActive, fmt.Errorf("getting execution state: %w", err)
	}

	if completedAt.Valid {
		return core.ExecutionStateFinished, nil
	}

	return core.ExecutionStateActive, nil
}

func (sb *sqliteBackend) GetExecutionHistory(ctx context.Context, e *core.Execution) ([]*history.Event, error) {
	tx, err := sb.db.BeginTx(ctx, &sql.TxOptions{ReadOnly: true})
	if err != nil {
		return nil, fmt.Errorf("starting transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := getExecution(ctx, tx, e.ID); err != nil {
		return nil, err
	}

	h, err := getHistory(ctx, tx, e.ID)
	if err != nil {
		return nil, fmt.Errorf("getting history: %w", err)
	}

	return h, tx.Commit()
}

func (sb *sqliteBackend) RemoveExecutions(ctx context.Context, options ...backend.RemovalOption) error {
	now := sb.now()
	ro := backend.ApplyRemovalOptions(now, options...)

	for {
		rows, err := sb.db.QueryContext(ctx,
			"SELECT execution_id FROM `executions` WHERE completed_at IS NOT NULL AND completed_at < ? LIMIT ?",
			millis(ro.FinishedBefore), ro.BatchSize)
		if err != nil {
			return fmt.Errorf("finding executions to remove: %w", err)
		}

		var ids []any
		for rows.Next() {
			var id string
			if err := rows.Scan(&id); err != nil {
				rows.Close()
				return fmt.Errorf("scanning execution id: %w", err)
			}

			ids = append(ids, id)
		}

		rows.Close()
		if err := rows.Err(); err != nil {
			return fmt.Errorf("finding executions to remove: %w", err)
		}

		if len(ids) == 0 {
			break
		}

		if err := sb.removeBatch(ctx, ids); err != nil {
			return err
		}

		if len(ids) < ro.BatchSize {
			break
		}
	}

	if _, err := sb.db.ExecContext(ctx,
		"DELETE FROM `consumed_tokens` WHERE consumed_at < ?", millis(now.Add(-sb.options.TokenRetention))); err != nil {
		return fmt.Errorf("removing consumed tokens: %w", err)
	}

	return nil
}

func (sb *sqliteBackend) removeBatch(ctx context.Context, ids []any) error {
	tx, err := sb.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("starting transaction: %w", err)
	}
	defer tx.Rollback()

	placeholders := placeholders(len(ids))

	for _, table := range []string{"history", "activities", "executions"} {
		if _, err := tx.ExecContext(ctx,
			fmt.Sprintf("DELETE FROM `%s` WHERE execution_id IN (%s)", table, placeholders), ids...); err != nil {
			return fmt.Errorf("removing from %s: %w", table, err)
		}
	}

	return tx.Commit()
}

// tokenError tells a retired token apart from one the backend never handed out or handed out again.
func (sb *sqliteBackend) tokenError(ctx context.Context, tx *sql.Tx, token core.TaskToken) error {
	row := tx.QueryRowContext(ctx,
		"SELECT 1 FROM `consumed_tokens` WHERE token = ? AND consumed_at >= ?",
		string(token), millis(sb.now().Add(-sb.options.TokenRetention)))

	var found int
	if err := row.Scan(&found); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return backend.ErrTaskNotFound
		}

		return fmt.Errorf("looking up token: %w", err)
	}

	return backend.ErrTaskTokenConsumed
}

func (sb *sqliteBackend) consumeToken(ctx context.Context, tx *sql.Tx, token core.TaskToken) error {
	if _, err := tx.ExecContext(ctx,
		"INSERT OR REPLACE INTO `consumed_tokens` (token, consumed_at) VALUES (?, ?)", string(token), millis(sb.now())); err != nil {
		return fmt.Errorf("consuming token: %w", err)
	}

	return nil
}

func millis(t time.Time) int64 {
	return t.UnixMilli()
}

func fromMillis(ms int64) time.Time {
	return time.UnixMilli(ms).UTC()
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}
