// Package mysql provides a backend for MySQL. Multiple processes can share one database; claims
// use row locks with SKIP LOCKED.
package mysql

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/mysql"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"go.opentelemetry.io/otel/trace"

	"github.com/cschleiden/go-mediaflow/backend"
	"github.com/cschleiden/go-mediaflow/backend/history"
	"github.com/cschleiden/go-mediaflow/backend/metrics"
	"github.com/cschleiden/go-mediaflow/core"
	"github.com/cschleiden/go-mediaflow/internal/metrickeys"
	"github.com/cschleiden/go-mediaflow/log"
)

//go:embed db/migrations/*.sql
var migrationsFS embed.FS

func NewMysqlBackend(host string, port int, user, password, database string, opts ...option) *mysqlBackend {
	return NewMysqlBackendWithDSN(fmt.Sprintf("%s:%s@tcp(%s:%d)/%s", user, password, host, port, database), opts...)
}

// NewMysqlBackendWithDSN creates a backend from a go-sql-driver DSN. Parameters the backend relies
// on are added to it.
func NewMysqlBackendWithDSN(dsn string, opts ...option) *mysqlBackend {
	dsn = withParams(dsn, "parseTime=true", "interpolateParams=true", "loc=UTC")

	options := newOptions(true, opts...)

	db, err := sql.Open("mysql", dsn)
	if err != nil {
		panic(err)
	}

	options.configure(db)

	b := newBackend(db, dsn, true, options)

	if options.ApplyMigrations {
		if err := b.Migrate(); err != nil {
			panic(err)
		}
	}

	return b
}

// NewMysqlBackendWithDB creates a backend using an existing database connection. The connection is
// not closed by Close. Migrations need a connection allowing multiple statements, so they only run
// when enabled with WithApplyMigrations and the handle was opened with multiStatements=true.
func NewMysqlBackendWithDB(db *sql.DB, opts ...option) *mysqlBackend {
	options := newOptions(false, opts...)

	b := newBackend(db, "", false, options)

	if options.ApplyMigrations {
		if err := b.Migrate(); err != nil {
			panic(err)
		}
	}

	return b
}

func newBackend(db *sql.DB, dsn string, ownsConnection bool, options *options) *mysqlBackend {
	return &mysqlBackend{
		dsn:            dsn,
		db:             db,
		workerName:     options.WorkerName,
		options:        options,
		logger:         options.Logger.With(log.NamespaceKey+".backend", "mysql"),
		metrics:        options.Metrics.WithTags(metrics.Tags{metrickeys.Backend: "mysql"}),
		ownsConnection: ownsConnection,
	}
}

type mysqlBackend struct {
	dsn            string
	db             *sql.DB
	workerName     string
	options        *options
	logger         *slog.Logger
	metrics        metrics.Client
	ownsConnection bool
}

var _ backend.Backend = (*mysqlBackend)(nil)

// Migrate applies any pending database migrations.
func (b *mysqlBackend) Migrate() error {
	var db *sql.DB
	var needsClose bool

	if b.dsn != "" {
		var err error
		db, err = sql.Open("mysql", withParams(b.dsn, "multiStatements=true"))
		if err != nil {
			return fmt.Errorf("opening schema database: %w", err)
		}

		needsClose = true
	} else {
		db = b.db
	}

	dbi, err := mysql.WithInstance(db, &mysql.Config{})
	if err != nil {
		return fmt.Errorf("creating migration instance: %w", err)
	}

	migrations, err := iofs.New(migrationsFS, "db/migrations")
	if err != nil {
		return fmt.Errorf("creating migration source: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", migrations, "mysql", dbi)
	if err != nil {
		return fmt.Errorf("creating migration: %w", err)
	}

	if err := m.Up(); err != nil {
		if !errors.Is(err, migrate.ErrNoChange) {
			return fmt.Errorf("running migrations: %w", err)
		}
	}

	if needsClose {
		if err := db.Close(); err != nil {
			return fmt.Errorf("closing schema database: %w", err)
		}
	}

	return nil
}

func (b *mysqlBackend) Close() error {
	if !b.ownsConnection {
		return nil
	}

	return b.db.Close()
}

func (b *mysqlBackend) Tracer() trace.Tracer {
	return b.options.TracerProvider.Tracer(backend.TracerName)
}

func (b *mysqlBackend) Metrics() metrics.Client {
	return b.metrics
}

func (b *mysqlBackend) Options() *backend.Options {
	return b.options.Options
}

// now returns the current time at the precision of DATETIME(3) columns.
func (b *mysqlBackend) now() time.Time {
	return b.options.Clock.Now().UTC().Truncate(time.Millisecond)
}

func (b *mysqlBackend) CreateExecution(ctx context.Context, e *core.Execution, event *history.Event) error {
	if event == nil || event.Type != history.EventType_ExecutionStarted {
		return fmt.Errorf("creating execution: first event must be %v", history.EventType_ExecutionStarted)
	}

	tx, err := b.db.BeginTx(ctx, &sql.TxOptions{
		Isolation: sql.LevelReadCommitted,
	})
	if err != nil {
		return fmt.Errorf("starting transaction: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(
		ctx,
		"INSERT IGNORE INTO `executions` (execution_id, workflow_type, version, created_at) VALUES (?, ?, ?, ?)",
		e.ID,
		e.WorkflowType,
		e.Version,
		b.now(),
	)
	if err != nil {
		return fmt.Errorf("inserting execution: %w", err)
	}

	if rows, err := res.RowsAffected(); err != nil {
		return fmt.Errorf("inserting execution: %w", err)
	} else if rows != 1 {
		return backend.ErrExecutionAlreadyExists
	}

	r, err := getExecution(ctx, tx, e.ID, true)
	if err != nil {
		return err
	}

	if err := b.appendEvents(ctx, tx, r, event); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("creating execution: %w", err)
	}

	b.metrics.Counter(metrickeys.ExecutionCreated, metrics.Tags{metrickeys.WorkflowType: e.WorkflowType}, 1)

	return nil
}

func (b *mysqlBackend) GetExecutionState(ctx context.Context, e *core.Execution) (core.ExecutionState, error) {
	row := b.db.QueryRowContext(ctx, "SELECT completed_at FROM `executions` WHERE execution_id = ?", e.ID)

	var completedAt sql.NullTime
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

func (b *mysqlBackend) GetExecutionHistory(ctx context.Context, e *core.Execution) ([]*history.Event, error) {
	tx, err := b.db.BeginTx(ctx, &sql.TxOptions{ReadOnly: true})
	if err != nil {
		return nil, fmt.Errorf("starting transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := getExecution(ctx, tx, e.ID, false); err != nil {
		return nil, err
	}

	h, err := getHistory(ctx, tx, e.ID)
	if err != nil {
		return nil, fmt.Errorf("getting history: %w", err)
	}

	return h, tx.Commit()
}

func (b *mysqlBackend) RemoveExecutions(ctx context.Context, options ...backend.RemovalOption) error {
	now := b.now()
	ro := backend.ApplyRemovalOptions(now, options...)

	for {
		rows, err := b.db.QueryContext(ctx,
			"SELECT execution_id FROM `executions` WHERE completed_at IS NOT NULL AND completed_at < ? LIMIT ?",
			ro.FinishedBefore, ro.BatchSize)
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

		if err := b.removeBatch(ctx, ids); err != nil {
			return err
		}

		if len(ids) < ro.BatchSize {
			break
		}
	}

	if _, err := b.db.ExecContext(ctx,
		"DELETE FROM `consumed_tokens` WHERE consumed_at < ?", now.Add(-b.options.TokenRetention)); err != nil {
		return fmt.Errorf("removing consumed tokens: %w", err)
	}

	return nil
}

func (b *mysqlBackend) removeBatch(ctx context.Context, ids []any) error {
	tx, err := b.db.BeginTx(ctx, nil)
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
func (b *mysqlBackend) tokenError(ctx context.Context, tx *sql.Tx, token core.TaskToken) error {
	row := tx.QueryRowContext(ctx,
		"SELECT 1 FROM `consumed_tokens` WHERE token = ? AND consumed_at >= ?",
		string(token), b.now().Add(-b.options.TokenRetention))

	var found int
	if err := row.Scan(&found); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return backend.ErrTaskNotFound
		}

		return fmt.Errorf("looking up token: %w", err)
	}

	return backend.ErrTaskTokenConsumed
}

func (b *mysqlBackend) consumeToken(ctx context.Context, tx *sql.Tx, token core.TaskToken) error {
	if _, err := tx.ExecContext(ctx,
		"INSERT INTO `consumed_tokens` (token, consumed_at) VALUES (?, ?) ON DUPLICATE KEY UPDATE consumed_at = VALUES(consumed_at)",
		string(token), b.now()); err != nil {
		return fmt.Errorf("consuming token: %w", err)
	}

	return nil
}

func withParams(dsn string, params ...string) string {
	for _, p := range params {
		key := p[:strings.IndexByte(p, '=')+1]
		if strings.Contains(dsn, key) {
			continue
		}

		if strings.Contains(dsn, "?") {
			dsn += "&" + p
		} else {
			dsn += "?" + p
		}
	}

	return dsn
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}
