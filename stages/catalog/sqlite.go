package catalog

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/benbjohnson/clock"
	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"

	"github.com/cschleiden/go-mediaflow/stages"
)

//go:embed db/migrations/*.sql
var migrationsFS embed.FS

// MigrationsTable keeps the catalog schema version apart from the schema of a broker sharing the
// database.
const MigrationsTable = "catalog_schema_migrations"

// SQLiteCatalog stores documents as JSON in an SQLite database. It can share the database handle
// of the sqlite backend.
type SQLiteCatalog struct {
	db    *sql.DB
	clock clock.Clock
}

var _ stages.Catalog = (*SQLiteCatalog)(nil)

// NewSQLiteCatalog creates a catalog on db and applies its migrations.
func NewSQLiteCatalog(db *sql.DB, clk clock.Clock) (*SQLiteCatalog, error) {
	if clk == nil {
		clk = clock.New()
	}

	c := &SQLiteCatalog{db: db, clock: clk}
	if err := c.Migrate(); err != nil {
		return nil, err
	}

	return c, nil
}

func (c *SQLiteCatalog) Migrate() error {
	dbi, err := sqlite.WithInstance(c.db, &sqlite.Config{MigrationsTable: MigrationsTable})
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

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("running catalog migrations: %w", err)
	}

	return nil
}

func (c *SQLiteCatalog) Insert(ctx context.Context, key string, doc stages.Document) error {
	data, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("marshaling document: %w", err)
	}

	now := c.clock.Now().UnixMilli()
	res, err := c.db.ExecContext(ctx,
		"INSERT OR IGNORE INTO `assets` (`key`, `location`, `document`, `created_at`, `updated_at`) VALUES (?, ?, ?, ?, ?)",
		key, doc.Location(), string(data), now, now,
	)
	if err != nil {
		return fmt.Errorf("inserting %s: %w", key, err)
	}

	if n, err := res.RowsAffected(); err != nil {
		return err
	} else if n == 0 {
		return fmt.Errorf("inserting %s: %w", key, stages.ErrAssetExists)
	}

	return nil
}

func (c *SQLiteCatalog) Revive(ctx context.Context, key string, doc stages.Document, entry stages.AuditEntry) error {
	return c.modify(ctx, key, func(existing stages.Document) error {
		if existing.Location() != stages.LocationDelete {
			return fmt.Errorf("reviving %s: %w", key, stages.ErrAssetExists)
		}

		existing.Revive(doc, entry)
		return nil
	})
}

func (c *SQLiteCatalog) Update(ctx context.Context, key string, fields map[string]any) error {
	return c.modify(ctx, key, func(doc stages.Document) error {
		for k, v := range fields {
			doc[k] = v
		}

		return nil
	})
}

func (c *SQLiteCatalog) Relocate(ctx context.Context, key, location string, entry stages.AuditEntry) error {
	return c.modify(ctx, key, func(doc stages.Document) error {
		doc[stages.DocFileLocation] = location
		doc.AddAudit(entry)
		return nil
	})
}

func (c *SQLiteCatalog) Get(ctx context.Context, key string) (stages.Document, error) {
	return getDocument(ctx, c.db, key)
}

type queryer interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func getDocument(ctx context.Context, q queryer, key string) (stages.Document, error) {
	var data string
	err := q.QueryRowContext(ctx, "SELECT `document` FROM `assets` WHERE `key` = ?", key).Scan(&data)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("getting %s: %w", key, stages.ErrAssetNotFound)
		}

		return nil, fmt.Errorf("getting %s: %w", key, err)
	}

	var doc stages.Document
	if err := json.Unmarshal([]byte(data), &doc); err != nil {
		return nil, fmt.Errorf("unmarshaling document %s: %w", key, err)
	}

	return doc, nil
}

// modify runs a read-modify-write of a single document in a transaction.
func (c *SQLiteCatalog) modify(ctx context.Context, key string, f func(doc stages.Document) error) error {
	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	doc, err := getDocument(ctx, tx, key)
	if err != nil {
		return err
	}

	if err := f(doc); err != nil {
		return err
	}

	data, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("marshaling document: %w", err)
	}

	if _, err := tx.ExecContext(ctx,
		"UPDATE `assets` SET `location` = ?, `document` = ?, `updated_at` = ? WHERE `key` = ?",
		doc.Location(), string(data), c.clock.Now().UnixMilli(), key,
	); err != nil {
		return fmt.Errorf("updating %s: %w", key, err)
	}

	return tx.Commit()
}

// Locations counts the assets per location.
func (c *SQLiteCatalog) Locations(ctx context.Context) (map[string]int, error) {
	rows, err := c.db.QueryContext(ctx, "SELECT `location`, COUNT(*) FROM `assets` GROUP BY `location`")
	if err != nil {
		return nil, fmt.Errorf("counting assets: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var location string
		var n int
		if err := rows.Scan(&location, &n); err != nil {
			return nil, err
		}

		counts[location] = n
	}

	return counts, rows.Err()
}
