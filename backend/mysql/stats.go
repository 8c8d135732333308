package mysql

import (
	"context"
	"fmt"

	"github.com/cschleiden/go-mediaflow/backend"
	"github.com/cschleiden/go-mediaflow/core"
)

func (b *mysqlBackend) GetStats(ctx context.Context) (*backend.Stats, error) {
	s := &backend.Stats{
		PendingActivities: make(map[core.Queue]int64),
	}

	tx, err := b.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("starting transaction: %w", err)
	}
	defer tx.Rollback()

	row := tx.QueryRowContext(ctx,
		"SELECT COUNT(*), COALESCE(SUM(decision_pending), 0) FROM `executions` WHERE completed_at IS NULL")
	if err := row.Scan(&s.ActiveExecutions, &s.PendingDecisionTasks); err != nil {
		return nil, fmt.Errorf("getting execution stats: %w", err)
	}

	rows, err := tx.QueryContext(ctx, "SELECT queue, COUNT(*) FROM `activities` GROUP BY queue")
	if err != nil {
		return nil, fmt.Errorf("getting activity stats: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			queue core.Queue
			count int64
		)

		if err := rows.Scan(&queue, &count); err != nil {
			return nil, fmt.Errorf("scanning activity stats: %w", err)
		}

		s.PendingActivities[queue] = count
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("getting activity stats: %w", err)
	}

	return s, tx.Commit()
}
