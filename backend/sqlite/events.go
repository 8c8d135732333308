package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/cschleiden/go-mediaflow/backend"
	"github.com/cschleiden/go-mediaflow/backend/history"
	"github.com/cschleiden/go-mediaflow/backend/metrics"
	"github.com/cschleiden/go-mediaflow/core"
	"github.com/cschleiden/go-mediaflow/internal/metrickeys"
)

type executionRow struct {
	execution *core.Execution

	completedAt    sql.NullInt64
	lastSequenceID int64

	decisionPending bool
	redecide        bool

	decisionToken sql.NullString
	lockedUntil   sql.NullInt64
	worker        sql.NullString
}

func (r *executionRow) holds(token core.TaskToken) bool {
	return token != "" && r.decisionToken.Valid && r.decisionToken.String == string(token)
}

func getExecution(ctx context.Context, tx *sql.Tx, executionID string) (*executionRow, error) {
	row := tx.QueryRowContext(ctx,
		`SELECT execution_id, workflow_type, version, completed_at, last_sequence_id, decision_pending, redecide,
			decision_token, locked_until, worker
		FROM executions WHERE execution_id = ?`, executionID)

	r := &executionRow{execution: &core.Execution{}}
	if err := row.Scan(
		&r.execution.ID,
		&r.execution.WorkflowType,
		&r.execution.Version,
		&r.completedAt,
		&r.lastSequenceID,
		&r.decisionPending,
		&r.redecide,
		&r.decisionToken,
		&r.lockedUntil,
		&r.worker,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, backend.ErrExecutionNotFound
		}

		return nil, fmt.Errorf("getting execution: %w", err)
	}

	return r, nil
}

func saveExecution(ctx context.Context, tx *sql.Tx, r *executionRow) error {
	if _, err := tx.ExecContext(ctx,
		`UPDATE executions SET completed_at = ?, last_sequence_id = ?, decision_pending = ?, redecide = ?,
			decision_token = ?, locked_until = ?, worker = ?
		WHERE execution_id = ?`,
		r.completedAt,
		r.lastSequenceID,
		r.decisionPending,
		r.redecide,
		r.decisionToken,
		r.lockedUntil,
		r.worker,
		r.execution.ID,
	); err != nil {
		return fmt.Errorf("updating execution: %w", err)
	}

	return nil
}

// appendEvents numbers and stores events, and schedules a decision task if one of them needs
// routing.
func (sb *sqliteBackend) appendEvents(ctx context.Context, tx *sql.Tx, r *executionRow, events ...*history.Event) error {
	r.lastSequenceID = backend.AssignSequenceIDs(r.lastSequenceID, events...)

	if err := insertHistoryEvents(ctx, tx, r.execution.ID, events...); err != nil {
		return err
	}

	for _, event := range events {
		if backend.RoutingEvent(event.Type) {
			if err := sb.scheduleDecision(ctx, tx, r); err != nil {
				return err
			}

			break
		}
	}

	return saveExecution(ctx, tx, r)
}

func (sb *sqliteBackend) scheduleDecision(ctx context.Context, tx *sql.Tx, r *executionRow) error {
	if r.decisionPending {
		if r.decisionToken.Valid {
			r.redecide = true
		}

		return nil
	}

	e := backend.NewDecisionTaskScheduledEvent(sb.now())
	r.lastSequenceID = backend.AssignSequenceIDs(r.lastSequenceID, e)
	if err := insertHistoryEvents(ctx, tx, r.execution.ID, e); err != nil {
		return err
	}

	r.decisionPending = true

	sb.metrics.Counter(metrickeys.DecisionTaskScheduled, metrics.Tags{metrickeys.WorkflowType: r.execution.WorkflowType}, 1)

	return nil
}

func insertHistoryEvents(ctx context.Context, tx *sql.Tx, executionID string, events ...*history.Event) error {
	for _, e := range events {
		attributes, err := history.SerializeAttributes(e.Attributes)
		if err != nil {
			return fmt.Errorf("serializing attributes: %w", err)
		}

		if _, err := tx.ExecContext(ctx,
			"INSERT INTO `history` (execution_id, sequence_id, event_id, event_type, timestamp, schedule_event_id, attributes) VALUES (?, ?, ?, ?, ?, ?, ?)",
			executionID,
			e.SequenceID,
			e.ID,
			e.Type,
			millis(e.Timestamp),
			e.ScheduleEventID,
			attributes,
		); err != nil {
			return fmt.Errorf("inserting history event: %w", err)
		}
	}

	return nil
}

func getHistory(ctx context.Context, tx *sql.Tx, executionID string) ([]*history.Event, error) {
	rows, err := tx.QueryContext(ctx,
		"SELECT sequence_id, event_id, event_type, timestamp, schedule_event_id, attributes FROM `history` WHERE execution_id = ? ORDER BY sequence_id",
		executionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	h := make([]*history.Event, 0)
	for rows.Next() {
		var (
			e          history.Event
			timestamp  int64
			attributes []byte
		)

		if err := rows.Scan(&e.SequenceID, &e.ID, &e.Type, &timestamp, &e.ScheduleEventID, &attributes); err != nil {
			return nil, fmt.Errorf("scanning event: %w", err)
		}

		e.Timestamp = fromMillis(timestamp)

		a, err := history.DeserializeAttributes(e.Type, attributes)
		if err != nil {
			return nil, fmt.Errorf("deserializing attributes: %w", err)
		}

		e.Attributes = a

		h = append(h, &e)
	}

	return h, rows.Err()
}
