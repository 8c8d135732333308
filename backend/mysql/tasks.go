package mysql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/cschleiden/go-mediaflow/backend"
	"github.com/cschleiden/go-mediaflow/backend/history"
	"github.com/cschleiden/go-mediaflow/backend/metrics"
	"github.com/cschleiden/go-mediaflow/core"
	"github.com/cschleiden/go-mediaflow/decision"
	"github.com/cschleiden/go-mediaflow/internal/metrickeys"
	"github.com/cschleiden/go-mediaflow/log"
)

func (b *mysqlBackend) GetDecisionTask(ctx context.Context, workflowTypes []string) (*backend.DecisionTask, error) {
	if len(workflowTypes) == 0 {
		return nil, nil
	}

	tx, err := b.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("starting transaction: %w", err)
	}
	defer tx.Rollback()

	now := b.now()

	args := []any{now}
	for _, wt := range workflowTypes {
		args = append(args, wt)
	}

	row := tx.QueryRowContext(ctx,
		fmt.Sprintf(`SELECT execution_id FROM executions
			WHERE decision_pending = 1 AND completed_at IS NULL AND (locked_until IS NULL OR locked_until <= ?)
				AND workflow_type IN (%s)
			ORDER BY id LIMIT 1
			FOR UPDATE SKIP LOCKED`, placeholders(len(workflowTypes))),
		args...)

	var executionID string
	if err := row.Scan(&executionID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}

		return nil, fmt.Errorf("finding decision task: %w", err)
	}

	r, err := getExecution(ctx, tx, executionID, true)
	if err != nil {
		return nil, err
	}

	if r.decisionToken.Valid {
		b.logger.WarnContext(ctx, "decision task lease expired, handing out again",
			log.ExecutionIDKey, executionID,
			log.TaskTokenKey, r.decisionToken.String,
		)
		b.metrics.Counter(metrickeys.TaskLeaseExpired, metrics.Tags{}, 1)
	}

	token := core.NewTaskToken()
	lockedUntil := now.Add(b.options.DecisionLockTimeout)

	r.decisionToken = sql.NullString{String: string(token), Valid: true}
	r.lockedUntil = sql.NullTime{Time: lockedUntil, Valid: true}
	r.worker = sql.NullString{String: b.workerName, Valid: true}
	r.redecide = false

	if err := b.appendEvents(ctx, tx, r, backend.NewDecisionTaskStartedEvent(now, b.workerName)); err != nil {
		return nil, fmt.Errorf("claiming decision task: %w", err)
	}

	h, err := getHistory(ctx, tx, executionID)
	if err != nil {
		return nil, fmt.Errorf("getting history: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("claiming decision task: %w", err)
	}

	return &backend.DecisionTask{
		Token:          token,
		Execution:      r.execution,
		LastSequenceID: r.lastSequenceID,
		History:        h,
		LockedUntil:    lockedUntil,
	}, nil
}

// decisionHolder returns the execution whose claimed decision task token retires.
func (b *mysqlBackend) decisionHolder(ctx context.Context, tx *sql.Tx, task *backend.DecisionTask) (*executionRow, error) {
	r, err := getExecution(ctx, tx, task.Execution.ID, true)
	if err != nil && !errors.Is(err, backend.ErrExecutionNotFound) {
		return nil, err
	}

	if r == nil || !r.holds(task.Token) {
		return nil, b.tokenError(ctx, tx, task.Token)
	}

	return r, nil
}

func (b *mysqlBackend) ExtendDecisionTask(ctx context.Context, task *backend.DecisionTask) error {
	tx, err := b.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("starting transaction: %w", err)
	}
	defer tx.Rollback()

	r, err := b.decisionHolder(ctx, tx, task)
	if err != nil {
		return err
	}

	lockedUntil := b.now().Add(b.options.DecisionLockTimeout)
	r.lockedUntil = sql.NullTime{Time: lockedUntil, Valid: true}

	if err := saveExecution(ctx, tx, r); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("extending decision task: %w", err)
	}

	task.LockedUntil = lockedUntil

	return nil
}

func (b *mysqlBackend) CompleteDecisionTask(ctx context.Context, task *backend.DecisionTask, d *decision.Decision) error {
	tx, err := b.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("starting transaction: %w", err)
	}
	defer tx.Rollback()

	r, err := b.decisionHolder(ctx, tx, task)
	if err != nil {
		return err
	}

	now := b.now()

	events, err := backend.DecisionEvents(now, r.lastSequenceID, b.workerName, d)
	if err != nil {
		return fmt.Errorf("completing decision task: %w", err)
	}

	if err := insertHistoryEvents(ctx, tx, r.execution.ID, events...); err != nil {
		return err
	}

	r.lastSequenceID = events[len(events)-1].SequenceID

	if err := b.consumeToken(ctx, tx, task.Token); err != nil {
		return err
	}

	r.decisionToken = sql.NullString{}
	r.lockedUntil = sql.NullTime{}
	r.worker = sql.NullString{}
	r.decisionPending = false

	switch d.Type {
	case decision.Type_ScheduleActivityTask:
		if err := insertActivity(ctx, tx, r.execution, d.ScheduleActivity.Queue, events[len(events)-1]); err != nil {
			return err
		}

	case decision.Type_CompleteExecution:
		r.completedAt = sql.NullTime{Time: now, Valid: true}
		r.redecide = false
	}

	if r.redecide {
		r.redecide = false
		if err := b.scheduleDecision(ctx, tx, r); err != nil {
			return err
		}
	}

	if err := saveExecution(ctx, tx, r); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("completing decision task: %w", err)
	}

	switch d.Type {
	case decision.Type_ScheduleActivityTask:
		b.metrics.Counter(metrickeys.ActivityTaskScheduled, metrics.Tags{
			metrickeys.ActivityName: d.ScheduleActivity.Activity,
		}, 1)

	case decision.Type_CompleteExecution:
		b.metrics.Counter(metrickeys.ExecutionFinished, metrics.Tags{metrickeys.WorkflowType: r.execution.WorkflowType}, 1)
	}

	return nil
}

func insertActivity(ctx context.Context, tx *sql.Tx, e *core.Execution, queue core.Queue, event *history.Event) error {
	attributes, err := history.SerializeAttributes(event.Attributes)
	if err != nil {
		return fmt.Errorf("serializing attributes: %w", err)
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO activities (execution_id, workflow_type, version, queue, event_id, sequence_id, timestamp, attributes)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID,
		e.WorkflowType,
		e.Version,
		string(queue),
		event.ID,
		event.SequenceID,
		event.Timestamp.UTC(),
		attributes,
	); err != nil {
		return fmt.Errorf("scheduling activity: %w", err)
	}

	return nil
}

func (b *mysqlBackend) GetActivityTask(ctx context.Context, queues []core.Queue) (*backend.ActivityTask, error) {
	if len(queues) == 0 {
		return nil, nil
	}

	tx, err := b.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("starting transaction: %w", err)
	}
	defer tx.Rollback()

	now := b.now()

	args := []any{now}
	for _, q := range queues {
		args = append(args, string(q))
	}

	row := tx.QueryRowContext(ctx,
		fmt.Sprintf(`SELECT id, execution_id, workflow_type, version, queue, event_id, sequence_id, timestamp, attributes, token
			FROM activities
			WHERE (locked_until IS NULL OR locked_until <= ?) AND queue IN (%s)
			ORDER BY id LIMIT 1
			FOR UPDATE SKIP LOCKED`, placeholders(len(queues))),
		args...)

	var (
		id         int64
		e          = &core.Execution{}
		queue      core.Queue
		event      = &history.Event{Type: history.EventType_ActivityScheduled}
		attributes []byte
		oldToken   sql.NullString
	)

	if err := row.Scan(&id, &e.ID, &e.WorkflowType, &e.Version, &queue, &event.ID, &event.SequenceID, &event.Timestamp, &attributes, &oldToken); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}

		return nil, fmt.Errorf("finding activity task: %w", err)
	}

	if oldToken.Valid {
		b.logger.WarnContext(ctx, "activity task lease expired, handing out again",
			log.ExecutionIDKey, e.ID,
			log.QueueKey, string(queue),
			log.TaskTokenKey, oldToken.String,
		)
		b.metrics.Counter(metrickeys.TaskLeaseExpired, metrics.Tags{}, 1)
	}

	event.ScheduleEventID = event.SequenceID

	a, err := history.DeserializeAttributes(event.Type, attributes)
	if err != nil {
		return nil, fmt.Errorf("deserializing attributes: %w", err)
	}

	event.Attributes = a

	token := core.NewTaskToken()
	lockedUntil := now.Add(b.options.ActivityLockTimeout)

	if _, err := tx.ExecContext(ctx,
		"UPDATE activities SET token = ?, locked_until = ?, worker = ? WHERE id = ?",
		string(token), lockedUntil, b.workerName, id); err != nil {
		return nil, fmt.Errorf("claiming activity task: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("claiming activity task: %w", err)
	}

	return &backend.ActivityTask{
		Token:       token,
		Execution:   e,
		Queue:       queue,
		Event:       event,
		LockedUntil: lockedUntil,
	}, nil
}

// activityHolder returns the row id and execution of the claimed activity the token retires.
func (b *mysqlBackend) activityHolder(ctx context.Context, tx *sql.Tx, task *backend.ActivityTask) (int64, string, error) {
	if task.Token == "" {
		return 0, "", backend.ErrTaskNotFound
	}

	row := tx.QueryRowContext(ctx,
		"SELECT id, execution_id FROM activities WHERE token = ? AND queue = ? FOR UPDATE", string(task.Token), string(task.Queue))

	var (
		id          int64
		executionID string
	)

	if err := row.Scan(&id, &executionID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, "", b.tokenError(ctx, tx, task.Token)
		}

		return 0, "", fmt.Errorf("finding activity task: %w", err)
	}

	return id, executionID, nil
}

func (b *mysqlBackend) ExtendActivityTask(ctx context.Context, task *backend.ActivityTask) error {
	tx, err := b.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("starting transaction: %w", err)
	}
	defer tx.Rollback()

	id, _, err := b.activityHolder(ctx, tx, task)
	if err != nil {
		return err
	}

	lockedUntil := b.now().Add(b.options.ActivityLockTimeout)
	if _, err := tx.ExecContext(ctx, "UPDATE activities SET locked_until = ? WHERE id = ?", lockedUntil, id); err != nil {
		return fmt.Errorf("extending activity task: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("extending activity task: %w", err)
	}

	task.LockedUntil = lockedUntil

	return nil
}

func (b *mysqlBackend) CompleteActivityTask(ctx context.Context, task *backend.ActivityTask, result *history.Event) error {
	tx, err := b.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("starting transaction: %w", err)
	}
	defer tx.Rollback()

	id, executionID, err := b.activityHolder(ctx, tx, task)
	if err != nil {
		return err
	}

	if err := backend.ValidateActivityResult(task, result); err != nil {
		return fmt.Errorf("completing activity task: %w", err)
	}

	if _, err := tx.ExecContext(ctx, "DELETE FROM activities WHERE id = ?", id); err != nil {
		return fmt.Errorf("removing activity task: %w", err)
	}

	if err := b.consumeToken(ctx, tx, task.Token); err != nil {
		return err
	}

	r, err := getExecution(ctx, tx, executionID, true)
	switch {
	case errors.Is(err, backend.ErrExecutionNotFound) || (err == nil && r.completedAt.Valid):
		b.logger.WarnContext(ctx, "dropping activity result for inactive execution", log.ExecutionIDKey, executionID)

	case err != nil:
		return err

	default:
		if err := b.appendEvents(ctx, tx, r, result); err != nil {
			return fmt.Errorf("completing activity task: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("completing activity task: %w", err)
	}

	return nil
}
