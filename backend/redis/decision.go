package redis

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/cschleiden/go-mediaflow/backend"
	"github.com/cschleiden/go-mediaflow/backend/history"
	"github.com/cschleiden/go-mediaflow/backend/metrics"
	"github.com/cschleiden/go-mediaflow/core"
	"github.com/cschleiden/go-mediaflow/decision"
	"github.com/cschleiden/go-mediaflow/internal/metrickeys"
	"github.com/cschleiden/go-mediaflow/log"
)

func (rb *redisBackend) GetDecisionTask(ctx context.Context, workflowTypes []string) (*backend.DecisionTask, error) {
	now := rb.now()

	for _, workflowType := range workflowTypes {
		queueKey := rb.keys.decisionQueueKey(workflowType)

		for {
			ids, err := rb.rdb.ZRangeByScore(ctx, queueKey, &redis.ZRangeBy{
				Min:   "-inf",
				Max:   strconv.FormatInt(now.UnixMilli(), 10),
				Count: 1,
			}).Result()
			if err != nil {
				return nil, fmt.Errorf("finding decision task: %w", err)
			}

			if len(ids) == 0 {
				break
			}

			task, claimed, err := rb.claimDecision(ctx, queueKey, ids[0], now)
			if err != nil {
				return nil, err
			}

			if claimed {
				return task, nil
			}
		}
	}

	return nil, nil
}

// claimDecision claims the decision task of an execution if it's still claimable. Stale queue
// entries are removed.
func (rb *redisBackend) claimDecision(ctx context.Context, queueKey, executionID string, now time.Time) (*backend.DecisionTask, bool, error) {
	key := rb.keys.executionKey(executionID)

	var (
		task     *backend.DecisionTask
		oldToken core.TaskToken
	)

	err := rb.watch(ctx, func(tx *redis.Tx) error {
		task = nil

		sc, err := tx.ZScore(ctx, queueKey, executionID).Result()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				return nil
			}

			return fmt.Errorf("reading decision task: %w", err)
		}

		// Claimed by another worker in the meantime
		if sc > score(now) {
			return nil
		}

		state, err := readExecution(ctx, tx, key)
		if err != nil && !errors.Is(err, backend.ErrExecutionNotFound) {
			return err
		}

		if state == nil || state.CompletedAt != nil || !state.DecisionPending {
			_, err := tx.TxPipelined(ctx, func(p redis.Pipeliner) error {
				p.ZRem(ctx, queueKey, executionID)
				return nil
			})

			return err
		}

		oldToken = state.DecisionToken

		state.DecisionToken = core.NewTaskToken()
		state.LockedUntil = now.Add(rb.options.DecisionLockTimeout)
		state.Redecide = false

		events := rb.appendEvents(state, backend.NewDecisionTaskStartedEvent(now, rb.options.WorkerName))

		h, err := rb.readHistory(ctx, tx, executionID)
		if err != nil {
			return err
		}

		if _, err := tx.TxPipelined(ctx, func(p redis.Pipeliner) error {
			if err := rb.storeP(ctx, p, state, true, events); err != nil {
				return err
			}

			p.ZAddXX(ctx, queueKey, redis.Z{Score: score(state.LockedUntil), Member: executionID})

			return nil
		}); err != nil {
			return err
		}

		task = &backend.DecisionTask{
			Token:          state.DecisionToken,
			Execution:      state.Execution,
			LastSequenceID: state.LastSequenceID,
			History:        append(h, events...),
			LockedUntil:    state.LockedUntil,
		}

		return nil
	}, key)
	if err != nil {
		return nil, false, fmt.Errorf("claiming decision task: %w", err)
	}

	if task != nil && oldToken != "" {
		rb.logger.WarnContext(ctx, "decision task lease expired, handing out again",
			log.ExecutionIDKey, executionID,
			log.TaskTokenKey, oldToken.String(),
		)
		rb.metrics.Counter(metrickeys.TaskLeaseExpired, metrics.Tags{}, 1)
	}

	return task, task != nil, nil
}

// decisionHolder returns the execution whose claimed decision task token retires.
func (rb *redisBackend) decisionHolder(ctx context.Context, tx *redis.Tx, task *backend.DecisionTask) (*executionState, error) {
	state, err := readExecution(ctx, tx, rb.keys.executionKey(task.Execution.ID))
	if err != nil && !errors.Is(err, backend.ErrExecutionNotFound) {
		return nil, err
	}

	if state == nil || task.Token == "" || state.DecisionToken != task.Token {
		return nil, rb.tokenError(ctx, tx, task.Token)
	}

	return state, nil
}

func (rb *redisBackend) ExtendDecisionTask(ctx context.Context, task *backend.DecisionTask) error {
	key := rb.keys.executionKey(task.Execution.ID)

	var lockedUntil time.Time
	err := rb.watch(ctx, func(tx *redis.Tx) error {
		state, err := rb.decisionHolder(ctx, tx, task)
		if err != nil {
			return err
		}

		state.LockedUntil = rb.now().Add(rb.options.DecisionLockTimeout)
		lockedUntil = state.LockedUntil

		_, err = tx.TxPipelined(ctx, func(p redis.Pipeliner) error {
			if err := rb.writeExecutionP(ctx, p, state); err != nil {
				return err
			}

			p.ZAddXX(ctx, rb.keys.decisionQueueKey(state.Execution.WorkflowType), redis.Z{
				Score:  score(state.LockedUntil),
				Member: state.Execution.ID,
			})

			return nil
		})

		return err
	}, key)
	if err != nil {
		return err
	}

	task.LockedUntil = lockedUntil

	return nil
}

func (rb *redisBackend) CompleteDecisionTask(ctx context.Context, task *backend.DecisionTask, d *decision.Decision) error {
	key := rb.keys.executionKey(task.Execution.ID)

	var events []*history.Event
	err := rb.watch(ctx, func(tx *redis.Tx) error {
		state, err := rb.decisionHolder(ctx, tx, task)
		if err != nil {
			return err
		}

		now := rb.now()

		events, err = backend.DecisionEvents(now, state.LastSequenceID, rb.options.WorkerName, d)
		if err != nil {
			return fmt.Errorf("completing decision task: %w", err)
		}

		state.LastSequenceID = events[len(events)-1].SequenceID
		state.DecisionToken = ""
		state.LockedUntil = time.Time{}
		state.DecisionPending = false

		var scheduled *activityState

		switch d.Type {
		case decision.Type_ScheduleActivityTask:
			scheduled = &activityState{
				ID:        uuid.NewString(),
				Execution: state.Execution,
				Queue:     d.ScheduleActivity.Queue,
				Event:     events[len(events)-1],
			}

		case decision.Type_CompleteExecution:
			state.CompletedAt = &now
			state.Redecide = false
		}

		if state.Redecide {
			state.Redecide = false
			events = append(events, rb.scheduleDecision(state)...)
		}

		_, err = tx.TxPipelined(ctx, func(p redis.Pipeliner) error {
			rb.consumeTokenP(ctx, p, task.Token)

			if err := rb.storeP(ctx, p, state, true, events); err != nil {
				return err
			}

			if scheduled != nil {
				if err := rb.writeActivityP(ctx, p, scheduled); err != nil {
					return err
				}

				p.SAdd(ctx, rb.keys.queuesKey(), string(scheduled.Queue))
				p.ZAdd(ctx, rb.keys.activityQueueKey(scheduled.Queue), redis.Z{Score: score(now), Member: scheduled.ID})
			}

			if state.CompletedAt != nil {
				p.SRem(ctx, rb.keys.executionsActiveKey(), state.Execution.ID)
				p.ZAdd(ctx, rb.keys.executionsFinishedKey(), redis.Z{Score: score(now), Member: state.Execution.ID})

				if rb.options.AutoExpiration > 0 {
					p.PExpire(ctx, rb.keys.executionKey(state.Execution.ID), rb.options.AutoExpiration)
					p.PExpire(ctx, rb.keys.historyKey(state.Execution.ID), rb.options.AutoExpiration)
				}
			}

			return nil
		})

		return err
	}, key)
	if err != nil {
		return err
	}

	switch d.Type {
	case decision.Type_ScheduleActivityTask:
		rb.metrics.Counter(metrickeys.ActivityTaskScheduled, metrics.Tags{
			metrickeys.ActivityName: d.ScheduleActivity.Activity,
		}, 1)

	case decision.Type_CompleteExecution:
		rb.metrics.Counter(metrickeys.ExecutionFinished, metrics.Tags{metrickeys.WorkflowType: task.Execution.WorkflowType}, 1)
	}

	rb.recordScheduled(task.Execution, events)

	return nil
}
