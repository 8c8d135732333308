package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/cschleiden/go-mediaflow/backend"
	"github.com/cschleiden/go-mediaflow/backend/history"
	"github.com/cschleiden/go-mediaflow/backend/metrics"
	"github.com/cschleiden/go-mediaflow/core"
	"github.com/cschleiden/go-mediaflow/internal/metrickeys"
	"github.com/cschleiden/go-mediaflow/log"
)

type activityState struct {
	// ID identifies the task in its queue
	ID string `json:"id,omitempty"`

	Execution *core.Execution `json:"execution,omitempty"`
	Queue     core.Queue      `json:"queue,omitempty"`

	// Event is the ActivityScheduled event
	Event *history.Event `json:"event,omitempty"`

	Token       core.TaskToken `json:"token,omitempty"`
	LockedUntil time.Time      `json:"locked_until,omitempty"`
}

func readActivity(ctx context.Context, c redis.Cmdable, key string) (*activityState, error) {
	val, err := c.Get(ctx, key).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}

		return nil, fmt.Errorf("reading activity task: %w", err)
	}

	var a activityState
	if err := json.Unmarshal([]byte(val), &a); err != nil {
		return nil, fmt.Errorf("unmarshaling activity task: %w", err)
	}

	return &a, nil
}

func (rb *redisBackend) writeActivityP(ctx context.Context, p redis.Pipeliner, a *activityState) error {
	data, err := json.Marshal(a)
	if err != nil {
		return fmt.Errorf("marshaling activity task: %w", err)
	}

	p.Set(ctx, rb.keys.activityKey(a.ID), string(data), 0)

	return nil
}

func (rb *redisBackend) GetActivityTask(ctx context.Context, queues []core.Queue) (*backend.ActivityTask, error) {
	now := rb.now()

	for _, queue := range queues {
		queueKey := rb.keys.activityQueueKey(queue)

		for {
			ids, err := rb.rdb.ZRangeByScore(ctx, queueKey, &redis.ZRangeBy{
				Min:   "-inf",
				Max:   strconv.FormatInt(now.UnixMilli(), 10),
				Count: 1,
			}).Result()
			if err != nil {
				return nil, fmt.Errorf("finding activity task: %w", err)
			}

			if len(ids) == 0 {
				break
			}

			task, claimed, err := rb.claimActivity(ctx, queueKey, ids[0], now)
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

func (rb *redisBackend) claimActivity(ctx context.Context, queueKey, id string, now time.Time) (*backend.ActivityTask, bool, error) {
	key := rb.keys.activityKey(id)

	var (
		task     *backend.ActivityTask
		oldToken core.TaskToken
	)

	err := rb.watch(ctx, func(tx *redis.Tx) error {
		task = nil

		sc, err := tx.ZScore(ctx, queueKey, id).Result()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				return nil
			}

			return fmt.Errorf("reading activity task: %w", err)
		}

		if sc > score(now) {
			return nil
		}

		a, err := readActivity(ctx, tx, key)
		if err != nil {
			return err
		}

		if a == nil {
			_, err := tx.TxPipelined(ctx, func(p redis.Pipeliner) error {
				p.ZRem(ctx, queueKey, id)
				return nil
			})

			return err
		}

		oldToken = a.Token

		a.Token = core.NewTaskToken()
		a.LockedUntil = now.Add(rb.options.ActivityLockTimeout)

		if _, err := tx.TxPipelined(ctx, func(p redis.Pipeliner) error {
			if err := rb.writeActivityP(ctx, p, a); err != nil {
				return err
			}

			p.ZAddXX(ctx, queueKey, redis.Z{Score: score(a.LockedUntil), Member: id})

			return nil
		}); err != nil {
			return err
		}

		task = &backend.ActivityTask{
			Token:       a.Token,
			Execution:   a.Execution,
			Queue:       a.Queue,
			Event:       a.Event,
			LockedUntil: a.LockedUntil,
			CustomData:  a.ID,
		}

		return nil
	}, key)
	if err != nil {
		return nil, false, fmt.Errorf("claiming activity task: %w", err)
	}

	if task != nil && oldToken != "" {
		rb.logger.WarnContext(ctx, "activity task lease expired, handing out again",
			log.ExecutionIDKey, task.Execution.ID,
			log.QueueKey, string(task.Queue),
			log.TaskTokenKey, oldToken.String(),
		)
		rb.metrics.Counter(metrickeys.TaskLeaseExpired, metrics.Tags{}, 1)
	}

	return task, task != nil, nil
}

// activityHolder returns the claimed activity the token retires.
func (rb *redisBackend) activityHolder(ctx context.Context, tx *redis.Tx, task *backend.ActivityTask) (*activityState, error) {
	id, ok := task.CustomData.(string)
	if !ok || task.Token == "" {
		return nil, rb.tokenError(ctx, tx, task.Token)
	}

	a, err := readActivity(ctx, tx, rb.keys.activityKey(id))
	if err != nil {
		return nil, err
	}

	if a == nil || a.Token != task.Token {
		return nil, rb.tokenError(ctx, tx, task.Token)
	}

	return a, nil
}

func (rb *redisBackend) ExtendActivityTask(ctx context.Context, task *backend.ActivityTask) error {
	id, _ := task.CustomData.(string)
	key := rb.keys.activityKey(id)

	var lockedUntil time.Time
	err := rb.watch(ctx, func(tx *redis.Tx) error {
		a, err := rb.activityHolder(ctx, tx, task)
		if err != nil {
			return err
		}

		a.LockedUntil = rb.now().Add(rb.options.ActivityLockTimeout)
		lockedUntil = a.LockedUntil

		_, err = tx.TxPipelined(ctx, func(p redis.Pipeliner) error {
			if err := rb.writeActivityP(ctx, p, a); err != nil {
				return err
			}

			p.ZAddXX(ctx, rb.keys.activityQueueKey(a.Queue), redis.Z{Score: score(a.LockedUntil), Member: a.ID})

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

func (rb *redisBackend) CompleteActivityTask(ctx context.Context, task *backend.ActivityTask, result *history.Event) error {
	id, _ := task.CustomData.(string)
	key := rb.keys.activityKey(id)

	var (
		execution *core.Execution
		events    []*history.Event
		dropped   bool
	)

	err := rb.watch(ctx, func(tx *redis.Tx) error {
		events, dropped = nil, false

		a, err := rb.activityHolder(ctx, tx, task)
		if err != nil {
			return err
		}

		if err := backend.ValidateActivityResult(task, result); err != nil {
			return fmt.Errorf("completing activity task: %w", err)
		}

		execution = a.Execution
		executionKey := rb.keys.executionKey(a.Execution.ID)
		if err := tx.Watch(ctx, executionKey).Err(); err != nil {
			return fmt.Errorf("watching execution: %w", err)
		}

		state, err := readExecution(ctx, tx, executionKey)
		if err != nil && !errors.Is(err, backend.ErrExecutionNotFound) {
			return err
		}

		var wasPending bool
		if state == nil || state.CompletedAt != nil {
			dropped = true
		} else {
			wasPending = state.DecisionPending
			events = rb.appendEvents(state, result)
		}

		_, err = tx.TxPipelined(ctx, func(p redis.Pipeliner) error {
			p.Del(ctx, key)
			p.ZRem(ctx, rb.keys.activityQueueKey(a.Queue), a.ID)
			rb.consumeTokenP(ctx, p, task.Token)

			if dropped {
				return nil
			}

			return rb.storeP(ctx, p, state, wasPending, events)
		})

		return err
	}, key)
	if err != nil {
		return err
	}

	if dropped {
		rb.logger.WarnContext(ctx, "dropping activity result for inactive execution", log.ExecutionIDKey, execution.ID)
		return nil
	}

	rb.recordScheduled(execution, events)

	return nil
}
