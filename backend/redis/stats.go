package redis

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/cschleiden/go-mediaflow/backend"
	"github.com/cschleiden/go-mediaflow/core"
)

func (rb *redisBackend) GetStats(ctx context.Context) (*backend.Stats, error) {
	s := &backend.Stats{
		PendingActivities: make(map[core.Queue]int64),
	}

	active, err := rb.rdb.SCard(ctx, rb.keys.executionsActiveKey()).Result()
	if err != nil {
		return nil, fmt.Errorf("counting active executions: %w", err)
	}

	s.ActiveExecutions = active

	workflowTypes, err := rb.rdb.SMembers(ctx, rb.keys.workflowTypesKey()).Result()
	if err != nil {
		return nil, fmt.Errorf("reading workflow types: %w", err)
	}

	queues, err := rb.rdb.SMembers(ctx, rb.keys.queuesKey()).Result()
	if err != nil {
		return nil, fmt.Errorf("reading queues: %w", err)
	}

	p := rb.rdb.Pipeline()

	decisionCmds := make([]*redis.IntCmd, 0, len(workflowTypes))
	for _, workflowType := range workflowTypes {
		decisionCmds = append(decisionCmds, p.ZCard(ctx, rb.keys.decisionQueueKey(workflowType)))
	}

	activityCmds := make(map[core.Queue]*redis.IntCmd, len(queues))
	for _, queue := range queues {
		activityCmds[core.Queue(queue)] = p.ZCard(ctx, rb.keys.activityQueueKey(core.Queue(queue)))
	}

	if _, err := p.Exec(ctx); err != nil {
		return nil, fmt.Errorf("counting pending tasks: %w", err)
	}

	for _, cmd := range decisionCmds {
		s.PendingDecisionTasks += cmd.Val()
	}

	for queue, cmd := range activityCmds {
		if n := cmd.Val(); n > 0 {
			s.PendingActivities[queue] = n
		}
	}

	return s, nil
}
