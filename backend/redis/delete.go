package redis

import (
	"context"
	"fmt"
	"strconv"

	"github.com/redis/go-redis/v9"

	"github.com/cschleiden/go-mediaflow/backend"
)

// Remove a batch of executions finished before the given time, together with their history.
//
// KEYS[1] - executions-finished key
// ARGV[1] - cutoff timestamp in unix milliseconds, exclusive
// ARGV[2] - batch size
// ARGV[3] - redis key prefix
//
// Note: this does not work with Redis Cluster since not all keys are passed into the script.
var removeExecutionsCmd = redis.NewScript(`
	local ids = redis.call("ZRANGE", KEYS[1], "-inf", "(" .. ARGV[1], "BYSCORE", "LIMIT", 0, tonumber(ARGV[2]))
	for i = 1, #ids do
		redis.call("DEL", ARGV[3] .. "execution:" .. ids[i], ARGV[3] .. "history:" .. ids[i])
		redis.call("ZREM", KEYS[1], ids[i])
	end

	return #ids
`)

func (rb *redisBackend) RemoveExecutions(ctx context.Context, options ...backend.RemovalOption) error {
	ro := backend.ApplyRemovalOptions(rb.now(), options...)
	cutoff := strconv.FormatInt(ro.FinishedBefore.UnixMilli(), 10)

	for {
		n, err := removeExecutionsCmd.Run(ctx, rb.rdb, []string{
			rb.keys.executionsFinishedKey(),
		}, cutoff, ro.BatchSize, rb.keys.prefix).Int()
		if err != nil {
			return fmt.Errorf("removing executions: %w", err)
		}

		if n < ro.BatchSize {
			return nil
		}
	}
}
