package redis

import (
	"github.com/cschleiden/go-mediaflow/core"
)

type keys struct {
	// prefix is prepended to every key
	prefix string
}

func newKeys(prefix string) *keys {
	if prefix != "" && prefix[len(prefix)-1] != ':' {
		prefix += ":"
	}

	return &keys{prefix: prefix}
}

// executionKey returns the key holding the serialized state of an execution
func (k *keys) executionKey(executionID string) string {
	return k.prefix + "execution:" + executionID
}

// historyKey returns the key of the LIST holding the history events of an execution
func (k *keys) historyKey(executionID string) string {
	return k.prefix + "history:" + executionID
}

// decisionQueueKey returns the key of the ZSET holding executions with a pending decision. The
// score is the time in unix milliseconds from which the task can be claimed.
func (k *keys) decisionQueueKey(workflowType string) string {
	return k.prefix + "decisions:" + workflowType
}

// activityQueueKey returns the key of the ZSET holding the activity tasks of a queue. Scored like
// decision queues.
func (k *keys) activityQueueKey(queue core.Queue) string {
	return k.prefix + "activities:" + string(queue)
}

func (k *keys) activityKey(taskID string) string {
	return k.prefix + "activity:" + taskID
}

// consumedTokenKey returns the tombstone key of a retired token. Tombstones expire after the
// token retention.
func (k *keys) consumedTokenKey(token core.TaskToken) string {
	return k.prefix + "consumed-token:" + string(token)
}

// executionsActiveKey returns the key of the SET of unfinished executions
func (k *keys) executionsActiveKey() string {
	return k.prefix + "executions-active"
}

// executionsFinishedKey returns the key of the ZSET of finished executions scored by completion
// time.
func (k *keys) executionsFinishedKey() string {
	return k.prefix + "executions-finished"
}

// workflowTypesKey returns the key of the SET of workflow types that ever had a decision queued.
func (k *keys) workflowTypesKey() string {
	return k.prefix + "workflow-types"
}

// queuesKey returns the key of the SET of queues that ever had an activity scheduled.
func (k *keys) queuesKey() string {
	return k.prefix + "queues"
}
