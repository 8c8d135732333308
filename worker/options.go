package worker

import (
	"time"

	"github.com/cschleiden/go-mediaflow/core"
)

type DecisionWorkerOptions struct {
	// DecisionPollers is the number of pollers to start. Defaults to 1.
	DecisionPollers int

	// DecisionHeartbeatInterval is the interval between heartbeat attempts on decision tasks.
	// Defaults to 25 seconds
	DecisionHeartbeatInterval time.Duration

	// DecisionPollingInterval is the interval between polling for new decision tasks.
	// Note that if you use a backend that can wait for tasks to be available (e.g. redis) this
	// field has no effect. Defaults to 200ms.
	DecisionPollingInterval time.Duration

	// DecisionPollTimeout bounds a single poll. Defaults to 30 seconds
	DecisionPollTimeout time.Duration
}

type ActivityWorkerOptions struct {
	// ActivityQueue is the queue activity tasks are claimed from. Defaults to a queue named like the
	// activity.
	ActivityQueue core.Queue

	// ActivityPollers is the number of pollers to start. Defaults to 1. A worker only ever has
	// a single task in flight, additional pollers only shorten the time to claim it.
	ActivityPollers int

	// ActivityHeartbeatInterval is the interval between heartbeat attempts for activity tasks.
	// Keep it well below the backend's activity lock timeout. Defaults to 25 seconds
	ActivityHeartbeatInterval time.Duration

	// ActivityPollingInterval is the interval between polling for new activity tasks.
	// Defaults to 200ms.
	ActivityPollingInterval time.Duration

	// ActivityPollTimeout bounds a single poll. Defaults to 30 seconds
	ActivityPollTimeout time.Duration
}

type Options struct {
	DecisionWorkerOptions

	ActivityWorkerOptions
}

var DefaultDecisionWorkerOptions = DecisionWorkerOptions{
	DecisionPollers:           1,
	DecisionHeartbeatInterval: 25 * time.Second,
	DecisionPollingInterval:   200 * time.Millisecond,
	DecisionPollTimeout:       30 * time.Second,
}

var DefaultActivityWorkerOptions = ActivityWorkerOptions{
	ActivityPollers:           1,
	ActivityHeartbeatInterval: 25 * time.Second,
	ActivityPollingInterval:   200 * time.Millisecond,
	ActivityPollTimeout:       30 * time.Second,
}

var DefaultOptions = Options{
	DecisionWorkerOptions: DefaultDecisionWorkerOptions,
	ActivityWorkerOptions: DefaultActivityWorkerOptions,
}
