package backend

import "github.com/cschleiden/go-mediaflow/core"

type Stats struct {
	ActiveExecutions int64

	// PendingDecisionTasks are the number of executions waiting for a decision
	PendingDecisionTasks int64

	// PendingActivities are the number of activities per queue that are currently waiting to be
	// processed by a worker, including claimed ones.
	PendingActivities map[core.Queue]int64
}
