package metrickeys

const (
	Prefix = "mediaflow."

	// Executions
	ExecutionCreated  = Prefix + "execution.created"
	ExecutionFinished = Prefix + "execution.finished"

	DecisionTaskScheduled = Prefix + "decision.task.scheduled"
	DecisionTaskProcessed = Prefix + "decision.task.processed"
	DecisionTaskDelay     = Prefix + "decision.task.time_in_queue"
	DecisionTaskDuration  = Prefix + "decision.task.duration"
	DecisionRoutingError  = Prefix + "decision.routing_error"

	// Activities
	ActivityTaskScheduled = Prefix + "activity.task.scheduled"
	ActivityTaskProcessed = Prefix + "activity.task.processed"
	ActivityTaskDelay     = Prefix + "activity.task.time_in_queue"
	ActivityTaskDuration  = Prefix + "activity.task.duration"

	// Leases
	TaskLeaseExpired = Prefix + "task.lease_expired"
)

// Tag names
const (
	// Backend being used
	Backend = "backend"

	WorkflowType = "workflow_type"
	ActivityName = "activity"
	DecisionType = "decision"

	// Outcome of an activity, "completed" or "failed"
	Outcome = "outcome"
	Reason  = "reason"
)
