package tracing

const (
	ExecutionID  = "mediaflow.execution.id"
	WorkflowType = "mediaflow.workflow.type"

	DecisionType   = "mediaflow.decision.type"
	HistoryLength  = "mediaflow.decision.history_length"
	NextActivity   = "mediaflow.decision.next_activity"
	ActivityName   = "mediaflow.activity.name"
	ActivityReason = "mediaflow.activity.reason"

	ScheduleEventID = "mediaflow.schedule_event_id"
)
