package log

const (
	NamespaceKey = "mediaflow"

	ExecutionIDKey   = NamespaceKey + ".execution.id"
	WorkflowTypeKey  = NamespaceKey + ".workflow.type"
	ActivityNameKey  = NamespaceKey + ".activity.name"
	QueueKey         = NamespaceKey + ".queue"
	AssetKey         = NamespaceKey + ".asset"
	AssetClassKey    = NamespaceKey + ".asset_class"
	CatalogKeyKey    = NamespaceKey + ".catalog_key"
	ReasonKey        = NamespaceKey + ".reason"
	DecisionTypeKey  = NamespaceKey + ".decision.type"
	NextActivityKey  = NamespaceKey + ".decision.next_activity"
	EventTypeKey     = NamespaceKey + ".event.type"
	EventIDKey       = NamespaceKey + ".event.id"
	SequenceIDKey    = NamespaceKey + ".event.sequence_id"
	TaskTokenKey     = NamespaceKey + ".task.token"
	HistoryLengthKey = NamespaceKey + ".task.history_length"

	DurationKey = NamespaceKey + ".duration_ms"
)
