package shared

const (
	ProjectID = "pulsesync-project" // fallback when no env var is set

	TopicRawActivity        = "topic-raw-activity"
	TopicActivityEnrichment = "topic-activity-enrichment" // splitter output, enricher input
	TopicEnrichedActivity   = "topic-enriched-activity"
	TopicEnrichmentLag      = "topic-enrichment-lag"

	// Per-destination upload topics. Router publishes to
	// TopicUploadPrefix + lowercase destination name.
	TopicUploadPrefix  = "topic-upload-"
	TopicUploadMock    = "topic-upload-mock"
	TopicUploadHevy    = "topic-upload-hevy"
	TopicUploadStrava  = "topic-upload-strava"

	CollectionUsers              = "users"
	CollectionExecutions         = "executions"
	CollectionOrphanedExecutions = "orphaned_executions"
	CollectionPendingInputs      = "pending_inputs"
	CollectionPipelines          = "pipelines"
	CollectionPipelineRuns       = "pipeline_runs"
	CollectionUploadedActivities = "uploaded_activities"
	CollectionCounters           = "counters"
)
