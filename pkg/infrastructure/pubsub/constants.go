package pubsub

// CloudEvent type and source URNs for events this system emits.
const (
	EventTypeActivityRaw      = "com.pulsesync.activity.raw"
	EventTypeActivityPipeline = "com.pulsesync.activity.pipeline"
	EventTypeActivityEnriched = "com.pulsesync.activity.enriched"
	EventTypeActivityRouted   = "com.pulsesync.activity.routed"

	EventSourceSplitter   = "//pulsesync/pipeline-splitter"
	EventSourceEnricher   = "//pulsesync/enricher"
	EventSourceRouter     = "//pulsesync/router"
	EventSourceAutoResume = "//pulsesync/auto-resume"
)
