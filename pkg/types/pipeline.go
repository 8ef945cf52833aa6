package types

import "time"

// EnricherConfig is one step of a pipeline's enrichment chain.
type EnricherConfig struct {
	Provider EnricherProviderType `json:"provider" firestore:"provider"`
	// Config is provider-specific and passed through verbatim.
	Config map[string]string `json:"config,omitempty" firestore:"config,omitempty"`
}

// PipelineConfig is a user-defined source -> enrichers -> destinations route.
// Pipelines are stored per user; the splitter matches on Source. An enabled
// pipeline must name at least one destination.
type PipelineConfig struct {
	Id           string           `json:"id" firestore:"id"`
	Name         string           `json:"name,omitempty" firestore:"name,omitempty"`
	Source       ActivitySource   `json:"source" firestore:"source"`
	Destinations []Destination    `json:"destinations" firestore:"destinations"`
	Enrichers    []EnricherConfig `json:"enrichers,omitempty" firestore:"enrichers,omitempty"`
	Enabled      bool             `json:"enabled" firestore:"enabled"`
	CreatedAt    time.Time        `json:"created_at,omitzero" firestore:"created_at,omitempty"`
}

// DestinationOutcome is the per-destination sub-status inside a PipelineRun.
// Uploaders update only their own outcome so parallel uploads stay commutative.
type DestinationOutcome struct {
	Destination Destination       `json:"destination" firestore:"destination"`
	Status      DestinationStatus `json:"status" firestore:"status"`
	ExternalId  string            `json:"external_id,omitempty" firestore:"external_id,omitempty"`
	Error       string            `json:"error,omitempty" firestore:"error,omitempty"`
	CompletedAt time.Time         `json:"completed_at,omitzero" firestore:"completed_at,omitempty"`
}

// PipelineRun is the user-facing record of one logical pipeline invocation.
// Its document id is the pipeline execution id, which makes splitter redelivery
// a visible create-if-absent rather than a duplicate run.
type PipelineRun struct {
	Id         string            `json:"id" firestore:"id"`
	UserId     string            `json:"user_id" firestore:"user_id"`
	PipelineId string            `json:"pipeline_id" firestore:"pipeline_id"`
	Status     PipelineRunStatus `json:"status" firestore:"status"`

	Source       ActivitySource        `json:"source" firestore:"source"`
	ActivityId   string                `json:"activity_id,omitempty" firestore:"activity_id,omitempty"`
	ActivityName string                `json:"activity_name,omitempty" firestore:"activity_name,omitempty"`
	Destinations []*DestinationOutcome `json:"destinations,omitempty" firestore:"destinations,omitempty"`

	// EnrichedEventUri points at the blob snapshot of the enriched envelope,
	// kept so a finished run can be reposted without re-running enrichment.
	EnrichedEventUri string `json:"enriched_event_uri,omitempty" firestore:"enriched_event_uri,omitempty"`

	// PendingInputId links the run to the input it is paused on.
	PendingInputId string `json:"pending_input_id,omitempty" firestore:"pending_input_id,omitempty"`

	SkipReason string `json:"skip_reason,omitempty" firestore:"skip_reason,omitempty"`
	Error      string `json:"error,omitempty" firestore:"error,omitempty"`

	CreatedAt time.Time `json:"created_at,omitzero" firestore:"created_at,omitempty"`
	UpdatedAt time.Time `json:"updated_at,omitzero" firestore:"updated_at,omitempty"`
}
