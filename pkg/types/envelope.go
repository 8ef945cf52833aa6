package types

import "time"

// ActivityEnvelope is the unit that flows from source handlers into the
// splitter and on to the enricher. Envelopes on the raw topic carry no
// pipeline id; the splitter stamps one per matching pipeline.
//
// Resume hints live on the envelope itself so the enricher stays a pure
// function of (envelope, user, pipeline, registry).
type ActivityEnvelope struct {
	Source    ActivitySource `json:"source"`
	UserId    string         `json:"user_id"`
	Timestamp time.Time      `json:"timestamp,omitzero"`

	// ActivityId is stable within one pipeline execution and preserved
	// across resumes.
	ActivityId          string `json:"activity_id,omitempty"`
	PipelineId          string `json:"pipeline_id,omitempty"`
	PipelineExecutionId string `json:"pipeline_execution_id,omitempty"`

	Standardized *StandardizedActivity `json:"standardized_activity,omitempty"`

	// Blob-store pointers for payloads too large to inline.
	OriginalPayloadUri string `json:"original_payload_uri,omitempty"`
	FitFileUri         string `json:"fit_file_uri,omitempty"`
	ActivityDataUri    string `json:"activity_data_uri,omitempty"`

	// Resume mode flags.
	IsResume             bool     `json:"is_resume,omitempty"`
	ResumePendingInputId string   `json:"resume_pending_input_id,omitempty"`
	ResumeOnlyEnrichers  []string `json:"resume_only_enrichers,omitempty"`
	UseUpdateMethod      bool     `json:"use_update_method,omitempty"`
	// DoNotRetry forces providers to settle for their best partial result:
	// no lag retries, no fresh pauses. Set by the auto-resume sweep.
	DoNotRetry bool `json:"do_not_retry,omitempty"`
}

// EnrichedActivity is the envelope published by the enricher and consumed by
// the router and uploaders.
type EnrichedActivity struct {
	UserId              string         `json:"user_id"`
	Source              ActivitySource `json:"source"`
	ActivityId          string         `json:"activity_id"`
	PipelineId          string         `json:"pipeline_id,omitempty"`
	PipelineExecutionId string         `json:"pipeline_execution_id,omitempty"`

	ActivityData *StandardizedActivity `json:"activity_data,omitempty"`
	ActivityType ActivityType          `json:"activity_type,omitempty"`
	Name         string                `json:"name,omitempty"`
	Description  string                `json:"description,omitempty"`
	Tags         []string              `json:"tags,omitempty"`
	StartTime    time.Time             `json:"start_time,omitzero"`

	AppliedEnrichments []string          `json:"applied_enrichments,omitempty"`
	EnrichmentMetadata map[string]string `json:"enrichment_metadata,omitempty"`

	Destinations []Destination `json:"destinations,omitempty"`

	FitFileUri      string `json:"fit_file_uri,omitempty"`
	ActivityDataUri string `json:"activity_data_uri,omitempty"`

	// UseUpdateMethod tells uploaders to prefer an UPDATE of the activity
	// they already created over a fresh CREATE (resume flow).
	UseUpdateMethod bool `json:"use_update_method,omitempty"`
}
