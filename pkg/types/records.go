package types

import (
	"strings"
	"time"
)

// ExecutionRecord is the append-style audit row every stage invocation writes.
// Records are keyed by execution id and scoped to a user when one is known;
// records without a user land in an orphaned collection for later adoption.
type ExecutionRecord struct {
	Id                  string          `json:"id" firestore:"id"`
	Service             string          `json:"service" firestore:"service"`
	UserId              string          `json:"user_id,omitempty" firestore:"user_id,omitempty"`
	Status              ExecutionStatus `json:"status" firestore:"status"`
	PipelineExecutionId string          `json:"pipeline_execution_id,omitempty" firestore:"pipeline_execution_id,omitempty"`
	ParentExecutionId   string          `json:"parent_execution_id,omitempty" firestore:"parent_execution_id,omitempty"`
	TestRunId           string          `json:"test_run_id,omitempty" firestore:"test_run_id,omitempty"`
	TriggerType         string          `json:"trigger_type,omitempty" firestore:"trigger_type,omitempty"`

	InputsJson   string `json:"inputs_json,omitempty" firestore:"inputs_json,omitempty"`
	OutputsJson  string `json:"outputs_json,omitempty" firestore:"outputs_json,omitempty"`
	ErrorMessage string `json:"error_message,omitempty" firestore:"error_message,omitempty"`

	StartTime time.Time `json:"start_time,omitzero" firestore:"start_time,omitempty"`
	EndTime   time.Time `json:"end_time,omitzero" firestore:"end_time,omitempty"`
}

// RequestedField describes one value a paused enrichment is waiting for.
type RequestedField struct {
	Key         string `json:"key" firestore:"key"`
	Label       string `json:"label,omitempty" firestore:"label,omitempty"`
	FieldType   string `json:"field_type,omitempty" firestore:"field_type,omitempty"`
	Placeholder string `json:"placeholder,omitempty" firestore:"placeholder,omitempty"`
	Required    bool   `json:"required,omitempty" firestore:"required,omitempty"`
}

// PendingInput parks a pipeline execution until the user supplies values.
// The document id is deterministic ({source}:{external_id}:{enricher}) so a
// redelivered pause upserts instead of stacking duplicates.
type PendingInput struct {
	Id     string             `json:"id" firestore:"id"`
	UserId string             `json:"user_id" firestore:"user_id"`
	Status PendingInputStatus `json:"status" firestore:"status"`

	Source           ActivitySource       `json:"source" firestore:"source"`
	ExternalId       string               `json:"external_id" firestore:"external_id"`
	EnricherProvider EnricherProviderType `json:"enricher_provider" firestore:"enricher_provider"`

	ActivityName    string           `json:"activity_name,omitempty" firestore:"activity_name,omitempty"`
	Prompt          string           `json:"prompt,omitempty" firestore:"prompt,omitempty"`
	RequestedFields []RequestedField `json:"requested_fields,omitempty" firestore:"requested_fields,omitempty"`

	// LinkedActivityId joins back to the activity and its PipelineRun.
	LinkedActivityId    string `json:"linked_activity_id,omitempty" firestore:"linked_activity_id,omitempty"`
	PipelineExecutionId string `json:"pipeline_execution_id,omitempty" firestore:"pipeline_execution_id,omitempty"`

	// OriginalEnvelopeJson is the serialized ActivityEnvelope to resume with.
	OriginalEnvelopeJson string `json:"original_envelope_json,omitempty" firestore:"original_envelope_json,omitempty"`

	// ProvidedValues is filled when the input is resolved or auto-populated.
	ProvidedValues map[string]string `json:"provided_values,omitempty" firestore:"provided_values,omitempty"`
	// Defaults are applied by the auto-resume sweep once AutoDeadline passes.
	Defaults     map[string]string `json:"defaults,omitempty" firestore:"defaults,omitempty"`
	AutoDeadline time.Time         `json:"auto_deadline,omitzero" firestore:"auto_deadline,omitempty"`

	CreatedAt  time.Time `json:"created_at,omitzero" firestore:"created_at,omitempty"`
	ResolvedAt time.Time `json:"resolved_at,omitzero" firestore:"resolved_at,omitempty"`
}

// UploadedActivityID is the ledger document id: "{destination}:{destination_id}"
// lowercased, so lookups are exact regardless of vendor casing.
func UploadedActivityID(destination Destination, destinationID string) string {
	return strings.ToLower(string(destination) + ":" + destinationID)
}

// UploadedActivityRecord is one row of the loop-prevention ledger. The
// document id is "{destination}:{destination_id}" lowercased.
type UploadedActivityRecord struct {
	Id            string         `json:"id" firestore:"id"`
	UserId        string         `json:"user_id" firestore:"user_id"`
	Source        ActivitySource `json:"source" firestore:"source"`
	SourceId      string         `json:"source_id,omitempty" firestore:"source_id,omitempty"`
	Destination   Destination    `json:"destination" firestore:"destination"`
	DestinationId string         `json:"destination_id" firestore:"destination_id"`
	PipelineId    string         `json:"pipeline_id,omitempty" firestore:"pipeline_id,omitempty"`
	UploadedAt    time.Time      `json:"uploaded_at,omitzero" firestore:"uploaded_at,omitempty"`
}

// HevyIntegration holds the user's Hevy API credential.
type HevyIntegration struct {
	Enabled bool   `json:"enabled,omitempty" firestore:"enabled,omitempty"`
	ApiKey  string `json:"api_key,omitempty" firestore:"api_key,omitempty"`
}

// StravaIntegration holds the user's Strava OAuth tokens.
type StravaIntegration struct {
	Enabled      bool      `json:"enabled,omitempty" firestore:"enabled,omitempty"`
	AccessToken  string    `json:"access_token,omitempty" firestore:"access_token,omitempty"`
	RefreshToken string    `json:"refresh_token,omitempty" firestore:"refresh_token,omitempty"`
	ExpiresAt    time.Time `json:"expires_at,omitzero" firestore:"expires_at,omitempty"`
	AthleteId    int64     `json:"athlete_id,omitempty" firestore:"athlete_id,omitempty"`
	LastUsedAt   time.Time `json:"last_used_at,omitzero" firestore:"last_used_at,omitempty"`
}

// Integrations groups per-vendor credentials on the user record.
type Integrations struct {
	Hevy   *HevyIntegration   `json:"hevy,omitempty" firestore:"hevy,omitempty"`
	Strava *StravaIntegration `json:"strava,omitempty" firestore:"strava,omitempty"`
}

// UserRecord is the root user document.
type UserRecord struct {
	Id           string        `json:"id" firestore:"id"`
	Email        string        `json:"email,omitempty" firestore:"email,omitempty"`
	Tier         UserTier      `json:"tier,omitempty" firestore:"tier,omitempty"`
	IsAdmin      bool          `json:"is_admin,omitempty" firestore:"is_admin,omitempty"`
	TrialEndsAt  time.Time     `json:"trial_ends_at,omitzero" firestore:"trial_ends_at,omitempty"`
	Integrations *Integrations `json:"integrations,omitempty" firestore:"integrations,omitempty"`
	Pipelines    []*PipelineConfig `json:"pipelines,omitempty" firestore:"pipelines,omitempty"`

	FcmTokens []string `json:"fcm_tokens,omitempty" firestore:"fcm_tokens,omitempty"`
	WeightKg  float64  `json:"weight_kg,omitempty" firestore:"weight_kg,omitempty"`

	// Monthly usage counters for the tier gate. SyncCountMonth is "2026-08";
	// a mismatch with the current month means the counters reset lazily.
	SyncCountThisMonth          int64  `json:"sync_count_this_month,omitempty" firestore:"sync_count_this_month,omitempty"`
	PreventedSyncCountThisMonth int64  `json:"prevented_sync_count_this_month,omitempty" firestore:"prevented_sync_count_this_month,omitempty"`
	SyncCountMonth              string `json:"sync_count_month,omitempty" firestore:"sync_count_month,omitempty"`

	CreatedAt time.Time `json:"created_at,omitzero" firestore:"created_at,omitempty"`
}

// Counter is a named per-user monotonic counter (auto_increment provider).
type Counter struct {
	Id    string `json:"id" firestore:"id"`
	Value int64  `json:"value" firestore:"value"`
}
