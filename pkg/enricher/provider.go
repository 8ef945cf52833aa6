package enricher

import (
	"context"
	"log/slog"

	"github.com/pulsesync/server/pkg/types"
)

// EnrichmentResult is one provider's contribution to the activity. Fields are
// contributions, not cumulative values; the engine owns composition.
type EnrichmentResult struct {
	// Metadata overrides (if empty, the original is kept)
	ActivityType types.ActivityType
	Description  string

	// SectionHeader identifies this description as a replaceable section.
	// When set, the description replaces any prior block starting with the
	// same header instead of appending; uploaders in UPDATE mode apply the
	// same rule against the remote description.
	// Example: "🔥 Calories:"
	SectionHeader string

	Name       string
	NameSuffix string // appended to the final name (e.g. " #5")
	Tags       []string

	// Raw data streams, merged sample-by-sample into the first lap.
	HeartRateStream    []int
	PowerStream        []int
	PositionLatStream  []float64
	PositionLongStream []float64

	// Metadata is merged into envelope metadata, last writer wins.
	Metadata map[string]string

	// HaltPipeline signals the engine to stop processing this pipeline.
	// Not a failure: the activity is intentionally dropped (e.g. filtered out).
	HaltPipeline bool
	HaltReason   string
}

// Provider is one step of an enrichment chain.
type Provider interface {
	// Name returns the unique identifier for the provider (e.g. "calories-burned").
	Name() string

	// ProviderType returns the stable enum for pipeline configs to reference.
	ProviderType() types.EnricherProviderType

	// Enrich applies the provider's logic to the activity.
	// inputs carries the pipeline step config plus engine-injected keys
	// (pipeline_id, pipeline_execution_id).
	// doNotRetry tells the provider to return partial data or halt instead of
	// a RetryableError; it is set on the final lag attempt and on auto-resume.
	Enrich(ctx context.Context, logger *slog.Logger, activity *types.StandardizedActivity, user *types.UserRecord, inputs map[string]string, doNotRetry bool) (*EnrichmentResult, error)
}

// DeferrableProvider is an optional interface for providers that want to run
// after every other enricher has completed (e.g. AI providers that summarize
// the accumulated description). The engine defers their execution but keeps
// their pipeline position for description ordering, and passes the accumulated
// description under the "enriched_description" input key.
type DeferrableProvider interface {
	Provider
	ShouldDefer() bool
}
