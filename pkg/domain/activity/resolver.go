package activity

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"

	shared "github.com/pulsesync/server/pkg"
	"github.com/pulsesync/server/pkg/types"
)

// MaxInlineEventBytes is the ceiling for events carried inline on the bus.
// Larger events are offloaded to blob storage and referenced by URI.
const MaxInlineEventBytes = 5 << 20

var gcsURIPattern = regexp.MustCompile(`^gs://([^/]+)/(.+)$`)

// ParseGCSURI extracts bucket and object from a gs:// URI.
func ParseGCSURI(uri string) (bucket, object string, ok bool) {
	matches := gcsURIPattern.FindStringSubmatch(uri)
	if len(matches) != 3 {
		return "", "", false
	}
	return matches[1], matches[2], true
}

// ResolveEnrichedEvent populates ActivityData from blob storage when the event
// was offloaded. The stored blob is the full enriched event, so downstream
// stages see exactly what the enricher produced. Modifies the event in place.
func ResolveEnrichedEvent(ctx context.Context, event *types.EnrichedActivity, store shared.BlobStore) error {
	if event.ActivityDataUri == "" || event.ActivityData != nil {
		return nil
	}

	bucket, object, ok := ParseGCSURI(event.ActivityDataUri)
	if !ok {
		return fmt.Errorf("invalid activity_data_uri: %s", event.ActivityDataUri)
	}

	data, err := store.Read(ctx, bucket, object)
	if err != nil {
		return fmt.Errorf("failed to fetch enriched event from storage: %w", err)
	}

	var full types.EnrichedActivity
	if err := json.Unmarshal(data, &full); err != nil {
		return fmt.Errorf("failed to unmarshal enriched event: %w", err)
	}

	event.ActivityData = full.ActivityData
	return nil
}

// OffloadEnrichedEvent writes the full event to blob storage and strips the
// inline payload, leaving a URI reference. Returns the blob URI.
func OffloadEnrichedEvent(ctx context.Context, event *types.EnrichedActivity, store shared.BlobStore, bucket string) (string, error) {
	raw, err := json.Marshal(event)
	if err != nil {
		return "", fmt.Errorf("failed to marshal enriched event: %w", err)
	}

	object := fmt.Sprintf("enriched/%s/%s.json", event.UserId, event.PipelineExecutionId)
	if err := store.Write(ctx, bucket, object, raw); err != nil {
		return "", fmt.Errorf("failed to write enriched event blob: %w", err)
	}

	uri := fmt.Sprintf("gs://%s/%s", bucket, object)
	event.ActivityData = nil
	event.ActivityDataUri = uri
	return uri, nil
}

// ResolveEnvelope populates Standardized from blob storage when the raw
// payload was offloaded at ingest. Modifies the envelope in place.
func ResolveEnvelope(ctx context.Context, env *types.ActivityEnvelope, store shared.BlobStore) error {
	if env.OriginalPayloadUri == "" || env.Standardized != nil {
		return nil
	}

	bucket, object, ok := ParseGCSURI(env.OriginalPayloadUri)
	if !ok {
		return fmt.Errorf("invalid original_payload_uri: %s", env.OriginalPayloadUri)
	}

	data, err := store.Read(ctx, bucket, object)
	if err != nil {
		return fmt.Errorf("failed to fetch envelope payload from storage: %w", err)
	}

	var full types.ActivityEnvelope
	if err := json.Unmarshal(data, &full); err != nil {
		return fmt.Errorf("failed to unmarshal envelope payload: %w", err)
	}

	env.Standardized = full.Standardized
	return nil
}
