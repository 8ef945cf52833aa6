// Package pending_input manages paused pipeline executions that wait for
// user-supplied values.
package pending_input

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/pulsesync/server/pkg/types"
)

// GenerateID creates a pending input document ID with the standardized format.
// Format: {source}:{external_id}:{enricher_provider_id}
// The ID is deterministic so a redelivered pause upserts instead of stacking
// duplicates for the same activity and enricher.
func GenerateID(source types.ActivitySource, externalID string, provider types.EnricherProviderType) string {
	return fmt.Sprintf("%s:%s:%s", source, externalID, provider)
}

// ParseID extracts components from a pending input document ID.
func ParseID(id string) (source types.ActivitySource, externalID string, provider types.EnricherProviderType, err error) {
	parts := strings.SplitN(id, ":", 3)
	if len(parts) != 3 || parts[0] == "" || parts[2] == "" {
		return "", "", "", fmt.Errorf("invalid pending input ID format: %s", id)
	}
	return types.ActivitySource(parts[0]), parts[1], types.EnricherProviderType(parts[2]), nil
}

// GetActivityKey returns the activity portion without the enricher suffix.
// Useful for grouping pending inputs by activity.
func GetActivityKey(source types.ActivitySource, externalID string) string {
	return fmt.Sprintf("%s:%s", source, externalID)
}

// Store is the subset of the database the pending-input flow needs.
type Store interface {
	GetPendingInput(ctx context.Context, userID string, id string) (*types.PendingInput, error)
	SetPendingInput(ctx context.Context, input *types.PendingInput) error
	UpdatePendingInput(ctx context.Context, userID string, id string, data map[string]interface{}) error
	ClaimPendingInput(ctx context.Context, userID string, id string, from, to types.PendingInputStatus) (bool, error)
}

// Upsert writes a WAITING pending input, preserving CreatedAt when the same
// pause already exists from an earlier delivery.
func Upsert(ctx context.Context, store Store, input *types.PendingInput) error {
	existing, err := store.GetPendingInput(ctx, input.UserId, input.Id)
	if err != nil {
		return fmt.Errorf("check existing pending input: %w", err)
	}
	if existing != nil && !existing.CreatedAt.IsZero() {
		input.CreatedAt = existing.CreatedAt
	} else if input.CreatedAt.IsZero() {
		input.CreatedAt = time.Now().UTC()
	}
	input.Status = types.PendingInputWaiting
	return store.SetPendingInput(ctx, input)
}

// Resolve stores the provided values and flips the input to RESOLVED.
// The claim is conditional: exactly one of two racing resolvers wins, which
// keeps the resume publish single-shot.
func Resolve(ctx context.Context, store Store, userID, id string, values map[string]string) (bool, error) {
	claimed, err := store.ClaimPendingInput(ctx, userID, id, types.PendingInputWaiting, types.PendingInputResolved)
	if err != nil {
		return false, err
	}
	if !claimed {
		return false, nil
	}
	if err := store.UpdatePendingInput(ctx, userID, id, map[string]interface{}{
		"provided_values": values,
	}); err != nil {
		return true, fmt.Errorf("store provided values: %w", err)
	}
	return true, nil
}

// ClaimForAutoResume flips WAITING to AUTO_POPULATED and copies the stored
// defaults, if any, into provided_values. An input without defaults is still
// claimable: the resumed run carries a do-not-retry signal so the provider
// settles for empty values instead of pausing again. Returns false when the
// input was already resolved, dismissed, or claimed by a concurrent sweep.
func ClaimForAutoResume(ctx context.Context, store Store, input *types.PendingInput) (bool, error) {
	claimed, err := store.ClaimPendingInput(ctx, input.UserId, input.Id, types.PendingInputWaiting, types.PendingInputAutoPopulated)
	if err != nil {
		return false, err
	}
	if !claimed {
		return false, nil
	}
	if len(input.Defaults) == 0 {
		return true, nil
	}
	if err := store.UpdatePendingInput(ctx, input.UserId, input.Id, map[string]interface{}{
		"provided_values": input.Defaults,
	}); err != nil {
		return true, fmt.Errorf("store auto-populated values: %w", err)
	}
	return true, nil
}

// IsAutoResumeDue reports whether the sweep should claim this input. The
// deadline alone decides: a run must not wait forever just because no
// defaults were configured.
func IsAutoResumeDue(input *types.PendingInput, now time.Time) bool {
	return input.Status == types.PendingInputWaiting &&
		!input.AutoDeadline.IsZero() &&
		!now.Before(input.AutoDeadline)
}
