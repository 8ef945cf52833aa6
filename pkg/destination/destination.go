// Package destination defines the standard interface all activity destinations must implement.
package destination

import (
	"context"

	"github.com/pulsesync/server/pkg/types"
)

// Destination is the vendor adapter behind an uploader. Each destination
// supports both Create (new activity) and Update (modify existing).
type Destination interface {
	// Create uploads a new activity to the destination.
	// Returns the destination-specific activity ID (e.g. the Strava activity ID).
	Create(ctx context.Context, payload *types.EnrichedActivity, user *types.UserRecord) (string, error)

	// Update modifies an existing activity on the destination. The prior
	// ledger record locates the previously created activity; adapters fetch
	// it, merge the enriched fields in, and write it back so vendor-side
	// edits survive.
	Update(ctx context.Context, payload *types.EnrichedActivity, user *types.UserRecord, prior *types.UploadedActivityRecord) error

	// Name returns the destination identifier (e.g. "strava", "mock").
	Name() string
}
