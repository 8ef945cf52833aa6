// Package loopprevention provides source-level loop detection for activity
// pipelines.
//
// When activities are uploaded to destinations (Strava, Hevy, etc.), those
// platforms send webhooks back which appear as new activities. This package
// prevents infinite loops by:
// 1. Recording every upload in a per-user ledger
// 2. Checking whether an incoming webhook activity is a "bounceback" from one
// of our own uploads
package loopprevention

import (
	"context"
	"fmt"
	"time"

	"github.com/pulsesync/server/pkg/types"
)

// SourceToDestinationMap maps sources to their destination counterparts.
// Sources without destinations (e.g. FILE_UPLOAD) are not included.
var SourceToDestinationMap = map[types.ActivitySource]types.Destination{
	types.SourceHevy:   types.DestinationHevy,
	types.SourceStrava: types.DestinationStrava,
	types.SourceMock:   types.DestinationMock,
}

// GetCorrespondingDestination returns the destination that corresponds to the
// given source, or the zero value when the source is source-only.
func GetCorrespondingDestination(source types.ActivitySource) types.Destination {
	if dest, ok := SourceToDestinationMap[source]; ok {
		return dest
	}
	return types.DestinationUnspecified
}

// UploadedActivityStore defines the interface for persisting ledger records.
type UploadedActivityStore interface {
	SetUploadedActivity(ctx context.Context, userId string, record *types.UploadedActivityRecord) error
	GetUploadedActivity(ctx context.Context, userId string, destination types.Destination, destinationId string) (*types.UploadedActivityRecord, error)
}

// IsBounceback checks whether an incoming activity is the echo of our own
// upload. True when the source has a destination counterpart and the ledger
// holds a row for that destination with the incoming external id.
//
// A store error is returned alongside false; callers fail open and keep
// processing, since dropping a real activity is worse than a rare duplicate.
func IsBounceback(
	ctx context.Context,
	store UploadedActivityStore,
	userId string,
	source types.ActivitySource,
	externalId string,
) (bool, error) {
	correspondingDest := GetCorrespondingDestination(source)
	if correspondingDest == types.DestinationUnspecified {
		return false, nil
	}

	record, err := store.GetUploadedActivity(ctx, userId, correspondingDest, externalId)
	if err != nil {
		return false, fmt.Errorf("failed to check uploaded activity: %w", err)
	}
	if record == nil {
		return false, nil
	}

	return record.Destination == correspondingDest, nil
}

// RecordUpload writes a ledger row for a completed upload. Must be called
// before the uploader reports success so a crash cannot leave an upload
// unledgered.
func RecordUpload(
	ctx context.Context,
	store UploadedActivityStore,
	userId string,
	source types.ActivitySource,
	sourceId string,
	destination types.Destination,
	destinationId string,
	pipelineId string,
) error {
	if destinationId == "" {
		return fmt.Errorf("destination id required for ledger record")
	}
	record := &types.UploadedActivityRecord{
		Id:            types.UploadedActivityID(destination, destinationId),
		UserId:        userId,
		Source:        source,
		SourceId:      sourceId,
		Destination:   destination,
		DestinationId: destinationId,
		PipelineId:    pipelineId,
		UploadedAt:    time.Now().UTC(),
	}
	if err := store.SetUploadedActivity(ctx, userId, record); err != nil {
		return fmt.Errorf("failed to record upload: %w", err)
	}
	return nil
}
