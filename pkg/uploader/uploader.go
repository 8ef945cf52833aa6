// Package uploader is the shared engine behind every destination uploader
// function. It resolves the enriched payload, decides between creating a new
// activity and updating the one a previous run already created, writes the
// loop-prevention ledger, and keeps the PipelineRun's per-destination status
// current.
package uploader

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	shared "github.com/pulsesync/server/pkg"
	"github.com/pulsesync/server/pkg/destination"
	"github.com/pulsesync/server/pkg/domain/activity"
	"github.com/pulsesync/server/pkg/domain/tier"
	"github.com/pulsesync/server/pkg/loopprevention"
	"github.com/pulsesync/server/pkg/types"
)

// Uploader drives one destination adapter through the standard upload flow.
type Uploader struct {
	db    shared.Database
	store shared.BlobStore
	dest  destination.Destination
	// destType is the enum the adapter answers for in pipeline configs and
	// ledger rows.
	destType types.Destination
}

func New(db shared.Database, store shared.BlobStore, dest destination.Destination, destType types.Destination) *Uploader {
	return &Uploader{
		db:       db,
		store:    store,
		dest:     dest,
		destType: destType,
	}
}

// Process performs one upload. The returned map is the handler output recorded
// on the execution log. A returned error NACKs the message for redelivery, so
// Process only returns errors for failures a retry could fix; configuration
// problems mark the destination FAILED and return an error so the run surfaces
// them, which is fine because the retried upload fails the same checks fast.
func (u *Uploader) Process(ctx context.Context, logger *slog.Logger, event *types.EnrichedActivity, pipelineExecutionID string) (map[string]interface{}, error) {
	// Inline events pass through untouched; offloaded ones are fetched back
	// from the blob store.
	if err := activity.ResolveEnrichedEvent(ctx, event, u.store); err != nil {
		u.fail(ctx, logger, event, pipelineExecutionID, fmt.Sprintf("failed to resolve activity data: %s", err))
		return nil, fmt.Errorf("resolve activity data: %w", err)
	}

	logger.Info("Starting upload",
		"destination", u.dest.Name(),
		"activity_id", event.ActivityId,
		"pipeline_id", event.PipelineId,
		"use_update_method", event.UseUpdateMethod,
	)

	user, err := u.db.GetUser(ctx, event.UserId)
	if err != nil {
		u.fail(ctx, logger, event, pipelineExecutionID, fmt.Sprintf("failed to get user: %s", err))
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	if user == nil {
		u.fail(ctx, logger, event, pipelineExecutionID, "user not found")
		return nil, fmt.Errorf("user %s not found", event.UserId)
	}

	priorID := u.priorExternalID(ctx, logger, event)

	mode := "CREATE"
	var externalID string

	if priorID != "" && (event.UseUpdateMethod || u.alreadySynced(ctx, event.UserId, priorID)) {
		mode = "UPDATE"
		prior, err := u.db.GetUploadedActivity(ctx, event.UserId, u.destType, priorID)
		if err != nil || prior == nil {
			// The run knows the external id even when the ledger row is gone.
			prior = &types.UploadedActivityRecord{
				UserId:        event.UserId,
				Destination:   u.destType,
				DestinationId: priorID,
			}
		}
		if err := u.dest.Update(ctx, event, user, prior); err != nil {
			u.fail(ctx, logger, event, pipelineExecutionID, fmt.Sprintf("update failed: %s", err))
			return nil, fmt.Errorf("%s update: %w", u.dest.Name(), err)
		}
		externalID = priorID
	} else {
		externalID, err = u.dest.Create(ctx, event, user)
		if err != nil {
			u.fail(ctx, logger, event, pipelineExecutionID, fmt.Sprintf("create failed: %s", err))
			return nil, fmt.Errorf("%s create: %w", u.dest.Name(), err)
		}
	}

	// Ledger first, success report second. A crash between the two causes a
	// redundant retry, never an unledgered upload that could echo back as a
	// fresh activity.
	if externalID != "" {
		sourceID := ""
		if event.ActivityData != nil {
			sourceID = event.ActivityData.ExternalId
		}
		if err := loopprevention.RecordUpload(ctx, u.db, event.UserId, event.Source, sourceID, u.destType, externalID, event.PipelineId); err != nil {
			logger.Warn("Failed to record upload in ledger", "error", err, "external_id", externalID)
		}
	}

	u.countSync(ctx, logger, user)

	destination.UpdateStatus(ctx, u.db, event.UserId, pipelineExecutionID, u.destType, types.DestinationStatusSuccess, externalID, "", logger)

	logger.Info("Upload complete",
		"destination", u.dest.Name(),
		"external_id", externalID,
		"mode", mode,
	)

	return map[string]interface{}{
		"status":        "SUCCESS",
		"destination":   u.dest.Name(),
		"external_id":   externalID,
		"mode":          mode,
		"activity_id":   event.ActivityId,
		"pipeline_id":   event.PipelineId,
		"activity_name": event.Name,
		"activity_type": string(event.ActivityType),
	}, nil
}

// priorExternalID looks up whether an earlier run already created this
// activity at the destination.
func (u *Uploader) priorExternalID(ctx context.Context, logger *slog.Logger, event *types.EnrichedActivity) string {
	run, err := u.db.GetPipelineRunByActivityId(ctx, event.UserId, event.ActivityId)
	if err != nil {
		logger.Debug("No prior pipeline run found", "activity_id", event.ActivityId, "error", err)
		return ""
	}
	if run == nil {
		return ""
	}
	for _, outcome := range run.Destinations {
		if outcome.Destination == u.destType && outcome.ExternalId != "" {
			return outcome.ExternalId
		}
	}
	return ""
}

// alreadySynced reports whether the ledger holds a row for the prior upload.
// A positive hit forces UPDATE mode even without the resume flag, so a
// redelivered message cannot create a duplicate on the vendor side.
func (u *Uploader) alreadySynced(ctx context.Context, userID, externalID string) bool {
	record, err := u.db.GetUploadedActivity(ctx, userID, u.destType, externalID)
	return err == nil && record != nil
}

// countSync increments the monthly usage counter, lazily resetting stale
// counters from a previous month first.
func (u *Uploader) countSync(ctx context.Context, logger *slog.Logger, user *types.UserRecord) {
	now := time.Now()
	if tier.ShouldResetSyncCounts(user, now) {
		if err := u.db.ResetSyncCounts(ctx, user.Id, tier.CurrentMonth(now)); err != nil {
			logger.Warn("Failed to reset monthly sync counts", "error", err, "user_id", user.Id)
		}
	}
	if err := u.db.IncrementSyncCount(ctx, user.Id); err != nil {
		logger.Warn("Failed to increment sync count", "error", err, "user_id", user.Id)
	}
}

func (u *Uploader) fail(ctx context.Context, logger *slog.Logger, event *types.EnrichedActivity, pipelineExecutionID, errMsg string) {
	destination.UpdateStatus(ctx, u.db, event.UserId, pipelineExecutionID, u.destType, types.DestinationStatusFailed, "", errMsg, logger)
}
