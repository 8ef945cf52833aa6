package destination

import (
	"context"
	"log/slog"
	"time"

	"github.com/pulsesync/server/pkg/types"
)

// Database interface subset needed for destination updates.
// This matches the shared Database interface in interfaces.go.
type Database interface {
	MutatePipelineRun(ctx context.Context, userId string, id string, mutate func(run *types.PipelineRun) map[string]interface{}) error
}

// UpdateStatus updates a single destination's status in the PipelineRun.
// The mutation runs inside the store's transaction, so each uploader touches
// only its own outcome against the latest document and parallel uploaders for
// the same run never overwrite each other; the overall status is recomputed
// from the full set. Failures here are logged, never propagated: run
// bookkeeping must not fail an upload that already happened.
func UpdateStatus(ctx context.Context, db Database, userId string, pipelineRunId string, dest types.Destination, status types.DestinationStatus, externalId string, errMsg string, logger *slog.Logger) {
	if pipelineRunId == "" {
		return // nothing to update
	}

	found := false
	err := db.MutatePipelineRun(ctx, userId, pipelineRunId, func(run *types.PipelineRun) map[string]interface{} {
		found = false
		for i, outcome := range run.Destinations {
			if outcome.Destination == dest {
				run.Destinations[i].Status = status
				run.Destinations[i].CompletedAt = time.Now().UTC()
				if externalId != "" {
					run.Destinations[i].ExternalId = externalId
				}
				if errMsg != "" {
					run.Destinations[i].Error = errMsg
				}
				found = true
				break
			}
		}
		if !found {
			return nil
		}
		return map[string]interface{}{
			"destinations": run.Destinations,
			"status":       string(ComputePipelineRunStatus(run.Destinations)),
			"updated_at":   time.Now().UTC(),
		}
	})
	if err != nil {
		logger.Error("Failed to update pipeline run destination", "error", err, "pipeline_run_id", pipelineRunId, "destination", dest)
		return
	}
	if !found {
		logger.Warn("Destination not found in pipeline run", "destination", dest, "pipeline_run_id", pipelineRunId)
		return
	}
	logger.Debug("Updated pipeline run destination", "pipeline_run_id", pipelineRunId, "destination", dest, "status", status)
}

// ComputePipelineRunStatus determines overall status from destination outcomes.
func ComputePipelineRunStatus(destinations []*types.DestinationOutcome) types.PipelineRunStatus {
	if len(destinations) == 0 {
		return types.PipelineRunRunning
	}

	anySuccess := false
	anyFailed := false
	allComplete := true
	allSkipped := true

	for _, d := range destinations {
		switch d.Status {
		case types.DestinationStatusPending:
			allComplete = false
			allSkipped = false
		case types.DestinationStatusFailed:
			anyFailed = true
			allSkipped = false
		case types.DestinationStatusSuccess:
			anySuccess = true
			allSkipped = false
		case types.DestinationStatusSkipped:
			// skipped doesn't count as failure
		}
	}

	switch {
	case !allComplete:
		return types.PipelineRunRunning
	case allSkipped:
		return types.PipelineRunSkipped
	case anyFailed && anySuccess:
		return types.PipelineRunPartial
	case anyFailed:
		return types.PipelineRunFailed
	default:
		return types.PipelineRunSuccess
	}
}
