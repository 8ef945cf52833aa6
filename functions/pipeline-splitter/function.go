// Package pipelinesplitter fans a raw activity envelope out to one message
// per matching pipeline. It is the single place where the tier gate and the
// bounceback check run, so everything downstream can assume the envelope is
// allowed to proceed.
package pipelinesplitter

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/GoogleCloudPlatform/functions-framework-go/functions"
	"github.com/cloudevents/sdk-go/v2/event"

	shared "github.com/pulsesync/server/pkg"
	"github.com/pulsesync/server/pkg/bootstrap"
	"github.com/pulsesync/server/pkg/domain/tier"
	"github.com/pulsesync/server/pkg/framework"
	"github.com/pulsesync/server/pkg/loopprevention"
	"github.com/pulsesync/server/pkg/types"
)

var (
	svc     *bootstrap.Service
	svcOnce sync.Once
	svcErr  error
)

func init() {
	functions.CloudEvent("SplitByPipeline", SplitByPipeline)
}

func initService(ctx context.Context) (*bootstrap.Service, error) {
	if svc != nil {
		return svc, nil
	}
	svcOnce.Do(func() {
		svc, svcErr = bootstrap.NewService(ctx)
	})
	return svc, svcErr
}

// SplitByPipeline is the entry point
func SplitByPipeline(ctx context.Context, e event.Event) error {
	svc, err := initService(ctx)
	if err != nil {
		return fmt.Errorf("service init failed: %w", err)
	}
	return framework.WrapCloudEvent("pipeline-splitter", svc, splitHandler)(ctx, e)
}

func splitHandler(ctx context.Context, e event.Event, fwCtx *framework.FrameworkContext) (interface{}, error) {
	var msg types.PubSubMessage
	if err := e.DataAs(&msg); err != nil {
		return nil, fmt.Errorf("event.DataAs: %v", err)
	}

	var env types.ActivityEnvelope
	if err := json.Unmarshal(msg.Message.Data, &env); err != nil {
		return nil, fmt.Errorf("unmarshal envelope: %w", err)
	}
	if env.UserId == "" {
		return nil, fmt.Errorf("missing user_id in envelope")
	}

	logger := fwCtx.Logger

	// Targeted repost or resume: pipeline already chosen, pass through.
	if env.PipelineId != "" {
		logger.Info("Pipeline already set, passing through", "pipeline_id", env.PipelineId)
		if _, err := fwCtx.Service.Pub.Publish(ctx, shared.TopicActivityEnrichment, msg.Message.Data); err != nil {
			return nil, fmt.Errorf("pass-through publish: %w", err)
		}
		return map[string]interface{}{
			"status":      "PASS_THROUGH",
			"pipeline_id": env.PipelineId,
		}, nil
	}

	// Bounceback check: is this our own upload echoing back as a webhook?
	// Store errors fail open; a rare duplicate beats a dropped activity.
	if env.Standardized != nil && env.Standardized.ExternalId != "" {
		bounce, err := loopprevention.IsBounceback(ctx, fwCtx.Service.DB, env.UserId, env.Source, env.Standardized.ExternalId)
		if err != nil {
			logger.Warn("Bounceback check failed, continuing", "error", err)
		} else if bounce {
			logger.Info("Bounceback detected, dropping echoed activity",
				"source", env.Source,
				"external_id", env.Standardized.ExternalId,
			)
			return map[string]interface{}{
				"status": string(types.StatusSkipped),
				"reason": "bounceback_detected",
			}, nil
		}
	}

	user, err := fwCtx.Service.DB.GetUser(ctx, env.UserId)
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	if user == nil {
		return nil, fmt.Errorf("user %s not found", env.UserId)
	}

	pipelines := matchingPipelines(user.Pipelines, env.Source)
	if len(pipelines) == 0 {
		logger.Info("No pipelines configured for source", "source", env.Source)
		return map[string]interface{}{
			"status": string(types.StatusSkipped),
			"reason": "no_pipeline_for_source",
			"source": string(env.Source),
		}, nil
	}

	// Tier gate. Counters from a previous month reset lazily before the check
	// so a stale count never blocks a sync.
	now := time.Now()
	if tier.ShouldResetSyncCounts(user, now) {
		if err := fwCtx.Service.DB.ResetSyncCounts(ctx, user.Id, tier.CurrentMonth(now)); err != nil {
			logger.Warn("Failed to reset monthly sync counts", "error", err)
		} else {
			user.SyncCountThisMonth = 0
			user.PreventedSyncCountThisMonth = 0
			user.SyncCountMonth = tier.CurrentMonth(now)
		}
	}

	if allowed, reason := tier.CanSync(user); !allowed {
		logger.Warn("Sync blocked by tier limit", "reason", reason)
		if err := fwCtx.Service.DB.IncrementPreventedSyncCount(ctx, user.Id); err != nil {
			logger.Warn("Failed to increment prevented sync count", "error", err)
		}
		// The user still sees why nothing arrived: one FAILED run per
		// pipeline that would have fired.
		for _, p := range pipelines {
			run := newRun(&env, p, runExecutionID(&env, msg, fwCtx, p.Id))
			run.Status = types.PipelineRunFailed
			run.Error = reason
			if _, err := fwCtx.Service.DB.CreatePipelineRunIfAbsent(ctx, run); err != nil {
				logger.Warn("Failed to create tier-blocked pipeline run", "error", err, "pipeline_id", p.Id)
			}
		}
		return map[string]interface{}{
			"status": string(types.StatusSkipped),
			"reason": "tier_limit_reached",
			"detail": reason,
		}, nil
	}

	// Fan out: one envelope per pipeline, each with its own execution id and
	// a PENDING run so the user sees the work the moment it is queued.
	published := 0
	runsCreated := 0
	for _, p := range pipelines {
		execID := runExecutionID(&env, msg, fwCtx, p.Id)

		run := newRun(&env, p, execID)
		created, err := fwCtx.Service.DB.CreatePipelineRunIfAbsent(ctx, run)
		if err != nil {
			logger.Error("Failed to create pipeline run", "error", err, "pipeline_id", p.Id)
			continue
		}
		if !created {
			logger.Info("Pipeline run already exists, skipping duplicate fan-out", "pipeline_execution_id", execID)
			continue
		}
		runsCreated++

		fanned := env
		fanned.PipelineId = p.Id
		fanned.PipelineExecutionId = execID

		data, err := json.Marshal(&fanned)
		if err != nil {
			logger.Error("Failed to marshal fanned envelope", "error", err, "pipeline_id", p.Id)
			continue
		}
		if _, err := fwCtx.Service.Pub.Publish(ctx, shared.TopicActivityEnrichment, data); err != nil {
			logger.Error("Failed to publish pipeline message", "error", err, "pipeline_id", p.Id)
			continue
		}
		published++
		logger.Info("Published pipeline message", "pipeline_id", p.Id, "pipeline_execution_id", execID)
	}

	return map[string]interface{}{
		"status":          "FAN_OUT",
		"pipelines_found": len(pipelines),
		"runs_created":    runsCreated,
		"published":       published,
		"source":          string(env.Source),
	}, nil
}

// matchingPipelines returns the enabled pipelines listening on the source.
func matchingPipelines(pipelines []*types.PipelineConfig, source types.ActivitySource) []*types.PipelineConfig {
	var out []*types.PipelineConfig
	for _, p := range pipelines {
		if !p.Enabled {
			continue
		}
		if p.Source == source {
			out = append(out, p)
		}
	}
	return out
}

// runExecutionID derives the per-pipeline execution id. The raw message id is
// the base so Pub/Sub redelivery regenerates the same ids and the
// create-if-absent run write deduplicates the whole fan-out.
func runExecutionID(env *types.ActivityEnvelope, msg types.PubSubMessage, fwCtx *framework.FrameworkContext, pipelineID string) string {
	base := env.PipelineExecutionId
	if base == "" {
		base = msg.Message.MessageID
	}
	if base == "" {
		base = fwCtx.ExecutionID
	}
	return base + "-" + pipelineID
}

func newRun(env *types.ActivityEnvelope, p *types.PipelineConfig, execID string) *types.PipelineRun {
	outcomes := make([]*types.DestinationOutcome, 0, len(p.Destinations))
	for _, d := range p.Destinations {
		outcomes = append(outcomes, &types.DestinationOutcome{
			Destination: d,
			Status:      types.DestinationStatusPending,
		})
	}

	name := ""
	if env.Standardized != nil {
		name = env.Standardized.Name
	}

	now := time.Now().UTC()
	return &types.PipelineRun{
		Id:           execID,
		UserId:       env.UserId,
		PipelineId:   p.Id,
		Status:       types.PipelineRunPending,
		Source:       env.Source,
		ActivityId:   env.ActivityId,
		ActivityName: name,
		Destinations: outcomes,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}
