// Package enricher is the pipeline worker. It consumes one envelope per
// pipeline execution from the enrichment topic, runs the pipeline's provider
// chain, and publishes the enriched event for routing.
package enricher

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/GoogleCloudPlatform/functions-framework-go/functions"
	"github.com/cloudevents/sdk-go/v2/event"

	shared "github.com/pulsesync/server/pkg"
	"github.com/pulsesync/server/pkg/bootstrap"
	"github.com/pulsesync/server/pkg/domain/activity"
	"github.com/pulsesync/server/pkg/enricher"
	"github.com/pulsesync/server/pkg/enricher/providers/ai_companion"
	"github.com/pulsesync/server/pkg/enricher/providers/auto_increment"
	"github.com/pulsesync/server/pkg/enricher/providers/branding"
	"github.com/pulsesync/server/pkg/enricher/providers/calories_burned"
	"github.com/pulsesync/server/pkg/enricher/providers/logic_gate"
	"github.com/pulsesync/server/pkg/enricher/providers/mock"
	"github.com/pulsesync/server/pkg/enricher/providers/user_input"
	"github.com/pulsesync/server/pkg/enricher/providers/workout_summary"
	"github.com/pulsesync/server/pkg/framework"
	"github.com/pulsesync/server/pkg/types"
)

const (
	// MaxLagAttempts bounds how often a lagged envelope bounces through the
	// lag queue before the chain runs in force mode.
	MaxLagAttempts = 5
	// MaxLagAge is the absolute ceiling: a message older than this runs in
	// force mode no matter how it got here.
	MaxLagAge = 15 * time.Minute
)

var (
	svc     *bootstrap.Service
	svcOnce sync.Once
	svcErr  error
)

func init() {
	functions.CloudEvent("EnrichActivity", EnrichActivity)
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

// EnrichActivity is the entry point
func EnrichActivity(ctx context.Context, e event.Event) error {
	svc, err := initService(ctx)
	if err != nil {
		return fmt.Errorf("service init failed: %v", err)
	}
	return framework.WrapCloudEvent("enricher", svc, enrichHandler)(ctx, e)
}

// buildRegistry wires every provider with the stores it needs. Registration
// is explicit so a glance at this function shows the full provider set.
func buildRegistry(svc *bootstrap.Service) *enricher.Registry {
	registry := enricher.NewRegistry()
	registry.Register(mock.New())
	registry.Register(logic_gate.New())
	registry.Register(calories_burned.New())
	registry.Register(user_input.New(svc.DB))
	registry.Register(auto_increment.New(svc.DB))
	registry.Register(branding.New())
	registry.Register(ai_companion.New(svc.Config.GeminiAPIKey))
	registry.Register(workout_summary.New())
	return registry
}

func enrichHandler(ctx context.Context, e event.Event, fwCtx *framework.FrameworkContext) (interface{}, error) {
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
	if env.PipelineId == "" {
		return nil, fmt.Errorf("missing pipeline_id in envelope; raw envelopes belong on the splitter topic")
	}

	logger := fwCtx.Logger
	logger.Info("Starting enrichment",
		"source", env.Source,
		"pipeline_id", env.PipelineId,
		"is_resume", env.IsResume,
	)

	// Pull an offloaded payload back inline before the chain runs.
	if err := activity.ResolveEnvelope(ctx, &env, fwCtx.Service.Store); err != nil {
		logger.Warn("Failed to resolve offloaded payload", "error", err)
	}

	bucketName := fwCtx.Service.Config.GCSArtifactBucket
	if bucketName == "" {
		bucketName = "pulsesync-artifacts"
	}

	engine := enricher.NewEngine(fwCtx.Service.DB, fwCtx.Service.Store, bucketName, buildRegistry(fwCtx.Service), fwCtx.Service.Notify)

	doNotRetry := env.DoNotRetry || lagExhausted(e, msg, fwCtx)

	markRunRunning(ctx, fwCtx, &env)

	result, err := engine.Process(ctx, logger, &env, doNotRetry)
	if err != nil {
		var retryable *enricher.RetryableError
		if errors.As(err, &retryable) {
			return handleLag(ctx, fwCtx, &env, msg, retryable)
		}

		updateRun(ctx, fwCtx, &env, map[string]interface{}{
			"status": string(types.PipelineRunFailed),
			"error":  err.Error(),
		})
		return nil, err
	}

	switch result.Status {
	case types.StatusSkipped:
		logger.Info("Pipeline skipped", "reason", result.SkipReason)
		updateRun(ctx, fwCtx, &env, map[string]interface{}{
			"status":      string(types.PipelineRunSkipped),
			"skip_reason": result.SkipReason,
		})
		return map[string]interface{}{
			"status":              string(types.StatusSkipped),
			"reason":              result.SkipReason,
			"provider_executions": result.ProviderExecutions,
		}, nil

	case types.StatusWaiting:
		logger.Info("Pipeline awaiting user input", "pending_input_id", result.PendingInputId)
		updateRun(ctx, fwCtx, &env, map[string]interface{}{
			"status":           string(types.PipelineRunAwaitingInput),
			"pending_input_id": result.PendingInputId,
		})
		return map[string]interface{}{
			"status":              string(types.StatusWaiting),
			"pending_input_id":    result.PendingInputId,
			"provider_executions": result.ProviderExecutions,
		}, nil
	}

	enriched := result.Event

	payload, err := json.Marshal(enriched)
	if err != nil {
		return nil, fmt.Errorf("marshal enriched event: %w", err)
	}

	// Oversized events move to the blob store; the router and uploaders fetch
	// them back through activity_data_uri.
	if len(payload) > activity.MaxInlineEventBytes {
		uri, err := activity.OffloadEnrichedEvent(ctx, enriched, fwCtx.Service.Store, bucketName)
		if err != nil {
			return nil, fmt.Errorf("offload enriched event: %w", err)
		}
		logger.Info("Offloaded oversized enriched event", "uri", uri, "inline_bytes", len(payload))
		payload, err = json.Marshal(enriched)
		if err != nil {
			return nil, fmt.Errorf("marshal offloaded event: %w", err)
		}
	}

	msgID, err := fwCtx.Service.Pub.Publish(ctx, shared.TopicEnrichedActivity, payload)
	if err != nil {
		return nil, fmt.Errorf("publish enriched event: %w", err)
	}

	updateRun(ctx, fwCtx, &env, map[string]interface{}{
		"status":        string(types.PipelineRunRunning),
		"activity_id":   enriched.ActivityId,
		"activity_name": enriched.Name,
	})

	logger.Info("Enrichment complete",
		"activity_id", enriched.ActivityId,
		"destinations", enriched.Destinations,
		"applied_enrichments", enriched.AppliedEnrichments,
		"message_id", msgID,
	)

	return map[string]interface{}{
		"status":              "SUCCESS",
		"activity_id":         enriched.ActivityId,
		"pipeline_id":         enriched.PipelineId,
		"activity_name":       enriched.Name,
		"activity_type":       string(enriched.ActivityType),
		"destinations":        enriched.Destinations,
		"applied_enrichments": enriched.AppliedEnrichments,
		"fit_file_uri":        enriched.FitFileUri,
		"pubsub_message_id":   msgID,
		"provider_executions": result.ProviderExecutions,
	}, nil
}

// handleLag moves a retryably-failed envelope onto the lag topic. Once there,
// further failures NACK so the lag subscription's backoff paces the retries.
func handleLag(ctx context.Context, fwCtx *framework.FrameworkContext, env *types.ActivityEnvelope, msg types.PubSubMessage, retryable *enricher.RetryableError) (interface{}, error) {
	logger := fwCtx.Logger

	if msg.Message.Attributes["origin"] == "lag-queue" {
		logger.Warn("Lag retry failed, leaving on lag queue for backoff", "error", retryable)
		return map[string]interface{}{
			"status": string(types.StatusLaggedRetry),
			"reason": retryable.Reason,
		}, retryable
	}

	attempt := 1
	if prev, err := strconv.Atoi(msg.Message.Attributes["lag_attempt"]); err == nil {
		attempt = prev + 1
	}

	attrs := map[string]string{
		"origin":      "lag-queue",
		"lag_attempt": strconv.Itoa(attempt),
		"retry_after": retryable.RetryAfter.String(),
	}
	if _, err := fwCtx.Service.Pub.PublishWithAttrs(ctx, shared.TopicEnrichmentLag, msg.Message.Data, attrs); err != nil {
		logger.Error("Failed to publish to lag topic", "error", err)
		// Keep the original message so this offload attempt itself retries.
		return nil, err
	}

	logger.Info("Offloaded lagging activity to lag queue",
		"reason", retryable.Reason,
		"retry_after", retryable.RetryAfter,
		"attempt", attempt,
	)

	// The original message is ACKed; the lag copy carries the work forward.
	return map[string]interface{}{
		"status":  string(types.StatusLaggedRetry),
		"reason":  retryable.Reason,
		"attempt": attempt,
	}, nil
}

/// lagExhausted decides whether the chain runs in force mode: providers get
// doNotRetry=true and must produce their best partial result instead of
// lagging again.
func lagExhausted(e event.Event, msg types.PubSubMessage, fwCtx *framework.FrameworkContext) bool {
	if attempt, err := strconv.Atoi(msg.Message.Attributes["lag_attempt"]); err == nil && attempt >= MaxLagAttempts {
		fwCtx.Logger.Warn("Lag attempts exhausted, forcing partial enrichment", "attempts", attempt)
		return true
	}
	if !e.Time().IsZero() {
		if age := time.Since(e.Time()); age > MaxLagAge {
			fwCtx.Logger.Warn("Activity lag exhausted, forcing partial enrichment", "age", age)
			return true
		}
	}
	return false
}

// markRunRunning flips the PENDING run the splitter created to RUNNING.
func markRunRunning(ctx context.Context, fwCtx *framework.FrameworkContext, env *types.ActivityEnvelope) {
	updateRun(ctx, fwCtx, env, map[string]interface{}{
		"status": string(types.PipelineRunRunning),
	})
}

// updateRun is best-effort bookkeeping; a failed status write never fails the
// enrichment itself.
func updateRun(ctx context.Context, fwCtx *framework.FrameworkContext, env *types.ActivityEnvelope, data map[string]interface{}) {
	if env.PipelineExecutionId == "" {
		return
	}
	data["updated_at"] = time.Now().UTC()
	if err := fwCtx.Service.DB.UpdatePipelineRun(ctx, env.UserId, env.PipelineExecutionId, data); err != nil {
		fwCtx.Logger.Warn("Failed to update pipeline run", "error", err, "pipeline_execution_id", env.PipelineExecutionId)
	}
}
