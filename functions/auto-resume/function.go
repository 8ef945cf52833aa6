// Package autoresume is the scheduled sweep over paused pipeline executions.
// A pending input whose auto-deadline has passed is claimed (WAITING to
// AUTO_POPULATED) and its original envelope republished with configured
// defaults, or with nothing at all, so a run never waits forever on input the
// user was always allowed to skip.
package autoresume

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
	"github.com/pulsesync/server/pkg/framework"
	"github.com/pulsesync/server/pkg/pending_input"
	"github.com/pulsesync/server/pkg/types"
)

var (
	svc     *bootstrap.Service
	svcOnce sync.Once
	svcErr  error
)

func init() {
	functions.CloudEvent("AutoResume", AutoResume)
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

// AutoResume is the entry point, triggered by Cloud Scheduler.
func AutoResume(ctx context.Context, e event.Event) error {
	svc, err := initService(ctx)
	if err != nil {
		return fmt.Errorf("service init failed: %v", err)
	}
	return framework.WrapCloudEvent("auto-resume", svc, sweepHandler)(ctx, e)
}

func sweepHandler(ctx context.Context, e event.Event, fwCtx *framework.FrameworkContext) (interface{}, error) {
	logger := fwCtx.Logger

	waiting, err := fwCtx.Service.DB.ListWaitingPendingInputs(ctx)
	if err != nil {
		return nil, fmt.Errorf("list waiting pending inputs: %w", err)
	}

	now := time.Now()
	resumed := 0
	skipped := 0
	failures := 0

	for _, input := range waiting {
		if !pending_input.IsAutoResumeDue(input, now) {
			skipped++
			continue
		}

		claimed, err := pending_input.ClaimForAutoResume(ctx, fwCtx.Service.DB, input)
		if err != nil {
			failures++
			logger.Error("Failed to claim pending input for auto-resume", "error", err, "pending_input_id", input.Id)
			continue
		}
		if !claimed {
			// Resolved or dismissed between list and claim; nothing to do.
			skipped++
			continue
		}

		if err := republish(ctx, fwCtx, input); err != nil {
			failures++
			logger.Error("Failed to republish envelope for auto-resume", "error", err, "pending_input_id", input.Id)
			continue
		}

		resumed++
		logger.Info("Auto-resumed paused execution",
			"pending_input_id", input.Id,
			"user_id", input.UserId,
			"pipeline_execution_id", input.PipelineExecutionId,
		)
	}

	return map[string]interface{}{
		"status":   "SUCCESS",
		"scanned":  len(waiting),
		"resumed":  resumed,
		"skipped":  skipped,
		"failures": failures,
	}, nil
}

// republish rebuilds the stored envelope in resume mode and sends it back
// through the enrichment topic. The pipeline id is already set, so the
// splitter's pass-through path applies and no new fan-out happens.
func republish(ctx context.Context, fwCtx *framework.FrameworkContext, input *types.PendingInput) error {
	if input.OriginalEnvelopeJson == "" {
		return fmt.Errorf("pending input %s has no stored envelope", input.Id)
	}

	var env types.ActivityEnvelope
	if err := json.Unmarshal([]byte(input.OriginalEnvelopeJson), &env); err != nil {
		return fmt.Errorf("unmarshal stored envelope: %w", err)
	}

	env.IsResume = true
	env.ResumePendingInputId = input.Id
	env.ResumeOnlyEnrichers = []string{string(input.EnricherProvider)}
	// The paused run may already have created activities downstream on an
	// earlier partial pass, so uploaders must prefer UPDATE.
	env.UseUpdateMethod = true
	// The user had their chance; the provider must fill a default or skip
	// rather than pause the run a second time.
	env.DoNotRetry = true

	data, err := json.Marshal(&env)
	if err != nil {
		return fmt.Errorf("marshal resume envelope: %w", err)
	}

	if _, err := fwCtx.Service.Pub.Publish(ctx, shared.TopicActivityEnrichment, data); err != nil {
		return fmt.Errorf("publish resume envelope: %w", err)
	}
	return nil
}
