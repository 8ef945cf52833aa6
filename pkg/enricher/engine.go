package enricher

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	shared "github.com/pulsesync/server/pkg"
	"github.com/pulsesync/server/pkg/description"
	"github.com/pulsesync/server/pkg/domain/fitfile"
	"github.com/pulsesync/server/pkg/domain/tier"
	"github.com/pulsesync/server/pkg/pending_input"
	"github.com/pulsesync/server/pkg/types"
)

// Engine executes one pipeline's enricher chain for one envelope. The splitter
// has already fanned the raw activity out per pipeline, so every envelope
// arrives with pipeline_id and pipeline_execution_id set.
type Engine struct {
	database      shared.Database
	storage       shared.BlobStore
	bucketName    string
	registry      *Registry
	notifications shared.NotificationService
}

func NewEngine(db shared.Database, storage shared.BlobStore, bucketName string, registry *Registry, notifications shared.NotificationService) *Engine {
	return &Engine{
		database:      db,
		storage:       storage,
		bucketName:    bucketName,
		registry:      registry,
		notifications: notifications,
	}
}

// ProcessResult carries the outcome of one envelope.
type ProcessResult struct {
	// Event is the enriched activity ready for the router, nil when the
	// pipeline was skipped, parked, or deferred to the lag queue.
	Event              *types.EnrichedActivity
	ProviderExecutions []ProviderExecution
	Status             types.ExecutionStatus

	// SkipReason is set when Status is STATUS_SKIPPED.
	SkipReason string
	// PendingInputId is set when Status is STATUS_WAITING.
	PendingInputId string
	// RetryAfter is set when Status is STATUS_LAGGED_RETRY.
	RetryAfter time.Duration
}

// ProviderExecution tracks a single provider invocation for the audit trail.
type ProviderExecution struct {
	ProviderName string
	ExecutionID  string
	Status       string
	Error        string
	DurationMs   int64
	Metadata     map[string]string
}

type deferredStep struct {
	index    int
	provider Provider
	cfg      types.EnricherConfig
}

// Process runs the envelope's pipeline. The returned error is terminal for the
// envelope except when it is a *RetryableError, which the caller forwards to
// the lag queue.
func (e *Engine) Process(ctx context.Context, logger *slog.Logger, env *types.ActivityEnvelope, doNotRetry bool) (*ProcessResult, error) {
	userRec, err := e.database.GetUser(ctx, env.UserId)
	if err != nil {
		return nil, fmt.Errorf("failed to get user config: %w", err)
	}

	if env.Standardized == nil {
		return nil, fmt.Errorf("standardized activity is nil")
	}
	if len(env.Standardized.Sessions) != 1 {
		logger.Error("Activity does not have exactly one session", "count", len(env.Standardized.Sessions))
		return nil, fmt.Errorf("multiple sessions not supported")
	}
	if env.Standardized.Sessions[0].TotalElapsedTime == 0 {
		logger.Error("Activity session has 0 elapsed time")
		return nil, fmt.Errorf("session total elapsed time is 0")
	}

	// A resume envelope must join the activity its first pass worked on;
	// minting a fresh id here would orphan the run and turn the uploaders'
	// UPDATE into a duplicate CREATE.
	if env.IsResume && env.ActivityId == "" {
		return nil, fmt.Errorf("resume envelope is missing its linked activity_id")
	}
	// Mint the id before the chain runs so a pause stores it and the resume
	// can carry it back.
	if env.ActivityId == "" {
		env.ActivityId = uuid.NewString()
	}

	pipeline, skipReason, err := e.resolvePipeline(ctx, logger, env)
	if err != nil {
		return nil, err
	}
	if pipeline == nil {
		return &ProcessResult{
			Status:     types.StatusSkipped,
			SkipReason: skipReason,
		}, nil
	}

	if env.IsResume {
		logger.Info("Resume mode activated",
			"resume_only_enrichers", env.ResumeOnlyEnrichers,
			"use_update_method", env.UseUpdateMethod,
			"resume_pending_input_id", env.ResumePendingInputId,
			"pipeline_id", env.PipelineId)
	}

	configs := pipeline.Enrichers
	results := make([]*EnrichmentResult, len(configs))
	var execs []ProviderExecution
	var deferred []deferredStep

	// Each envelope mutates its own deep copy; the original stays intact for
	// pending-input re-publication.
	current := env.Standardized.Clone()

	// The original description is the base; provider contributions are
	// sections so a resume replaces its earlier block instead of stacking.
	builder := description.NewBuilder(current.Description)

	for i, cfg := range configs {
		provider, ok := e.registry.ByType(cfg.Provider)
		if !ok {
			logger.Warn("Provider not found for type", "type", cfg.Provider)
			execs = append(execs, ProviderExecution{
				ProviderName: fmt.Sprintf("TYPE:%s", cfg.Provider),
				Status:       "SKIPPED",
				Error:        "provider not registered",
			})
			continue
		}

		// Resume mode runs only the enrichers named on the envelope.
		if env.IsResume && len(env.ResumeOnlyEnrichers) > 0 && !containsProvider(env.ResumeOnlyEnrichers, cfg.Provider) {
			logger.Debug("Skipping enricher in resume mode", "name", provider.Name())
			execs = append(execs, ProviderExecution{
				ProviderName: provider.Name(),
				Status:       "SKIPPED",
				Metadata:     map[string]string{"skip_reason": "not_in_resume_list"},
			})
			continue
		}

		if d, ok := provider.(DeferrableProvider); ok && d.ShouldDefer() {
			deferred = append(deferred, deferredStep{index: i, provider: provider, cfg: cfg})
			continue
		}

		res, pe, err := e.runProvider(ctx, logger, provider, cfg, current, userRec, env, builder, doNotRetry, nil)
		execs = append(execs, pe)
		if err != nil {
			return e.handleProviderError(ctx, logger, env, current, execs, provider, err)
		}
		if res == nil {
			continue
		}
		if res.HaltPipeline {
			logger.Info(fmt.Sprintf("Provider halted pipeline: %v", provider.Name()), "name", provider.Name(), "reason", res.HaltReason)
			return &ProcessResult{
				ProviderExecutions: execs,
				Status:             types.StatusSkipped,
				SkipReason:         res.HaltReason,
			}, nil
		}
		results[i] = res
		e.applyResult(current, builder, res)
	}

	// Deferred providers run once the rest of the chain has settled, with the
	// accumulated description available as input.
	for _, step := range deferred {
		extra := map[string]string{"enriched_description": builder.String()}
		res, pe, err := e.runProvider(ctx, logger, step.provider, step.cfg, current, userRec, env, builder, doNotRetry, extra)
		execs = append(execs, pe)
		if err != nil {
			return e.handleProviderError(ctx, logger, env, current, execs, step.provider, err)
		}
		if res == nil {
			continue
		}
		if res.HaltPipeline {
			logger.Info(fmt.Sprintf("Provider halted pipeline: %v", step.provider.Name()), "name", step.provider.Name(), "reason", res.HaltReason)
			return &ProcessResult{
				ProviderExecutions: execs,
				Status:             types.StatusSkipped,
				SkipReason:         res.HaltReason,
			}, nil
		}
		results[step.index] = res
		e.applyResult(current, builder, res)
	}

	// Branding runs last so it always closes the description. Paying tiers
	// are exempt.
	brandingApplied := false
	if brandingProvider, ok := e.registry.ByType(types.EnricherProviderBranding); ok && tier.GetEffectiveTier(userRec) == tier.TierHobbyist {
		brandingLogger := logger.With("provider", brandingProvider.Name())
		brandingRes, err := brandingProvider.Enrich(ctx, brandingLogger, current, userRec, map[string]string{}, doNotRetry)
		if err != nil {
			logger.Warn("Branding provider failed", "error", err)
		} else if brandingRes != nil && brandingRes.Description != "" {
			builder.Add(brandingRes.SectionHeader, brandingRes.Description)
			brandingApplied = true
		}
	}
	current.Description = builder.String()

	event := &types.EnrichedActivity{
		UserId:              env.UserId,
		Source:              env.Source,
		ActivityId:          env.ActivityId,
		PipelineId:          pipeline.Id,
		PipelineExecutionId: env.PipelineExecutionId,
		ActivityData:        current,
		ActivityType:        current.Type,
		Name:                current.Name,
		Description:         current.Description,
		Tags:                current.Tags,
		StartTime:           current.Sessions[0].StartTime,
		AppliedEnrichments:  []string{},
		EnrichmentMetadata:  make(map[string]string),
		Destinations:        pipeline.Destinations,
		UseUpdateMethod:     env.UseUpdateMethod,
	}

	for i, res := range results {
		if res == nil {
			continue
		}
		cfgName := string(configs[i].Provider)
		event.AppliedEnrichments = append(event.AppliedEnrichments, cfgName)
		for k, v := range res.Metadata {
			event.EnrichmentMetadata[k] = v
		}
		// Section headers travel with the event so uploaders in UPDATE mode
		// can replace their block in the remote description.
		if res.SectionHeader != "" {
			event.EnrichmentMetadata["section_header_"+cfgName] = res.SectionHeader
		}
	}
	if brandingApplied {
		event.AppliedEnrichments = append(event.AppliedEnrichments, string(types.EnricherProviderBranding))
	}

	e.attachFitArtifact(ctx, logger, env.UserId, event, current)

	return &ProcessResult{
		Event:              event,
		ProviderExecutions: execs,
		Status:             types.StatusSuccess,
	}, nil
}

func (e *Engine) runProvider(ctx context.Context, logger *slog.Logger, provider Provider, cfg types.EnricherConfig, activity *types.StandardizedActivity, userRec *types.UserRecord, env *types.ActivityEnvelope, builder *description.Builder, doNotRetry bool, extra map[string]string) (*EnrichmentResult, ProviderExecution, error) {
	startTime := time.Now()
	execID := uuid.NewString()

	pe := ProviderExecution{
		ProviderName: provider.Name(),
		ExecutionID:  execID,
		Status:       "STARTED",
	}

	inputs := make(map[string]string, len(cfg.Config)+2)
	for k, v := range cfg.Config {
		inputs[k] = v
	}
	inputs["pipeline_execution_id"] = env.PipelineExecutionId
	inputs["pipeline_id"] = env.PipelineId
	for k, v := range extra {
		inputs[k] = v
	}

	providerLogger := logger.With("provider", provider.Name())
	res, err := provider.Enrich(ctx, providerLogger, activity, userRec, inputs, doNotRetry)
	pe.DurationMs = time.Since(startTime).Milliseconds()

	if err != nil {
		logger.Error(fmt.Sprintf("Provider failed: %v", provider.Name()), "name", provider.Name(), "error", err, "duration_ms", pe.DurationMs, "execution_id", execID)
		switch typed := err.(type) {
		case *RetryableError:
			pe.Status = "RETRY"
			pe.Error = typed.Reason
			pe.Metadata = map[string]string{
				"retry_after":  typed.RetryAfter.String(),
				"retry_reason": typed.Reason,
			}
		case *WaitForInputError:
			pe.Status = "WAITING"
			pe.Metadata = map[string]string{
				"activity_id": typed.ActivityID,
			}
		default:
			pe.Status = "FAILED"
			pe.Error = err.Error()
		}
		return nil, pe, err
	}

	if res == nil {
		logger.Warn(fmt.Sprintf("Provider returned nil result: %v", provider.Name()), "name", provider.Name())
		pe.Status = "SKIPPED"
		pe.Error = "nil result"
		return nil, pe, nil
	}

	pe.Status = "SUCCESS"
	pe.Metadata = res.Metadata
	logger.Info(fmt.Sprintf("Provider completed: %v", provider.Name()), "name", provider.Name(), "duration_ms", pe.DurationMs, "execution_id", execID)
	return res, pe, nil
}

func (e *Engine) handleProviderError(ctx context.Context, logger *slog.Logger, env *types.ActivityEnvelope, activity *types.StandardizedActivity, execs []ProviderExecution, provider Provider, err error) (*ProcessResult, error) {
	if retryErr, ok := err.(*RetryableError); ok {
		return &ProcessResult{
			ProviderExecutions: execs,
			Status:             types.StatusLaggedRetry,
			RetryAfter:         retryErr.RetryAfter,
		}, retryErr
	}
	if waitErr, ok := err.(*WaitForInputError); ok {
		return e.handleWaitError(ctx, logger, env, activity, execs, waitErr)
	}
	return &ProcessResult{
		ProviderExecutions: execs,
		Status:             types.StatusFailed,
	}, fmt.Errorf("enricher failed: %s: %w", provider.Name(), err)
}

// handleWaitError parks the run: it upserts a PendingInput keyed by the stable
// activity+provider id, stores the original envelope for re-publication, and
// pings the user's devices.
func (e *Engine) handleWaitError(ctx context.Context, logger *slog.Logger, env *types.ActivityEnvelope, activity *types.StandardizedActivity, execs []ProviderExecution, waitErr *WaitForInputError) (*ProcessResult, error) {
	logger.Warn("Provider requested user input", "activity_id", waitErr.ActivityID, "provider", waitErr.Provider)

	envelopeJSON, err := json.Marshal(env)
	if err != nil {
		return nil, fmt.Errorf("marshal envelope for pending input: %w", err)
	}

	pi := &types.PendingInput{
		Id:                   pending_input.GenerateID(env.Source, waitErr.ActivityID, waitErr.Provider),
		UserId:               env.UserId,
		Source:               env.Source,
		ExternalId:           waitErr.ActivityID,
		EnricherProvider:     waitErr.Provider,
		ActivityName:         activity.Name,
		Prompt:               waitErr.Prompt,
		RequestedFields:      waitErr.RequestedFields,
		LinkedActivityId:     env.ActivityId,
		PipelineExecutionId:  env.PipelineExecutionId,
		OriginalEnvelopeJson: string(envelopeJSON),
		Defaults:             waitErr.Defaults,
		AutoDeadline:         waitErr.AutoDeadline,
	}
	if err := pending_input.Upsert(ctx, e.database, pi); err != nil {
		logger.Error("Failed to store pending input", "error", err, "pending_input_id", pi.Id)
		return nil, fmt.Errorf("store pending input: %w", err)
	}

	if e.notifications != nil {
		user, err := e.database.GetUser(ctx, env.UserId)
		if err == nil && user != nil && len(user.FcmTokens) > 0 {
			title := "Action Required: PulseSync"
			body := "An activity needs more information to be processed."
			data := map[string]string{
				"activity_id":      waitErr.ActivityID,
				"user_id":          env.UserId,
				"pending_input_id": pi.Id,
				"type":             "PENDING_INPUT",
			}
			if err := e.notifications.SendPushNotification(ctx, env.UserId, title, body, user.FcmTokens, data); err != nil {
				logger.Error("Failed to send push notification", "error", err, "user_id", env.UserId)
			}
		}
	}

	return &ProcessResult{
		ProviderExecutions: execs,
		Status:             types.StatusWaiting,
		PendingInputId:     pi.Id,
	}, nil
}

// resolvePipeline finds the envelope's pipeline in the user's config. A
// missing or disabled pipeline skips the run rather than failing it: the user
// may have deleted the pipeline between splitter fan-out and delivery.
func (e *Engine) resolvePipeline(ctx context.Context, logger *slog.Logger, env *types.ActivityEnvelope) (*types.PipelineConfig, string, error) {
	if env.PipelineId == "" {
		return nil, "", fmt.Errorf("envelope has no pipeline_id")
	}

	pipelines, err := e.database.GetUserPipelines(ctx, env.UserId)
	if err != nil {
		return nil, "", fmt.Errorf("failed to get user pipelines: %w", err)
	}

	for _, p := range pipelines {
		if p.Id != env.PipelineId {
			continue
		}
		if !p.Enabled {
			logger.Info("Pipeline is disabled", "pipeline_id", p.Id, "name", p.Name)
			return nil, "pipeline_disabled", nil
		}
		return p, "", nil
	}

	logger.Warn("Pipeline not found for envelope", "pipeline_id", env.PipelineId)
	return nil, "pipeline_not_found", nil
}

// applyResult folds one provider's contribution into the working activity so
// the next provider in the chain sees it.
func (e *Engine) applyResult(current *types.StandardizedActivity, builder *description.Builder, res *EnrichmentResult) {
	if res.Name != "" {
		current.Name = res.Name
	}
	if res.NameSuffix != "" {
		current.Name += res.NameSuffix
	}
	if res.ActivityType != types.ActivityTypeUnspecified {
		current.Type = res.ActivityType
	}
	if len(res.Tags) > 0 {
		current.Tags = append(current.Tags, res.Tags...)
	}
	if res.Description != "" {
		builder.Add(res.SectionHeader, res.Description)
	}
	applyStreams(current.Sessions[0], res)
}

// applyStreams merges sample streams into the first lap, growing the record
// slice to one sample per second when a provider contributes data.
func applyStreams(session *types.Session, res *EnrichmentResult) {
	if len(res.HeartRateStream) == 0 && len(res.PowerStream) == 0 &&
		len(res.PositionLatStream) == 0 && len(res.PositionLongStream) == 0 {
		return
	}

	if len(session.Laps) == 0 {
		session.Laps = append(session.Laps, &types.Lap{
			StartTime:        session.StartTime,
			TotalElapsedTime: session.TotalElapsedTime,
		})
	}
	lap := session.Laps[0]

	duration := int(session.TotalElapsedTime)
	for k := len(lap.Records); k < duration; k++ {
		lap.Records = append(lap.Records, &types.Record{
			Timestamp: session.StartTime.Add(time.Duration(k) * time.Second),
		})
	}

	for idx, val := range res.HeartRateStream {
		if idx < len(lap.Records) && val > 0 {
			lap.Records[idx].HeartRate = int32(val)
		}
	}
	for idx, val := range res.PowerStream {
		if idx < len(lap.Records) && val > 0 {
			lap.Records[idx].Power = int32(val)
		}
	}
	for idx, val := range res.PositionLatStream {
		if idx < len(lap.Records) {
			lap.Records[idx].PositionLat = val
		}
	}
	for idx, val := range res.PositionLongStream {
		if idx < len(lap.Records) {
			lap.Records[idx].PositionLong = val
		}
	}
}

// attachFitArtifact generates the FIT file for the enriched activity and
// uploads it alongside the event. Artifact failures are logged, never fatal:
// destinations that need the file fall back to field-level upload.
func (e *Engine) attachFitArtifact(ctx context.Context, logger *slog.Logger, userID string, event *types.EnrichedActivity, activity *types.StandardizedActivity) {
	fitBytes, err := fitfile.Generate(activity)
	if err != nil {
		logger.Error("Failed to generate FIT file", "error", err)
		return
	}
	if len(fitBytes) == 0 {
		return
	}
	objName := fmt.Sprintf("activities/%s/%s.fit", userID, event.ActivityId)
	if err := e.storage.Write(ctx, e.bucketName, objName, fitBytes); err != nil {
		logger.Error("Failed to write FIT file artifact", "error", err)
		return
	}
	event.FitFileUri = fmt.Sprintf("gs://%s/%s", e.bucketName, objName)
}

func containsProvider(list []string, t types.EnricherProviderType) bool {
	for _, v := range list {
		if v == string(t) {
			return true
		}
	}
	return false
}
