package integration

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/pulsesync/server/pkg/domain/tier"
	"github.com/pulsesync/server/pkg/enricher"
	"github.com/pulsesync/server/pkg/enricher/providers/mock"
	"github.com/pulsesync/server/pkg/enricher/providers/user_input"
	"github.com/pulsesync/server/pkg/loopprevention"
	"github.com/pulsesync/server/pkg/pending_input"
	"github.com/pulsesync/server/pkg/testing/mocks"
	"github.com/pulsesync/server/pkg/types"
	"github.com/pulsesync/server/pkg/uploader"
)

// world is the per-scenario state: a stateful in-memory database behind the
// standard mocks, the real enricher engine, and the real uploader flow. The
// arrival step mirrors the splitter's gate order so the scenarios exercise the
// same decisions production takes, just without Pub/Sub in between.
type world struct {
	db     *mocks.MockDatabase
	blob   *mocks.MockBlobStore
	logger *slog.Logger
	engine *enricher.Engine

	user      *types.UserRecord
	pipelines []*types.PipelineConfig

	runs    map[string]*types.PipelineRun
	ledger  map[string]*types.UploadedActivityRecord
	pending map[string]*types.PendingInput

	env     *types.ActivityEnvelope
	result  *enricher.ProcessResult
	procErr error

	lastRunID   string
	uploadErrs  map[types.Destination]error
	failDest    map[types.Destination]bool
	dropped     bool
	blocked     bool
	blockReason string
}

func newWorld() *world {
	w := &world{
		runs:       make(map[string]*types.PipelineRun),
		ledger:     make(map[string]*types.UploadedActivityRecord),
		pending:    make(map[string]*types.PendingInput),
		uploadErrs: make(map[types.Destination]error),
		failDest:   make(map[types.Destination]bool),
		logger:     slog.New(slog.NewTextHandler(io.Discard, nil)),
		blob:       &mocks.MockBlobStore{},
	}

	w.db = &mocks.MockDatabase{
		GetUserFunc: func(ctx context.Context, id string) (*types.UserRecord, error) {
			if w.user == nil || w.user.Id != id {
				return nil, fmt.Errorf("user %s not found", id)
			}
			return w.user, nil
		},
		GetUserPipelinesFunc: func(ctx context.Context, userID string) ([]*types.PipelineConfig, error) {
			return w.pipelines, nil
		},

		GetPipelineRunFunc: func(ctx context.Context, userID, id string) (*types.PipelineRun, error) {
			return w.runs[id], nil
		},
		GetPipelineRunByActivityIdFunc: func(ctx context.Context, userID, activityID string) (*types.PipelineRun, error) {
			for _, run := range w.runs {
				if run.ActivityId == activityID {
					return run, nil
				}
			}
			return nil, nil
		},
		CreatePipelineRunIfAbsentFunc: func(ctx context.Context, run *types.PipelineRun) (bool, error) {
			if _, exists := w.runs[run.Id]; exists {
				return false, nil
			}
			w.runs[run.Id] = run
			return true, nil
		},
		UpdatePipelineRunFunc: func(ctx context.Context, userID, id string, data map[string]interface{}) error {
			run, ok := w.runs[id]
			if !ok {
				return fmt.Errorf("pipeline run %s not found", id)
			}
			if v, ok := data["status"].(string); ok {
				run.Status = types.PipelineRunStatus(v)
			}
			if v, ok := data["destinations"].([]*types.DestinationOutcome); ok {
				run.Destinations = v
			}
			if v, ok := data["error"].(string); ok {
				run.Error = v
			}
			if v, ok := data["pending_input_id"].(string); ok {
				run.PendingInputId = v
			}
			if v, ok := data["enriched_event_uri"].(string); ok {
				run.EnrichedEventUri = v
			}
			return nil
		},

		SetUploadedActivityFunc: func(ctx context.Context, userID string, record *types.UploadedActivityRecord) error {
			w.ledger[record.Id] = record
			return nil
		},
		GetUploadedActivityFunc: func(ctx context.Context, userID string, destination types.Destination, destinationID string) (*types.UploadedActivityRecord, error) {
			return w.ledger[types.UploadedActivityID(destination, destinationID)], nil
		},

		GetPendingInputFunc: func(ctx context.Context, userID, id string) (*types.PendingInput, error) {
			return w.pending[id], nil
		},
		SetPendingInputFunc: func(ctx context.Context, input *types.PendingInput) error {
			w.pending[input.Id] = input
			return nil
		},
		UpdatePendingInputFunc: func(ctx context.Context, userID, id string, data map[string]interface{}) error {
			pi, ok := w.pending[id]
			if !ok {
				return fmt.Errorf("pending input %s not found", id)
			}
			if v, ok := data["provided_values"].(map[string]string); ok {
				pi.ProvidedValues = v
			}
			return nil
		},
		ClaimPendingInputFunc: func(ctx context.Context, userID, id string, from, to types.PendingInputStatus) (bool, error) {
			pi, ok := w.pending[id]
			if !ok || pi.Status != from {
				return false, nil
			}
			pi.Status = to
			return true, nil
		},
	}

	registry := enricher.NewRegistry()
	registry.Register(mock.New())
	registry.Register(user_input.New(w.db))
	w.engine = enricher.NewEngine(w.db, w.blob, "test-artifacts", registry, &mocks.MockNotificationService{})

	return w
}

// --- Givens ---

func (w *world) aUserOnTier(id, tierName string) error {
	user := &types.UserRecord{Id: id, SyncCountMonth: tier.CurrentMonth(time.Now())}
	switch tierName {
	case "athlete":
		user.Tier = types.UserTierAthlete
	case "hobbyist":
		user.Tier = types.UserTierHobbyist
	default:
		return fmt.Errorf("unknown tier %q", tierName)
	}
	w.user = user
	return nil
}

func (w *world) userHasSynced(count int) error {
	w.user.SyncCountThisMonth = int64(count)
	w.user.SyncCountMonth = tier.CurrentMonth(time.Now())
	return nil
}

func (w *world) aPipelineRoutes(id, source, destinations string) error {
	var dests []types.Destination
	for _, d := range strings.Split(destinations, ",") {
		dests = append(dests, types.Destination(strings.TrimSpace(d)))
	}
	w.pipelines = append(w.pipelines, &types.PipelineConfig{
		Id:           id,
		Name:         id,
		Source:       types.ActivitySource(source),
		Destinations: dests,
		Enrichers: []types.EnricherConfig{
			{Provider: types.EnricherProviderMock, Config: map[string]string{"behavior": "success"}},
		},
		Enabled: true,
	})
	return nil
}

func (w *world) enricherSimulatesLag() error {
	p := w.lastPipeline()
	if p == nil {
		return fmt.Errorf("no pipeline configured")
	}
	p.Enrichers[0].Config["behavior"] = "lag"
	return nil
}

func (w *world) pipelineAsksForDescription() error {
	p := w.lastPipeline()
	if p == nil {
		return fmt.Errorf("no pipeline configured")
	}
	p.Enrichers = append(p.Enrichers, types.EnricherConfig{
		Provider: types.EnricherProviderUserInput,
		Config:   map[string]string{"fields": "description"},
	})
	return nil
}

func (w *world) unansweredInputsFallBack(value string) error {
	p := w.lastPipeline()
	if p == nil {
		return fmt.Errorf("no pipeline configured")
	}
	for i := range p.Enrichers {
		if p.Enrichers[i].Provider == types.EnricherProviderUserInput {
			p.Enrichers[i].Config["default_description"] = value
			p.Enrichers[i].Config["auto_resume_after"] = "1h"
			return nil
		}
	}
	return fmt.Errorf("no user input enricher on the pipeline")
}

func (w *world) destinationIsUnavailable(dest string) error {
	w.failDest[types.Destination(dest)] = true
	return nil
}

func (w *world) ledgerAlreadyHolds(dest, id string) error {
	d := types.Destination(dest)
	record := &types.UploadedActivityRecord{
		Id:            types.UploadedActivityID(d, id),
		UserId:        w.user.Id,
		Destination:   d,
		DestinationId: id,
		UploadedAt:    time.Now().UTC(),
	}
	w.ledger[record.Id] = record
	return nil
}

// --- Whens ---

// anActivityArrives walks the splitter's gate order for one inbound activity:
// bounceback check, lazy counter reset, tier gate, run creation, then the
// enricher engine. Blocked and dropped outcomes short-circuit before the
// engine runs.
func (w *world) anActivityArrives(source, externalID string) error {
	ctx := context.Background()
	src := types.ActivitySource(source)

	bounce, err := loopprevention.IsBounceback(ctx, w.db, w.user.Id, src, externalID)
	if err != nil {
		return err
	}
	if bounce {
		w.dropped = true
		return w.db.IncrementPreventedSyncCount(ctx, w.user.Id)
	}

	now := time.Now()
	if tier.ShouldResetSyncCounts(w.user, now) {
		w.user.SyncCountThisMonth = 0
		w.user.SyncCountMonth = tier.CurrentMonth(now)
	}
	allowed, reason := tier.CanSync(w.user)

	for _, p := range w.pipelines {
		if p.Source != src || !p.Enabled {
			continue
		}

		run := &types.PipelineRun{
			Id:         "run-" + p.Id,
			UserId:     w.user.Id,
			PipelineId: p.Id,
			Source:     src,
			ActivityId: "act-" + externalID,
			Status:     types.PipelineRunRunning,
			CreatedAt:  now.UTC(),
		}
		for _, d := range p.Destinations {
			run.Destinations = append(run.Destinations, &types.DestinationOutcome{
				Destination: d,
				Status:      types.DestinationStatusPending,
			})
		}

		if !allowed {
			run.Status = types.PipelineRunFailed
			run.Error = reason
			w.blocked = true
			w.blockReason = reason
		}
		if _, err := w.db.CreatePipelineRunIfAbsent(ctx, run); err != nil {
			return err
		}
		w.lastRunID = run.Id
		if !allowed {
			continue
		}

		w.env = &types.ActivityEnvelope{
			Source:              src,
			UserId:              w.user.Id,
			ActivityId:          run.ActivityId,
			PipelineId:          p.Id,
			PipelineExecutionId: run.Id,
			Standardized: &types.StandardizedActivity{
				Source:     src,
				ExternalId: externalID,
				Name:       "Morning Session",
				Type:       types.ActivityTypeRun,
				Sessions: []*types.Session{{
					StartTime:        now.Add(-time.Hour),
					TotalElapsedTime: 1800,
				}},
			},
		}
		w.result, w.procErr = w.engine.Process(ctx, w.logger, w.env, false)
	}
	return nil
}

func (w *world) redeliveredRetriesExhausted() error {
	if w.env == nil {
		return fmt.Errorf("no envelope to redeliver")
	}
	w.result, w.procErr = w.engine.Process(context.Background(), w.logger, w.env, true)
	return nil
}

func (w *world) userAnswersWithDescription(value string) error {
	pi := w.waitingInput()
	if pi == nil {
		return fmt.Errorf("no pending input waiting")
	}
	claimed, err := pending_input.Resolve(context.Background(), w.db, w.user.Id, pi.Id, map[string]string{
		"description": value,
	})
	if err != nil {
		return err
	}
	if !claimed {
		return fmt.Errorf("pending input %s was not claimable", pi.Id)
	}
	return nil
}

func (w *world) autoResumeDeadlinePasses() error {
	pi := w.waitingInput()
	if pi == nil {
		return fmt.Errorf("no pending input waiting")
	}
	pi.AutoDeadline = time.Now().Add(-time.Minute)
	if !pending_input.IsAutoResumeDue(pi, time.Now()) {
		return fmt.Errorf("pending input %s not due for auto-resume", pi.Id)
	}
	claimed, err := pending_input.ClaimForAutoResume(context.Background(), w.db, pi)
	if err != nil {
		return err
	}
	if !claimed {
		return fmt.Errorf("auto-resume claim lost for %s", pi.Id)
	}
	return nil
}

func (w *world) pausedRunIsResumed() error {
	if w.env == nil || w.result == nil {
		return fmt.Errorf("no paused run to resume")
	}
	env := *w.env
	env.IsResume = true
	env.ResumePendingInputId = w.result.PendingInputId
	env.ResumeOnlyEnrichers = []string{string(types.EnricherProviderUserInput)}
	env.UseUpdateMethod = true
	w.result, w.procErr = w.engine.Process(context.Background(), w.logger, &env, false)
	return nil
}

func (w *world) enrichedActivityIsUploaded() error {
	if w.result == nil || w.result.Event == nil {
		return fmt.Errorf("no enriched event to upload")
	}
	ctx := context.Background()
	for _, d := range w.result.Event.Destinations {
		stub := &stubDestination{destType: d, fail: w.failDest[d]}
		up := uploader.New(w.db, w.blob, stub, d)
		_, err := up.Process(ctx, w.logger, w.result.Event, w.result.Event.PipelineExecutionId)
		w.uploadErrs[d] = err
	}
	return nil
}

// --- Thens ---

func (w *world) enrichmentSucceeds() error {
	if w.procErr != nil {
		return fmt.Errorf("enrichment failed: %w", w.procErr)
	}
	if w.result == nil || w.result.Status != types.StatusSuccess || w.result.Event == nil {
		return fmt.Errorf("enrichment did not succeed: %+v", w.result)
	}
	return nil
}

func (w *world) runIsDeferredForLagRetry() error {
	var retryErr *enricher.RetryableError
	if !errors.As(w.procErr, &retryErr) {
		return fmt.Errorf("expected a retryable error, got %v", w.procErr)
	}
	if w.result == nil || w.result.Status != types.StatusLaggedRetry {
		return fmt.Errorf("expected lag retry status, got %+v", w.result)
	}
	return nil
}

func (w *world) runPausesWaitingForInput() error {
	if w.procErr != nil {
		return fmt.Errorf("pause must not surface an error: %w", w.procErr)
	}
	if w.result == nil || w.result.Status != types.StatusWaiting {
		return fmt.Errorf("expected waiting status, got %+v", w.result)
	}
	pi := w.waitingInput()
	if pi == nil {
		return fmt.Errorf("no pending input stored for the pause")
	}
	if pi.Id != w.result.PendingInputId {
		return fmt.Errorf("pending input id mismatch: %q vs %q", pi.Id, w.result.PendingInputId)
	}
	return nil
}

func (w *world) enrichedDescriptionContains(value string) error {
	if w.result == nil || w.result.Event == nil {
		return fmt.Errorf("no enriched event")
	}
	if !strings.Contains(w.result.Event.Description, value) {
		return fmt.Errorf("description %q does not contain %q", w.result.Event.Description, value)
	}
	return nil
}

func (w *world) pipelineRunStatusIs(want string) error {
	run := w.runs[w.lastRunID]
	if run == nil {
		return fmt.Errorf("no pipeline run recorded")
	}
	if string(run.Status) != want {
		return fmt.Errorf("run status is %q, want %q", run.Status, want)
	}
	return nil
}

func (w *world) ledgerHoldsRow(dest string) error {
	d := types.Destination(dest)
	for _, record := range w.ledger {
		if record.Destination == d && record.DestinationId != "" {
			return nil
		}
	}
	return fmt.Errorf("no %s row in the upload ledger", dest)
}

func (w *world) uploadReturnedToQueue(dest string) error {
	if w.uploadErrs[types.Destination(dest)] == nil {
		return fmt.Errorf("upload to %s did not fail", dest)
	}
	return nil
}

func (w *world) syncBlockedByTierLimit() error {
	if !w.blocked {
		return fmt.Errorf("sync was not blocked")
	}
	if !strings.Contains(w.blockReason, "limit") {
		return fmt.Errorf("unexpected block reason: %q", w.blockReason)
	}
	return nil
}

func (w *world) activityDroppedAsBounceback() error {
	if !w.dropped {
		return fmt.Errorf("activity was not dropped")
	}
	if w.result != nil {
		return fmt.Errorf("dropped activity must not be enriched")
	}
	return nil
}

// --- Helpers ---

func (w *world) lastPipeline() *types.PipelineConfig {
	if len(w.pipelines) == 0 {
		return nil
	}
	return w.pipelines[len(w.pipelines)-1]
}

func (w *world) waitingInput() *types.PendingInput {
	for _, pi := range w.pending {
		if pi.Status == types.PendingInputWaiting {
			return pi
		}
	}
	return nil
}

// stubDestination stands in for a vendor adapter. Create answers with a
// deterministic external id so ledger rows are assertable; fail simulates a
// vendor outage.
type stubDestination struct {
	destType types.Destination
	fail     bool
}

func (s *stubDestination) Name() string {
	return strings.ToLower(string(s.destType))
}

func (s *stubDestination) Create(ctx context.Context, payload *types.EnrichedActivity, user *types.UserRecord) (string, error) {
	if s.fail {
		return "", fmt.Errorf("%s is unavailable", s.Name())
	}
	return s.Name() + "-" + payload.ActivityId, nil
}

func (s *stubDestination) Update(ctx context.Context, payload *types.EnrichedActivity, user *types.UserRecord, prior *types.UploadedActivityRecord) error {
	if s.fail {
		return fmt.Errorf("%s is unavailable", s.Name())
	}
	return nil
}
