package enricher

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/pulsesync/server/pkg/testing/mocks"
	"github.com/pulsesync/server/pkg/types"
)

// stubProvider is a configurable test provider.
type stubProvider struct {
	name         string
	providerType types.EnricherProviderType
	enrichFunc   func(ctx context.Context, logger *slog.Logger, activity *types.StandardizedActivity, user *types.UserRecord, inputs map[string]string, doNotRetry bool) (*EnrichmentResult, error)
	deferred     bool
}

func (p *stubProvider) Name() string                             { return p.name }
func (p *stubProvider) ProviderType() types.EnricherProviderType { return p.providerType }
func (p *stubProvider) ShouldDefer() bool                        { return p.deferred }

func (p *stubProvider) Enrich(ctx context.Context, logger *slog.Logger, activity *types.StandardizedActivity, user *types.UserRecord, inputs map[string]string, doNotRetry bool) (*EnrichmentResult, error) {
	if p.enrichFunc != nil {
		return p.enrichFunc(ctx, logger, activity, user, inputs, doNotRetry)
	}
	return &EnrichmentResult{}, nil
}

func testEnvelope() *types.ActivityEnvelope {
	start := time.Date(2026, 8, 20, 7, 0, 0, 0, time.UTC)
	return &types.ActivityEnvelope{
		Source:              types.SourceStrava,
		UserId:              "user-1",
		ActivityId:          "act-1",
		PipelineId:          "pipe-1",
		PipelineExecutionId: "msg-1-pipe-1",
		Standardized: &types.StandardizedActivity{
			Name:        "Morning Run",
			Description: "Felt good.",
			Type:        types.ActivityTypeRun,
			ExternalId:  "EXT-1",
			StartTime:   start,
			Sessions: []*types.Session{
				{StartTime: start, TotalElapsedTime: 3600},
			},
		},
	}
}

func testDB(pipelines ...*types.PipelineConfig) *mocks.MockDatabase {
	return &mocks.MockDatabase{
		GetUserFunc: func(ctx context.Context, id string) (*types.UserRecord, error) {
			return &types.UserRecord{Id: id, Tier: types.UserTierAthlete}, nil
		},
		GetUserPipelinesFunc: func(ctx context.Context, userID string) ([]*types.PipelineConfig, error) {
			return pipelines, nil
		},
	}
}

func testPipeline(providers ...types.EnricherProviderType) *types.PipelineConfig {
	p := &types.PipelineConfig{
		Id:           "pipe-1",
		Source:       types.SourceStrava,
		Destinations: []types.Destination{types.DestinationMock},
		Enabled:      true,
	}
	for _, t := range providers {
		p.Enrichers = append(p.Enrichers, types.EnricherConfig{Provider: t})
	}
	return p
}

func newTestEngine(db *mocks.MockDatabase, providers ...Provider) *Engine {
	registry := NewRegistry()
	for _, p := range providers {
		registry.Register(p)
	}
	return NewEngine(db, &mocks.MockBlobStore{}, "test-bucket", registry, &mocks.MockNotificationService{})
}

func TestProcess_HappyPath(t *testing.T) {
	provider := &stubProvider{
		name:         "mock",
		providerType: types.EnricherProviderMock,
		enrichFunc: func(ctx context.Context, logger *slog.Logger, activity *types.StandardizedActivity, user *types.UserRecord, inputs map[string]string, doNotRetry bool) (*EnrichmentResult, error) {
			if inputs["pipeline_execution_id"] != "msg-1-pipe-1" {
				t.Errorf("pipeline_execution_id not injected: %v", inputs)
			}
			return &EnrichmentResult{
				Description:   "🔥 Calories: 540 kcal",
				SectionHeader: "🔥 Calories:",
				Tags:          []string{"enriched"},
				Metadata:      map[string]string{"calories": "540"},
			}, nil
		},
	}

	engine := newTestEngine(testDB(testPipeline(types.EnricherProviderMock)), provider)
	result, err := engine.Process(context.Background(), slog.Default(), testEnvelope(), false)
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if result.Status != types.StatusSuccess {
		t.Fatalf("expected SUCCESS, got %v", result.Status)
	}
	if result.Event == nil {
		t.Fatal("expected an enriched event")
	}

	event := result.Event
	if event.PipelineExecutionId != "msg-1-pipe-1" {
		t.Errorf("execution id not preserved: %s", event.PipelineExecutionId)
	}
	if event.ActivityId != "act-1" {
		t.Errorf("activity id not preserved: %s", event.ActivityId)
	}
	if !strings.Contains(event.Description, "🔥 Calories: 540 kcal") {
		t.Errorf("provider description missing: %q", event.Description)
	}
	if !strings.HasPrefix(event.Description, "Felt good.") {
		t.Errorf("original description must lead: %q", event.Description)
	}
	if len(event.Destinations) != 1 || event.Destinations[0] != types.DestinationMock {
		t.Errorf("destinations not carried over: %v", event.Destinations)
	}
	if len(event.AppliedEnrichments) != 1 || event.AppliedEnrichments[0] != string(types.EnricherProviderMock) {
		t.Errorf("applied enrichments wrong: %v", event.AppliedEnrichments)
	}
	if event.EnrichmentMetadata["section_header_MOCK"] != "🔥 Calories:" {
		t.Errorf("section header metadata missing: %v", event.EnrichmentMetadata)
	}
	if event.EnrichmentMetadata["calories"] != "540" {
		t.Errorf("provider metadata not merged: %v", event.EnrichmentMetadata)
	}
}

func TestProcess_ReplacesSectionOnResume(t *testing.T) {
	// The activity already carries a calories block from the first run; the
	// provider's second contribution must replace it, not stack.
	provider := &stubProvider{
		name:         "mock",
		providerType: types.EnricherProviderMock,
		enrichFunc: func(ctx context.Context, logger *slog.Logger, activity *types.StandardizedActivity, user *types.UserRecord, inputs map[string]string, doNotRetry bool) (*EnrichmentResult, error) {
			return &EnrichmentResult{Description: "🔥 Calories: 600 kcal", SectionHeader: "🔥 Calories:"}, nil
		},
	}

	env := testEnvelope()
	engine := newTestEngine(testDB(testPipeline(types.EnricherProviderMock)), provider)
	result, err := engine.Process(context.Background(), slog.Default(), env, false)
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if n := strings.Count(result.Event.Description, "🔥 Calories:"); n != 1 {
		t.Errorf("expected exactly one calories section, got %d in %q", n, result.Event.Description)
	}
}

func TestProcess_PipelineNotFound(t *testing.T) {
	engine := newTestEngine(testDB()) // no pipelines
	result, err := engine.Process(context.Background(), slog.Default(), testEnvelope(), false)
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if result.Status != types.StatusSkipped || result.SkipReason != "pipeline_not_found" {
		t.Errorf("expected skip with pipeline_not_found, got %v %q", result.Status, result.SkipReason)
	}
}

func TestProcess_PipelineDisabled(t *testing.T) {
	pipeline := testPipeline(types.EnricherProviderMock)
	pipeline.Enabled = false
	engine := newTestEngine(testDB(pipeline))
	result, err := engine.Process(context.Background(), slog.Default(), testEnvelope(), false)
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if result.Status != types.StatusSkipped || result.SkipReason != "pipeline_disabled" {
		t.Errorf("expected skip with pipeline_disabled, got %v %q", result.Status, result.SkipReason)
	}
}

func TestProcess_ValidationFailures(t *testing.T) {
	engine := newTestEngine(testDB(testPipeline()))

	noActivity := testEnvelope()
	noActivity.Standardized = nil
	if _, err := engine.Process(context.Background(), slog.Default(), noActivity, false); err == nil {
		t.Error("nil activity must fail")
	}

	twoSessions := testEnvelope()
	twoSessions.Standardized.Sessions = append(twoSessions.Standardized.Sessions, &types.Session{TotalElapsedTime: 60})
	if _, err := engine.Process(context.Background(), slog.Default(), twoSessions, false); err == nil {
		t.Error("multiple sessions must fail")
	}

	zeroElapsed := testEnvelope()
	zeroElapsed.Standardized.Sessions[0].TotalElapsedTime = 0
	if _, err := engine.Process(context.Background(), slog.Default(), zeroElapsed, false); err == nil {
		t.Error("zero elapsed time must fail")
	}
}

func TestProcess_RetryableError(t *testing.T) {
	provider := &stubProvider{
		name:         "laggy",
		providerType: types.EnricherProviderMock,
		enrichFunc: func(ctx context.Context, logger *slog.Logger, activity *types.StandardizedActivity, user *types.UserRecord, inputs map[string]string, doNotRetry bool) (*EnrichmentResult, error) {
			return nil, NewRetryableError(errors.New("vendor has no samples yet"), 5*time.Minute, "data lag")
		},
	}

	engine := newTestEngine(testDB(testPipeline(types.EnricherProviderMock)), provider)
	result, err := engine.Process(context.Background(), slog.Default(), testEnvelope(), false)
	if err == nil {
		t.Fatal("expected the retryable error to propagate")
	}
	var retryErr *RetryableError
	if !errors.As(err, &retryErr) {
		t.Fatalf("expected RetryableError, got %T", err)
	}
	if result.Status != types.StatusLaggedRetry {
		t.Errorf("expected LAGGED_RETRY, got %v", result.Status)
	}
	if result.RetryAfter != 5*time.Minute {
		t.Errorf("retry_after not carried: %v", result.RetryAfter)
	}
	if result.Event != nil {
		t.Error("no event must be produced on lag")
	}
}

func TestProcess_WaitForInput(t *testing.T) {
	var stored *types.PendingInput
	var notified bool

	db := testDB(testPipeline(types.EnricherProviderUserInput))
	db.GetUserFunc = func(ctx context.Context, id string) (*types.UserRecord, error) {
		return &types.UserRecord{Id: id, Tier: types.UserTierAthlete, FcmTokens: []string{"tok-1"}}, nil
	}
	db.SetPendingInputFunc = func(ctx context.Context, input *types.PendingInput) error {
		stored = input
		return nil
	}

	provider := &stubProvider{
		name:         "user-input",
		providerType: types.EnricherProviderUserInput,
		enrichFunc: func(ctx context.Context, logger *slog.Logger, activity *types.StandardizedActivity, user *types.UserRecord, inputs map[string]string, doNotRetry bool) (*EnrichmentResult, error) {
			return nil, &WaitForInputError{
				ActivityID: activity.ExternalId,
				Prompt:     "How hard was it?",
				RequestedFields: []types.RequestedField{
					{Key: "rpe", Label: "RPE", Required: true},
				},
				Defaults: map[string]string{"rpe": "5"},
				Provider: types.EnricherProviderUserInput,
			}
		},
	}

	registry := NewRegistry()
	registry.Register(provider)
	notify := &mocks.MockNotificationService{
		SendPushNotificationFunc: func(ctx context.Context, userID string, title, body string, tokens []string, data map[string]string) error {
			notified = true
			return nil
		},
	}
	engine := NewEngine(db, &mocks.MockBlobStore{}, "test-bucket", registry, notify)

	result, err := engine.Process(context.Background(), slog.Default(), testEnvelope(), false)
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if result.Status != types.StatusWaiting {
		t.Fatalf("expected WAITING, got %v", result.Status)
	}
	if stored == nil {
		t.Fatal("pending input was not stored")
	}
	if stored.Id != "STRAVA:EXT-1:USER_INPUT" {
		t.Errorf("unexpected pending input id: %s", stored.Id)
	}
	if stored.Status != types.PendingInputWaiting {
		t.Errorf("pending input not WAITING: %v", stored.Status)
	}
	if stored.OriginalEnvelopeJson == "" {
		t.Error("original envelope must be stored for re-publication")
	}
	if stored.PipelineExecutionId != "msg-1-pipe-1" {
		t.Errorf("execution id not linked: %s", stored.PipelineExecutionId)
	}
	if result.PendingInputId != stored.Id {
		t.Errorf("result pending input id mismatch: %s", result.PendingInputId)
	}
	if !notified {
		t.Error("user devices were not notified")
	}
}

func TestProcess_ResumeWithoutActivityIdFailsFast(t *testing.T) {
	env := testEnvelope()
	env.IsResume = true
	env.ActivityId = ""

	engine := newTestEngine(testDB(testPipeline()))
	result, err := engine.Process(context.Background(), slog.Default(), env, false)
	if err == nil {
		t.Fatal("a resume envelope without an activity id must fail fast")
	}
	if result != nil && result.Event != nil {
		t.Errorf("no event may be minted for an orphaned resume: %+v", result.Event)
	}
	if !strings.Contains(err.Error(), "activity_id") {
		t.Errorf("error should name the missing field: %v", err)
	}
}

func TestProcess_MintsActivityIdBeforePause(t *testing.T) {
	var stored *types.PendingInput

	db := testDB(testPipeline(types.EnricherProviderUserInput))
	db.SetPendingInputFunc = func(ctx context.Context, input *types.PendingInput) error {
		stored = input
		return nil
	}

	provider := &stubProvider{
		name:         "user-input",
		providerType: types.EnricherProviderUserInput,
		enrichFunc: func(ctx context.Context, logger *slog.Logger, activity *types.StandardizedActivity, user *types.UserRecord, inputs map[string]string, doNotRetry bool) (*EnrichmentResult, error) {
			return nil, &WaitForInputError{
				ActivityID: activity.ExternalId,
				Prompt:     "Name this activity",
				Provider:   types.EnricherProviderUserInput,
			}
		},
	}

	env := testEnvelope()
	env.ActivityId = "" // splitter did not stamp one

	engine := newTestEngine(db, provider)
	result, err := engine.Process(context.Background(), slog.Default(), env, false)
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if result.Status != types.StatusWaiting {
		t.Fatalf("expected WAITING, got %v", result.Status)
	}
	if stored == nil {
		t.Fatal("pending input was not stored")
	}
	if stored.LinkedActivityId == "" {
		t.Error("the pause must link a non-empty activity id for the resume to carry back")
	}
	if env.ActivityId == "" || stored.LinkedActivityId != env.ActivityId {
		t.Errorf("envelope and pending input disagree on the activity id: %q vs %q", env.ActivityId, stored.LinkedActivityId)
	}
	var resumed types.ActivityEnvelope
	if err := json.Unmarshal([]byte(stored.OriginalEnvelopeJson), &resumed); err != nil {
		t.Fatalf("unmarshal stored envelope: %v", err)
	}
	if resumed.ActivityId != env.ActivityId {
		t.Errorf("stored envelope must carry the minted activity id: %q", resumed.ActivityId)
	}
}

func TestProcess_Halt(t *testing.T) {
	provider := &stubProvider{
		name:         "gate",
		providerType: types.EnricherProviderLogicGate,
		enrichFunc: func(ctx context.Context, logger *slog.Logger, activity *types.StandardizedActivity, user *types.UserRecord, inputs map[string]string, doNotRetry bool) (*EnrichmentResult, error) {
			return &EnrichmentResult{HaltPipeline: true, HaltReason: "distance below threshold"}, nil
		},
	}
	never := &stubProvider{
		name:         "never",
		providerType: types.EnricherProviderMock,
		enrichFunc: func(ctx context.Context, logger *slog.Logger, activity *types.StandardizedActivity, user *types.UserRecord, inputs map[string]string, doNotRetry bool) (*EnrichmentResult, error) {
			t.Error("provider after halt must not run")
			return nil, nil
		},
	}

	engine := newTestEngine(testDB(testPipeline(types.EnricherProviderLogicGate, types.EnricherProviderMock)), provider, never)
	result, err := engine.Process(context.Background(), slog.Default(), testEnvelope(), false)
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if result.Status != types.StatusSkipped || result.SkipReason != "distance below threshold" {
		t.Errorf("expected halt skip, got %v %q", result.Status, result.SkipReason)
	}
	if result.Event != nil {
		t.Error("halted pipeline must not publish")
	}
}

func TestProcess_TerminalProviderFailure(t *testing.T) {
	provider := &stubProvider{
		name:         "broken",
		providerType: types.EnricherProviderMock,
		enrichFunc: func(ctx context.Context, logger *slog.Logger, activity *types.StandardizedActivity, user *types.UserRecord, inputs map[string]string, doNotRetry bool) (*EnrichmentResult, error) {
			return nil, errors.New("boom")
		},
	}

	engine := newTestEngine(testDB(testPipeline(types.EnricherProviderMock)), provider)
	result, err := engine.Process(context.Background(), slog.Default(), testEnvelope(), false)
	if err == nil {
		t.Fatal("expected terminal error")
	}
	if result.Status != types.StatusFailed {
		t.Errorf("expected FAILED, got %v", result.Status)
	}
}

func TestProcess_ResumeRunsOnlyListedEnrichers(t *testing.T) {
	ran := []string{}
	mk := func(name string, pt types.EnricherProviderType) *stubProvider {
		return &stubProvider{
			name:         name,
			providerType: pt,
			enrichFunc: func(ctx context.Context, logger *slog.Logger, activity *types.StandardizedActivity, user *types.UserRecord, inputs map[string]string, doNotRetry bool) (*EnrichmentResult, error) {
				ran = append(ran, name)
				return &EnrichmentResult{}, nil
			},
		}
	}
	first := mk("first", types.EnricherProviderCalories)
	second := mk("second", types.EnricherProviderUserInput)

	env := testEnvelope()
	env.IsResume = true
	env.ResumeOnlyEnrichers = []string{string(types.EnricherProviderUserInput)}

	engine := newTestEngine(testDB(testPipeline(types.EnricherProviderCalories, types.EnricherProviderUserInput)), first, second)
	result, err := engine.Process(context.Background(), slog.Default(), env, false)
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if len(ran) != 1 || ran[0] != "second" {
		t.Errorf("resume must run only listed enrichers, ran %v", ran)
	}
	if result.Status != types.StatusSuccess {
		t.Errorf("expected SUCCESS, got %v", result.Status)
	}
}

func TestProcess_UseUpdateMethodCarriedToEvent(t *testing.T) {
	env := testEnvelope()
	env.IsResume = true
	env.UseUpdateMethod = true

	engine := newTestEngine(testDB(testPipeline()))
	result, err := engine.Process(context.Background(), slog.Default(), env, false)
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if !result.Event.UseUpdateMethod {
		t.Error("use_update_method must be carried onto the event")
	}
}

func TestProcess_BrandingLastForHobbyist(t *testing.T) {
	branding := &stubProvider{
		name:         "branding",
		providerType: types.EnricherProviderBranding,
		enrichFunc: func(ctx context.Context, logger *slog.Logger, activity *types.StandardizedActivity, user *types.UserRecord, inputs map[string]string, doNotRetry bool) (*EnrichmentResult, error) {
			return &EnrichmentResult{Description: "Synced with PulseSync", SectionHeader: "Synced with"}, nil
		},
	}
	calories := &stubProvider{
		name:         "calories",
		providerType: types.EnricherProviderCalories,
		enrichFunc: func(ctx context.Context, logger *slog.Logger, activity *types.StandardizedActivity, user *types.UserRecord, inputs map[string]string, doNotRetry bool) (*EnrichmentResult, error) {
			return &EnrichmentResult{Description: "🔥 Calories: 540 kcal", SectionHeader: "🔥 Calories:"}, nil
		},
	}

	db := testDB(testPipeline(types.EnricherProviderCalories))
	db.GetUserFunc = func(ctx context.Context, id string) (*types.UserRecord, error) {
		return &types.UserRecord{Id: id, Tier: types.UserTierHobbyist}, nil
	}

	engine := newTestEngine(db, calories, branding)
	result, err := engine.Process(context.Background(), slog.Default(), testEnvelope(), false)
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	desc := result.Event.Description
	if !strings.Contains(desc, "Synced with PulseSync") {
		t.Fatalf("branding missing for hobbyist: %q", desc)
	}
	if strings.Index(desc, "Synced with PulseSync") < strings.Index(desc, "🔥 Calories:") {
		t.Errorf("branding must come last: %q", desc)
	}
	found := false
	for _, e := range result.Event.AppliedEnrichments {
		if e == string(types.EnricherProviderBranding) {
			found = true
		}
	}
	if !found {
		t.Errorf("branding not recorded in applied enrichments: %v", result.Event.AppliedEnrichments)
	}
}

func TestProcess_NoBrandingForAthlete(t *testing.T) {
	branding := &stubProvider{
		name:         "branding",
		providerType: types.EnricherProviderBranding,
		enrichFunc: func(ctx context.Context, logger *slog.Logger, activity *types.StandardizedActivity, user *types.UserRecord, inputs map[string]string, doNotRetry bool) (*EnrichmentResult, error) {
			return &EnrichmentResult{Description: "Synced with PulseSync"}, nil
		},
	}

	engine := newTestEngine(testDB(testPipeline()), branding)
	result, err := engine.Process(context.Background(), slog.Default(), testEnvelope(), false)
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if strings.Contains(result.Event.Description, "Synced with PulseSync") {
		t.Errorf("athlete tier must not be branded: %q", result.Event.Description)
	}
}

func TestProcess_DeferredProviderSeesAccumulatedDescription(t *testing.T) {
	var seen string
	deferred := &stubProvider{
		name:         "companion",
		providerType: types.EnricherProviderAICompanion,
		deferred:     true,
		enrichFunc: func(ctx context.Context, logger *slog.Logger, activity *types.StandardizedActivity, user *types.UserRecord, inputs map[string]string, doNotRetry bool) (*EnrichmentResult, error) {
			seen = inputs["enriched_description"]
			return &EnrichmentResult{Description: "Nice pace!", SectionHeader: "🤖 Coach:"}, nil
		},
	}
	calories := &stubProvider{
		name:         "calories",
		providerType: types.EnricherProviderCalories,
		enrichFunc: func(ctx context.Context, logger *slog.Logger, activity *types.StandardizedActivity, user *types.UserRecord, inputs map[string]string, doNotRetry bool) (*EnrichmentResult, error) {
			return &EnrichmentResult{Description: "🔥 Calories: 540 kcal", SectionHeader: "🔥 Calories:"}, nil
		},
	}

	// The deferred provider is configured first but must run last.
	engine := newTestEngine(testDB(testPipeline(types.EnricherProviderAICompanion, types.EnricherProviderCalories)), deferred, calories)
	result, err := engine.Process(context.Background(), slog.Default(), testEnvelope(), false)
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if !strings.Contains(seen, "🔥 Calories:") {
		t.Errorf("deferred provider did not see accumulated description: %q", seen)
	}
	if !strings.Contains(result.Event.Description, "Nice pace!") {
		t.Errorf("deferred contribution missing: %q", result.Event.Description)
	}
}

func TestProcess_FitArtifactAttached(t *testing.T) {
	var wroteObject string
	store := &mocks.MockBlobStore{
		WriteFunc: func(ctx context.Context, bucket, object string, data []byte) error {
			wroteObject = object
			return nil
		},
	}

	registry := NewRegistry()
	engine := NewEngine(testDB(testPipeline()), store, "artifact-bucket", registry, &mocks.MockNotificationService{})
	result, err := engine.Process(context.Background(), slog.Default(), testEnvelope(), false)
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if wroteObject == "" {
		t.Fatal("FIT artifact was not written")
	}
	if result.Event.FitFileUri != "gs://artifact-bucket/"+wroteObject {
		t.Errorf("fit file uri mismatch: %s", result.Event.FitFileUri)
	}
}
