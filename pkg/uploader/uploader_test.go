package uploader

import (
	"context"
	"errors"
	"log/slog"
	"testing"

	"github.com/pulsesync/server/pkg/testing/mocks"
	"github.com/pulsesync/server/pkg/types"
)

type stubDestination struct {
	name       string
	createFunc func(ctx context.Context, payload *types.EnrichedActivity, user *types.UserRecord) (string, error)
	updateFunc func(ctx context.Context, payload *types.EnrichedActivity, user *types.UserRecord, prior *types.UploadedActivityRecord) error
}

func (s *stubDestination) Name() string { return s.name }

func (s *stubDestination) Create(ctx context.Context, payload *types.EnrichedActivity, user *types.UserRecord) (string, error) {
	if s.createFunc != nil {
		return s.createFunc(ctx, payload, user)
	}
	return "ext-1", nil
}

func (s *stubDestination) Update(ctx context.Context, payload *types.EnrichedActivity, user *types.UserRecord, prior *types.UploadedActivityRecord) error {
	if s.updateFunc != nil {
		return s.updateFunc(ctx, payload, user, prior)
	}
	return nil
}

func testEvent() *types.EnrichedActivity {
	return &types.EnrichedActivity{
		UserId:              "user-1",
		Source:              types.SourceStrava,
		ActivityId:          "act-1",
		PipelineId:          "pipe-1",
		PipelineExecutionId: "run-1",
		Name:                "Morning Run",
		ActivityType:        types.ActivityTypeRun,
		ActivityData:        &types.StandardizedActivity{ExternalId: "EXT-SRC"},
	}
}

func testRun(destStatus types.DestinationStatus, externalID string) *types.PipelineRun {
	return &types.PipelineRun{
		Id:         "run-1",
		UserId:     "user-1",
		PipelineId: "pipe-1",
		Status:     types.PipelineRunRunning,
		ActivityId: "act-1",
		Destinations: []*types.DestinationOutcome{
			{Destination: types.DestinationMock, Status: destStatus, ExternalId: externalID},
		},
	}
}

func TestProcess_CreateHappyPath(t *testing.T) {
	var ledger *types.UploadedActivityRecord
	var runUpdate map[string]interface{}
	synced := false

	db := &mocks.MockDatabase{
		GetUserFunc: func(ctx context.Context, id string) (*types.UserRecord, error) {
			return &types.UserRecord{Id: id, SyncCountMonth: "2099-01"}, nil
		},
		GetPipelineRunFunc: func(ctx context.Context, userID, id string) (*types.PipelineRun, error) {
			return testRun(types.DestinationStatusPending, ""), nil
		},
		SetUploadedActivityFunc: func(ctx context.Context, userID string, record *types.UploadedActivityRecord) error {
			ledger = record
			return nil
		},
		UpdatePipelineRunFunc: func(ctx context.Context, userID, id string, data map[string]interface{}) error {
			runUpdate = data
			return nil
		},
		IncrementSyncCountFunc: func(ctx context.Context, userID string) error {
			synced = true
			return nil
		},
	}
	dest := &stubDestination{name: "mock"}
	u := New(db, &mocks.MockBlobStore{}, dest, types.DestinationMock)

	out, err := u.Process(context.Background(), slog.Default(), testEvent(), "run-1")
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if out["status"] != "SUCCESS" || out["mode"] != "CREATE" {
		t.Errorf("unexpected output: %v", out)
	}
	if ledger == nil {
		t.Fatal("ledger row not written")
	}
	if ledger.Id != types.UploadedActivityID(types.DestinationMock, "ext-1") {
		t.Errorf("unexpected ledger id: %q", ledger.Id)
	}
	if ledger.SourceId != "EXT-SRC" {
		t.Errorf("ledger must carry the source external id: %q", ledger.SourceId)
	}
	if !synced {
		t.Error("sync count not incremented")
	}
	if runUpdate == nil {
		t.Fatal("pipeline run not updated")
	}
	if runUpdate["status"] != string(types.PipelineRunSuccess) {
		t.Errorf("run status: %v", runUpdate["status"])
	}
}

func TestProcess_UpdateModeOnResume(t *testing.T) {
	var updatedPrior *types.UploadedActivityRecord
	created := false

	db := &mocks.MockDatabase{
		GetUserFunc: func(ctx context.Context, id string) (*types.UserRecord, error) {
			return &types.UserRecord{Id: id}, nil
		},
		GetPipelineRunByActivityIdFunc: func(ctx context.Context, userID, activityID string) (*types.PipelineRun, error) {
			return testRun(types.DestinationStatusSuccess, "prior-99"), nil
		},
		GetPipelineRunFunc: func(ctx context.Context, userID, id string) (*types.PipelineRun, error) {
			return testRun(types.DestinationStatusPending, ""), nil
		},
		GetUploadedActivityFunc: func(ctx context.Context, userID string, d types.Destination, destinationID string) (*types.UploadedActivityRecord, error) {
			return &types.UploadedActivityRecord{Id: types.UploadedActivityID(d, destinationID), DestinationId: destinationID}, nil
		},
	}
	dest := &stubDestination{
		name: "mock",
		createFunc: func(ctx context.Context, payload *types.EnrichedActivity, user *types.UserRecord) (string, error) {
			created = true
			return "should-not-happen", nil
		},
		updateFunc: func(ctx context.Context, payload *types.EnrichedActivity, user *types.UserRecord, prior *types.UploadedActivityRecord) error {
			updatedPrior = prior
			return nil
		},
	}
	u := New(db, &mocks.MockBlobStore{}, dest, types.DestinationMock)

	event := testEvent()
	event.UseUpdateMethod = true

	out, err := u.Process(context.Background(), slog.Default(), event, "run-1")
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if created {
		t.Error("resume must not create a duplicate")
	}
	if out["mode"] != "UPDATE" || out["external_id"] != "prior-99" {
		t.Errorf("unexpected output: %v", out)
	}
	if updatedPrior == nil || updatedPrior.DestinationId != "prior-99" {
		t.Errorf("prior record not passed to adapter: %+v", updatedPrior)
	}
}

func TestProcess_LedgerHitForcesUpdateWithoutResumeFlag(t *testing.T) {
	created := false
	updated := false

	db := &mocks.MockDatabase{
		GetUserFunc: func(ctx context.Context, id string) (*types.UserRecord, error) {
			return &types.UserRecord{Id: id}, nil
		},
		GetPipelineRunByActivityIdFunc: func(ctx context.Context, userID, activityID string) (*types.PipelineRun, error) {
			return testRun(types.DestinationStatusSuccess, "prior-99"), nil
		},
		GetPipelineRunFunc: func(ctx context.Context, userID, id string) (*types.PipelineRun, error) {
			return testRun(types.DestinationStatusPending, ""), nil
		},
		GetUploadedActivityFunc: func(ctx context.Context, userID string, d types.Destination, destinationID string) (*types.UploadedActivityRecord, error) {
			return &types.UploadedActivityRecord{DestinationId: destinationID}, nil
		},
	}
	dest := &stubDestination{
		name: "mock",
		createFunc: func(ctx context.Context, payload *types.EnrichedActivity, user *types.UserRecord) (string, error) {
			created = true
			return "dup", nil
		},
		updateFunc: func(ctx context.Context, payload *types.EnrichedActivity, user *types.UserRecord, prior *types.UploadedActivityRecord) error {
			updated = true
			return nil
		},
	}
	u := New(db, &mocks.MockBlobStore{}, dest, types.DestinationMock)

	if _, err := u.Process(context.Background(), slog.Default(), testEvent(), "run-1"); err != nil {
		t.Fatalf("Process: %v", err)
	}
	if created || !updated {
		t.Errorf("redelivery must update, not re-create (created=%v updated=%v)", created, updated)
	}
}

func TestProcess_CreateFailureMarksDestinationFailed(t *testing.T) {
	var failedOutcome *types.DestinationOutcome

	db := &mocks.MockDatabase{
		GetUserFunc: func(ctx context.Context, id string) (*types.UserRecord, error) {
			return &types.UserRecord{Id: id}, nil
		},
		GetPipelineRunFunc: func(ctx context.Context, userID, id string) (*types.PipelineRun, error) {
			return testRun(types.DestinationStatusPending, ""), nil
		},
		UpdatePipelineRunFunc: func(ctx context.Context, userID, id string, data map[string]interface{}) error {
			if dests, ok := data["destinations"].([]*types.DestinationOutcome); ok && len(dests) > 0 {
				failedOutcome = dests[0]
			}
			return nil
		},
	}
	dest := &stubDestination{
		name: "mock",
		createFunc: func(ctx context.Context, payload *types.EnrichedActivity, user *types.UserRecord) (string, error) {
			return "", errors.New("api error: status 500")
		},
	}
	u := New(db, &mocks.MockBlobStore{}, dest, types.DestinationMock)

	if _, err := u.Process(context.Background(), slog.Default(), testEvent(), "run-1"); err == nil {
		t.Fatal("create failure must propagate for redelivery")
	}
	if failedOutcome == nil || failedOutcome.Status != types.DestinationStatusFailed {
		t.Errorf("destination not marked failed: %+v", failedOutcome)
	}
	if failedOutcome.Error == "" {
		t.Error("failure reason not recorded")
	}
}

func TestProcess_UserLookupFailure(t *testing.T) {
	db := &mocks.MockDatabase{
		GetUserFunc: func(ctx context.Context, id string) (*types.UserRecord, error) {
			return nil, errors.New("firestore down")
		},
	}
	u := New(db, &mocks.MockBlobStore{}, &stubDestination{name: "mock"}, types.DestinationMock)

	if _, err := u.Process(context.Background(), slog.Default(), testEvent(), "run-1"); err == nil {
		t.Fatal("user lookup failure must propagate")
	}
}

func TestProcess_StaleCountersResetBeforeIncrement(t *testing.T) {
	var calls []string

	db := &mocks.MockDatabase{
		GetUserFunc: func(ctx context.Context, id string) (*types.UserRecord, error) {
			return &types.UserRecord{Id: id, SyncCountMonth: "2020-01", SyncCountThisMonth: 25}, nil
		},
		GetPipelineRunFunc: func(ctx context.Context, userID, id string) (*types.PipelineRun, error) {
			return testRun(types.DestinationStatusPending, ""), nil
		},
		ResetSyncCountsFunc: func(ctx context.Context, userID, month string) error {
			calls = append(calls, "reset:"+month)
			return nil
		},
		IncrementSyncCountFunc: func(ctx context.Context, userID string) error {
			calls = append(calls, "increment")
			return nil
		},
	}
	u := New(db, &mocks.MockBlobStore{}, &stubDestination{name: "mock"}, types.DestinationMock)

	if _, err := u.Process(context.Background(), slog.Default(), testEvent(), "run-1"); err != nil {
		t.Fatalf("Process: %v", err)
	}
	if len(calls) != 2 || calls[1] != "increment" {
		t.Errorf("expected reset then increment, got %v", calls)
	}
}
