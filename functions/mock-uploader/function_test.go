package mockuploader

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/cloudevents/sdk-go/v2/event"

	"github.com/pulsesync/server/pkg/bootstrap"
	"github.com/pulsesync/server/pkg/testing/mocks"
	"github.com/pulsesync/server/pkg/types"
)

func enrichedEvent() *types.EnrichedActivity {
	return &types.EnrichedActivity{
		UserId:              "user-1",
		Source:              types.SourceHevy,
		ActivityId:          "act-1",
		PipelineId:          "pipe-1",
		PipelineExecutionId: "run-1",
		Name:                "Evening Lift",
		ActivityType:        types.ActivityTypeWeightTraining,
		Destinations:        []types.Destination{types.DestinationMock},
		ActivityData: &types.StandardizedActivity{
			Name:       "Evening Lift",
			Source:     types.SourceHevy,
			ExternalId: "EXT-1",
		},
	}
}

func newTestEvent(t *testing.T, enriched *types.EnrichedActivity) event.Event {
	t.Helper()
	data, err := json.Marshal(enriched)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	var msg types.PubSubMessage
	msg.Message.MessageID = "msg-1"
	msg.Message.Data = data

	e := event.New()
	e.SetID("event-1")
	e.SetType("google.cloud.pubsub.topic.v1.messagePublished")
	e.SetSource("//pubsub")
	if err := e.SetData(event.ApplicationJSON, msg); err != nil {
		t.Fatalf("set event data: %v", err)
	}
	return e
}

func injectService(db *mocks.MockDatabase) {
	svc = &bootstrap.Service{
		DB:     db,
		Pub:    &mocks.MockPublisher{},
		Store:  &mocks.MockBlobStore{},
		Notify: &mocks.MockNotificationService{},
		Config: &bootstrap.Config{ProjectID: "test-project"},
	}
}

func TestMockUpload_RecordsLedgerAndRunStatus(t *testing.T) {
	var ledger *types.UploadedActivityRecord
	var destUpdate []*types.DestinationOutcome

	db := &mocks.MockDatabase{
		GetUserFunc: func(ctx context.Context, id string) (*types.UserRecord, error) {
			return &types.UserRecord{Id: id, Tier: types.UserTierAthlete}, nil
		},
		SetUploadedActivityFunc: func(ctx context.Context, userID string, record *types.UploadedActivityRecord) error {
			ledger = record
			return nil
		},
		GetPipelineRunFunc: func(ctx context.Context, userID, id string) (*types.PipelineRun, error) {
			return &types.PipelineRun{
				Id:     id,
				UserId: userID,
				Status: types.PipelineRunRunning,
				Destinations: []*types.DestinationOutcome{
					{Destination: types.DestinationMock, Status: types.DestinationStatusPending},
				},
			}, nil
		},
		UpdatePipelineRunFunc: func(ctx context.Context, userID, id string, data map[string]interface{}) error {
			if dests, ok := data["destinations"].([]*types.DestinationOutcome); ok {
				destUpdate = dests
			}
			return nil
		},
	}
	injectService(db)

	if err := MockUpload(context.Background(), newTestEvent(t, enrichedEvent())); err != nil {
		t.Fatalf("MockUpload: %v", err)
	}

	if ledger == nil {
		t.Fatal("upload not recorded in ledger")
	}
	if ledger.DestinationId != "mock-act-1" {
		t.Errorf("unexpected external id: %q", ledger.DestinationId)
	}
	if ledger.SourceId != "EXT-1" {
		t.Errorf("source external id not recorded: %q", ledger.SourceId)
	}

	if len(destUpdate) != 1 || destUpdate[0].Status != types.DestinationStatusSuccess {
		t.Fatalf("destination outcome not marked SUCCESS: %+v", destUpdate)
	}
	if destUpdate[0].ExternalId != "mock-act-1" {
		t.Errorf("external id not stored on outcome: %q", destUpdate[0].ExternalId)
	}
}

func TestMockUpload_UserLookupFailureNacks(t *testing.T) {
	injectService(&mocks.MockDatabase{}) // GetUser defaults to an error

	if err := MockUpload(context.Background(), newTestEvent(t, enrichedEvent())); err == nil {
		t.Fatal("user lookup failure must propagate")
	}
}
