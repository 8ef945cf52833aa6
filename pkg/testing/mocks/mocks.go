package mocks

import (
	"context"
	"fmt"

	"github.com/cloudevents/sdk-go/v2/event"

	"github.com/pulsesync/server/pkg/types"
)

// --- Mock Database ---

// MockDatabase implements shared.Database with overridable function fields.
// Unset funcs return benign zero values so tests only stub what they assert on.
type MockDatabase struct {
	SetExecutionFunc    func(ctx context.Context, record *types.ExecutionRecord) error
	UpdateExecutionFunc func(ctx context.Context, id string, data map[string]interface{}) error
	GetUserFunc         func(ctx context.Context, id string) (*types.UserRecord, error)
	UpdateUserFunc      func(ctx context.Context, id string, data map[string]interface{}) error

	IncrementSyncCountFunc          func(ctx context.Context, userID string) error
	IncrementPreventedSyncCountFunc func(ctx context.Context, userID string) error
	ResetSyncCountsFunc             func(ctx context.Context, userID string, month string) error

	GetPendingInputFunc         func(ctx context.Context, userID string, id string) (*types.PendingInput, error)
	SetPendingInputFunc         func(ctx context.Context, input *types.PendingInput) error
	UpdatePendingInputFunc      func(ctx context.Context, userID string, id string, data map[string]interface{}) error
	ClaimPendingInputFunc       func(ctx context.Context, userID string, id string, from, to types.PendingInputStatus) (bool, error)
	ListWaitingPendingInputFunc func(ctx context.Context) ([]*types.PendingInput, error)

	GetCounterFunc func(ctx context.Context, userID string, id string) (*types.Counter, error)
	SetCounterFunc func(ctx context.Context, userID string, counter *types.Counter) error

	GetUserPipelinesFunc func(ctx context.Context, userID string) ([]*types.PipelineConfig, error)

	GetPipelineRunFunc             func(ctx context.Context, userID string, id string) (*types.PipelineRun, error)
	GetPipelineRunByActivityIdFunc func(ctx context.Context, userID string, activityID string) (*types.PipelineRun, error)
	CreatePipelineRunIfAbsentFunc func(ctx context.Context, run *types.PipelineRun) (bool, error)
	UpdatePipelineRunFunc         func(ctx context.Context, userID string, id string, data map[string]interface{}) error
	MutatePipelineRunFunc         func(ctx context.Context, userID string, id string, mutate func(run *types.PipelineRun) map[string]interface{}) error

	SetUploadedActivityFunc func(ctx context.Context, userID string, record *types.UploadedActivityRecord) error
	GetUploadedActivityFunc func(ctx context.Context, userID string, destination types.Destination, destinationID string) (*types.UploadedActivityRecord, error)
}

func (m *MockDatabase) SetExecution(ctx context.Context, record *types.ExecutionRecord) error {
	if m.SetExecutionFunc != nil {
		return m.SetExecutionFunc(ctx, record)
	}
	return nil
}

func (m *MockDatabase) UpdateExecution(ctx context.Context, id string, data map[string]interface{}) error {
	if m.UpdateExecutionFunc != nil {
		return m.UpdateExecutionFunc(ctx, id, data)
	}
	return nil
}

func (m *MockDatabase) GetUser(ctx context.Context, id string) (*types.UserRecord, error) {
	if m.GetUserFunc != nil {
		return m.GetUserFunc(ctx, id)
	}
	return nil, fmt.Errorf("user not found")
}

func (m *MockDatabase) UpdateUser(ctx context.Context, id string, data map[string]interface{}) error {
	if m.UpdateUserFunc != nil {
		return m.UpdateUserFunc(ctx, id, data)
	}
	return nil
}

func (m *MockDatabase) IncrementSyncCount(ctx context.Context, userID string) error {
	if m.IncrementSyncCountFunc != nil {
		return m.IncrementSyncCountFunc(ctx, userID)
	}
	return nil
}

func (m *MockDatabase) IncrementPreventedSyncCount(ctx context.Context, userID string) error {
	if m.IncrementPreventedSyncCountFunc != nil {
		return m.IncrementPreventedSyncCountFunc(ctx, userID)
	}
	return nil
}

func (m *MockDatabase) ResetSyncCounts(ctx context.Context, userID string, month string) error {
	if m.ResetSyncCountsFunc != nil {
		return m.ResetSyncCountsFunc(ctx, userID, month)
	}
	return nil
}

func (m *MockDatabase) GetPendingInput(ctx context.Context, userID string, id string) (*types.PendingInput, error) {
	if m.GetPendingInputFunc != nil {
		return m.GetPendingInputFunc(ctx, userID, id)
	}
	return nil, nil
}

func (m *MockDatabase) SetPendingInput(ctx context.Context, input *types.PendingInput) error {
	if m.SetPendingInputFunc != nil {
		return m.SetPendingInputFunc(ctx, input)
	}
	return nil
}

func (m *MockDatabase) UpdatePendingInput(ctx context.Context, userID string, id string, data map[string]interface{}) error {
	if m.UpdatePendingInputFunc != nil {
		return m.UpdatePendingInputFunc(ctx, userID, id, data)
	}
	return nil
}

func (m *MockDatabase) ClaimPendingInput(ctx context.Context, userID string, id string, from, to types.PendingInputStatus) (bool, error) {
	if m.ClaimPendingInputFunc != nil {
		return m.ClaimPendingInputFunc(ctx, userID, id, from, to)
	}
	return true, nil
}

func (m *MockDatabase) ListWaitingPendingInputs(ctx context.Context) ([]*types.PendingInput, error) {
	if m.ListWaitingPendingInputFunc != nil {
		return m.ListWaitingPendingInputFunc(ctx)
	}
	return nil, nil
}

func (m *MockDatabase) GetCounter(ctx context.Context, userID string, id string) (*types.Counter, error) {
	if m.GetCounterFunc != nil {
		return m.GetCounterFunc(ctx, userID, id)
	}
	return nil, nil
}

func (m *MockDatabase) SetCounter(ctx context.Context, userID string, counter *types.Counter) error {
	if m.SetCounterFunc != nil {
		return m.SetCounterFunc(ctx, userID, counter)
	}
	return nil
}

func (m *MockDatabase) GetUserPipelines(ctx context.Context, userID string) ([]*types.PipelineConfig, error) {
	if m.GetUserPipelinesFunc != nil {
		return m.GetUserPipelinesFunc(ctx, userID)
	}
	return []*types.PipelineConfig{}, nil
}

func (m *MockDatabase) GetPipelineRun(ctx context.Context, userID string, id string) (*types.PipelineRun, error) {
	if m.GetPipelineRunFunc != nil {
		return m.GetPipelineRunFunc(ctx, userID, id)
	}
	return nil, nil
}

func (m *MockDatabase) GetPipelineRunByActivityId(ctx context.Context, userID string, activityID string) (*types.PipelineRun, error) {
	if m.GetPipelineRunByActivityIdFunc != nil {
		return m.GetPipelineRunByActivityIdFunc(ctx, userID, activityID)
	}
	return nil, nil
}

func (m *MockDatabase) CreatePipelineRunIfAbsent(ctx context.Context, run *types.PipelineRun) (bool, error) {
	if m.CreatePipelineRunIfAbsentFunc != nil {
		return m.CreatePipelineRunIfAbsentFunc(ctx, run)
	}
	return true, nil
}

func (m *MockDatabase) UpdatePipelineRun(ctx context.Context, userID string, id string, data map[string]interface{}) error {
	if m.UpdatePipelineRunFunc != nil {
		return m.UpdatePipelineRunFunc(ctx, userID, id, data)
	}
	return nil
}

// MutatePipelineRun defaults to read-mutate-write through the other stubbed
// funcs, mirroring the transactional adapter against the mock's state.
func (m *MockDatabase) MutatePipelineRun(ctx context.Context, userID string, id string, mutate func(run *types.PipelineRun) map[string]interface{}) error {
	if m.MutatePipelineRunFunc != nil {
		return m.MutatePipelineRunFunc(ctx, userID, id, mutate)
	}
	run, err := m.GetPipelineRun(ctx, userID, id)
	if err != nil {
		return err
	}
	if run == nil {
		return fmt.Errorf("pipeline run %s not found", id)
	}
	data := mutate(run)
	if data == nil {
		return nil
	}
	return m.UpdatePipelineRun(ctx, userID, id, data)
}

func (m *MockDatabase) SetUploadedActivity(ctx context.Context, userID string, record *types.UploadedActivityRecord) error {
	if m.SetUploadedActivityFunc != nil {
		return m.SetUploadedActivityFunc(ctx, userID, record)
	}
	return nil
}

func (m *MockDatabase) GetUploadedActivity(ctx context.Context, userID string, destination types.Destination, destinationID string) (*types.UploadedActivityRecord, error) {
	if m.GetUploadedActivityFunc != nil {
		return m.GetUploadedActivityFunc(ctx, userID, destination, destinationID)
	}
	return nil, nil
}

// --- Mock Publisher ---

type MockPublisher struct {
	PublishFunc           func(ctx context.Context, topic string, data []byte) (string, error)
	PublishWithAttrsFunc  func(ctx context.Context, topic string, data []byte, attrs map[string]string) (string, error)
	PublishCloudEventFunc func(ctx context.Context, topic string, e event.Event) (string, error)
}

func (m *MockPublisher) Publish(ctx context.Context, topic string, data []byte) (string, error) {
	if m.PublishFunc != nil {
		return m.PublishFunc(ctx, topic, data)
	}
	return "msg-id", nil
}

func (m *MockPublisher) PublishWithAttrs(ctx context.Context, topic string, data []byte, attrs map[string]string) (string, error) {
	if m.PublishWithAttrsFunc != nil {
		return m.PublishWithAttrsFunc(ctx, topic, data, attrs)
	}
	return "msg-id", nil
}

func (m *MockPublisher) PublishCloudEvent(ctx context.Context, topic string, e event.Event) (string, error) {
	if m.PublishCloudEventFunc != nil {
		return m.PublishCloudEventFunc(ctx, topic, e)
	}
	return "msg-id", nil
}

// --- Mock Storage ---

type MockBlobStore struct {
	WriteFunc func(ctx context.Context, bucket, object string, data []byte) error
	ReadFunc  func(ctx context.Context, bucket, object string) ([]byte, error)
}

func (m *MockBlobStore) Write(ctx context.Context, bucket, object string, data []byte) error {
	if m.WriteFunc != nil {
		return m.WriteFunc(ctx, bucket, object, data)
	}
	return nil
}

func (m *MockBlobStore) Read(ctx context.Context, bucket, object string) ([]byte, error) {
	if m.ReadFunc != nil {
		return m.ReadFunc(ctx, bucket, object)
	}
	return []byte("mock-data"), nil
}

// --- Mock Notifications ---

type MockNotificationService struct {
	SendPushNotificationFunc func(ctx context.Context, userID string, title, body string, tokens []string, data map[string]string) error
}

func (m *MockNotificationService) SendPushNotification(ctx context.Context, userID string, title, body string, tokens []string, data map[string]string) error {
	if m.SendPushNotificationFunc != nil {
		return m.SendPushNotificationFunc(ctx, userID, title, body, tokens, data)
	}
	return nil
}
