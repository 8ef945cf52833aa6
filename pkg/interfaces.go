package shared

import (
	"context"

	"github.com/cloudevents/sdk-go/v2/event"
	"github.com/pulsesync/server/pkg/types"
)

// --- Persistence Interfaces ---

type Database interface {
	SetExecution(ctx context.Context, record *types.ExecutionRecord) error
	UpdateExecution(ctx context.Context, id string, data map[string]interface{}) error
	GetUser(ctx context.Context, id string) (*types.UserRecord, error)
	UpdateUser(ctx context.Context, id string, data map[string]interface{}) error

	// Sync counters (tier limits)
	IncrementSyncCount(ctx context.Context, userID string) error
	IncrementPreventedSyncCount(ctx context.Context, userID string) error
	ResetSyncCounts(ctx context.Context, userID string, month string) error

	// Pending inputs
	GetPendingInput(ctx context.Context, userID string, id string) (*types.PendingInput, error)
	SetPendingInput(ctx context.Context, input *types.PendingInput) error
	UpdatePendingInput(ctx context.Context, userID string, id string, data map[string]interface{}) error
	// ClaimPendingInput conditionally flips status from `from` to `to`,
	// returning false when another worker got there first.
	ClaimPendingInput(ctx context.Context, userID string, id string, from, to types.PendingInputStatus) (bool, error)
	ListWaitingPendingInputs(ctx context.Context) ([]*types.PendingInput, error)

	// Counters
	GetCounter(ctx context.Context, userID string, id string) (*types.Counter, error)
	SetCounter(ctx context.Context, userID string, counter *types.Counter) error

	// Pipelines
	GetUserPipelines(ctx context.Context, userID string) ([]*types.PipelineConfig, error)

	// Pipeline runs
	GetPipelineRun(ctx context.Context, userID string, id string) (*types.PipelineRun, error)
	// GetPipelineRunByActivityId returns the newest run for an activity, used
	// by uploaders to locate the externally created copy on resume.
	GetPipelineRunByActivityId(ctx context.Context, userID string, activityID string) (*types.PipelineRun, error)
	CreatePipelineRunIfAbsent(ctx context.Context, run *types.PipelineRun) (created bool, err error)
	UpdatePipelineRun(ctx context.Context, userID string, id string, data map[string]interface{}) error
	// MutatePipelineRun reads the run and applies mutate's update inside a
	// transaction, so concurrent writers (uploaders racing on the same run)
	// always mutate the latest document. A nil return from mutate writes
	// nothing.
	MutatePipelineRun(ctx context.Context, userID string, id string, mutate func(run *types.PipelineRun) map[string]interface{}) error

	// Uploaded activities (loop-prevention ledger)
	SetUploadedActivity(ctx context.Context, userID string, record *types.UploadedActivityRecord) error
	GetUploadedActivity(ctx context.Context, userID string, destination types.Destination, destinationID string) (*types.UploadedActivityRecord, error)
}

// --- Messaging Interfaces ---

type Publisher interface {
	Publish(ctx context.Context, topic string, data []byte) (string, error)
	PublishWithAttrs(ctx context.Context, topic string, data []byte, attrs map[string]string) (string, error)
	PublishCloudEvent(ctx context.Context, topic string, e event.Event) (string, error)
}

// --- Storage Interfaces ---

type BlobStore interface {
	Write(ctx context.Context, bucket, object string, data []byte) error
	Read(ctx context.Context, bucket, object string) ([]byte, error)
}

// --- Notification Interfaces ---

type NotificationService interface {
	SendPushNotification(ctx context.Context, userID string, title, body string, tokens []string, data map[string]string) error
}
