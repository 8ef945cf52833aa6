// Package mockuploader implements the mock destination. It performs no real
// network upload; the adapter fabricates an external id so the full upload
// flow (ledger write, run status, sync counting) can be exercised end to end
// in tests and smoke environments.
package mockuploader

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/GoogleCloudPlatform/functions-framework-go/functions"
	"github.com/cloudevents/sdk-go/v2/event"

	"github.com/pulsesync/server/pkg/bootstrap"
	"github.com/pulsesync/server/pkg/framework"
	"github.com/pulsesync/server/pkg/types"
	"github.com/pulsesync/server/pkg/uploader"
)

var (
	svc     *bootstrap.Service
	svcOnce sync.Once
	svcErr  error
)

func init() {
	functions.CloudEvent("MockUpload", MockUpload)
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

// MockUpload is the entry point
func MockUpload(ctx context.Context, e event.Event) error {
	svc, err := initService(ctx)
	if err != nil {
		return fmt.Errorf("service init failed: %v", err)
	}
	return framework.WrapCloudEvent("mock-uploader", svc, uploadHandler)(ctx, e)
}

func uploadHandler(ctx context.Context, e event.Event, fwCtx *framework.FrameworkContext) (interface{}, error) {
	var msg types.PubSubMessage
	if err := e.DataAs(&msg); err != nil {
		return nil, fmt.Errorf("event.DataAs: %v", err)
	}

	var enriched types.EnrichedActivity
	if err := json.Unmarshal(msg.Message.Data, &enriched); err != nil {
		return nil, fmt.Errorf("unmarshal enriched event: %w", err)
	}

	up := uploader.New(fwCtx.Service.DB, fwCtx.Service.Store, &mockDestination{}, types.DestinationMock)
	return up.Process(ctx, fwCtx.Logger, &enriched, enriched.PipelineExecutionId)
}

// mockDestination accepts every activity and answers with a deterministic
// external id derived from the activity id.
type mockDestination struct{}

func (m *mockDestination) Name() string { return "mock" }

func (m *mockDestination) Create(ctx context.Context, payload *types.EnrichedActivity, user *types.UserRecord) (string, error) {
	return "mock-" + payload.ActivityId, nil
}

func (m *mockDestination) Update(ctx context.Context, payload *types.EnrichedActivity, user *types.UserRecord, prior *types.UploadedActivityRecord) error {
	return nil
}
