// Package router fans an enriched activity out to the per-destination upload
// topics. Routing decisions were already made upstream; the event carries its
// own destination list.
package router

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/GoogleCloudPlatform/functions-framework-go/functions"
	"github.com/cloudevents/sdk-go/v2/event"

	shared "github.com/pulsesync/server/pkg"
	"github.com/pulsesync/server/pkg/bootstrap"
	"github.com/pulsesync/server/pkg/framework"
	"github.com/pulsesync/server/pkg/types"
)

var (
	svc     *bootstrap.Service
	svcOnce sync.Once
	svcErr  error
)

func init() {
	functions.CloudEvent("RouteActivity", RouteActivity)
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

// RouteActivity is the entry point
func RouteActivity(ctx context.Context, e event.Event) error {
	svc, err := initService(ctx)
	if err != nil {
		return fmt.Errorf("service init failed: %v", err)
	}
	return framework.WrapCloudEvent("router", svc, routeHandler)(ctx, e)
}

// DestinationTopic maps a destination to its upload topic.
func DestinationTopic(dest types.Destination) string {
	if dest == types.DestinationUnspecified {
		return ""
	}
	return shared.TopicUploadPrefix + strings.ToLower(string(dest))
}

// RoutedDestination is one fan-out result, kept in the execution output for
// debugging partial deliveries.
type RoutedDestination struct {
	Destination     string `json:"destination"`
	Topic           string `json:"topic"`
	PubSubMessageID string `json:"pubsub_message_id,omitempty"`
	Status          string `json:"status"`
	Error           string `json:"error,omitempty"`
}

func routeHandler(ctx context.Context, e event.Event, fwCtx *framework.FrameworkContext) (interface{}, error) {
	var msg types.PubSubMessage
	if err := e.DataAs(&msg); err != nil {
		return nil, fmt.Errorf("event.DataAs: %v", err)
	}

	var enriched types.EnrichedActivity
	if err := json.Unmarshal(msg.Message.Data, &enriched); err != nil {
		return nil, fmt.Errorf("unmarshal enriched event: %w", err)
	}

	logger := fwCtx.Logger
	logger.Info("Starting routing",
		"source", enriched.Source,
		"pipeline_id", enriched.PipelineId,
		"destinations", enriched.Destinations,
	)

	routed := []RoutedDestination{}
	failures := 0

	for _, dest := range enriched.Destinations {
		topic := DestinationTopic(dest)
		if topic == "" {
			logger.Warn("Unknown destination, skipping", "destination", dest)
			routed = append(routed, RoutedDestination{
				Destination: string(dest),
				Status:      "SKIPPED",
				Error:       "unknown destination",
			})
			continue
		}

		msgID, err := fwCtx.Service.Pub.Publish(ctx, topic, msg.Message.Data)
		if err != nil {
			failures++
			logger.Error("Failed to publish to upload topic", "destination", dest, "topic", topic, "error", err)
			routed = append(routed, RoutedDestination{
				Destination: string(dest),
				Topic:       topic,
				Status:      "FAILED",
				Error:       err.Error(),
			})
			continue
		}

		logger.Info("Routed to destination", "destination", dest, "topic", topic, "message_id", msgID)
		routed = append(routed, RoutedDestination{
			Destination:     string(dest),
			Topic:           topic,
			PubSubMessageID: msgID,
			Status:          "SUCCESS",
		})
	}

	storeEnrichedEventURI(ctx, fwCtx, &enriched, msg.Message.Data)

	logger.Info("Routing complete", "routed_count", len(routed), "failures", failures)

	if failures > 0 {
		// NACK so redelivery retries the failed topics; uploads that already
		// went out are deduplicated by the uploader's ledger check.
		return map[string]interface{}{
			"status":              string(types.StatusFailed),
			"routed_destinations": routed,
		}, fmt.Errorf("%d of %d destinations failed to route", failures, len(enriched.Destinations))
	}

	return map[string]interface{}{
		"status":              "SUCCESS",
		"activity_id":         enriched.ActivityId,
		"pipeline_id":         enriched.PipelineId,
		"activity_name":       enriched.Name,
		"routed_destinations": routed,
	}, nil
}

// storeEnrichedEventURI snapshots the enriched event onto the run so a
// finished run can be reposted without re-running enrichment. When the
// enricher already offloaded the event, that blob is reused; otherwise the
// router uploads the inline payload.
func storeEnrichedEventURI(ctx context.Context, fwCtx *framework.FrameworkContext, enriched *types.EnrichedActivity, raw []byte) {
	logger := fwCtx.Logger

	if enriched.UserId == "" || enriched.PipelineExecutionId == "" {
		return
	}

	uri := enriched.ActivityDataUri
	if uri == "" {
		bucket := fwCtx.Service.Config.GCSArtifactBucket
		if bucket == "" {
			logger.Debug("No artifact bucket configured, skipping enriched event snapshot")
			return
		}
		object := fmt.Sprintf("enriched/%s/%s.json", enriched.UserId, enriched.PipelineExecutionId)
		if err := fwCtx.Service.Store.Write(ctx, bucket, object, raw); err != nil {
			logger.Warn("Failed to snapshot enriched event", "error", err)
			return
		}
		uri = fmt.Sprintf("gs://%s/%s", bucket, object)
	}

	update := map[string]interface{}{
		"enriched_event_uri": uri,
		"updated_at":         time.Now().UTC(),
	}
	if err := fwCtx.Service.DB.UpdatePipelineRun(ctx, enriched.UserId, enriched.PipelineExecutionId, update); err != nil {
		logger.Warn("Failed to store enriched event uri on run", "error", err)
	}
}
