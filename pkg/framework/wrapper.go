package framework

import (
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/cloudevents/sdk-go/v2/event"

	"github.com/pulsesync/server/pkg/bootstrap"
	"github.com/pulsesync/server/pkg/execution"
	infrasentry "github.com/pulsesync/server/pkg/infrastructure/sentry"
	"github.com/pulsesync/server/pkg/types"
)

// FrameworkContext contains dependencies injected by the framework
type FrameworkContext struct {
	Service     *bootstrap.Service
	Logger      *slog.Logger
	ExecutionID string
}

// HandlerFunc is the signature for a cloud function handler
type HandlerFunc func(ctx context.Context, e event.Event, fwCtx *FrameworkContext) (interface{}, error)

// knownStatuses maps loose custom status strings from handler outputs to
// execution statuses. Handlers may return either the full form
// ("STATUS_LAGGED_RETRY") or the short one ("lagged_retry").
var knownStatuses = map[string]types.ExecutionStatus{
	string(types.StatusPending):     types.StatusPending,
	string(types.StatusStarted):     types.StatusStarted,
	string(types.StatusSuccess):     types.StatusSuccess,
	string(types.StatusFailed):      types.StatusFailed,
	string(types.StatusSkipped):     types.StatusSkipped,
	string(types.StatusWaiting):     types.StatusWaiting,
	string(types.StatusLaggedRetry): types.StatusLaggedRetry,
}

// WrapCloudEvent wraps a handler with automatic execution logging.
// Handles both HTTP and Pub/Sub triggers.
func WrapCloudEvent(serviceName string, svc *bootstrap.Service, handler HandlerFunc) func(context.Context, event.Event) error {
	return func(ctx context.Context, e event.Event) error {
		meta := extractEventMetadata(e)

		triggerType := "pubsub"
		if e.Type() == "google.cloud.functions.http" {
			triggerType = "http"
		}

		logger := newHandlerLogger(serviceName)
		if meta.UserID != "" {
			logger = logger.With("user_id", meta.UserID)
		}
		if meta.PipelineExecutionID != "" {
			logger = logger.With("pipeline_execution_id", meta.PipelineExecutionID)
		}

		execID, err := execution.LogStart(ctx, svc.DB, serviceName, execution.ExecutionOptions{
			UserID:              meta.UserID,
			TestRunID:           meta.TestRunID,
			TriggerType:         triggerType,
			PipelineExecutionID: meta.PipelineExecutionID,
		})
		if err != nil {
			// Don't fail the function just because audit logging failed.
			logger.Error("Failed to log execution start", "error", err)
		}

		logger = logger.With("execution_id", execID)
		logger.Info("Function started")

		fwCtx := &FrameworkContext{
			Service:     svc,
			Logger:      logger,
			ExecutionID: execID,
		}

		outputs, handlerErr := handler(ctx, e, fwCtx)

		if handlerErr != nil {
			logger.Error("Function failed", "error", handlerErr)
			infrasentry.CaptureException(handlerErr, map[string]interface{}{
				"service":      serviceName,
				"execution_id": execID,
				"user_id":      meta.UserID,
			}, logger)
			infrasentry.Flush(2 * time.Second)
			if logErr := execution.LogFailure(ctx, svc.DB, execID, handlerErr, outputs); logErr != nil {
				logger.Warn("Failed to log execution failure", "error", logErr)
			}
			// Returning the error NACKs the message so Pub/Sub redelivers.
			return handlerErr
		}

		logger.Info("Function completed successfully")

		// Handlers can override the terminal status through a "status" key in
		// their outputs map (skipped, waiting, lagged_retry).
		customStatus := ""
		if outputsMap, ok := outputs.(map[string]interface{}); ok {
			if s, ok := outputsMap["status"].(string); ok {
				customStatus = s
			}
		}

		if customStatus != "" {
			statusEnum, ok := knownStatuses[customStatus]
			if !ok {
				statusEnum, ok = knownStatuses["STATUS_"+strings.ToUpper(customStatus)]
			}
			if !ok {
				statusEnum = types.StatusUnknown
				logger.Warn("Unknown custom status returned", "status", customStatus)
			}
			if logErr := execution.LogExecutionStatus(ctx, svc.DB, execID, statusEnum, outputs); logErr != nil {
				logger.Warn("Failed to log execution status", "error", logErr)
			}
		} else {
			if logErr := execution.LogSuccess(ctx, svc.DB, execID, outputs); logErr != nil {
				logger.Warn("Failed to log execution success", "error", logErr)
			}
		}

		return nil
	}
}

func newHandlerLogger(serviceName string) *slog.Logger {
	logLevelStr := strings.ToLower(os.Getenv("LOG_LEVEL"))
	var logLevel slog.Level
	switch logLevelStr {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}

	opts := bootstrap.GetSlogHandlerOptions(logLevel)
	return slog.New(slog.NewJSONHandler(os.Stdout, opts)).With("service", serviceName)
}

type eventMetadata struct {
	UserID              string
	TestRunID           string
	PipelineExecutionID string
}

// extractEventMetadata pulls user_id, test_run_id, and pipeline_execution_id
// out of the event. Handles both Pub/Sub messages and HTTP requests.
func extractEventMetadata(e event.Event) eventMetadata {
	var meta eventMetadata

	var msg types.PubSubMessage
	if err := e.DataAs(&msg); err == nil {
		var payload map[string]interface{}
		if err := json.Unmarshal(msg.Message.Data, &payload); err == nil {
			if uid, ok := payload["user_id"].(string); ok {
				meta.UserID = uid
			}
			if pid, ok := payload["pipeline_execution_id"].(string); ok {
				meta.PipelineExecutionID = pid
			}
		}

		if msg.Message.Attributes != nil {
			if trid, ok := msg.Message.Attributes["test_run_id"]; ok {
				meta.TestRunID = trid
			}
		}
	}

	// For HTTP requests, check CloudEvent extensions
	// (HTTP headers are mapped to extensions by Functions Framework)
	if meta.TestRunID == "" {
		extensions := e.Extensions()
		if trid, ok := extensions["test_run_id"].(string); ok {
			meta.TestRunID = trid
		}
		if trid, ok := extensions["testrunid"].(string); ok {
			meta.TestRunID = trid
		}
	}

	return meta
}
