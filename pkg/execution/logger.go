package execution

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/pulsesync/server/pkg/types"
)

// Database interface for Firestore operations
type Database interface {
	SetExecution(ctx context.Context, record *types.ExecutionRecord) error
	UpdateExecution(ctx context.Context, id string, data map[string]interface{}) error
}

// ExecutionOptions contains optional fields for execution logging
type ExecutionOptions struct {
	UserID              string
	TestRunID           string
	TriggerType         string
	PipelineExecutionID string
	Inputs              interface{}
}

// NewExecutionID builds a sortable id for a stage invocation.
func NewExecutionID(service string) string {
	return fmt.Sprintf("%s-%d", service, time.Now().UnixNano())
}

// LogStart creates an execution record with STARTED status and captured inputs.
func LogStart(ctx context.Context, db Database, service string, opts ExecutionOptions) (string, error) {
	execID := NewExecutionID(service)
	now := time.Now().UTC()

	record := &types.ExecutionRecord{
		Id:                  execID,
		Service:             service,
		Status:              types.StatusStarted,
		StartTime:           now,
		UserId:              opts.UserID,
		TestRunId:           opts.TestRunID,
		TriggerType:         opts.TriggerType,
		PipelineExecutionId: opts.PipelineExecutionID,
	}

	if opts.Inputs != nil {
		if inputsJSON, err := json.Marshal(opts.Inputs); err == nil {
			record.InputsJson = string(inputsJSON)
		}
	}

	if err := db.SetExecution(ctx, record); err != nil {
		return execID, fmt.Errorf("failed to log execution start: %w", err)
	}
	return execID, nil
}

// LogChildExecutionStart creates a STARTED record linked to a parent execution.
func LogChildExecutionStart(ctx context.Context, db Database, service string, parentExecutionID string, opts ExecutionOptions) (string, error) {
	execID := NewExecutionID(service)
	now := time.Now().UTC()

	record := &types.ExecutionRecord{
		Id:                  execID,
		Service:             service,
		Status:              types.StatusStarted,
		StartTime:           now,
		UserId:              opts.UserID,
		TestRunId:           opts.TestRunID,
		TriggerType:         opts.TriggerType,
		PipelineExecutionId: opts.PipelineExecutionID,
		ParentExecutionId:   parentExecutionID,
	}

	if opts.Inputs != nil {
		if inputsJSON, err := json.Marshal(opts.Inputs); err == nil {
			record.InputsJson = string(inputsJSON)
		}
	}

	if err := db.SetExecution(ctx, record); err != nil {
		return execID, fmt.Errorf("failed to log child execution start: %w", err)
	}
	return execID, nil
}

// LogSuccess updates an execution record with SUCCESS status
func LogSuccess(ctx context.Context, db Database, execID string, outputs interface{}) error {
	return LogExecutionStatus(ctx, db, execID, types.StatusSuccess, outputs)
}

// LogFailure updates an execution record with FAILED status
func LogFailure(ctx context.Context, db Database, execID string, cause error, outputs interface{}) error {
	updates := map[string]interface{}{
		"status":        string(types.StatusFailed),
		"end_time":      time.Now().UTC(),
		"error_message": cause.Error(),
	}

	if outputs != nil {
		if outputsJSON, err := json.Marshal(outputs); err == nil {
			updates["outputs_json"] = string(outputsJSON)
		}
	}

	if err := db.UpdateExecution(ctx, execID, updates); err != nil {
		return fmt.Errorf("failed to log execution failure: %w", err)
	}
	return nil
}

// LogExecutionStatus updates an execution record with a custom terminal status.
// Stages that neither succeed nor fail (waiting, lagged, skipped) land here.
func LogExecutionStatus(ctx context.Context, db Database, execID string, status types.ExecutionStatus, outputs interface{}) error {
	updates := map[string]interface{}{
		"status":   string(status),
		"end_time": time.Now().UTC(),
	}

	if outputs != nil {
		if outputsJSON, err := json.Marshal(outputs); err == nil {
			updates["outputs_json"] = string(outputsJSON)
		}
	}

	if err := db.UpdateExecution(ctx, execID, updates); err != nil {
		return fmt.Errorf("failed to log execution status %v: %w", status, err)
	}
	return nil
}
