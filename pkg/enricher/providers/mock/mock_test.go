package mock

import (
	"context"
	"errors"
	"log/slog"
	"testing"

	"github.com/pulsesync/server/pkg/enricher"
	"github.com/pulsesync/server/pkg/types"
)

func enrich(t *testing.T, inputs map[string]string, doNotRetry bool) (*enricher.EnrichmentResult, error) {
	t.Helper()
	p := New()
	return p.Enrich(context.Background(), slog.Default(), &types.StandardizedActivity{}, &types.UserRecord{}, inputs, doNotRetry)
}

func TestEnrich_SuccessDefault(t *testing.T) {
	res, err := enrich(t, map[string]string{}, false)
	if err != nil {
		t.Fatalf("Enrich: %v", err)
	}
	if res.Name != "Mock Activity" {
		t.Errorf("unexpected name: %s", res.Name)
	}
	if res.Description == "" {
		t.Error("expected a default description")
	}
}

func TestEnrich_SuccessOverrides(t *testing.T) {
	res, err := enrich(t, map[string]string{"behavior": "success", "name": "Custom", "description": "Body"}, false)
	if err != nil {
		t.Fatalf("Enrich: %v", err)
	}
	if res.Name != "Custom" || res.Description != "Body" {
		t.Errorf("overrides not applied: %+v", res)
	}
}

func TestEnrich_Lag(t *testing.T) {
	_, err := enrich(t, map[string]string{"behavior": "lag"}, false)
	var retryErr *enricher.RetryableError
	if !errors.As(err, &retryErr) {
		t.Fatalf("expected RetryableError, got %v", err)
	}
	if retryErr.RetryAfter <= 0 {
		t.Error("retry_after must be positive")
	}
}

func TestEnrich_LagExhausted(t *testing.T) {
	res, err := enrich(t, map[string]string{"behavior": "lag"}, true)
	if err != nil {
		t.Fatalf("doNotRetry must force success, got %v", err)
	}
	if res.Metadata["lag_exhausted"] != "true" {
		t.Errorf("expected lag_exhausted metadata: %v", res.Metadata)
	}
}

func TestEnrich_Halt(t *testing.T) {
	res, err := enrich(t, map[string]string{"behavior": "halt", "halt_reason": "filtered"}, false)
	if err != nil {
		t.Fatalf("Enrich: %v", err)
	}
	if !res.HaltPipeline || res.HaltReason != "filtered" {
		t.Errorf("expected halt: %+v", res)
	}
}

func TestEnrich_FailAndUnknown(t *testing.T) {
	if _, err := enrich(t, map[string]string{"behavior": "fail", "error_message": "boom"}, false); err == nil || err.Error() != "boom" {
		t.Errorf("expected hard failure, got %v", err)
	}
	if _, err := enrich(t, map[string]string{"behavior": "nope"}, false); err == nil {
		t.Error("unknown behavior must fail")
	}
}
