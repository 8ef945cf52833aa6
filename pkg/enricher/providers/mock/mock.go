// Package mock provides a configurable enricher for exercising the full
// pipeline without external dependencies.
package mock

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/pulsesync/server/pkg/enricher"
	"github.com/pulsesync/server/pkg/types"
)

// Provider simulates different enricher behaviors based on the "behavior"
// input:
//   - "success": returns success with optional name/description
//   - "lag": returns a RetryableError to trigger LAG_RETRY
//   - "halt": halts the pipeline
//   - "fail": returns a hard error
type Provider struct{}

func New() *Provider {
	return &Provider{}
}

func (p *Provider) Name() string {
	return "mock"
}

func (p *Provider) ProviderType() types.EnricherProviderType {
	return types.EnricherProviderMock
}

func (p *Provider) Enrich(ctx context.Context, logger *slog.Logger, activity *types.StandardizedActivity, user *types.UserRecord, inputs map[string]string, doNotRetry bool) (*enricher.EnrichmentResult, error) {
	behavior := inputs["behavior"]
	if behavior == "" {
		behavior = "success"
	}

	switch behavior {
	case "success":
		return p.handleSuccess(inputs)
	case "lag":
		return p.handleLag(doNotRetry)
	case "halt":
		reason := inputs["halt_reason"]
		if reason == "" {
			reason = "mock halt"
		}
		return &enricher.EnrichmentResult{HaltPipeline: true, HaltReason: reason}, nil
	case "fail":
		message := inputs["error_message"]
		if message == "" {
			message = "mock provider hard failure"
		}
		return nil, fmt.Errorf("%s", message)
	default:
		return nil, fmt.Errorf("unknown mock behavior: %s", behavior)
	}
}

func (p *Provider) handleSuccess(inputs map[string]string) (*enricher.EnrichmentResult, error) {
	result := &enricher.EnrichmentResult{
		Name:        inputs["name"],
		Description: inputs["description"],
		Metadata: map[string]string{
			"mock_provider": "true",
			"behavior":      "success",
		},
	}
	if result.Name == "" {
		result.Name = "Mock Activity"
	}
	if result.Description == "" {
		result.Description = "This activity was enriched by the mock provider"
	}
	return result, nil
}

func (p *Provider) handleLag(doNotRetry bool) (*enricher.EnrichmentResult, error) {
	// Lag exhausted: succeed with what we have instead of looping forever.
	if doNotRetry {
		return &enricher.EnrichmentResult{
			Name:        "Mock Activity (Lag Exhausted)",
			Description: "This activity was enriched after lag retry was exhausted",
			Metadata: map[string]string{
				"mock_provider":  "true",
				"behavior":       "lag",
				"lag_exhausted":  "true",
				"forced_success": "true",
			},
		}, nil
	}

	return nil, enricher.NewRetryableError(
		fmt.Errorf("mock provider simulating incomplete data"),
		1*time.Minute,
		"mock lag delay",
	)
}
