// Package branding appends the product footer to activity descriptions.
package branding

import (
	"context"
	"log/slog"

	"github.com/pulsesync/server/pkg/enricher"
	"github.com/pulsesync/server/pkg/types"
)

// SectionHeader keys the footer so re-runs replace it instead of stacking.
const SectionHeader = "Posted via"

type Provider struct{}

func New() *Provider {
	return &Provider{}
}

func (p *Provider) Name() string {
	return "branding"
}

func (p *Provider) ProviderType() types.EnricherProviderType {
	return types.EnricherProviderBranding
}

func (p *Provider) Enrich(ctx context.Context, logger *slog.Logger, activity *types.StandardizedActivity, user *types.UserRecord, inputs map[string]string, doNotRetry bool) (*enricher.EnrichmentResult, error) {
	message := inputs["message"]
	if message == "" {
		message = "Posted via PulseSync 💪"
	}

	logger.Debug("branding: applying footer",
		"message", message,
		"custom", inputs["message"] != "",
	)

	return &enricher.EnrichmentResult{
		Description:   message,
		SectionHeader: SectionHeader,
		Metadata: map[string]string{
			"message": message,
		},
	}, nil
}
