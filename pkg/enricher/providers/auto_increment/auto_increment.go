// Package auto_increment appends a running count to activity names, e.g.
// "Parkrun (#42)".
package auto_increment

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/pulsesync/server/pkg/enricher"
	"github.com/pulsesync/server/pkg/types"
)

// Store is the counter persistence this provider needs.
type Store interface {
	GetCounter(ctx context.Context, userID string, id string) (*types.Counter, error)
	SetCounter(ctx context.Context, userID string, counter *types.Counter) error
}

type Provider struct {
	store Store
}

func New(store Store) *Provider {
	return &Provider{store: store}
}

func (p *Provider) Name() string {
	return "auto_increment"
}

func (p *Provider) ProviderType() types.EnricherProviderType {
	return types.EnricherProviderAutoIncrement
}

func (p *Provider) Enrich(ctx context.Context, logger *slog.Logger, activity *types.StandardizedActivity, user *types.UserRecord, inputs map[string]string, doNotRetry bool) (*enricher.EnrichmentResult, error) {
	logger.Debug("auto_increment: starting",
		"activity_name", activity.Name,
		"counter_key", inputs["counter_key"],
		"title_filter", inputs["title_contains"],
	)

	key := inputs["counter_key"]
	if key == "" {
		logger.Debug("auto_increment: skipping - no counter_key configured")
		return &enricher.EnrichmentResult{
			Metadata: map[string]string{
				"auto_increment_applied": "false",
				"reason":                 "Misconfigured",
			},
		}, nil
	}

	if filter := inputs["title_contains"]; filter != "" {
		if !strings.Contains(strings.ToLower(activity.Name), strings.ToLower(filter)) {
			logger.Debug("auto_increment: skipping - title does not match filter",
				"filter", filter,
				"activity_name", activity.Name,
			)
			return &enricher.EnrichmentResult{
				Metadata: map[string]string{
					"auto_increment_applied": "false",
					"reason":                 "Title does not contain filter",
				},
			}, nil
		}
	}

	counter, err := p.store.GetCounter(ctx, user.Id, key)
	if err != nil {
		return nil, fmt.Errorf("failed to get counter: %w", err)
	}

	if counter == nil {
		// First use: seed so the next increment lands on initial_value.
		var start int64
		if initialStr := inputs["initial_value"]; initialStr != "" {
			var initial int64
			if _, err := fmt.Sscanf(initialStr, "%d", &initial); err == nil {
				start = initial - 1
			}
		}
		counter = &types.Counter{Id: key, Value: start}
	}

	counter.Value++

	if err := p.store.SetCounter(ctx, user.Id, counter); err != nil {
		return nil, fmt.Errorf("failed to update counter: %w", err)
	}

	logger.Debug("auto_increment: applied",
		"key", key,
		"new_count", counter.Value,
	)

	return &enricher.EnrichmentResult{
		NameSuffix: fmt.Sprintf(" (#%d)", counter.Value),
		Metadata: map[string]string{
			"auto_increment_applied": "true",
			"auto_increment_key":     key,
			"auto_increment_val":     fmt.Sprintf("%d", counter.Value),
		},
	}, nil
}
