// Package user_input pauses a pipeline until the user supplies requested
// values, then folds those values into the activity on resume.
package user_input

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/pulsesync/server/pkg/enricher"
	"github.com/pulsesync/server/pkg/pending_input"
	"github.com/pulsesync/server/pkg/types"
)

// Store is the read side of the pending-input store this provider needs.
type Store interface {
	GetPendingInput(ctx context.Context, userID string, id string) (*types.PendingInput, error)
}

type Provider struct {
	store Store
}

func New(store Store) *Provider {
	return &Provider{store: store}
}

func (p *Provider) Name() string { return "user_input" }

func (p *Provider) ProviderType() types.EnricherProviderType {
	return types.EnricherProviderUserInput
}

// Enrich checks the pending input keyed by this activity and provider.
// A resolved input is consumed; a waiting or absent one raises
// WaitForInputError so the engine parks the run. The engine owns writing the
// PendingInput row and notifying the user.
func (p *Provider) Enrich(ctx context.Context, logger *slog.Logger, activity *types.StandardizedActivity, user *types.UserRecord, inputs map[string]string, doNotRetry bool) (*enricher.EnrichmentResult, error) {
	stableID := pending_input.GenerateID(activity.Source, activity.ExternalId, p.ProviderType())

	logger.Debug("user_input: starting",
		"stable_id", stableID,
		"requested_fields", inputs["fields"],
	)

	pending, err := p.store.GetPendingInput(ctx, user.Id, stableID)
	if err == nil && pending != nil {
		switch pending.Status {
		case types.PendingInputResolved, types.PendingInputAutoPopulated:
			logger.Debug("user_input: applying provided values",
				"status", string(pending.Status),
				"value_count", len(pending.ProvidedValues),
			)
			return applyValues(pending.ProvidedValues, pending.Status), nil
		case types.PendingInputDismissed:
			logger.Info("user_input: input dismissed by user, halting")
			return &enricher.EnrichmentResult{
				HaltPipeline: true,
				HaltReason:   "user dismissed the input request",
			}, nil
		}
	}

	// Final attempt with nothing provided: halt instead of waiting forever.
	if doNotRetry {
		logger.Info("user_input: no input provided and retries exhausted, halting")
		return &enricher.EnrichmentResult{
			HaltPipeline: true,
			HaltReason:   "required input was never provided",
		}, nil
	}

	logger.Debug("user_input: waiting for user input")
	return nil, &enricher.WaitForInputError{
		ActivityID:      activity.ExternalId,
		Prompt:          prompt(inputs),
		RequestedFields: requestedFields(inputs),
		Defaults:        parseDefaults(inputs),
		AutoDeadline:    autoDeadline(inputs),
		Provider:        p.ProviderType(),
	}
}

func applyValues(values map[string]string, status types.PendingInputStatus) *enricher.EnrichmentResult {
	res := &enricher.EnrichmentResult{
		Name:        values["title"],
		Description: values["description"],
		Metadata: map[string]string{
			"user_input_applied": "true",
			"user_input_status":  string(status),
		},
	}
	// Everything beyond the well-known keys travels as metadata so later
	// steps (and uploaders) can use it.
	for k, v := range values {
		if k == "title" || k == "description" {
			continue
		}
		res.Metadata["user_input_"+k] = v
	}
	return res
}

func prompt(inputs map[string]string) string {
	if p := inputs["prompt"]; p != "" {
		return p
	}
	return "Provide additional details for this activity"
}

func requestedFields(inputs map[string]string) []types.RequestedField {
	raw := inputs["fields"]
	if raw == "" {
		raw = "description"
	}

	var fields []types.RequestedField
	for _, part := range strings.Split(raw, ",") {
		key := strings.TrimSpace(part)
		if key == "" {
			continue
		}
		fieldType := "text"
		if key == "description" {
			fieldType = "textarea"
		}
		fields = append(fields, types.RequestedField{
			Key:       key,
			Label:     humanize(key),
			FieldType: fieldType,
			Required:  true,
		})
	}
	if len(fields) == 0 {
		fields = append(fields, types.RequestedField{
			Key: "description", Label: "Description", FieldType: "textarea", Required: true,
		})
	}
	return fields
}

// parseDefaults reads "default_<field>" config keys, e.g. default_rpe=5.
func parseDefaults(inputs map[string]string) map[string]string {
	var defaults map[string]string
	for k, v := range inputs {
		if name, ok := strings.CutPrefix(k, "default_"); ok && name != "" {
			if defaults == nil {
				defaults = make(map[string]string)
			}
			defaults[name] = v
		}
	}
	return defaults
}

func autoDeadline(inputs map[string]string) time.Time {
	raw := inputs["auto_resume_after"]
	if raw == "" {
		return time.Time{}
	}
	d, err := time.ParseDuration(raw)
	if err != nil || d <= 0 {
		return time.Time{}
	}
	return time.Now().UTC().Add(d)
}

// humanize converts a snake_case field name to Title Case.
func humanize(s string) string {
	parts := strings.Split(s, "_")
	for i, p := range parts {
		if len(p) > 0 {
			parts[i] = strings.ToUpper(p[:1]) + p[1:]
		}
	}
	return strings.Join(parts, " ")
}
