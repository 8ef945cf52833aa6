// Package ai_companion generates AI-powered activity titles and summaries
// with Google Gemini. Athlete-tier only.
package ai_companion

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"

	"github.com/pulsesync/server/pkg/domain/tier"
	"github.com/pulsesync/server/pkg/enricher"
	"github.com/pulsesync/server/pkg/types"
)

// SectionHeader keys the AI block in the composed description.
const SectionHeader = "✨ AI Summary:"

type Provider struct {
	apiKey string
}

func New(apiKey string) *Provider {
	return &Provider{apiKey: apiKey}
}

func (p *Provider) Name() string {
	return "ai-companion"
}

func (p *Provider) ProviderType() types.EnricherProviderType {
	return types.EnricherProviderAICompanion
}

// ShouldDefer runs this provider after the rest of the chain so the prompt
// can reference the accumulated description.
func (p *Provider) ShouldDefer() bool {
	return true
}

func (p *Provider) Enrich(ctx context.Context, logger *slog.Logger, activity *types.StandardizedActivity, user *types.UserRecord, inputs map[string]string, doNotRetry bool) (*enricher.EnrichmentResult, error) {
	if tier.GetEffectiveTier(user) != tier.TierAthlete {
		logger.Info("AI Companion skipped: user not on athlete tier",
			"user_id", user.Id,
			"tier", string(tier.GetEffectiveTier(user)),
		)
		return &enricher.EnrichmentResult{
			Metadata: map[string]string{
				"status":        "skipped",
				"reason":        "tier_restricted",
				"required_tier": "athlete",
			},
		}, nil
	}

	mode := inputs["mode"]
	if mode == "" {
		mode = "description"
	}

	if p.apiKey == "" {
		logger.Warn("Gemini API key not configured, skipping AI companion")
		return &enricher.EnrichmentResult{
			Metadata: map[string]string{
				"status": "skipped",
				"reason": "api_key_not_configured",
			},
		}, nil
	}

	activityContext := buildActivityContext(activity, inputs["enriched_description"])

	result, err := p.generate(ctx, mode, activityContext)
	if err != nil {
		// Generation failures degrade to a skip, never fail the pipeline.
		logger.Error("Failed to generate AI companion content", "error", err)
		return &enricher.EnrichmentResult{
			Metadata: map[string]string{
				"status":        "error",
				"reason":        "generation_failed",
				"status_detail": err.Error(),
			},
		}, nil
	}

	logger.Info("AI Companion content generated",
		"mode", mode,
		"has_title", result.Title != "",
		"has_description", result.Description != "",
	)

	res := &enricher.EnrichmentResult{
		Name:        result.Title,
		Description: result.Description,
		Metadata: map[string]string{
			"status": "success",
			"mode":   mode,
		},
	}
	if result.Description != "" {
		res.SectionHeader = SectionHeader
	}
	return res, nil
}

type aiResult struct {
	Title       string
	Description string
}

func (p *Provider) generate(ctx context.Context, mode, activityContext string) (*aiResult, error) {
	client, err := genai.NewClient(ctx, option.WithAPIKey(p.apiKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}
	defer client.Close()

	model := client.GenerativeModel("gemini-2.0-flash")
	model.SetTemperature(0.7)
	model.SetTopP(0.9)
	model.SetMaxOutputTokens(300)

	resp, err := model.GenerateContent(ctx, genai.Text(buildPrompt(mode, activityContext)))
	if err != nil {
		return nil, fmt.Errorf("failed to generate content: %w", err)
	}
	if len(resp.Candidates) == 0 || len(resp.Candidates[0].Content.Parts) == 0 {
		return nil, fmt.Errorf("no content generated")
	}

	rawOutput := ""
	for _, part := range resp.Candidates[0].Content.Parts {
		if text, ok := part.(genai.Text); ok {
			rawOutput += string(text)
		}
	}

	return parseResponse(mode, rawOutput), nil
}

func buildPrompt(mode, activityContext string) string {
	basePrompt := `You are an activity reviewer. Generate a casual, engaging summary of the fitness activity provided below.

Activity Context:
%s

Guidelines:
- Provide a casual summary or review of the effort.
- DO NOT talk to the user directly (avoid "you", "your", or addressing them as "runner", "athlete", etc.).
- Maintain an objective yet positive tone.
- Generic punchy reactions like "Nice one!" or "Solid session" are acceptable as part of the summary.
- Avoid motivational "coach" cliches (e.g., "Keep pushing", "You've got this").
- Use fitness terminology naturally.
- Reference specific details from the workout.
`

	switch mode {
	case "title":
		return fmt.Sprintf(basePrompt+`
Generate a creative, engaging title for this workout (max 50 characters).
Respond with ONLY the title, nothing else.`, activityContext)
	case "both":
		return fmt.Sprintf(basePrompt+`
Generate both a title and description for this workout.
Format your response exactly as:
TITLE: [creative title, max 50 chars]
DESCRIPTION: [engaging description, 2-3 sentences max]`, activityContext)
	default: // "description"
		return fmt.Sprintf(basePrompt+`
Generate an engaging description for this workout (2-3 sentences max).
Respond with ONLY the description, nothing else.`, activityContext)
	}
}

func buildActivityContext(activity *types.StandardizedActivity, enrichedDescription string) string {
	var parts []string

	if activity.Type != types.ActivityTypeUnspecified {
		parts = append(parts, fmt.Sprintf("Type: %s", activity.Type))
	}
	if activity.Name != "" {
		parts = append(parts, fmt.Sprintf("Original Name: %s", activity.Name))
	}

	var totalDuration, totalDistance float64
	var heartRates []int32
	var strengthSets []*types.StrengthSet
	for _, session := range activity.Sessions {
		totalDuration += session.TotalElapsedTime
		totalDistance += session.TotalDistance
		strengthSets = append(strengthSets, session.StrengthSets...)
		for _, lap := range session.Laps {
			for _, record := range lap.Records {
				if record.HeartRate > 0 {
					heartRates = append(heartRates, record.HeartRate)
				}
			}
		}
	}

	if totalDuration > 0 {
		parts = append(parts, fmt.Sprintf("Duration: %.1f minutes", totalDuration/60))
	}
	if totalDistance > 0 {
		parts = append(parts, fmt.Sprintf("Distance: %.2f km", totalDistance/1000))
	}

	if len(heartRates) > 0 {
		var sum, max int32
		min := heartRates[0]
		for _, hr := range heartRates {
			sum += hr
			if hr > max {
				max = hr
			}
			if hr < min {
				min = hr
			}
		}
		avg := sum / int32(len(heartRates))
		parts = append(parts, fmt.Sprintf("Heart Rate: Avg %d bpm, Max %d bpm, Min %d bpm", avg, max, min))
	}

	if len(strengthSets) > 0 {
		exercises := map[string]int{}
		for _, set := range strengthSets {
			exercises[set.ExerciseName]++
		}
		var lines []string
		for name, count := range exercises {
			lines = append(lines, fmt.Sprintf("%s x%d sets", name, count))
		}
		parts = append(parts, "Exercises: "+strings.Join(lines, ", "))
	}

	if enrichedDescription != "" {
		parts = append(parts, "Current Description:\n"+enrichedDescription)
	}

	return strings.Join(parts, "\n")
}

func parseResponse(mode, raw string) *aiResult {
	raw = strings.TrimSpace(raw)
	result := &aiResult{}

	switch mode {
	case "title":
		result.Title = strings.Trim(raw, `"`)
	case "both":
		for _, line := range strings.Split(raw, "\n") {
			line = strings.TrimSpace(line)
			if after, ok := strings.CutPrefix(line, "TITLE:"); ok {
				result.Title = strings.Trim(strings.TrimSpace(after), `"`)
			} else if after, ok := strings.CutPrefix(line, "DESCRIPTION:"); ok {
				result.Description = strings.TrimSpace(after)
			}
		}
	default:
		result.Description = raw
	}

	return result
}
