// Package workout_summary renders a per-exercise breakdown of a strength
// workout into the activity description.
package workout_summary

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/pulsesync/server/pkg/enricher"
	"github.com/pulsesync/server/pkg/types"
)

// SectionHeader marks the summary block so a resume replaces it in place.
const SectionHeader = "📋 Workout Summary:"

// formats supported via the "format" config key.
const (
	formatDetailed = "detailed"
	formatCompact  = "compact"
	formatVerbose  = "verbose"
)

type Provider struct{}

func New() *Provider {
	return &Provider{}
}

func (p *Provider) Name() string { return "workout_summary" }

func (p *Provider) ProviderType() types.EnricherProviderType {
	return types.EnricherProviderWorkoutSummary
}

// Enrich aggregates the activity's strength sets into a stats line and one
// bullet per exercise. Activities without strength sets are skipped, not
// failed: the provider may sit on a pipeline that also carries cardio.
func (p *Provider) Enrich(ctx context.Context, logger *slog.Logger, activity *types.StandardizedActivity, user *types.UserRecord, inputs map[string]string, doNotRetry bool) (*enricher.EnrichmentResult, error) {
	var allSets []*types.StrengthSet
	for _, s := range activity.Sessions {
		allSets = append(allSets, s.StrengthSets...)
	}

	if len(allSets) == 0 {
		logger.Debug("workout_summary: no strength sets, skipping")
		return &enricher.EnrichmentResult{
			Metadata: map[string]string{
				"status": "skipped",
				"reason": "no_strength_sets",
			},
		}, nil
	}

	style := inputs["format"]
	switch style {
	case formatCompact, formatVerbose:
	default:
		style = formatDetailed
	}
	showStats := inputs["show_stats"] != "false"

	totalReps := 0
	totalVolume := 0.0
	heaviest := 0.0
	heaviestExercise := ""
	for _, set := range allSets {
		totalReps += int(set.Reps)
		if set.WeightKg > 0 {
			totalVolume += set.WeightKg * float64(set.Reps)
			if set.WeightKg > heaviest {
				heaviest = set.WeightKg
				heaviestExercise = set.ExerciseName
			}
		}
	}

	// Group sets per exercise in first-seen order.
	var order []string
	grouped := make(map[string][]*types.StrengthSet)
	for _, set := range allSets {
		name := set.ExerciseName
		if name == "" {
			name = "Unknown Exercise"
		}
		if _, seen := grouped[name]; !seen {
			order = append(order, name)
		}
		grouped[name] = append(grouped[name], set)
	}

	var sb strings.Builder
	if showStats {
		var parts []string
		parts = append(parts, fmt.Sprintf("%d sets", len(allSets)))
		if totalVolume > 0 {
			parts = append(parts, volumeWithSeparators(totalVolume)+" volume")
		}
		if totalReps > 0 {
			parts = append(parts, fmt.Sprintf("%d reps", totalReps))
		}
		if heaviest > 0 {
			parts = append(parts, fmt.Sprintf("Heaviest: %.0fkg (%s)", heaviest, heaviestExercise))
		}
		sb.WriteString(strings.Join(parts, " • "))
		sb.WriteString("\n")
	}

	for _, name := range order {
		sb.WriteString("• " + name + ": ")
		var setStrs []string
		for _, s := range grouped[name] {
			setStrs = append(setStrs, setTypeIndicator(s.SetType)+formatSet(s, style))
		}
		sb.WriteString(collapseSets(setStrs, style))
		sb.WriteString("\n")
	}

	return &enricher.EnrichmentResult{
		Description:   strings.TrimRight(sb.String(), "\n"),
		SectionHeader: SectionHeader,
		Metadata: map[string]string{
			"exercise_count": fmt.Sprintf("%d", len(order)),
			"total_sets":     fmt.Sprintf("%d", len(allSets)),
			"total_reps":     fmt.Sprintf("%d", totalReps),
			"total_volume":   fmt.Sprintf("%.2f", totalVolume),
		},
	}, nil
}

func setTypeIndicator(setType string) string {
	switch setType {
	case "warmup":
		return "[W] "
	case "failure":
		return "[F] "
	case "dropset":
		return "[D] "
	default:
		return ""
	}
}

func formatSet(set *types.StrengthSet, style string) string {
	// Timed sets (planks, carries, cardio stations) show duration, with the
	// load appended when present.
	if set.DurationSeconds > 0 && set.Reps == 0 {
		out := formatDuration(int(set.DurationSeconds))
		if set.WeightKg > 0 {
			out += fmt.Sprintf(" × %.0fkg", set.WeightKg)
		}
		return out
	}

	switch style {
	case formatCompact:
		if set.WeightKg > 0 {
			return fmt.Sprintf("%d×%.0fkg", set.Reps, set.WeightKg)
		}
	case formatVerbose:
		if set.WeightKg > 0 {
			return fmt.Sprintf("%d reps at %.1f kilograms", set.Reps, set.WeightKg)
		}
	default:
		if set.WeightKg > 0 {
			return fmt.Sprintf("%d × %.1fkg", set.Reps, set.WeightKg)
		}
	}
	return fmt.Sprintf("%d reps", set.Reps)
}

// collapseSets joins the formatted sets, folding runs of identical sets into
// a single "N × set" term.
func collapseSets(setStrs []string, style string) string {
	if len(setStrs) <= 1 {
		return strings.Join(setStrs, ", ")
	}
	first := setStrs[0]
	for _, s := range setStrs[1:] {
		if s != first {
			return strings.Join(setStrs, ", ")
		}
	}
	switch style {
	case formatCompact:
		return fmt.Sprintf("%d×%s", len(setStrs), first)
	case formatVerbose:
		return fmt.Sprintf("%d sets of %s", len(setStrs), first)
	default:
		return fmt.Sprintf("%d × %s", len(setStrs), first)
	}
}

func formatDuration(seconds int) string {
	return fmt.Sprintf("%d:%02d", seconds/60, seconds%60)
}

// volumeWithSeparators renders total volume as "12,500kg".
func volumeWithSeparators(kg float64) string {
	return message.NewPrinter(language.English).Sprintf("%.0fkg", kg)
}
