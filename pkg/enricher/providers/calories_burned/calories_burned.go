// Package calories_burned estimates energy expenditure from activity type,
// duration, and body weight using MET values.
package calories_burned

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/pulsesync/server/pkg/enricher"
	"github.com/pulsesync/server/pkg/types"
)

// SectionHeader marks the calories block so a resume replaces it in place.
const SectionHeader = "🔥 Calories:"

// MET (Metabolic Equivalent of Task) per activity type. Higher is more
// intense.
var activityMETs = map[types.ActivityType]float64{
	types.ActivityTypeRun:            9.8,
	types.ActivityTypeTrailRun:       10.5,
	types.ActivityTypeVirtualRun:     8.0,
	types.ActivityTypeWalk:           3.5,
	types.ActivityTypeHike:           6.0,
	types.ActivityTypeRide:           7.5,
	types.ActivityTypeVirtualRide:    6.8,
	types.ActivityTypeSwim:           8.0,
	types.ActivityTypeWeightTraining: 5.0,
	types.ActivityTypeCrossfit:       10.0,
	types.ActivityTypeYoga:           3.0,
	types.ActivityTypeHIIT:           11.0,
	types.ActivityTypeRowing:         7.0,
	types.ActivityTypeElliptical:     5.0,
}

// Fun food equivalents for calorie display.
type foodEquivalent struct {
	Name     string
	Calories float64
	Emoji    string
}

var foodEquivalents = []foodEquivalent{
	{Name: "slice of pizza", Calories: 285, Emoji: "🍕"},
	{Name: "donut", Calories: 250, Emoji: "🍩"},
	{Name: "banana", Calories: 105, Emoji: "🍌"},
	{Name: "beer", Calories: 150, Emoji: "🍺"},
	{Name: "chocolate bar", Calories: 230, Emoji: "🍫"},
	{Name: "cookie", Calories: 80, Emoji: "🍪"},
	{Name: "apple", Calories: 95, Emoji: "🍎"},
	{Name: "glass of wine", Calories: 125, Emoji: "🍷"},
	{Name: "burger", Calories: 540, Emoji: "🍔"},
	{Name: "ice cream scoop", Calories: 140, Emoji: "🍨"},
}

type Provider struct{}

func New() *Provider {
	return &Provider{}
}

func (p *Provider) Name() string {
	return "calories-burned"
}

func (p *Provider) ProviderType() types.EnricherProviderType {
	return types.EnricherProviderCalories
}

func (p *Provider) Enrich(ctx context.Context, logger *slog.Logger, activity *types.StandardizedActivity, user *types.UserRecord, inputs map[string]string, doNotRetry bool) (*enricher.EnrichmentResult, error) {
	logger.Debug("calories_burned: starting", "activity_name", activity.Name)

	funMode := inputs["fun_mode"] == "true"

	// Weight preference: profile, then step config, then 70kg default.
	userWeight := 70.0
	if user.WeightKg > 0 {
		userWeight = user.WeightKg
	} else if weightStr := inputs["user_weight"]; weightStr != "" {
		if w, err := strconv.ParseFloat(weightStr, 64); err == nil && w > 0 {
			userWeight = w
		}
	}

	var totalSeconds float64
	for _, session := range activity.Sessions {
		totalSeconds += session.TotalElapsedTime
	}
	durationHours := totalSeconds / 3600.0

	if durationHours <= 0 {
		logger.Debug("calories_burned: skipping - no duration data")
		return &enricher.EnrichmentResult{
			Metadata: map[string]string{
				"calories_status": "skipped",
				"status_detail":   "No duration data",
			},
		}, nil
	}

	met := getMET(activity.Type)

	// Calories = MET x weight(kg) x duration(hours)
	calories := met * userWeight * durationHours

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("🔥 Calories: %.0f kcal", calories))
	if funMode && calories > 50 {
		equiv := getFoodEquivalent(calories)
		sb.WriteString(fmt.Sprintf(" ≈ %.1f %s %s", calories/equiv.Calories, equiv.Name, equiv.Emoji))
	}

	logger.Info("Calories calculated",
		"calories", calories,
		"met", met,
		"weight_kg", userWeight,
		"duration_hours", durationHours,
	)

	return &enricher.EnrichmentResult{
		Description:   sb.String(),
		SectionHeader: SectionHeader,
		Metadata: map[string]string{
			"calories_status": "success",
			"calories":        fmt.Sprintf("%.0f", calories),
			"met_value":       fmt.Sprintf("%.1f", met),
			"duration_hours":  fmt.Sprintf("%.2f", durationHours),
			"weight_kg":       fmt.Sprintf("%.0f", userWeight),
		},
	}, nil
}

func getMET(actType types.ActivityType) float64 {
	if met, ok := activityMETs[actType]; ok {
		return met
	}
	// Moderate intensity default for unknown activities.
	return 5.0
}

// getFoodEquivalent picks a food that gives a readable ratio.
func getFoodEquivalent(calories float64) foodEquivalent {
	for _, food := range foodEquivalents {
		ratio := calories / food.Calories
		if ratio >= 0.5 && ratio <= 10 {
			return food
		}
	}
	return foodEquivalents[0]
}
