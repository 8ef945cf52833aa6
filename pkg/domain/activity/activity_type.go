// Package activity holds shared helpers for working with activity payloads:
// type normalization, vendor type mapping, and blob-offloaded payload
// resolution.
package activity

import (
	"strings"

	"github.com/pulsesync/server/pkg/types"
)

// ParseActivityType normalizes a free-form type string ("trail run",
// "TrailRun", "TRAIL_RUN") to the canonical enum. Unknown strings map to
// OTHER, empty strings to unspecified.
func ParseActivityType(s string) types.ActivityType {
	normalized := strings.ToUpper(strings.TrimSpace(s))
	normalized = strings.ReplaceAll(normalized, " ", "_")
	normalized = strings.ReplaceAll(normalized, "-", "_")
	if normalized == "" {
		return types.ActivityTypeUnspecified
	}

	switch types.ActivityType(normalized) {
	case types.ActivityTypeRun, types.ActivityTypeTrailRun, types.ActivityTypeVirtualRun,
		types.ActivityTypeWalk, types.ActivityTypeHike,
		types.ActivityTypeRide, types.ActivityTypeVirtualRide,
		types.ActivityTypeSwim, types.ActivityTypeWeightTraining,
		types.ActivityTypeCrossfit, types.ActivityTypeYoga,
		types.ActivityTypeRowing, types.ActivityTypeElliptical,
		types.ActivityTypeHIIT, types.ActivityTypeOther:
		return types.ActivityType(normalized)
	}

	switch normalized {
	case "TRAILRUN":
		return types.ActivityTypeTrailRun
	case "VIRTUALRUN":
		return types.ActivityTypeVirtualRun
	case "VIRTUALRIDE":
		return types.ActivityTypeVirtualRide
	case "WEIGHTTRAINING", "STRENGTH", "STRENGTH_TRAINING", "GYM":
		return types.ActivityTypeWeightTraining
	case "HIIT":
		return types.ActivityTypeHIIT
	case "WORKOUT":
		return types.ActivityTypeOther
	}

	return types.ActivityTypeOther
}

var stravaTypes = map[types.ActivityType]string{
	types.ActivityTypeRun:            "Run",
	types.ActivityTypeTrailRun:       "TrailRun",
	types.ActivityTypeVirtualRun:     "VirtualRun",
	types.ActivityTypeWalk:           "Walk",
	types.ActivityTypeHike:           "Hike",
	types.ActivityTypeRide:           "Ride",
	types.ActivityTypeVirtualRide:    "VirtualRide",
	types.ActivityTypeSwim:           "Swim",
	types.ActivityTypeWeightTraining: "WeightTraining",
	types.ActivityTypeCrossfit:       "Crossfit",
	types.ActivityTypeYoga:           "Yoga",
	types.ActivityTypeRowing:         "Rowing",
	types.ActivityTypeElliptical:     "Elliptical",
	types.ActivityTypeHIIT:           "HighIntensityIntervalTraining",
}

// StravaActivityType returns the Strava API sport string for a canonical
// activity type. Unknown types fall back to "Workout".
func StravaActivityType(t types.ActivityType) string {
	if s, ok := stravaTypes[t]; ok {
		return s
	}
	return "Workout"
}
