package fitfile

import (
	"strings"

	"github.com/muktihari/fit/profile/typedef"
)

// ExerciseCategory maps a free-form exercise name to the closest FIT
// exercise category. Unrecognized names fall back to total body.
func ExerciseCategory(exerciseName string) typedef.ExerciseCategory {
	name := strings.ToLower(strings.TrimSpace(exerciseName))

	switch {
	// Chest
	case strings.Contains(name, "bench"),
		strings.Contains(name, "chest press"),
		strings.Contains(name, "push up"),
		strings.Contains(name, "pushup"):
		return typedef.ExerciseCategoryBenchPress
	case strings.Contains(name, "fly"), strings.Contains(name, "flye"):
		return typedef.ExerciseCategoryFlye

	// Back
	case strings.Contains(name, "deadlift"):
		return typedef.ExerciseCategoryDeadlift
	case strings.Contains(name, "row"):
		return typedef.ExerciseCategoryRow
	case strings.Contains(name, "pull up"),
		strings.Contains(name, "pullup"),
		strings.Contains(name, "chin up"),
		strings.Contains(name, "pulldown"):
		return typedef.ExerciseCategoryPullUp

	// Legs
	case strings.Contains(name, "squat"), strings.Contains(name, "leg press"):
		return typedef.ExerciseCategorySquat
	case strings.Contains(name, "lunge"):
		return typedef.ExerciseCategoryLunge
	case strings.Contains(name, "leg curl"), strings.Contains(name, "leg extension"):
		return typedef.ExerciseCategoryLegCurl
	case strings.Contains(name, "calf raise"):
		return typedef.ExerciseCategoryCalfRaise

	// Shoulders
	case strings.Contains(name, "shoulder press"),
		strings.Contains(name, "overhead press"),
		strings.Contains(name, "military press"):
		return typedef.ExerciseCategoryShoulderPress
	case strings.Contains(name, "lateral raise"),
		strings.Contains(name, "side raise"),
		strings.Contains(name, "front raise"),
		strings.Contains(name, "rear delt"),
		strings.Contains(name, "reverse fly"):
		return typedef.ExerciseCategoryLateralRaise
	case strings.Contains(name, "shrug"):
		return typedef.ExerciseCategoryShrug

	// Arms
	case strings.Contains(name, "curl"):
		return typedef.ExerciseCategoryCurl
	case strings.Contains(name, "tricep"), strings.Contains(name, "dip"):
		return typedef.ExerciseCategoryTricepsExtension

	// Core
	case strings.Contains(name, "crunch"),
		strings.Contains(name, "sit up"),
		strings.Contains(name, "situp"):
		return typedef.ExerciseCategoryCrunch
	case strings.Contains(name, "plank"):
		return typedef.ExerciseCategoryPlank

	// Olympic lifts
	case strings.Contains(name, "clean"), strings.Contains(name, "snatch"):
		return typedef.ExerciseCategoryOlympicLift
	}

	return typedef.ExerciseCategoryTotalBody
}
