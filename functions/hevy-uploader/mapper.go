package hevyuploader

import (
	"context"
	"time"

	"github.com/pulsesync/server/pkg/types"
)

// hevyWorkoutRequest is the body for both POST and PUT; Hevy's PUT takes the
// full workout, not a partial patch.
type hevyWorkoutRequest struct {
	Workout hevyWorkoutData `json:"workout"`
}

type hevyWorkoutData struct {
	Title       string         `json:"title"`
	Description string         `json:"description,omitempty"`
	StartTime   string         `json:"start_time"`
	EndTime     string         `json:"end_time"`
	IsPrivate   bool           `json:"is_private,omitempty"`
	Exercises   []hevyExercise `json:"exercises"`
}

type hevyExercise struct {
	ExerciseTemplateID string    `json:"exercise_template_id"`
	SupersetID         *int      `json:"superset_id,omitempty"`
	Notes              string    `json:"notes,omitempty"`
	Sets               []hevySet `json:"sets"`
}

type hevySet struct {
	Type            string   `json:"type"` // normal, warmup, dropset, failure
	WeightKg        *float64 `json:"weight_kg,omitempty"`
	Reps            *int     `json:"reps,omitempty"`
	DistanceMeters  *int     `json:"distance_meters,omitempty"`
	DurationSeconds *int     `json:"duration_seconds,omitempty"`
}

// hevyWorkoutFull mirrors the GET response shape. Everything is a pointer
// because Hevy omits fields freely; the PUT path must carry them back exactly.
type hevyWorkoutFull struct {
	ID          *string             `json:"id,omitempty"`
	Title       *string             `json:"title,omitempty"`
	Description *string             `json:"description,omitempty"`
	StartTime   *string             `json:"start_time,omitempty"`
	EndTime     *string             `json:"end_time,omitempty"`
	IsPrivate   *bool               `json:"is_private,omitempty"`
	Exercises   []hevyFullExercise  `json:"exercises,omitempty"`
}

type hevyFullExercise struct {
	ExerciseTemplateId *string       `json:"exercise_template_id,omitempty"`
	Notes              *string       `json:"notes,omitempty"`
	Sets               []hevyFullSet `json:"sets,omitempty"`
	SupersetId         *float64      `json:"superset_id"`
	Title              *string       `json:"title,omitempty"`
}

type hevyFullSet struct {
	DistanceMeters  *float64 `json:"distance_meters"`
	DurationSeconds *float64 `json:"duration_seconds"`
	Reps            *float64 `json:"reps"`
	Type            *string  `json:"type,omitempty"`
	WeightKg        *float64 `json:"weight_kg"`
}

type exerciseTemplate struct {
	Id    string `json:"id"`
	Title string `json:"title"`
}

// mapWorkout converts an enriched activity into Hevy's workout format.
// Strength sets group into exercises by name; cardio sessions become a single
// distance/duration exercise so runs and rides still land somewhere visible.
func mapWorkout(ctx context.Context, event *types.EnrichedActivity, resolver *templateResolver) (*hevyWorkoutRequest, error) {
	startTime := event.StartTime
	if startTime.IsZero() {
		startTime = time.Now()
	}

	var totalDuration float64
	if event.ActivityData != nil {
		for _, session := range event.ActivityData.Sessions {
			totalDuration += session.TotalElapsedTime
		}
	}
	endTime := startTime.Add(30 * time.Minute)
	if totalDuration > 0 {
		endTime = startTime.Add(time.Duration(totalDuration) * time.Second)
	}

	workout := &hevyWorkoutRequest{
		Workout: hevyWorkoutData{
			Title:       event.Name,
			Description: event.Description,
			StartTime:   startTime.Format(time.RFC3339),
			EndTime:     endTime.Format(time.RFC3339),
			Exercises:   []hevyExercise{},
		},
	}

	if event.ActivityData != nil {
		for _, session := range event.ActivityData.Sessions {
			if len(session.StrengthSets) > 0 {
				exercises, err := mapStrengthSets(ctx, session.StrengthSets, resolver)
				if err != nil {
					return nil, err
				}
				workout.Workout.Exercises = append(workout.Workout.Exercises, exercises...)
				continue
			}
			if session.TotalDistance > 0 || session.TotalElapsedTime > 0 {
				ex, err := mapCardioSession(ctx, event.ActivityType, session, resolver)
				if err != nil {
					return nil, err
				}
				workout.Workout.Exercises = append(workout.Workout.Exercises, ex)
			}
		}
	}

	if len(workout.Workout.Exercises) == 0 {
		duration := int(totalDuration)
		if duration == 0 {
			duration = 1800
		}
		templateID, err := resolver.resolve(ctx, cardioExerciseName(event.ActivityType))
		if err != nil {
			return nil, err
		}
		workout.Workout.Exercises = append(workout.Workout.Exercises, hevyExercise{
			ExerciseTemplateID: templateID,
			Notes:              event.Description,
			Sets:               []hevySet{{Type: "normal", DurationSeconds: &duration}},
		})
	}

	return workout, nil
}

// mapStrengthSets groups sets by exercise name, preserving first-seen order.
func mapStrengthSets(ctx context.Context, sets []*types.StrengthSet, resolver *templateResolver) ([]hevyExercise, error) {
	grouped := map[string][]hevySet{}
	var order []string

	for _, set := range sets {
		name := set.ExerciseName
		if name == "" {
			name = "Unknown Exercise"
		}
		if _, seen := grouped[name]; !seen {
			order = append(order, name)
		}
		grouped[name] = append(grouped[name], convertSet(set))
	}

	exercises := make([]hevyExercise, 0, len(order))
	for _, name := range order {
		templateID, err := resolver.resolve(ctx, name)
		if err != nil {
			return nil, err
		}
		exercises = append(exercises, hevyExercise{
			ExerciseTemplateID: templateID,
			Sets:               grouped[name],
		})
	}
	return exercises, nil
}

func convertSet(set *types.StrengthSet) hevySet {
	out := hevySet{Type: mapSetType(set.SetType)}
	if set.WeightKg > 0 {
		weight := set.WeightKg
		out.WeightKg = &weight
	}
	if set.Reps > 0 {
		reps := int(set.Reps)
		out.Reps = &reps
	}
	if set.DurationSeconds > 0 {
		duration := int(set.DurationSeconds)
		out.DurationSeconds = &duration
	}
	return out
}

func mapSetType(setType string) string {
	switch setType {
	case "warmup", "dropset", "failure":
		return setType
	default:
		return "normal"
	}
}

func mapCardioSession(ctx context.Context, activityType types.ActivityType, session *types.Session, resolver *templateResolver) (hevyExercise, error) {
	templateID, err := resolver.resolve(ctx, cardioExerciseName(activityType))
	if err != nil {
		return hevyExercise{}, err
	}

	distance := int(session.TotalDistance)
	duration := int(session.TotalElapsedTime)
	set := hevySet{Type: "normal"}
	if distance > 0 {
		set.DistanceMeters = &distance
	}
	if duration > 0 {
		set.DurationSeconds = &duration
	}

	return hevyExercise{
		ExerciseTemplateID: templateID,
		Sets:               []hevySet{set},
	}, nil
}

// cardioExerciseName picks the Hevy exercise name to resolve for non-strength
// activity types.
func cardioExerciseName(activityType types.ActivityType) string {
	switch activityType {
	case types.ActivityTypeRun:
		return "Running"
	case types.ActivityTypeWalk:
		return "Walking"
	case types.ActivityTypeRide:
		return "Cycling"
	case types.ActivityTypeSwim:
		return "Swimming"
	default:
		return "Other"
	}
}
