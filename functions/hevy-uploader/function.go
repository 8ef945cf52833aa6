// Package hevyuploader uploads enriched activities to Hevy. Create maps the
// activity into Hevy's workout format; Update re-fetches the workout and
// merges only the enriched description back in, since the user may have
// edited the workout on Hevy in the meantime.
package hevyuploader

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"github.com/GoogleCloudPlatform/functions-framework-go/functions"
	"github.com/cloudevents/sdk-go/v2/event"

	"github.com/pulsesync/server/pkg/bootstrap"
	"github.com/pulsesync/server/pkg/description"
	"github.com/pulsesync/server/pkg/framework"
	"github.com/pulsesync/server/pkg/types"
	"github.com/pulsesync/server/pkg/uploader"
)

var (
	svc     *bootstrap.Service
	svcOnce sync.Once
	svcErr  error
)

func init() {
	functions.CloudEvent("UploadToHevy", UploadToHevy)
}

func initService(ctx context.Context) (*bootstrap.Service, error) {
	if svc != nil {
		return svc, nil
	}
	svcOnce.Do(func() {
		svc, svcErr = bootstrap.NewService(ctx)
	})
	return svc, svcErr
}

// UploadToHevy is the entry point
func UploadToHevy(ctx context.Context, e event.Event) error {
	svc, err := initService(ctx)
	if err != nil {
		return fmt.Errorf("service init failed: %v", err)
	}
	return framework.WrapCloudEvent("hevy-uploader", svc, uploadHandler)(ctx, e)
}

func uploadHandler(ctx context.Context, e event.Event, fwCtx *framework.FrameworkContext) (interface{}, error) {
	var msg types.PubSubMessage
	if err := e.DataAs(&msg); err != nil {
		return nil, fmt.Errorf("event.DataAs: %v", err)
	}

	var enriched types.EnrichedActivity
	if err := json.Unmarshal(msg.Message.Data, &enriched); err != nil {
		return nil, fmt.Errorf("unmarshal enriched event: %w", err)
	}

	dest := &hevyDestination{logger: fwCtx.Logger}
	up := uploader.New(fwCtx.Service.DB, fwCtx.Service.Store, dest, types.DestinationHevy)
	return up.Process(ctx, fwCtx.Logger, &enriched, enriched.PipelineExecutionId)
}

type hevyDestination struct {
	logger *slog.Logger
}

func (h *hevyDestination) Name() string { return "hevy" }

// apiKey returns the user's Hevy API key. The error text is what the user
// sees on the failed destination, so it says what to fix.
func (h *hevyDestination) apiKey(user *types.UserRecord) (string, error) {
	if user.Integrations == nil || user.Integrations.Hevy == nil || user.Integrations.Hevy.ApiKey == "" {
		return "", fmt.Errorf("Hevy is not connected: add your Hevy API key in settings")
	}
	if !user.Integrations.Hevy.Enabled {
		return "", fmt.Errorf("Hevy integration is disabled: re-enable it in settings to sync")
	}
	return user.Integrations.Hevy.ApiKey, nil
}

func (h *hevyDestination) Create(ctx context.Context, payload *types.EnrichedActivity, user *types.UserRecord) (string, error) {
	apiKey, err := h.apiKey(user)
	if err != nil {
		return "", err
	}

	client := newHevyClient(apiKey, h.logger)
	resolver := newTemplateResolver(client)

	workout, err := mapWorkout(ctx, payload, resolver)
	if err != nil {
		return "", fmt.Errorf("map activity to Hevy format: %w", err)
	}

	workoutID, err := client.createWorkout(ctx, workout)
	if err != nil {
		return "", err
	}

	h.logger.Info("Created Hevy workout",
		"workout_id", workoutID,
		"exercise_count", len(workout.Workout.Exercises),
	)
	return workoutID, nil
}

// Update refreshes the description of the workout a previous run created.
// The title and exercises are read back from Hevy and preserved untouched.
func (h *hevyDestination) Update(ctx context.Context, payload *types.EnrichedActivity, user *types.UserRecord, prior *types.UploadedActivityRecord) error {
	apiKey, err := h.apiKey(user)
	if err != nil {
		return err
	}

	client := newHevyClient(apiKey, h.logger)

	existing, err := client.getWorkout(ctx, prior.DestinationId)
	if err != nil {
		return fmt.Errorf("fetch existing workout: %w", err)
	}

	existingDesc := ""
	if existing.Description != nil {
		existingDesc = *existing.Description
	}

	merged := mergeDescription(existingDesc, payload, h.logger)
	if merged == existingDesc {
		h.logger.Info("No description changes, skipping Hevy PUT", "workout_id", prior.DestinationId)
		return nil
	}

	put := buildPutRequest(existing, merged)
	if err := client.putWorkout(ctx, prior.DestinationId, put); err != nil {
		return err
	}

	h.logger.Info("Updated Hevy workout description", "workout_id", prior.DestinationId)
	return nil
}

// mergeDescription merges the enriched description into the one currently on
// Hevy. Every section the enrichers flagged is swapped in; text without a
// matching section is appended.
func mergeDescription(existingDesc string, payload *types.EnrichedActivity, logger *slog.Logger) string {
	headers := description.SectionHeaders(payload.EnrichmentMetadata)
	merged := description.MergeRemote(existingDesc, payload.Description, headers)
	if merged != existingDesc && len(headers) > 0 {
		logger.Info("Merged description sections", "headers", len(headers))
	}
	return merged
}

// buildPutRequest rebuilds the full PUT body from the fetched workout,
// swapping only the description. Hevy's GET and PUT schemas differ on the
// numeric set fields, so sets are converted field by field.
func buildPutRequest(existing *hevyWorkoutFull, mergedDescription string) *hevyWorkoutRequest {
	data := hevyWorkoutData{Description: mergedDescription}
	if existing.Title != nil {
		data.Title = *existing.Title
	}
	if existing.StartTime != nil {
		data.StartTime = *existing.StartTime
	}
	if existing.EndTime != nil {
		data.EndTime = *existing.EndTime
	}
	if existing.IsPrivate != nil {
		data.IsPrivate = *existing.IsPrivate
	}

	for _, ex := range existing.Exercises {
		out := hevyExercise{}
		if ex.ExerciseTemplateId != nil {
			out.ExerciseTemplateID = *ex.ExerciseTemplateId
		}
		if ex.Notes != nil {
			out.Notes = *ex.Notes
		}
		if ex.SupersetId != nil {
			v := int(*ex.SupersetId)
			out.SupersetID = &v
		}
		for _, s := range ex.Sets {
			set := hevySet{Type: "normal"}
			if s.Type != nil {
				set.Type = *s.Type
			}
			if s.WeightKg != nil {
				set.WeightKg = s.WeightKg
			}
			if s.Reps != nil {
				v := int(*s.Reps)
				set.Reps = &v
			}
			if s.DistanceMeters != nil {
				v := int(*s.DistanceMeters)
				set.DistanceMeters = &v
			}
			if s.DurationSeconds != nil {
				v := int(*s.DurationSeconds)
				set.DurationSeconds = &v
			}
			out.Sets = append(out.Sets, set)
		}
		data.Exercises = append(data.Exercises, out)
	}

	return &hevyWorkoutRequest{Workout: data}
}
