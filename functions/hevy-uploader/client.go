package hevyuploader

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	httputil "github.com/pulsesync/server/pkg/infrastructure/http"
)

const hevyAPIBase = "https://api.hevyapp.com/v1"

// hevyClient talks to the Hevy public API. Hevy authenticates with a per-user
// api-key header, not OAuth, so a plain client is enough.
type hevyClient struct {
	apiKey  string
	baseURL string
	http    *http.Client
	logger  *slog.Logger
}

func newHevyClient(apiKey string, logger *slog.Logger) *hevyClient {
	return &hevyClient{
		apiKey:  apiKey,
		baseURL: hevyAPIBase,
		http:    &http.Client{Timeout: 30 * time.Second},
		logger:  logger,
	}
}

func (c *hevyClient) do(ctx context.Context, method, url string, body interface{}) (*http.Response, error) {
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshal request body: %w", err)
		}
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("api-key", c.apiKey)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	return c.http.Do(req)
}

// createWorkout POSTs a new workout and returns Hevy's workout id.
func (c *hevyClient) createWorkout(ctx context.Context, workout *hevyWorkoutRequest) (string, error) {
	resp, err := c.do(ctx, http.MethodPost, c.baseURL+"/workouts", workout)
	if err != nil {
		return "", fmt.Errorf("hevy create request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		err := httputil.WrapResponseError(resp, "hevy create workout failed")
		c.logger.Error("Hevy API error", "status", resp.StatusCode, "error", err)
		return "", err
	}

	var respBody struct {
		ID string `json:"workoutId"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&respBody); err != nil {
		return "", fmt.Errorf("decode hevy response: %w", err)
	}
	return respBody.ID, nil
}

// getWorkout fetches the full workout including exercises. Hevy's PUT replaces
// the whole workout, so updates must start from this.
func (c *hevyClient) getWorkout(ctx context.Context, workoutID string) (*hevyWorkoutFull, error) {
	resp, err := c.do(ctx, http.MethodGet, c.baseURL+"/workouts/"+workoutID, nil)
	if err != nil {
		return nil, fmt.Errorf("hevy get request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return nil, httputil.WrapResponseError(resp, "hevy get workout failed")
	}

	var workout hevyWorkoutFull
	if err := json.NewDecoder(resp.Body).Decode(&workout); err != nil {
		return nil, fmt.Errorf("decode existing workout: %w", err)
	}
	return &workout, nil
}

// putWorkout replaces the workout with the given full payload.
func (c *hevyClient) putWorkout(ctx context.Context, workoutID string, workout *hevyWorkoutRequest) error {
	resp, err := c.do(ctx, http.MethodPut, c.baseURL+"/workouts/"+workoutID, workout)
	if err != nil {
		return fmt.Errorf("hevy put request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		err := httputil.WrapResponseError(resp, "hevy update workout failed")
		c.logger.Error("Hevy PUT failed", "status", resp.StatusCode, "error", err)
		return err
	}
	return nil
}

// listTemplates pages through the user's exercise templates.
func (c *hevyClient) listTemplates(ctx context.Context) ([]exerciseTemplate, error) {
	var templates []exerciseTemplate
	page := 1

	for {
		url := fmt.Sprintf("%s/exercise_templates?page=%d&page_size=100", c.baseURL, page)
		resp, err := c.do(ctx, http.MethodGet, url, nil)
		if err != nil {
			return nil, fmt.Errorf("hevy list templates failed: %w", err)
		}

		if resp.StatusCode >= 400 {
			err := httputil.WrapResponseError(resp, "hevy list templates failed")
			resp.Body.Close()
			return nil, err
		}

		var result struct {
			ExerciseTemplates []exerciseTemplate `json:"exercise_templates"`
			Page              int                `json:"page"`
			PageCount         int                `json:"page_count"`
		}
		decodeErr := json.NewDecoder(resp.Body).Decode(&result)
		resp.Body.Close()
		if decodeErr != nil {
			return nil, fmt.Errorf("decode templates page: %w", decodeErr)
		}

		templates = append(templates, result.ExerciseTemplates...)
		if page >= result.PageCount || len(result.ExerciseTemplates) == 0 {
			break
		}
		page++
	}

	c.logger.Debug("Fetched exercise templates", "count", len(templates))
	return templates, nil
}

// createTemplate creates a custom exercise template and returns its id.
func (c *hevyClient) createTemplate(ctx context.Context, title, exerciseType, muscleGroup string) (string, error) {
	payload := map[string]interface{}{
		"exercise": map[string]interface{}{
			"title":         title,
			"exercise_type": exerciseType,
			"muscle_group":  muscleGroup,
		},
	}

	resp, err := c.do(ctx, http.MethodPost, c.baseURL+"/exercise_templates", payload)
	if err != nil {
		return "", fmt.Errorf("hevy create template failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return "", httputil.WrapResponseError(resp, "hevy create template failed")
	}

	var result struct {
		ExerciseTemplate exerciseTemplate `json:"exercise_template"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", fmt.Errorf("decode created template: %w", err)
	}
	if result.ExerciseTemplate.Id == "" {
		return "", fmt.Errorf("created template has no id")
	}
	return result.ExerciseTemplate.Id, nil
}
