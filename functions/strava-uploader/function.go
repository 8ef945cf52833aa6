// Package stravauploader uploads enriched activities to Strava. Create posts
// the generated FIT file to Strava's upload endpoint; Update patches name,
// description and sport type on the activity a previous run created.
package stravauploader

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"mime/multipart"
	"net/http"
	"strconv"
	"sync"

	"github.com/GoogleCloudPlatform/functions-framework-go/functions"
	"github.com/cloudevents/sdk-go/v2/event"

	shared "github.com/pulsesync/server/pkg"
	"github.com/pulsesync/server/pkg/bootstrap"
	"github.com/pulsesync/server/pkg/description"
	"github.com/pulsesync/server/pkg/domain/activity"
	"github.com/pulsesync/server/pkg/framework"
	httputil "github.com/pulsesync/server/pkg/infrastructure/http"
	"github.com/pulsesync/server/pkg/infrastructure/oauth"
	"github.com/pulsesync/server/pkg/types"
	"github.com/pulsesync/server/pkg/uploader"
)

const stravaAPIBase = "https://www.strava.com/api/v3"

var (
	svc     *bootstrap.Service
	svcOnce sync.Once
	svcErr  error
)

func init() {
	functions.CloudEvent("UploadToStrava", UploadToStrava)
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

// UploadToStrava is the entry point
func UploadToStrava(ctx context.Context, e event.Event) error {
	svc, err := initService(ctx)
	if err != nil {
		return fmt.Errorf("service init failed: %v", err)
	}
	return framework.WrapCloudEvent("strava-uploader", svc, uploadHandler)(ctx, e)
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

	dest := &stravaDestination{
		svc:     fwCtx.Service,
		store:   fwCtx.Service.Store,
		logger:  fwCtx.Logger,
		baseURL: stravaAPIBase,
	}
	up := uploader.New(fwCtx.Service.DB, fwCtx.Service.Store, dest, types.DestinationStrava)
	return up.Process(ctx, fwCtx.Logger, &enriched, enriched.PipelineExecutionId)
}

// stravaDestination talks to Strava through the per-user OAuth client. The
// httpClient field is injectable for tests; when nil the token-source backed
// client is built per call.
type stravaDestination struct {
	svc        *bootstrap.Service
	store      shared.BlobStore
	logger     *slog.Logger
	baseURL    string
	httpClient *http.Client
}

func (s *stravaDestination) Name() string { return "strava" }

// checkIntegration verifies the user's Strava link before any API call. The
// error text is what the user sees on the failed destination, so it says what
// to fix.
func (s *stravaDestination) checkIntegration(user *types.UserRecord) error {
	if user.Integrations == nil || user.Integrations.Strava == nil || user.Integrations.Strava.RefreshToken == "" {
		return fmt.Errorf("Strava is not connected: link your Strava account in settings")
	}
	if !user.Integrations.Strava.Enabled {
		return fmt.Errorf("Strava integration is disabled: re-enable it in settings to sync")
	}
	return nil
}

func (s *stravaDestination) client(userID string) *http.Client {
	if s.httpClient != nil {
		return s.httpClient
	}
	source := oauth.NewFirestoreTokenSource(s.svc, userID, "strava")
	return oauth.NewClientWithUsageTracking(source, s.svc, userID, "strava")
}

// Create posts the FIT file to Strava's asynchronous upload endpoint. Strava
// answers with an upload id immediately and attaches the activity id once
// processing finishes, so the returned external id prefers the activity id
// and falls back to the upload id.
func (s *stravaDestination) Create(ctx context.Context, payload *types.EnrichedActivity, user *types.UserRecord) (string, error) {
	if err := s.checkIntegration(user); err != nil {
		return "", err
	}
	if payload.FitFileUri == "" {
		return "", fmt.Errorf("no FIT file uri on enriched event")
	}
	bucket, object, ok := activity.ParseGCSURI(payload.FitFileUri)
	if !ok {
		return "", fmt.Errorf("invalid FIT file uri %q", payload.FitFileUri)
	}

	fitData, err := s.store.Read(ctx, bucket, object)
	if err != nil {
		return "", fmt.Errorf("read FIT file: %w", err)
	}

	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	part, err := writer.CreateFormFile("file", "activity.fit")
	if err != nil {
		return "", fmt.Errorf("build multipart form: %w", err)
	}
	if _, err := part.Write(fitData); err != nil {
		return "", fmt.Errorf("write FIT payload: %w", err)
	}
	writer.WriteField("data_type", "fit")
	if payload.Name != "" {
		writer.WriteField("name", payload.Name)
	}
	if payload.Description != "" {
		writer.WriteField("description", payload.Description)
	}
	writer.Close()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+"/uploads", body)
	if err != nil {
		return "", fmt.Errorf("create upload request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := s.client(payload.UserId).Do(req)
	if err != nil {
		return "", fmt.Errorf("strava upload request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		err := httputil.WrapResponseError(resp, "strava upload failed")
		s.logger.Error("Strava upload failed", "status", resp.StatusCode, "error", err)
		return "", err
	}

	var uploadResp struct {
		ID         int64  `json:"id"`
		ActivityID int64  `json:"activity_id"`
		Status     string `json:"status"`
		Error      string `json:"error"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&uploadResp); err != nil {
		return "", fmt.Errorf("decode upload response: %w", err)
	}
	if uploadResp.Error != "" {
		return "", fmt.Errorf("strava rejected upload: %s", uploadResp.Error)
	}

	s.logger.Info("Strava upload accepted",
		"upload_id", uploadResp.ID,
		"strava_activity_id", uploadResp.ActivityID,
		"upload_status", uploadResp.Status,
	)

	if uploadResp.ActivityID != 0 {
		return strconv.FormatInt(uploadResp.ActivityID, 10), nil
	}
	return strconv.FormatInt(uploadResp.ID, 10), nil
}

// stravaActivity is the slice of Strava's activity resource an update cares
// about.
type stravaActivity struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	SportType   string `json:"sport_type"`
}

func (s *stravaDestination) getActivity(ctx context.Context, userID, activityID string) (*stravaActivity, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.baseURL+"/activities/"+activityID, nil)
	if err != nil {
		return nil, fmt.Errorf("create fetch request: %w", err)
	}

	resp, err := s.client(userID).Do(req)
	if err != nil {
		return nil, fmt.Errorf("strava fetch request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		err := httputil.WrapResponseError(resp, "strava activity fetch failed")
		s.logger.Error("Strava activity fetch failed", "status", resp.StatusCode, "error", err)
		return nil, err
	}

	var act stravaActivity
	if err := json.NewDecoder(resp.Body).Decode(&act); err != nil {
		return nil, fmt.Errorf("decode activity response: %w", err)
	}
	return &act, nil
}

// Update patches the existing Strava activity's metadata. The FIT samples are
// immutable after upload; only name, description and sport type can change.
// The activity is fetched first so the description merge keeps whatever the
// user edited on Strava, and only fields that actually changed go on the PUT.
func (s *stravaDestination) Update(ctx context.Context, payload *types.EnrichedActivity, user *types.UserRecord, prior *types.UploadedActivityRecord) error {
	if err := s.checkIntegration(user); err != nil {
		return err
	}

	existing, err := s.getActivity(ctx, payload.UserId, prior.DestinationId)
	if err != nil {
		return fmt.Errorf("fetch existing activity: %w", err)
	}

	update := map[string]interface{}{}
	if payload.Name != "" && payload.Name != existing.Name {
		update["name"] = payload.Name
	}
	headers := description.SectionHeaders(payload.EnrichmentMetadata)
	if merged := description.MergeRemote(existing.Description, payload.Description, headers); merged != existing.Description {
		update["description"] = merged
	}
	if payload.ActivityType != types.ActivityTypeUnspecified {
		if sport := activity.StravaActivityType(payload.ActivityType); sport != existing.SportType {
			update["sport_type"] = sport
		}
	}
	if len(update) == 0 {
		s.logger.Info("No changes for Strava activity, skipping update", "strava_activity_id", prior.DestinationId)
		return nil
	}

	data, err := json.Marshal(update)
	if err != nil {
		return fmt.Errorf("marshal update body: %w", err)
	}

	url := s.baseURL + "/activities/" + prior.DestinationId
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, url, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("create update request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client(payload.UserId).Do(req)
	if err != nil {
		return fmt.Errorf("strava update request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		err := httputil.WrapResponseError(resp, "strava update failed")
		s.logger.Error("Strava update failed", "status", resp.StatusCode, "error", err)
		return err
	}

	s.logger.Info("Updated Strava activity", "strava_activity_id", prior.DestinationId)
	return nil
}
