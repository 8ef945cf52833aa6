package oauth

import (
	"context"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"golang.org/x/oauth2"

	"github.com/pulsesync/server/pkg/bootstrap"
)

const stravaTokenURL = "https://www.strava.com/oauth/token"

// Token is the subset of the OAuth token we persist per user.
type Token struct {
	AccessToken  string
	RefreshToken string
	Expiry       time.Time
}

// TokenSource returns a valid token.
// It is safe for concurrent use by multiple goroutines.
type TokenSource interface {
	Token(context.Context) (*Token, error)
	ForceRefresh(context.Context) (*Token, error)
}

// FirestoreTokenSource reads tokens from the user document and refreshes them
// through the provider's token endpoint when they are expired or about to be.
type FirestoreTokenSource struct {
	svc      *bootstrap.Service
	userID   string
	provider string
	mu       sync.Mutex
}

func NewFirestoreTokenSource(svc *bootstrap.Service, userID, provider string) *FirestoreTokenSource {
	return &FirestoreTokenSource{
		svc:      svc,
		userID:   userID,
		provider: provider,
	}
}

// Token returns a token, refreshing it proactively if it expires within a minute.
func (s *FirestoreTokenSource) Token(ctx context.Context) (*Token, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	accessToken, refreshToken, expiry, err := s.load(ctx)
	if err != nil {
		return nil, err
	}
	if accessToken == "" {
		return nil, fmt.Errorf("missing access token for %s", s.provider)
	}
	if refreshToken == "" {
		return nil, fmt.Errorf("missing refresh token for %s", s.provider)
	}

	if !expiry.IsZero() && time.Now().Add(1*time.Minute).After(expiry) {
		return s.refresh(ctx, refreshToken)
	}

	return &Token{AccessToken: accessToken, RefreshToken: refreshToken, Expiry: expiry}, nil
}

// ForceRefresh forcibly refreshes the token regardless of expiry.
func (s *FirestoreTokenSource) ForceRefresh(ctx context.Context) (*Token, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, refreshToken, _, err := s.load(ctx)
	if err != nil {
		return nil, err
	}
	if refreshToken == "" {
		return nil, fmt.Errorf("missing refresh token for %s", s.provider)
	}
	return s.refresh(ctx, refreshToken)
}

func (s *FirestoreTokenSource) load(ctx context.Context) (access, refresh string, expiry time.Time, err error) {
	user, err := s.svc.DB.GetUser(ctx, s.userID)
	if err != nil {
		return "", "", time.Time{}, fmt.Errorf("failed to get user: %w", err)
	}
	if user == nil || user.Integrations == nil {
		return "", "", time.Time{}, fmt.Errorf("user has no integrations linked")
	}

	switch s.provider {
	case "strava":
		strava := user.Integrations.Strava
		if strava == nil || !strava.Enabled {
			return "", "", time.Time{}, fmt.Errorf("strava not linked/enabled")
		}
		return strava.AccessToken, strava.RefreshToken, strava.ExpiresAt, nil
	default:
		return "", "", time.Time{}, fmt.Errorf("unknown provider %s", s.provider)
	}
}

// refresh exchanges the refresh token and persists the new credentials using
// dotted paths so the rest of the integration sub-object survives.
func (s *FirestoreTokenSource) refresh(ctx context.Context, refreshToken string) (*Token, error) {
	clientID, err := s.getSecret("client-id")
	if err != nil {
		return nil, err
	}
	clientSecret, err := s.getSecret("client-secret")
	if err != nil {
		return nil, err
	}

	var tokenURL string
	switch s.provider {
	case "strava":
		tokenURL = stravaTokenURL
	default:
		return nil, fmt.Errorf("unsupported provider for refresh: %s", s.provider)
	}

	conf := &oauth2.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		Endpoint:     oauth2.Endpoint{TokenURL: tokenURL},
	}

	fresh, err := conf.TokenSource(ctx, &oauth2.Token{RefreshToken: refreshToken}).Token()
	if err != nil {
		return nil, fmt.Errorf("token refresh failed: %w", err)
	}

	prefix := "integrations." + s.provider + "."
	updateData := map[string]interface{}{
		prefix + "access_token": fresh.AccessToken,
		prefix + "expires_at":   fresh.Expiry,
		prefix + "last_used_at": time.Now(),
	}
	// Only persist a refresh token when the provider rotated it; writing an
	// empty value would wipe the stored one.
	if fresh.RefreshToken != "" {
		updateData[prefix+"refresh_token"] = fresh.RefreshToken
	}

	if err := s.svc.DB.UpdateUser(ctx, s.userID, updateData); err != nil {
		return nil, fmt.Errorf("failed to persist new tokens: %w", err)
	}

	newRefreshToken := fresh.RefreshToken
	if newRefreshToken == "" {
		newRefreshToken = refreshToken
	}

	return &Token{
		AccessToken:  fresh.AccessToken,
		RefreshToken: newRefreshToken,
		Expiry:       fresh.Expiry,
	}, nil
}

func (s *FirestoreTokenSource) getSecret(keyType string) (string, error) {
	// "strava" + "client-id" becomes STRAVA_CLIENT_ID
	envVarName := strings.ToUpper(strings.ReplaceAll(s.provider, "-", "_")) + "_" + strings.ToUpper(strings.ReplaceAll(keyType, "-", "_"))
	value := os.Getenv(envVarName)
	if value == "" {
		return "", fmt.Errorf("environment variable %s not found", envVarName)
	}
	return value, nil
}
