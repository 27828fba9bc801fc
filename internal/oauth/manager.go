package oauth

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strconv"
	"sync"
	"time"

	"whoop-sync/internal/config"
	"whoop-sync/internal/database"
	"whoop-sync/internal/whoop"
)

const (
	authorizationURL = "https://api.prod.whoop.com/oauth/oauth2/auth"
	scope            = "offline read:recovery read:cycles read:sleep read:workout"

	// Safety margin subtracted from token expiry: a token expiring within
	// the margin is treated as already expired and refreshed before use
	tokenExpiryMargin = 5 * time.Minute

	// JobTypeSyncAll is enqueued after a successful connection to pull the
	// athlete's full history
	JobTypeSyncAll = "sync_all"
)

// ErrNotConnected indicates the athlete has no WHOOP credential on file.
// No network call is made in this case; the athlete must (re)authorize.
var ErrNotConnected = errors.New("whoop not connected")

// Manager owns the WHOOP OAuth token lifecycle: the authorization flow,
// the expiry check, and refresh-with-rotation
type Manager struct {
	config      *config.Config
	db          *database.DB
	whoopClient *whoop.Client
	logger      *slog.Logger
	states      *stateStore // CSRF protection
}

// stateStore tracks valid OAuth states for CSRF protection
type stateStore struct {
	mu     sync.RWMutex
	states map[string]stateEntry
}

type stateEntry struct {
	athleteID int64
	expiresAt time.Time
}

// NewManager creates a new OAuth manager
func NewManager(cfg *config.Config, db *database.DB, whoopClient *whoop.Client) *Manager {
	mgr := &Manager{
		config:      cfg,
		db:          db,
		whoopClient: whoopClient,
		logger:      slog.Default(),
		states: &stateStore{
			states: make(map[string]stateEntry),
		},
	}

	// Start background cleanup of expired states
	go mgr.cleanupStates()

	return mgr
}

// GetValidToken returns a valid access token for the athlete, refreshing it
// first if it expires within the safety margin. The rotated token triple is
// persisted before the new access token is returned.
//
// Concurrent refreshes for the same athlete are tolerated, not serialized:
// refresh tokens rotate on every refresh, so the loser of a concurrent race
// observes an invalid-grant 4xx and surfaces a RefreshError. The window is
// narrow and self-correcting on the next natural refresh.
func (m *Manager) GetValidToken(ctx context.Context, athlete *database.Athlete) (string, error) {
	if !athlete.Connected() {
		return "", ErrNotConnected
	}

	now := time.Now()
	expiresAt := time.Unix(athlete.TokenExpiresAt, 0)

	// Check expiry against now + margin, never raw now
	if now.Before(expiresAt.Add(-tokenExpiryMargin)) {
		return athlete.AccessToken, nil
	}

	m.logger.Info("access token expired or expiring, refreshing", "athlete_id", athlete.AthleteID)

	tokenResp, err := m.whoopClient.RefreshToken(ctx, athlete.RefreshToken)
	if err != nil {
		return "", err
	}

	newExpiresAt := tokenResp.ExpiresAt(now)
	if err := m.db.UpdateAthleteTokens(athlete.AthleteID, tokenResp.AccessToken, tokenResp.RefreshToken, newExpiresAt); err != nil {
		return "", fmt.Errorf("failed to persist rotated tokens: %w", err)
	}

	// Keep the in-memory record consistent with what was persisted
	athlete.AccessToken = tokenResp.AccessToken
	athlete.RefreshToken = tokenResp.RefreshToken
	athlete.TokenExpiresAt = newExpiresAt

	m.logger.Info("refreshed access token", "athlete_id", athlete.AthleteID, "expires_at", newExpiresAt)

	return tokenResp.AccessToken, nil
}

// GenerateAuthURL generates a WHOOP authorization URL bound to the athlete
// initiating the connection, with CSRF protection
func (m *Manager) GenerateAuthURL(athleteID int64) (string, string, error) {
	state, err := generateRandomState()
	if err != nil {
		return "", "", fmt.Errorf("failed to generate state: %w", err)
	}

	// Store state with expiration (10 minutes)
	m.states.mu.Lock()
	m.states.states[state] = stateEntry{
		athleteID: athleteID,
		expiresAt: time.Now().Add(10 * time.Minute),
	}
	m.states.mu.Unlock()

	params := url.Values{
		"client_id":     {m.config.WhoopClientID},
		"redirect_uri":  {m.config.WhoopRedirectURI},
		"response_type": {"code"},
		"scope":         {scope},
		"state":         {state},
	}

	authURL := fmt.Sprintf("%s?%s", authorizationURL, params.Encode())

	m.logger.Info("Generated auth URL", "athlete_id", athleteID, "state", state)

	return authURL, state, nil
}

// HandleCallback processes the OAuth callback: validates the CSRF state,
// exchanges the code, learns the WHOOP user id from the new token, persists
// the credential, and enqueues a full history sync.
// Returns the athlete ID on success.
func (m *Manager) HandleCallback(ctx context.Context, code, state string) (int64, error) {
	athleteID, ok := m.consumeState(state)
	if !ok {
		return 0, fmt.Errorf("invalid or expired state")
	}

	m.logger.Info("Handling OAuth callback", "athlete_id", athleteID, "code_length", len(code))

	tokenResp, err := m.whoopClient.ExchangeCode(ctx, code)
	if err != nil {
		return 0, err
	}

	profile, err := m.whoopClient.GetUserProfile(ctx, tokenResp.AccessToken)
	if err != nil {
		return 0, fmt.Errorf("failed to fetch user profile: %w", err)
	}

	whoopUserID := strconv.FormatInt(profile.UserID, 10)
	expiresAt := tokenResp.ExpiresAt(time.Now())

	if err := m.db.ConnectAthlete(athleteID, whoopUserID, tokenResp.AccessToken, tokenResp.RefreshToken, expiresAt); err != nil {
		return 0, fmt.Errorf("failed to store credential: %w", err)
	}

	m.logger.Info("Stored WHOOP credential", "athlete_id", athleteID, "whoop_user_id", whoopUserID)

	// Trigger a full history sync in the background
	if _, err := m.db.EnqueueSyncJob(athleteID, JobTypeSyncAll); err != nil {
		m.logger.Error("Failed to enqueue sync job", "error", err, "athlete_id", athleteID)
		// Don't fail the OAuth flow if sync enqueueing fails
	} else {
		m.logger.Info("Enqueued sync job", "athlete_id", athleteID, "job_type", JobTypeSyncAll)
	}

	return athleteID, nil
}

// consumeState checks if a state is valid and removes it (one-time use)
func (m *Manager) consumeState(state string) (int64, bool) {
	m.states.mu.Lock()
	defer m.states.mu.Unlock()

	entry, exists := m.states.states[state]
	if !exists {
		return 0, false
	}

	// Remove state after use (one-time use)
	delete(m.states.states, state)

	if time.Now().After(entry.expiresAt) {
		return 0, false
	}

	return entry.athleteID, true
}

// cleanupStates removes expired states every minute
func (m *Manager) cleanupStates() {
	ticker := time.NewTicker(1 * time.Minute)
	defer ticker.Stop()

	for range ticker.C {
		m.states.mu.Lock()
		now := time.Now()
		for state, entry := range m.states.states {
			if now.After(entry.expiresAt) {
				delete(m.states.states, state)
			}
		}
		m.states.mu.Unlock()
	}
}

// generateRandomState generates a cryptographically secure random state
func generateRandomState() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.URLEncoding.EncodeToString(b), nil
}
