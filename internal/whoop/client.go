package whoop

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"whoop-sync/internal/config"
	"whoop-sync/internal/metrics"
)

const (
	defaultBaseURL  = "https://api.prod.whoop.com/developer"
	defaultTokenURL = "https://api.prod.whoop.com/oauth/oauth2/token"

	// Scopes requested on refresh; offline keeps refresh tokens rotating
	tokenScope = "offline read:recovery read:cycles read:sleep read:workout"

	// expires_in defaults to one hour when the token endpoint omits it
	defaultExpiresIn = 3600
)

// Client is a WHOOP API client
type Client struct {
	httpClient   *http.Client
	clientID     string
	clientSecret string
	redirectURI  string
	logger       *slog.Logger

	// Overridable for tests
	BaseURL  string
	TokenURL string
	Retry    RetryPolicy
}

// NewClient creates a new WHOOP API client from configuration
func NewClient(cfg *config.Config) *Client {
	timeout := cfg.WhoopRequestTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	return &Client{
		httpClient:   &http.Client{Timeout: timeout},
		clientID:     cfg.WhoopClientID,
		clientSecret: cfg.WhoopClientSecret,
		redirectURI:  cfg.WhoopRedirectURI,
		logger:       slog.Default(),
		BaseURL:      defaultBaseURL,
		TokenURL:     defaultTokenURL,
		Retry:        DefaultTokenRetryPolicy,
	}
}

// TokenResponse represents the response from a token exchange or refresh
type TokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int    `json:"expires_in"`
}

// ExpiresAt computes the absolute expiry from expires_in, defaulting to one
// hour when the field was absent
func (t *TokenResponse) ExpiresAt(now time.Time) int64 {
	expiresIn := t.ExpiresIn
	if expiresIn <= 0 {
		expiresIn = defaultExpiresIn
	}
	return now.Add(time.Duration(expiresIn) * time.Second).Unix()
}

// ExchangeCode exchanges an authorization code for access and refresh
// tokens. A bad code is never retried.
func (c *Client) ExchangeCode(ctx context.Context, code string) (*TokenResponse, error) {
	form := url.Values{
		"grant_type":    {"authorization_code"},
		"code":          {code},
		"client_id":     {c.clientID},
		"client_secret": {c.clientSecret},
		"redirect_uri":  {c.redirectURI},
	}

	tokenResp, status, err := c.postTokenForm(ctx, form, metrics.OpExchangeCode)
	if err != nil {
		return nil, &ExchangeError{StatusCode: status, Err: err}
	}
	return tokenResp, nil
}

// RefreshToken exchanges a refresh token for a new token triple. Server
// errors and network failures are retried with exponential backoff per the
// client's RetryPolicy; a 4xx (invalid grant) is terminal.
func (c *Client) RefreshToken(ctx context.Context, refreshToken string) (*TokenResponse, error) {
	form := url.Values{
		"grant_type":    {"refresh_token"},
		"refresh_token": {refreshToken},
		"client_id":     {c.clientID},
		"client_secret": {c.clientSecret},
		"scope":         {tokenScope},
	}

	var lastStatus int
	var lastErr error

	for attempt := 1; attempt <= c.Retry.MaxAttempts; attempt++ {
		if attempt > 1 {
			delay := c.Retry.Delay(attempt - 1)
			c.logger.Info("retrying token refresh", "attempt", attempt, "delay_ms", delay.Milliseconds())
			select {
			case <-ctx.Done():
				metrics.TokenRefreshesTotal.WithLabelValues(metrics.OutcomeError).Inc()
				return nil, &RefreshError{Attempts: attempt - 1, Err: ctx.Err()}
			case <-time.After(delay):
			}
		}

		tokenResp, status, err := c.postTokenForm(ctx, form, metrics.OpRefreshToken)
		if err == nil {
			metrics.TokenRefreshesTotal.WithLabelValues(metrics.OutcomeSuccess).Inc()
			return tokenResp, nil
		}

		lastStatus = status
		lastErr = err

		if !c.Retry.Retryable(status) {
			// Invalid grant or other client error: retrying will never succeed
			metrics.TokenRefreshesTotal.WithLabelValues(metrics.OutcomeError).Inc()
			return nil, &RefreshError{StatusCode: status, Attempts: attempt, Err: err}
		}
	}

	metrics.TokenRefreshesTotal.WithLabelValues(metrics.OutcomeError).Inc()
	return nil, &RefreshError{StatusCode: lastStatus, Attempts: c.Retry.MaxAttempts, Err: lastErr}
}

// postTokenForm performs one form-encoded POST against the token endpoint.
// Returns the decoded token response, or the response status (0 for network
// failure) and an error.
func (c *Client) postTokenForm(ctx context.Context, form url.Values, operation string) (*TokenResponse, int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.TokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, 0, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	duration := time.Since(start)

	if err != nil {
		c.logger.Error("token request failed", "operation", operation, "error", err, "duration_ms", duration.Milliseconds())
		metrics.WhoopAPIRequestsTotal.WithLabelValues(operation, "0").Inc()
		return nil, 0, fmt.Errorf("token request failed: %w", err)
	}
	defer resp.Body.Close()

	statusStr := strconv.Itoa(resp.StatusCode)
	metrics.WhoopAPIRequestsTotal.WithLabelValues(operation, statusStr).Inc()
	metrics.WhoopAPIRequestDuration.WithLabelValues(operation, statusStr).Observe(duration.Seconds())

	c.logger.Info("whoop_token_request", "operation", operation, "status", resp.StatusCode, "duration_ms", duration.Milliseconds())

	if resp.StatusCode != http.StatusOK {
		bodyBytes, _ := io.ReadAll(resp.Body)
		return nil, resp.StatusCode, fmt.Errorf("token request failed with status %d: %s", resp.StatusCode, string(bodyBytes))
	}

	var tokenResp TokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&tokenResp); err != nil {
		return nil, resp.StatusCode, fmt.Errorf("failed to decode token response: %w", err)
	}

	return &tokenResp, resp.StatusCode, nil
}

// UserProfile is the basic profile returned for the token's owner
type UserProfile struct {
	UserID    int64  `json:"user_id"`
	Email     string `json:"email"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
}

// GetUserProfile fetches the basic profile of the athlete the access token
// belongs to, used to learn the WHOOP user id after authorization
func (c *Client) GetUserProfile(ctx context.Context, accessToken string) (*UserProfile, error) {
	body, err := c.get(ctx, "/v1/user/profile/basic", accessToken, metrics.OpGetResource, "profile")
	if err != nil {
		return nil, err
	}

	var profile UserProfile
	if err := json.Unmarshal(body, &profile); err != nil {
		return nil, fmt.Errorf("failed to decode user profile: %w", err)
	}
	return &profile, nil
}

// get performs a bearer-token GET against the WHOOP API and returns the
// response body. Any non-2xx response or network failure is a FetchError.
func (c *Client) get(ctx context.Context, path, accessToken, operation string, kind Kind) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.BaseURL+path, nil)
	if err != nil {
		return nil, &FetchError{Kind: kind, Err: fmt.Errorf("failed to create request: %w", err)}
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	duration := time.Since(start)

	if err != nil {
		c.logger.Error("whoop request failed", "path", path, "error", err, "duration_ms", duration.Milliseconds())
		metrics.WhoopAPIRequestsTotal.WithLabelValues(operation, "0").Inc()
		return nil, &FetchError{Kind: kind, Err: err}
	}
	defer resp.Body.Close()

	statusStr := strconv.Itoa(resp.StatusCode)
	metrics.WhoopAPIRequestsTotal.WithLabelValues(operation, statusStr).Inc()
	metrics.WhoopAPIRequestDuration.WithLabelValues(operation, statusStr).Observe(duration.Seconds())

	c.logger.Info("whoop_api_request", "path", path, "status", resp.StatusCode, "duration_ms", duration.Milliseconds())

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		bodyBytes, _ := io.ReadAll(resp.Body)
		return nil, &FetchError{
			Kind:       kind,
			StatusCode: resp.StatusCode,
			Err:        fmt.Errorf("request failed with status %d: %s", resp.StatusCode, string(bodyBytes)),
		}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &FetchError{Kind: kind, Err: fmt.Errorf("failed to read response body: %w", err)}
	}

	return body, nil
}
