package handlers

import (
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"whoop-sync/internal/config"
	"whoop-sync/internal/database"
	"whoop-sync/internal/oauth"
)

// OAuthHandler handles the WHOOP connect flow endpoints
type OAuthHandler struct {
	oauthManager *oauth.Manager
	db           *database.DB
	config       *config.Config
	logger       *slog.Logger
}

// NewOAuthHandler creates a new OAuth handler
func NewOAuthHandler(oauthManager *oauth.Manager, db *database.DB, cfg *config.Config) *OAuthHandler {
	return &OAuthHandler{
		oauthManager: oauthManager,
		db:           db,
		config:       cfg,
		logger:       slog.Default(),
	}
}

// HandleAuthStart initiates the OAuth flow by redirecting to WHOOP
func (h *OAuthHandler) HandleAuthStart(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	athleteIDStr := r.URL.Query().Get("athlete_id")
	athleteID, err := strconv.ParseInt(athleteIDStr, 10, 64)
	if err != nil {
		http.Error(w, "Invalid athlete_id parameter", http.StatusBadRequest)
		return
	}

	athlete, err := h.db.GetAthlete(athleteID)
	if err != nil {
		h.logger.Error("Failed to look up athlete", "athlete_id", athleteID, "error", err)
		http.Error(w, "Failed to start OAuth flow", http.StatusInternalServerError)
		return
	}
	if athlete == nil {
		http.Error(w, "Unknown athlete", http.StatusNotFound)
		return
	}

	authURL, state, err := h.oauthManager.GenerateAuthURL(athleteID)
	if err != nil {
		h.logger.Error("Failed to generate auth URL", "error", err)
		http.Error(w, "Failed to start OAuth flow", http.StatusInternalServerError)
		return
	}

	h.logger.Info("Starting OAuth flow", "athlete_id", athleteID, "state", state)

	http.Redirect(w, r, authURL, http.StatusTemporaryRedirect)
}

// HandleCallback processes the OAuth callback from WHOOP
func (h *OAuthHandler) HandleCallback(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	code := r.URL.Query().Get("code")
	state := r.URL.Query().Get("state")
	errorParam := r.URL.Query().Get("error")

	// The user declined on the WHOOP consent screen
	if errorParam != "" {
		h.logger.Warn("OAuth authorization denied", "error", errorParam)
		http.Error(w, fmt.Sprintf("Authorization failed: %s", errorParam), http.StatusBadRequest)
		return
	}

	if code == "" || state == "" {
		h.logger.Warn("Missing OAuth parameters", "has_code", code != "", "has_state", state != "")
		http.Error(w, "Missing code or state parameter", http.StatusBadRequest)
		return
	}

	athleteID, err := h.oauthManager.HandleCallback(r.Context(), code, state)
	if err != nil {
		h.logger.Error("Failed to handle OAuth callback", "error", err)

		errorMsg := "Failed to complete authorization"
		if err.Error() == "invalid or expired state" {
			errorMsg = "Invalid or expired authorization request. Please try again."
		}

		http.Error(w, errorMsg, http.StatusBadRequest)
		return
	}

	h.logger.Info("OAuth flow completed successfully", "athlete_id", athleteID)

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	fmt.Fprintf(w, `<!DOCTYPE html>
<html>
<head>
	<meta charset="utf-8">
	<title>WHOOP Connected</title>
	<style>
		body {
			font-family: -apple-system, BlinkMacSystemFont, "Segoe UI", Helvetica, Arial, sans-serif;
			max-width: 600px;
			margin: 100px auto;
			padding: 20px;
			text-align: center;
		}
		h1 { color: #00a0df; }
		p { color: #666; line-height: 1.6; }
		code {
			background: #f4f4f4;
			padding: 2px 6px;
			border-radius: 3px;
			font-family: monospace;
		}
	</style>
</head>
<body>
	<h1>✓ WHOOP Account Connected</h1>
	<p>Your WHOOP account has been linked (Athlete ID: <code>%d</code>)</p>
	<p>Your cycle, sleep, recovery and workout history is now syncing in the background.</p>
	<p>You can close this window and return to your application.</p>
</body>
</html>`, athleteID)
}
