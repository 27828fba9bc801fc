package handlers

import (
	"log/slog"
	"net/http"
	"strconv"

	"whoop-sync/internal/config"
	"whoop-sync/internal/database"
)

// EventsHandler serves the webhook event audit log
type EventsHandler struct {
	db     *database.DB
	config *config.Config
	logger *slog.Logger
}

// NewEventsHandler creates a new events handler
func NewEventsHandler(db *database.DB, cfg *config.Config) *EventsHandler {
	return &EventsHandler{
		db:     db,
		config: cfg,
		logger: slog.Default(),
	}
}

// HandleEvents handles GET /api/webhook-events
// Query parameters:
//   - user_id: WHOOP user id to filter on (required)
//   - limit: Maximum events to return (default: 100, max: 1000)
//
// Authentication: Requires Authorization header
func (h *EventsHandler) HandleEvents(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	authHeader := r.Header.Get("Authorization")
	if authHeader != "Bearer "+h.config.InternalAPIKey {
		h.logger.Warn("Unauthorized events request", "has_auth", authHeader != "")
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	query := r.URL.Query()

	userID, err := strconv.ParseInt(query.Get("user_id"), 10, 64)
	if err != nil {
		http.Error(w, "Invalid user_id parameter", http.StatusBadRequest)
		return
	}

	limit := 100
	if limitStr := query.Get("limit"); limitStr != "" {
		limit, err = strconv.Atoi(limitStr)
		if err != nil {
			http.Error(w, "Invalid limit parameter", http.StatusBadRequest)
			return
		}
		if limit < 1 || limit > 1000 {
			http.Error(w, "Limit must be between 1 and 1000", http.StatusBadRequest)
			return
		}
	}

	events, err := h.db.ListWebhookEventsByUser(userID, limit)
	if err != nil {
		h.logger.Error("Failed to list webhook events", "error", err, "user_id", userID)
		http.Error(w, "Internal error", http.StatusInternalServerError)
		return
	}
	if events == nil {
		events = []*database.WebhookEvent{}
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{"events": events, "count": len(events)})
}
