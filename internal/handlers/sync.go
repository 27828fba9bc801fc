package handlers

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"whoop-sync/internal/config"
	"whoop-sync/internal/database"
	"whoop-sync/internal/oauth"
	"whoop-sync/internal/reconcile"
	"whoop-sync/internal/whoop"
)

const (
	// defaultSyncLimit matches the WHOOP collection API default page size
	defaultSyncLimit = 25
	// maxSyncLimit is the largest page the WHOOP collection API will serve
	maxSyncLimit = 25
)

// SyncHandler handles the pull-sync endpoints: each request fetches the
// athlete's recent records from WHOOP, reconciles them into the local store
// and returns the local rows
type SyncHandler struct {
	db           *database.DB
	config       *config.Config
	whoopClient  *whoop.Client
	oauthManager *oauth.Manager
	reconciler   *reconcile.Reconciler
	logger       *slog.Logger
}

// NewSyncHandler creates a new pull-sync handler
func NewSyncHandler(db *database.DB, cfg *config.Config, whoopClient *whoop.Client, oauthManager *oauth.Manager, reconciler *reconcile.Reconciler) *SyncHandler {
	return &SyncHandler{
		db:           db,
		config:       cfg,
		whoopClient:  whoopClient,
		oauthManager: oauthManager,
		reconciler:   reconciler,
		logger:       slog.Default(),
	}
}

// syncRequest is the validated common input of every pull-sync endpoint
type syncRequest struct {
	athlete *database.Athlete
	limit   int
}

// parseRequest authenticates the caller and resolves the target athlete.
// On failure it writes the response itself and returns false.
func (h *SyncHandler) parseRequest(w http.ResponseWriter, r *http.Request) (*syncRequest, bool) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return nil, false
	}

	authHeader := r.Header.Get("Authorization")
	if authHeader != "Bearer "+h.config.InternalAPIKey {
		h.logger.Warn("Unauthorized sync request", "has_auth", authHeader != "")
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return nil, false
	}

	query := r.URL.Query()

	athleteID, err := strconv.ParseInt(query.Get("athlete_id"), 10, 64)
	if err != nil {
		http.Error(w, "Invalid athlete_id parameter", http.StatusBadRequest)
		return nil, false
	}

	limit := defaultSyncLimit
	if limitStr := query.Get("limit"); limitStr != "" {
		limit, err = strconv.Atoi(limitStr)
		if err != nil || limit < 1 || limit > maxSyncLimit {
			http.Error(w, "Limit must be between 1 and 25", http.StatusBadRequest)
			return nil, false
		}
	}

	athlete, err := h.db.GetAthlete(athleteID)
	if err != nil {
		h.logger.Error("Failed to look up athlete", "athlete_id", athleteID, "error", err)
		http.Error(w, "Internal error", http.StatusInternalServerError)
		return nil, false
	}
	if athlete == nil {
		http.Error(w, "Unknown athlete", http.StatusNotFound)
		return nil, false
	}

	return &syncRequest{athlete: athlete, limit: limit}, true
}

// token resolves a usable access token for the athlete, mapping credential
// failures to 401 per the token lifecycle contract
func (h *SyncHandler) token(w http.ResponseWriter, r *http.Request, athlete *database.Athlete) (string, bool) {
	token, err := h.oauthManager.GetValidToken(r.Context(), athlete)
	if err != nil {
		var refreshErr *whoop.RefreshError
		if errors.Is(err, oauth.ErrNotConnected) || errors.As(err, &refreshErr) {
			h.logger.Warn("Athlete has no usable WHOOP credential",
				"athlete_id", athlete.AthleteID, "error", err)
			http.Error(w, "WHOOP account not connected or authorization expired", http.StatusUnauthorized)
			return "", false
		}
		h.logger.Error("Failed to obtain access token", "athlete_id", athlete.AthleteID, "error", err)
		http.Error(w, "Internal error", http.StatusInternalServerError)
		return "", false
	}
	return token, true
}

// writeFetchError maps an upstream list failure to a response
func (h *SyncHandler) writeFetchError(w http.ResponseWriter, athlete *database.Athlete, err error) {
	h.logger.Error("Failed to fetch records from WHOOP", "athlete_id", athlete.AthleteID, "error", err)

	var fetchErr *whoop.FetchError
	if errors.As(err, &fetchErr) {
		http.Error(w, "WHOOP API error", http.StatusBadGateway)
		return
	}
	http.Error(w, "Internal error", http.StatusInternalServerError)
}

// reconcileAll runs one reconcile call per raw record, skipping malformed
// items. A database failure aborts the pass.
func reconcileAll[T any](h *SyncHandler, athlete *database.Athlete, records []json.RawMessage, fn func(*database.Athlete, json.RawMessage) (*T, error)) error {
	for _, raw := range records {
		if _, err := fn(athlete, raw); err != nil {
			var recErr *reconcile.ReconcileError
			if errors.As(err, &recErr) {
				h.logger.Warn("Skipping malformed record",
					"athlete_id", athlete.AthleteID, "kind", recErr.Kind, "field", recErr.Field)
				continue
			}
			return err
		}
	}
	return nil
}

// HandleCycles handles GET /api/cycles
func (h *SyncHandler) HandleCycles(w http.ResponseWriter, r *http.Request) {
	req, ok := h.parseRequest(w, r)
	if !ok {
		return
	}
	token, ok := h.token(w, r, req.athlete)
	if !ok {
		return
	}

	records, err := h.whoopClient.ListCycles(r.Context(), token, req.limit)
	if err != nil {
		h.writeFetchError(w, req.athlete, err)
		return
	}
	if err := reconcileAll(h, req.athlete, records, h.reconciler.ReconcileCycle); err != nil {
		h.logger.Error("Failed to reconcile cycles", "athlete_id", req.athlete.AthleteID, "error", err)
		http.Error(w, "Internal error", http.StatusInternalServerError)
		return
	}

	cycles, err := h.db.ListCyclesByAthlete(req.athlete.AthleteID, req.limit)
	if err != nil {
		h.logger.Error("Failed to list cycles", "athlete_id", req.athlete.AthleteID, "error", err)
		http.Error(w, "Internal error", http.StatusInternalServerError)
		return
	}
	if cycles == nil {
		cycles = []*database.Cycle{}
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{"cycles": cycles, "count": len(cycles)})
}

// HandleSleep handles GET /api/sleep
func (h *SyncHandler) HandleSleep(w http.ResponseWriter, r *http.Request) {
	req, ok := h.parseRequest(w, r)
	if !ok {
		return
	}
	token, ok := h.token(w, r, req.athlete)
	if !ok {
		return
	}

	records, err := h.whoopClient.ListSleeps(r.Context(), token, req.limit)
	if err != nil {
		h.writeFetchError(w, req.athlete, err)
		return
	}
	if err := reconcileAll(h, req.athlete, records, h.reconciler.ReconcileSleep); err != nil {
		h.logger.Error("Failed to reconcile sleeps", "athlete_id", req.athlete.AthleteID, "error", err)
		http.Error(w, "Internal error", http.StatusInternalServerError)
		return
	}

	sleeps, err := h.db.ListSleepsByAthlete(req.athlete.AthleteID, req.limit)
	if err != nil {
		h.logger.Error("Failed to list sleeps", "athlete_id", req.athlete.AthleteID, "error", err)
		http.Error(w, "Internal error", http.StatusInternalServerError)
		return
	}
	if sleeps == nil {
		sleeps = []*database.Sleep{}
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{"sleeps": sleeps, "count": len(sleeps)})
}

// HandleSleepLatest handles GET /api/sleep/latest
func (h *SyncHandler) HandleSleepLatest(w http.ResponseWriter, r *http.Request) {
	req, ok := h.parseRequest(w, r)
	if !ok {
		return
	}

	sleep, err := h.db.GetLatestSleepByAthlete(req.athlete.AthleteID)
	if err != nil {
		h.logger.Error("Failed to get latest sleep", "athlete_id", req.athlete.AthleteID, "error", err)
		http.Error(w, "Internal error", http.StatusInternalServerError)
		return
	}
	if sleep == nil {
		http.Error(w, "No sleep recorded", http.StatusNotFound)
		return
	}

	writeJSON(w, http.StatusOK, sleep)
}

// HandleRecovery handles GET /api/recovery
func (h *SyncHandler) HandleRecovery(w http.ResponseWriter, r *http.Request) {
	req, ok := h.parseRequest(w, r)
	if !ok {
		return
	}
	token, ok := h.token(w, r, req.athlete)
	if !ok {
		return
	}

	records, err := h.whoopClient.ListRecoveries(r.Context(), token, req.limit)
	if err != nil {
		h.writeFetchError(w, req.athlete, err)
		return
	}
	if err := reconcileAll(h, req.athlete, records, h.reconciler.ReconcileRecovery); err != nil {
		h.logger.Error("Failed to reconcile recoveries", "athlete_id", req.athlete.AthleteID, "error", err)
		http.Error(w, "Internal error", http.StatusInternalServerError)
		return
	}

	recoveries, err := h.db.ListRecoveriesByAthlete(req.athlete.AthleteID, req.limit)
	if err != nil {
		h.logger.Error("Failed to list recoveries", "athlete_id", req.athlete.AthleteID, "error", err)
		http.Error(w, "Internal error", http.StatusInternalServerError)
		return
	}
	if recoveries == nil {
		recoveries = []*database.Recovery{}
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{"recoveries": recoveries, "count": len(recoveries)})
}

// HandleWorkouts handles GET /api/workouts
func (h *SyncHandler) HandleWorkouts(w http.ResponseWriter, r *http.Request) {
	req, ok := h.parseRequest(w, r)
	if !ok {
		return
	}
	token, ok := h.token(w, r, req.athlete)
	if !ok {
		return
	}

	records, err := h.whoopClient.ListWorkouts(r.Context(), token, req.limit)
	if err != nil {
		h.writeFetchError(w, req.athlete, err)
		return
	}
	if err := reconcileAll(h, req.athlete, records, h.reconciler.ReconcileWorkout); err != nil {
		h.logger.Error("Failed to reconcile workouts", "athlete_id", req.athlete.AthleteID, "error", err)
		http.Error(w, "Internal error", http.StatusInternalServerError)
		return
	}

	workouts, err := h.db.ListWorkoutsByAthlete(req.athlete.AthleteID, req.limit)
	if err != nil {
		h.logger.Error("Failed to list workouts", "athlete_id", req.athlete.AthleteID, "error", err)
		http.Error(w, "Internal error", http.StatusInternalServerError)
		return
	}
	if workouts == nil {
		workouts = []*database.Workout{}
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{"workouts": workouts, "count": len(workouts)})
}

// HandleDays handles GET /api/days, serving locally derived day summaries
func (h *SyncHandler) HandleDays(w http.ResponseWriter, r *http.Request) {
	req, ok := h.parseRequest(w, r)
	if !ok {
		return
	}

	days, err := h.db.ListDaysByAthlete(req.athlete.AthleteID, req.limit)
	if err != nil {
		h.logger.Error("Failed to list days", "athlete_id", req.athlete.AthleteID, "error", err)
		http.Error(w, "Internal error", http.StatusInternalServerError)
		return
	}
	if days == nil {
		days = []*database.Day{}
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{"days": days, "count": len(days)})
}
