package handlers

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	"whoop-sync/internal/config"
	"whoop-sync/internal/database"
)

// AthletesHandler handles the athlete provisioning endpoints
type AthletesHandler struct {
	db     *database.DB
	config *config.Config
	logger *slog.Logger
}

// NewAthletesHandler creates a new athletes handler
func NewAthletesHandler(db *database.DB, cfg *config.Config) *AthletesHandler {
	return &AthletesHandler{
		db:     db,
		config: cfg,
		logger: slog.Default(),
	}
}

func (h *AthletesHandler) authorized(w http.ResponseWriter, r *http.Request) bool {
	authHeader := r.Header.Get("Authorization")
	if authHeader != "Bearer "+h.config.InternalAPIKey {
		h.logger.Warn("Unauthorized athletes request", "has_auth", authHeader != "")
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return false
	}
	return true
}

// HandleAthletes handles GET (list) and POST (create) on /api/athletes
func (h *AthletesHandler) HandleAthletes(w http.ResponseWriter, r *http.Request) {
	if !h.authorized(w, r) {
		return
	}

	switch r.Method {
	case http.MethodGet:
		h.list(w)
	case http.MethodPost:
		h.create(w, r)
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

func (h *AthletesHandler) list(w http.ResponseWriter) {
	athletes, err := h.db.ListAthletes()
	if err != nil {
		h.logger.Error("Failed to list athletes", "error", err)
		http.Error(w, "Internal error", http.StatusInternalServerError)
		return
	}
	if athletes == nil {
		athletes = []*database.Athlete{}
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{"athletes": athletes, "count": len(athletes)})
}

func (h *AthletesHandler) create(w http.ResponseWriter, r *http.Request) {
	var body struct {
		IsCuttingWeight bool `json:"is_cutting_weight"`
	}
	// An empty body creates an athlete with defaults
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil && err.Error() != "EOF" {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	athlete := &database.Athlete{IsCuttingWeight: body.IsCuttingWeight}
	if err := h.db.CreateAthlete(athlete); err != nil {
		h.logger.Error("Failed to create athlete", "error", err)
		http.Error(w, "Internal error", http.StatusInternalServerError)
		return
	}

	h.logger.Info("Created athlete", "athlete_id", athlete.AthleteID)

	writeJSON(w, http.StatusCreated, athlete)
}

// HandleWeightCutting handles PUT /api/athletes/{id}/weight-cutting. The
// flag affects records synced from now on; already stored records keep the
// value stamped at their sync time.
func (h *AthletesHandler) HandleWeightCutting(w http.ResponseWriter, r *http.Request) {
	if !h.authorized(w, r) {
		return
	}

	if r.Method != http.MethodPut {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	athleteID, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		http.Error(w, "Invalid athlete id", http.StatusBadRequest)
		return
	}

	var body struct {
		IsCuttingWeight *bool `json:"is_cutting_weight"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.IsCuttingWeight == nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	athlete, err := h.db.GetAthlete(athleteID)
	if err != nil {
		h.logger.Error("Failed to look up athlete", "athlete_id", athleteID, "error", err)
		http.Error(w, "Internal error", http.StatusInternalServerError)
		return
	}
	if athlete == nil {
		http.Error(w, "Unknown athlete", http.StatusNotFound)
		return
	}

	if err := h.db.SetAthleteWeightCutting(athleteID, *body.IsCuttingWeight); err != nil {
		h.logger.Error("Failed to update weight-cutting flag", "athlete_id", athleteID, "error", err)
		http.Error(w, "Internal error", http.StatusInternalServerError)
		return
	}

	h.logger.Info("Updated weight-cutting flag", "athlete_id", athleteID, "is_cutting_weight", *body.IsCuttingWeight)

	athlete.IsCuttingWeight = *body.IsCuttingWeight
	writeJSON(w, http.StatusOK, athlete)
}
