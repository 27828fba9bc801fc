package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"whoop-sync/internal/database"
)

func TestAthletesRequiresAuth(t *testing.T) {
	env := setupHandlerTest(t, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/athletes", nil)
	w := httptest.NewRecorder()
	env.athletes.HandleAthletes(w, req)

	if w.Code != http.StatusUnauthorized {
		t.Errorf("Expected status 401, got %d", w.Code)
	}
}

func TestCreateAthleteEmptyBody(t *testing.T) {
	env := setupHandlerTest(t, nil)

	req := httptest.NewRequest(http.MethodPost, "/api/athletes", nil)
	req.Header.Set("Authorization", "Bearer "+testAPIKey)
	w := httptest.NewRecorder()
	env.athletes.HandleAthletes(w, req)

	if w.Code != http.StatusCreated {
		t.Fatalf("Expected status 201, got %d: %s", w.Code, w.Body.String())
	}

	var athlete database.Athlete
	if err := json.Unmarshal(w.Body.Bytes(), &athlete); err != nil {
		t.Fatalf("Failed to parse response: %v", err)
	}
	if athlete.AthleteID == 0 {
		t.Error("Expected assigned athlete id")
	}
	if athlete.IsCuttingWeight {
		t.Error("Expected weight-cutting to default off")
	}
}

func TestCreateAthleteWithFlag(t *testing.T) {
	env := setupHandlerTest(t, nil)

	body := strings.NewReader(`{"is_cutting_weight": true}`)
	req := httptest.NewRequest(http.MethodPost, "/api/athletes", body)
	req.Header.Set("Authorization", "Bearer "+testAPIKey)
	w := httptest.NewRecorder()
	env.athletes.HandleAthletes(w, req)

	if w.Code != http.StatusCreated {
		t.Fatalf("Expected status 201, got %d", w.Code)
	}

	var athlete database.Athlete
	if err := json.Unmarshal(w.Body.Bytes(), &athlete); err != nil {
		t.Fatalf("Failed to parse response: %v", err)
	}
	if !athlete.IsCuttingWeight {
		t.Error("Expected weight-cutting flag set")
	}

	stored, err := env.db.GetAthlete(athlete.AthleteID)
	if err != nil {
		t.Fatalf("Failed to get athlete: %v", err)
	}
	if !stored.IsCuttingWeight {
		t.Error("Expected stored flag set")
	}
}

func TestListAthletes(t *testing.T) {
	env := setupHandlerTest(t, nil)
	env.createAthlete(t)
	env.createAthlete(t)

	w := httptest.NewRecorder()
	env.athletes.HandleAthletes(w, authedGet("/api/athletes"))

	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", w.Code)
	}

	var resp struct {
		Count int `json:"count"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("Failed to parse response: %v", err)
	}
	if resp.Count != 2 {
		t.Errorf("Expected 2 athletes, got %d", resp.Count)
	}
}

// weightCuttingMux routes through a ServeMux so the {id} path value is
// populated the same way the real server does it
func weightCuttingMux(env *testEnv) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/athletes/{id}/weight-cutting", env.athletes.HandleWeightCutting)
	return mux
}

func TestWeightCuttingUpdate(t *testing.T) {
	env := setupHandlerTest(t, nil)
	athlete := env.createAthlete(t)
	mux := weightCuttingMux(env)

	body := strings.NewReader(`{"is_cutting_weight": true}`)
	req := httptest.NewRequest(http.MethodPut, "/api/athletes/"+formatID(athlete.AthleteID)+"/weight-cutting", body)
	req.Header.Set("Authorization", "Bearer "+testAPIKey)
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d: %s", w.Code, w.Body.String())
	}

	var updated database.Athlete
	if err := json.Unmarshal(w.Body.Bytes(), &updated); err != nil {
		t.Fatalf("Failed to parse response: %v", err)
	}
	if !updated.IsCuttingWeight {
		t.Error("Expected response to carry the new flag")
	}

	stored, err := env.db.GetAthlete(athlete.AthleteID)
	if err != nil {
		t.Fatalf("Failed to get athlete: %v", err)
	}
	if !stored.IsCuttingWeight {
		t.Error("Expected stored flag set")
	}
}

func TestWeightCuttingRequiresFlag(t *testing.T) {
	env := setupHandlerTest(t, nil)
	athlete := env.createAthlete(t)
	mux := weightCuttingMux(env)

	req := httptest.NewRequest(http.MethodPut, "/api/athletes/"+formatID(athlete.AthleteID)+"/weight-cutting", strings.NewReader(`{}`))
	req.Header.Set("Authorization", "Bearer "+testAPIKey)
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Errorf("Expected status 400 without the flag, got %d", w.Code)
	}
}

func TestWeightCuttingUnknownAthlete(t *testing.T) {
	env := setupHandlerTest(t, nil)
	mux := weightCuttingMux(env)

	req := httptest.NewRequest(http.MethodPut, "/api/athletes/999/weight-cutting", strings.NewReader(`{"is_cutting_weight": false}`))
	req.Header.Set("Authorization", "Bearer "+testAPIKey)
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, req)

	if w.Code != http.StatusNotFound {
		t.Errorf("Expected status 404, got %d", w.Code)
	}
}
