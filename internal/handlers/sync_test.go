package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"whoop-sync/internal/config"
	"whoop-sync/internal/database"
	"whoop-sync/internal/oauth"
	"whoop-sync/internal/reconcile"
	"whoop-sync/internal/webhook"
	"whoop-sync/internal/whoop"
)

const (
	testAPIKey       = "internal_test_key"
	testClientSecret = "test_secret"
)

type testEnv struct {
	cfg        *config.Config
	db         *database.DB
	manager    *oauth.Manager
	sync       *SyncHandler
	athletes   *AthletesHandler
	oauth      *OAuthHandler
	webhook    *WebhookHandler
	events     *EventsHandler
	reconciler *reconcile.Reconciler
}

// setupHandlerTest wires the full handler stack against an httptest server
// standing in for the WHOOP API
func setupHandlerTest(t *testing.T, apiHandler http.Handler) *testEnv {
	t.Helper()

	if apiHandler == nil {
		apiHandler = http.NotFoundHandler()
	}
	server := httptest.NewServer(apiHandler)
	t.Cleanup(server.Close)

	cfg := &config.Config{
		WhoopClientID:       "test_client",
		WhoopClientSecret:   testClientSecret,
		WhoopRedirectURI:    "http://localhost:4201/oauth-callback",
		WhoopRequestTimeout: 5 * time.Second,
		InternalAPIKey:      testAPIKey,
	}

	db, err := database.Open(t.TempDir() + "/test.db")
	if err != nil {
		t.Fatalf("Failed to open database: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	client := whoop.NewClient(cfg)
	client.BaseURL = server.URL
	client.TokenURL = server.URL + "/oauth/token"
	client.Retry = whoop.RetryPolicy{MaxAttempts: 3, BaseDelay: time.Millisecond}

	manager := oauth.NewManager(cfg, db, client)
	reconciler := reconcile.NewReconciler(db)
	processor := webhook.NewProcessor(cfg, db, client, manager, reconciler)

	return &testEnv{
		cfg:        cfg,
		db:         db,
		manager:    manager,
		sync:       NewSyncHandler(db, cfg, client, manager, reconciler),
		athletes:   NewAthletesHandler(db, cfg),
		oauth:      NewOAuthHandler(manager, db, cfg),
		webhook:    NewWebhookHandler(processor),
		events:     NewEventsHandler(db, cfg),
		reconciler: reconciler,
	}
}

func (env *testEnv) createAthlete(t *testing.T) *database.Athlete {
	t.Helper()

	athlete := &database.Athlete{}
	if err := env.db.CreateAthlete(athlete); err != nil {
		t.Fatalf("Failed to create athlete: %v", err)
	}
	return athlete
}

func (env *testEnv) connectAthlete(t *testing.T, athlete *database.Athlete, whoopUserID string) *database.Athlete {
	t.Helper()

	expiresAt := time.Now().Add(time.Hour).Unix()
	if err := env.db.ConnectAthlete(athlete.AthleteID, whoopUserID, "access", "refresh", expiresAt); err != nil {
		t.Fatalf("Failed to connect athlete: %v", err)
	}

	refreshed, err := env.db.GetAthlete(athlete.AthleteID)
	if err != nil {
		t.Fatalf("Failed to reload athlete: %v", err)
	}
	return refreshed
}

func formatID(id int64) string {
	return strconv.FormatInt(id, 10)
}

func authedGet(url string) *http.Request {
	req := httptest.NewRequest(http.MethodGet, url, nil)
	req.Header.Set("Authorization", "Bearer "+testAPIKey)
	return req
}

func TestSyncRequiresAuth(t *testing.T) {
	env := setupHandlerTest(t, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/cycles?athlete_id=1", nil)
	w := httptest.NewRecorder()
	env.sync.HandleCycles(w, req)

	if w.Code != http.StatusUnauthorized {
		t.Errorf("Expected status 401, got %d", w.Code)
	}
}

func TestSyncRejectsWrongKey(t *testing.T) {
	env := setupHandlerTest(t, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/cycles?athlete_id=1", nil)
	req.Header.Set("Authorization", "Bearer wrong_key")
	w := httptest.NewRecorder()
	env.sync.HandleCycles(w, req)

	if w.Code != http.StatusUnauthorized {
		t.Errorf("Expected status 401, got %d", w.Code)
	}
}

func TestSyncRejectsNonGet(t *testing.T) {
	env := setupHandlerTest(t, nil)

	req := httptest.NewRequest(http.MethodPost, "/api/cycles?athlete_id=1", nil)
	req.Header.Set("Authorization", "Bearer "+testAPIKey)
	w := httptest.NewRecorder()
	env.sync.HandleCycles(w, req)

	if w.Code != http.StatusMethodNotAllowed {
		t.Errorf("Expected status 405, got %d", w.Code)
	}
}

func TestSyncInvalidAthleteID(t *testing.T) {
	env := setupHandlerTest(t, nil)

	w := httptest.NewRecorder()
	env.sync.HandleCycles(w, authedGet("/api/cycles?athlete_id=abc"))

	if w.Code != http.StatusBadRequest {
		t.Errorf("Expected status 400, got %d", w.Code)
	}
}

func TestSyncUnknownAthlete(t *testing.T) {
	env := setupHandlerTest(t, nil)

	w := httptest.NewRecorder()
	env.sync.HandleCycles(w, authedGet("/api/cycles?athlete_id=999"))

	if w.Code != http.StatusNotFound {
		t.Errorf("Expected status 404, got %d", w.Code)
	}
}

func TestSyncLimitValidation(t *testing.T) {
	env := setupHandlerTest(t, nil)

	for _, limit := range []string{"0", "26", "-1", "abc"} {
		w := httptest.NewRecorder()
		env.sync.HandleCycles(w, authedGet("/api/cycles?athlete_id=1&limit="+limit))

		if w.Code != http.StatusBadRequest {
			t.Errorf("limit=%s: expected status 400, got %d", limit, w.Code)
		}
	}
}

func TestSyncNotConnected(t *testing.T) {
	env := setupHandlerTest(t, nil)
	athlete := env.createAthlete(t)

	w := httptest.NewRecorder()
	env.sync.HandleCycles(w, authedGet("/api/cycles?athlete_id="+formatID(athlete.AthleteID)))

	if w.Code != http.StatusUnauthorized {
		t.Errorf("Expected status 401 for unconnected athlete, got %d", w.Code)
	}
}

func TestHandleCyclesSyncsAndReturns(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/cycle", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("limit") != "25" {
			t.Errorf("Expected default limit 25, got %s", r.URL.Query().Get("limit"))
		}
		// One valid record, one missing its id; the malformed one is
		// skipped without failing the request
		w.Write([]byte(`{"records": [
			{"id": 93845, "user_id": 30012, "created_at": "2026-08-30T11:25:44Z",
			 "updated_at": "2026-08-30T11:25:44Z", "start": "2026-08-29T23:25:44Z",
			 "end": "2026-08-30T11:25:44Z", "score_state": "SCORED"},
			{"user_id": 30012, "created_at": "2026-08-31T11:25:44Z",
			 "updated_at": "2026-08-31T11:25:44Z", "start": "2026-08-31T11:25:44Z"}
		]}`))
	})

	env := setupHandlerTest(t, mux)
	athlete := env.connectAthlete(t, env.createAthlete(t), "30012")

	w := httptest.NewRecorder()
	env.sync.HandleCycles(w, authedGet("/api/cycles?athlete_id="+formatID(athlete.AthleteID)))

	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d: %s", w.Code, w.Body.String())
	}

	var resp struct {
		Count int `json:"count"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("Failed to parse response: %v", err)
	}
	if resp.Count != 1 {
		t.Errorf("Expected count 1, got %d", resp.Count)
	}

	cycle, err := env.db.GetCycle(93845)
	if err != nil {
		t.Fatalf("Failed to get cycle: %v", err)
	}
	if cycle == nil {
		t.Fatal("Expected cycle to be stored")
	}
}

func TestHandleCyclesUpstreamError(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "upstream down", http.StatusInternalServerError)
	})

	env := setupHandlerTest(t, mux)
	athlete := env.connectAthlete(t, env.createAthlete(t), "30012")

	w := httptest.NewRecorder()
	env.sync.HandleCycles(w, authedGet("/api/cycles?athlete_id="+formatID(athlete.AthleteID)))

	if w.Code != http.StatusBadGateway {
		t.Errorf("Expected status 502, got %d", w.Code)
	}
}

func TestHandleWorkoutsSyncsAndReturns(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/activity/workout", func(w http.ResponseWriter, r *http.Request) {
		// Workouts come back as a bare array
		w.Write([]byte(`[
			{"id": "bbbb2222-0000-0000-0000-000000000001",
			 "start": "2026-08-31T17:00:00Z", "end": "2026-08-31T18:15:00Z",
			 "sport_id": 45, "score_state": "SCORED", "score": {"strain": 14.2}}
		]`))
	})

	env := setupHandlerTest(t, mux)
	athlete := env.connectAthlete(t, env.createAthlete(t), "30012")

	w := httptest.NewRecorder()
	env.sync.HandleWorkouts(w, authedGet("/api/workouts?athlete_id="+formatID(athlete.AthleteID)))

	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d: %s", w.Code, w.Body.String())
	}

	workout, err := env.db.GetWorkout("bbbb2222-0000-0000-0000-000000000001")
	if err != nil {
		t.Fatalf("Failed to get workout: %v", err)
	}
	if workout == nil {
		t.Fatal("Expected workout to be stored")
	}
}

func TestHandleSleepLatest(t *testing.T) {
	env := setupHandlerTest(t, nil)
	athlete := env.connectAthlete(t, env.createAthlete(t), "30012")

	w := httptest.NewRecorder()
	env.sync.HandleSleepLatest(w, authedGet("/api/sleep/latest?athlete_id="+formatID(athlete.AthleteID)))

	if w.Code != http.StatusNotFound {
		t.Errorf("Expected status 404 with no sleep recorded, got %d", w.Code)
	}

	raw := json.RawMessage(`{
		"id": "ecfc6a15-4661-442f-a9a4-f160dd7afae8",
		"user_id": 30012,
		"created_at": "2026-08-31T08:00:00Z",
		"updated_at": "2026-08-31T08:00:00Z",
		"start": "2026-08-30T23:00:00Z",
		"end": "2026-08-31T07:30:00Z",
		"score_state": "SCORED"
	}`)
	if _, err := env.reconciler.ReconcileSleep(athlete, raw); err != nil {
		t.Fatalf("Failed to reconcile sleep: %v", err)
	}

	w = httptest.NewRecorder()
	env.sync.HandleSleepLatest(w, authedGet("/api/sleep/latest?athlete_id="+formatID(athlete.AthleteID)))

	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", w.Code)
	}

	var sleep database.Sleep
	if err := json.Unmarshal(w.Body.Bytes(), &sleep); err != nil {
		t.Fatalf("Failed to parse response: %v", err)
	}
	if sleep.WhoopID != "ecfc6a15-4661-442f-a9a4-f160dd7afae8" {
		t.Errorf("Unexpected sleep id %s", sleep.WhoopID)
	}
}

func TestHandleDaysServesLocalSummaries(t *testing.T) {
	env := setupHandlerTest(t, nil)
	athlete := env.connectAthlete(t, env.createAthlete(t), "30012")

	raw := json.RawMessage(`{
		"cycle_id": 93845,
		"created_at": "2026-08-31T09:00:00Z",
		"updated_at": "2026-08-31T09:00:00Z",
		"score_state": "SCORED",
		"score": {"recovery_score": 67}
	}`)
	if _, err := env.reconciler.ReconcileRecovery(athlete, raw); err != nil {
		t.Fatalf("Failed to reconcile recovery: %v", err)
	}

	w := httptest.NewRecorder()
	env.sync.HandleDays(w, authedGet("/api/days?athlete_id="+formatID(athlete.AthleteID)))

	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", w.Code)
	}

	var resp struct {
		Count int `json:"count"`
		Days  []*database.Day
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("Failed to parse response: %v", err)
	}
	if resp.Count != 1 {
		t.Fatalf("Expected 1 day, got %d", resp.Count)
	}
	if resp.Days[0].Date != "2026-08-31" {
		t.Errorf("Expected date 2026-08-31, got %s", resp.Days[0].Date)
	}
}
