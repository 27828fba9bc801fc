package reconcile

import (
	"encoding/json"
	"errors"
	"testing"

	"whoop-sync/internal/database"
)

func setupReconcileTest(t *testing.T) (*Reconciler, *database.DB, *database.Athlete) {
	t.Helper()

	db, err := database.Open(t.TempDir() + "/test.db")
	if err != nil {
		t.Fatalf("Failed to open database: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	athlete := &database.Athlete{}
	if err := db.CreateAthlete(athlete); err != nil {
		t.Fatalf("Failed to create athlete: %v", err)
	}

	return NewReconciler(db), db, athlete
}

func TestReconcileCycle(t *testing.T) {
	r, db, athlete := setupReconcileTest(t)

	raw := json.RawMessage(`{
		"id": 93845,
		"user_id": 30012,
		"created_at": "2026-08-30T11:25:44.774Z",
		"updated_at": "2026-08-30T14:25:44.774Z",
		"start": "2026-08-29T23:25:44.774Z",
		"end": "2026-08-30T11:25:44.774Z",
		"timezone_offset": "-05:00",
		"score_state": "SCORED",
		"score": {"strain": 5.2, "kilojoule": 8288.3}
	}`)

	cycle, err := r.ReconcileCycle(athlete, raw)
	if err != nil {
		t.Fatalf("Failed to reconcile cycle: %v", err)
	}

	if cycle.WhoopID != 93845 {
		t.Errorf("Expected whoop id 93845, got %d", cycle.WhoopID)
	}
	if cycle.WhoopUserID != 30012 {
		t.Errorf("Expected whoop user id 30012, got %d", cycle.WhoopUserID)
	}
	if cycle.EndTime == nil {
		t.Error("Expected end time to be set")
	}
	// The score stays opaque for cycles
	if cycle.ScoreJSON == "{}" || cycle.ScoreJSON == "" {
		t.Errorf("Expected score passthrough, got %q", cycle.ScoreJSON)
	}

	stored, err := db.GetCycle(93845)
	if err != nil {
		t.Fatalf("Failed to get stored cycle: %v", err)
	}
	if stored == nil {
		t.Fatal("Expected cycle to be stored")
	}
	if stored.AthleteID != athlete.AthleteID {
		t.Errorf("Expected athlete id %d, got %d", athlete.AthleteID, stored.AthleteID)
	}
}

func TestReconcileCycleOngoing(t *testing.T) {
	r, _, athlete := setupReconcileTest(t)

	// An ongoing cycle has no end
	raw := json.RawMessage(`{
		"id": 93846,
		"user_id": 30012,
		"created_at": "2026-08-31T11:25:44Z",
		"updated_at": "2026-08-31T11:25:44Z",
		"start": "2026-08-31T11:25:44Z",
		"timezone_offset": "-05:00",
		"score_state": "PENDING_SCORE"
	}`)

	cycle, err := r.ReconcileCycle(athlete, raw)
	if err != nil {
		t.Fatalf("Failed to reconcile ongoing cycle: %v", err)
	}
	if cycle.EndTime != nil {
		t.Error("Expected nil end time for ongoing cycle")
	}
	if cycle.ScoreJSON != "{}" {
		t.Errorf("Expected empty score object for absent score, got %q", cycle.ScoreJSON)
	}
}

func TestReconcileCycleMissingIdentity(t *testing.T) {
	r, _, athlete := setupReconcileTest(t)

	raw := json.RawMessage(`{
		"user_id": 30012,
		"created_at": "2026-08-31T11:25:44Z",
		"updated_at": "2026-08-31T11:25:44Z",
		"start": "2026-08-31T11:25:44Z"
	}`)

	_, err := r.ReconcileCycle(athlete, raw)
	if err == nil {
		t.Fatal("Expected error for missing id")
	}

	var recErr *ReconcileError
	if !errors.As(err, &recErr) {
		t.Fatalf("Expected ReconcileError, got %T", err)
	}
	if recErr.Field != "id" {
		t.Errorf("Expected field 'id', got %s", recErr.Field)
	}
}

func TestReconcileCycleBadTimestamp(t *testing.T) {
	r, _, athlete := setupReconcileTest(t)

	raw := json.RawMessage(`{
		"id": 93845,
		"user_id": 30012,
		"created_at": "yesterday",
		"updated_at": "2026-08-31T11:25:44Z",
		"start": "2026-08-31T11:25:44Z"
	}`)

	_, err := r.ReconcileCycle(athlete, raw)

	var recErr *ReconcileError
	if !errors.As(err, &recErr) {
		t.Fatalf("Expected ReconcileError, got %T", err)
	}
	if recErr.Field != "created_at" {
		t.Errorf("Expected field 'created_at', got %s", recErr.Field)
	}
}

func TestReconcileSleepStampsWeightCutting(t *testing.T) {
	r, db, athlete := setupReconcileTest(t)

	if err := db.SetAthleteWeightCutting(athlete.AthleteID, true); err != nil {
		t.Fatalf("Failed to set weight cutting: %v", err)
	}
	athlete.IsCuttingWeight = true

	raw := json.RawMessage(`{
		"id": "ecfc6a15-4661-442f-a9a4-f160dd7afae8",
		"user_id": 30012,
		"cycle_id": 93845,
		"created_at": "2026-08-31T09:00:00Z",
		"updated_at": "2026-08-31T09:00:00Z",
		"start": "2026-08-30T23:00:00Z",
		"end": "2026-08-31T07:30:00Z",
		"nap": false,
		"score_state": "SCORED",
		"score": {"sleep_efficiency_percentage": 91.2}
	}`)

	sleep, err := r.ReconcileSleep(athlete, raw)
	if err != nil {
		t.Fatalf("Failed to reconcile sleep: %v", err)
	}

	if !sleep.IsCuttingWeight {
		t.Error("Expected weight-cutting stamp on sleep")
	}
	if sleep.CycleID == nil || *sleep.CycleID != 93845 {
		t.Error("Expected cycle id 93845")
	}

	// The stamp is a copy: flipping the account flag later leaves the
	// stored record alone
	if err := db.SetAthleteWeightCutting(athlete.AthleteID, false); err != nil {
		t.Fatalf("Failed to clear weight cutting: %v", err)
	}

	stored, err := db.GetSleep("ecfc6a15-4661-442f-a9a4-f160dd7afae8")
	if err != nil {
		t.Fatalf("Failed to get stored sleep: %v", err)
	}
	if !stored.IsCuttingWeight {
		t.Error("Expected stored stamp to survive account flag change")
	}
}

func TestReconcileRecoveryFlattensScore(t *testing.T) {
	r, db, athlete := setupReconcileTest(t)

	raw := json.RawMessage(`{
		"cycle_id": 93845,
		"sleep_id": "ecfc6a15-4661-442f-a9a4-f160dd7afae8",
		"created_at": "2026-08-31T09:00:00Z",
		"updated_at": "2026-08-31T09:00:00Z",
		"score_state": "SCORED",
		"score": {
			"user_calibrating": false,
			"recovery_score": 67,
			"resting_heart_rate": 52,
			"hrv_rmssd_milli": 38.5
		}
	}`)

	recovery, err := r.ReconcileRecovery(athlete, raw)
	if err != nil {
		t.Fatalf("Failed to reconcile recovery: %v", err)
	}

	if recovery.RecoveryScore == nil || *recovery.RecoveryScore != 67 {
		t.Error("Expected recovery score 67")
	}
	if recovery.RestingHeartRate == nil || *recovery.RestingHeartRate != 52 {
		t.Error("Expected resting heart rate 52")
	}
	if recovery.HrvRmssdMilli == nil || *recovery.HrvRmssdMilli != 38.5 {
		t.Error("Expected hrv 38.5")
	}
	// Fields absent from the score stay NULL, never zero
	if recovery.Spo2Percentage != nil {
		t.Error("Expected absent spo2 to stay nil")
	}
	if recovery.SkinTempCelsius != nil {
		t.Error("Expected absent skin temp to stay nil")
	}

	stored, err := db.GetRecovery(93845)
	if err != nil {
		t.Fatalf("Failed to get stored recovery: %v", err)
	}
	if stored == nil {
		t.Fatal("Expected recovery to be stored")
	}
	if stored.Spo2Percentage != nil {
		t.Error("Expected stored spo2 to stay NULL")
	}
}

func TestReconcileRecoveryPendingScore(t *testing.T) {
	r, _, athlete := setupReconcileTest(t)

	raw := json.RawMessage(`{
		"cycle_id": 93846,
		"created_at": "2026-08-31T09:00:00Z",
		"updated_at": "2026-08-31T09:00:00Z",
		"score_state": "PENDING_SCORE"
	}`)

	recovery, err := r.ReconcileRecovery(athlete, raw)
	if err != nil {
		t.Fatalf("Failed to reconcile unscored recovery: %v", err)
	}
	if recovery.RecoveryScore != nil {
		t.Error("Expected nil recovery score without a score object")
	}
}

func TestReconcileRecoveryMissingCycleID(t *testing.T) {
	r, _, athlete := setupReconcileTest(t)

	raw := json.RawMessage(`{
		"created_at": "2026-08-31T09:00:00Z",
		"updated_at": "2026-08-31T09:00:00Z"
	}`)

	_, err := r.ReconcileRecovery(athlete, raw)

	var recErr *ReconcileError
	if !errors.As(err, &recErr) {
		t.Fatalf("Expected ReconcileError, got %T", err)
	}
	if recErr.Field != "cycle_id" {
		t.Errorf("Expected field 'cycle_id', got %s", recErr.Field)
	}
}

func TestReconcileWorkoutFlattensScore(t *testing.T) {
	r, db, athlete := setupReconcileTest(t)

	raw := json.RawMessage(`{
		"id": "bbbb2222-0000-0000-0000-000000000001",
		"start": "2026-08-31T17:00:00Z",
		"end": "2026-08-31T18:15:00Z",
		"timezone_offset": "-05:00",
		"sport_id": 45,
		"score_state": "SCORED",
		"score": {
			"strain": 14.2,
			"average_heart_rate": 142,
			"max_heart_rate": 178,
			"kilojoule": 1500.5,
			"distance_meter": 8046.7
		}
	}`)

	workout, err := r.ReconcileWorkout(athlete, raw)
	if err != nil {
		t.Fatalf("Failed to reconcile workout: %v", err)
	}

	if workout.Strain == nil || *workout.Strain != 14.2 {
		t.Error("Expected strain 14.2")
	}
	if workout.AverageHeartRate == nil || *workout.AverageHeartRate != 142 {
		t.Error("Expected average heart rate 142")
	}
	if workout.SportID == nil || *workout.SportID != 45 {
		t.Error("Expected sport id 45")
	}
	if workout.AltitudeGainMeter != nil {
		t.Error("Expected absent altitude gain to stay nil")
	}

	stored, err := db.GetWorkout("bbbb2222-0000-0000-0000-000000000001")
	if err != nil {
		t.Fatalf("Failed to get stored workout: %v", err)
	}
	if stored == nil {
		t.Fatal("Expected workout to be stored")
	}
}

func TestReconcileIdempotent(t *testing.T) {
	r, db, athlete := setupReconcileTest(t)

	raw := json.RawMessage(`{
		"cycle_id": 93845,
		"created_at": "2026-08-31T09:00:00Z",
		"updated_at": "2026-08-31T09:00:00Z",
		"score_state": "PENDING_SCORE"
	}`)
	if _, err := r.ReconcileRecovery(athlete, raw); err != nil {
		t.Fatalf("Failed to reconcile recovery: %v", err)
	}

	// Re-syncing the same identity with a score replaces the row
	scored := json.RawMessage(`{
		"cycle_id": 93845,
		"created_at": "2026-08-31T09:00:00Z",
		"updated_at": "2026-08-31T10:00:00Z",
		"score_state": "SCORED",
		"score": {"recovery_score": 67}
	}`)
	if _, err := r.ReconcileRecovery(athlete, scored); err != nil {
		t.Fatalf("Failed to re-reconcile recovery: %v", err)
	}

	recoveries, err := db.ListRecoveriesByAthlete(athlete.AthleteID, 10)
	if err != nil {
		t.Fatalf("Failed to list recoveries: %v", err)
	}
	if len(recoveries) != 1 {
		t.Fatalf("Expected 1 recovery after re-sync, got %d", len(recoveries))
	}
	if recoveries[0].ScoreState != "SCORED" {
		t.Errorf("Expected score state SCORED, got %s", recoveries[0].ScoreState)
	}
}

func TestDaySummaryRecomputedAfterReconcile(t *testing.T) {
	r, db, athlete := setupReconcileTest(t)

	recovery := json.RawMessage(`{
		"cycle_id": 93845,
		"created_at": "2026-08-31T09:00:00Z",
		"updated_at": "2026-08-31T09:00:00Z",
		"score_state": "SCORED",
		"score": {"recovery_score": 67}
	}`)
	if _, err := r.ReconcileRecovery(athlete, recovery); err != nil {
		t.Fatalf("Failed to reconcile recovery: %v", err)
	}

	sleep := json.RawMessage(`{
		"id": "ecfc6a15-4661-442f-a9a4-f160dd7afae8",
		"user_id": 30012,
		"created_at": "2026-08-31T08:00:00Z",
		"updated_at": "2026-08-31T08:00:00Z",
		"start": "2026-08-30T23:00:00Z",
		"end": "2026-08-31T07:30:00Z",
		"score_state": "SCORED",
		"score": {"sleep_efficiency_percentage": 91.2}
	}`)
	if _, err := r.ReconcileSleep(athlete, sleep); err != nil {
		t.Fatalf("Failed to reconcile sleep: %v", err)
	}

	day, err := db.GetDay(athlete.AthleteID, "2026-08-31")
	if err != nil {
		t.Fatalf("Failed to get day: %v", err)
	}
	if day == nil {
		t.Fatal("Expected day summary to exist")
	}
	if day.RecoveryScore == nil || *day.RecoveryScore != 67 {
		t.Error("Expected day recovery score 67")
	}
	if day.SleepEfficiencyScore == nil || *day.SleepEfficiencyScore != 91 {
		t.Error("Expected day sleep efficiency 91")
	}

	// A day with only one input leaves the other column NULL
	other, err := db.GetDay(athlete.AthleteID, "2026-09-01")
	if err != nil {
		t.Fatalf("Failed to get other day: %v", err)
	}
	if other != nil {
		t.Error("Expected no summary for a day with no records")
	}
}
