package reconcile

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"whoop-sync/internal/database"
	"whoop-sync/internal/metrics"
	"whoop-sync/internal/whoop"
)

// ReconcileError indicates a single remote payload could not be mapped to a
// local record, typically because a required identity or timestamp field is
// missing. One malformed item never aborts the rest of a batch.
type ReconcileError struct {
	Kind  whoop.Kind
	Field string
	Err   error
}

func (e *ReconcileError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("failed to reconcile %s: field %q: %v", e.Kind, e.Field, e.Err)
	}
	return fmt.Sprintf("failed to reconcile %s: missing required field %q", e.Kind, e.Field)
}

func (e *ReconcileError) Unwrap() error {
	return e.Err
}

// Reconciler maps remote WHOOP payloads onto local records. Each kind has a
// single identity key; re-syncing the same key replaces the local row in
// place, so reconciliation is idempotent.
type Reconciler struct {
	db     *database.DB
	logger *slog.Logger
}

// NewReconciler creates a new reconciler over the given database
func NewReconciler(db *database.DB) *Reconciler {
	return &Reconciler{
		db:     db,
		logger: slog.Default(),
	}
}

// parseAPITime parses a WHOOP API timestamp (RFC 3339, possibly with
// fractional seconds) into unix millis
func parseAPITime(value string) (int64, error) {
	t, err := time.Parse(time.RFC3339Nano, value)
	if err != nil {
		return 0, err
	}
	return t.UnixMilli(), nil
}

// requireTime parses a required timestamp field
func requireTime(kind whoop.Kind, field string, value *string) (int64, error) {
	if value == nil || *value == "" {
		return 0, &ReconcileError{Kind: kind, Field: field}
	}
	millis, err := parseAPITime(*value)
	if err != nil {
		return 0, &ReconcileError{Kind: kind, Field: field, Err: err}
	}
	return millis, nil
}

// optionalTime parses an optional timestamp field, returning nil when absent
func optionalTime(kind whoop.Kind, field string, value *string) (*int64, error) {
	if value == nil || *value == "" {
		return nil, nil
	}
	millis, err := parseAPITime(*value)
	if err != nil {
		return nil, &ReconcileError{Kind: kind, Field: field, Err: err}
	}
	return &millis, nil
}

// scoreJSONString normalizes an opaque score payload to a JSON string,
// defaulting to an empty object when absent
func scoreJSONString(score json.RawMessage) string {
	if len(score) == 0 {
		return "{}"
	}
	return string(score)
}

type cyclePayload struct {
	ID             *int64          `json:"id"`
	UserID         int64           `json:"user_id"`
	CreatedAt      *string         `json:"created_at"`
	UpdatedAt      *string         `json:"updated_at"`
	Start          *string         `json:"start"`
	End            *string         `json:"end"`
	TimezoneOffset string          `json:"timezone_offset"`
	ScoreState     string          `json:"score_state"`
	Score          json.RawMessage `json:"score"`
}

// ReconcileCycle upserts one remote cycle payload for the athlete. The
// WHOOP cycle id is the identity key; the score sub-object is stored as an
// opaque passthrough.
func (r *Reconciler) ReconcileCycle(athlete *database.Athlete, raw json.RawMessage) (*database.Cycle, error) {
	var payload cyclePayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, &ReconcileError{Kind: whoop.KindCycle, Field: "payload", Err: err}
	}

	if payload.ID == nil {
		return nil, &ReconcileError{Kind: whoop.KindCycle, Field: "id"}
	}

	createdAt, err := requireTime(whoop.KindCycle, "created_at", payload.CreatedAt)
	if err != nil {
		return nil, err
	}
	updatedAt, err := requireTime(whoop.KindCycle, "updated_at", payload.UpdatedAt)
	if err != nil {
		return nil, err
	}
	start, err := requireTime(whoop.KindCycle, "start", payload.Start)
	if err != nil {
		return nil, err
	}
	// End is absent while the cycle is ongoing
	end, err := optionalTime(whoop.KindCycle, "end", payload.End)
	if err != nil {
		return nil, err
	}

	cycle := &database.Cycle{
		WhoopID:        *payload.ID,
		AthleteID:      athlete.AthleteID,
		WhoopUserID:    payload.UserID,
		APICreatedAt:   createdAt,
		APIUpdatedAt:   updatedAt,
		StartTime:      start,
		EndTime:        end,
		TimezoneOffset: payload.TimezoneOffset,
		ScoreState:     payload.ScoreState,
		ScoreJSON:      scoreJSONString(payload.Score),
	}

	if err := r.db.UpsertCycle(cycle); err != nil {
		metrics.RecordsReconciledTotal.WithLabelValues(metrics.KindCycle, metrics.OutcomeError).Inc()
		return nil, err
	}

	metrics.RecordsReconciledTotal.WithLabelValues(metrics.KindCycle, metrics.OutcomeSuccess).Inc()
	return cycle, nil
}

type sleepPayload struct {
	ID             *string         `json:"id"`
	UserID         int64           `json:"user_id"`
	CycleID        *int64          `json:"cycle_id"`
	CreatedAt      *string         `json:"created_at"`
	UpdatedAt      *string         `json:"updated_at"`
	Start          *string         `json:"start"`
	End            *string         `json:"end"`
	TimezoneOffset string          `json:"timezone_offset"`
	Nap            bool            `json:"nap"`
	ScoreState     string          `json:"score_state"`
	Score          json.RawMessage `json:"score"`
}

// ReconcileSleep upserts one remote sleep payload for the athlete, keyed by
// the WHOOP sleep UUID. The athlete's current weight-cutting flag is
// stamped onto the record at sync time.
func (r *Reconciler) ReconcileSleep(athlete *database.Athlete, raw json.RawMessage) (*database.Sleep, error) {
	var payload sleepPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, &ReconcileError{Kind: whoop.KindSleep, Field: "payload", Err: err}
	}

	if payload.ID == nil || *payload.ID == "" {
		return nil, &ReconcileError{Kind: whoop.KindSleep, Field: "id"}
	}

	createdAt, err := requireTime(whoop.KindSleep, "created_at", payload.CreatedAt)
	if err != nil {
		return nil, err
	}
	updatedAt, err := requireTime(whoop.KindSleep, "updated_at", payload.UpdatedAt)
	if err != nil {
		return nil, err
	}
	start, err := requireTime(whoop.KindSleep, "start", payload.Start)
	if err != nil {
		return nil, err
	}
	end, err := requireTime(whoop.KindSleep, "end", payload.End)
	if err != nil {
		return nil, err
	}

	sleep := &database.Sleep{
		WhoopID:         *payload.ID,
		AthleteID:       athlete.AthleteID,
		WhoopUserID:     payload.UserID,
		CycleID:         payload.CycleID,
		APICreatedAt:    createdAt,
		APIUpdatedAt:    updatedAt,
		StartTime:       start,
		EndTime:         end,
		TimezoneOffset:  payload.TimezoneOffset,
		Nap:             payload.Nap,
		ScoreState:      payload.ScoreState,
		ScoreJSON:       scoreJSONString(payload.Score),
		IsCuttingWeight: athlete.IsCuttingWeight,
	}

	if err := r.db.UpsertSleep(sleep); err != nil {
		metrics.RecordsReconciledTotal.WithLabelValues(metrics.KindSleep, metrics.OutcomeError).Inc()
		return nil, err
	}

	metrics.RecordsReconciledTotal.WithLabelValues(metrics.KindSleep, metrics.OutcomeSuccess).Inc()

	// Day summaries derive from the sleep ending on that date
	r.recomputeDayFor(athlete, time.UnixMilli(end).UTC())

	return sleep, nil
}

type recoveryScorePayload struct {
	UserCalibrating  *bool    `json:"user_calibrating"`
	RecoveryScore    *float64 `json:"recovery_score"`
	RestingHeartRate *float64 `json:"resting_heart_rate"`
	HrvRmssdMilli    *float64 `json:"hrv_rmssd_milli"`
	Spo2Percentage   *float64 `json:"spo2_percentage"`
	SkinTempCelsius  *float64 `json:"skin_temp_celsius"`
}

type recoveryPayload struct {
	CycleID    *int64                `json:"cycle_id"`
	SleepID    *string               `json:"sleep_id"`
	CreatedAt  *string               `json:"created_at"`
	UpdatedAt  *string               `json:"updated_at"`
	ScoreState string                `json:"score_state"`
	Score      *recoveryScorePayload `json:"score"`
}

// ReconcileRecovery upserts one remote recovery payload for the athlete.
// Recovery is keyed by the cycle it belongs to and its score sub-object is
// flattened into named fields; fields absent from the score stay NULL. The
// athlete's weight-cutting flag is a point-in-time copy, not a live
// reference: later changes to the account flag do not touch old records.
func (r *Reconciler) ReconcileRecovery(athlete *database.Athlete, raw json.RawMessage) (*database.Recovery, error) {
	var payload recoveryPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, &ReconcileError{Kind: whoop.KindRecovery, Field: "payload", Err: err}
	}

	if payload.CycleID == nil {
		return nil, &ReconcileError{Kind: whoop.KindRecovery, Field: "cycle_id"}
	}

	createdAt, err := requireTime(whoop.KindRecovery, "created_at", payload.CreatedAt)
	if err != nil {
		return nil, err
	}
	updatedAt, err := requireTime(whoop.KindRecovery, "updated_at", payload.UpdatedAt)
	if err != nil {
		return nil, err
	}

	recovery := &database.Recovery{
		CycleID:         *payload.CycleID,
		AthleteID:       athlete.AthleteID,
		SleepID:         payload.SleepID,
		ScoreState:      payload.ScoreState,
		APICreatedAt:    createdAt,
		APIUpdatedAt:    updatedAt,
		IsCuttingWeight: athlete.IsCuttingWeight,
	}

	if score := payload.Score; score != nil {
		if score.UserCalibrating != nil {
			recovery.UserCalibrating = *score.UserCalibrating
		}
		recovery.RecoveryScore = floatToInt(score.RecoveryScore)
		recovery.RestingHeartRate = floatToInt(score.RestingHeartRate)
		recovery.HrvRmssdMilli = score.HrvRmssdMilli
		recovery.Spo2Percentage = score.Spo2Percentage
		recovery.SkinTempCelsius = score.SkinTempCelsius
	}

	if err := r.db.UpsertRecovery(recovery); err != nil {
		metrics.RecordsReconciledTotal.WithLabelValues(metrics.KindRecovery, metrics.OutcomeError).Inc()
		return nil, err
	}

	metrics.RecordsReconciledTotal.WithLabelValues(metrics.KindRecovery, metrics.OutcomeSuccess).Inc()

	// Day summaries derive from the recovery created on that date
	r.recomputeDayFor(athlete, time.UnixMilli(createdAt).UTC())

	return recovery, nil
}

type workoutScorePayload struct {
	Strain              *float64 `json:"strain"`
	AverageHeartRate    *float64 `json:"average_heart_rate"`
	MaxHeartRate        *float64 `json:"max_heart_rate"`
	Kilojoule           *float64 `json:"kilojoule"`
	PercentRecorded     *float64 `json:"percent_recorded"`
	DistanceMeter       *float64 `json:"distance_meter"`
	AltitudeGainMeter   *float64 `json:"altitude_gain_meter"`
	AltitudeChangeMeter *float64 `json:"altitude_change_meter"`
}

type workoutPayload struct {
	ID             *string              `json:"id"`
	Start          *string              `json:"start"`
	End            *string              `json:"end"`
	TimezoneOffset *string              `json:"timezone_offset"`
	SportID        *int64               `json:"sport_id"`
	ScoreState     *string              `json:"score_state"`
	Score          *workoutScorePayload `json:"score"`
}

// ReconcileWorkout upserts one remote workout payload for the athlete,
// keyed by the WHOOP workout id, with the score sub-object flattened
func (r *Reconciler) ReconcileWorkout(athlete *database.Athlete, raw json.RawMessage) (*database.Workout, error) {
	var payload workoutPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, &ReconcileError{Kind: whoop.KindWorkout, Field: "payload", Err: err}
	}

	if payload.ID == nil || *payload.ID == "" {
		return nil, &ReconcileError{Kind: whoop.KindWorkout, Field: "id"}
	}

	start, err := requireTime(whoop.KindWorkout, "start", payload.Start)
	if err != nil {
		return nil, err
	}
	end, err := requireTime(whoop.KindWorkout, "end", payload.End)
	if err != nil {
		return nil, err
	}

	workout := &database.Workout{
		WhoopID:         *payload.ID,
		AthleteID:       athlete.AthleteID,
		StartTime:       start,
		EndTime:         end,
		TimezoneOffset:  payload.TimezoneOffset,
		SportID:         payload.SportID,
		ScoreState:      payload.ScoreState,
		IsCuttingWeight: athlete.IsCuttingWeight,
	}

	if score := payload.Score; score != nil {
		workout.Strain = score.Strain
		workout.AverageHeartRate = floatToInt(score.AverageHeartRate)
		workout.MaxHeartRate = floatToInt(score.MaxHeartRate)
		workout.Kilojoule = score.Kilojoule
		workout.PercentRecorded = score.PercentRecorded
		workout.DistanceMeter = score.DistanceMeter
		workout.AltitudeGainMeter = score.AltitudeGainMeter
		workout.AltitudeChangeMeter = score.AltitudeChangeMeter
	}

	if err := r.db.UpsertWorkout(workout); err != nil {
		metrics.RecordsReconciledTotal.WithLabelValues(metrics.KindWorkout, metrics.OutcomeError).Inc()
		return nil, err
	}

	metrics.RecordsReconciledTotal.WithLabelValues(metrics.KindWorkout, metrics.OutcomeSuccess).Inc()
	return workout, nil
}

// recomputeDayFor refreshes the derived day summary after a reconciliation.
// Projection failures are logged, never propagated: the synced record is
// already persisted.
func (r *Reconciler) recomputeDayFor(athlete *database.Athlete, at time.Time) {
	if err := r.RecomputeDay(athlete, at); err != nil {
		r.logger.Error("Failed to recompute day summary",
			"athlete_id", athlete.AthleteID, "date", at.Format("2006-01-02"), "error", err)
	}
}

func floatToInt(v *float64) *int64 {
	if v == nil {
		return nil
	}
	i := int64(*v)
	return &i
}
