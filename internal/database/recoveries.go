package database

import (
	"database/sql"
	"fmt"
	"time"
)

// Recovery represents a WHOOP recovery score. Recovery has no identity of
// its own; it is keyed by the cycle it belongs to. The score sub-object is
// flattened into named columns; a NULL column means the field was absent
// from the score payload, which is distinct from zero.
type Recovery struct {
	CycleID          int64
	AthleteID        int64
	SleepID          *string
	ScoreState       string
	UserCalibrating  bool
	RecoveryScore    *int64
	RestingHeartRate *int64
	HrvRmssdMilli    *float64
	Spo2Percentage   *float64
	SkinTempCelsius  *float64
	APICreatedAt     int64 // Unix millis
	APIUpdatedAt     int64
	IsCuttingWeight  bool
	CreatedAt        int64
	UpdatedAt        int64
}

// UpsertRecovery inserts a recovery or replaces all synced fields if the
// cycle id already exists
func (db *DB) UpsertRecovery(r *Recovery) error {
	now := time.Now().Unix()

	_, err := db.conn.Exec(`
		INSERT INTO recoveries (
			cycle_id, athlete_id, sleep_id, score_state, user_calibrating,
			recovery_score, resting_heart_rate, hrv_rmssd_milli,
			spo2_percentage, skin_temp_celsius, api_created_at, api_updated_at,
			is_cutting_weight, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(cycle_id) DO UPDATE SET
			athlete_id = excluded.athlete_id,
			sleep_id = excluded.sleep_id,
			score_state = excluded.score_state,
			user_calibrating = excluded.user_calibrating,
			recovery_score = excluded.recovery_score,
			resting_heart_rate = excluded.resting_heart_rate,
			hrv_rmssd_milli = excluded.hrv_rmssd_milli,
			spo2_percentage = excluded.spo2_percentage,
			skin_temp_celsius = excluded.skin_temp_celsius,
			api_created_at = excluded.api_created_at,
			api_updated_at = excluded.api_updated_at,
			is_cutting_weight = excluded.is_cutting_weight,
			updated_at = excluded.updated_at
	`, r.CycleID, r.AthleteID, r.SleepID, r.ScoreState, r.UserCalibrating,
		r.RecoveryScore, r.RestingHeartRate, r.HrvRmssdMilli,
		r.Spo2Percentage, r.SkinTempCelsius, r.APICreatedAt, r.APIUpdatedAt,
		r.IsCuttingWeight, now, now)

	if err != nil {
		return fmt.Errorf("failed to upsert recovery: %w", err)
	}
	return nil
}

// GetRecovery retrieves a recovery by its cycle id
func (db *DB) GetRecovery(cycleID int64) (*Recovery, error) {
	var r Recovery
	err := db.conn.QueryRow(`
		SELECT cycle_id, athlete_id, sleep_id, score_state, user_calibrating,
		       recovery_score, resting_heart_rate, hrv_rmssd_milli,
		       spo2_percentage, skin_temp_celsius, api_created_at, api_updated_at,
		       is_cutting_weight, created_at, updated_at
		FROM recoveries WHERE cycle_id = ?
	`, cycleID).Scan(
		&r.CycleID, &r.AthleteID, &r.SleepID, &r.ScoreState, &r.UserCalibrating,
		&r.RecoveryScore, &r.RestingHeartRate, &r.HrvRmssdMilli,
		&r.Spo2Percentage, &r.SkinTempCelsius, &r.APICreatedAt, &r.APIUpdatedAt,
		&r.IsCuttingWeight, &r.CreatedAt, &r.UpdatedAt,
	)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get recovery: %w", err)
	}
	return &r, nil
}

// ListRecoveriesByAthlete returns recoveries for an athlete, newest first
func (db *DB) ListRecoveriesByAthlete(athleteID int64, limit int) ([]*Recovery, error) {
	query := `
		SELECT cycle_id, athlete_id, sleep_id, score_state, user_calibrating,
		       recovery_score, resting_heart_rate, hrv_rmssd_milli,
		       spo2_percentage, skin_temp_celsius, api_created_at, api_updated_at,
		       is_cutting_weight, created_at, updated_at
		FROM recoveries
		WHERE athlete_id = ?
		ORDER BY cycle_id DESC
	`
	if limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", limit)
	}

	rows, err := db.conn.Query(query, athleteID)
	if err != nil {
		return nil, fmt.Errorf("failed to list recoveries: %w", err)
	}
	defer rows.Close()

	var recoveries []*Recovery
	for rows.Next() {
		var r Recovery
		err := rows.Scan(
			&r.CycleID, &r.AthleteID, &r.SleepID, &r.ScoreState, &r.UserCalibrating,
			&r.RecoveryScore, &r.RestingHeartRate, &r.HrvRmssdMilli,
			&r.Spo2Percentage, &r.SkinTempCelsius, &r.APICreatedAt, &r.APIUpdatedAt,
			&r.IsCuttingWeight, &r.CreatedAt, &r.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan recovery: %w", err)
		}
		recoveries = append(recoveries, &r)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating recoveries: %w", err)
	}

	return recoveries, nil
}

// GetLatestRecoveryCreatedOn returns the athlete's latest recovery whose API
// creation time falls inside the given UTC time range, used for day summary
// projection
func (db *DB) GetLatestRecoveryCreatedOn(athleteID int64, rangeStart, rangeEnd int64) (*Recovery, error) {
	var r Recovery
	err := db.conn.QueryRow(`
		SELECT cycle_id, athlete_id, sleep_id, score_state, user_calibrating,
		       recovery_score, resting_heart_rate, hrv_rmssd_milli,
		       spo2_percentage, skin_temp_celsius, api_created_at, api_updated_at,
		       is_cutting_weight, created_at, updated_at
		FROM recoveries
		WHERE athlete_id = ? AND api_created_at >= ? AND api_created_at < ?
		ORDER BY api_created_at DESC
		LIMIT 1
	`, athleteID, rangeStart, rangeEnd).Scan(
		&r.CycleID, &r.AthleteID, &r.SleepID, &r.ScoreState, &r.UserCalibrating,
		&r.RecoveryScore, &r.RestingHeartRate, &r.HrvRmssdMilli,
		&r.Spo2Percentage, &r.SkinTempCelsius, &r.APICreatedAt, &r.APIUpdatedAt,
		&r.IsCuttingWeight, &r.CreatedAt, &r.UpdatedAt,
	)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get recovery for range: %w", err)
	}
	return &r, nil
}
