package database

import (
	"database/sql"
	"fmt"
	"time"
)

// Workout represents a WHOOP workout activity, keyed by the WHOOP workout
// id. Score fields are flattened; NULL means absent from the payload.
type Workout struct {
	WhoopID             string
	AthleteID           int64
	StartTime           int64
	EndTime             int64
	TimezoneOffset      *string
	SportID             *int64
	ScoreState          *string
	Strain              *float64
	AverageHeartRate    *int64
	MaxHeartRate        *int64
	Kilojoule           *float64
	PercentRecorded     *float64
	DistanceMeter       *float64
	AltitudeGainMeter   *float64
	AltitudeChangeMeter *float64
	IsCuttingWeight     bool
	CreatedAt           int64
	UpdatedAt           int64
}

// UpsertWorkout inserts a workout or replaces all synced fields if the
// WHOOP id already exists
func (db *DB) UpsertWorkout(w *Workout) error {
	now := time.Now().Unix()

	_, err := db.conn.Exec(`
		INSERT INTO workouts (
			whoop_id, athlete_id, start_time, end_time, timezone_offset,
			sport_id, score_state, strain, average_heart_rate, max_heart_rate,
			kilojoule, percent_recorded, distance_meter, altitude_gain_meter,
			altitude_change_meter, is_cutting_weight, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(whoop_id) DO UPDATE SET
			athlete_id = excluded.athlete_id,
			start_time = excluded.start_time,
			end_time = excluded.end_time,
			timezone_offset = excluded.timezone_offset,
			sport_id = excluded.sport_id,
			score_state = excluded.score_state,
			strain = excluded.strain,
			average_heart_rate = excluded.average_heart_rate,
			max_heart_rate = excluded.max_heart_rate,
			kilojoule = excluded.kilojoule,
			percent_recorded = excluded.percent_recorded,
			distance_meter = excluded.distance_meter,
			altitude_gain_meter = excluded.altitude_gain_meter,
			altitude_change_meter = excluded.altitude_change_meter,
			is_cutting_weight = excluded.is_cutting_weight,
			updated_at = excluded.updated_at
	`, w.WhoopID, w.AthleteID, w.StartTime, w.EndTime, w.TimezoneOffset,
		w.SportID, w.ScoreState, w.Strain, w.AverageHeartRate, w.MaxHeartRate,
		w.Kilojoule, w.PercentRecorded, w.DistanceMeter, w.AltitudeGainMeter,
		w.AltitudeChangeMeter, w.IsCuttingWeight, now, now)

	if err != nil {
		return fmt.Errorf("failed to upsert workout: %w", err)
	}
	return nil
}

// GetWorkout retrieves a workout by WHOOP id
func (db *DB) GetWorkout(whoopID string) (*Workout, error) {
	var w Workout
	err := db.conn.QueryRow(`
		SELECT whoop_id, athlete_id, start_time, end_time, timezone_offset,
		       sport_id, score_state, strain, average_heart_rate, max_heart_rate,
		       kilojoule, percent_recorded, distance_meter, altitude_gain_meter,
		       altitude_change_meter, is_cutting_weight, created_at, updated_at
		FROM workouts WHERE whoop_id = ?
	`, whoopID).Scan(
		&w.WhoopID, &w.AthleteID, &w.StartTime, &w.EndTime, &w.TimezoneOffset,
		&w.SportID, &w.ScoreState, &w.Strain, &w.AverageHeartRate, &w.MaxHeartRate,
		&w.Kilojoule, &w.PercentRecorded, &w.DistanceMeter, &w.AltitudeGainMeter,
		&w.AltitudeChangeMeter, &w.IsCuttingWeight, &w.CreatedAt, &w.UpdatedAt,
	)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get workout: %w", err)
	}
	return &w, nil
}

// ListWorkoutsByAthlete returns workouts for an athlete, newest first
func (db *DB) ListWorkoutsByAthlete(athleteID int64, limit int) ([]*Workout, error) {
	query := `
		SELECT whoop_id, athlete_id, start_time, end_time, timezone_offset,
		       sport_id, score_state, strain, average_heart_rate, max_heart_rate,
		       kilojoule, percent_recorded, distance_meter, altitude_gain_meter,
		       altitude_change_meter, is_cutting_weight, created_at, updated_at
		FROM workouts
		WHERE athlete_id = ?
		ORDER BY start_time DESC
	`
	if limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", limit)
	}

	rows, err := db.conn.Query(query, athleteID)
	if err != nil {
		return nil, fmt.Errorf("failed to list workouts: %w", err)
	}
	defer rows.Close()

	var workouts []*Workout
	for rows.Next() {
		var w Workout
		err := rows.Scan(
			&w.WhoopID, &w.AthleteID, &w.StartTime, &w.EndTime, &w.TimezoneOffset,
			&w.SportID, &w.ScoreState, &w.Strain, &w.AverageHeartRate, &w.MaxHeartRate,
			&w.Kilojoule, &w.PercentRecorded, &w.DistanceMeter, &w.AltitudeGainMeter,
			&w.AltitudeChangeMeter, &w.IsCuttingWeight, &w.CreatedAt, &w.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan workout: %w", err)
		}
		workouts = append(workouts, &w)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating workouts: %w", err)
	}

	return workouts, nil
}
