package database

import (
	"database/sql"
	"fmt"
	"time"
)

// Sleep represents a WHOOP sleep activity, keyed by the WHOOP sleep UUID
type Sleep struct {
	WhoopID         string
	AthleteID       int64
	WhoopUserID     int64
	CycleID         *int64
	APICreatedAt    int64 // Unix millis
	APIUpdatedAt    int64
	StartTime       int64
	EndTime         int64
	TimezoneOffset  string
	Nap             bool
	ScoreState      string
	ScoreJSON       string
	IsCuttingWeight bool
	CreatedAt       int64
	UpdatedAt       int64
}

// UpsertSleep inserts a sleep or replaces all synced fields if the WHOOP id
// already exists
func (db *DB) UpsertSleep(s *Sleep) error {
	now := time.Now().Unix()

	_, err := db.conn.Exec(`
		INSERT INTO sleeps (
			whoop_id, athlete_id, whoop_user_id, cycle_id, api_created_at,
			api_updated_at, start_time, end_time, timezone_offset, nap,
			score_state, score_json, is_cutting_weight, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(whoop_id) DO UPDATE SET
			athlete_id = excluded.athlete_id,
			whoop_user_id = excluded.whoop_user_id,
			cycle_id = excluded.cycle_id,
			api_created_at = excluded.api_created_at,
			api_updated_at = excluded.api_updated_at,
			start_time = excluded.start_time,
			end_time = excluded.end_time,
			timezone_offset = excluded.timezone_offset,
			nap = excluded.nap,
			score_state = excluded.score_state,
			score_json = excluded.score_json,
			is_cutting_weight = excluded.is_cutting_weight,
			updated_at = excluded.updated_at
	`, s.WhoopID, s.AthleteID, s.WhoopUserID, s.CycleID, s.APICreatedAt,
		s.APIUpdatedAt, s.StartTime, s.EndTime, s.TimezoneOffset, s.Nap,
		s.ScoreState, s.ScoreJSON, s.IsCuttingWeight, now, now)

	if err != nil {
		return fmt.Errorf("failed to upsert sleep: %w", err)
	}
	return nil
}

// GetSleep retrieves a sleep by WHOOP id
func (db *DB) GetSleep(whoopID string) (*Sleep, error) {
	var s Sleep
	err := db.conn.QueryRow(`
		SELECT whoop_id, athlete_id, whoop_user_id, cycle_id, api_created_at,
		       api_updated_at, start_time, end_time, timezone_offset, nap,
		       score_state, score_json, is_cutting_weight, created_at, updated_at
		FROM sleeps WHERE whoop_id = ?
	`, whoopID).Scan(
		&s.WhoopID, &s.AthleteID, &s.WhoopUserID, &s.CycleID, &s.APICreatedAt,
		&s.APIUpdatedAt, &s.StartTime, &s.EndTime, &s.TimezoneOffset, &s.Nap,
		&s.ScoreState, &s.ScoreJSON, &s.IsCuttingWeight, &s.CreatedAt, &s.UpdatedAt,
	)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get sleep: %w", err)
	}
	return &s, nil
}

// GetLatestSleepByAthlete returns the athlete's sleep with the latest end
// time, or nil when none exist
func (db *DB) GetLatestSleepByAthlete(athleteID int64) (*Sleep, error) {
	var s Sleep
	err := db.conn.QueryRow(`
		SELECT whoop_id, athlete_id, whoop_user_id, cycle_id, api_created_at,
		       api_updated_at, start_time, end_time, timezone_offset, nap,
		       score_state, score_json, is_cutting_weight, created_at, updated_at
		FROM sleeps
		WHERE athlete_id = ?
		ORDER BY end_time DESC
		LIMIT 1
	`, athleteID).Scan(
		&s.WhoopID, &s.AthleteID, &s.WhoopUserID, &s.CycleID, &s.APICreatedAt,
		&s.APIUpdatedAt, &s.StartTime, &s.EndTime, &s.TimezoneOffset, &s.Nap,
		&s.ScoreState, &s.ScoreJSON, &s.IsCuttingWeight, &s.CreatedAt, &s.UpdatedAt,
	)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get latest sleep: %w", err)
	}
	return &s, nil
}

// ListSleepsByAthlete returns sleeps for an athlete, newest first
func (db *DB) ListSleepsByAthlete(athleteID int64, limit int) ([]*Sleep, error) {
	query := `
		SELECT whoop_id, athlete_id, whoop_user_id, cycle_id, api_created_at,
		       api_updated_at, start_time, end_time, timezone_offset, nap,
		       score_state, score_json, is_cutting_weight, created_at, updated_at
		FROM sleeps
		WHERE athlete_id = ?
		ORDER BY start_time DESC
	`
	if limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", limit)
	}

	rows, err := db.conn.Query(query, athleteID)
	if err != nil {
		return nil, fmt.Errorf("failed to list sleeps: %w", err)
	}
	defer rows.Close()

	var sleeps []*Sleep
	for rows.Next() {
		var s Sleep
		err := rows.Scan(
			&s.WhoopID, &s.AthleteID, &s.WhoopUserID, &s.CycleID, &s.APICreatedAt,
			&s.APIUpdatedAt, &s.StartTime, &s.EndTime, &s.TimezoneOffset, &s.Nap,
			&s.ScoreState, &s.ScoreJSON, &s.IsCuttingWeight, &s.CreatedAt, &s.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan sleep: %w", err)
		}
		sleeps = append(sleeps, &s)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating sleeps: %w", err)
	}

	return sleeps, nil
}

// GetLatestSleepEndingOn returns the athlete's latest sleep whose end time
// falls inside the given UTC time range, used for day summary projection
func (db *DB) GetLatestSleepEndingOn(athleteID int64, rangeStart, rangeEnd int64) (*Sleep, error) {
	var s Sleep
	err := db.conn.QueryRow(`
		SELECT whoop_id, athlete_id, whoop_user_id, cycle_id, api_created_at,
		       api_updated_at, start_time, end_time, timezone_offset, nap,
		       score_state, score_json, is_cutting_weight, created_at, updated_at
		FROM sleeps
		WHERE athlete_id = ? AND end_time >= ? AND end_time < ?
		ORDER BY end_time DESC
		LIMIT 1
	`, athleteID, rangeStart, rangeEnd).Scan(
		&s.WhoopID, &s.AthleteID, &s.WhoopUserID, &s.CycleID, &s.APICreatedAt,
		&s.APIUpdatedAt, &s.StartTime, &s.EndTime, &s.TimezoneOffset, &s.Nap,
		&s.ScoreState, &s.ScoreJSON, &s.IsCuttingWeight, &s.CreatedAt, &s.UpdatedAt,
	)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get sleep for range: %w", err)
	}
	return &s, nil
}
