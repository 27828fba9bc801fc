package database

import (
	"database/sql"
	"fmt"
	"time"
)

// Cycle represents a WHOOP physiological cycle. The WHOOP cycle id is the
// reconciliation key: re-syncing the same id replaces the row in place.
type Cycle struct {
	WhoopID        int64
	AthleteID      int64
	WhoopUserID    int64
	APICreatedAt   int64 // Unix millis
	APIUpdatedAt   int64
	StartTime      int64
	EndTime        *int64
	TimezoneOffset string
	ScoreState     string
	ScoreJSON      string
	CreatedAt      int64
	UpdatedAt      int64
}

// UpsertCycle inserts a cycle or replaces all synced fields if the WHOOP id
// already exists. A concurrent insert of the same id resolves to an update.
func (db *DB) UpsertCycle(c *Cycle) error {
	now := time.Now().Unix()

	_, err := db.conn.Exec(`
		INSERT INTO cycles (
			whoop_id, athlete_id, whoop_user_id, api_created_at, api_updated_at,
			start_time, end_time, timezone_offset, score_state, score_json,
			created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(whoop_id) DO UPDATE SET
			athlete_id = excluded.athlete_id,
			whoop_user_id = excluded.whoop_user_id,
			api_created_at = excluded.api_created_at,
			api_updated_at = excluded.api_updated_at,
			start_time = excluded.start_time,
			end_time = excluded.end_time,
			timezone_offset = excluded.timezone_offset,
			score_state = excluded.score_state,
			score_json = excluded.score_json,
			updated_at = excluded.updated_at
	`, c.WhoopID, c.AthleteID, c.WhoopUserID, c.APICreatedAt, c.APIUpdatedAt,
		c.StartTime, c.EndTime, c.TimezoneOffset, c.ScoreState, c.ScoreJSON,
		now, now)

	if err != nil {
		return fmt.Errorf("failed to upsert cycle: %w", err)
	}
	return nil
}

// GetCycle retrieves a cycle by WHOOP id
func (db *DB) GetCycle(whoopID int64) (*Cycle, error) {
	var c Cycle
	err := db.conn.QueryRow(`
		SELECT whoop_id, athlete_id, whoop_user_id, api_created_at, api_updated_at,
		       start_time, end_time, timezone_offset, score_state, score_json,
		       created_at, updated_at
		FROM cycles WHERE whoop_id = ?
	`, whoopID).Scan(
		&c.WhoopID, &c.AthleteID, &c.WhoopUserID, &c.APICreatedAt, &c.APIUpdatedAt,
		&c.StartTime, &c.EndTime, &c.TimezoneOffset, &c.ScoreState, &c.ScoreJSON,
		&c.CreatedAt, &c.UpdatedAt,
	)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get cycle: %w", err)
	}
	return &c, nil
}

// ListCyclesByAthlete returns cycles for an athlete, newest first
func (db *DB) ListCyclesByAthlete(athleteID int64, limit int) ([]*Cycle, error) {
	query := `
		SELECT whoop_id, athlete_id, whoop_user_id, api_created_at, api_updated_at,
		       start_time, end_time, timezone_offset, score_state, score_json,
		       created_at, updated_at
		FROM cycles
		WHERE athlete_id = ?
		ORDER BY start_time DESC
	`
	if limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", limit)
	}

	rows, err := db.conn.Query(query, athleteID)
	if err != nil {
		return nil, fmt.Errorf("failed to list cycles: %w", err)
	}
	defer rows.Close()

	var cycles []*Cycle
	for rows.Next() {
		var c Cycle
		err := rows.Scan(
			&c.WhoopID, &c.AthleteID, &c.WhoopUserID, &c.APICreatedAt, &c.APIUpdatedAt,
			&c.StartTime, &c.EndTime, &c.TimezoneOffset, &c.ScoreState, &c.ScoreJSON,
			&c.CreatedAt, &c.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan cycle: %w", err)
		}
		cycles = append(cycles, &c)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating cycles: %w", err)
	}

	return cycles, nil
}
