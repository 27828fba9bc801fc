package database

import (
	"database/sql"
	"fmt"
	"time"
)

// Day is a derived per-date summary, recomputed from the latest recovery and
// sleep records overlapping that date
type Day struct {
	AthleteID            int64
	Date                 string // YYYY-MM-DD
	RecoveryScore        *int64
	SleepEfficiencyScore *int64
	StrainScore          *float64
	IsCuttingWeight      bool
	CreatedAt            int64
	UpdatedAt            int64
}

// UpsertDay inserts or replaces a day summary for (athlete, date)
func (db *DB) UpsertDay(d *Day) error {
	now := time.Now().Unix()

	_, err := db.conn.Exec(`
		INSERT INTO days (
			athlete_id, date, recovery_score, sleep_efficiency_score,
			strain_score, is_cutting_weight, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(athlete_id, date) DO UPDATE SET
			recovery_score = excluded.recovery_score,
			sleep_efficiency_score = excluded.sleep_efficiency_score,
			strain_score = excluded.strain_score,
			is_cutting_weight = excluded.is_cutting_weight,
			updated_at = excluded.updated_at
	`, d.AthleteID, d.Date, d.RecoveryScore, d.SleepEfficiencyScore,
		d.StrainScore, d.IsCuttingWeight, now, now)

	if err != nil {
		return fmt.Errorf("failed to upsert day: %w", err)
	}
	return nil
}

// GetDay retrieves a day summary by athlete and date
func (db *DB) GetDay(athleteID int64, date string) (*Day, error) {
	var d Day
	err := db.conn.QueryRow(`
		SELECT athlete_id, date, recovery_score, sleep_efficiency_score,
		       strain_score, is_cutting_weight, created_at, updated_at
		FROM days WHERE athlete_id = ? AND date = ?
	`, athleteID, date).Scan(
		&d.AthleteID, &d.Date, &d.RecoveryScore, &d.SleepEfficiencyScore,
		&d.StrainScore, &d.IsCuttingWeight, &d.CreatedAt, &d.UpdatedAt,
	)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get day: %w", err)
	}
	return &d, nil
}

// ListDaysByAthlete returns day summaries for an athlete, newest first
func (db *DB) ListDaysByAthlete(athleteID int64, limit int) ([]*Day, error) {
	query := `
		SELECT athlete_id, date, recovery_score, sleep_efficiency_score,
		       strain_score, is_cutting_weight, created_at, updated_at
		FROM days
		WHERE athlete_id = ?
		ORDER BY date DESC
	`
	if limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", limit)
	}

	rows, err := db.conn.Query(query, athleteID)
	if err != nil {
		return nil, fmt.Errorf("failed to list days: %w", err)
	}
	defer rows.Close()

	var days []*Day
	for rows.Next() {
		var d Day
		err := rows.Scan(
			&d.AthleteID, &d.Date, &d.RecoveryScore, &d.SleepEfficiencyScore,
			&d.StrainScore, &d.IsCuttingWeight, &d.CreatedAt, &d.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan day: %w", err)
		}
		days = append(days, &d)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating days: %w", err)
	}

	return days, nil
}
