package database

import (
	"database/sql"
	"fmt"
	"time"
)

// Athlete represents a local athlete account and its WHOOP credential state.
// The token triple is mutated exclusively through UpdateAthleteTokens and
// overwritten in place on reconnection, never deleted.
type Athlete struct {
	AthleteID       int64
	WhoopUserID     *string
	AccessToken     string
	RefreshToken    string
	TokenExpiresAt  int64 // Unix seconds, 0 = no token stored
	IsCuttingWeight bool
	CreatedAt       int64
	UpdatedAt       int64
}

// Connected reports whether the athlete has a WHOOP credential on file
func (a *Athlete) Connected() bool {
	return a.AccessToken != ""
}

// CreateAthlete inserts a new athlete into the database
func (db *DB) CreateAthlete(a *Athlete) error {
	now := time.Now().Unix()
	a.CreatedAt = now
	a.UpdatedAt = now

	result, err := db.conn.Exec(`
		INSERT INTO athletes (
			whoop_user_id, access_token, refresh_token, token_expires_at,
			is_cutting_weight, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?)
	`, a.WhoopUserID, a.AccessToken, a.RefreshToken, a.TokenExpiresAt,
		a.IsCuttingWeight, a.CreatedAt, a.UpdatedAt)

	if err != nil {
		return fmt.Errorf("failed to create athlete: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get athlete id: %w", err)
	}
	a.AthleteID = id

	return nil
}

// GetAthlete retrieves an athlete by ID
func (db *DB) GetAthlete(athleteID int64) (*Athlete, error) {
	var a Athlete
	err := db.conn.QueryRow(`
		SELECT athlete_id, whoop_user_id, access_token, refresh_token,
		       token_expires_at, is_cutting_weight, created_at, updated_at
		FROM athletes WHERE athlete_id = ?
	`, athleteID).Scan(
		&a.AthleteID, &a.WhoopUserID, &a.AccessToken, &a.RefreshToken,
		&a.TokenExpiresAt, &a.IsCuttingWeight, &a.CreatedAt, &a.UpdatedAt,
	)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get athlete: %w", err)
	}
	return &a, nil
}

// GetAthleteByWhoopUserID retrieves an athlete by the string-normalized
// WHOOP user identifier. Returns nil without error when no account matches.
func (db *DB) GetAthleteByWhoopUserID(whoopUserID string) (*Athlete, error) {
	var a Athlete
	err := db.conn.QueryRow(`
		SELECT athlete_id, whoop_user_id, access_token, refresh_token,
		       token_expires_at, is_cutting_weight, created_at, updated_at
		FROM athletes WHERE whoop_user_id = ?
	`, whoopUserID).Scan(
		&a.AthleteID, &a.WhoopUserID, &a.AccessToken, &a.RefreshToken,
		&a.TokenExpiresAt, &a.IsCuttingWeight, &a.CreatedAt, &a.UpdatedAt,
	)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get athlete by whoop user id: %w", err)
	}
	return &a, nil
}

// UpdateAthleteTokens replaces the athlete's OAuth token triple in a single
// statement. Refresh tokens always rotate, so all three fields change together.
func (db *DB) UpdateAthleteTokens(athleteID int64, accessToken, refreshToken string, expiresAt int64) error {
	result, err := db.conn.Exec(`
		UPDATE athletes
		SET access_token = ?, refresh_token = ?, token_expires_at = ?, updated_at = ?
		WHERE athlete_id = ?
	`, accessToken, refreshToken, expiresAt, time.Now().Unix(), athleteID)

	if err != nil {
		return fmt.Errorf("failed to update athlete tokens: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("athlete not found")
	}

	return nil
}

// ConnectAthlete stores the WHOOP identity and initial token triple after a
// successful authorization-code exchange. Reconnecting overwrites in place.
func (db *DB) ConnectAthlete(athleteID int64, whoopUserID, accessToken, refreshToken string, expiresAt int64) error {
	result, err := db.conn.Exec(`
		UPDATE athletes
		SET whoop_user_id = ?, access_token = ?, refresh_token = ?,
		    token_expires_at = ?, updated_at = ?
		WHERE athlete_id = ?
	`, whoopUserID, accessToken, refreshToken, expiresAt, time.Now().Unix(), athleteID)

	if err != nil {
		return fmt.Errorf("failed to connect athlete: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("athlete not found")
	}

	return nil
}

// SetAthleteWeightCutting updates the athlete's weight-cutting flag
func (db *DB) SetAthleteWeightCutting(athleteID int64, cutting bool) error {
	result, err := db.conn.Exec(`
		UPDATE athletes
		SET is_cutting_weight = ?, updated_at = ?
		WHERE athlete_id = ?
	`, cutting, time.Now().Unix(), athleteID)

	if err != nil {
		return fmt.Errorf("failed to set weight cutting flag: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("athlete not found")
	}

	return nil
}

// ListAthletes returns all athletes ordered by creation time
func (db *DB) ListAthletes() ([]*Athlete, error) {
	rows, err := db.conn.Query(`
		SELECT athlete_id, whoop_user_id, access_token, refresh_token,
		       token_expires_at, is_cutting_weight, created_at, updated_at
		FROM athletes
		ORDER BY created_at DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list athletes: %w", err)
	}
	defer rows.Close()

	var athletes []*Athlete
	for rows.Next() {
		var a Athlete
		err := rows.Scan(
			&a.AthleteID, &a.WhoopUserID, &a.AccessToken, &a.RefreshToken,
			&a.TokenExpiresAt, &a.IsCuttingWeight, &a.CreatedAt, &a.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan athlete: %w", err)
		}
		athletes = append(athletes, &a)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating athletes: %w", err)
	}

	return athletes, nil
}
