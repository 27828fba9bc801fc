package database

import (
	"fmt"
	"time"
)

// WebhookEvent is an audit record of an inbound WHOOP webhook event and the
// outcome of its processing pass
type WebhookEvent struct {
	ID          int64
	EventType   string
	WhoopUserID int64
	ResourceID  string
	TraceID     string
	RawJSON     string
	Status      string
	Error       *string
	CreatedAt   int64
}

// InsertWebhookEvent appends a webhook event to the audit log
func (db *DB) InsertWebhookEvent(e *WebhookEvent) error {
	e.CreatedAt = time.Now().Unix()

	result, err := db.conn.Exec(`
		INSERT INTO webhook_events (
			event_type, whoop_user_id, resource_id, trace_id, raw_json,
			status, error, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, e.EventType, e.WhoopUserID, e.ResourceID, e.TraceID, e.RawJSON,
		e.Status, e.Error, e.CreatedAt)

	if err != nil {
		return fmt.Errorf("failed to insert webhook event: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}
	e.ID = id

	return nil
}

// ListWebhookEventsByUser returns webhook events for a WHOOP user id, newest
// first
func (db *DB) ListWebhookEventsByUser(whoopUserID int64, limit int) ([]*WebhookEvent, error) {
	query := `
		SELECT id, event_type, whoop_user_id, resource_id, trace_id, raw_json,
		       status, error, created_at
		FROM webhook_events
		WHERE whoop_user_id = ?
		ORDER BY created_at DESC
	`
	if limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", limit)
	}

	rows, err := db.conn.Query(query, whoopUserID)
	if err != nil {
		return nil, fmt.Errorf("failed to list webhook events: %w", err)
	}
	defer rows.Close()

	var events []*WebhookEvent
	for rows.Next() {
		var e WebhookEvent
		err := rows.Scan(
			&e.ID, &e.EventType, &e.WhoopUserID, &e.ResourceID, &e.TraceID,
			&e.RawJSON, &e.Status, &e.Error, &e.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan webhook event: %w", err)
		}
		events = append(events, &e)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating webhook events: %w", err)
	}

	return events, nil
}
