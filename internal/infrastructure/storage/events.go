package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/eshaffer321/propledger/internal/domain/ledger"
)

// SaveEvent records an event
func (s *Storage) SaveEvent(ctx context.Context, event *EventRecord) error {
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.OccurredAt.IsZero() {
		event.OccurredAt = s.now()
	}

	payloadJSON, err := json.Marshal(event.Payload)
	if err != nil {
		return fmt.Errorf("failed to encode event payload: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
	INSERT INTO events (id, organization_id, name, payload_json, occurred_at)
	VALUES (?, ?, ?, ?, ?)
	`, event.ID, event.OrganizationID, event.Name, string(payloadJSON), utc(event.OccurredAt))
	if err != nil {
		return fmt.Errorf("failed to save event %s: %w", event.Name, err)
	}
	return nil
}

// ListEvents returns recent events, newest first
func (s *Storage) ListEvents(ctx context.Context, org ledger.OrganizationContext, name string, limit int) ([]*EventRecord, error) {
	if limit <= 0 {
		limit = 50
	}

	query := `
	SELECT id, organization_id, name, payload_json, occurred_at
	FROM events WHERE organization_id = ?`
	args := []any{org.OrganizationID}
	if name != "" {
		query += " AND name = ?"
		args = append(args, name)
	}
	query += " ORDER BY occurred_at DESC LIMIT ?"
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var events []*EventRecord
	for rows.Next() {
		var (
			e           EventRecord
			payloadJSON sql.NullString
		)
		if err := rows.Scan(&e.ID, &e.OrganizationID, &e.Name, &payloadJSON, &e.OccurredAt); err != nil {
			return nil, err
		}
		if payloadJSON.Valid && payloadJSON.String != "" {
			_ = json.Unmarshal([]byte(payloadJSON.String), &e.Payload)
		}
		e.OccurredAt = e.OccurredAt.UTC()
		events = append(events, &e)
	}
	return events, rows.Err()
}
