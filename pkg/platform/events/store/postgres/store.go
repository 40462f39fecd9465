package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	id "rentvault/pkg/domain"
	"rentvault/pkg/platform/events"
)

// Store persists the event stream in PostgreSQL. Rows are append-only; the
// serial position column preserves global emission order.
//
// Schema:
//
//	CREATE TABLE escrow_events (
//	    position    BIGSERIAL PRIMARY KEY,
//	    instance_id BIGINT NOT NULL,
//	    kind        TEXT NOT NULL,
//	    occurred_at TIMESTAMPTZ NOT NULL,
//	    payload     JSONB NOT NULL
//	);
//	CREATE INDEX escrow_events_instance_idx ON escrow_events (instance_id, position);
type Store struct {
	db *sql.DB
}

func New(db *sql.DB) *Store {
	return &Store{db: db}
}

func (s *Store) Append(ctx context.Context, event events.Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO escrow_events (instance_id, kind, occurred_at, payload)
		VALUES ($1, $2, $3, $4)
	`, int64(event.InstanceID), string(event.Kind), event.Timestamp, payload)
	if err != nil {
		return fmt.Errorf("append event: %w", err)
	}
	return nil
}

func (s *Store) ListByInstance(ctx context.Context, instanceID id.InstanceID) ([]events.Event, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT payload FROM escrow_events
		WHERE instance_id = $1
		ORDER BY position
	`, int64(instanceID))
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	defer rows.Close()

	var out []events.Event
	for rows.Next() {
		var payload []byte
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		var e events.Event
		if err := json.Unmarshal(payload, &e); err != nil {
			return nil, fmt.Errorf("unmarshal event: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
