package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/gocomet/afya-transport/internal/events"
	"github.com/google/uuid"
	"github.com/lib/pq"
)

const schema = `
CREATE TABLE IF NOT EXISTS audit_events (
	id          UUID PRIMARY KEY,
	event_type  TEXT NOT NULL,
	entity_key  TEXT NOT NULL,
	occurred_at TIMESTAMPTZ NOT NULL,
	payload     JSONB NOT NULL
);
CREATE INDEX IF NOT EXISTS audit_events_entity_idx ON audit_events (entity_key, occurred_at);
`

// AuditStore mirrors committed dispatch and wallet events into PostgreSQL.
// The in-memory engines stay the source of truth; the table is an
// append-only trail for reporting.
type AuditStore struct {
	db *sql.DB
}

// AuditRecord is one stored event
type AuditRecord struct {
	ID         string          `json:"id"`
	Type       string          `json:"type"`
	Key        string          `json:"key"`
	OccurredAt time.Time       `json:"occurred_at"`
	Payload    json.RawMessage `json:"payload"`
}

// NewAuditStore wraps an open database
func NewAuditStore(db *sql.DB) *AuditStore {
	return &AuditStore{db: db}
}

// EnsureSchema creates the audit table when it is missing
func (s *AuditStore) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("create audit schema: %w", err)
	}
	return nil
}

// Publish inserts evt. Redelivery of an event id already stored is not an error.
func (s *AuditStore) Publish(ctx context.Context, evt events.Event) error {
	payload, err := json.Marshal(evt.Payload)
	if err != nil {
		return fmt.Errorf("encode audit payload: %w", err)
	}

	id := evt.ID
	if id == "" {
		id = uuid.NewString()
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO audit_events (id, event_type, entity_key, occurred_at, payload)
		VALUES ($1, $2, $3, $4, $5)
	`, id, evt.Type, evt.Key, evt.OccurredAt, payload)

	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == "23505" {
		return nil
	}
	if err != nil {
		return fmt.Errorf("insert audit event %s: %w", evt.Type, err)
	}
	return nil
}

// ListByKey returns the trail of one request or user, oldest first
func (s *AuditStore) ListByKey(ctx context.Context, key string, types []string, limit int) ([]AuditRecord, error) {
	if limit <= 0 {
		limit = 100
	}

	var (
		rows *sql.Rows
		err  error
	)
	if len(types) > 0 {
		rows, err = s.db.QueryContext(ctx, `
			SELECT id, event_type, entity_key, occurred_at, payload
			FROM audit_events
			WHERE entity_key = $1 AND event_type = ANY($2)
			ORDER BY occurred_at
			LIMIT $3
		`, key, pq.Array(types), limit)
	} else {
		rows, err = s.db.QueryContext(ctx, `
			SELECT id, event_type, entity_key, occurred_at, payload
			FROM audit_events
			WHERE entity_key = $1
			ORDER BY occurred_at
			LIMIT $2
		`, key, limit)
	}
	if err != nil {
		return nil, fmt.Errorf("query audit events: %w", err)
	}
	defer rows.Close()

	var out []AuditRecord
	for rows.Next() {
		var rec AuditRecord
		var payload []byte
		if err := rows.Scan(&rec.ID, &rec.Type, &rec.Key, &rec.OccurredAt, &payload); err != nil {
			return nil, fmt.Errorf("scan audit event: %w", err)
		}
		rec.Payload = payload
		out = append(out, rec)
	}
	return out, rows.Err()
}
