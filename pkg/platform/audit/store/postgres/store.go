package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	audit "lineage/pkg/platform/audit"
	txcontext "lineage/pkg/platform/tx"
)

// Store implements audit.Store with a transactional outbox. Records land in
// audit_outbox and the Kafka relay publishes and marks them.
type Store struct {
	db *sql.DB
}

func New(db *sql.DB) *Store {
	return &Store{db: db}
}

// OutboxEntry is an unpublished outbox row.
type OutboxEntry struct {
	ID        uuid.UUID
	Action    string
	EntityKey string
	Payload   []byte
	CreatedAt time.Time
}

// outboxPayload is the JSON document published to Kafka.
type outboxPayload struct {
	ID         string          `json:"id"`
	Category   string          `json:"category"`
	Action     string          `json:"action"`
	ActorID    string          `json:"actor_id,omitempty"`
	EntityType string          `json:"entity_type"`
	EntityID   string          `json:"entity_id"`
	Previous   json.RawMessage `json:"previous,omitempty"`
	New        json.RawMessage `json:"new,omitempty"`
	RequestID  string          `json:"request_id,omitempty"`
	ClientIP   string          `json:"client_ip,omitempty"`
	Timestamp  string          `json:"timestamp"`
}

func (s *Store) Append(ctx context.Context, rec audit.Record) error {
	if rec.ID == uuid.Nil {
		rec.ID = uuid.New()
	}
	payload, err := json.Marshal(outboxPayload{
		ID:         rec.ID.String(),
		Category:   string(rec.Action.Category()),
		Action:     string(rec.Action),
		ActorID:    rec.ActorID,
		EntityType: rec.EntityType,
		EntityID:   rec.EntityID,
		Previous:   rec.Previous,
		New:        rec.New,
		RequestID:  rec.RequestID,
		ClientIP:   rec.ClientIP,
		Timestamp:  rec.Timestamp.UTC().Format(time.RFC3339Nano),
	})
	if err != nil {
		return fmt.Errorf("marshal audit payload: %w", err)
	}

	const query = `
		INSERT INTO audit_outbox (id, entity_key, action, payload, created_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id) DO NOTHING
	`
	_, err = txcontext.Executor(ctx, s.db).ExecContext(ctx, query,
		rec.ID,
		rec.EntityType+":"+rec.EntityID,
		string(rec.Action),
		payload,
		rec.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("insert outbox entry: %w", err)
	}
	return nil
}

// FetchUnpublished returns up to limit unpublished entries, oldest first.
// Rows are locked with SKIP LOCKED so concurrent relays split the work.
func (s *Store) FetchUnpublished(ctx context.Context, limit int) ([]OutboxEntry, error) {
	const query = `
		SELECT id, action, entity_key, payload, created_at
		FROM audit_outbox
		WHERE published_at IS NULL
		ORDER BY created_at
		LIMIT $1
		FOR UPDATE SKIP LOCKED
	`
	rows, err := txcontext.Executor(ctx, s.db).QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("query outbox: %w", err)
	}
	defer rows.Close()

	var entries []OutboxEntry
	for rows.Next() {
		var e OutboxEntry
		if err := rows.Scan(&e.ID, &e.Action, &e.EntityKey, &e.Payload, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan outbox entry: %w", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate outbox: %w", err)
	}
	return entries, nil
}

// MarkPublished stamps the given entries as published.
func (s *Store) MarkPublished(ctx context.Context, ids []uuid.UUID, at time.Time) error {
	if len(ids) == 0 {
		return nil
	}
	raw := make([]string, len(ids))
	for i, id := range ids {
		raw[i] = id.String()
	}
	const query = `UPDATE audit_outbox SET published_at = $1 WHERE id = ANY($2::uuid[])`
	if _, err := txcontext.Executor(ctx, s.db).ExecContext(ctx, query, at, pq.Array(raw)); err != nil {
		return fmt.Errorf("mark outbox published: %w", err)
	}
	return nil
}

// ListByEntity returns records for one entity, newest first.
func (s *Store) ListByEntity(ctx context.Context, entityType, entityID string) ([]audit.Record, error) {
	const query = `
		SELECT payload FROM audit_outbox
		WHERE entity_key = $1
		ORDER BY created_at DESC
	`
	rows, err := s.db.QueryContext(ctx, query, entityType+":"+entityID)
	if err != nil {
		return nil, fmt.Errorf("query audit records: %w", err)
	}
	defer rows.Close()

	var out []audit.Record
	for rows.Next() {
		var raw []byte
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("scan audit record: %w", err)
		}
		rec, err := decodePayload(raw)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate audit records: %w", err)
	}
	return out, nil
}

func decodePayload(raw []byte) (audit.Record, error) {
	var p outboxPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return audit.Record{}, fmt.Errorf("decode audit payload: %w", err)
	}
	id, err := uuid.Parse(p.ID)
	if err != nil {
		return audit.Record{}, fmt.Errorf("decode audit id: %w", err)
	}
	ts, err := time.Parse(time.RFC3339Nano, p.Timestamp)
	if err != nil {
		return audit.Record{}, fmt.Errorf("decode audit timestamp: %w", err)
	}
	return audit.Record{
		ID:         id,
		ActorID:    p.ActorID,
		Action:     audit.Action(p.Action),
		EntityType: p.EntityType,
		EntityID:   p.EntityID,
		Previous:   p.Previous,
		New:        p.New,
		RequestID:  p.RequestID,
		ClientIP:   p.ClientIP,
		Timestamp:  ts,
	}, nil
}
