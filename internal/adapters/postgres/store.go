package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/lib/pq"

	"github.com/adiarra14/fleetsdkapp-sub001/internal/domain"
	"github.com/adiarra14/fleetsdkapp-sub001/internal/ports"
)

// Store owns the device_events table: append-only telemetry plus the
// delivered flag driving the relay loop.
type Store struct {
	db    *sql.DB
	table string
}

func NewStore(db *sql.DB, table string) *Store {
	if table == "" {
		table = "device_events"
	}
	return &Store{db: db, table: table}
}

// Append inserts exactly one row for the event. Events with no parsed fields
// (quarantined payloads) are stored with an empty jsonb object so the raw
// bytes remain available for forensic replay.
func (s *Store) Append(ctx context.Context, event *domain.DeviceEvent) (int64, error) {
	fields := event.ParsedFields
	if fields == nil {
		fields = map[string]any{}
	}
	parsed, err := json.Marshal(fields)
	if err != nil {
		return 0, fmt.Errorf("marshal parsed fields: %w", err)
	}

	query := fmt.Sprintf(`INSERT INTO %s (device_id, event_type, occurred_at, raw_payload, parsed_fields, delivered)
VALUES ($1, $2, $3, $4, $5, FALSE) RETURNING id`, s.table)

	var id int64
	err = s.db.QueryRowContext(ctx, query,
		event.DeviceID, event.EventType, event.OccurredAt.UTC(), event.RawPayload, parsed).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("append event for %s: %w", event.DeviceID, err)
	}
	return id, nil
}

// ListPending returns undelivered events oldest first, bounded by limit.
func (s *Store) ListPending(ctx context.Context, limit int) ([]*domain.DeviceEvent, error) {
	if limit <= 0 {
		limit = 100
	}
	query := fmt.Sprintf(`SELECT id, device_id, event_type, occurred_at, raw_payload, parsed_fields
FROM %s WHERE NOT delivered ORDER BY occurred_at, id LIMIT $1`, s.table)

	rows, err := s.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("list pending: %w", err)
	}
	defer rows.Close()

	var events []*domain.DeviceEvent
	for rows.Next() {
		var (
			ev     domain.DeviceEvent
			parsed []byte
		)
		if err := rows.Scan(&ev.ID, &ev.DeviceID, &ev.EventType, &ev.OccurredAt, &ev.RawPayload, &parsed); err != nil {
			return nil, fmt.Errorf("scan pending event: %w", err)
		}
		if len(parsed) > 0 {
			if err := json.Unmarshal(parsed, &ev.ParsedFields); err != nil {
				return nil, fmt.Errorf("decode parsed fields for event %d: %w", ev.ID, err)
			}
		}
		events = append(events, &ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list pending: %w", err)
	}
	return events, nil
}

func (s *Store) MarkDelivered(ctx context.Context, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}
	query := fmt.Sprintf(`UPDATE %s SET delivered = TRUE WHERE id = ANY($1)`, s.table)
	if _, err := s.db.ExecContext(ctx, query, pq.Array(ids)); err != nil {
		return fmt.Errorf("mark delivered: %w", err)
	}
	return nil
}

func (s *Store) PendingCount(ctx context.Context) (int64, error) {
	query := fmt.Sprintf(`SELECT COUNT(*) FROM %s WHERE NOT delivered`, s.table)
	var count int64
	if err := s.db.QueryRowContext(ctx, query).Scan(&count); err != nil {
		return 0, fmt.Errorf("pending count: %w", err)
	}
	return count, nil
}

var _ ports.EventStore = (*Store)(nil)
