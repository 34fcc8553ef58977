package postgres

import (
	"context"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"

	"github.com/adiarra14/fleetsdkapp-sub001/internal/domain"
)

func TestStoreAppend(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()

	store := NewStore(db, "device_events")

	event := &domain.DeviceEvent{
		DeviceID:     "D1",
		EventType:    domain.EventGPS,
		OccurredAt:   fixedNow,
		RawPayload:   []byte(`{"deviceId":"D1","lat":1.0}`),
		ParsedFields: map[string]any{"lat": 1.0},
	}

	expected := regexp.QuoteMeta(`INSERT INTO device_events (device_id, event_type, occurred_at, raw_payload, parsed_fields, delivered)
VALUES ($1, $2, $3, $4, $5, FALSE) RETURNING id`)
	mock.ExpectQuery(expected).
		WithArgs("D1", string(domain.EventGPS), fixedNow, event.RawPayload, []byte(`{"lat":1}`)).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(7)))

	id, err := store.Append(context.Background(), event)
	if err != nil {
		t.Fatalf("append: %v", err)
	}
	if id != 7 {
		t.Fatalf("expected id 7, got %d", id)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestStoreAppendQuarantinedEventEmptyFields(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()

	store := NewStore(db, "device_events")

	event := &domain.DeviceEvent{
		DeviceID:   "UNKNOWN-1748779200000",
		EventType:  domain.EventStatus,
		OccurredAt: fixedNow,
		RawPayload: []byte{0x00, 0xFF},
	}

	mock.ExpectQuery("INSERT INTO device_events").
		WithArgs(event.DeviceID, string(domain.EventStatus), fixedNow, event.RawPayload, []byte(`{}`)).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(8)))

	if _, err := store.Append(context.Background(), event); err != nil {
		t.Fatalf("append quarantined: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestStoreListPending(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()

	store := NewStore(db, "device_events")

	rows := sqlmock.NewRows([]string{"id", "device_id", "event_type", "occurred_at", "raw_payload", "parsed_fields"}).
		AddRow(int64(1), "D1", "GPS", fixedNow, []byte(`{}`), []byte(`{"lat":1.5}`)).
		AddRow(int64(2), "D2", "STATUS", fixedNow, []byte(`{}`), []byte(`{}`))

	expected := regexp.QuoteMeta(`SELECT id, device_id, event_type, occurred_at, raw_payload, parsed_fields
FROM device_events WHERE NOT delivered ORDER BY occurred_at, id LIMIT $1`)
	mock.ExpectQuery(expected).WithArgs(50).WillReturnRows(rows)

	events, err := store.ListPending(context.Background(), 50)
	if err != nil {
		t.Fatalf("list pending: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("expected 2 events, got %d", len(events))
	}
	if events[0].ID != 1 || events[0].EventType != domain.EventGPS {
		t.Fatalf("unexpected first event: %+v", events[0])
	}
	if lat, ok := events[0].ParsedFields["lat"]; !ok || lat != 1.5 {
		t.Fatalf("parsed fields not decoded: %v", events[0].ParsedFields)
	}
}

func TestStoreMarkDelivered(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()

	store := NewStore(db, "device_events")

	mock.ExpectExec(regexp.QuoteMeta(`UPDATE device_events SET delivered = TRUE WHERE id = ANY($1)`)).
		WithArgs(pq.Array([]int64{1, 2, 3})).
		WillReturnResult(sqlmock.NewResult(0, 3))

	if err := store.MarkDelivered(context.Background(), []int64{1, 2, 3}); err != nil {
		t.Fatalf("mark delivered: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestStoreMarkDeliveredEmpty(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()

	store := NewStore(db, "device_events")
	if err := store.MarkDelivered(context.Background(), nil); err != nil {
		t.Fatalf("expected nil error for empty id list, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestStorePendingCount(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()

	store := NewStore(db, "device_events")

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT COUNT(*) FROM device_events WHERE NOT delivered`)).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(int64(42)))

	count, err := store.PendingCount(context.Background())
	if err != nil {
		t.Fatalf("pending count: %v", err)
	}
	if count != 42 {
		t.Fatalf("expected 42 pending, got %d", count)
	}
}
