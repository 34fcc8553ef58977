// Package postgres implements the device registry and event store on top of
// database/sql with the lib/pq driver.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/adiarra14/fleetsdkapp-sub001/internal/domain"
	"github.com/adiarra14/fleetsdkapp-sub001/internal/ports"
)

// ErrDeviceNotFound is returned by GetDevice for unknown ids.
var ErrDeviceNotFound = errors.New("postgres: device not found")

// Registry owns the devices table.
type Registry struct {
	db    *sql.DB
	table string
	now   func() time.Time
}

func NewRegistry(db *sql.DB, table string) *Registry {
	if table == "" {
		table = "devices"
	}
	return &Registry{db: db, table: table, now: time.Now}
}

// EnsureDevice upserts in a single statement so concurrent first-sight of the
// same id from multiple connections can never create two rows. New devices
// start ACTIVE; known devices get their last_seen_at refreshed and OFFLINE
// ones are promoted back to ONLINE.
func (r *Registry) EnsureDevice(ctx context.Context, deviceID string) error {
	if deviceID == "" {
		return errors.New("postgres: empty device id")
	}
	query := fmt.Sprintf(`INSERT INTO %s (device_id, status, last_seen_at, created_at)
VALUES ($1, $2, $3, $3)
ON CONFLICT (device_id) DO UPDATE SET
 last_seen_at = EXCLUDED.last_seen_at,
 status = CASE WHEN %s.status = $4 THEN $5 ELSE %s.status END`,
		r.table, r.table, r.table)

	_, err := r.db.ExecContext(ctx, query,
		deviceID, domain.StatusActive, r.now().UTC(), domain.StatusOffline, domain.StatusOnline)
	if err != nil {
		return fmt.Errorf("ensure device %s: %w", deviceID, err)
	}
	return nil
}

func (r *Registry) GetDevice(ctx context.Context, deviceID string) (*domain.Device, error) {
	query := fmt.Sprintf(
		`SELECT device_id, status, last_seen_at, created_at FROM %s WHERE device_id = $1`, r.table)

	var d domain.Device
	err := r.db.QueryRowContext(ctx, query, deviceID).
		Scan(&d.DeviceID, &d.Status, &d.LastSeenAt, &d.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrDeviceNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get device %s: %w", deviceID, err)
	}
	return &d, nil
}

func (r *Registry) MarkOffline(ctx context.Context, deviceID string) error {
	query := fmt.Sprintf(`UPDATE %s SET status = $1 WHERE device_id = $2`, r.table)
	if _, err := r.db.ExecContext(ctx, query, domain.StatusOffline, deviceID); err != nil {
		return fmt.Errorf("mark offline %s: %w", deviceID, err)
	}
	return nil
}

var _ ports.DeviceRegistry = (*Registry)(nil)
