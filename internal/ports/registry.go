package ports

import (
	"context"

	"github.com/adiarra14/fleetsdkapp-sub001/internal/domain"
)

// DeviceRegistry owns all mutations of the device table. EnsureDevice must be
// safe under concurrent first-sight of the same id from multiple connections:
// implementations use a single conflict-tolerant upsert, never a separate
// existence check followed by an insert.
type DeviceRegistry interface {
	// EnsureDevice inserts the device on first sight (status ACTIVE) or
	// refreshes last_seen_at, promoting OFFLINE devices back to ONLINE.
	EnsureDevice(ctx context.Context, deviceID string) error

	// GetDevice returns the current row, or domain-level not-found.
	GetDevice(ctx context.Context, deviceID string) (*domain.Device, error)

	// MarkOffline flags devices whose last_seen_at is older than the cutoff.
	MarkOffline(ctx context.Context, deviceID string) error
}
