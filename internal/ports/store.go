package ports

import (
	"context"

	"github.com/adiarra14/fleetsdkapp-sub001/internal/domain"
)

// EventStore persists decoded telemetry. Append must produce exactly one row
// per decoded frame, including frames that failed parsing (raw payload kept,
// parsed fields empty). ListPending feeds the relay loop oldest-first.
type EventStore interface {
	Append(ctx context.Context, event *domain.DeviceEvent) (int64, error)
	ListPending(ctx context.Context, limit int) ([]*domain.DeviceEvent, error)
	MarkDelivered(ctx context.Context, ids []int64) error
	PendingCount(ctx context.Context) (int64, error)
}
