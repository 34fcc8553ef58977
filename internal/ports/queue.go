package ports

import "github.com/adiarra14/fleetsdkapp-sub001/internal/domain"

// QueuedEvent is one event buffered for a later persistence retry.
type QueuedEvent struct {
	Event *domain.DeviceEvent
}

// EventQueue is the bounded in-memory buffer holding events whose store
// append failed. FIFO order is preserved; Enqueue reports false when full so
// the caller can overflow to the durable spool instead of dropping.
type EventQueue interface {
	Enqueue(event *domain.DeviceEvent) bool
	DequeueBatch(max int) []QueuedEvent
	Len() int
}
