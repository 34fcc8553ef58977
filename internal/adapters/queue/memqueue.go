package queue

import (
	"sync"

	"github.com/adiarra14/fleetsdkapp-sub001/internal/domain"
	"github.com/adiarra14/fleetsdkapp-sub001/internal/ports"
)

// MemQueue is the bounded in-memory buffer for events whose store append
// failed. FIFO ordering is preserved so recovery replays oldest first.
type MemQueue struct {
	mu   sync.Mutex
	data []ports.QueuedEvent
	cap  int
}

func NewMemQueue(capacity int) *MemQueue {
	if capacity <= 0 {
		capacity = 1024
	}
	return &MemQueue{
		data: make([]ports.QueuedEvent, 0, capacity),
		cap:  capacity,
	}
}

// Enqueue returns false when the queue is full; the caller overflows to the
// durable spool instead of dropping the event.
func (q *MemQueue) Enqueue(event *domain.DeviceEvent) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.data) >= q.cap {
		return false
	}
	q.data = append(q.data, ports.QueuedEvent{Event: event})
	return true
}

func (q *MemQueue) DequeueBatch(max int) []ports.QueuedEvent {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.data) == 0 {
		return nil
	}
	if max <= 0 || max > len(q.data) {
		max = len(q.data)
	}
	out := make([]ports.QueuedEvent, max)
	copy(out, q.data[:max])
	q.data = append(q.data[:0], q.data[max:]...)
	return out
}

func (q *MemQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.data)
}

var _ ports.EventQueue = (*MemQueue)(nil)
