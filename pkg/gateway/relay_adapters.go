package gateway

import (
	"context"
	"errors"
	"sync"

	"github.com/google/uuid"

	"github.com/adiarra14/fleetsdkapp-sub001/internal/domain"
	"github.com/adiarra14/fleetsdkapp-sub001/internal/ports"
)

// ErrChannelRelayClosed is returned when a channel relay receives a batch
// after being closed.
var ErrChannelRelayClosed = errors.New("gateway: channel relay closed")

// EventBatchHandler is invoked with ordered undelivered batches. A nil return
// marks the batch delivered; an error leaves it pending for the next cycle.
type EventBatchHandler func([]Event) error

// NewCallbackRelay adapts an EventBatchHandler into a full Relay so callers
// can forward events to arbitrary systems without defining structs.
func NewCallbackRelay(name string, fn EventBatchHandler) Relay {
	if name == "" {
		name = "callback"
	}
	return &callbackRelay{name: name, fn: fn}
}

// NewChannelRelay exposes delivered batches via a channel; it returns the
// relay, the read-only channel, and a close function for shutdown. A batch is
// marked delivered once the consumer has accepted it from the channel.
func NewChannelRelay(name string, buffer int) (Relay, <-chan []Event, func()) {
	if name == "" {
		name = "channel"
	}
	if buffer < 0 {
		buffer = 0
	}
	ch := make(chan []Event, buffer)
	r := &channelRelay{name: name, ch: ch}
	return r, ch, func() { r.close() }
}

type callbackRelay struct {
	name string
	fn   EventBatchHandler
}

func (r *callbackRelay) Relay(ctx context.Context, batch []*domain.DeviceEvent) ports.RelayResult {
	result := ports.RelayResult{Outcome: ports.RelaySuccess, CorrelationID: uuid.NewString()}
	if len(batch) == 0 {
		return result
	}
	if r.fn == nil {
		result.Outcome = ports.RelayClientError
		result.Err = errors.New("gateway: callback relay " + r.name + ": nil handler")
		return result
	}
	if err := r.fn(copyBatch(batch)); err != nil {
		result.Outcome = ports.RelayServerError
		result.Err = err
	}
	return result
}

type channelRelay struct {
	name string
	ch   chan []Event

	mu     sync.RWMutex
	closed bool
}

// Relay holds the read lock across the send so close cannot close the channel
// under an in-flight batch. Context cancellation still unblocks the sender.
func (r *channelRelay) Relay(ctx context.Context, batch []*domain.DeviceEvent) ports.RelayResult {
	result := ports.RelayResult{Outcome: ports.RelaySuccess, CorrelationID: uuid.NewString()}
	if len(batch) == 0 {
		return result
	}

	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.closed {
		result.Outcome = ports.RelayTransportError
		result.Err = ErrChannelRelayClosed
		return result
	}

	select {
	case <-ctx.Done():
		result.Outcome = ports.RelayTransportError
		result.Err = ctx.Err()
	case r.ch <- copyBatch(batch):
	}
	return result
}

func (r *channelRelay) close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return
	}
	r.closed = true
	close(r.ch)
}

func copyBatch(batch []*domain.DeviceEvent) []Event {
	out := make([]Event, len(batch))
	for i, event := range batch {
		out[i] = *event
	}
	return out
}
