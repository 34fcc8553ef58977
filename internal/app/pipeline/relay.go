package pipeline

import (
	"context"
	"time"

	"github.com/adiarra14/fleetsdkapp-sub001/internal/domain"
	"github.com/adiarra14/fleetsdkapp-sub001/internal/ports"
)

// RelayLoop periodically forwards undelivered events to the partner. Cycles
// run synchronously on one goroutine, so a slow relay simply causes ticks to
// be dropped rather than overlapping batches. Events are marked delivered
// only on an unambiguous success; everything else stays pending for the next
// cycle, which makes delivery at-least-once.
type RelayLoop struct {
	store  ports.EventStore
	relay  ports.Relay
	policy ports.RelayPolicy
	obs    ports.Observability
}

func NewRelayLoop(store ports.EventStore, relay ports.Relay, policy ports.RelayPolicy, obs ports.Observability) *RelayLoop {
	if policy.BatchSize <= 0 {
		policy.BatchSize = 100
	}
	if policy.ProcessingInterval <= 0 {
		policy.ProcessingInterval = time.Minute
	}
	return &RelayLoop{store: store, relay: relay, policy: policy, obs: obs}
}

// Run blocks until ctx is cancelled. One cycle runs immediately so a restart
// with a backlog does not wait a full interval.
func (l *RelayLoop) Run(ctx context.Context) {
	if !l.policy.Enabled {
		l.obs.LogInfo("relay_disabled")
		<-ctx.Done()
		return
	}

	ticker := time.NewTicker(l.policy.ProcessingInterval)
	defer ticker.Stop()

	l.Cycle(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			l.Cycle(ctx)
		}
	}
}

// Cycle relays one pending batch. Exported so the CLI's one-shot mode and
// tests can drive it directly.
func (l *RelayLoop) Cycle(ctx context.Context) {
	if pending, err := l.store.PendingCount(ctx); err == nil {
		l.obs.SetGauge("balise_events_pending", float64(pending))
	}

	batch, err := l.store.ListPending(ctx, l.policy.BatchSize)
	if err != nil {
		l.obs.LogError("list_pending_failed", err)
		return
	}
	if len(batch) == 0 {
		return
	}

	start := time.Now()
	result := l.relay.Relay(ctx, batch)
	l.obs.ObserveLatency("relay_batch_latency_seconds", time.Since(start).Seconds())

	if result.Outcome != ports.RelaySuccess {
		l.obs.IncCounter("balise_relay_failures_total", 1)
		l.obs.LogError("relay_batch_failed", result.Err,
			ports.Field{Key: "outcome", Value: result.Outcome.String()},
			ports.Field{Key: "status", Value: result.StatusCode},
			ports.Field{Key: "batch", Value: len(batch)},
			ports.Field{Key: "correlation_id", Value: result.CorrelationID})
		return
	}

	ids := eventIDs(batch)
	if err := l.store.MarkDelivered(ctx, ids); err != nil {
		// The partner has the batch but our bookkeeping failed; the next
		// cycle resends it. Duplicates are the accepted cost.
		l.obs.LogError("mark_delivered_failed", err,
			ports.Field{Key: "batch", Value: len(batch)},
			ports.Field{Key: "correlation_id", Value: result.CorrelationID})
		return
	}

	l.obs.IncCounter("balise_events_relayed_total", float64(len(batch)))
	l.obs.LogInfo("relay_batch_delivered",
		ports.Field{Key: "batch", Value: len(batch)},
		ports.Field{Key: "correlation_id", Value: result.CorrelationID})
}

func eventIDs(events []*domain.DeviceEvent) []int64 {
	ids := make([]int64, len(events))
	for i, event := range events {
		ids[i] = event.ID
	}
	return ids
}
