package pipeline

import (
	"context"
	"time"

	"github.com/adiarra14/fleetsdkapp-sub001/internal/domain"
	"github.com/adiarra14/fleetsdkapp-sub001/internal/ports"
)

// RecoveryLoop drains rescued events back into the store once it is reachable
// again: the in-memory queue first (newest casualties), then the spool oldest
// first, committing the spool watermark as it goes so a crash mid-drain never
// replays an event it already stored.
type RecoveryLoop struct {
	store  ports.EventStore
	rescue ports.EventQueue
	spool  ports.EventSpool
	policy ports.RescuePolicy
	obs    ports.Observability
}

func NewRecoveryLoop(store ports.EventStore, rescue ports.EventQueue,
	spool ports.EventSpool, policy ports.RescuePolicy, obs ports.Observability) *RecoveryLoop {
	if policy.FlushInterval <= 0 {
		policy.FlushInterval = 10 * time.Second
	}
	if policy.FlushBatchSize <= 0 {
		policy.FlushBatchSize = 100
	}
	return &RecoveryLoop{store: store, rescue: rescue, spool: spool, policy: policy, obs: obs}
}

func (l *RecoveryLoop) Run(ctx context.Context) {
	ticker := time.NewTicker(l.policy.FlushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			l.Drain(ctx)
		}
	}
}

// Drain attempts one full recovery pass. It stops at the first store failure;
// the store is evidently still down and hammering it helps nobody.
func (l *RecoveryLoop) Drain(ctx context.Context) {
	if !l.drainQueue(ctx) {
		return
	}
	l.drainSpool(ctx)
}

func (l *RecoveryLoop) drainQueue(ctx context.Context) bool {
	if l.rescue == nil {
		return true
	}
	defer func() {
		l.obs.SetGauge("balise_rescue_queue_length", float64(l.rescue.Len()))
	}()

	for {
		batch := l.rescue.DequeueBatch(l.policy.FlushBatchSize)
		if len(batch) == 0 {
			return true
		}
		for i, item := range batch {
			if _, err := l.store.Append(ctx, item.Event); err != nil {
				l.obs.LogError("recovery_append_failed", err,
					ports.Field{Key: "device_id", Value: item.Event.DeviceID})
				l.requeue(batch[i:])
				return false
			}
			l.obs.IncCounter("balise_events_stored_total", 1)
		}
	}
}

// requeue puts the unprocessed remainder back, overflowing to the spool when
// the queue refilled in the meantime.
func (l *RecoveryLoop) requeue(remainder []ports.QueuedEvent) {
	for _, item := range remainder {
		if l.rescue.Enqueue(item.Event) {
			continue
		}
		if l.spool == nil {
			l.obs.LogCritical("event_lost_no_rescue_path", nil,
				ports.Field{Key: "device_id", Value: item.Event.DeviceID})
			continue
		}
		if _, err := l.spool.Append(item.Event); err != nil {
			l.obs.LogCritical("event_lost_spool_failed", err,
				ports.Field{Key: "device_id", Value: item.Event.DeviceID})
		}
	}
}

func (l *RecoveryLoop) drainSpool(ctx context.Context) {
	if l.spool == nil {
		return
	}
	stats := l.spool.Stats()
	if stats.LatestAppended == 0 || stats.OldestUncommitted > stats.LatestAppended {
		return
	}

	var lastStored ports.SpoolEntryID
	err := l.spool.Iterate(stats.OldestUncommitted, func(id ports.SpoolEntryID, event *domain.DeviceEvent) error {
		if _, appendErr := l.store.Append(ctx, event); appendErr != nil {
			return appendErr
		}
		lastStored = id
		l.obs.IncCounter("balise_events_stored_total", 1)
		return nil
	})
	if err != nil {
		l.obs.LogError("spool_replay_stopped", err)
	}
	if lastStored > 0 {
		if commitErr := l.spool.Commit(lastStored); commitErr != nil {
			l.obs.LogError("spool_commit_failed", commitErr)
		}
	}
	l.obs.SetGauge("balise_spool_size_bytes", float64(l.spool.Stats().SizeBytes))
}
