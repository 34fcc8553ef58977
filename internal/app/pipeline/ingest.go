package pipeline

import (
	"context"
	"time"

	"github.com/adiarra14/fleetsdkapp-sub001/internal/adapters/parser"
	"github.com/adiarra14/fleetsdkapp-sub001/internal/domain"
	"github.com/adiarra14/fleetsdkapp-sub001/internal/ports"
)

// Ingestor handles one decoded frame end to end: SDK normalization, parsing,
// device upsert, store append. Every frame yields exactly one stored event,
// parse failures included; when the store is unreachable the event is diverted
// to the rescue queue (or the spool once the queue is full) instead of being
// dropped.
type Ingestor struct {
	sdk      ports.DeviceSDK
	parser   ports.MessageParser
	registry ports.DeviceRegistry
	store    ports.EventStore
	rescue   ports.EventQueue
	spool    ports.EventSpool
	obs      ports.Observability
	now      func() time.Time
}

func NewIngestor(deviceSDK ports.DeviceSDK, msgParser ports.MessageParser,
	registry ports.DeviceRegistry, store ports.EventStore,
	rescue ports.EventQueue, spool ports.EventSpool, obs ports.Observability) *Ingestor {
	return &Ingestor{
		sdk:      deviceSDK,
		parser:   msgParser,
		registry: registry,
		store:    store,
		rescue:   rescue,
		spool:    spool,
		obs:      obs,
		now:      time.Now,
	}
}

// HandleFrame processes one frame payload and returns the identified device
// id, or "" for events quarantined under a synthesized identity. The returned
// error reports parse trouble for the caller's logs; the event is stored (or
// rescued) regardless.
func (in *Ingestor) HandleFrame(ctx context.Context, payload []byte) (string, error) {
	normalized, err := in.sdk.DecodeFrame(payload)
	if err != nil {
		// Let the parser quarantine whatever the SDK could not normalize.
		normalized = payload
	}

	event, parseErr := in.parser.Parse(normalized, in.now().UTC())
	if parseErr != nil {
		in.obs.RecordQuarantine(event, parseErr)
	} else if parser.IsSynthesizedID(event.DeviceID) {
		in.obs.RecordQuarantine(event, nil)
	}

	if err := in.registry.EnsureDevice(ctx, event.DeviceID); err != nil {
		// The event row is still worth writing; registry state heals on the
		// device's next frame.
		in.obs.LogError("device_upsert_failed", err,
			ports.Field{Key: "device_id", Value: event.DeviceID})
	}

	in.persist(ctx, event)

	if parser.IsSynthesizedID(event.DeviceID) {
		return "", parseErr
	}
	return event.DeviceID, parseErr
}

func (in *Ingestor) persist(ctx context.Context, event *domain.DeviceEvent) {
	id, err := in.store.Append(ctx, event)
	if err == nil {
		event.ID = id
		in.obs.IncCounter("balise_events_stored_total", 1)
		return
	}

	in.obs.LogError("store_append_failed", err,
		ports.Field{Key: "device_id", Value: event.DeviceID})
	in.obs.IncCounter("balise_events_rescued_total", 1)

	if in.rescue != nil && in.rescue.Enqueue(event) {
		in.obs.SetGauge("balise_rescue_queue_length", float64(in.rescue.Len()))
		return
	}
	if in.spool == nil {
		in.obs.LogCritical("event_lost_no_rescue_path", err,
			ports.Field{Key: "device_id", Value: event.DeviceID})
		return
	}
	if _, spoolErr := in.spool.Append(event); spoolErr != nil {
		in.obs.LogCritical("event_lost_spool_failed", spoolErr,
			ports.Field{Key: "device_id", Value: event.DeviceID})
		return
	}
	in.obs.SetGauge("balise_spool_size_bytes", float64(in.spool.Stats().SizeBytes))
}
