package observability

import (
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/adiarra14/fleetsdkapp-sub001/internal/domain"
	"github.com/adiarra14/fleetsdkapp-sub001/internal/ports"
)

// PromObs backs the Observability port with Prometheus metrics and slog.
// Metric names are fixed at construction; IncCounter and friends silently
// ignore unknown names so callers never need to guard instrumentation.
type PromObs struct {
	logger   *slog.Logger
	counters map[string]prometheus.Counter
	gauges   map[string]prometheus.Gauge
	histos   map[string]prometheus.Observer
}

// NewPromObs registers the gateway metric set on reg. Pass
// prometheus.DefaultRegisterer in production; tests use a private registry so
// repeated construction does not collide.
func NewPromObs(logger *slog.Logger, reg prometheus.Registerer) *PromObs {
	if logger == nil {
		logger = slog.Default()
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	framesReceived := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "balise_frames_received_total",
		Help: "Complete frames extracted from device connections.",
	})
	framesOversize := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "balise_frames_oversize_total",
		Help: "Connections closed for declaring a frame above the length limit.",
	})
	quarantined := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "balise_events_quarantined_total",
		Help: "Events stored with a synthesized identity or unparseable payload.",
	})
	stored := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "balise_events_stored_total",
		Help: "Events appended to the event store.",
	})
	relayed := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "balise_events_relayed_total",
		Help: "Events acknowledged by the partner API.",
	})
	relayFailures := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "balise_relay_failures_total",
		Help: "Relay batches that exhausted retries or were rejected.",
	})
	rescued := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "balise_events_rescued_total",
		Help: "Events diverted to the rescue queue after a store failure.",
	})
	pending := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "balise_events_pending",
		Help: "Stored events not yet delivered to the partner.",
	})
	queueLen := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "balise_rescue_queue_length",
		Help: "Events held in the in-memory rescue queue.",
	})
	spoolSize := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "balise_spool_size_bytes",
		Help: "Size of the on-disk rescue spool.",
	})
	connections := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "balise_active_connections",
		Help: "Open device TCP connections.",
	})
	relayLatency := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "relay_batch_latency_seconds",
		Help:    "Wall time of one relay batch attempt cycle.",
		Buckets: prometheus.ExponentialBuckets(0.001, 2, 12),
	})

	reg.MustRegister(framesReceived, framesOversize, quarantined, stored,
		relayed, relayFailures, rescued, pending, queueLen, spoolSize,
		connections, relayLatency)

	return &PromObs{
		logger: logger,
		counters: map[string]prometheus.Counter{
			"balise_frames_received_total":    framesReceived,
			"balise_frames_oversize_total":    framesOversize,
			"balise_events_quarantined_total": quarantined,
			"balise_events_stored_total":      stored,
			"balise_events_relayed_total":     relayed,
			"balise_relay_failures_total":     relayFailures,
			"balise_events_rescued_total":     rescued,
		},
		gauges: map[string]prometheus.Gauge{
			"balise_events_pending":      pending,
			"balise_rescue_queue_length": queueLen,
			"balise_spool_size_bytes":    spoolSize,
			"balise_active_connections":  connections,
		},
		histos: map[string]prometheus.Observer{
			"relay_batch_latency_seconds": relayLatency,
		},
	}
}

func (p *PromObs) LogInfo(msg string, fields ...ports.Field) {
	p.logger.Info(msg, slogArgs(fields)...)
}

func (p *PromObs) LogError(msg string, err error, fields ...ports.Field) {
	p.logger.Error(msg, append([]any{slog.Any("error", err)}, slogArgs(fields)...)...)
}

func (p *PromObs) LogCritical(msg string, err error, fields ...ports.Field) {
	args := append([]any{slog.Any("error", err), slog.Bool("critical", true)}, slogArgs(fields)...)
	p.logger.Error(msg, args...)
}

func (p *PromObs) IncCounter(name string, v float64) {
	if c, ok := p.counters[name]; ok {
		c.Add(v)
	}
}

func (p *PromObs) SetGauge(name string, v float64) {
	if g, ok := p.gauges[name]; ok {
		g.Set(v)
	}
}

func (p *PromObs) ObserveLatency(name string, seconds float64) {
	if h, ok := p.histos[name]; ok {
		h.Observe(seconds)
	}
}

func (p *PromObs) RecordQuarantine(event *domain.DeviceEvent, err error) {
	p.IncCounter("balise_events_quarantined_total", 1)
	args := []any{slog.String("device_id", event.DeviceID), slog.String("event_type", string(event.EventType))}
	if err != nil {
		args = append(args, slog.Any("error", err))
	}
	p.logger.Warn("event_quarantined", args...)
}

func slogArgs(fields []ports.Field) []any {
	args := make([]any, 0, len(fields))
	for _, f := range fields {
		args = append(args, slog.Any(f.Key, f.Value))
	}
	return args
}

var _ ports.Observability = (*PromObs)(nil)

// NopObs discards everything. Tests and the validate subcommand use it.
type NopObs struct{}

func (NopObs) LogInfo(string, ...ports.Field) {}
func (NopObs) LogError(string, error, ...ports.Field) {}
func (NopObs) LogCritical(string, error, ...ports.Field) {}
func (NopObs) IncCounter(string, float64) {}
func (NopObs) SetGauge(string, float64) {}
func (NopObs) ObserveLatency(string, float64) {}
func (NopObs) RecordQuarantine(*domain.DeviceEvent, error) {}

var _ ports.Observability = NopObs{}
