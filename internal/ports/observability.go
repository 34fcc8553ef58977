package ports

import "github.com/adiarra14/fleetsdkapp-sub001/internal/domain"

// Observability is the single surface adapters use for logs and metrics so
// the composition root owns the logger and the Prometheus registry.
type Observability interface {
	LogInfo(msg string, fields ...Field)
	LogError(msg string, err error, fields ...Field)
	LogCritical(msg string, err error, fields ...Field)

	IncCounter(name string, v float64)
	SetGauge(name string, v float64)
	ObserveLatency(name string, seconds float64)

	// RecordQuarantine reports an event stored under a synthesized identity
	// or with unparseable payload, for operator follow-up.
	RecordQuarantine(event *domain.DeviceEvent, err error)
}

// Field is a structured log field.
type Field struct {
	Key   string
	Value any
}
