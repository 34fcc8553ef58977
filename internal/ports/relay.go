package ports

import (
	"context"

	"github.com/adiarra14/fleetsdkapp-sub001/internal/domain"
)

// RelayOutcome classifies one outbound batch attempt against the partner API.
type RelayOutcome int

const (
	// RelaySuccess means the partner accepted the batch (2xx).
	RelaySuccess RelayOutcome = iota
	// RelayClientError means a 4xx response: retrying the identical payload
	// will not help, the batch is surfaced for operator attention.
	RelayClientError
	// RelayServerError means a 5xx response, eligible for a later cycle.
	RelayServerError
	// RelayTransportError means the request never completed (timeout,
	// connection refused). Treated as not-delivered.
	RelayTransportError
)

func (o RelayOutcome) String() string {
	switch o {
	case RelaySuccess:
		return "success"
	case RelayClientError:
		return "client_error"
	case RelayServerError:
		return "server_error"
	case RelayTransportError:
		return "transport_error"
	default:
		return "unknown"
	}
}

// RelayResult carries the classification plus the last HTTP status observed.
// CorrelationID ties gateway logs to partner-side request logs.
type RelayResult struct {
	Outcome       RelayOutcome
	StatusCode    int
	CorrelationID string
	Err           error
}

// Relay forwards a batch of stored events to the partner API. Implementations
// own authentication and bounded retry of transient failures; a batch that
// exhausts retries is reported, never silently dropped.
type Relay interface {
	Relay(ctx context.Context, batch []*domain.DeviceEvent) RelayResult
}

// TokenSource supplies a valid bearer token, refreshing and caching as needed.
// Concurrent callers during a refresh share a single underlying HTTP call.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
}
