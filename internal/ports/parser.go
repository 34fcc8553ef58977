package ports

import (
	"time"

	"github.com/adiarra14/fleetsdkapp-sub001/internal/domain"
)

// MessageParser turns one frame payload into a typed event. On a malformed
// payload it returns both a quarantine event (raw bytes, empty fields) and the
// parse error so callers can store the former and report the latter.
type MessageParser interface {
	Parse(payload []byte, receivedAt time.Time) (*domain.DeviceEvent, error)
}
