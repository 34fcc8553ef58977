package ports

import (
	"context"

	"github.com/adiarra14/fleetsdkapp-sub001/internal/domain"
)

// DeviceSDK is the boundary to the proprietary lock SDK. The gateway speaks
// plain length-prefixed JSON; devices running the vendor firmware need their
// payloads normalized on the way in and commands encoded on the way out.
// Exactly one implementation is selected by configuration: the production
// adapter, or a no-op for environments without the device fleet.
type DeviceSDK interface {
	// DecodeFrame normalizes a raw frame payload into structured text the
	// MessageParser understands.
	DecodeFrame(payload []byte) ([]byte, error)

	// SendDeviceCommand pushes a configuration command to a connected device.
	SendDeviceCommand(ctx context.Context, deviceID string, cmd domain.Command) error
}

// CommandConn is the write side of one live device connection, registered by
// the TCP server once the device has identified itself.
type CommandConn interface {
	WriteFrame(payload []byte) error
}

// ConnHub maps identified devices to their live connections so the SDK can
// push commands back. Registrations are replaced on reconnect and removed on
// disconnect.
type ConnHub interface {
	Register(deviceID string, conn CommandConn)
	Unregister(deviceID string, conn CommandConn)
	Lookup(deviceID string) (CommandConn, bool)
}
