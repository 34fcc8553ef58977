package sdk

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"unicode/utf8"

	"github.com/adiarra14/fleetsdkapp-sub001/internal/adapters/framing"
	"github.com/adiarra14/fleetsdkapp-sub001/internal/domain"
	"github.com/adiarra14/fleetsdkapp-sub001/internal/ports"
)

var (
	ErrEmptyFrame         = errors.New("sdk: frame carries no payload")
	ErrDeviceNotConnected = errors.New("sdk: device has no live connection")
)

// VendorSDK is the production adapter for fleet balises. Device firmware pads
// frames with trailing NULs and occasionally wraps the JSON body in a vendor
// envelope {"data": "<escaped json>"}; DecodeFrame strips both so downstream
// parsing sees the bare message. Outbound commands are JSON-encoded and
// written through the connection hub with the same length prefix devices use.
type VendorSDK struct {
	hub ports.ConnHub
}

func NewVendorSDK(hub ports.ConnHub) *VendorSDK {
	return &VendorSDK{hub: hub}
}

func (s *VendorSDK) DecodeFrame(payload []byte) ([]byte, error) {
	body := bytes.TrimRight(payload, "\x00")
	body = bytes.TrimSpace(body)
	if len(body) == 0 {
		return nil, ErrEmptyFrame
	}
	if !utf8.Valid(body) {
		return nil, fmt.Errorf("sdk: frame payload is not valid UTF-8")
	}

	// Unwrap the vendor envelope when present. Anything else passes through
	// untouched; the parser owns interpretation.
	if bytes.HasPrefix(body, []byte("{")) {
		var envelope struct {
			Data string `json:"data"`
		}
		if err := json.Unmarshal(body, &envelope); err == nil && envelope.Data != "" &&
			(envelope.Data[0] == '{' || bytes.Contains([]byte(envelope.Data), []byte("="))) {
			return []byte(envelope.Data), nil
		}
	}
	return body, nil
}

func (s *VendorSDK) SendDeviceCommand(ctx context.Context, deviceID string, cmd domain.Command) error {
	if cmd.Name == "" {
		return errors.New("sdk: command name is required")
	}
	conn, ok := s.hub.Lookup(deviceID)
	if !ok {
		return fmt.Errorf("%w: %s", ErrDeviceNotConnected, deviceID)
	}

	body, err := json.Marshal(cmd)
	if err != nil {
		return fmt.Errorf("encode command %q: %w", cmd.Name, err)
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := conn.WriteFrame(framing.EncodeFrame(body)); err != nil {
		return fmt.Errorf("write command to %s: %w", deviceID, err)
	}
	return nil
}

var _ ports.DeviceSDK = (*VendorSDK)(nil)

// NopSDK passes frames through untouched and rejects commands. Deployments
// without the vendor fleet run with this adapter selected in configuration.
type NopSDK struct{}

func (NopSDK) DecodeFrame(payload []byte) ([]byte, error) {
	if len(bytes.TrimSpace(payload)) == 0 {
		return nil, ErrEmptyFrame
	}
	return payload, nil
}

func (NopSDK) SendDeviceCommand(context.Context, string, domain.Command) error {
	return errors.New("sdk: device commands are disabled")
}

var _ ports.DeviceSDK = NopSDK{}

// Hub is the in-process ConnHub. Reconnects replace the previous registration;
// Unregister is conditional on identity so a laggard close from an old
// connection cannot evict its replacement.
type Hub struct {
	mu    sync.RWMutex
	conns map[string]ports.CommandConn
}

func NewHub() *Hub {
	return &Hub{conns: make(map[string]ports.CommandConn)}
}

func (h *Hub) Register(deviceID string, conn ports.CommandConn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.conns[deviceID] = conn
}

func (h *Hub) Unregister(deviceID string, conn ports.CommandConn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if current, ok := h.conns[deviceID]; ok && current == conn {
		delete(h.conns, deviceID)
	}
}

func (h *Hub) Lookup(deviceID string) (ports.CommandConn, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	conn, ok := h.conns[deviceID]
	return conn, ok
}

func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.conns)
}

var _ ports.ConnHub = (*Hub)(nil)
