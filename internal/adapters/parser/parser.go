// Package parser turns frame payloads into typed device events. Payloads are
// structured text: JSON from the lock firmware, or the legacy semicolon
// key=value format some balise batches still emit.
package parser

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/adiarra14/fleetsdkapp-sub001/internal/domain"
	"github.com/adiarra14/fleetsdkapp-sub001/internal/ports"
)

// ErrMalformedPayload means the payload was not decodable as structured text.
// The caller still stores the raw bytes under a quarantine event.
var ErrMalformedPayload = errors.New("parser: malformed payload")

// deviceIDAliases lists the identity fields seen across firmware revisions,
// in priority order.
var deviceIDAliases = []string{"deviceId", "device_id", "lockId", "lockCode", "imei", "id"}

// Parser implements ports.MessageParser.
type Parser struct{}

var _ ports.MessageParser = (*Parser)(nil)

// New returns a Parser.
func New() *Parser { return &Parser{} }

// Parse decodes one payload. On malformed input it returns a quarantine event
// (raw bytes kept, parsed fields empty, type STATUS) together with
// ErrMalformedPayload so the caller can store the former and report the
// latter. No event is ever dropped for missing identity: unknown devices get
// a synthesized id derived from arrival time.
func (p *Parser) Parse(payload []byte, receivedAt time.Time) (*domain.DeviceEvent, error) {
	raw := make([]byte, len(payload))
	copy(raw, payload)

	fields, err := decodeFields(payload)
	if err != nil {
		return &domain.DeviceEvent{
			DeviceID:   synthesizeDeviceID(receivedAt),
			EventType:  domain.EventStatus,
			OccurredAt: receivedAt,
			RawPayload: raw,
		}, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}

	return &domain.DeviceEvent{
		DeviceID:     extractDeviceID(fields, receivedAt),
		EventType:    classify(fields),
		OccurredAt:   receivedAt,
		RawPayload:   raw,
		ParsedFields: fields,
	}, nil
}

func decodeFields(payload []byte) (map[string]any, error) {
	text := strings.TrimSpace(string(payload))
	if text == "" {
		return nil, errors.New("empty payload")
	}
	if strings.HasPrefix(text, "{") {
		var fields map[string]any
		if err := json.Unmarshal([]byte(text), &fields); err != nil {
			return nil, err
		}
		return fields, nil
	}
	return decodeKeyValue(text)
}

// decodeKeyValue handles the legacy "k=v;k2=v2" balise report format.
func decodeKeyValue(text string) (map[string]any, error) {
	fields := make(map[string]any)
	for _, pair := range strings.FieldsFunc(text, func(r rune) bool { return r == ';' || r == '\n' }) {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		key, value, ok := strings.Cut(pair, "=")
		if !ok {
			return nil, fmt.Errorf("not a key=value pair: %q", pair)
		}
		fields[strings.TrimSpace(key)] = strings.TrimSpace(value)
	}
	if len(fields) == 0 {
		return nil, errors.New("no fields")
	}
	return fields, nil
}

func extractDeviceID(fields map[string]any, receivedAt time.Time) string {
	for _, alias := range deviceIDAliases {
		if v, ok := fields[alias]; ok {
			if id := stringify(v); id != "" {
				return id
			}
		}
	}
	return synthesizeDeviceID(receivedAt)
}

// synthesizeDeviceID quarantines identity-less events under an id derived
// from arrival time rather than discarding them.
func synthesizeDeviceID(receivedAt time.Time) string {
	return fmt.Sprintf("%s%d", synthesizedPrefix, receivedAt.UnixMilli())
}

const synthesizedPrefix = "UNKNOWN-"

// IsSynthesizedID reports whether id was minted for an identity-less event.
// Such ids never map to a live connection and must not be registered for
// outbound commands.
func IsSynthesizedID(id string) bool {
	return strings.HasPrefix(id, synthesizedPrefix)
}

func classify(fields map[string]any) domain.EventType {
	if t, ok := explicitType(fields); ok {
		return t
	}

	// Structural classification mirrors the report shapes the lock firmware
	// actually sends when no messageType field is present.
	scopes := []map[string]any{fields}
	if data, ok := fields["data"].(map[string]any); ok {
		scopes = append(scopes, data)
	}
	for _, scope := range scopes {
		if t := stringify(scope["type"]); strings.EqualFold(t, "gps") {
			return domain.EventGPS
		}
		if _, ok := scope["lockGpsResModel"]; ok {
			return domain.EventLogin
		}
		if _, ok := scope["universalNfcList"]; ok {
			return domain.EventNFC
		}
		_, hasNetwork := scope["networkValue"]
		_, hasVoltage := scope["voltage"]
		if hasNetwork && hasVoltage {
			return domain.EventKeepalive
		}
	}
	return domain.EventStatus
}

func explicitType(fields map[string]any) (domain.EventType, bool) {
	for _, key := range []string{"messageType", "commandType"} {
		v, ok := fields[key]
		if !ok {
			continue
		}
		switch strings.ToUpper(stringify(v)) {
		case "LOGIN":
			return domain.EventLogin, true
		case "GPS":
			return domain.EventGPS, true
		case "KEEPALIVE", "HEARTBEAT":
			return domain.EventKeepalive, true
		case "NFC", "NFC_INFO":
			return domain.EventNFC, true
		default:
			return domain.EventStatus, true
		}
	}
	return domain.EventStatus, false
}

func stringify(v any) string {
	switch s := v.(type) {
	case string:
		return s
	case float64:
		// IMEIs arrive as JSON numbers; 'f' keeps all digits where %g would
		// flip to scientific notation.
		return strconv.FormatFloat(s, 'f', -1, 64)
	case nil:
		return ""
	default:
		return fmt.Sprintf("%v", s)
	}
}
