package domain

import "time"

// DeviceStatus tracks the lifecycle of a balise as seen by the gateway.
type DeviceStatus string

const (
	StatusActive  DeviceStatus = "ACTIVE"
	StatusOnline  DeviceStatus = "ONLINE"
	StatusOffline DeviceStatus = "OFFLINE"
)

// EventType classifies a decoded telemetry message.
type EventType string

const (
	EventLogin     EventType = "LOGIN"
	EventGPS       EventType = "GPS"
	EventKeepalive EventType = "KEEPALIVE"
	EventNFC       EventType = "NFC"
	EventStatus    EventType = "STATUS"
)

// Device is one balise lock unit. Rows are created lazily on first sight and
// never deleted by the gateway.
type Device struct {
	DeviceID   string       `json:"device_id"`
	Status     DeviceStatus `json:"status"`
	LastSeenAt time.Time    `json:"last_seen_at"`
	CreatedAt  time.Time    `json:"created_at"`
}

// DeviceEvent is the canonical unit of telemetry flowing through the gateway.
// Exactly one event exists per decoded frame, parseable or not; RawPayload is
// always kept for forensic replay.
type DeviceEvent struct {
	ID           int64          `json:"id,omitempty"`
	DeviceID     string         `json:"device_id"`
	EventType    EventType      `json:"event_type"`
	OccurredAt   time.Time      `json:"occurred_at"`
	RawPayload   []byte         `json:"raw_payload"`
	ParsedFields map[string]any `json:"parsed_fields,omitempty"`
	Delivered    bool           `json:"delivered,omitempty"`
}

// Latitude returns the event's GPS latitude when the parsed fields carry one.
func (e *DeviceEvent) Latitude() (float64, bool) {
	return e.coordinate("lat", "latitude")
}

// Longitude returns the event's GPS longitude when the parsed fields carry one.
func (e *DeviceEvent) Longitude() (float64, bool) {
	return e.coordinate("lng", "lon", "longitude")
}

func (e *DeviceEvent) coordinate(keys ...string) (float64, bool) {
	if e.ParsedFields == nil {
		return 0, false
	}
	sources := []map[string]any{e.ParsedFields}
	// GPS blocks are frequently nested one level down ("gps", "data.gps").
	if data, ok := e.ParsedFields["data"].(map[string]any); ok {
		sources = append(sources, data)
		if gps, ok := data["gps"].(map[string]any); ok {
			sources = append(sources, gps)
		}
	}
	if gps, ok := e.ParsedFields["gps"].(map[string]any); ok {
		sources = append(sources, gps)
	}
	for _, src := range sources {
		for _, key := range keys {
			if v, ok := src[key]; ok {
				if f, ok := toFloat(v); ok {
					return f, true
				}
			}
		}
	}
	return 0, false
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	}
	return 0, false
}

// Command is an outbound instruction pushed back to a device through the SDK
// boundary. The proprietary wire encoding is owned by the SDK adapter.
type Command struct {
	Name   string         `json:"command"`
	Params map[string]any `json:"params,omitempty"`
}
