package parser

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/adiarra14/fleetsdkapp-sub001/internal/domain"
)

var arrival = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

func TestParseJSONWithDeviceID(t *testing.T) {
	p := New()
	ev, err := p.Parse([]byte(`{"deviceId":"D1","lat":1.0}`), arrival)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if ev.DeviceID != "D1" {
		t.Fatalf("expected device D1, got %s", ev.DeviceID)
	}
	if ev.EventType != domain.EventStatus {
		t.Fatalf("expected STATUS, got %s", ev.EventType)
	}
	if ev.OccurredAt != arrival {
		t.Fatalf("unexpected occurredAt %v", ev.OccurredAt)
	}
	if ev.ParsedFields["lat"] != 1.0 {
		t.Fatalf("expected lat field, got %v", ev.ParsedFields)
	}
}

func TestParseDeviceIDAliasPriority(t *testing.T) {
	cases := []struct {
		payload string
		want    string
	}{
		{`{"deviceId":"A","imei":"B"}`, "A"},
		{`{"device_id":"C","id":"D"}`, "C"},
		{`{"lockId":"E"}`, "E"},
		{`{"lockCode":"F","id":"G"}`, "F"},
		{`{"imei":"860000000000001"}`, "860000000000001"},
		{`{"id":"H"}`, "H"},
	}
	p := New()
	for _, tc := range cases {
		ev, err := p.Parse([]byte(tc.payload), arrival)
		if err != nil {
			t.Fatalf("parse %s: %v", tc.payload, err)
		}
		if ev.DeviceID != tc.want {
			t.Fatalf("payload %s: expected id %s, got %s", tc.payload, tc.want, ev.DeviceID)
		}
	}
}

func TestParseNumericDeviceIDKeepsDigits(t *testing.T) {
	// IMEIs sent as bare JSON numbers must not pick up scientific notation.
	cases := []struct {
		payload string
		want    string
	}{
		{`{"imei":356938035643809}`, "356938035643809"},
		{`{"id":99}`, "99"},
		{`{"deviceId":1234567}`, "1234567"},
	}
	p := New()
	for _, tc := range cases {
		ev, err := p.Parse([]byte(tc.payload), arrival)
		if err != nil {
			t.Fatalf("parse %s: %v", tc.payload, err)
		}
		if ev.DeviceID != tc.want {
			t.Fatalf("payload %s: expected id %s, got %s", tc.payload, tc.want, ev.DeviceID)
		}
	}
}

func TestParseSynthesizedIdentity(t *testing.T) {
	p := New()
	ev, err := p.Parse([]byte(`{"speed":12}`), arrival)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if !strings.HasPrefix(ev.DeviceID, "UNKNOWN-") {
		t.Fatalf("expected synthesized id, got %s", ev.DeviceID)
	}
}

func TestClassifyStructural(t *testing.T) {
	cases := []struct {
		payload string
		want    domain.EventType
	}{
		{`{"lockCode":"L1","data":{"type":"gps","gps":{"lat":4.2,"lng":9.1}}}`, domain.EventGPS},
		{`{"lockCode":"L1","data":{"lockGpsResModel":{"voltage":"80"}}}`, domain.EventLogin},
		{`{"lockCode":"L1","data":{"networkValue":4,"voltage":78}}`, domain.EventKeepalive},
		{`{"lockCode":"L1","data":{"universalNfcList":[]}}`, domain.EventNFC},
		{`{"lockCode":"L1","data":{"something":"else"}}`, domain.EventStatus},
	}
	p := New()
	for _, tc := range cases {
		ev, err := p.Parse([]byte(tc.payload), arrival)
		if err != nil {
			t.Fatalf("parse %s: %v", tc.payload, err)
		}
		if ev.EventType != tc.want {
			t.Fatalf("payload %s: expected %s, got %s", tc.payload, tc.want, ev.EventType)
		}
	}
}

func TestClassifyExplicitTypeWins(t *testing.T) {
	p := New()
	ev, err := p.Parse([]byte(`{"deviceId":"D1","messageType":"NFC_INFO","data":{"type":"gps"}}`), arrival)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if ev.EventType != domain.EventNFC {
		t.Fatalf("expected NFC from explicit type, got %s", ev.EventType)
	}
}

func TestParseKeyValuePayload(t *testing.T) {
	p := New()
	ev, err := p.Parse([]byte("imei=860123456789012;messageType=KEEPALIVE;voltage=81"), arrival)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if ev.DeviceID != "860123456789012" {
		t.Fatalf("unexpected device id %s", ev.DeviceID)
	}
	if ev.EventType != domain.EventKeepalive {
		t.Fatalf("expected KEEPALIVE, got %s", ev.EventType)
	}
	if ev.ParsedFields["voltage"] != "81" {
		t.Fatalf("expected voltage field, got %v", ev.ParsedFields)
	}
}

func TestParseMalformedPayloadQuarantined(t *testing.T) {
	p := New()
	ev, err := p.Parse([]byte{0x00, 0xFF, 0x13}, arrival)
	if !errors.Is(err, ErrMalformedPayload) {
		t.Fatalf("expected ErrMalformedPayload, got %v", err)
	}
	if ev == nil {
		t.Fatal("malformed payload must still yield a quarantine event")
	}
	if len(ev.RawPayload) != 3 {
		t.Fatalf("raw payload not preserved: %v", ev.RawPayload)
	}
	if len(ev.ParsedFields) != 0 {
		t.Fatalf("quarantine event must have empty parsed fields, got %v", ev.ParsedFields)
	}
	if !strings.HasPrefix(ev.DeviceID, "UNKNOWN-") {
		t.Fatalf("expected synthesized id, got %s", ev.DeviceID)
	}
}

func TestParseEmptyPayloadMalformed(t *testing.T) {
	p := New()
	_, err := p.Parse(nil, arrival)
	if !errors.Is(err, ErrMalformedPayload) {
		t.Fatalf("expected ErrMalformedPayload for empty payload, got %v", err)
	}
}
