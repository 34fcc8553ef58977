// Package partner implements the outbound side of the gateway: OAuth2
// client-credentials authentication against the partner identity provider and
// batched relay of stored events to the partner tracking API.
package partner

import (
	"time"

	"github.com/adiarra14/fleetsdkapp-sub001/internal/domain"
)

// Coordinate is one entry of the JSON array POSTed to the partner
// coordinates endpoint.
type Coordinate struct {
	EquipmentReference   string    `json:"equipmentReference"`
	EventCreatedDateTime string    `json:"eventCreatedDateTime"`
	OriginatorName       string    `json:"originatorName,omitempty"`
	PartnerName          string    `json:"partnerName,omitempty"`
	EventType            string    `json:"eventType,omitempty"`
	EventLocation        *Location `json:"eventLocation,omitempty"`
}

// Location is a WGS84 position.
type Location struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// tokenResponse is the OAuth2 token endpoint reply.
type tokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int    `json:"expires_in"`
	Scope       string `json:"scope"`
}

// CoordinateFromEvent maps a stored event onto the partner payload shape.
// Events without a usable GPS fix are sent without a location block; the
// partner treats those as status pings.
func CoordinateFromEvent(event *domain.DeviceEvent, originator, partnerName string) Coordinate {
	c := Coordinate{
		EquipmentReference:   event.DeviceID,
		EventCreatedDateTime: event.OccurredAt.UTC().Format(time.RFC3339),
		OriginatorName:       originator,
		PartnerName:          partnerName,
		EventType:            string(event.EventType),
	}
	lat, okLat := event.Latitude()
	lng, okLng := event.Longitude()
	if okLat && okLng {
		c.EventLocation = &Location{Latitude: lat, Longitude: lng}
	}
	return c
}
