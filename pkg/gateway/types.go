package gateway

import (
	"github.com/adiarra14/fleetsdkapp-sub001/internal/domain"
	"github.com/adiarra14/fleetsdkapp-sub001/internal/ports"
)

// Event is the telemetry record that flows through the decode→store→relay
// pipeline. It mirrors internal/domain.DeviceEvent but is exported so custom
// adapters can reference it.
type Event = domain.DeviceEvent

// Device is one registered balise.
type Device = domain.Device

// EventType classifies a decoded telemetry message.
type EventType = domain.EventType

// DeviceStatus is a device lifecycle state.
type DeviceStatus = domain.DeviceStatus

// Command is an outbound instruction for a connected device.
type Command = domain.Command

// MessageParser turns frame payloads into events.
type MessageParser = ports.MessageParser

// DeviceRegistry owns device rows: first-sight insert and last-seen refresh.
type DeviceRegistry = ports.DeviceRegistry

// EventStore persists events and feeds the relay loop.
type EventStore = ports.EventStore

// Relay forwards event batches downstream.
type Relay = ports.Relay

// RelayResult is one relay attempt's classified outcome.
type RelayResult = ports.RelayResult

// RelayOutcome classifies a relay attempt.
type RelayOutcome = ports.RelayOutcome

// Re-exported outcome values for custom Relay implementations.
const (
	RelaySuccess        = ports.RelaySuccess
	RelayClientError    = ports.RelayClientError
	RelayServerError    = ports.RelayServerError
	RelayTransportError = ports.RelayTransportError
)

// EventQueue is the bounded in-memory rescue buffer.
type EventQueue = ports.EventQueue

// EventSpool is the durable overflow for storage outages.
type EventSpool = ports.EventSpool

// DeviceSDK is the boundary to the proprietary lock SDK.
type DeviceSDK = ports.DeviceSDK

// Observability emits metrics and logs for the pipeline.
type Observability = ports.Observability

// Field is a structured log field used by Observability implementations.
type Field = ports.Field
