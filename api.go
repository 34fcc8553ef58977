package fleetsdkapp

import (
	base "github.com/adiarra14/fleetsdkapp-sub001/pkg/gateway"
)

// Re-exported errors for convenience.
var ErrChannelRelayClosed = base.ErrChannelRelayClosed

// Type aliases so consumers can import the module root directly.
type (
	Config            = base.Config
	ServerConfig      = base.ServerConfig
	DatabaseConfig    = base.DatabaseConfig
	PartnerConfig     = base.PartnerConfig
	AuthConfig        = base.AuthConfig
	APIConfig         = base.APIConfig
	IntegrationConfig = base.IntegrationConfig
	RescueConfig      = base.RescueConfig
	SDKConfig         = base.SDKConfig
	MetricsConfig     = base.MetricsConfig
	Runtime           = base.Runtime
	Option            = base.Option
	Event             = base.Event
	Device            = base.Device
	EventType         = base.EventType
	DeviceStatus      = base.DeviceStatus
	Command           = base.Command
	EventBatchHandler = base.EventBatchHandler
	MessageParser     = base.MessageParser
	DeviceRegistry    = base.DeviceRegistry
	EventStore        = base.EventStore
	Relay             = base.Relay
	RelayResult       = base.RelayResult
	RelayOutcome      = base.RelayOutcome
	EventQueue        = base.EventQueue
	EventSpool        = base.EventSpool
	DeviceSDK         = base.DeviceSDK
	Observability     = base.Observability
	Field             = base.Field
)

// Relay outcome values for custom Relay implementations.
const (
	RelaySuccess        = base.RelaySuccess
	RelayClientError    = base.RelayClientError
	RelayServerError    = base.RelayServerError
	RelayTransportError = base.RelayTransportError
)

// Config helpers.
func LoadConfig(path string) (*Config, error) {
	return base.LoadConfig(path)
}

// Runtime and options.
func NewRuntime(cfg *Config, opts ...Option) (*Runtime, error) {
	return base.NewRuntime(cfg, opts...)
}

func WithParser(p MessageParser) Option {
	return base.WithParser(p)
}

func WithRegistry(r DeviceRegistry) Option {
	return base.WithRegistry(r)
}

func WithStore(s EventStore) Option {
	return base.WithStore(s)
}

func WithRelay(r Relay) Option {
	return base.WithRelay(r)
}

func WithQueue(q EventQueue) Option {
	return base.WithQueue(q)
}

func WithSpool(s EventSpool) Option {
	return base.WithSpool(s)
}

func WithDeviceSDK(s DeviceSDK) Option {
	return base.WithDeviceSDK(s)
}

func WithObservability(obs Observability) Option {
	return base.WithObservability(obs)
}

// Relay adapters.
func NewCallbackRelay(name string, fn EventBatchHandler) Relay {
	return base.NewCallbackRelay(name, fn)
}

func NewChannelRelay(name string, buffer int) (Relay, <-chan []Event, func()) {
	return base.NewChannelRelay(name, buffer)
}
