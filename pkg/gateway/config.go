package gateway

import (
	"github.com/adiarra14/fleetsdkapp-sub001/internal/app/config"
)

// Config re-exports the root configuration struct so embedding projects can
// construct or modify it programmatically.
type Config = config.Config

type (
	// ServerConfig configures the device-facing TCP listener.
	ServerConfig = config.ServerConfig
	// DatabaseConfig configures the Postgres connection and table names.
	DatabaseConfig = config.DatabaseConfig
	// PartnerConfig bundles auth, API, and integration settings.
	PartnerConfig = config.PartnerConfig
	// AuthConfig holds the OAuth2 client-credentials settings.
	AuthConfig = config.AuthConfig
	// APIConfig configures the partner HTTP client.
	APIConfig = config.APIConfig
	// IntegrationConfig drives the relay scheduler.
	IntegrationConfig = config.IntegrationConfig
	// RescueConfig bounds the persistence-failure rescue path.
	RescueConfig = config.RescueConfig
	// SDKConfig selects the device SDK implementation.
	SDKConfig = config.SDKConfig
	// MetricsConfig configures the metrics HTTP server.
	MetricsConfig = config.MetricsConfig
)

// LoadConfig loads YAML from disk using the internal config reader, applying
// defaults, env overrides, and validation.
func LoadConfig(path string) (*Config, error) {
	return config.Load(path)
}
