package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Env overrides for values that should not live in the config file.
const (
	EnvDBConn       = "BALISE_DB_CONN"
	EnvClientID     = "PARTNER_CLIENT_ID"
	EnvClientSecret = "PARTNER_CLIENT_SECRET"
)

type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	Partner  PartnerConfig  `yaml:"partner"`
	Rescue   RescueConfig   `yaml:"rescue"`
	SDK      SDKConfig      `yaml:"sdk"`
	Metrics  MetricsConfig  `yaml:"metrics"`
}

type ServerConfig struct {
	ListenAddr             string `yaml:"listen_addr"`
	MaxFrameBytes          int    `yaml:"max_frame_bytes"`
	ReadTimeoutSeconds     int    `yaml:"read_timeout_seconds"`
	ShutdownTimeoutSeconds int    `yaml:"shutdown_timeout_seconds"`
}

// ReadTimeout is ReadTimeoutSeconds as a duration.
func (s ServerConfig) ReadTimeout() time.Duration {
	return time.Duration(s.ReadTimeoutSeconds) * time.Second
}

func (s ServerConfig) ShutdownTimeout() time.Duration {
	return time.Duration(s.ShutdownTimeoutSeconds) * time.Second
}

type DatabaseConfig struct {
	ConnString   string `yaml:"conn_string"`
	DevicesTable string `yaml:"devices_table"`
	EventsTable  string `yaml:"events_table"`
}

type PartnerConfig struct {
	Auth        AuthConfig        `yaml:"auth"`
	API         APIConfig         `yaml:"api"`
	Integration IntegrationConfig `yaml:"integration"`
}

type AuthConfig struct {
	URL          string `yaml:"url"`
	ClientID     string `yaml:"client_id"`
	ClientSecret string `yaml:"client_secret"`
	Scope        string `yaml:"scope"`
}

type APIConfig struct {
	BaseURL           string `yaml:"base_url"`
	TimeoutSeconds    int    `yaml:"timeout_seconds"`
	RetryAttempts     int    `yaml:"retry_attempts"`
	RetryDelaySeconds int    `yaml:"retry_delay_seconds"`
}

type IntegrationConfig struct {
	Enabled                   bool   `yaml:"enabled"`
	OriginatorName            string `yaml:"originator_name"`
	PartnerName               string `yaml:"partner_name"`
	BatchSize                 int    `yaml:"batch_size"`
	ProcessingIntervalSeconds int    `yaml:"processing_interval_seconds"`
}

type RescueConfig struct {
	QueueCapacity        int    `yaml:"queue_capacity"`
	SpoolDir             string `yaml:"spool_dir"`
	FlushIntervalSeconds int    `yaml:"flush_interval_seconds"`
}

func (r RescueConfig) FlushInterval() time.Duration {
	return time.Duration(r.FlushIntervalSeconds) * time.Second
}

type SDKConfig struct {
	Mode string `yaml:"mode"`
}

type MetricsConfig struct {
	Addr string `yaml:"addr"`
}

func Load(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return nil, err
	}

	cfg.applyEnv()
	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (c *Config) applyEnv() {
	if v := os.Getenv(EnvDBConn); v != "" {
		c.Database.ConnString = v
	}
	if v := os.Getenv(EnvClientID); v != "" {
		c.Partner.Auth.ClientID = v
	}
	if v := os.Getenv(EnvClientSecret); v != "" {
		c.Partner.Auth.ClientSecret = v
	}
}

func (c *Config) applyDefaults() {
	if c.Server.ListenAddr == "" {
		c.Server.ListenAddr = ":6060"
	}
	if c.Server.MaxFrameBytes == 0 {
		c.Server.MaxFrameBytes = 128 << 10
	}
	if c.Server.ReadTimeoutSeconds == 0 {
		c.Server.ReadTimeoutSeconds = 300
	}
	if c.Server.ShutdownTimeoutSeconds == 0 {
		c.Server.ShutdownTimeoutSeconds = 15
	}
	if c.Database.DevicesTable == "" {
		c.Database.DevicesTable = "devices"
	}
	if c.Database.EventsTable == "" {
		c.Database.EventsTable = "device_events"
	}
	if c.Partner.API.TimeoutSeconds == 0 {
		c.Partner.API.TimeoutSeconds = 30
	}
	if c.Partner.API.RetryAttempts == 0 {
		c.Partner.API.RetryAttempts = 3
	}
	if c.Partner.API.RetryDelaySeconds == 0 {
		c.Partner.API.RetryDelaySeconds = 5
	}
	if c.Partner.Integration.BatchSize == 0 {
		c.Partner.Integration.BatchSize = 100
	}
	if c.Partner.Integration.ProcessingIntervalSeconds == 0 {
		c.Partner.Integration.ProcessingIntervalSeconds = 60
	}
	if c.Rescue.QueueCapacity == 0 {
		c.Rescue.QueueCapacity = 1024
	}
	if c.Rescue.SpoolDir == "" {
		c.Rescue.SpoolDir = "./data/spool"
	}
	if c.Rescue.FlushIntervalSeconds == 0 {
		c.Rescue.FlushIntervalSeconds = 10
	}
	if c.SDK.Mode == "" {
		c.SDK.Mode = "production"
	}
	if c.Metrics.Addr == "" {
		c.Metrics.Addr = ":9100"
	}
}

func (c *Config) validate() error {
	if c.Database.ConnString == "" {
		return fmt.Errorf("database.conn_string is required (or set %s)", EnvDBConn)
	}
	if c.Server.MaxFrameBytes < 4 {
		return fmt.Errorf("server.max_frame_bytes must be at least 4, got %d", c.Server.MaxFrameBytes)
	}
	if c.SDK.Mode != "production" && c.SDK.Mode != "noop" {
		return fmt.Errorf("sdk.mode must be production or noop, got %q", c.SDK.Mode)
	}
	if c.Partner.Integration.Enabled {
		if c.Partner.Auth.URL == "" {
			return fmt.Errorf("partner.auth.url is required when integration is enabled")
		}
		if c.Partner.Auth.ClientID == "" || c.Partner.Auth.ClientSecret == "" {
			return fmt.Errorf("partner credentials are required when integration is enabled (or set %s / %s)",
				EnvClientID, EnvClientSecret)
		}
		if c.Partner.API.BaseURL == "" {
			return fmt.Errorf("partner.api.base_url is required when integration is enabled")
		}
	}
	return nil
}
