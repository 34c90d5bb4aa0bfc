package config

import (
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/sdk/resource"
)

// Base includes the list of methods that config objects are expected to implement
type Base interface {
	// GetLoadedConfigPath returns the path to the config file that was loaded
	GetLoadedConfigPath() string
	// SetLoadedConfigPath sets the path to the config file that was loaded.
	SetLoadedConfigPath(path string)
	// GetInstanceID returns the instance ID
	GetInstanceID() string
	// GetOtelResource returns the OpenTelemetry Resource object
	GetOtelResource(name string) (*resource.Resource, error)
}

// Config is the configuration for timekeeperd.
type Config struct {
	// Log level: "debug", "info", "warn", "error"
	// Defaults to "info"
	LogLevel string `yaml:"logLevel"`
	// If true, emits logs formatted as JSON
	LogAsJSON bool `yaml:"logAsJSON"`

	Scheduler SchedulerConfig `yaml:"scheduler"`
	History   HistoryConfig   `yaml:"history"`
	Server    ServerConfig    `yaml:"server"`
	Tailscale TailscaleConfig `yaml:"tailscale"`

	// Directory watched for YAML files containing jobs
	// If empty, no directory is watched
	SpoolDir string `yaml:"spoolDir"`

	// Internal keys
	loaded     string `yaml:"-"`
	instanceID string `yaml:"-"`
}

// SchedulerConfig contains the options for the scheduler.
type SchedulerConfig struct {
	// Number of executors; defaults to 1
	Workers int `yaml:"workers"`
	// Capacity of the channel for new timeouts; defaults to 1024
	WakeBufferSize int `yaml:"wakeBufferSize"`
	// Capacity of the channel for expired work; defaults to 64
	DispatchBufferSize int `yaml:"dispatchBufferSize"`
}

// HistoryConfig contains the options for the dispatch history.
type HistoryConfig struct {
	// How long dispatches are kept for; defaults to 15m
	Retention time.Duration `yaml:"retention"`
	// Interval for purging expired records; defaults to 1m
	CleanupInterval time.Duration `yaml:"cleanupInterval"`
}

// ServerConfig contains the options for the HTTP server.
type ServerConfig struct {
	// Address to bind to; defaults to "127.0.0.1"
	Bind string `yaml:"bind"`
	// Port to listen on; defaults to 7480
	Port int `yaml:"port"`
	// Maximum size of request bodies, in bytes; defaults to 64KiB
	MaxBodySize int64 `yaml:"maxBodySize"`
}

// TailscaleConfig contains the options for exposing the HTTP server on a Tailscale network.
type TailscaleConfig struct {
	// If true, the server listens on the tailnet instead of Server.Bind
	Enabled bool `yaml:"enabled"`
	// Hostname of the node
	Hostname string `yaml:"hostname"`
	// Auth key, used when the node is first registered
	AuthKey string `yaml:"authKey"`
	// Directory where tsnet stores its state
	StateDir string `yaml:"stateDir"`
	// If true, the node is ephemeral
	Ephemeral bool `yaml:"ephemeral"`
	// Port to listen on; defaults to 443
	Port int `yaml:"port"`
}

// GetLoadedConfigPath returns the path to the config file that was loaded
func (c *Config) GetLoadedConfigPath() string {
	return c.loaded
}

// SetLoadedConfigPath sets the path to the config file that was loaded
func (c *Config) SetLoadedConfigPath(filePath string) {
	c.loaded = filePath
}

// GetInstanceID returns the instance ID.
func (c *Config) GetInstanceID() string {
	return c.instanceID
}

// GetOtelResource returns the OpenTelemetry Resource object
func (c *Config) GetOtelResource(name string) (*resource.Resource, error) {
	res, err := resource.Merge(
		resource.Default(),
		resource.NewSchemaless(
			attribute.String("service.name", name),
			attribute.String("service.instance.id", c.instanceID),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}
	return res, nil
}

// SetDefaults sets the default values for the options that are not set.
func (c *Config) SetDefaults() {
	if c.Scheduler.Workers <= 0 {
		c.Scheduler.Workers = 1
	}
	if c.Scheduler.WakeBufferSize <= 0 {
		c.Scheduler.WakeBufferSize = 1024
	}
	if c.Scheduler.DispatchBufferSize <= 0 {
		c.Scheduler.DispatchBufferSize = 64
	}
	if c.History.Retention <= 0 {
		c.History.Retention = 15 * time.Minute
	}
	if c.History.CleanupInterval <= 0 {
		c.History.CleanupInterval = time.Minute
	}
	if c.Server.Bind == "" {
		c.Server.Bind = "127.0.0.1"
	}
	if c.Server.Port <= 0 {
		c.Server.Port = 7480
	}
	if c.Server.MaxBodySize <= 0 {
		c.Server.MaxBodySize = 64 << 10
	}
	if c.Tailscale.Port <= 0 {
		c.Tailscale.Port = 443
	}
}

// Validate the configuration.
func (c *Config) Validate() error {
	switch {
	case c.Scheduler.Workers > 1024:
		return NewConfigError("Invalid value for 'scheduler.workers': must not be greater than 1024", "Invalid configuration")
	case c.Server.Port > 65535:
		return NewConfigError("Invalid value for 'server.port'", "Invalid configuration")
	case c.Tailscale.Port > 65535:
		return NewConfigError("Invalid value for 'tailscale.port'", "Invalid configuration")
	case c.Tailscale.Enabled && c.Tailscale.Hostname == "":
		return NewConfigError("Property 'tailscale.hostname' is required when Tailscale is enabled", "Invalid configuration")
	case c.Tailscale.Enabled && c.Tailscale.StateDir == "":
		return NewConfigError("Property 'tailscale.stateDir' is required when Tailscale is enabled", "Invalid configuration")
	}

	return nil
}

// Process sets the default values, validates the configuration, and computes the instance ID.
// It must be called after the configuration is loaded.
func (c *Config) Process() error {
	c.SetDefaults()

	err := c.Validate()
	if err != nil {
		return err
	}

	c.instanceID, err = GetInstanceID()
	if err != nil {
		return NewConfigError(err, "Failed to compute instance ID")
	}

	return nil
}
