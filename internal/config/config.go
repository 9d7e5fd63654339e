// Package config provides configuration management for the scheduler
// daemon. Configuration is loaded from environment variables with the
// ELASTICAGENT_ prefix. This covers only the process's own ambient
// knobs — ping interval, worker pool size, staleness timeouts, ports —
// never the ClusterProfile/AgentProfile settings, which arrive over the
// plugin RPC and are validated by internal/pluginapi.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all configuration settings for the scheduler daemon.
type Config struct {
	Server        ServerConfig
	Reconcile     ReconcileConfig
	Dispatcher    DispatcherConfig
	Bootstrap     BootstrapConfig
	Log           LogConfig
	Observability ObservabilityConfig
}

// ServerConfig holds the admin HTTP and metrics server settings.
type ServerConfig struct {
	// AdminPort serves the admin API used by cmd/elasticagentctl (default: 8080)
	AdminPort int
	// MetricsPort serves Prometheus metrics (default: 9091)
	MetricsPort int
	// EventStreamPort serves the read-only websocket event stream (default: 9092)
	EventStreamPort int
	// ShutdownTimeout is the graceful shutdown timeout (default: 30s)
	ShutdownTimeout time.Duration
}

// ReconcileConfig holds reconciliation loop tuning. The per-state
// timeouts mirror §4.7's staleness table and are wired into
// statemachine.DefaultTimeouts at startup.
type ReconcileConfig struct {
	// PingInterval is how often the reconciliation loop pings (default: 15s)
	PingInterval time.Duration
	// LaunchingTimeout bounds how long a Launching record waits for an
	// executor job before the launch is declared failed (default: 10m)
	LaunchingTimeout time.Duration
	// PendingTimeout bounds how long a Pending record waits for the
	// executor job to go active or the CI agent to register before it is
	// killed (default: 10m)
	PendingTimeout time.Duration
	// StartingTimeout bounds how long a Starting record waits for the CI
	// agent to register before it is killed (default: 10m)
	StartingTimeout time.Duration
	// IdleRetireTimeout is how long a Running record must sit idle before
	// it is drained for retirement (default: 5m)
	IdleRetireTimeout time.Duration
	// RetiringTimeout bounds how long a Retiring record waits before
	// re-issuing the disable effect (default: 2m)
	RetiringTimeout time.Duration
	// KillingTimeout bounds how long a Killing record waits before
	// re-issuing the kill effect (default: 2m)
	KillingTimeout time.Duration
	// RemovingTimeout bounds how long a Removing record waits before
	// re-issuing the delete effect (default: 2m)
	RemovingTimeout time.Duration
	// LegacyTimeout bounds how long an adopted Legacy record waits before
	// re-issuing the disable effect (default: 1m)
	LegacyTimeout time.Duration
	// OrphanTimeout bounds how long an adopted Orphan record waits before
	// re-issuing the kill effect (default: 1m)
	OrphanTimeout time.Duration
	// FailedTTL is how long a Failed record is kept around for
	// inspection before it is tombstoned (default: 10m)
	FailedTTL time.Duration
	// TerminatedTTL is how long a Terminated record is kept around
	// before it is tombstoned (default: 5m)
	TerminatedTTL time.Duration
	// AdmissionStaleness is loaded from the environment (default: 10m)
	// but is not passed to internal/admission, whose dedup window is its
	// own admission.Staleness constant; setting it changes nothing.
	AdmissionStaleness time.Duration
}

// DispatcherConfig holds effect dispatcher worker pool tuning.
type DispatcherConfig struct {
	// Workers is the number of concurrent effect workers (default: 8)
	Workers int
}

// BootstrapConfig holds the settings this plugin itself contributes to
// a launching agent's bootstrap payload (§6), as opposed to the
// per-cluster ClusterProfile/AgentProfile settings the CI server
// supplies over the plugin RPC.
type BootstrapConfig struct {
	// AutoRegisterKey is written into every launching agent's
	// autoregister.properties so it can register with the CI server on
	// first boot (default: "")
	AutoRegisterKey string
	// PluginID identifies this elastic agent plugin to the CI server in
	// autoregister.properties (default: "elasticagent.scheduler")
	PluginID string
	// InstallerURL is $sourceUrl in the bootstrap task's install process:
	// where the agent archive is fetched from (default: "")
	InstallerURL string
}

// LogConfig holds logging settings.
type LogConfig struct {
	// Level is the log level (debug, info, warn, error) (default: info)
	Level string
	// Format is the log format (json, console) (default: json)
	Format string
}

// ObservabilityConfig holds observability settings.
type ObservabilityConfig struct {
	// TracingEnabled enables OpenTelemetry tracing (default: false)
	TracingEnabled bool
	// TracingEndpoint is the OTLP collector endpoint (e.g., "localhost:4318")
	TracingEndpoint string
	// TracingInsecure disables TLS for the tracing connection (default: true)
	TracingInsecure bool
	// TracingSampleRate is the sampling rate (0.0 to 1.0) (default: 1.0)
	TracingSampleRate float64
	// Environment is the deployment environment (e.g., "production", "staging")
	Environment string
}

// Load reads configuration from environment variables. Environment
// variables use the ELASTICAGENT_ prefix.
func Load() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			AdminPort:       getEnvInt("ELASTICAGENT_ADMIN_PORT", 8080),
			MetricsPort:     getEnvInt("ELASTICAGENT_METRICS_PORT", 9091),
			EventStreamPort: getEnvInt("ELASTICAGENT_EVENTSTREAM_PORT", 9092),
			ShutdownTimeout: getEnvDuration("ELASTICAGENT_SHUTDOWN_TIMEOUT", 30*time.Second),
		},
		Reconcile: ReconcileConfig{
			PingInterval:       getEnvDuration("ELASTICAGENT_PING_INTERVAL", 15*time.Second),
			LaunchingTimeout:   getEnvDuration("ELASTICAGENT_LAUNCHING_TIMEOUT", 10*time.Minute),
			PendingTimeout:     getEnvDuration("ELASTICAGENT_PENDING_TIMEOUT", 10*time.Minute),
			StartingTimeout:    getEnvDuration("ELASTICAGENT_STARTING_TIMEOUT", 10*time.Minute),
			IdleRetireTimeout:  getEnvDuration("ELASTICAGENT_IDLE_RETIRE_TIMEOUT", 5*time.Minute),
			RetiringTimeout:    getEnvDuration("ELASTICAGENT_RETIRING_TIMEOUT", 2*time.Minute),
			KillingTimeout:     getEnvDuration("ELASTICAGENT_KILLING_TIMEOUT", 2*time.Minute),
			RemovingTimeout:    getEnvDuration("ELASTICAGENT_REMOVING_TIMEOUT", 2*time.Minute),
			LegacyTimeout:      getEnvDuration("ELASTICAGENT_LEGACY_TIMEOUT", time.Minute),
			OrphanTimeout:      getEnvDuration("ELASTICAGENT_ORPHAN_TIMEOUT", time.Minute),
			FailedTTL:          getEnvDuration("ELASTICAGENT_FAILED_TTL", 10*time.Minute),
			TerminatedTTL:      getEnvDuration("ELASTICAGENT_TERMINATED_TTL", 5*time.Minute),
			AdmissionStaleness: getEnvDuration("ELASTICAGENT_ADMISSION_STALENESS", 10*time.Minute),
		},
		Dispatcher: DispatcherConfig{
			Workers: getEnvInt("ELASTICAGENT_DISPATCHER_WORKERS", 8),
		},
		Bootstrap: BootstrapConfig{
			AutoRegisterKey: getEnv("ELASTICAGENT_AUTOREGISTER_KEY", ""),
			PluginID:        getEnv("ELASTICAGENT_PLUGIN_ID", "elasticagent.scheduler"),
			InstallerURL:    getEnv("ELASTICAGENT_INSTALLER_URL", ""),
		},
		Log: LogConfig{
			Level:  getEnv("ELASTICAGENT_LOG_LEVEL", "info"),
			Format: getEnv("ELASTICAGENT_LOG_FORMAT", "json"),
		},
		Observability: ObservabilityConfig{
			TracingEnabled:    getEnvBool("ELASTICAGENT_TRACING_ENABLED", false),
			TracingEndpoint:   getEnv("ELASTICAGENT_TRACING_ENDPOINT", ""),
			TracingInsecure:   getEnvBool("ELASTICAGENT_TRACING_INSECURE", true),
			TracingSampleRate: getEnvFloat("ELASTICAGENT_TRACING_SAMPLE_RATE", 1.0),
			Environment:       getEnv("ELASTICAGENT_ENVIRONMENT", "development"),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// Validate checks that all configuration fields are set and valid.
func (c *Config) Validate() error {
	var errs []error

	if c.Server.AdminPort < 1 || c.Server.AdminPort > 65535 {
		errs = append(errs, errors.New("ELASTICAGENT_ADMIN_PORT must be between 1 and 65535"))
	}
	if c.Server.MetricsPort < 1 || c.Server.MetricsPort > 65535 {
		errs = append(errs, errors.New("ELASTICAGENT_METRICS_PORT must be between 1 and 65535"))
	}
	if c.Server.EventStreamPort < 1 || c.Server.EventStreamPort > 65535 {
		errs = append(errs, errors.New("ELASTICAGENT_EVENTSTREAM_PORT must be between 1 and 65535"))
	}

	if c.Reconcile.PingInterval < time.Second {
		errs = append(errs, errors.New("ELASTICAGENT_PING_INTERVAL must be at least 1 second"))
	}
	if c.Reconcile.KillingTimeout <= 0 {
		errs = append(errs, errors.New("ELASTICAGENT_KILLING_TIMEOUT must be greater than 0"))
	}
	if c.Reconcile.RemovingTimeout <= 0 {
		errs = append(errs, errors.New("ELASTICAGENT_REMOVING_TIMEOUT must be greater than 0"))
	}

	if c.Dispatcher.Workers < 1 {
		errs = append(errs, errors.New("ELASTICAGENT_DISPATCHER_WORKERS must be at least 1"))
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[strings.ToLower(c.Log.Level)] {
		errs = append(errs, errors.New("ELASTICAGENT_LOG_LEVEL must be one of: debug, info, warn, error"))
	}
	validFormats := map[string]bool{"json": true, "console": true}
	if !validFormats[strings.ToLower(c.Log.Format)] {
		errs = append(errs, errors.New("ELASTICAGENT_LOG_FORMAT must be one of: json, console"))
	}

	if c.Observability.TracingEnabled && c.Observability.TracingEndpoint == "" {
		errs = append(errs, errors.New("ELASTICAGENT_TRACING_ENDPOINT is required when tracing is enabled"))
	}
	if c.Observability.TracingSampleRate < 0 || c.Observability.TracingSampleRate > 1 {
		errs = append(errs, errors.New("ELASTICAGENT_TRACING_SAMPLE_RATE must be between 0.0 and 1.0"))
	}

	if len(errs) > 0 {
		return &ValidationError{Errors: errs}
	}
	return nil
}

// ValidationError contains multiple validation errors.
type ValidationError struct {
	Errors []error
}

func (e *ValidationError) Error() string {
	if len(e.Errors) == 1 {
		return e.Errors[0].Error()
	}
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("%d validation errors:\n", len(e.Errors)))
	for i, err := range e.Errors {
		sb.WriteString(fmt.Sprintf("  %d. %s\n", i+1, err.Error()))
	}
	return sb.String()
}

// Unwrap returns the underlying errors for errors.Is/As compatibility.
func (e *ValidationError) Unwrap() []error {
	return e.Errors
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatVal, err := strconv.ParseFloat(value, 64); err == nil {
			return floatVal
		}
	}
	return defaultValue
}
