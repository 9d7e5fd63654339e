package config

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// setTestEnv sets environment variables for testing and returns a cleanup function.
func setTestEnv(t *testing.T, envVars map[string]string) {
	t.Helper()

	original := make(map[string]string)
	for key := range envVars {
		original[key] = os.Getenv(key)
	}
	for key, value := range envVars {
		os.Setenv(key, value)
	}
	t.Cleanup(func() {
		for key, value := range original {
			if value == "" {
				os.Unsetenv(key)
			} else {
				os.Setenv(key, value)
			}
		}
	})
}

func TestLoadAppliesDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.AdminPort)
	assert.Equal(t, 8, cfg.Dispatcher.Workers)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "", cfg.Bootstrap.AutoRegisterKey)
	assert.Equal(t, "elasticagent.scheduler", cfg.Bootstrap.PluginID)
}

func TestLoadHonorsOverrides(t *testing.T) {
	setTestEnv(t, map[string]string{
		"ELASTICAGENT_ADMIN_PORT":         "9999",
		"ELASTICAGENT_DISPATCHER_WORKERS": "4",
		"ELASTICAGENT_LOG_LEVEL":          "debug",
		"ELASTICAGENT_LOG_FORMAT":         "console",
		"ELASTICAGENT_AUTOREGISTER_KEY":   "secret-key",
		"ELASTICAGENT_PLUGIN_ID":          "elasticagent.custom",
	})

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 9999, cfg.Server.AdminPort)
	assert.Equal(t, 4, cfg.Dispatcher.Workers)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "console", cfg.Log.Format)
	assert.Equal(t, "secret-key", cfg.Bootstrap.AutoRegisterKey)
	assert.Equal(t, "elasticagent.custom", cfg.Bootstrap.PluginID)
}

func TestLoadRejectsInvalidLogLevel(t *testing.T) {
	setTestEnv(t, map[string]string{"ELASTICAGENT_LOG_LEVEL": "verbose"})

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ELASTICAGENT_LOG_LEVEL")
}

func TestLoadRejectsTracingEnabledWithoutEndpoint(t *testing.T) {
	setTestEnv(t, map[string]string{"ELASTICAGENT_TRACING_ENABLED": "true"})

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ELASTICAGENT_TRACING_ENDPOINT")
}

func TestValidationErrorUnwrap(t *testing.T) {
	cfg := &Config{
		Server:     ServerConfig{AdminPort: -1, MetricsPort: 1, EventStreamPort: 1},
		Reconcile:  ReconcileConfig{PingInterval: 0, KillingTimeout: 0, RemovingTimeout: 0},
		Dispatcher: DispatcherConfig{Workers: 0},
		Log:        LogConfig{Level: "bogus", Format: "bogus"},
	}
	err := cfg.Validate()
	require.Error(t, err)

	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Greater(t, len(verr.Unwrap()), 1)
}
