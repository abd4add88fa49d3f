package config

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	lwierrors "github.com/standardbeagle/lwi/internal/errors"
)

func TestValidateAndSetDefaults(t *testing.T) {
	cfg := &Config{
		Index: Index{
			MaxFileSize: 1024 * 1024,
		},
		Server: Server{
			Host: "127.0.0.1",
			Port: 0,
		},
		Diagnostics: Diagnostics{
			Enabled: false,
		},
	}

	require.NoError(t, NewValidator().ValidateAndSetDefaults(cfg))

	assert.Equal(t, DefaultMaxLineBytes, cfg.Server.MaxLineBytes)
	assert.Equal(t, DefaultEventQueueSize, cfg.Index.EventQueueSize)
	assert.Equal(t, DefaultDiagIntervalSec, cfg.Diagnostics.IntervalSec)
	assert.Equal(t, DefaultMaxImpactDepth, cfg.Routes.MaxImpactDepth)
	assert.GreaterOrEqual(t, cfg.Index.WorkerCount(), 1)
}

func TestValidateIndexConfig(t *testing.T) {
	v := NewValidator()

	assert.NoError(t, v.validateIndexConfig(&Index{MaxFileSize: 1}))
	assert.Error(t, v.validateIndexConfig(&Index{MaxFileSize: 0}))
	assert.Error(t, v.validateIndexConfig(&Index{MaxFileSize: 200 * 1024 * 1024}))
	assert.Error(t, v.validateIndexConfig(&Index{MaxFileSize: 1, Workers: -1}))
	assert.Error(t, v.validateIndexConfig(&Index{MaxFileSize: 1, EventQueueSize: -4}))
}

func TestValidateServerConfig(t *testing.T) {
	v := NewValidator()

	for _, host := range []string{"127.0.0.1", "::1", "localhost", "127.0.0.2"} {
		assert.NoError(t, v.validateServerConfig(&Server{Host: host, Port: 7421}), host)
	}
	for _, host := range []string{"0.0.0.0", "192.168.1.10", "", "example.com"} {
		assert.Error(t, v.validateServerConfig(&Server{Host: host, Port: 7421}), host)
	}
	assert.Error(t, v.validateServerConfig(&Server{Host: "127.0.0.1", Port: 70000}))
}

func TestValidateDiagnosticsConfig(t *testing.T) {
	v := NewValidator()

	assert.NoError(t, v.validateDiagnosticsConfig(&Diagnostics{Enabled: false}))
	assert.Error(t, v.validateDiagnosticsConfig(&Diagnostics{Enabled: true, IntervalSec: 10}))
	assert.NoError(t, v.validateDiagnosticsConfig(&Diagnostics{Enabled: true, IntervalSec: 10, Command: []string{"cargo"}}))
}

func TestValidateAndSetDefaults_ConfigError(t *testing.T) {
	cfg := Default()
	cfg.Server.Host = "10.0.0.1"

	err := NewValidator().ValidateAndSetDefaults(cfg)
	require.Error(t, err)

	var cfgErr *lwierrors.ConfigError
	require.True(t, errors.As(err, &cfgErr))
	assert.Equal(t, "server", cfgErr.Field)
	assert.Equal(t, "10.0.0.1", cfgErr.Value)
}
