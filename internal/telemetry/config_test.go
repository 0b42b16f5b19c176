package telemetry

import (
	"testing"

	"github.com/fyrsmithlabs/clustereval/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewDefaultConfig(t *testing.T) {
	cfg := NewDefaultConfig()
	assert.False(t, cfg.Enabled)
	assert.Equal(t, "clustereval", cfg.ServiceName)
	require.NoError(t, cfg.Validate())
}

func TestFromAppConfig(t *testing.T) {
	cfg := FromAppConfig(config.TelemetryConfig{
		Enabled:     true,
		Endpoint:    "127.0.0.1:4318",
		Protocol:    "http/protobuf",
		ServiceName: "review",
		Insecure:    true,
		SampleRate:  0.25,
	}, "1.2.0")

	assert.True(t, cfg.Enabled)
	assert.Equal(t, "127.0.0.1:4318", cfg.Endpoint)
	assert.Equal(t, "http/protobuf", cfg.Protocol)
	assert.Equal(t, "review", cfg.ServiceName)
	assert.Equal(t, "1.2.0", cfg.ServiceVersion)
	assert.Equal(t, 0.25, cfg.SampleRate)
	require.NoError(t, cfg.Validate())
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"disabled skips checks", func(c *Config) { c.Enabled = false; c.Endpoint = "" }, ""},
		{"missing endpoint", func(c *Config) { c.Endpoint = "" }, "endpoint is required"},
		{"bad protocol", func(c *Config) { c.Protocol = "udp" }, "protocol must be"},
		{"insecure remote", func(c *Config) { c.Endpoint = "otel.example.com:4317" }, "insecure connections"},
		{"secure remote", func(c *Config) { c.Endpoint = "otel.example.com:4317"; c.Insecure = false }, ""},
		{"bad sample rate", func(c *Config) { c.SampleRate = 1.5 }, "sample rate"},
		{"zero interval", func(c *Config) { c.ExportInterval = 0 }, "export interval"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := NewDefaultConfig()
			cfg.Enabled = true
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestConfig_IsLocalEndpoint(t *testing.T) {
	tests := map[string]bool{
		"localhost:4317":        true,
		"127.0.0.1:4317":        true,
		"http://localhost:4318": true,
		"[::1]:4317":            true,
		"collector:4317":        false,
		"10.0.0.4:4317":         false,
	}
	for endpoint, want := range tests {
		cfg := &Config{Endpoint: endpoint}
		assert.Equal(t, want, cfg.isLocalEndpoint(), endpoint)
	}
}
