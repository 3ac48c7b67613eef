package telemetry

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{name: "disabled skips checks", mutate: func(c *Config) {
			c.Enabled = false
			c.Endpoint = ""
		}},
		{name: "enabled defaults", mutate: func(c *Config) {}},
		{name: "http", mutate: func(c *Config) {
			c.Protocol = ProtocolHTTP
			c.Endpoint = "http://127.0.0.1:4318"
		}},
		{name: "missing endpoint", mutate: func(c *Config) { c.Endpoint = "" }, wantErr: "endpoint"},
		{name: "missing service", mutate: func(c *Config) { c.ServiceName = "" }, wantErr: "service name"},
		{name: "bad protocol", mutate: func(c *Config) { c.Protocol = "udp" }, wantErr: "protocol"},
		{name: "insecure remote", mutate: func(c *Config) { c.Endpoint = "otel.example.com:4317" }, wantErr: "insecure"},
		{name: "secure remote", mutate: func(c *Config) {
			c.Endpoint = "otel.example.com:4317"
			c.Insecure = false
		}},
		{name: "sample rate", mutate: func(c *Config) { c.SampleRate = 1.5 }, wantErr: "sample rate"},
		{name: "export interval", mutate: func(c *Config) { c.Metrics.ExportInterval = 0 }, wantErr: "export interval"},
		{name: "shutdown timeout", mutate: func(c *Config) { c.ShutdownTimeout = 0 }, wantErr: "shutdown timeout"},
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
			assert.ErrorContains(t, err, tt.wantErr)
		})
	}
}

func TestIsLocalEndpoint(t *testing.T) {
	tests := map[string]bool{
		"localhost:4317":         true,
		"localhost":              true,
		"127.0.0.1:4317":         true,
		"127.1.2.3:4317":         true,
		"[::1]:4317":             true,
		"::1":                    true,
		"http://localhost:4318":  true,
		"otel.example.com:4317":  false,
		"10.0.0.5:4317":          false,
		"https://collector:4318": false,
	}
	for endpoint, want := range tests {
		assert.Equal(t, want, isLocalEndpoint(endpoint), endpoint)
	}
}

func TestStripScheme(t *testing.T) {
	assert.Equal(t, "host:4318", stripScheme("https://host:4318"))
	assert.Equal(t, "host:4318", stripScheme("http://host:4318"))
	assert.Equal(t, "host:4318", stripScheme("host:4318"))
}
