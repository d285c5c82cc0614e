package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewDefaultConfig(t *testing.T) {
	cfg := NewDefaultConfig()

	require.NoError(t, cfg.Validate())
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, StoreTypeMemory, cfg.Store.Type)
	assert.True(t, cfg.WAF.Enabled)
	assert.True(t, cfg.Metrics.Enabled)
	assert.False(t, cfg.Observability.Tracing.Enabled)

	// One default rule per rule type.
	types := make(map[string]bool)
	for _, rule := range cfg.Limiter.DefaultRules {
		assert.Equal(t, WildcardIdentifier, rule.Identifier)
		types[rule.Type] = true
	}
	for _, rt := range ValidRuleTypes {
		assert.True(t, types[rt], "missing default rule for %s", rt)
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"bad port", func(c *Config) { c.Server.Port = 0 }},
		{"empty host", func(c *Config) { c.Server.Host = "" }},
		{"tls missing cert", func(c *Config) { c.Server.TLSEnabled = true }},
		{"bad store type", func(c *Config) { c.Store.Type = "etcd" }},
		{"redis missing addr", func(c *Config) {
			c.Store.Type = StoreTypeRedis
			c.Store.Redis.Addr = ""
		}},
		{"postgres missing dsn", func(c *Config) { c.Store.Type = StoreTypePostgres }},
		{"zero store timeout", func(c *Config) { c.Store.Timeout = 0 }},
		{"burst multiplier below one", func(c *Config) { c.Limiter.BurstMultiplier = 0.5 }},
		{"duplicate default rule", func(c *Config) {
			c.Limiter.DefaultRules = append(c.Limiter.DefaultRules,
				RateLimitRule{Type: RuleTypeIP, Identifier: "*", Limit: 1, WindowSeconds: 1})
		}},
		{"bad log level", func(c *Config) { c.Logging.Level = "verbose" }},
		{"bad log format", func(c *Config) { c.Logging.Format = "xml" }},
		{"file output without path", func(c *Config) { c.Logging.Output = "file" }},
		{"bad metrics port", func(c *Config) { c.Metrics.Port = -1 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := NewDefaultConfig()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestMetricsConfig_Validate_Disabled(t *testing.T) {
	cfg := NewDefaultConfig()
	cfg.Metrics.Enabled = false
	cfg.Metrics.Port = 0
	assert.NoError(t, cfg.Validate())
}
