// Package models - Service configuration.
// Hierarchical configuration grouped by component, YAML/JSON serializable,
// with defaults that work out of the box and validation that catches
// misconfigurations at startup.
package models

import (
	"errors"
	"fmt"
	"time"
)

// Store type constants.
const (
	StoreTypeRedis    = "redis"
	StoreTypeMemory   = "memory"
	StoreTypePostgres = "postgres"
)

// Config is the root configuration structure for the gatekeeper service.
type Config struct {
	Server        ServerConfig        `yaml:"server" json:"server"`
	Store         StoreConfig         `yaml:"store" json:"store"`
	Limiter       LimiterConfig       `yaml:"limiter" json:"limiter"`
	WAF           WAFConfig           `yaml:"waf" json:"waf"`
	Logging       LoggingConfig       `yaml:"logging" json:"logging"`
	Metrics       MetricsConfig       `yaml:"metrics" json:"metrics"`
	Observability ObservabilityConfig `yaml:"observability" json:"observability"`
}

type ServerConfig struct {
	Port         int           `yaml:"port" json:"port"`
	Host         string        `yaml:"host" json:"host"`
	ReadTimeout  time.Duration `yaml:"read_timeout" json:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout" json:"write_timeout"`
	IdleTimeout  time.Duration `yaml:"idle_timeout" json:"idle_timeout"`
	TLSEnabled   bool          `yaml:"tls_enabled" json:"tls_enabled"`
	TLSCertFile  string        `yaml:"tls_cert_file" json:"tls_cert_file"`
	TLSKeyFile   string        `yaml:"tls_key_file" json:"tls_key_file"`
	CORS         CORSConfig    `yaml:"cors" json:"cors"`
}

type CORSConfig struct {
	Enabled        bool     `yaml:"enabled" json:"enabled"`
	AllowedOrigins []string `yaml:"allowed_origins" json:"allowed_origins"`
	AllowedMethods []string `yaml:"allowed_methods" json:"allowed_methods"`
	AllowedHeaders []string `yaml:"allowed_headers" json:"allowed_headers"`
	MaxAge         int      `yaml:"max_age" json:"max_age"`
}

// StoreConfig selects and configures the shared key-value store backend.
// Every gateway instance must point at the same store for the sliding-window
// approximation to hold; the memory backend is for development and tests.
type StoreConfig struct {
	Type      string         `yaml:"type" json:"type"`
	KeyPrefix string         `yaml:"key_prefix" json:"key_prefix"`
	Timeout   time.Duration  `yaml:"timeout" json:"timeout"` // per-call deadline for store round-trips
	Redis     RedisConfig    `yaml:"redis" json:"redis"`
	Postgres  PostgresConfig `yaml:"postgres" json:"postgres"`
}

type RedisConfig struct {
	Addr     string `yaml:"addr" json:"addr"`
	Password string `yaml:"password" json:"password"`
	DB       int    `yaml:"db" json:"db"`
	PoolSize int    `yaml:"pool_size" json:"pool_size"`
}

type PostgresConfig struct {
	DSN             string        `yaml:"dsn" json:"dsn"`
	MaxConns        int           `yaml:"max_conns" json:"max_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime" json:"conn_max_lifetime"`
}

// LimiterConfig carries the built-in default rules (one per rule type) and
// the multiplier used to derive burst limits when a rule does not set one.
type LimiterConfig struct {
	BurstMultiplier float64         `yaml:"burst_multiplier" json:"burst_multiplier"`
	DefaultRules    []RateLimitRule `yaml:"default_rules" json:"default_rules"`
}

type WAFConfig struct {
	Enabled      bool  `yaml:"enabled" json:"enabled"`
	MaxBodyBytes int64 `yaml:"max_body_bytes" json:"max_body_bytes"`
}

type LoggingConfig struct {
	Level    string `yaml:"level" json:"level"`
	Format   string `yaml:"format" json:"format"`
	Output   string `yaml:"output" json:"output"`
	FilePath string `yaml:"file_path" json:"file_path"`
}

type MetricsConfig struct {
	Enabled bool   `yaml:"enabled" json:"enabled"`
	Path    string `yaml:"path" json:"path"`
	Port    int    `yaml:"port" json:"port"`
}

type ObservabilityConfig struct {
	ServiceName string        `yaml:"service_name" json:"service_name"`
	Tracing     TracingConfig `yaml:"tracing" json:"tracing"`
}

type TracingConfig struct {
	Enabled      bool    `yaml:"enabled" json:"enabled"`
	Exporter     string  `yaml:"exporter" json:"exporter"` // stdout or otlp
	OTLPEndpoint string  `yaml:"otlp_endpoint" json:"otlp_endpoint"`
	SampleRate   float64 `yaml:"sample_rate" json:"sample_rate"`
}

// NewDefaultConfig creates a configuration with production-ready defaults:
// memory store so the service starts without external dependencies, one
// default rule per rule type, metrics on, tracing off.
func NewDefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port:         8080,
			Host:         "0.0.0.0",
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 30 * time.Second,
			IdleTimeout:  60 * time.Second,
			TLSEnabled:   false,
			CORS: CORSConfig{
				Enabled:        false,
				AllowedOrigins: []string{"*"},
				AllowedMethods: []string{"GET", "POST", "DELETE", "OPTIONS"},
				AllowedHeaders: []string{"*"},
				MaxAge:         86400,
			},
		},
		Store: StoreConfig{
			Type:      StoreTypeMemory,
			KeyPrefix: "gatekeeper",
			Timeout:   2 * time.Second,
			Redis: RedisConfig{
				Addr:     "localhost:6379",
				DB:       0,
				PoolSize: 10,
			},
			Postgres: PostgresConfig{
				MaxConns:        10,
				ConnMaxLifetime: 5 * time.Minute,
			},
		},
		Limiter: LimiterConfig{
			BurstMultiplier: 1.5,
			DefaultRules: []RateLimitRule{
				{Type: RuleTypeIP, Identifier: WildcardIdentifier, Limit: 100, WindowSeconds: 60},
				{Type: RuleTypeUser, Identifier: WildcardIdentifier, Limit: 300, WindowSeconds: 60},
				{Type: RuleTypeAPIKey, Identifier: WildcardIdentifier, Limit: 1000, WindowSeconds: 60},
				{Type: RuleTypeEndpoint, Identifier: WildcardIdentifier, Limit: 500, WindowSeconds: 60},
				{Type: RuleTypeGlobal, Identifier: WildcardIdentifier, Limit: 10000, WindowSeconds: 60},
			},
		},
		WAF: WAFConfig{
			Enabled:      true,
			MaxBodyBytes: 1 << 20,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Path:    "/metrics",
			Port:    9090,
		},
		Observability: ObservabilityConfig{
			ServiceName: "gatekeeper",
			Tracing: TracingConfig{
				Enabled:    false,
				Exporter:   "stdout",
				SampleRate: 1.0,
			},
		},
	}
}

func (c *Config) Validate() error {
	if err := c.Server.Validate(); err != nil {
		return fmt.Errorf("invalid server config: %w", err)
	}
	if err := c.Store.Validate(); err != nil {
		return fmt.Errorf("invalid store config: %w", err)
	}
	if err := c.Limiter.Validate(); err != nil {
		return fmt.Errorf("invalid limiter config: %w", err)
	}
	if err := c.Logging.Validate(); err != nil {
		return fmt.Errorf("invalid logging config: %w", err)
	}
	if err := c.Metrics.Validate(); err != nil {
		return fmt.Errorf("invalid metrics config: %w", err)
	}
	return nil
}

func (sc *ServerConfig) Validate() error {
	if sc.Port <= 0 || sc.Port > 65535 {
		return errors.New("port must be between 1 and 65535")
	}
	if sc.Host == "" {
		return errors.New("host cannot be empty")
	}
	if sc.ReadTimeout < 0 || sc.WriteTimeout < 0 || sc.IdleTimeout < 0 {
		return errors.New("timeouts cannot be negative")
	}
	if sc.TLSEnabled {
		if sc.TLSCertFile == "" {
			return errors.New("TLS cert file is required when TLS is enabled")
		}
		if sc.TLSKeyFile == "" {
			return errors.New("TLS key file is required when TLS is enabled")
		}
	}
	return nil
}

func (stc *StoreConfig) Validate() error {
	switch stc.Type {
	case StoreTypeMemory:
		// No additional configuration required.
	case StoreTypeRedis:
		if stc.Redis.Addr == "" {
			return errors.New("redis address is required for redis store")
		}
	case StoreTypePostgres:
		if stc.Postgres.DSN == "" {
			return errors.New("postgres DSN is required for postgres store")
		}
	default:
		return fmt.Errorf("invalid store type: %s", stc.Type)
	}
	if stc.Timeout <= 0 {
		return errors.New("store timeout must be positive")
	}
	return nil
}

func (lc *LimiterConfig) Validate() error {
	if lc.BurstMultiplier < 1 {
		return errors.New("burst multiplier must be at least 1")
	}
	seen := make(map[string]bool)
	for i := range lc.DefaultRules {
		rule := &lc.DefaultRules[i]
		if err := rule.Validate(); err != nil {
			return fmt.Errorf("default rule %d: %w", i, err)
		}
		if seen[rule.Type] {
			return fmt.Errorf("duplicate default rule for type %s", rule.Type)
		}
		seen[rule.Type] = true
	}
	return nil
}

func (lc *LoggingConfig) Validate() error {
	switch lc.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid log level: %s", lc.Level)
	}
	switch lc.Format {
	case "json", "text":
	default:
		return fmt.Errorf("invalid log format: %s", lc.Format)
	}
	switch lc.Output {
	case "stdout", "stderr", "file":
	default:
		return fmt.Errorf("invalid log output: %s", lc.Output)
	}
	if lc.Output == "file" && lc.FilePath == "" {
		return errors.New("file path is required when output is file")
	}
	return nil
}

func (mc *MetricsConfig) Validate() error {
	if !mc.Enabled {
		return nil
	}
	if mc.Path == "" {
		return errors.New("metrics path cannot be empty")
	}
	if mc.Port <= 0 || mc.Port > 65535 {
		return errors.New("metrics port must be between 1 and 65535")
	}
	return nil
}
