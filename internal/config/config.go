package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gatekeeper/internal/models"

	"gopkg.in/yaml.v3"
)

// Load loads configuration from file and environment variables
func Load(configPath string) (*models.Config, error) {
	// Start with default configuration
	config := models.NewDefaultConfig()

	// Load from file if provided and exists
	if configPath != "" {
		if err := loadFromFile(config, configPath); err != nil {
			return nil, fmt.Errorf("failed to load config from file: %w", err)
		}
	}

	// Override with environment variables
	loadFromEnvironment(config)

	// Validate the final configuration
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return config, nil
}

// loadFromFile loads configuration from a YAML file
func loadFromFile(config *models.Config, filePath string) error {
	if _, err := os.Stat(filePath); os.IsNotExist(err) {
		return fmt.Errorf("config file not found: %s", filePath)
	}
	data, err := os.ReadFile(filePath)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, config); err != nil {
		return fmt.Errorf("failed to parse YAML config: %w", err)
	}
	return nil
}

// loadFromEnvironment loads configuration from environment variables
func loadFromEnvironment(config *models.Config) {
	// Server configuration
	if port := os.Getenv("GATEKEEPER_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			config.Server.Port = p
		}
	}

	if host := os.Getenv("GATEKEEPER_HOST"); host != "" {
		config.Server.Host = host
	}

	if timeout := os.Getenv("GATEKEEPER_READ_TIMEOUT"); timeout != "" {
		if d, err := time.ParseDuration(timeout); err == nil {
			config.Server.ReadTimeout = d
		}
	}

	if timeout := os.Getenv("GATEKEEPER_WRITE_TIMEOUT"); timeout != "" {
		if d, err := time.ParseDuration(timeout); err == nil {
			config.Server.WriteTimeout = d
		}
	}

	if timeout := os.Getenv("GATEKEEPER_IDLE_TIMEOUT"); timeout != "" {
		if d, err := time.ParseDuration(timeout); err == nil {
			config.Server.IdleTimeout = d
		}
	}

	if tls := os.Getenv("GATEKEEPER_TLS_ENABLED"); tls != "" {
		config.Server.TLSEnabled = strings.ToLower(tls) == "true"
	}

	if certFile := os.Getenv("GATEKEEPER_TLS_CERT_FILE"); certFile != "" {
		config.Server.TLSCertFile = certFile
	}

	if keyFile := os.Getenv("GATEKEEPER_TLS_KEY_FILE"); keyFile != "" {
		config.Server.TLSKeyFile = keyFile
	}

	// Store configuration
	if storeType := os.Getenv("GATEKEEPER_STORE_TYPE"); storeType != "" {
		config.Store.Type = storeType
	}

	if prefix := os.Getenv("GATEKEEPER_STORE_KEY_PREFIX"); prefix != "" {
		config.Store.KeyPrefix = prefix
	}

	if timeout := os.Getenv("GATEKEEPER_STORE_TIMEOUT"); timeout != "" {
		if d, err := time.ParseDuration(timeout); err == nil {
			config.Store.Timeout = d
		}
	}

	// Redis configuration
	if addr := os.Getenv("GATEKEEPER_REDIS_ADDR"); addr != "" {
		config.Store.Redis.Addr = addr
	}

	if password := os.Getenv("GATEKEEPER_REDIS_PASSWORD"); password != "" {
		config.Store.Redis.Password = password
	}

	if db := os.Getenv("GATEKEEPER_REDIS_DB"); db != "" {
		if dbNum, err := strconv.Atoi(db); err == nil {
			config.Store.Redis.DB = dbNum
		}
	}

	if poolSize := os.Getenv("GATEKEEPER_REDIS_POOL_SIZE"); poolSize != "" {
		if size, err := strconv.Atoi(poolSize); err == nil {
			config.Store.Redis.PoolSize = size
		}
	}

	// Postgres configuration
	if dsn := os.Getenv("GATEKEEPER_POSTGRES_DSN"); dsn != "" {
		config.Store.Postgres.DSN = dsn
	}

	if maxConns := os.Getenv("GATEKEEPER_POSTGRES_MAX_CONNS"); maxConns != "" {
		if conns, err := strconv.Atoi(maxConns); err == nil {
			config.Store.Postgres.MaxConns = conns
		}
	}

	// Limiter configuration
	if multiplier := os.Getenv("GATEKEEPER_BURST_MULTIPLIER"); multiplier != "" {
		if m, err := strconv.ParseFloat(multiplier, 64); err == nil {
			config.Limiter.BurstMultiplier = m
		}
	}

	// WAF configuration
	if waf := os.Getenv("GATEKEEPER_WAF_ENABLED"); waf != "" {
		config.WAF.Enabled = strings.ToLower(waf) == "true"
	}

	if maxBody := os.Getenv("GATEKEEPER_WAF_MAX_BODY_BYTES"); maxBody != "" {
		if n, err := strconv.ParseInt(maxBody, 10, 64); err == nil {
			config.WAF.MaxBodyBytes = n
		}
	}

	// Logging configuration
	if level := os.Getenv("GATEKEEPER_LOG_LEVEL"); level != "" {
		config.Logging.Level = level
	}

	if format := os.Getenv("GATEKEEPER_LOG_FORMAT"); format != "" {
		config.Logging.Format = format
	}

	if output := os.Getenv("GATEKEEPER_LOG_OUTPUT"); output != "" {
		config.Logging.Output = output
	}

	if filePath := os.Getenv("GATEKEEPER_LOG_FILE_PATH"); filePath != "" {
		config.Logging.FilePath = filePath
	}

	// Metrics configuration
	if metrics := os.Getenv("GATEKEEPER_METRICS_ENABLED"); metrics != "" {
		config.Metrics.Enabled = strings.ToLower(metrics) == "true"
	}

	if path := os.Getenv("GATEKEEPER_METRICS_PATH"); path != "" {
		config.Metrics.Path = path
	}

	if port := os.Getenv("GATEKEEPER_METRICS_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			config.Metrics.Port = p
		}
	}

	// Observability configuration
	if name := os.Getenv("GATEKEEPER_SERVICE_NAME"); name != "" {
		config.Observability.ServiceName = name
	}

	if tracing := os.Getenv("GATEKEEPER_TRACING_ENABLED"); tracing != "" {
		config.Observability.Tracing.Enabled = strings.ToLower(tracing) == "true"
	}

	if exporter := os.Getenv("GATEKEEPER_TRACING_EXPORTER"); exporter != "" {
		config.Observability.Tracing.Exporter = exporter
	}

	if endpoint := os.Getenv("GATEKEEPER_OTLP_ENDPOINT"); endpoint != "" {
		config.Observability.Tracing.OTLPEndpoint = endpoint
	}

	if rate := os.Getenv("GATEKEEPER_TRACING_SAMPLE_RATE"); rate != "" {
		if r, err := strconv.ParseFloat(rate, 64); err == nil {
			config.Observability.Tracing.SampleRate = r
		}
	}
}
