// Package config provides configuration loading for clustereval.
//
// Configuration is assembled from hardcoded defaults, an optional YAML file,
// an optional .env file and CLUSTEREVAL_* environment variables.
package config

import (
	"errors"
	"fmt"
	"io"
	"time"

	"gopkg.in/yaml.v3"
)

// Store backend names.
const (
	BackendMemory = "memory"
	BackendBolt   = "bolt"
	BackendNATS   = "nats"
)

// Config holds the complete clustereval configuration.
type Config struct {
	Campaign  CampaignConfig  `koanf:"campaign" yaml:"campaign"`
	Store     StoreConfig     `koanf:"store" yaml:"store"`
	Server    ServerConfig    `koanf:"server" yaml:"server"`
	Logging   LoggingConfig   `koanf:"logging" yaml:"logging"`
	Telemetry TelemetryConfig `koanf:"telemetry" yaml:"telemetry"`
}

// CampaignConfig names the annotation inputs and the batch partitioning.
type CampaignConfig struct {
	OccurrencesPath string `koanf:"occurrences_path" yaml:"occurrences_path"`
	BaselinePath    string `koanf:"baseline_path" yaml:"baseline_path"`
	CandidatePath   string `koanf:"candidate_path" yaml:"candidate_path"`
	CorpusPath      string `koanf:"corpus_path" yaml:"corpus_path"`
	BatchSize       int    `koanf:"batch_size" yaml:"batch_size"`
}

// StoreConfig selects and configures the progress store backend.
type StoreConfig struct {
	Backend         string   `koanf:"backend" yaml:"backend"`
	BoltPath        string   `koanf:"bolt_path" yaml:"bolt_path"`
	NATSURL         string   `koanf:"nats_url" yaml:"nats_url"`
	NATSBucket      string   `koanf:"nats_bucket" yaml:"nats_bucket"`
	NATSToken       Secret   `koanf:"nats_token" yaml:"nats_token"`
	RetryAttempts   int      `koanf:"retry_attempts" yaml:"retry_attempts"`
	RetryBackoff    Duration `koanf:"retry_backoff" yaml:"retry_backoff"`
	RetryMaxBackoff Duration `koanf:"retry_max_backoff" yaml:"retry_max_backoff"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Host            string   `koanf:"http_host" yaml:"http_host"`
	Port            int      `koanf:"http_port" yaml:"http_port"`
	ShutdownTimeout Duration `koanf:"shutdown_timeout" yaml:"shutdown_timeout"`
	RateLimit       float64  `koanf:"rate_limit" yaml:"rate_limit"` // requests/second per client, 0 disables
	RateBurst       int      `koanf:"rate_burst" yaml:"rate_burst"`
}

// LoggingConfig holds the subset of logging settings exposed to users.
type LoggingConfig struct {
	Level  string `koanf:"level" yaml:"level"`
	Format string `koanf:"format" yaml:"format"`
}

// TelemetryConfig holds OpenTelemetry export settings.
type TelemetryConfig struct {
	Enabled     bool    `koanf:"enabled" yaml:"enabled"`
	Endpoint    string  `koanf:"endpoint" yaml:"endpoint"`
	Protocol    string  `koanf:"protocol" yaml:"protocol"` // grpc or http/protobuf
	ServiceName string  `koanf:"service_name" yaml:"service_name"`
	Insecure    bool    `koanf:"insecure" yaml:"insecure"`
	SampleRate  float64 `koanf:"sample_rate" yaml:"sample_rate"`
}

// Default returns a Config with every default applied.
func Default() *Config {
	cfg := &Config{}
	applyDefaults(cfg)
	return cfg
}

// applyDefaults sets default values for missing configuration fields.
func applyDefaults(cfg *Config) {
	if cfg.Campaign.BatchSize == 0 {
		cfg.Campaign.BatchSize = 50
	}

	if cfg.Store.Backend == "" {
		cfg.Store.Backend = BackendBolt
	}
	if cfg.Store.BoltPath == "" {
		cfg.Store.BoltPath = "clustereval.db"
	}
	if cfg.Store.NATSURL == "" {
		cfg.Store.NATSURL = "nats://localhost:4222"
	}
	if cfg.Store.NATSBucket == "" {
		cfg.Store.NATSBucket = "clustereval_evaluations"
	}
	if cfg.Store.RetryAttempts == 0 {
		cfg.Store.RetryAttempts = 3
	}
	if cfg.Store.RetryBackoff == 0 {
		cfg.Store.RetryBackoff = Duration(200 * time.Millisecond)
	}
	if cfg.Store.RetryMaxBackoff == 0 {
		cfg.Store.RetryMaxBackoff = Duration(2 * time.Second)
	}

	if cfg.Server.Host == "" {
		cfg.Server.Host = "localhost"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.ShutdownTimeout == 0 {
		cfg.Server.ShutdownTimeout = Duration(10 * time.Second)
	}
	if cfg.Server.RateBurst == 0 {
		cfg.Server.RateBurst = 40
	}

	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}

	if cfg.Telemetry.Endpoint == "" {
		cfg.Telemetry.Endpoint = "localhost:4317"
	}
	if cfg.Telemetry.Protocol == "" {
		cfg.Telemetry.Protocol = "grpc"
	}
	if cfg.Telemetry.ServiceName == "" {
		cfg.Telemetry.ServiceName = "clustereval"
	}
	if cfg.Telemetry.SampleRate == 0 {
		cfg.Telemetry.SampleRate = 1.0
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.Campaign.BatchSize < 1 {
		return fmt.Errorf("invalid batch size: %d (must be >= 1)", c.Campaign.BatchSize)
	}

	switch c.Store.Backend {
	case BackendMemory:
	case BackendBolt:
		if c.Store.BoltPath == "" {
			return errors.New("store.bolt_path is required for the bolt backend")
		}
	case BackendNATS:
		if c.Store.NATSURL == "" {
			return errors.New("store.nats_url is required for the nats backend")
		}
		if c.Store.NATSBucket == "" {
			return errors.New("store.nats_bucket is required for the nats backend")
		}
	default:
		return fmt.Errorf("unknown store backend %q (valid: memory, bolt, nats)", c.Store.Backend)
	}
	if c.Store.RetryAttempts < 1 {
		return fmt.Errorf("store.retry_attempts must be >= 1, got %d", c.Store.RetryAttempts)
	}

	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d (must be 1-65535)", c.Server.Port)
	}
	if c.Server.ShutdownTimeout.Duration() <= 0 {
		return errors.New("shutdown timeout must be positive")
	}
	if c.Server.RateLimit < 0 {
		return fmt.Errorf("server.rate_limit cannot be negative: %v", c.Server.RateLimit)
	}

	if c.Logging.Format != "json" && c.Logging.Format != "console" {
		return fmt.Errorf("logging.format must be 'json' or 'console', got %q", c.Logging.Format)
	}

	if c.Telemetry.Enabled {
		if c.Telemetry.Endpoint == "" {
			return errors.New("telemetry.endpoint is required when telemetry is enabled")
		}
		if c.Telemetry.Protocol != "grpc" && c.Telemetry.Protocol != "http/protobuf" {
			return fmt.Errorf("telemetry.protocol must be 'grpc' or 'http/protobuf', got %q", c.Telemetry.Protocol)
		}
	}
	if c.Telemetry.SampleRate < 0 || c.Telemetry.SampleRate > 1 {
		return fmt.Errorf("telemetry.sample_rate must be between 0 and 1, got %f", c.Telemetry.SampleRate)
	}

	return nil
}

// RequireInputs reports which campaign input paths are missing.
// Commands that only touch the progress store do not need them.
func (c CampaignConfig) RequireInputs() error {
	var missing []error
	if c.OccurrencesPath == "" {
		missing = append(missing, errors.New("campaign.occurrences_path is required"))
	}
	if c.BaselinePath == "" {
		missing = append(missing, errors.New("campaign.baseline_path is required"))
	}
	if c.CandidatePath == "" {
		missing = append(missing, errors.New("campaign.candidate_path is required"))
	}
	if c.CorpusPath == "" {
		missing = append(missing, errors.New("campaign.corpus_path is required"))
	}
	return errors.Join(missing...)
}

const configHeader = `# clustereval configuration
#
# Every key can be overridden by an environment variable:
#   campaign.batch_size -> CLUSTEREVAL_CAMPAIGN_BATCH_SIZE
#   store.backend       -> CLUSTEREVAL_STORE_BACKEND
`

// WriteYAML writes the configuration as a commented YAML document.
// Secrets are written redacted.
func (c *Config) WriteYAML(w io.Writer) error {
	if _, err := io.WriteString(w, configHeader); err != nil {
		return err
	}
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(c); err != nil {
		return fmt.Errorf("encode config: %w", err)
	}
	return enc.Close()
}
