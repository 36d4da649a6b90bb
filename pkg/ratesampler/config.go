package ratesampler

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Strategy source kinds accepted in StrategyConfig.Source.
const (
	SourceStatic = "static"
	SourceFile   = "file"
	SourceRedis  = "redis"
)

// Trace exporters accepted in TraceConfig.Exporter.
const (
	ExporterNone   = "none"
	ExporterStdout = "stdout"
	ExporterOTLP   = "otlp"
)

// Config holds the complete configuration of a sampling service.
type Config struct {
	// Sampler configures the rate-limiting policy
	Sampler SamplerConfig `yaml:"sampler"`

	// Strategy selects where rate updates come from
	Strategy StrategyConfig `yaml:"strategy"`

	// Server configures the HTTP listener
	Server ServerConfig `yaml:"server"`

	// Log configures structured logging
	Log LogConfig `yaml:"log"`

	// Trace configures export of the server's own request spans
	Trace TraceConfig `yaml:"trace"`
}

// SamplerConfig defines the rate-limiting sampler parameters.
type SamplerConfig struct {
	// MaxTracesPerSecond is the maximum number of sampled traces per second.
	// Nil means DefaultMaxTracesPerSecond; an explicit 0 is honoured.
	MaxTracesPerSecond *float64 `yaml:"max_traces_per_second,omitempty"`
}

// StrategyConfig defines the reload path for the sampler rate.
type StrategyConfig struct {
	// Source is "static", "file" or "redis"
	Source string `yaml:"source"`

	// File is the strategy file for the "file" source
	File string `yaml:"file,omitempty"`

	// RefreshInterval is how often the source is polled. Zero disables polling.
	RefreshInterval time.Duration `yaml:"refresh_interval,omitempty"`

	// Redis configures the "redis" source
	Redis RedisConfig `yaml:"redis,omitempty"`
}

// RedisConfig locates a strategy document in Redis.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password,omitempty"`
	DB       int    `yaml:"db,omitempty"`
	Key      string `yaml:"key"`
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	Addr string `yaml:"addr"`
}

// LogConfig configures the slog handler.
type LogConfig struct {
	// Level is one of debug, info, warn, error
	Level string `yaml:"level"`

	// JSON selects the JSON handler instead of text
	JSON bool `yaml:"json,omitempty"`
}

// TraceConfig selects where sampled request spans are exported.
type TraceConfig struct {
	// Exporter is "none", "stdout" or "otlp"
	Exporter string `yaml:"exporter"`

	// OTLPEndpoint is the collector gRPC address for the "otlp" exporter.
	// Empty means the exporter default, localhost:4317.
	OTLPEndpoint string `yaml:"otlp_endpoint,omitempty"`

	// OTLPInsecure disables TLS to the collector
	OTLPInsecure bool `yaml:"otlp_insecure,omitempty"`
}

// NewConfig creates a new Config with sensible defaults.
func NewConfig() *Config {
	return &Config{
		Sampler: SamplerConfig{},
		Strategy: StrategyConfig{
			Source:          SourceStatic,
			RefreshInterval: time.Minute,
		},
		Server: ServerConfig{Addr: ":8080"},
		Log:    LogConfig{Level: "info"},
		Trace:  TraceConfig{Exporter: ExporterNone},
	}
}

// LoadConfigFromFile loads configuration from a YAML file.
func LoadConfigFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read config file: %v", ErrInvalidConfig, err)
	}
	return ParseConfig(data)
}

// ParseConfig parses a YAML document, applies defaults and validates it.
func ParseConfig(data []byte) (*Config, error) {
	config := NewConfig()
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("%w: failed to parse YAML: %v", ErrInvalidConfig, err)
	}

	// Apply defaults if not set
	if config.Strategy.Source == "" {
		config.Strategy.Source = SourceStatic
	}
	if config.Server.Addr == "" {
		config.Server.Addr = ":8080"
	}
	if config.Log.Level == "" {
		config.Log.Level = "info"
	}
	if config.Trace.Exporter == "" {
		config.Trace.Exporter = ExporterNone
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if err := c.Sampler.Validate(); err != nil {
		return err
	}
	if err := c.Strategy.Validate(); err != nil {
		return fmt.Errorf("%w: invalid strategy: %v", ErrInvalidConfig, err)
	}
	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("%w: unknown log level %q", ErrInvalidConfig, c.Log.Level)
	}
	switch c.Trace.Exporter {
	case ExporterNone, ExporterStdout, ExporterOTLP:
	default:
		return fmt.Errorf("%w: unknown trace exporter %q", ErrInvalidConfig, c.Trace.Exporter)
	}
	return nil
}

// Validate checks if a SamplerConfig is valid.
func (s *SamplerConfig) Validate() error {
	return validateNonNegative("max_traces_per_second", s.Rate())
}

// Rate returns the configured rate, or DefaultMaxTracesPerSecond if unset.
func (s *SamplerConfig) Rate() float64 {
	if s.MaxTracesPerSecond == nil {
		return DefaultMaxTracesPerSecond
	}
	return *s.MaxTracesPerSecond
}

// Validate checks if a StrategyConfig is valid.
func (s *StrategyConfig) Validate() error {
	if s.RefreshInterval < 0 {
		return fmt.Errorf("refresh_interval cannot be negative")
	}

	switch s.Source {
	case SourceStatic:
		return nil
	case SourceFile:
		if s.File == "" {
			return fmt.Errorf("file source requires 'file'")
		}
		return nil
	case SourceRedis:
		if s.Redis.Addr == "" {
			return fmt.Errorf("redis source requires 'redis.addr'")
		}
		if s.Redis.Key == "" {
			return fmt.Errorf("redis source requires 'redis.key'")
		}
		return nil
	default:
		return fmt.Errorf("unknown source %q", s.Source)
	}
}
