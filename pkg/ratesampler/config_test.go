package ratesampler

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestNewConfig(t *testing.T) {
	config := NewConfig()

	if config == nil {
		t.Fatal("NewConfig() returned nil")
	}

	// Check defaults
	if rate := config.Sampler.Rate(); rate != DefaultMaxTracesPerSecond {
		t.Errorf("Sampler.Rate() = %f, want %f", rate, DefaultMaxTracesPerSecond)
	}
	if config.Strategy.Source != SourceStatic {
		t.Errorf("Strategy.Source = %s, want %s", config.Strategy.Source, SourceStatic)
	}
	if config.Strategy.RefreshInterval != time.Minute {
		t.Errorf("Strategy.RefreshInterval = %v, want 1m", config.Strategy.RefreshInterval)
	}
	if config.Server.Addr != ":8080" {
		t.Errorf("Server.Addr = %s, want :8080", config.Server.Addr)
	}
	if config.Log.Level != "info" {
		t.Errorf("Log.Level = %s, want info", config.Log.Level)
	}
	if config.Trace.Exporter != ExporterNone {
		t.Errorf("Trace.Exporter = %s, want none", config.Trace.Exporter)
	}
	if err := config.Validate(); err != nil {
		t.Errorf("default config should be valid: %v", err)
	}
}

func rate(v float64) *float64 { return &v }

func TestSamplerConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		config  SamplerConfig
		wantErr bool
	}{
		{
			name:    "unset uses default",
			config:  SamplerConfig{},
			wantErr: false,
		},
		{
			name:    "explicit zero",
			config:  SamplerConfig{MaxTracesPerSecond: rate(0)},
			wantErr: false,
		},
		{
			name:    "fractional rate",
			config:  SamplerConfig{MaxTracesPerSecond: rate(0.083)},
			wantErr: false,
		},
		{
			name:    "negative rate",
			config:  SamplerConfig{MaxTracesPerSecond: rate(-1)},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.config.Validate()
			if tt.wantErr {
				if !errors.Is(err, ErrInvalidConfig) {
					t.Errorf("Validate() error = %v, want %v", err, ErrInvalidConfig)
				}
				return
			}
			if err != nil {
				t.Errorf("Validate() unexpected error: %v", err)
			}
		})
	}
}

func TestStrategyConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		config  StrategyConfig
		wantErr bool
	}{
		{
			name:    "static",
			config:  StrategyConfig{Source: SourceStatic},
			wantErr: false,
		},
		{
			name:    "file",
			config:  StrategyConfig{Source: SourceFile, File: "strategies.yaml"},
			wantErr: false,
		},
		{
			name:    "file without path",
			config:  StrategyConfig{Source: SourceFile},
			wantErr: true,
		},
		{
			name: "redis",
			config: StrategyConfig{
				Source: SourceRedis,
				Redis:  RedisConfig{Addr: "localhost:6379", Key: "ratesampler:strategy"},
			},
			wantErr: false,
		},
		{
			name:    "redis without key",
			config:  StrategyConfig{Source: SourceRedis, Redis: RedisConfig{Addr: "localhost:6379"}},
			wantErr: true,
		},
		{
			name:    "unknown source",
			config:  StrategyConfig{Source: "consul"},
			wantErr: true,
		},
		{
			name:    "negative refresh",
			config:  StrategyConfig{Source: SourceStatic, RefreshInterval: -time.Second},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.config.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestLoadConfigFromFile(t *testing.T) {
	tmpDir := t.TempDir()

	// Test 1: Valid config file
	validConfig := `
sampler:
  max_traces_per_second: 2.5

strategy:
  source: redis
  refresh_interval: 30s
  redis:
    addr: localhost:6379
    db: 3
    key: "ratesampler:strategy:checkout"

server:
  addr: ":9000"

log:
  level: debug
  json: true

trace:
  exporter: otlp
  otlp_endpoint: collector:4317
  otlp_insecure: true
`
	validPath := filepath.Join(tmpDir, "valid.yaml")
	if err := os.WriteFile(validPath, []byte(validConfig), 0644); err != nil {
		t.Fatalf("Failed to create test file: %v", err)
	}

	config, err := LoadConfigFromFile(validPath)
	if err != nil {
		t.Fatalf("LoadConfigFromFile() unexpected error: %v", err)
	}

	if rate := config.Sampler.Rate(); rate != 2.5 {
		t.Errorf("Sampler.Rate() = %f, want 2.5", rate)
	}
	if config.Strategy.Source != SourceRedis {
		t.Errorf("Strategy.Source = %s, want redis", config.Strategy.Source)
	}
	if config.Strategy.RefreshInterval != 30*time.Second {
		t.Errorf("Strategy.RefreshInterval = %v, want 30s", config.Strategy.RefreshInterval)
	}
	if config.Strategy.Redis.DB != 3 {
		t.Errorf("Strategy.Redis.DB = %d, want 3", config.Strategy.Redis.DB)
	}
	if config.Server.Addr != ":9000" {
		t.Errorf("Server.Addr = %s, want :9000", config.Server.Addr)
	}
	if !config.Log.JSON || config.Log.Level != "debug" {
		t.Errorf("Log = %+v, want debug/json", config.Log)
	}
	if config.Trace != (TraceConfig{Exporter: ExporterOTLP, OTLPEndpoint: "collector:4317", OTLPInsecure: true}) {
		t.Errorf("Trace = %+v, want otlp to collector:4317 without TLS", config.Trace)
	}

	// Test 2: Invalid YAML
	invalidYAML := `
sampler:
  max_traces_per_second: 1
  invalid yaml here {[
`
	invalidPath := filepath.Join(tmpDir, "invalid.yaml")
	if err := os.WriteFile(invalidPath, []byte(invalidYAML), 0644); err != nil {
		t.Fatalf("Failed to create test file: %v", err)
	}

	_, err = LoadConfigFromFile(invalidPath)
	if !errors.Is(err, ErrInvalidConfig) {
		t.Errorf("LoadConfigFromFile() error = %v, want %v for invalid YAML", err, ErrInvalidConfig)
	}

	// Test 3: Negative rate
	negativePath := filepath.Join(tmpDir, "negative.yaml")
	if err := os.WriteFile(negativePath, []byte("sampler:\n  max_traces_per_second: -1\n"), 0644); err != nil {
		t.Fatalf("Failed to create test file: %v", err)
	}

	_, err = LoadConfigFromFile(negativePath)
	var cfgErr *InvalidConfigurationError
	if !errors.As(err, &cfgErr) {
		t.Fatalf("LoadConfigFromFile() error = %v, want *InvalidConfigurationError", err)
	}
	if cfgErr.Value != -1 {
		t.Errorf("InvalidConfigurationError.Value = %f, want -1", cfgErr.Value)
	}

	// Test 4: File not found
	_, err = LoadConfigFromFile("/nonexistent/file.yaml")
	if err == nil {
		t.Error("LoadConfigFromFile() expected error for nonexistent file, got nil")
	}
}

func TestParseConfig_Defaults(t *testing.T) {
	config, err := ParseConfig([]byte("sampler:\n  max_traces_per_second: 0\n"))
	if err != nil {
		t.Fatalf("ParseConfig() unexpected error: %v", err)
	}

	// Explicit zero must not fall back to the default rate
	if rate := config.Sampler.Rate(); rate != 0 {
		t.Errorf("Sampler.Rate() = %f, want 0", rate)
	}
	if config.Strategy.Source != SourceStatic {
		t.Errorf("Strategy.Source = %s, want static (default)", config.Strategy.Source)
	}
	if config.Server.Addr != ":8080" {
		t.Errorf("Server.Addr = %s, want :8080 (default)", config.Server.Addr)
	}

	empty, err := ParseConfig([]byte(""))
	if err != nil {
		t.Fatalf("ParseConfig() unexpected error on empty document: %v", err)
	}
	if rate := empty.Sampler.Rate(); rate != DefaultMaxTracesPerSecond {
		t.Errorf("Sampler.Rate() = %f, want %f (default)", rate, DefaultMaxTracesPerSecond)
	}
}

func TestParseConfig_UnknownLogLevel(t *testing.T) {
	_, err := ParseConfig([]byte("log:\n  level: verbose\n"))
	if !errors.Is(err, ErrInvalidConfig) {
		t.Errorf("ParseConfig() error = %v, want %v", err, ErrInvalidConfig)
	}
}

func TestNewFromConfig(t *testing.T) {
	config, err := ParseConfig([]byte("sampler:\n  max_traces_per_second: 0.5\n"))
	if err != nil {
		t.Fatalf("ParseConfig() unexpected error: %v", err)
	}

	sampler, err := NewFromConfig(config.Sampler)
	if err != nil {
		t.Fatalf("NewFromConfig() unexpected error: %v", err)
	}
	if sampler.MaxTracesPerSecond() != 0.5 {
		t.Errorf("MaxTracesPerSecond() = %f, want 0.5", sampler.MaxTracesPerSecond())
	}
}

func TestParseConfig_TraceExporter(t *testing.T) {
	config, err := ParseConfig([]byte("trace:\n  exporter: stdout\n"))
	if err != nil {
		t.Fatalf("ParseConfig() unexpected error: %v", err)
	}
	if config.Trace.Exporter != ExporterStdout {
		t.Errorf("Trace.Exporter = %s, want stdout", config.Trace.Exporter)
	}

	_, err = ParseConfig([]byte("trace:\n  exporter: zipkin\n"))
	if !errors.Is(err, ErrInvalidConfig) {
		t.Errorf("ParseConfig() error = %v, want %v", err, ErrInvalidConfig)
	}
}
