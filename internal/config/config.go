// Package config handles YAML configuration loading with environment variable expansion.
package config

import (
	"fmt"
	"os"
	"regexp"
	"time"

	"go.yaml.in/yaml/v3"
)

// Config is the top-level configuration for the ingress front-end and
// its admin API.
type Config struct {
	Server     ServerConfig    `yaml:"server"`
	Database   DatabaseConfig  `yaml:"database"`
	Auth       AuthConfig      `yaml:"auth"`
	RateLimits RateLimitConfig `yaml:"rate_limits"`
	Cache      CacheConfig     `yaml:"cache"`
	Telemetry  TelemetryConfig `yaml:"telemetry"`
	Keys       []KeyEntry      `yaml:"keys"`
	Ingress    IngressConfig   `yaml:"ingress"`
}

// IngressConfig holds settings for the request-code/URI-routed event
// mesh ingress front-end.
type IngressConfig struct {
	Enabled        bool          `yaml:"enabled"`
	Addr           string        `yaml:"addr"`
	TLS            *TLSConfig    `yaml:"tls"`
	MaxConnections int64         `yaml:"max_connections"`
	IdleTimeout    time.Duration `yaml:"idle_timeout"`
	CompleterSize  int           `yaml:"completer_size"`
	ServerIP       string        `yaml:"server_ip"`

	// ForwardUpstream is the base URL for the built-in /eventmesh/
	// forwarding processor; empty disables it.
	ForwardUpstream string        `yaml:"forward_upstream"`
	ForwardTimeout  time.Duration `yaml:"forward_timeout"`

	// ForwardBreaker tunes the circuit breaker guarding the forward
	// processor's upstream. Zero value falls back to circuitbreaker.DefaultConfig.
	ForwardBreakerErrorThreshold float64       `yaml:"forward_breaker_error_threshold"`
	ForwardBreakerMinSamples     int           `yaml:"forward_breaker_min_samples"`
	ForwardBreakerWindowSeconds  int           `yaml:"forward_breaker_window_seconds"`
	ForwardBreakerOpenTimeout    time.Duration `yaml:"forward_breaker_open_timeout"`
}

// TLSConfig names a certificate/key pair for the ingress listener. TLS
// context assembly itself (parsing the keystore) is out of scope here —
// the caller loads the pair and builds a *tls.Config.
type TLSConfig struct {
	CertFile string `yaml:"cert_file"`
	KeyFile  string `yaml:"key_file"`
}

// TelemetryConfig holds observability settings.
type TelemetryConfig struct {
	Metrics MetricsConfig `yaml:"metrics"`
	Tracing TracingConfig `yaml:"tracing"`
}

// MetricsConfig controls Prometheus metrics.
type MetricsConfig struct {
	Enabled bool `yaml:"enabled"`
}

// TracingConfig controls OpenTelemetry tracing.
type TracingConfig struct {
	Enabled    bool    `yaml:"enabled"`
	Endpoint   string  `yaml:"endpoint"`    // OTLP gRPC endpoint
	SampleRate float64 `yaml:"sample_rate"` // 0.0 to 1.0
}

// RateLimitConfig holds default admission limits applied to the
// forward processor's upstream.
type RateLimitConfig struct {
	DefaultRPM int64 `yaml:"default_rpm"` // default requests per minute (0 = unlimited)
	DefaultTPM int64 `yaml:"default_tpm"` // default byte-budget per minute (0 = unlimited)
}

// CacheConfig holds forward-response cache settings.
type CacheConfig struct {
	Enabled    bool          `yaml:"enabled"`
	MaxSize    int           `yaml:"max_size"`
	DefaultTTL time.Duration `yaml:"default_ttl"`
}

// ServerConfig holds admin API HTTP server settings.
type ServerConfig struct {
	Addr            string        `yaml:"addr"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// DatabaseConfig holds SQLite settings.
type DatabaseConfig struct {
	DSN string `yaml:"dsn"` // file path or ":memory:"
}

// AuthConfig holds authentication settings.
type AuthConfig struct {
	AdminKey string `yaml:"admin_key"` // parsed but not read by Bootstrap, which seeds keys from Keys
}

// KeyEntry is an admin API key seed in the config file.
type KeyEntry struct {
	Name  string `yaml:"name"`
	Key   string `yaml:"key"` // plaintext, hashed on bootstrap
	OrgID string `yaml:"org_id"`
	Role  string `yaml:"role"`
}

var envPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

// expandEnv replaces ${VAR} patterns with environment variable values.
func expandEnv(data []byte) []byte {
	return envPattern.ReplaceAllFunc(data, func(match []byte) []byte {
		varName := string(match[2 : len(match)-1])
		if val, ok := os.LookupEnv(varName); ok {
			return []byte(val)
		}
		return match
	})
}

// Load reads and parses a YAML config file, expanding environment variables.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	data = expandEnv(data)

	cfg := &Config{
		Server: ServerConfig{
			Addr:            ":8080",
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    120 * time.Second,
			ShutdownTimeout: 30 * time.Second,
		},
		Database: DatabaseConfig{
			DSN: "gandalf.db",
		},
		RateLimits: RateLimitConfig{
			DefaultRPM: 60,
			DefaultTPM: 100_000,
		},
		Cache: CacheConfig{
			Enabled:    true,
			MaxSize:    10_000,
			DefaultTTL: 5 * time.Minute,
		},
		Ingress: IngressConfig{
			Addr:                        ":8181",
			IdleTimeout:                 60 * time.Second,
			CompleterSize:               10,
			ServerIP:                    "0.0.0.0",
			ForwardTimeout:              30 * time.Second,
			ForwardBreakerErrorThreshold: 0.30,
			ForwardBreakerMinSamples:     10,
			ForwardBreakerWindowSeconds:  60,
			ForwardBreakerOpenTimeout:    30 * time.Second,
		},
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	return cfg, nil
}
