// Package config provides configuration structures and loading logic for the gateway.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/insightbridge/insightbridge/pkg/domain"
)

// allowedAlgorithms is the closed set of signature algorithms the verifier may
// be configured with. The token header never participates in this choice.
var allowedAlgorithms = map[string]bool{
	"RS256": true, "RS384": true, "RS512": true,
	"ES256": true, "ES384": true, "ES512": true,
}

// Config holds the global configuration for the gateway.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Auth      AuthConfig      `yaml:"auth"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
	Replay    ReplayConfig    `yaml:"replay"`
	Score     ScoreConfig     `yaml:"score"`
	Redis     RedisConfig     `yaml:"redis"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// ServerConfig holds configuration for the HTTP server.
type ServerConfig struct {
	Address      string        `yaml:"address"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
	IdleTimeout  time.Duration `yaml:"idle_timeout"`
}

// AuthConfig holds token verification settings.
type AuthConfig struct {
	// PublicKeyPath points at the PEM-encoded public key tokens must be
	// signed under.
	PublicKeyPath string `yaml:"public_key_path"`
	// Algorithm is the single signature algorithm accepted by the verifier.
	Algorithm string `yaml:"algorithm"`
	// ClockDrift is the tolerance applied to nbf/exp comparisons.
	ClockDrift time.Duration `yaml:"clock_drift"`
}

// RateLimitConfig holds admission limiter settings.
type RateLimitConfig struct {
	RequestsPerMinute int `yaml:"requests_per_minute"`
	BurstSize         int `yaml:"burst_size"`
}

// ReplayConfig holds replay ledger settings.
type ReplayConfig struct {
	MaxEntries    int           `yaml:"max_entries"`
	PurgeInterval time.Duration `yaml:"purge_interval"`
}

// ScoreConfig holds trust score resolution settings.
type ScoreConfig struct {
	// Backend selects the score source: "static" or "http".
	Backend string `yaml:"backend"`
	// URL is the base URL of the HTTP score service (http backend).
	URL string `yaml:"url"`
	// APIKey authenticates calls to the HTTP score service.
	APIKey string `yaml:"api_key"`
	// Timeout bounds one score resolution end to end.
	Timeout time.Duration `yaml:"timeout"`
	// CacheTTL is the freshness window for cached resolutions. Zero disables
	// caching.
	CacheTTL time.Duration `yaml:"cache_ttl"`
	// Static maps subjects to scores for the static backend.
	Static map[string]int `yaml:"static"`
	// AllowThreshold and MonitorThreshold classify a resolved score.
	AllowThreshold   int `yaml:"allow_threshold"`
	MonitorThreshold int `yaml:"monitor_threshold"`
}

// Thresholds returns the configured score boundaries as a domain value.
func (c *ScoreConfig) Thresholds() domain.Thresholds {
	return domain.Thresholds{Allow: c.AllowThreshold, Monitor: c.MonitorThreshold}
}

// RedisConfig holds the optional Redis backend used for distributed rate
// limiting, replay detection, and score caching. An empty address selects the
// in-memory implementations.
type RedisConfig struct {
	Address  string `yaml:"address"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// TelemetryConfig holds configuration for OpenTelemetry export.
type TelemetryConfig struct {
	OTLPEndpoint string `yaml:"otlp_endpoint"`
	Insecure     bool   `yaml:"insecure"`
	Environment  string `yaml:"environment"`
}

// LoggingConfig holds configuration for logging.
type LoggingConfig struct {
	Level string `yaml:"level"`
}

// Load reads configuration from a file and applies environment variable overrides.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		//nolint:gosec // Config file path is controlled by admin/operator
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// Default returns a configuration with all defaults applied.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Address:      ":8080",
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 30 * time.Second,
			IdleTimeout:  120 * time.Second,
		},
		Auth: AuthConfig{
			PublicKeyPath: "keys/public_key.pem",
			Algorithm:     "RS256",
			ClockDrift:    30 * time.Second,
		},
		RateLimit: RateLimitConfig{
			RequestsPerMinute: 100,
			BurstSize:         120,
		},
		Replay: ReplayConfig{
			MaxEntries:    1_000_000,
			PurgeInterval: 5 * time.Minute,
		},
		Score: ScoreConfig{
			Backend:          "static",
			Timeout:          2 * time.Second,
			CacheTTL:         5 * time.Minute,
			AllowThreshold:   70,
			MonitorThreshold: 50,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

func applyEnvOverrides(cfg *Config) {
	if val := os.Getenv("GATEWAY_ADDR"); val != "" {
		cfg.Server.Address = val
	}
	if val := os.Getenv("GATEWAY_PUBLIC_KEY_PATH"); val != "" {
		cfg.Auth.PublicKeyPath = val
	}
	if val := os.Getenv("GATEWAY_JWT_ALGORITHM"); val != "" {
		cfg.Auth.Algorithm = val
	}
	if val := os.Getenv("GATEWAY_CLOCK_DRIFT"); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			cfg.Auth.ClockDrift = d
		}
	}
	if val := os.Getenv("GATEWAY_RATE_LIMIT_RPM"); val != "" {
		if n, err := strconv.Atoi(val); err == nil {
			cfg.RateLimit.RequestsPerMinute = n
		}
	}
	if val := os.Getenv("GATEWAY_RATE_LIMIT_BURST"); val != "" {
		if n, err := strconv.Atoi(val); err == nil {
			cfg.RateLimit.BurstSize = n
		}
	}
	if val := os.Getenv("GATEWAY_SCORE_BACKEND"); val != "" {
		cfg.Score.Backend = val
	}
	if val := os.Getenv("GATEWAY_SCORE_URL"); val != "" {
		cfg.Score.URL = val
	}
	if val := os.Getenv("GATEWAY_SCORE_API_KEY"); val != "" {
		cfg.Score.APIKey = val
	}
	if val := os.Getenv("GATEWAY_REDIS_ADDR"); val != "" {
		cfg.Redis.Address = val
	}
	if val := os.Getenv("GATEWAY_REDIS_PASSWORD"); val != "" {
		cfg.Redis.Password = val
	}
	if val := os.Getenv("GATEWAY_OTLP_ENDPOINT"); val != "" {
		cfg.Telemetry.OTLPEndpoint = val
	}
	if val := os.Getenv("GATEWAY_OTLP_INSECURE"); val == "true" {
		cfg.Telemetry.Insecure = true
	}
	if val := os.Getenv("GATEWAY_LOG_LEVEL"); val != "" {
		cfg.Logging.Level = val
	}
}

// Validate performs comprehensive validation of the entire configuration.
func (c *Config) Validate() error {
	if err := c.Auth.Validate(); err != nil {
		return fmt.Errorf("auth configuration: %w", err)
	}
	if err := c.RateLimit.Validate(); err != nil {
		return fmt.Errorf("rate limit configuration: %w", err)
	}
	if err := c.Replay.Validate(); err != nil {
		return fmt.Errorf("replay configuration: %w", err)
	}
	if err := c.Score.Validate(); err != nil {
		return fmt.Errorf("score configuration: %w", err)
	}
	if err := c.Logging.Validate(); err != nil {
		return fmt.Errorf("logging configuration: %w", err)
	}
	return nil
}

// Validate performs validation of token verification configuration.
func (c *AuthConfig) Validate() error {
	if !allowedAlgorithms[c.Algorithm] {
		return fmt.Errorf("%w: algorithm %q is not in the allow-list", domain.ErrConfigInvalid, c.Algorithm)
	}
	if c.ClockDrift < 0 {
		return fmt.Errorf("%w: clock drift must not be negative", domain.ErrConfigInvalid)
	}
	return nil
}

// Validate performs validation of rate limit configuration.
func (c *RateLimitConfig) Validate() error {
	if c.RequestsPerMinute <= 0 {
		return fmt.Errorf("%w: requests_per_minute must be positive", domain.ErrConfigInvalid)
	}
	if c.BurstSize < 1 {
		return fmt.Errorf("%w: burst_size must be at least 1", domain.ErrConfigInvalid)
	}
	// Burst is the instantaneously available budget; it can never be smaller
	// than one second's worth of refill.
	if float64(c.BurstSize) < float64(c.RequestsPerMinute)/60.0 {
		return fmt.Errorf("%w: burst_size must be >= per-second refill rate", domain.ErrConfigInvalid)
	}
	return nil
}

// Validate performs validation of replay ledger configuration.
func (c *ReplayConfig) Validate() error {
	if c.MaxEntries <= 0 {
		return fmt.Errorf("%w: replay max_entries must be positive", domain.ErrConfigInvalid)
	}
	if c.PurgeInterval <= 0 {
		return fmt.Errorf("%w: replay purge_interval must be positive", domain.ErrConfigInvalid)
	}
	return nil
}

// Validate performs validation of score resolution configuration.
func (c *ScoreConfig) Validate() error {
	switch c.Backend {
	case "static", "http":
	default:
		return fmt.Errorf("%w: unknown score backend %q", domain.ErrConfigInvalid, c.Backend)
	}
	if c.Backend == "http" && strings.TrimSpace(c.URL) == "" {
		return fmt.Errorf("%w: score url required for http backend", domain.ErrConfigInvalid)
	}
	if c.Timeout <= 0 {
		return fmt.Errorf("%w: score timeout must be positive", domain.ErrConfigInvalid)
	}
	if c.MonitorThreshold < 0 || c.AllowThreshold > 100 || c.MonitorThreshold > c.AllowThreshold {
		return fmt.Errorf("%w: thresholds must satisfy 0 <= monitor <= allow <= 100", domain.ErrConfigInvalid)
	}
	return nil
}

// Validate performs validation of logging configuration.
func (c *LoggingConfig) Validate() error {
	if strings.TrimSpace(c.Level) == "" {
		c.Level = "info"
	}

	level := strings.TrimSpace(strings.ToLower(c.Level))
	switch level {
	case "debug", "info", "warn", "error":
		c.Level = level
		return nil
	default:
		return fmt.Errorf("invalid log level %q, supported levels: debug, info, warn, error", c.Level)
	}
}
