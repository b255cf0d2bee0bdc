// Package config provides configuration management for llmrelay.
package config

import (
	"errors"
	"fmt"
	"math"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	DefaultModelName      = "gpt-4o-mini"
	DefaultTemperature    = 0.0
	DefaultPort           = 8000
	DefaultProvider       = "openai"
	DefaultTimeout        = 60 * time.Second
	DefaultMaxPromptChars = 32000
	DefaultEnvFile        = ".env"

	MinTemperature = 0.0
	MaxTemperature = 2.0
)

// Env var names read by Load.
const (
	EnvModelName        = "MODEL_NAME"
	EnvTemperature      = "TEMPERATURE"
	EnvPort             = "PORT"
	EnvHost             = "LLMRELAY_HOST"
	EnvProvider         = "LLMRELAY_PROVIDER"
	EnvOpenAIAPIKey     = "OPENAI_API_KEY"
	EnvOpenAIBaseURL    = "OPENAI_BASE_URL"
	EnvAnthropicAPIKey  = "ANTHROPIC_API_KEY"
	EnvAnthropicBaseURL = "ANTHROPIC_BASE_URL"
	EnvTimeout          = "LLMRELAY_TIMEOUT"
	EnvMaxTokens        = "LLMRELAY_MAX_TOKENS"
	EnvMaxPromptChars   = "LLMRELAY_MAX_PROMPT_CHARS"
	EnvRateLimit        = "LLMRELAY_RATE_LIMIT"
	EnvRateBurst        = "LLMRELAY_RATE_BURST"
	EnvAuditDB          = "LLMRELAY_AUDIT_DB"
	EnvLogLevel         = "LLMRELAY_LOG_LEVEL"
	EnvLogFormat        = "LLMRELAY_LOG_FORMAT"
	EnvEnvFile          = "LLMRELAY_ENV_FILE"
)

// Config holds all configuration for the relay. It is loaded once at
// startup and never mutated afterwards.
type Config struct {
	// ModelName is sent as the model on every provider call.
	ModelName string

	// Temperature is sent on every provider call. 0 requests deterministic output.
	Temperature float64

	// Host and Port form the listen address.
	Host string
	Port int

	// Provider selects the LLM backend: "openai" or "anthropic".
	Provider string

	OpenAIAPIKey     string
	OpenAIBaseURL    string
	AnthropicAPIKey  string
	AnthropicBaseURL string

	// Timeout bounds a single provider call.
	Timeout time.Duration

	// MaxTokens caps generated tokens per call. 0 leaves the provider default.
	MaxTokens int

	// MaxPromptChars limits the length of each prompt or chat message.
	MaxPromptChars int

	// RateLimit is the inbound request rate per second. 0 disables limiting.
	RateLimit float64
	RateBurst int

	// AuditDBPath enables the SQLite audit log when non-empty.
	AuditDBPath string

	LogLevel  string
	LogFormat string

	// EnvFile is the dotenv file that was consulted.
	EnvFile string
}

// Load creates a Config from the dotenv file and environment variables.
// Values are resolved in order: environment variable > dotenv file > default.
// Every malformed value is reported in the returned error.
func Load() (*Config, error) {
	envFile := envOr(EnvEnvFile, DefaultEnvFile)
	if err := loadEnvFile(envFile); err != nil {
		return nil, err
	}

	var errs []error
	cfg := &Config{
		ModelName:        envOr(EnvModelName, DefaultModelName),
		Temperature:      envFloat(EnvTemperature, DefaultTemperature, &errs),
		Host:             os.Getenv(EnvHost),
		Port:             envInt(EnvPort, DefaultPort, &errs),
		Provider:         strings.ToLower(envOr(EnvProvider, DefaultProvider)),
		OpenAIAPIKey:     os.Getenv(EnvOpenAIAPIKey),
		OpenAIBaseURL:    os.Getenv(EnvOpenAIBaseURL),
		AnthropicAPIKey:  os.Getenv(EnvAnthropicAPIKey),
		AnthropicBaseURL: os.Getenv(EnvAnthropicBaseURL),
		Timeout:          envDuration(EnvTimeout, DefaultTimeout, &errs),
		MaxTokens:        envInt(EnvMaxTokens, 0, &errs),
		MaxPromptChars:   envInt(EnvMaxPromptChars, DefaultMaxPromptChars, &errs),
		RateLimit:        envFloat(EnvRateLimit, 0, &errs),
		AuditDBPath:      os.Getenv(EnvAuditDB),
		LogLevel:         strings.ToLower(envOr(EnvLogLevel, "info")),
		LogFormat:        strings.ToLower(envOr(EnvLogFormat, "json")),
		EnvFile:          envFile,
	}
	cfg.RateBurst = envInt(EnvRateBurst, defaultBurst(cfg.RateLimit), &errs)

	if len(errs) > 0 {
		return nil, fmt.Errorf("invalid configuration: %w", errors.Join(errs...))
	}
	return cfg, nil
}

// loadEnvFile applies path to the environment without overriding variables
// that are already set. A missing file is not an error.
func loadEnvFile(path string) error {
	if path == "" {
		return nil
	}
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("loading %s: %w", path, err)
	}
	return nil
}

// Validate checks ranges and that the selected provider has a credential.
func (c *Config) Validate() error {
	var errs []error
	if strings.TrimSpace(c.ModelName) == "" {
		errs = append(errs, fmt.Errorf("%s must not be empty", EnvModelName))
	}
	if !(c.Temperature >= MinTemperature && c.Temperature <= MaxTemperature) {
		errs = append(errs, fmt.Errorf("%s must be between %g and %g, got %g", EnvTemperature, MinTemperature, MaxTemperature, c.Temperature))
	}
	if c.Port < 1 || c.Port > 65535 {
		errs = append(errs, fmt.Errorf("%s must be between 1 and 65535, got %d", EnvPort, c.Port))
	}
	switch c.Provider {
	case "openai":
		if c.OpenAIAPIKey == "" {
			errs = append(errs, fmt.Errorf("%s is required for provider openai", EnvOpenAIAPIKey))
		}
	case "anthropic":
		if c.AnthropicAPIKey == "" {
			errs = append(errs, fmt.Errorf("%s is required for provider anthropic", EnvAnthropicAPIKey))
		}
	default:
		errs = append(errs, fmt.Errorf("%s must be 'openai' or 'anthropic', got %q", EnvProvider, c.Provider))
	}
	if c.Timeout <= 0 {
		errs = append(errs, fmt.Errorf("%s must be positive, got %s", EnvTimeout, c.Timeout))
	}
	if c.MaxTokens < 0 {
		errs = append(errs, fmt.Errorf("%s must not be negative", EnvMaxTokens))
	}
	if c.MaxPromptChars < 1 {
		errs = append(errs, fmt.Errorf("%s must be positive", EnvMaxPromptChars))
	}
	if !(c.RateLimit >= 0) || math.IsInf(c.RateLimit, 1) {
		errs = append(errs, fmt.Errorf("%s must be a finite non-negative number", EnvRateLimit))
	}
	if c.RateLimit > 0 && c.RateBurst < 1 {
		errs = append(errs, fmt.Errorf("%s must be at least 1 when rate limiting is on", EnvRateBurst))
	}
	switch c.LogFormat {
	case "json", "text":
	default:
		errs = append(errs, fmt.Errorf("%s must be 'json' or 'text', got %q", EnvLogFormat, c.LogFormat))
	}
	return errors.Join(errs...)
}

// Addr returns the listen address, e.g. ":8000".
func (c *Config) Addr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// APIKey returns the credential for the selected provider.
func (c *Config) APIKey() string {
	if c.Provider == "anthropic" {
		return c.AnthropicAPIKey
	}
	return c.OpenAIAPIKey
}

// BaseURL returns the endpoint override for the selected provider.
func (c *Config) BaseURL() string {
	if c.Provider == "anthropic" {
		return c.AnthropicBaseURL
	}
	return c.OpenAIBaseURL
}

// RateLimitEnabled returns true if inbound rate limiting is configured.
func (c *Config) RateLimitEnabled() bool {
	return c.RateLimit > 0
}

// AuditEnabled returns true if the audit log is configured.
func (c *Config) AuditEnabled() bool {
	return c.AuditDBPath != ""
}

func defaultBurst(rps float64) int {
	if rps <= 0 {
		return 0
	}
	b := int(rps * 2)
	if b < 1 {
		b = 1
	}
	return b
}

func envFloat(key string, fallback float64, errs *[]error) float64 {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		*errs = append(*errs, fmt.Errorf("%s: %q is not a number", key, v))
		return fallback
	}
	return f
}

func envInt(key string, fallback int, errs *[]error) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		*errs = append(*errs, fmt.Errorf("%s: %q is not an integer", key, v))
		return fallback
	}
	return n
}

func envDuration(key string, fallback time.Duration, errs *[]error) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		*errs = append(*errs, fmt.Errorf("%s: %q is not a duration", key, v))
		return fallback
	}
	return d
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
