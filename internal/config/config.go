// Package config provides configuration management for chatedit.
package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Provider names a model backend
type Provider string

const (
	ProviderGemini    Provider = "gemini"
	ProviderAnthropic Provider = "anthropic"
)

func ParseProvider(s string) (Provider, error) {
	switch p := Provider(strings.ToLower(strings.TrimSpace(s))); p {
	case ProviderGemini, ProviderAnthropic:
		return p, nil
	}
	return "", fmt.Errorf("unknown provider %q, expected %q or %q", s, ProviderGemini, ProviderAnthropic)
}

const DefaultRequestTimeout = 2 * time.Minute

// Config holds the configuration for chatedit
type Config struct {
	Provider        Provider
	GeminiAPIKey    string
	AnthropicAPIKey string
	Model           string
	RequestTimeout  time.Duration

	// GithubToken authenticates reads when target files come from a GitHub repository
	GithubToken string

	// Telemetry config
	TelemetryEnabled bool
	OTLPEndpoint     string
}

func Default() Config {
	return Config{
		Provider:       ProviderGemini,
		RequestTimeout: DefaultRequestTimeout,
	}
}

// LoadDotEnv loads a .env file into the process environment if there is one. Variables that are already set win.
func LoadDotEnv(filenames ...string) {
	if err := godotenv.Load(filenames...); err != nil {
		log.Println("No .env file found, using environment variables")
	}
}

// Load reads configuration from environment variables on top of the defaults
func Load() (Config, error) {
	config := Default()

	err := firstErr(
		parseOptionalFromEnv(&config.Provider, "CHATEDIT_PROVIDER", ParseProvider),
		loadOptionalFromEnv(&config.GeminiAPIKey, "GEMINI_API_KEY"),
		loadOptionalFromEnv(&config.AnthropicAPIKey, "ANTHROPIC_API_KEY"),
		loadOptionalFromEnv(&config.Model, "CHATEDIT_MODEL"),
		parseOptionalFromEnv(&config.RequestTimeout, "CHATEDIT_REQUEST_TIMEOUT", time.ParseDuration),
		loadOptionalFromEnv(&config.GithubToken, "GITHUB_TOKEN"),
		parseOptionalFromEnv(&config.TelemetryEnabled, "CHATEDIT_TELEMETRY_ENABLED", strconv.ParseBool),
		loadOptionalFromEnv(&config.OTLPEndpoint, "CHATEDIT_OTLP_ENDPOINT"),
	)
	if err != nil {
		return Config{}, err
	}
	return config, nil
}

// APIKey returns the key for the configured provider
func (c Config) APIKey() string {
	switch c.Provider {
	case ProviderAnthropic:
		return c.AnthropicAPIKey
	case ProviderGemini:
		return c.GeminiAPIKey
	}
	return ""
}

// NotConfiguredError reports which of the settings needed for a chat request are missing
type NotConfiguredError struct {
	Missing string
}

func (e *NotConfiguredError) Error() string {
	return fmt.Sprintf("%s not configured. Please set it in the environment or a .env file.", e.Missing)
}

// Validate checks that a chat request can be made with this configuration
func (c Config) Validate() error {
	if _, err := ParseProvider(string(c.Provider)); err != nil {
		return err
	}
	if c.RequestTimeout <= 0 {
		return fmt.Errorf("request timeout must be positive, got %s", c.RequestTimeout)
	}

	apiKey := c.APIKey()
	switch {
	case apiKey == "" && c.Model == "":
		return &NotConfiguredError{Missing: "API Key and Model Name"}
	case apiKey == "":
		return &NotConfiguredError{Missing: "API Key"}
	case c.Model == "":
		return &NotConfiguredError{Missing: "Model Name"}
	}
	return nil
}

func loadOptionalFromEnv(dest *string, key string) error {
	return parseOptionalFromEnv(dest, key, func(v string) (string, error) { return v, nil })
}

func parseOptionalFromEnv[T any](dest *T, key string, parseFn func(string) (T, error)) error {
	str := os.Getenv(key)
	if str == "" {
		return nil // Leave default value
	}
	v, err := parseFn(str)
	if err != nil {
		return fmt.Errorf("failed to parse environment variable '%s' value '%s' as '%T': %w", key, str, *dest, err)
	}
	*dest = v
	return nil
}

func firstErr(errs ...error) error {
	for _, err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}
