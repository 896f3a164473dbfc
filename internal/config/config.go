// ABOUTME: Configuration loading and parsing for chatgirl-gateway
// ABOUTME: Supports YAML files with environment variable expansion and duration parsing

package config

import (
	"fmt"
	"os"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/aowme/chatgirl-gateway/internal/provider"
)

// Config represents the complete chatgirl-gateway configuration
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Provider ProviderConfig `yaml:"provider"`
	Limits   LimitsConfig   `yaml:"limits"`
	Dispatch DispatchConfig `yaml:"dispatch"`
	Database  DatabaseConfig  `yaml:"database"`
	Surface   SurfaceConfig   `yaml:"surface"`
	Templates TemplatesConfig `yaml:"templates"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// ServerConfig holds server address configuration
type ServerConfig struct {
	HTTPAddr string `yaml:"http_addr"`
}

// ProviderConfig selects the active backend and holds per-backend settings
type ProviderConfig struct {
	Active       string             `yaml:"active"`
	SystemPrompt string             `yaml:"system_prompt"`
	ChatGPTWeb   ChatGPTWebConfig   `yaml:"chatgpt_web"`
	OpenAI       OpenAICompatConfig `yaml:"openai"`
}

// ChatGPTWebConfig holds settings for the browser-backed conversation API
type ChatGPTWebConfig struct {
	BaseURL       string `yaml:"base_url"`
	AccessToken   string `yaml:"access_token"`
	SessionCookie string `yaml:"session_cookie"`
	Model         string `yaml:"model"`
}

// OpenAICompatConfig holds settings for the completions API backend
type OpenAICompatConfig struct {
	BaseURL string `yaml:"base_url"`
	APIKey  string `yaml:"api_key"`
	Model   string `yaml:"model"`
}

// LimitsConfig holds per-sender rate limiting and session expiry settings
type LimitsConfig struct {
	RateLimit    int           `yaml:"rate_limit"`
	RateInterval time.Duration `yaml:"-"`
	SessionTTL   time.Duration `yaml:"-"`

	// Raw string values for YAML unmarshaling
	RateIntervalRaw string `yaml:"rate_interval"`
	SessionTTLRaw   string `yaml:"session_ttl"`
}

// DispatchConfig holds admission queue tuning
type DispatchConfig struct {
	QueueNotifyThreshold int `yaml:"queue_notify_threshold"`
	QueueHardCeiling     int `yaml:"queue_hard_ceiling"`
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// SurfaceConfig holds settings for the websocket chat surface
type SurfaceConfig struct {
	ReplyFormat string `yaml:"reply_format"` // "text" or "html"
}

// TemplatesConfig overrides the user-facing notice texts. Empty fields
// keep the built-in defaults. A %v verb in error_notice is replaced with
// the underlying failure.
type TemplatesConfig struct {
	RateLimited    string `yaml:"rate_limited"`
	AuthExpired    string `yaml:"auth_expired"`
	ContentRefused string `yaml:"content_refused"`
	ErrorNotice    string `yaml:"error_notice"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Defaults applied when the file leaves a field unset.
const (
	DefaultHTTPAddr     = "0.0.0.0:8080"
	DefaultRateInterval = time.Hour
	DefaultSessionTTL   = 30 * time.Minute
	DefaultReplyFormat  = "text"
)

// Load reads a configuration file from the given path and returns a parsed Config.
// Environment variables in the format ${VAR_NAME} are expanded.
// Duration strings are parsed into time.Duration values.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	// Expand environment variables in the raw YAML content
	expandedData := expandEnvVars(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expandedData), &cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	// Parse duration fields
	if err := parseDurations(&cfg); err != nil {
		return nil, fmt.Errorf("parsing durations: %w", err)
	}

	cfg.applyDefaults()

	// Validate required fields
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

// expandEnvVars replaces ${VAR_NAME} patterns with the corresponding environment variable values.
// If the environment variable is not set, it is replaced with an empty string.
func expandEnvVars(s string) string {
	// Match ${VAR_NAME} pattern
	re := regexp.MustCompile(`\$\{([^}]+)\}`)

	return re.ReplaceAllStringFunc(s, func(match string) string {
		// Extract variable name from ${VAR_NAME}
		varName := re.FindStringSubmatch(match)[1]
		return os.Getenv(varName)
	})
}

// applyDefaults fills in unset fields with their default values
func (c *Config) applyDefaults() {
	if c.Server.HTTPAddr == "" {
		c.Server.HTTPAddr = DefaultHTTPAddr
	}
	if c.Limits.RateInterval == 0 {
		c.Limits.RateInterval = DefaultRateInterval
	}
	if c.Limits.SessionTTL == 0 {
		c.Limits.SessionTTL = DefaultSessionTTL
	}
	if c.Surface.ReplyFormat == "" {
		c.Surface.ReplyFormat = DefaultReplyFormat
	}
	if c.Dispatch.QueueHardCeiling == 0 && c.Dispatch.QueueNotifyThreshold > 0 {
		c.Dispatch.QueueHardCeiling = 2 * c.Dispatch.QueueNotifyThreshold
	}
}

// Validate checks that all required configuration fields are present and valid.
// Returns an error describing the first validation failure encountered.
func (c *Config) Validate() error {
	switch c.Provider.Active {
	case provider.NameChatGPTWeb:
		if c.Provider.ChatGPTWeb.AccessToken == "" && c.Provider.ChatGPTWeb.SessionCookie == "" {
			return fmt.Errorf("provider.chatgpt_web needs access_token or session_cookie")
		}
	case provider.NameOpenAI:
		if c.Provider.OpenAI.APIKey == "" {
			return fmt.Errorf("provider.openai.api_key is required")
		}
	case "":
		return fmt.Errorf("provider.active is required")
	default:
		return fmt.Errorf("provider.active %q is not a known provider", c.Provider.Active)
	}

	if c.Limits.RateLimit < 0 {
		return fmt.Errorf("limits.rate_limit must not be negative")
	}

	if c.Dispatch.QueueNotifyThreshold < 0 {
		return fmt.Errorf("dispatch.queue_notify_threshold must not be negative")
	}
	if c.Dispatch.QueueHardCeiling > 0 && c.Dispatch.QueueHardCeiling < c.Dispatch.QueueNotifyThreshold {
		return fmt.Errorf("dispatch.queue_hard_ceiling must be at least the notify threshold")
	}

	if c.Database.Path == "" {
		return fmt.Errorf("database.path is required")
	}

	if c.Surface.ReplyFormat != "text" && c.Surface.ReplyFormat != "html" {
		return fmt.Errorf("surface.reply_format must be \"text\" or \"html\"")
	}

	return nil
}

// parseDurations converts the raw duration strings into time.Duration values
func parseDurations(cfg *Config) error {
	var err error

	if cfg.Limits.RateIntervalRaw != "" {
		cfg.Limits.RateInterval, err = time.ParseDuration(cfg.Limits.RateIntervalRaw)
		if err != nil {
			return fmt.Errorf("parsing rate_interval %q: %w", cfg.Limits.RateIntervalRaw, err)
		}
	}

	if cfg.Limits.SessionTTLRaw != "" {
		cfg.Limits.SessionTTL, err = time.ParseDuration(cfg.Limits.SessionTTLRaw)
		if err != nil {
			return fmt.Errorf("parsing session_ttl %q: %w", cfg.Limits.SessionTTLRaw, err)
		}
	}

	return nil
}
