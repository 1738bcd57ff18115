package config

import (
	"github.com/cockroachdb/errors"
	"github.com/effective-security/x/configloader"
	"github.com/go-playground/validator/v10"
)

// Config is the gateway configuration, loaded from a YAML or JSON file
// with environment variable expansion.
type Config struct {
	Client  Client  `json:"client" yaml:"client"`
	Chat    Chat    `json:"chat" yaml:"chat"`
	Weather Weather `json:"weather" yaml:"weather"`
	Search  Search  `json:"search" yaml:"search"`
}

// Client configures the shared upstream HTTP client.
type Client struct {
	// MaxAttempts bounds retries for transient failures, including the
	// first attempt.
	MaxAttempts int `json:"max_attempts,omitempty" yaml:"max_attempts,omitempty" validate:"omitempty,min=1,max=10"`
	// BaseDelayMS is the initial backoff in milliseconds; it doubles
	// per attempt up to MaxDelayMS.
	BaseDelayMS int `json:"base_delay_ms,omitempty" yaml:"base_delay_ms,omitempty" validate:"omitempty,min=1"`
	MaxDelayMS  int `json:"max_delay_ms,omitempty" yaml:"max_delay_ms,omitempty" validate:"omitempty,min=1"`
	// TimeoutSec is the per-call timeout in seconds.
	TimeoutSec  int `json:"timeout_sec,omitempty" yaml:"timeout_sec,omitempty" validate:"omitempty,min=1,max=300"`
	MaxInflight int `json:"max_inflight,omitempty" yaml:"max_inflight,omitempty" validate:"omitempty,min=1"`
}

// Chat configures the conversational upstream API.
type Chat struct {
	APIKey    string `json:"api_key" yaml:"api_key" validate:"required"`
	BaseURL   string `json:"base_url,omitempty" yaml:"base_url,omitempty" validate:"omitempty,url"`
	Model     string `json:"model,omitempty" yaml:"model,omitempty"`
	MaxTokens int64  `json:"max_tokens,omitempty" yaml:"max_tokens,omitempty" validate:"omitempty,min=1"`
	// Temperature is optional; nil keeps the service default, while an
	// explicit 0 is honored as-is.
	Temperature   *float64 `json:"temperature,omitempty" yaml:"temperature,omitempty" validate:"omitempty,min=0,max=2"`
	MaxMessageLen int      `json:"max_message_len,omitempty" yaml:"max_message_len,omitempty" validate:"omitempty,min=1"`
}

// Weather configures the weather upstream API.
type Weather struct {
	APIKey       string `json:"api_key" yaml:"api_key" validate:"required"`
	BaseURL      string `json:"base_url,omitempty" yaml:"base_url,omitempty" validate:"omitempty,url"`
	DefaultUnits string `json:"default_units,omitempty" yaml:"default_units,omitempty" validate:"omitempty,oneof=metric imperial"`
}

// Search configures the web search scraping pipeline.
type Search struct {
	BaseURL    string   `json:"base_url,omitempty" yaml:"base_url,omitempty" validate:"omitempty,url"`
	Locale     string   `json:"locale,omitempty" yaml:"locale,omitempty"`
	UserAgents []string `json:"user_agents,omitempty" yaml:"user_agents,omitempty"`
	// CooldownMS is the minimum delay between consecutive fetches,
	// enforced process-wide.
	CooldownMS int `json:"cooldown_ms,omitempty" yaml:"cooldown_ms,omitempty" validate:"omitempty,min=0"`
	// BreakerThreshold is the number of consecutive blocking signals
	// that trips the circuit breaker.
	BreakerThreshold int `json:"breaker_threshold,omitempty" yaml:"breaker_threshold,omitempty" validate:"omitempty,min=1"`
	// BreakerWindowSec is how long a tripped breaker stays open.
	BreakerWindowSec int `json:"breaker_window_sec,omitempty" yaml:"breaker_window_sec,omitempty" validate:"omitempty,min=1"`
}

// Load reads the configuration from file and validates it.
func Load(file string) (*Config, error) {
	cfg := new(Config)
	if file == "" {
		return nil, errors.New("configuration file is not specified")
	}

	err := configloader.UnmarshalAndExpand(file, cfg)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks required fields and value ranges.
func (c *Config) Validate() error {
	err := validator.New().Struct(c)
	if err != nil {
		return errors.WithMessage(err, "invalid configuration")
	}
	return nil
}
