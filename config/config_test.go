package config_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/effective-security/toolgate/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	file := filepath.Join(t.TempDir(), "toolgate.yaml")
	require.NoError(t, os.WriteFile(file, []byte(body), 0o644))
	return file
}

func Test_Load(t *testing.T) {
	t.Setenv("CHAT_API_KEY", "secret-chat-key")

	file := writeConfig(t, `
client:
  max_attempts: 5
  base_delay_ms: 200
  timeout_sec: 15
chat:
  api_key: ${CHAT_API_KEY}
  base_url: https://chat.upstream.local/v1/generate
  model: small-1
  max_tokens: 512
  temperature: 0
weather:
  api_key: weather-key
  default_units: imperial
search:
  locale: en
  cooldown_ms: 250
  breaker_threshold: 5
  breaker_window_sec: 120
`)

	cfg, err := config.Load(file)
	require.NoError(t, err)
	assert.Equal(t, 5, cfg.Client.MaxAttempts)
	assert.Equal(t, 200, cfg.Client.BaseDelayMS)
	assert.Equal(t, 15, cfg.Client.TimeoutSec)
	assert.Equal(t, "secret-chat-key", cfg.Chat.APIKey)
	assert.Equal(t, "https://chat.upstream.local/v1/generate", cfg.Chat.BaseURL)
	assert.EqualValues(t, 512, cfg.Chat.MaxTokens)
	require.NotNil(t, cfg.Chat.Temperature)
	assert.Equal(t, 0.0, *cfg.Chat.Temperature)
	assert.Equal(t, "weather-key", cfg.Weather.APIKey)
	assert.Equal(t, "imperial", cfg.Weather.DefaultUnits)
	assert.Equal(t, 250, cfg.Search.CooldownMS)
	assert.Equal(t, 5, cfg.Search.BreakerThreshold)
	assert.Equal(t, 120, cfg.Search.BreakerWindowSec)
}

func Test_Load_Invalid(t *testing.T) {
	t.Parallel()

	_, err := config.Load("")
	assert.EqualError(t, err, "configuration file is not specified")

	_, err = config.Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	// missing required API keys
	file := writeConfig(t, `
chat:
  base_url: https://chat.upstream.local/v1/generate
`)
	_, err = config.Load(file)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid configuration")

	// out of range values
	file = writeConfig(t, `
client:
  max_attempts: 99
chat:
  api_key: k
weather:
  api_key: k
`)
	_, err = config.Load(file)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid configuration")
}
