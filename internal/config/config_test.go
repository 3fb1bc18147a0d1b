package config

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nikhilbhutani/vaultmind/internal/models"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("ANTHROPIC_API_KEY", "placeholder")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "anthropic", cfg.LLM.DefaultProvider)
	assert.Equal(t, "", cfg.LLM.AnthropicKey, "placeholder values are treated as unset")
	assert.Equal(t, 3.0, cfg.LLM.InputPricePerMTok)
	assert.Equal(t, 15.0, cfg.LLM.OutputPricePerMTok)
	assert.Equal(t, 60*time.Second, cfg.Vault.FunctionTimeout)
	assert.Equal(t, "best_performing", cfg.Processing.Strategy)
	assert.True(t, cfg.Queue.Enabled)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("LLM_INPUT_PRICE_PER_MTOK", "0.8")
	t.Setenv("VAULT_URL", "https://vault.example.com/")
	t.Setenv("PROCESSING_LOCK_TTL", "90s")
	t.Setenv("QUEUE_ENABLED", "false")
	t.Setenv("CORS_ALLOWED_ORIGINS", "https://a.example, ,https://b.example")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.Server.CORSOrigins)

	assert.Equal(t, 0.8, cfg.LLM.InputPricePerMTok)
	assert.Equal(t, "https://vault.example.com", cfg.Vault.URL)
	assert.Equal(t, 90*time.Second, cfg.Processing.LockTTL)
	assert.False(t, cfg.Queue.Enabled)
}

func TestLoadInvalidNumber(t *testing.T) {
	t.Setenv("SERVER_PORT", "eighty")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "SERVER_PORT")
}

func TestValidate(t *testing.T) {
	cfg := &Config{}
	err := cfg.Validate()
	require.Error(t, err)
	assert.True(t, errors.Is(err, models.ErrConfigurationMissing))
	assert.Contains(t, err.Error(), "VAULT_ID")

	cfg.Vault = VaultConfig{URL: "https://v", VaultID: "id", BearerToken: "tok"}
	assert.NoError(t, cfg.Validate())
}
