package config_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tallyhq/tally/internal/config"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := config.Load()
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.App.Port)
	assert.Equal(t, 4, cfg.Queue.Workers)
	assert.Equal(t, 8, cfg.Queue.MaxAttempts)
	assert.Equal(t, 10*time.Minute, cfg.Queue.BackoffMax)
	assert.Equal(t, 5*time.Minute, cfg.Queue.StaleAfter)
	assert.Equal(t, "payments", cfg.Transfer.ProviderTag)
	assert.Equal(t, 24*time.Hour, cfg.Sync.Overlap)
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("DB_NAME", "tally_test")
	t.Setenv("QUEUE_WORKERS", "16")

	cfg, err := config.Load()
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.App.Port)
	assert.Equal(t, 16, cfg.Queue.Workers)
	assert.Contains(t, cfg.ConnectionString(), "tally_test")
}

func TestWebhookSecrets(t *testing.T) {
	t.Setenv("WEBHOOK_PAYMENTS_SECRET", "p-secret")

	cfg, err := config.Load()
	require.NoError(t, err)

	secrets := cfg.WebhookSecrets()

	assert.Equal(t, "p-secret", secrets["payments"])
	_, ok := secrets["bank"]
	assert.False(t, ok, "providers without a secret must be absent, not empty")
}
