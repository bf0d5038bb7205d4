package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/edgard/shulebot/internal/config"
)

const validYAML = `
log:
  level: debug
  json: true
database:
  path: /tmp/school.db
bot:
  admin_ids: ["254700000001@c.us"]
ai:
  provider: gemini
  api_key: gem-key
  model: gemini-2.0-flash
mpesa:
  consumer_key: ck
  consumer_secret: cs
  shortcode: "174379"
  passkey: pk
  callback_url: https://example.com/api/mpesa/callback
  timeout: 10s
scheduler:
  tasks:
    stale_payments:
      enabled: false
`

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadConfigFromFile(t *testing.T) {
	cfg, err := config.LoadConfig(writeConfig(t, validYAML))
	require.NoError(t, err)

	require.Equal(t, "debug", cfg.Logger.Level)
	require.True(t, cfg.Logger.JSON)
	require.Equal(t, "/tmp/school.db", cfg.Database.Path)
	require.Equal(t, 20, cfg.Database.HistoryLimit)
	require.Equal(t, []string{"254700000001@c.us"}, cfg.Bot.AdminIDs)
	require.Equal(t, "gemini", cfg.AI.Provider)
	require.Equal(t, 10*time.Second, cfg.MPesa.Timeout)
	require.Equal(t, "School Fees", cfg.MPesa.AccountReference)
	require.Equal(t, "https://sandbox.safaricom.co.ke", cfg.MPesa.BaseURL())
	require.False(t, cfg.Scheduler.Tasks["stale_payments"].Enabled)
	require.True(t, cfg.Scheduler.Tasks["sql_maintenance"].Enabled)
	require.Equal(t, "pong 🏓", cfg.Bot.Messages.Pong)
}

func TestLoadConfigEnvironmentOverrides(t *testing.T) {
	t.Setenv("BOT_AI_API_KEY", "env-key")
	t.Setenv("BOT_MPESA_ENVIRONMENT", "production")
	t.Setenv("BOT_MPESA_CONSUMER_KEY", "ck")
	t.Setenv("BOT_MPESA_CONSUMER_SECRET", "cs")
	t.Setenv("BOT_MPESA_SHORTCODE", "600000")
	t.Setenv("BOT_MPESA_PASSKEY", "pk")
	t.Setenv("BOT_MPESA_CALLBACK_URL", "https://example.com/cb")

	cfg, err := config.LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)

	require.Equal(t, "env-key", cfg.AI.APIKey)
	require.Equal(t, "openai", cfg.AI.Provider)
	require.Equal(t, "https://api.safaricom.co.ke", cfg.MPesa.BaseURL())
	require.Equal(t, ":8080", cfg.HTTP.Addr)
}

func TestLoadConfigValidation(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{
			name:    "missing credentials",
			content: "log:\n  level: info\n",
		},
		{
			name:    "telegram enabled without token",
			content: validYAML + "telegram:\n  enabled: true\n",
		},
		{
			name:    "unknown log level",
			content: strings.Replace(validYAML, "level: debug", "level: verbose", 1),
		},
		{
			name:    "account reference too long",
			content: strings.Replace(validYAML, "  passkey: pk\n", "  passkey: pk\n  account_reference: ThisReferenceIsTooLong\n", 1),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := config.LoadConfig(writeConfig(t, tt.content))
			require.ErrorIs(t, err, config.ErrConfiguration)
		})
	}
}

func TestLoadConfigMPesaDisabled(t *testing.T) {
	content := `
ai:
  provider: openai
  api_key: key
mpesa:
  enabled: false
`
	cfg, err := config.LoadConfig(writeConfig(t, content))
	require.NoError(t, err)
	require.False(t, cfg.MPesa.Enabled)
	require.Empty(t, cfg.MPesa.ConsumerKey)

	_, err = config.LoadConfig(writeConfig(t, strings.Replace(content, "enabled: false", "enabled: true", 1)))
	require.ErrorIs(t, err, config.ErrConfiguration)

	_, err = config.LoadConfig(writeConfig(t, content+"  shortcode: abc\n"))
	require.ErrorIs(t, err, config.ErrConfiguration, "shortcode stays numeric when set")
}

func TestIsAdmin(t *testing.T) {
	t.Parallel()

	open := config.BotConfig{}
	require.True(t, open.IsAdmin("anyone"))

	restricted := config.BotConfig{AdminIDs: []string{"a", "b"}}
	require.True(t, restricted.IsAdmin("b"))
	require.False(t, restricted.IsAdmin("c"))
}
