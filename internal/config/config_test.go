package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	require.Equal(t, ":8080", cfg.Server.Addr)
	require.Equal(t, TransportRasa, cfg.Transport.Kind)
	require.Equal(t, "http://localhost:5005/webhooks/rest/webhook", cfg.Transport.WebhookURL)
	require.Zero(t, cfg.Transport.Timeout)
	require.Equal(t, "user", cfg.Chat.SenderID)
	require.Empty(t, cfg.Chat.FallbackText)
	require.False(t, cfg.Chat.SessionScopedSender)
	require.Equal(t, 6, cfg.AI.HistoryLimit)
	require.Nil(t, cfg.AI.Temperature)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("PORT", "127.0.0.1:9000")
	t.Setenv("TRANSPORT", " ARK ")
	t.Setenv("TRANSPORT_TIMEOUT", "45s")
	t.Setenv("CHAT_SENDER_ID", "widget")
	t.Setenv("CHAT_FALLBACK_TEXT", "agent unreachable")
	t.Setenv("ARK_TEMPERATURE", "0.3")
	t.Setenv("AI_HISTORY_LIMIT", "0")

	cfg, err := Load()
	require.NoError(t, err)

	require.Equal(t, "127.0.0.1:9000", cfg.Server.Addr)
	require.Equal(t, TransportArk, cfg.Transport.Kind)
	require.True(t, cfg.Chat.SessionScopedSender)
	require.Equal(t, 45*time.Second, cfg.Transport.Timeout)
	require.Equal(t, "widget", cfg.Chat.SenderID)
	require.Equal(t, "agent unreachable", cfg.Chat.FallbackText)
	require.NotNil(t, cfg.AI.Temperature)
	require.InDelta(t, 0.3, *cfg.AI.Temperature, 1e-9)
	require.Equal(t, 1, cfg.AI.HistoryLimit)
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	cases := map[string]map[string]string{
		"port with space":   {"PORT": "80 80"},
		"unknown transport": {"TRANSPORT": "carrier-pigeon"},
		"blank sender":      {"CHAT_SENDER_ID": "   "},
		"bad timeout":       {"TRANSPORT_TIMEOUT": "soon"},
	}

	for name, vars := range cases {
		t.Run(name, func(t *testing.T) {
			for k, v := range vars {
				t.Setenv(k, v)
			}
			_, err := Load()
			require.Error(t, err)
		})
	}
}

func TestBlankSenderAllowedWhenSessionScoped(t *testing.T) {
	t.Setenv("CHAT_SENDER_ID", "")
	t.Setenv("CHAT_SESSION_SCOPED_SENDER", "true")

	cfg, err := Load()
	require.NoError(t, err)
	require.True(t, cfg.Chat.SessionScopedSender)
}

func TestAIConfigEnabled(t *testing.T) {
	require.False(t, AIConfig{}.Enabled())
	require.False(t, AIConfig{APIKey: "k"}.Enabled())
	require.True(t, AIConfig{APIKey: "k", Model: "m"}.Enabled())
	require.True(t, AIConfig{AccessKey: "a", SecretKey: "s", Model: "m"}.Enabled())
}

func TestArkTransportScopesSenderPerSession(t *testing.T) {
	t.Setenv("TRANSPORT", "ark")
	t.Setenv("CHAT_SESSION_SCOPED_SENDER", "false")

	cfg, err := Load()
	require.NoError(t, err)
	require.True(t, cfg.Chat.SessionScopedSender)
}
