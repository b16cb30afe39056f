package config

import (
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

var keys = []string{"LOG_LEVEL", "HTTP_PORT", "SHUTDOWN_TIMEOUT", "MAX_HISTORY_MESSAGES", "PARAM_PREFIX", "JOURNAL_TABLE", "JOURNAL_SQLITE_PATH", "JOURNAL_TTL", "CORS_ALLOW_ORIGINS"}

// unsetAll clears every variable for the test; t.Setenv registers the restore.
func unsetAll(t *testing.T) {
	t.Helper()
	for _, key := range keys {
		t.Setenv(key, "")
		require.NoError(t, os.Unsetenv(key))
	}
}

func TestLoad_Defaults(t *testing.T) {
	unsetAll(t)

	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, "info", cfg.LogLevel)
	require.Equal(t, 8080, cfg.HTTPPort)
	require.Equal(t, 10*time.Second, cfg.ShutdownTimeout)
	require.Equal(t, 50, cfg.MaxHistoryMessages)
	require.Empty(t, cfg.ParamPrefix)
	require.Empty(t, cfg.JournalTable)
	require.Empty(t, cfg.JournalSQLitePath)
	require.Equal(t, 720*time.Hour, cfg.JournalTTL)
	require.Equal(t, []string{"*"}, cfg.CORSAllowOrigins)
	require.False(t, cfg.NeedsAWS())
}

func TestLoad_Overrides(t *testing.T) {
	unsetAll(t)
	t.Setenv("LOG_LEVEL", " DEBUG ")
	t.Setenv("HTTP_PORT", "9090")
	t.Setenv("MAX_HISTORY_MESSAGES", "12")
	t.Setenv("PARAM_PREFIX", " /copilot/prod ")
	t.Setenv("JOURNAL_TABLE", "copilot-turns")
	t.Setenv("JOURNAL_TTL", "48h")
	t.Setenv("SHUTDOWN_TIMEOUT", "3s")
	t.Setenv("JOURNAL_SQLITE_PATH", " ./turns.db ")
	t.Setenv("CORS_ALLOW_ORIGINS", "http://localhost:3000, ,https://copilot.example.com")

	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, "debug", cfg.LogLevel)
	require.Equal(t, 9090, cfg.HTTPPort)
	require.Equal(t, 12, cfg.MaxHistoryMessages)
	require.Equal(t, "/copilot/prod", cfg.ParamPrefix)
	require.Equal(t, "copilot-turns", cfg.JournalTable)
	require.Equal(t, 48*time.Hour, cfg.JournalTTL)
	require.Equal(t, 3*time.Second, cfg.ShutdownTimeout)
	require.Equal(t, "./turns.db", cfg.JournalSQLitePath)
	require.Equal(t, []string{"http://localhost:3000", "https://copilot.example.com"}, cfg.CORSAllowOrigins)
	require.True(t, cfg.NeedsAWS())
}

func TestLoad_Invalid(t *testing.T) {
	cases := []struct {
		name  string
		key   string
		value string
		want  string
	}{
		{name: "non numeric port", key: "HTTP_PORT", value: "abc", want: "parse env config"},
		{name: "port out of range", key: "HTTP_PORT", value: "70000", want: "HTTP_PORT"},
		{name: "zero history", key: "MAX_HISTORY_MESSAGES", value: "0", want: "MAX_HISTORY_MESSAGES"},
		{name: "bad ttl", key: "JOURNAL_TTL", value: "soon", want: "parse env config"},
		{name: "negative ttl", key: "JOURNAL_TTL", value: "-1h", want: "JOURNAL_TTL"},
		{name: "bad level", key: "LOG_LEVEL", value: "loud", want: "LOG_LEVEL"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			unsetAll(t)
			t.Setenv(tc.key, tc.value)
			_, err := Load()
			require.Error(t, err)
			require.Contains(t, err.Error(), tc.want)
		})
	}
}

func TestParseLevel(t *testing.T) {
	cases := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"":        slog.LevelInfo,
		"INFO":    slog.LevelInfo,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
	}
	for in, want := range cases {
		got, err := ParseLevel(in)
		require.NoError(t, err, in)
		require.Equal(t, want, got, in)
	}
}
