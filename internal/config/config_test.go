package config

import (
	"encoding/base64"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// allConfigKeys lists every GLUCOSHARE_ env var that Load() reads.
var allConfigKeys = []string{
	"GLUCOSHARE_CONFIG_FILE",
	"GLUCOSHARE_USERNAME",
	"GLUCOSHARE_ACCOUNT_NAME",
	"GLUCOSHARE_PASSWORD",
	"GLUCOSHARE_APPLICATION_ID",
	"GLUCOSHARE_REGION",
	"GLUCOSHARE_BASE_URL",
	"GLUCOSHARE_WAIT_TIME",
	"GLUCOSHARE_POLL_INTERVAL",
	"GLUCOSHARE_POLL_SLACK",
	"GLUCOSHARE_MIN_TIMEOUT",
	"GLUCOSHARE_MAX_TIMEOUT",
	"GLUCOSHARE_HTTP_TIMEOUT",
	"GLUCOSHARE_MINUTES",
	"GLUCOSHARE_MAX_COUNT",
	"GLUCOSHARE_MAX_WINDOW_MINUTES",
	"GLUCOSHARE_LISTEN_ADDR",
	"GLUCOSHARE_DB_PATH",
	"GLUCOSHARE_SECRET_KEY",
	"GLUCOSHARE_LOG_LEVEL",
}

// isolateConfigEnv saves and unsets all GLUCOSHARE_ env vars so tests don't
// inherit values from the host environment (e.g. a running dev instance).
// t.Cleanup restores original values after the test.
func isolateConfigEnv(t *testing.T) {
	t.Helper()
	for _, key := range allConfigKeys {
		if orig, ok := os.LookupEnv(key); ok {
			t.Cleanup(func() { os.Setenv(key, orig) })
		} else {
			t.Cleanup(func() { os.Unsetenv(key) })
		}
		os.Unsetenv(key)
	}
}

func TestLoad_Defaults(t *testing.T) {
	isolateConfigEnv(t)

	cfg, err := Load()

	require.NoError(t, err)
	assert.Equal(t, "us", cfg.Region)
	assert.Equal(t, 5*time.Minute, cfg.PollInterval)
	assert.Equal(t, 10*time.Second, cfg.PollSlack)
	assert.Equal(t, 5*time.Second, cfg.RetryMinBackoff)
	assert.Equal(t, 5*time.Minute, cfg.RetryMaxBackoff)
	assert.Equal(t, 1440, cfg.Minutes)
	assert.Equal(t, 1, cfg.MaxCount)
	assert.Equal(t, 1440, cfg.MaxWindowMinutes)
	assert.Equal(t, 30*time.Second, cfg.HTTPTimeout)
	assert.Equal(t, "127.0.0.1:8080", cfg.ListenAddr)
	assert.Equal(t, "glucoshare.db", cfg.DBPath)
	assert.Nil(t, cfg.SecretKey)
	assert.Equal(t, slog.LevelInfo, cfg.LogLevel)
	assert.False(t, cfg.HasCredentials())
}

func TestLoad_Success(t *testing.T) {
	isolateConfigEnv(t)
	t.Setenv("GLUCOSHARE_ACCOUNT_NAME", "alice")
	t.Setenv("GLUCOSHARE_PASSWORD", "hunter2")
	t.Setenv("GLUCOSHARE_APPLICATION_ID", "app-1")
	t.Setenv("GLUCOSHARE_REGION", "ous")
	t.Setenv("GLUCOSHARE_MIN_TIMEOUT", "1s")
	t.Setenv("GLUCOSHARE_MAX_TIMEOUT", "1m")
	t.Setenv("GLUCOSHARE_MINUTES", "60")
	t.Setenv("GLUCOSHARE_MAX_COUNT", "12")
	t.Setenv("GLUCOSHARE_LISTEN_ADDR", "0.0.0.0:9090")
	t.Setenv("GLUCOSHARE_DB_PATH", "/tmp/test.db")
	t.Setenv("GLUCOSHARE_LOG_LEVEL", "debug")

	cfg, err := Load()

	require.NoError(t, err)
	assert.True(t, cfg.HasCredentials())
	creds := cfg.Credentials()
	assert.Equal(t, "alice", creds.AccountName)
	assert.Equal(t, "hunter2", creds.Password)
	assert.Equal(t, "app-1", creds.ApplicationID)
	assert.Equal(t, "ous", cfg.Region)
	assert.Equal(t, time.Second, cfg.RetryMinBackoff)
	assert.Equal(t, time.Minute, cfg.RetryMaxBackoff)
	assert.Equal(t, 60, cfg.Minutes)
	assert.Equal(t, 12, cfg.MaxCount)
	assert.Equal(t, "0.0.0.0:9090", cfg.ListenAddr)
	assert.Equal(t, "/tmp/test.db", cfg.DBPath)
	assert.Equal(t, slog.LevelDebug, cfg.LogLevel)
}

func TestLoad_AccountNameTakesPrecedenceOverUsername(t *testing.T) {
	isolateConfigEnv(t)
	t.Setenv("GLUCOSHARE_USERNAME", "legacy")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "legacy", cfg.AccountName)

	t.Setenv("GLUCOSHARE_ACCOUNT_NAME", "alice")
	cfg, err = Load()
	require.NoError(t, err)
	assert.Equal(t, "alice", cfg.AccountName)
}

func TestLoad_WaitTimeSplit(t *testing.T) {
	tests := []struct {
		name         string
		waitTime     string
		wantInterval time.Duration
		wantSlack    time.Duration
	}{
		{"default total", "5m10s", 5 * time.Minute, 10 * time.Second},
		{"longer slack", "6m", 5 * time.Minute, time.Minute},
		{"shorter than interval", "2m", 2 * time.Minute, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			isolateConfigEnv(t)
			t.Setenv("GLUCOSHARE_WAIT_TIME", tt.waitTime)

			cfg, err := Load()
			require.NoError(t, err)
			assert.Equal(t, tt.wantInterval, cfg.PollInterval)
			assert.Equal(t, tt.wantSlack, cfg.PollSlack)
		})
	}
}

func TestLoad_ExplicitIntervalOverridesWaitTime(t *testing.T) {
	isolateConfigEnv(t)
	t.Setenv("GLUCOSHARE_WAIT_TIME", "6m")
	t.Setenv("GLUCOSHARE_POLL_SLACK", "30s")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 5*time.Minute, cfg.PollInterval)
	assert.Equal(t, 30*time.Second, cfg.PollSlack)
}

func TestLoad_SecretKey(t *testing.T) {
	isolateConfigEnv(t)
	key := strings.Repeat("k", 32)
	t.Setenv("GLUCOSHARE_SECRET_KEY", base64.StdEncoding.EncodeToString([]byte(key)))

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, []byte(key), cfg.SecretKey)
}

func TestLoad_InvalidValues(t *testing.T) {
	tests := []struct {
		name    string
		key     string
		value   string
		wantErr string
	}{
		{"bad duration", "GLUCOSHARE_MIN_TIMEOUT", "soon", "GLUCOSHARE_MIN_TIMEOUT"},
		{"bad wait time", "GLUCOSHARE_WAIT_TIME", "5 minutes", "GLUCOSHARE_WAIT_TIME"},
		{"bad integer", "GLUCOSHARE_MAX_COUNT", "many", "GLUCOSHARE_MAX_COUNT"},
		{"zero count", "GLUCOSHARE_MAX_COUNT", "0", "max count"},
		{"bad region", "GLUCOSHARE_REGION", "eu", "region"},
		{"min above max", "GLUCOSHARE_MIN_TIMEOUT", "10m", "min timeout"},
		{"bad log level", "GLUCOSHARE_LOG_LEVEL", "loud", "GLUCOSHARE_LOG_LEVEL"},
		{"key not base64", "GLUCOSHARE_SECRET_KEY", "%%%", "base64"},
		{"short key", "GLUCOSHARE_SECRET_KEY", base64.StdEncoding.EncodeToString([]byte("short")), "32 bytes"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			isolateConfigEnv(t)
			t.Setenv(tt.key, tt.value)

			cfg, err := Load()
			require.Error(t, err)
			assert.Nil(t, cfg)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestLoad_YAMLFileWithEnvOverride(t *testing.T) {
	isolateConfigEnv(t)

	path := filepath.Join(t.TempDir(), "glucoshare.yaml")
	content := `
account_name: file-user
password: file-pass
region: ous
poll_interval: 4m
min_timeout: 2s
max_count: 3
log_level: warn
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	t.Setenv("GLUCOSHARE_CONFIG_FILE", path)
	t.Setenv("GLUCOSHARE_PASSWORD", "env-pass")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "file-user", cfg.AccountName)
	assert.Equal(t, "env-pass", cfg.Password, "env overrides the file")
	assert.Equal(t, "ous", cfg.Region)
	assert.Equal(t, 4*time.Minute, cfg.PollInterval)
	assert.Equal(t, 2*time.Second, cfg.RetryMinBackoff)
	assert.Equal(t, 3, cfg.MaxCount)
	assert.Equal(t, 1440, cfg.Minutes, "unset file keys keep defaults")
	assert.Equal(t, slog.LevelWarn, cfg.LogLevel)
}

func TestLoad_MissingConfigFile(t *testing.T) {
	isolateConfigEnv(t)
	t.Setenv("GLUCOSHARE_CONFIG_FILE", filepath.Join(t.TempDir(), "missing.yaml"))

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "read file")
}
