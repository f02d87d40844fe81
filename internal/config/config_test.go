package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setRequiredEnv(t *testing.T) {
	t.Helper()
	t.Setenv("PODNOTES_ACCOUNT_USERNAME", "alice@example.com")
	t.Setenv("PODNOTES_ACCOUNT_PASSWORD", "secret")
	t.Setenv("PODNOTES_ACCOUNT_URL", "https://pod.example/.account/")
	t.Setenv("PODNOTES_POD_URL", "https://pod.example/alice/")
}

func TestLoad_EnvOverDefaults(t *testing.T) {
	t.Chdir(t.TempDir())
	setRequiredEnv(t)
	t.Setenv("PODNOTES_LIST_CONCURRENCY", "8")
	t.Setenv("PODNOTES_HTTP_TIMEOUT", "5s")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "alice@example.com", cfg.Account.Username)
	assert.Equal(t, "https://pod.example/alice/", cfg.Pod.URL)
	assert.Equal(t, "notes/", cfg.Pod.Container)
	assert.Equal(t, []int{200, 202, 204, 205}, cfg.Pod.DeleteStatuses)
	assert.Equal(t, 8, cfg.List.Concurrency)
	assert.Equal(t, 5*time.Second, cfg.HTTP.Timeout)
	assert.True(t, cfg.Session.Cache)
	assert.Equal(t, slog.LevelInfo, cfg.SlogLevel())
}

func TestLoad_File(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "podnotes.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
account:
  username: bob@example.com
  password: hunter2
  url: https://css.example/.account/
pod:
  url: https://css.example/bob/
  container: journal/
  delete_statuses: [205]
session:
  cache: false
log:
  level: debug
`), 0o600))

	t.Setenv("PODNOTES_ACCOUNT_PASSWORD", "from-env")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "bob@example.com", cfg.Account.Username)
	assert.Equal(t, "from-env", cfg.Account.Password, "environment wins over file")
	assert.Equal(t, "journal/", cfg.Pod.Container)
	assert.Equal(t, []int{205}, cfg.Pod.DeleteStatuses)
	assert.False(t, cfg.Session.Cache)
	assert.Equal(t, slog.LevelDebug, cfg.SlogLevel())
}

func TestLoad_MissingExplicitFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		cfg := DefaultConfig()
		cfg.Account = AccountConfig{Username: "a", Password: "p", URL: "https://pod.example/.account/"}
		cfg.Pod.URL = "https://pod.example/alice/"
		return cfg
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"valid", func(*Config) {}, false},
		{"missing username", func(c *Config) { c.Account.Username = "" }, true},
		{"bad account url", func(c *Config) { c.Account.URL = "not a url" }, true},
		{"pod url without slash", func(c *Config) { c.Pod.URL = "https://pod.example/alice" }, true},
		{"bad delete status", func(c *Config) { c.Pod.DeleteStatuses = []int{404} }, true},
		{"zero concurrency", func(c *Config) { c.List.Concurrency = 0 }, true},
		{"bad log level", func(c *Config) { c.Log.Level = "verbose" }, true},
		{"token url", func(c *Config) { c.Pod.TokenURL = "https://pod.example/.oidc/token" }, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
