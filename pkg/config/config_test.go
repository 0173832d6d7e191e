package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.False(t, cfg.Stream.Reconnect)
	assert.Equal(t, CredentialBackendFile, cfg.Credentials.Backend)
}

func TestLoadYAML(t *testing.T) {
	path := writeFile(t, "dashboard.yaml", `
api:
  base_url: http://api.example:9000
  timeout: 5s
stream:
  url: ws://api.example:9000/ws
  reconnect: true
  reconnect_delay: 2s
credentials:
  backend: memory
log:
  level: debug
metrics_listen: 127.0.0.1:9100
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "http://api.example:9000", cfg.API.BaseURL)
	assert.Equal(t, 5*time.Second, cfg.API.Timeout)
	assert.Equal(t, "ws://api.example:9000/ws", cfg.Stream.URL)
	assert.True(t, cfg.Stream.Reconnect)
	assert.Equal(t, 2*time.Second, cfg.Stream.ReconnectDelay)
	assert.Equal(t, 30*time.Second, cfg.Stream.PingInterval, "未设置的字段保留默认值")
	assert.Equal(t, CredentialBackendMemory, cfg.Credentials.Backend)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "127.0.0.1:9100", cfg.MetricsListen)
}

func TestLoadJSON(t *testing.T) {
	path := writeFile(t, "dashboard.json", `{"api":{"base_url":"http://127.0.0.1:8081"},"credentials":{"backend":"badger","path":"data/creds"}}`)
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "http://127.0.0.1:8081", cfg.API.BaseURL)
	assert.Equal(t, CredentialBackendBadger, cfg.Credentials.Backend)
	assert.Equal(t, "data/creds", cfg.Credentials.Path)
}

func TestLoadRejectsUnknownExtension(t *testing.T) {
	_, err := Load(writeFile(t, "dashboard.toml", "a = 1"))
	require.Error(t, err)

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
}

func TestEnvOverridesFile(t *testing.T) {
	path := writeFile(t, "dashboard.yaml", "api:\n  base_url: http://from-file:8080\n")
	t.Setenv("TRADEDASH_API_URL", "http://from-env:8080")
	t.Setenv("TRADEDASH_STREAM_RECONNECT", "true")
	t.Setenv("TRADEDASH_STREAM_RECONNECT_DELAY", "750ms")
	t.Setenv("TRADEDASH_API_TIMEOUT", "not-a-duration")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "http://from-env:8080", cfg.API.BaseURL)
	assert.True(t, cfg.Stream.Reconnect)
	assert.Equal(t, 750*time.Millisecond, cfg.Stream.ReconnectDelay)
	assert.Equal(t, 30*time.Second, cfg.API.Timeout, "无法解析的环境变量回退为原值")
}

func TestValidate(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(c *Config)
		ok     bool
	}{
		{"bad backend", func(c *Config) { c.Credentials.Backend = "s3" }, false},
		{"file without path", func(c *Config) { c.Credentials.Path = "" }, false},
		{"memory without path", func(c *Config) {
			c.Credentials.Backend = CredentialBackendMemory
			c.Credentials.Path = ""
		}, true},
		{"bad api url", func(c *Config) { c.API.BaseURL = "not a url" }, false},
		{"reconnect without delay", func(c *Config) {
			c.Stream.Reconnect = true
			c.Stream.ReconnectDelay = 0
		}, false},
		{"bad log level", func(c *Config) { c.Log.Level = "loud" }, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := Default()
			tc.mutate(cfg)
			err := cfg.Validate()
			if tc.ok {
				assert.NoError(t, err)
			} else {
				assert.Error(t, err)
			}
		})
	}
}
