package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	cfg := Default()
	assert.Equal(t, 1976, cfg.Port)
	assert.Equal(t, 5, cfg.Backlog)
	assert.Equal(t, 10*time.Millisecond, cfg.SignalTimeout())
	assert.Equal(t, 1024, cfg.ReceiveBufferSize)
	assert.Equal(t, "quit", cfg.QuitKeyword)
	assert.False(t, cfg.Relay)
	assert.NoError(t, cfg.Validate())
}

func TestLoadYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "linechat.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
address: 127.0.0.1
port: 2020
signal_timeout_ms: 250
relay: true
`), 0644))

	cfg, err := Load(path, "")
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1", cfg.Address)
	assert.Equal(t, 2020, cfg.Port)
	assert.Equal(t, 250*time.Millisecond, cfg.SignalTimeout())
	assert.True(t, cfg.Relay)
	// untouched keys keep their defaults
	assert.Equal(t, 5, cfg.Backlog)
}

func TestLoadEnvOverridesFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "linechat.yaml")
	require.NoError(t, os.WriteFile(path, []byte("port: 2020\n"), 0644))
	envFile := filepath.Join(dir, ".env")
	require.NoError(t, os.WriteFile(envFile, []byte("LINECHAT_PORT=3030\nLINECHAT_RELAY=true\n"), 0644))

	cfg, err := Load(path, envFile)
	require.NoError(t, err)
	assert.Equal(t, 3030, cfg.Port)
	assert.True(t, cfg.Relay)

	t.Setenv("LINECHAT_PORT", "4040")
	cfg, err = Load(path, envFile)
	require.NoError(t, err)
	assert.Equal(t, 4040, cfg.Port)
}

func TestLoadMissingEnvFileIsFine(t *testing.T) {
	cfg, err := Load("", filepath.Join(t.TempDir(), "nope.env"))
	require.NoError(t, err)
	assert.Equal(t, DefaultPort, cfg.Port)
}

func TestLoadBadEnvValue(t *testing.T) {
	t.Setenv("LINECHAT_BACKLOG", "many")
	_, err := Load("", "")
	assert.ErrorIs(t, err, ErrInvalid)
}

func TestValidate(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"address", func(c *Config) { c.Address = "not-an-ip" }},
		{"ipv6 address", func(c *Config) { c.Address = "::1" }},
		{"port", func(c *Config) { c.Port = 70000 }},
		{"backlog", func(c *Config) { c.Backlog = 0 }},
		{"signal timeout", func(c *Config) { c.SignalTimeoutMS = 0 }},
		{"receive buffer", func(c *Config) { c.ReceiveBufferSize = 0 }},
		{"max events", func(c *Config) { c.MaxEvents = 0 }},
		{"quit keyword", func(c *Config) { c.QuitKeyword = "" }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := Default()
			tc.mutate(&cfg)
			assert.ErrorIs(t, cfg.Validate(), ErrInvalid)
		})
	}
}
