package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func envMap(m map[string]string) func(string) (string, bool) {
	return func(k string) (string, bool) {
		v, ok := m[k]
		return v, ok
	}
}

func TestParseOverDefaults(t *testing.T) {
	cfg, err := Parse([]byte(`
storage:
  driver: file
  path: /tmp/ledger.jsonl
identity:
  hmac_key: secret
  hmac_salt: pepper
ledger:
  allow_mint: true
`))
	require.NoError(t, err)

	assert.Equal(t, DriverFile, cfg.Storage.Driver)
	assert.Equal(t, "/tmp/ledger.jsonl", cfg.Storage.Path)
	assert.Equal(t, "secret", cfg.Identity.HMACKey)
	assert.True(t, cfg.Ledger.AllowMint)
	assert.Equal(t, ":7070", cfg.HTTP.Addr, "unset sections keep defaults")
	require.NoError(t, cfg.Validate())
}

func TestParseRejectsUnknownFields(t *testing.T) {
	_, err := Parse([]byte("storage:\n  drvier: file\n"))
	assert.Error(t, err)
}

func TestParseEmptyDocument(t *testing.T) {
	cfg, err := Parse(nil)
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestApplyEnv(t *testing.T) {
	cfg := Default()
	cfg.ApplyEnv(envMap(map[string]string{
		EnvStorage:  "./data/ledger.jsonl",
		EnvAnchor:   "/var/anchors",
		EnvHMACKey:  "k",
		EnvHMACSalt: "s",
		EnvPort:     "8080",
	}))

	assert.Equal(t, DriverFile, cfg.Storage.Driver)
	assert.Equal(t, "./data/ledger.jsonl", cfg.Storage.Path)
	assert.Equal(t, "/var/anchors", cfg.Anchor.Dir)
	assert.Equal(t, IdentityConfig{HMACKey: "k", HMACSalt: "s"}, cfg.Identity)
	assert.Equal(t, ":8080", cfg.HTTP.Addr)

	cfg.ApplyEnv(envMap(map[string]string{EnvStorage: "./other.db"}))
	assert.Equal(t, DriverSQLite, cfg.Storage.Driver)
}

func TestValidate(t *testing.T) {
	valid := func() Config {
		cfg := Default()
		cfg.Identity.HMACKey = "k"
		return cfg
	}
	require.NoError(t, valid().Validate())

	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"missing hmac key", func(c *Config) { c.Identity.HMACKey = "" }},
		{"unknown driver", func(c *Config) { c.Storage.Driver = "postgres" }},
		{"empty path", func(c *Config) { c.Storage.Path = "" }},
		{"negative genesis", func(c *Config) { c.Ledger.GenesisTimestamp = -1 }},
		{"bad interval", func(c *Config) { c.Anchor.Interval = "soon" }},
		{"empty addr", func(c *Config) { c.HTTP.Addr = "" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(&cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestAnchorInterval(t *testing.T) {
	cfg := Default()
	d, err := cfg.AnchorInterval()
	require.NoError(t, err)
	assert.Zero(t, d)

	cfg.Anchor.Interval = "1m30s"
	d, err = cfg.AnchorInterval()
	require.NoError(t, err)
	assert.Equal(t, 90*time.Second, d)
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fpledger.yaml")
	require.NoError(t, os.WriteFile(path, []byte("identity:\n  hmac_key: from-file\nanchor:\n  interval: 30s\n"), 0o644))

	t.Setenv(EnvHMACSalt, "from-env")
	t.Setenv(EnvStorage, "")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "from-file", cfg.Identity.HMACKey)
	assert.Equal(t, "from-env", cfg.Identity.HMACSalt)

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
