// Package config loads fpledger configuration from YAML, environment
// overrides, and defaults, and validates the result against an embedded CUE
// schema.
package config

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"gopkg.in/yaml.v3"
)

//go:embed schema.cue
var schemaCUE string

// Storage drivers.
const (
	DriverSQLite = "sqlite"
	DriverFile   = "file"
)

// Environment variables that override file values.
const (
	EnvStorage  = "LEDGER_STORAGE"
	EnvAnchor   = "ANCHOR_DIR"
	EnvHMACKey  = "HMAC_KEY"
	EnvHMACSalt = "HMAC_SALT"
	EnvPort     = "PORT"
)

// Config is the complete runtime configuration.
// Constructors receive the parts they need explicitly; there are no globals.
type Config struct {
	Storage  StorageConfig  `yaml:"storage" json:"storage"`
	Identity IdentityConfig `yaml:"identity" json:"identity"`
	Anchor   AnchorConfig   `yaml:"anchor" json:"anchor"`
	Ledger   LedgerConfig   `yaml:"ledger" json:"ledger"`
	HTTP     HTTPConfig     `yaml:"http" json:"http"`
}

// StorageConfig selects the block log backend.
type StorageConfig struct {
	Driver string `yaml:"driver" json:"driver"`
	Path   string `yaml:"path" json:"path"`
}

// IdentityConfig holds the fingerprint commitment secret.
type IdentityConfig struct {
	HMACKey  string `yaml:"hmac_key" json:"hmac_key"`
	HMACSalt string `yaml:"hmac_salt" json:"hmac_salt"`
}

// AnchorConfig configures tip anchoring. Empty fields disable that anchor.
type AnchorConfig struct {
	Dir      string `yaml:"dir" json:"dir"`
	DBPath   string `yaml:"db_path" json:"db_path"`
	Interval string `yaml:"interval" json:"interval"`
}

// LedgerConfig holds ledger policy.
type LedgerConfig struct {
	AllowMint        bool  `yaml:"allow_mint" json:"allow_mint"`
	GenesisTimestamp int64 `yaml:"genesis_timestamp" json:"genesis_timestamp"`
}

// HTTPConfig configures the API server.
type HTTPConfig struct {
	Addr string `yaml:"addr" json:"addr"`
}

// Default returns the configuration used when nothing is overridden.
// The HMAC key has no default and must be supplied.
func Default() Config {
	return Config{
		Storage: StorageConfig{Driver: DriverSQLite, Path: "./data/ledger.db"},
		Anchor:  AnchorConfig{Dir: "./.anchors"},
		HTTP:    HTTPConfig{Addr: ":7070"},
	}
}

// Load reads path (optional), applies the process environment, and validates.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		f, err := os.Open(path)
		if err != nil {
			return Config{}, fmt.Errorf("open config: %w", err)
		}
		defer f.Close()
		if err := cfg.decode(f); err != nil {
			return Config{}, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	cfg.ApplyEnv(os.LookupEnv)
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Parse decodes YAML over the defaults without applying the environment.
func Parse(data []byte) (Config, error) {
	cfg := Default()
	if err := cfg.decode(bytes.NewReader(data)); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) decode(r io.Reader) error {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(c); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

// ApplyEnv overrides fields from environment variables.
// LEDGER_STORAGE ending in .jsonl selects the file driver.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) {
	if v, ok := lookup(EnvStorage); ok && v != "" {
		c.Storage.Path = v
		if strings.HasSuffix(v, ".jsonl") {
			c.Storage.Driver = DriverFile
		} else {
			c.Storage.Driver = DriverSQLite
		}
	}
	if v, ok := lookup(EnvAnchor); ok {
		c.Anchor.Dir = v
	}
	if v, ok := lookup(EnvHMACKey); ok {
		c.Identity.HMACKey = v
	}
	if v, ok := lookup(EnvHMACSalt); ok {
		c.Identity.HMACSalt = v
	}
	if v, ok := lookup(EnvPort); ok && v != "" {
		c.HTTP.Addr = ":" + v
	}
}

// Validate checks the configuration against the embedded CUE schema.
func (c Config) Validate() error {
	ctx := cuecontext.New()
	schema := ctx.CompileString(schemaCUE)
	if err := schema.Err(); err != nil {
		return fmt.Errorf("compile config schema: %w", err)
	}

	def := schema.LookupPath(cue.ParsePath("#Config"))
	val := def.Unify(ctx.Encode(c))
	if err := val.Validate(cue.Concrete(true)); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// AnchorInterval returns the periodic anchoring interval, zero when disabled.
func (c Config) AnchorInterval() (time.Duration, error) {
	if c.Anchor.Interval == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(c.Anchor.Interval)
	if err != nil {
		return 0, fmt.Errorf("anchor interval: %w", err)
	}
	return d, nil
}
