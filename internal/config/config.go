// Package config builds the run configuration from flags, an optional TOML
// config file and the environment. The result is an explicit value passed by
// parameter; there is no global state.
package config

import (
	"errors"
	"fmt"
	"os"

	"github.com/pelletier/go-toml/v2"
)

// Config carries every parameter of one run.
type Config struct {
	// Owner is the organization whose repositories are summarized.
	Owner string
	// Token is the bearer token for API authentication; empty means
	// unauthenticated.
	Token string
	// File is the output CSV path.
	File string
	// AppendOnly continues an existing output file, processing only
	// repositories not yet recorded in it.
	AppendOnly bool
}

// fileConfig mirrors the optional TOML config file.
type fileConfig struct {
	Owner      string `toml:"owner"`
	Token      string `toml:"token"`
	File       string `toml:"file"`
	AppendOnly bool   `toml:"append_only"`
}

// Load merges configuration sources. Explicit flag values win over config
// file values; the token additionally falls back to the GITHUB_TOKEN
// environment variable. append_only is true if either source sets it.
func Load(path string, flags Config) (Config, error) {
	cfg := flags
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config file: %w", err)
		}
		var fc fileConfig
		if err := toml.Unmarshal(data, &fc); err != nil {
			return Config{}, fmt.Errorf("parse config file %s: %w", path, err)
		}
		if cfg.Owner == "" {
			cfg.Owner = fc.Owner
		}
		if cfg.Token == "" {
			cfg.Token = fc.Token
		}
		if cfg.File == "" {
			cfg.File = fc.File
		}
		cfg.AppendOnly = cfg.AppendOnly || fc.AppendOnly
	}
	if cfg.Token == "" {
		cfg.Token = os.Getenv("GITHUB_TOKEN")
	}
	return cfg, nil
}

// Validate reports the first missing required parameter.
func (c Config) Validate() error {
	if c.Owner == "" {
		return errors.New("owner is required (--owner or the config file)")
	}
	if c.File == "" {
		return errors.New("output file path is required (--file or the config file)")
	}
	return nil
}
