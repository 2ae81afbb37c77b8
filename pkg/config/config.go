// Package config loads wheelhouse settings from the user's TOML config file.
//
// The file lives at $XDG_CONFIG_HOME/wheelhouse/config.toml. Every value has a
// default and can be overridden per-invocation with CLI flags, so a missing
// file is not an error.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strconv"

	"github.com/adrg/xdg"
	"github.com/pelletier/go-toml/v2"
)

// Config holds the user-tunable installation settings.
type Config struct {
	// LinkMode selects the file materialization strategy: "clone", "copy",
	// "hardlink" or "symlink". Empty means the platform default.
	LinkMode string `toml:"link_mode"`

	// Installer is the name written to each dist-info INSTALLER file.
	Installer string `toml:"installer"`

	// Parallel bounds the number of wheels installed concurrently.
	Parallel int `toml:"parallel"`

	// Relocatable makes generated scripts independent of the environment's
	// absolute path.
	Relocatable bool `toml:"relocatable"`
}

// Default returns the built-in settings.
func Default() *Config {
	return &Config{
		LinkMode:  "",
		Installer: "wheelhouse",
		Parallel:  runtime.NumCPU(),
	}
}

// Load reads the config file if present and applies environment overrides.
func Load() (*Config, error) {
	cfg := Default()

	path := filepath.Join(xdg.ConfigHome, "wheelhouse", "config.toml")
	data, err := os.ReadFile(path)
	if err == nil {
		if err := toml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
		}
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to read config %s: %w", path, err)
	}

	applyEnv(cfg)

	if cfg.Parallel < 1 {
		cfg.Parallel = 1
	}
	return cfg, nil
}

// applyEnv overrides file values with WHEELHOUSE_* environment variables.
func applyEnv(cfg *Config) {
	if v := os.Getenv("WHEELHOUSE_LINK_MODE"); v != "" {
		cfg.LinkMode = v
	}
	if v := os.Getenv("WHEELHOUSE_INSTALLER"); v != "" {
		cfg.Installer = v
	}
	if v := os.Getenv("WHEELHOUSE_PARALLEL"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Parallel = n
		}
	}
	if v := os.Getenv("WHEELHOUSE_RELOCATABLE"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Relocatable = b
		}
	}
}
