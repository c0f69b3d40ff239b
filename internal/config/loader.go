package config

import (
	"errors"
	"fmt"
	"io/fs"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// EnvPrefix prefixes every environment override, e.g. BONDD_REDIS_ADDR.
const EnvPrefix = "BONDD"

// Load reads a TOML configuration file at path, merges it on top of the
// built-in defaults, applies BONDD_* environment variable overrides, and
// returns the final Config. A missing file is not an error so that a
// deployment can be configured from the environment alone. The returned
// Config has NOT been validated; the caller should invoke Config.Validate()
// after Load.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if path != "" {
		if _, err := toml.DecodeFile(path, &cfg); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("config: decode %s: %w", path, err)
		}
	}

	// Load .env file if present (silently ignore if missing).
	_ = godotenv.Load()

	if err := applyEnvOverrides(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// applyEnvOverrides overwrites fields whose BONDD_* variable is set. Unset
// variables leave the TOML or default value in place. Lists are
// comma-separated and durations use Go syntax ("30s").
func applyEnvOverrides(cfg *Config) error {
	if err := envconfig.Process(EnvPrefix, cfg); err != nil {
		return fmt.Errorf("config: env overrides: %w", err)
	}
	return nil
}
