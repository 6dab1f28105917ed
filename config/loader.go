// Copyright (C) 2025 sage-x-project
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as
// published by the Free Software Foundation, either version 3 of the
// License, or (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with SAGE. If not, see <https://www.gnu.org/licenses/>.

package config

import (
	"fmt"
	"os"
	"path/filepath"
)

// LoaderOptions configures Load.
type LoaderOptions struct {
	// ConfigDir is the directory containing config files (default: ./config).
	ConfigDir string
	// Environment overrides automatic environment detection.
	Environment string
	// SkipEnvSubstitution disables ${VAR} substitution.
	SkipEnvSubstitution bool
	// SkipValidation disables Validate.
	SkipValidation bool
}

// DefaultLoaderOptions returns default loader options.
func DefaultLoaderOptions() LoaderOptions {
	return LoaderOptions{ConfigDir: "config"}
}

// Load loads configuration with automatic environment detection,
// falling back from an environment-specific file to default.yaml to
// config.yaml, then applying ${VAR} substitution, environment
// variable overrides, and validation, in that order.
func Load(opts ...LoaderOptions) (*Config, error) {
	options := DefaultLoaderOptions()
	if len(opts) > 0 {
		options = opts[0]
	}

	env := options.Environment
	if env == "" {
		env = GetEnvironment()
	}

	cfg, err := loadConfigFile(filepath.Join(options.ConfigDir, fmt.Sprintf("%s.yaml", env)))
	if err != nil {
		cfg, err = loadConfigFile(filepath.Join(options.ConfigDir, "default.yaml"))
		if err != nil {
			cfg, err = loadConfigFile(filepath.Join(options.ConfigDir, "config.yaml"))
			if err != nil {
				cfg = &Config{}
				setDefaults(cfg)
			}
		}
	}

	if cfg.Environment == "" {
		cfg.Environment = env
	}

	if !options.SkipEnvSubstitution {
		SubstituteEnvVarsInConfig(cfg)
	}
	applyEnvironmentOverrides(cfg)

	if !options.SkipValidation {
		if errs := Validate(cfg); len(errs) > 0 {
			return nil, fmt.Errorf("config: validation failed: %s", errs[0].Error())
		}
	}

	return cfg, nil
}

func loadConfigFile(path string) (*Config, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil, fmt.Errorf("config file not found: %s", path)
	}
	return LoadFromFile(path)
}

// LoadForEnvironment loads configuration for a specific environment.
func LoadForEnvironment(environment string) (*Config, error) {
	return Load(LoaderOptions{ConfigDir: "config", Environment: environment})
}

// MustLoad loads configuration or panics on error.
func MustLoad(opts ...LoaderOptions) *Config {
	cfg, err := Load(opts...)
	if err != nil {
		panic(fmt.Sprintf("config: failed to load: %v", err))
	}
	return cfg
}
