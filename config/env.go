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
	"os"
	"regexp"
	"strings"
)

// envVarPattern matches ${VAR} or ${VAR:default}
var envVarPattern = regexp.MustCompile(`\$\{([^}:]+)(?::([^}]*))?\}`)

// SubstituteEnvVars replaces ${VAR} or ${VAR:default} with environment variable values
func SubstituteEnvVars(input string) string {
	return envVarPattern.ReplaceAllStringFunc(input, func(match string) string {
		parts := envVarPattern.FindStringSubmatch(match)
		if len(parts) < 2 {
			return match
		}

		varName := parts[1]
		defaultValue := ""
		if len(parts) > 2 {
			defaultValue = parts[2]
		}

		value := os.Getenv(varName)
		if value == "" {
			return defaultValue
		}
		return value
	})
}

// SubstituteEnvVarsInConfig recursively substitutes environment
// variables in the string-valued fields of cfg that commonly carry
// ${VAR} placeholders: peer addresses, crypto key material, and
// control-surface settings.
func SubstituteEnvVarsInConfig(cfg *Config) {
	if cfg == nil {
		return
	}

	for i := range cfg.Peers {
		cfg.Peers[i].Address = SubstituteEnvVars(cfg.Peers[i].Address)
		cfg.Peers[i].PublicKey = SubstituteEnvVars(cfg.Peers[i].PublicKey)
	}

	cfg.Crypto.PrivateKey = SubstituteEnvVars(cfg.Crypto.PrivateKey)
	cfg.Crypto.LocalX25519PrivateKey = SubstituteEnvVars(cfg.Crypto.LocalX25519PrivateKey)
	cfg.Control.BindAddr = SubstituteEnvVars(cfg.Control.BindAddr)
	cfg.Control.AuthSecret = SubstituteEnvVars(cfg.Control.AuthSecret)
}

// GetEnvironment returns the current environment from NEATCORE_ENV or
// ENVIRONMENT, defaulting to "development".
func GetEnvironment() string {
	env := os.Getenv("NEATCORE_ENV")
	if env == "" {
		env = os.Getenv("ENVIRONMENT")
	}
	if env == "" {
		env = "development"
	}
	return strings.ToLower(env)
}

// IsProduction returns true if running in the production environment.
func IsProduction() bool {
	return GetEnvironment() == "production"
}

// applyEnvironmentOverrides overrides cfg with NEATCORE_*
// environment variables, highest priority in Load's resolution order.
func applyEnvironmentOverrides(cfg *Config) {
	if addr := os.Getenv("NEATCORE_CONTROL_ADDR"); addr != "" {
		cfg.Control.BindAddr = addr
	}
	if secret := os.Getenv("NEATCORE_CONTROL_AUTH_SECRET"); secret != "" {
		cfg.Control.AuthSecret = secret
	}
	if level := os.Getenv("NEATCORE_LOG_LEVEL"); level != "" {
		cfg.Logging.Level = level
	}
	if format := os.Getenv("NEATCORE_LOG_FORMAT"); format != "" {
		cfg.Logging.Format = format
	}
	if os.Getenv("NEATCORE_METRICS_ENABLED") == "true" {
		cfg.Metrics.Enabled = true
	}
	if os.Getenv("NEATCORE_METRICS_ENABLED") == "false" {
		cfg.Metrics.Enabled = false
	}
}
