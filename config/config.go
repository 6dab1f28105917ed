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
// along with this program. If not, see <https://www.gnu.org/licenses/>.

// SPDX-License-Identifier: LGPL-3.0-or-later

// Package config describes the single configuration document the
// control surface (cmd/neatcored) accepts: this participant's
// identity, the peer table, which receiver to run, crypto parameters,
// pace knobs, and the host-tuning settings spec.md §6 calls out as an
// external collaborator the core validates but does not enforce.
// Adapted from the teacher's config package shape (YAML/JSON dual
// parse in LoadFromFile, ${VAR}/${VAR:default} substitution, an
// Environment/overrides loader) with the blockchain/DID/keystore
// fields replaced by this domain's identity-table-and-pace document.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the single document POSTed to /v1/config (see
// cmd/neatcored) or loaded from a YAML/JSON file for offline runs.
type Config struct {
	Environment string `yaml:"environment" json:"environment"`

	// Self is this process's own index into Peers.
	Self uint32 `yaml:"self" json:"self"`

	Peers []PeerConfig `yaml:"peers" json:"peers"`

	// Protocol names the registered receiver constructor to run (see
	// cmd/neatcored's receiver registry). "echo" ships with this repo.
	Protocol string `yaml:"protocol" json:"protocol"`

	Crypto  CryptoConfig  `yaml:"crypto" json:"crypto"`
	Pace    PaceConfig    `yaml:"pace" json:"pace"`
	Control ControlConfig `yaml:"control" json:"control"`

	Logging    LoggingConfig    `yaml:"logging" json:"logging"`
	Metrics    MetricsConfig    `yaml:"metrics" json:"metrics"`
	HostTuning HostTuningConfig `yaml:"host_tuning" json:"host_tuning"`
}

// PeerConfig describes one participant: its index, network address,
// and public key material. KeyType is one of "Ed25519", "Secp256k1",
// or "HMACPairwise" (see crypto.KeyType).
type PeerConfig struct {
	Index     uint32 `yaml:"index" json:"index"`
	Address   string `yaml:"address" json:"address"`
	PublicKey string `yaml:"public_key" json:"public_key"` // hex-encoded
	KeyType   string `yaml:"key_type" json:"key_type"`
}

// CryptoConfig carries this process's own signing key material.
// PrivateKey is hex-encoded; its length and interpretation depend on
// KeyType. LocalX25519PrivateKey is required only when any peer uses
// the HMACPairwise family, to re-derive the pairwise MAC key.
type CryptoConfig struct {
	KeyType               string `yaml:"key_type" json:"key_type"`
	PrivateKey            string `yaml:"private_key" json:"private_key"`
	LocalX25519PrivateKey string `yaml:"local_x25519_private_key,omitempty" json:"local_x25519_private_key,omitempty"`
}

// PaceConfig carries the pace scheduler's tunables (spec.md §4.6).
type PaceConfig struct {
	MinPace time.Duration `yaml:"min_pace" json:"min_pace"`
	Seed    time.Duration `yaml:"seed" json:"seed"`
}

// ControlConfig configures the HTTP control surface (spec.md §6).
type ControlConfig struct {
	BindAddr   string `yaml:"bind_addr" json:"bind_addr"`
	AuthSecret string `yaml:"auth_secret,omitempty" json:"auth_secret,omitempty"`
}

// LoggingConfig carries a level and output format for the
// internal/logger.StructuredLogger. cmd/neatcored does not read it; its
// logger comes from logger.NewDefaultLogger.
type LoggingConfig struct {
	Level  string `yaml:"level" json:"level"`
	Format string `yaml:"format" json:"format"`
	Output string `yaml:"output" json:"output"`
}

// MetricsConfig carries a /metrics enable flag and path. cmd/neatcored
// does not read it; it always serves GET /metrics on the control
// surface.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled" json:"enabled"`
	Path    string `yaml:"path" json:"path"`
}

// HostTuningConfig is host-tuning knobs per spec.md §6.4. Validate
// rejects NICQueueCount above 1; the core neither logs nor applies the
// knobs (setting CPU governor or pinning threads from inside the
// process is the deployment tooling's job, out of scope per spec.md §1).
type HostTuningConfig struct {
	CPUGovernor   string `yaml:"cpu_governor" json:"cpu_governor"`
	ThreadPinning bool   `yaml:"thread_pinning" json:"thread_pinning"`
	NICQueueCount int    `yaml:"nic_queue_count" json:"nic_queue_count"`
	IRQIsolation  bool   `yaml:"irq_isolation" json:"irq_isolation"`
}

// LoadFromFile loads a Config from a YAML or JSON file, trying YAML
// first and falling back to JSON, same dual-parse idiom as the
// teacher's config.LoadFromFile.
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}

	cfg := &Config{}
	if err := unmarshalYAMLOrJSON(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s (tried YAML and JSON): %w", path, err)
	}

	setDefaults(cfg)
	return cfg, nil
}

// ParseDocument decodes a single config document, as POSTed to
// cmd/neatcored's /v1/config endpoint. Always JSON on that path, but
// goes through the same YAML-then-JSON helper so a test fixture saved
// as YAML still parses.
func ParseDocument(data []byte) (*Config, error) {
	cfg := &Config{}
	if err := unmarshalYAMLOrJSON(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parse document: %w", err)
	}
	setDefaults(cfg)
	return cfg, nil
}

func setDefaults(cfg *Config) {
	if cfg.Environment == "" {
		cfg.Environment = "development"
	}
	if cfg.Pace.MinPace <= 0 {
		cfg.Pace.MinPace = time.Millisecond
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}
	if cfg.Logging.Output == "" {
		cfg.Logging.Output = "stdout"
	}
	if cfg.Metrics.Path == "" {
		cfg.Metrics.Path = "/metrics"
	}
	if cfg.Control.BindAddr == "" {
		cfg.Control.BindAddr = ":8085"
	}
}

// ValidationError reports one problem found by Validate.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// Validate checks structural invariants the identity.Table and
// Dispatch construction depend on: a non-empty peer set, Self present
// among Peers, and no duplicate indices. It does not validate key
// material itself — that surfaces naturally when crypto/keys parses
// it.
func Validate(cfg *Config) []ValidationError {
	var errs []ValidationError

	if len(cfg.Peers) == 0 {
		errs = append(errs, ValidationError{"peers", "at least one peer is required"})
	}

	seen := make(map[uint32]bool, len(cfg.Peers))
	selfPresent := false
	for _, p := range cfg.Peers {
		if seen[p.Index] {
			errs = append(errs, ValidationError{"peers", fmt.Sprintf("duplicate index %d", p.Index)})
		}
		seen[p.Index] = true
		if p.Index == cfg.Self {
			selfPresent = true
		}
		if p.Address == "" {
			errs = append(errs, ValidationError{"peers", fmt.Sprintf("peer %d has no address", p.Index)})
		}
	}
	if !selfPresent {
		errs = append(errs, ValidationError{"self", fmt.Sprintf("self index %d not present in peers", cfg.Self)})
	}
	if cfg.Protocol == "" {
		errs = append(errs, ValidationError{"protocol", "protocol is required"})
	}
	if cfg.HostTuning.NICQueueCount > 1 {
		errs = append(errs, ValidationError{"host_tuning.nic_queue_count", "should be 1 to avoid cross-queue reordering (spec §5)"})
	}

	return errs
}

func unmarshalYAMLOrJSON(data []byte, cfg *Config) error {
	if err := yaml.Unmarshal(data, cfg); err == nil {
		return nil
	}
	return json.Unmarshal(data, cfg)
}
