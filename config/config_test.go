package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeYAML(t *testing.T, dir, name, body string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadFromFileYAML(t *testing.T) {
	dir := t.TempDir()
	path := writeYAML(t, dir, "neatcore.yaml", `
self: 0
protocol: echo
peers:
  - index: 0
    address: "127.0.0.1:9000"
    public_key: "aa"
    key_type: Ed25519
  - index: 1
    address: "127.0.0.1:9001"
    public_key: "bb"
    key_type: Ed25519
crypto:
  key_type: Ed25519
  private_key: "deadbeef"
pace:
  min_pace: 2ms
`)

	cfg, err := LoadFromFile(path)
	require.NoError(t, err)
	assert.Equal(t, uint32(0), cfg.Self)
	assert.Equal(t, "echo", cfg.Protocol)
	assert.Len(t, cfg.Peers, 2)
	assert.Equal(t, 2*time.Millisecond, cfg.Pace.MinPace)
	assert.Equal(t, "development", cfg.Environment)
	assert.Equal(t, ":8085", cfg.Control.BindAddr)
}

func TestLoadFromFileJSONFallback(t *testing.T) {
	dir := t.TempDir()
	path := writeYAML(t, dir, "neatcore.json", `{
		"self": 1,
		"protocol": "echo",
		"peers": [
			{"index": 0, "address": "a:1", "public_key": "aa", "key_type": "Ed25519"},
			{"index": 1, "address": "b:2", "public_key": "bb", "key_type": "Ed25519"}
		]
	}`)

	cfg, err := LoadFromFile(path)
	require.NoError(t, err)
	assert.Equal(t, uint32(1), cfg.Self)
}

func TestParseDocument(t *testing.T) {
	cfg, err := ParseDocument([]byte(`{"self":0,"protocol":"echo","peers":[{"index":0,"address":"a:1"}]}`))
	require.NoError(t, err)
	assert.Equal(t, "echo", cfg.Protocol)
}

func TestValidateRequiresSelfInPeers(t *testing.T) {
	cfg := &Config{
		Self:     5,
		Protocol: "echo",
		Peers:    []PeerConfig{{Index: 0, Address: "a:1"}},
	}
	errs := Validate(cfg)
	require.NotEmpty(t, errs)
	assert.Equal(t, "self", errs[0].Field)
}

func TestValidateRejectsDuplicateIndex(t *testing.T) {
	cfg := &Config{
		Self:     0,
		Protocol: "echo",
		Peers: []PeerConfig{
			{Index: 0, Address: "a:1"},
			{Index: 0, Address: "b:2"},
		},
	}
	errs := Validate(cfg)
	found := false
	for _, e := range errs {
		if e.Field == "peers" {
			found = true
		}
	}
	assert.True(t, found)
}

func TestValidateFlagsMultipleNICQueues(t *testing.T) {
	cfg := &Config{
		Self:       0,
		Protocol:   "echo",
		Peers:      []PeerConfig{{Index: 0, Address: "a:1"}},
		HostTuning: HostTuningConfig{NICQueueCount: 4},
	}
	errs := Validate(cfg)
	found := false
	for _, e := range errs {
		if e.Field == "host_tuning.nic_queue_count" {
			found = true
		}
	}
	assert.True(t, found)
}

func TestSubstituteEnvVars(t *testing.T) {
	os.Setenv("NEATCORE_TEST_VAR", "resolved")
	defer os.Unsetenv("NEATCORE_TEST_VAR")

	assert.Equal(t, "resolved", SubstituteEnvVars("${NEATCORE_TEST_VAR}"))
	assert.Equal(t, "fallback", SubstituteEnvVars("${NEATCORE_MISSING_VAR:fallback}"))
}

func TestSubstituteEnvVarsInConfig(t *testing.T) {
	os.Setenv("NEATCORE_PEER_ADDR", "10.0.0.5:9000")
	defer os.Unsetenv("NEATCORE_PEER_ADDR")

	cfg := &Config{Peers: []PeerConfig{{Address: "${NEATCORE_PEER_ADDR}"}}}
	SubstituteEnvVarsInConfig(cfg)
	assert.Equal(t, "10.0.0.5:9000", cfg.Peers[0].Address)
}

func TestApplyEnvironmentOverrides(t *testing.T) {
	os.Setenv("NEATCORE_CONTROL_ADDR", ":9090")
	defer os.Unsetenv("NEATCORE_CONTROL_ADDR")

	cfg := &Config{}
	applyEnvironmentOverrides(cfg)
	assert.Equal(t, ":9090", cfg.Control.BindAddr)
}

func TestGetEnvironmentDefaultsToDevelopment(t *testing.T) {
	os.Unsetenv("NEATCORE_ENV")
	os.Unsetenv("ENVIRONMENT")
	assert.Equal(t, "development", GetEnvironment())
}
