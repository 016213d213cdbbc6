// Package config loads a Peer's settings from environment variables with an
// optional YAML file override, following the env-first /
// YAML-override / DefaultConfig three-tier pattern used elsewhere in the
// retrieval pack for comparable small config surfaces.
package config

import (
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// PeerConfig controls one Peer's identity and operational parameters.
type PeerConfig struct {
	// PeerID is this replica's globally unique identifier. Empty means
	// "generate one" (see Peer construction, which falls back to a
	// google/uuid v4 string).
	PeerID string `yaml:"peer_id"`

	// RootID is loaded from ARBOR_ROOT_ID or the root_id YAML key. Peer
	// construction does not read it: every Peer uses the arbor package's
	// RootID constant as the root sentinel.
	RootID string `yaml:"root_id"`

	// LogLevel is one of "debug", "info", "warn", "error".
	LogLevel string `yaml:"log_level"`

	// SnapshotPath, if set, is where the demo CLI persists a Peer.Snapshot
	// between runs. The core itself never reads or writes this path.
	SnapshotPath string `yaml:"snapshot_path"`
}

// DefaultConfig returns the zero-configuration defaults: no fixed peer id
// (one is generated), the package's reserved root, info-level logging, and
// no snapshot persistence.
func DefaultConfig() *PeerConfig {
	return &PeerConfig{
		LogLevel: "info",
	}
}

// Environment variable names read by LoadFromEnv.
const (
	envPeerID       = "ARBOR_PEER_ID"
	envRootID       = "ARBOR_ROOT_ID"
	envLogLevel     = "ARBOR_LOG_LEVEL"
	envSnapshotPath = "ARBOR_SNAPSHOT_PATH"
)

// LoadFromEnv loads configuration from environment variables, falling back
// to DefaultConfig for anything unset. This is the recommended path for
// container deployments of the demo CLI.
func LoadFromEnv() *PeerConfig {
	cfg := DefaultConfig()

	if v := os.Getenv(envPeerID); v != "" {
		cfg.PeerID = v
	}
	if v := os.Getenv(envRootID); v != "" {
		cfg.RootID = v
	}
	if v := os.Getenv(envLogLevel); v != "" {
		cfg.LogLevel = strings.ToLower(strings.TrimSpace(v))
	}
	if v := os.Getenv(envSnapshotPath); v != "" {
		cfg.SnapshotPath = v
	}

	return cfg
}

// LoadFile loads configuration from a YAML file, layered on top of
// LoadFromEnv so a file can override environment defaults field-by-field.
func LoadFile(path string) (*PeerConfig, error) {
	cfg := LoadFromEnv()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}
