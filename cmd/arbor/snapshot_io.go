package main

import (
	"os"

	"gopkg.in/yaml.v3"

	"github.com/arborcrdt/arbor"
)

// writeSnapshot persists snap as YAML, the same format config.PeerConfig
// files use, so a demo snapshot can be hand-edited for experimentation.
func writeSnapshot(path string, snap arbor.Snapshot) error {
	data, err := yaml.Marshal(snap.Ops)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

func readSnapshot(path string) (arbor.Snapshot, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return arbor.Snapshot{}, err
	}
	var ops []arbor.Operation
	if err := yaml.Unmarshal(data, &ops); err != nil {
		return arbor.Snapshot{}, err
	}
	return arbor.Snapshot{Ops: ops}, nil
}
