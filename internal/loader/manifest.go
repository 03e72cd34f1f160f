package loader

import (
	"fmt"
	"os"

	"github.com/BurntSushi/toml"
)

// Manifest is the on-disk artifact declaration for a tarball origin.
type Manifest struct {
	Artifacts []Artifact `toml:"artifacts"`
}

// ReadManifest decodes an artifact manifest from a TOML file.
func ReadManifest(path string) ([]Artifact, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open manifest file: %w", err)
	}

	var m Manifest
	if err := toml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("failed to decode manifest %s: %w", path, err)
	}
	if len(m.Artifacts) == 0 {
		return nil, fmt.Errorf("manifest %s declares no artifacts", path)
	}
	return m.Artifacts, nil
}
