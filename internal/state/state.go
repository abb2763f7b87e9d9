// Package state persists the build state: the last successfully built version and build
// manifest of every published extension.
package state

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"maps"
	"os"
	"path/filepath"
	"slices"

	"git.home.luguber.info/inful/extrunner/internal/manifest"
)

// FileName is the build state file inside the dist directory.
const FileName = "state.json"

// ExtensionState is the persisted record of one extension. Its JSON shape is consumed by
// the extension repository and must stay stable.
type ExtensionState struct {
	Version  *string                `json:"version,omitempty"`
	Manifest manifest.BuildManifest `json:"manifest"`
}

// BuildState maps extension IDs to their state.
type BuildState map[string]ExtensionState

// Path returns the location of the build state under distDir.
func Path(distDir string) string {
	return filepath.Join(distDir, FileName)
}

// Load reads the build state from path. A missing file yields an empty state.
func Load(path string) (BuildState, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return BuildState{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read build state: %w", err)
	}
	bs := BuildState{}
	if err := json.Unmarshal(data, &bs); err != nil {
		return nil, fmt.Errorf("failed to parse build state %s: %w", path, err)
	}
	return bs, nil
}

// Save writes the state atomically, indented by two spaces.
func (bs BuildState) Save(path string) error {
	data, err := json.MarshalIndent(bs, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal build state: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return fmt.Errorf("failed to create state directory: %w", err)
	}
	tempPath := path + ".tmp"
	if err := os.WriteFile(tempPath, data, 0o644); err != nil {
		return fmt.Errorf("failed to write temporary state file: %w", err)
	}
	if err := os.Rename(tempPath, path); err != nil {
		_ = os.Remove(tempPath)
		return fmt.Errorf("failed to replace state file: %w", err)
	}
	return nil
}

// Clone returns a deep copy.
func (bs BuildState) Clone() BuildState {
	out := make(BuildState, len(bs))
	for id, es := range bs {
		out[id] = es.clone()
	}
	return out
}

// IDs returns the extension IDs in sorted order.
func (bs BuildState) IDs() []string {
	return slices.Sorted(maps.Keys(bs))
}

func (es ExtensionState) clone() ExtensionState {
	c := es
	if es.Version != nil {
		v := *es.Version
		c.Version = &v
	}
	c.Manifest.Owners = slices.Clone(es.Manifest.Owners)
	c.Manifest.Scripts = slices.Clone(es.Manifest.Scripts)
	return c
}
