// Package manifest defines the extension build manifest, the package manifest produced
// by a build, and the schema checks applied to both.
package manifest

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"slices"
	"sort"
	"strings"
)

// CurrentAPILevel is the package API level the client loads.
const CurrentAPILevel = 2

// Reviewers are account IDs allowed to edit any extension regardless of its owners.
var Reviewers = []string{
	"44414597",
	"1606710",
	"42352565",
	"48024900",
}

// ErrUnsafeRepository is returned for repository URLs that are not plain https.
var ErrUnsafeRepository = errors.New("unsafe repository url")

// BuildManifest declares how to build one extension. Owners and Scripts distinguish a
// missing list (nil) from an empty one.
type BuildManifest struct {
	Repository string   `json:"repository"`
	Commit     string   `json:"commit"`
	Owners     []string `json:"owners,omitzero"`
	Scripts    []string `json:"scripts,omitzero"`
	Output     string   `json:"output,omitempty"`
}

// ExtensionManifest is the manifest.json found in a built extension's output directory.
// Unknown fields are tolerated.
type ExtensionManifest struct {
	ID       string         `json:"id"`
	Version  *string        `json:"version,omitempty"`
	APILevel *float64       `json:"apiLevel,omitempty"`
	Meta     *ExtensionMeta `json:"meta,omitempty"`
}

type ExtensionMeta struct {
	Name   *string `json:"name,omitempty"`
	Source *string `json:"source,omitempty"`
}

// Entry is a successfully parsed manifest with its extension ID.
type Entry struct {
	ID       string
	Manifest BuildManifest
}

// LoadFailure records a manifest file that could not be parsed.
type LoadFailure struct {
	ID  string
	Err error
}

// DecodeBuildManifest validates data against the build manifest schema and decodes it.
func DecodeBuildManifest(data []byte) (BuildManifest, error) {
	var m BuildManifest
	if err := Validate(SchemaBuildManifest, data); err != nil {
		return m, err
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&m); err != nil {
		return m, fmt.Errorf("decoding build manifest: %w", err)
	}
	return m, nil
}

// DecodeExtensionManifest validates data against the package manifest schema and decodes it.
func DecodeExtensionManifest(data []byte) (ExtensionManifest, error) {
	var m ExtensionManifest
	if err := Validate(SchemaExtensionManifest, data); err != nil {
		return m, err
	}
	if err := json.Unmarshal(data, &m); err != nil {
		return m, fmt.Errorf("decoding extension manifest: %w", err)
	}
	return m, nil
}

// ManifestsDir returns the directory holding the per-extension manifests.
func ManifestsDir(root string) string {
	return filepath.Join(root, "exts")
}

// LoadDir reads every <id>.json under root/exts in name order. Files that fail to parse
// are returned as failures and do not stop loading.
func LoadDir(root string) ([]Entry, []LoadFailure, error) {
	dir := ManifestsDir(root)
	files, err := os.ReadDir(dir)
	if err != nil {
		return nil, nil, fmt.Errorf("reading manifests directory %s: %w", dir, err)
	}
	sort.Slice(files, func(i, j int) bool { return files[i].Name() < files[j].Name() })

	var entries []Entry
	var failures []LoadFailure
	for _, f := range files {
		if f.IsDir() || !strings.HasSuffix(f.Name(), ".json") {
			continue
		}
		id := strings.TrimSuffix(f.Name(), ".json")
		data, err := os.ReadFile(filepath.Join(dir, f.Name()))
		if err != nil {
			failures = append(failures, LoadFailure{ID: id, Err: err})
			continue
		}
		m, err := DecodeBuildManifest(data)
		if err != nil {
			failures = append(failures, LoadFailure{ID: id, Err: err})
			continue
		}
		entries = append(entries, Entry{ID: id, Manifest: m})
	}
	return entries, failures, nil
}

// CheckRepositoryURL accepts only https URLs without embedded credentials.
func CheckRepositoryURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnsafeRepository, err)
	}
	if u.Scheme != "https" {
		return fmt.Errorf("%w: scheme %q is not https", ErrUnsafeRepository, u.Scheme)
	}
	if u.User != nil {
		return fmt.Errorf("%w: credentials in url", ErrUnsafeRepository)
	}
	return nil
}

// HasChanged compares two optional lists. nil and non-nil differ, otherwise elements are
// compared in order.
func HasChanged(old, current []string) bool {
	if old == nil || current == nil {
		return (old == nil) != (current == nil)
	}
	return !slices.Equal(old, current)
}

// IsReviewer reports whether the account ID belongs to a reviewer.
func IsReviewer(id string) bool {
	return slices.Contains(Reviewers, id)
}
