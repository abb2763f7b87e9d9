// Package group partitions buildable changes into build groups, one per distinct
// (repository, commit, scripts) combination, and defines the files exchanged with the
// sandbox for each group.
package group

import (
	"bytes"
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"

	"git.home.luguber.info/inful/extrunner/internal/changes"
	"git.home.luguber.info/inful/extrunner/internal/workspace"
)

// DefaultScript is run when a manifest lists no scripts.
const DefaultScript = "build"

// DefaultOutput is the output directory used when a manifest does not set one.
func DefaultOutput(ext string) string {
	return "dist/" + ext
}

// Key identifies a group. Identical inputs always give the same key.
func Key(repository, commit string, scripts []string) string {
	return repository + "-" + commit + "-" + encodeScripts(scripts)
}

// encodeScripts renders the list as compact JSON without HTML escaping.
func encodeScripts(scripts []string) string {
	if scripts == nil {
		scripts = []string{}
	}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(scripts); err != nil {
		// A []string always encodes.
		panic(fmt.Sprintf("encoding scripts: %v", err))
	}
	return strings.TrimSuffix(buf.String(), "\n")
}

// Group is one sandbox build shared by every extension with the same key.
type Group struct {
	Index      int
	Key        string
	Repository string
	Commit     string
	Scripts    []string
	// Extensions lists members in the order they were added.
	Extensions []string
	// Outputs maps each member to its output directory relative to the source checkout.
	Outputs map[string]string
	// Directory is the group directory as seen by the runner, HostDirectory as seen by
	// the container daemon.
	Directory     string
	HostDirectory string
}

// Instructions returns what the sandbox needs to know about the group.
func (g *Group) Instructions() Instructions {
	return Instructions{
		Repository: g.Repository,
		Commit:     g.Commit,
		Scripts:    g.Scripts,
		Outputs:    g.Outputs,
	}
}

// SourceDir is the checkout directory on the runner side.
func (g *Group) SourceDir() string { return filepath.Join(g.Directory, SourceDir) }

// OutputDir is the directory the build phase writes archives to, on the runner side.
func (g *Group) OutputDir() string { return filepath.Join(g.Directory, OutputDir) }

// ArchivePath is where the build phase leaves the archive of ext.
func (g *Group) ArchivePath(ext string) string {
	return filepath.Join(g.OutputDir(), ext+ArchiveExt)
}

// Plan is the ordered list of groups for a run.
type Plan struct {
	Groups []*Group
}

// NewPlan groups the buildable changes, visiting entries in order. Remove and
// updateNoBuild changes are skipped.
func NewPlan(entries []changes.Entry, layout workspace.Layout) *Plan {
	p := &Plan{}
	byKey := map[string]*Group{}

	for _, e := range entries {
		if e.Change == nil || !e.Change.Type.Builds() || e.Change.NewManifest == nil {
			continue
		}
		m := e.Change.NewManifest

		scripts := m.Scripts
		if scripts == nil {
			scripts = []string{DefaultScript}
		}
		output := m.Output
		if output == "" {
			output = DefaultOutput(e.ID)
		}

		key := Key(m.Repository, m.Commit, scripts)
		g, ok := byKey[key]
		if !ok {
			index := len(p.Groups)
			dir, hostDir := layout.Group(index)
			g = &Group{
				Index:         index,
				Key:           key,
				Repository:    m.Repository,
				Commit:        m.Commit,
				Scripts:       append([]string(nil), scripts...),
				Outputs:       map[string]string{},
				Directory:     dir,
				HostDirectory: hostDir,
			}
			byKey[key] = g
			p.Groups = append(p.Groups, g)
		}
		g.Extensions = append(g.Extensions, e.ID)
		g.Outputs[e.ID] = output
	}
	return p
}

// Prepare creates a fresh, empty directory for every group.
func (p *Plan) Prepare() error {
	for _, g := range p.Groups {
		if err := workspace.EnsureDir(g.Directory, true); err != nil {
			return fmt.Errorf("preparing group %d: %w", g.Index, err)
		}
	}
	return nil
}

// Members returns the number of extensions across all groups.
func (p *Plan) Members() int {
	n := 0
	for _, g := range p.Groups {
		n += len(g.Extensions)
	}
	return n
}
