package changes

import (
	"encoding/json"
	"fmt"
	"maps"
	"os"
	"path/filepath"
	"slices"
	"sync"

	"git.home.luguber.info/inful/extrunner/internal/manifest"
	"git.home.luguber.info/inful/extrunner/internal/state"
)

// Author identifies who triggered the run. It is taken from CI as given.
type Author struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	PR       string `json:"pr,omitempty"`
}

// RunnerState is the state of one run. BuildState starts as a deep copy of OldBuildState
// and is edited as groups finish. Changes are kept in Order: additions and updates in
// manifest order, then removals.
//
// Methods are safe for concurrent use. Fields are read directly only once all groups are done.
type RunnerState struct {
	mu sync.Mutex

	Author        *Author            `json:"author,omitempty"`
	Warnings      []RunWarning       `json:"warnings"`
	Errors        []RunError         `json:"errors"`
	OldBuildState state.BuildState   `json:"oldBuildState"`
	BuildState    state.BuildState   `json:"buildState"`
	Changes       map[string]*Change `json:"changes"`
	Order         []string           `json:"order"`
}

// NewRunnerState starts a run from the previously persisted build state.
func NewRunnerState(author *Author, old state.BuildState) *RunnerState {
	if old == nil {
		old = state.BuildState{}
	}
	return &RunnerState{
		Author:        author,
		Warnings:      []RunWarning{},
		Errors:        []RunError{},
		OldBuildState: old,
		BuildState:    old.Clone(),
		Changes:       map[string]*Change{},
		Order:         []string{},
	}
}

// Entry pairs an extension ID with its change.
type Entry struct {
	ID     string
	Change *Change
}

func (rs *RunnerState) AddRunWarning(t RunWarningType) {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	rs.Warnings = append(rs.Warnings, RunWarning{Type: t})
}

func (rs *RunnerState) AddRunError(e RunError) {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	rs.Errors = append(rs.Errors, e)
}

// SetChange records the change for ext, keeping the first position if it already exists.
func (rs *RunnerState) SetChange(ext string, c *Change) {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	if _, ok := rs.Changes[ext]; !ok {
		rs.Order = append(rs.Order, ext)
	}
	rs.Changes[ext] = c
}

// Change returns the change for ext, or nil.
func (rs *RunnerState) Change(ext string) *Change {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	return rs.Changes[ext]
}

// AddError attaches an error to the change for ext. It reports false when there is no such change.
func (rs *RunnerState) AddError(ext string, e ExtensionError) bool {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	c, ok := rs.Changes[ext]
	if !ok {
		return false
	}
	c.Errors = append(c.Errors, e)
	return true
}

// AddWarning attaches a warning to the change for ext. It reports false when there is no such change.
func (rs *RunnerState) AddWarning(ext string, w ExtensionWarning) bool {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	c, ok := rs.Changes[ext]
	if !ok {
		return false
	}
	c.Warnings = append(c.Warnings, w)
	return true
}

// RecordBuild stores the freshly built state of ext.
func (rs *RunnerState) RecordBuild(ext string, es state.ExtensionState) {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	rs.BuildState[ext] = es
}

// UpdateManifest replaces the manifest of ext in the new build state, keeping its version.
// It reports false when ext has no state yet.
func (rs *RunnerState) UpdateManifest(ext string, m manifest.BuildManifest) bool {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	cur, ok := rs.BuildState[ext]
	if !ok {
		return false
	}
	cur.Manifest = m
	rs.BuildState[ext] = cur
	return true
}

// Forget drops ext from the new build state.
func (rs *RunnerState) Forget(ext string) {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	delete(rs.BuildState, ext)
}

// OldVersion returns the version ext had before this run.
func (rs *RunnerState) OldVersion(ext string) *string {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	if es, ok := rs.OldBuildState[ext]; ok {
		return es.Version
	}
	return nil
}

// Entries returns the changes in run order.
func (rs *RunnerState) Entries() []Entry {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	out := make([]Entry, 0, len(rs.Order))
	for _, id := range rs.Order {
		out = append(out, Entry{ID: id, Change: rs.Changes[id]})
	}
	return out
}

// Failed reports whether the run has any run error or any change error.
func (rs *RunnerState) Failed() bool {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	if len(rs.Errors) > 0 {
		return true
	}
	for _, c := range rs.Changes {
		if len(c.Errors) > 0 {
			return true
		}
	}
	return false
}

// Counts tallies change outcomes.
type Counts struct {
	Total    int
	Success  int
	Warnings int
	Failed   int
}

func (rs *RunnerState) Counts() Counts {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	var n Counts
	for _, c := range rs.Changes {
		n.Total++
		switch c.Outcome() {
		case OutcomeFailed:
			n.Failed++
		case OutcomeWarnings:
			n.Warnings++
		default:
			n.Success++
		}
	}
	return n
}

// WriteFile dumps the whole state as JSON for debugging and for re-rendering reports.
func (rs *RunnerState) WriteFile(path string) error {
	rs.mu.Lock()
	data, err := json.MarshalIndent(rs, "", "  ")
	rs.mu.Unlock()
	if err != nil {
		return fmt.Errorf("failed to marshal runner state: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return fmt.Errorf("failed to create directory for runner state: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write runner state: %w", err)
	}
	return nil
}

// ReadFile loads a state written by WriteFile.
func ReadFile(path string) (*RunnerState, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read runner state: %w", err)
	}
	rs := &RunnerState{}
	if err := json.Unmarshal(data, rs); err != nil {
		return nil, fmt.Errorf("failed to parse runner state %s: %w", path, err)
	}
	if rs.Changes == nil {
		rs.Changes = map[string]*Change{}
	}
	if len(rs.Order) != len(rs.Changes) {
		rs.Order = slices.Sorted(maps.Keys(rs.Changes))
	}
	return rs, nil
}
