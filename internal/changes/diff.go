package changes

import (
	"fmt"
	"log/slog"

	"git.home.luguber.info/inful/extrunner/internal/config"
	"git.home.luguber.info/inful/extrunner/internal/foundation/errors"
	"git.home.luguber.info/inful/extrunner/internal/logfields"
	"git.home.luguber.info/inful/extrunner/internal/manifest"
	"git.home.luguber.info/inful/extrunner/internal/state"
)

// Comparison holds the field-level differences between a prior and a current manifest.
type Comparison struct {
	RepositoryChanged bool
	// SourceChanged is set when the repository or the commit differ. A new repository
	// always counts as new source even at an identical commit hash.
	SourceChanged      bool
	BuildConfigChanged bool
	OwnersChanged      bool
}

// Compare computes the differences between two manifests.
func Compare(oldManifest, newManifest manifest.BuildManifest) Comparison {
	repositoryChanged := oldManifest.Repository != newManifest.Repository
	return Comparison{
		RepositoryChanged: repositoryChanged,
		SourceChanged:     repositoryChanged || oldManifest.Commit != newManifest.Commit,
		BuildConfigChanged: manifest.HasChanged(oldManifest.Scripts, newManifest.Scripts) ||
			oldManifest.Output != newManifest.Output,
		OwnersChanged: manifest.HasChanged(oldManifest.Owners, newManifest.Owners),
	}
}

// Inputs are the loaded manifests and prior state a run starts from.
type Inputs struct {
	Entries  []manifest.Entry
	Failures []manifest.LoadFailure
	Previous state.BuildState
	Author   *Author
	Mode     config.Mode
}

// Compute builds the RunnerState for a run: run-level findings, then one change per
// extension that needs one. An unsafe repository URL aborts with an error.
func Compute(in Inputs) (*RunnerState, error) {
	rs := NewRunnerState(in.Author, in.Previous)

	if in.Mode == config.ModePR && in.Author == nil {
		rs.AddRunWarning(RunWarnMissingAuthor)
	}
	for _, f := range in.Failures {
		slog.Warn("Failed to parse build manifest", logfields.Extension(f.ID), logfields.Error(f.Err))
		rs.AddRunError(RunError{Type: RunErrParseManifestFailed, Ext: f.ID, Err: f.Err.Error()})
	}

	if err := Diff(rs, in.Entries, DiffOptions{
		RebuildAll: in.Mode.ForcesRebuild(),
		Unparsed:   failedIDs(in.Failures),
	}); err != nil {
		return nil, err
	}
	return rs, nil
}

// DiffOptions tune Diff.
type DiffOptions struct {
	// RebuildAll turns every existing extension into an update.
	RebuildAll bool
	// Unparsed lists extensions whose manifest exists but failed to parse. They are
	// never treated as removed.
	Unparsed map[string]bool
}

// Diff classifies every manifest against rs.OldBuildState and records the changes in rs.
func Diff(rs *RunnerState, entries []manifest.Entry, opts DiffOptions) error {
	current := make(map[string]bool, len(entries))

	for _, e := range entries {
		if err := manifest.CheckRepositoryURL(e.Manifest.Repository); err != nil {
			return errors.ValidationError(fmt.Sprintf("extension %s has an unsafe repository", e.ID)).
				WithCause(err).
				WithContext("extension", e.ID).
				WithContext("repository", e.Manifest.Repository).
				Build()
		}
		current[e.ID] = true

		prev, existed := rs.OldBuildState[e.ID]
		if !existed {
			rs.SetChange(e.ID, diffAdd(e.Manifest, rs.Author))
			continue
		}
		if c := diffExisting(prev.Manifest, e.Manifest, rs.Author, opts.RebuildAll); c != nil {
			rs.SetChange(e.ID, c)
		}
	}

	for _, id := range rs.OldBuildState.IDs() {
		if current[id] || opts.Unparsed[id] {
			continue
		}
		rs.SetChange(id, NewRemove(rs.OldBuildState[id].Manifest))
	}
	return nil
}

func diffAdd(m manifest.BuildManifest, author *Author) *Change {
	c := NewAdd(m)
	switch {
	case m.Owners == nil:
		c.Warnings = append(c.Warnings, Warning(WarnNoOwnersSpecified))
	case author != nil && !AuthorCanEdit(m, *author):
		c.Warnings = append(c.Warnings, Warning(WarnAuthorNotInOwners))
	}
	return c
}

// diffExisting returns nil when nothing relevant changed.
func diffExisting(oldManifest, newManifest manifest.BuildManifest, author *Author, rebuildAll bool) *Change {
	cmp := Compare(oldManifest, newManifest)

	var c *Change
	switch {
	case rebuildAll || cmp.SourceChanged || cmp.BuildConfigChanged:
		c = NewUpdate(oldManifest, newManifest)
	case cmp.OwnersChanged:
		c = NewUpdateNoBuild(oldManifest, newManifest)
	default:
		return nil
	}

	if newManifest.Owners == nil {
		c.Warnings = append(c.Warnings, Warning(WarnNoOwnersSpecified))
	}
	if cmp.RepositoryChanged {
		c.Warnings = append(c.Warnings, Warning(WarnRepositoryChanged))
	}
	if cmp.BuildConfigChanged {
		c.Warnings = append(c.Warnings, Warning(WarnBuildConfigChanged))
	}
	if cmp.OwnersChanged {
		c.Warnings = append(c.Warnings, Warning(WarnOwnersChanged))
	}
	if author != nil {
		ownerForOld := AuthorCanEdit(oldManifest, *author)
		ownerForNew := AuthorCanEdit(newManifest, *author)
		if !ownerForNew {
			c.Warnings = append(c.Warnings, Warning(WarnAuthorNotInOwners))
		}
		if !ownerForOld && ownerForNew {
			c.Warnings = append(c.Warnings, Warning(WarnAuthorAddedToOwners))
		}
	}
	return c
}

func failedIDs(failures []manifest.LoadFailure) map[string]bool {
	out := make(map[string]bool, len(failures))
	for _, f := range failures {
		out[f.ID] = true
	}
	return out
}
