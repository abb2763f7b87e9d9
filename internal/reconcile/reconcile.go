package reconcile

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"slices"

	"git.home.luguber.info/inful/extrunner/internal/changes"
	"git.home.luguber.info/inful/extrunner/internal/group"
	"git.home.luguber.info/inful/extrunner/internal/logfields"
	"git.home.luguber.info/inful/extrunner/internal/manifest"
	"git.home.luguber.info/inful/extrunner/internal/observability"
	"git.home.luguber.info/inful/extrunner/internal/state"
	"git.home.luguber.info/inful/extrunner/internal/versioning"
	"git.home.luguber.info/inful/extrunner/internal/workspace"
)

// ExtsDir is the directory under the dist root holding the published archives.
const ExtsDir = "exts"

// MissingArchive is the packageFailed message when a build left no archive behind.
const MissingArchive = "Output .asar does not exist"

// Reconciler applies group outcomes to a RunnerState.
type Reconciler struct {
	// Dist receives published archives, Artifacts receives a copy for CI.
	Dist      string
	Artifacts string
}

func New(distRoot, artifacts string) *Reconciler {
	return &Reconciler{Dist: filepath.Join(distRoot, ExtsDir), Artifacts: artifacts}
}

// ArchivePath is where the published archive of ext lives.
func (r *Reconciler) ArchivePath(ext string) string {
	return filepath.Join(r.Dist, ext+group.ArchiveExt)
}

// ApplyGroup records the outcome of one group. err is an orchestration failure, res the
// last result the group produced. A result whose only errors are packageFailed still
// publishes the members it did not name.
func (r *Reconciler) ApplyGroup(ctx context.Context, rs *changes.RunnerState, g *group.Group, res *group.Result, err error) {
	switch {
	case err != nil:
		Fail(ctx, rs, g, err)
	case res == nil:
		Fail(ctx, rs, g, errors.New("group finished without a result"))
	case res.Failed() && !packageFailuresOnly(res):
		Propagate(ctx, rs, g, res)
	default:
		if res.Failed() {
			Propagate(ctx, rs, g, res)
		}
		_ = r.Apply(ctx, rs, g, res)
	}
}

// Fail attaches an unknown error to every member of g.
func Fail(ctx context.Context, rs *changes.RunnerState, g *group.Group, err error) {
	failExtensions(ctx, rs, g.Extensions, err)
}

func failExtensions(ctx context.Context, rs *changes.RunnerState, exts []string, err error) {
	observability.ErrorContext(ctx, "Group failed", logfields.Error(err), logfields.Count(len(exts)))
	for _, ext := range exts {
		if !rs.AddError(ext, changes.UnknownError(err)) {
			observability.WarnContext(ctx, "No change for group member", logfields.Extension(ext))
			rs.AddRunWarning(changes.RunWarnUnknown)
		}
	}
}

// Propagate attaches the errors a group reported. Phase-wide errors go to every member,
// packageFailed only to the member it names. Errors naming anything else are dropped.
func Propagate(ctx context.Context, rs *changes.RunnerState, g *group.Group, res *group.Result) {
	members := make([]string, 0, len(g.Extensions))
	for _, ext := range g.Extensions {
		if rs.Change(ext) == nil {
			observability.WarnContext(ctx, "No change when propagating errors", logfields.Extension(ext))
			rs.AddRunWarning(changes.RunWarnUnknown)
			continue
		}
		members = append(members, ext)
	}

	for _, e := range res.Errors {
		switch e.Type {
		case group.ResultCloneFailed, group.ResultFetchFailed, group.ResultInstallFailed:
			for _, ext := range members {
				rs.AddError(ext, changes.NewError(changes.ErrorType(e.Type), e.Err))
			}
		case group.ResultScriptFailed:
			for _, ext := range members {
				rs.AddError(ext, changes.ScriptFailed(e.Script, e.Err))
			}
		case group.ResultPackageFailed:
			if !slices.Contains(members, e.Ext) {
				observability.WarnContext(ctx, "packageFailed error for an extension outside the group", logfields.Extension(e.Ext))
				rs.AddRunWarning(changes.RunWarnUnknown)
				continue
			}
			rs.AddError(e.Ext, changes.NewError(changes.ErrPackageFailed, e.Err))
		default:
			// ReadResult rejects unknown types; this only guards hand-built results.
			observability.WarnContext(ctx, "Unknown result error type", slog.String("type", string(e.Type)))
			rs.AddRunWarning(changes.RunWarnUnknown)
		}
	}
}

// Apply records the manifests a group reported for its own members: version and
// manifest warnings, the archive copies and, once the archive is published, the new
// build state. Members named by a packageFailed error are skipped. A copy failure other
// than a missing archive fails that member and every member not yet applied.
func (r *Reconciler) Apply(ctx context.Context, rs *changes.RunnerState, g *group.Group, res *group.Result) error {
	exts := buildable(ctx, rs, g, res)

	for _, dir := range []string{r.Dist, r.Artifacts} {
		if err := workspace.EnsureDir(dir, false); err != nil {
			failExtensions(ctx, rs, exts, err)
			return err
		}
	}

	for i, ext := range exts {
		m := res.Manifests[ext]
		change := rs.Change(ext)
		extCtx := observability.WithExtension(ctx, ext)

		for _, w := range manifestWarnings(ext, m) {
			rs.AddWarning(ext, w)
		}
		for _, w := range versioning.Analyze(change.Type, rs.OldVersion(ext), m.Version) {
			rs.AddWarning(ext, w)
		}

		if err := r.copyArchive(g, ext); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				observability.WarnContext(extCtx, MissingArchive)
				rs.AddError(ext, changes.NewError(changes.ErrPackageFailed, MissingArchive))
				continue
			}
			failExtensions(ctx, rs, exts[i:], err)
			return err
		}

		rs.RecordBuild(ext, state.ExtensionState{Version: m.Version, Manifest: *change.NewManifest})
		observability.InfoContext(extCtx, "Extension built", logfields.Path(r.ArchivePath(ext)))
	}
	return nil
}

func manifestWarnings(ext string, m manifest.ExtensionManifest) []changes.ExtensionWarning {
	var out []changes.ExtensionWarning
	if m.APILevel == nil || *m.APILevel != manifest.CurrentAPILevel {
		out = append(out, changes.InvalidAPILevel(m.APILevel))
	}
	if m.ID != ext {
		out = append(out, changes.InvalidID(m.ID))
	}
	return out
}

// buildable lists, in member order, the reported manifests that may be applied. Entries
// for non-members or for members without a build change become unknown run warnings.
func buildable(ctx context.Context, rs *changes.RunnerState, g *group.Group, res *group.Result) []string {
	failed := make(map[string]bool)
	for _, e := range res.Errors {
		if e.Type == group.ResultPackageFailed {
			failed[e.Ext] = true
		}
	}

	out := make([]string, 0, len(res.Manifests))
	for _, ext := range g.Extensions {
		if _, ok := res.Manifests[ext]; !ok || failed[ext] {
			continue
		}
		change := rs.Change(ext)
		if change == nil || !change.Type.Builds() || change.NewManifest == nil {
			observability.WarnContext(ctx, "Build result for an extension that is not being built", logfields.Extension(ext))
			rs.AddRunWarning(changes.RunWarnUnknown)
			continue
		}
		out = append(out, ext)
	}

	var foreign []string
	for ext := range res.Manifests {
		if !slices.Contains(g.Extensions, ext) {
			foreign = append(foreign, ext)
		}
	}
	slices.Sort(foreign)
	for _, ext := range foreign {
		observability.WarnContext(ctx, "Build result for an extension outside the group", logfields.Extension(ext))
		rs.AddRunWarning(changes.RunWarnUnknown)
	}
	return out
}

func packageFailuresOnly(res *group.Result) bool {
	for _, e := range res.Errors {
		if e.Type != group.ResultPackageFailed {
			return false
		}
	}
	return true
}

func (r *Reconciler) copyArchive(g *group.Group, ext string) error {
	src := g.ArchivePath(ext)
	if _, err := os.Stat(src); err != nil {
		return err
	}
	if err := workspace.CopyFile(src, filepath.Join(r.Artifacts, ext+group.ArchiveExt)); err != nil {
		return fmt.Errorf("copying artifact of %s: %w", ext, err)
	}
	if err := workspace.CopyFile(src, r.ArchivePath(ext)); err != nil {
		return fmt.Errorf("copying archive of %s: %w", ext, err)
	}
	return nil
}

// ApplyManifestOnly updates the recorded manifest of every updateNoBuild change. The
// recorded version stays as it was.
func ApplyManifestOnly(ctx context.Context, rs *changes.RunnerState) {
	for _, e := range rs.Entries() {
		if e.Change.Type != changes.KindUpdateNoBuild || e.Change.NewManifest == nil {
			continue
		}
		if !rs.UpdateManifest(e.ID, *e.Change.NewManifest) {
			observability.WarnContext(ctx, "No recorded state for manifest-only update", logfields.Extension(e.ID))
			rs.AddRunWarning(changes.RunWarnUnknown)
		}
	}
}

// RemoveDeleted deletes the archives of removed extensions and drops them from the
// build state. It runs after every group was attempted. The first failure stops the
// pass and becomes a deleteChangeFailed run error.
func (r *Reconciler) RemoveDeleted(ctx context.Context, rs *changes.RunnerState) {
	if err := r.removeDeleted(ctx, rs); err != nil {
		observability.ErrorContext(ctx, "Failed to delete extensions", logfields.Error(err))
		rs.AddRunError(changes.RunError{Type: changes.RunErrDeleteChangeFailed, Err: err.Error()})
	}
}

func (r *Reconciler) removeDeleted(ctx context.Context, rs *changes.RunnerState) error {
	if err := workspace.EnsureDir(r.Dist, false); err != nil {
		return err
	}
	for _, e := range rs.Entries() {
		if e.Change.Type != changes.KindRemove {
			continue
		}
		if err := os.Remove(r.ArchivePath(e.ID)); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return err
		}
		rs.Forget(e.ID)
		observability.InfoContext(ctx, "Extension deleted", logfields.Extension(e.ID))
	}
	return nil
}
