package worker

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"maps"
	"os"
	"path"
	"path/filepath"
	"slices"
	"strings"

	"git.home.luguber.info/inful/extrunner/internal/asar"
	"git.home.luguber.info/inful/extrunner/internal/group"
	"git.home.luguber.info/inful/extrunner/internal/logfields"
	"git.home.luguber.info/inful/extrunner/internal/manifest"
	"git.home.luguber.info/inful/extrunner/internal/workspace"
)

// ErrPathTraversal is returned for output paths that could leave the source checkout.
var ErrPathTraversal = errors.New("detected possible path traversal")

// Checkouter places a repository at a commit into a directory.
type Checkouter interface {
	Checkout(ctx context.Context, dir, url, commit string) error
}

// Worker runs one phase against the mounted group directory.
type Worker struct {
	GroupDir string
	Git      Checkouter
	Packages PackageManager
}

func (w *Worker) sourceDir() string { return filepath.Join(w.GroupDir, group.SourceDir) }
func (w *Worker) outputDir() string { return filepath.Join(w.GroupDir, group.OutputDir) }

// Fetch checks out the source and fetches dependencies. It starts a fresh result.
// Only failures to read instructions or write the result are returned.
func (w *Worker) Fetch(ctx context.Context) error {
	in, err := group.ReadInstructions(w.GroupDir)
	if err != nil {
		return err
	}
	res := group.EmptyResult()

	src := w.sourceDir()
	if err := workspace.EnsureDir(src, true); err != nil {
		return err
	}

	if err := w.Git.Checkout(ctx, src, in.Repository, in.Commit); err != nil {
		slog.Error("Failed to clone", logfields.Repository(in.Repository), logfields.Commit(in.Commit), logfields.Error(err))
		res.AddError(group.ResultError{Type: group.ResultCloneFailed, Err: err.Error()})
		return group.WriteResult(w.GroupDir, res)
	}

	if err := w.Packages.Fetch(ctx, src); err != nil {
		slog.Error("Failed to fetch dependencies", logfields.Error(err))
		res.AddError(group.ResultError{Type: group.ResultFetchFailed, Err: err.Error()})
	}
	return group.WriteResult(w.GroupDir, res)
}

// Build installs offline, runs the scripts in order and packages every output. It
// continues from the result the fetch phase left.
func (w *Worker) Build(ctx context.Context) error {
	in, err := group.ReadInstructions(w.GroupDir)
	if err != nil {
		return err
	}
	res, err := group.ReadResult(w.GroupDir)
	if err != nil {
		return err
	}
	if res.Failed() {
		slog.Warn("Fetch reported errors, not building", logfields.Count(len(res.Errors)))
		return group.WriteResult(w.GroupDir, res)
	}

	src := w.sourceDir()
	if err := w.Packages.Install(ctx, src); err != nil {
		slog.Error("Failed to install", logfields.Error(err))
		res.AddError(group.ResultError{Type: group.ResultInstallFailed, Err: err.Error()})
		return group.WriteResult(w.GroupDir, res)
	}

	for _, script := range in.Scripts {
		slog.Info("Running script", logfields.Script(script))
		if err := w.Packages.RunScript(ctx, src, script); err != nil {
			slog.Error("Failed to run script", logfields.Script(script), logfields.Error(err))
			res.AddError(group.ResultError{Type: group.ResultScriptFailed, Script: script, Err: err.Error()})
			return group.WriteResult(w.GroupDir, res)
		}
	}

	for _, ext := range slices.Sorted(maps.Keys(in.Outputs)) {
		m, err := w.pack(ext, in.Outputs[ext])
		if err != nil {
			slog.Error("Failed to package", logfields.Extension(ext), logfields.Error(err))
			res.AddError(group.ResultError{Type: group.ResultPackageFailed, Ext: ext, Err: err.Error()})
			continue
		}
		res.Manifests[ext] = m
		slog.Info("Packaged extension", logfields.Extension(ext))
	}
	return group.WriteResult(w.GroupDir, res)
}

// pack validates the output directory of ext and writes its archive.
func (w *Worker) pack(ext, output string) (manifest.ExtensionManifest, error) {
	src := w.sourceDir()
	dir, err := ResolveOutput(src, output)
	if err != nil {
		return manifest.ExtensionManifest{}, err
	}

	info, err := os.Stat(dir)
	if err != nil || !info.IsDir() {
		return manifest.ExtensionManifest{}, fmt.Errorf("missing output directory: %s", dir)
	}
	manifestPath := filepath.Join(dir, group.ManifestFile)
	data, err := os.ReadFile(manifestPath)
	if errors.Is(err, fs.ErrNotExist) {
		return manifest.ExtensionManifest{}, fmt.Errorf("missing manifest: %s", manifestPath)
	}
	if err != nil {
		return manifest.ExtensionManifest{}, err
	}
	m, err := manifest.DecodeExtensionManifest(data)
	if err != nil {
		return manifest.ExtensionManifest{}, fmt.Errorf("invalid manifest %s: %w", manifestPath, err)
	}

	if err := asar.Pack(dir, filepath.Join(w.outputDir(), ext+group.ArchiveExt)); err != nil {
		return manifest.ExtensionManifest{}, err
	}
	return m, nil
}

// ResolveOutput maps an output path from the instructions onto a directory inside src.
// Paths that normalize to something starting with "." or to an absolute path are
// rejected, as are outputs whose symlinks lead outside src.
func ResolveOutput(src, output string) (string, error) {
	normalized := path.Clean(filepath.ToSlash(output))
	if strings.HasPrefix(normalized, ".") || path.IsAbs(normalized) {
		return "", fmt.Errorf("%w: %s", ErrPathTraversal, normalized)
	}
	dir := filepath.Join(src, filepath.FromSlash(normalized))

	realSrc, err := filepath.EvalSymlinks(src)
	if err != nil {
		return "", err
	}
	realDir, err := filepath.EvalSymlinks(dir)
	if errors.Is(err, fs.ErrNotExist) {
		// Reported as a missing directory by the caller.
		return dir, nil
	}
	if err != nil {
		return "", err
	}
	rel, err := filepath.Rel(realSrc, realDir)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: %s resolves outside the source", ErrPathTraversal, normalized)
	}
	return dir, nil
}
