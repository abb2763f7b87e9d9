package workspace

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"

	"git.home.luguber.info/inful/extrunner/internal/logfields"
)

const dirMode = 0o750

// Subdirectories of the work directory.
const (
	GroupDir  = "group"
	StoreDir  = "store"
	OutputDir = "output"
)

// EnsureDir creates dir if missing. With clean set the existing content is removed but
// the directory itself is kept, since it may be a mount point.
func EnsureDir(dir string, clean bool) error {
	info, err := os.Stat(dir)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		if err := os.MkdirAll(dir, dirMode); err != nil {
			return fmt.Errorf("failed to create %s: %w", dir, err)
		}
		return nil
	case err != nil:
		return fmt.Errorf("failed to stat %s: %w", dir, err)
	case !info.IsDir():
		return fmt.Errorf("%s exists and is not a directory", dir)
	}
	if clean {
		return CleanDir(dir)
	}
	return nil
}

// CleanDir removes everything inside dir.
func CleanDir(dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", dir, err)
	}
	for _, e := range entries {
		if err := os.RemoveAll(filepath.Join(dir, e.Name())); err != nil {
			return fmt.Errorf("failed to clean %s: %w", dir, err)
		}
	}
	return nil
}

// Layout resolves the work tree both as the runner sees it and as the container daemon sees it.
type Layout struct {
	Work     string
	WorkHost string
}

// NewLayout returns a layout. An empty host path means both views are identical.
func NewLayout(work, workHost string) Layout {
	if workHost == "" {
		workHost = work
	}
	return Layout{Work: work, WorkHost: workHost}
}

func (l Layout) Output() string { return filepath.Join(l.Work, OutputDir) }

func (l Layout) Groups() string { return filepath.Join(l.Work, GroupDir) }

// Group returns the local and host paths of the directory for the group at index.
func (l Layout) Group(index int) (local, host string) {
	name := fmt.Sprintf("%d", index)
	return filepath.Join(l.Work, GroupDir, name), filepath.Join(l.WorkHost, GroupDir, name)
}

// Store returns the local and host paths of the package store. A non-empty key gives a
// store private to one group.
func (l Layout) Store(key string) (local, host string) {
	if key == "" {
		return filepath.Join(l.Work, StoreDir), filepath.Join(l.WorkHost, StoreDir)
	}
	return filepath.Join(l.Work, StoreDir, key), filepath.Join(l.WorkHost, StoreDir, key)
}

// Prepare resets the work directory at the start of a run.
func (l Layout) Prepare() error {
	if err := EnsureDir(l.Work, true); err != nil {
		return err
	}
	for _, dir := range []string{l.Output(), l.Groups()} {
		if err := EnsureDir(dir, false); err != nil {
			return err
		}
	}
	slog.Debug("Prepared work directory", logfields.Path(l.Work))
	return nil
}

// Cleanup removes intermediate group and store data after a successful run.
// The output directory is kept.
func (l Layout) Cleanup() error {
	for _, dir := range []string{l.Groups(), filepath.Join(l.Work, StoreDir)} {
		if err := os.RemoveAll(dir); err != nil {
			return fmt.Errorf("failed to cleanup %s: %w", dir, err)
		}
	}
	slog.Info("Cleaned up work directory", logfields.Path(l.Work))
	return nil
}

// CopyFile copies src to dst through a temporary file in the destination directory.
func CopyFile(src, dst string) (err error) {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer func() { _ = in.Close() }()

	tmp, err := os.CreateTemp(filepath.Dir(dst), "."+filepath.Base(dst)+".*")
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = os.Remove(tmp.Name())
		}
	}()

	if _, err = io.Copy(tmp, in); err != nil {
		_ = tmp.Close()
		return err
	}
	if err = tmp.Close(); err != nil {
		return err
	}
	if err = os.Chmod(tmp.Name(), 0o644); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), dst)
}
