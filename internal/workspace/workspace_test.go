package workspace

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEnsureDir(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "a", "b")
	require.NoError(t, EnsureDir(dir, false))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "keep"), []byte("x"), 0o600))

	require.NoError(t, EnsureDir(dir, false))
	assert.FileExists(t, filepath.Join(dir, "keep"))

	require.NoError(t, EnsureDir(dir, true))
	assert.NoFileExists(t, filepath.Join(dir, "keep"))
	assert.DirExists(t, dir)

	file := filepath.Join(t.TempDir(), "file")
	require.NoError(t, os.WriteFile(file, nil, 0o600))
	require.Error(t, EnsureDir(file, false))
}

func TestLayoutPaths(t *testing.T) {
	l := NewLayout("/moonlight/work", "/home/ci/work")

	local, host := l.Group(3)
	assert.Equal(t, "/moonlight/work/group/3", local)
	assert.Equal(t, "/home/ci/work/group/3", host)

	local, host = l.Store("")
	assert.Equal(t, "/moonlight/work/store", local)
	assert.Equal(t, "/home/ci/work/store", host)

	local, _ = l.Store("0")
	assert.Equal(t, "/moonlight/work/store/0", local)

	same := NewLayout("/w", "")
	assert.Equal(t, "/w", same.WorkHost)
}

func TestPrepareAndCleanup(t *testing.T) {
	work := filepath.Join(t.TempDir(), "work")
	require.NoError(t, os.MkdirAll(filepath.Join(work, "stale"), 0o750))

	l := NewLayout(work, "")
	require.NoError(t, l.Prepare())
	assert.NoDirExists(t, filepath.Join(work, "stale"))
	assert.DirExists(t, l.Output())
	assert.DirExists(t, l.Groups())

	store, _ := l.Store("")
	require.NoError(t, EnsureDir(store, false))
	require.NoError(t, l.Cleanup())
	assert.NoDirExists(t, l.Groups())
	assert.NoDirExists(t, store)
	assert.DirExists(t, l.Output())
}
