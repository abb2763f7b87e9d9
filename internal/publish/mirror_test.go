package publish

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/extrunner/internal/changes"
	"git.home.luguber.info/inful/extrunner/internal/config"
	"git.home.luguber.info/inful/extrunner/internal/manifest"
	"git.home.luguber.info/inful/extrunner/internal/retry"
	"git.home.luguber.info/inful/extrunner/internal/state"
)

type fakeStore struct {
	puts     map[string]string
	removed  []string
	failures int
}

func (f *fakeStore) PutFile(_ context.Context, key, path, _ string) error {
	if f.failures > 0 {
		f.failures--
		return errors.New("connection reset")
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if f.puts == nil {
		f.puts = map[string]string{}
	}
	f.puts[key] = string(data)
	return nil
}

func (f *fakeStore) Remove(_ context.Context, key string) error {
	f.removed = append(f.removed, key)
	return nil
}

func fastPolicy(retries int) retry.Policy {
	return retry.NewPolicy(config.RetryBackoffFixed, time.Millisecond, time.Millisecond, retries)
}

func seedDist(t *testing.T, files map[string]string) string {
	t.Helper()
	dist := t.TempDir()
	for name, content := range files {
		p := filepath.Join(dist, name)
		require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o750))
		require.NoError(t, os.WriteFile(p, []byte(content), 0o600))
	}
	return dist
}

func runState() *changes.RunnerState {
	foo := manifest.BuildManifest{Repository: "https://github.com/a/foo", Commit: "a"}
	bar := manifest.BuildManifest{Repository: "https://github.com/a/bar", Commit: "b"}
	baz := manifest.BuildManifest{Repository: "https://github.com/a/baz", Commit: "c"}
	rs := changes.NewRunnerState(nil, state.BuildState{"baz": {Manifest: baz}})
	rs.SetChange("foo", changes.NewAdd(foo))
	rs.SetChange("bar", changes.NewAdd(bar))
	rs.SetChange("baz", changes.NewRemove(baz))
	rs.AddError("bar", changes.NewError(changes.ErrScriptFailed, "exit 1"))
	return rs
}

func TestMirrorSync(t *testing.T) {
	dist := seedDist(t, map[string]string{
		"exts/foo.asar": "foo-archive",
		"state.json":    "{}",
	})
	store := &fakeStore{}
	m := NewMirror(store, fastPolicy(0), dist, "/mirror/")

	require.NoError(t, m.Sync(t.Context(), runState()))

	assert.Equal(t, map[string]string{
		"mirror/exts/foo.asar": "foo-archive",
		"mirror/state.json":    "{}",
	}, store.puts)
	assert.Equal(t, []string{"mirror/exts/baz.asar"}, store.removed)
}

func TestMirrorSyncRetries(t *testing.T) {
	dist := seedDist(t, map[string]string{"exts/foo.asar": "x", "state.json": "{}"})
	store := &fakeStore{failures: 2}
	m := NewMirror(store, fastPolicy(2), dist, "")

	require.NoError(t, m.Sync(t.Context(), runState()))
	assert.Contains(t, store.puts, "exts/foo.asar")
	assert.Contains(t, store.puts, "state.json")
}

func TestMirrorSyncStopsBeforeState(t *testing.T) {
	dist := seedDist(t, map[string]string{"state.json": "{}"})
	store := &fakeStore{}
	m := NewMirror(store, fastPolicy(0), dist, "")

	err := m.Sync(t.Context(), runState())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "exts/foo.asar")
	assert.NotContains(t, store.puts, "state.json")
}
