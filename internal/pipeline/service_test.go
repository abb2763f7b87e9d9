package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/extrunner/internal/changes"
	"git.home.luguber.info/inful/extrunner/internal/config"
	"git.home.luguber.info/inful/extrunner/internal/eventstore"
	ferrors "git.home.luguber.info/inful/extrunner/internal/foundation/errors"
	"git.home.luguber.info/inful/extrunner/internal/group"
	"git.home.luguber.info/inful/extrunner/internal/manifest"
	"git.home.luguber.info/inful/extrunner/internal/notify"
	"git.home.luguber.info/inful/extrunner/internal/report"
	"git.home.luguber.info/inful/extrunner/internal/sandbox"
	"git.home.luguber.info/inful/extrunner/internal/state"
)

const (
	repoFoo = "https://github.com/moonlight-mod/foo"
	repoBaz = "https://github.com/moonlight-mod/baz"
)

// fakeRunner plays the sandbox: it writes an archive for every member and reports the
// manifests, unless fail says otherwise for the group.
type fakeRunner struct {
	mu      sync.Mutex
	groups  []*group.Group
	stores  []sandbox.Store
	fail    func(g *group.Group) (*group.Result, error)
	active  atomic.Int32
	maxSeen atomic.Int32
	delay   time.Duration
}

func (f *fakeRunner) RunGroup(_ context.Context, g *group.Group, store sandbox.Store) (*sandbox.Outcome, error) {
	f.mu.Lock()
	f.groups = append(f.groups, g)
	f.stores = append(f.stores, store)
	f.mu.Unlock()

	n := f.active.Add(1)
	defer f.active.Add(-1)
	for {
		seen := f.maxSeen.Load()
		if n <= seen || f.maxSeen.CompareAndSwap(seen, n) {
			break
		}
	}
	time.Sleep(f.delay)

	tracker := sandbox.NewTracker()
	if f.fail != nil {
		res, err := f.fail(g)
		if res != nil || err != nil {
			tracker.Fail()
			return &sandbox.Outcome{Result: res, Tracker: tracker}, err
		}
	}

	res := group.EmptyResult()
	if err := os.MkdirAll(g.OutputDir(), 0o750); err != nil {
		return nil, err
	}
	for _, ext := range g.Extensions {
		if err := os.WriteFile(g.ArchivePath(ext), []byte("asar:"+ext), 0o600); err != nil {
			return nil, err
		}
		version := "1.0.0"
		level := 2.0
		res.Manifests[ext] = manifest.ExtensionManifest{ID: ext, Version: &version, APILevel: &level}
	}
	for _, st := range []sandbox.Status{sandbox.StatusFetching, sandbox.StatusFetched, sandbox.StatusBuilding, sandbox.StatusBuilt} {
		if err := tracker.Transition(st); err != nil {
			return nil, err
		}
	}
	return &sandbox.Outcome{Result: res, Tracker: tracker}, nil
}

type env struct {
	cfg *config.Config
}

func newEnv(t *testing.T, mode config.Mode) *env {
	t.Helper()
	root := t.TempDir()
	cfg := config.Default()
	cfg.Mode = mode
	cfg.Paths.Manifests = filepath.Join(root, "manifests")
	cfg.Paths.Dist = filepath.Join(root, "dist")
	cfg.Paths.Work = filepath.Join(root, "work")
	cfg.Paths.WorkHost = cfg.Paths.Work
	require.NoError(t, os.MkdirAll(manifest.ManifestsDir(cfg.Paths.Manifests), 0o750))
	return &env{cfg: cfg}
}

func (e *env) writeManifest(t *testing.T, ext string, m manifest.BuildManifest) {
	t.Helper()
	data, err := json.Marshal(m)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(manifest.ManifestsDir(e.cfg.Paths.Manifests), ext+".json"), data, 0o600))
}

func (e *env) writeState(t *testing.T, bs state.BuildState) {
	t.Helper()
	require.NoError(t, bs.Save(state.Path(e.cfg.Paths.Dist)))
}

func (e *env) archive(ext string) string {
	return filepath.Join(e.cfg.Paths.Dist, "exts", ext+".asar")
}

func TestRunAddsNewExtension(t *testing.T) {
	e := newEnv(t, config.ModePush)
	e.writeManifest(t, "foo", manifest.BuildManifest{Repository: repoFoo, Commit: "aaa", Owners: []string{"dev"}})

	runner := &fakeRunner{}
	res, err := NewService(runner).WithRunIDGenerator(func() string { return "run-1" }).Run(t.Context(), e.cfg)
	require.NoError(t, err)

	assert.Equal(t, "run-1", res.RunID)
	assert.False(t, res.Failed)
	require.Len(t, runner.groups, 1)
	assert.Equal(t, changes.KindAdd, res.State.Changes["foo"].Type)

	bs, err := state.Load(state.Path(e.cfg.Paths.Dist))
	require.NoError(t, err)
	require.Contains(t, bs, "foo")
	assert.Equal(t, "1.0.0", *bs["foo"].Version)
	assert.FileExists(t, e.archive("foo"))
	assert.FileExists(t, filepath.Join(e.cfg.Paths.Work, "output", "foo.asar"))
	assert.FileExists(t, filepath.Join(e.cfg.Paths.Work, report.MarkdownFile))
	assert.FileExists(t, filepath.Join(e.cfg.Paths.Work, RunnerStateFile))
	assert.NoDirExists(t, filepath.Join(e.cfg.Paths.Work, "group"), "successful runs clean up")
}

func TestRunSharedGroupBuildsBothArchives(t *testing.T) {
	e := newEnv(t, config.ModePush)
	e.writeManifest(t, "foo", manifest.BuildManifest{Repository: repoFoo, Commit: "aaa", Owners: []string{}})
	e.writeManifest(t, "bar", manifest.BuildManifest{Repository: repoFoo, Commit: "aaa", Owners: []string{}})

	runner := &fakeRunner{}
	res, err := NewService(runner).Run(t.Context(), e.cfg)
	require.NoError(t, err)

	require.Len(t, runner.groups, 1)
	assert.Equal(t, []string{"bar", "foo"}, runner.groups[0].Extensions)
	assert.FileExists(t, e.archive("foo"))
	assert.FileExists(t, e.archive("bar"))
	assert.Len(t, res.State.BuildState, 2)
}

func TestRunRemovesDeletedExtension(t *testing.T) {
	e := newEnv(t, config.ModePush)
	version := "1.0.0"
	e.writeState(t, state.BuildState{
		"baz": {Version: &version, Manifest: manifest.BuildManifest{Repository: repoBaz, Commit: "ccc"}},
	})
	require.NoError(t, os.MkdirAll(filepath.Dir(e.archive("baz")), 0o750))
	require.NoError(t, os.WriteFile(e.archive("baz"), []byte("old"), 0o600))

	runner := &fakeRunner{}
	res, err := NewService(runner).Run(t.Context(), e.cfg)
	require.NoError(t, err)

	assert.Empty(t, runner.groups)
	assert.Equal(t, changes.KindRemove, res.State.Changes["baz"].Type)
	assert.NoFileExists(t, e.archive("baz"))
	bs, err := state.Load(state.Path(e.cfg.Paths.Dist))
	require.NoError(t, err)
	assert.Empty(t, bs)
}

func TestRunOwnersOnlyChangeKeepsVersion(t *testing.T) {
	e := newEnv(t, config.ModePush)
	version := "2.1.0"
	e.writeState(t, state.BuildState{
		"foo": {Version: &version, Manifest: manifest.BuildManifest{Repository: repoFoo, Commit: "aaa", Owners: []string{"a"}}},
	})
	e.writeManifest(t, "foo", manifest.BuildManifest{Repository: repoFoo, Commit: "aaa", Owners: []string{"a", "b"}})

	runner := &fakeRunner{}
	res, err := NewService(runner).Run(t.Context(), e.cfg)
	require.NoError(t, err)

	assert.Empty(t, runner.groups)
	assert.Equal(t, changes.KindUpdateNoBuild, res.State.Changes["foo"].Type)
	bs, err := state.Load(state.Path(e.cfg.Paths.Dist))
	require.NoError(t, err)
	assert.Equal(t, "2.1.0", *bs["foo"].Version)
	assert.Equal(t, []string{"a", "b"}, bs["foo"].Manifest.Owners)
}

func TestRunFailedGroupKeepsOthersAndFails(t *testing.T) {
	e := newEnv(t, config.ModePush)
	e.writeManifest(t, "foo", manifest.BuildManifest{Repository: repoFoo, Commit: "aaa", Owners: []string{}})
	e.writeManifest(t, "baz", manifest.BuildManifest{Repository: repoBaz, Commit: "bbb", Owners: []string{}})

	runner := &fakeRunner{fail: func(g *group.Group) (*group.Result, error) {
		if g.Repository != repoBaz {
			return nil, nil
		}
		res := group.EmptyResult()
		res.AddError(group.ResultError{Type: group.ResultFetchFailed, Err: "lockfile out of date"})
		return res, nil
	}}
	res, err := NewService(runner).Run(t.Context(), e.cfg)
	require.Error(t, err)
	assert.True(t, ferrors.HasCategory(err, ferrors.CategoryBuild))
	require.NotNil(t, res.State)
	assert.True(t, res.Failed)

	assert.Equal(t, changes.ErrFetchFailed, res.State.Changes["baz"].Errors[0].Type)
	assert.Empty(t, res.State.Changes["foo"].Errors)
	assert.FileExists(t, e.archive("foo"))
	assert.NotContains(t, res.State.BuildState, "baz")
	assert.DirExists(t, filepath.Join(e.cfg.Paths.Work, "group"), "failed runs keep group data")

	bs, err := state.Load(state.Path(e.cfg.Paths.Dist))
	require.NoError(t, err)
	assert.Contains(t, bs, "foo", "state is persisted even when the run fails")
}

func TestRunOrchestrationErrorBecomesUnknown(t *testing.T) {
	e := newEnv(t, config.ModePush)
	e.writeManifest(t, "foo", manifest.BuildManifest{Repository: repoFoo, Commit: "aaa", Owners: []string{}})

	runner := &fakeRunner{fail: func(*group.Group) (*group.Result, error) {
		return nil, errors.New("docker daemon unreachable")
	}}
	res, err := NewService(runner).Run(t.Context(), e.cfg)
	require.Error(t, err)
	require.Len(t, res.State.Changes["foo"].Errors, 1)
	assert.Equal(t, changes.ErrUnknown, res.State.Changes["foo"].Errors[0].Type)
}

func TestRunPanicIsContainedToGroup(t *testing.T) {
	e := newEnv(t, config.ModePush)
	e.writeManifest(t, "foo", manifest.BuildManifest{Repository: repoFoo, Commit: "aaa", Owners: []string{}})
	e.writeManifest(t, "baz", manifest.BuildManifest{Repository: repoBaz, Commit: "bbb", Owners: []string{}})

	runner := &fakeRunner{fail: func(g *group.Group) (*group.Result, error) {
		if g.Repository == repoBaz {
			panic("boom")
		}
		return nil, nil
	}}
	res, err := NewService(runner).Run(t.Context(), e.cfg)
	require.Error(t, err)
	assert.Equal(t, changes.ErrUnknown, res.State.Changes["baz"].Errors[0].Type)
	assert.Empty(t, res.State.Changes["foo"].Errors)
}

func TestRunSharedStoreSerializesGroups(t *testing.T) {
	tests := []struct {
		name          string
		storePerGroup bool
		wantMax       int32
	}{
		{name: "shared store", storePerGroup: false, wantMax: 1},
		{name: "store per group", storePerGroup: true, wantMax: 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := newEnv(t, config.ModePush)
			e.cfg.Sandbox.Concurrency = 2
			e.cfg.Sandbox.StorePerGroup = tt.storePerGroup
			e.writeManifest(t, "foo", manifest.BuildManifest{Repository: repoFoo, Commit: "aaa", Owners: []string{}})
			e.writeManifest(t, "baz", manifest.BuildManifest{Repository: repoBaz, Commit: "bbb", Owners: []string{}})

			runner := &fakeRunner{delay: 50 * time.Millisecond}
			_, err := NewService(runner).Run(t.Context(), e.cfg)
			require.NoError(t, err)

			if tt.storePerGroup {
				assert.NotEqual(t, runner.stores[0].Local, runner.stores[1].Local)
			} else {
				assert.Equal(t, runner.stores[0].Local, runner.stores[1].Local)
			}
			assert.LessOrEqual(t, runner.maxSeen.Load(), tt.wantMax)
		})
	}
}

type fakeNotifier struct{ msgs []notify.RunMessage }

func (f *fakeNotifier) PublishRun(_ context.Context, msg notify.RunMessage) error {
	f.msgs = append(f.msgs, msg)
	return nil
}
func (f *fakeNotifier) Close() error { return nil }

type failingMirror struct{ calls int }

func (f *failingMirror) Sync(context.Context, *changes.RunnerState) error {
	f.calls++
	return errors.New("bucket unavailable")
}

func TestRunFeedsExtras(t *testing.T) {
	e := newEnv(t, config.ModePR)
	e.cfg.Author = config.AuthorConfig{ID: "1", Username: "dev", PR: "42"}
	e.writeManifest(t, "foo", manifest.BuildManifest{Repository: repoFoo, Commit: "aaa", Owners: []string{"dev"}})

	history, err := eventstore.NewSQLiteStore(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = history.Close() })
	notifier := &fakeNotifier{}
	mirror := &failingMirror{}

	res, err := NewService(&fakeRunner{}).
		WithHistory(history).
		WithNotifier(notifier).
		WithMirror(mirror).
		Run(t.Context(), e.cfg)
	require.NoError(t, err, "extras never fail the run")

	events, err := history.GetByRunID(t.Context(), res.RunID)
	require.NoError(t, err)
	var types []string
	for _, ev := range events {
		types = append(types, ev.Type())
	}
	assert.Equal(t, []string{
		eventstore.TypeRunStarted,
		eventstore.TypeGroupCompleted,
		eventstore.TypeChangeRecorded,
		eventstore.TypeRunCompleted,
	}, types)

	require.Len(t, notifier.msgs, 1)
	assert.Equal(t, "pr", notifier.msgs[0].Mode)
	assert.Equal(t, "dev", notifier.msgs[0].Author.Username)
	assert.Equal(t, 1, mirror.calls)
}

func TestAuthorFromConfig(t *testing.T) {
	assert.Nil(t, AuthorFromConfig(config.AuthorConfig{ID: "1"}))
	assert.Nil(t, AuthorFromConfig(config.AuthorConfig{Username: "dev"}))
	assert.Equal(t, &changes.Author{ID: "1", Username: "dev", PR: "7"},
		AuthorFromConfig(config.AuthorConfig{ID: "1", Username: "dev", PR: "7"}))
}

func TestRunMissingManifestsDirIsFatal(t *testing.T) {
	e := newEnv(t, config.ModePush)
	require.NoError(t, os.RemoveAll(e.cfg.Paths.Manifests))

	res, err := NewService(&fakeRunner{}).Run(t.Context(), e.cfg)
	require.Error(t, err)
	assert.Nil(t, res.State)
	assert.True(t, ferrors.HasCategory(err, ferrors.CategoryFileSystem))
}
