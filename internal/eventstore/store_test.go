package eventstore

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testRunID = "run-123"

func newStore(t *testing.T) *SQLiteStore {
	t.Helper()
	store, err := NewSQLiteStore(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestAppendAndGetByRunID(t *testing.T) {
	store := newStore(t)
	ctx := t.Context()

	started, err := NewRunStarted(testRunID, RunStartedPayload{Mode: "push", Manifest: 3})
	require.NoError(t, err)
	require.NoError(t, store.Append(ctx, started))

	change, err := NewChangeRecorded(testRunID, ChangeRecordedPayload{Extension: "foo", Change: "add", Outcome: "success"})
	require.NoError(t, err)
	require.NoError(t, store.Append(ctx, change))

	other, err := NewRunStarted("run-other", RunStartedPayload{Mode: "pr"})
	require.NoError(t, err)
	require.NoError(t, store.Append(ctx, other))

	events, err := store.GetByRunID(ctx, testRunID)
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, TypeRunStarted, events[0].Type())
	assert.Equal(t, TypeChangeRecorded, events[1].Type())
	assert.Equal(t, "foo", events[1].Metadata()["extension"])
	assert.JSONEq(t, `{"mode":"push","manifests":3}`, string(events[0].Payload()))
	assert.Less(t, events[0].ID(), events[1].ID())
}

func TestGetRange(t *testing.T) {
	store := newStore(t)
	ctx := t.Context()

	old := &BaseEvent{EventRunID: "a", EventType: TypeRunStarted, EventTimestamp: time.Now().Add(-48 * time.Hour), EventPayload: []byte(`{}`)}
	recent := &BaseEvent{EventRunID: "b", EventType: TypeRunStarted, EventTimestamp: time.Now(), EventPayload: []byte(`{}`)}
	require.NoError(t, store.Append(ctx, old))
	require.NoError(t, store.Append(ctx, recent))

	events, err := store.GetRange(ctx, time.Now().Add(-time.Hour), time.Now().Add(time.Hour))
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "b", events[0].RunID())
}

func TestRunHistoryProjection(t *testing.T) {
	store := newStore(t)
	ctx := t.Context()
	base := time.Now().Add(-time.Minute)

	appendAt := func(e *BaseEvent, at time.Time) {
		e.EventTimestamp = at
		require.NoError(t, store.Append(ctx, e))
	}

	e, err := NewRunStarted("first", RunStartedPayload{Mode: "push", Author: "dev"})
	require.NoError(t, err)
	appendAt(e, base)
	e, err = NewGroupCompleted("first", GroupCompletedPayload{Index: 0, Status: "built"})
	require.NoError(t, err)
	appendAt(e, base.Add(time.Second))
	e, err = NewChangeRecorded("first", ChangeRecordedPayload{Extension: "foo", Outcome: "success"})
	require.NoError(t, err)
	appendAt(e, base.Add(2*time.Second))
	e, err = NewRunCompleted("first", RunCompletedPayload{Failed: false})
	require.NoError(t, err)
	appendAt(e, base.Add(3*time.Second))

	e, err = NewRunStarted("second", RunStartedPayload{Mode: "pr"})
	require.NoError(t, err)
	appendAt(e, base.Add(10*time.Second))
	e, err = NewRunCompleted("second", RunCompletedPayload{Failed: true})
	require.NoError(t, err)
	appendAt(e, base.Add(11*time.Second))

	proj := NewRunHistoryProjection(store, 10)
	require.NoError(t, proj.Rebuild(ctx))

	history := proj.History()
	require.Len(t, history, 2)
	assert.Equal(t, "second", history[0].RunID)
	assert.Equal(t, runStatusFailed, history[0].Status)

	first, ok := proj.Run("first")
	require.True(t, ok)
	assert.Equal(t, runStatusSucceeded, first.Status)
	assert.Equal(t, "dev", first.Author)
	assert.Equal(t, 1, first.Groups)
	assert.Equal(t, map[string]int{"success": 1}, first.Outcomes)
	assert.Equal(t, 3*time.Second, first.Duration)
}

func TestProjectionTrimsToMaxSize(t *testing.T) {
	proj := NewRunHistoryProjection(newStore(t), 1)
	now := time.Now()
	proj.Apply(&BaseEvent{EventRunID: "old", EventType: TypeRunStarted, EventTimestamp: now.Add(-time.Hour), EventPayload: []byte(`{}`)})
	proj.Apply(&BaseEvent{EventRunID: "new", EventType: TypeRunStarted, EventTimestamp: now, EventPayload: []byte(`{}`)})

	history := proj.History()
	require.Len(t, history, 1)
	assert.Equal(t, "new", history[0].RunID)
	_, ok := proj.Run("old")
	assert.False(t, ok)
}
