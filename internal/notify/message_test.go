package notify

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/extrunner/internal/changes"
	"git.home.luguber.info/inful/extrunner/internal/manifest"
	"git.home.luguber.info/inful/extrunner/internal/state"
)

func TestNewRunMessage(t *testing.T) {
	oldFoo := manifest.BuildManifest{Repository: "https://github.com/a/foo", Commit: "a"}
	newFoo := manifest.BuildManifest{Repository: "https://github.com/a/foo", Commit: "b"}
	rs := changes.NewRunnerState(&changes.Author{ID: "1", Username: "dev"}, state.BuildState{
		"foo": {Manifest: oldFoo},
	})
	rs.SetChange("foo", changes.NewUpdate(oldFoo, newFoo))
	rs.SetChange("bar", changes.NewAdd(manifest.BuildManifest{Repository: "https://github.com/a/bar", Commit: "c"}))

	version := "1.2.0"
	rs.RecordBuild("foo", state.ExtensionState{Version: &version, Manifest: newFoo})
	rs.AddWarning("foo", changes.Warning(changes.WarnOwnersChanged))
	rs.AddError("bar", changes.NewError(changes.ErrCloneFailed, "boom"))
	rs.AddRunWarning(changes.RunWarnUnknown)

	msg := NewRunMessage("run-1", "push", rs)

	assert.Equal(t, "run-1", msg.RunID)
	assert.True(t, msg.Failed)
	assert.Equal(t, []string{"unknown"}, msg.Warnings)
	assert.Empty(t, msg.Errors)
	require.Len(t, msg.Changes, 2)
	assert.Equal(t, ChangeMessage{
		Extension: "foo", Change: "update", Outcome: "warnings", Version: "1.2.0",
		Warnings: []string{"ownersChanged"},
	}, msg.Changes[0])
	assert.Equal(t, ChangeMessage{
		Extension: "bar", Change: "add", Outcome: "failed", Errors: []string{"cloneFailed"},
	}, msg.Changes[1])

	data, err := json.Marshal(msg)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"author":{"id":"1","username":"dev"}`)
}

func TestStreamSubject(t *testing.T) {
	tests := map[string]string{
		"extrunner.runs":   "extrunner.runs.>",
		"extrunner.>":      "extrunner.>",
		"extrunner.runs.*": "extrunner.runs.*",
	}
	for in, want := range tests {
		t.Run(in, func(t *testing.T) {
			assert.Equal(t, want, streamSubject(in))
		})
	}
}
