package sandbox

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testPaths = Paths{
	GroupHost:      "/host/work/group/0",
	StoreHost:      "/host/work/store",
	ContainerGroup: "/moonlight/group",
	ContainerStore: "/moonlight/store",
}

func TestFetchMounts(t *testing.T) {
	assert.Equal(t, []Mount{
		{Source: "/host/work/group/0/state.json", Target: "/moonlight/group/state.json", ReadOnly: true},
		{Source: "/host/work/group/0/result.json", Target: "/moonlight/group/result.json"},
		{Source: "/host/work/group/0/source", Target: "/moonlight/group/source"},
		{Source: "/host/work/store", Target: "/moonlight/store"},
	}, FetchMounts(testPaths))
}

func TestBuildMounts(t *testing.T) {
	mounts := BuildMounts(testPaths)
	require.Len(t, mounts, 5)
	assert.Equal(t, Mount{Source: "/host/work/store", Target: "/moonlight/store", ReadOnly: true}, mounts[3])
	assert.Equal(t, Mount{Source: "/host/work/group/0/output", Target: "/moonlight/group/output"}, mounts[4])
}

func TestPhaseSpec(t *testing.T) {
	fetch, err := PhaseSpec(PhaseFetch, "img", testPaths, Limits{})
	require.NoError(t, err)
	assert.False(t, fetch.NetworkDisabled)
	assert.Equal(t, []string{"group", "fetch"}, fetch.Cmd)
	assert.Equal(t, []string{"MOONLIGHT_BUILD_MODE=fetch"}, fetch.Env)

	build, err := PhaseSpec(PhaseBuild, "img", testPaths, Limits{PidsLimit: 64})
	require.NoError(t, err)
	assert.True(t, build.NetworkDisabled)
	assert.Equal(t, int64(64), build.Limits.PidsLimit)

	_, err = PhaseSpec("deploy", "img", testPaths, Limits{})
	assert.Error(t, err)
}

func TestStatusTransitions(t *testing.T) {
	tr := NewTracker()
	assert.Error(t, tr.Transition(StatusBuilding))
	require.NoError(t, tr.Transition(StatusFetching))
	require.NoError(t, tr.Transition(StatusFetched))
	require.NoError(t, tr.Transition(StatusBuilding))
	require.NoError(t, tr.Transition(StatusBuilt))
	assert.True(t, tr.Status().IsTerminal())
	assert.Error(t, tr.Transition(StatusFailed))
	assert.False(t, CanTransition(StatusBuilt, StatusFetching))
}
