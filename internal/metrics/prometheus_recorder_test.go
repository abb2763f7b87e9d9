package metrics

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	prom "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPrometheusRecorder(t *testing.T) {
	reg := prom.NewRegistry()
	r := NewPrometheusRecorder(reg)

	r.IncPhaseResult("fetch", ResultSuccess)
	r.IncPhaseResult("fetch", ResultSuccess)
	r.IncPhaseResult("build", ResultFailed)
	r.ObservePhaseDuration("fetch", 2*time.Second)
	r.IncGroups("built")
	r.IncChanges("add", "success")
	r.ObserveRunDuration(90 * time.Second)
	r.SetRunFailed(true)

	assert.InDelta(t, 2, testutil.ToFloat64(r.phaseResults.WithLabelValues("fetch", "success")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(r.phaseResults.WithLabelValues("build", "failed")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(r.groups.WithLabelValues("built")), 0)
	assert.InDelta(t, 90, testutil.ToFloat64(r.runDuration), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(r.runFailed), 0)
	assert.Same(t, reg, r.Registry())
}

func TestWriteTextfile(t *testing.T) {
	r := NewPrometheusRecorder(nil)
	r.IncChanges("update", "warnings")
	r.SetRunFailed(false)

	path := filepath.Join(t.TempDir(), "extrunner.prom")
	require.NoError(t, r.WriteTextfile(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	text := string(data)
	assert.Contains(t, text, `extrunner_changes_total{kind="update",outcome="warnings"} 1`)
	assert.Contains(t, text, "extrunner_run_failed 0")
}

func TestNilRecorderIsSafe(t *testing.T) {
	var r *PrometheusRecorder
	r.IncGroups("failed")
	r.ObserveRunDuration(time.Second)

	var n Recorder = NoopRecorder{}
	n.IncChanges("add", "success")
}
