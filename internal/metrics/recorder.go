package metrics

import "time"

// ResultLabel enumerates phase result categories for counters.
type ResultLabel string

const (
	ResultSuccess ResultLabel = "success"
	ResultFailed  ResultLabel = "failed"
	ResultError   ResultLabel = "error"
)

// Recorder defines observability hooks for runs. The NoopRecorder is used when metrics
// are not configured.
type Recorder interface {
	ObservePhaseDuration(phase string, d time.Duration)
	IncPhaseResult(phase string, result ResultLabel)
	IncGroups(outcome string)
	IncChanges(kind, outcome string)
	ObserveRunDuration(d time.Duration)
	SetRunFailed(failed bool)
}

// NoopRecorder is a Recorder that does nothing.
type NoopRecorder struct{}

func (NoopRecorder) ObservePhaseDuration(string, time.Duration) {}
func (NoopRecorder) IncPhaseResult(string, ResultLabel)         {}
func (NoopRecorder) IncGroups(string)                           {}
func (NoopRecorder) IncChanges(string, string)                  {}
func (NoopRecorder) ObserveRunDuration(time.Duration)           {}
func (NoopRecorder) SetRunFailed(bool)                          {}
