package metrics

import (
	"fmt"
	"time"

	prom "github.com/prometheus/client_golang/prometheus"
)

const namespace = "extrunner"

// PrometheusRecorder implements Recorder using Prometheus metrics.
type PrometheusRecorder struct {
	registry      *prom.Registry
	phaseDuration *prom.HistogramVec
	phaseResults  *prom.CounterVec
	groups        *prom.CounterVec
	changes       *prom.CounterVec
	runDuration   prom.Gauge
	runFailed     prom.Gauge
	lastRun       prom.Gauge
}

// NewPrometheusRecorder constructs and registers the metrics on reg, or on a fresh registry.
func NewPrometheusRecorder(reg *prom.Registry) *PrometheusRecorder {
	if reg == nil {
		reg = prom.NewRegistry()
	}
	pr := &PrometheusRecorder{
		registry: reg,
		phaseDuration: prom.NewHistogramVec(prom.HistogramOpts{
			Namespace: namespace,
			Name:      "phase_duration_seconds",
			Help:      "Duration of sandbox phases",
			Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 600, 1200},
		}, []string{"phase"}),
		phaseResults: prom.NewCounterVec(prom.CounterOpts{
			Namespace: namespace,
			Name:      "phase_results_total",
			Help:      "Sandbox phase results by outcome",
		}, []string{"phase", "result"}),
		groups: prom.NewCounterVec(prom.CounterOpts{
			Namespace: namespace,
			Name:      "groups_total",
			Help:      "Build groups by final status",
		}, []string{"outcome"}),
		changes: prom.NewCounterVec(prom.CounterOpts{
			Namespace: namespace,
			Name:      "changes_total",
			Help:      "Extension changes by kind and outcome",
		}, []string{"kind", "outcome"}),
		runDuration: prom.NewGauge(prom.GaugeOpts{
			Namespace: namespace,
			Name:      "run_duration_seconds",
			Help:      "Duration of the last run",
		}),
		runFailed: prom.NewGauge(prom.GaugeOpts{
			Namespace: namespace,
			Name:      "run_failed",
			Help:      "1 if the last run ended with errors",
		}),
		lastRun: prom.NewGauge(prom.GaugeOpts{
			Namespace: namespace,
			Name:      "last_run_timestamp_seconds",
			Help:      "Unix time the last run finished",
		}),
	}
	reg.MustRegister(pr.phaseDuration, pr.phaseResults, pr.groups, pr.changes, pr.runDuration, pr.runFailed, pr.lastRun)
	return pr
}

// Registry returns the registry the metrics are registered on.
func (p *PrometheusRecorder) Registry() *prom.Registry { return p.registry }

func (p *PrometheusRecorder) ObservePhaseDuration(phase string, d time.Duration) {
	if p == nil {
		return
	}
	p.phaseDuration.WithLabelValues(phase).Observe(d.Seconds())
}

func (p *PrometheusRecorder) IncPhaseResult(phase string, result ResultLabel) {
	if p == nil {
		return
	}
	p.phaseResults.WithLabelValues(phase, string(result)).Inc()
}

func (p *PrometheusRecorder) IncGroups(outcome string) {
	if p == nil {
		return
	}
	p.groups.WithLabelValues(outcome).Inc()
}

func (p *PrometheusRecorder) IncChanges(kind, outcome string) {
	if p == nil {
		return
	}
	p.changes.WithLabelValues(kind, outcome).Inc()
}

func (p *PrometheusRecorder) ObserveRunDuration(d time.Duration) {
	if p == nil {
		return
	}
	p.runDuration.Set(d.Seconds())
	p.lastRun.SetToCurrentTime()
}

func (p *PrometheusRecorder) SetRunFailed(failed bool) {
	if p == nil {
		return
	}
	if failed {
		p.runFailed.Set(1)
		return
	}
	p.runFailed.Set(0)
}

// WriteTextfile writes the registry in the text exposition format for the node-exporter
// textfile collector. The file is replaced atomically.
func (p *PrometheusRecorder) WriteTextfile(path string) error {
	if err := prom.WriteToTextfile(path, p.registry); err != nil {
		return fmt.Errorf("writing metrics textfile: %w", err)
	}
	return nil
}
