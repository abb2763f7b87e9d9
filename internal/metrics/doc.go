// Package metrics records run, group, phase and change metrics. The Prometheus recorder
// can write its registry to a node-exporter textfile at the end of a run.
package metrics
