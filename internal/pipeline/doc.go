// Package pipeline runs the orchestrator: it diffs the manifests against the stored
// build state, builds every group in the sandbox, reconciles the results, persists the
// new build state with the report and finally feeds the optional extras (metrics, run
// history, notifications, bucket mirror).
package pipeline
