// Package changes classifies every extension into the change a run has to make and holds
// the RunnerState that accumulates errors and warnings while the run progresses.
//
// Errors and warnings recorded here are report data. They never abort the run; only a
// failure to read the inputs or an unsafe repository URL does.
package changes
