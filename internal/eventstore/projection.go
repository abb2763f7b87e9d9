package eventstore

import (
	"context"
	"encoding/json"
	"slices"
	"sync"
	"time"
)

const (
	runStatusRunning   = "running"
	runStatusSucceeded = "succeeded"
	runStatusFailed    = "failed"
)

// RunSummary is the read model of one run.
type RunSummary struct {
	RunID       string         `json:"run_id"`
	Mode        string         `json:"mode,omitempty"`
	Author      string         `json:"author,omitempty"`
	Status      string         `json:"status"`
	StartedAt   time.Time      `json:"started_at"`
	CompletedAt *time.Time     `json:"completed_at,omitempty"`
	Duration    time.Duration  `json:"duration,omitempty"`
	Groups      int            `json:"groups"`
	Outcomes    map[string]int `json:"outcomes,omitempty"`
	Extensions  []string       `json:"extensions,omitempty"`
}

// RunHistoryProjection folds events into run summaries, newest first.
type RunHistoryProjection struct {
	mu      sync.RWMutex
	store   Store
	runs    map[string]*RunSummary
	history []*RunSummary
	maxSize int
}

func NewRunHistoryProjection(store Store, maxHistorySize int) *RunHistoryProjection {
	if maxHistorySize <= 0 {
		maxHistorySize = 100
	}
	return &RunHistoryProjection{
		store:   store,
		runs:    make(map[string]*RunSummary),
		maxSize: maxHistorySize,
	}
}

// Rebuild reconstructs the projection from every stored event.
func (p *RunHistoryProjection) Rebuild(ctx context.Context) error {
	events, err := p.store.GetRange(ctx, time.Time{}, time.Now().Add(time.Hour))
	if err != nil {
		return err
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	p.runs = make(map[string]*RunSummary)
	p.history = nil
	for _, e := range events {
		p.applyLocked(e)
	}
	p.sortLocked()
	return nil
}

// Apply folds a single event into the projection.
func (p *RunHistoryProjection) Apply(e Event) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.applyLocked(e)
	p.sortLocked()
}

func (p *RunHistoryProjection) applyLocked(e Event) {
	id := e.RunID()
	if id == "" {
		return
	}
	run, ok := p.runs[id]
	if !ok {
		run = &RunSummary{RunID: id, Status: runStatusRunning, StartedAt: e.Timestamp()}
		p.runs[id] = run
		p.history = append(p.history, run)
	}

	switch e.Type() {
	case TypeRunStarted:
		var payload RunStartedPayload
		if json.Unmarshal(e.Payload(), &payload) == nil {
			run.Mode = payload.Mode
			run.Author = payload.Author
		}
		run.StartedAt = e.Timestamp()
	case TypeGroupCompleted:
		run.Groups++
	case TypeChangeRecorded:
		var payload ChangeRecordedPayload
		if json.Unmarshal(e.Payload(), &payload) == nil {
			if run.Outcomes == nil {
				run.Outcomes = map[string]int{}
			}
			run.Outcomes[payload.Outcome]++
			run.Extensions = append(run.Extensions, payload.Extension)
		}
	case TypeRunCompleted:
		var payload RunCompletedPayload
		_ = json.Unmarshal(e.Payload(), &payload)
		done := e.Timestamp()
		run.CompletedAt = &done
		run.Duration = done.Sub(run.StartedAt)
		run.Status = runStatusSucceeded
		if payload.Failed {
			run.Status = runStatusFailed
		}
	}
}

// sortLocked orders newest first and drops runs beyond maxSize.
func (p *RunHistoryProjection) sortLocked() {
	slices.SortStableFunc(p.history, func(a, b *RunSummary) int {
		return b.StartedAt.Compare(a.StartedAt)
	})
	for len(p.history) > p.maxSize {
		last := p.history[len(p.history)-1]
		delete(p.runs, last.RunID)
		p.history = p.history[:len(p.history)-1]
	}
}

// History returns copies of the run summaries, newest first.
func (p *RunHistoryProjection) History() []RunSummary {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]RunSummary, 0, len(p.history))
	for _, r := range p.history {
		out = append(out, *r)
	}
	return out
}

// Run returns the summary of one run.
func (p *RunHistoryProjection) Run(runID string) (RunSummary, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	r, ok := p.runs[runID]
	if !ok {
		return RunSummary{}, false
	}
	return *r, true
}
