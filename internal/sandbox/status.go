package sandbox

import (
	"fmt"
	"slices"
)

// Status is the progress of a group through its phases.
type Status string

const (
	StatusPending  Status = "pending"
	StatusFetching Status = "fetching"
	StatusFetched  Status = "fetched"
	StatusBuilding Status = "building"
	StatusBuilt    Status = "built"
	StatusFailed   Status = "failed"
)

// validTransitions lists the allowed moves. Fetch always precedes build.
var validTransitions = map[Status][]Status{
	StatusPending:  {StatusFetching, StatusFailed},
	StatusFetching: {StatusFetched, StatusFailed},
	StatusFetched:  {StatusBuilding, StatusFailed},
	StatusBuilding: {StatusBuilt, StatusFailed},
}

// CanTransition reports whether from -> to is allowed.
func CanTransition(from, to Status) bool {
	return slices.Contains(validTransitions[from], to)
}

// IsTerminal reports whether no further transitions are possible.
func (s Status) IsTerminal() bool {
	return s == StatusBuilt || s == StatusFailed
}

// Tracker holds the status of one group.
type Tracker struct {
	status  Status
	history []Status
}

func NewTracker() *Tracker {
	return &Tracker{status: StatusPending, history: []Status{StatusPending}}
}

func (t *Tracker) Status() Status { return t.status }

// History returns every status the group went through.
func (t *Tracker) History() []Status { return slices.Clone(t.history) }

// Transition moves to the next status or reports an invalid move.
func (t *Tracker) Transition(to Status) error {
	if !CanTransition(t.status, to) {
		return fmt.Errorf("invalid group status transition %s -> %s", t.status, to)
	}
	t.status = to
	t.history = append(t.history, to)
	return nil
}

// Fail moves to failed unless the group already finished.
func (t *Tracker) Fail() {
	if !t.status.IsTerminal() {
		t.status = StatusFailed
		t.history = append(t.history, StatusFailed)
	}
}
