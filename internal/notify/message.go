// Package notify publishes a JSON summary of each finished run to NATS JetStream.
package notify

import (
	"time"

	"git.home.luguber.info/inful/extrunner/internal/changes"
)

// RunMessage is the payload published once per run.
type RunMessage struct {
	RunID     string          `json:"run_id"`
	Mode      string          `json:"mode"`
	Author    *changes.Author `json:"author,omitempty"`
	Failed    bool            `json:"failed"`
	Timestamp time.Time       `json:"timestamp"`
	Changes   []ChangeMessage `json:"changes"`
	Warnings  []string        `json:"warnings,omitempty"`
	Errors    []string        `json:"errors,omitempty"`
}

// ChangeMessage summarizes one extension change.
type ChangeMessage struct {
	Extension string   `json:"extension"`
	Change    string   `json:"change"`
	Outcome   string   `json:"outcome"`
	Version   string   `json:"version,omitempty"`
	Errors    []string `json:"errors,omitempty"`
	Warnings  []string `json:"warnings,omitempty"`
}

// NewRunMessage builds the message for rs. Call it once every group is done.
func NewRunMessage(runID, mode string, rs *changes.RunnerState) RunMessage {
	msg := RunMessage{
		RunID:     runID,
		Mode:      mode,
		Author:    rs.Author,
		Failed:    rs.Failed(),
		Timestamp: time.Now().UTC(),
		Changes:   []ChangeMessage{},
	}
	for _, w := range rs.Warnings {
		msg.Warnings = append(msg.Warnings, string(w.Type))
	}
	for _, e := range rs.Errors {
		msg.Errors = append(msg.Errors, string(e.Type))
	}
	for _, e := range rs.Entries() {
		msg.Changes = append(msg.Changes, ChangeSummary(rs, e))
	}
	return msg
}

// ChangeSummary flattens one change into its reported form.
func ChangeSummary(rs *changes.RunnerState, e changes.Entry) ChangeMessage {
	cm := ChangeMessage{
		Extension: e.ID,
		Change:    string(e.Change.Type),
		Outcome:   e.Change.Outcome().String(),
	}
	if es, ok := rs.BuildState[e.ID]; ok && es.Version != nil && e.Change.Type != changes.KindRemove {
		cm.Version = *es.Version
	}
	for _, err := range e.Change.Errors {
		cm.Errors = append(cm.Errors, string(err.Type))
	}
	for _, w := range e.Change.Warnings {
		cm.Warnings = append(cm.Warnings, string(w.Type))
	}
	return cm
}
