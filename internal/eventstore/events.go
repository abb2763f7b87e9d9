package eventstore

import (
	"encoding/json"
	"time"

	"git.home.luguber.info/inful/extrunner/internal/foundation/errors"
)

// Event type names.
const (
	TypeRunStarted     = "RunStarted"
	TypeGroupCompleted = "GroupCompleted"
	TypeChangeRecorded = "ChangeRecorded"
	TypeRunCompleted   = "RunCompleted"
)

// RunStartedPayload describes who started a run and how.
type RunStartedPayload struct {
	Mode     string `json:"mode"`
	Author   string `json:"author,omitempty"`
	PR       string `json:"pr,omitempty"`
	Manifest int    `json:"manifests"`
}

// GroupCompletedPayload is the outcome of one build group.
type GroupCompletedPayload struct {
	Index      int      `json:"index"`
	Repository string   `json:"repository"`
	Commit     string   `json:"commit"`
	Extensions []string `json:"extensions"`
	Status     string   `json:"status"`
	DurationMS int64    `json:"duration_ms"`
}

// ChangeRecordedPayload is the final state of one extension change.
type ChangeRecordedPayload struct {
	Extension string   `json:"extension"`
	Change    string   `json:"change"`
	Outcome   string   `json:"outcome"`
	Version   string   `json:"version,omitempty"`
	Errors    []string `json:"errors,omitempty"`
	Warnings  []string `json:"warnings,omitempty"`
}

// RunCompletedPayload closes a run.
type RunCompletedPayload struct {
	Failed     bool  `json:"failed"`
	Changes    int   `json:"changes"`
	Success    int   `json:"success"`
	Warnings   int   `json:"warnings"`
	Failures   int   `json:"failures"`
	RunErrors  int   `json:"run_errors"`
	DurationMS int64 `json:"duration_ms"`
}

func newEvent(runID, eventType string, payload any) (*BaseEvent, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, errors.NewError(errors.CategoryEventStore, "failed to marshal "+eventType+" payload").
			WithCause(err).
			WithContext("run_id", runID).
			Build()
	}
	return &BaseEvent{
		EventRunID:     runID,
		EventType:      eventType,
		EventTimestamp: time.Now(),
		EventPayload:   data,
	}, nil
}

func NewRunStarted(runID string, p RunStartedPayload) (*BaseEvent, error) {
	return newEvent(runID, TypeRunStarted, p)
}

func NewGroupCompleted(runID string, p GroupCompletedPayload) (*BaseEvent, error) {
	return newEvent(runID, TypeGroupCompleted, p)
}

func NewChangeRecorded(runID string, p ChangeRecordedPayload) (*BaseEvent, error) {
	e, err := newEvent(runID, TypeChangeRecorded, p)
	if err != nil {
		return nil, err
	}
	e.EventMetadata = map[string]string{"extension": p.Extension}
	return e, nil
}

func NewRunCompleted(runID string, p RunCompletedPayload) (*BaseEvent, error) {
	return newEvent(runID, TypeRunCompleted, p)
}
