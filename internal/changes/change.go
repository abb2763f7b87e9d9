package changes

import "git.home.luguber.info/inful/extrunner/internal/manifest"

// Kind is the kind of change an extension goes through in a run.
type Kind string

const (
	KindAdd           Kind = "add"
	KindUpdate        Kind = "update"
	KindUpdateNoBuild Kind = "updateNoBuild"
	KindRemove        Kind = "remove"
)

// Builds reports whether changes of this kind go through the sandbox.
func (k Kind) Builds() bool {
	return k == KindAdd || k == KindUpdate
}

// Change is one extension's change. Add never carries an old manifest and remove never
// carries a new one; use the constructors to keep it that way.
type Change struct {
	Type        Kind                    `json:"type"`
	OldManifest *manifest.BuildManifest `json:"oldManifest,omitempty"`
	NewManifest *manifest.BuildManifest `json:"newManifest,omitempty"`
	Errors      []ExtensionError        `json:"errors"`
	Warnings    []ExtensionWarning      `json:"warnings"`
}

func newChange(kind Kind, oldManifest, newManifest *manifest.BuildManifest) *Change {
	return &Change{
		Type:        kind,
		OldManifest: oldManifest,
		NewManifest: newManifest,
		Errors:      []ExtensionError{},
		Warnings:    []ExtensionWarning{},
	}
}

func NewAdd(newManifest manifest.BuildManifest) *Change {
	return newChange(KindAdd, nil, &newManifest)
}

func NewUpdate(oldManifest, newManifest manifest.BuildManifest) *Change {
	return newChange(KindUpdate, &oldManifest, &newManifest)
}

func NewUpdateNoBuild(oldManifest, newManifest manifest.BuildManifest) *Change {
	return newChange(KindUpdateNoBuild, &oldManifest, &newManifest)
}

func NewRemove(oldManifest manifest.BuildManifest) *Change {
	return newChange(KindRemove, &oldManifest, nil)
}

// Outcome summarizes a change for reporting.
type Outcome int

const (
	OutcomeSuccess Outcome = iota
	OutcomeWarnings
	OutcomeFailed
)

func (c *Change) Outcome() Outcome {
	switch {
	case len(c.Errors) > 0:
		return OutcomeFailed
	case len(c.Warnings) > 0:
		return OutcomeWarnings
	default:
		return OutcomeSuccess
	}
}

func (o Outcome) String() string {
	switch o {
	case OutcomeWarnings:
		return "warnings"
	case OutcomeFailed:
		return "failed"
	default:
		return "success"
	}
}
