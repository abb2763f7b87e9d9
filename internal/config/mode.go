package config

import (
	"git.home.luguber.info/inful/extrunner/internal/foundation/normalization"
)

// Mode selects what an invocation does. The orchestrator modes (push, pr, all) run the
// whole pipeline; fetch and build are the two phases executed inside a sandbox container.
type Mode string

const (
	ModePush  Mode = "push"
	ModePR    Mode = "pr"
	ModeAll   Mode = "all"
	ModeFetch Mode = "fetch"
	ModeBuild Mode = "build"
)

var modeNormalizer = normalization.NewNormalizer(map[string]Mode{
	"push":         ModePush,
	"pr":           ModePR,
	"pull-request": ModePR,
	"all":          ModeAll,
	"force-all":    ModeAll,
	"fetch":        ModeFetch,
	"build":        ModeBuild,
}, "")

// NormalizeMode converts user input to a Mode, returning "" for unknown values.
func NormalizeMode(raw string) Mode {
	return modeNormalizer.Normalize(raw)
}

// IsGroupPhase reports whether the mode is one of the in-container phases.
func (m Mode) IsGroupPhase() bool {
	return m == ModeFetch || m == ModeBuild
}

// ForcesRebuild reports whether every existing extension must be rebuilt.
func (m Mode) ForcesRebuild() bool {
	return m == ModeAll
}
