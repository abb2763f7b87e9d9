package pipeline

import (
	"git.home.luguber.info/inful/extrunner/internal/changes"
	"git.home.luguber.info/inful/extrunner/internal/config"
	"git.home.luguber.info/inful/extrunner/internal/foundation/errors"
	"git.home.luguber.info/inful/extrunner/internal/manifest"
	"git.home.luguber.info/inful/extrunner/internal/state"
)

// AuthorFromConfig returns the run author, or nil unless both the ID and username are set.
func AuthorFromConfig(cfg config.AuthorConfig) *changes.Author {
	if cfg.ID == "" || cfg.Username == "" {
		return nil
	}
	return &changes.Author{ID: cfg.ID, Username: cfg.Username, PR: cfg.PR}
}

// ComputeState loads the manifests and the previous build state and diffs them.
func ComputeState(cfg *config.Config) (*changes.RunnerState, error) {
	entries, failures, err := manifest.LoadDir(cfg.Paths.Manifests)
	if err != nil {
		return nil, errors.WrapError(err, errors.CategoryFileSystem, "failed to load manifests").
			WithContext("path", cfg.Paths.Manifests).
			Fatal().
			Build()
	}

	previous, err := state.Load(state.Path(cfg.Paths.Dist))
	if err != nil {
		return nil, errors.WrapError(err, errors.CategoryFileSystem, "failed to load build state").
			WithContext("path", cfg.Paths.Dist).
			Fatal().
			Build()
	}

	return changes.Compute(changes.Inputs{
		Entries:  entries,
		Failures: failures,
		Previous: previous,
		Author:   AuthorFromConfig(cfg.Author),
		Mode:     cfg.Mode,
	})
}
