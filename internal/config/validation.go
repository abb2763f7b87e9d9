package config

import (
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"git.home.luguber.info/inful/extrunner/internal/foundation/errors"
)

// ValidateOrchestrator checks the settings needed by the push, pr and all modes.
// An empty work host path falls back to the work path.
func (c *Config) ValidateOrchestrator() error {
	switch c.Mode {
	case ModePush, ModePR, ModeAll:
	case "":
		return errors.ConfigError("MOONLIGHT_BUILD_MODE is not set").
			WithContext("valid", "push, pr, all").
			Build()
	default:
		return errors.ConfigError(fmt.Sprintf("build mode %q cannot run the orchestrator", c.Mode)).
			WithContext("mode", string(c.Mode)).
			Build()
	}

	for name, dir := range map[string]string{
		"manifests": c.Paths.Manifests,
		"dist":      c.Paths.Dist,
		"work":      c.Paths.Work,
	} {
		if dir == "" {
			return errors.ConfigError(fmt.Sprintf("%s path is empty", name)).Build()
		}
	}

	if c.Paths.WorkHost == "" {
		slog.Warn("MOONLIGHT_WORK_HOST_PATH not set, using the work path for container mounts",
			slog.String("path", c.Paths.Work))
		c.Paths.WorkHost = c.Paths.Work
	}
	if !filepath.IsAbs(c.Paths.WorkHost) {
		return errors.ConfigError("work host path must be absolute").
			WithContext("path", c.Paths.WorkHost).
			Build()
	}

	if _, err := c.Sandbox.Timeout(); err != nil {
		return errors.WrapError(err, errors.CategoryConfig, "invalid sandbox phase timeout").Build()
	}
	if c.Publish.Enabled() {
		if c.Publish.Bucket == "" {
			return errors.ConfigError("publish endpoint set without a bucket").Build()
		}
		if _, _, err := c.Publish.Retry.Durations(); err != nil {
			return errors.WrapError(err, errors.CategoryConfig, "invalid publish retry settings").Build()
		}
	}
	return nil
}

// ValidateGroupPhase checks the settings needed inside the sandbox container.
func (c *Config) ValidateGroupPhase() error {
	if !c.Mode.IsGroupPhase() {
		return errors.ConfigError(fmt.Sprintf("build mode %q is not a group phase", c.Mode)).
			WithContext("valid", "fetch, build").
			Build()
	}
	if c.Paths.Group == "" || c.Paths.Store == "" {
		return errors.ConfigError("group and store paths must be set").Build()
	}
	return nil
}

// Timeout returns the per phase container timeout, zero meaning unlimited.
func (s SandboxConfig) Timeout() (time.Duration, error) {
	if s.PhaseTimeout == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(s.PhaseTimeout)
	if err != nil {
		return 0, err
	}
	if d < 0 {
		return 0, fmt.Errorf("negative duration %s", s.PhaseTimeout)
	}
	return d, nil
}

// Enabled reports whether any publish target is configured.
func (p PublishConfig) Enabled() bool {
	return p.Endpoint != ""
}

// Durations parses the initial and maximum retry delays.
func (r RetryConfig) Durations() (initial, maxDelay time.Duration, err error) {
	initial, err = time.ParseDuration(r.Initial)
	if err != nil {
		return 0, 0, fmt.Errorf("initial: %w", err)
	}
	maxDelay, err = time.ParseDuration(r.Max)
	if err != nil {
		return 0, 0, fmt.Errorf("max: %w", err)
	}
	if maxDelay < initial {
		return 0, 0, fmt.Errorf("max delay %s is below initial delay %s", maxDelay, initial)
	}
	return initial, maxDelay, nil
}
