package commands

import (
	"log/slog"

	"git.home.luguber.info/inful/extrunner/internal/config"
)

func normalizeModeOrKeep(raw string, current config.Mode) config.Mode {
	if mode := config.NormalizeMode(raw); mode != "" {
		return mode
	}
	slog.Warn("Ignoring invalid --mode value", slog.String("value", raw))
	return current
}
