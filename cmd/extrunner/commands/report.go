package commands

import (
	"fmt"
	"path/filepath"

	"git.home.luguber.info/inful/extrunner/internal/changes"
	"git.home.luguber.info/inful/extrunner/internal/foundation/errors"
	"git.home.luguber.info/inful/extrunner/internal/pipeline"
	"git.home.luguber.info/inful/extrunner/internal/report"
)

// ReportCmd implements the 'report' command.
type ReportCmd struct {
	State  string `help:"Runner state file (defaults to <work>/runnerState.json)" type:"path"`
	Output string `short:"o" help:"Directory to write the summary to (defaults to the work directory)" type:"path"`
	Mode   string `help:"Override MOONLIGHT_BUILD_MODE for the mode line"`
}

func (r *ReportCmd) Run(_ *Global, root *CLI) error {
	cfg := root.Cfg()
	statePath := r.State
	if statePath == "" {
		statePath = filepath.Join(cfg.Paths.Work, pipeline.RunnerStateFile)
	}
	outDir := r.Output
	if outDir == "" {
		outDir = cfg.Paths.Work
	}
	mode := cfg.Mode
	if r.Mode != "" {
		mode = normalizeModeOrKeep(r.Mode, mode)
	}

	rs, err := changes.ReadFile(statePath)
	if err != nil {
		return errors.WrapError(err, errors.CategoryFileSystem, "failed to read runner state").
			WithContext("path", statePath).
			Build()
	}
	if err := report.Write(outDir, rs, mode); err != nil {
		return errors.WrapError(err, errors.CategoryFileSystem, "failed to write report").
			WithContext("path", outDir).
			Build()
	}
	fmt.Printf("Wrote %s and %s to %s\n", report.MarkdownFile, report.HTMLFile, outDir)
	return nil
}
