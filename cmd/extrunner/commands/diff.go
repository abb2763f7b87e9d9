package commands

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"git.home.luguber.info/inful/extrunner/internal/changes"
	"git.home.luguber.info/inful/extrunner/internal/group"
	"git.home.luguber.info/inful/extrunner/internal/pipeline"
	"git.home.luguber.info/inful/extrunner/internal/workspace"
)

// DiffCmd implements the 'diff' command.
type DiffCmd struct {
	Mode string `help:"Override MOONLIGHT_BUILD_MODE (push, pr, all)"`
	JSON bool   `help:"Print the changes and groups as JSON"`
}

type diffOutput struct {
	Changes  []diffChange         `json:"changes"`
	Groups   []diffGroup          `json:"groups"`
	Warnings []changes.RunWarning `json:"warnings"`
	Errors   []changes.RunError   `json:"errors"`
}

type diffChange struct {
	Extension string   `json:"extension"`
	Type      string   `json:"type"`
	Warnings  []string `json:"warnings,omitempty"`
}

type diffGroup struct {
	Key        string            `json:"key"`
	Extensions []string          `json:"extensions"`
	Outputs    map[string]string `json:"outputs"`
}

func (d *DiffCmd) Run(_ *Global, root *CLI) error {
	cfg := root.Cfg()
	if d.Mode != "" {
		cfg.Mode = normalizeModeOrKeep(d.Mode, cfg.Mode)
	}

	rs, err := pipeline.ComputeState(cfg)
	if err != nil {
		return err
	}
	plan := group.NewPlan(rs.Entries(), workspace.NewLayout(cfg.Paths.Work, cfg.Paths.WorkHost))
	out := buildDiffOutput(rs, plan)

	if d.JSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(out)
	}
	printDiff(os.Stdout, out)
	return nil
}

func buildDiffOutput(rs *changes.RunnerState, plan *group.Plan) diffOutput {
	out := diffOutput{
		Changes:  []diffChange{},
		Groups:   []diffGroup{},
		Warnings: rs.Warnings,
		Errors:   rs.Errors,
	}
	for _, e := range rs.Entries() {
		dc := diffChange{Extension: e.ID, Type: string(e.Change.Type)}
		for _, w := range e.Change.Warnings {
			dc.Warnings = append(dc.Warnings, string(w.Type))
		}
		out.Changes = append(out.Changes, dc)
	}
	for _, g := range plan.Groups {
		out.Groups = append(out.Groups, diffGroup{Key: g.Key, Extensions: g.Extensions, Outputs: g.Outputs})
	}
	return out
}

func printDiff(w io.Writer, out diffOutput) {
	if len(out.Changes) == 0 {
		_, _ = fmt.Fprintln(w, "No extension changes.")
	}
	for _, c := range out.Changes {
		line := fmt.Sprintf("%-14s %s", c.Type, c.Extension)
		if len(c.Warnings) > 0 {
			line += " (" + strings.Join(c.Warnings, ", ") + ")"
		}
		_, _ = fmt.Fprintln(w, line)
	}
	for i, g := range out.Groups {
		_, _ = fmt.Fprintf(w, "group %d: %s\n", i, g.Key)
		for _, ext := range g.Extensions {
			_, _ = fmt.Fprintf(w, "  %s -> %s\n", ext, g.Outputs[ext])
		}
	}
	for _, rw := range out.Warnings {
		_, _ = fmt.Fprintf(w, "run warning: %s\n", rw.Type)
	}
	for _, re := range out.Errors {
		_, _ = fmt.Fprintf(w, "run error: %s %s: %s\n", re.Type, re.Ext, re.Err)
	}
}
