package commands

import (
	"fmt"
	"os"

	"git.home.luguber.info/inful/extrunner/internal/foundation/errors"
	"git.home.luguber.info/inful/extrunner/internal/manifest"
)

// ValidateCmd implements the 'validate' command.
type ValidateCmd struct {
	Path string `arg:"" optional:"" help:"Manifests repository root (defaults to MOONLIGHT_MANIFESTS_PATH)" type:"path"`
}

func (v *ValidateCmd) Run(_ *Global, root *CLI) error {
	dir := v.Path
	if dir == "" {
		dir = root.Cfg().Paths.Manifests
	}

	entries, failures, err := manifest.LoadDir(dir)
	if err != nil {
		return errors.WrapError(err, errors.CategoryFileSystem, "failed to load manifests").
			WithContext("path", dir).
			Build()
	}

	problems := len(failures)
	for _, f := range failures {
		fmt.Printf("%s: %v\n", f.ID, f.Err)
	}
	for _, e := range entries {
		if err := manifest.CheckRepositoryURL(e.Manifest.Repository); err != nil {
			fmt.Printf("%s: %v\n", e.ID, err)
			problems++
		}
	}

	if problems > 0 {
		return errors.ValidationError(fmt.Sprintf("%d invalid manifest(s)", problems)).
			WithContext("path", dir).
			Build()
	}
	_, _ = fmt.Fprintf(os.Stdout, "%d manifest(s) valid\n", len(entries))
	return nil
}
