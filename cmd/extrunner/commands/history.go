package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"git.home.luguber.info/inful/extrunner/internal/eventstore"
	"git.home.luguber.info/inful/extrunner/internal/foundation/errors"
)

// HistoryCmd implements the 'history' command.
type HistoryCmd struct {
	Limit int  `short:"n" help:"Number of runs to show" default:"20"`
	JSON  bool `help:"Print the runs as JSON"`
}

func (h *HistoryCmd) Run(_ *Global, root *CLI) error {
	path := root.Cfg().History.Path
	if path == "" {
		return errors.ConfigError("history.path is not set").Build()
	}

	store, err := eventstore.NewSQLiteStore(path)
	if err != nil {
		return errors.WrapError(err, errors.CategoryEventStore, "failed to open run history").
			WithContext("path", path).
			Build()
	}
	defer func() { _ = store.Close() }()

	proj := eventstore.NewRunHistoryProjection(store, h.Limit)
	if err := proj.Rebuild(context.Background()); err != nil {
		return errors.WrapError(err, errors.CategoryEventStore, "failed to read run history").Build()
	}
	runs := proj.History()

	if h.JSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(runs)
	}

	tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	_, _ = fmt.Fprintln(tw, "RUN\tSTARTED\tMODE\tSTATUS\tGROUPS\tCHANGES\tDURATION")
	for _, r := range runs {
		changes := 0
		for _, n := range r.Outcomes {
			changes += n
		}
		_, _ = fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%d\t%d\t%s\n",
			r.RunID, r.StartedAt.Format(time.RFC3339), r.Mode, r.Status, r.Groups, changes, r.Duration.Round(time.Second))
	}
	return tw.Flush()
}
