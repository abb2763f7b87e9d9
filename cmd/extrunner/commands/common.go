package commands

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/alecthomas/kong"

	"git.home.luguber.info/inful/extrunner/internal/config"
)

// Global context passed to subcommands.
type Global struct {
	Logger *slog.Logger
}

// CLI definition & global flags.
type CLI struct {
	Config  string           `short:"c" help:"Configuration file path (optional, the environment is enough)" default:"extrunner.yaml" type:"path"`
	Verbose bool             `short:"v" help:"Enable verbose logging"`
	Version kong.VersionFlag `name:"version" help:"Show version and exit"`

	Run      RunCmd      `cmd:"" help:"Diff manifests, build changed extensions in the sandbox and publish the results"`
	Group    GroupCmd    `cmd:"" help:"Run a sandbox phase against the mounted group directory (container entrypoint)"`
	Diff     DiffCmd     `cmd:"" help:"Show the changes and build groups of a run without starting containers"`
	Validate ValidateCmd `cmd:"" help:"Validate every build manifest against the schema and URL policy"`
	Report   ReportCmd   `cmd:"" help:"Render summary.md and summary.html from a saved runner state"`
	History  HistoryCmd  `cmd:"" help:"List recent runs from the run history database"`

	cfg *config.Config
}

// AfterApply runs after flag parsing: it loads the configuration once and sets up logging.
func (c *CLI) AfterApply() error {
	cfg, err := config.Load(c.Config)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	c.cfg = cfg

	level := cfg.Logging.Level.SlogLevel()
	if c.Verbose {
		level = slog.LevelDebug
	}
	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler = slog.NewTextHandler(os.Stderr, opts)
	if cfg.Logging.Format == config.LogFormatJSON {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	}
	slog.SetDefault(slog.New(handler))
	return nil
}

// Cfg returns the configuration loaded by AfterApply.
func (c *CLI) Cfg() *config.Config {
	if c.cfg == nil {
		c.cfg = config.Default()
	}
	return c.cfg
}
