package commands

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"git.home.luguber.info/inful/extrunner/internal/config"
	"git.home.luguber.info/inful/extrunner/internal/git"
	"git.home.luguber.info/inful/extrunner/internal/retry"
	"git.home.luguber.info/inful/extrunner/internal/worker"
)

// GroupCmd groups the in-container phases.
type GroupCmd struct {
	Fetch GroupFetchCmd `cmd:"" help:"Check out the source and fetch dependencies (network enabled)"`
	Build GroupBuildCmd `cmd:"" help:"Install offline, run scripts and package outputs (network disabled)"`
}

type GroupFetchCmd struct{}

type GroupBuildCmd struct{}

func (GroupFetchCmd) Run(_ *Global, root *CLI) error {
	return runPhase(root.Cfg(), config.ModeFetch, (*worker.Worker).Fetch)
}

func (GroupBuildCmd) Run(_ *Global, root *CLI) error {
	return runPhase(root.Cfg(), config.ModeBuild, (*worker.Worker).Build)
}

func runPhase(cfg *config.Config, mode config.Mode, phase func(*worker.Worker, context.Context) error) error {
	cfg.Mode = mode
	if err := cfg.ValidateGroupPhase(); err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	storeDir := os.Getenv(worker.StoreDirEnv)
	if storeDir == "" {
		storeDir = cfg.Paths.Store
	}
	w := &worker.Worker{
		GroupDir: cfg.Paths.Group,
		Git:      git.NewClient(retry.DefaultPolicy()).WithProgress(os.Stderr),
		Packages: worker.NewPnpm(storeDir),
	}
	return phase(w, ctx)
}
