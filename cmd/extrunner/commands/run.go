package commands

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"git.home.luguber.info/inful/extrunner/internal/config"
	"git.home.luguber.info/inful/extrunner/internal/eventstore"
	"git.home.luguber.info/inful/extrunner/internal/foundation/errors"
	"git.home.luguber.info/inful/extrunner/internal/logfields"
	"git.home.luguber.info/inful/extrunner/internal/metrics"
	"git.home.luguber.info/inful/extrunner/internal/notify"
	"git.home.luguber.info/inful/extrunner/internal/pipeline"
	"git.home.luguber.info/inful/extrunner/internal/publish"
	"git.home.luguber.info/inful/extrunner/internal/retry"
	"git.home.luguber.info/inful/extrunner/internal/sandbox"
)

// RunCmd implements the 'run' command.
type RunCmd struct {
	Mode string `help:"Override MOONLIGHT_BUILD_MODE (push, pr, all)"`
}

func (r *RunCmd) Run(g *Global, root *CLI) error {
	cfg := root.Cfg()
	if r.Mode != "" {
		mode := config.NormalizeMode(r.Mode)
		if mode == "" {
			return errors.ValidationError("unknown build mode").WithContext("mode", r.Mode).Build()
		}
		cfg.Mode = mode
	}
	if err := cfg.ValidateOrchestrator(); err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	rt, err := sandbox.NewDockerRuntime()
	if err != nil {
		return errors.SandboxError("failed to create container runtime client").WithCause(err).Fatal().Build()
	}
	defer func() { _ = rt.Close() }()
	if err := rt.Ping(ctx); err != nil {
		return errors.SandboxError("container runtime is not reachable").WithCause(err).Fatal().Build()
	}

	timeout, _ := cfg.Sandbox.Timeout()
	var recorder metrics.Recorder = metrics.NoopRecorder{}
	if cfg.Metrics.Textfile != "" {
		recorder = metrics.NewPrometheusRecorder(nil)
	}
	executor := sandbox.NewExecutor(rt, sandbox.Options{
		Image:          cfg.Sandbox.Image,
		Limits:         limitsFromConfig(cfg.Sandbox),
		PhaseTimeout:   timeout,
		ContainerGroup: cfg.Paths.Group,
		ContainerStore: cfg.Paths.Store,
		Recorder:       recorder,
	})

	svc := pipeline.NewService(executor).WithRecorder(recorder)
	closeExtras := wireExtras(ctx, g.Logger, cfg, svc)
	defer closeExtras()

	res, err := svc.Run(ctx, cfg)
	if res != nil && res.State != nil {
		g.Logger.Info("Run finished",
			logfields.RunID(res.RunID),
			slog.Bool("failed", res.Failed),
			logfields.Path(cfg.Paths.Work))
	}
	return err
}

func limitsFromConfig(s config.SandboxConfig) sandbox.Limits {
	return sandbox.Limits{
		MemoryBytes: s.MemoryMB * 1024 * 1024,
		NanoCPUs:    int64(s.CPUs * 1e9),
		PidsLimit:   s.PidsLimit,
	}
}

// wireExtras connects the optional history, notification and mirror targets. A target
// that cannot be set up is skipped with a warning.
func wireExtras(ctx context.Context, logger *slog.Logger, cfg *config.Config, svc *pipeline.Service) func() {
	var closers []func() error

	if cfg.History.Path != "" {
		store, err := eventstore.NewSQLiteStore(cfg.History.Path)
		if err != nil {
			logger.Warn("Run history disabled", logfields.Path(cfg.History.Path), logfields.Error(err))
		} else {
			svc.WithHistory(store)
			closers = append(closers, store.Close)
		}
	}

	if cfg.Notify.URL != "" {
		client, err := notify.NewNATSClient(ctx, cfg.Notify)
		if err != nil {
			logger.Warn("Run notifications disabled", logfields.Error(err))
		} else {
			svc.WithNotifier(client)
			closers = append(closers, client.Close)
		}
	}

	if cfg.Publish.Enabled() {
		policy, err := retry.FromConfig(cfg.Publish.Retry)
		if err != nil {
			logger.Warn("Invalid publish retry settings, using defaults", logfields.Error(err))
			policy = retry.DefaultPolicy()
		}
		store, err := publish.NewS3Store(cfg.Publish)
		if err != nil {
			logger.Warn("Bucket mirror disabled", logfields.Error(err))
		} else {
			svc.WithMirror(publish.NewMirror(store, policy, cfg.Paths.Dist, cfg.Publish.Prefix))
		}
	}

	return func() {
		for _, c := range closers {
			if err := c(); err != nil {
				logger.Warn("Failed to close extra", logfields.Error(err))
			}
		}
	}
}
