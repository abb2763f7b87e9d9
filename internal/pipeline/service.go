package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"git.home.luguber.info/inful/extrunner/internal/changes"
	"git.home.luguber.info/inful/extrunner/internal/config"
	"git.home.luguber.info/inful/extrunner/internal/eventstore"
	"git.home.luguber.info/inful/extrunner/internal/foundation/errors"
	"git.home.luguber.info/inful/extrunner/internal/group"
	"git.home.luguber.info/inful/extrunner/internal/logfields"
	"git.home.luguber.info/inful/extrunner/internal/metrics"
	"git.home.luguber.info/inful/extrunner/internal/notify"
	"git.home.luguber.info/inful/extrunner/internal/observability"
	"git.home.luguber.info/inful/extrunner/internal/reconcile"
	"git.home.luguber.info/inful/extrunner/internal/report"
	"git.home.luguber.info/inful/extrunner/internal/sandbox"
	"git.home.luguber.info/inful/extrunner/internal/state"
	"git.home.luguber.info/inful/extrunner/internal/workspace"
)

// RunnerStateFile is the debug dump of the whole run inside the work directory.
const RunnerStateFile = "runnerState.json"

// GroupRunner executes the sandbox phases of one group.
type GroupRunner interface {
	RunGroup(ctx context.Context, g *group.Group, store sandbox.Store) (*sandbox.Outcome, error)
}

// Syncer mirrors the outcome of a run somewhere else.
type Syncer interface {
	Sync(ctx context.Context, rs *changes.RunnerState) error
}

// Result is the outcome of a run. State is always set once the diff succeeded.
type Result struct {
	RunID     string
	State     *changes.RunnerState
	Plan      *group.Plan
	Failed    bool
	StartTime time.Time
	EndTime   time.Time
	Duration  time.Duration
}

// Service runs the orchestrator.
type Service struct {
	runner   GroupRunner
	recorder metrics.Recorder
	history  eventstore.Store
	notifier notify.Publisher
	mirror   Syncer
	newRunID func() string
}

// NewService returns a service that builds groups with runner.
func NewService(runner GroupRunner) *Service {
	return &Service{
		runner:   runner,
		recorder: metrics.NoopRecorder{},
		newRunID: uuid.NewString,
	}
}

// WithRecorder sets the metrics recorder. A recorder with a WriteTextfile method is
// exported to metrics.textfile at the end of the run.
func (s *Service) WithRecorder(r metrics.Recorder) *Service {
	if r != nil {
		s.recorder = r
	}
	return s
}

// WithHistory appends run events to store.
func (s *Service) WithHistory(store eventstore.Store) *Service {
	s.history = store
	return s
}

// WithNotifier publishes a run message when the run ends.
func (s *Service) WithNotifier(p notify.Publisher) *Service {
	s.notifier = p
	return s
}

// WithMirror syncs the dist directory after the run.
func (s *Service) WithMirror(m Syncer) *Service {
	s.mirror = m
	return s
}

// WithRunIDGenerator replaces the UUID generator (for testing).
func (s *Service) WithRunIDGenerator(gen func() string) *Service {
	s.newRunID = gen
	return s
}

// Run executes one orchestrator run. A returned error with a nil State means the run
// never got past its inputs. A run whose state carries errors returns a build error
// alongside the full result.
func (s *Service) Run(ctx context.Context, cfg *config.Config) (*Result, error) {
	result := &Result{RunID: s.newRunID(), StartTime: time.Now()}
	ctx = observability.WithRunID(ctx, result.RunID)
	ctx = observability.WithMode(ctx, string(cfg.Mode))

	layout := workspace.NewLayout(cfg.Paths.Work, cfg.Paths.WorkHost)

	ctx = observability.WithStage(ctx, "bootstrap")
	if err := layout.Prepare(); err != nil {
		return result, errors.WrapError(err, errors.CategoryFileSystem, "failed to prepare work directory").
			WithContext("path", cfg.Paths.Work).
			Fatal().
			Build()
	}

	ctx = observability.WithStage(ctx, "diff")
	rs, err := ComputeState(cfg)
	if err != nil {
		return result, err
	}
	result.State = rs
	observability.InfoContext(ctx, "Computed changes",
		logfields.Count(len(rs.Order)),
		slog.Int("previous", len(rs.OldBuildState)))
	s.recordStart(ctx, result.RunID, cfg, rs)

	ctx = observability.WithStage(ctx, "build")
	plan := group.NewPlan(rs.Entries(), layout)
	result.Plan = plan
	if err := plan.Prepare(); err != nil {
		return result, errors.WrapError(err, errors.CategoryFileSystem, "failed to prepare group directories").
			Fatal().
			Build()
	}
	rec := reconcile.New(cfg.Paths.Dist, layout.Output())
	s.buildGroups(ctx, cfg, layout, rs, plan, rec, result.RunID)

	ctx = observability.WithStage(ctx, "reconcile")
	reconcile.ApplyManifestOnly(ctx, rs)
	rec.RemoveDeleted(ctx, rs)

	ctx = observability.WithStage(ctx, "persist")
	if err := persist(cfg, rs); err != nil {
		return result, err
	}

	result.Failed = rs.Failed()
	result.EndTime = time.Now()
	result.Duration = result.EndTime.Sub(result.StartTime)

	ctx = observability.WithStage(ctx, "extras")
	s.runExtras(ctx, cfg, result)

	counts := rs.Counts()
	if result.Failed {
		observability.ErrorContext(ctx, "Run completed with errors",
			slog.Int("failed", counts.Failed),
			slog.Int("run_errors", len(rs.Errors)),
			logfields.DurationMS(float64(result.Duration.Milliseconds())))
		return result, errors.BuildError("run completed with errors").
			WithContext("run_id", result.RunID).
			WithContext("failed_changes", counts.Failed).
			WithContext("run_errors", len(rs.Errors)).
			Build()
	}

	observability.InfoContext(ctx, "Run completed",
		logfields.Count(counts.Total),
		slog.Int("warnings", counts.Warnings),
		logfields.DurationMS(float64(result.Duration.Milliseconds())))
	if err := layout.Cleanup(); err != nil {
		observability.WarnContext(ctx, "Failed to clean up work directory", logfields.Error(err))
	}
	return result, nil
}

// persist writes the new build state, the runner state dump and the report.
func persist(cfg *config.Config, rs *changes.RunnerState) error {
	if err := workspace.EnsureDir(cfg.Paths.Dist, false); err != nil {
		return errors.WrapError(err, errors.CategoryFileSystem, "failed to create dist directory").Fatal().Build()
	}
	if err := rs.BuildState.Save(state.Path(cfg.Paths.Dist)); err != nil {
		return errors.WrapError(err, errors.CategoryFileSystem, "failed to save build state").Fatal().Build()
	}
	if err := rs.WriteFile(filepath.Join(cfg.Paths.Work, RunnerStateFile)); err != nil {
		return errors.WrapError(err, errors.CategoryFileSystem, "failed to write runner state").Fatal().Build()
	}
	if err := report.Write(cfg.Paths.Work, rs, cfg.Mode); err != nil {
		return errors.WrapError(err, errors.CategoryFileSystem, fmt.Sprintf("failed to write %s", report.MarkdownFile)).
			Fatal().
			Build()
	}
	return nil
}
