package sandbox

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	ferrors "git.home.luguber.info/inful/extrunner/internal/foundation/errors"
	"git.home.luguber.info/inful/extrunner/internal/group"
	"git.home.luguber.info/inful/extrunner/internal/logfields"
	"git.home.luguber.info/inful/extrunner/internal/metrics"
	"git.home.luguber.info/inful/extrunner/internal/observability"
	"git.home.luguber.info/inful/extrunner/internal/workspace"
)

// ErrNonZeroExit is returned when a phase container fails without reporting why.
var ErrNonZeroExit = errors.New("container exited with non-zero code")

// Options configures an Executor.
type Options struct {
	Image  string
	Limits Limits
	// PhaseTimeout bounds each container run. Zero means no limit.
	PhaseTimeout time.Duration
	// ContainerGroup and ContainerStore are the mount points inside the container.
	ContainerGroup string
	ContainerStore string
	Recorder       metrics.Recorder
}

// Store is a package store directory, local and daemon-side.
type Store struct {
	Local string
	Host  string
}

// Executor runs the fetch and build phases of groups.
type Executor struct {
	rt   Runtime
	opts Options
}

func NewExecutor(rt Runtime, opts Options) *Executor {
	if opts.Recorder == nil {
		opts.Recorder = metrics.NoopRecorder{}
	}
	return &Executor{rt: rt, opts: opts}
}

// Outcome is the end state of one group.
type Outcome struct {
	// Result is the last accepted result. It carries the errors when a phase reported them.
	Result  *group.Result
	Tracker *Tracker
}

// RunGroup prepares the group directory and runs fetch, then build. A phase that reports
// errors in its result ends the group with that result. Failures of the container
// runtime, a non-zero exit without reported errors and a malformed result are returned
// as errors.
func (e *Executor) RunGroup(ctx context.Context, g *group.Group, store Store) (*Outcome, error) {
	out := &Outcome{Tracker: NewTracker()}

	if err := e.prepare(g, store); err != nil {
		out.Tracker.Fail()
		return out, err
	}

	for _, step := range []struct {
		phase        Phase
		active, done Status
	}{
		{PhaseFetch, StatusFetching, StatusFetched},
		{PhaseBuild, StatusBuilding, StatusBuilt},
	} {
		if err := out.Tracker.Transition(step.active); err != nil {
			return out, err
		}
		res, err := e.RunPhase(ctx, step.phase, g, store)
		if err != nil {
			out.Tracker.Fail()
			return out, err
		}
		out.Result = res
		if res.Failed() {
			out.Tracker.Fail()
			return out, nil
		}
		if err := out.Tracker.Transition(step.done); err != nil {
			return out, err
		}
	}
	return out, nil
}

func (e *Executor) prepare(g *group.Group, store Store) error {
	if err := workspace.EnsureDir(store.Local, false); err != nil {
		return err
	}
	if err := workspace.EnsureDir(g.OutputDir(), true); err != nil {
		return err
	}
	// Bind mount sources must exist before the container is created.
	if err := workspace.EnsureDir(g.SourceDir(), false); err != nil {
		return err
	}
	if err := group.WriteInstructions(g.Directory, g.Instructions()); err != nil {
		return err
	}
	return group.WriteResult(g.Directory, group.EmptyResult())
}

// RunPhase runs one phase container to completion and reads the result it left behind.
func (e *Executor) RunPhase(ctx context.Context, phase Phase, g *group.Group, store Store) (*group.Result, error) {
	ctx = observability.WithPhase(ctx, string(phase))
	if e.opts.PhaseTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.opts.PhaseTimeout)
		defer cancel()
	}

	start := time.Now()
	res, err := e.runContainer(ctx, phase, g, store)
	e.opts.Recorder.ObservePhaseDuration(string(phase), time.Since(start))
	switch {
	case err != nil:
		e.opts.Recorder.IncPhaseResult(string(phase), metrics.ResultError)
	case res.Failed():
		e.opts.Recorder.IncPhaseResult(string(phase), metrics.ResultFailed)
	default:
		e.opts.Recorder.IncPhaseResult(string(phase), metrics.ResultSuccess)
	}
	return res, err
}

func (e *Executor) runContainer(ctx context.Context, phase Phase, g *group.Group, store Store) (*group.Result, error) {
	spec, err := PhaseSpec(phase, e.opts.Image, Paths{
		GroupHost:      g.HostDirectory,
		StoreHost:      store.Host,
		ContainerGroup: e.opts.ContainerGroup,
		ContainerStore: e.opts.ContainerStore,
	}, e.opts.Limits)
	if err != nil {
		return nil, err
	}

	id, err := e.rt.Create(ctx, spec)
	if err != nil {
		return nil, ferrors.WrapError(err, ferrors.CategorySandbox, "failed to create container").
			WithContext("phase", string(phase)).
			Build()
	}
	observability.InfoContext(ctx, "Container created", logfields.ContainerID(id), logfields.Image(spec.Image))

	// Containers auto-remove once they ran. One that never started has to be removed here.
	started := false
	defer func() {
		if started {
			return
		}
		if err := e.rt.Remove(context.WithoutCancel(ctx), id, true); err != nil {
			observability.WarnContext(ctx, "Failed to remove container", logfields.ContainerID(id), logfields.Error(err))
		}
	}()

	stdout := observability.NewLineWriter(ctx, slog.LevelInfo, "stdout")
	stderr := observability.NewLineWriter(ctx, slog.LevelInfo, "stderr")
	defer stdout.Flush()
	defer stderr.Flush()

	stream, err := e.rt.Attach(ctx, id, stdout, stderr)
	if err != nil {
		observability.WarnContext(ctx, "Failed to attach to container output", logfields.ContainerID(id), logfields.Error(err))
	}

	if err := e.rt.Start(ctx, id); err != nil {
		closeStream(ctx, stream)
		return nil, ferrors.WrapError(err, ferrors.CategorySandbox, "failed to start container").
			WithContext("phase", string(phase)).
			Build()
	}
	started = true

	code, err := e.rt.Wait(ctx, id)
	if err != nil {
		// The container may still be running after a timeout.
		if rmErr := e.rt.Remove(context.WithoutCancel(ctx), id, true); rmErr != nil {
			observability.WarnContext(ctx, "Failed to remove container", logfields.ContainerID(id), logfields.Error(rmErr))
		}
		closeStream(ctx, stream)
		return nil, ferrors.WrapError(err, ferrors.CategorySandbox, "failed waiting for container").
			WithContext("phase", string(phase)).
			Build()
	}
	closeStream(ctx, stream)
	observability.InfoContext(ctx, "Container exited", logfields.ContainerID(id), logfields.ExitCode(code))

	res, err := group.ReadResult(g.Directory)
	if err != nil {
		return nil, ferrors.WrapError(err, ferrors.CategorySandbox, "phase left an invalid result").
			WithContext("phase", string(phase)).
			WithContext("exit_code", code).
			Build()
	}
	if res.Failed() {
		return res, nil
	}
	if code != 0 {
		return nil, ferrors.WrapError(fmt.Errorf("%w: %d", ErrNonZeroExit, code), ferrors.CategorySandbox, "phase failed").
			WithContext("phase", string(phase)).
			Build()
	}
	return res, nil
}

func closeStream(ctx context.Context, stream io.Closer) {
	if stream == nil {
		return
	}
	if err := stream.Close(); err != nil {
		observability.DebugContext(ctx, "Failed to close container output", logfields.Error(err))
	}
}
