package sandbox

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/mount"
	"github.com/docker/docker/api/types/strslice"
	"github.com/docker/docker/client"
	"github.com/docker/docker/errdefs"
	"github.com/docker/docker/pkg/stdcopy"

	"git.home.luguber.info/inful/extrunner/internal/logfields"
)

// DockerRuntime runs phases on a Docker Engine.
type DockerRuntime struct {
	cli *client.Client

	mu    sync.Mutex
	waits map[string]pendingWait
}

// pendingWait is registered before start so an auto-removed container cannot exit unseen.
type pendingWait struct {
	resp <-chan container.WaitResponse
	errs <-chan error
}

// NewDockerRuntime connects using the standard DOCKER_* environment.
func NewDockerRuntime() (*DockerRuntime, error) {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("creating docker client: %w", err)
	}
	return &DockerRuntime{cli: cli, waits: map[string]pendingWait{}}, nil
}

// Close releases the client connection.
func (d *DockerRuntime) Close() error {
	return d.cli.Close()
}

// Ping checks that the daemon answers.
func (d *DockerRuntime) Ping(ctx context.Context) error {
	if _, err := d.cli.Ping(ctx); err != nil {
		return fmt.Errorf("docker daemon unavailable: %w", err)
	}
	return nil
}

func (d *DockerRuntime) Create(ctx context.Context, spec Spec) (string, error) {
	mounts := make([]mount.Mount, 0, len(spec.Mounts))
	for _, m := range spec.Mounts {
		mounts = append(mounts, mount.Mount{
			Type:     mount.TypeBind,
			Source:   m.Source,
			Target:   m.Target,
			ReadOnly: m.ReadOnly,
		})
	}

	cfg := &container.Config{
		Image:           spec.Image,
		Cmd:             strslice.StrSlice(spec.Cmd),
		Env:             spec.Env,
		AttachStdout:    true,
		AttachStderr:    true,
		NetworkDisabled: spec.NetworkDisabled,
	}
	hostCfg := &container.HostConfig{
		AutoRemove:  true,
		Mounts:      mounts,
		SecurityOpt: []string{"no-new-privileges"},
		Resources: container.Resources{
			Memory:   spec.Limits.MemoryBytes,
			NanoCPUs: spec.Limits.NanoCPUs,
		},
	}
	if spec.Limits.PidsLimit > 0 {
		pids := spec.Limits.PidsLimit
		hostCfg.Resources.PidsLimit = &pids
	}
	if spec.NetworkDisabled {
		hostCfg.NetworkMode = "none"
	}

	resp, err := d.cli.ContainerCreate(ctx, cfg, hostCfg, nil, nil, spec.Name)
	if err != nil {
		return "", fmt.Errorf("creating container: %w", err)
	}
	for _, w := range resp.Warnings {
		slog.Warn("Container create warning", logfields.ContainerID(resp.ID), slog.String("warning", w))
	}
	return resp.ID, nil
}

func (d *DockerRuntime) Attach(ctx context.Context, id string, stdout, stderr io.Writer) (io.Closer, error) {
	resp, err := d.cli.ContainerAttach(ctx, id, container.AttachOptions{
		Stream: true,
		Stdout: true,
		Stderr: true,
		Logs:   true,
	})
	if err != nil {
		return nil, fmt.Errorf("attaching to container: %w", err)
	}

	s := &attachment{close: resp.Close, done: make(chan struct{})}
	go func() {
		defer close(s.done)
		if _, err := stdcopy.StdCopy(stdout, stderr, resp.Reader); err != nil && !errors.Is(err, io.EOF) {
			slog.Debug("Container output stream ended", logfields.ContainerID(id), logfields.Error(err))
		}
	}()
	return s, nil
}

func (d *DockerRuntime) Start(ctx context.Context, id string) error {
	waitCh, errCh := d.cli.ContainerWait(ctx, id, container.WaitConditionNextExit)
	d.mu.Lock()
	d.waits[id] = pendingWait{resp: waitCh, errs: errCh}
	d.mu.Unlock()

	if err := d.cli.ContainerStart(ctx, id, container.StartOptions{}); err != nil {
		d.mu.Lock()
		delete(d.waits, id)
		d.mu.Unlock()
		return fmt.Errorf("starting container: %w", err)
	}
	return nil
}

func (d *DockerRuntime) Wait(ctx context.Context, id string) (int64, error) {
	d.mu.Lock()
	pw, ok := d.waits[id]
	delete(d.waits, id)
	d.mu.Unlock()

	waitCh, errCh := pw.resp, pw.errs
	if !ok {
		waitCh, errCh = d.cli.ContainerWait(ctx, id, container.WaitConditionNotRunning)
	}
	select {
	case err := <-errCh:
		return -1, fmt.Errorf("waiting for container: %w", err)
	case resp := <-waitCh:
		if resp.Error != nil && resp.Error.Message != "" {
			return resp.StatusCode, fmt.Errorf("waiting for container: %s", resp.Error.Message)
		}
		return resp.StatusCode, nil
	case <-ctx.Done():
		return -1, ctx.Err()
	}
}

func (d *DockerRuntime) Remove(ctx context.Context, id string, force bool) error {
	err := d.cli.ContainerRemove(ctx, id, container.RemoveOptions{Force: force})
	if err != nil && !errdefs.IsNotFound(err) && !errdefs.IsConflict(err) {
		return fmt.Errorf("removing container: %w", err)
	}
	return nil
}

// attachment closes the hijacked connection once and waits for the copier to stop.
type attachment struct {
	once  sync.Once
	close func()
	done  chan struct{}
}

func (a *attachment) Close() error {
	a.once.Do(a.close)
	<-a.done
	return nil
}
