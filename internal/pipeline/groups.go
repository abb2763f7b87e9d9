package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"git.home.luguber.info/inful/extrunner/internal/changes"
	"git.home.luguber.info/inful/extrunner/internal/config"
	"git.home.luguber.info/inful/extrunner/internal/eventstore"
	"git.home.luguber.info/inful/extrunner/internal/group"
	"git.home.luguber.info/inful/extrunner/internal/logfields"
	"git.home.luguber.info/inful/extrunner/internal/observability"
	"git.home.luguber.info/inful/extrunner/internal/reconcile"
	"git.home.luguber.info/inful/extrunner/internal/sandbox"
	"git.home.luguber.info/inful/extrunner/internal/workspace"
)

// storeLocks serializes groups that share a package store for their whole lifetime.
type storeLocks struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func (l *storeLocks) get(path string) *sync.Mutex {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.locks == nil {
		l.locks = map[string]*sync.Mutex{}
	}
	m, ok := l.locks[path]
	if !ok {
		m = &sync.Mutex{}
		l.locks[path] = m
	}
	return m
}

// buildGroups runs every group, at most sandbox.concurrency at a time. Failures stay
// inside the group they happened in.
func (s *Service) buildGroups(ctx context.Context, cfg *config.Config, layout workspace.Layout,
	rs *changes.RunnerState, plan *group.Plan, rec *reconcile.Reconciler, runID string,
) {
	if len(plan.Groups) == 0 {
		observability.InfoContext(ctx, "No groups to build")
		return
	}
	observability.InfoContext(ctx, "Building groups",
		logfields.Count(len(plan.Groups)),
		slog.Int("extensions", plan.Members()),
		slog.Int("concurrency", cfg.Sandbox.Concurrency))

	var locks storeLocks
	var eg errgroup.Group
	eg.SetLimit(max(cfg.Sandbox.Concurrency, 1))

	for _, g := range plan.Groups {
		store := storeFor(layout, g, cfg.Sandbox.StorePerGroup)
		eg.Go(func() error {
			lock := locks.get(store.Local)
			lock.Lock()
			defer lock.Unlock()
			s.buildGroup(ctx, rs, g, store, rec, runID)
			return nil
		})
	}
	_ = eg.Wait()
}

func storeFor(layout workspace.Layout, g *group.Group, perGroup bool) sandbox.Store {
	key := ""
	if perGroup {
		key = strconv.Itoa(g.Index)
	}
	local, host := layout.Store(key)
	return sandbox.Store{Local: local, Host: host}
}

// buildGroup runs and reconciles one group. A panic becomes an unknown error on every
// member.
func (s *Service) buildGroup(ctx context.Context, rs *changes.RunnerState, g *group.Group,
	store sandbox.Store, rec *reconcile.Reconciler, runID string,
) {
	ctx = observability.WithGroup(ctx, g.Index, g.Key)
	start := time.Now()
	status := sandbox.StatusFailed

	defer func() {
		if r := recover(); r != nil {
			reconcile.Fail(ctx, rs, g, fmt.Errorf("panic while building group: %v", r))
			status = sandbox.StatusFailed
		}
		s.recorder.IncGroups(string(status))
		s.appendEvent(ctx, func() (*eventstore.BaseEvent, error) {
			return eventstore.NewGroupCompleted(runID, eventstore.GroupCompletedPayload{
				Index:      g.Index,
				Repository: g.Repository,
				Commit:     g.Commit,
				Extensions: g.Extensions,
				Status:     string(status),
				DurationMS: time.Since(start).Milliseconds(),
			})
		})
	}()

	observability.InfoContext(ctx, "Building group",
		logfields.Repository(g.Repository),
		logfields.Commit(g.Commit),
		logfields.Count(len(g.Extensions)))

	out, err := s.runner.RunGroup(ctx, g, store)
	var res *group.Result
	if out != nil {
		res = out.Result
		if out.Tracker != nil {
			status = out.Tracker.Status()
		}
	}
	rec.ApplyGroup(ctx, rs, g, res, err)

	observability.InfoContext(ctx, "Group finished",
		slog.String("status", string(status)),
		logfields.DurationMS(float64(time.Since(start).Milliseconds())))
}
