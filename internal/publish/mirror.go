package publish

import (
	"context"
	"fmt"
	"log/slog"
	"path"
	"path/filepath"
	"strings"

	"git.home.luguber.info/inful/extrunner/internal/changes"
	"git.home.luguber.info/inful/extrunner/internal/foundation/errors"
	"git.home.luguber.info/inful/extrunner/internal/logfields"
	"git.home.luguber.info/inful/extrunner/internal/observability"
	"git.home.luguber.info/inful/extrunner/internal/reconcile"
	"git.home.luguber.info/inful/extrunner/internal/retry"
	"git.home.luguber.info/inful/extrunner/internal/state"
)

const (
	contentTypeArchive = "application/octet-stream"
	contentTypeJSON    = "application/json"
)

// Mirror copies the outcome of a run from the dist directory to an object store.
type Mirror struct {
	store  ObjectStore
	policy retry.Policy
	prefix string
	dist   string
}

// NewMirror mirrors distRoot under prefix in store.
func NewMirror(store ObjectStore, policy retry.Policy, distRoot, prefix string) *Mirror {
	return &Mirror{
		store:  store,
		policy: policy,
		prefix: strings.Trim(prefix, "/"),
		dist:   distRoot,
	}
}

func (m *Mirror) key(parts ...string) string {
	if m.prefix == "" {
		return path.Join(parts...)
	}
	return path.Join(append([]string{m.prefix}, parts...)...)
}

// Sync uploads the archive of every extension built without errors, deletes the objects
// of removed extensions and finally uploads the build state. It stops at the first
// failure so the remote state never points at archives that were not uploaded.
func (m *Mirror) Sync(ctx context.Context, rs *changes.RunnerState) error {
	uploaded, removed := 0, 0
	for _, e := range rs.Entries() {
		c := e.Change
		switch {
		case c.Type.Builds() && len(c.Errors) == 0:
			archive := filepath.Join(m.dist, reconcile.ExtsDir, e.ID+".asar")
			key := m.key(reconcile.ExtsDir, e.ID+".asar")
			if err := m.do(ctx, "upload archive", func(ctx context.Context) error {
				return m.store.PutFile(ctx, key, archive, contentTypeArchive)
			}); err != nil {
				return m.wrap(err, key)
			}
			uploaded++
		case c.Type == changes.KindRemove:
			key := m.key(reconcile.ExtsDir, e.ID+".asar")
			if err := m.do(ctx, "remove archive", func(ctx context.Context) error {
				return m.store.Remove(ctx, key)
			}); err != nil {
				return m.wrap(err, key)
			}
			removed++
		}
	}

	key := m.key(state.FileName)
	if err := m.do(ctx, "upload state", func(ctx context.Context) error {
		return m.store.PutFile(ctx, key, state.Path(m.dist), contentTypeJSON)
	}); err != nil {
		return m.wrap(err, key)
	}

	observability.InfoContext(ctx, "Mirrored dist directory",
		logfields.Count(uploaded),
		logfields.Path(m.key()),
		slog.Int("removed", removed))
	return nil
}

func (m *Mirror) do(ctx context.Context, op string, fn func(context.Context) error) error {
	return m.policy.Do(ctx, op, func(ctx context.Context) error {
		if err := fn(ctx); err != nil {
			return errors.NetworkError(op + " failed").WithCause(err).Build()
		}
		return nil
	})
}

func (m *Mirror) wrap(err error, key string) error {
	return errors.WrapError(err, errors.CategoryNetwork, fmt.Sprintf("failed to mirror %s", key)).
		WithContext("key", key).
		Build()
}
