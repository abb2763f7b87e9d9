package git

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"regexp"

	"github.com/go-git/go-git/v5"
	gitcfg "github.com/go-git/go-git/v5/config"
	"github.com/go-git/go-git/v5/plumbing"

	"git.home.luguber.info/inful/extrunner/internal/logfields"
	"git.home.luguber.info/inful/extrunner/internal/retry"
)

const remoteName = "origin"

// fetchedRef holds the fetched commit so it stays reachable.
const fetchedRef = "refs/remotes/origin/extrunner-checkout"

var fullHash = regexp.MustCompile(`^[0-9a-fA-F]{40}$`)

// Client checks out repositories.
type Client struct {
	policy   retry.Policy
	progress io.Writer
}

// NewClient returns a client that retries transient network failures with policy.
func NewClient(policy retry.Policy) *Client {
	return &Client{policy: policy}
}

// WithProgress streams remote progress messages to w.
func (c *Client) WithProgress(w io.Writer) *Client { c.progress = w; return c }

// Checkout places the tree of commit from url into dir, which must exist and be empty.
// Submodules are initialized recursively.
func (c *Client) Checkout(ctx context.Context, dir, url, commit string) error {
	slog.Info("Checking out repository", logfields.URL(url), logfields.Commit(commit), logfields.Path(dir))

	repo, err := git.PlainInit(dir, false)
	if err != nil {
		return ClassifyGitError(fmt.Errorf("init: %w", err), "init", url)
	}
	if _, err := repo.CreateRemote(&gitcfg.RemoteConfig{Name: remoteName, URLs: []string{url}}); err != nil {
		return ClassifyGitError(fmt.Errorf("add remote: %w", err), "remote", url)
	}

	hash, err := c.fetchCommit(ctx, repo, url, commit)
	if err != nil {
		return err
	}

	wt, err := repo.Worktree()
	if err != nil {
		return ClassifyGitError(err, "worktree", url)
	}
	if err := wt.Reset(&git.ResetOptions{Commit: hash, Mode: git.HardReset}); err != nil {
		return ClassifyGitError(fmt.Errorf("reset to %s: %w", hash, err), "reset", url)
	}

	if err := c.updateSubmodules(ctx, wt, url); err != nil {
		return err
	}
	slog.Info("Repository checked out", logfields.URL(url), logfields.Commit(hash.String()))
	return nil
}

// fetchCommit fetches commit. A full hash is fetched directly; anything else, or a remote
// that refuses to serve unadvertised objects, falls back to fetching all branches and
// tags and resolving the revision locally.
func (c *Client) fetchCommit(ctx context.Context, repo *git.Repository, url, commit string) (plumbing.Hash, error) {
	if fullHash.MatchString(commit) {
		spec := gitcfg.RefSpec(fmt.Sprintf("+%s:%s", commit, fetchedRef))
		err := c.fetch(ctx, repo, url, []gitcfg.RefSpec{spec}, 1)
		if err == nil {
			return plumbing.NewHash(commit), nil
		}
		slog.Warn("Fetching commit directly failed, fetching all refs", logfields.URL(url), logfields.Error(err))
	}

	specs := []gitcfg.RefSpec{
		"+refs/heads/*:refs/remotes/origin/*",
		"+refs/tags/*:refs/tags/*",
	}
	if err := c.fetch(ctx, repo, url, specs, 0); err != nil {
		return plumbing.ZeroHash, err
	}
	hash, err := repo.ResolveRevision(plumbing.Revision(commit))
	if err != nil {
		return plumbing.ZeroHash, ClassifyGitError(fmt.Errorf("resolve %s: %w", commit, err), "resolve", url)
	}
	return *hash, nil
}

func (c *Client) fetch(ctx context.Context, repo *git.Repository, url string, specs []gitcfg.RefSpec, depth int) error {
	return c.policy.Do(ctx, "git fetch", func(ctx context.Context) error {
		err := repo.FetchContext(ctx, &git.FetchOptions{
			RemoteName: remoteName,
			RefSpecs:   specs,
			Depth:      depth,
			Tags:       git.NoTags,
			Progress:   c.progress,
		})
		if err == nil || errors.Is(err, git.NoErrAlreadyUpToDate) {
			return nil
		}
		return ClassifyGitError(err, "fetch", url)
	})
}

func (c *Client) updateSubmodules(ctx context.Context, wt *git.Worktree, url string) error {
	subs, err := wt.Submodules()
	if err != nil {
		return ClassifyGitError(fmt.Errorf("list submodules: %w", err), "submodule", url)
	}
	if len(subs) == 0 {
		return nil
	}
	err = c.policy.Do(ctx, "git submodule update", func(ctx context.Context) error {
		err := subs.UpdateContext(ctx, &git.SubmoduleUpdateOptions{
			Init:              true,
			RecurseSubmodules: git.DefaultSubmoduleRecursionDepth,
		})
		return ClassifyGitError(err, "submodule", url)
	})
	if err != nil {
		return err
	}
	slog.Debug("Submodules updated", logfields.Count(len(subs)))
	return nil
}
