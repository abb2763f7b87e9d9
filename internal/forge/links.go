// Package forge builds web links to commits on known git forges.
package forge

import (
	"fmt"
	"net/url"
	"strings"
)

// Type identifies a forge.
type Type string

const ForgeGitHub Type = "github"

// Repository is a repository on a known forge.
type Repository struct {
	Type  Type
	Owner string
	Repo  string
}

// ParseRepository recognizes repository URLs of known forges. It returns false for
// anything else.
func ParseRepository(raw string) (Repository, bool) {
	u, err := url.Parse(raw)
	if err != nil {
		return Repository{}, false
	}
	switch u.Hostname() {
	case "github.com":
		p := strings.TrimPrefix(strings.TrimSuffix(u.Path, ".git"), "/")
		owner, repo, _ := strings.Cut(p, "/")
		repo, _, _ = strings.Cut(repo, "/")
		return Repository{Type: ForgeGitHub, Owner: owner, Repo: repo}, true
	}
	return Repository{}, false
}

func (r Repository) base() string {
	switch r.Type {
	case ForgeGitHub:
		return fmt.Sprintf("https://github.com/%s/%s", r.Owner, r.Repo)
	default:
		return ""
	}
}

// CommitLink returns the web page of commit, or "" for unknown forges.
func CommitLink(repository, commit string) string {
	if r, ok := ParseRepository(repository); ok {
		return r.base() + "/commit/" + commit
	}
	return ""
}

// TreeLink returns the file browser at commit, or "" for unknown forges.
func TreeLink(repository, commit string) string {
	if r, ok := ParseRepository(repository); ok {
		return r.base() + "/tree/" + commit
	}
	return ""
}

// CompareLink returns the diff between two commits, or "" for unknown forges.
func CompareLink(repository, oldCommit, newCommit string) string {
	if r, ok := ParseRepository(repository); ok {
		return fmt.Sprintf("%s/compare/%s...%s", r.base(), oldCommit, newCommit)
	}
	return ""
}

// MaybeWrapLink renders text as a markdown link when link is set.
func MaybeWrapLink(text, link string) string {
	if link == "" {
		return text
	}
	return "[" + text + "](" + link + ")"
}
