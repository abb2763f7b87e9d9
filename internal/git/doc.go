// Package git checks out extension sources at an exact commit.
//
// A checkout initializes an empty repository in the target directory, fetches the
// requested commit from the remote, hard-resets the worktree onto it and initializes
// submodules recursively. Failures are returned as classified git errors.
package git
