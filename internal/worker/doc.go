// Package worker implements the two group phases that run inside the sandbox container.
//
// The fetch phase checks out the source and fills the package store; it is the only
// phase with network access. The build phase installs offline from the store, runs the
// build scripts and packs each extension output into an archive. Both phases report
// their outcome through the group result file and exit cleanly even when the build
// failed, so the runner can tell reported failures from crashes.
package worker
