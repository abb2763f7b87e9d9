// Package sandbox runs the two phases of a group build in containers.
//
// The fetch phase has network access and may write to the shared package store. The
// build phase has no network and sees the store read-only. Each phase declares its own
// mount set; nothing is toggled on a shared one.
package sandbox
