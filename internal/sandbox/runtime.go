package sandbox

import (
	"context"
	"io"
)

// Runtime is the container engine used to run phases.
type Runtime interface {
	// Create creates a stopped container and returns its ID.
	Create(ctx context.Context, spec Spec) (string, error)
	// Attach streams the container's stdout and stderr until the returned closer is closed
	// or the container exits.
	Attach(ctx context.Context, id string, stdout, stderr io.Writer) (io.Closer, error)
	Start(ctx context.Context, id string) error
	// Wait blocks until the container stops and returns its exit code.
	Wait(ctx context.Context, id string) (int64, error)
	// Remove deletes the container. Force also kills it if it is running.
	Remove(ctx context.Context, id string, force bool) error
}
