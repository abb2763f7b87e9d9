package worker

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
)

// StoreDirEnv points pnpm at the package store.
const StoreDirEnv = "NPM_CONFIG_STORE_DIR"

// PackageManager runs the dependency and script steps of a build.
type PackageManager interface {
	// Fetch downloads every locked dependency into the store.
	Fetch(ctx context.Context, sourceDir string) error
	// Install links dependencies from the store without touching the network.
	Install(ctx context.Context, sourceDir string) error
	RunScript(ctx context.Context, sourceDir, script string) error
}

// InstallArgs are the arguments of the offline install.
var InstallArgs = []string{
	"install",
	"--frozen-lockfile",
	"--offline",
	"--config.confirmModulesPurge=false",
	"--config.managePackageManagerVersions=false",
}

// Pnpm invokes the pnpm binary found on PATH.
type Pnpm struct {
	Bin      string
	StoreDir string
	Stdout   io.Writer
	Stderr   io.Writer
}

func NewPnpm(storeDir string) *Pnpm {
	return &Pnpm{Bin: "pnpm", StoreDir: storeDir, Stdout: os.Stdout, Stderr: os.Stderr}
}

func (p *Pnpm) Fetch(ctx context.Context, sourceDir string) error {
	return p.run(ctx, sourceDir, "fetch")
}

func (p *Pnpm) Install(ctx context.Context, sourceDir string) error {
	return p.run(ctx, sourceDir, InstallArgs...)
}

func (p *Pnpm) RunScript(ctx context.Context, sourceDir, script string) error {
	return p.run(ctx, sourceDir, "run", script)
}

// run executes pnpm with only PATH and the store location in its environment.
func (p *Pnpm) run(ctx context.Context, dir string, args ...string) error {
	bin, err := exec.LookPath(p.Bin)
	if err != nil {
		return fmt.Errorf("pnpm not found: %w", err)
	}
	// #nosec G204 - arguments are fixed or come from the group instructions
	cmd := exec.CommandContext(ctx, bin, args...)
	cmd.Dir = dir
	cmd.Env = []string{"PATH=" + os.Getenv("PATH"), StoreDirEnv + "=" + p.StoreDir}
	cmd.Stdout = p.Stdout
	cmd.Stderr = p.Stderr
	if err := cmd.Run(); err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return fmt.Errorf("process exited with code %d", exitErr.ExitCode())
		}
		return err
	}
	return nil
}
