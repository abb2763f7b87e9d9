package sandbox

import (
	"fmt"
	"path"
	"path/filepath"

	"git.home.luguber.info/inful/extrunner/internal/group"
)

// Phase is one container run within a group build.
type Phase string

const (
	PhaseFetch Phase = "fetch"
	PhaseBuild Phase = "build"
)

// Mount is a bind mount from a daemon-side path into the container.
type Mount struct {
	Source   string
	Target   string
	ReadOnly bool
}

// Limits caps the resources of a phase container. Zero values mean unlimited.
type Limits struct {
	MemoryBytes int64
	NanoCPUs    int64
	PidsLimit   int64
}

// Spec fully describes a container to run.
type Spec struct {
	Name            string
	Image           string
	Cmd             []string
	Env             []string
	Mounts          []Mount
	NetworkDisabled bool
	Limits          Limits
}

// Paths locates a group's files on the daemon side and inside the container.
type Paths struct {
	GroupHost      string
	StoreHost      string
	ContainerGroup string
	ContainerStore string
}

func (p Paths) groupFile(name string) Mount {
	return Mount{
		Source: filepath.Join(p.GroupHost, name),
		Target: path.Join(p.ContainerGroup, name),
	}
}

// FetchMounts is the mount set of the fetch phase: instructions read-only, result,
// source and store writable.
func FetchMounts(p Paths) []Mount {
	instructions := p.groupFile(group.InstructionsFile)
	instructions.ReadOnly = true
	return []Mount{
		instructions,
		p.groupFile(group.ResultFile),
		p.groupFile(group.SourceDir),
		{Source: p.StoreHost, Target: p.ContainerStore},
	}
}

// BuildMounts is the mount set of the build phase: the store becomes read-only and the
// output directory is added.
func BuildMounts(p Paths) []Mount {
	instructions := p.groupFile(group.InstructionsFile)
	instructions.ReadOnly = true
	return []Mount{
		instructions,
		p.groupFile(group.ResultFile),
		p.groupFile(group.SourceDir),
		{Source: p.StoreHost, Target: p.ContainerStore, ReadOnly: true},
		p.groupFile(group.OutputDir),
	}
}

// PhaseSpec returns the container spec for phase. The container runs the same binary
// in its group mode.
func PhaseSpec(phase Phase, image string, p Paths, limits Limits) (Spec, error) {
	spec := Spec{
		Image:  image,
		Cmd:    []string{"group", string(phase)},
		Env:    []string{"MOONLIGHT_BUILD_MODE=" + string(phase)},
		Limits: limits,
	}
	switch phase {
	case PhaseFetch:
		spec.Mounts = FetchMounts(p)
	case PhaseBuild:
		spec.Mounts = BuildMounts(p)
		spec.NetworkDisabled = true
	default:
		return Spec{}, fmt.Errorf("unknown phase %q", phase)
	}
	return spec, nil
}
