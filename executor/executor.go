// Package executor defines the capability set shared by the three
// instrumentation backends (simulation, wall-time, memory) and the tagged
// variant used to select one of them at construction time.
package executor

import (
	"context"

	"github.com/go-logr/logr"

	"github.com/sarchlab/codspeed-runner/fifo"
)

// Kind tags which backend an Executor wraps.
type Kind int

const (
	Simulation Kind = iota
	WallTime
	Memory
)

func (k Kind) String() string {
	switch k {
	case Simulation:
		return "simulation"
	case WallTime:
		return "wall-time"
	case Memory:
		return "memory"
	default:
		return "unknown"
	}
}

// Config is the read-only slice of the Execution Context that every
// executor consumes: the command to wrap, the environment to inject, the
// profile folder to write artifacts into, and the FIFO paths the
// integration is expected to open.
type Config struct {
	Command []string
	Env     map[string]string

	ProfileDir string
	FIFOPaths  fifo.Paths

	Log logr.Logger

	// AllowEmpty downgrades an empty-results condition at teardown from a
	// fatal error to a logged warning (§4.E, §4.F).
	AllowEmpty bool
}

// Outcome is one benchmark's success/failure record, collected across a
// run and handed to a runenv.ResultsUploader collaborator by the caller.
type Outcome struct {
	Name         string
	URI          string
	Succeeded    bool
	Error        error
	ArtifactPath string
}

// Executor is the capability set every backend implements: Setup prepares
// the wrapped command and any side channels, Run spawns and waits for it
// while concurrently driving the control-channel protocol, and Teardown
// persists artifacts and enforces the empty-results guard. Name identifies
// the concrete backend for logging and profile-folder naming.
type Executor interface {
	Name() string
	Setup(ctx context.Context, cfg Config) error
	Run(ctx context.Context, cfg Config) ([]Outcome, error)
	Teardown(ctx context.Context, cfg Config) error
}

// Handler adapts an Executor's sample-window effects to fifo.Server's
// narrower Handler interface, so every backend's FIFO-facing state lives
// behind the same seam regardless of which Kind is in play.
type Handler = fifo.Handler
