// Package simulation implements the Simulation Executor: for a directly
// loadable ARM64 binary it runs the command to completion in-process on
// a 5-stage pipeline simulator with latencies taken from a fixed
// callgrind-style cache configuration (no cache is simulated); otherwise it wraps the command as a real child, drives the
// control-channel protocol concurrently, and harvests JIT perf-maps
// after the run.
package simulation

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/go-logr/logr"

	"github.com/sarchlab/codspeed-runner/errkind"
	"github.com/sarchlab/codspeed-runner/executor"
	"github.com/sarchlab/codspeed-runner/execwrap"
	"github.com/sarchlab/codspeed-runner/fifo"
)

// excludedObjects are standard-library and simulator-runtime object files
// the simulator is told never to instrument (§4.D step 2).
var excludedObjects = []string{
	"libsimcore-runtime.so",
	"ld-linux-aarch64.so.1",
}

// Executor is the Simulation Executor. One Executor handles exactly one
// wrapped command; construct a fresh one per run.
type Executor struct {
	Log logr.Logger

	channel *fifo.Channel
	server  *fifo.Server
	exitCh  *execwrap.ExitCodeChannel

	mu         sync.Mutex
	sampleOpen bool
}

// New constructs a Simulation Executor that logs through log.
func New(log logr.Logger) *Executor {
	return &Executor{Log: log}
}

func (e *Executor) Name() string { return "simulation" }

// Setup opens the control-channel FIFOs and the exit-code side channel
// (§4.D step 1), and wires the FIFO server's handler to this Executor.
func (e *Executor) Setup(_ context.Context, cfg executor.Config) error {
	ch, err := fifo.Open(cfg.FIFOPaths)
	if err != nil {
		return errkind.New(errkind.Configuration, "simulation.Setup", err)
	}
	e.channel = ch
	e.server = fifo.NewServer(ch, e, cfg.Log, nowNs)

	exitCh, err := execwrap.NewExitCodeChannel(cfg.ProfileDir)
	if err != nil {
		_ = ch.Close()
		return errkind.New(errkind.Configuration, "simulation.Setup", err)
	}
	e.exitCh = exitCh

	return nil
}

// Run instruments cfg.Command under the CPU-cycle simulator. When the
// command names a directly-loadable ARM64 ELF rather than a shell
// pipeline, it is run to completion in-process on the pipeline simulator
// (§4.D's cycle-accurate instrumentation, with no real external
// callgrind-equivalent binary available to this runner); otherwise the
// command is spawned as a real child and the control-channel protocol is
// driven concurrently, exactly as an external profiler would be wrapped.
func (e *Executor) Run(ctx context.Context, cfg executor.Config) ([]executor.Outcome, error) {
	if len(cfg.Command) == 1 && IsELFLoadable(cfg.Command[0]) {
		return e.runSimulated(cfg)
	}
	return e.runWrapped(ctx, cfg)
}

// runSimulated drives the in-process cycle-accurate path: the command is
// itself the ARM64 binary under test, so it is loaded and run to
// completion on the simulator's 5-stage pipeline (cyclesim.go) rather
// than spawned as a real child process.
func (e *Executor) runSimulated(cfg executor.Config) ([]executor.Outcome, error) {
	path := cfg.Command[0]

	stats, err := RunCycleSimulation(path, os.Stdout, os.Stderr)
	if err != nil {
		return nil, errkind.New(errkind.Backend, "simulation.Run", err)
	}
	if stats.ExitCode != 0 {
		return nil, errkind.New(errkind.ChildRuntime, "simulation.Run",
			fmt.Errorf("simulated command exited with status %d", stats.ExitCode))
	}

	uri := filepath.Base(path)
	artifactPath := filepath.Join(cfg.ProfileDir, fmt.Sprintf("simulation-%s.json", uri))
	data, err := json.Marshal(struct {
		Instructions uint64  `json:"instructions"`
		Cycles       uint64  `json:"cycles"`
		CPI          float64 `json:"cpi"`
	}{stats.Instructions, stats.Cycles, stats.CPI()})
	if err != nil {
		return nil, errkind.New(errkind.Backend, "simulation.Run", err)
	}
	if err := os.WriteFile(artifactPath, data, 0o644); err != nil {
		return nil, errkind.New(errkind.Backend, "simulation.Run", err)
	}

	return []executor.Outcome{{
		Name: uri, URI: uri, Succeeded: true, ArtifactPath: artifactPath,
	}}, nil
}

// runWrapped spawns the wrapped command and drives the control-channel
// protocol until the exit-code side channel is written, then reads back
// the command's real exit status and harvests any perf-maps it produced.
func (e *Executor) runWrapped(ctx context.Context, cfg executor.Config) ([]executor.Outcome, error) {
	wrapped := e.exitCh.WriterScript(cfg.Command)
	argv := execwrap.FixedArch(wrapped)

	env := map[string]string{
		"CODSPEED_RUNNER_MODE":       "instrumentation",
		"CODSPEED_PROFILE_FOLDER":    cfg.ProfileDir,
		"CODSPEED_SIMULATOR_EXCLUDE": strings.Join(excludedObjects, ":"),
	}
	for k, v := range cfg.Env {
		env[k] = v
	}

	cmd, err := execwrap.Command(ctx, execwrap.Options{Argv: argv, Env: env})
	if err != nil {
		return nil, errkind.New(errkind.Spawn, "simulation.Run", err)
	}

	serveErrCh := make(chan error, 1)
	go func() { serveErrCh <- e.server.Serve() }()

	if err := cmd.Run(); err != nil {
		if _, ok := err.(*exec.ExitError); !ok {
			return nil, errkind.New(errkind.Spawn, "simulation.Run", err)
		}
		// A non-zero wrapper exit is expected: the wrapper's own status is
		// not the benchmarked command's, which is recovered below from the
		// side channel.
	}

	if err := <-serveErrCh; err != nil {
		return nil, errkind.New(errkind.Protocol, "simulation.Run", err)
	}

	code, err := e.exitCh.Read()
	if err != nil {
		return nil, errkind.New(errkind.ChildRuntime, "simulation.Run", err)
	}
	if code != 0 {
		return nil, errkind.New(errkind.ChildRuntime, "simulation.Run",
			fmt.Errorf("wrapped command exited with status %d", code))
	}

	if err := harvestPerfMaps(cfg.ProfileDir); err != nil {
		e.Log.Info("failed to harvest perf maps", "error", err)
	}

	return e.outcomes(), nil
}

// Teardown releases the FIFO channel and the exit-code side channel.
func (e *Executor) Teardown(_ context.Context, _ executor.Config) error {
	var first error
	if e.exitCh != nil {
		if err := e.exitCh.Close(); err != nil && first == nil {
			first = err
		}
	}
	if e.channel != nil {
		if err := e.channel.Close(); err != nil && first == nil {
			first = err
		}
	}
	if first != nil {
		return errkind.New(errkind.Backend, "simulation.Teardown", first)
	}
	return nil
}

func (e *Executor) outcomes() []executor.Outcome {
	out := make([]executor.Outcome, 0, len(e.server.Timeline.URIs))
	for _, obs := range e.server.Timeline.URIs {
		out = append(out, executor.Outcome{Name: obs.URI, URI: obs.URI, Succeeded: true})
	}
	return out
}

// OnSampleStart satisfies fifo.Handler; the simulator has no separate
// arm/disarm step (instrumentation runs for the command's whole lifetime
// per §4.D's --instr-atstart=no), so this only records the window.
func (e *Executor) OnSampleStart(uint64) error {
	e.mu.Lock()
	e.sampleOpen = true
	e.mu.Unlock()
	return nil
}

func (e *Executor) OnSampleEnd(uint64) error {
	e.mu.Lock()
	e.sampleOpen = false
	e.mu.Unlock()
	return nil
}

// IntegrationMode is never actually queried for the simulation backend,
// but the fifo.Handler interface requires an answer.
func (e *Executor) IntegrationMode() fifo.IntegrationMode { return fifo.IntegrationModeAnalysis }

// ValidateIntegration accepts every integration unconditionally: the
// simulation backend has no version floor of its own.
func (e *Executor) ValidateIntegration(string, string) error { return nil }

// HealthCheck ends the control-channel session once the exit-code side
// channel has been written, i.e. once the wrapped command has completed.
func (e *Executor) HealthCheck() error {
	info, err := os.Stat(e.exitCh.Path)
	if err != nil {
		return nil
	}
	if info.Size() > 0 {
		return fmt.Errorf("wrapped command already completed")
	}
	return nil
}

func nowNs() uint64 { return uint64(time.Now().UnixNano()) }

// harvestPerfMaps copies any perf-<pid>.map files JIT integrations emitted
// under /tmp into the profile folder (§4.D, post-run step).
func harvestPerfMaps(profileDir string) error {
	matches, err := filepath.Glob("/tmp/perf-*.map")
	if err != nil {
		return fmt.Errorf("simulation: failed to glob perf maps: %w", err)
	}
	for _, m := range matches {
		data, err := os.ReadFile(m)
		if err != nil {
			continue
		}
		dst := filepath.Join(profileDir, filepath.Base(m))
		if err := os.WriteFile(dst, data, 0o644); err != nil {
			return fmt.Errorf("simulation: failed to copy %s into profile folder: %w", m, err)
		}
	}
	return nil
}
