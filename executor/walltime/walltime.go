// Package walltime implements the Wall-time Executor: it wraps the
// benchmark command inside a transient systemd scope, drives a statistical
// profiler's control FIFO, and at teardown symbolicates every process it
// observed, persisting symbols, unwind data and a pprof profile per PID.
package walltime

import (
	"context"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/go-logr/logr"

	"github.com/sarchlab/codspeed-runner/errkind"
	"github.com/sarchlab/codspeed-runner/executor"
	"github.com/sarchlab/codspeed-runner/execwrap"
	"github.com/sarchlab/codspeed-runner/fifo"
)

// SamplingHz is the fixed sampling frequency (a prime, to avoid aliasing
// with periodic work) the profiler is configured with.
const SamplingHz = 997

// defaultStackCapBytes is the DWARF call-graph stack cap used for every
// command that is not itself identified as needing a different default.
const defaultStackCapBytes = 8 * 1024

// stackCapFor selects the profiler's call-graph stack cap from the
// command's substring, per §4.E: cargo gets unbounded DWARF unwinding,
// pytest/uv/python get the 8-KiB cap explicitly, everything else defaults
// to the same 8-KiB cap.
func stackCapFor(argv []string) uint64 {
	joined := strings.Join(argv, " ")
	if strings.Contains(joined, "cargo") {
		return 0
	}
	return defaultStackCapBytes
}

// Executor is the Wall-time Executor.
type Executor struct {
	Log        logr.Logger
	AllowEmpty bool

	channel *fifo.Channel
	server  *fifo.Server

	finished atomic.Bool
	primed   atomic.Bool
}

// New constructs a Wall-time Executor that logs through log.
func New(log logr.Logger) *Executor {
	return &Executor{Log: log}
}

func (e *Executor) Name() string { return "wall-time" }

// Setup opens the control-channel FIFOs the profiler's embedded
// integration will connect to.
func (e *Executor) Setup(_ context.Context, cfg executor.Config) error {
	ch, err := fifo.Open(cfg.FIFOPaths)
	if err != nil {
		return errkind.New(errkind.Configuration, "walltime.Setup", err)
	}
	e.channel = ch
	e.server = fifo.NewServer(ch, e, cfg.Log, nowNs)
	e.AllowEmpty = cfg.AllowEmpty
	return nil
}

// Run wraps the command in a transient codspeed.slice systemd scope,
// injects the profiler configuration, and drives the control-channel
// protocol until the wrapped command exits.
func (e *Executor) Run(ctx context.Context, cfg executor.Config) ([]executor.Outcome, error) {
	scoped := execwrap.SystemdScope(cfg.Command)

	env := map[string]string{
		"CODSPEED_RUNNER_MODE":          "walltime",
		"CODSPEED_PROFILE_FOLDER":       cfg.ProfileDir,
		"CODSPEED_PERF_FREQUENCY_HZ":    strconv.Itoa(SamplingHz),
		"CODSPEED_PERF_STACK_CAP_BYTES": strconv.FormatUint(stackCapFor(cfg.Command), 10),
	}
	for k, v := range cfg.Env {
		env[k] = v
	}

	cmd, err := execwrap.Command(ctx, execwrap.Options{Argv: scoped, Env: env})
	if err != nil {
		return nil, errkind.New(errkind.Spawn, "walltime.Run", err)
	}

	serveErrCh := make(chan error, 1)
	go func() { serveErrCh <- e.server.Serve() }()

	runErr := cmd.Run()
	e.finished.Store(true)

	if runErr != nil {
		if _, ok := runErr.(*exec.ExitError); !ok {
			return nil, errkind.New(errkind.Spawn, "walltime.Run", runErr)
		}
	}

	if err := <-serveErrCh; err != nil {
		return nil, errkind.New(errkind.Protocol, "walltime.Run", err)
	}

	return e.outcomes(), nil
}

// Teardown symbolicates every tracked PID and enforces the empty-results
// guard: a run whose control channel recorded no CurrentBenchmark fails
// unless AllowEmpty was set. The guard reads only the URI timeline; no
// walltime JSON file in the profile folder is opened or checked.
func (e *Executor) Teardown(_ context.Context, cfg executor.Config) error {
	defer func() { _ = e.channel.Close() }()

	seen := map[int32]struct{}{}
	var pids []int32
	for _, obs := range e.server.Timeline.URIs {
		if _, ok := seen[obs.PID]; ok {
			continue
		}
		seen[obs.PID] = struct{}{}
		pids = append(pids, obs.PID)
	}

	for _, pid := range pids {
		if err := symbolicate(int(pid), cfg.ProfileDir, e.Log); err != nil {
			e.Log.Info("failed to symbolicate process, continuing", "pid", pid, "error", err)
		}
	}

	if len(e.server.Timeline.URIs) == 0 {
		if cfg.AllowEmpty {
			e.Log.Info("no benchmarks observed during wall-time run")
			return nil
		}
		return errkind.New(errkind.EmptyResults, "walltime.Teardown",
			fmt.Errorf("no benchmark data was produced"))
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

// OnSampleStart records nothing extra: the profiler was already sampling
// the whole scope's lifetime; CurrentBenchmark is what actually drives
// per-PID tracking via RecordCurrentBenchmark.
func (e *Executor) OnSampleStart(uint64) error { return nil }
func (e *Executor) OnSampleEnd(uint64) error   { return nil }

func (e *Executor) IntegrationMode() fifo.IntegrationMode { return fifo.IntegrationModePerf }

// ValidateIntegration accepts every integration unconditionally: the
// wall-time backend has no version floor of its own.
func (e *Executor) ValidateIntegration(string, string) error { return nil }

// pingPerfTimeout returns the deadline for the next PingPerf round trip:
// 5 seconds on the first probe of a session, 1 second on every one after.
func (e *Executor) pingPerfTimeout() time.Duration {
	if e.primed.CompareAndSwap(false, true) {
		return 5 * time.Second
	}
	return 1 * time.Second
}

// HealthCheck probes the embedded profiler with a PingPerf round trip:
// the runner sends PingPerf on the ack fifo and waits for a reply on the
// control fifo, 5 seconds on the first probe and 1 second on every one
// after. A send failure or a missing reply means the profiler has wedged
// while the wrapped scope is still alive, and ends the control-channel
// session.
func (e *Executor) HealthCheck() error {
	if e.finished.Load() {
		return fmt.Errorf("wrapped command already completed")
	}

	if err := e.channel.SendCmd(fifo.Command{Kind: fifo.KindPingPerf}); err != nil {
		return fmt.Errorf("walltime: failed to send PingPerf health check: %w", err)
	}

	if _, err := e.channel.RecvCmd(e.pingPerfTimeout()); err != nil {
		return fmt.Errorf("walltime: PingPerf health check got no reply: %w", err)
	}

	return nil
}

func nowNs() uint64 { return uint64(time.Now().UnixNano()) }
