// Package memory implements the Memory Executor: it attaches
// allocator-symbol probes to the benchmarked process, toggles them
// through a one-shot IPC link keyed to the control-channel sample
// window, and persists the drained allocation records per benchmark.
package memory

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

	"github.com/Masterminds/semver/v3"
	"github.com/go-logr/logr"
	"github.com/rs/xid"

	"github.com/sarchlab/codspeed-runner/errkind"
	"github.com/sarchlab/codspeed-runner/executor"
	"github.com/sarchlab/codspeed-runner/execwrap"
	"github.com/sarchlab/codspeed-runner/fifo"
)

// minIntegrationVersions floors the integration version accepted per
// integration name. SetIntegration below the floor is rejected.
var minIntegrationVersions = map[string]string{
	"pytest-codspeed": "2.0.0",
	"codspeed-rust":   "2.0.0",
	"codspeed-node":   "2.0.0",
}

// artifactPrefix names the per-benchmark memory-artifact files Teardown
// scans for.
const artifactPrefix = "memory-"

// Executor is the Memory Executor.
type Executor struct {
	Log        logr.Logger
	AllowEmpty bool

	// ProbeFactory builds the ProbeSet used for each Run; it defaults to
	// NewRingProbeSet and is overridable so tests can inject a fake
	// probe set.
	ProbeFactory func() ProbeSet

	profileDir string
	channel    *fifo.Channel
	server     *fifo.Server
	toggle     *toggleLink
	probes     ProbeSet

	mu          sync.Mutex
	currentURI  string
	currentPID  int32
	currentPath string
	sampleOpen  bool
	recorded    []AllocationEvent
	artifacts   []artifact
	drainDoneCh chan struct{}
}

// artifact records one written memory-artifact file and the benchmark
// it belongs to.
type artifact struct {
	Path string
	URI  string
}

// New constructs a Memory Executor that logs through log and drains the
// shipped ring-buffer ProbeSet.
func New(log logr.Logger) *Executor {
	return &Executor{Log: log, ProbeFactory: NewRingProbeSet}
}

func (e *Executor) Name() string { return "memory" }

// Setup opens the control-channel FIFOs and the toggle socket, and
// attaches the probe set.
func (e *Executor) Setup(_ context.Context, cfg executor.Config) error {
	ch, err := fifo.Open(cfg.FIFOPaths)
	if err != nil {
		return errkind.New(errkind.Configuration, "memory.Setup", err)
	}
	e.channel = ch
	e.server = fifo.NewServer(ch, e, cfg.Log, nowNs)
	e.AllowEmpty = cfg.AllowEmpty
	e.profileDir = cfg.ProfileDir
	e.drainDoneCh = make(chan struct{})
	e.probes = e.ProbeFactory()

	return nil
}

// Run spawns the wrapped command, accepts the toggle connection from
// the memory tracker embedded in it, and drives the control-channel
// protocol and the ring-buffer drain concurrently until the command
// exits.
func (e *Executor) Run(ctx context.Context, cfg executor.Config) ([]executor.Outcome, error) {
	togglePath := filepath.Join(cfg.ProfileDir, "memory-toggle.sock")

	env := map[string]string{
		"CODSPEED_RUNNER_MODE":    "memory",
		"CODSPEED_PROFILE_FOLDER": cfg.ProfileDir,
		"CODSPEED_MEMORY_TOGGLE":  togglePath,
		"CODSPEED_MEMORY_SYMBOLS": strings.Join(allocatorSymbolFamilies, ":"),
	}
	for k, v := range cfg.Env {
		env[k] = v
	}

	cmd, err := execwrap.Command(ctx, execwrap.Options{Argv: cfg.Command, Env: env})
	if err != nil {
		return nil, errkind.New(errkind.Spawn, "memory.Run", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, errkind.New(errkind.Spawn, "memory.Run", err)
	}

	if err := e.probes.Attach(cmd.Process.Pid); err != nil {
		return nil, errkind.New(errkind.Configuration, "memory.Run", err)
	}

	toggle, err := openToggleLink(togglePath)
	if err != nil {
		return nil, errkind.New(errkind.Backend, "memory.Run", err)
	}
	e.toggle = toggle

	go e.drain()

	serveErrCh := make(chan error, 1)
	go func() { serveErrCh <- e.server.Serve() }()

	runErr := cmd.Wait()
	_ = e.probes.Close()
	<-e.drainDoneCh

	if runErr != nil {
		if _, ok := runErr.(*exec.ExitError); !ok {
			return nil, errkind.New(errkind.Spawn, "memory.Run", runErr)
		}
	}

	if err := <-serveErrCh; err != nil {
		return nil, errkind.New(errkind.Protocol, "memory.Run", err)
	}

	if err := e.flush(); err != nil {
		return nil, errkind.New(errkind.Spawn, "memory.Run", err)
	}

	return e.outcomes(), nil
}

// drain reads every record the probe set delivers until its Events
// channel closes, appending each to the current sample window's
// buffer. It is the runner side of the ring-buffer hand-off.
func (e *Executor) drain() {
	defer close(e.drainDoneCh)
	for ev := range e.probes.Events() {
		e.mu.Lock()
		if e.sampleOpen {
			e.recorded = append(e.recorded, ev)
		}
		e.mu.Unlock()
	}
}

// flush writes out whatever was recorded for the last open sample
// window, in case Teardown runs before a trailing StopBenchmark was
// observed.
func (e *Executor) flush() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.currentPath == "" {
		return nil
	}
	return e.writeArtifactLocked()
}

// openArtifactLocked creates (truncating) the artifact file for the
// sample window about to start. The file is created empty so a window
// with no allocation events leaves behind a genuinely empty file,
// which is what Teardown's empty-results scan keys on. Callers must
// hold e.mu.
func (e *Executor) openArtifactLocked() error {
	name := fmt.Sprintf("%s%s.json", artifactPrefix, xid.New().String())
	path := filepath.Join(e.profileDir, name)

	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}

	e.currentPath = path
	e.artifacts = append(e.artifacts, artifact{Path: path, URI: e.currentURI})
	return nil
}

// writeArtifactLocked serializes whatever was buffered to the sample
// window's already-created artifact file. Callers must hold e.mu.
func (e *Executor) writeArtifactLocked() error {
	if len(e.recorded) == 0 {
		e.currentPath = ""
		e.recorded = nil
		return nil
	}

	payload := struct {
		URI     string            `json:"uri"`
		PID     int32             `json:"pid"`
		Records []AllocationEvent `json:"records"`
	}{URI: e.currentURI, PID: e.currentPID, Records: e.recorded}

	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	if err := os.WriteFile(e.currentPath, data, 0o644); err != nil {
		return err
	}

	e.currentPath = ""
	e.recorded = nil
	return nil
}

func (e *Executor) outcomes() []executor.Outcome {
	out := make([]executor.Outcome, 0, len(e.artifacts))
	for _, a := range e.artifacts {
		out = append(out, executor.Outcome{Name: a.URI, URI: a.URI, Succeeded: true, ArtifactPath: a.Path})
	}
	return out
}

// Teardown scans the profile folder for memory-artifact files and fails
// unless at least one is non-empty, matching the empty-results guard
// toggled off by AllowEmpty.
func (e *Executor) Teardown(_ context.Context, cfg executor.Config) error {
	defer func() { _ = e.channel.Close() }()
	if e.toggle != nil {
		_ = e.toggle.Close()
	}

	entries, err := os.ReadDir(cfg.ProfileDir)
	if err != nil {
		return errkind.New(errkind.EmptyResults, "memory.Teardown", err)
	}

	anyNonEmpty := false
	found := false
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasPrefix(entry.Name(), artifactPrefix) {
			continue
		}
		found = true
		info, err := entry.Info()
		if err != nil {
			continue
		}
		if info.Size() > 0 {
			anyNonEmpty = true
		}
	}

	if !found || !anyNonEmpty {
		if cfg.AllowEmpty {
			e.Log.Info("no allocation records observed during memory run")
			return nil
		}
		return errkind.New(errkind.EmptyResults, "memory.Teardown",
			fmt.Errorf("no non-empty memory artifacts were produced"))
	}

	return nil
}

// OnSampleStart enables the probe set and flips the toggle link to
// tracking_enabled=true before the StartBenchmark ack is sent.
func (e *Executor) OnSampleStart(uint64) error {
	e.mu.Lock()
	if len(e.server.Timeline.URIs) > 0 {
		last := e.server.Timeline.URIs[len(e.server.Timeline.URIs)-1]
		e.currentURI = last.URI
		e.currentPID = last.PID
	}
	e.sampleOpen = true
	err := e.openArtifactLocked()
	e.mu.Unlock()
	if err != nil {
		return err
	}

	e.probes.Enable()
	return e.toggle.Set(true)
}

// OnSampleEnd disables tracking, flushes the buffered records for the
// window just closed, and disarms the probe set before the
// StopBenchmark ack is sent.
func (e *Executor) OnSampleEnd(uint64) error {
	if err := e.toggle.Set(false); err != nil {
		return err
	}
	e.probes.Disable()

	e.mu.Lock()
	e.sampleOpen = false
	err := e.writeArtifactLocked()
	e.mu.Unlock()
	return err
}

func (e *Executor) IntegrationMode() fifo.IntegrationMode { return fifo.IntegrationModeAnalysis }

// ValidateIntegration rejects integrations below this backend's version
// floor; unrecognized integration names are accepted unconditionally.
func (e *Executor) ValidateIntegration(name, version string) error {
	floor, ok := minIntegrationVersions[name]
	if !ok {
		return nil
	}

	got, err := semver.NewVersion(version)
	if err != nil {
		return fmt.Errorf("unparseable integration version %q: %w", version, err)
	}
	floorVer, err := semver.NewVersion(floor)
	if err != nil {
		return err
	}
	if got.LessThan(floorVer) {
		return fmt.Errorf("integration %s version %s is below the minimum supported %s", name, version, floor)
	}
	return nil
}

// HealthCheck ends the control-channel session once the drain loop has
// observed the probe set close, i.e. the wrapped command has exited.
func (e *Executor) HealthCheck() error {
	select {
	case <-e.drainDoneCh:
		return fmt.Errorf("wrapped command already completed")
	default:
		return nil
	}
}

func nowNs() uint64 { return uint64(time.Now().UnixNano()) }
