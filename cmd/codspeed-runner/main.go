// Command codspeed-runner is the top-level entry point: it resolves the
// execution context, selects one of the three instrumentation backends,
// and drives it through Setup/Run/Teardown against the caller's command.
package main

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/go-logr/logr"
	"github.com/spf13/pflag"

	"github.com/sarchlab/codspeed-runner/errkind"
	"github.com/sarchlab/codspeed-runner/execctx"
	"github.com/sarchlab/codspeed-runner/executor"
	"github.com/sarchlab/codspeed-runner/executor/memory"
	"github.com/sarchlab/codspeed-runner/executor/simulation"
	"github.com/sarchlab/codspeed-runner/executor/walltime"
	"github.com/sarchlab/codspeed-runner/fifo"
	"github.com/sarchlab/codspeed-runner/runenv"
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	flags := pflag.NewFlagSet("codspeed-runner", pflag.ContinueOnError)
	mode := flags.String("mode", "instrumentation", "instrumentation backend: instrumentation|walltime|memory")
	profileDir := flags.String("profile-dir", "", "profile folder; a temp directory is used if empty")
	allowEmpty := flags.Bool("allow-empty", false, "downgrade an empty-results condition to a warning")
	token := flags.String("token", "", "local auth token; prompted for via the provider if unset")

	if err := flags.Parse(args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 2
	}

	argv := flags.Args()
	if len(argv) == 0 {
		fmt.Fprintln(os.Stderr, "codspeed-runner: no command given")
		return 2
	}

	kind, err := parseKind(*mode)
	if err != nil {
		fmt.Fprintln(os.Stderr, "codspeed-runner:", err)
		return 2
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	provider, auth := selectEnvironment()

	ectx, err := execctx.New(
		execctx.Config{Command: argv, Mode: kind, ProfileDir: *profileDir},
		execctx.CodSpeedConfig{Token: *token},
		provider, auth,
	)
	if err != nil {
		fmt.Fprintln(os.Stderr, "codspeed-runner:", err)
		return exitCodeFor(err)
	}
	defer ectx.Close()

	ex, err := newExecutor(kind, ectx.Log)
	if err != nil {
		fmt.Fprintln(os.Stderr, "codspeed-runner:", err)
		return 1
	}

	cfg := executor.Config{
		Command:    argv,
		Env:        childEnv(kind, ectx),
		ProfileDir: ectx.ProfileDir,
		FIFOPaths: fifo.Paths{
			Control: filepath.Join(ectx.ProfileDir, "control.fifo"),
			Ack:     filepath.Join(ectx.ProfileDir, "ack.fifo"),
		},
		Log:        ectx.Log,
		AllowEmpty: *allowEmpty,
	}

	outcomes, err := runExecutor(ctx, ex, cfg)
	if err != nil {
		fmt.Fprintln(os.Stderr, "codspeed-runner:", err)
		return exitCodeFor(err)
	}

	for _, o := range outcomes {
		status := "ok"
		if !o.Succeeded {
			status = "failed"
		}
		fmt.Printf("%s\t%s\t%s\n", o.URI, status, o.ArtifactPath)
	}
	return 0
}

// selectEnvironment picks the Local stub provider/authenticator; a real
// CI OIDC provider is substituted by the caller's deployment, not this
// binary.
func selectEnvironment() (runenv.Provider, runenv.Authenticator) {
	p := &runenv.LocalProvider{}
	return p, p
}

func parseKind(mode string) (executor.Kind, error) {
	switch mode {
	case "instrumentation":
		return executor.Simulation, nil
	case "walltime":
		return executor.WallTime, nil
	case "memory":
		return executor.Memory, nil
	default:
		return 0, fmt.Errorf("unknown mode %q, expected instrumentation|walltime|memory", mode)
	}
}

func newExecutor(kind executor.Kind, log logr.Logger) (executor.Executor, error) {
	switch kind {
	case executor.Simulation:
		return simulation.New(log), nil
	case executor.WallTime:
		return walltime.New(log), nil
	case executor.Memory:
		return memory.New(log), nil
	default:
		return nil, fmt.Errorf("unknown executor kind %v", kind)
	}
}

// childEnv builds the environment variables injected into every child,
// per the external interfaces table: a fixed Python hash seed, JIT perf
// support gated on wall-time mode, the host architecture, the runner
// marker, and the profile folder. CODSPEED_RUNNER_MODE is not set here:
// each backend adds its own value before merging in executor.Config.Env.
func childEnv(kind executor.Kind, ectx *execctx.Context) map[string]string {
	jit := "0"
	if kind == executor.WallTime {
		jit = "1"
	}

	env := map[string]string{
		"PYTHONHASHSEED":          "0",
		"PYTHON_PERF_JIT_SUPPORT": jit,
		"ARCH":                    hostArch(),
		"CODSPEED_ENV":            "runner",
		"CODSPEED_PROFILE_FOLDER": ectx.ProfileDir,
	}
	if kind == executor.Simulation {
		env["PYTHONMALLOC"] = "malloc"
	}
	return env
}

// hostArch reports uname -m's output, falling back to x86_64 when the
// call fails, matching execwrap's own fixed-architecture stabilizer.
func hostArch() string {
	out, err := exec.Command("uname", "-m").Output()
	if err != nil {
		return "x86_64"
	}
	return strings.TrimSpace(string(out))
}

// runExecutor drives the common Setup/Run/Teardown sequence every
// backend follows, always attempting Teardown even when Run fails so
// whatever artifacts exist are still persisted.
func runExecutor(ctx context.Context, ex executor.Executor, cfg executor.Config) ([]executor.Outcome, error) {
	if err := ex.Setup(ctx, cfg); err != nil {
		return nil, err
	}

	outcomes, runErr := ex.Run(ctx, cfg)
	if tdErr := ex.Teardown(ctx, cfg); tdErr != nil && runErr == nil {
		return outcomes, tdErr
	}
	return outcomes, runErr
}

func exitCodeFor(err error) int {
	if errkind.Is(err, errkind.Configuration) {
		return 2
	}
	return 1
}
