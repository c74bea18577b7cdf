// Package execctx implements the Execution Context: the single
// construction point that validates the host platform, resolves the
// run environment, establishes the profile folder and logger, and
// authenticates before any executor is built.
package execctx

import (
	"fmt"
	"os"
	"runtime"

	"github.com/go-logr/logr"
	"github.com/go-logr/logr/funcr"

	"github.com/sarchlab/codspeed-runner/errkind"
	"github.com/sarchlab/codspeed-runner/executor"
	"github.com/sarchlab/codspeed-runner/runenv"
)

// supportedPlatforms is the GOOS/GOARCH matrix the runner's backends
// (systemd-run, setarch, Mkfifo, the ARM64 in-process simulator) are
// known to work on.
var supportedPlatforms = map[string]bool{
	"linux/amd64": true,
	"linux/arm64": true,
}

// Config is the run-specific input to New: what to run and under which
// backend.
type Config struct {
	Command    []string
	Mode       executor.Kind
	ProfileDir string // if empty, a temp directory is created
}

// CodSpeedConfig is the project-level input to New: anything that would
// ordinarily come from a config file or project settings.
type CodSpeedConfig struct {
	// Token is a pre-supplied local auth token; if empty, the resolved
	// Authenticator is asked for one when the environment is Local.
	Token string
}

// Context is the construction point's result: everything an executor
// needs that isn't specific to one run's command.
type Context struct {
	Log        logr.Logger
	ProfileDir string
	AuthToken  string

	env       runenv.Environment
	logFile   *os.File
	ownsLogFD bool
}

// Option customizes Context construction.
type Option func(*options)

type options struct {
	log        logr.Logger
	hasLog     bool
	profileDir string
}

// WithLogger overrides the default file-sink logger.
func WithLogger(log logr.Logger) Option {
	return func(o *options) {
		o.log = log
		o.hasLog = true
	}
}

// WithProfileDir overrides Config.ProfileDir; mostly useful for tests
// that want a known, pre-created directory.
func WithProfileDir(dir string) Option {
	return func(o *options) { o.profileDir = dir }
}

// New performs construction per the sequence: resolve the run
// environment, validate the host platform, create the profile folder,
// initialize the logger (whose file sink lives in that folder), and
// authenticate (a local token for Local, OIDC validation for CI).
func New(cfg Config, csCfg CodSpeedConfig, provider runenv.Provider, auth runenv.Authenticator, opts ...Option) (*Context, error) {
	o := options{profileDir: cfg.ProfileDir}
	for _, apply := range opts {
		apply(&o)
	}

	env, err := provider.Detect()
	if err != nil {
		return nil, errkind.New(errkind.Configuration, "execctx.New", fmt.Errorf("resolve run environment: %w", err))
	}

	platform := runtime.GOOS + "/" + runtime.GOARCH
	if !supportedPlatforms[platform] {
		return nil, errkind.New(errkind.Configuration, "execctx.New",
			fmt.Errorf("unsupported platform %s", platform))
	}

	ctx := &Context{env: env}

	profileDir := o.profileDir
	if profileDir == "" {
		dir, err := os.MkdirTemp("", "codspeed-runner-")
		if err != nil {
			return nil, errkind.New(errkind.Configuration, "execctx.New", fmt.Errorf("create profile folder: %w", err))
		}
		profileDir = dir
	} else if err := os.MkdirAll(profileDir, 0o755); err != nil {
		return nil, errkind.New(errkind.Configuration, "execctx.New", fmt.Errorf("create profile folder: %w", err))
	}
	ctx.ProfileDir = profileDir

	if o.hasLog {
		ctx.Log = o.log
	} else {
		log, logFile, err := newFileLogger(profileDir)
		if err != nil {
			return nil, errkind.New(errkind.Configuration, "execctx.New", fmt.Errorf("init logger: %w", err))
		}
		ctx.Log = log
		ctx.logFile = logFile
		ctx.ownsLogFD = true
	}

	switch env {
	case runenv.Local:
		token := csCfg.Token
		if token == "" {
			token, err = auth.AuthenticateLocal()
			if err != nil {
				return nil, errkind.New(errkind.Configuration, "execctx.New", fmt.Errorf("authenticate: %w", err))
			}
		}
		ctx.AuthToken = token
	case runenv.CI:
		if err := auth.ValidateCIOIDC(); err != nil {
			return nil, errkind.New(errkind.Configuration, "execctx.New", fmt.Errorf("validate CI OIDC configuration: %w", err))
		}
	}

	return ctx, nil
}

// IsLocal reports whether this run's environment is Local, which
// affects banner display at the CLI layer.
func (c *Context) IsLocal() bool { return c.env == runenv.Local }

// Close releases the logger's file sink, if this Context created one.
func (c *Context) Close() error {
	if c.ownsLogFD && c.logFile != nil {
		return c.logFile.Close()
	}
	return nil
}

// newFileLogger builds a logr.Logger that writes structured lines into
// runner.log inside dir, so the full trace log can be persisted into
// the profile folder alongside every other artifact.
func newFileLogger(dir string) (logr.Logger, *os.File, error) {
	f, err := os.Create(dir + "/runner.log")
	if err != nil {
		return logr.Discard(), nil, err
	}

	write := func(prefix, args string) {
		line := args
		if prefix != "" {
			line = prefix + ": " + args
		}
		fmt.Fprintln(f, line)
	}

	return funcr.New(write, funcr.Options{}), f, nil
}
