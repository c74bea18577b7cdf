// Package errkind provides the runner's error taxonomy: a small closed set
// of error kinds that every layer wraps its failures in, so that the
// executor layer and the CLI can decide how to surface a failure (abort,
// downgrade to a warning, add context) by inspecting its kind rather than
// by string-matching a message.
package errkind

import "fmt"

// Kind is one of the six error categories described in the error handling
// design: configuration, spawn, child-runtime, backend, protocol and
// empty-results failures.
type Kind int

const (
	// Configuration covers invalid options: bad duration formats,
	// min > max bounds, or an underspecified harness run.
	Configuration Kind = iota
	// Spawn covers failures to start the wrapped command: not found,
	// permission denied, missing working directory.
	Spawn
	// ChildRuntime covers a wrapped command that ran and then failed:
	// non-zero exit or death by signal.
	ChildRuntime
	// Backend covers failures owned by the instrumentation backend
	// itself: simulator/profiler non-zero exit, missing capability,
	// unwritable kernel sysctl.
	Backend
	// Protocol covers the FIFO wire protocol: bad deserialization,
	// unsupported version, duplicate commands.
	Protocol
	// EmptyResults covers a run that produced no benchmark data.
	EmptyResults
)

func (k Kind) String() string {
	switch k {
	case Configuration:
		return "configuration"
	case Spawn:
		return "spawn"
	case ChildRuntime:
		return "child-runtime"
	case Backend:
		return "backend"
	case Protocol:
		return "protocol"
	case EmptyResults:
		return "empty-results"
	default:
		return "unknown"
	}
}

// Error is the runner's wrapped-error type: it attaches a Kind and the
// operation that failed to an underlying cause, while still composing with
// errors.Is/errors.As through Unwrap.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Kind, e.Op)
	}
	return fmt.Sprintf("%s: %s: %v", e.Kind, e.Op, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// New wraps err (which may be nil) as a Kind-tagged Error attributed to op.
func New(kind Kind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// Is reports whether err is (or wraps) an *Error of the given Kind,
// letting callers write `errkind.Is(err, errkind.Configuration)` instead
// of a type-assert-then-compare dance.
func Is(err error, kind Kind) bool {
	for err != nil {
		if ke, ok := err.(*Error); ok {
			if ke.Kind == kind {
				return true
			}
			err = ke.Err
			continue
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}
