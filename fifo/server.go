package fifo

import (
	"strconv"
	"time"

	"github.com/go-logr/logr"

	"github.com/sarchlab/codspeed-runner/errkind"
)

// MinSupportedVersion and CurrentVersion bound the protocol versions this
// runner accepts from SetVersion.
const (
	MinSupportedVersion uint32 = 1
	CurrentVersion      uint32 = 3
)

// recvTimeout is the FIFO's steady-state receive timeout (§5).
const recvTimeout = 1 * time.Second

// Handler supplies the executor-specific effects the state machine in
// Serve triggers: sample-window start/stop, the executor's reported
// integration mode, and the health check run on every receive timeout.
type Handler interface {
	// OnSampleStart is called before the runner acks a StartBenchmark;
	// it must arm whatever profiling/tracking mechanism the executor
	// uses before the ack reaches the integration, so the integration
	// never starts its measured section before instrumentation is live.
	OnSampleStart(nowNs uint64) error

	// OnSampleEnd is called before the runner acks a StopBenchmark; it
	// must disarm instrumentation before the ack is sent.
	OnSampleEnd(nowNs uint64) error

	// IntegrationMode answers GetIntegrationMode for this executor kind.
	IntegrationMode() IntegrationMode

	// ValidateIntegration is consulted on every SetIntegration command. A
	// non-nil error causes the runner to reply Err instead of Ack; most
	// backends accept every integration unconditionally, but the memory
	// executor rejects integrations below its minimum supported version.
	ValidateIntegration(name, version string) error

	// HealthCheck runs whenever RecvCmd times out. A returned error
	// terminates Serve's loop.
	HealthCheck() error
}

// Clock abstracts "now" in nanoseconds so tests can control it; production
// callers pass a wall-clock reader.
type Clock func() uint64

// Server drives the control-channel state machine over one Channel.
type Server struct {
	Channel *Channel
	Handler Handler
	Log     logr.Logger
	Now     Clock

	Timeline Timeline

	versioned   bool
	sampleOpen  bool
	integration struct {
		name    string
		version string
	}
}

// NewServer constructs a Server bound to channel and handler.
func NewServer(channel *Channel, handler Handler, log logr.Logger, now Clock) *Server {
	return &Server{Channel: channel, Handler: handler, Log: log, Now: now}
}

// Serve runs the receive loop until the health check fails or a fatal
// protocol error occurs (unsupported version). It returns nil when the
// loop ends because the health check observed the child is gone — that
// is the ordinary, successful end of a sampling session, not a failure.
func (s *Server) Serve() error {
	for {
		cmd, err := s.Channel.RecvCmd(recvTimeout)
		if err != nil {
			if IsTimeout(err) {
				if hcErr := s.Handler.HealthCheck(); hcErr != nil {
					s.Log.Info("health check failed, ending control-channel session", "error", hcErr)
					return nil
				}
				continue
			}
			// Deserialization errors are warnings, not fatal (§7 Protocol).
			s.Log.Info("failed to decode fifo command, continuing", "error", err)
			continue
		}

		fatal, err := s.handle(cmd)
		if err != nil {
			return err
		}
		if fatal {
			return nil
		}
	}
}

// handle applies one command's effect and sends the appropriate reply.
// It returns fatal=true only for an unsupported protocol version.
func (s *Server) handle(cmd Command) (fatal bool, err error) {
	if !s.versioned {
		if cmd.Kind != KindSetVersion {
			_ = s.Channel.SendCmd(Err("awaiting SetVersion"))
			return false, nil
		}
		if cmd.Version > CurrentVersion || cmd.Version < MinSupportedVersion {
			_ = s.Channel.SendCmd(Err("unsupported protocol version"))
			return true, errkind.New(errkind.Protocol, "fifo.Serve",
				errVersionMismatch(cmd.Version))
		}
		s.versioned = true
		return false, s.Channel.SendCmd(Ack())
	}

	switch cmd.Kind {
	case KindSetVersion:
		// A renegotiation after the initial handshake is treated the
		// same as the first: accept within range, else fatal.
		if cmd.Version > CurrentVersion || cmd.Version < MinSupportedVersion {
			_ = s.Channel.SendCmd(Err("unsupported protocol version"))
			return true, errkind.New(errkind.Protocol, "fifo.Serve", errVersionMismatch(cmd.Version))
		}
		return false, s.Channel.SendCmd(Ack())

	case KindSetIntegration:
		if err := s.Handler.ValidateIntegration(cmd.IntegrationName, cmd.IntegrationVersion); err != nil {
			s.Log.Info("rejecting integration", "name", cmd.IntegrationName,
				"version", cmd.IntegrationVersion, "error", err)
			return false, s.Channel.SendCmd(Err(err.Error()))
		}
		s.integration.name = cmd.IntegrationName
		s.integration.version = cmd.IntegrationVersion
		return false, s.Channel.SendCmd(Ack())

	case KindCurrentBenchmark:
		s.Timeline.RecordCurrentBenchmark(cmd.PID, cmd.URI, s.Now())
		return false, s.Channel.SendCmd(Ack())

	case KindStartBenchmark:
		if s.sampleOpen {
			s.Log.Info("duplicate StartBenchmark, ignoring")
			return false, s.Channel.SendCmd(Ack())
		}
		now := s.Now()
		if err := s.Handler.OnSampleStart(now); err != nil {
			return false, err
		}
		s.sampleOpen = true
		s.Timeline.RecordMarker(Marker{Kind: MarkerSampleStart, TsNs: now})
		return false, s.Channel.SendCmd(Ack())

	case KindStopBenchmark:
		if !s.sampleOpen {
			s.Log.Info("StopBenchmark with no open sample window, ignoring")
			return false, s.Channel.SendCmd(Ack())
		}
		now := s.Now()
		if err := s.Handler.OnSampleEnd(now); err != nil {
			return false, err
		}
		s.sampleOpen = false
		s.Timeline.RecordMarker(Marker{Kind: MarkerSampleEnd, TsNs: now})
		return false, s.Channel.SendCmd(Ack())

	case KindAddMarker:
		s.Timeline.RecordMarker(cmd.Marker)
		return false, s.Channel.SendCmd(Ack())

	case KindGetIntegrationMode:
		return false, s.Channel.SendCmd(Command{Kind: KindGetIntegrationMode, Mode: s.Handler.IntegrationMode()})

	case KindPingPerf:
		return false, s.Channel.SendCmd(Ack())

	default:
		return false, s.Channel.SendCmd(Err("unknown command"))
	}
}

func errVersionMismatch(v uint32) error {
	return &versionMismatchError{version: v}
}

type versionMismatchError struct {
	version uint32
}

func (e *versionMismatchError) Error() string {
	return "unsupported protocol version " + strconv.FormatUint(uint64(e.version), 10)
}
