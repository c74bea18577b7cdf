package memory

import (
	"fmt"
	"net"
	"os"
	"time"
)

// toggleAcceptTimeout bounds how long the runner waits for the memory
// tracker embedded in the benchmarked process to connect to the toggle
// socket before giving up (§5 "IPC accept... bounded to 5 s").
const toggleAcceptTimeout = 5 * time.Second

// toggleLink is the one-shot IPC channel StartBenchmark/StopBenchmark
// drive, separate from the control-channel FIFOs: a single byte (1 =
// enabled, 0 = disabled) written on every sample-window transition.
type toggleLink struct {
	path string
	ln   *net.UnixListener
	conn net.Conn
}

// openToggleLink binds a Unix-domain socket at path and waits for the
// single connection from the memory tracker.
func openToggleLink(path string) (*toggleLink, error) {
	_ = os.Remove(path)

	addr, err := net.ResolveUnixAddr("unix", path)
	if err != nil {
		return nil, fmt.Errorf("resolve toggle socket address: %w", err)
	}
	ln, err := net.ListenUnix("unix", addr)
	if err != nil {
		return nil, fmt.Errorf("listen on toggle socket: %w", err)
	}

	t := &toggleLink{path: path, ln: ln}

	if err := ln.SetDeadline(time.Now().Add(toggleAcceptTimeout)); err != nil {
		_ = ln.Close()
		return nil, err
	}
	conn, err := ln.Accept()
	if err != nil {
		_ = ln.Close()
		return nil, fmt.Errorf("accept toggle connection: %w", err)
	}
	t.conn = conn

	return t, nil
}

// Set writes the current tracking_enabled state to the connected
// memory tracker.
func (t *toggleLink) Set(enabled bool) error {
	b := byte(0)
	if enabled {
		b = 1
	}
	_, err := t.conn.Write([]byte{b})
	return err
}

func (t *toggleLink) Close() error {
	var err error
	if t.conn != nil {
		err = t.conn.Close()
	}
	if cerr := t.ln.Close(); cerr != nil && err == nil {
		err = cerr
	}
	_ = os.Remove(t.path)
	return err
}
