package fifo

import (
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"syscall"
	"time"
)

// fifoPerm is the permission mode both FIFOs are created with.
const fifoPerm = 0o700

// Paths are the two well-known FIFO filenames for one executor run.
type Paths struct {
	Control string // integration -> runner
	Ack     string // runner -> integration
}

// Channel is the runner's side of the control channel: it owns both FIFO
// file descriptors for the duration of one executor run.
type Channel struct {
	paths   Paths
	control *os.File
	ack     *os.File
}

// Open unlinks and recreates both FIFOs at paths with 0700 permissions,
// then opens them for reading (control) and writing (ack). Opening a FIFO
// for O_RDWR, rather than O_RDONLY/O_WRONLY, lets the runner hold it open
// without blocking on the integration's own open() call, and lets
// RecvCmd apply a read deadline.
func Open(paths Paths) (*Channel, error) {
	for _, p := range []string{paths.Control, paths.Ack} {
		_ = os.Remove(p)
		if err := syscall.Mkfifo(p, fifoPerm); err != nil {
			return nil, fmt.Errorf("fifo: failed to create %s: %w", p, err)
		}
	}

	control, err := os.OpenFile(paths.Control, os.O_RDWR, 0)
	if err != nil {
		return nil, fmt.Errorf("fifo: failed to open control fifo %s: %w", paths.Control, err)
	}

	ack, err := os.OpenFile(paths.Ack, os.O_RDWR, 0)
	if err != nil {
		_ = control.Close()
		return nil, fmt.Errorf("fifo: failed to open ack fifo %s: %w", paths.Ack, err)
	}

	return &Channel{paths: paths, control: control, ack: ack}, nil
}

// Close releases both FIFO file descriptors. The FIFO files themselves
// are left on disk; the next Open call unlinks and recreates them.
func (c *Channel) Close() error {
	err1 := c.control.Close()
	err2 := c.ack.Close()
	if err1 != nil {
		return err1
	}
	return err2
}

// errTimeout is returned by RecvCmd when no command arrived within the
// given timeout.
var errTimeout = fmt.Errorf("fifo: receive timed out")

// IsTimeout reports whether err is the RecvCmd timeout sentinel.
func IsTimeout(err error) bool { return err == errTimeout }

// RecvCmd reads one length-prefixed command off the control FIFO, with a
// hard deadline of timeout. This operation is NOT cancel-safe: if
// RecvCmd's caller abandons it partway (e.g. under select!-style
// cancellation) after the 4-byte length prefix has been read but before
// the payload, the FIFO handle desynchronizes for every subsequent read.
// Callers must drive RecvCmd to completion on each call; concurrent
// liveness checks are handled out-of-band by the health-check loop in
// Serve, not by racing this call.
func (c *Channel) RecvCmd(timeout time.Duration) (Command, error) {
	if err := c.control.SetReadDeadline(time.Now().Add(timeout)); err != nil {
		return Command{}, fmt.Errorf("fifo: failed to set read deadline: %w", err)
	}

	var lenBuf [4]byte
	if _, err := io.ReadFull(c.control, lenBuf[:]); err != nil {
		if os.IsTimeout(err) {
			return Command{}, errTimeout
		}
		return Command{}, fmt.Errorf("fifo: failed to read command length: %w", err)
	}

	length := binary.LittleEndian.Uint32(lenBuf[:])
	payload := make([]byte, length)
	if _, err := io.ReadFull(c.control, payload); err != nil {
		if os.IsTimeout(err) {
			return Command{}, errTimeout
		}
		return Command{}, fmt.Errorf("fifo: failed to read command payload: %w", err)
	}

	return Decode(payload)
}

// SendCmd writes cmd, length-prefixed, onto the ack FIFO.
func (c *Channel) SendCmd(cmd Command) error {
	payload := Encode(cmd)

	var lenBuf [4]byte
	binary.LittleEndian.PutUint32(lenBuf[:], uint32(len(payload)))

	if _, err := c.ack.Write(lenBuf[:]); err != nil {
		return fmt.Errorf("fifo: failed to write command length: %w", err)
	}
	if _, err := c.ack.Write(payload); err != nil {
		return fmt.Errorf("fifo: failed to write command payload: %w", err)
	}
	return nil
}
