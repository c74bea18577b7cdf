package walltime

import (
	"context"
	"encoding/binary"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/go-logr/logr"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/codspeed-runner/executor"
	"github.com/sarchlab/codspeed-runner/fifo"
)

func writeFramedCmd(w *os.File, cmd fifo.Command) {
	payload := fifo.Encode(cmd)
	var lenBuf [4]byte
	binary.LittleEndian.PutUint32(lenBuf[:], uint32(len(payload)))
	_, _ = w.Write(append(lenBuf[:], payload...))
}

var _ = Describe("pingPerfTimeout", func() {
	It("gives the first probe 5s and every one after 1s", func() {
		e := &Executor{}
		Expect(e.pingPerfTimeout()).To(Equal(5 * time.Second))
		Expect(e.pingPerfTimeout()).To(Equal(1 * time.Second))
		Expect(e.pingPerfTimeout()).To(Equal(1 * time.Second))
	})
})

var _ = Describe("HealthCheck", func() {
	var dir string
	var cfg executor.Config

	BeforeEach(func() {
		dir = GinkgoT().TempDir()
		cfg = executor.Config{
			ProfileDir: dir,
			FIFOPaths: fifo.Paths{
				Control: filepath.Join(dir, "control.fifo"),
				Ack:     filepath.Join(dir, "ack.fifo"),
			},
			Log: logr.Discard(),
		}
	})

	It("succeeds when the profiler answers the PingPerf probe", func() {
		exec := New(logr.Discard())
		Expect(exec.Setup(context.Background(), cfg)).To(Succeed())
		defer func() { _ = exec.channel.Close() }()

		ackRead, err := os.OpenFile(cfg.FIFOPaths.Ack, os.O_RDONLY, 0)
		Expect(err).NotTo(HaveOccurred())
		defer func() { _ = ackRead.Close() }()

		controlWrite, err := os.OpenFile(cfg.FIFOPaths.Control, os.O_WRONLY, 0)
		Expect(err).NotTo(HaveOccurred())
		defer func() { _ = controlWrite.Close() }()

		go func() {
			var lenBuf [4]byte
			if _, err := io.ReadFull(ackRead, lenBuf[:]); err != nil {
				return
			}
			length := binary.LittleEndian.Uint32(lenBuf[:])
			payload := make([]byte, length)
			if _, err := io.ReadFull(ackRead, payload); err != nil {
				return
			}
			writeFramedCmd(controlWrite, fifo.Ack())
		}()

		Expect(exec.HealthCheck()).To(Succeed())
	})

	It("fails when nothing answers the PingPerf probe", func() {
		exec := New(logr.Discard())
		Expect(exec.Setup(context.Background(), cfg)).To(Succeed())
		defer func() { _ = exec.channel.Close() }()
		exec.primed.Store(true) // force the 1s timeout instead of 5s

		Expect(exec.HealthCheck()).To(HaveOccurred())
	})
})

var _ = Describe("stackCapFor", func() {
	It("leaves cargo unbounded", func() {
		Expect(stackCapFor([]string{"cargo", "bench"})).To(Equal(uint64(0)))
	})

	It("caps pytest/uv/python at the default", func() {
		Expect(stackCapFor([]string{"pytest", "bench.py"})).To(Equal(uint64(defaultStackCapBytes)))
		Expect(stackCapFor([]string{"python", "-m", "pytest"})).To(Equal(uint64(defaultStackCapBytes)))
	})

	It("defaults everything else to the same cap", func() {
		Expect(stackCapFor([]string{"./a.out"})).To(Equal(uint64(defaultStackCapBytes)))
	})
})
