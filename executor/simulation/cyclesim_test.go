package simulation_test

import (
	"bytes"
	"encoding/binary"
	"os"
	"path/filepath"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/codspeed-runner/executor/simulation"
)

var _ = Describe("RunCycleSimulation", func() {
	var tempDir string

	BeforeEach(func() {
		var err error
		tempDir, err = os.MkdirTemp("", "cyclesim-test")
		Expect(err).NotTo(HaveOccurred())
	})

	AfterEach(func() {
		_ = os.RemoveAll(tempDir)
	})

	It("recognizes a directly-loadable ARM64 ELF", func() {
		path := filepath.Join(tempDir, "exit0.elf")
		createExitELF(path, 0)
		Expect(simulation.IsELFLoadable(path)).To(BeTrue())
	})

	It("rejects a non-ELF file", func() {
		path := filepath.Join(tempDir, "not-elf")
		Expect(os.WriteFile(path, []byte("not an elf"), 0o644)).To(Succeed())
		Expect(simulation.IsELFLoadable(path)).To(BeFalse())
	})

	It("runs a loaded binary to completion and reports cycle/instruction counts", func() {
		path := filepath.Join(tempDir, "exit0.elf")
		createExitELF(path, 0)

		var stdout, stderr bytes.Buffer
		stats, err := simulation.RunCycleSimulation(path, &stdout, &stderr)
		Expect(err).NotTo(HaveOccurred())
		Expect(stats.ExitCode).To(Equal(int64(0)))
		Expect(stats.Instructions).To(BeNumerically(">", 0))
		Expect(stats.Cycles).To(BeNumerically(">=", stats.Instructions))
		Expect(stats.CPI()).To(BeNumerically(">", 0))
	})

	It("reports a non-zero exit code from the simulated program", func() {
		path := filepath.Join(tempDir, "exit7.elf")
		createExitELF(path, 7)

		stats, err := simulation.RunCycleSimulation(path, &bytes.Buffer{}, &bytes.Buffer{})
		Expect(err).NotTo(HaveOccurred())
		Expect(stats.ExitCode).To(Equal(int64(7)))
	})
})

// createExitELF writes a minimal ARM64 ELF64 executable whose entire
// program is "mov x0, #code; mov x8, #93 (exit); svc #0".
func createExitELF(path string, code uint16) {
	loadAddr := uint64(0x400000)
	entryPoint := loadAddr

	movX0 := encodeMovzImm(0, code)
	movX8 := encodeMovzImm(8, 93)
	svc := uint32(0xD4000001)

	var text []byte
	text = append(text, uint32ToBytes(movX0)...)
	text = append(text, uint32ToBytes(movX8)...)
	text = append(text, uint32ToBytes(svc)...)

	elfHeader := make([]byte, 64)
	copy(elfHeader[0:4], []byte{0x7f, 'E', 'L', 'F'})
	elfHeader[4] = 2 // 64-bit
	elfHeader[5] = 1 // little endian
	elfHeader[6] = 1 // version
	binary.LittleEndian.PutUint16(elfHeader[16:18], 2)   // ET_EXEC
	binary.LittleEndian.PutUint16(elfHeader[18:20], 183) // EM_AARCH64
	binary.LittleEndian.PutUint32(elfHeader[20:24], 1)
	binary.LittleEndian.PutUint64(elfHeader[24:32], entryPoint)
	binary.LittleEndian.PutUint64(elfHeader[32:40], 64)
	binary.LittleEndian.PutUint16(elfHeader[52:54], 64)
	binary.LittleEndian.PutUint16(elfHeader[54:56], 56)
	binary.LittleEndian.PutUint16(elfHeader[56:58], 1)
	binary.LittleEndian.PutUint16(elfHeader[58:60], 64)

	progHeader := make([]byte, 56)
	binary.LittleEndian.PutUint32(progHeader[0:4], 1)   // PT_LOAD
	binary.LittleEndian.PutUint32(progHeader[4:8], 0x5) // PF_X | PF_R
	binary.LittleEndian.PutUint64(progHeader[8:16], 120)
	binary.LittleEndian.PutUint64(progHeader[16:24], loadAddr)
	binary.LittleEndian.PutUint64(progHeader[24:32], loadAddr)
	binary.LittleEndian.PutUint64(progHeader[32:40], uint64(len(text)))
	binary.LittleEndian.PutUint64(progHeader[40:48], uint64(len(text)))
	binary.LittleEndian.PutUint64(progHeader[48:56], 0x1000)

	f, err := os.Create(path)
	Expect(err).NotTo(HaveOccurred())
	defer func() { _ = f.Close() }()

	_, _ = f.Write(elfHeader)
	_, _ = f.Write(progHeader)
	_, _ = f.Write(text)
}

// encodeMovzImm encodes "movz xd, #imm16".
func encodeMovzImm(rd uint32, imm16 uint16) uint32 {
	return 0xD2800000 | (uint32(imm16) << 5) | rd
}

func uint32ToBytes(v uint32) []byte {
	b := make([]byte, 4)
	binary.LittleEndian.PutUint32(b, v)
	return b
}
