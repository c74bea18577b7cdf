package simulation

import (
	"fmt"
	"io"

	"github.com/sarchlab/codspeed-runner/simcore/emu"
	"github.com/sarchlab/codspeed-runner/simcore/timing/core"
	"github.com/sarchlab/codspeed-runner/simcore/timing/latency"
	"github.com/sarchlab/codspeed-runner/simcore/timing/pipeline"
	"github.com/sarchlab/codspeed-runner/symbols"
)

// CycleStats is the callgrind-style cycle count the simulation executor
// reports for a directly-loadable ELF command, reusing the teacher's
// 5-stage pipeline model under the fixed cache-derived latency config
// instead of its native M2 calibration (latency.CallgrindTimingConfig).
type CycleStats struct {
	Instructions uint64
	Cycles       uint64
	ExitCode     int64
}

// CPI returns cycles per instruction, matching pipeline.Stats.CPI.
func (s CycleStats) CPI() float64 {
	if s.Instructions == 0 {
		return 0
	}
	return float64(s.Cycles) / float64(s.Instructions)
}

// RunCycleSimulation loads the ELF at path and runs it to completion on the
// in-process pipeline model (simcore/timing/core), passing it a latency table
// built from latency.CallgrindTimingConfig (the callgrind D1 hit latency and
// LL hit and miss latencies) rather than the simulator's native M2 defaults.
// No instruction or data cache is simulated. stdout/stderr are the wrapped command's
// inherited descriptors, matching the wrapping pipeline's pass-through of
// the benchmarked process's own output.
func RunCycleSimulation(path string, stdout, stderr io.Writer) (CycleStats, error) {
	prog, err := symbols.Load(path)
	if err != nil {
		return CycleStats{}, fmt.Errorf("simulation: failed to load %s: %w", path, err)
	}

	memory := emu.NewMemory()
	for _, seg := range prog.Segments {
		for i, b := range seg.Data {
			memory.Write8(seg.VirtAddr+uint64(i), b)
		}
		for i := uint64(len(seg.Data)); i < seg.MemSize; i++ {
			memory.Write8(seg.VirtAddr+i, 0)
		}
	}

	regFile := &emu.RegFile{}
	regFile.SP = prog.InitialSP

	syscallHandler := emu.NewDefaultSyscallHandler(regFile, memory, stdout, stderr)
	table := latency.NewTableWithConfig(latency.CallgrindTimingConfig())

	c := core.NewCore(
		regFile,
		memory,
		pipeline.WithSyscallHandler(syscallHandler),
		pipeline.WithLatencyTable(table),
	)
	c.SetPC(prog.EntryPoint)

	exitCode := c.Run()
	stats := c.Stats()

	return CycleStats{
		Instructions: stats.Instructions,
		Cycles:       stats.Cycles,
		ExitCode:     exitCode,
	}, nil
}

// IsELFLoadable reports whether path names a file symbols.Load can run
// directly, i.e. the command is itself the ARM64 ELF under test rather
// than a shell pipeline the simulation executor must instead wrap
// externally (§4.D).
func IsELFLoadable(path string) bool {
	_, err := symbols.Load(path)
	return err == nil
}
