package walltime

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/go-logr/logr"
	"github.com/google/pprof/profile"

	"github.com/sarchlab/codspeed-runner/symbols"
)

// debugInfo is the per-process JSON artifact written alongside the
// textual perf-<pid>.map symbol dump, carrying the file:line enrichment
// DWARF could resolve for each symbol (§4.E teardown).
type debugInfo struct {
	Module string             `json:"module"`
	Lines  map[string]lineRef `json:"lines"`
}

type lineRef struct {
	File string `json:"file"`
	Line int    `json:"line"`
}

// symbolicate builds the Process Symbol Table and unwind data for pid, and
// persists the symbol map (perf-<pid>.map), debug info (JSON) and unwind
// data (one file per executable mapping) into profileDir, plus a pprof
// profile built from the resolved symbols: one mapping per module and one
// function and location per symbol. The profile carries no samples.
func symbolicate(pid int, profileDir string, log logr.Logger) error {
	table, err := symbols.BuildProcessSymbolTable(pid)
	if err != nil {
		return fmt.Errorf("walltime: failed to build symbol table for pid %d: %w", pid, err)
	}

	perfMapPath := filepath.Join(profileDir, fmt.Sprintf("perf-%d.map", pid))
	perfMapFile, err := os.Create(perfMapPath)
	if err != nil {
		return fmt.Errorf("walltime: failed to create %s: %w", perfMapPath, err)
	}
	defer func() { _ = perfMapFile.Close() }()

	prof := &profile.Profile{
		SampleType: []*profile.ValueType{{Type: "samples", Unit: "count"}},
		PeriodType: &profile.ValueType{Type: "wall", Unit: "nanoseconds"},
		Period:     int64(1e9 / SamplingHz),
	}

	var locID uint64
	var funcID uint64

	for modulePath, mod := range table.Modules {
		mapping := &profile.Mapping{
			ID:    uint64(len(prof.Mapping)) + 1,
			Start: mod.LoadBias,
			File:  modulePath,
		}
		prof.Mapping = append(prof.Mapping, mapping)

		var addrs []uint64
		for _, sym := range mod.Symbols {
			addrs = append(addrs, sym.Addr)
		}
		lines, err := symbols.LookupLines(modulePath, addrs)
		if err != nil {
			log.Info("failed to resolve source lines, continuing without them", "module", modulePath, "error", err)
			lines = map[uint64]symbols.SourceLocation{}
		}

		debug := debugInfo{Module: modulePath, Lines: map[string]lineRef{}}

		for _, sym := range mod.Symbols {
			if sym.Name == "" {
				continue
			}
			fmt.Fprintf(perfMapFile, "%x %x %s\n", mod.LoadBias+sym.Addr, sym.Size, sym.Name)

			funcID++
			fn := &profile.Function{ID: funcID, Name: sym.Name, SystemName: sym.Name}
			prof.Function = append(prof.Function, fn)

			locID++
			prof.Location = append(prof.Location, &profile.Location{
				ID:      locID,
				Mapping: mapping,
				Address: mod.LoadBias + sym.Addr,
				Line:    []profile.Line{{Function: fn}},
			})

			if loc, ok := lines[sym.Addr]; ok {
				debug.Lines[sym.Name] = lineRef{File: loc.File, Line: loc.Line}
			}
		}

		if err := writeDebugInfo(profileDir, pid, modulePath, debug); err != nil {
			return err
		}

		for i, rng := range table.ModuleMappings[modulePath] {
			unwind, err := symbols.ExtractUnwindData(modulePath, rng, mod.LoadBias)
			if err != nil {
				log.Info("failed to extract unwind data, continuing", "module", modulePath, "error", err)
				continue
			}
			if err := writeUnwindData(profileDir, pid, i, unwind); err != nil {
				return err
			}
		}
	}

	profilePath := filepath.Join(profileDir, fmt.Sprintf("walltime-%d.pprof", pid))
	pf, err := os.Create(profilePath)
	if err != nil {
		return fmt.Errorf("walltime: failed to create %s: %w", profilePath, err)
	}
	defer func() { _ = pf.Close() }()

	if err := prof.Write(pf); err != nil {
		return fmt.Errorf("walltime: failed to encode pprof profile for pid %d: %w", pid, err)
	}

	return nil
}

func writeDebugInfo(profileDir string, pid int, modulePath string, info debugInfo) error {
	data, err := json.Marshal(info)
	if err != nil {
		return fmt.Errorf("walltime: failed to encode debug info for %s: %w", modulePath, err)
	}
	path := filepath.Join(profileDir, fmt.Sprintf("debuginfo-%d-%s.json", pid, filepath.Base(modulePath)))
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("walltime: failed to write debug info to %s: %w", path, err)
	}
	return nil
}

func writeUnwindData(profileDir string, pid, mappingIdx int, data *symbols.UnwindData) error {
	path := filepath.Join(profileDir, fmt.Sprintf("unwind-%d-%d.bin", pid, mappingIdx))
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("walltime: failed to create %s: %w", path, err)
	}
	defer func() { _ = f.Close() }()

	if _, err := f.Write(data.EHFrame); err != nil {
		return fmt.Errorf("walltime: failed to write unwind data to %s: %w", path, err)
	}
	return nil
}
