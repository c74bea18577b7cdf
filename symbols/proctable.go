package symbols

import (
	"bufio"
	"debug/elf"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"
)

// pageSize is the page-boundary used to extend the final zero-size symbol
// of a module, matching the reference runner's symbolication pass.
const pageSize = 4096

// AddrRange is an inclusive-start, exclusive-end address range.
type AddrRange struct {
	Start uint64
	End   uint64
}

// Symbol is one entry of a module's resolved symbol table.
type Symbol struct {
	Addr uint64
	Size uint64
	Name string
}

// ModuleSymbols is a module's symbol table plus the load bias observed for
// one particular process (the delta between a symbol's address as recorded
// in the ELF file and its runtime virtual address).
type ModuleSymbols struct {
	LoadBias uint64
	Symbols  []Symbol
}

// ProcessSymbolTable is the per-process symbolication result described in
// the data model: which address ranges belong to which module, and the
// resolved (sorted, gap-filled) symbol list for each module touched by
// the process.
type ProcessSymbolTable struct {
	ModuleMappings map[string][]AddrRange
	Modules        map[string]ModuleSymbols
}

// armMappingSymbolPrefixes are the ARM "mapping symbols" that annotate
// instruction-set transitions rather than naming real functions; they are
// dropped during symbolication, along with empty-named symbols.
var armMappingSymbolPrefixes = []string{"$a", "$d", "$t", "$x"}

func isMappingSymbol(name string) bool {
	if name == "" {
		return true
	}
	for _, p := range armMappingSymbolPrefixes {
		if name == p || strings.HasPrefix(name, p+".") {
			return true
		}
	}
	return false
}

// LoadModuleSymbols reads the static and dynamic symbol tables of the ELF
// file at path, drops mapping/empty symbols, sorts by address and extends
// zero-size symbols: an N-th zero-size symbol is extended up to the
// address of symbol N+1; the final zero-size symbol is extended to the
// next 4-KiB boundary plus one additional page, to give unwinders a
// plausible (if approximate) upper bound.
func LoadModuleSymbols(path string) ([]Symbol, error) {
	f, err := elf.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open ELF file %s: %w", path, err)
	}
	defer func() { _ = f.Close() }()

	var raw []elf.Symbol
	if syms, err := f.Symbols(); err == nil {
		raw = append(raw, syms...)
	}
	if dynSyms, err := f.DynamicSymbols(); err == nil {
		raw = append(raw, dynSyms...)
	}

	syms := make([]Symbol, 0, len(raw))
	for _, s := range raw {
		if isMappingSymbol(s.Name) {
			continue
		}
		if elf.ST_TYPE(s.Info) != elf.STT_FUNC && elf.ST_TYPE(s.Info) != elf.STT_NOTYPE {
			continue
		}
		syms = append(syms, Symbol{Addr: s.Value, Size: s.Size, Name: s.Name})
	}

	sort.Slice(syms, func(i, j int) bool { return syms[i].Addr < syms[j].Addr })

	for i := range syms {
		if syms[i].Size != 0 {
			continue
		}
		if i+1 < len(syms) {
			syms[i].Size = syms[i+1].Addr - syms[i].Addr
		} else {
			next := ((syms[i].Addr / pageSize) + 1) * pageSize
			syms[i].Size = (next + pageSize) - syms[i].Addr
		}
	}

	return syms, nil
}

// procMap is one parsed line of /proc/<pid>/maps.
type procMap struct {
	Start, End uint64
	Perms      string
	Offset     uint64
	Path       string
}

// parseProcMaps parses the textual contents of /proc/<pid>/maps.
func parseProcMaps(r *bufio.Scanner) ([]procMap, error) {
	var maps []procMap
	for r.Scan() {
		line := r.Text()
		fields := strings.Fields(line)
		if len(fields) < 5 {
			continue
		}
		addrs := strings.SplitN(fields[0], "-", 2)
		if len(addrs) != 2 {
			continue
		}
		start, err := strconv.ParseUint(addrs[0], 16, 64)
		if err != nil {
			continue
		}
		end, err := strconv.ParseUint(addrs[1], 16, 64)
		if err != nil {
			continue
		}
		off, err := strconv.ParseUint(fields[2], 16, 64)
		if err != nil {
			continue
		}
		path := ""
		if len(fields) >= 6 {
			path = strings.Join(fields[5:], " ")
		}
		maps = append(maps, procMap{Start: start, End: end, Perms: fields[1], Offset: off, Path: path})
	}
	if err := r.Err(); err != nil {
		return nil, fmt.Errorf("failed to scan process maps: %w", err)
	}
	return maps, nil
}

// BuildProcessSymbolTable constructs a ProcessSymbolTable for pid by
// reading /proc/<pid>/maps, resolving every backing file with an
// executable mapping, and computing each module's load bias as the
// runtime mapping address minus the mapping's file offset (the mapping's
// symbols are defined relative to file offset, so this delta recovers
// runtime addresses).
func BuildProcessSymbolTable(pid int) (*ProcessSymbolTable, error) {
	mapsPath := fmt.Sprintf("/proc/%d/maps", pid)
	f, err := os.Open(mapsPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", mapsPath, err)
	}
	defer func() { _ = f.Close() }()

	maps, err := parseProcMaps(bufio.NewScanner(f))
	if err != nil {
		return nil, err
	}

	table := &ProcessSymbolTable{
		ModuleMappings: map[string][]AddrRange{},
		Modules:        map[string]ModuleSymbols{},
	}

	for _, m := range maps {
		if m.Path == "" || !strings.Contains(m.Perms, "x") {
			continue
		}
		table.ModuleMappings[m.Path] = append(table.ModuleMappings[m.Path], AddrRange{Start: m.Start, End: m.End})

		if _, ok := table.Modules[m.Path]; ok {
			continue
		}
		syms, err := LoadModuleSymbols(m.Path)
		if err != nil {
			// A module may legitimately be unreadable (deleted file,
			// vDSO, permission). Skip it; this is not fatal for the run.
			continue
		}
		loadBias := m.Start - m.Offset
		table.Modules[m.Path] = ModuleSymbols{LoadBias: loadBias, Symbols: syms}
	}

	return table, nil
}
