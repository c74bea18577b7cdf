package symbols

import (
	"debug/dwarf"
	"debug/elf"
	"fmt"
)

// UnwindData is the subset of ELF metadata needed to reconstruct call
// stacks from raw instruction-pointer samples for one executable mapping.
type UnwindData struct {
	Path string

	// AVMARange is the actual runtime virtual-memory-address range of the
	// mapping this unwind data describes.
	AVMARange AddrRange

	// BaseAVMA is the runtime load address corresponding to SVMA 0.
	BaseAVMA uint64

	EHFrame      []byte
	EHFrameSVMA  AddrRange
	EHFrameHdr   []byte
	EHFrameHdrSVMA AddrRange
}

// ExtractUnwindData reads .eh_frame and .eh_frame_hdr out of the ELF file
// at path and pairs them with the given runtime mapping range and load
// bias, producing one UnwindData record per executable mapping as
// described in the data model.
func ExtractUnwindData(path string, mappingRange AddrRange, loadBias uint64) (*UnwindData, error) {
	f, err := elf.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open ELF file %s: %w", path, err)
	}
	defer func() { _ = f.Close() }()

	data := &UnwindData{
		Path:      path,
		AVMARange: mappingRange,
		BaseAVMA:  loadBias,
	}

	if sec := f.Section(".eh_frame"); sec != nil {
		b, err := sec.Data()
		if err != nil {
			return nil, fmt.Errorf("failed to read .eh_frame of %s: %w", path, err)
		}
		data.EHFrame = b
		data.EHFrameSVMA = AddrRange{Start: sec.Addr, End: sec.Addr + sec.Size}
	}

	if sec := f.Section(".eh_frame_hdr"); sec != nil {
		b, err := sec.Data()
		if err != nil {
			return nil, fmt.Errorf("failed to read .eh_frame_hdr of %s: %w", path, err)
		}
		data.EHFrameHdr = b
		data.EHFrameHdrSVMA = AddrRange{Start: sec.Addr, End: sec.Addr + sec.Size}
	}

	return data, nil
}

// SourceLocation is a resolved file:line for one symbol address, used to
// enrich the debuginfo JSON persisted per process.
type SourceLocation struct {
	File string
	Line int
}

// LookupLines resolves file:line for every address in addrs via the ELF
// file's .debug_line section. Addresses with no DWARF line-table entry are
// simply omitted from the result; this is a best-effort enrichment, never
// a hard requirement for the wall-time executor's teardown to succeed.
func LookupLines(path string, addrs []uint64) (map[uint64]SourceLocation, error) {
	f, err := elf.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open ELF file %s: %w", path, err)
	}
	defer func() { _ = f.Close() }()

	d, err := f.DWARF()
	if err != nil {
		// No debug info present; not an error for the caller.
		return map[uint64]SourceLocation{}, nil
	}

	wanted := make(map[uint64]struct{}, len(addrs))
	for _, a := range addrs {
		wanted[a] = struct{}{}
	}

	result := map[uint64]SourceLocation{}
	reader := d.Reader()
	for {
		entry, err := reader.Next()
		if err != nil {
			return nil, fmt.Errorf("failed to read DWARF entries of %s: %w", path, err)
		}
		if entry == nil {
			break
		}
		if entry.Tag != dwarf.TagCompileUnit {
			continue
		}

		lr, err := d.LineReader(entry)
		if err != nil || lr == nil {
			continue
		}

		var line dwarf.LineEntry
		for {
			if err := lr.Next(&line); err != nil {
				break
			}
			if _, ok := wanted[line.Address]; ok {
				result[line.Address] = SourceLocation{File: line.File.Name, Line: line.Line}
			}
		}
	}

	return result, nil
}
