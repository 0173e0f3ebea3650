// SPDX-License-Identifier: MIT
//
// Copyright (c) 2024 Adrian "asie" Siekierka

package elfpack

import (
	"cmp"
	"fmt"
	"slices"

	"github.com/pkg/errors"

	"github.com/WonderfulToolchain/wf-relocation-packer/elf"
)

// Hole describes a resize of the file: Size bytes are inserted (Size > 0)
// or removed (Size < 0) at file offset Start, which lies inside or at the
// end of the LOAD segment Load.
type Hole struct {
	Start uint64
	Size  int64
	// Load is a copy of the containing LOAD segment taken before the resize.
	Load elf.ProgramHeader
	// VAddr is the virtual address corresponding to Start in Load.
	VAddr    uint64
	PageSize uint64
}

// shift moves a value by the hole size.
func (h Hole) shift(v uint64) uint64 {
	return uint64(int64(v) + h.Size)
}

func (h Hole) unshift(v uint64) uint64 {
	return uint64(int64(v) - h.Size)
}

// SegmentStrategy decides how program headers change when the file grows or
// shrinks inside a LOAD segment, and whether loaded addresses move.
type SegmentStrategy interface {
	// Check reports whether the resize can be applied. It must not modify e.
	Check(e *elf.Elf, h Hole) error
	// AdjustProgramHeaders rewrites the program headers of e for the resize.
	AdjustProgramHeaders(e *elf.Elf, h Hole)
	// TranslateAddress maps a virtual address from before the resize to
	// after it.
	TranslateAddress(h Hole, addr uint64) uint64
}

func liveLoad(e *elf.Elf, h Hole) *elf.ProgramHeader {
	for _, ph := range e.ProgramHeaders {
		if *ph == h.Load {
			return ph
		}
	}
	panic(fmt.Sprintf("LOAD segment at %#x is no longer present", h.Load.Offset))
}

// clampAlignments lowers to the page size the alignment of every LOAD
// segment whose file offset is no longer congruent to its address. Offsets
// only ever move by whole pages.
func clampAlignments(e *elf.Elf, pageSize uint64) {
	for _, ph := range e.ProgramHeadersOfType(elf.PT_LOAD) {
		if ph.Align > pageSize && (ph.VAddr-ph.Offset)%ph.Align != 0 {
			ph.Align = pageSize
		}
	}
}

// restoreAlignments raises LOAD segments clamped to the page size back to
// the largest alignment in use, or the machine's default maximum page size,
// when their addresses allow it again.
func restoreAlignments(e *elf.Elf, pageSize uint64) {
	loads := e.ProgramHeadersOfType(elf.PT_LOAD)
	target := e.Machine.DefaultMaxPageSize()
	for _, ph := range loads {
		target = max(target, ph.Align)
	}
	if target <= pageSize {
		return
	}
	for _, ph := range loads {
		if ph.Align == pageSize && (ph.VAddr-ph.Offset)%target == 0 {
			ph.Align = target
		}
	}
}

func shiftOffsetsAfter(e *elf.Elf, h Hole, keep ...*elf.ProgramHeader) {
	for _, ph := range e.ProgramHeaders {
		if slices.Contains(keep, ph) || ph.Type == elf.PT_NULL || ph.Type == elf.PT_GNU_STACK {
			continue
		}
		if ph.Offset >= h.Start {
			ph.Offset = h.shift(ph.Offset)
		}
	}
}

var (
	_ SegmentStrategy = ShiftStrategy{}
	_ SegmentStrategy = SplitStrategy{}
)

// ShiftStrategy keeps the addresses of everything after the hole and moves
// the start of the containing LOAD segment instead: on a shrink, its
// virtual addresses rise by the number of bytes removed.
type ShiftStrategy struct{}

func (ShiftStrategy) Check(e *elf.Elf, h Hole) error {
	if h.Size <= 0 {
		return nil
	}
	size := uint64(h.Size)
	if h.Load.VAddr < size {
		return errors.Errorf("LOAD segment at %#x cannot move %#x bytes down", h.Load.VAddr, size)
	}
	start := h.Load.VAddr - size
	for _, ph := range e.ProgramHeadersOfType(elf.PT_LOAD) {
		if *ph == h.Load {
			continue
		}
		if ph.VAddr < h.Load.VAddr && ph.VAddr+ph.MemSize > start {
			return errors.Errorf("LOAD segment at %#x would overlap the one at %#x", start, ph.VAddr)
		}
	}
	return nil
}

func (ShiftStrategy) AdjustProgramHeaders(e *elf.Elf, h Hole) {
	load := liveLoad(e, h)

	for _, ph := range e.ProgramHeaders {
		if ph.Type == elf.PT_NULL || ph.Type == elf.PT_GNU_STACK {
			continue
		}
		if ph != load && ph.Offset >= h.Start {
			ph.Offset = h.shift(ph.Offset)
			continue
		}
		if ph.Offset < load.Offset {
			continue
		}
		ph.VAddr = h.unshift(ph.VAddr)
		ph.PAddr = h.unshift(ph.PAddr)
		if ph == load || ph.End() > h.Start {
			ph.FileSize = h.shift(ph.FileSize)
			ph.MemSize = h.shift(ph.MemSize)
		}
	}

	if h.Size < 0 {
		clampAlignments(e, h.PageSize)
	} else {
		restoreAlignments(e, h.PageSize)
	}
}

func (ShiftStrategy) TranslateAddress(h Hole, addr uint64) uint64 {
	if addr >= h.Load.VAddr && addr < h.VAddr {
		return h.unshift(addr)
	}
	return addr
}

// SplitStrategy keeps every address and splits the containing LOAD segment
// in two around the bytes removed, reusing the PT_GNU_STACK program header
// slot for the new segment. Growing merges the two parts back together.
type SplitStrategy struct{}

func (SplitStrategy) Check(e *elf.Elf, h Hole) error {
	switch {
	case h.Size < 0:
		if len(e.ProgramHeadersOfType(elf.PT_GNU_STACK)) == 0 {
			return errors.New("no PT_GNU_STACK program header to split the LOAD segment into")
		}
	case h.Size > 0:
		if splitSuccessor(e, h) == nil {
			return errors.Errorf("LOAD segment at %#x is not split at offset %#x", h.Load.VAddr, h.Start)
		}
	}
	return nil
}

// splitSuccessor returns the LOAD segment that a previous split created
// right after h.
func splitSuccessor(e *elf.Elf, h Hole) *elf.ProgramHeader {
	for _, ph := range e.ProgramHeadersOfType(elf.PT_LOAD) {
		if ph.Offset == h.Start && ph.VAddr == h.VAddr+uint64(h.Size) {
			return ph
		}
	}
	return nil
}

func (s SplitStrategy) AdjustProgramHeaders(e *elf.Elf, h Hole) {
	if h.Size < 0 {
		s.split(e, h)
	} else {
		s.merge(e, h)
	}
}

func (SplitStrategy) split(e *elf.Elf, h Hole) {
	load := liveLoad(e, h)
	stack := e.ProgramHeadersOfType(elf.PT_GNU_STACK)[0]
	shiftOffsetsAfter(e, h, load)

	head := h.Start - load.Offset
	before := *load
	before.FileSize = h.shift(h.Start) - load.Offset
	before.MemSize = before.FileSize

	load.Offset = h.shift(h.Start)
	load.VAddr = h.VAddr
	load.PAddr += head
	load.FileSize -= head
	load.MemSize -= head

	*stack = before
	sortLoads(e, nil)
	clampAlignments(e, h.PageSize)
}

func (SplitStrategy) merge(e *elf.Elf, h Hole) {
	load := liveLoad(e, h)
	after := splitSuccessor(e, h)
	shiftOffsetsAfter(e, h, load, after)

	load.FileSize = h.shift(h.Start) - load.Offset + after.FileSize
	load.MemSize = after.VAddr + after.MemSize - load.VAddr
	load.Flags |= after.Flags

	sortLoads(e, after)
	restoreAlignments(e, h.PageSize)
}

func (SplitStrategy) TranslateAddress(h Hole, addr uint64) uint64 {
	return addr
}

// sortLoads orders the LOAD program headers by offset, keeping the slots
// they occupy. If drop is set, its segment is removed and the last LOAD slot
// becomes a PT_GNU_STACK header.
func sortLoads(e *elf.Elf, drop *elf.ProgramHeader) {
	slots := e.ProgramHeadersOfType(elf.PT_LOAD)
	var values []elf.ProgramHeader
	for _, ph := range slots {
		if ph != drop {
			values = append(values, *ph)
		}
	}
	slices.SortStableFunc(values, func(a, b elf.ProgramHeader) int {
		return cmp.Compare(a.Offset, b.Offset)
	})
	for i, value := range values {
		*slots[i] = value
	}
	if drop != nil {
		*slots[len(slots)-1] = elf.ProgramHeader{
			Type:  elf.PT_GNU_STACK,
			Flags: elf.PF_R | elf.PF_W,
			Align: 16,
		}
	}
}
