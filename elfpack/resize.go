// SPDX-License-Identifier: MIT
//
// Copyright (c) 2024 Adrian "asie" Siekierka

package elfpack

import (
	"fmt"

	"github.com/go-kit/log/level"
	"github.com/pkg/errors"

	"github.com/WonderfulToolchain/wf-relocation-packer/elf"
	"github.com/WonderfulToolchain/wf-relocation-packer/relocation"
)

func alignUp(v uint64, align uint64) uint64 {
	if align <= 1 {
		return v
	}
	return (v + align - 1) / align * align
}

// newHole describes a resize at file offset end of the LOAD segment holding
// start.
func (f *File) newHole(start uint64, end uint64, size int64) Hole {
	load := f.elf.LoadContaining(start)
	if load == nil {
		panic(fmt.Sprintf("offset %#x is not in a LOAD segment", start))
	}
	return Hole{
		Start:    end,
		Size:     size,
		Load:     *load,
		VAddr:    load.VAddr + (end - load.Offset),
		PageSize: f.opts.PageSize,
	}
}

// ResizeSection grows or shrinks an allocated section by opening or closing a
// hole at its end. The size change must be a multiple of the page size and
// the new size a multiple of the section's entry size.
// Data beyond the new size is dropped; new space is zero-filled.
func (f *File) ResizeSection(sh *elf.SectionHeader, newSize uint64) error {
	if err := f.checkLoaded(); err != nil {
		return err
	}
	if !sh.IsAlloc() || !sh.Type.HasDataInFile() || f.elf.LoadContaining(sh.Offset) == nil {
		return errors.Errorf("section %s is not loaded from the file", sh.Name)
	}
	delta := int64(newSize) - int64(sh.Size)
	if uint64(max(delta, -delta))%f.opts.PageSize != 0 {
		return errors.Errorf("cannot resize %s by %d bytes, not a multiple of the page size", sh.Name, delta)
	}
	if sh.EntrySize > 0 && newSize%sh.EntrySize != 0 {
		return errors.Errorf("cannot resize %s to %d bytes, not a multiple of its entry size %d", sh.Name, newSize, sh.EntrySize)
	}

	h := f.newHole(sh.Offset, sh.Offset+sh.Size, delta)
	if err := f.opts.Strategy.Check(f.elf, h); err != nil {
		return err
	}

	data := make([]byte, newSize)
	copy(data, sh.Data)
	f.resize(h)
	sh.SetData(data)
	return nil
}

// resize applies a hole to the whole file: the image, the header offsets,
// every section and program header, the entry point, the dynamic entries
// and the symbol tables.
func (f *File) resize(h Hole) {
	if h.Size == 0 {
		return
	}
	if uint64(max(h.Size, -h.Size))%h.PageSize != 0 {
		panic(fmt.Sprintf("hole of %d bytes is not page-aligned", h.Size))
	}
	e := f.elf
	strategy := f.opts.Strategy

	level.Debug(f.logger).Log("msg", "resizing", "offset", fmt.Sprintf("%#x", h.Start), "delta", h.Size,
		"segment", fmt.Sprintf("%#x", h.Load.VAddr))

	if h.Size > 0 {
		e.Splice(h.Start, h.Size)
	} else {
		e.Splice(h.Start-uint64(-h.Size), h.Size)
	}

	if e.ProgHdrOffset >= h.Start {
		e.ProgHdrOffset = h.shift(e.ProgHdrOffset)
	}
	if e.SecHdrOffset >= h.Start {
		e.SecHdrOffset = h.shift(e.SecHdrOffset)
	}
	if e.Entry != 0 {
		e.Entry = strategy.TranslateAddress(h, e.Entry)
	}

	for _, sh := range e.Sections {
		if sh.Type == elf.SHT_NULL {
			continue
		}
		if sh.Offset >= h.Start {
			sh.Offset = h.shift(sh.Offset)
		} else if sh.IsAlloc() {
			sh.Address = strategy.TranslateAddress(h, sh.Address)
		}
	}

	strategy.AdjustProgramHeaders(e, h)

	for i, entry := range f.dynamic.entries {
		if entry.Tag.IsAddress() {
			f.dynamic.entries[i].Value = strategy.TranslateAddress(h, entry.Value)
		}
	}

	for _, sh := range e.Sections {
		if sh.Type != elf.SHT_SYMTAB && sh.Type != elf.SHT_DYNSYM {
			continue
		}
		symbols, err := e.ReadSymbols(sh)
		if err != nil {
			panic(err)
		}
		changed := false
		for _, sym := range symbols {
			if !sym.IsDefined() {
				continue
			}
			if value := strategy.TranslateAddress(h, sym.Value); value != sym.Value {
				sym.Value = value
				changed = true
			}
		}
		if changed {
			sh.SetData(e.EncodeSymbols(symbols))
		}
	}
}

// placedSection adapts a section header to region placement.
type placedSection struct {
	sh   *elf.SectionHeader
	size uint64
}

func (p *placedSection) Offset() uint64 {
	return p.sh.Offset
}

func (p *placedSection) SetOffset(offset uint64) {
	p.sh.Offset = offset
}

func (p *placedSection) Size() uint64 {
	return p.size
}

func (p *placedSection) Alignment() uint64 {
	return max(p.sh.AddrAlign, 1)
}

// layoutRegion rewrites the relocation region [start, end): the relocation
// section stays at start, the packed section follows it. If fill is set, the
// packed section is zero-extended to the end of the region.
func (f *File) layoutRegion(start uint64, end uint64, relocations []byte, packed []byte, fill bool) {
	region := relocation.NewRegion[*placedSection](start, end-start, false)
	rel := &placedSection{sh: f.relocations, size: uint64(len(relocations))}
	if !region.Place(rel, []uint64{start}) {
		panic(fmt.Sprintf("%d bytes of relocations do not fit at %#x", len(relocations), start))
	}
	pk := &placedSection{sh: f.packed, size: uint64(len(packed))}
	if !region.Place(pk, []uint64{alignUp(start+rel.size, pk.Alignment()), end}) {
		panic(fmt.Sprintf("%d bytes of packed relocations do not fit in %#x..%#x", len(packed), start, end))
	}

	f.elf.Clear(start, end-start)
	f.relocations.SetData(relocations)
	if fill {
		data := make([]byte, end-f.packed.Offset)
		copy(data, packed)
		packed = data
	}
	f.packed.SetData(packed)
	f.packed.Address = f.relocations.Address + (f.packed.Offset - f.relocations.Offset)
}
