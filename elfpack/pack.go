// SPDX-License-Identifier: MIT
//
// Copyright (c) 2024 Adrian "asie" Siekierka

package elfpack

import (
	"cmp"
	"slices"

	"github.com/go-kit/log/level"
	"github.com/pkg/errors"

	"github.com/WonderfulToolchain/wf-relocation-packer/elf"
	"github.com/WonderfulToolchain/wf-relocation-packer/relocation"
)

func (f *File) newPacker() *relocation.Packer {
	return relocation.NewPacker(f.opts.Lineage.format(f.rela), f.elf.Width(), f.relativeType, f.opts.Logger)
}

func (f *File) isRelative(r relocation.Relocation) bool {
	width := f.elf.Width()
	return width.Type(r.Info) == f.relativeType && width.Symbol(r.Info) == 0
}

func isNone(width relocation.Width, r relocation.Relocation) bool {
	return width.Type(r.Info) == 0 && width.Symbol(r.Info) == 0
}

// PackRelocations moves the relative relocations of the file into the packed
// relocation section and writes the result back. It returns an error
// wrapping ErrNotBeneficial, leaving the file unchanged, if this would not
// save at least one page (or, with PadRelocations, any space at all).
func (f *File) PackRelocations() error {
	if err := f.checkLoaded(); err != nil {
		return err
	}
	addressTag, sizeTag, countTag := f.relocationTags()
	packedAddressTag, packedSizeTag := f.packedTags()
	if _, ok := f.dynamic.get(packedAddressTag); ok || (f.packed != nil && f.packed.Size > 0) {
		return ErrAlreadyPacked
	}

	rels, err := f.elf.ReadRelocations(f.relocations)
	if err != nil {
		return err
	}
	var relative, other []relocation.Relocation
	for _, r := range rels {
		if f.isRelative(r) {
			relative = append(relative, r)
		} else {
			other = append(other, r)
		}
	}
	if len(relative) == 0 {
		return errors.Wrap(ErrNotBeneficial, "no relative relocations found (already packed?)")
	}
	slices.SortStableFunc(relative, func(a, b relocation.Relocation) int {
		return cmp.Compare(a.Offset, b.Offset)
	})

	packer := f.newPacker()
	packed := packer.Pack(relative)
	entrySize := f.relocations.EntrySize
	if len(packed) == 0 {
		return errors.Wrap(ErrNotBeneficial, "too few relative relocations to pack")
	}
	if uint64(len(packed)) >= uint64(len(relative))*entrySize {
		return errors.Wrapf(ErrNotBeneficial, "packed relocations take %d bytes, unpacked %d",
			len(packed), uint64(len(relative))*entrySize)
	}

	start, end := f.region()
	regionSize := end - start
	relocationData := f.elf.EncodeRelocations(f.relocations.Type, other)
	var hole int64
	if f.opts.PadRelocations {
		packedSize := alignUp(uint64(len(packed)), entrySize)
		used := uint64(len(relocationData)) + packedSize
		if used > regionSize {
			return errors.Wrap(ErrNotBeneficial, "packed relocations do not fit in the padded region")
		}
		padding := make([]relocation.Relocation, (regionSize-used)/entrySize)
		relocationData = f.elf.EncodeRelocations(f.relocations.Type, append(other, padding...))
	} else {
		need := uint64(len(relocationData)) + uint64(len(packed))
		saved := (regionSize - need) / f.opts.PageSize * f.opts.PageSize
		if saved == 0 {
			return errors.Wrapf(ErrNotBeneficial, "would save %d bytes, less than a page", regionSize-need)
		}
		hole = -int64(saved)
	}

	if f.dynamic.spare() < 2 {
		return errors.New(".dynamic has no room for the packed relocation entries")
	}
	h := f.newHole(start, end, hole)
	if err := f.opts.Strategy.Check(f.elf, h); err != nil {
		return err
	}
	if f.packed == nil {
		if err := f.addPackedSection(); err != nil {
			return err
		}
	}

	f.resize(h)
	f.layoutRegion(start, h.shift(end), relocationData, packed, true)

	f.dynamic.set(addressTag, f.relocations.Address)
	f.dynamic.set(sizeTag, f.relocations.Size)
	f.dynamic.setIfPresent(countTag, 0)
	f.dynamic.add(packedAddressTag, f.packed.Address)
	f.dynamic.add(packedSizeTag, f.packed.Size)

	level.Info(f.logger).Log("msg", "packed relocations", "format", f.opts.Lineage.format(f.rela),
		"relative", len(relative), "other", len(other), "packed_bytes", len(packed), "saved", -hole)

	return f.Flush()
}

// addPackedSection creates an empty packed relocation section right after
// the relocation section.
func (f *File) addPackedSection() error {
	name, typ := f.packedSectionName()
	end := f.relocations.Offset + f.relocations.Size
	sh := &elf.SectionHeader{
		Name:      name,
		Type:      typ,
		Flags:     elf.SHF_ALLOC,
		Address:   f.relocations.Address + f.relocations.Size,
		Offset:    end,
		Link:      f.relocations.Link,
		AddrAlign: f.elf.WordSize(),
		EntrySize: 1,
	}
	if _, err := f.elf.AddSection(sh); err != nil {
		return errors.Wrapf(err, "add %s", name)
	}
	f.packed = sh
	level.Debug(f.logger).Log("msg", "added section", "section", name)
	return nil
}

// UnpackRelocations restores the relative relocations from the packed
// relocation section and writes the result back.
func (f *File) UnpackRelocations() error {
	if err := f.checkLoaded(); err != nil {
		return err
	}
	_, sizeTag, countTag := f.relocationTags()
	packedAddressTag, packedSizeTag := f.packedTags()
	if _, ok := f.dynamic.get(packedAddressTag); !ok || f.packed == nil {
		return ErrNotPacked
	}

	relative, err := f.newPacker().Unpack(f.packed.Data)
	if err != nil {
		return errors.Wrapf(err, "decode %s", f.packed.Name)
	}
	rels, err := f.elf.ReadRelocations(f.relocations)
	if err != nil {
		return err
	}
	width := f.elf.Width()
	all := slices.Clone(relative)
	for _, r := range rels {
		if !isNone(width, r) {
			all = append(all, r)
		}
	}
	other := len(all) - len(relative)
	relocationData := f.elf.EncodeRelocations(f.relocations.Type, all)

	start, end := f.region()
	regionSize := end - start
	need := uint64(len(relocationData))
	var hole int64
	if need > regionSize {
		hole = int64(alignUp(need-regionSize, f.opts.PageSize))
	}

	h := f.newHole(start, end, hole)
	if err := f.opts.Strategy.Check(f.elf, h); err != nil {
		return err
	}

	f.resize(h)
	f.layoutRegion(start, h.shift(end), relocationData, nil, false)

	f.dynamic.remove(packedAddressTag)
	f.dynamic.remove(packedSizeTag)
	f.dynamic.set(sizeTag, f.relocations.Size)
	f.dynamic.setIfPresent(countTag, uint64(len(relative)))

	level.Info(f.logger).Log("msg", "unpacked relocations", "relative", len(relative), "other", other,
		"grown", hole)

	return f.Flush()
}
