// SPDX-License-Identifier: MIT
//
// Copyright (c) 2024 Adrian "asie" Siekierka

// Package elftest synthesizes small shared objects for tests.
package elftest

import (
	"encoding/binary"

	"github.com/WonderfulToolchain/wf-relocation-packer/elf"
	"github.com/WonderfulToolchain/wf-relocation-packer/relocation"
)

const PageSize = 0x1000

type Options struct {
	// ELFCLASS32 builds an ARM object with REL entries, ELFCLASS64 an
	// AArch64 object with RELA entries.
	Class elf.FileClass
	// Relative relocations come first, followed by Absolute symbol
	// relocations.
	Relative int
	Absolute int
	// PackedStub adds an empty packed relocation section right after the
	// relocation section.
	PackedStub bool
	// SpareDynamic is the number of DT_NULL slots after the terminator.
	SpareDynamic int
	// LoadAlign is p_align of both LOAD segments; 0 means 0x10000.
	LoadAlign uint64
	NoGNUStack bool
}

func alignUp(v uint64, align uint64) uint64 {
	return (v + align - 1) / align * align
}

func relocationSectionNames(rela bool) (string, string) {
	if rela {
		return ".rela.dyn", ".android.rela.dyn"
	}
	return ".rel.dyn", ".android.rel.dyn"
}

// Build returns the bytes of a shared object laid out like linker output:
// one read-only executable LOAD segment holding the symbol tables, the
// relocations and .text, and one writable LOAD segment holding .dynamic and
// .data, the target of every relocation.
func Build(opts Options) []byte {
	loadAlign := opts.LoadAlign
	if loadAlign == 0 {
		loadAlign = 0x10000
	}

	machine := elf.EM_AARCH64
	absoluteType := uint32(elf.R_AARCH64_ABS64)
	if opts.Class == elf.ELFCLASS32 {
		machine = elf.EM_ARM
		absoluteType = elf.R_ARM_ABS32
	}
	relativeType, _ := machine.RelativeRelocationType()

	e := elf.New(opts.Class, machine, elf.ET_DYN)
	width := e.Width()
	word := e.WordSize()
	rela := opts.Class == elf.ELFCLASS64
	relType := elf.SHT_REL
	relSizeTag, relEntTag, relCountTag, relTag := elf.DT_RELSZ, elf.DT_RELENT, elf.DT_RELCOUNT, elf.DT_REL
	if rela {
		relType = elf.SHT_RELA
		relSizeTag, relEntTag, relCountTag, relTag = elf.DT_RELASZ, elf.DT_RELAENT, elf.DT_RELACOUNT, elf.DT_RELA
	}
	relName, packedName := relocationSectionNames(rela)

	// Program headers
	phdr := &elf.ProgramHeader{Type: elf.PT_PHDR, Flags: elf.PF_R, Align: word}
	text := &elf.ProgramHeader{Type: elf.PT_LOAD, Flags: elf.PF_R | elf.PF_X, Align: loadAlign}
	data := &elf.ProgramHeader{Type: elf.PT_LOAD, Flags: elf.PF_R | elf.PF_W, Align: loadAlign}
	dynamic := &elf.ProgramHeader{Type: elf.PT_DYNAMIC, Flags: elf.PF_R | elf.PF_W, Align: word}
	e.ProgramHeaders = []*elf.ProgramHeader{phdr, text, data, dynamic}
	if !opts.NoGNUStack {
		e.ProgramHeaders = append(e.ProgramHeaders, &elf.ProgramHeader{
			Type:  elf.PT_GNU_STACK,
			Flags: elf.PF_R | elf.PF_W,
			Align: 16,
		})
	}

	// Sections
	null := &elf.SectionHeader{Type: elf.SHT_NULL}
	dynsym := &elf.SectionHeader{Name: ".dynsym", Type: elf.SHT_DYNSYM, Flags: elf.SHF_ALLOC, AddrAlign: word, Info: 1}
	dynstr := &elf.SectionHeader{Name: ".dynstr", Type: elf.SHT_STRTAB, Flags: elf.SHF_ALLOC, AddrAlign: 1}
	relocations := &elf.SectionHeader{Name: relName, Type: relType, Flags: elf.SHF_ALLOC, AddrAlign: word,
		EntrySize: e.RelocationEntrySize(relType)}
	packed := &elf.SectionHeader{Name: packedName, Type: elf.SHT_ANDROID_REL, Flags: elf.SHF_ALLOC, AddrAlign: word,
		EntrySize: 1}
	if rela {
		packed.Type = elf.SHT_ANDROID_RELA
	}
	textSection := &elf.SectionHeader{Name: ".text", Type: elf.SHT_PROGBITS, Flags: elf.SHF_ALLOC | elf.SHF_EXECINSTR,
		AddrAlign: 16}
	dynamicSection := &elf.SectionHeader{Name: ".dynamic", Type: elf.SHT_DYNAMIC, Flags: elf.SHF_ALLOC | elf.SHF_WRITE,
		AddrAlign: word, EntrySize: 2 * word}
	dataSection := &elf.SectionHeader{Name: ".data", Type: elf.SHT_PROGBITS, Flags: elf.SHF_ALLOC | elf.SHF_WRITE,
		AddrAlign: word}
	shstrtab := &elf.SectionHeader{Name: ".shstrtab", Type: elf.SHT_STRTAB, AddrAlign: 1}

	e.Sections = []*elf.SectionHeader{null, dynsym, dynstr, relocations}
	if opts.PackedStub {
		e.Sections = append(e.Sections, packed)
	}
	e.Sections = append(e.Sections, textSection, dynamicSection, dataSection, shstrtab)
	e.SecHdrStrIdx = uint16(len(e.Sections) - 1)
	e.AssignSectionNames()

	index := func(sh *elf.SectionHeader) uint32 { return uint32(e.SectionIndex(sh)) }
	dynsym.Link = index(dynstr)
	relocations.Link = index(dynsym)
	packed.Link = index(dynsym)
	dynamicSection.Link = index(dynstr)

	// Layout of the first LOAD segment
	offset := uint64(e.HeaderSize) + uint64(len(e.ProgramHeaders))*uint64(e.ProgHdrEntrySize)
	phdr.Offset = uint64(e.HeaderSize)
	phdr.FileSize = offset - phdr.Offset
	e.ProgHdrOffset = phdr.Offset

	dynstr.SetData([]byte("\x00libtest.so\x00func\x00data\x00"))
	symbols := []*elf.Symbol{
		{},
		{NameOffset: 12, Type: elf.STT_FUNC, Binding: elf.STB_GLOBAL, SectionIndex: uint16(index(textSection)), Size: 16},
		{NameOffset: 17, Type: elf.STT_OBJECT, Binding: elf.STB_GLOBAL, SectionIndex: uint16(index(dataSection)), Size: word},
	}
	dynsym.SetData(e.EncodeSymbols(symbols))
	dynsym.EntrySize = dynsym.Size / uint64(len(symbols))

	dynsym.Offset = alignUp(offset, word)
	dynstr.Offset = dynsym.Offset + dynsym.Size
	relocations.Offset = alignUp(dynstr.Offset+dynstr.Size, word)
	relocations.Size = uint64(opts.Relative+opts.Absolute) * relocations.EntrySize
	packed.Offset = relocations.Offset + relocations.Size
	textSection.Offset = alignUp(packed.Offset, 16)
	textData := make([]byte, 64)
	for i := range textData {
		textData[i] = byte(0xA0 + i%32)
	}
	textSection.SetData(textData)

	text.FileSize = textSection.Offset + textSection.Size
	text.MemSize = text.FileSize
	for _, sh := range []*elf.SectionHeader{dynsym, dynstr, relocations, packed, textSection} {
		sh.Address = text.VAddr + sh.Offset
	}
	phdr.VAddr, phdr.PAddr, phdr.MemSize = phdr.Offset, phdr.Offset, phdr.FileSize
	e.Entry = textSection.Address

	// Layout of the second LOAD segment
	data.Offset = alignUp(text.FileSize, PageSize)
	data.VAddr = data.Offset + loadAlign
	data.PAddr = data.VAddr
	dynamicSection.Offset = data.Offset
	dynamicSection.Address = data.VAddr

	dynamicEntryCount := 11 + opts.SpareDynamic
	dynamicSection.Size = uint64(dynamicEntryCount) * dynamicSection.EntrySize
	dataSection.Offset = alignUp(dynamicSection.Offset+dynamicSection.Size, word)
	dataSection.Address = data.VAddr + (dataSection.Offset - data.Offset)

	// Relocation targets: mostly consecutive words, with a gap every fifth.
	var targets []uint64
	slot := uint64(0)
	for i := 0; i < opts.Relative+opts.Absolute; i++ {
		targets = append(targets, dataSection.Address+slot*word)
		slot++
		if i%5 == 4 {
			slot++
		}
	}
	dataBytes := make([]byte, (slot+1)*word)

	var rels []relocation.Relocation
	for i, target := range targets {
		rel := relocation.Relocation{Offset: target}
		if i < opts.Relative {
			rel.Info = width.Info(0, relativeType)
			addend := textSection.Address + uint64(i%16)*4
			if rela {
				rel.Addend = int64(addend)
			} else {
				binary.LittleEndian.PutUint32(dataBytes[target-dataSection.Address:], uint32(addend))
			}
		} else {
			rel.Info = width.Info(1, absoluteType)
		}
		rels = append(rels, rel)
	}
	relocations.SetData(e.EncodeRelocations(relType, rels))
	dataSection.SetData(dataBytes)

	symbols[1].Value = textSection.Address
	symbols[2].Value = dataSection.Address
	dynsym.SetData(e.EncodeSymbols(symbols))

	entries := []elf.DynamicEntry{
		{Tag: elf.DT_SONAME, Value: 1},
		{Tag: elf.DT_STRTAB, Value: dynstr.Address},
		{Tag: elf.DT_SYMTAB, Value: dynsym.Address},
		{Tag: elf.DT_STRSZ, Value: dynstr.Size},
		{Tag: elf.DT_SYMENT, Value: dynsym.EntrySize},
		{Tag: relTag, Value: relocations.Address},
		{Tag: relSizeTag, Value: relocations.Size},
		{Tag: relEntTag, Value: relocations.EntrySize},
		{Tag: relCountTag, Value: uint64(opts.Relative)},
		{Tag: elf.DT_INIT_ARRAY, Value: dataSection.Address},
		{Tag: elf.DT_NULL},
	}
	for i := 0; i < opts.SpareDynamic; i++ {
		entries = append(entries, elf.DynamicEntry{Tag: elf.DT_NULL})
	}
	dynamicSection.SetData(e.EncodeDynamic(entries))

	data.FileSize = dataSection.Offset + dataSection.Size - data.Offset
	data.MemSize = data.FileSize + 0x100
	dynamic.Offset = dynamicSection.Offset
	dynamic.VAddr = dynamicSection.Address
	dynamic.PAddr = dynamicSection.Address
	dynamic.FileSize = dynamicSection.Size
	dynamic.MemSize = dynamicSection.Size

	// Non-allocated tail
	shstrtab.Offset = dataSection.Offset + dataSection.Size
	e.SecHdrOffset = alignUp(shstrtab.Offset+shstrtab.Size, word)

	image, err := e.Bytes()
	if err != nil {
		panic(err)
	}
	return image
}
