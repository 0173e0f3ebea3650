// SPDX-License-Identifier: MIT
//
// Copyright (c) 2024 Adrian "asie" Siekierka

package elf

// Elf is an in-memory view of an ELF file whose layout is entirely
// controlled by the caller: every offset read from the file is written back
// unchanged unless the caller modifies it.
type Elf struct {
	ElfHeader
	ProgramHeaders []*ProgramHeader
	Sections       []*SectionHeader

	// image backs every byte not owned by a section or header table.
	image []byte
}

type ElfHeader struct {
	// Identification
	Class         FileClass
	Endian        FileEndian
	HeaderVersion uint8
	ABI           FileABI
	ABIVersion    uint8

	// Header
	Type             FileType
	Machine          MachineType
	Version          uint32
	Entry            uint64
	ProgHdrOffset    uint64
	SecHdrOffset     uint64
	Flags            uint32
	HeaderSize       uint16
	ProgHdrEntrySize uint16
	SecHdrEntrySize  uint16
	SecHdrStrIdx     uint16
}

type ProgramHeader struct {
	Type     ProgramHeaderType
	Flags    ProgramHeaderFlag
	Offset   uint64
	VAddr    uint64
	PAddr    uint64
	FileSize uint64
	MemSize  uint64
	Align    uint64
}

// End returns the file offset one past the last byte of the segment.
func (p *ProgramHeader) End() uint64 {
	return p.Offset + p.FileSize
}

// Contains reports whether the file offset lies within the segment's file image.
func (p *ProgramHeader) Contains(offset uint64) bool {
	return offset >= p.Offset && offset < p.End()
}

type SectionHeader struct {
	Name       string
	nameOffset uint32
	Type       SectionHeaderType
	Flags      SectionHeaderFlag
	Address    uint64
	Offset     uint64
	Size       uint64
	Link       uint32
	Info       uint32
	AddrAlign  uint64
	EntrySize  uint64
	Data       []byte
}

func (s *SectionHeader) IsAlloc() bool {
	return s.Flags&SHF_ALLOC != 0
}

// SetData replaces the section contents and updates its size.
func (s *SectionHeader) SetData(data []byte) {
	s.Data = data
	s.Size = uint64(len(data))
}

type Symbol struct {
	NameOffset   uint32
	Type         SymbolType
	Binding      SymbolBinding
	Other        uint8
	SectionIndex uint16
	Value        uint64
	Size         uint64
}

// IsDefined reports whether the symbol's value is an address in the object.
func (s *Symbol) IsDefined() bool {
	return s.SectionIndex != SHN_UNDEF && s.SectionIndex < SHN_LORESERVE && s.Type != STT_TLS
}

type DynamicEntry struct {
	Tag   DynamicTag
	Value uint64
}
