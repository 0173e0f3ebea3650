// SPDX-License-Identifier: MIT
//
// Copyright (c) 2024 Adrian "asie" Siekierka

package elf

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"slices"

	"github.com/WonderfulToolchain/wf-relocation-packer/relocation"
)

var ErrNotElf = errors.New("not an ELF file")

func errTruncatedSection(offset uint64, size uint64) error {
	return fmt.Errorf("section data at %#x+%#x lies outside the file", offset, size)
}

func (e *Elf) ByteOrder() binary.ByteOrder {
	if e.Endian == ELFDATA2MSB {
		return binary.BigEndian
	} else {
		return binary.LittleEndian
	}
}

// Width returns the integer width of the file's class.
func (e *Elf) Width() relocation.Width {
	if e.Class == ELFCLASS64 {
		return relocation.Width64
	}
	return relocation.Width32
}

// WordSize returns the size of an address in bytes.
func (e *Elf) WordSize() uint64 {
	return uint64(e.Width().Bytes())
}

func (e *Elf) sectionName(strtab *SectionHeader, offset uint32) (string, error) {
	if uint64(offset) >= uint64(len(strtab.Data)) {
		return "", fmt.Errorf("section name offset %#x outside %d byte string table", offset, len(strtab.Data))
	}
	return readString(bytes.NewReader(strtab.Data[offset:]))
}

// ReadELF parses image. The returned Elf keeps its own copy of image, so
// bytes outside of sections and header tables are written back unchanged.
func ReadELF(image []byte) (*Elf, error) {
	e := &Elf{image: slices.Clone(image)}

	// Read main header
	r := bytes.NewReader(image)
	phnum, shnum, err := e.readElfHeader(r)
	if err != nil {
		return nil, err
	}

	// Read program headers
	if phnum > 0 {
		if e.ProgHdrEntrySize != uint16(e.sizeProgramHeader()) {
			return nil, fmt.Errorf("unexpected program header size: %d", e.ProgHdrEntrySize)
		}
		if e.ProgHdrOffset+uint64(phnum)*uint64(e.ProgHdrEntrySize) > uint64(len(image)) {
			return nil, fmt.Errorf("program header table lies outside the file")
		}
		r = bytes.NewReader(image[e.ProgHdrOffset:])
		for i := 0; i < phnum; i++ {
			hdr, err := e.readProgramHeader(r)
			if err != nil {
				return nil, err
			}
			e.ProgramHeaders = append(e.ProgramHeaders, hdr)
		}
	}

	// Read section headers
	if shnum > 0 {
		if e.SecHdrEntrySize != uint16(e.sizeSectionHeader()) {
			return nil, fmt.Errorf("unexpected section header size: %d", e.SecHdrEntrySize)
		}
		if e.SecHdrOffset+uint64(shnum)*uint64(e.SecHdrEntrySize) > uint64(len(image)) {
			return nil, fmt.Errorf("section header table lies outside the file")
		}
		r = bytes.NewReader(image[e.SecHdrOffset:])
		for i := 0; i < shnum; i++ {
			hdr, err := e.readSectionHeader(r, image)
			if err != nil {
				return nil, err
			}
			e.Sections = append(e.Sections, hdr)
		}
	}

	// Read shstrtab
	if e.SecHdrStrIdx != SHN_UNDEF {
		if int(e.SecHdrStrIdx) >= len(e.Sections) {
			return nil, fmt.Errorf("section name table index %d out of range", e.SecHdrStrIdx)
		}
		strtab := e.Sections[e.SecHdrStrIdx]
		for _, hdr := range e.Sections {
			name, err := e.sectionName(strtab, hdr.nameOffset)
			if err != nil {
				return nil, err
			}
			hdr.Name = name
		}
	}

	return e, nil
}

// SectionByName returns the first section called name and its index, or
// (-1, nil) if there is none.
func (e *Elf) SectionByName(name string) (int, *SectionHeader) {
	for i, sh := range e.Sections {
		if sh.Name == name {
			return i, sh
		}
	}
	return -1, nil
}

// SectionsOfType returns every section of type t, in section header order.
func (e *Elf) SectionsOfType(t SectionHeaderType) []*SectionHeader {
	var result []*SectionHeader
	for _, sh := range e.Sections {
		if sh.Type == t {
			result = append(result, sh)
		}
	}
	return result
}

// ProgramHeadersOfType returns every program header of type t, in table order.
func (e *Elf) ProgramHeadersOfType(t ProgramHeaderType) []*ProgramHeader {
	var result []*ProgramHeader
	for _, ph := range e.ProgramHeaders {
		if ph.Type == t {
			result = append(result, ph)
		}
	}
	return result
}

// LoadContaining returns the PT_LOAD segment whose file image contains offset.
func (e *Elf) LoadContaining(offset uint64) *ProgramHeader {
	for _, ph := range e.ProgramHeaders {
		if ph.Type == PT_LOAD && ph.Contains(offset) {
			return ph
		}
	}
	return nil
}

// SectionIndex returns the index of sh in the section header table, or -1.
func (e *Elf) SectionIndex(sh *SectionHeader) int {
	for i, s := range e.Sections {
		if s == sh {
			return i
		}
	}
	return -1
}
