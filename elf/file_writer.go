// SPDX-License-Identifier: MIT
//
// Copyright (c) 2024 Adrian "asie" Siekierka

package elf

import (
	"bytes"
	"fmt"
	"io"
	"slices"
)

type stringTable struct {
	data []byte
}

// Add returns the offset of s in the table, appending it if needed. Any
// occurrence of s followed by a terminator will do, including the tail of a
// longer string.
func (t *stringTable) Add(s string) (uint32, bool) {
	grew := false
	if len(t.data) == 0 {
		t.data = append(t.data, 0)
		grew = true
	}
	needle := append([]byte(s), 0)
	if idx := bytes.Index(t.data, needle); idx >= 0 {
		return uint32(idx), grew
	}
	pos := uint32(len(t.data))
	t.data = append(t.data, needle...)
	return pos, true
}

// New returns an empty little-endian file of the given class, ready to be
// filled in and laid out by the caller.
func New(class FileClass, machine MachineType, typ FileType) *Elf {
	e := &Elf{}
	e.Class = class
	e.Endian = ELFDATA2LSB
	e.HeaderVersion = 1
	e.Version = 1
	e.Type = typ
	e.Machine = machine
	e.HeaderSize = uint16(e.sizeElfHeader())
	e.ProgHdrEntrySize = uint16(e.sizeProgramHeader())
	e.SecHdrEntrySize = uint16(e.sizeSectionHeader())
	return e
}

// AssignSectionNames rebuilds the section name table from the names of all
// sections. The table's size changes, so this is only useful before layout.
func (e *Elf) AssignSectionNames() {
	strtab := e.Sections[e.SecHdrStrIdx]
	var table stringTable
	for _, sh := range e.Sections {
		sh.nameOffset, _ = table.Add(sh.Name)
	}
	strtab.SetData(table.data)
}

func (e *Elf) programHeaderTableEnd() uint64 {
	if len(e.ProgramHeaders) == 0 {
		return 0
	}
	return e.ProgHdrOffset + uint64(len(e.ProgramHeaders))*uint64(e.sizeProgramHeader())
}

func (e *Elf) sectionHeaderTableEnd() uint64 {
	if len(e.Sections) == 0 {
		return 0
	}
	return e.SecHdrOffset + uint64(len(e.Sections))*uint64(e.sizeSectionHeader())
}

// Size returns the length of the file Bytes produces.
func (e *Elf) Size() uint64 {
	size := uint64(len(e.image))
	size = max(size, uint64(e.sizeElfHeader()))
	size = max(size, e.programHeaderTableEnd())
	size = max(size, e.sectionHeaderTableEnd())
	for _, sh := range e.Sections {
		if sh.Type.HasDataInFile() {
			size = max(size, sh.Offset+sh.Size)
		}
	}
	return size
}

// Splice opens a gap of delta zero bytes at offset when delta is positive,
// or removes -delta bytes starting at offset when it is negative. Only the
// backing image moves; header and section offsets are left to the caller.
func (e *Elf) Splice(offset uint64, delta int64) {
	if offset > uint64(len(e.image)) {
		panic(fmt.Sprintf("splice at %#x beyond end of %#x byte image", offset, len(e.image)))
	}
	if delta >= 0 {
		e.image = slices.Insert(e.image, int(offset), make([]byte, delta)...)
	} else {
		end := offset + uint64(-delta)
		if end > uint64(len(e.image)) {
			panic(fmt.Sprintf("splice removes %#x bytes at %#x beyond end of image", -delta, offset))
		}
		e.image = slices.Delete(e.image, int(offset), int(end))
	}
}

// Clear zeroes size bytes of the backing image at offset.
func (e *Elf) Clear(offset uint64, size uint64) {
	end := min(offset+size, uint64(len(e.image)))
	if offset < end {
		clear(e.image[offset:end])
	}
}

// AddSection appends sh to the section header table and its name to the
// section name table, returning its index. Both tables are moved to the end
// of the file if they have to grow; existing section indices do not change.
func (e *Elf) AddSection(sh *SectionHeader) (int, error) {
	if e.SecHdrStrIdx == SHN_UNDEF || int(e.SecHdrStrIdx) >= len(e.Sections) {
		return -1, fmt.Errorf("no section name table")
	}
	strtab := e.Sections[e.SecHdrStrIdx]
	if strtab.IsAlloc() {
		return -1, fmt.Errorf("section name table %q is allocated", strtab.Name)
	}

	table := stringTable{data: slices.Clone(strtab.Data)}
	nameOffset, grew := table.Add(sh.Name)
	sh.nameOffset = nameOffset

	if grew {
		e.Clear(strtab.Offset, strtab.Size)
		strtab.Offset = alignUp(e.Size(), max(strtab.AddrAlign, 1))
		strtab.SetData(table.data)
	}

	e.Clear(e.SecHdrOffset, e.sectionHeaderTableEnd()-e.SecHdrOffset)
	e.Sections = append(e.Sections, sh)
	e.SecHdrOffset = 0
	e.SecHdrOffset = alignUp(e.Size(), e.WordSize())

	return len(e.Sections) - 1, nil
}

// Bytes lays out the file exactly as described by the headers: every header
// table and section is written at the offset it names.
func (e *Elf) Bytes() ([]byte, error) {
	buf := make([]byte, e.Size())
	copy(buf, e.image)

	// Write section data
	for _, sh := range e.Sections {
		if !sh.Type.HasDataInFile() {
			continue
		}
		if uint64(len(sh.Data)) != sh.Size {
			return nil, fmt.Errorf("section %q: %d bytes of data for size %d", sh.Name, len(sh.Data), sh.Size)
		}
		copy(buf[sh.Offset:], sh.Data)
	}

	var header bytes.Buffer

	// Write program headers
	for _, ph := range e.ProgramHeaders {
		if err := e.writeProgramHeader(&header, ph); err != nil {
			return nil, err
		}
	}
	copy(buf[e.ProgHdrOffset:], header.Bytes())

	// Write section headers
	header.Reset()
	for _, sh := range e.Sections {
		if err := e.writeSectionHeader(&header, sh); err != nil {
			return nil, err
		}
	}
	copy(buf[e.SecHdrOffset:], header.Bytes())

	// Write file header
	header.Reset()
	if err := e.writeElfHeader(&header); err != nil {
		return nil, err
	}
	copy(buf, header.Bytes())

	return buf, nil
}

func (e *Elf) Write(w io.Writer) error {
	buf, err := e.Bytes()
	if err != nil {
		return err
	}
	_, err = w.Write(buf)
	return err
}
