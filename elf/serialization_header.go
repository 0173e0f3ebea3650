// SPDX-License-Identifier: MIT
//
// Copyright (c) 2024 Adrian "asie" Siekierka

package elf

import (
	"encoding/binary"
	"fmt"
	"io"
)

const identSize = 16

type elfHeader32 struct {
	Type             uint16
	Machine          uint16
	Version          uint32
	Entry            uint32
	ProgHdrOff       uint32
	SecHdrOff        uint32
	Flags            uint32
	HeaderSize       uint16
	ProgHdrEntrySize uint16
	ProgHdrCount     uint16
	SecHdrEntrySize  uint16
	SecHdrCount      uint16
	SecHdrStrIndex   uint16
}

type elfHeader64 struct {
	Type             uint16
	Machine          uint16
	Version          uint32
	Entry            uint64
	ProgHdrOff       uint64
	SecHdrOff        uint64
	Flags            uint32
	HeaderSize       uint16
	ProgHdrEntrySize uint16
	ProgHdrCount     uint16
	SecHdrEntrySize  uint16
	SecHdrCount      uint16
	SecHdrStrIndex   uint16
}

func (e *Elf) sizeElfHeader() int {
	// Add 16 bytes of ELF identification section
	if e.Class == ELFCLASS64 {
		return binary.Size(&elfHeader64{}) + identSize
	} else {
		return binary.Size(&elfHeader32{}) + identSize
	}
}

// readElfHeader returns the program and section header counts alongside any error.
func (e *Elf) readElfHeader(r io.Reader) (int, int, error) {
	ident := make([]byte, identSize)

	if _, err := io.ReadFull(r, ident); err != nil {
		return 0, 0, ErrNotElf
	}

	if ident[0] != 0x7F || ident[1] != 0x45 || ident[2] != 0x4C || ident[3] != 0x46 {
		return 0, 0, ErrNotElf
	}

	e.Class = FileClass(ident[4])
	e.Endian = FileEndian(ident[5])
	e.HeaderVersion = ident[6]
	e.ABI = FileABI(ident[7])
	e.ABIVersion = ident[8]

	if e.Endian != ELFDATA2LSB && e.Endian != ELFDATA2MSB {
		return 0, 0, fmt.Errorf("invalid data encoding: %d", e.Endian)
	}

	var phnum, shnum uint16
	if e.Class == ELFCLASS64 {
		var fh elfHeader64
		if err := binary.Read(r, e.ByteOrder(), &fh); err != nil {
			return 0, 0, err
		}

		e.Type = FileType(fh.Type)
		e.Machine = MachineType(fh.Machine)
		e.Version = fh.Version
		e.Entry = fh.Entry
		e.ProgHdrOffset = fh.ProgHdrOff
		e.SecHdrOffset = fh.SecHdrOff
		e.Flags = fh.Flags
		e.HeaderSize = fh.HeaderSize
		e.ProgHdrEntrySize = fh.ProgHdrEntrySize
		e.SecHdrEntrySize = fh.SecHdrEntrySize
		e.SecHdrStrIdx = fh.SecHdrStrIndex
		phnum, shnum = fh.ProgHdrCount, fh.SecHdrCount
	} else if e.Class == ELFCLASS32 {
		var fh elfHeader32
		if err := binary.Read(r, e.ByteOrder(), &fh); err != nil {
			return 0, 0, err
		}

		e.Type = FileType(fh.Type)
		e.Machine = MachineType(fh.Machine)
		e.Version = fh.Version
		e.Entry = uint64(fh.Entry)
		e.ProgHdrOffset = uint64(fh.ProgHdrOff)
		e.SecHdrOffset = uint64(fh.SecHdrOff)
		e.Flags = fh.Flags
		e.HeaderSize = fh.HeaderSize
		e.ProgHdrEntrySize = fh.ProgHdrEntrySize
		e.SecHdrEntrySize = fh.SecHdrEntrySize
		e.SecHdrStrIdx = fh.SecHdrStrIndex
		phnum, shnum = fh.ProgHdrCount, fh.SecHdrCount
	} else {
		return 0, 0, fmt.Errorf("invalid class: %d", e.Class)
	}

	if e.SecHdrStrIdx == SHN_XINDEX || shnum >= SHN_LORESERVE {
		return 0, 0, fmt.Errorf("extended section numbering is not supported")
	}

	return int(phnum), int(shnum), nil
}

func (e *Elf) writeElfHeader(w io.Writer) error {
	ident := make([]byte, identSize)

	ident[0] = 0x7F
	ident[1] = 0x45
	ident[2] = 0x4C
	ident[3] = 0x46

	ident[4] = uint8(e.Class)
	ident[5] = uint8(e.Endian)
	ident[6] = uint8(e.HeaderVersion)
	ident[7] = uint8(e.ABI)
	ident[8] = uint8(e.ABIVersion)

	if _, err := w.Write(ident); err != nil {
		return err
	}

	if e.Class == ELFCLASS64 {
		var fh elfHeader64

		fh.Type = uint16(e.Type)
		fh.Machine = uint16(e.Machine)
		fh.Version = e.Version
		fh.Entry = e.Entry
		fh.ProgHdrOff = e.ProgHdrOffset
		fh.SecHdrOff = e.SecHdrOffset
		fh.Flags = e.Flags
		fh.HeaderSize = e.HeaderSize
		fh.ProgHdrEntrySize = e.ProgHdrEntrySize
		fh.ProgHdrCount = uint16(len(e.ProgramHeaders))
		fh.SecHdrEntrySize = e.SecHdrEntrySize
		fh.SecHdrCount = uint16(len(e.Sections))
		fh.SecHdrStrIndex = e.SecHdrStrIdx

		return binary.Write(w, e.ByteOrder(), &fh)
	} else {
		var fh elfHeader32

		fh.Type = uint16(e.Type)
		fh.Machine = uint16(e.Machine)
		fh.Version = e.Version
		fh.Entry = uint32(e.Entry)
		fh.ProgHdrOff = uint32(e.ProgHdrOffset)
		fh.SecHdrOff = uint32(e.SecHdrOffset)
		fh.Flags = e.Flags
		fh.HeaderSize = e.HeaderSize
		fh.ProgHdrEntrySize = e.ProgHdrEntrySize
		fh.ProgHdrCount = uint16(len(e.ProgramHeaders))
		fh.SecHdrEntrySize = e.SecHdrEntrySize
		fh.SecHdrCount = uint16(len(e.Sections))
		fh.SecHdrStrIndex = e.SecHdrStrIdx

		return binary.Write(w, e.ByteOrder(), &fh)
	}
}
