// SPDX-License-Identifier: MIT
//
// Copyright (c) 2024 Adrian "asie" Siekierka

package elf

import (
	"encoding/binary"
	"io"
)

type programHeader32 struct {
	Type     uint32
	Offset   uint32
	VAddr    uint32
	PAddr    uint32
	FileSize uint32
	MemSize  uint32
	Flags    uint32
	Align    uint32
}

type programHeader64 struct {
	Type     uint32
	Flags    uint32
	Offset   uint64
	VAddr    uint64
	PAddr    uint64
	FileSize uint64
	MemSize  uint64
	Align    uint64
}

func (e *Elf) sizeProgramHeader() int {
	if e.Class == ELFCLASS64 {
		return binary.Size(&programHeader64{})
	} else {
		return binary.Size(&programHeader32{})
	}
}

func (e *Elf) readProgramHeader(r io.Reader) (*ProgramHeader, error) {
	var result ProgramHeader

	if e.Class == ELFCLASS64 {
		var ph programHeader64
		if err := binary.Read(r, e.ByteOrder(), &ph); err != nil {
			return nil, err
		}

		result.Type = ProgramHeaderType(ph.Type)
		result.Flags = ProgramHeaderFlag(ph.Flags)
		result.Offset = ph.Offset
		result.VAddr = ph.VAddr
		result.PAddr = ph.PAddr
		result.FileSize = ph.FileSize
		result.MemSize = ph.MemSize
		result.Align = ph.Align
	} else {
		var ph programHeader32
		if err := binary.Read(r, e.ByteOrder(), &ph); err != nil {
			return nil, err
		}

		result.Type = ProgramHeaderType(ph.Type)
		result.Flags = ProgramHeaderFlag(ph.Flags)
		result.Offset = uint64(ph.Offset)
		result.VAddr = uint64(ph.VAddr)
		result.PAddr = uint64(ph.PAddr)
		result.FileSize = uint64(ph.FileSize)
		result.MemSize = uint64(ph.MemSize)
		result.Align = uint64(ph.Align)
	}

	return &result, nil
}

func (e *Elf) writeProgramHeader(w io.Writer, input *ProgramHeader) error {
	if e.Class == ELFCLASS64 {
		var ph programHeader64

		ph.Type = uint32(input.Type)
		ph.Flags = uint32(input.Flags)
		ph.Offset = input.Offset
		ph.VAddr = input.VAddr
		ph.PAddr = input.PAddr
		ph.FileSize = input.FileSize
		ph.MemSize = input.MemSize
		ph.Align = input.Align

		return binary.Write(w, e.ByteOrder(), &ph)
	} else {
		var ph programHeader32

		ph.Type = uint32(input.Type)
		ph.Flags = uint32(input.Flags)
		ph.Offset = uint32(input.Offset)
		ph.VAddr = uint32(input.VAddr)
		ph.PAddr = uint32(input.PAddr)
		ph.FileSize = uint32(input.FileSize)
		ph.MemSize = uint32(input.MemSize)
		ph.Align = uint32(input.Align)

		return binary.Write(w, e.ByteOrder(), &ph)
	}
}
