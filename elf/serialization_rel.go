// SPDX-License-Identifier: MIT
//
// Copyright (c) 2024 Adrian "asie" Siekierka

package elf

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/WonderfulToolchain/wf-relocation-packer/relocation"
)

type rel32 struct {
	Offset uint32
	Info   uint32
}

type rel64 struct {
	Offset uint64
	Info   uint64
}

type rela32 struct {
	Offset uint32
	Info   uint32
	Addend int32
}

type rela64 struct {
	Offset uint64
	Info   uint64
	Addend int64
}

// RelocationEntrySize returns the size of one REL or RELA entry.
func (e *Elf) RelocationEntrySize(t SectionHeaderType) uint64 {
	if e.Class == ELFCLASS64 {
		if t == SHT_RELA {
			return uint64(binary.Size(&rela64{}))
		} else {
			return uint64(binary.Size(&rel64{}))
		}
	} else {
		if t == SHT_RELA {
			return uint64(binary.Size(&rela32{}))
		} else {
			return uint64(binary.Size(&rel32{}))
		}
	}
}

func (e *Elf) readRelocation(r io.Reader, t SectionHeaderType) (relocation.Relocation, error) {
	var result relocation.Relocation

	if e.Class == ELFCLASS64 {
		if t == SHT_RELA {
			var rel rela64
			if err := binary.Read(r, e.ByteOrder(), &rel); err != nil {
				return result, err
			}
			result.Offset = rel.Offset
			result.Info = rel.Info
			result.Addend = rel.Addend
		} else {
			var rel rel64
			if err := binary.Read(r, e.ByteOrder(), &rel); err != nil {
				return result, err
			}
			result.Offset = rel.Offset
			result.Info = rel.Info
		}
	} else {
		if t == SHT_RELA {
			var rel rela32
			if err := binary.Read(r, e.ByteOrder(), &rel); err != nil {
				return result, err
			}
			result.Offset = uint64(rel.Offset)
			result.Info = uint64(rel.Info)
			result.Addend = int64(rel.Addend)
		} else {
			var rel rel32
			if err := binary.Read(r, e.ByteOrder(), &rel); err != nil {
				return result, err
			}
			result.Offset = uint64(rel.Offset)
			result.Info = uint64(rel.Info)
		}
	}

	return result, nil
}

func (e *Elf) writeRelocation(w io.Writer, t SectionHeaderType, input relocation.Relocation) error {
	if e.Class == ELFCLASS64 {
		if t == SHT_RELA {
			rel := rela64{Offset: input.Offset, Info: input.Info, Addend: input.Addend}
			return binary.Write(w, e.ByteOrder(), &rel)
		} else {
			rel := rel64{Offset: input.Offset, Info: input.Info}
			return binary.Write(w, e.ByteOrder(), &rel)
		}
	} else {
		if t == SHT_RELA {
			rel := rela32{Offset: uint32(input.Offset), Info: uint32(input.Info), Addend: int32(input.Addend)}
			return binary.Write(w, e.ByteOrder(), &rel)
		} else {
			rel := rel32{Offset: uint32(input.Offset), Info: uint32(input.Info)}
			return binary.Write(w, e.ByteOrder(), &rel)
		}
	}
}

// ReadRelocations decodes the entries of a SHT_REL or SHT_RELA section.
func (e *Elf) ReadRelocations(sh *SectionHeader) ([]relocation.Relocation, error) {
	if sh.Type != SHT_REL && sh.Type != SHT_RELA {
		return nil, fmt.Errorf("section %q is not a relocation section", sh.Name)
	}
	entrySize := e.RelocationEntrySize(sh.Type)
	if uint64(len(sh.Data))%entrySize != 0 {
		return nil, fmt.Errorf("section %q: size %d is not a multiple of %d", sh.Name, len(sh.Data), entrySize)
	}

	count := uint64(len(sh.Data)) / entrySize
	result := make([]relocation.Relocation, 0, count)
	r := bytes.NewReader(sh.Data)
	for i := uint64(0); i < count; i++ {
		rel, err := e.readRelocation(r, sh.Type)
		if err != nil {
			return nil, err
		}
		result = append(result, rel)
	}
	return result, nil
}

// EncodeRelocations serializes relocations as entries of type t.
func (e *Elf) EncodeRelocations(t SectionHeaderType, relocations []relocation.Relocation) []byte {
	var buf bytes.Buffer
	buf.Grow(len(relocations) * int(e.RelocationEntrySize(t)))
	for _, rel := range relocations {
		if err := e.writeRelocation(&buf, t, rel); err != nil {
			panic(err)
		}
	}
	return buf.Bytes()
}
