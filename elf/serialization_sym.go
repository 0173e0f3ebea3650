// SPDX-License-Identifier: MIT
//
// Copyright (c) 2024 Adrian "asie" Siekierka

package elf

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
)

type symbol32 struct {
	Name         uint32
	Value        uint32
	Size         uint32
	Info         uint8
	Other        uint8
	SectionIndex uint16
}

type symbol64 struct {
	Name         uint32
	Info         uint8
	Other        uint8
	SectionIndex uint16
	Value        uint64
	Size         uint64
}

func (e *Elf) sizeSymbol() int {
	if e.Class == ELFCLASS64 {
		return binary.Size(&symbol64{})
	} else {
		return binary.Size(&symbol32{})
	}
}

func (e *Elf) readSymbol(r io.Reader) (*Symbol, error) {
	var result Symbol

	if e.Class == ELFCLASS64 {
		var sh symbol64
		if err := binary.Read(r, e.ByteOrder(), &sh); err != nil {
			return nil, err
		}

		result.NameOffset = sh.Name
		result.Type = SymbolType(sh.Info & 0xF)
		result.Binding = SymbolBinding(sh.Info >> 4)
		result.Other = sh.Other
		result.SectionIndex = sh.SectionIndex
		result.Value = sh.Value
		result.Size = sh.Size
	} else {
		var sh symbol32
		if err := binary.Read(r, e.ByteOrder(), &sh); err != nil {
			return nil, err
		}

		result.NameOffset = sh.Name
		result.Type = SymbolType(sh.Info & 0xF)
		result.Binding = SymbolBinding(sh.Info >> 4)
		result.Other = sh.Other
		result.SectionIndex = sh.SectionIndex
		result.Value = uint64(sh.Value)
		result.Size = uint64(sh.Size)
	}

	return &result, nil
}

func (e *Elf) writeSymbol(w io.Writer, input *Symbol) error {
	if e.Class == ELFCLASS64 {
		var sh symbol64

		sh.Name = input.NameOffset
		sh.Info = uint8(input.Type) | (uint8(input.Binding) << 4)
		sh.Other = input.Other
		sh.SectionIndex = input.SectionIndex
		sh.Value = input.Value
		sh.Size = input.Size

		return binary.Write(w, e.ByteOrder(), &sh)
	} else {
		var sh symbol32

		sh.Name = input.NameOffset
		sh.Info = uint8(input.Type) | (uint8(input.Binding) << 4)
		sh.Other = input.Other
		sh.SectionIndex = input.SectionIndex
		sh.Value = uint32(input.Value)
		sh.Size = uint32(input.Size)

		return binary.Write(w, e.ByteOrder(), &sh)
	}
}

// ReadSymbols decodes the entries of a SHT_SYMTAB or SHT_DYNSYM section.
// Names are left as offsets into the linked string table.
func (e *Elf) ReadSymbols(sh *SectionHeader) ([]*Symbol, error) {
	entrySize := uint64(e.sizeSymbol())
	if uint64(len(sh.Data))%entrySize != 0 {
		return nil, fmt.Errorf("section %q: size %d is not a multiple of %d", sh.Name, len(sh.Data), entrySize)
	}

	count := uint64(len(sh.Data)) / entrySize
	result := make([]*Symbol, 0, count)
	r := bytes.NewReader(sh.Data)
	for i := uint64(0); i < count; i++ {
		sym, err := e.readSymbol(r)
		if err != nil {
			return nil, err
		}
		if sym.SectionIndex == SHN_XINDEX {
			return nil, fmt.Errorf("section %q: extended section indices are not supported", sh.Name)
		}
		result = append(result, sym)
	}
	return result, nil
}

func (e *Elf) EncodeSymbols(symbols []*Symbol) []byte {
	var buf bytes.Buffer
	for _, sym := range symbols {
		if err := e.writeSymbol(&buf, sym); err != nil {
			panic(err)
		}
	}
	return buf.Bytes()
}
