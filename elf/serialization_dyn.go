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

type dynamic32 struct {
	Tag   int32
	Value uint32
}

type dynamic64 struct {
	Tag   int64
	Value uint64
}

func (e *Elf) sizeDynamicEntry() int {
	if e.Class == ELFCLASS64 {
		return binary.Size(&dynamic64{})
	} else {
		return binary.Size(&dynamic32{})
	}
}

func (e *Elf) readDynamicEntry(r io.Reader) (DynamicEntry, error) {
	if e.Class == ELFCLASS64 {
		var dyn dynamic64
		if err := binary.Read(r, e.ByteOrder(), &dyn); err != nil {
			return DynamicEntry{}, err
		}
		return DynamicEntry{Tag: DynamicTag(dyn.Tag), Value: dyn.Value}, nil
	} else {
		var dyn dynamic32
		if err := binary.Read(r, e.ByteOrder(), &dyn); err != nil {
			return DynamicEntry{}, err
		}
		return DynamicEntry{Tag: DynamicTag(dyn.Tag), Value: uint64(dyn.Value)}, nil
	}
}

func (e *Elf) writeDynamicEntry(w io.Writer, input DynamicEntry) error {
	if e.Class == ELFCLASS64 {
		dyn := dynamic64{Tag: int64(input.Tag), Value: input.Value}
		return binary.Write(w, e.ByteOrder(), &dyn)
	} else {
		dyn := dynamic32{Tag: int32(input.Tag), Value: uint32(input.Value)}
		return binary.Write(w, e.ByteOrder(), &dyn)
	}
}

// ReadDynamic decodes every slot of a .dynamic section, including the
// DT_NULL terminator and any spare DT_NULL slots after it.
func (e *Elf) ReadDynamic(sh *SectionHeader) ([]DynamicEntry, error) {
	entrySize := uint64(e.sizeDynamicEntry())
	if uint64(len(sh.Data))%entrySize != 0 {
		return nil, fmt.Errorf("section %q: size %d is not a multiple of %d", sh.Name, len(sh.Data), entrySize)
	}

	count := uint64(len(sh.Data)) / entrySize
	result := make([]DynamicEntry, 0, count)
	r := bytes.NewReader(sh.Data)
	for i := uint64(0); i < count; i++ {
		dyn, err := e.readDynamicEntry(r)
		if err != nil {
			return nil, err
		}
		result = append(result, dyn)
	}
	return result, nil
}

func (e *Elf) EncodeDynamic(entries []DynamicEntry) []byte {
	var buf bytes.Buffer
	for _, dyn := range entries {
		if err := e.writeDynamicEntry(&buf, dyn); err != nil {
			panic(err)
		}
	}
	return buf.Bytes()
}
