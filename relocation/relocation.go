// SPDX-License-Identifier: MIT
//
// Copyright (c) 2024 Adrian "asie" Siekierka

package relocation

import (
	"errors"
	"fmt"
)

var (
	ErrBadMagic  = errors.New("packed relocations: bad magic")
	ErrTruncated = errors.New("packed relocations: truncated stream")
	ErrCorrupt   = errors.New("packed relocations: corrupt stream")
)

// maxDecodedRelocations bounds the output of a single decode so that a
// corrupt count cannot exhaust memory.
const maxDecodedRelocations = 1 << 26

// Width is the integer width of the target object (ELFCLASS32 or ELFCLASS64).
type Width int

const (
	Width32 Width = 32
	Width64 Width = 64
)

// Bytes returns the size of a target word in bytes.
func (w Width) Bytes() int {
	return int(w) / 8
}

func (w Width) truncate(v uint64) uint64 {
	if w == Width32 {
		return v & 0xFFFFFFFF
	}
	return v
}

func (w Width) signExtend(v uint64) int64 {
	if w == Width32 {
		return int64(int32(uint32(v)))
	}
	return int64(v)
}

// Info composes an r_info value from a symbol index and a relocation type.
func (w Width) Info(symbol uint32, typ uint32) uint64 {
	if w == Width32 {
		return uint64(symbol)<<8 | uint64(typ&0xFF)
	}
	return uint64(symbol)<<32 | uint64(typ)
}

func (w Width) Symbol(info uint64) uint32 {
	if w == Width32 {
		return uint32(info >> 8)
	}
	return uint32(info >> 32)
}

func (w Width) Type(info uint64) uint32 {
	if w == Width32 {
		return uint32(info & 0xFF)
	}
	return uint32(info)
}

// Relocation is a dynamic relocation entry. Addend is zero for REL entries.
type Relocation struct {
	Offset uint64
	Info   uint64
	Addend int64
}

func (r Relocation) String() string {
	return fmt.Sprintf("{offset=%#x info=%#x addend=%d}", r.Offset, r.Info, r.Addend)
}

// checkOrdered panics unless offsets are strictly increasing; every codec
// relies on positive offset deltas.
func checkOrdered(relocations []Relocation) {
	for i := 1; i < len(relocations); i++ {
		if relocations[i].Offset <= relocations[i-1].Offset {
			panic(fmt.Sprintf("relocation offsets not strictly increasing at index %d: %#x after %#x",
				i, relocations[i].Offset, relocations[i-1].Offset))
		}
	}
}

// Codec converts relocations to and from a packed word stream.
type Codec interface {
	Encode(relocations []Relocation) []int64
	Decode(words []int64) ([]Relocation, error)
}

// wordReader hands out words with bounds checking.
type wordReader struct {
	words []int64
	pos   int
}

func (r *wordReader) next() (int64, error) {
	if r.pos >= len(r.words) {
		return 0, ErrTruncated
	}
	w := r.words[r.pos]
	r.pos++
	return w, nil
}
