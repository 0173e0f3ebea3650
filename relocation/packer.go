// SPDX-License-Identifier: MIT
//
// Copyright (c) 2024 Adrian "asie" Siekierka

package relocation

import (
	"fmt"
	"slices"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"

	"github.com/WonderfulToolchain/wf-relocation-packer/leb128"
)

const magicSize = 4

// Format identifies a packed relocation encoding by its magic.
type Format int

const (
	// FormatRunLength is "APR1": run-length encoded offsets, no addends, LEB128.
	FormatRunLength Format = iota
	// FormatDelta is "APA1": delta encoded offsets and addends, SLEB128.
	FormatDelta
	// FormatGroupedDelta is "APS2": grouped delta encoding, SLEB128.
	FormatGroupedDelta
)

func (f Format) Magic() string {
	switch f {
	case FormatRunLength:
		return "APR1"
	case FormatDelta:
		return "APA1"
	case FormatGroupedDelta:
		return "APS2"
	}
	panic(fmt.Sprint("unknown packed relocation format: ", int(f)))
}

func (f Format) String() string {
	return f.Magic()
}

// Signed reports whether the word stream is SLEB128 rather than LEB128.
func (f Format) Signed() bool {
	return f != FormatRunLength
}

// Packer turns relocations into a framed, varint-encoded byte buffer and back.
type Packer struct {
	format       Format
	width        Width
	relativeType uint32
	logger       log.Logger
}

func NewPacker(format Format, width Width, relativeType uint32, logger log.Logger) *Packer {
	if logger == nil {
		logger = log.NewNopLogger()
	}
	return &Packer{
		format:       format,
		width:        width,
		relativeType: relativeType,
		logger:       logger,
	}
}

func (p *Packer) Format() Format {
	return p.format
}

func (p *Packer) codec() Codec {
	switch p.format {
	case FormatRunLength:
		return NewRunLengthCodec(p.width, p.relativeType)
	case FormatDelta:
		return NewDeltaCodec(p.width, p.relativeType)
	default:
		return NewGroupedDeltaCodec(p.width)
	}
}

// Pack encodes relocations. An empty result means the relocations cannot be
// packed in this format; it is not an error. The result is padded with zero
// bytes to a multiple of the target word size.
//
// Pack unpacks its own output before returning and panics if the result
// differs from the input.
func (p *Packer) Pack(relocations []Relocation) []byte {
	words := p.codec().Encode(relocations)
	if len(words) == 0 {
		return nil
	}

	var packed []byte
	if p.format.Signed() {
		var e leb128.SignedEncoder
		e.EnqueueAll(words)
		packed = e.Bytes()
	} else {
		var e leb128.Encoder
		for _, w := range words {
			e.Enqueue(uint64(w))
		}
		packed = e.Bytes()
	}

	buf := make([]byte, 0, magicSize+len(packed)+p.width.Bytes())
	buf = append(buf, p.format.Magic()...)
	buf = append(buf, packed...)
	for len(buf)%p.width.Bytes() != 0 {
		buf = append(buf, 0)
	}

	level.Debug(p.logger).Log("msg", "packed relocations", "format", p.format,
		"relocations", len(relocations), "words", len(words), "bytes", len(buf))

	unpacked, err := p.Unpack(buf)
	if err != nil {
		panic(fmt.Sprint("packed relocations failed to unpack: ", err))
	}
	if !slices.Equal(unpacked, relocations) {
		panic(fmt.Sprintf("packed relocations do not round-trip: %d in, %d out", len(relocations), len(unpacked)))
	}

	return buf
}

// Unpack decodes a buffer produced by Pack. Trailing zero padding is ignored.
func (p *Packer) Unpack(packed []byte) ([]Relocation, error) {
	if len(packed) < magicSize || string(packed[:magicSize]) != p.format.Magic() {
		return nil, fmt.Errorf("%w: expected %q", ErrBadMagic, p.format.Magic())
	}
	body := packed[magicSize:]

	var words []int64
	if p.format.Signed() {
		values, err := leb128.NewSignedDecoder(body).DequeueAll()
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrTruncated, err)
		}
		words = values
	} else {
		values, err := leb128.NewDecoder(body).DequeueAll()
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrTruncated, err)
		}
		words = make([]int64, len(values))
		for i, v := range values {
			words[i] = int64(v)
		}
	}

	relocations, err := p.codec().Decode(words)
	if err != nil {
		return nil, err
	}

	level.Debug(p.logger).Log("msg", "unpacked relocations", "format", p.format,
		"relocations", len(relocations), "words", len(words))
	return relocations, nil
}
