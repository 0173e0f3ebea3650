// SPDX-License-Identifier: MIT
//
// Copyright (c) 2024 Adrian "asie" Siekierka

// Package leb128 implements the self-delimiting LEB128 and SLEB128
// variable-length integer encodings.
package leb128

import "errors"

// maxBytes is the longest encoding of a 64-bit value.
const maxBytes = 10

var (
	ErrTruncated = errors.New("leb128: truncated value")
	ErrOverflow  = errors.New("leb128: value overflows 64 bits")
)

// Encoder appends unsigned LEB128 values to a byte buffer.
type Encoder struct {
	buf []byte
}

func (e *Encoder) Enqueue(value uint64) {
	for {
		b := byte(value & 0x7F)
		value >>= 7
		if value == 0 {
			e.buf = append(e.buf, b)
			return
		}
		e.buf = append(e.buf, b|0x80)
	}
}

func (e *Encoder) EnqueueAll(values []uint64) {
	for _, v := range values {
		e.Enqueue(v)
	}
}

func (e *Encoder) Bytes() []byte {
	return e.buf
}

// SignedEncoder appends SLEB128 values to a byte buffer.
type SignedEncoder struct {
	buf []byte
}

func (e *SignedEncoder) Enqueue(value int64) {
	for {
		b := byte(value & 0x7F)
		// Arithmetic shift keeps the sign for the termination test.
		value >>= 7
		if (value == 0 && b&0x40 == 0) || (value == -1 && b&0x40 != 0) {
			e.buf = append(e.buf, b)
			return
		}
		e.buf = append(e.buf, b|0x80)
	}
}

func (e *SignedEncoder) EnqueueAll(values []int64) {
	for _, v := range values {
		e.Enqueue(v)
	}
}

func (e *SignedEncoder) Bytes() []byte {
	return e.buf
}

// Decoder reads unsigned LEB128 values from a byte buffer.
type Decoder struct {
	buf    []byte
	cursor int
}

func NewDecoder(buf []byte) *Decoder {
	return &Decoder{buf: buf}
}

// Remaining returns the number of unread bytes.
func (d *Decoder) Remaining() int {
	return len(d.buf) - d.cursor
}

func (d *Decoder) Dequeue() (uint64, error) {
	var value uint64
	var shift uint
	for i := 0; ; i++ {
		if d.cursor >= len(d.buf) {
			return 0, ErrTruncated
		}
		if i == maxBytes {
			return 0, ErrOverflow
		}
		b := d.buf[d.cursor]
		d.cursor++
		// The last byte holds only bit 63.
		if i == maxBytes-1 && b&0x7E != 0 {
			return 0, ErrOverflow
		}
		value |= uint64(b&0x7F) << shift
		shift += 7
		if b&0x80 == 0 {
			return value, nil
		}
	}
}

// DequeueAll decodes values until the end of the buffer is reached. The
// buffer must end on a value boundary.
func (d *Decoder) DequeueAll() ([]uint64, error) {
	var values []uint64
	for d.Remaining() > 0 {
		v, err := d.Dequeue()
		if err != nil {
			return nil, err
		}
		values = append(values, v)
	}
	return values, nil
}

// SignedDecoder reads SLEB128 values from a byte buffer.
type SignedDecoder struct {
	buf    []byte
	cursor int
}

func NewSignedDecoder(buf []byte) *SignedDecoder {
	return &SignedDecoder{buf: buf}
}

func (d *SignedDecoder) Remaining() int {
	return len(d.buf) - d.cursor
}

func (d *SignedDecoder) Dequeue() (int64, error) {
	var value int64
	var shift uint
	var b byte
	for i := 0; ; i++ {
		if d.cursor >= len(d.buf) {
			return 0, ErrTruncated
		}
		if i == maxBytes {
			return 0, ErrOverflow
		}
		b = d.buf[d.cursor]
		d.cursor++
		// The last byte holds bit 63 and its sign extension.
		if i == maxBytes-1 && b&0x7F != 0 && b&0x7F != 0x7F {
			return 0, ErrOverflow
		}
		value |= int64(b&0x7F) << shift
		shift += 7
		if b&0x80 == 0 {
			break
		}
	}
	if shift < 64 && b&0x40 != 0 {
		value |= -1 << shift
	}
	return value, nil
}

// DequeueAll decodes values until the end of the buffer is reached. The
// buffer must end on a value boundary.
func (d *SignedDecoder) DequeueAll() ([]int64, error) {
	var values []int64
	for d.Remaining() > 0 {
		v, err := d.Dequeue()
		if err != nil {
			return nil, err
		}
		values = append(values, v)
	}
	return values, nil
}
