// SPDX-License-Identifier: MIT
//
// Copyright (c) 2024 Adrian "asie" Siekierka

package leb128

import (
	"math"
	"slices"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUnsignedEncoding(t *testing.T) {
	var e Encoder
	e.Enqueue(0)
	e.Enqueue(127)
	e.Enqueue(128)
	e.Enqueue(624485)
	assert.Equal(t, []byte{0x00, 0x7F, 0x80, 0x01, 0xE5, 0x8E, 0x26}, e.Bytes())
}

func TestSignedEncoding(t *testing.T) {
	var e SignedEncoder
	e.Enqueue(0)
	e.Enqueue(-1)
	e.Enqueue(63)
	e.Enqueue(64)
	e.Enqueue(-64)
	e.Enqueue(-65)
	e.Enqueue(-123456)
	assert.Equal(t, []byte{
		0x00,
		0x7F,
		0x3F,
		0xC0, 0x00,
		0x40,
		0xBF, 0x7F,
		0xC0, 0xBB, 0x78,
	}, e.Bytes())
}

func TestUnsignedRoundTrip(t *testing.T) {
	values := []uint64{0, 1, 0x7F, 0x80, 0x3FFF, 0x4000, 0xF00CFFFC, math.MaxUint32, math.MaxUint64}
	var e Encoder
	e.EnqueueAll(values)

	decoded, err := NewDecoder(e.Bytes()).DequeueAll()
	require.NoError(t, err)
	assert.Equal(t, values, decoded)
}

func TestSignedRoundTrip(t *testing.T) {
	values := []int64{0, 1, -1, 63, -64, 64, -65, 10024, -12, math.MaxInt32, math.MinInt32, math.MaxInt64, math.MinInt64}
	var e SignedEncoder
	e.EnqueueAll(values)

	decoded, err := NewSignedDecoder(e.Bytes()).DequeueAll()
	require.NoError(t, err)
	assert.Equal(t, values, decoded)
}

func TestTruncatedInput(t *testing.T) {
	_, err := NewDecoder([]byte{0x80, 0x80}).Dequeue()
	assert.ErrorIs(t, err, ErrTruncated)

	_, err = NewSignedDecoder([]byte{0xFF}).DequeueAll()
	assert.ErrorIs(t, err, ErrTruncated)
}

func TestOverlongInput(t *testing.T) {
	buf := []byte{0x80, 0x80, 0x80, 0x80, 0x80, 0x80, 0x80, 0x80, 0x80, 0x80, 0x00}
	_, err := NewDecoder(buf).Dequeue()
	assert.ErrorIs(t, err, ErrOverflow)
}

func TestLastByteOverflow(t *testing.T) {
	prefix := []byte{0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF}

	v, err := NewDecoder(append(slices.Clone(prefix), 0x01)).Dequeue()
	require.NoError(t, err)
	assert.Equal(t, uint64(math.MaxUint64), v)
	_, err = NewDecoder(append(slices.Clone(prefix), 0x7F)).Dequeue()
	assert.ErrorIs(t, err, ErrOverflow)
	_, err = NewDecoder(append(slices.Clone(prefix), 0x02)).Dequeue()
	assert.ErrorIs(t, err, ErrOverflow)

	signed, err := NewSignedDecoder(append(slices.Clone(prefix), 0x7F)).Dequeue()
	require.NoError(t, err)
	assert.Equal(t, int64(-1), signed)
	signed, err = NewSignedDecoder([]byte{0x80, 0x80, 0x80, 0x80, 0x80, 0x80, 0x80, 0x80, 0x80, 0x7F}).Dequeue()
	require.NoError(t, err)
	assert.Equal(t, int64(math.MinInt64), signed)
	_, err = NewSignedDecoder(append(slices.Clone(prefix), 0x01)).Dequeue()
	assert.ErrorIs(t, err, ErrOverflow)
	_, err = NewSignedDecoder(append(slices.Clone(prefix), 0x3F)).Dequeue()
	assert.ErrorIs(t, err, ErrOverflow)
}

func TestZeroPaddingDecodesAsZeros(t *testing.T) {
	var e SignedEncoder
	e.Enqueue(-5)
	buf := append(e.Bytes(), 0, 0, 0)

	decoded, err := NewSignedDecoder(buf).DequeueAll()
	require.NoError(t, err)
	assert.Equal(t, []int64{-5, 0, 0, 0}, decoded)
}
