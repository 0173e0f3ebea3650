// SPDX-License-Identifier: MIT
//
// Copyright (c) 2024 Adrian "asie" Siekierka

package relocation

import (
	"math/rand"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testRelativeType = 23

func relativeRelocations(width Width, offsets ...uint64) []Relocation {
	relocations := make([]Relocation, len(offsets))
	for i, offset := range offsets {
		relocations[i] = Relocation{Offset: offset, Info: width.Info(0, testRelativeType)}
	}
	return relocations
}

func TestRunLengthEncode(t *testing.T) {
	codec := NewRunLengthCodec(Width32, testRelativeType)
	relocations := relativeRelocations(Width32, 0xf00d0000, 0xf00d0004, 0xf00d0008)

	words := codec.Encode(relocations)
	assert.Equal(t, []int64{1, 0xf00cfffc, 3, 4}, words)

	decoded, err := codec.Decode(words)
	require.NoError(t, err)
	assert.Equal(t, relocations, decoded)
}

func TestRunLengthEncodeMultiplePairs(t *testing.T) {
	codec := NewRunLengthCodec(Width64, testRelativeType)
	relocations := relativeRelocations(Width64, 0x1000, 0x1008, 0x1010, 0x1020, 0x1030, 0x1034)

	words := codec.Encode(relocations)
	assert.Equal(t, []int64{3, 0xff8, 3, 8, 2, 16, 1, 4}, words)

	decoded, err := codec.Decode(words)
	require.NoError(t, err)
	assert.Equal(t, relocations, decoded)
}

func TestRunLengthBoundaries(t *testing.T) {
	codec := NewRunLengthCodec(Width64, testRelativeType)
	assert.Empty(t, codec.Encode(nil))
	assert.Empty(t, codec.Encode(relativeRelocations(Width64, 0x1000)))

	words := codec.Encode(relativeRelocations(Width64, 0x1000, 0x1010))
	assert.Equal(t, []int64{1, 0xff0, 2, 0x10}, words)
}

func TestRunLengthWrapsInitialOffsetAtWidth(t *testing.T) {
	codec := NewRunLengthCodec(Width32, testRelativeType)
	relocations := relativeRelocations(Width32, 0, 8, 16)

	words := codec.Encode(relocations)
	assert.Equal(t, []int64{1, 0xfffffff8, 3, 8}, words)

	decoded, err := codec.Decode(words)
	require.NoError(t, err)
	assert.Equal(t, relocations, decoded)
}

func TestDeltaEncode(t *testing.T) {
	codec := NewDeltaCodec(Width64, testRelativeType)
	info := Width64.Info(0, testRelativeType)
	relocations := []Relocation{
		{Offset: 0xd1ce0000, Info: info, Addend: 10024},
		{Offset: 0xd1ce0004, Info: info, Addend: 10012},
		{Offset: 0xd1ce0008, Info: info, Addend: 10024},
	}

	words := codec.Encode(relocations)
	assert.Equal(t, []int64{3, 0xd1ce0000, 10024, 4, -12, 4, 12}, words)

	decoded, err := codec.Decode(words)
	require.NoError(t, err)
	assert.Equal(t, relocations, decoded)
}

func TestDeltaEncode32BitNegativeAddends(t *testing.T) {
	codec := NewDeltaCodec(Width32, testRelativeType)
	info := Width32.Info(0, testRelativeType)
	relocations := []Relocation{
		{Offset: 0x10, Info: info, Addend: -0x80000000},
		{Offset: 0x14, Info: info, Addend: 0x7fffffff},
		{Offset: 0x18, Info: info, Addend: 0},
	}

	decoded, err := codec.Decode(codec.Encode(relocations))
	require.NoError(t, err)
	assert.Equal(t, relocations, decoded)
}

func TestGroupedDeltaEncodeSharedFields(t *testing.T) {
	codec := NewGroupedDeltaCodec(Width64)
	info := Width64.Info(0, 8)
	relocations := []Relocation{
		{Offset: 0x1000, Info: info, Addend: 0x100},
		{Offset: 0x1008, Info: info, Addend: 0x200},
		{Offset: 0x1010, Info: info, Addend: 0x300},
	}

	words := codec.Encode(relocations)
	flags := int64(GroupedByOffsetDelta | GroupedByInfo | GroupHasAddend)
	assert.Equal(t, []int64{3, 0xff8, 3, flags, 8, 8, 0x100, 0x100, 0x100}, words)

	decoded, err := codec.Decode(words)
	require.NoError(t, err)
	assert.Equal(t, relocations, decoded)
}

func TestGroupedDeltaEncodeClosesGroupOnDeltaChange(t *testing.T) {
	codec := NewGroupedDeltaCodec(Width64)
	relocations := relativeRelocations(Width64, 0x2000, 0x2004, 0x2008, 0x2010)
	info := int64(Width64.Info(0, testRelativeType))

	words := codec.Encode(relocations)
	assert.Equal(t, []int64{
		4, 0x1ffc,
		3, GroupedByOffsetDelta | GroupedByInfo, 4, info,
		1, 0, 8, info,
	}, words)

	decoded, err := codec.Decode(words)
	require.NoError(t, err)
	assert.Equal(t, relocations, decoded)
}

func TestGroupedDeltaEncodesMixedInfo(t *testing.T) {
	codec := NewGroupedDeltaCodec(Width32)
	relocations := []Relocation{
		{Offset: 0x100, Info: Width32.Info(0, 23)},
		{Offset: 0x104, Info: Width32.Info(5, 2), Addend: -4},
		{Offset: 0x108, Info: Width32.Info(5, 2), Addend: -4},
		{Offset: 0x110, Info: Width32.Info(0, 23), Addend: 16},
		{Offset: 0xfffffff0, Info: Width32.Info(0, 23)},
	}

	decoded, err := codec.Decode(codec.Encode(relocations))
	require.NoError(t, err)
	if diff := cmp.Diff(relocations, decoded); diff != "" {
		t.Errorf("round trip mismatch (-want +got):\n%s", diff)
	}
}

func TestGroupWeight(t *testing.T) {
	assert.Equal(t, 3, groupWeight(0))
	assert.Equal(t, 5, groupWeight(GroupedByOffsetDelta|GroupedByInfo))
	assert.Equal(t, 0, groupWeight(GroupHasAddend))
	assert.Equal(t, 1, groupWeight(GroupHasAddend|GroupedByAddend))
	assert.Equal(t, 3, groupWeight(GroupHasAddend|GroupedByAddend|GroupedByOffsetDelta|GroupedByInfo))
}

func TestCodecsRejectUnorderedOffsets(t *testing.T) {
	relocations := relativeRelocations(Width64, 0x1008, 0x1000)
	codecs := []Codec{
		NewRunLengthCodec(Width64, testRelativeType),
		NewDeltaCodec(Width64, testRelativeType),
		NewGroupedDeltaCodec(Width64),
	}
	for _, codec := range codecs {
		assert.Panics(t, func() { codec.Encode(relocations) })
	}
}

func TestCodecsRejectTruncatedStreams(t *testing.T) {
	_, err := NewRunLengthCodec(Width64, testRelativeType).Decode([]int64{2, 0x1000, 3, 4})
	assert.ErrorIs(t, err, ErrTruncated)

	_, err = NewDeltaCodec(Width64, testRelativeType).Decode([]int64{2, 0x1000, 4})
	assert.ErrorIs(t, err, ErrTruncated)

	_, err = NewGroupedDeltaCodec(Width64).Decode([]int64{2, 0x1000, 2, 3})
	assert.ErrorIs(t, err, ErrTruncated)

	_, err = NewGroupedDeltaCodec(Width64).Decode([]int64{2, 0x1000, 0, 0})
	assert.ErrorIs(t, err, ErrCorrupt)
}

func randomRelocations(rng *rand.Rand, width Width, n int, addends bool, mixedInfo bool) []Relocation {
	relocations := make([]Relocation, n)
	offset := uint64(rng.Intn(0x10000)) * 4
	for i := range relocations {
		// Mostly regular strides with the occasional jump, as in real tables.
		switch rng.Intn(8) {
		case 0:
			offset += uint64(rng.Intn(0x1000)+1) * 4
		case 1:
			offset += 8
		default:
			offset += uint64(width.Bytes())
		}
		rel := Relocation{Offset: offset, Info: width.Info(0, testRelativeType)}
		if mixedInfo && rng.Intn(4) == 0 {
			rel.Info = width.Info(uint32(rng.Intn(100)+1), 2)
		}
		if addends {
			switch rng.Intn(3) {
			case 0:
				rel.Addend = 0
			case 1:
				rel.Addend = 0x4000
			default:
				rel.Addend = int64(int32(rng.Uint32()))
			}
		}
		relocations[i] = rel
	}
	return relocations
}

func TestCodecRoundTripLaw(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	for _, width := range []Width{Width32, Width64} {
		for _, n := range []int{0, 1, 2, 3, 17, 500} {
			plain := randomRelocations(rng, width, n, false, false)
			withAddends := randomRelocations(rng, width, n, true, false)
			mixed := randomRelocations(rng, width, n, true, true)

			cases := []struct {
				codec       Codec
				relocations []Relocation
			}{
				{NewRunLengthCodec(width, testRelativeType), plain},
				{NewDeltaCodec(width, testRelativeType), plain},
				{NewDeltaCodec(width, testRelativeType), withAddends},
				{NewGroupedDeltaCodec(width), plain},
				{NewGroupedDeltaCodec(width), withAddends},
				{NewGroupedDeltaCodec(width), mixed},
			}
			for _, c := range cases {
				words := c.codec.Encode(c.relocations)
				decoded, err := c.codec.Decode(words)
				require.NoError(t, err)
				if len(words) == 0 {
					assert.Empty(t, decoded)
					continue
				}
				if diff := cmp.Diff(c.relocations, decoded); diff != "" {
					t.Fatalf("%T width %d n %d: round trip mismatch (-want +got):\n%s", c.codec, width, n, diff)
				}
			}
		}
	}
}
