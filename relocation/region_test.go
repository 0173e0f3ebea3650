// SPDX-License-Identifier: MIT
//
// Copyright (c) 2024 Adrian "asie" Siekierka

package relocation

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

type MockRegionEntry struct {
	offset uint64
	size   uint64
	align  uint64
}

func (r MockRegionEntry) Offset() uint64 {
	return r.offset
}

func (r *MockRegionEntry) SetOffset(offset uint64) {
	r.offset = offset
}

func (r MockRegionEntry) Size() uint64 {
	return r.size
}

func (r MockRegionEntry) Alignment() uint64 {
	return r.align
}

func NewMockRegionEntry(size uint64, align uint64) *MockRegionEntry {
	return &MockRegionEntry{
		offset: 0,
		size:   size,
		align:  align,
	}
}

func TestAddEntries(t *testing.T) {
	e1 := NewMockRegionEntry(64, 1)
	e2 := NewMockRegionEntry(32, 1)
	r := NewRegion[*MockRegionEntry](0, 1000, false)
	assert.True(t, r.Place(e1, nil), "first entry placement")
	assert.True(t, r.Place(e2, nil), "second entry placement")
	assert.Equal(t, uint64(0), e1.Offset(), "first entry offset")
	assert.Equal(t, uint64(64), e2.Offset(), "second entry offset")
	assert.Equal(t, uint64(96), r.UsedEnd())
}

func TestAddEntriesDescending(t *testing.T) {
	e1 := NewMockRegionEntry(64, 1)
	e2 := NewMockRegionEntry(32, 1)
	r := NewRegion[*MockRegionEntry](0, 1000, true)
	assert.True(t, r.Place(e1, nil), "first entry placement")
	assert.True(t, r.Place(e2, nil), "second entry placement")
	assert.Equal(t, uint64(936), e1.Offset(), "first entry offset")
	assert.Equal(t, uint64(904), e2.Offset(), "second entry offset")
}

func TestAddEntriesAlignment(t *testing.T) {
	// e1, e4, e3, e2, e6, e5
	e1 := NewMockRegionEntry(61, 4)
	e2 := NewMockRegionEntry(30, 4)
	e3 := NewMockRegionEntry(1, 2)
	e4 := NewMockRegionEntry(1, 1)
	e5 := NewMockRegionEntry(1, 128)
	e6 := NewMockRegionEntry(1, 16)
	r := NewRegion[*MockRegionEntry](0, 1000, false)
	assert.True(t, r.Place(e1, nil), "first entry placement")
	assert.True(t, r.Place(e2, nil), "second entry placement")
	assert.True(t, r.Place(e3, nil), "third entry placement")
	assert.True(t, r.Place(e4, nil), "fourth entry placement")
	assert.True(t, r.Place(e5, nil), "fifth entry placement")
	assert.True(t, r.Place(e6, nil), "sixth entry placement")
	assert.Equal(t, uint64(0), e1.Offset(), "first entry offset")
	assert.Equal(t, uint64(64), e2.Offset(), "second entry offset")
	assert.Equal(t, uint64(62), e3.Offset(), "third entry offset")
	assert.Equal(t, uint64(61), e4.Offset(), "fourth entry offset")
	assert.Equal(t, uint64(128), e5.Offset(), "fifth entry offset")
	assert.Equal(t, uint64(96), e6.Offset(), "sixth entry offset")

	offsets := make([]uint64, 0)
	for _, entry := range r.Entries() {
		offsets = append(offsets, entry.Offset())
	}
	assert.IsIncreasing(t, offsets)
}

func TestPlaceFixedOffset(t *testing.T) {
	r := NewRegion[*MockRegionEntry](0x1000, 0x100, false)
	e1 := NewMockRegionEntry(0x40, 8)
	assert.True(t, r.Place(e1, []uint64{0x1000}))
	assert.Equal(t, uint64(0x1000), e1.Offset())

	// Already taken.
	e2 := NewMockRegionEntry(0x10, 8)
	assert.False(t, r.Place(e2, []uint64{0x1020}))

	assert.True(t, r.Place(e2, []uint64{0x1040, 0x10f0}))
	assert.Equal(t, uint64(0x1040), e2.Offset())
}

func TestPlaceZeroSized(t *testing.T) {
	r := NewRegion[*MockRegionEntry](0x1000, 0x20, false)
	e1 := NewMockRegionEntry(0, 8)
	e2 := NewMockRegionEntry(0x14, 8)
	assert.True(t, r.Place(e1, []uint64{0x1000}))
	assert.True(t, r.Place(e2, nil))
	assert.Equal(t, uint64(0x1000), e2.Offset())

	e3 := NewMockRegionEntry(8, 8)
	assert.True(t, r.Place(e3, nil))
	assert.Equal(t, uint64(0x1018), e3.Offset())

	// The gap left by e3's alignment still takes unaligned entries.
	e4 := NewMockRegionEntry(4, 1)
	assert.True(t, r.Place(e4, nil))
	assert.Equal(t, uint64(0x1014), e4.Offset())

	assert.False(t, r.Place(NewMockRegionEntry(1, 1), nil), "region is full")
	assert.True(t, r.Place(NewMockRegionEntry(0, 1), nil))
}
