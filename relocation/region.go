// SPDX-License-Identifier: MIT
//
// Copyright (c) 2023, 2024 Adrian "asie" Siekierka

package relocation

import (
	"slices"
)

type RegionPlaceable interface {
	Offset() uint64
	SetOffset(uint64)
	Size() uint64
	Alignment() uint64
}

// Region places aligned entries into the byte range [offset, offset+size),
// first fit, without overlap. Zero-sized entries are allowed.
type Region[T RegionPlaceable] struct {
	offset     uint64
	size       uint64
	entries    []T
	descending bool
}

func NewRegion[T RegionPlaceable](offset uint64, size uint64, descending bool) *Region[T] {
	return &Region[T]{
		offset:     offset,
		size:       size,
		entries:    make([]T, 0),
		descending: descending,
	}
}

func (r *Region[T]) Offset() uint64 {
	return r.offset
}

func (r *Region[T]) Size() uint64 {
	return r.size
}

func (r *Region[T]) End() uint64 {
	return r.offset + r.size
}

func (r *Region[T]) Empty() bool {
	return len(r.entries) == 0
}

// Entries returns the placed entries in offset order.
func (r *Region[T]) Entries() []T {
	return r.entries
}

// UsedEnd returns the end of the last placed entry, or the region start if
// nothing has been placed.
func (r *Region[T]) UsedEnd() uint64 {
	end := r.offset
	for _, entry := range r.entries {
		end = max(end, entry.Offset()+entry.Size())
	}
	return end
}

func calcEntryOffset(start uint64, end uint64, len uint64, descending bool, align uint64) (bool, uint64) {
	if end < start || end-start < len {
		return false, 0
	}
	if descending {
		offset := end - len
		if align > 1 {
			offset -= (offset % align)
		}
		if offset >= start {
			return true, offset
		}
	} else {
		offset := start
		if align > 1 {
			offset += align - 1
			offset -= (offset % align)
		}
		if (offset + len) <= end {
			return true, offset
		}
	}

	return false, 0
}

type regionGap struct {
	start uint64
	end   uint64
	index int
}

// gaps lists the free ranges within [offsetMin, offsetMax) in offset order,
// with the index a new entry in that gap would take.
func (r *Region[T]) gaps(offsetMin uint64, offsetMax uint64) []regionGap {
	var result []regionGap
	cursor := offsetMin
	for i, entry := range r.entries {
		gapEnd := min(entry.Offset(), offsetMax)
		if gapEnd >= cursor {
			result = append(result, regionGap{start: cursor, end: gapEnd, index: i})
		}
		cursor = max(cursor, entry.Offset()+entry.Size())
	}
	if offsetMax >= cursor {
		result = append(result, regionGap{start: cursor, end: offsetMax, index: len(r.entries)})
	}
	return result
}

// Place assigns entry an offset inside the region and records it. With a
// two-element offsetRange the entry must start within [min, max]; with a
// one-element range it must start exactly there.
func (r *Region[T]) Place(entry T, offsetRange []uint64) bool {
	offsetMin := r.Offset()
	offsetMax := r.End()

	if offsetRange != nil {
		if len(offsetRange) == 2 {
			offsetMin = max(offsetMin, offsetRange[0])
			offsetMax = min(offsetMax, offsetRange[1]+entry.Size())
		} else if len(offsetRange) == 1 {
			offsetMin = max(offsetMin, offsetRange[0])
			offsetMax = min(offsetMax, offsetRange[0]+entry.Size())
		} else {
			panic("Unsupported offsetRange length")
		}
	}

	for _, gap := range r.gaps(offsetMin, offsetMax) {
		ok, offset := calcEntryOffset(gap.start, gap.end, entry.Size(), r.descending, entry.Alignment())
		if ok {
			entry.SetOffset(offset)
			r.entries = slices.Insert(r.entries, gap.index, entry)
			return true
		}
	}

	return false
}
