// SPDX-License-Identifier: MIT
//
// Copyright (c) 2024 Adrian "asie" Siekierka

package relocation

// Group flags of the grouped delta encoding.
const (
	GroupedByInfo        = 1
	GroupedByOffsetDelta = 2
	GroupedByAddend      = 4
	GroupHasAddend       = 8

	groupFlagsMask = GroupedByInfo | GroupedByOffsetDelta | GroupedByAddend | GroupHasAddend
)

// GroupedDeltaCodec packs relocations as
//
//	[count, initial_offset, group...]
//
// with each group written as
//
//	group_size, group_flags,
//	[group_offset_delta], [group_info], [group_addend_delta],
//	{[offset_delta], [info], [addend_delta]} * group_size
//
// Fields shared by every member of a group are written once in the group
// header and omitted from the members.
type GroupedDeltaCodec struct {
	width Width
}

func NewGroupedDeltaCodec(width Width) *GroupedDeltaCodec {
	return &GroupedDeltaCodec{width: width}
}

type relocationGroup struct {
	size        int
	flags       uint64
	offsetDelta uint64
	info        uint64
	addend      uint64
}

func (g *relocationGroup) has(flag uint64) bool {
	return g.flags&flag != 0
}

// groupFields computes the flags under which one and two can share a group
// whose offset delta is offsetDelta.
func groupFields(one, two Relocation, offsetDelta uint64) relocationGroup {
	var g relocationGroup

	if two.Offset-one.Offset == offsetDelta {
		g.flags |= GroupedByOffsetDelta
		g.offsetDelta = offsetDelta
	}

	if one.Info == two.Info {
		g.flags |= GroupedByInfo
		g.info = one.Info
	}

	if one.Addend != 0 || two.Addend != 0 {
		g.flags |= GroupHasAddend
		if one.Addend == two.Addend {
			g.flags |= GroupedByAddend
			g.addend = uint64(one.Addend)
		}
	}

	return g
}

// groupWeight ranks flag sets when deciding whether to close a group early.
// The weights are fixed: no addend 3, shared addend 1, shared offset delta 1,
// shared info 1.
func groupWeight(flags uint64) int {
	weight := 0
	if flags&GroupHasAddend == 0 {
		weight += 3
	} else if flags&GroupedByAddend != 0 {
		weight += 1
	}

	if flags&GroupedByOffsetDelta != 0 {
		weight += 1
	}

	if flags&GroupedByInfo != 0 {
		weight += 1
	}

	return weight
}

// detectGroup finds the longest group starting at start. previousOffset is
// the offset of the relocation before start.
func detectGroup(relocations []Relocation, start int, previousOffset uint64) relocationGroup {
	one := relocations[start]
	if start+1 == len(relocations) {
		g := relocationGroup{size: 1}
		if one.Addend != 0 {
			g.flags = GroupHasAddend
		}
		return g
	}

	offsetDelta := one.Offset - previousOffset
	g := groupFields(one, relocations[start+1], offsetDelta)
	if g.flags == 0 {
		g.size = 1
		return g
	}

	g.size = 2
	for i := start + 2; i < len(relocations); i++ {
		candidate := groupFields(relocations[i-1], relocations[i], offsetDelta)
		if candidate.flags != g.flags {
			break
		}

		// Stop if a group starting here would share more fields.
		if i+1 < len(relocations) {
			next := groupFields(relocations[i], relocations[i+1], relocations[i].Offset-relocations[i-1].Offset)
			if groupWeight(next.flags) > groupWeight(candidate.flags) {
				break
			}
		}

		g.size++
	}

	return g
}

func (c *GroupedDeltaCodec) Encode(relocations []Relocation) []int64 {
	if len(relocations) == 0 {
		return nil
	}
	checkOrdered(relocations)

	w := c.width
	words := []int64{int64(len(relocations))}

	startOffset := relocations[0].Offset
	if len(relocations) > 1 {
		startOffset -= relocations[1].Offset - relocations[0].Offset
	}
	words = append(words, w.signExtend(startOffset))

	previousOffset := startOffset
	var previousAddend uint64

	for start := 0; start < len(relocations); {
		g := detectGroup(relocations, start, previousOffset)

		// Group header
		words = append(words, int64(g.size), int64(g.flags))
		if g.has(GroupedByOffsetDelta) {
			words = append(words, w.signExtend(g.offsetDelta))
		}
		if g.has(GroupedByInfo) {
			words = append(words, w.signExtend(g.info))
		}
		if g.has(GroupHasAddend) && g.has(GroupedByAddend) {
			words = append(words, w.signExtend(g.addend-previousAddend))
			previousAddend = g.addend
		}

		// Group members
		for _, rel := range relocations[start : start+g.size] {
			if !g.has(GroupedByOffsetDelta) {
				words = append(words, w.signExtend(rel.Offset-previousOffset))
			}
			previousOffset = rel.Offset

			if !g.has(GroupedByInfo) {
				words = append(words, w.signExtend(rel.Info))
			}

			if g.has(GroupHasAddend) && !g.has(GroupedByAddend) {
				words = append(words, w.signExtend(uint64(rel.Addend)-previousAddend))
				previousAddend = uint64(rel.Addend)
			}
		}

		// Groups without addends reset the running addend.
		if !g.has(GroupHasAddend) {
			previousAddend = 0
		}

		start += g.size
	}

	return words
}

func (c *GroupedDeltaCodec) Decode(words []int64) ([]Relocation, error) {
	if len(words) == 0 {
		return nil, nil
	}

	w := c.width
	r := &wordReader{words: words}
	count, err := r.next()
	if err != nil {
		return nil, err
	}
	if count < 0 || count > maxDecodedRelocations {
		return nil, ErrCorrupt
	}
	initial, err := r.next()
	if err != nil {
		return nil, err
	}

	offset := w.truncate(uint64(initial))
	var addend uint64
	relocations := make([]Relocation, 0, min(int(count), len(words)))

	for int64(len(relocations)) < count {
		size, err := r.next()
		if err != nil {
			return nil, err
		}
		rawFlags, err := r.next()
		if err != nil {
			return nil, err
		}
		if size <= 0 || size > count-int64(len(relocations)) {
			return nil, ErrCorrupt
		}
		if rawFlags < 0 || rawFlags&^groupFlagsMask != 0 {
			return nil, ErrCorrupt
		}
		g := relocationGroup{size: int(size), flags: uint64(rawFlags)}

		if g.has(GroupedByOffsetDelta) {
			v, err := r.next()
			if err != nil {
				return nil, err
			}
			g.offsetDelta = uint64(v)
		}
		if g.has(GroupedByInfo) {
			v, err := r.next()
			if err != nil {
				return nil, err
			}
			g.info = w.truncate(uint64(v))
		}
		if g.has(GroupHasAddend) && g.has(GroupedByAddend) {
			v, err := r.next()
			if err != nil {
				return nil, err
			}
			addend = w.truncate(addend + uint64(v))
		}

		for i := 0; i < g.size; i++ {
			var rel Relocation

			if g.has(GroupedByOffsetDelta) {
				offset = w.truncate(offset + g.offsetDelta)
			} else {
				v, err := r.next()
				if err != nil {
					return nil, err
				}
				offset = w.truncate(offset + uint64(v))
			}
			rel.Offset = offset

			if g.has(GroupedByInfo) {
				rel.Info = g.info
			} else {
				v, err := r.next()
				if err != nil {
					return nil, err
				}
				rel.Info = w.truncate(uint64(v))
			}

			if g.has(GroupHasAddend) {
				if !g.has(GroupedByAddend) {
					v, err := r.next()
					if err != nil {
						return nil, err
					}
					addend = w.truncate(addend + uint64(v))
				}
				rel.Addend = w.signExtend(addend)
			}

			relocations = append(relocations, rel)
		}

		if !g.has(GroupHasAddend) {
			addend = 0
		}
	}

	return relocations, nil
}
