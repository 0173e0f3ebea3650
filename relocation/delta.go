// SPDX-License-Identifier: MIT
//
// Copyright (c) 2024 Adrian "asie" Siekierka

package relocation

// DeltaCodec packs relative relocations with addends as
//
//	[count, offset_delta_1, addend_delta_1, offset_delta_2, addend_delta_2, ...]
//
// Deltas start from a zero offset and a zero addend, so the first pair
// holds the absolute values.
type DeltaCodec struct {
	width        Width
	relativeType uint32
}

func NewDeltaCodec(width Width, relativeType uint32) *DeltaCodec {
	return &DeltaCodec{width: width, relativeType: relativeType}
}

func (c *DeltaCodec) Encode(relocations []Relocation) []int64 {
	if len(relocations) == 0 {
		return nil
	}
	checkOrdered(relocations)

	words := make([]int64, 0, 1+2*len(relocations))
	words = append(words, int64(len(relocations)))

	var offset, addend uint64
	for _, rel := range relocations {
		words = append(words, c.width.signExtend(rel.Offset-offset))
		words = append(words, c.width.signExtend(uint64(rel.Addend)-addend))
		offset = rel.Offset
		addend = uint64(rel.Addend)
	}
	return words
}

func (c *DeltaCodec) Decode(words []int64) ([]Relocation, error) {
	if len(words) == 0 {
		return nil, nil
	}

	r := &wordReader{words: words}
	count, err := r.next()
	if err != nil {
		return nil, err
	}
	if count < 0 || count > maxDecodedRelocations {
		return nil, ErrCorrupt
	}

	info := c.width.Info(0, c.relativeType)
	relocations := make([]Relocation, 0, min(int(count), len(words)/2))
	var offset, addend uint64
	for i := int64(0); i < count; i++ {
		offsetDelta, err := r.next()
		if err != nil {
			return nil, err
		}
		addendDelta, err := r.next()
		if err != nil {
			return nil, err
		}
		offset = c.width.truncate(offset + uint64(offsetDelta))
		addend = c.width.truncate(addend + uint64(addendDelta))
		relocations = append(relocations, Relocation{
			Offset: offset,
			Info:   info,
			Addend: c.width.signExtend(addend),
		})
	}
	return relocations, nil
}
