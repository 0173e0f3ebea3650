// SPDX-License-Identifier: MIT
//
// Copyright (c) 2024 Adrian "asie" Siekierka

package relocation

// RunLengthCodec packs relative relocations without addends as
//
//	[pair_count, initial_offset, count_1, delta_1, count_2, delta_2, ...]
//
// where initial_offset is the first offset minus the first delta, so that
// every relocation, including the first, is reached by applying a delta.
type RunLengthCodec struct {
	width        Width
	relativeType uint32
}

func NewRunLengthCodec(width Width, relativeType uint32) *RunLengthCodec {
	return &RunLengthCodec{width: width, relativeType: relativeType}
}

func (c *RunLengthCodec) Encode(relocations []Relocation) []int64 {
	// A run needs at least two relocations.
	if len(relocations) < 2 {
		return nil
	}
	checkOrdered(relocations)

	deltas := make([]uint64, len(relocations))
	deltas[0] = relocations[1].Offset - relocations[0].Offset
	for i := 1; i < len(relocations); i++ {
		deltas[i] = relocations[i].Offset - relocations[i-1].Offset
	}

	// Pair count is filled in after the walk.
	words := []int64{0, int64(c.width.truncate(relocations[0].Offset - deltas[0]))}

	pairs := 0
	count := uint64(1)
	current := deltas[0]
	for _, delta := range deltas[1:] {
		if delta == current {
			count++
			continue
		}
		words = append(words, int64(count), int64(current))
		pairs++
		current = delta
		count = 1
	}
	words = append(words, int64(count), int64(current))
	pairs++

	words[0] = int64(pairs)
	return words
}

func (c *RunLengthCodec) Decode(words []int64) ([]Relocation, error) {
	if len(words) == 0 {
		return nil, nil
	}

	r := &wordReader{words: words}
	pairs, err := r.next()
	if err != nil {
		return nil, err
	}
	initial, err := r.next()
	if err != nil {
		return nil, err
	}

	info := c.width.Info(0, c.relativeType)
	offset := c.width.truncate(uint64(initial))
	var relocations []Relocation
	for i := uint64(0); i < uint64(pairs); i++ {
		count, err := r.next()
		if err != nil {
			return nil, err
		}
		delta, err := r.next()
		if err != nil {
			return nil, err
		}
		if uint64(count) > maxDecodedRelocations-uint64(len(relocations)) {
			return nil, ErrCorrupt
		}
		for j := uint64(0); j < uint64(count); j++ {
			offset = c.width.truncate(offset + uint64(delta))
			relocations = append(relocations, Relocation{Offset: offset, Info: info})
		}
	}
	return relocations, nil
}
