// SPDX-License-Identifier: MIT
//
// Copyright (c) 2024 Adrian "asie" Siekierka

package elfpack

import (
	"fmt"

	"github.com/WonderfulToolchain/wf-relocation-packer/elf"
)

// dynamicTable edits the entries of .dynamic without changing their count,
// so the section keeps its size.
type dynamicTable struct {
	entries []elf.DynamicEntry
}

// used returns the index of the DT_NULL terminator, or -1 if there is none.
func (d *dynamicTable) used() int {
	for i, entry := range d.entries {
		if entry.Tag == elf.DT_NULL {
			return i
		}
	}
	return -1
}

// spare returns how many DT_NULL slots follow the terminator.
func (d *dynamicTable) spare() int {
	return len(d.entries) - d.used() - 1
}

func (d *dynamicTable) find(tag elf.DynamicTag) int {
	for i := 0; i < d.used(); i++ {
		if d.entries[i].Tag == tag {
			return i
		}
	}
	return -1
}

func (d *dynamicTable) get(tag elf.DynamicTag) (uint64, bool) {
	if i := d.find(tag); i >= 0 {
		return d.entries[i].Value, true
	}
	return 0, false
}

// set replaces the value of an existing entry.
func (d *dynamicTable) set(tag elf.DynamicTag, value uint64) {
	i := d.find(tag)
	if i < 0 {
		panic(fmt.Sprintf("no %s entry to update", tagName(tag)))
	}
	d.entries[i].Value = value
}

func (d *dynamicTable) setIfPresent(tag elf.DynamicTag, value uint64) {
	if i := d.find(tag); i >= 0 {
		d.entries[i].Value = value
	}
}

// add stores a new entry in the terminator's slot. A spare DT_NULL must
// follow it to become the new terminator.
func (d *dynamicTable) add(tag elf.DynamicTag, value uint64) {
	if d.spare() < 1 {
		panic(fmt.Sprintf("no spare .dynamic slot for %s", tagName(tag)))
	}
	d.entries[d.used()] = elf.DynamicEntry{Tag: tag, Value: value}
}

// remove deletes an entry, shifting the rest down and appending a DT_NULL.
func (d *dynamicTable) remove(tag elf.DynamicTag) {
	i := d.find(tag)
	if i < 0 {
		return
	}
	copy(d.entries[i:], d.entries[i+1:])
	d.entries[len(d.entries)-1] = elf.DynamicEntry{Tag: elf.DT_NULL}
}

func tagName(tag elf.DynamicTag) string {
	switch tag {
	case elf.DT_REL:
		return "DT_REL"
	case elf.DT_RELSZ:
		return "DT_RELSZ"
	case elf.DT_RELCOUNT:
		return "DT_RELCOUNT"
	case elf.DT_RELA:
		return "DT_RELA"
	case elf.DT_RELASZ:
		return "DT_RELASZ"
	case elf.DT_RELACOUNT:
		return "DT_RELACOUNT"
	case elf.DT_ANDROID_REL:
		return "DT_ANDROID_REL"
	case elf.DT_ANDROID_RELSZ:
		return "DT_ANDROID_RELSZ"
	case elf.DT_ANDROID_RELA:
		return "DT_ANDROID_RELA"
	case elf.DT_ANDROID_RELASZ:
		return "DT_ANDROID_RELASZ"
	}
	return fmt.Sprintf("tag %#x", int64(tag))
}
