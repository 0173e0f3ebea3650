// SPDX-License-Identifier: MIT
//
// Copyright (c) 2024 Adrian "asie" Siekierka

// Package elfpack packs and unpacks the relative relocations of ELF shared
// objects in place.
//
// A File is a session over one open shared object: Open validates and loads
// it, PackRelocations or UnpackRelocations rewrite it in memory and end with
// Flush, the only operation that writes to disk.
package elfpack

import (
	"io"
	"math/bits"
	"os"

	"github.com/go-kit/log"
	"github.com/pkg/errors"

	"github.com/WonderfulToolchain/wf-relocation-packer/elf"
	"github.com/WonderfulToolchain/wf-relocation-packer/relocation"
)

var (
	// ErrNotBeneficial means packing would not make the file smaller. The
	// file is left untouched.
	ErrNotBeneficial = errors.New("packing relocations is not beneficial")
	ErrAlreadyPacked = errors.New("relocations are already packed")
	ErrNotPacked     = errors.New("relocations are not packed")
)

const DefaultPageSize = 4096

// Lineage selects the family of packed formats written and expected.
type Lineage int

const (
	// LineageGroupedDelta writes "APS2" for both REL and RELA objects.
	LineageGroupedDelta Lineage = iota
	// LineageLegacy writes "APR1" for REL objects and "APA1" for RELA objects.
	LineageLegacy
)

func ParseLineage(name string) (Lineage, error) {
	switch name {
	case "aps2":
		return LineageGroupedDelta, nil
	case "legacy":
		return LineageLegacy, nil
	}
	return 0, errors.Errorf("unknown packed relocation format %q (want aps2 or legacy)", name)
}

func (l Lineage) String() string {
	switch l {
	case LineageGroupedDelta:
		return "aps2"
	case LineageLegacy:
		return "legacy"
	}
	return "unknown"
}

func (l Lineage) format(rela bool) relocation.Format {
	if l == LineageLegacy {
		if rela {
			return relocation.FormatDelta
		}
		return relocation.FormatRunLength
	}
	return relocation.FormatGroupedDelta
}

type Options struct {
	Lineage Lineage
	// PadRelocations keeps the relocation region at its original size,
	// filling the freed space with R_*_NONE entries, so that no address or
	// offset outside the region changes.
	PadRelocations bool
	// Strategy keeps loaded addresses stable across a resize. Defaults to
	// ShiftStrategy.
	Strategy SegmentStrategy
	// PageSize is the granularity of every resize. Defaults to DefaultPageSize.
	PageSize uint64
	Logger   log.Logger
}

func (o Options) withDefaults() Options {
	if o.Strategy == nil {
		o.Strategy = ShiftStrategy{}
	}
	if o.PageSize == 0 {
		o.PageSize = DefaultPageSize
	}
	if o.Logger == nil {
		o.Logger = log.NewNopLogger()
	}
	return o
}

func (o Options) validate() error {
	if bits.OnesCount64(o.PageSize) != 1 {
		return errors.Errorf("page size %d is not a power of two", o.PageSize)
	}
	if o.Lineage != LineageGroupedDelta && o.Lineage != LineageLegacy {
		return errors.Errorf("unknown lineage %d", o.Lineage)
	}
	return nil
}

type state int

const (
	stateLoaded state = iota
	stateFlushed
	stateClosed
)

// File is one pack or unpack session over a shared object. It holds an
// exclusive lock on the file from Open until Close and must not be shared.
type File struct {
	path   string
	file   *os.File
	opts   Options
	logger log.Logger
	state  state

	elf            *elf.Elf
	rela           bool
	relativeType   uint32
	relocations    *elf.SectionHeader
	packed         *elf.SectionHeader
	dynamicSection *elf.SectionHeader
	dynamic        *dynamicTable
}

// Open locks and loads the shared object at path. It fails without touching
// the file if the object cannot be packed or unpacked.
func Open(path string, opts Options) (*File, error) {
	opts = opts.withDefaults()
	if err := opts.validate(); err != nil {
		return nil, err
	}

	file, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		return nil, errors.Wrap(err, "open")
	}
	if err := lockFile(file); err != nil {
		file.Close()
		return nil, errors.Wrapf(err, "lock %s", path)
	}

	f := &File{
		path:   path,
		file:   file,
		opts:   opts,
		logger: log.With(opts.Logger, "file", path),
	}

	image, err := io.ReadAll(file)
	if err == nil {
		err = f.load(image)
	}
	if err != nil {
		f.Close()
		return nil, errors.Wrapf(err, "load %s", path)
	}

	return f, nil
}

func (f *File) relocationTags() (address elf.DynamicTag, size elf.DynamicTag, count elf.DynamicTag) {
	if f.rela {
		return elf.DT_RELA, elf.DT_RELASZ, elf.DT_RELACOUNT
	}
	return elf.DT_REL, elf.DT_RELSZ, elf.DT_RELCOUNT
}

func (f *File) packedTags() (address elf.DynamicTag, size elf.DynamicTag) {
	if f.rela {
		return elf.DT_ANDROID_RELA, elf.DT_ANDROID_RELASZ
	}
	return elf.DT_ANDROID_REL, elf.DT_ANDROID_RELSZ
}

func (f *File) packedSectionName() (string, elf.SectionHeaderType) {
	if f.rela {
		return ".android.rela.dyn", elf.SHT_ANDROID_RELA
	}
	return ".android.rel.dyn", elf.SHT_ANDROID_REL
}

func (f *File) load(image []byte) error {
	e, err := elf.ReadELF(image)
	if err != nil {
		return err
	}
	f.elf = e

	if e.Type != elf.ET_DYN {
		return errors.Errorf("not a shared object (e_type %d)", e.Type)
	}
	if e.Endian != elf.ELFDATA2LSB {
		return errors.New("not a little-endian object")
	}
	relativeType, ok := e.Machine.RelativeRelocationType()
	if !ok {
		return errors.Errorf("unsupported machine %d", e.Machine)
	}
	f.relativeType = relativeType

	// Relocation section
	_, rel := e.SectionByName(".rel.dyn")
	_, rela := e.SectionByName(".rela.dyn")
	switch {
	case rel != nil && rela != nil:
		return errors.New("both .rel.dyn and .rela.dyn are present, relocation type is ambiguous")
	case rel != nil:
		f.relocations = rel
		if rel.Type != elf.SHT_REL {
			return errors.Errorf(".rel.dyn has type %#x, want SHT_REL", uint32(rel.Type))
		}
	case rela != nil:
		f.relocations = rela
		f.rela = true
		if rela.Type != elf.SHT_RELA {
			return errors.Errorf(".rela.dyn has type %#x, want SHT_RELA", uint32(rela.Type))
		}
	default:
		return errors.New("no .rel.dyn or .rela.dyn section")
	}
	if f.relocations.EntrySize != e.RelocationEntrySize(f.relocations.Type) {
		return errors.Errorf("%s has entry size %d, want %d", f.relocations.Name,
			f.relocations.EntrySize, e.RelocationEntrySize(f.relocations.Type))
	}
	if !f.relocations.IsAlloc() || e.LoadContaining(f.relocations.Offset) == nil {
		return errors.Errorf("%s is not part of a LOAD segment", f.relocations.Name)
	}
	if _, err := e.ReadRelocations(f.relocations); err != nil {
		return err
	}

	// Packed relocation section, if the linker left a stub
	packedName, packedType := f.packedSectionName()
	if _, packed := e.SectionByName(packedName); packed != nil {
		if packed.Type != packedType {
			return errors.Errorf("%s has type %#x, want %#x", packedName, uint32(packed.Type), uint32(packedType))
		}
		relEnd := f.relocations.Offset + f.relocations.Size
		if packed.Offset < relEnd || packed.Offset > alignUp(relEnd, max(packed.AddrAlign, e.WordSize())) {
			return errors.Errorf("%s does not directly follow %s", packedName, f.relocations.Name)
		}
		f.packed = packed
	}

	start, end := f.region()
	for _, sh := range e.Sections {
		if sh == f.relocations || sh == f.packed || sh.Size == 0 || !sh.Type.HasDataInFile() {
			continue
		}
		if sh.Offset < end && sh.Offset+sh.Size > start {
			return errors.Errorf("section %s overlaps the relocation sections", sh.Name)
		}
	}

	// Dynamic section
	_, dynamic := e.SectionByName(".dynamic")
	if dynamic == nil {
		return errors.New("no .dynamic section")
	}
	segmentFound := false
	for _, ph := range e.ProgramHeadersOfType(elf.PT_DYNAMIC) {
		if ph.Offset == dynamic.Offset {
			segmentFound = true
		}
	}
	if !segmentFound {
		return errors.New("no PT_DYNAMIC segment describes .dynamic")
	}
	entries, err := e.ReadDynamic(dynamic)
	if err != nil {
		return err
	}
	f.dynamicSection = dynamic
	f.dynamic = &dynamicTable{entries: entries}
	if f.dynamic.used() < 0 {
		return errors.New(".dynamic has no DT_NULL terminator")
	}
	addressTag, sizeTag, _ := f.relocationTags()
	if _, ok := f.dynamic.get(addressTag); !ok {
		return errors.Errorf(".dynamic has no %s entry", tagName(addressTag))
	}
	if _, ok := f.dynamic.get(sizeTag); !ok {
		return errors.Errorf(".dynamic has no %s entry", tagName(sizeTag))
	}

	// Symbol tables are rewritten when addresses move.
	for _, sh := range e.Sections {
		if sh.Type == elf.SHT_SYMTAB || sh.Type == elf.SHT_DYNSYM {
			if _, err := e.ReadSymbols(sh); err != nil {
				return err
			}
		}
	}

	f.state = stateLoaded
	return nil
}

// region returns the file range holding the relocation section and the
// packed section that follows it.
func (f *File) region() (uint64, uint64) {
	start := f.relocations.Offset
	end := start + f.relocations.Size
	if f.packed != nil {
		end = max(end, f.packed.Offset+f.packed.Size)
	}
	return start, end
}

func (f *File) checkLoaded() error {
	switch f.state {
	case stateFlushed:
		return errors.New("file has already been written back")
	case stateClosed:
		return errors.New("file is closed")
	}
	return nil
}

// Flush writes the in-memory image back to the file and truncates it to
// the new length. The in-memory model is discarded afterwards.
func (f *File) Flush() error {
	if err := f.checkLoaded(); err != nil {
		return err
	}

	f.dynamicSection.SetData(f.elf.EncodeDynamic(f.dynamic.entries))
	image, err := f.elf.Bytes()
	if err != nil {
		return errors.Wrap(err, "lay out file")
	}

	n, err := f.file.WriteAt(image, 0)
	if err != nil {
		return errors.Wrapf(err, "write %s", f.path)
	}
	if n <= 0 {
		panic("write reported no bytes written")
	}
	if err := truncateFile(f.file, int64(n)); err != nil {
		return errors.Wrapf(err, "truncate %s", f.path)
	}

	f.elf = nil
	f.relocations, f.packed, f.dynamicSection, f.dynamic = nil, nil, nil, nil
	f.state = stateFlushed
	return nil
}

// Close releases the lock and closes the file. Changes not yet flushed are
// discarded.
func (f *File) Close() error {
	if f.state == stateClosed {
		return nil
	}
	f.state = stateClosed
	f.elf = nil
	unlockFile(f.file)
	return f.file.Close()
}
