// SPDX-License-Identifier: MIT
//
// Copyright (c) 2024 Adrian "asie" Siekierka

package elf

type FileClass uint8

const (
	ELFCLASSNONE FileClass = 0
	ELFCLASS32   FileClass = 1
	ELFCLASS64   FileClass = 2
)

type FileEndian uint8

const (
	ELFDATA2LSB FileEndian = 1
	ELFDATA2MSB FileEndian = 2
)

type FileABI uint8

type FileType uint16

const (
	ET_NONE FileType = 0
	ET_REL  FileType = 1
	ET_EXEC FileType = 2
	ET_DYN  FileType = 3
	ET_CORE FileType = 4
)

type MachineType uint16

const (
	EM_NONE    MachineType = 0   // None.
	EM_386     MachineType = 3   // 386-compatible processor.
	EM_MIPS    MachineType = 8   // MIPS processor
	EM_ARM     MachineType = 40  // ARM processor
	EM_X86_64  MachineType = 62  // AMD x86-64
	EM_AARCH64 MachineType = 183 // ARM 64-bit
	EM_RISCV   MachineType = 243 // RISC-V
)

// Section header index
const (
	SHN_UNDEF     = 0
	SHN_LORESERVE = 0xFF00
	SHN_ABS       = 0xFFF1
	SHN_COMMON    = 0xFFF2
	SHN_XINDEX    = 0xFFFF
)

type SectionHeaderType uint32

const (
	SHT_NULL          SectionHeaderType = 0
	SHT_PROGBITS      SectionHeaderType = 1
	SHT_SYMTAB        SectionHeaderType = 2
	SHT_STRTAB        SectionHeaderType = 3
	SHT_RELA          SectionHeaderType = 4
	SHT_HASH          SectionHeaderType = 5
	SHT_DYNAMIC       SectionHeaderType = 6
	SHT_NOTE          SectionHeaderType = 7
	SHT_NOBITS        SectionHeaderType = 8
	SHT_REL           SectionHeaderType = 9
	SHT_DYNSYM        SectionHeaderType = 11
	SHT_INIT_ARRAY    SectionHeaderType = 14
	SHT_FINI_ARRAY    SectionHeaderType = 15
	SHT_PREINIT_ARRAY SectionHeaderType = 16

	// Packed relocation sections, as understood by the Android dynamic linker.
	SHT_ANDROID_REL  SectionHeaderType = 0x60000001
	SHT_ANDROID_RELA SectionHeaderType = 0x60000002
)

func (s SectionHeaderType) HasDataInFile() bool {
	return s != SHT_NOBITS && s != SHT_NULL
}

// Section header flags
type SectionHeaderFlag uint64

const (
	SHF_WRITE     SectionHeaderFlag = 0x00000001
	SHF_ALLOC     SectionHeaderFlag = 0x00000002
	SHF_EXECINSTR SectionHeaderFlag = 0x00000004
	SHF_INFO_LINK SectionHeaderFlag = 0x00000040
)

type SymbolBinding uint8

const (
	STB_LOCAL  SymbolBinding = 0
	STB_GLOBAL SymbolBinding = 1
	STB_WEAK   SymbolBinding = 2
)

type SymbolType uint8

const (
	STT_NOTYPE  SymbolType = 0
	STT_OBJECT  SymbolType = 1
	STT_FUNC    SymbolType = 2
	STT_SECTION SymbolType = 3
	STT_FILE    SymbolType = 4
	STT_TLS     SymbolType = 6
)

type ProgramHeaderType uint32

const (
	PT_NULL      ProgramHeaderType = 0
	PT_LOAD      ProgramHeaderType = 1
	PT_DYNAMIC   ProgramHeaderType = 2
	PT_INTERP    ProgramHeaderType = 3
	PT_NOTE      ProgramHeaderType = 4
	PT_SHLIB     ProgramHeaderType = 5
	PT_PHDR      ProgramHeaderType = 6
	PT_TLS       ProgramHeaderType = 7
	PT_GNU_STACK ProgramHeaderType = 0x6474E551
	PT_GNU_RELRO ProgramHeaderType = 0x6474E552
)

type ProgramHeaderFlag uint32

const (
	PF_X ProgramHeaderFlag = 0x1
	PF_W ProgramHeaderFlag = 0x2
	PF_R ProgramHeaderFlag = 0x4
)

type DynamicTag int64

const (
	DT_NULL         DynamicTag = 0
	DT_NEEDED       DynamicTag = 1
	DT_PLTRELSZ     DynamicTag = 2
	DT_PLTGOT       DynamicTag = 3
	DT_HASH         DynamicTag = 4
	DT_STRTAB       DynamicTag = 5
	DT_SYMTAB       DynamicTag = 6
	DT_RELA         DynamicTag = 7
	DT_RELASZ       DynamicTag = 8
	DT_RELAENT      DynamicTag = 9
	DT_STRSZ        DynamicTag = 10
	DT_SYMENT       DynamicTag = 11
	DT_INIT         DynamicTag = 12
	DT_FINI         DynamicTag = 13
	DT_SONAME       DynamicTag = 14
	DT_REL          DynamicTag = 17
	DT_RELSZ        DynamicTag = 18
	DT_RELENT       DynamicTag = 19
	DT_PLTREL       DynamicTag = 20
	DT_DEBUG        DynamicTag = 21
	DT_JMPREL       DynamicTag = 23
	DT_INIT_ARRAY   DynamicTag = 25
	DT_FINI_ARRAY   DynamicTag = 26

	DT_PREINIT_ARRAY DynamicTag = 32

	DT_LOOS           DynamicTag = 0x6000000D
	DT_ANDROID_REL    DynamicTag = DT_LOOS + 2
	DT_ANDROID_RELSZ  DynamicTag = DT_LOOS + 3
	DT_ANDROID_RELA   DynamicTag = DT_LOOS + 4
	DT_ANDROID_RELASZ DynamicTag = DT_LOOS + 5
	DT_GNU_HASH       DynamicTag = 0x6FFFFEF5
	DT_VERSYM         DynamicTag = 0x6FFFFFF0
	DT_RELACOUNT      DynamicTag = 0x6FFFFFF9
	DT_RELCOUNT       DynamicTag = 0x6FFFFFFA
	DT_VERDEF         DynamicTag = 0x6FFFFFFC
	DT_VERNEED        DynamicTag = 0x6FFFFFFE
)

// IsAddress reports whether the value of a dynamic entry with this tag is a
// virtual address into the object.
func (t DynamicTag) IsAddress() bool {
	switch t {
	case DT_PLTGOT, DT_HASH, DT_GNU_HASH, DT_STRTAB, DT_SYMTAB,
		DT_RELA, DT_REL, DT_INIT, DT_FINI, DT_JMPREL,
		DT_INIT_ARRAY, DT_FINI_ARRAY, DT_PREINIT_ARRAY,
		DT_VERSYM, DT_VERNEED, DT_VERDEF,
		DT_ANDROID_REL, DT_ANDROID_RELA:
		return true
	}
	return false
}

// Relocation types shared by every supported machine.
const (
	R_NONE = 0
)

const (
	R_ARM_ABS32     = 2
	R_AARCH64_ABS64 = 257

	R_386_RELATIVE     = 8
	R_X86_64_RELATIVE  = 8
	R_ARM_RELATIVE     = 23
	R_AARCH64_RELATIVE = 1027
	R_RISCV_RELATIVE   = 3
)

// RelativeRelocationType returns the machine's "relative" relocation type.
func (m MachineType) RelativeRelocationType() (uint32, bool) {
	switch m {
	case EM_386:
		return R_386_RELATIVE, true
	case EM_X86_64:
		return R_X86_64_RELATIVE, true
	case EM_ARM:
		return R_ARM_RELATIVE, true
	case EM_AARCH64:
		return R_AARCH64_RELATIVE, true
	case EM_RISCV:
		return R_RISCV_RELATIVE, true
	}
	return 0, false
}

// DefaultMaxPageSize returns the LOAD segment alignment linkers use for the
// machine unless told otherwise.
func (m MachineType) DefaultMaxPageSize() uint64 {
	switch m {
	case EM_ARM, EM_AARCH64:
		return 0x10000
	}
	return 0x1000
}
