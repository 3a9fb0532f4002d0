package secobj

import (
	"fmt"
	"strings"
)

// Flags is the attribute bit set of a section. The core only tests
// FlagHasContents, FlagConstructor, FlagInMemory, FlagCode, FlagIsCommon
// and FlagLinkerCreated; every other bit is carried for backends.
type Flags uint32

const (
	FlagNone Flags = 0x000

	// Tells the OS to allocate space for this section when loading.
	FlagAlloc Flags = 0x001
	// Tells the OS to load the section from the file when loading.
	FlagLoad Flags = 0x002
	// The section contains data still to be relocated.
	FlagReloc Flags = 0x004
	// A signal to the OS that the section contains read only data.
	FlagReadOnly Flags = 0x008
	// The section contains code only.
	FlagCode Flags = 0x010
	// The section contains data only.
	FlagData Flags = 0x020
	// The section will reside in ROM.
	FlagROM Flags = 0x040
	// The section contains constructor information. Reads return zeros.
	FlagConstructor Flags = 0x080
	// The section has contents; a section with FlagAlloc but without this
	// bit is bss-like and reads as zeros.
	FlagHasContents Flags = 0x100
	// An instruction to the linker to not output the section even if it
	// has information which would normally be written.
	FlagNeverLoad Flags = 0x200
	// The section contains thread local data.
	FlagThreadLocal Flags = 0x400
	// The section uses a global offset table.
	FlagHasGOTRef Flags = 0x800
	// The section contains common symbols.
	FlagIsCommon Flags = 0x1000
	// The section contains only debugging information.
	FlagDebugging Flags = 0x2000
	// The contents of this section are held in memory in Section.Contents.
	FlagInMemory Flags = 0x4000
	// The section is excluded from the link.
	FlagExclude Flags = 0x8000
	// The entries of this section must be sorted.
	FlagSortEntries Flags = 0x10000
	// Only one copy of this section is linked in.
	FlagLinkOnce Flags = 0x20000
	// Mask for the duplicate handling of link once sections.
	FlagLinkDuplicates Flags = 0xc0000
	// Discard duplicate link once sections silently.
	FlagLinkDuplicatesDiscard Flags = 0x0
	// Warn if there is more than one copy.
	FlagLinkDuplicatesOneOnly Flags = 0x40000
	// Warn if duplicates have different sizes.
	FlagLinkDuplicatesSameSize Flags = 0x80000
	// Warn if duplicates have different contents.
	FlagLinkDuplicatesSameContents = FlagLinkDuplicatesOneOnly | FlagLinkDuplicatesSameSize
	// The section was created by the linker.
	FlagLinkerCreated Flags = 0x100000
	// Keep the section even if nothing references it.
	FlagKeep Flags = 0x200000
	// The section holds small data.
	FlagSmallData Flags = 0x400000
	// The section holds mergeable entities of EntSize bytes.
	FlagMerge Flags = 0x800000
	// Mergeable entities are NUL-terminated strings.
	FlagStrings Flags = 0x1000000
	// The section is a group section.
	FlagGroup Flags = 0x2000000

	// Format specific bits share the high values.
	FlagCOFFSharedLibrary Flags = 0x4000000
	FlagELFReverseCopy    Flags = 0x4000000
	FlagCOFFShared        Flags = 0x8000000
	FlagELFCompress       Flags = 0x8000000
	FlagTIC54XBlock       Flags = 0x10000000
	FlagELFRename         Flags = 0x10000000
	FlagTIC54XClink       Flags = 0x20000000
	FlagMEPVLIW           Flags = 0x20000000
	FlagCOFFNoRead        Flags = 0x40000000
	FlagELFPureCode       Flags = 0x80000000
)

var flagNames = []struct {
	flag Flags
	name string
}{
	{FlagAlloc, "ALLOC"},
	{FlagLoad, "LOAD"},
	{FlagReloc, "RELOC"},
	{FlagReadOnly, "READONLY"},
	{FlagCode, "CODE"},
	{FlagData, "DATA"},
	{FlagROM, "ROM"},
	{FlagConstructor, "CONSTRUCTOR"},
	{FlagHasContents, "CONTENTS"},
	{FlagNeverLoad, "NEVER_LOAD"},
	{FlagThreadLocal, "THREAD_LOCAL"},
	{FlagHasGOTRef, "GOT_REF"},
	{FlagIsCommon, "IS_COMMON"},
	{FlagDebugging, "DEBUGGING"},
	{FlagInMemory, "IN_MEMORY"},
	{FlagExclude, "EXCLUDE"},
	{FlagSortEntries, "SORT_ENTRIES"},
	{FlagLinkOnce, "LINK_ONCE"},
	{FlagLinkDuplicatesOneOnly, "LINK_DUPLICATES_ONE_ONLY"},
	{FlagLinkDuplicatesSameSize, "LINK_DUPLICATES_SAME_SIZE"},
	{FlagLinkerCreated, "LINKER_CREATED"},
	{FlagKeep, "KEEP"},
	{FlagSmallData, "SMALL_DATA"},
	{FlagMerge, "MERGE"},
	{FlagStrings, "STRINGS"},
	{FlagGroup, "GROUP"},
	{0x4000000, "FORMAT_0x4000000"},
	{0x8000000, "FORMAT_0x8000000"},
	{0x10000000, "FORMAT_0x10000000"},
	{0x20000000, "FORMAT_0x20000000"},
	{FlagCOFFNoRead, "COFF_NOREAD"},
	{FlagELFPureCode, "ELF_PURECODE"},
}

// Has reports whether every bit of mask is set.
func (f Flags) Has(mask Flags) bool {
	return f&mask == mask && mask != 0
}

// String renders the set bits, e.g. "ALLOC|LOAD|CODE|CONTENTS".
func (f Flags) String() string {
	if f == FlagNone {
		return "NO_FLAGS"
	}
	var parts []string
	rest := f
	for _, fn := range flagNames {
		if f&fn.flag != 0 {
			parts = append(parts, fn.name)
			rest &^= fn.flag
		}
	}
	if rest != 0 {
		parts = append(parts, fmt.Sprintf("0x%x", uint32(rest)))
	}
	return strings.Join(parts, "|")
}
