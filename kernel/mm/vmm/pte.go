package vmm

import (
	"fmt"
	"kmm/kernel/kfmt"
	"kmm/kernel/mm"
	"strings"
)

// EntryFlag describes a flag that can be applied to a page table entry.
type EntryFlag uint64

var flagNames = []struct {
	flag EntryFlag
	name string
}{
	{FlagPresent, "PRESENT"},
	{FlagRW, "RW"},
	{FlagUserAccessible, "USER"},
	{FlagWriteThroughCaching, "WRITE_THROUGH"},
	{FlagDoNotCache, "NO_CACHE"},
	{FlagAccessed, "ACCESSED"},
	{FlagDirty, "DIRTY"},
	{FlagHugePage, "HUGE"},
	{FlagGlobal, "GLOBAL"},
	{FlagNoExecute, "NX"},
}

// String implements fmt.Stringer for EntryFlag.
func (f EntryFlag) String() string {
	var names []string
	for _, fn := range flagNames {
		if f&fn.flag != 0 {
			names = append(names, fn.name)
		}
	}

	if len(names) == 0 {
		return "NONE"
	}
	return strings.Join(names, "|")
}

// Entry describes an amd64 page table entry. Bits 12-51 encode the physical
// address of a frame (either a mapped page or the next level table) and the
// remaining low bits plus bit 63 carry EntryFlag values.
//
// Entries live inside a Table and are only ever updated by overwriting the
// address and the flags together via Set.
type Entry uint64

// NewEntry returns an entry that is not present.
func NewEntry() Entry {
	return 0
}

// Address returns the physical address encoded in the entry.
func (pte Entry) Address() uintptr {
	return uintptr(uint64(pte) & ptePhysPageMask)
}

// Frame returns the physical page frame that this page table entry points to.
func (pte Entry) Frame() mm.Frame {
	return mm.Frame(pte.Address() >> mm.PageShift)
}

// Flags returns the flags set on this entry. Unknown and reserved bits are
// not reported.
func (pte Entry) Flags() EntryFlag {
	return EntryFlag(pte) & knownFlags
}

// HasFlags returns true if this entry has all the input flags set.
func (pte Entry) HasFlags(flags EntryFlag) bool {
	return (EntryFlag(pte) & flags) == flags
}

// HasAnyFlag returns true if this entry has at least one of the input flags set.
func (pte Entry) HasAnyFlag(flags EntryFlag) bool {
	return (EntryFlag(pte) & flags) != 0
}

// IsPresent returns true if the entry has FlagPresent set.
func (pte Entry) IsPresent() bool {
	return pte.HasFlags(FlagPresent)
}

// Set overwrites the entry with the supplied physical address and flags. The
// address must be frame-aligned and fit in bits 12-51; any other value causes
// a kernel panic as truncating it would corrupt the flag bits. Flags outside
// the known flag set are dropped.
func (pte *Entry) Set(physAddr uintptr, flags EntryFlag) {
	if uint64(physAddr)&^ptePhysPageMask != 0 {
		kfmt.Panic(errUnalignedEntryAddress)
		return
	}

	*pte = Entry(uint64(physAddr) | uint64(flags&knownFlags))
}

// SetFrame overwrites the entry so it points to frame with the supplied flags.
func (pte *Entry) SetFrame(frame mm.Frame, flags EntryFlag) {
	pte.Set(frame.Address(), flags)
}

// String implements fmt.Stringer for Entry.
func (pte Entry) String() string {
	return fmt.Sprintf("Entry{frame base: 0x%x, flags: %s}", pte.Address(), pte.Flags())
}
