// Package multiboot parses the memory map section of the multiboot2
// information structure that the bootloader hands to the kernel.
package multiboot

import (
	"encoding/binary"
	"unsafe"
)

var (
	infoData uintptr

	// infoBuf keeps a hosted info blob reachable while infoData points
	// into it.
	infoBuf []byte
)

type tagType uint32

// nolint
const (
	tagMbSectionEnd tagType = iota
	tagBootCmdLine
	tagBootLoaderName
	tagModules
	tagBasicMemoryInfo
	tagBiosBootDevice
	tagMemoryMap
	tagVbeInfo
	tagFramebufferInfo
	tagElfSymbols
	tagApmTable
)

const (
	infoHeaderSize  = 8
	tagHeaderSize   = 8
	mmapHeaderSize  = 8
	mmapEntrySize   = 24
	tagAlignmentLen = 8
)

// tagHeader describes the header the preceedes each tag.
type tagHeader struct {
	// The type of the tag
	tagType tagType

	// The size of the tag including the header but *not* including any
	// padding. Each tag starts at a 8-byte aligned address.
	size uint32
}

// mmapHeader describes the header for a memory map specification.
type mmapHeader struct {
	// The size of each entry.
	entrySize uint32

	// The version of the entries that follow.
	entryVersion uint32
}

// MemoryEntryType defines the type of a MemoryMapEntry.
type MemoryEntryType uint32

const (
	// MemAvailable indicates that the memory region is available for use.
	MemAvailable MemoryEntryType = iota + 1

	// MemReserved indicates that the memory region is not available for use.
	MemReserved

	// MemAcpiReclaimable indicates a memory region that holds ACPI info that
	// can be reused by the OS.
	MemAcpiReclaimable

	// MemNvs indicates memory that must be preserved when hibernating.
	MemNvs

	// Any value >= memUnknown will be mapped to MemReserved.
	memUnknown
)

// MemRegionVisitor defies a visitor function that gets invoked by VisitMemRegions
// for each memory region provided by the boot loader. The visitor must return true
// to continue or false to abort the scan.
type MemRegionVisitor func(*MemoryMapEntry) bool

// MemoryMapEntry describes a memory region entry, namely its physical address,
// its length and its type.
type MemoryMapEntry struct {
	// The physical address for this memory region.
	PhysAddress uint64

	// The length of the memory region.
	Length uint64

	// The type of this entry.
	Type MemoryEntryType
}

// String implements fmt.Stringer for MemoryEntryType.
func (t MemoryEntryType) String() string {
	switch t {
	case MemAvailable:
		return "available"
	case MemReserved:
		return "reserved"
	case MemAcpiReclaimable:
		return "ACPI (reclaimable)"
	case MemNvs:
		return "NVS"
	default:
		return "unknown"
	}
}

// SetInfoPtr updates the internal multiboot information pointer to the given
// value. This function must be invoked before invoking any other function
// exported by this package.
func SetInfoPtr(ptr uintptr) {
	infoData = ptr
	infoBuf = nil
}

// SetInfo points the package at an info blob that lives in Go memory, such
// as the one returned by BuildInfo.
func SetInfo(data []byte) {
	infoBuf = data
	infoData = uintptr(unsafe.Pointer(&data[0]))
}

// VisitMemRegions will invoke the supplied visitor for each memory region that
// is defined by the multiboot info data that we received from the bootloader.
// Entries with an unknown type are reported as MemReserved.
func VisitMemRegions(visitor MemRegionVisitor) {
	curPtr, size := findTagByType(tagMemoryMap)
	if size == 0 {
		return
	}

	// curPtr points to the memory map header (2 dwords long)
	ptrMapHeader := (*mmapHeader)(unsafe.Pointer(curPtr))
	endPtr := curPtr + uintptr(size)
	curPtr += mmapHeaderSize

	var entry *MemoryMapEntry
	for curPtr < endPtr {
		entry = (*MemoryMapEntry)(unsafe.Pointer(curPtr))

		// Mark unknown entry types as reserved
		if entry.Type == 0 || entry.Type >= memUnknown {
			entry.Type = MemReserved
		}

		if !visitor(entry) {
			return
		}

		curPtr += uintptr(ptrMapHeader.entrySize)
	}
}

// findTagByType scans the multiboot info data looking for the start of of the
// specified type. It returns a pointer to the tag contents start offset and
// the content length exluding the tag header.
//
// If the tag is not present in the multiboot info, findTagSection will return
// back (0,0).
func findTagByType(tagType tagType) (uintptr, uint32) {
	var ptrTagHeader *tagHeader

	curPtr := infoData + infoHeaderSize
	for ptrTagHeader = (*tagHeader)(unsafe.Pointer(curPtr)); ptrTagHeader.tagType != tagMbSectionEnd; ptrTagHeader = (*tagHeader)(unsafe.Pointer(curPtr)) {
		if ptrTagHeader.tagType == tagType {
			return curPtr + tagHeaderSize, ptrTagHeader.size - tagHeaderSize
		}

		// Tags are aligned at 8-byte aligned addresses
		curPtr += uintptr(int32(ptrTagHeader.size+7) & ^7)
	}

	return 0, 0
}

// BuildInfo encodes entries as a multiboot2 information structure that
// contains a single memory map tag followed by the end tag. It allows the
// memory managers to run against a synthetic memory map outside of a real
// boot environment.
func BuildInfo(entries []MemoryMapEntry) []byte {
	mmapTagSize := tagHeaderSize + mmapHeaderSize + len(entries)*mmapEntrySize
	totalSize := infoHeaderSize + alignTag(mmapTagSize) + tagHeaderSize

	buf := make([]byte, totalSize)
	le := binary.LittleEndian

	le.PutUint32(buf[0:], uint32(totalSize))

	off := infoHeaderSize
	le.PutUint32(buf[off:], uint32(tagMemoryMap))
	le.PutUint32(buf[off+4:], uint32(mmapTagSize))
	le.PutUint32(buf[off+8:], mmapEntrySize)
	le.PutUint32(buf[off+12:], 0)

	off += tagHeaderSize + mmapHeaderSize
	for _, entry := range entries {
		le.PutUint64(buf[off:], entry.PhysAddress)
		le.PutUint64(buf[off+8:], entry.Length)
		le.PutUint32(buf[off+16:], uint32(entry.Type))
		off += mmapEntrySize
	}

	// The end tag has type 0 and size 8.
	off = infoHeaderSize + alignTag(mmapTagSize)
	le.PutUint32(buf[off:], uint32(tagMbSectionEnd))
	le.PutUint32(buf[off+4:], tagHeaderSize)

	return buf
}

func alignTag(size int) int {
	return (size + tagAlignmentLen - 1) &^ (tagAlignmentLen - 1)
}
