// Package vmm implements the amd64 4-level paging structures: the page table
// entry encoding, the page walker that installs mappings into an address
// space and Mmap which backs a linear range with freshly allocated frames.
package vmm

import "kmm/kernel"

var (
	// ErrInvalidMapping is returned when trying to lookup a virtual memory address that is not yet mapped.
	ErrInvalidMapping = &kernel.Error{Module: "vmm", Message: "virtual address does not point to a mapped physical page"}

	errNoHugePageSupport     = &kernel.Error{Module: "vmm", Message: "huge pages are not supported"}
	errUnalignedEntryAddress = &kernel.Error{Module: "vmm", Message: "page table entry address is not frame-aligned"}
	errUnalignedMmapAddress  = &kernel.Error{Module: "vmm", Message: "mmap start address is not page-aligned"}
	errMmapRangeOverflow     = &kernel.Error{Module: "vmm", Message: "mmap range wraps around the address space"}
	errAllocatorExhausted    = &kernel.Error{Module: "vmm", Message: "frame allocator returned an invalid frame"}
)
