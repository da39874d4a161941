// Package pmm tracks the free physical memory reported by the bootloader. It
// describes free memory as regions of contiguous frames, decomposes regions
// into power-of-two sized blocks and provides the frame allocators that the
// virtual memory manager draws page tables and mapped pages from.
package pmm

import "kmm/kernel"

var (
	errInvalidRegionRange = &kernel.Error{Module: "pmm", Message: "region end frame must be greater than its start frame"}
	errOutOfMemory        = &kernel.Error{Module: "pmm", Message: "out of memory"}
)
