package vmm

import (
	"kmm/kernel/kfmt"
	"kmm/kernel/mm"
)

// Mmap backs the linear range [linearAddr, linearAddr+length) with freshly
// allocated physical frames. For each page in the range, in increasing
// address order, Mmap allocates a frame from alloc and asks mapper to map the
// page to it as present and writable. The range is rounded up to a whole
// number of pages so ceil(length/PageSize) frames are consumed.
//
// linearAddr must be page-aligned. A misaligned start address, an exhausted
// allocator or a mapper failure are unrecoverable and cause a kernel panic;
// frames allocated by earlier iterations are not released.
func Mmap(linearAddr uintptr, length mm.Size, mapper Mapper, alloc mm.FrameAllocator) {
	if !mm.IsPageAligned(linearAddr) {
		kfmt.Panic(errUnalignedMmapAddress)
		return
	}

	pageCount := length.Pages()
	if pageCount == 0 {
		return
	}

	if lastAddr := linearAddr + uintptr(pageCount<<mm.PageShift) - 1; lastAddr < linearAddr {
		kfmt.Panic(errMmapRangeOverflow)
		return
	}

	log := kfmt.Logger("vmm")
	page := mm.PageFromAddress(linearAddr)
	for ; pageCount > 0; pageCount, page = pageCount-1, page+1 {
		frame, err := alloc.AllocFrame()
		if err != nil {
			kfmt.Panic(err)
			return
		} else if !frame.Valid() {
			kfmt.Panic(errAllocatorExhausted)
			return
		}

		if err = mapper.Map(page, frame, alloc, FlagPresent|FlagRW); err != nil {
			kfmt.Panic(err)
			return
		}

		log.Tracef("mapping 0x%x to 0x%x", page.Address(), frame.Address())
	}
}
