package vmm

import (
	"kmm/kernel"
	"kmm/kernel/mm"
)

// Mapper installs page mappings. It is implemented by AddressSpace and
// consumed by Mmap.
type Mapper interface {
	Map(page mm.Page, frame mm.Frame, alloc mm.FrameAllocator, flags EntryFlag) *kernel.Error
}

// Map establishes a mapping between a virtual page and a physical memory
// frame. Map uses the supplied physical frame allocator to initialize missing
// page tables at each paging level. Any existing mapping for the page is
// overwritten.
//
// Intermediate tables are installed as present and writable; they also become
// user-accessible when flags requests FlagUserAccessible so that the final
// permission is decided by the last level entry.
func (as *AddressSpace) Map(page mm.Page, frame mm.Frame, alloc mm.FrameAllocator, flags EntryFlag) *kernel.Error {
	var (
		err        *kernel.Error
		tableFlags = FlagPresent | FlagRW | (flags & FlagUserAccessible)
	)

	as.lock.Acquire()
	defer as.lock.Release()

	as.walk(page.Address(), func(pteLevel uint8, pte *Entry) bool {
		// If we reached the last level all we need to do is to map the
		// frame in place and flush its TLB entry
		if pteLevel == pageLevels-1 {
			pte.SetFrame(frame, flags)
			as.flushTLBEntry(page.Address())
			return true
		}

		// Next table does not yet exist; we need to allocate a
		// physical frame for it and clear its contents.
		if !pte.IsPresent() {
			var newTableFrame mm.Frame
			if newTableFrame, err = alloc.AllocFrame(); err != nil {
				return false
			} else if !newTableFrame.Valid() {
				err = errAllocatorExhausted
				return false
			}

			*as.tables.TableAt(newTableFrame) = Table{}
			pte.SetFrame(newTableFrame, tableFlags)
			return true
		}

		if pte.HasFlags(FlagHugePage) {
			err = errNoHugePageSupport
			return false
		}

		if tableFlags&^pte.Flags() != 0 {
			pte.SetFrame(pte.Frame(), pte.Flags()|tableFlags)
		}

		return true
	})

	return err
}

// Unmap removes a mapping previously installed via a call to Map. The last
// level entry keeps its frame address but is no longer present; intermediate
// tables are left in place.
func (as *AddressSpace) Unmap(page mm.Page) *kernel.Error {
	var err *kernel.Error

	as.lock.Acquire()
	defer as.lock.Release()

	as.walk(page.Address(), func(pteLevel uint8, pte *Entry) bool {
		if !pte.IsPresent() {
			err = ErrInvalidMapping
			return false
		}

		if pteLevel == pageLevels-1 {
			pte.Set(pte.Address(), pte.Flags()&^FlagPresent)
			as.flushTLBEntry(page.Address())
			return true
		}

		if pte.HasFlags(FlagHugePage) {
			err = errNoHugePageSupport
			return false
		}

		return true
	})

	return err
}

// Translate returns the physical address that corresponds to the supplied
// virtual address or ErrInvalidMapping if the virtual address does not
// correspond to a mapped physical address.
func (as *AddressSpace) Translate(virtAddr uintptr) (uintptr, *kernel.Error) {
	pte, err := as.lookup(virtAddr)
	if err != nil {
		return 0, err
	}

	// Calculate the physical address by taking the physical frame address and
	// appending the offset from the virtual address
	return pte.Address() + PageOffset(virtAddr), nil
}

// Lookup returns a copy of the last level entry for the supplied virtual
// address or ErrInvalidMapping if the address is not mapped.
func (as *AddressSpace) Lookup(virtAddr uintptr) (Entry, *kernel.Error) {
	return as.lookup(virtAddr)
}

// lookup returns a copy of the last level entry for virtAddr. The copy is
// taken while the address space lock is held.
func (as *AddressSpace) lookup(virtAddr uintptr) (Entry, *kernel.Error) {
	var (
		err   *kernel.Error
		entry Entry
	)

	as.lock.Acquire()
	defer as.lock.Release()

	as.walk(virtAddr, func(pteLevel uint8, pte *Entry) bool {
		if !pte.IsPresent() {
			err = ErrInvalidMapping
			return false
		}

		if pteLevel < pageLevels-1 && pte.HasFlags(FlagHugePage) {
			err = errNoHugePageSupport
			return false
		}

		if pteLevel == pageLevels-1 {
			entry = *pte
		}
		return true
	})

	if err != nil {
		return NewEntry(), err
	}
	return entry, nil
}

// PageOffset returns the offset within the page specified by a virtual
// address.
func PageOffset(virtAddr uintptr) uintptr {
	return (virtAddr & ((1 << pageLevelShifts[pageLevels-1]) - 1))
}

// flushTLBEntry invalidates the TLB entry for virtAddr if this address space
// is the active one.
func (as *AddressSpace) flushTLBEntry(virtAddr uintptr) {
	if as.IsActive() {
		as.mmu.FlushTLBEntry(virtAddr)
	}
}
