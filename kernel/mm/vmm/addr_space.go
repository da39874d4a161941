package vmm

import (
	"kmm/kernel/cpu"
	"kmm/kernel/kfmt"
	"kmm/kernel/mm"
	"kmm/kernel/sync"
)

// AddressSpace describes a virtual address space rooted at a top-level (P4)
// page table. All operations on an address space are serialized by its lock
// so that concurrent entry updates cannot interleave.
type AddressSpace struct {
	lock sync.Spinlock

	root   mm.Frame
	tables TableResolver
	mmu    cpu.MMU
}

// NewAddressSpace sets up an address space whose top-level table lives in
// rootFrame. If rootFrame matches the table currently loaded in the root
// page table register its contents are preserved; otherwise the frame is
// assumed to be freshly allocated and its table is cleared.
func NewAddressSpace(tables TableResolver, mmu cpu.MMU, rootFrame mm.Frame) *AddressSpace {
	as := &AddressSpace{
		root:   rootFrame,
		tables: tables,
		mmu:    mmu,
	}

	if !as.IsActive() {
		*tables.TableAt(rootFrame) = Table{}
	}

	kfmt.Logger("vmm").WithField("root", uint64(rootFrame.Address())).Debug("address space initialized")
	return as
}

// ActiveAddressSpace returns an address space for the top-level table that
// is currently loaded in the root page table register.
func ActiveAddressSpace(tables TableResolver, mmu cpu.MMU) *AddressSpace {
	return &AddressSpace{
		root:   mm.FrameFromAddress(cpu.RootTableAddress(mmu.ActivePDT())),
		tables: tables,
		mmu:    mmu,
	}
}

// Root returns the frame that holds the top-level table.
func (as *AddressSpace) Root() mm.Frame {
	return as.root
}

// IsActive returns true if this address space is loaded in the root page
// table register.
func (as *AddressSpace) IsActive() bool {
	return cpu.RootTableAddress(as.mmu.ActivePDT()) == as.root.Address()
}

// Activate loads this address space into the root page table register.
func (as *AddressSpace) Activate() {
	as.mmu.SwitchPDT(as.root.Address())
}

// walker is a function that can be passed to the walk method. The function
// receives the current page level and page table entry as its arguments. If
// the function returns false, then the page walk is aborted.
type walker func(pteLevel uint8, pte *Entry) bool

// walk performs a page table walk for the given virtual address. It calls the
// supplied walkFn with the page table entry that corresponds to each page
// table level, descending into the table referenced by each entry after
// walkFn returns. Callers must hold the address space lock.
func (as *AddressSpace) walk(virtAddr uintptr, walkFn walker) {
	table := as.tables.TableAt(as.root)

	for level := uint8(0); level < pageLevels; level++ {
		// Extract the bits from virtual address that correspond to the
		// index in this level's page table
		entryIndex := (virtAddr >> pageLevelShifts[level]) & ((1 << pageLevelBits[level]) - 1)
		pte := &table[entryIndex]

		if !walkFn(level, pte) || level == pageLevels-1 {
			return
		}

		table = as.tables.TableAt(pte.Frame())
	}
}
