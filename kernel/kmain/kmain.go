// Package kmain wires the physical and virtual memory managers together into
// the kernel memory bootstrap sequence.
package kmain

import (
	"kmm/kernel"
	"kmm/kernel/cpu"
	"kmm/kernel/kfmt"
	"kmm/kernel/mm"
	"kmm/kernel/mm/pmm"
	"kmm/kernel/mm/vmm"
	"kmm/multiboot"
)

const (
	// DefaultHeapStart is the virtual address where the kernel heap
	// bootstrap range begins.
	DefaultHeapStart = uintptr(0x444444440000)

	// DefaultHeapSize is the size of the kernel heap bootstrap range.
	DefaultHeapSize = 100 * mm.Kb
)

var (
	errKmainReturned = &kernel.Error{Module: "kmain", Message: "Kmain returned"}
	errNoFreeMemory  = &kernel.Error{Module: "kmain", Message: "bootloader reported no usable memory"}

	// The hardware the native entrypoint runs against. Tests replace
	// these with emulated versions.
	nativeMMUFn    = func() cpu.MMU { return cpu.NativeMMU{} }
	nativeTablesFn = func(physMemOffset uintptr) vmm.TableResolver {
		return vmm.DirectMap{PhysOffset: physMemOffset}
	}
)

// BootConfig describes the environment that Boot initializes the memory
// managers for.
type BootConfig struct {
	// Scan reports the bootloader memory map.
	Scan pmm.MemRegionScanner

	// The physical addresses of the loaded kernel image.
	KernelStart, KernelEnd uintptr

	// The linear range that gets backed by physical memory once the
	// allocators are up. A zero HeapSize skips the heap bootstrap.
	HeapStart uintptr
	HeapSize  mm.Size

	// Tables resolves page table frames; a new Arena is used if nil.
	Tables vmm.TableResolver

	// MMU is the paging hardware; a new cpu.EmulatedMMU is used if nil.
	MMU cpu.MMU

	// AdoptActiveRoot maps the heap into the top-level table that is
	// loaded in the root page table register instead of a freshly
	// allocated one. The active table must not live in memory reported
	// as available by Scan; boot page tables normally sit inside the
	// kernel image.
	AdoptActiveRoot bool
}

// System holds the memory managers that Boot set up.
type System struct {
	// Registry is the free region registry built from the memory map. All
	// of its regions are handed to Allocator during boot.
	Registry *pmm.Registry

	// Allocator serves every frame allocation after boot.
	Allocator *pmm.BlockAllocator

	AddressSpace *vmm.AddressSpace
	Tables       vmm.TableResolver
	MMU          cpu.MMU

	// HeapStart and HeapSize record the linear range mapped during boot.
	HeapStart uintptr
	HeapSize  mm.Size
}

// Boot builds the free region registry out of the bootloader memory map,
// sets up the address space (either the active one or a new one whose root
// table is allocated from the registry), hands the remaining free regions to
// a BlockAllocator and finally backs the heap bootstrap range with physical
// frames.
func Boot(cfg BootConfig) (*System, *kernel.Error) {
	log := kfmt.Logger("kmain")

	pmm.PrintMemoryMap(cfg.Scan, cfg.KernelStart, cfg.KernelEnd)

	reg := pmm.NewRegistry(cfg.Scan, cfg.KernelStart, cfg.KernelEnd)
	if reg.Len() == 0 {
		return nil, errNoFreeMemory
	}

	sys := &System{
		Registry:  reg,
		Tables:    cfg.Tables,
		MMU:       cfg.MMU,
		HeapStart: cfg.HeapStart,
		HeapSize:  cfg.HeapSize,
	}
	if sys.Tables == nil {
		sys.Tables = vmm.NewArena()
	}
	if sys.MMU == nil {
		sys.MMU = &cpu.EmulatedMMU{}
	}

	if cfg.AdoptActiveRoot {
		sys.AddressSpace = vmm.ActiveAddressSpace(sys.Tables, sys.MMU)
	} else {
		rootFrame, err := reg.AllocFrame()
		if err != nil {
			return nil, err
		}
		sys.AddressSpace = vmm.NewAddressSpace(sys.Tables, sys.MMU, rootFrame)
	}

	var regions []pmm.Region
	for {
		region, ok := reg.TakeRegion()
		if !ok {
			break
		}
		regions = append(regions, region)
	}
	sys.Allocator = pmm.NewBlockAllocator(regions)

	log.WithField("root", uint64(sys.AddressSpace.Root().Address())).
		WithField("active", sys.AddressSpace.IsActive()).
		WithField("free", sys.Allocator.FreeFrames()).
		Info("frame allocator initialized")

	if cfg.HeapSize != 0 {
		vmm.Mmap(cfg.HeapStart, cfg.HeapSize, sys.AddressSpace, sys.Allocator)
		log.Infof("mapped heap at 0x%x - 0x%x", cfg.HeapStart, cfg.HeapStart+uintptr(cfg.HeapSize.Pages())*uintptr(mm.PageSize))
	}

	return sys, nil
}

// Kmain is the only Go symbol that is visible (exported) from the rt0
// initialization code. The rt0 code passes the address of the multiboot info
// payload provided by the bootloader, the physical addresses for the kernel
// start/end and the virtual address at which all of physical memory is
// mapped. The heap is mapped into the page tables that rt0 activated.
//
// Kmain is not expected to return. If it does, the rt0 code will halt the CPU.
//
//go:noinline
func Kmain(multibootInfoPtr, kernelStart, kernelEnd, physMemOffset uintptr) {
	multiboot.SetInfoPtr(multibootInfoPtr)

	_, err := Boot(BootConfig{
		Scan:        multiboot.VisitMemRegions,
		KernelStart: kernelStart,
		KernelEnd:   kernelEnd,
		HeapStart:   DefaultHeapStart,
		HeapSize:    DefaultHeapSize,
		Tables:      nativeTablesFn(physMemOffset),
		MMU:         nativeMMUFn(),

		AdoptActiveRoot: true,
	})
	if err != nil {
		kfmt.Panic(err)
	}

	// Use kfmt.Panic instead of panic to prevent the compiler from
	// treating kfmt.Panic as dead-code and eliminating it.
	kfmt.Panic(errKmainReturned)
}
