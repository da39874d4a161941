package pmm

import (
	"kmm/kernel"
	"kmm/kernel/kfmt"
	"kmm/kernel/mm"
	"kmm/kernel/sync"
	"kmm/multiboot"
	"sort"

	"github.com/google/btree"
)

// registryDegree is the degree of the B-tree that backs a Registry.
const registryDegree = 8

// MemRegionScanner invokes the supplied visitor for each entry of the
// bootloader memory map. multiboot.VisitMemRegions satisfies it.
type MemRegionScanner func(multiboot.MemRegionVisitor)

// Registry holds the free regions of physical memory ordered by their start
// frame. Regions in the registry never overlap.
type Registry struct {
	lock    sync.Spinlock
	regions *btree.BTreeG[Region]
}

func regionLess(a, b Region) bool {
	return a.Range.Start < b.Range.Start
}

// NewRegistry builds a registry out of the available entries of the memory
// map reported by scanFn. Entry extents are rounded inwards to whole frames,
// adjacent or overlapping entries are merged and the frames occupied by the
// kernel image in [kernelStart, kernelEnd) are excluded.
func NewRegistry(scanFn MemRegionScanner, kernelStart, kernelEnd uintptr) *Registry {
	var ranges []FrameRange
	scanFn(func(entry *multiboot.MemoryMapEntry) bool {
		// Ignore reserved regions and regions smaller than a single page
		if entry.Type != multiboot.MemAvailable || entry.Length < uint64(mm.PageSize) {
			return true
		}

		region, err := RegionFromAddresses(uintptr(entry.PhysAddress), uintptr(entry.PhysAddress+entry.Length))
		if err == nil {
			ranges = append(ranges, region.Range)
		}
		return true
	})

	reg := &Registry{regions: btree.NewG[Region](registryDegree, regionLess)}
	for _, r := range excludeRange(mergeRanges(ranges), kernelFrames(kernelStart, kernelEnd)) {
		region, _ := NewRegion(r.Start, r.End)
		reg.regions.ReplaceOrInsert(region)
	}

	return reg
}

// kernelFrames returns the frames that hold the kernel image loaded at
// [kernelStart, kernelEnd). The start is rounded down and the end rounded up
// to a frame boundary.
func kernelFrames(kernelStart, kernelEnd uintptr) FrameRange {
	return FrameRange{
		Start: mm.FrameFromAddress(kernelStart),
		End:   mm.FrameFromAddress(kernelEnd + mm.PageSize - 1),
	}
}

// mergeRanges sorts ranges by start frame and coalesces the ones that touch
// or overlap.
func mergeRanges(ranges []FrameRange) []FrameRange {
	if len(ranges) == 0 {
		return nil
	}

	sort.Slice(ranges, func(i, j int) bool { return ranges[i].Start < ranges[j].Start })

	merged := []FrameRange{ranges[0]}
	for _, r := range ranges[1:] {
		last := &merged[len(merged)-1]
		if r.Start <= last.End {
			if r.End > last.End {
				last.End = r.End
			}
			continue
		}
		merged = append(merged, r)
	}

	return merged
}

// excludeRange removes the frames in hole from each of the ranges.
func excludeRange(ranges []FrameRange, hole FrameRange) []FrameRange {
	if !hole.IsValid() {
		return ranges
	}

	out := make([]FrameRange, 0, len(ranges)+1)
	for _, r := range ranges {
		if hole.End <= r.Start || hole.Start >= r.End {
			out = append(out, r)
			continue
		}

		if hole.Start > r.Start {
			out = append(out, FrameRange{Start: r.Start, End: hole.Start})
		}
		if hole.End < r.End {
			out = append(out, FrameRange{Start: hole.End, End: r.End})
		}
	}

	return out
}

// AllocFrame reserves the lowest free frame in the registry. Exhausted
// regions are dropped from the registry.
func (reg *Registry) AllocFrame() (mm.Frame, *kernel.Error) {
	reg.lock.Acquire()
	defer reg.lock.Release()

	region, ok := reg.regions.DeleteMin()
	if !ok {
		return mm.InvalidFrame, errOutOfMemory
	}

	frame := region.Range.Start
	if next := frame + 1; next < region.Range.End {
		region.ShrinkFrom(next)
		reg.regions.ReplaceOrInsert(region)
	}

	return frame, nil
}

// TakeRegion removes the region with the lowest start frame from the
// registry and returns it. It returns false if the registry is empty.
func (reg *Registry) TakeRegion() (Region, bool) {
	reg.lock.Acquire()
	defer reg.lock.Release()

	return reg.regions.DeleteMin()
}

// Regions returns a snapshot of the registry contents in ascending start
// frame order.
func (reg *Registry) Regions() []Region {
	reg.lock.Acquire()
	defer reg.lock.Release()

	out := make([]Region, 0, reg.regions.Len())
	reg.regions.Ascend(func(r Region) bool {
		out = append(out, r)
		return true
	})
	return out
}

// FreeFrames returns the number of frames held by the registry.
func (reg *Registry) FreeFrames() uint64 {
	reg.lock.Acquire()
	defer reg.lock.Release()

	var total uint64
	reg.regions.Ascend(func(r Region) bool {
		total += r.Size
		return true
	})
	return total
}

// Len returns the number of regions in the registry.
func (reg *Registry) Len() int {
	reg.lock.Acquire()
	defer reg.lock.Release()

	return reg.regions.Len()
}

// PrintMemoryMap logs the memory map reported by scanFn together with the
// location of the kernel image.
func PrintMemoryMap(scanFn MemRegionScanner, kernelStart, kernelEnd uintptr) {
	log := kfmt.Logger("pmm")

	var totalFree mm.Size
	log.Info("system memory map:")
	scanFn(func(entry *multiboot.MemoryMapEntry) bool {
		log.Infof("\t[0x%10x - 0x%10x], size: %10d, type: %s", entry.PhysAddress, entry.PhysAddress+entry.Length, entry.Length, entry.Type)

		if entry.Type == multiboot.MemAvailable {
			totalFree += mm.Size(entry.Length)
		}
		return true
	})

	log.Infof("available memory: %dKb", uint64(totalFree/mm.Kb))
	log.Infof("kernel loaded at 0x%x - 0x%x", kernelStart, kernelEnd)
	log.Infof("size: %d bytes, reserved pages: %d",
		uint64(kernelEnd-kernelStart),
		kernelFrames(kernelStart, kernelEnd).Len(),
	)
}
