package pmm

import (
	"kmm/kernel"
	"kmm/kernel/mm"
	"kmm/kernel/sync"
)

// FreeLists buckets free blocks by size. Bucket i holds blocks of exactly
// 2^i frames.
type FreeLists [bitsPerCount][]FrameRange

// BuildFreeLists decomposes each region and files the resulting blocks
// under the bucket that matches their size.
func BuildFreeLists(regions []Region) FreeLists {
	var lists FreeLists
	for _, region := range regions {
		lists.add(region)
	}
	return lists
}

func (l *FreeLists) add(region Region) {
	for order, block := range region.Decompose() {
		if block.IsValid() {
			l[order] = append(l[order], block)
		}
	}
}

// FreeFrames returns the number of frames held across all buckets.
func (l *FreeLists) FreeFrames() uint64 {
	var total uint64
	for order, blocks := range l {
		total += uint64(len(blocks)) << uint(order)
	}
	return total
}

// BlockAllocator is a frame allocator that serves frames out of size
// bucketed free lists. It always draws from the smallest available block so
// that large blocks stay intact for as long as possible.
type BlockAllocator struct {
	lock  sync.Spinlock
	lists FreeLists
}

// NewBlockAllocator returns an allocator that owns the frames of regions.
func NewBlockAllocator(regions []Region) *BlockAllocator {
	return &BlockAllocator{lists: BuildFreeLists(regions)}
}

// AllocFrame implements mm.FrameAllocator. It removes the first block of the
// smallest non-empty bucket, hands out the block's first frame and files the
// rest of the block back into the lists.
func (a *BlockAllocator) AllocFrame() (mm.Frame, *kernel.Error) {
	a.lock.Acquire()
	defer a.lock.Release()

	for order := range a.lists {
		if len(a.lists[order]) == 0 {
			continue
		}

		block := a.lists[order][0]
		a.lists[order] = a.lists[order][1:]

		if rest, err := NewRegion(block.Start+1, block.End); err == nil {
			a.lists.add(rest)
		}

		return block.Start, nil
	}

	return mm.InvalidFrame, errOutOfMemory
}

// FreeFrames returns the number of frames that can still be allocated.
func (a *BlockAllocator) FreeFrames() uint64 {
	a.lock.Acquire()
	defer a.lock.Release()

	return a.lists.FreeFrames()
}

// FreeLists returns a copy of the allocator's free lists.
func (a *BlockAllocator) FreeLists() FreeLists {
	a.lock.Acquire()
	defer a.lock.Release()

	var out FreeLists
	for order, blocks := range a.lists {
		out[order] = append([]FrameRange(nil), blocks...)
	}
	return out
}
