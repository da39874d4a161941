package pmm

import (
	"fmt"
	"kmm/kernel"
	"kmm/kernel/kfmt"
	"kmm/kernel/mm"
	"math/bits"
)

// bitsPerCount is the number of bits in a region size and therefore the
// number of blocks a region can be decomposed into.
const bitsPerCount = 64

// FrameRange describes the half-open range of frames [Start, End).
type FrameRange struct {
	Start mm.Frame
	End   mm.Frame
}

// InvalidFrameRange is the sentinel that marks an unused decomposition slot.
var InvalidFrameRange = FrameRange{}

// Len returns the number of frames in the range.
func (r FrameRange) Len() uint64 {
	if r.End <= r.Start {
		return 0
	}
	return uint64(r.End - r.Start)
}

// IsValid returns true if the range contains at least one frame.
func (r FrameRange) IsValid() bool {
	return r.End > r.Start
}

// IsNaturallyAligned returns true if the range holds a power-of-two number
// of frames and its start frame is a multiple of that number.
func (r FrameRange) IsNaturallyAligned() bool {
	n := r.Len()
	return n != 0 && n&(n-1) == 0 && uint64(r.Start)&(n-1) == 0
}

// String implements fmt.Stringer for FrameRange.
func (r FrameRange) String() string {
	return fmt.Sprintf("[%d, %d)", r.Start, r.End)
}

// Region describes a block of contiguous free frames. Size always equals the
// number of frames in Range.
type Region struct {
	Range FrameRange
	Size  uint64
}

// EmptyRegion is the region with no frames.
var EmptyRegion = Region{}

// NewRegion returns the region that spans the frames in [start, end).
// Degenerate or inverted ranges yield EmptyRegion and an error.
func NewRegion(start, end mm.Frame) (Region, *kernel.Error) {
	if start >= end {
		return EmptyRegion, errInvalidRegionRange
	}

	return Region{
		Range: FrameRange{Start: start, End: end},
		Size:  uint64(end - start),
	}, nil
}

// RegionFromAddresses returns the region of whole frames contained in the
// physical address range [startAddr, endAddr). The start address is rounded
// up and the end address rounded down to a frame boundary.
func RegionFromAddresses(startAddr, endAddr uintptr) (Region, *kernel.Error) {
	pageSizeMinus1 := mm.PageSize - 1
	if startAddr > ^uintptr(0)-pageSizeMinus1 {
		return EmptyRegion, errInvalidRegionRange
	}

	return NewRegion(
		mm.FrameFromAddress(startAddr+pageSizeMinus1),
		mm.FrameFromAddress(endAddr),
	)
}

// IsEmpty returns true if the region holds no frames.
func (r Region) IsEmpty() bool {
	return r == EmptyRegion
}

// ShrinkFrom marks the frames in front of frame as consumed. A frame past
// the region end empties the region. A frame strictly inside the region
// becomes its new start. Any other frame, including the region end itself,
// leaves the region unchanged.
func (r *Region) ShrinkFrom(frame mm.Frame) {
	switch {
	case frame > r.Range.End:
		*r = EmptyRegion
	case r.Range.Start < frame && frame < r.Range.End:
		r.Range.Start = frame
		r.Size = uint64(r.Range.End - frame)
	}
}

// Decompose splits the region into blocks whose sizes are powers of two.
// Slot i of the result holds a block of 2^i frames if bit i of the region
// size is set and InvalidFrameRange otherwise. Blocks are laid out back to
// back starting at the region start, smallest first, so together they cover
// the region exactly.
//
// Block starts are relative to the region start; a block is not necessarily
// aligned to its own size (see FrameRange.IsNaturallyAligned). A region whose
// Size does not match its range yields no blocks.
func (r Region) Decompose() [bitsPerCount]FrameRange {
	var blocks [bitsPerCount]FrameRange
	if r.IsEmpty() || r.Size != r.Range.Len() {
		return blocks
	}

	next := r.Range.Start
	for size := r.Size; size != 0; size &= size - 1 {
		order := bits.TrailingZeros64(size)
		blocks[order] = FrameRange{Start: next, End: next + mm.Frame(1)<<uint(order)}
		next = blocks[order].End
	}

	kfmt.Logger("pmm").Tracef("decomposed region %s into %v", r.Range, blocks)
	return blocks
}
