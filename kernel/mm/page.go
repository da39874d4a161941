// Package mm defines the physical frame and virtual page abstractions shared
// by the physical (pmm) and virtual (vmm) memory managers.
package mm

import (
	"kmm/kernel"
	"math"
)

// Frame describes a physical memory page index.
type Frame uintptr

const (
	// InvalidFrame is returned by page allocators when
	// they fail to reserve the requested frame.
	InvalidFrame = Frame(math.MaxUint64)
)

// Valid returns true if this is a valid frame.
func (f Frame) Valid() bool {
	return f != InvalidFrame
}

// Address returns the physical memory address pointed to by this Frame.
func (f Frame) Address() uintptr {
	return uintptr(f << PageShift)
}

// FrameFromAddress returns a Frame that corresponds to
// the given physical address. This function can handle
// both page-aligned and not aligned addresses. in the
// latter case, the input address will be rounded down
// to the frame that contains it.
func FrameFromAddress(physAddr uintptr) Frame {
	return Frame((physAddr & ^(PageSize - 1)) >> PageShift)
}

// IsPageAligned returns true if addr lies on a page/frame boundary.
func IsPageAligned(addr uintptr) bool {
	return addr&(PageSize-1) == 0
}

// Page describes a virtual memory page index.
type Page uintptr

// Address returns the virtual memory address pointed to by this Page.
func (p Page) Address() uintptr {
	return uintptr(p << PageShift)
}

// PageFromAddress returns a Page that corresponds to the given virtual
// address. This function can handle both page-aligned and not aligned virtual
// addresses. in the latter case, the input address will be rounded down to the
// page that contains it.
func PageFromAddress(virtAddr uintptr) Page {
	return Page((virtAddr & ^(PageSize - 1)) >> PageShift)
}

// FrameAllocator is implemented by physical frame allocators. A successful
// call to AllocFrame transfers exclusive ownership of the returned frame to
// the caller. Allocators report exhaustion by returning InvalidFrame together
// with an error.
type FrameAllocator interface {
	AllocFrame() (Frame, *kernel.Error)
}

// FrameAllocatorFn adapts an ordinary function to the FrameAllocator
// interface.
type FrameAllocatorFn func() (Frame, *kernel.Error)

// AllocFrame implements FrameAllocator.
func (fn FrameAllocatorFn) AllocFrame() (Frame, *kernel.Error) {
	return fn()
}
