package mm

// Size represents a memory block size in bytes.
type Size uint64

// Common memory block sizes.
const (
	Byte Size = 1
	Kb        = 1024 * Byte
	Mb        = 1024 * Kb
	Gb        = 1024 * Mb
)

// Pages returns the number of pages needed to hold a block of this size,
// rounding up to the nearest page boundary.
func (s Size) Pages() uint64 {
	pages := uint64(s) >> PageShift
	if uint64(s)&uint64(PageSize-1) != 0 {
		pages++
	}
	return pages
}
