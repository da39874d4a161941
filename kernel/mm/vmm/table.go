package vmm

import (
	"kmm/kernel/mm"
	"sort"
	"unsafe"
)

// Table is a page table at any of the paging levels. A table occupies exactly
// one physical frame.
type Table [entriesPerTable]Entry

// TableResolver provides access to the page table stored in a physical frame.
// It is the only way the page walker reaches page table memory.
type TableResolver interface {
	TableAt(frame mm.Frame) *Table
}

// DirectMap resolves tables through a linear mapping of all physical memory
// that starts at PhysOffset in the virtual address space.
type DirectMap struct {
	PhysOffset uintptr
}

// TableAt implements TableResolver.
func (m DirectMap) TableAt(frame mm.Frame) *Table {
	return (*Table)(unsafe.Pointer(m.PhysOffset + frame.Address()))
}

// Arena models physical memory as a set of frame-sized tables indexed by
// frame number. Tables are materialized, zeroed, the first time their frame
// is accessed. An Arena is not safe for concurrent use; AddressSpace
// serializes access to the arena it owns.
type Arena struct {
	tables map[mm.Frame]*Table
}

// NewArena returns an empty arena.
func NewArena() *Arena {
	return &Arena{tables: make(map[mm.Frame]*Table)}
}

// TableAt implements TableResolver.
func (a *Arena) TableAt(frame mm.Frame) *Table {
	table, ok := a.tables[frame]
	if !ok {
		table = new(Table)
		a.tables[frame] = table
	}
	return table
}

// Len returns the number of tables materialized in the arena.
func (a *Arena) Len() int {
	return len(a.tables)
}

// Frames returns the frames that hold a table in ascending order.
func (a *Arena) Frames() []mm.Frame {
	frames := make([]mm.Frame, 0, len(a.tables))
	for frame := range a.tables {
		frames = append(frames, frame)
	}
	sort.Slice(frames, func(i, j int) bool { return frames[i] < frames[j] })
	return frames
}
