// Package cpu is the hardware boundary of the memory-management core. It
// exposes the handful of privileged instructions the paging code relies on.
// The instructions fault when executed outside ring 0, so the paging code
// reaches them through the MMU interface which tests and hosted tools satisfy
// with EmulatedMMU.
package cpu

// Halt stops instruction execution.
func Halt()

// FlushTLBEntry flushes a TLB entry for a particular virtual address.
func FlushTLBEntry(virtAddr uintptr)

// SwitchPDT sets the root page table directory to point to the specified
// physical address and flushes the TLB.
func SwitchPDT(pdtPhysAddr uintptr)

// ActivePDT returns the physical address of the currently active top-level
// page table, as stored in the CR3 register. The read has no side-effects.
func ActivePDT() uintptr

// RootTableFrameMask selects the bits of a CR3 value that hold the physical
// address of the top-level table. The low 12 bits carry PCID/caching control
// bits and bits 52-63 are reserved.
const RootTableFrameMask = uintptr(0x000ffffffffff000)

// RootTableAddress strips the control bits from a raw CR3 value and returns
// the physical address of the top-level table.
func RootTableAddress(cr3 uintptr) uintptr {
	return cr3 & RootTableFrameMask
}
