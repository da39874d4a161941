package cpu

// MMU groups the memory-management control operations used by the paging
// code. NativeMMU executes the real privileged instructions while
// EmulatedMMU models the same register state in ordinary memory for hosted
// tools and tests.
type MMU interface {
	// ActivePDT returns the raw value of the root page table register.
	ActivePDT() uintptr

	// SwitchPDT loads the physical address of a top-level table into the
	// root page table register and flushes the TLB.
	SwitchPDT(pdtPhysAddr uintptr)

	// FlushTLBEntry invalidates any cached translation for virtAddr.
	FlushTLBEntry(virtAddr uintptr)
}

// NativeMMU implements MMU using privileged instructions. It can only be
// used when running in ring 0.
type NativeMMU struct{}

// ActivePDT implements MMU.
func (NativeMMU) ActivePDT() uintptr { return ActivePDT() }

// SwitchPDT implements MMU.
func (NativeMMU) SwitchPDT(pdtPhysAddr uintptr) { SwitchPDT(pdtPhysAddr) }

// FlushTLBEntry implements MMU.
func (NativeMMU) FlushTLBEntry(virtAddr uintptr) { FlushTLBEntry(virtAddr) }

// EmulatedMMU implements MMU on top of a plain register value.
type EmulatedMMU struct {
	// CR3 holds the emulated root page table register.
	CR3 uintptr

	// TLBFlushes counts FlushTLBEntry calls since the last SwitchPDT.
	TLBFlushes int
}

// ActivePDT implements MMU.
func (m *EmulatedMMU) ActivePDT() uintptr { return m.CR3 }

// SwitchPDT implements MMU.
func (m *EmulatedMMU) SwitchPDT(pdtPhysAddr uintptr) {
	m.CR3 = pdtPhysAddr
	m.TLBFlushes = 0
}

// FlushTLBEntry implements MMU.
func (m *EmulatedMMU) FlushTLBEntry(_ uintptr) { m.TLBFlushes++ }
