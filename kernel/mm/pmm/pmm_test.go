package pmm

import "kmm/multiboot"

// qemuMemoryMap is the memory map reported by grub when running under qemu
// with 128M of RAM. Its available entries round to frames [0, 159) and
// [256, 32736).
var qemuMemoryMap = []multiboot.MemoryMapEntry{
	{PhysAddress: 0, Length: 654336, Type: multiboot.MemAvailable},
	{PhysAddress: 654336, Length: 1024, Type: multiboot.MemReserved},
	{PhysAddress: 983040, Length: 65536, Type: multiboot.MemReserved},
	{PhysAddress: 1048576, Length: 133038080, Type: multiboot.MemAvailable},
	{PhysAddress: 134086656, Length: 131072, Type: multiboot.MemReserved},
	{PhysAddress: 4294705152, Length: 262144, Type: multiboot.MemReserved},
}

// scannerFor returns a MemRegionScanner that reports a copy of entries.
func scannerFor(entries []multiboot.MemoryMapEntry) MemRegionScanner {
	return func(visitor multiboot.MemRegionVisitor) {
		for _, entry := range entries {
			entry := entry
			if !visitor(&entry) {
				return
			}
		}
	}
}
