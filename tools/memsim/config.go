package main

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"kmm/kernel/kmain"
	"kmm/kernel/mm"
	"kmm/multiboot"
)

// memoryEntry is a single bootloader memory map entry.
type memoryEntry struct {
	Address uint64 `toml:"address" yaml:"address"`
	Length  uint64 `toml:"length" yaml:"length"`

	// Type is one of available, reserved, acpi or nvs.
	Type string `toml:"type" yaml:"type"`
}

type kernelConfig struct {
	Start uint64 `toml:"start" yaml:"start"`
	End   uint64 `toml:"end" yaml:"end"`
}

type heapConfig struct {
	Start uint64 `toml:"start" yaml:"start"`
	Size  uint64 `toml:"size" yaml:"size"`
}

// config describes the machine that memsim boots.
type config struct {
	LogLevel  string        `toml:"log_level" yaml:"log_level"`
	Kernel    kernelConfig  `toml:"kernel" yaml:"kernel"`
	Heap      heapConfig    `toml:"heap" yaml:"heap"`
	MemoryMap []memoryEntry `toml:"memory_map" yaml:"memory_map"`
}

var memoryTypes = map[string]multiboot.MemoryEntryType{
	"available": multiboot.MemAvailable,
	"reserved":  multiboot.MemReserved,
	"acpi":      multiboot.MemAcpiReclaimable,
	"nvs":       multiboot.MemNvs,
}

// loadConfig reads a TOML or YAML config file; the format is picked by the
// file extension.
func loadConfig(path string) (*config, error) {
	cfg := config{
		LogLevel: "info",
		Heap: heapConfig{
			Start: uint64(kmain.DefaultHeapStart),
			Size:  uint64(kmain.DefaultHeapSize),
		},
	}

	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".toml":
		md, err := toml.DecodeFile(path, &cfg)
		if err != nil {
			return nil, fmt.Errorf("decoding %s: %w", path, err)
		}
		if undecoded := md.Undecoded(); len(undecoded) != 0 {
			return nil, fmt.Errorf("decoding %s: unknown keys %v", path, undecoded)
		}
	case ".yaml", ".yml":
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(&cfg); err != nil {
			return nil, fmt.Errorf("decoding %s: %w", path, err)
		}
	default:
		return nil, fmt.Errorf("unsupported config format %q", ext)
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return &cfg, nil
}

func (c *config) validate() error {
	if _, err := logrus.ParseLevel(c.LogLevel); err != nil {
		return err
	}

	if c.Kernel.End < c.Kernel.Start {
		return fmt.Errorf("kernel end 0x%x is below kernel start 0x%x", c.Kernel.End, c.Kernel.Start)
	}

	if !mm.IsPageAligned(uintptr(c.Heap.Start)) {
		return fmt.Errorf("heap start 0x%x is not page-aligned", c.Heap.Start)
	}

	for i, entry := range c.MemoryMap {
		if _, ok := memoryTypes[entry.Type]; !ok {
			return fmt.Errorf("memory map entry %d: unknown type %q", i, entry.Type)
		}
	}

	return nil
}

// level returns the configured log level.
func (c *config) level() logrus.Level {
	level, _ := logrus.ParseLevel(c.LogLevel)
	return level
}

// entries converts the memory map to multiboot entries.
func (c *config) entries() []multiboot.MemoryMapEntry {
	out := make([]multiboot.MemoryMapEntry, 0, len(c.MemoryMap))
	for _, entry := range c.MemoryMap {
		out = append(out, multiboot.MemoryMapEntry{
			PhysAddress: entry.Address,
			Length:      entry.Length,
			Type:        memoryTypes[entry.Type],
		})
	}
	return out
}

// bootConfig encodes the memory map as a multiboot info blob and returns a
// kmain.BootConfig that reads the memory map back out of it.
func (c *config) bootConfig() kmain.BootConfig {
	multiboot.SetInfo(multiboot.BuildInfo(c.entries()))

	return kmain.BootConfig{
		Scan:        multiboot.VisitMemRegions,
		KernelStart: uintptr(c.Kernel.Start),
		KernelEnd:   uintptr(c.Kernel.End),
		HeapStart:   uintptr(c.Heap.Start),
		HeapSize:    mm.Size(c.Heap.Size),
	}
}
