package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/google/subcommands"

	"kmm/kernel/kfmt"
	"kmm/kernel/kmain"
	"kmm/kernel/mm"
	"kmm/kernel/mm/pmm"
	"kmm/kernel/mm/vmm"
	"kmm/multiboot"
)

// configFlags holds the flags shared by every memsim command.
type configFlags struct {
	path string
}

func (c *configFlags) setFlags(f *flag.FlagSet) {
	f.StringVar(&c.path, "config", "", "path to a TOML or YAML machine description.")
}

// load reads the config file and applies its log level.
func (c *configFlags) load() (*config, error) {
	if c.path == "" {
		return nil, errors.New("missing -config flag")
	}

	cfg, err := loadConfig(c.path)
	if err != nil {
		return nil, err
	}

	kfmt.SetLevel(cfg.level())
	return cfg, nil
}

// execute loads the config and runs fn, reporting errors on stderr.
func (c *configFlags) execute(fn func(*config, io.Writer) error) subcommands.ExitStatus {
	cfg, err := c.load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "[memsim] error: %v\n", err)
		return subcommands.ExitUsageError
	}

	if err := fn(cfg, os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "[memsim] error: %v\n", err)
		return subcommands.ExitFailure
	}
	return subcommands.ExitSuccess
}

// Regions implements subcommands.Command for the "regions" command.
type Regions struct {
	configFlags
}

// Name implements subcommands.Command.
func (*Regions) Name() string {
	return "regions"
}

// Synopsis implements subcommands.Command.
func (*Regions) Synopsis() string {
	return "lists the free regions and their power-of-two blocks"
}

// Usage implements subcommands.Command.
func (*Regions) Usage() string {
	return "regions -config <file>\n"
}

// SetFlags implements subcommands.Command.
func (r *Regions) SetFlags(f *flag.FlagSet) {
	r.setFlags(f)
}

// Execute implements subcommands.Command.Execute.
func (r *Regions) Execute(_ context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	return r.execute(printRegions)
}

func printRegions(cfg *config, w io.Writer) error {
	bootCfg := cfg.bootConfig()
	defer multiboot.SetInfoPtr(0)

	reg := pmm.NewRegistry(bootCfg.Scan, bootCfg.KernelStart, bootCfg.KernelEnd)
	for _, region := range reg.Regions() {
		fmt.Fprintf(w, "region %s: %d frames\n", region.Range, region.Size)
		for order, block := range region.Decompose() {
			if !block.IsValid() {
				continue
			}
			fmt.Fprintf(w, "\t2^%-2d %s aligned: %t\n", order, block, block.IsNaturallyAligned())
		}
	}
	fmt.Fprintf(w, "free frames: %d\n", reg.FreeFrames())
	return nil
}

// FreeLists implements subcommands.Command for the "freelists" command.
type FreeLists struct {
	configFlags
}

// Name implements subcommands.Command.
func (*FreeLists) Name() string {
	return "freelists"
}

// Synopsis implements subcommands.Command.
func (*FreeLists) Synopsis() string {
	return "shows the size buckets of the block allocator"
}

// Usage implements subcommands.Command.
func (*FreeLists) Usage() string {
	return "freelists -config <file>\n"
}

// SetFlags implements subcommands.Command.
func (l *FreeLists) SetFlags(f *flag.FlagSet) {
	l.setFlags(f)
}

// Execute implements subcommands.Command.Execute.
func (l *FreeLists) Execute(_ context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	return l.execute(printFreeLists)
}

func printFreeLists(cfg *config, w io.Writer) error {
	bootCfg := cfg.bootConfig()
	defer multiboot.SetInfoPtr(0)

	reg := pmm.NewRegistry(bootCfg.Scan, bootCfg.KernelStart, bootCfg.KernelEnd)
	lists := pmm.BuildFreeLists(reg.Regions())
	for order, blocks := range lists {
		if len(blocks) == 0 {
			continue
		}
		fmt.Fprintf(w, "2^%-2d %d blocks: %v\n", order, len(blocks), blocks)
	}
	fmt.Fprintf(w, "free frames: %d\n", lists.FreeFrames())
	return nil
}

// Boot implements subcommands.Command for the "boot" command.
type Boot struct {
	configFlags
	pages int
}

// Name implements subcommands.Command.
func (*Boot) Name() string {
	return "boot"
}

// Synopsis implements subcommands.Command.
func (*Boot) Synopsis() string {
	return "boots the memory managers and maps the heap"
}

// Usage implements subcommands.Command.
func (*Boot) Usage() string {
	return "boot -config <file> [-pages n]\n"
}

// SetFlags implements subcommands.Command.
func (b *Boot) SetFlags(f *flag.FlagSet) {
	b.setFlags(f)
	f.IntVar(&b.pages, "pages", 8, "number of heap pages whose translation is printed.")
}

// Execute implements subcommands.Command.Execute.
func (b *Boot) Execute(_ context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	return b.execute(b.run)
}

func (b *Boot) run(cfg *config, w io.Writer) error {
	bootCfg := cfg.bootConfig()
	defer multiboot.SetInfoPtr(0)

	arena := vmm.NewArena()
	bootCfg.Tables = arena

	sys, err := kmain.Boot(bootCfg)
	if err != nil {
		return err
	}

	fmt.Fprintf(w, "root table: frame %d (0x%x)\n", sys.AddressSpace.Root(), sys.AddressSpace.Root().Address())
	fmt.Fprintf(w, "page tables: %d %v\n", arena.Len(), arena.Frames())
	fmt.Fprintf(w, "free frames: %d\n", sys.Allocator.FreeFrames())

	pageCount := int(sys.HeapSize.Pages())
	if b.pages < pageCount {
		pageCount = b.pages
	}
	for i := 0; i < pageCount; i++ {
		virtAddr := sys.HeapStart + uintptr(i)*mm.PageSize
		pte, err := sys.AddressSpace.Lookup(virtAddr)
		if err != nil {
			return err
		}
		fmt.Fprintf(w, "0x%x -> %s\n", virtAddr, pte)
	}
	return nil
}
