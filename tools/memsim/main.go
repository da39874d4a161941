// Command memsim boots the kernel memory managers against a memory map
// described in a config file and dumps their state.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/google/subcommands"

	"kmm/kernel"
	"kmm/kernel/kfmt"
)

func main() {
	subcommands.Register(subcommands.HelpCommand(), "")
	subcommands.Register(subcommands.FlagsCommand(), "")
	subcommands.Register(new(Regions), "")
	subcommands.Register(new(FreeLists), "")
	subcommands.Register(new(Boot), "")

	flag.Parse()

	kfmt.SetOutputSink(os.Stderr)
	kfmt.SetHaltHandler(func(err *kernel.Error) {
		fmt.Fprintf(os.Stderr, "[memsim] halted: %s\n", err.Error())
		os.Exit(2)
	})

	os.Exit(int(subcommands.Execute(context.Background())))
}
