package kfmt

import (
	"bytes"
	"kmm/kernel"
	"kmm/kernel/cpu"
)

var (
	// haltFn is invoked by Panic after reporting the error. It defaults to
	// halting the CPU and can be replaced via SetHaltHandler.
	haltFn = haltCPU

	errRuntimePanic = &kernel.Error{Module: "rt", Message: "unknown cause"}
)

func haltCPU(_ *kernel.Error) {
	cpu.Halt()
}

// SetHaltHandler registers the function that Panic invokes once the error has
// been reported. Hosted tools use it to exit the process and tests use it to
// turn kernel panics into recoverable Go panics. Passing nil restores the
// default handler which halts the CPU.
func SetHaltHandler(fn func(*kernel.Error)) {
	if fn == nil {
		fn = haltCPU
	}
	haltFn = fn
}

// Panic outputs the supplied error (if not nil) and halts the CPU. Calls to
// Panic are not expected to return.
func Panic(e interface{}) {
	var err *kernel.Error

	switch t := e.(type) {
	case *kernel.Error:
		err = t
	case string:
		err = &kernel.Error{Module: errRuntimePanic.Module, Message: t}
	case error:
		err = &kernel.Error{Module: errRuntimePanic.Module, Message: t.Error()}
	}

	var banner bytes.Buffer
	banner.WriteString("\n-----------------------------------\n")
	if err != nil {
		banner.WriteString("[" + err.Module + "] unrecoverable error: " + err.Message + "\n")
	}
	banner.WriteString("*** kernel panic: system halted ***")
	banner.WriteString("\n-----------------------------------\n")
	_, _ = logger.Out.Write(banner.Bytes())

	haltFn(err)
}
