package vmm

import (
	"bytes"
	"kmm/kernel"
	"kmm/kernel/kfmt"
	"kmm/kernel/mm"
	"testing"
)

var errTestOutOfMemory = &kernel.Error{Module: "test", Message: "out of memory"}

// haltPanic wraps the error passed to the kfmt halt handler so tests can tell
// kernel panics apart from ordinary Go panics.
type haltPanic struct {
	err *kernel.Error
}

// expectKernelPanic runs fn and returns the error that was passed to
// kfmt.Panic or nil if fn returned normally.
func expectKernelPanic(t *testing.T, fn func()) (err *kernel.Error) {
	t.Helper()

	var out bytes.Buffer
	kfmt.SetOutputSink(&out)
	kfmt.SetHaltHandler(func(e *kernel.Error) { panic(haltPanic{e}) })

	defer func() {
		kfmt.SetHaltHandler(nil)
		kfmt.SetOutputSink(nil)

		if r := recover(); r != nil {
			hp, ok := r.(haltPanic)
			if !ok {
				panic(r)
			}
			err = hp.err
		}
	}()

	fn()
	return nil
}

// seqAllocator hands out consecutive frames starting at next. If limit is
// positive, allocations past the limit fail.
type seqAllocator struct {
	next  mm.Frame
	limit int
	calls int
}

func (a *seqAllocator) AllocFrame() (mm.Frame, *kernel.Error) {
	if a.limit > 0 && a.calls >= a.limit {
		return mm.InvalidFrame, errTestOutOfMemory
	}

	a.calls++
	frame := a.next
	a.next++
	return frame, nil
}

// listAllocator hands out the frames in its list in order.
type listAllocator struct {
	frames []mm.Frame
}

func (a *listAllocator) AllocFrame() (mm.Frame, *kernel.Error) {
	if len(a.frames) == 0 {
		return mm.InvalidFrame, errTestOutOfMemory
	}

	frame := a.frames[0]
	a.frames = a.frames[1:]
	return frame, nil
}

type mapCall struct {
	Page  mm.Page
	Frame mm.Frame
	Flags EntryFlag
}

// recordingMapper records Map calls instead of touching any page tables.
type recordingMapper struct {
	calls  []mapCall
	failAt int
	err    *kernel.Error
}

func (m *recordingMapper) Map(page mm.Page, frame mm.Frame, _ mm.FrameAllocator, flags EntryFlag) *kernel.Error {
	if m.err != nil && len(m.calls) == m.failAt {
		return m.err
	}

	m.calls = append(m.calls, mapCall{Page: page, Frame: frame, Flags: flags})
	return nil
}
