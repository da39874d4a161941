package mm

import (
	"kmm/kernel"
	"testing"
)

func TestFrameMethods(t *testing.T) {
	for frameIndex := uint64(0); frameIndex < 128; frameIndex++ {
		frame := Frame(frameIndex)

		if !frame.Valid() {
			t.Errorf("expected frame %d to be valid", frameIndex)
		}

		if exp, got := uintptr(frameIndex<<PageShift), frame.Address(); got != exp {
			t.Errorf("expected frame (%d, index: %d) call to Address() to return %x; got %x", frame, frameIndex, exp, got)
		}
	}

	invalidFrame := InvalidFrame
	if invalidFrame.Valid() {
		t.Error("expected InvalidFrame.Valid() to return false")
	}
}

func TestFrameFromAddress(t *testing.T) {
	specs := []struct {
		input    uintptr
		expFrame Frame
	}{
		{0, Frame(0)},
		{4095, Frame(0)},
		{4096, Frame(1)},
		{4123, Frame(1)},
	}

	for specIndex, spec := range specs {
		if got := FrameFromAddress(spec.input); got != spec.expFrame {
			t.Errorf("[spec %d] expected returned frame to be %v; got %v", specIndex, spec.expFrame, got)
		}
	}
}

func TestIsPageAligned(t *testing.T) {
	specs := []struct {
		input uintptr
		exp   bool
	}{
		{0, true},
		{1, false},
		{4095, false},
		{4096, true},
		{0x1000 * 42, true},
		{0x1000*42 + 8, false},
	}

	for specIndex, spec := range specs {
		if got := IsPageAligned(spec.input); got != spec.exp {
			t.Errorf("[spec %d] expected IsPageAligned(%x) to return %t; got %t", specIndex, spec.input, spec.exp, got)
		}
	}
}

func TestFrameAllocatorFn(t *testing.T) {
	var allocCalled bool
	var alloc FrameAllocator = FrameAllocatorFn(func() (Frame, *kernel.Error) {
		allocCalled = true
		return FrameFromAddress(0xbadf00), nil
	})

	frame, err := alloc.AllocFrame()
	if err != nil {
		t.Fatal(err)
	}

	if !allocCalled {
		t.Fatal("expected wrapped function to be invoked by AllocFrame")
	}

	if exp := FrameFromAddress(0xbadf00); frame != exp {
		t.Fatalf("expected AllocFrame to return frame %d; got %d", exp, frame)
	}
}

func TestPageMethods(t *testing.T) {
	for pageIndex := uint64(0); pageIndex < 128; pageIndex++ {
		page := Page(pageIndex)

		if exp, got := uintptr(pageIndex<<PageShift), page.Address(); got != exp {
			t.Errorf("expected page (%d, index: %d) call to Address() to return %x; got %x", page, pageIndex, exp, got)
		}
	}
}

func TestPageFromAddress(t *testing.T) {
	specs := []struct {
		input   uintptr
		expPage Page
	}{
		{0, Page(0)},
		{4095, Page(0)},
		{4096, Page(1)},
		{4123, Page(1)},
	}

	for specIndex, spec := range specs {
		if got := PageFromAddress(spec.input); got != spec.expPage {
			t.Errorf("[spec %d] expected returned page to be %v; got %v", specIndex, spec.expPage, got)
		}
	}
}

func TestSizePages(t *testing.T) {
	specs := []struct {
		size Size
		exp  uint64
	}{
		{0, 0},
		{1, 1},
		{4096, 1},
		{4097, 2},
		{8192, 2},
		{Mb, 256},
	}

	for specIndex, spec := range specs {
		if got := spec.size.Pages(); got != spec.exp {
			t.Errorf("[spec %d] expected Size(%d).Pages() to return %d; got %d", specIndex, spec.size, spec.exp, got)
		}
	}
}
