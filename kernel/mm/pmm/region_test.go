package pmm

import (
	"kmm/kernel/mm"
	"math/bits"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestFrameRange(t *testing.T) {
	specs := []struct {
		input          FrameRange
		expLen         uint64
		expValid       bool
		expAligned     bool
		expDescription string
	}{
		{InvalidFrameRange, 0, false, false, "[0, 0)"},
		{FrameRange{7, 3}, 0, false, false, "[7, 3)"},
		{FrameRange{0, 1}, 1, true, true, "[0, 1)"},
		{FrameRange{1, 3}, 2, true, false, "[1, 3)"},
		{FrameRange{4, 8}, 4, true, true, "[4, 8)"},
		{FrameRange{8, 14}, 6, true, false, "[8, 14)"},
	}

	for specIndex, spec := range specs {
		if got := spec.input.Len(); got != spec.expLen {
			t.Errorf("[spec %d] expected Len() to return %d; got %d", specIndex, spec.expLen, got)
		}
		if got := spec.input.IsValid(); got != spec.expValid {
			t.Errorf("[spec %d] expected IsValid() to return %t; got %t", specIndex, spec.expValid, got)
		}
		if got := spec.input.IsNaturallyAligned(); got != spec.expAligned {
			t.Errorf("[spec %d] expected IsNaturallyAligned() to return %t; got %t", specIndex, spec.expAligned, got)
		}
		if got := spec.input.String(); got != spec.expDescription {
			t.Errorf("[spec %d] expected String() to return %q; got %q", specIndex, spec.expDescription, got)
		}
	}
}

func TestNewRegion(t *testing.T) {
	specs := []struct {
		start, end mm.Frame
		exp        Region
		expErr     bool
	}{
		{0, 7, Region{Range: FrameRange{0, 7}, Size: 7}, false},
		{256, 32736, Region{Range: FrameRange{256, 32736}, Size: 32480}, false},
		{5, 5, EmptyRegion, true},
		{7, 3, EmptyRegion, true},
	}

	for specIndex, spec := range specs {
		got, err := NewRegion(spec.start, spec.end)
		if spec.expErr && err != errInvalidRegionRange {
			t.Errorf("[spec %d] expected errInvalidRegionRange; got %v", specIndex, err)
		} else if !spec.expErr && err != nil {
			t.Errorf("[spec %d] unexpected error: %v", specIndex, err)
		}

		if got != spec.exp {
			t.Errorf("[spec %d] expected region %+v; got %+v", specIndex, spec.exp, got)
		}
	}
}

func TestRegionFromAddresses(t *testing.T) {
	specs := []struct {
		startAddr, endAddr uintptr
		exp                FrameRange
		expErr             bool
	}{
		{0x0, 0x9fc00, FrameRange{0, 159}, false},
		{0x100000, 0x7fe0000, FrameRange{256, 32736}, false},
		{0x1001, 0x5000, FrameRange{2, 5}, false},
		{0x1000, 0x1fff, InvalidFrameRange, true},
		{^uintptr(0) - 10, ^uintptr(0), InvalidFrameRange, true},
	}

	for specIndex, spec := range specs {
		got, err := RegionFromAddresses(spec.startAddr, spec.endAddr)
		if (err != nil) != spec.expErr {
			t.Errorf("[spec %d] expected error: %t; got %v", specIndex, spec.expErr, err)
			continue
		}

		if got.Range != spec.exp {
			t.Errorf("[spec %d] expected range %s; got %s", specIndex, spec.exp, got.Range)
		}

		if got.Size != spec.exp.Len() {
			t.Errorf("[spec %d] expected size %d; got %d", specIndex, spec.exp.Len(), got.Size)
		}
	}
}

func TestShrinkFrom(t *testing.T) {
	region, _ := NewRegion(10, 20)

	specs := []struct {
		frame mm.Frame
		exp   Region
	}{
		// frame past the region end
		{25, EmptyRegion},
		{21, EmptyRegion},
		// frame inside the region
		{15, Region{Range: FrameRange{15, 20}, Size: 5}},
		{19, Region{Range: FrameRange{19, 20}, Size: 1}},
		// frames at the region boundaries or before it
		{20, region},
		{10, region},
		{5, region},
	}

	for specIndex, spec := range specs {
		got := region
		got.ShrinkFrom(spec.frame)
		if got != spec.exp {
			t.Errorf("[spec %d] expected ShrinkFrom(%d) to yield %+v; got %+v", specIndex, spec.frame, spec.exp, got)
		}

		// Applying the same frame twice has no further effect
		again := got
		again.ShrinkFrom(spec.frame)
		if again != got {
			t.Errorf("[spec %d] expected ShrinkFrom(%d) to be idempotent; got %+v after second call", specIndex, spec.frame, again)
		}
	}

	t.Run("empty region", func(t *testing.T) {
		got := EmptyRegion
		got.ShrinkFrom(0)
		if !got.IsEmpty() {
			t.Fatalf("expected region to remain empty; got %+v", got)
		}
	})
}

func TestDecompose(t *testing.T) {
	region, _ := NewRegion(0, 7)

	var exp [bitsPerCount]FrameRange
	exp[0] = FrameRange{0, 1}
	exp[1] = FrameRange{1, 3}
	exp[2] = FrameRange{3, 7}

	if diff := cmp.Diff(exp, region.Decompose()); diff != "" {
		t.Fatalf("unexpected decomposition (-want +got):\n%s", diff)
	}
}

func TestDecomposeEmptyRegion(t *testing.T) {
	for i, block := range EmptyRegion.Decompose() {
		if block != InvalidFrameRange {
			t.Errorf("expected slot %d to hold the invalid range; got %s", i, block)
		}
	}
}

func TestDecomposeInconsistentRegion(t *testing.T) {
	specs := []Region{
		{Range: FrameRange{0, 7}, Size: 5},
		{Range: FrameRange{0, 7}, Size: 9},
		{Range: FrameRange{7, 3}, Size: 4},
		{Range: InvalidFrameRange, Size: 3},
	}

	for specIndex, region := range specs {
		for i, block := range region.Decompose() {
			if block != InvalidFrameRange {
				t.Errorf("[spec %d] expected slot %d to hold the invalid range; got %s", specIndex, i, block)
			}
		}
	}
}

func TestDecomposeCoversRegion(t *testing.T) {
	specs := []Region{
		{Range: FrameRange{0, 1}, Size: 1},
		{Range: FrameRange{256, 32736}, Size: 32480},
		{Range: FrameRange{1, 1 + 0xffff}, Size: 0xffff},
		{Range: FrameRange{3, 3 + 1<<40 + 5}, Size: 1<<40 + 5},
	}

	for specIndex, region := range specs {
		var (
			blocks = region.Decompose()
			next   = region.Range.Start
			total  uint64
		)

		for order, block := range blocks {
			if region.Size&(1<<uint(order)) == 0 {
				if block != InvalidFrameRange {
					t.Errorf("[spec %d] expected slot %d to be unused; got %s", specIndex, order, block)
				}
				continue
			}

			if exp := uint64(1) << uint(order); block.Len() != exp {
				t.Errorf("[spec %d] expected slot %d to hold %d frames; got %d", specIndex, order, exp, block.Len())
			}

			if block.Start != next {
				t.Errorf("[spec %d] expected slot %d to start at frame %d; got %d", specIndex, order, next, block.Start)
			}

			next = block.End
			total += block.Len()
		}

		if total != region.Size {
			t.Errorf("[spec %d] expected blocks to hold %d frames; got %d", specIndex, region.Size, total)
		}

		if next != region.Range.End {
			t.Errorf("[spec %d] expected last block to end at frame %d; got %d", specIndex, region.Range.End, next)
		}

		var used int
		for _, block := range blocks {
			if block.IsValid() {
				used++
			}
		}
		if exp := bits.OnesCount64(region.Size); used != exp {
			t.Errorf("[spec %d] expected %d blocks; got %d", specIndex, exp, used)
		}
	}
}
