package buffer

import "testing"

func TestMarkClipsToRegion(t *testing.T) {
	tr := NewTracker(10, 10, 100, 100)
	tr.Mark(0, 0, 20, 20) // partially outside region
	bands := tr.Bands()
	if len(bands) != 1 {
		t.Fatalf("len(bands) = %d, want 1", len(bands))
	}
	if bands[0].X != 10 || bands[0].Y != 10 {
		t.Fatalf("band not clipped to region origin: %+v", bands[0])
	}
}

func TestMarkOutsideRegionIsDropped(t *testing.T) {
	tr := NewTracker(0, 0, 10, 10)
	tr.Mark(100, 100, 5, 5)
	if tr.Dirty() {
		t.Fatal("expected no dirty bands for a rect entirely outside the region")
	}
}

func TestMarkMergesOverlappingBands(t *testing.T) {
	tr := NewTracker(0, 0, 100, 100)
	tr.Mark(0, 0, 50, 10)
	tr.Mark(0, 5, 50, 10) // overlaps vertically with the first
	bands := tr.Bands()
	if len(bands) != 1 {
		t.Fatalf("len(bands) = %d, want 1 merged band", len(bands))
	}
	if bands[0].Y != 0 || bands[0].H != 15 {
		t.Fatalf("unexpected merged band: %+v", bands[0])
	}
}

func TestMarkKeepsDisjointBandsSeparate(t *testing.T) {
	tr := NewTracker(0, 0, 100, 100)
	tr.Mark(0, 0, 10, 10)
	tr.Mark(0, 50, 10, 10)
	bands := tr.Bands()
	if len(bands) != 2 {
		t.Fatalf("len(bands) = %d, want 2", len(bands))
	}
	if bands[0].Y > bands[1].Y {
		t.Fatal("bands not sorted by Y ascending")
	}
}

func TestMarkOverflowMergesTailIntoLastBand(t *testing.T) {
	tr := NewTracker(0, 0, 1000, 1000)
	for i := 0; i < MaxBands+5; i++ {
		tr.Mark(0, i*2, 10, 1)
	}
	bands := tr.Bands()
	if len(bands) != MaxBands {
		t.Fatalf("len(bands) = %d, want %d (overflow folded into the last band)", len(bands), MaxBands)
	}
	last := bands[MaxBands-1]
	if last.Y != (MaxBands-1)*2 || last.bottom() != (MaxBands+5-1)*2+1 {
		t.Fatalf("last band does not cover the merged tail: %+v", last)
	}
	if bands[0].H != 1 {
		t.Fatalf("earlier bands should be untouched by the tail merge: %+v", bands[0])
	}
}

func TestMarkExcludesPictureRegionAndKeepsStripes(t *testing.T) {
	tr := NewTracker(0, 0, 100, 100)
	tr.SetPictureRegion(0, 20, 100, 40) // picture occupies y in [20, 60)

	tr.Mark(0, 0, 100, 100) // full-width mark spanning above, inside, and below the picture

	bands := tr.Bands()
	if len(bands) != 2 {
		t.Fatalf("len(bands) = %d, want 2 (stripe above and stripe below the picture), got %+v", len(bands), bands)
	}
	above, below := bands[0], bands[1]
	if above.Y != 0 || above.bottom() != 20 {
		t.Fatalf("stripe above picture wrong: %+v", above)
	}
	if below.Y != 60 || below.bottom() != 100 {
		t.Fatalf("stripe below picture wrong: %+v", below)
	}
}

func TestMarkInsidePictureRegionIsDropped(t *testing.T) {
	tr := NewTracker(0, 0, 100, 100)
	tr.SetPictureRegion(0, 20, 100, 40)

	tr.Mark(10, 25, 20, 10) // entirely inside the picture's horizontal and vertical span

	if tr.Dirty() {
		t.Fatal("expected a mark entirely inside the picture region to be dropped")
	}
}

func TestMarkNotCoveredHorizontallyByPictureIsUnaffected(t *testing.T) {
	tr := NewTracker(0, 0, 100, 100)
	tr.SetPictureRegion(20, 20, 40, 40) // picture spans x in [20, 60)

	tr.Mark(0, 30, 100, 5) // wider than the picture, so no horizontal containment

	bands := tr.Bands()
	if len(bands) != 1 || bands[0].Y != 30 || bands[0].H != 5 {
		t.Fatalf("mark not horizontally contained by the picture should pass through untouched: %+v", bands)
	}
}

func TestResetClearsBands(t *testing.T) {
	tr := NewTracker(0, 0, 10, 10)
	tr.Mark(0, 0, 5, 5)
	tr.Reset()
	if tr.Dirty() {
		t.Fatal("expected tracker to be clean after Reset")
	}
}

func TestBackBufferClearZeroesPixels(t *testing.T) {
	bb := NewBackBuffer(4, 4)
	for i := range bb.Pixels {
		bb.Pixels[i] = 0xFF
	}
	bb.Clear()
	for i, p := range bb.Pixels {
		if p != 0 {
			t.Fatalf("pixel %d not cleared: %v", i, p)
		}
	}
}

func TestBlitCopiesAndMarksDirty(t *testing.T) {
	bb := NewBackBuffer(10, 10)
	tr := NewTracker(0, 0, 10, 10)
	src := make([]byte, 2*2*4)
	for i := range src {
		src[i] = 0x7F
	}
	bb.Blit(tr, 3, 3, 2, 2, src)

	off := (3*bb.Width + 3) * 4
	if bb.Pixels[off] != 0x7F {
		t.Fatalf("blit did not write expected pixel, got %v", bb.Pixels[off])
	}
	if !tr.Dirty() {
		t.Fatal("expected blit to mark tracker dirty")
	}
}

func TestBlitClipsNegativeOrigin(t *testing.T) {
	bb := NewBackBuffer(10, 10)
	src := make([]byte, 4*4*4)
	for i := range src {
		src[i] = 0x11
	}
	// should not panic despite the negative x origin
	bb.Blit(nil, -2, 0, 4, 4, src)
}
