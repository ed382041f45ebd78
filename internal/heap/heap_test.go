package heap

import (
	"testing"

	pipelineerrors "github.com/alxayo/decoder-pipeline/internal/errors"
)

func TestCreateReusesExactFormatMatch(t *testing.T) {
	h := New(2)
	a, err := h.Create(0, 640, 480, 4, 3)
	if err != nil {
		t.Fatal(err)
	}
	h.Destroy(a)

	b, err := h.Create(0, 640, 480, 16, 9)
	if err != nil {
		t.Fatal(err)
	}
	if b != a {
		t.Fatal("expected exact-shape-match slot to be reused")
	}
	if b.AspectNum != 16 || b.AspectDen != 9 {
		t.Fatal("reserveLocked did not update aspect ratio on reuse")
	}
}

func TestCreateFallsBackToFirstDestroyedOnShapeMismatch(t *testing.T) {
	h := New(1)
	a, err := h.Create(0, 640, 480, 1, 1)
	if err != nil {
		t.Fatal(err)
	}
	h.Destroy(a)

	b, err := h.Create(0, 1920, 1080, 1, 1)
	if err != nil {
		t.Fatal(err)
	}
	if b != a {
		t.Fatal("expected slot reuse via first-destroyed fallback")
	}
	if b.Width != 1920 || b.Height != 1080 {
		t.Fatal("expected reallocated plane shape")
	}
}

func TestCreateFullHeapReturnsResourceError(t *testing.T) {
	h := New(1)
	if _, err := h.Create(0, 1, 1, 1, 1); err != nil {
		t.Fatal(err)
	}
	_, err := h.Create(0, 1, 1, 1, 1)
	if !pipelineerrors.IsResourceError(err) {
		t.Fatalf("expected ResourceError, got %v", err)
	}
}

func TestLifecycleTransitions(t *testing.T) {
	h := New(1)
	s, err := h.Create(0, 4, 4, 1, 1)
	if err != nil {
		t.Fatal(err)
	}
	if s.Status() != StatusReserved {
		t.Fatalf("status = %v, want reserved", s.Status())
	}

	if err := h.Date(s, 100); err != nil {
		t.Fatal(err)
	}
	if s.Status() != StatusReservedDated {
		t.Fatalf("status = %v, want reserved-dated", s.Status())
	}

	if err := h.Display(s); err != nil {
		t.Fatal(err)
	}
	if s.Status() != StatusReady {
		t.Fatalf("status = %v, want ready", s.Status())
	}
}

func TestDisplayThenDateOrder(t *testing.T) {
	h := New(1)
	s, _ := h.Create(0, 4, 4, 1, 1)

	if err := h.Display(s); err != nil {
		t.Fatal(err)
	}
	if s.Status() != StatusReservedDisplayable {
		t.Fatalf("status = %v, want reserved-displayable", s.Status())
	}
	if err := h.Date(s, 5); err != nil {
		t.Fatal(err)
	}
	if s.Status() != StatusReady {
		t.Fatalf("status = %v, want ready", s.Status())
	}
}

func TestInvalidTransitionIsProgrammerError(t *testing.T) {
	h := New(1)
	s, _ := h.Create(0, 4, 4, 1, 1)
	h.Destroy(s)
	if err := h.Date(s, 1); !pipelineerrors.IsProgrammerError(err) {
		t.Fatalf("expected ProgrammerError, got %v", err)
	}
}

func TestUnlinkDestroysDisplayedAtZeroRefcount(t *testing.T) {
	h := New(1)
	s, _ := h.Create(0, 4, 4, 1, 1)
	h.Link(s)
	h.MarkDisplayed(s)
	if s.Status() != StatusDisplayed {
		t.Fatalf("status = %v, want displayed", s.Status())
	}
	h.Unlink(s)
	if s.Status() != StatusDestroyed {
		t.Fatalf("status = %v, want destroyed after refcount hits zero", s.Status())
	}
}

func TestMarkDisplayedWithNoBorrowsDestroysImmediately(t *testing.T) {
	h := New(1)
	s, _ := h.Create(0, 4, 4, 1, 1)
	h.MarkDisplayed(s)
	if s.Status() != StatusDestroyed {
		t.Fatalf("status = %v, want destroyed", s.Status())
	}
}

func TestFlushDestroysReadyAndReservedDated(t *testing.T) {
	h := New(2)
	s1, _ := h.Create(0, 4, 4, 1, 1)
	h.Date(s1, 1)
	h.Display(s1) // ready

	s2, _ := h.Create(0, 4, 4, 1, 1)
	h.Date(s2, 2) // reserved-dated

	h.Flush()
	if s1.Status() != StatusDestroyed || s2.Status() != StatusDestroyed {
		t.Fatalf("flush did not destroy both slots: %v %v", s1.Status(), s2.Status())
	}
}

func TestEarliestReadyPicksSmallestDate(t *testing.T) {
	h := New(3)
	s1, _ := h.Create(0, 4, 4, 1, 1)
	h.Date(s1, 50)
	h.Display(s1)

	s2, _ := h.Create(0, 4, 4, 1, 1)
	h.Date(s2, 10)
	h.Display(s2)

	best := h.EarliestReady()
	if best != s2 {
		t.Fatalf("expected slot with date 10 to be earliest, got date %d", best.DisplayDate)
	}
}

func TestOccupiedCountsReservedAndReady(t *testing.T) {
	h := New(3)
	s1, _ := h.Create(0, 4, 4, 1, 1)
	h.Date(s1, 1)
	h.Display(s1) // ready

	_, _ = h.Create(0, 4, 4, 1, 1) // reserved

	if got := h.Occupied(); got != 2 {
		t.Fatalf("occupied = %d, want 2", got)
	}
}
