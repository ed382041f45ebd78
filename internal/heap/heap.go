// Package heap implements the fixed-capacity picture heap of spec §4.2: an
// arena of picture slots with an explicit lifecycle state machine and
// reference counting for outstanding borrows. The "destroyed but not
// freed" status is kept deliberately (spec §9): it is an allocator-churn
// optimisation, not dead state.
package heap

import (
	"fmt"
	"sync"

	pipelineerrors "github.com/alxayo/decoder-pipeline/internal/errors"
)

// Status is a picture slot's lifecycle state (spec §3 table).
type Status int

const (
	StatusFree Status = iota
	StatusDestroyed
	StatusReserved
	StatusReservedDated
	StatusReservedDisplayable
	StatusReady
	StatusDisplayed
)

func (s Status) String() string {
	switch s {
	case StatusFree:
		return "free"
	case StatusDestroyed:
		return "destroyed"
	case StatusReserved:
		return "reserved"
	case StatusReservedDated:
		return "reserved-dated"
	case StatusReservedDisplayable:
		return "reserved-displayable"
	case StatusReady:
		return "ready"
	case StatusDisplayed:
		return "displayed"
	default:
		return "unknown"
	}
}

// PixelFormat and dimensions identify a slot's allocated buffer shape for
// reuse matching.
type Shape struct {
	Pixel  int // codecapi.PixelFormat, kept as int so this package does not import codecapi
	Width  int
	Height int
}

// Slot is one cell of the picture heap.
type Slot struct {
	Shape
	ChromaWidth     int
	VisibleX, VisibleY, VisibleW, VisibleH int
	AspectNum, AspectDen int
	Planes          [][]byte
	DisplayDate     int64
	refcount        int
	status          Status
}

func (s *Slot) Status() Status    { return s.status }
func (s *Slot) Refcount() int     { return s.refcount }

// Heap is the fixed-capacity arena. Capacity follows the teacher's small
// constant budget; video playback rarely needs more than a handful of
// in-flight pictures ahead of the display deadline.
type Heap struct {
	mu    sync.Mutex
	slots []*Slot
}

// DefaultCapacity mirrors the original implementation's small fixed pool.
const DefaultCapacity = 8

// New creates a Heap with the given capacity (DefaultCapacity if <= 0).
func New(capacity int) *Heap {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	h := &Heap{slots: make([]*Slot, capacity)}
	for i := range h.slots {
		h.slots[i] = &Slot{status: StatusFree}
	}
	return h
}

// Capacity returns the number of slots in the heap.
func (h *Heap) Capacity() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.slots)
}

// allocPlanes builds plane buffers sized for the given shape. Real pixel
// strides depend on the format; this keeps the arena's plane-count
// contract (codecapi.PixelFormat.PlaneCount) without depending on the
// codecapi package.
func allocPlanes(pixel, width, height int) [][]byte {
	if pixel == rgbPackedShape {
		// One packed plane, 4 bytes per pixel (NRGBA), not one byte per
		// pixel like the chroma planes below.
		return [][]byte{make([]byte, width*height*4)}
	}
	planes := make([][]byte, 3)
	for i := range planes {
		planes[i] = make([]byte, width*height)
	}
	return planes
}

// rgbPackedShape mirrors codecapi.PixelFormatRGBPacked's ordinal (3) so
// allocPlanes can special-case it without importing codecapi.
const rgbPackedShape = 3

// Create scans for a destroyed slot whose shape exactly matches, reusing
// its buffer. Failing that it reuses the first destroyed slot (freeing its
// buffer) or the first free slot, allocating a fresh buffer. It returns a
// reserved slot, or a ResourceError if the heap is full.
func (h *Heap) Create(pixel, width, height, aspectNum, aspectDen int) (*Slot, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	want := Shape{Pixel: pixel, Width: width, Height: height}

	var firstDestroyed, firstFree *Slot
	for _, s := range h.slots {
		switch s.status {
		case StatusDestroyed:
			if firstDestroyed == nil {
				firstDestroyed = s
			}
			if s.Shape == want {
				return h.reserveLocked(s, want, aspectNum, aspectDen, false), nil
			}
		case StatusFree:
			if firstFree == nil {
				firstFree = s
			}
		}
	}

	if firstDestroyed != nil {
		return h.reserveLocked(firstDestroyed, want, aspectNum, aspectDen, true), nil
	}
	if firstFree != nil {
		return h.reserveLocked(firstFree, want, aspectNum, aspectDen, true), nil
	}
	return nil, pipelineerrors.NewResourceError("heap.create", fmt.Errorf("picture heap full (capacity=%d)", len(h.slots)))
}

func (h *Heap) reserveLocked(s *Slot, want Shape, aspectNum, aspectDen int, realloc bool) *Slot {
	if realloc {
		s.Shape = want
		s.Planes = allocPlanes(want.Pixel, want.Width, want.Height)
	}
	s.AspectNum, s.AspectDen = aspectNum, aspectDen
	s.DisplayDate = 0
	s.refcount = 0
	s.status = StatusReserved
	return s
}

// Date sets the display date and advances status: reserved -> reserved-dated;
// reserved-displayable -> ready.
func (h *Heap) Date(s *Slot, t int64) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	switch s.status {
	case StatusReserved:
		s.DisplayDate = t
		s.status = StatusReservedDated
	case StatusReservedDisplayable:
		s.DisplayDate = t
		s.status = StatusReady
	default:
		return pipelineerrors.NewProgrammerError("heap.date", fmt.Errorf("invalid transition from %s", s.status))
	}
	return nil
}

// Display advances status: reserved -> reserved-displayable;
// reserved-dated -> ready.
func (h *Heap) Display(s *Slot) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	switch s.status {
	case StatusReserved:
		s.status = StatusReservedDisplayable
	case StatusReservedDated:
		s.status = StatusReady
	default:
		return pipelineerrors.NewProgrammerError("heap.display", fmt.Errorf("invalid transition from %s", s.status))
	}
	return nil
}

// Destroy transitions to destroyed regardless of refcount; the buffer is
// kept for reuse.
func (h *Heap) Destroy(s *Slot) {
	h.mu.Lock()
	defer h.mu.Unlock()
	s.status = StatusDestroyed
}

// Link increments the refcount (a borrow).
func (h *Heap) Link(s *Slot) {
	h.mu.Lock()
	s.refcount++
	h.mu.Unlock()
}

// Unlink decrements the refcount; if it reaches zero on a displayed slot,
// the slot is destroyed.
func (h *Heap) Unlink(s *Slot) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if s.refcount > 0 {
		s.refcount--
	}
	if s.refcount == 0 && s.status == StatusDisplayed {
		s.status = StatusDestroyed
	}
}

// MarkDisplayed transitions a ready slot consumed by the renderer to
// displayed; if refcount is already zero it goes straight to destroyed.
func (h *Heap) MarkDisplayed(s *Slot) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if s.refcount == 0 {
		s.status = StatusDestroyed
		return
	}
	s.status = StatusDisplayed
}

// Flush sets every ready or reserved-dated slot to destroyed (spec §3
// invariant).
func (h *Heap) Flush() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, s := range h.slots {
		if s.status == StatusReady || s.status == StatusReservedDated {
			s.status = StatusDestroyed
		}
	}
}

// EarliestReady scans the ready slots while holding the heap mutex (the
// scan is not lock-free) and returns the ready slot with the smallest
// display date, or nil if none are ready.
func (h *Heap) EarliestReady() *Slot {
	h.mu.Lock()
	defer h.mu.Unlock()
	var best *Slot
	for _, s := range h.slots {
		if s.status != StatusReady {
			continue
		}
		if best == nil || s.DisplayDate < best.DisplayDate {
			best = s
		}
	}
	return best
}

// Occupied returns the count of slots in ready or any reserved-* status,
// bounded by heap capacity (spec §8 property 2).
func (h *Heap) Occupied() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	n := 0
	for _, s := range h.slots {
		switch s.status {
		case StatusReady, StatusReserved, StatusReservedDated, StatusReservedDisplayable:
			n++
		}
	}
	return n
}
