// Package subheap implements the subpicture heap of spec §4.3: the same
// scan-and-reuse allocation policy as internal/heap but without dating —
// Display moves a reserved region straight to ready — and with a
// monotonically increasing order field used to break display-date ties
// between overlapping subpictures deterministically.
package subheap

import (
	"fmt"
	"sync"

	pipelineerrors "github.com/alxayo/decoder-pipeline/internal/errors"
)

type Status int

const (
	StatusFree Status = iota
	StatusDestroyed
	StatusReserved
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
	case StatusReady:
		return "ready"
	case StatusDisplayed:
		return "displayed"
	default:
		return "unknown"
	}
}

// Shape identifies a region's allocated buffer size for reuse matching.
type Shape struct {
	Width  int
	Height int
}

// Region is one cell of the subpicture heap: a rendered overlay region
// (text, bitmap, menu highlight) with its own display window.
type Region struct {
	Shape
	X, Y         int
	Pixels       []byte
	StartDate    int64
	StopDate     int64
	Order        int64
	refcount     int
	status       Status
}

func (r *Region) Status() Status { return r.status }
func (r *Region) Refcount() int  { return r.refcount }

// DefaultCapacity mirrors the picture heap's small fixed pool; subpictures
// are rarer and lighter than video frames, so the arena can stay the same
// size.
const DefaultCapacity = 8

// Heap is the fixed-capacity subpicture arena.
type Heap struct {
	mu        sync.Mutex
	regions   []*Region
	nextOrder int64
}

// New creates a Heap with the given capacity (DefaultCapacity if <= 0).
func New(capacity int) *Heap {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	h := &Heap{regions: make([]*Region, capacity)}
	for i := range h.regions {
		h.regions[i] = &Region{status: StatusFree}
	}
	return h
}

func (h *Heap) Capacity() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.regions)
}

// Create scans for a destroyed region whose shape exactly matches, reusing
// its buffer; failing that reuses the first destroyed, else first free
// region. Returns a reserved region, or a ResourceError if the heap is
// full.
func (h *Heap) Create(width, height int, x, y int) (*Region, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	want := Shape{Width: width, Height: height}

	var firstDestroyed, firstFree *Region
	for _, r := range h.regions {
		switch r.status {
		case StatusDestroyed:
			if firstDestroyed == nil {
				firstDestroyed = r
			}
			if r.Shape == want {
				return h.reserveLocked(r, want, x, y, false), nil
			}
		case StatusFree:
			if firstFree == nil {
				firstFree = r
			}
		}
	}

	if firstDestroyed != nil {
		return h.reserveLocked(firstDestroyed, want, x, y, true), nil
	}
	if firstFree != nil {
		return h.reserveLocked(firstFree, want, x, y, true), nil
	}
	return nil, pipelineerrors.NewResourceError("subheap.create", fmt.Errorf("subpicture heap full (capacity=%d)", len(h.regions)))
}

func (h *Heap) reserveLocked(r *Region, want Shape, x, y int, realloc bool) *Region {
	if realloc {
		r.Shape = want
		r.Pixels = make([]byte, want.Width*want.Height*4) // NRGBA, 4 bytes per pixel
	}
	r.X, r.Y = x, y
	r.StartDate, r.StopDate = 0, 0
	r.refcount = 0
	r.status = StatusReserved
	return r
}

// Display moves a reserved region straight to ready, stamping its window
// and assigning the next order value for tie-breaking (spec §4.3: no
// intermediate dating step for subpictures).
func (h *Heap) Display(r *Region, startDate, stopDate int64) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if r.status != StatusReserved {
		return pipelineerrors.NewProgrammerError("subheap.display", fmt.Errorf("invalid transition from %s", r.status))
	}
	r.StartDate, r.StopDate = startDate, stopDate
	h.nextOrder++
	r.Order = h.nextOrder
	r.status = StatusReady
	return nil
}

// Destroy transitions to destroyed, keeping the buffer for reuse.
func (h *Heap) Destroy(r *Region) {
	h.mu.Lock()
	defer h.mu.Unlock()
	r.status = StatusDestroyed
}

func (h *Heap) Link(r *Region) {
	h.mu.Lock()
	r.refcount++
	h.mu.Unlock()
}

func (h *Heap) Unlink(r *Region) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if r.refcount > 0 {
		r.refcount--
	}
	if r.refcount == 0 && r.status == StatusDisplayed {
		r.status = StatusDestroyed
	}
}

func (h *Heap) MarkDisplayed(r *Region) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if r.refcount == 0 {
		r.status = StatusDestroyed
		return
	}
	r.status = StatusDisplayed
}

// Flush destroys every ready region.
func (h *Heap) Flush() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, r := range h.regions {
		if r.status == StatusReady {
			r.status = StatusDestroyed
		}
	}
}

// ReadyAt returns every ready region whose [StartDate, StopDate) window
// contains t, ordered by Order ascending so overlapping regions composite
// in creation order.
func (h *Heap) ReadyAt(t int64) []*Region {
	h.mu.Lock()
	defer h.mu.Unlock()
	var out []*Region
	for _, r := range h.regions {
		if r.status != StatusReady {
			continue
		}
		if t < r.StartDate || (r.StopDate != 0 && t >= r.StopDate) {
			continue
		}
		out = append(out, r)
	}
	for i := 1; i < len(out); i++ {
		for j := i; j > 0 && out[j].Order < out[j-1].Order; j-- {
			out[j], out[j-1] = out[j-1], out[j]
		}
	}
	return out
}

// Occupied returns the count of regions in ready or reserved status.
func (h *Heap) Occupied() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	n := 0
	for _, r := range h.regions {
		if r.status == StatusReady || r.status == StatusReserved {
			n++
		}
	}
	return n
}
