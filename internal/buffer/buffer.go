// Package buffer implements the dirty-region tracker and back buffer of
// spec §4.4: a bounded set of sorted vertical bands that coalesce
// overlapping writes, clipped against the picture's visible region, backing
// the video output worker's partial-redraw path.
package buffer

import "image"

// Band is a dirty vertical strip [Y, Y+H) spanning [X, X+W) in pixel
// coordinates.
type Band struct {
	X, Y, W, H int
}

func (b Band) top() int    { return b.Y }
func (b Band) bottom() int { return b.Y + b.H }
func (b Band) left() int   { return b.X }
func (b Band) right() int  { return b.X + b.W }

func (b Band) overlapsVertically(o Band) bool {
	return b.top() < o.bottom() && o.top() < b.bottom()
}

func (b Band) union(o Band) Band {
	x := min(b.left(), o.left())
	y := min(b.top(), o.top())
	right := max(b.right(), o.right())
	bottom := max(b.bottom(), o.bottom())
	return Band{X: x, Y: y, W: right - x, H: bottom - y}
}

// MaxBands caps how many distinct dirty bands the tracker keeps before
// further bands get folded into the last one; unbounded band growth would
// make the eventual blit no cheaper than a full redraw.
const MaxBands = 16

// Tracker accumulates dirty bands for one frame, clipped to a picture's
// visible region and excluding the currently displayed picture's own area.
type Tracker struct {
	regionX, regionY, regionW, regionH int
	picX, picY, picW, picH             int
	bands                              []Band
}

// NewTracker creates a Tracker clipped to the given visible region.
func NewTracker(x, y, w, h int) *Tracker {
	return &Tracker{regionX: x, regionY: y, regionW: w, regionH: h}
}

// SetPictureRegion records the rectangle the current picture occupies, so
// later Mark calls exclude it: a mark fully covered horizontally by the
// picture is split into the stripes above and below it rather than tracked
// as its own band, since the picture itself is redrawn by the scaling blit
// every frame regardless of the tracker. Pass zero width/height to disable
// the exclusion.
func (t *Tracker) SetPictureRegion(x, y, w, h int) {
	t.picX, t.picY, t.picW, t.picH = x, y, w, h
}

// Mark records a dirty rectangle, clipping it to the tracker's region,
// excluding the picture region (splitting into the stripes above/below when
// the mark falls inside it), and merging what remains with any existing
// band it vertically overlaps. Bands stay sorted by Y ascending.
func (t *Tracker) Mark(x, y, w, h int) {
	b, ok := t.clip(Band{X: x, Y: y, W: w, H: h})
	if !ok {
		return
	}
	t.markExcludingPicture(b)
}

// markExcludingPicture implements the picture-area split of the original's
// SetBufferArea: when b is fully covered horizontally by the picture
// region and overlaps it vertically, keep only the stripe above and the
// stripe below the picture (recursing so each stripe is itself merged into
// the band list), and drop the portion inside the picture entirely.
func (t *Tracker) markExcludingPicture(b Band) {
	if t.picW > 0 && t.picH > 0 && b.left() >= t.picX && b.right() <= t.picX+t.picW {
		picTop, picBottom := t.picY, t.picY+t.picH
		if b.top() < picBottom && b.bottom() > picTop {
			if b.top() < picTop {
				t.markExcludingPicture(Band{X: b.X, Y: b.top(), W: b.W, H: picTop - b.top()})
			}
			if b.bottom() > picBottom {
				t.markExcludingPicture(Band{X: b.X, Y: picBottom, W: b.W, H: b.bottom() - picBottom})
			}
			return
		}
	}
	t.addBand(b)
}

// addBand merges b into the band list, sorted by Y ascending, folding the
// excess into the last band rather than collapsing the whole region when
// the list would grow past MaxBands.
func (t *Tracker) addBand(b Band) {
	merged := b
	remaining := t.bands[:0]
	for _, existing := range t.bands {
		if merged.overlapsVertically(existing) {
			merged = merged.union(existing)
		} else {
			remaining = append(remaining, existing)
		}
	}
	t.bands = append(remaining, merged)
	t.sortBands()

	if len(t.bands) > MaxBands {
		t.mergeTailOverflow()
	}
}

func (t *Tracker) clip(b Band) (Band, bool) {
	left := max(b.left(), t.regionX)
	top := max(b.top(), t.regionY)
	right := min(b.right(), t.regionX+t.regionW)
	bottom := min(b.bottom(), t.regionY+t.regionH)
	if left >= right || top >= bottom {
		return Band{}, false
	}
	return Band{X: left, Y: top, W: right - left, H: bottom - top}, true
}

// mergeTailOverflow folds every band past MaxBands-1 into the last kept
// band, matching the original's area-overflow policy of extending the last
// area's end rather than discarding band granularity across the board.
func (t *Tracker) mergeTailOverflow() {
	tail := t.bands[MaxBands-1]
	for _, b := range t.bands[MaxBands:] {
		tail = tail.union(b)
	}
	t.bands = append(t.bands[:MaxBands-1], tail)
}

func (t *Tracker) sortBands() {
	for i := 1; i < len(t.bands); i++ {
		for j := i; j > 0 && t.bands[j].Y < t.bands[j-1].Y; j-- {
			t.bands[j], t.bands[j-1] = t.bands[j-1], t.bands[j]
		}
	}
}

// Bands returns the accumulated dirty bands, sorted by Y ascending.
func (t *Tracker) Bands() []Band {
	out := make([]Band, len(t.bands))
	copy(out, t.bands)
	return out
}

// Dirty reports whether any region has been marked.
func (t *Tracker) Dirty() bool { return len(t.bands) > 0 }

// Reset clears all accumulated bands, preparing the tracker for the next
// frame.
func (t *Tracker) Reset() {
	t.bands = t.bands[:0]
}

// stride is the row width in bytes used by Clear's zero-fill; it matches
// the teacher's bufpool size-class granularity rather than any specific
// pixel format, since BackBuffer below is format-agnostic storage.
const stride = 256

// BackBuffer is a flat byte buffer representing one composited output
// frame, written to by the video output worker's chroma-converted picture
// blit and overlay rendering steps before being handed to a sink.
type BackBuffer struct {
	Width, Height int
	Pixels        []byte
}

// NewBackBuffer allocates a BackBuffer sized for width x height RGBA
// pixels.
func NewBackBuffer(width, height int) *BackBuffer {
	return &BackBuffer{Width: width, Height: height, Pixels: make([]byte, width*height*4)}
}

// AsImage returns an *image.NRGBA view over the back buffer's own pixel
// storage (no copy), letting the video output worker composite chroma
// conversion and overlay output with golang.org/x/image/draw while still
// going through Tracker-marked Blit for the hot picture-copy path.
func (bb *BackBuffer) AsImage() *image.NRGBA {
	return &image.NRGBA{
		Pix:    bb.Pixels,
		Stride: bb.Width * 4,
		Rect:   image.Rect(0, 0, bb.Width, bb.Height),
	}
}

// Clear zero-fills the buffer in stride-sized chunks, matching the
// teacher's bufpool class granularity rather than doing a single
// whole-slice clear, so large buffers free cache lines incrementally.
func (bb *BackBuffer) Clear() {
	for off := 0; off < len(bb.Pixels); off += stride {
		end := off + stride
		if end > len(bb.Pixels) {
			end = len(bb.Pixels)
		}
		chunk := bb.Pixels[off:end]
		for i := range chunk {
			chunk[i] = 0
		}
	}
}

// Blit copies src into the back buffer's pixel array at (x, y), clipping
// against the buffer bounds, and marks the written region dirty on t.
func (bb *BackBuffer) Blit(t *Tracker, x, y, w, h int, src []byte) {
	srcStride := w * 4
	srcX, srcY := 0, 0
	if x < 0 {
		w += x
		srcX = -x
		x = 0
	}
	if y < 0 {
		h += y
		srcY = -y
		y = 0
	}
	if x+w > bb.Width {
		w = bb.Width - x
	}
	if y+h > bb.Height {
		h = bb.Height - y
	}
	if w <= 0 || h <= 0 {
		return
	}
	for row := 0; row < h; row++ {
		srcOff := (srcY+row)*srcStride + srcX*4
		dstOff := ((y+row)*bb.Width + x) * 4
		copy(bb.Pixels[dstOff:dstOff+w*4], src[srcOff:srcOff+w*4])
	}
	if t != nil {
		t.Mark(x, y, w, h)
	}
}
