// Package vout implements the video output worker of spec §4.6: one
// thread per video sink that pulls the picture heap's earliest-ready
// slot, paces presentation to its display date, composites it with
// subtitle and overlay layers into a back buffer, and presents.
package vout

import (
	"image"
	"log/slog"
	"sync"
	"time"

	"github.com/alxayo/decoder-pipeline/internal/buffer"
	"github.com/alxayo/decoder-pipeline/internal/codecapi"
	pipelineerrors "github.com/alxayo/decoder-pipeline/internal/errors"
	"github.com/alxayo/decoder-pipeline/internal/events"
	"github.com/alxayo/decoder-pipeline/internal/heap"
	"github.com/alxayo/decoder-pipeline/internal/stats"
	"github.com/alxayo/decoder-pipeline/internal/subheap"
)

// Timing constants carried over from the original implementation's named
// magic numbers (spec §5 "Timeouts", SPEC_FULL §12).
const (
	DisplayDelay = 50 * time.Millisecond
	IdleSleep    = 10 * time.Millisecond
	OutmemSleep  = 10 * time.Millisecond
)

func nowMicros() int64 { return time.Now().UnixMicro() }

// mwait sleeps until deadlineMicros, coarse first via time.Sleep, then
// fine via platformSleep for the final millisecond (spec §4.6 step 6).
func mwait(deadlineMicros int64) {
	for {
		remaining := time.Duration(deadlineMicros-nowMicros()) * time.Microsecond
		if remaining <= 0 {
			return
		}
		if remaining > time.Millisecond {
			time.Sleep(remaining - time.Millisecond)
			continue
		}
		platformSleep(remaining)
		return
	}
}

// changeRequest models a pending vout control flag (gamma, grayscale,
// or an unrecognised one) processed by the management pass (spec §4.6
// step 8).
type changeRequest struct {
	kind string
}

// PresentFunc is called with the composited back buffer and the buffer
// index about to be flipped to, standing in for "issuing display" on real
// video hardware (spec §4.6 step 7). It may be nil.
type PresentFunc func(back *buffer.BackBuffer, bufferIndex int)

// Deps bundles a Worker's collaborators.
type Deps struct {
	Heap    *heap.Heap
	SubHeap *subheap.Heap
	Stats   *stats.Sink
	Events  *events.Manager
	Present PresentFunc
	Logger  *slog.Logger
}

// Worker renders one video sink's picture heap.
type Worker struct {
	mu sync.Mutex

	streamID string
	deps     Deps
	log      *slog.Logger

	sinkWidth, sinkHeight int
	aspect                AspectRatio
	showStats             bool
	interfaceActive       bool

	back        *buffer.BackBuffer
	tracker     *buffer.Tracker
	bufferIndex int
	lastRect    Rect

	pending []changeRequest

	stopCh chan struct{}
	wg     sync.WaitGroup
}

// NewWorker creates a Worker for one video sink's output geometry and
// starts its goroutine.
func NewWorker(streamID string, sinkWidth, sinkHeight int, aspect AspectRatio, deps Deps) *Worker {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	w := &Worker{
		streamID:   streamID,
		deps:       deps,
		log:        deps.Logger.With("stream_id", streamID, "component", "vout"),
		sinkWidth:  sinkWidth,
		sinkHeight: sinkHeight,
		aspect:     aspect,
		showStats:  true,
		back:       buffer.NewBackBuffer(sinkWidth, sinkHeight),
		tracker:    buffer.NewTracker(0, 0, sinkWidth, sinkHeight),
		stopCh:     make(chan struct{}),
	}
	w.wg.Add(1)
	go w.run()
	return w
}

// Stop signals the worker to exit and blocks until it does.
func (w *Worker) Stop() {
	close(w.stopCh)
	w.wg.Wait()
}

// RequestChange queues a vout control flag for the next management pass.
func (w *Worker) RequestChange(kind string) {
	w.mu.Lock()
	w.pending = append(w.pending, changeRequest{kind: kind})
	w.mu.Unlock()
}

// SetInterfaceActive toggles whether the interface band overlay is drawn.
func (w *Worker) SetInterfaceActive(active bool) {
	w.mu.Lock()
	w.interfaceActive = active
	w.mu.Unlock()
}

func (w *Worker) run() {
	defer w.wg.Done()
	for {
		select {
		case <-w.stopCh:
			return
		default:
		}

		w.mu.Lock()
		now := nowMicros()
		p := w.deps.Heap.EarliestReady()
		for p != nil && p.DisplayDate < now {
			w.deps.Heap.MarkDisplayed(p)
			w.log.Debug("late picture skipped", "display_date", p.DisplayDate, "now", now)
			if w.deps.Stats != nil {
				w.deps.Stats.AddLost(w.streamID, 1)
			}
			p = w.deps.Heap.EarliestReady()
			now = nowMicros()
		}

		var selected *heap.Slot
		if p != nil && p.DisplayDate <= now+DisplayDelay.Microseconds() {
			selected = p
			w.renderLocked(selected)
		}

		deadline := now + IdleSleep.Microseconds()
		if selected != nil {
			deadline = selected.DisplayDate
		}
		w.mu.Unlock()

		mwait(deadline)

		w.mu.Lock()
		if selected != nil {
			if w.deps.Present != nil {
				w.deps.Present(w.back, w.bufferIndex)
			}
			w.bufferIndex ^= 1
			w.deps.Heap.MarkDisplayed(selected)
			if w.deps.Stats != nil {
				w.deps.Stats.AddDisplayed(w.streamID, 1)
			}
		}
		w.managementPassLocked()
		w.mu.Unlock()
	}
}

// renderLocked implements spec §4.6 step 5. Caller holds w.mu.
func (w *Worker) renderLocked(p *heap.Slot) {
	rect := ComputeRect(w.sinkWidth, w.sinkHeight, p.Width, p.Height, w.aspect)

	if rect.W < w.lastRect.W || rect.H < w.lastRect.H {
		w.tracker.SetPictureRegion(0, 0, 0, 0)
		w.tracker.Mark(w.lastRect.X, w.lastRect.Y, w.lastRect.W, w.lastRect.H)
	}

	for _, band := range w.tracker.Bands() {
		clearBand(w.back, band)
	}
	w.tracker.Reset()

	dst := w.back.AsImage()
	img := Convert(codecapi.PixelFormat(p.Pixel), p.Planes, p.Width, p.Height, p.ChromaWidth)
	ScaleInto(dst, rectToImageRect(rect), img)
	w.tracker.SetPictureRegion(rect.X, rect.Y, rect.W, rect.H)
	w.tracker.Mark(rect.X, rect.Y, rect.W, rect.H)
	w.lastRect = rect

	if w.showStats && w.deps.Stats != nil {
		snap := w.deps.Stats.Snapshot(w.streamID)
		if err := drawStatisticsOverlay(dst, w.sinkWidth, w.sinkHeight, Statistics{
			Decoded: snap.Decoded, Played: snap.Played, Lost: snap.Lost, Displayed: snap.Displayed,
		}, w.tracker); err != nil {
			w.log.Warn("statistics overlay failed", "error", err)
		}
	}
	drawInterfaceBand(dst, w.sinkWidth, w.interfaceActive, w.tracker)

	if w.deps.SubHeap != nil {
		for _, region := range w.deps.SubHeap.ReadyAt(p.DisplayDate) {
			drawSubpicture(dst, region.X, region.Y, region.Width, region.Height, region.Pixels, w.tracker)
			w.deps.SubHeap.MarkDisplayed(region)
		}
	}

}

func rectToImageRect(r Rect) image.Rectangle {
	return image.Rect(r.X, r.Y, r.X+r.W, r.Y+r.H)
}

// clearBand zeroes one dirty band's rows directly in the back buffer's RGBA
// storage, restricted to that band rather than a full-buffer Clear (spec
// §4.6 step 5.3).
func clearBand(bb *buffer.BackBuffer, b buffer.Band) {
	x, y, w, h := b.X, b.Y, b.W, b.H
	if x < 0 {
		w += x
		x = 0
	}
	if y < 0 {
		h += y
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
		off := ((y+row)*bb.Width + x) * 4
		rowBytes := bb.Pixels[off : off+w*4]
		for i := range rowBytes {
			rowBytes[i] = 0
		}
	}
}

// managementPassLocked implements spec §4.6 step 8: rebuild colour tables
// for recognised change kinds, report the rest as a programmer error
// (spec §7 kind 4 — an unacknowledged control flag is a contract
// violation, not a runtime condition to recover from silently).
func (w *Worker) managementPassLocked() {
	for _, req := range w.pending {
		switch req.kind {
		case "gamma", "grayscale":
			w.log.Debug("rebuilding colour tables", "change", req.kind)
		default:
			err := pipelineerrors.NewProgrammerError("vout.management", nil)
			w.log.Error("unacknowledged vout change flag", "change", req.kind, "error", err)
		}
	}
	w.pending = w.pending[:0]
}
