// Package decoderworker implements the decoder context and decoder worker
// of spec §4.5: one cooperative task per elementary stream that drains its
// Block FIFO through an optional packetiser and codec plugin, paces
// delivery against the shared clock oracle, and hands finished units to
// the audio sink, picture heap, or subpicture heap.
package decoderworker

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/alxayo/decoder-pipeline/internal/clock"
	"github.com/alxayo/decoder-pipeline/internal/codecapi"
	pipelineerrors "github.com/alxayo/decoder-pipeline/internal/errors"
	"github.com/alxayo/decoder-pipeline/internal/events"
	"github.com/alxayo/decoder-pipeline/internal/fifo"
	"github.com/alxayo/decoder-pipeline/internal/heap"
	"github.com/alxayo/decoder-pipeline/internal/sink"
	"github.com/alxayo/decoder-pipeline/internal/stats"
	"github.com/alxayo/decoder-pipeline/internal/subheap"
)

// Timing constants carried over from the original implementation's named
// magic numbers (spec SPEC_FULL §12).
const (
	DefaultRate        = clock.DefaultRate
	MaxRateRatio       = 8
	DefaultPTSDelay    = 300 * time.Millisecond
	BogusVideoDelay    = DefaultPTSDelay * 30
	SPUVoutWaitDuration = 100 * time.Millisecond
	SPUVoutWaitAttempts = 30
	OutmemSleep         = 10 * time.Millisecond
	AudioMaxPrepare     = time.Second
	SPUMaxPrepare       = time.Second
	ccChannels          = 4
)

// pauseState tracks paused/date plus the frame-stepping counter (spec
// §9 Open Question a: frame-next increments i_ignore once per call;
// wait-unblock decrements it, floored at zero, each time it lets a frame
// through while paused).
type pauseState struct {
	paused bool
	date   int64
	ignore int
}

// Deps bundles the collaborators a Context needs (spec §6). Clock and
// Loader are interfaces; the rest are the concrete shared components.
type Deps struct {
	Clock    clock.Oracle
	Loader   codecapi.Loader
	SinkPool *sink.Pool
	Heap     *heap.Heap
	SubHeap  *subheap.Heap
	Stats    *stats.Sink
	Events   *events.Manager
	Logger   *slog.Logger
}

// Context is the owner record backing one elementary stream (spec §3
// "Decoder context"). It is safe for concurrent use by the worker
// goroutine and by the controller façade; every flag access under mu
// protects the owner-lock-guarded state spec §5 describes.
type Context struct {
	mu          sync.Mutex
	requestCond *sync.Cond
	ackCond     *sync.Cond

	streamID string
	category codecapi.Category

	fifo       *fifo.FIFO
	packetiser codecapi.Packetiser
	plugin     codecapi.Plugin

	deps Deps

	audioSink sink.AudioSink
	videoSink sink.VideoSink

	inputFormat   codecapi.FormatDescriptor
	outputFormat  codecapi.FormatDescriptor
	formatChanged bool

	pause   pauseState
	waiting bool
	first   bool
	hasData bool

	flushing bool
	draining bool
	drained  bool
	idle     bool
	errored  bool

	prerollBoundary int64
	tsDelay         int64
	lastRate        int

	ccPresence uint8
	ccSubs     [ccChannels]*Context

	counters struct {
		decoded, played, lost, displayed uint64
	}
	surfaced struct {
		decoded, played, lost, displayed uint64
	}

	runCtx    context.Context
	runCancel context.CancelFunc
	wg        sync.WaitGroup

	log *slog.Logger
}

// New creates and starts a decoder Context for one elementary stream (spec
// §4.7 "create"). It uses the packetiser passed in by the caller (nil means
// none) and does not load one itself, loads a codec plugin for the input
// format, and spawns the worker goroutine. It fails if no codec plugin can
// be loaded.
func New(streamID string, category codecapi.Category, in codecapi.FormatDescriptor, deps Deps, packetiser codecapi.Packetiser) (*Context, error) {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	plugin, err := deps.Loader.Load(in)
	if err != nil {
		return nil, pipelineerrors.NewFormatError("decoderworker.new", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	dc := &Context{
		streamID:      streamID,
		category:      category,
		fifo:          fifo.New(deps.Logger),
		packetiser:    packetiser,
		plugin:        plugin,
		deps:          deps,
		inputFormat:   in,
		outputFormat:  in,
		prerollBoundary: codecapi.InvalidTS,
		lastRate:      DefaultRate,
		runCtx:        ctx,
		runCancel:     cancel,
		log:           deps.Logger.With("stream_id", streamID, "category", category.String()),
	}
	dc.requestCond = sync.NewCond(&dc.mu)
	dc.ackCond = sync.NewCond(&dc.mu)

	dc.wg.Add(1)
	go dc.run()
	return dc, nil
}

// Delete implements spec §4.7 "delete": signal cancellation, force
// paused=false, waiting=false, flushing=true, signal request, join the
// worker, destroy CC sub-decoders, drop the FIFO, release sinks to pool.
func (c *Context) Delete() {
	c.mu.Lock()
	c.pause.paused = false
	c.waiting = false
	c.flushing = true
	c.requestCond.Signal()
	c.mu.Unlock()

	c.runCancel()
	c.fifo.Cancel()
	c.wg.Wait()

	c.mu.Lock()
	for i, sub := range c.ccSubs {
		if sub != nil {
			sub.Delete()
			c.ccSubs[i] = nil
		}
	}
	c.ccPresence = 0
	audioSink, videoSink := c.audioSink, c.videoSink
	c.audioSink, c.videoSink = nil, nil
	c.mu.Unlock()

	if c.deps.SinkPool != nil {
		if audioSink != nil {
			c.deps.SinkPool.Return(audioSink)
		}
		if videoSink != nil {
			c.deps.SinkPool.Return(videoSink)
		}
	}
	if c.plugin != nil {
		c.plugin.Close()
	}
	if c.deps.Stats != nil {
		c.deps.Stats.Reset(c.streamID)
	}
}

// Enqueue implements spec §4.1's producer-side policy.
func (c *Context) Enqueue(b *codecapi.Block, paced bool) {
	c.fifo.Enqueue(b, paced)
}

// Pause implements spec §4.7 "pause": no-op if state matches, else updates
// and propagates to the audio and video sinks.
func (c *Context) Pause(paused bool, date int64) {
	c.mu.Lock()
	if c.pause.paused == paused {
		c.mu.Unlock()
		return
	}
	c.pause.paused = paused
	c.pause.date = date
	audioSink, videoSink := c.audioSink, c.videoSink
	c.mu.Unlock()

	if audioSink != nil {
		audioSink.ChangePause(paused, date)
	}
	if videoSink != nil {
		videoSink.ChangePause(paused, date)
	}
}

// SetDelay implements spec §4.7 "set-delay": takes effect on the next
// fix-ts call.
func (c *Context) SetDelay(d int64) {
	c.mu.Lock()
	c.tsDelay = d
	c.mu.Unlock()
}

// StartWait implements spec §4.7 "start-wait": sets waiting, resets first
// and has-data.
func (c *Context) StartWait() {
	c.mu.Lock()
	c.waiting = true
	c.first = true
	c.hasData = false
	c.mu.Unlock()
}

// StopWait implements spec §4.7 "stop-wait".
func (c *Context) StopWait() {
	c.mu.Lock()
	c.waiting = false
	c.first = true
	c.hasData = false
	c.mu.Unlock()
}

// WaitUntilData implements spec §4.7 "wait-until-data": blocks until
// has-data, or the FIFO is simultaneously empty and the worker is idle
// (preventing deadlock when the stream never produces output, e.g. an
// empty drain).
func (c *Context) WaitUntilData() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for !c.hasData {
		if c.fifo.Count() == 0 && c.idle {
			return
		}
		c.ackCond.Wait()
	}
}

// Flush implements spec §4.7 "flush": empties the FIFO, cancels any
// pending drain, enqueues a flush sentinel (nil block), and blocks until
// the worker clears the flushing flag.
func (c *Context) Flush() {
	c.mu.Lock()
	c.draining = false
	c.drained = false
	c.flushing = true
	c.requestCond.Signal()
	c.mu.Unlock()

	for _, b := range c.fifo.DequeueAll() {
		b.Release()
	}
	c.fifo.Enqueue(nil, false)

	c.mu.Lock()
	for c.flushing {
		c.ackCond.Wait()
	}
	c.mu.Unlock()
}

// Drain implements spec §4.7 "drain": marks the stream draining and
// enqueues a drain sentinel so the worker emits one nil decode once it has
// worked through every block queued ahead of it.
func (c *Context) Drain() {
	c.mu.Lock()
	c.draining = true
	c.drained = false
	c.mu.Unlock()
	c.fifo.Enqueue(drainSentinel, false)
}

// FrameNext implements spec §4.7 "frame-next". For video while paused it
// advances the sink by one picture and increments pause.ignore (letting
// one more frame through wait-unblock); for other categories, or when not
// paused, it falls back to flush.
func (c *Context) FrameNext() {
	c.mu.Lock()
	if c.category == codecapi.CategoryVideo && c.pause.paused {
		c.pause.ignore++
		videoSink := c.videoSink
		c.requestCond.Signal()
		c.mu.Unlock()
		if videoSink != nil {
			videoSink.NextPicture()
		}
		return
	}
	c.mu.Unlock()
	c.Flush()
}

// IsEmpty implements spec §4.7 "is-empty": true iff the FIFO is empty and,
// per category, the sink reports empty (video), the stream is drained
// (audio), or trivially (subtitle).
func (c *Context) IsEmpty() bool {
	if c.fifo.Count() != 0 {
		return false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	switch c.category {
	case codecapi.CategoryVideo:
		if c.videoSink == nil {
			return true
		}
		return c.videoSink.IsEmpty()
	case codecapi.CategoryAudio:
		return c.drained
	default:
		return true
	}
}

// SetCCState implements spec §4.7 "set-cc-state": creates or destroys the
// per-channel closed-caption sub-decoder, guarded by the presence mask.
func (c *Context) SetCCState(channel int, on bool) error {
	if channel < 0 || channel >= ccChannels {
		return pipelineerrors.NewProgrammerError("decoderworker.setccstate", nil)
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	bit := uint8(1) << uint(channel)
	present := c.ccPresence&bit != 0
	if on == present {
		return nil
	}
	if on {
		sub, err := New(c.streamID+".cc"+string(rune('0'+channel)), codecapi.CategorySubtitle, codecapi.FormatDescriptor{Category: codecapi.CategorySubtitle, Codec: "cc"}, c.deps, nil)
		if err != nil {
			return err
		}
		c.ccSubs[channel] = sub
		c.ccPresence |= bit
		return nil
	}
	if sub := c.ccSubs[channel]; sub != nil {
		sub.Delete()
	}
	c.ccSubs[channel] = nil
	c.ccPresence &^= bit
	return nil
}

// FormatChanged implements spec §4.7 "format-changed?": atomically
// consumes the format-description latch.
func (c *Context) FormatChanged() (codecapi.FormatDescriptor, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.formatChanged {
		return codecapi.FormatDescriptor{}, false
	}
	c.formatChanged = false
	return c.outputFormat, true
}

// SetPrerollBoundary sets the timestamp below which decoded output is
// discarded (cleared by passing codecapi.InvalidTS).
func (c *Context) SetPrerollBoundary(ts int64) {
	c.mu.Lock()
	c.prerollBoundary = ts
	c.mu.Unlock()
}

// Counters returns a snapshot of the worker's cumulative counters.
func (c *Context) Counters() (decoded, played, lost, displayed uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.counters.decoded, c.counters.played, c.counters.lost, c.counters.displayed
}

// Errored reports whether the stream has entered the errored state (spec
// §7: still accepts flush/delete, its decode path becomes a pure sink).
func (c *Context) Errored() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.errored
}
