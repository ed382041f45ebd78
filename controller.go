package pipeline

import (
	"log/slog"
	"sync"

	"github.com/alxayo/decoder-pipeline/internal/clock"
	"github.com/alxayo/decoder-pipeline/internal/codecapi"
	"github.com/alxayo/decoder-pipeline/internal/decoderworker"
	pipelineerrors "github.com/alxayo/decoder-pipeline/internal/errors"
	"github.com/alxayo/decoder-pipeline/internal/events"
	"github.com/alxayo/decoder-pipeline/internal/heap"
	"github.com/alxayo/decoder-pipeline/internal/sink"
	"github.com/alxayo/decoder-pipeline/internal/stats"
	"github.com/alxayo/decoder-pipeline/internal/subheap"
	"github.com/alxayo/decoder-pipeline/internal/vout"
)

// streamEntry bundles one elementary stream's decoder worker with its
// private picture/subpicture heaps and, for video, its video output
// worker (spec §2 items 3/4/6/7 are all per-stream).
type streamEntry struct {
	ctx     *decoderworker.Context
	vout    *vout.Worker
	heap    *heap.Heap
	subHeap *subheap.Heap
}

// Controller is the root façade of spec §4.7: the set of operations the
// demuxer thread calls to drive one or more elementary streams through
// decode to output.
type Controller struct {
	cfg    Config
	log    *slog.Logger
	clock  clock.Oracle
	loader codecapi.Loader
	pool   *sink.Pool
	events *events.Manager
	stats  *stats.Sink
	present vout.PresentFunc

	mu      sync.RWMutex
	streams map[string]*streamEntry
}

// New creates a Controller. clock and loader are required collaborators;
// sinkFactory backs the shared sink.Pool; present (may be nil) is called
// by every video stream's output worker when it flips buffers.
func New(cfg Config, clockOracle clock.Oracle, loader codecapi.Loader, sinkFactory sink.Factory, present vout.PresentFunc) *Controller {
	cfg.applyDefaults()
	log := slog.Default().With("component", "pipeline")
	return &Controller{
		cfg:     cfg,
		log:     log,
		clock:   clockOracle,
		loader:  loader,
		pool:    sink.NewPool(sinkFactory, log),
		events:  events.NewManager(cfg.EventsConcurrency, log),
		stats:   stats.NewSink(),
		present: present,
		streams: make(map[string]*streamEntry),
	}
}

// Subscribe registers an observer for controller-wide lifecycle events
// (format changes, stream errors).
func (c *Controller) Subscribe(t events.Type, o events.Observer) {
	c.events.Subscribe(t, o)
}

// Stats returns the shared statistics sink, for a host to poll or export.
func (c *Controller) Stats() *stats.Sink { return c.stats }

func (c *Controller) entry(streamID string) (*streamEntry, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.streams[streamID]
	if !ok {
		return nil, pipelineerrors.NewProgrammerError("pipeline.entry", nil)
	}
	return e, nil
}

// Create implements spec §4.7 "create": allocate the stream's owner
// record with its picture heap and subpicture heap and, for video, its
// video output worker.
func (c *Controller) Create(streamID string, category codecapi.Category, format codecapi.FormatDescriptor, packetiser codecapi.Packetiser) error {
	c.mu.Lock()
	if _, exists := c.streams[streamID]; exists {
		c.mu.Unlock()
		return pipelineerrors.NewProgrammerError("pipeline.create", nil)
	}
	c.mu.Unlock()

	h := heap.New(c.cfg.HeapCapacity)
	sh := subheap.New(c.cfg.SubHeapCapacity)

	ctx, err := decoderworker.New(streamID, category, format, decoderworker.Deps{
		Clock:    c.clock,
		Loader:   c.loader,
		SinkPool: c.pool,
		Heap:     h,
		SubHeap:  sh,
		Stats:    c.stats,
		Events:   c.events,
		Logger:   c.log,
	}, packetiser)
	if err != nil {
		return err
	}

	entry := &streamEntry{ctx: ctx, heap: h, subHeap: sh}
	if category == codecapi.CategoryVideo {
		entry.vout = vout.NewWorker(streamID, c.cfg.SinkWidth, c.cfg.SinkHeight, aspectFor(format.SampleAspectNum, format.SampleAspectDen), vout.Deps{
			Heap:    h,
			SubHeap: sh,
			Stats:   c.stats,
			Events:  c.events,
			Present: c.present,
			Logger:  c.log,
		})
	}

	c.mu.Lock()
	c.streams[streamID] = entry
	c.mu.Unlock()
	return nil
}

// Delete implements spec §4.7 "delete".
func (c *Controller) Delete(streamID string) error {
	c.mu.Lock()
	e, ok := c.streams[streamID]
	if !ok {
		c.mu.Unlock()
		return pipelineerrors.NewProgrammerError("pipeline.delete", nil)
	}
	delete(c.streams, streamID)
	c.mu.Unlock()

	if e.vout != nil {
		e.vout.Stop()
	}
	e.ctx.Delete()
	return nil
}

// Enqueue implements §4.1's producer-side policy for one stream.
func (c *Controller) Enqueue(streamID string, b *codecapi.Block, paced bool) error {
	e, err := c.entry(streamID)
	if err != nil {
		return err
	}
	e.ctx.Enqueue(b, paced)
	return nil
}

func (c *Controller) Pause(streamID string, paused bool, date int64) error {
	e, err := c.entry(streamID)
	if err != nil {
		return err
	}
	e.ctx.Pause(paused, date)
	return nil
}

func (c *Controller) SetDelay(streamID string, delay int64) error {
	e, err := c.entry(streamID)
	if err != nil {
		return err
	}
	e.ctx.SetDelay(delay)
	return nil
}

func (c *Controller) StartWait(streamID string) error {
	e, err := c.entry(streamID)
	if err != nil {
		return err
	}
	e.ctx.StartWait()
	return nil
}

func (c *Controller) StopWait(streamID string) error {
	e, err := c.entry(streamID)
	if err != nil {
		return err
	}
	e.ctx.StopWait()
	return nil
}

func (c *Controller) WaitUntilData(streamID string) error {
	e, err := c.entry(streamID)
	if err != nil {
		return err
	}
	e.ctx.WaitUntilData()
	return nil
}

func (c *Controller) Flush(streamID string) error {
	e, err := c.entry(streamID)
	if err != nil {
		return err
	}
	e.ctx.Flush()
	return nil
}

func (c *Controller) Drain(streamID string) error {
	e, err := c.entry(streamID)
	if err != nil {
		return err
	}
	e.ctx.Drain()
	return nil
}

func (c *Controller) FrameNext(streamID string) error {
	e, err := c.entry(streamID)
	if err != nil {
		return err
	}
	e.ctx.FrameNext()
	return nil
}

func (c *Controller) IsEmpty(streamID string) (bool, error) {
	e, err := c.entry(streamID)
	if err != nil {
		return false, err
	}
	return e.ctx.IsEmpty(), nil
}

func (c *Controller) SetCCState(streamID string, channel int, on bool) error {
	e, err := c.entry(streamID)
	if err != nil {
		return err
	}
	return e.ctx.SetCCState(channel, on)
}

func (c *Controller) FormatChanged(streamID string) (codecapi.FormatDescriptor, bool, error) {
	e, err := c.entry(streamID)
	if err != nil {
		return codecapi.FormatDescriptor{}, false, err
	}
	fd, changed := e.ctx.FormatChanged()
	return fd, changed, nil
}

// Close tears down every stream and the shared event manager. Intended
// for host shutdown, not per-stream cleanup (use Delete for that).
func (c *Controller) Close() {
	c.mu.Lock()
	ids := make([]string, 0, len(c.streams))
	for id := range c.streams {
		ids = append(ids, id)
	}
	c.mu.Unlock()

	for _, id := range ids {
		_ = c.Delete(id)
	}
	c.events.Close()
}
