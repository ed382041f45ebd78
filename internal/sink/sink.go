// Package sink defines the downstream device contracts of spec §6 (audio
// output, video output, subtitle submission) and a resource pool that
// rents and reclaims them by format compatibility, adapted from the
// teacher's relay.Destination/DestinationManager: a status-tracked entry
// per sink, metrics under the same lock as status, an RWMutex-guarded
// registry.
package sink

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/alxayo/decoder-pipeline/internal/codecapi"
	pipelineerrors "github.com/alxayo/decoder-pipeline/internal/errors"
	"github.com/alxayo/decoder-pipeline/internal/heap"
)

// Sink is the common surface every rentable sink exposes to the pool.
type Sink interface {
	Category() codecapi.Category
	Format() codecapi.FormatDescriptor
	Close() error
}

// AudioSink is the audio device abstraction of spec §6.
type AudioSink interface {
	Sink
	Play(buf *codecapi.AudioUnit, rate int) error
	Flush(onPause bool)
	ChangePause(paused bool, date int64)
	GetResetLost() int
}

// VideoSink is the video device abstraction of spec §6. GetPicture requests
// a free slot from the backing picture heap; PutPicture/PutSubpicture hand
// decoded output to the renderer; NextPicture is used by frame-next
// stepping while paused.
type VideoSink interface {
	Sink
	GetPicture() (*heap.Slot, error)
	PutPicture(pic *heap.Slot) error
	PutSubpicture(sp interface{}) error
	Flush(date int64)
	ChangePause(paused bool, date int64)
	NextPicture() (*heap.Slot, bool)
	Reset()
	IsEmpty() bool
}

// Factory constructs a sink for the given negotiated format and decoded
// picture-buffer count (videoDPB is ignored by audio factories).
type Factory func(format codecapi.FormatDescriptor, videoDPB int) (Sink, error)

// Status mirrors the teacher's DestinationStatus enum, adapted to the
// rent/return lifecycle instead of connect/disconnect.
type Status int

const (
	StatusIdle Status = iota
	StatusRented
	StatusClosed
)

func (s Status) String() string {
	switch s {
	case StatusIdle:
		return "idle"
	case StatusRented:
		return "rented"
	case StatusClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Metrics tracks pool activity for one entry, mirroring
// relay.DestinationMetrics's shape.
type Metrics struct {
	RentCount   uint64
	ReturnCount uint64
	LastRentAt  time.Time
	LastReturnAt time.Time
}

type entry struct {
	sink    Sink
	status  Status
	metrics Metrics
}

// Pool rents sinks keyed by format compatibility (codecapi.FormatDescriptor
// .Equal) and reclaims them on return, constructing new ones through
// factory on a miss.
type Pool struct {
	mu      sync.RWMutex
	entries []*entry
	factory Factory
	logger  *slog.Logger
}

// NewPool creates an empty Pool backed by factory.
func NewPool(factory Factory, logger *slog.Logger) *Pool {
	if logger == nil {
		logger = slog.Default()
	}
	return &Pool{factory: factory, logger: logger.With("component", "sink_pool")}
}

// Rent returns an idle sink whose format is Equal to the requested one, or
// asks the factory for a new one if none match. videoDPB is only
// meaningful for video category requests.
func (p *Pool) Rent(format codecapi.FormatDescriptor, videoDPB int) (Sink, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	for _, e := range p.entries {
		if e.status == StatusIdle && e.sink.Category() == format.Category && e.sink.Format().Equal(format) {
			e.status = StatusRented
			e.metrics.RentCount++
			e.metrics.LastRentAt = time.Now()
			p.logger.Debug("sink pool rent hit", "category", format.Category, "codec", format.Codec)
			return e.sink, nil
		}
	}

	s, err := p.factory(format, videoDPB)
	if err != nil {
		p.logger.Error("sink pool factory failed", "category", format.Category, "codec", format.Codec, "error", err)
		return nil, pipelineerrors.NewResourceError("sink.rent", fmt.Errorf("construct sink for %s/%s: %w", format.Category, format.Codec, err))
	}
	e := &entry{sink: s, status: StatusRented}
	e.metrics.RentCount = 1
	e.metrics.LastRentAt = time.Now()
	p.entries = append(p.entries, e)
	p.logger.Info("sink pool rent miss, created sink", "category", format.Category, "codec", format.Codec)
	return s, nil
}

// Return marks a rented sink idle, making it available for the next
// compatible Rent. Returning a sink not known to the pool is a no-op.
func (p *Pool) Return(s Sink) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, e := range p.entries {
		if e.sink == s {
			e.status = StatusIdle
			e.metrics.ReturnCount++
			e.metrics.LastReturnAt = time.Now()
			return
		}
	}
	p.logger.Warn("sink pool return of unknown sink")
}

// Evict closes and removes a sink from the pool permanently; used when a
// sink errors rather than merely goes idle on format change.
func (p *Pool) Evict(s Sink) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for i, e := range p.entries {
		if e.sink == s {
			e.status = StatusClosed
			_ = e.sink.Close()
			p.entries = append(p.entries[:i], p.entries[i+1:]...)
			return
		}
	}
}

// Close closes every sink in the pool, regardless of status.
func (p *Pool) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	var lastErr error
	for _, e := range p.entries {
		if e.status == StatusClosed {
			continue
		}
		if err := e.sink.Close(); err != nil {
			lastErr = err
		}
		e.status = StatusClosed
	}
	p.entries = nil
	return lastErr
}

// Count returns the number of sinks tracked by the pool, regardless of
// status.
func (p *Pool) Count() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.entries)
}

// Snapshot returns a point-in-time copy of every entry's metrics, keyed by
// category/codec for diagnostics.
func (p *Pool) Snapshot() map[string]Metrics {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make(map[string]Metrics, len(p.entries))
	for _, e := range p.entries {
		key := fmt.Sprintf("%s/%s", e.sink.Category(), e.sink.Format().Codec)
		out[key] = e.metrics
	}
	return out
}
