// Package fifo implements the bounded, thread-safe Block queue of spec
// §4.1: a single-producer-safe, multi-consumer-safe FIFO with
// dequeue-blocking, dequeue-all (flush) and a signal-only wakeup.
//
// Storage is a lock-free MPSC ring buffer (code.hybscloud.com/lfq); a
// mutex/condition-variable layer on top supplies the blocking wait the
// lock-free queue intentionally omits by design (its own doc.go "Pipeline
// Stage" example busy-waits with backoff; the decoder worker instead wants
// to sleep until data arrives or the connection is cancelled).
package fifo

import (
	"log/slog"
	"sync"

	"code.hybscloud.com/lfq"

	"github.com/alxayo/decoder-pipeline/internal/codecapi"
)

// Back-pressure regimes (spec §4.1).
const (
	PacedHighWatermark = 10
	UnpacedByteCeiling = 400 << 20 // 400 MiB
	ringCapacity       = 4096
)

// FIFO is the Block queue shared between the demuxer (producer) and a
// decoder worker (consumer).
type FIFO struct {
	mu   sync.Mutex
	cond *sync.Cond

	ring *lfq.MPSC[*codecapi.Block]

	count     int
	byteSize  int64
	cancelled bool

	log *slog.Logger
}

// New creates an empty FIFO. log may be nil.
func New(log *slog.Logger) *FIFO {
	if log == nil {
		log = slog.Default()
	}
	f := &FIFO{ring: lfq.NewMPSC[*codecapi.Block](ringCapacity), log: log}
	f.cond = sync.NewCond(&f.mu)
	return f
}

// Enqueue appends a block. When paced it blocks the producer once Count()
// >= PacedHighWatermark until space frees; when unpaced it never blocks but
// drops the entire queue (releasing every block) if ByteSize() would
// exceed UnpacedByteCeiling, logging a warning. A nil b is queued as a
// sentinel: it counts toward Count() but adds nothing to ByteSize().
func (f *FIFO) Enqueue(b *codecapi.Block, paced bool) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.cancelled {
		return
	}

	size := 0
	if b != nil {
		size = b.Size
	}
	if paced {
		for f.count >= PacedHighWatermark && !f.cancelled {
			f.cond.Wait()
		}
		if f.cancelled {
			return
		}
	} else if f.byteSize+int64(size) > UnpacedByteCeiling {
		f.log.Warn("fifo overrun, dropping queue", "byte_size", f.byteSize, "ceiling", UnpacedByteCeiling)
		f.dropAllLocked()
	}

	if err := f.ring.Enqueue(&b); err != nil {
		// Physical ring exhausted (pathological burst beyond the paced
		// watermark's intent); make room by dropping the oldest entries
		// rather than blocking forever or losing the newest block silently.
		f.log.Warn("fifo ring exhausted, dropping oldest block")
		if old, derr := f.ring.Dequeue(); derr == nil {
			f.count--
			if old != nil {
				f.byteSize -= int64(old.Size)
				old.Release()
			}
		}
		_ = f.ring.Enqueue(&b)
	}
	f.count++
	f.byteSize += int64(size)
	f.cond.Signal()
}

// DequeueBlocking waits until the FIFO is non-empty or Cancel is called,
// then returns the head. ok is false only when cancelled with nothing left
// to drain.
func (f *FIFO) DequeueBlocking() (b *codecapi.Block, ok bool) {
	f.mu.Lock()
	defer f.mu.Unlock()

	for f.count == 0 && !f.cancelled {
		f.cond.Wait()
	}
	if f.count == 0 {
		return nil, false
	}
	return f.popLocked(), true
}

// DequeueAll returns the entire chain, leaving the FIFO empty. Used on
// flush.
func (f *FIFO) DequeueAll() []*codecapi.Block {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]*codecapi.Block, 0, f.count)
	for f.count > 0 {
		out = append(out, f.popLocked())
	}
	return out
}

// Signal wakes one waiter without enqueueing.
func (f *FIFO) Signal() {
	f.mu.Lock()
	f.cond.Signal()
	f.mu.Unlock()
}

// Cancel unblocks every waiter permanently (used by Controller.Delete's
// cancellation point, spec §5).
func (f *FIFO) Cancel() {
	f.mu.Lock()
	f.cancelled = true
	f.cond.Broadcast()
	f.mu.Unlock()
}

// Count returns the current number of queued blocks.
func (f *FIFO) Count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.count
}

// ByteSize returns the current cumulative payload size of queued blocks.
func (f *FIFO) ByteSize() int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.byteSize
}

func (f *FIFO) popLocked() *codecapi.Block {
	b, err := f.ring.Dequeue()
	if err != nil {
		return nil
	}
	f.count--
	if b != nil {
		f.byteSize -= int64(b.Size)
	}
	f.cond.Signal() // wake a paced producer blocked on the watermark
	return b
}

func (f *FIFO) dropAllLocked() {
	for f.count > 0 {
		if b := f.popLocked(); b != nil {
			b.Release()
		}
	}
}
