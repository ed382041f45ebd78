// Package events implements the lifecycle observer registry used by the
// controller façade to raise format-changed and stream-error
// notifications to external watchers, adapted from the teacher's
// hooks.HookManager: a type-keyed registry, an execution pool bounding
// concurrent observer calls, and asynchronous dispatch so a slow observer
// never stalls the decoder or video output worker that raised the event.
package events

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/alxayo/decoder-pipeline/internal/codecapi"
)

// Type identifies a pipeline lifecycle event.
type Type string

const (
	TypeFormatChanged Type = "format_changed"
	TypeStreamErrored Type = "stream_errored"
	TypeFlushed       Type = "flushed"
	TypeDrained       Type = "drained"
)

// Event carries the data an observer needs; Format is only populated for
// TypeFormatChanged.
type Event struct {
	Type      Type
	StreamID  string
	Category  codecapi.Category
	Format    codecapi.FormatDescriptor
	Err       error
	At        time.Time
}

// Observer is notified of pipeline events. Implementations must return
// promptly; Manager bounds concurrency but does not itself enforce a
// per-call timeout.
type Observer interface {
	OnEvent(ctx context.Context, ev Event)
}

// ObserverFunc adapts a plain function to Observer.
type ObserverFunc func(ctx context.Context, ev Event)

func (f ObserverFunc) OnEvent(ctx context.Context, ev Event) { f(ctx, ev) }

// DefaultConcurrency bounds how many observer calls run at once across all
// event types, mirroring the teacher's default hook execution pool size.
const DefaultConcurrency = 10

// Manager registers observers per event Type and dispatches events to them
// asynchronously.
type Manager struct {
	mu        sync.RWMutex
	observers map[Type][]Observer
	pool      chan struct{}
	logger    *slog.Logger
	wg        sync.WaitGroup
}

// NewManager creates a Manager with the given observer concurrency bound
// (DefaultConcurrency if <= 0).
func NewManager(concurrency int, logger *slog.Logger) *Manager {
	if concurrency <= 0 {
		concurrency = DefaultConcurrency
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		observers: make(map[Type][]Observer),
		pool:      make(chan struct{}, concurrency),
		logger:    logger.With("component", "events"),
	}
}

// Subscribe registers an observer for the given event type.
func (m *Manager) Subscribe(t Type, o Observer) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.observers[t] = append(m.observers[t], o)
}

// Publish dispatches ev to every observer registered for ev.Type,
// asynchronously and bounded by the manager's concurrency pool. Publish
// itself does not block: each dispatch goroutine waits for a pool slot
// when the pool is saturated.
func (m *Manager) Publish(ctx context.Context, ev Event) {
	m.mu.RLock()
	observers := make([]Observer, len(m.observers[ev.Type]))
	copy(observers, m.observers[ev.Type])
	m.mu.RUnlock()

	if len(observers) == 0 {
		return
	}

	for _, o := range observers {
		m.wg.Add(1)
		go m.dispatch(ctx, o, ev)
	}
}

func (m *Manager) dispatch(ctx context.Context, o Observer, ev Event) {
	defer m.wg.Done()
	m.pool <- struct{}{}
	defer func() { <-m.pool }()

	start := time.Now()
	o.OnEvent(ctx, ev)
	m.logger.Debug("observer dispatched", "event_type", ev.Type, "stream_id", ev.StreamID, "duration_ms", time.Since(start).Milliseconds())
}

// Close waits for all in-flight dispatches to finish. It does not prevent
// new Publish calls; callers should stop publishing before calling Close.
func (m *Manager) Close() {
	m.wg.Wait()
}
