// Package stats implements the statistics sink of spec §6: an accumulator
// for the decoder worker's cumulative counters (decoded/played/lost/
// displayed), guarded by its own lock, decoupled from any owner lock so
// that surfacing counters never competes with the worker's hot path.
package stats

import "sync"

// Counters is an immutable snapshot of accumulated counts.
type Counters struct {
	Decoded   uint64
	Played    uint64
	Lost      uint64
	Displayed uint64
}

// Sink accepts counter deltas from one or more decoder workers and video
// output workers, keyed by stream ID.
type Sink struct {
	mu     sync.Mutex
	totals map[string]*Counters
}

// NewSink creates an empty statistics Sink.
func NewSink() *Sink {
	return &Sink{totals: make(map[string]*Counters)}
}

// AddDecoded, AddPlayed, AddLost and AddDisplayed apply a delta to the
// named stream's counters, creating the entry on first use.
func (s *Sink) AddDecoded(streamID string, delta uint64)   { s.add(streamID, delta, 0, 0, 0) }
func (s *Sink) AddPlayed(streamID string, delta uint64)    { s.add(streamID, 0, delta, 0, 0) }
func (s *Sink) AddLost(streamID string, delta uint64)      { s.add(streamID, 0, 0, delta, 0) }
func (s *Sink) AddDisplayed(streamID string, delta uint64) { s.add(streamID, 0, 0, 0, delta) }

func (s *Sink) add(streamID string, decoded, played, lost, displayed uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.totals[streamID]
	if !ok {
		c = &Counters{}
		s.totals[streamID] = c
	}
	c.Decoded += decoded
	c.Played += played
	c.Lost += lost
	c.Displayed += displayed
}

// Snapshot returns a copy of one stream's counters.
func (s *Sink) Snapshot(streamID string) Counters {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c, ok := s.totals[streamID]; ok {
		return *c
	}
	return Counters{}
}

// All returns a copy of every tracked stream's counters.
func (s *Sink) All() map[string]Counters {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]Counters, len(s.totals))
	for id, c := range s.totals {
		out[id] = *c
	}
	return out
}

// Reset clears one stream's counters, used when a decoder context is
// deleted.
func (s *Sink) Reset(streamID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.totals, streamID)
}
