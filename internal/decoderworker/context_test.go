package decoderworker

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alxayo/decoder-pipeline/internal/clock"
	"github.com/alxayo/decoder-pipeline/internal/codecapi"
	"github.com/alxayo/decoder-pipeline/internal/heap"
	"github.com/alxayo/decoder-pipeline/internal/sink"
	"github.com/alxayo/decoder-pipeline/internal/subheap"
)

// fakeAudioPlugin decodes one AudioUnit per non-nil block, stamping
// monotonically increasing PTS so ordering can be asserted.
type fakeAudioPlugin struct {
	mu      sync.Mutex
	seq     int64
	closed  bool
	format  codecapi.FormatDescriptor
	failing bool
}

func (p *fakeAudioPlugin) Family() codecapi.CodecFamily { return codecapi.FamilyOther }
func (p *fakeAudioPlugin) Close()                       { p.mu.Lock(); p.closed = true; p.mu.Unlock() }

func (p *fakeAudioPlugin) DecodeAudio(b *codecapi.Block) (*codecapi.AudioUnit, error) {
	if b == nil {
		return nil, nil
	}
	if p.failing {
		return nil, errors.New("boom")
	}
	p.mu.Lock()
	p.seq++
	pts := p.seq * 1000
	p.mu.Unlock()
	return &codecapi.AudioUnit{PTS: pts, Duration: 1000, Format: p.format}, nil
}

type fakeLoader struct {
	plugin codecapi.Plugin
	err    error
}

func (l *fakeLoader) Load(codecapi.FormatDescriptor) (codecapi.Plugin, error) {
	if l.err != nil {
		return nil, l.err
	}
	return l.plugin, nil
}

type recordingAudioSink struct {
	mu      sync.Mutex
	format  codecapi.FormatDescriptor
	played  []int64
	flushed int
	pauses  int
}

func (s *recordingAudioSink) Category() codecapi.Category      { return codecapi.CategoryAudio }
func (s *recordingAudioSink) Format() codecapi.FormatDescriptor { return s.format }
func (s *recordingAudioSink) Close() error                     { return nil }
func (s *recordingAudioSink) Play(u *codecapi.AudioUnit, rate int) error {
	s.mu.Lock()
	s.played = append(s.played, u.PTS)
	s.mu.Unlock()
	return nil
}
func (s *recordingAudioSink) Flush(onPause bool) { s.mu.Lock(); s.flushed++; s.mu.Unlock() }
func (s *recordingAudioSink) ChangePause(bool, int64) { s.mu.Lock(); s.pauses++; s.mu.Unlock() }
func (s *recordingAudioSink) GetResetLost() int { return 0 }

func (s *recordingAudioSink) snapshot() []int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]int64, len(s.played))
	copy(out, s.played)
	return out
}

func newTestContext(t *testing.T, plugin *fakeAudioPlugin, audioSink sink.AudioSink) *Context {
	t.Helper()
	fmtDesc := codecapi.FormatDescriptor{Category: codecapi.CategoryAudio, Codec: "pcm"}
	c, err := New("stream-1", codecapi.CategoryAudio, fmtDesc, Deps{
		Clock:   clock.NewIdentity(),
		Loader:  &fakeLoader{plugin: plugin},
		Heap:    heap.New(heap.DefaultCapacity),
		SubHeap: subheap.New(subheap.DefaultCapacity),
	}, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	c.mu.Lock()
	c.audioSink = audioSink
	c.outputFormat = fmtDesc
	c.mu.Unlock()
	return c
}

func waitForCondition(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatal("condition not met before timeout")
}

func TestEnqueuePlaysUnitsInOrder(t *testing.T) {
	plugin := &fakeAudioPlugin{format: codecapi.FormatDescriptor{Category: codecapi.CategoryAudio, Codec: "pcm"}}
	rs := &recordingAudioSink{format: plugin.format}
	c := newTestContext(t, plugin, rs)
	defer c.Delete()

	for i := 0; i < 3; i++ {
		c.Enqueue(codecapi.NewBlock([]byte{byte(i)}), false)
	}

	waitForCondition(t, time.Second, func() bool { return len(rs.snapshot()) == 3 })
	got := rs.snapshot()
	for i := 1; i < len(got); i++ {
		if got[i] <= got[i-1] {
			t.Fatalf("expected strictly increasing PTS, got %v", got)
		}
	}
}

func TestDeleteStopsWorkerAndReturnsSinks(t *testing.T) {
	plugin := &fakeAudioPlugin{format: codecapi.FormatDescriptor{Category: codecapi.CategoryAudio, Codec: "pcm"}}
	rs := &recordingAudioSink{format: plugin.format}
	factoryCalls := 0
	pool := sink.NewPool(func(format codecapi.FormatDescriptor, dpb int) (sink.Sink, error) {
		factoryCalls++
		return rs, nil
	}, nil)

	c := newTestContext(t, plugin, nil)
	c.deps.SinkPool = pool
	rented, err := pool.Rent(plugin.format, 0)
	if err != nil {
		t.Fatalf("Rent: %v", err)
	}
	c.mu.Lock()
	c.audioSink = rented.(sink.AudioSink)
	c.mu.Unlock()

	c.Delete()

	plugin.mu.Lock()
	closed := plugin.closed
	plugin.mu.Unlock()
	if !closed {
		t.Fatal("expected plugin to be closed on delete")
	}
	if pool.Count() != 1 {
		t.Fatalf("expected the audio sink to be returned to the pool, count = %d", pool.Count())
	}
	if got := pool.Snapshot()["audio/pcm"].ReturnCount; got != 1 {
		t.Fatalf("expected one return of the audio sink to the pool, got %d", got)
	}
}

func TestFlushClearsFIFOAndUnblocks(t *testing.T) {
	plugin := &fakeAudioPlugin{format: codecapi.FormatDescriptor{Category: codecapi.CategoryAudio, Codec: "pcm"}}
	rs := &recordingAudioSink{format: plugin.format}
	c := newTestContext(t, plugin, rs)
	defer c.Delete()

	for i := 0; i < 5; i++ {
		c.Enqueue(codecapi.NewBlock([]byte{byte(i)}), false)
	}

	done := make(chan struct{})
	go func() {
		c.Flush()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Flush did not return")
	}

	if c.fifo.Count() != 0 {
		t.Fatal("expected FIFO to be empty after flush")
	}
}

func TestDrainFlushesAudioSinkOnceFIFOEmpties(t *testing.T) {
	plugin := &fakeAudioPlugin{format: codecapi.FormatDescriptor{Category: codecapi.CategoryAudio, Codec: "pcm"}}
	rs := &recordingAudioSink{format: plugin.format}
	c := newTestContext(t, plugin, rs)
	defer c.Delete()

	c.Enqueue(codecapi.NewBlock([]byte{1}), false)
	c.Drain()

	waitForCondition(t, time.Second, func() bool {
		rs.mu.Lock()
		defer rs.mu.Unlock()
		return rs.flushed > 0
	})
}

func TestPauseIsNoOpWhenStateMatches(t *testing.T) {
	plugin := &fakeAudioPlugin{format: codecapi.FormatDescriptor{Category: codecapi.CategoryAudio, Codec: "pcm"}}
	rs := &recordingAudioSink{format: plugin.format}
	c := newTestContext(t, plugin, rs)
	defer c.Delete()

	c.Pause(false, 0)
	rs.mu.Lock()
	flushed, pauses := rs.flushed, rs.pauses
	rs.mu.Unlock()
	if flushed != 0 || pauses != 0 {
		t.Fatal("expected Pause(false) on an already-unpaused stream to be a no-op")
	}
}

func TestSetCCStateTracksPresence(t *testing.T) {
	plugin := &fakeAudioPlugin{format: codecapi.FormatDescriptor{Category: codecapi.CategoryAudio, Codec: "pcm"}}
	rs := &recordingAudioSink{format: plugin.format}
	c := newTestContext(t, plugin, rs)
	defer c.Delete()
	c.deps.Loader = &fakeLoader{plugin: &fakeAudioPlugin{}}

	if err := c.SetCCState(0, true); err != nil {
		t.Fatalf("SetCCState(on): %v", err)
	}
	c.mu.Lock()
	sub := c.ccSubs[0]
	c.mu.Unlock()
	if sub == nil {
		t.Fatal("expected a CC sub-decoder to be created")
	}

	if err := c.SetCCState(0, false); err != nil {
		t.Fatalf("SetCCState(off): %v", err)
	}
	c.mu.Lock()
	sub = c.ccSubs[0]
	c.mu.Unlock()
	if sub != nil {
		t.Fatal("expected the CC sub-decoder to be torn down")
	}
}

func TestSetCCStateRejectsOutOfRangeChannel(t *testing.T) {
	plugin := &fakeAudioPlugin{format: codecapi.FormatDescriptor{Category: codecapi.CategoryAudio, Codec: "pcm"}}
	rs := &recordingAudioSink{format: plugin.format}
	c := newTestContext(t, plugin, rs)
	defer c.Delete()

	if err := c.SetCCState(ccChannels, true); err == nil {
		t.Fatal("expected an error for an out-of-range CC channel")
	}
}

func TestPlaySubtitleDropsOutputBelowPrerollBoundaryThenClearsIt(t *testing.T) {
	plugin := &fakeAudioPlugin{format: codecapi.FormatDescriptor{Category: codecapi.CategorySubtitle, Codec: "text"}}
	c := newTestContext(t, plugin, nil)
	defer c.Delete()
	c.mu.Lock()
	c.category = codecapi.CategorySubtitle
	c.prerollBoundary = 5000
	c.mu.Unlock()

	c.playSubtitle(&codecapi.SubtitleUnit{Start: 1000, End: 2000, Width: 4, Height: 4})

	c.mu.Lock()
	lost, played, boundary := c.counters.lost, c.counters.played, c.prerollBoundary
	c.mu.Unlock()
	if lost != 0 || played != 0 {
		t.Fatalf("expected a subpicture below the preroll boundary to be skipped without counting it played or lost, lost=%d played=%d", lost, played)
	}
	if boundary != 5000 {
		t.Fatalf("expected the preroll boundary to stay armed after a drop, got %d", boundary)
	}

	c.playSubtitle(&codecapi.SubtitleUnit{Start: 9000, End: 9500, Width: 4, Height: 4})

	c.mu.Lock()
	played, boundary = c.counters.played, c.prerollBoundary
	c.mu.Unlock()
	if played != 1 {
		t.Fatalf("expected a subpicture past the preroll boundary to play, played=%d", played)
	}
	if boundary != codecapi.InvalidTS {
		t.Fatalf("expected the preroll boundary to clear once crossed, got %d", boundary)
	}
}

func TestErroredStreamDropsBlocksWithoutDecoding(t *testing.T) {
	plugin := &fakeAudioPlugin{format: codecapi.FormatDescriptor{Category: codecapi.CategoryAudio, Codec: "pcm"}, failing: true}
	rs := &recordingAudioSink{format: plugin.format}
	c := newTestContext(t, plugin, rs)
	defer c.Delete()

	c.mu.Lock()
	c.errored = true
	c.mu.Unlock()

	c.Enqueue(codecapi.NewBlock([]byte{1}), false)
	time.Sleep(20 * time.Millisecond)

	if len(rs.snapshot()) != 0 {
		t.Fatal("expected an errored stream to drop blocks instead of decoding them")
	}
}
