package pipeline

import (
	"sync"
	"testing"
	"time"

	"github.com/alxayo/decoder-pipeline/internal/clock"
	"github.com/alxayo/decoder-pipeline/internal/codecapi"
	"github.com/alxayo/decoder-pipeline/internal/sink"
	"github.com/alxayo/decoder-pipeline/internal/vout"
)

type fakeAudioPlugin struct {
	mu  sync.Mutex
	seq int64
}

func (p *fakeAudioPlugin) Family() codecapi.CodecFamily { return codecapi.FamilyOther }
func (p *fakeAudioPlugin) Close()                       {}

func (p *fakeAudioPlugin) DecodeAudio(b *codecapi.Block) (*codecapi.AudioUnit, error) {
	if b == nil {
		return nil, nil
	}
	p.mu.Lock()
	p.seq++
	pts := p.seq * 1000
	p.mu.Unlock()
	return &codecapi.AudioUnit{PTS: pts, Duration: 1000}, nil
}

type fakeLoader struct{ plugin codecapi.Plugin }

func (l *fakeLoader) Load(codecapi.FormatDescriptor) (codecapi.Plugin, error) {
	return l.plugin, nil
}

type recordingAudioSink struct {
	mu     sync.Mutex
	format codecapi.FormatDescriptor
	played []int64
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
func (s *recordingAudioSink) Flush(onPause bool)      {}
func (s *recordingAudioSink) ChangePause(bool, int64) {}
func (s *recordingAudioSink) GetResetLost() int       { return 0 }

func (s *recordingAudioSink) snapshot() []int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]int64, len(s.played))
	copy(out, s.played)
	return out
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

func newTestController(t *testing.T, rs *recordingAudioSink) *Controller {
	t.Helper()
	factory := func(format codecapi.FormatDescriptor, dpb int) (sink.Sink, error) {
		return rs, nil
	}
	return New(Config{}, clock.NewIdentity(), &fakeLoader{plugin: &fakeAudioPlugin{}}, factory, nil)
}

func TestControllerCreateEnqueueDeleteAudioStream(t *testing.T) {
	rs := &recordingAudioSink{format: codecapi.FormatDescriptor{Category: codecapi.CategoryAudio, Codec: "pcm"}}
	c := newTestController(t, rs)
	defer c.Close()

	fd := codecapi.FormatDescriptor{Category: codecapi.CategoryAudio, Codec: "pcm"}
	if err := c.Create("audio-1", codecapi.CategoryAudio, fd, nil); err != nil {
		t.Fatalf("Create: %v", err)
	}

	for i := 0; i < 3; i++ {
		if err := c.Enqueue("audio-1", codecapi.NewBlock([]byte{byte(i)}), false); err != nil {
			t.Fatalf("Enqueue: %v", err)
		}
	}

	waitForCondition(t, time.Second, func() bool { return len(rs.snapshot()) == 3 })

	if err := c.Drain("audio-1"); err != nil {
		t.Fatalf("Drain: %v", err)
	}
	waitForCondition(t, time.Second, func() bool {
		e, _ := c.IsEmpty("audio-1")
		return e
	})

	empty, err := c.IsEmpty("audio-1")
	if err != nil {
		t.Fatalf("IsEmpty: %v", err)
	}
	if !empty {
		t.Fatal("expected the FIFO to have drained")
	}

	if err := c.Delete("audio-1"); err != nil {
		t.Fatalf("Delete: %v", err)
	}

	if err := c.Enqueue("audio-1", codecapi.NewBlock([]byte{9}), false); err == nil {
		t.Fatal("expected Enqueue on a deleted stream to fail")
	}
}

func TestControllerCreateRejectsDuplicateStreamID(t *testing.T) {
	rs := &recordingAudioSink{format: codecapi.FormatDescriptor{Category: codecapi.CategoryAudio, Codec: "pcm"}}
	c := newTestController(t, rs)
	defer c.Close()

	fd := codecapi.FormatDescriptor{Category: codecapi.CategoryAudio, Codec: "pcm"}
	if err := c.Create("audio-1", codecapi.CategoryAudio, fd, nil); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := c.Create("audio-1", codecapi.CategoryAudio, fd, nil); err == nil {
		t.Fatal("expected a duplicate Create to fail")
	}
}

func TestControllerVideoStreamGetsAVideoOutputWorker(t *testing.T) {
	rs := &recordingAudioSink{format: codecapi.FormatDescriptor{Category: codecapi.CategoryAudio, Codec: "pcm"}}
	c := newTestController(t, rs)
	defer c.Close()

	fd := codecapi.FormatDescriptor{
		Category: codecapi.CategoryVideo, Codec: "raw",
		Pixel: codecapi.PixelFormatRGBPacked, Width: 64, Height: 32,
		SampleAspectNum: 16, SampleAspectDen: 9,
	}
	if err := c.Create("video-1", codecapi.CategoryVideo, fd, nil); err != nil {
		t.Fatalf("Create: %v", err)
	}

	e, err := c.entry("video-1")
	if err != nil {
		t.Fatalf("entry: %v", err)
	}
	if e.vout == nil {
		t.Fatal("expected a video output worker for a video stream")
	}

	if err := c.Delete("video-1"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
}

func TestAspectForPicksNearestNamedRatio(t *testing.T) {
	cases := []struct {
		num, den int
		want     vout.AspectRatio
	}{
		{4, 3, vout.Aspect4x3},
		{16, 9, vout.Aspect16x9},
		{221, 100, vout.Aspect221x1},
		{1, 1, vout.AspectSquare},
		{0, 0, vout.AspectSquare},
	}
	for _, tc := range cases {
		if got := aspectFor(tc.num, tc.den); got != tc.want {
			t.Fatalf("aspectFor(%d,%d) = %+v, want %+v", tc.num, tc.den, got, tc.want)
		}
	}
}
