package main

import (
	"log/slog"

	"github.com/alxayo/decoder-pipeline/internal/codecapi"
	"github.com/alxayo/decoder-pipeline/internal/heap"
	"github.com/alxayo/decoder-pipeline/internal/sink"
)

// consoleAudioSink logs every played audio unit instead of driving real
// audio hardware, standing in for the physical output device spec §1
// places out of scope.
type consoleAudioSink struct {
	log    *slog.Logger
	format codecapi.FormatDescriptor
	lost   int
}

func (s *consoleAudioSink) Category() codecapi.Category      { return codecapi.CategoryAudio }
func (s *consoleAudioSink) Format() codecapi.FormatDescriptor { return s.format }
func (s *consoleAudioSink) Close() error                      { return nil }

func (s *consoleAudioSink) Play(u *codecapi.AudioUnit, rate int) error {
	s.log.Info("audio played", "pts", u.PTS, "duration", u.Duration, "rate", rate)
	return nil
}

func (s *consoleAudioSink) Flush(onPause bool) {
	s.log.Debug("audio flushed", "on_pause", onPause)
}

func (s *consoleAudioSink) ChangePause(paused bool, date int64) {
	s.log.Debug("audio pause changed", "paused", paused, "date", date)
}

func (s *consoleAudioSink) GetResetLost() int {
	n := s.lost
	s.lost = 0
	return n
}

// passiveVideoSink acks pictures the decoder worker has already placed
// into the shared picture heap (spec §4.5.3: the worker allocates and
// dates the slot itself); the video output worker reads that same heap
// independently, so PutPicture has nothing further to do.
type passiveVideoSink struct {
	log    *slog.Logger
	format codecapi.FormatDescriptor
}

func (s *passiveVideoSink) Category() codecapi.Category      { return codecapi.CategoryVideo }
func (s *passiveVideoSink) Format() codecapi.FormatDescriptor { return s.format }
func (s *passiveVideoSink) Close() error                      { return nil }

func (s *passiveVideoSink) GetPicture() (*heap.Slot, error) { return nil, nil }
func (s *passiveVideoSink) PutPicture(*heap.Slot) error     { return nil }
func (s *passiveVideoSink) PutSubpicture(interface{}) error { return nil }
func (s *passiveVideoSink) Flush(date int64)                { s.log.Debug("video flushed", "date", date) }
func (s *passiveVideoSink) ChangePause(paused bool, date int64) {
	s.log.Debug("video pause changed", "paused", paused, "date", date)
}
func (s *passiveVideoSink) NextPicture() (*heap.Slot, bool) { return nil, false }
func (s *passiveVideoSink) Reset()                          {}
func (s *passiveVideoSink) IsEmpty() bool                   { return true }

// newDemoSinkFactory builds a sink.Factory that hands out console/passive
// sinks keyed only by category, since the demo has no real device to
// negotiate against.
func newDemoSinkFactory(log *slog.Logger) sink.Factory {
	return func(format codecapi.FormatDescriptor, videoDPB int) (sink.Sink, error) {
		switch format.Category {
		case codecapi.CategoryAudio:
			return &consoleAudioSink{log: log.With("sink", "audio"), format: format}, nil
		case codecapi.CategoryVideo:
			return &passiveVideoSink{log: log.With("sink", "video"), format: format}, nil
		default:
			return &passiveVideoSink{log: log.With("sink", "other"), format: format}, nil
		}
	}
}
