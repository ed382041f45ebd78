// Package pipeline is the public façade of the decoder-to-output pipeline
// core: a Controller callable from a host application's demuxer thread to
// create, feed, and tear down one decoder worker (and, for video, one
// video output worker) per elementary stream.
package pipeline

import (
	"github.com/alxayo/decoder-pipeline/internal/heap"
	"github.com/alxayo/decoder-pipeline/internal/subheap"
	"github.com/alxayo/decoder-pipeline/internal/vout"
)

// Config holds Controller construction knobs, following the teacher's
// plain-struct-plus-applyDefaults pattern (internal/rtmp/server.Config).
type Config struct {
	HeapCapacity      int
	SubHeapCapacity   int
	EventsConcurrency int
	SinkWidth         int
	SinkHeight        int
	LogLevel          string
}

// applyDefaults fills zero values with sensible defaults.
func (c *Config) applyDefaults() {
	if c.HeapCapacity <= 0 {
		c.HeapCapacity = heap.DefaultCapacity
	}
	if c.SubHeapCapacity <= 0 {
		c.SubHeapCapacity = subheap.DefaultCapacity
	}
	if c.EventsConcurrency <= 0 {
		c.EventsConcurrency = 10
	}
	if c.SinkWidth <= 0 {
		c.SinkWidth = 1280
	}
	if c.SinkHeight <= 0 {
		c.SinkHeight = 720
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
}

// aspectFor maps a format's declared sample aspect to one of the named
// ratios SPEC_FULL §4.6.1 enumerates: exactly 4:3 and 221:100 map to
// themselves, a non-positive or equal num/den maps to square, and every
// other ratio maps to 16:9 (no nearest-match search is done).
func aspectFor(num, den int) vout.AspectRatio {
	switch {
	case num == 4 && den == 3:
		return vout.Aspect4x3
	case num == 221 && den == 100:
		return vout.Aspect221x1
	case num <= 0 || den <= 0:
		return vout.AspectSquare
	case num == den:
		return vout.AspectSquare
	default:
		return vout.Aspect16x9
	}
}
