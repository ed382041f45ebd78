package main

import (
	"context"
	"time"

	"github.com/alxayo/decoder-pipeline/internal/codecapi"
	pipeline "github.com/alxayo/decoder-pipeline"
)

// runProducer pushes one synthetic Block per tick into the named stream
// until ctx is cancelled, standing in for a demuxer thread (spec §1
// Non-goals excludes demuxing itself).
func runProducer(ctx context.Context, ctrl *pipeline.Controller, streamID string, fps uint, payloadSize int) {
	interval := time.Second / time.Duration(fps)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	var pts int64
	durationPerFrame := int64(time.Second/time.Duration(fps)) / int64(time.Microsecond)

	for {
		select {
		case <-ctx.Done():
			_ = ctrl.Drain(streamID)
			return
		case <-ticker.C:
			b := codecapi.NewBlock(make([]byte, payloadSize))
			b.PTS = pts
			b.DTS = pts
			b.Duration = durationPerFrame
			pts += durationPerFrame
			if err := ctrl.Enqueue(streamID, b, true); err != nil {
				return
			}
		}
	}
}
