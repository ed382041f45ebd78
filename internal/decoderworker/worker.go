package decoderworker

import (
	"time"

	"github.com/alxayo/decoder-pipeline/internal/codecapi"
	"github.com/alxayo/decoder-pipeline/internal/events"
	"github.com/alxayo/decoder-pipeline/internal/sink"
)

func nowMicros() int64 { return time.Now().UnixMicro() }

// drainSentinel is a distinguished Block pointer Drain enqueues so the
// worker always observes the drain request through the same dequeue path
// as ordinary blocks, instead of racing an external flag against a worker
// that may already be parked in a blocking dequeue with nothing left to
// wake it.
var drainSentinel = &codecapi.Block{}

// run is the decoder worker's tight loop (spec §4.5). Its only
// cancellation point is the FIFO's blocking dequeue.
func (c *Context) run() {
	defer c.wg.Done()
	for {
		b, ok := c.fifo.DequeueBlocking()
		if !ok {
			return
		}

		switch b {
		case nil:
			c.handleBlock(nil)
			c.mu.Lock()
			c.flushing = false
			c.mu.Unlock()
		case drainSentinel:
			c.decodeAndPlay(nil)
			c.mu.Lock()
			c.drained = true
			audioSink := c.audioSink
			c.mu.Unlock()
			if audioSink != nil {
				audioSink.Flush(false)
			}
		default:
			c.handleBlock(b)
		}

		c.mu.Lock()
		c.idle = c.fifo.Count() == 0
		c.ackCond.Broadcast()
		c.mu.Unlock()

		c.periodicallySurfaceCounters()
	}
}

func (c *Context) periodicallySurfaceCounters() {
	if c.deps.Stats == nil {
		return
	}
	decoded, played, lost, displayed := c.Counters()

	c.mu.Lock()
	dDecoded := decoded - c.surfaced.decoded
	dPlayed := played - c.surfaced.played
	dLost := lost - c.surfaced.lost
	dDisplayed := displayed - c.surfaced.displayed
	c.surfaced.decoded, c.surfaced.played, c.surfaced.lost, c.surfaced.displayed = decoded, played, lost, displayed
	c.mu.Unlock()

	if dDecoded != 0 {
		c.deps.Stats.AddDecoded(c.streamID, dDecoded)
	}
	if dPlayed != 0 {
		c.deps.Stats.AddPlayed(c.streamID, dPlayed)
	}
	if dLost != 0 {
		c.deps.Stats.AddLost(c.streamID, dLost)
	}
	if dDisplayed != 0 {
		c.deps.Stats.AddDisplayed(c.streamID, dDisplayed)
	}
}

// handleBlock implements spec §4.5 steps 2-3: packetise (if a packetiser is
// present), detect packetiser output-format drift against the decoder's
// input format, feed the codec, and play every decoded unit. A nil block
// means drain.
func (c *Context) handleBlock(b *codecapi.Block) {
	if c.Errored() {
		if b != nil {
			b.Release()
		}
		return
	}

	if c.packetiser == nil {
		c.decodeAndPlay(b)
		if b != nil {
			b.Release()
		}
		return
	}

	packetised, err := c.packetiser.Packetize(b)
	if err != nil {
		c.log.Error("packetiser error", "error", err)
		if b != nil {
			b.Release()
		}
		return
	}
	for _, pb := range packetised {
		outFmt := c.packetiser.OutputFormat()
		c.mu.Lock()
		differs := !outFmt.Equal(c.inputFormat)
		c.mu.Unlock()
		if differs {
			c.reloadCodec(outFmt)
		}
		c.decodeAndPlay(pb)
		pb.Release()
	}
}

// decodeAndPlay drives the codec plugin for one category, looping on
// repeated drain-style calls (nil input) until the codec stops producing
// units, then plays each decoded unit.
func (c *Context) decodeAndPlay(pb *codecapi.Block) {
	if c.plugin == nil || c.Errored() {
		return
	}
	first := true
	for {
		var in *codecapi.Block
		if first {
			in, first = pb, false
		}

		switch c.category {
		case codecapi.CategoryAudio:
			dec, ok := c.plugin.(codecapi.AudioDecoder)
			if !ok {
				return
			}
			unit, err := dec.DecodeAudio(in)
			if err != nil {
				c.log.Error("audio decode error", "error", err)
				return
			}
			if unit == nil {
				return
			}
			c.maybeRenegotiate(unit.Format)
			c.playAudio(unit)

		case codecapi.CategoryVideo:
			dec, ok := c.plugin.(codecapi.VideoDecoder)
			if !ok {
				return
			}
			unit, err := dec.DecodeVideo(in)
			if err != nil {
				c.log.Error("video decode error", "error", err)
				return
			}
			if unit == nil {
				return
			}
			c.extractCC()
			c.maybeRenegotiate(unit.Format)
			c.playVideo(unit)

		case codecapi.CategorySubtitle:
			dec, ok := c.plugin.(codecapi.SubtitleDecoder)
			if !ok {
				return
			}
			unit, err := dec.DecodeSubtitle(in)
			if err != nil {
				c.log.Error("subtitle decode error", "error", err)
				return
			}
			if unit == nil {
				return
			}
			c.playSubtitle(unit)
		}

		if pb == nil {
			// Draining: keep pulling buffered units until the codec
			// reports none left (handled by the unit == nil returns above).
			continue
		}
		// A normal block only feeds the codec once; subsequent buffered
		// units (if any) are drained on the next nil call, matching the
		// one-decode-per-dequeue cadence of spec §4.5 step 2.
		return
	}
}

// extractCC harvests one closed-caption payload (video only) and fans it
// out to every present per-channel CC sub-decoder, each a fully
// independent decoder.Context fed from its own FIFO (spec §4.5 step 3).
func (c *Context) extractCC() {
	ccSrc, ok := c.plugin.(codecapi.ClosedCaptionSource)
	if !ok {
		return
	}
	payload, ok := ccSrc.GetCC()
	if !ok || len(payload) == 0 {
		return
	}
	c.mu.Lock()
	presence := c.ccPresence
	subs := c.ccSubs
	c.mu.Unlock()
	for ch := 0; ch < ccChannels; ch++ {
		if presence&(1<<uint(ch)) == 0 || subs[ch] == nil {
			continue
		}
		subs[ch].Enqueue(codecapi.NewBlock(payload), false)
	}
}

// checkPreroll implements spec §4.5 step 3 "Preroll skip". It returns true
// if the unit at ts should be dropped. Crossing the boundary logs, flushes
// the category-appropriate sink, and clears the boundary exactly once.
func (c *Context) checkPreroll(ts int64) bool {
	c.mu.Lock()
	boundary := c.prerollBoundary
	if boundary == codecapi.InvalidTS {
		c.mu.Unlock()
		return false
	}
	if ts != codecapi.InvalidTS && ts < boundary {
		c.mu.Unlock()
		return true
	}
	c.prerollBoundary = codecapi.InvalidTS
	audioSink, videoSink, category := c.audioSink, c.videoSink, c.category
	c.mu.Unlock()

	c.log.Info("preroll boundary crossed")
	switch category {
	case codecapi.CategoryAudio:
		if audioSink != nil {
			audioSink.Flush(false)
		}
	case codecapi.CategoryVideo, codecapi.CategorySubtitle:
		if videoSink != nil {
			videoSink.Flush(0)
		}
	}
	return false
}

// fixedTS is the result of fix-ts (spec §4.5.4).
type fixedTS struct {
	TS0, TS1, Duration int64
	Rate               int
}

// fixTSLocked must be called with c.mu held. It adds the current ts-delay,
// asks the clock oracle to convert to wall-clock bounded by bound,
// preserves the ephemeral (ts0==ts1) relationship, and scales duration by
// the effective rate.
func (c *Context) fixTSLocked(ts0, ts1, duration int64, bound time.Duration) fixedTS {
	rateOut := c.deps.Clock.GetRate()
	out := fixedTS{TS0: codecapi.InvalidTS, TS1: codecapi.InvalidTS, Duration: codecapi.InvalidTS, Rate: rateOut}
	if ts0 == codecapi.InvalidTS {
		return out
	}
	ephemeral := ts1 == ts0

	ts0 += c.tsDelay
	if ts1 != codecapi.InvalidTS {
		ts1 += c.tsDelay
	}

	wall0, ok := c.deps.Clock.Convert(rateOut, ts0, bound)
	if !ok {
		c.lastRate = rateOut
		return out
	}
	out.TS0 = wall0

	if ts1 != codecapi.InvalidTS {
		if wall1, ok1 := c.deps.Clock.Convert(rateOut, ts1, bound); ok1 {
			if !ephemeral && wall1 == wall0 {
				wall1 = wall0 + 1
			}
			out.TS1 = wall1
		}
	}

	if duration != codecapi.InvalidTS {
		out.Duration = duration * int64(rateOut) / int64(DefaultRate)
	}

	c.lastRate = rateOut
	return out
}

// waitDateLocked must be called with c.mu held; it releases and reacquires
// c.mu internally. It sleeps on the request condition variable until
// deadlineUS elapses or a flush arrives (spec §4.5.5). deadlineUS < 0
// returns immediately.
func (c *Context) waitDateLocked(deadlineUS int64) (rejected bool) {
	if deadlineUS < 0 {
		return c.flushing
	}
	if c.flushing {
		return true
	}
	remaining := time.Duration(deadlineUS-nowMicros()) * time.Microsecond
	if remaining <= 0 {
		return c.flushing
	}

	timer := time.AfterFunc(remaining, func() {
		c.mu.Lock()
		c.requestCond.Broadcast()
		c.mu.Unlock()
	})
	defer timer.Stop()

	for !c.flushing && nowMicros() < deadlineUS {
		c.requestCond.Wait()
	}
	return c.flushing
}

// waitUnblockLocked must be called with c.mu held. It blocks while the
// owner is paused or is waiting-with-data-already-seen, returning
// immediately on flush. While paused, pause.ignore lets frames step
// through one at a time (spec §4.5.6, §9 Open Question a).
func (c *Context) waitUnblockLocked() (rejected bool) {
	for !c.flushing && (c.pause.paused || (c.waiting && c.hasData)) {
		if c.pause.paused && c.pause.ignore > 0 {
			c.pause.ignore--
			break
		}
		c.requestCond.Wait()
	}
	return c.flushing
}

// playAudio implements spec §4.5.1.
func (c *Context) playAudio(u *codecapi.AudioUnit) {
	if c.checkPreroll(u.PTS) {
		return
	}

	c.mu.Lock()
	if c.waiting {
		c.hasData = true
		c.ackCond.Broadcast()
	}
	fx := c.fixTSLocked(u.PTS, codecapi.InvalidTS, u.Duration, 0)
	if fx.TS0 == codecapi.InvalidTS || fx.Rate < DefaultRate/MaxRateRatio || fx.Rate > DefaultRate*MaxRateRatio {
		c.counters.lost++
		c.mu.Unlock()
		return
	}
	pausedBefore := c.pause.paused
	rejected := c.waitDateLocked(fx.TS0 - AudioMaxPrepare.Microseconds())
	if !rejected && c.pause.paused != pausedBefore {
		// Pause state changed mid-wait: race retry per spec §4.5.1.
		rejected = c.waitDateLocked(fx.TS0 - AudioMaxPrepare.Microseconds())
	}
	audioSink := c.audioSink
	c.mu.Unlock()

	if rejected || audioSink == nil {
		c.mu.Lock()
		c.counters.lost++
		c.mu.Unlock()
		return
	}

	if err := audioSink.Play(u, fx.Rate); err != nil {
		c.log.Error("audio sink rejected buffer", "error", err)
		c.mu.Lock()
		c.counters.lost++
		c.mu.Unlock()
		return
	}
	c.mu.Lock()
	c.counters.decoded++
	c.counters.played++
	c.mu.Unlock()
}

// playVideo implements spec §4.5.2.
func (c *Context) playVideo(u *codecapi.VideoUnit) {
	if c.checkPreroll(u.PTS) {
		return
	}

	c.mu.Lock()
	if c.waiting && !c.first {
		c.hasData = true
		c.ackCond.Broadcast()
	}
	firstAfterWait := c.waiting && c.hasData
	rejected := c.waitUnblockLocked()
	if !rejected && c.waiting {
		c.first = false
	}
	fx := c.fixTSLocked(u.PTS, codecapi.InvalidTS, codecapi.InvalidTS, BogusVideoDelay)
	rateChanged := fx.Rate != c.lastRate
	videoSink := c.videoSink
	c.mu.Unlock()

	if rejected || fx.TS0 == codecapi.InvalidTS || videoSink == nil {
		c.mu.Lock()
		c.counters.lost++
		c.mu.Unlock()
		return
	}

	slot, err := c.deps.Heap.Create(int(u.Format.Pixel), u.Format.Width, u.Format.Height, u.Format.SampleAspectNum, u.Format.SampleAspectDen)
	if err != nil {
		c.log.Warn("picture heap full, dropping frame", "error", err)
		c.mu.Lock()
		c.counters.lost++
		c.mu.Unlock()
		return
	}
	copyPlanes(slot.Planes, u.Planes)

	if err := c.deps.Heap.Display(slot); err != nil {
		c.log.Error("invalid heap transition on display", "error", err)
	}
	if err := c.deps.Heap.Date(slot, fx.TS0); err != nil {
		c.log.Error("invalid heap transition on date", "error", err)
	}

	if rateChanged || firstAfterWait {
		videoSink.Flush(fx.TS0)
	}
	if err := videoSink.PutPicture(slot); err != nil {
		c.deps.Heap.Destroy(slot)
		c.mu.Lock()
		c.counters.lost++
		c.mu.Unlock()
		return
	}
	c.mu.Lock()
	c.counters.decoded++
	c.counters.played++
	c.mu.Unlock()
}

// playSubtitle implements spec §4.5.3.
func (c *Context) playSubtitle(u *codecapi.SubtitleUnit) {
	if c.checkPreroll(u.Start) {
		return
	}

	c.mu.Lock()
	c.ackCond.Broadcast()
	fx := c.fixTSLocked(u.Start, u.End, codecapi.InvalidTS, 0)
	videoSink := c.videoSink
	c.mu.Unlock()

	if fx.TS0 == codecapi.InvalidTS {
		c.mu.Lock()
		c.counters.lost++
		c.mu.Unlock()
		return
	}

	c.mu.Lock()
	rejected := c.waitDateLocked(fx.TS0 - SPUMaxPrepare.Microseconds())
	c.mu.Unlock()

	width, height := u.Width, u.Height
	if width <= 0 {
		width = 1
	}
	if height <= 0 {
		height = 1
	}
	region, err := c.deps.SubHeap.Create(width, height, u.X, u.Y)
	if rejected || err != nil {
		if region != nil {
			c.deps.SubHeap.Destroy(region)
		}
		c.mu.Lock()
		c.counters.lost++
		c.mu.Unlock()
		return
	}

	copy(region.Pixels, u.Payload)
	stop := fx.TS1
	if stop == codecapi.InvalidTS {
		stop = 0
	}
	if err := c.deps.SubHeap.Display(region, fx.TS0, stop); err != nil {
		c.log.Error("invalid subheap transition on display", "error", err)
	}
	if videoSink != nil {
		_ = videoSink.PutSubpicture(region)
	}
	c.mu.Lock()
	c.counters.played++
	c.mu.Unlock()
}

func copyPlanes(dst, src [][]byte) {
	for i := 0; i < len(dst) && i < len(src); i++ {
		n := copy(dst[i], src[i])
		_ = n
	}
}

// reloadCodec implements the packetiser-format-drift branch of spec §4.5
// step 2: drain the current codec with nil, unload it, and load a codec
// matching the new format, marking the stream errored on failure.
func (c *Context) reloadCodec(newFmt codecapi.FormatDescriptor) {
	c.decodeAndPlay(nil)

	c.mu.Lock()
	oldPlugin := c.plugin
	c.mu.Unlock()
	if oldPlugin != nil {
		oldPlugin.Close()
	}

	newPlugin, err := c.deps.Loader.Load(newFmt)
	if err != nil {
		c.markErrored(err)
		return
	}
	c.mu.Lock()
	c.plugin = newPlugin
	c.inputFormat = newFmt
	c.mu.Unlock()
}

// maybeRenegotiate implements spec §4.5.7: tears down and replaces the
// live sink when the codec's output format diverges from it, provisioning
// video sinks with a decoded-picture-buffer count from codecapi.DPBCount.
func (c *Context) maybeRenegotiate(newFmt codecapi.FormatDescriptor) {
	c.mu.Lock()
	changed := !newFmt.Equal(c.outputFormat)
	c.mu.Unlock()
	if !changed {
		return
	}

	switch newFmt.Category {
	case codecapi.CategoryAudio:
		c.mu.Lock()
		old := c.audioSink
		c.audioSink = nil
		c.mu.Unlock()
		if old != nil && c.deps.SinkPool != nil {
			c.deps.SinkPool.Return(old)
		}
		if c.deps.SinkPool == nil {
			return
		}
		s, err := c.deps.SinkPool.Rent(newFmt, 0)
		if err != nil {
			c.markErrored(err)
			return
		}
		audioSink, ok := s.(sink.AudioSink)
		if !ok {
			c.markErrored(err)
			return
		}
		c.mu.Lock()
		c.audioSink = audioSink
		c.outputFormat = newFmt
		c.formatChanged = true
		c.mu.Unlock()

	case codecapi.CategoryVideo:
		dpb := codecapi.DPBCount(newFmt.Family, newFmt.ExtraBuffers)
		c.mu.Lock()
		old := c.videoSink
		c.videoSink = nil
		c.mu.Unlock()
		if old != nil && c.deps.SinkPool != nil {
			c.deps.SinkPool.Return(old)
		}
		if c.deps.SinkPool == nil {
			return
		}
		s, err := c.deps.SinkPool.Rent(newFmt, dpb)
		if err != nil {
			c.markErrored(err)
			return
		}
		videoSink, ok := s.(sink.VideoSink)
		if !ok {
			c.markErrored(err)
			return
		}
		c.mu.Lock()
		c.videoSink = videoSink
		c.outputFormat = newFmt
		c.formatChanged = true
		c.mu.Unlock()

	default:
		c.mu.Lock()
		c.outputFormat = newFmt
		c.formatChanged = true
		c.mu.Unlock()
	}

	if c.deps.Events != nil {
		c.deps.Events.Publish(c.runCtx, events.Event{
			Type:     events.TypeFormatChanged,
			StreamID: c.streamID,
			Category: newFmt.Category,
			Format:   newFmt,
			At:       time.Now(),
		})
	}
}

// markErrored implements spec §7 kind 2 policy: mark the stream errored,
// log, and notify observers; the worker stays alive to honour flush/drain/
// delete.
func (c *Context) markErrored(err error) {
	c.mu.Lock()
	c.errored = true
	c.mu.Unlock()
	c.log.Error("stream entered errored state", "error", err)
	if c.deps.Events != nil {
		c.deps.Events.Publish(c.runCtx, events.Event{
			Type:     events.TypeStreamErrored,
			StreamID: c.streamID,
			Category: c.category,
			Err:      err,
			At:       time.Now(),
		})
	}
}
