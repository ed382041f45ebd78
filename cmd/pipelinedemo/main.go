package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"

	pipeline "github.com/alxayo/decoder-pipeline"
	"github.com/alxayo/decoder-pipeline/internal/buffer"
	"github.com/alxayo/decoder-pipeline/internal/clock"
	"github.com/alxayo/decoder-pipeline/internal/codecapi"
	"github.com/alxayo/decoder-pipeline/internal/logger"
)

func main() {
	cfg, err := parseFlags(os.Args[1:])
	if err != nil {
		os.Exit(2)
	}
	if cfg.showVersion {
		fmt.Println(version)
		return
	}

	logger.Init()
	if err := logger.SetLevel(cfg.logLevel); err != nil {
		fmt.Printf("Warning: invalid log level, using default: %v\n", err)
	}
	log := logger.Logger().With("component", "cli")

	present := func(back *buffer.BackBuffer, idx int) {
		log.Debug("frame presented", "buffer_index", idx)
	}

	ctrl := pipeline.New(pipeline.Config{
		HeapCapacity:    int(cfg.heapCapacity),
		SubHeapCapacity: int(cfg.subHeapCapacity),
		SinkWidth:       int(cfg.sinkWidth),
		SinkHeight:      int(cfg.sinkHeight),
		LogLevel:        cfg.logLevel,
	}, clock.NewIdentity(), passthroughLoader{}, newDemoSinkFactory(log), present)

	audioFormat := codecapi.FormatDescriptor{
		Codec: "pcm", Category: codecapi.CategoryAudio,
		Audio: codecapi.AudioSampleLayout{SampleRate: 48000, Channels: 2, BitsPerSample: 16},
	}
	videoFormat := codecapi.FormatDescriptor{
		Codec: "raw", Category: codecapi.CategoryVideo,
		Pixel: codecapi.PixelFormatRGBPacked, Width: int(cfg.sinkWidth), Height: int(cfg.sinkHeight),
		SampleAspectNum: 16, SampleAspectDen: 9,
	}

	if err := ctrl.Create("audio-0", codecapi.CategoryAudio, audioFormat, nil); err != nil {
		log.Error("failed to create audio stream", "error", err)
		os.Exit(1)
	}
	if err := ctrl.Create("video-0", codecapi.CategoryVideo, videoFormat, nil); err != nil {
		log.Error("failed to create video stream", "error", err)
		os.Exit(1)
	}

	log.Info("pipeline started", "version", version, "run_for", cfg.runFor)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	runCtx, cancelRun := context.WithTimeout(ctx, cfg.runFor)
	defer cancelRun()

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		runProducer(runCtx, ctrl, "audio-0", cfg.audioHz, 4096)
	}()
	go func() {
		defer wg.Done()
		runProducer(runCtx, ctrl, "video-0", cfg.videoFPS, int(cfg.sinkWidth)*int(cfg.sinkHeight)*4)
	}()

	<-runCtx.Done()
	log.Info("shutting down")
	wg.Wait()

	for _, id := range []string{"audio-0", "video-0"} {
		snap := ctrl.Stats().Snapshot(id)
		log.Info("final stream stats", "stream_id", id, "decoded", snap.Decoded, "played", snap.Played, "lost", snap.Lost, "displayed", snap.Displayed)
	}

	for _, id := range []string{"audio-0", "video-0"} {
		if err := ctrl.Delete(id); err != nil {
			log.Error("delete stream", "stream_id", id, "error", err)
		}
	}
	ctrl.Close()
	log.Info("pipeline stopped cleanly")
}
