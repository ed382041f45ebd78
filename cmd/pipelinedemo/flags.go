package main

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"time"
)

// version is injected at build time with -ldflags "-X main.version=...". Defaults to dev.
var version = "dev"

// cliConfig holds user supplied flag values prior to translation into
// pipeline.Config, mirroring the teacher's cliConfig/parseFlags split.
type cliConfig struct {
	logLevel        string
	showVersion     bool
	heapCapacity    uint
	subHeapCapacity uint
	sinkWidth       uint
	sinkHeight      uint
	runFor          time.Duration
	videoFPS        uint
	audioHz         uint
}

func parseFlags(args []string) (*cliConfig, error) {
	fs := flag.NewFlagSet("pipelinedemo", flag.ContinueOnError)
	fs.SetOutput(os.Stdout)

	cfg := &cliConfig{}
	fs.StringVar(&cfg.logLevel, "log-level", "info", "Log level: debug|info|warn|error")
	fs.BoolVar(&cfg.showVersion, "version", false, "Print version and exit")
	fs.UintVar(&cfg.heapCapacity, "heap-capacity", 8, "Picture heap capacity per video stream")
	fs.UintVar(&cfg.subHeapCapacity, "subheap-capacity", 4, "Subpicture heap capacity per video stream")
	fs.UintVar(&cfg.sinkWidth, "sink-width", 1280, "Video sink width in pixels")
	fs.UintVar(&cfg.sinkHeight, "sink-height", 720, "Video sink height in pixels")
	fs.DurationVar(&cfg.runFor, "run-for", 5*time.Second, "How long to run the synthetic streams before shutting down")
	fs.UintVar(&cfg.videoFPS, "video-fps", 30, "Synthetic video stream frame rate")
	fs.UintVar(&cfg.audioHz, "audio-frames-per-sec", 50, "Synthetic audio stream frame rate")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	switch cfg.logLevel {
	case "debug", "info", "warn", "error":
	default:
		return nil, fmt.Errorf("invalid log-level %q", cfg.logLevel)
	}
	if cfg.sinkWidth == 0 || cfg.sinkHeight == 0 {
		return nil, errors.New("sink-width and sink-height must be positive")
	}
	if cfg.videoFPS == 0 || cfg.audioHz == 0 {
		return nil, errors.New("video-fps and audio-frames-per-sec must be positive")
	}

	return cfg, nil
}
