package main

import (
	"github.com/alxayo/decoder-pipeline/internal/codecapi"
)

// passthroughPlugin is a stand-in codec that treats every block's payload
// as already-decoded output (spec §1 Non-goals excludes real codec
// implementations). It implements whichever of AudioDecoder/VideoDecoder
// the demo's synthetic stream category needs.
type passthroughPlugin struct {
	format codecapi.FormatDescriptor
	pts    int64
}

func (p *passthroughPlugin) Family() codecapi.CodecFamily { return codecapi.FamilyOther }
func (p *passthroughPlugin) Close()                       {}

func (p *passthroughPlugin) DecodeAudio(b *codecapi.Block) (*codecapi.AudioUnit, error) {
	if b == nil {
		return nil, nil
	}
	pts := b.PTS
	if pts == codecapi.InvalidTS {
		p.pts += b.Duration
		pts = p.pts
	}
	return &codecapi.AudioUnit{
		PTS:         pts,
		Duration:    b.Duration,
		SampleCount: p.format.Audio.SampleRate / 50,
		Format:      p.format,
		Samples:     b.Payload,
	}, nil
}

func (p *passthroughPlugin) DecodeVideo(b *codecapi.Block) (*codecapi.VideoUnit, error) {
	if b == nil {
		return nil, nil
	}
	planes := make([][]byte, p.format.Pixel.PlaneCount())
	for i := range planes {
		planes[i] = b.Payload
	}
	return &codecapi.VideoUnit{PTS: b.PTS, Format: p.format, Planes: planes}, nil
}

// passthroughLoader always returns a passthroughPlugin built for the
// requested format, standing in for the codec-plugin ecosystem the
// pipeline itself leaves out of scope.
type passthroughLoader struct{}

func (passthroughLoader) Load(in codecapi.FormatDescriptor) (codecapi.Plugin, error) {
	return &passthroughPlugin{format: in}, nil
}
