package codecapi

// PixelFormat enumerates the picture-plane layouts the pipeline understands.
type PixelFormat int

const (
	PixelFormatYUV420 PixelFormat = iota
	PixelFormatYUV422
	PixelFormatYUV444
	PixelFormatRGBPacked
)

func (p PixelFormat) String() string {
	switch p {
	case PixelFormatYUV420:
		return "YUV420"
	case PixelFormatYUV422:
		return "YUV422"
	case PixelFormatYUV444:
		return "YUV444"
	case PixelFormatRGBPacked:
		return "RGB"
	default:
		return "unknown"
	}
}

// PlaneCount returns how many pixel planes a format allocates.
func (p PixelFormat) PlaneCount() int {
	if p == PixelFormatRGBPacked {
		return 1
	}
	return 3
}

// AudioSampleLayout describes the PCM contract of an audio format.
type AudioSampleLayout struct {
	SampleRate int
	Channels   int
	BitsPerSample int
}

// FormatDescriptor is an immutable snapshot of codec, category, dimensions,
// audio layout, replay-gain metadata, language and free-form description.
// A decoder worker holds both an input descriptor (the demuxer's contract)
// and an output descriptor (the sink's contract); a change in either
// triggers renegotiation.
type FormatDescriptor struct {
	Codec    string
	Family   CodecFamily
	Category Category

	// Video
	Pixel             PixelFormat
	Width, Height     int
	ChromaWidth       int
	SampleAspectNum   int
	SampleAspectDen   int
	Orientation       int // degrees, 0/90/180/270

	// Audio
	Audio AudioSampleLayout

	ReplayGainDB float64
	Language     string
	Description  map[string]string

	// ExtraBuffers is the codec's declared additional decoded-picture-buffer
	// need beyond the family baseline (spec §4.5.7).
	ExtraBuffers int
}

// Equal reports whether two descriptors describe the same negotiated
// contract (the fields renegotiation cares about).
func (f FormatDescriptor) Equal(o FormatDescriptor) bool {
	switch f.Category {
	case CategoryAudio:
		return f.Codec == o.Codec && f.Audio == o.Audio
	case CategoryVideo:
		return f.Codec == o.Codec && f.Pixel == o.Pixel && f.Width == o.Width &&
			f.Height == o.Height && f.ChromaWidth == o.ChromaWidth &&
			f.SampleAspectNum == o.SampleAspectNum && f.SampleAspectDen == o.SampleAspectDen &&
			f.Orientation == o.Orientation
	default:
		return f.Codec == o.Codec
	}
}

// CodecFamily groups codecs that share a decoded-picture-buffer budget.
type CodecFamily int

const (
	FamilyOther CodecFamily = iota
	FamilyH264
	FamilyH265
	FamilyDirac
	FamilyVP5to8
)

// DPBCount returns the decoded-picture-buffer capacity a video sink should
// be provisioned with for the given codec family, per spec §4.5.7: 18 for
// H.264/H.265/Dirac, 3 for VP5-VP8, 2 otherwise, plus the codec's declared
// extra buffers, plus one.
func DPBCount(family CodecFamily, extraBuffers int) int {
	var base int
	switch family {
	case FamilyH264, FamilyH265, FamilyDirac:
		base = 18
	case FamilyVP5to8:
		base = 3
	default:
		base = 2
	}
	return base + extraBuffers + 1
}
