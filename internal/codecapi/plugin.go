package codecapi

// AudioUnit, VideoUnit and SubtitleUnit are the decoded outputs a codec
// plugin produces. They are intentionally minimal: the sink contracts in
// package sink, and the heaps in package heap/subheap, own the richer
// lifecycle state (status, refcount, display date). A plugin only reports
// timing and payload.
type AudioUnit struct {
	PTS         int64
	Duration    int64
	SampleCount int
	Format      FormatDescriptor
	Samples     []byte
}

type VideoUnit struct {
	PTS    int64
	Format FormatDescriptor
	Planes [][]byte
}

type SubtitleUnit struct {
	Start, End    int64
	ChannelID     int
	X, Y          int
	Width, Height int
	Payload       []byte
}

// Packetiser turns raw demuxer Blocks into packetised Blocks aligned on
// codec access-unit boundaries, and exposes the format it believes the
// output is in so the decoder worker can detect drift against its current
// input format (spec §4.5 step 2).
type Packetiser interface {
	Packetize(b *Block) ([]*Block, error)
	OutputFormat() FormatDescriptor
}

// AudioDecoder, VideoDecoder, SubtitleDecoder, ClosedCaptionSource and
// AttachmentSource are optional capability interfaces a codec Plugin may
// implement any subset of (spec §6). A nil *Block argument instructs the
// decode call to drain: emit any buffered units with no new input.
type AudioDecoder interface {
	DecodeAudio(b *Block) (*AudioUnit, error)
}

type VideoDecoder interface {
	DecodeVideo(b *Block) (*VideoUnit, error)
}

type SubtitleDecoder interface {
	DecodeSubtitle(b *Block) (*SubtitleUnit, error)
}

type ClosedCaptionSource interface {
	GetCC() ([]byte, bool)
}

type AttachmentSource interface {
	GetAttachments() map[string][]byte
}

// Plugin is the full surface a loaded codec may expose; callers use type
// assertions against the capability interfaces above to discover what a
// concrete plugin actually supports, mirroring the "any subset" contract
// of spec §6.
type Plugin interface {
	Family() CodecFamily
	Close()
}

// Loader resolves a FormatDescriptor to a loaded codec Plugin. It is the
// pipeline's one hook into the codec plugin ecosystem, which is out of
// scope for this module (spec §1 Non-goals).
type Loader interface {
	Load(in FormatDescriptor) (Plugin, error)
}
