// Package codecapi defines the wire-free data model shared by every
// component of the decoder-to-output pipeline: the compressed Block that
// flows through the FIFO, the Category an elementary stream belongs to,
// the FormatDescriptor contract between a decoder and its sink, and the
// small capability interfaces a codec or packetiser plugin implements.
package codecapi

import "github.com/alxayo/decoder-pipeline/internal/bufpool"

// InvalidTS is the sentinel shared by every timestamp field. All arithmetic
// on timestamps must guard against it before doing math.
const InvalidTS int64 = -1 << 63

// Category identifies which output sink a decoder worker addresses.
type Category int

const (
	CategoryAudio Category = iota
	CategoryVideo
	CategorySubtitle
)

func (c Category) String() string {
	switch c {
	case CategoryAudio:
		return "audio"
	case CategoryVideo:
		return "video"
	case CategorySubtitle:
		return "subtitle"
	default:
		return "unknown"
	}
}

// Flag bits carried on a Block.
type Flag uint8

const (
	FlagPreroll Flag = 1 << iota
	FlagDiscontinuity
	FlagCorrupted
	FlagCoreFlush
	FlagCorePrivate
)

func (f Flag) Has(bit Flag) bool { return f&bit != 0 }

// Block is an owned compressed byte buffer plus timing metadata. It is
// produced by the demuxer, exclusively owned by the FIFO while queued,
// exclusively owned by the decoder worker while being processed, and
// released back to the buffer pool when destroyed.
type Block struct {
	Payload     []byte
	DTS         int64 // InvalidTS if absent
	PTS         int64 // InvalidTS if absent
	Duration    int64 // InvalidTS if absent
	Size        int   // byte size, set at construction
	SampleCount int   // audio only
	Flags       Flag
}

// NewBlock allocates a Block whose Payload is backed by the shared buffer
// pool, copying src in. Release must be called exactly once when the block
// is no longer needed.
func NewBlock(src []byte) *Block {
	buf := bufpool.Get(len(src))
	copy(buf, src)
	return &Block{Payload: buf, DTS: InvalidTS, PTS: InvalidTS, Duration: InvalidTS, Size: len(src)}
}

// Release returns the block's payload to the shared buffer pool. The block
// must not be used afterwards.
func (b *Block) Release() {
	if b == nil {
		return
	}
	bufpool.Put(b.Payload)
	b.Payload = nil
}
