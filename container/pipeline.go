package container

import (
	"encoding/binary"
	"fmt"

	"github.com/x448/float16"

	"github.com/averral/exrmem/compress"
	"github.com/averral/exrmem/errs"
	"github.com/averral/exrmem/format"
	"github.com/averral/exrmem/internal/pool"
)

// ChannelSource describes how to read one channel's values out of a
// caller-owned interleaved float32 pixel buffer without copying: a base
// slice positioned on the channel's first sample of the chunk's first row,
// plus strides in float32 elements.
type ChannelSource struct {
	Base        []float32 // first sample of this channel in the chunk
	PixelStride int       // elements between horizontally adjacent samples
	LineStride  int       // elements between vertically adjacent samples
}

// CodingChannel is one channel slot of an encode pipeline, enumerated for
// binding. The tag was fixed when the channel was declared.
type CodingChannel struct {
	Name string
	Tag  format.ChannelTag

	source ChannelSource
	bound  bool
}

// EncodePipeline is the per-chunk encode session. It holds the pooled
// staging buffer for the chunk's raw planar data and must be destroyed on
// every exit path, success or failure, before the next chunk's pipeline is
// created.
type EncodePipeline struct {
	w         *Writer
	part      *part
	chunk     ChunkInfo
	channels  []CodingChannel
	codec     compress.Codec
	staging   *pool.ByteBuffer
	destroyed bool
}

// NewEncodePipeline opens the encode session for one row-band. It fails if
// the header has not been written or the part declares no channels.
func (w *Writer) NewEncodePipeline(idx int, ci ChunkInfo) (*EncodePipeline, error) {
	p, err := w.checkPart(idx)
	if err != nil {
		return nil, err
	}
	if !w.headerWritten {
		return nil, errs.ErrHeaderNotWritten
	}
	if len(p.channels) == 0 {
		return nil, errs.ErrNoChannels
	}
	if ci.Height <= 0 || ci.StartY < 0 || int(ci.StartY+ci.Height) > p.height {
		return nil, fmt.Errorf("%w: rows %d..%d", errs.ErrChunkOutOfRange, ci.StartY, ci.StartY+ci.Height-1)
	}

	channels := make([]CodingChannel, len(p.channels))
	for i, ch := range p.channels {
		channels[i] = CodingChannel{Name: ch.Name, Tag: ch.Tag}
	}

	return &EncodePipeline{
		w:        w,
		part:     p,
		chunk:    ci,
		channels: channels,
		staging:  pool.GetChunkBuffer(),
	}, nil
}

// Channels enumerates the channel slots that must be bound before Run.
func (p *EncodePipeline) Channels() []CodingChannel {
	return p.channels
}

// Bind attaches a pixel source to channel slot i.
func (p *EncodePipeline) Bind(i int, src ChannelSource) error {
	if p.destroyed {
		return errs.ErrPipelineDestroyed
	}
	if i < 0 || i >= len(p.channels) {
		return fmt.Errorf("%w: channel index %d", errs.ErrInvalidArgument, i)
	}
	if src.Base == nil || src.PixelStride <= 0 || src.LineStride <= 0 {
		return fmt.Errorf("%w: invalid channel source", errs.ErrInvalidArgument)
	}

	p.channels[i].source = src
	p.channels[i].bound = true

	return nil
}

// ChooseDefaultRoutines selects the compression codec for this session's
// channel set.
func (p *EncodePipeline) ChooseDefaultRoutines() error {
	if p.destroyed {
		return errs.ErrPipelineDestroyed
	}

	codec, err := compress.CreateCodec(p.part.compression, p.part.dwaLevel)
	if err != nil {
		return err
	}
	p.codec = codec

	return nil
}

// Run packs every bound channel into the chunk's raw planar form,
// compresses it and writes the chunk record. Each float32 source value is
// converted to the channel's declared half representation here; the caller
// never preconverts.
func (p *EncodePipeline) Run() error {
	if p.destroyed {
		return errs.ErrPipelineDestroyed
	}
	if p.codec == nil {
		return fmt.Errorf("%w: encode routines not chosen", errs.ErrInvalidArgument)
	}
	for i := range p.channels {
		if !p.channels[i].bound {
			return fmt.Errorf("%w: %q", errs.ErrChannelUnbound, p.channels[i].Name)
		}
	}
	for _, ch := range p.part.channels {
		if ch.Type != format.PixelTypeHalf {
			return fmt.Errorf("%w: channel %q type %s", errs.ErrInvalidArgument, ch.Name, ch.Type)
		}
	}

	layout := compress.Layout{
		Width:    p.part.width,
		Lines:    int(p.chunk.Height),
		Channels: p.part.channels,
	}

	p.staging.Resize(layout.RawSize())
	raw := p.staging.Bytes()

	pos := 0
	for y := 0; y < layout.Lines; y++ {
		for i := range p.channels {
			src := p.channels[i].source
			row := src.Base[y*src.LineStride:]
			for x := 0; x < layout.Width; x++ {
				bits := float16.Fromfloat32(row[x*src.PixelStride]).Bits()
				binary.LittleEndian.PutUint16(raw[pos:], bits)
				pos += 2
			}
		}
	}

	payload, err := p.codec.Compress(raw, layout)
	if err != nil {
		return err
	}

	return p.w.writeChunk(p.chunk, payload)
}

// Destroy releases the session's staging buffer. It is idempotent and must
// be called on every exit path.
func (p *EncodePipeline) Destroy() {
	if p.destroyed {
		return
	}

	pool.PutChunkBuffer(p.staging)
	p.staging = nil
	p.destroyed = true
}
