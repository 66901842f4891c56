package compress

import (
	"fmt"

	"github.com/averral/exrmem/format"
)

// Channel describes one channel of a chunk's raw planar data.
//
// The tag is assigned when the channel is declared and carried through as
// data; codecs never infer channel identity from the name.
type Channel struct {
	Name       string
	Tag        format.ChannelTag
	Type       format.PixelType
	Perceptual format.Perceptual
}

// Layout describes the shape of one chunk's raw planar data: Lines
// scanlines, each holding Width elements of every channel in file order.
type Layout struct {
	Width    int
	Lines    int
	Channels []Channel
}

// BytesPerLine returns the raw byte length of one scanline across all
// channels.
func (l Layout) BytesPerLine() int {
	n := 0
	for _, ch := range l.Channels {
		n += l.Width * ch.Type.Size()
	}

	return n
}

// RawSize returns the raw byte length of the whole chunk.
func (l Layout) RawSize() int {
	return l.BytesPerLine() * l.Lines
}

// Compressor turns one chunk of raw planar data into its stored payload.
//
// Memory management:
//   - The returned slice is newly allocated and owned by the caller.
//   - The input slice is not modified.
type Compressor interface {
	Compress(raw []byte, layout Layout) ([]byte, error)
}

// Decompressor reverses a Compressor, recovering a chunk's raw planar data
// from its stored payload. For lossy codecs the recovered values are
// approximations of the originals.
type Decompressor interface {
	Decompress(data []byte, layout Layout) ([]byte, error)
}

// Codec combines both directions of one compression kind.
type Codec interface {
	Compressor
	Decompressor
}

// CreateCodec is a factory returning the Codec for a compression kind.
// The quality level is meaningful only for the quality-parameterized kinds
// (DWAA, DWAB) and is ignored by the others.
func CreateCodec(kind format.Compression, quality float32) (Codec, error) {
	switch kind {
	case format.CompressionNone:
		return NewNoOpCodec(), nil
	case format.CompressionRLE:
		return NewRLECodec(), nil
	case format.CompressionZIPS, format.CompressionZIP:
		return NewZipCodec(), nil
	case format.CompressionDWAA, format.CompressionDWAB:
		return NewDWACodec(quality), nil
	default:
		return nil, fmt.Errorf("unsupported compression kind: %s", kind)
	}
}
