package format

type (
	// Compression identifies the per-chunk compression scheme, using the
	// on-disk OpenEXR attribute codes.
	Compression uint8

	// PixelType identifies the on-disk element type of a channel, using the
	// on-disk OpenEXR chlist codes.
	PixelType uint8

	// Perceptual declares how a channel's values are distributed. It maps to
	// the chlist pLinear flag and only guides lossy quantization; stored
	// values are not altered.
	Perceptual uint8

	// LineOrder declares the order scanline chunks appear in the stream.
	LineOrder uint8

	// Storage identifies the part storage layout.
	Storage uint8

	// ChannelTag identifies one of the four fixed image channels. The tag is
	// decided once when a channel is declared and carried as data from then
	// on, so binding code never re-derives identity from the channel name.
	ChannelTag uint8
)

const (
	CompressionNone Compression = 0 // CompressionNone stores chunks uncompressed.
	CompressionRLE  Compression = 1 // CompressionRLE is run-length coding, one scanline per chunk.
	CompressionZIPS Compression = 2 // CompressionZIPS is deflate, one scanline per chunk.
	CompressionZIP  Compression = 3 // CompressionZIP is deflate over 16-scanline chunks.
	CompressionDWAA Compression = 8 // CompressionDWAA is lossy DCT over 32-scanline chunks.
	CompressionDWAB Compression = 9 // CompressionDWAB is lossy DCT over 256-scanline chunks.

	PixelTypeUint  PixelType = 0
	PixelTypeHalf  PixelType = 1
	PixelTypeFloat PixelType = 2

	PerceptualLogarithmic Perceptual = 0 // color-like data, log distributed
	PerceptualLinear      Perceptual = 1 // alpha-like data, linearly distributed

	LineOrderIncreasingY LineOrder = 0
	LineOrderDecreasingY LineOrder = 1

	StorageScanline Storage = 0
	StorageTiled    Storage = 1

	ChannelR ChannelTag = 0
	ChannelG ChannelTag = 1
	ChannelB ChannelTag = 2
	ChannelA ChannelTag = 3
)

// Valid reports whether c is a compression kind this library can encode.
func (c Compression) Valid() bool {
	switch c {
	case CompressionNone, CompressionRLE, CompressionZIPS, CompressionZIP,
		CompressionDWAA, CompressionDWAB:
		return true
	default:
		return false
	}
}

// Normalize returns c when valid, or the default lossy band compression
// (DWAA) for any selector outside the supported range.
func (c Compression) Normalize() Compression {
	if !c.Valid() {
		return CompressionDWAA
	}

	return c
}

// ScanlinesPerChunk returns the number of scanlines covered by one chunk of
// this compression kind. The final chunk of an image may cover fewer rows.
func (c Compression) ScanlinesPerChunk() int32 {
	switch c {
	case CompressionZIP:
		return 16
	case CompressionDWAA:
		return 32
	case CompressionDWAB:
		return 256
	default:
		// None, RLE and ZIPS compress individual scanlines.
		return 1
	}
}

// QualityParameterized reports whether c accepts a quality level.
func (c Compression) QualityParameterized() bool {
	return c == CompressionDWAA || c == CompressionDWAB
}

func (c Compression) String() string {
	switch c {
	case CompressionNone:
		return "None"
	case CompressionRLE:
		return "RLE"
	case CompressionZIPS:
		return "ZIPS"
	case CompressionZIP:
		return "ZIP"
	case CompressionDWAA:
		return "DWAA"
	case CompressionDWAB:
		return "DWAB"
	default:
		return "Unknown"
	}
}

// Size returns the byte size of one element of this pixel type.
func (t PixelType) Size() int {
	switch t {
	case PixelTypeHalf:
		return 2
	case PixelTypeUint, PixelTypeFloat:
		return 4
	default:
		return 0
	}
}

func (t PixelType) String() string {
	switch t {
	case PixelTypeUint:
		return "Uint"
	case PixelTypeHalf:
		return "Half"
	case PixelTypeFloat:
		return "Float"
	default:
		return "Unknown"
	}
}

func (p Perceptual) String() string {
	switch p {
	case PerceptualLogarithmic:
		return "Logarithmic"
	case PerceptualLinear:
		return "Linear"
	default:
		return "Unknown"
	}
}

func (o LineOrder) String() string {
	switch o {
	case LineOrderIncreasingY:
		return "IncreasingY"
	case LineOrderDecreasingY:
		return "DecreasingY"
	default:
		return "Unknown"
	}
}

func (s Storage) String() string {
	switch s {
	case StorageScanline:
		return "Scanline"
	case StorageTiled:
		return "Tiled"
	default:
		return "Unknown"
	}
}

// Offset returns the channel's element offset within one interleaved RGBA
// pixel of the source buffer.
func (t ChannelTag) Offset() int {
	return int(t)
}

func (t ChannelTag) String() string {
	switch t {
	case ChannelR:
		return "R"
	case ChannelG:
		return "G"
	case ChannelB:
		return "B"
	case ChannelA:
		return "A"
	default:
		return "Unknown"
	}
}

// ResolveChannelTag maps a declared channel name to its tag. Only the four
// fixed names are meaningful; any other name resolves to the alpha slot so a
// misnamed channel degrades to lossless treatment instead of failing.
func ResolveChannelTag(name string) ChannelTag {
	switch name {
	case "R":
		return ChannelR
	case "G":
		return ChannelG
	case "B":
		return ChannelB
	default:
		return ChannelA
	}
}
