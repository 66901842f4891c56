// Package exrmem encodes an in-memory RGB(A) half-precision image into a
// compressed scanline EXR container, returning the encoded stream as a
// single contiguous byte buffer.
//
// The input is a caller-owned interleaved float32 buffer (4 floats per
// pixel, RGBA order, row-major); values are converted to half precision as
// they are packed. The encode is one blocking call with no package-level
// state, so independent calls may run concurrently from separate
// goroutines.
//
// # Basic Usage
//
//	pixels := make([]float32, width*height*4)
//	// ... fill pixels ...
//	data, err := exrmem.Encode(pixels, width, height,
//	    exrmem.WithCompression(format.CompressionDWAA),
//	    exrmem.WithQuality(45),
//	)
//
// The returned buffer is a complete, self-describing image container that
// can be written to a file or transmitted as-is.
package exrmem

import (
	"fmt"

	"github.com/averral/exrmem/container"
	"github.com/averral/exrmem/errs"
	"github.com/averral/exrmem/format"
	"github.com/averral/exrmem/internal/options"
	"github.com/averral/exrmem/sink"
)

// defaultQuality is the DWA compression level used when none is given.
const defaultQuality = 45

// config collects the encode parameters set through options.
type config struct {
	includeAlpha bool
	compression  format.Compression
	quality      int
}

// Option configures an Encode call.
type Option = options.Option[*config]

// WithAlpha controls whether the alpha channel is included in the output.
// The default is true; without it the container declares R, G and B only.
func WithAlpha(include bool) Option {
	return options.NoError(func(c *config) {
		c.includeAlpha = include
	})
}

// WithCompression selects the chunk compression kind. Selectors outside the
// supported range fall back to the default lossy band compression (DWAA)
// rather than failing.
func WithCompression(kind format.Compression) Option {
	return options.NoError(func(c *config) {
		c.compression = kind.Normalize()
	})
}

// WithQuality sets the compression level for the quality-parameterized
// kinds (DWAA, DWAB). Other kinds ignore it.
func WithQuality(level int) Option {
	return options.NoError(func(c *config) {
		c.quality = level
	})
}

// Encode compresses pixels into a scanline EXR stream and returns the
// encoded bytes. pixels must hold exactly width*height*4 float32 values and
// is never mutated.
//
// On any failure Encode returns a nil buffer; no partially written result
// ever escapes, and all intermediate buffers are released.
func Encode(pixels []float32, width, height int, opts ...Option) ([]byte, error) {
	if pixels == nil {
		return nil, fmt.Errorf("%w: nil pixel buffer", errs.ErrInvalidArgument)
	}
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("%w: dimensions %dx%d", errs.ErrInvalidArgument, width, height)
	}
	if len(pixels) != width*height*4 {
		return nil, fmt.Errorf("%w: pixel buffer holds %d values, want %d",
			errs.ErrInvalidArgument, len(pixels), width*height*4)
	}

	cfg := &config{
		includeAlpha: true,
		compression:  format.CompressionDWAA,
		quality:      defaultQuality,
	}
	if err := options.Apply(cfg, opts...); err != nil {
		return nil, err
	}

	s := sink.New()
	defer s.Release()

	w, err := container.NewWriter(s.WriteAt)
	if err != nil {
		return nil, err
	}

	part, err := w.AddPart("main", format.StorageScanline)
	if err != nil {
		return nil, err
	}
	if err := w.InitializeRequiredAttrs(part, width, height, cfg.compression); err != nil {
		return nil, err
	}
	if err := w.SetLineOrder(part, format.LineOrderIncreasingY); err != nil {
		return nil, err
	}
	if cfg.compression.QualityParameterized() {
		if err := w.SetDWACompressionLevel(part, float32(cfg.quality)); err != nil {
			return nil, err
		}
	}

	channels := []struct {
		name string
		perc format.Perceptual
	}{
		{"R", format.PerceptualLogarithmic},
		{"G", format.PerceptualLogarithmic},
		{"B", format.PerceptualLogarithmic},
	}
	if cfg.includeAlpha {
		channels = append(channels, struct {
			name string
			perc format.Perceptual
		}{"A", format.PerceptualLinear})
	}
	for _, ch := range channels {
		if err := w.AddChannel(part, ch.name, format.PixelTypeHalf, ch.perc); err != nil {
			return nil, err
		}
	}

	if err := w.WriteHeader(); err != nil {
		return nil, err
	}
	if err := encodeChunks(w, part, pixels, width, height); err != nil {
		return nil, err
	}
	if err := w.Finish(); err != nil {
		return nil, err
	}

	return s.Snapshot(), nil
}
