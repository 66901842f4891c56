package exrmem

import (
	"github.com/averral/exrmem/container"
	"github.com/averral/exrmem/format"
)

// fallbackScanlinesPerChunk guards against a container reporting a
// non-positive row-band height.
const fallbackScanlinesPerChunk = 32

// channelSource computes the stride descriptor for one channel of the
// row-band starting at startY: the base slice positioned on the channel's
// first sample, the interleaved pixel stride (4 floats, 16 bytes) and the
// line stride (width*4 floats, width*16 bytes). Computed fresh for every
// chunk, never persisted.
func channelSource(pixels []float32, tag format.ChannelTag, startY, width int) container.ChannelSource {
	return container.ChannelSource{
		Base:        pixels[startY*width*4+tag.Offset():],
		PixelStride: 4,
		LineStride:  width * 4,
	}
}

// encodeChunks drives the container through the whole image one row-band at
// a time, in increasing row order with a single live encode session.
func encodeChunks(w *container.Writer, part int, pixels []float32, width, height int) error {
	spc, err := w.ScanlinesPerChunk(part)
	if err != nil {
		return err
	}
	if spc <= 0 {
		spc = fallbackScanlinesPerChunk
	}

	for y := 0; y < height; y += int(spc) {
		if err := encodeChunk(w, part, pixels, width, y); err != nil {
			return err
		}
	}

	return nil
}

// encodeChunk encodes one row-band: request the chunk placement, open an
// encode session, bind every enumerated channel through the plane locator,
// select routines and run. The deferred Destroy releases the session on
// every exit path.
func encodeChunk(w *container.Writer, part int, pixels []float32, width, y int) error {
	ci, err := w.ScanlineChunkInfo(part, y)
	if err != nil {
		return err
	}

	pipe, err := w.NewEncodePipeline(part, ci)
	if err != nil {
		return err
	}
	defer pipe.Destroy()

	for i, ch := range pipe.Channels() {
		if err := pipe.Bind(i, channelSource(pixels, ch.Tag, int(ci.StartY), width)); err != nil {
			return err
		}
	}

	if err := pipe.ChooseDefaultRoutines(); err != nil {
		return err
	}

	return pipe.Run()
}
