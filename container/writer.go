package container

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math"

	"github.com/averral/exrmem/compress"
	"github.com/averral/exrmem/errs"
	"github.com/averral/exrmem/format"
)

// Magic is the EXR stream signature (20000630 little-endian).
const Magic = 20000630

// version 2, single-part scanline, no long names.
const streamVersion = 2

// WriteFn delivers output bytes at an absolute stream offset. It must
// return the number of bytes written and may be called with out-of-order
// offsets.
type WriteFn func(p []byte, off int64) (int, error)

// ChunkInfo describes the placement of one row-band in the output stream.
// Request a fresh one per row-band; instances are not reusable across
// bands.
type ChunkInfo struct {
	Index  int   // position in the chunk offset table
	StartY int32 // first scanline covered by the chunk
	Height int32 // scanlines covered; the final band may be short
}

// part holds the declared metadata of the single image part.
type part struct {
	name        string
	storage     format.Storage
	width       int
	height      int
	compression format.Compression
	lineOrder   format.LineOrder
	dwaLevel    float32
	channels    []compress.Channel
	initialized bool
}

// Writer is the output session of one encode. It owns the header, the
// chunk offset table and chunk placement; all bytes leave through the
// write callback handed to NewWriter.
//
// Writer is not safe for concurrent use.
type Writer struct {
	write         WriteFn
	part          *part
	headerWritten bool
	finished      bool

	tableOffset int64 // stream offset of the chunk offset table
	nextOffset  int64 // stream offset for the next chunk payload
	chunkODone  []bool
	chunksDone  int
}

// NewWriter opens an output session that emits through write.
func NewWriter(write WriteFn) (*Writer, error) {
	if write == nil {
		return nil, fmt.Errorf("%w: nil write callback", errs.ErrInvalidArgument)
	}

	return &Writer{write: write}, nil
}

// AddPart declares the image part. Only a single scanline part is
// supported; a second call fails with ErrPartExists.
func (w *Writer) AddPart(name string, storage format.Storage) (int, error) {
	if w.part != nil {
		return -1, errs.ErrPartExists
	}
	if storage != format.StorageScanline {
		return -1, fmt.Errorf("%w: %s storage not supported", errs.ErrInvalidArgument, storage)
	}

	w.part = &part{
		name:      name,
		storage:   storage,
		lineOrder: format.LineOrderIncreasingY,
		dwaLevel:  45,
	}

	return 0, nil
}

// checkPart validates a part index and returns the part.
func (w *Writer) checkPart(idx int) (*part, error) {
	if w.part == nil || idx != 0 {
		return nil, fmt.Errorf("%w: %d", errs.ErrInvalidPart, idx)
	}

	return w.part, nil
}

// InitializeRequiredAttrs sets the dimensions and compression kind of the
// part. Selectors outside the supported range normalize to the default
// lossy band compression.
func (w *Writer) InitializeRequiredAttrs(idx, width, height int, c format.Compression) error {
	p, err := w.checkPart(idx)
	if err != nil {
		return err
	}
	if w.headerWritten {
		return errs.ErrHeaderWritten
	}
	if width <= 0 || height <= 0 {
		return fmt.Errorf("%w: dimensions %dx%d", errs.ErrInvalidArgument, width, height)
	}

	p.width = width
	p.height = height
	p.compression = c.Normalize()
	p.initialized = true

	return nil
}

// SetLineOrder sets the scanline chunk ordering. Only increasing-Y output
// is produced by this library.
func (w *Writer) SetLineOrder(idx int, lo format.LineOrder) error {
	p, err := w.checkPart(idx)
	if err != nil {
		return err
	}
	if w.headerWritten {
		return errs.ErrHeaderWritten
	}
	if lo != format.LineOrderIncreasingY {
		return fmt.Errorf("%w: line order %s not supported", errs.ErrInvalidArgument, lo)
	}

	p.lineOrder = lo

	return nil
}

// SetDWACompressionLevel sets the quality level recorded in the header and
// used by the DWA codecs. Ignored by other compression kinds.
func (w *Writer) SetDWACompressionLevel(idx int, level float32) error {
	p, err := w.checkPart(idx)
	if err != nil {
		return err
	}
	if w.headerWritten {
		return errs.ErrHeaderWritten
	}

	p.dwaLevel = level

	return nil
}

// AddChannel declares one channel. The channel tag is resolved from the
// name here, once, and carried as data from then on. Channels are kept
// sorted by name, the order they appear in chunk data.
func (w *Writer) AddChannel(idx int, name string, t format.PixelType, perc format.Perceptual) error {
	p, err := w.checkPart(idx)
	if err != nil {
		return err
	}
	if w.headerWritten {
		return errs.ErrHeaderWritten
	}
	if name == "" {
		return fmt.Errorf("%w: empty channel name", errs.ErrInvalidArgument)
	}

	ch := compress.Channel{
		Name:       name,
		Tag:        format.ResolveChannelTag(name),
		Type:       t,
		Perceptual: perc,
	}

	pos := len(p.channels)
	for i, existing := range p.channels {
		if existing.Name == name {
			return fmt.Errorf("%w: duplicate channel %q", errs.ErrInvalidArgument, name)
		}
		if name < existing.Name && pos == len(p.channels) {
			pos = i
		}
	}
	p.channels = append(p.channels, compress.Channel{})
	copy(p.channels[pos+1:], p.channels[pos:])
	p.channels[pos] = ch

	return nil
}

// chunkCount returns the number of row-bands the image divides into.
func (p *part) chunkCount() int {
	spc := int(p.compression.ScanlinesPerChunk())

	return (p.height + spc - 1) / spc
}

// WriteHeader serializes the header and reserves the chunk offset table.
// After this the attribute set is frozen and chunks may be written.
func (w *Writer) WriteHeader() error {
	if w.headerWritten {
		return errs.ErrHeaderWritten
	}
	p, err := w.checkPart(0)
	if err != nil {
		return err
	}
	if !p.initialized {
		return fmt.Errorf("%w: required attributes not set", errs.ErrInvalidArgument)
	}
	if len(p.channels) == 0 {
		return errs.ErrNoChannels
	}

	var buf bytes.Buffer
	writeUint32(&buf, Magic)
	writeUint32(&buf, streamVersion)

	// Attributes in alphabetical order, matching how standard readers
	// expect to find them.
	writeAttr(&buf, "channels", "chlist", chlistPayload(p.channels))
	writeAttr(&buf, "compression", "compression", []byte{byte(p.compression)})
	box := box2iPayload(p.width, p.height)
	writeAttr(&buf, "dataWindow", "box2i", box)
	writeAttr(&buf, "displayWindow", "box2i", box)
	if p.compression.QualityParameterized() {
		writeAttr(&buf, "dwaCompressionLevel", "float", floatPayload(p.dwaLevel))
	}
	writeAttr(&buf, "lineOrder", "lineOrder", []byte{byte(p.lineOrder)})
	writeAttr(&buf, "pixelAspectRatio", "float", floatPayload(1))
	writeAttr(&buf, "screenWindowCenter", "v2f", make([]byte, 8))
	writeAttr(&buf, "screenWindowWidth", "float", floatPayload(1))
	buf.WriteByte(0) // end of attributes

	chunks := p.chunkCount()
	w.tableOffset = int64(buf.Len())
	buf.Write(make([]byte, chunks*8)) // zeroed table, patched per chunk

	if _, err := w.write(buf.Bytes(), 0); err != nil {
		return err
	}

	w.nextOffset = w.tableOffset + int64(chunks*8)
	w.chunkODone = make([]bool, chunks)
	w.headerWritten = true

	return nil
}

// ScanlinesPerChunk returns the row-band height of the part's compression
// kind. Valid only after the header is written.
func (w *Writer) ScanlinesPerChunk(idx int) (int32, error) {
	p, err := w.checkPart(idx)
	if err != nil {
		return 0, err
	}
	if !w.headerWritten {
		return 0, errs.ErrHeaderNotWritten
	}

	return p.compression.ScanlinesPerChunk(), nil
}

// ScanlineChunkInfo returns the placement of the row-band containing
// scanline y.
func (w *Writer) ScanlineChunkInfo(idx, y int) (ChunkInfo, error) {
	p, err := w.checkPart(idx)
	if err != nil {
		return ChunkInfo{}, err
	}
	if !w.headerWritten {
		return ChunkInfo{}, errs.ErrHeaderNotWritten
	}
	if y < 0 || y >= p.height {
		return ChunkInfo{}, fmt.Errorf("%w: row %d of %d", errs.ErrChunkOutOfRange, y, p.height)
	}

	spc := int(p.compression.ScanlinesPerChunk())
	start := y - y%spc
	lines := spc
	if start+lines > p.height {
		lines = p.height - start
	}

	return ChunkInfo{
		Index:  start / spc,
		StartY: int32(start),
		Height: int32(lines),
	}, nil
}

// writeChunk appends one chunk record and patches its offset into the
// table.
func (w *Writer) writeChunk(ci ChunkInfo, payload []byte) error {
	if !w.headerWritten {
		return errs.ErrHeaderNotWritten
	}
	if ci.Index < 0 || ci.Index >= len(w.chunkODone) {
		return fmt.Errorf("%w: chunk index %d", errs.ErrChunkOutOfRange, ci.Index)
	}

	record := make([]byte, 8+len(payload))
	binary.LittleEndian.PutUint32(record, uint32(ci.StartY))
	binary.LittleEndian.PutUint32(record[4:], uint32(len(payload)))
	copy(record[8:], payload)

	if _, err := w.write(record, w.nextOffset); err != nil {
		return err
	}

	var entry [8]byte
	binary.LittleEndian.PutUint64(entry[:], uint64(w.nextOffset))
	if _, err := w.write(entry[:], w.tableOffset+int64(ci.Index)*8); err != nil {
		return err
	}

	if !w.chunkODone[ci.Index] {
		w.chunkODone[ci.Index] = true
		w.chunksDone++
	}
	w.nextOffset += int64(len(record))

	return nil
}

// Finish validates that the stream is complete. The image is only
// self-describing once every chunk slot in the offset table is filled.
func (w *Writer) Finish() error {
	if !w.headerWritten {
		return errs.ErrHeaderNotWritten
	}
	if w.finished {
		return fmt.Errorf("%w: already finished", errs.ErrInvalidArgument)
	}
	if w.chunksDone != len(w.chunkODone) {
		return fmt.Errorf("%w: %d of %d", errs.ErrIncompleteImage, w.chunksDone, len(w.chunkODone))
	}

	w.finished = true

	return nil
}

func writeUint32(buf *bytes.Buffer, v uint32) {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], v)
	buf.Write(b[:])
}

// writeAttr serializes one header attribute: name, type name, payload size,
// payload.
func writeAttr(buf *bytes.Buffer, name, typeName string, payload []byte) {
	buf.WriteString(name)
	buf.WriteByte(0)
	buf.WriteString(typeName)
	buf.WriteByte(0)
	writeUint32(buf, uint32(len(payload)))
	buf.Write(payload)
}

// chlistPayload serializes the channel list attribute.
func chlistPayload(channels []compress.Channel) []byte {
	var buf bytes.Buffer
	for _, ch := range channels {
		buf.WriteString(ch.Name)
		buf.WriteByte(0)
		writeUint32(&buf, uint32(ch.Type))
		buf.WriteByte(byte(ch.Perceptual)) // pLinear
		buf.Write([]byte{0, 0, 0})         // reserved
		writeUint32(&buf, 1)               // xSampling
		writeUint32(&buf, 1)               // ySampling
	}
	buf.WriteByte(0)

	return buf.Bytes()
}

// box2iPayload serializes a zero-origin box2i for the given dimensions.
func box2iPayload(width, height int) []byte {
	b := make([]byte, 16)
	binary.LittleEndian.PutUint32(b[8:], uint32(width-1))
	binary.LittleEndian.PutUint32(b[12:], uint32(height-1))

	return b
}

func floatPayload(v float32) []byte {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], math.Float32bits(v))

	return b[:]
}
