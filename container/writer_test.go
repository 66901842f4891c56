package container

import (
	"encoding/binary"
	"math"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/averral/exrmem/errs"
	"github.com/averral/exrmem/format"
	"github.com/averral/exrmem/sink"
)

// attr is one parsed header attribute.
type attr struct {
	name     string
	typeName string
	payload  []byte
}

// parseHeader walks the stream header and returns the attributes in file
// order plus the offset of the first byte after the attribute terminator.
func parseHeader(t *testing.T, data []byte) ([]attr, int) {
	t.Helper()

	require.GreaterOrEqual(t, len(data), 8)
	require.Equal(t, uint32(Magic), binary.LittleEndian.Uint32(data))
	require.Equal(t, uint32(streamVersion), binary.LittleEndian.Uint32(data[4:]))

	var attrs []attr
	pos := 8
	for data[pos] != 0 {
		name, n := readCString(t, data[pos:])
		pos += n
		typeName, n := readCString(t, data[pos:])
		pos += n
		size := int(binary.LittleEndian.Uint32(data[pos:]))
		pos += 4
		attrs = append(attrs, attr{name: name, typeName: typeName, payload: data[pos : pos+size]})
		pos += size
	}

	return attrs, pos + 1
}

func readCString(t *testing.T, data []byte) (string, int) {
	t.Helper()
	for i, b := range data {
		if b == 0 {
			return string(data[:i]), i + 1
		}
	}
	t.Fatal("unterminated string")

	return "", 0
}

func findAttr(attrs []attr, name string) *attr {
	for i := range attrs {
		if attrs[i].name == name {
			return &attrs[i]
		}
	}

	return nil
}

// newRGBAWriter declares a 16x8 RGBA half part over a fresh sink.
func newRGBAWriter(t *testing.T, c format.Compression) (*Writer, *sink.Sink) {
	t.Helper()

	s := sink.New()
	w, err := NewWriter(s.WriteAt)
	require.NoError(t, err)

	idx, err := w.AddPart("main", format.StorageScanline)
	require.NoError(t, err)
	require.Zero(t, idx)

	require.NoError(t, w.InitializeRequiredAttrs(idx, 16, 8, c))
	for _, name := range []string{"R", "G", "B"} {
		require.NoError(t, w.AddChannel(idx, name, format.PixelTypeHalf, format.PerceptualLogarithmic))
	}
	require.NoError(t, w.AddChannel(idx, "A", format.PixelTypeHalf, format.PerceptualLinear))

	return w, s
}

func TestNewWriter_NilCallback(t *testing.T) {
	_, err := NewWriter(nil)
	require.ErrorIs(t, err, errs.ErrInvalidArgument)
}

func TestAddPart(t *testing.T) {
	s := sink.New()
	w, err := NewWriter(s.WriteAt)
	require.NoError(t, err)

	idx, err := w.AddPart("main", format.StorageScanline)
	require.NoError(t, err)
	require.Zero(t, idx)

	_, err = w.AddPart("second", format.StorageScanline)
	require.ErrorIs(t, err, errs.ErrPartExists)
}

func TestAddPart_TiledStorage(t *testing.T) {
	s := sink.New()
	w, err := NewWriter(s.WriteAt)
	require.NoError(t, err)

	_, err = w.AddPart("main", format.StorageTiled)
	require.ErrorIs(t, err, errs.ErrInvalidArgument)
}

func TestInitializeRequiredAttrs_BadDimensions(t *testing.T) {
	s := sink.New()
	w, err := NewWriter(s.WriteAt)
	require.NoError(t, err)
	_, err = w.AddPart("main", format.StorageScanline)
	require.NoError(t, err)

	require.ErrorIs(t, w.InitializeRequiredAttrs(0, 0, 8, format.CompressionZIP), errs.ErrInvalidArgument)
	require.ErrorIs(t, w.InitializeRequiredAttrs(0, 16, -1, format.CompressionZIP), errs.ErrInvalidArgument)
	require.ErrorIs(t, w.InitializeRequiredAttrs(1, 16, 8, format.CompressionZIP), errs.ErrInvalidPart)
}

func TestAddChannel_Validation(t *testing.T) {
	w, _ := newRGBAWriter(t, format.CompressionZIP)

	err := w.AddChannel(0, "R", format.PixelTypeHalf, format.PerceptualLogarithmic)
	require.ErrorIs(t, err, errs.ErrInvalidArgument)

	err = w.AddChannel(0, "", format.PixelTypeHalf, format.PerceptualLinear)
	require.ErrorIs(t, err, errs.ErrInvalidArgument)

	require.NoError(t, w.WriteHeader())
	err = w.AddChannel(0, "Z", format.PixelTypeHalf, format.PerceptualLinear)
	require.ErrorIs(t, err, errs.ErrHeaderWritten)
}

func TestAddChannel_SortedByName(t *testing.T) {
	w, _ := newRGBAWriter(t, format.CompressionZIP)

	names := make([]string, len(w.part.channels))
	for i, ch := range w.part.channels {
		names[i] = ch.Name
	}
	require.Equal(t, []string{"A", "B", "G", "R"}, names)
}

func TestWriteHeader_NoChannels(t *testing.T) {
	s := sink.New()
	w, err := NewWriter(s.WriteAt)
	require.NoError(t, err)
	_, err = w.AddPart("main", format.StorageScanline)
	require.NoError(t, err)
	require.NoError(t, w.InitializeRequiredAttrs(0, 16, 8, format.CompressionZIP))

	require.ErrorIs(t, w.WriteHeader(), errs.ErrNoChannels)
}

func TestWriteHeader_NotInitialized(t *testing.T) {
	s := sink.New()
	w, err := NewWriter(s.WriteAt)
	require.NoError(t, err)
	_, err = w.AddPart("main", format.StorageScanline)
	require.NoError(t, err)

	require.ErrorIs(t, w.WriteHeader(), errs.ErrInvalidArgument)
}

func TestWriteHeader_Attributes(t *testing.T) {
	w, s := newRGBAWriter(t, format.CompressionDWAA)
	require.NoError(t, w.SetDWACompressionLevel(0, 30))
	require.NoError(t, w.WriteHeader())

	attrs, tableOff := parseHeader(t, s.Bytes())

	var names []string
	for _, a := range attrs {
		names = append(names, a.name)
	}
	require.Equal(t, []string{
		"channels", "compression", "dataWindow", "displayWindow",
		"dwaCompressionLevel", "lineOrder", "pixelAspectRatio",
		"screenWindowCenter", "screenWindowWidth",
	}, names)

	require.Equal(t, []byte{byte(format.CompressionDWAA)}, findAttr(attrs, "compression").payload)
	require.Equal(t, []byte{byte(format.LineOrderIncreasingY)}, findAttr(attrs, "lineOrder").payload)

	dw := findAttr(attrs, "dataWindow").payload
	require.Len(t, dw, 16)
	require.Zero(t, binary.LittleEndian.Uint32(dw))
	require.Zero(t, binary.LittleEndian.Uint32(dw[4:]))
	require.Equal(t, uint32(15), binary.LittleEndian.Uint32(dw[8:]))
	require.Equal(t, uint32(7), binary.LittleEndian.Uint32(dw[12:]))
	require.Equal(t, dw, findAttr(attrs, "displayWindow").payload)

	level := findAttr(attrs, "dwaCompressionLevel").payload
	require.Equal(t, float32(30), math.Float32frombits(binary.LittleEndian.Uint32(level)))

	require.Equal(t, int64(tableOff), w.tableOffset)
	// DWAA at 8 rows is a single 32-row band.
	require.Len(t, w.chunkODone, 1)
}

func TestWriteHeader_Chlist(t *testing.T) {
	w, s := newRGBAWriter(t, format.CompressionZIP)
	require.NoError(t, w.WriteHeader())

	attrs, _ := parseHeader(t, s.Bytes())
	chlist := findAttr(attrs, "channels").payload

	type entry struct {
		name    string
		ptype   uint32
		pLinear byte
	}
	var entries []entry
	pos := 0
	for chlist[pos] != 0 {
		name, n := readCString(t, chlist[pos:])
		pos += n
		e := entry{name: name, ptype: binary.LittleEndian.Uint32(chlist[pos:]), pLinear: chlist[pos+4]}
		require.Equal(t, uint32(1), binary.LittleEndian.Uint32(chlist[pos+8:]), "xSampling")
		require.Equal(t, uint32(1), binary.LittleEndian.Uint32(chlist[pos+12:]), "ySampling")
		pos += 16
		entries = append(entries, e)
	}

	require.Equal(t, []entry{
		{name: "A", ptype: uint32(format.PixelTypeHalf), pLinear: 1},
		{name: "B", ptype: uint32(format.PixelTypeHalf), pLinear: 0},
		{name: "G", ptype: uint32(format.PixelTypeHalf), pLinear: 0},
		{name: "R", ptype: uint32(format.PixelTypeHalf), pLinear: 0},
	}, entries)
}

func TestWriteHeader_NormalizesCompression(t *testing.T) {
	w, s := newRGBAWriter(t, format.Compression(42))
	require.NoError(t, w.WriteHeader())

	attrs, _ := parseHeader(t, s.Bytes())
	require.Equal(t, []byte{byte(format.CompressionDWAA)}, findAttr(attrs, "compression").payload)
}

func TestWriteHeader_Twice(t *testing.T) {
	w, _ := newRGBAWriter(t, format.CompressionZIP)
	require.NoError(t, w.WriteHeader())
	require.ErrorIs(t, w.WriteHeader(), errs.ErrHeaderWritten)
}

func TestSetLineOrder(t *testing.T) {
	w, _ := newRGBAWriter(t, format.CompressionZIP)

	require.NoError(t, w.SetLineOrder(0, format.LineOrderIncreasingY))
	require.ErrorIs(t, w.SetLineOrder(0, format.LineOrderDecreasingY), errs.ErrInvalidArgument)

	require.NoError(t, w.WriteHeader())
	require.ErrorIs(t, w.SetLineOrder(0, format.LineOrderIncreasingY), errs.ErrHeaderWritten)
}

func TestScanlineChunkInfo(t *testing.T) {
	w, _ := newRGBAWriter(t, format.CompressionZIP) // 16 scanlines per chunk, height 8
	require.NoError(t, w.WriteHeader())

	spc, err := w.ScanlinesPerChunk(0)
	require.NoError(t, err)
	require.Equal(t, int32(16), spc)

	// Any row inside the band snaps to the band start; the final band is
	// clamped to the image height.
	for _, y := range []int{0, 3, 7} {
		ci, err := w.ScanlineChunkInfo(0, y)
		require.NoError(t, err)
		require.Equal(t, ChunkInfo{Index: 0, StartY: 0, Height: 8}, ci)
	}

	_, err = w.ScanlineChunkInfo(0, 8)
	require.ErrorIs(t, err, errs.ErrChunkOutOfRange)
	_, err = w.ScanlineChunkInfo(0, -1)
	require.ErrorIs(t, err, errs.ErrChunkOutOfRange)
}

func TestScanlineChunkInfo_BeforeHeader(t *testing.T) {
	w, _ := newRGBAWriter(t, format.CompressionZIP)
	_, err := w.ScanlineChunkInfo(0, 0)
	require.ErrorIs(t, err, errs.ErrHeaderNotWritten)

	_, err = w.ScanlinesPerChunk(0)
	require.ErrorIs(t, err, errs.ErrHeaderNotWritten)
}

func TestWriteChunk_PatchesTable(t *testing.T) {
	w, s := newRGBAWriter(t, format.CompressionZIPS) // one scanline per chunk
	require.NoError(t, w.WriteHeader())
	require.Len(t, w.chunkODone, 8)

	// Write chunks out of order; the table entries must land in index
	// order regardless.
	payload := []byte{1, 2, 3, 4}
	for _, y := range []int{3, 0, 7} {
		ci, err := w.ScanlineChunkInfo(0, y)
		require.NoError(t, err)
		require.NoError(t, w.writeChunk(ci, payload))
	}

	data := s.Bytes()
	for _, y := range []int{3, 0, 7} {
		entry := binary.LittleEndian.Uint64(data[int(w.tableOffset)+y*8:])
		record := data[entry:]
		require.Equal(t, uint32(y), binary.LittleEndian.Uint32(record))
		require.Equal(t, uint32(len(payload)), binary.LittleEndian.Uint32(record[4:]))
		require.Equal(t, payload, record[8:8+len(payload)])
	}

	// Unwritten chunk slots stay zero.
	require.Zero(t, binary.LittleEndian.Uint64(data[int(w.tableOffset)+1*8:]))
}

func TestFinish(t *testing.T) {
	w, _ := newRGBAWriter(t, format.CompressionZIPS)
	require.NoError(t, w.WriteHeader())

	require.ErrorIs(t, w.Finish(), errs.ErrIncompleteImage)

	for y := 0; y < 8; y++ {
		ci, err := w.ScanlineChunkInfo(0, y)
		require.NoError(t, err)
		require.NoError(t, w.writeChunk(ci, []byte{0}))
	}

	require.NoError(t, w.Finish())
	require.ErrorIs(t, w.Finish(), errs.ErrInvalidArgument)
}

func TestFinish_BeforeHeader(t *testing.T) {
	w, _ := newRGBAWriter(t, format.CompressionZIP)
	require.ErrorIs(t, w.Finish(), errs.ErrHeaderNotWritten)
}
