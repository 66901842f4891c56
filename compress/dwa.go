package compress

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"sync"

	"github.com/chewxy/math32"
	"github.com/x448/float16"

	"github.com/averral/exrmem/errs"
	"github.com/averral/exrmem/format"
)

// DWA splits a chunk's channels into three groups: R, G and B half data is
// compressed lossily with an 8x8 DCT, alpha is run-length coded
// losslessly, and anything else is deflated as-is. The DCT channels are
// first transferred into a nonlinear space so quantization error lands
// where it is perceptually cheapest.
//
// Stream layout: an 11-slot uint64 header, a channel classification block,
// then the deflated unknown, AC, DC and RLE sections in that order.

const dwaVersion = 2

// Header slot indices.
const (
	dwaSlotVersion = iota
	dwaSlotUnknownUncompressedSize
	dwaSlotUnknownCompressedSize
	dwaSlotAcCompressedSize
	dwaSlotDcCompressedSize
	dwaSlotRleCompressedSize
	dwaSlotRleUncompressedSize
	dwaSlotRleRawSize
	dwaSlotAcUncompressedSize
	dwaSlotDcCount
	dwaSlotAcCompression
	dwaNumSlots
)

const dwaHeaderSize = dwaNumSlots * 8

// AC section entropy coding selector. Only deflate is produced; the slot
// exists so a stream declares what it used.
const acCompressionDeflate = 1

// Channel classification schemes.
const (
	schemeUnknown  = 0
	schemeLossyDCT = 1
	schemeRLE      = 2
)

// AC token stream opcodes.
const (
	acTokenZeroRun = 0x00 // followed by run length 1..255
	acTokenLiteral = 0x01 // followed by a little-endian half
	acTokenEOB     = 0x02 // end of block, remaining coefficients are zero
)

const (
	acPerBlock      = 63
	defaultDWALevel = 45.0
)

// jpegQuantTable is the standard JPEG luminance quantization matrix, indexed
// in zigzag order. It scales the per-coefficient dead zone.
var jpegQuantTable = [64]float32{
	16, 11, 10, 16, 24, 40, 51, 61,
	12, 12, 14, 19, 26, 58, 60, 55,
	14, 13, 16, 24, 40, 57, 69, 56,
	14, 17, 22, 29, 51, 87, 80, 62,
	18, 22, 37, 56, 68, 109, 103, 77,
	24, 35, 55, 64, 81, 104, 113, 92,
	49, 64, 78, 87, 103, 121, 120, 101,
	72, 92, 95, 98, 112, 100, 103, 99,
}

// zigzag maps zigzag scan order to 8x8 block positions.
var zigzag = [64]int{
	0, 1, 8, 16, 9, 2, 3, 10,
	17, 24, 32, 25, 18, 11, 4, 5,
	12, 19, 26, 33, 40, 48, 41, 34,
	27, 20, 13, 6, 7, 14, 21, 28,
	35, 42, 49, 56, 57, 50, 43, 36,
	29, 22, 15, 23, 30, 37, 44, 51,
	58, 59, 52, 45, 38, 31, 39, 46,
	53, 60, 61, 54, 47, 55, 62, 63,
}

// dctBasis is the orthonormal 8-point DCT coefficient matrix.
var dctBasis [8][8]float32

func init() {
	invSqrt8 := 1 / math32.Sqrt(8)
	scale := math32.Sqrt(2.0 / 8.0)
	for k := 0; k < 8; k++ {
		for n := 0; n < 8; n++ {
			c := math32.Cos(float32(2*n+1) * float32(k) * math32.Pi / 16)
			if k == 0 {
				dctBasis[k][n] = c * invSqrt8
			} else {
				dctBasis[k][n] = c * scale
			}
		}
	}
}

// Half-to-half transfer lookup tables, built on first use.
var (
	dwaTablesOnce    sync.Once
	toNonlinearTable [65536]uint16
	toLinearTable    [65536]uint16
)

func ensureDWATables() {
	dwaTablesOnce.Do(func() {
		for i := 0; i < 65536; i++ {
			toNonlinearTable[i] = transferHalf(uint16(i), toNonlinear)
			toLinearTable[i] = transferHalf(uint16(i), toLinear)
		}
	})
}

// transferHalf applies fn to a half value, preserving sign and mapping
// non-finite inputs to zero.
func transferHalf(bits uint16, fn func(float32) float32) uint16 {
	if bits == 0 {
		return 0
	}
	if bits&0x7c00 == 0x7c00 { // inf or nan
		return 0
	}

	f := float16.Frombits(bits).Float32()
	sign := float32(1)
	if f < 0 {
		sign = -1
		f = -f
	}

	return float16.Fromfloat32(sign * fn(f)).Bits()
}

// toNonlinear gamma-compresses values below 1.0 and log-compresses the HDR
// range above it.
func toNonlinear(f float32) float32 {
	if f <= 1 {
		return math32.Pow(f, 1/2.2)
	}

	return math32.Log(f)/2.2 + 1
}

// toLinear inverts toNonlinear.
func toLinear(f float32) float32 {
	if f <= 1 {
		return math32.Pow(f, 2.2)
	}

	return math32.Exp(2.2 * (f - 1))
}

// DWACodec implements the lossy DCT chunk codec shared by CompressionDWAA
// and CompressionDWAB (the two differ only in scanlines per chunk).
type DWACodec struct {
	quality float32
}

var _ Codec = DWACodec{}

// NewDWACodec creates a DWA codec with the given quality level. Levels at or
// below zero select the default (45); higher levels discard more AC detail.
func NewDWACodec(quality float32) DWACodec {
	if quality <= 0 {
		quality = defaultDWALevel
	}
	if quality > 100 {
		quality = 100
	}

	return DWACodec{quality: quality}
}

// classify returns the compression scheme for one channel.
func classify(ch Channel) int {
	if ch.Type != format.PixelTypeHalf {
		return schemeUnknown
	}
	switch ch.Tag {
	case format.ChannelR, format.ChannelG, format.ChannelB:
		return schemeLossyDCT
	case format.ChannelA:
		return schemeRLE
	default:
		return schemeUnknown
	}
}

// Compress encodes one chunk of raw planar data as a DWA stream.
func (c DWACodec) Compress(raw []byte, layout Layout) ([]byte, error) {
	if len(raw) == 0 {
		return nil, nil
	}

	dctCount := 0
	for _, ch := range layout.Channels {
		if ch.Type != format.PixelTypeHalf {
			// Mixed element types are not produced by this library; store the
			// whole chunk in the unknown section rather than guessing.
			return c.compressFallback(raw, layout)
		}
		if classify(ch) == schemeLossyDCT {
			dctCount++
		}
	}
	if dctCount == 0 {
		return c.compressFallback(raw, layout)
	}

	ensureDWATables()
	planes := splitPlanes(raw, layout)

	var (
		allDC   []uint16
		acBuf   bytes.Buffer
		rleBuf  bytes.Buffer
		rleRaw  int
		unknown bytes.Buffer
	)

	for i, ch := range layout.Channels {
		switch classify(ch) {
		case schemeLossyDCT:
			c.encodePlaneDCT(planes[i], layout.Width, layout.Lines, &allDC, &acBuf)
		case schemeRLE:
			stream := rleCompress(halfPlaneBytes(planes[i]))
			var lenBuf [4]byte
			binary.LittleEndian.PutUint32(lenBuf[:], uint32(len(stream)))
			rleBuf.Write(lenBuf[:])
			rleBuf.Write(stream)
			rleRaw += len(planes[i]) * 2
		default:
			unknown.Write(halfPlaneBytes(planes[i]))
		}
	}

	// DC differencing before deflate.
	for i := len(allDC) - 1; i >= 1; i-- {
		allDC[i] -= allDC[i-1]
	}
	dcBytes := make([]byte, len(allDC)*2)
	for i, dc := range allDC {
		binary.LittleEndian.PutUint16(dcBytes[i*2:], dc)
	}

	dcCompressed, err := zlibCompress(dcBytes)
	if err != nil {
		return nil, err
	}
	acCompressed, err := zlibCompress(acBuf.Bytes())
	if err != nil {
		return nil, err
	}
	var rleCompressed []byte
	if rleBuf.Len() > 0 {
		if rleCompressed, err = zlibCompress(rleBuf.Bytes()); err != nil {
			return nil, err
		}
	}
	var unknownCompressed []byte
	if unknown.Len() > 0 {
		if unknownCompressed, err = zlibCompress(unknown.Bytes()); err != nil {
			return nil, err
		}
	}

	var header [dwaNumSlots]uint64
	header[dwaSlotVersion] = dwaVersion
	header[dwaSlotUnknownUncompressedSize] = uint64(unknown.Len())
	header[dwaSlotUnknownCompressedSize] = uint64(len(unknownCompressed))
	header[dwaSlotAcCompressedSize] = uint64(len(acCompressed))
	header[dwaSlotDcCompressedSize] = uint64(len(dcCompressed))
	header[dwaSlotRleCompressedSize] = uint64(len(rleCompressed))
	header[dwaSlotRleUncompressedSize] = uint64(rleBuf.Len())
	header[dwaSlotRleRawSize] = uint64(rleRaw)
	header[dwaSlotAcUncompressedSize] = uint64(acBuf.Len())
	header[dwaSlotDcCount] = uint64(len(allDC))
	header[dwaSlotAcCompression] = acCompressionDeflate

	return assembleDWAStream(header, layout,
		unknownCompressed, acCompressed, dcCompressed, rleCompressed), nil
}

// compressFallback stores the whole chunk in the unknown section. Used when
// no channel qualifies for the DCT path.
func (c DWACodec) compressFallback(raw []byte, layout Layout) ([]byte, error) {
	compressed, err := zlibCompress(raw)
	if err != nil {
		return nil, err
	}

	var header [dwaNumSlots]uint64
	header[dwaSlotVersion] = dwaVersion
	header[dwaSlotUnknownUncompressedSize] = uint64(len(raw))
	header[dwaSlotUnknownCompressedSize] = uint64(len(compressed))
	header[dwaSlotAcCompression] = acCompressionDeflate

	return assembleDWAStream(header, layout, compressed, nil, nil, nil), nil
}

// assembleDWAStream serializes the header, channel rules and data sections.
func assembleDWAStream(header [dwaNumSlots]uint64, layout Layout, sections ...[]byte) []byte {
	rules := channelRules(layout)

	size := dwaHeaderSize + 4 + len(rules)
	for _, s := range sections {
		size += len(s)
	}

	out := make([]byte, 0, size)
	var u64 [8]byte
	for _, v := range header {
		binary.LittleEndian.PutUint64(u64[:], v)
		out = append(out, u64[:]...)
	}
	binary.LittleEndian.PutUint32(u64[:4], uint32(len(rules)))
	out = append(out, u64[:4]...)
	out = append(out, rules...)
	for _, s := range sections {
		out = append(out, s...)
	}

	return out
}

// channelRules serializes each channel's name, scheme and element type so a
// stream is self-describing.
func channelRules(layout Layout) []byte {
	var buf bytes.Buffer
	for _, ch := range layout.Channels {
		buf.WriteString(ch.Name)
		buf.WriteByte(0)
		buf.WriteByte(byte(classify(ch)))
		buf.WriteByte(byte(ch.Type))
	}

	return buf.Bytes()
}

// encodePlaneDCT encodes one channel plane block by block, appending DC
// coefficients to allDC and AC tokens to acBuf.
func (c DWACodec) encodePlaneDCT(plane []uint16, width, lines int, allDC *[]uint16, acBuf *bytes.Buffer) {
	blocksX := (width + 7) / 8
	blocksY := (lines + 7) / 8

	var block [64]float32
	for by := 0; by < blocksY; by++ {
		for bx := 0; bx < blocksX; bx++ {
			// Gather the block in nonlinear space; pixels outside the plane
			// stay zero.
			block = [64]float32{}
			for y := 0; y < 8; y++ {
				py := by*8 + y
				if py >= lines {
					break
				}
				for x := 0; x < 8; x++ {
					px := bx*8 + x
					if px >= width {
						break
					}
					nl := toNonlinearTable[plane[py*width+px]]
					block[y*8+x] = float16.Frombits(nl).Float32()
				}
			}

			dctForward(&block)

			// DC is stored at full half precision; AC coefficients below the
			// quality-scaled dead zone are dropped.
			*allDC = append(*allDC, float16.Fromfloat32(block[0]).Bits())
			c.encodeAC(&block, acBuf)
		}
	}
}

// encodeAC emits the 63 AC coefficients of one block as a token stream.
func (c DWACodec) encodeAC(block *[64]float32, acBuf *bytes.Buffer) {
	var quantized [acPerBlock]uint16
	for i := 1; i < 64; i++ {
		coeff := block[zigzag[i]]
		threshold := c.quality * jpegQuantTable[i] / (100 * 64)
		if math32.Abs(coeff) >= threshold {
			quantized[i-1] = float16.Fromfloat32(coeff).Bits()
		}
	}

	i := 0
	for i < acPerBlock {
		if quantized[i] == 0 {
			run := 1
			for i+run < acPerBlock && quantized[i+run] == 0 && run < 255 {
				run++
			}
			if i+run == acPerBlock {
				break // trailing zeros are implied by EOB
			}
			acBuf.WriteByte(acTokenZeroRun)
			acBuf.WriteByte(byte(run))
			i += run
			continue
		}
		acBuf.WriteByte(acTokenLiteral)
		acBuf.WriteByte(byte(quantized[i]))
		acBuf.WriteByte(byte(quantized[i] >> 8))
		i++
	}
	acBuf.WriteByte(acTokenEOB)
}

// dctForward performs an in-place orthonormal 8x8 forward DCT.
func dctForward(data *[64]float32) {
	var tmp [64]float32

	for row := 0; row < 8; row++ {
		base := row * 8
		for k := 0; k < 8; k++ {
			var sum float32
			for n := 0; n < 8; n++ {
				sum += data[base+n] * dctBasis[k][n]
			}
			tmp[base+k] = sum
		}
	}
	for col := 0; col < 8; col++ {
		for k := 0; k < 8; k++ {
			var sum float32
			for n := 0; n < 8; n++ {
				sum += tmp[n*8+col] * dctBasis[k][n]
			}
			data[k*8+col] = sum
		}
	}
}

// dctInverse performs an in-place orthonormal 8x8 inverse DCT.
func dctInverse(data *[64]float32) {
	var tmp [64]float32

	for col := 0; col < 8; col++ {
		for n := 0; n < 8; n++ {
			var sum float32
			for k := 0; k < 8; k++ {
				sum += data[k*8+col] * dctBasis[k][n]
			}
			tmp[n*8+col] = sum
		}
	}
	for row := 0; row < 8; row++ {
		base := row * 8
		for n := 0; n < 8; n++ {
			var sum float32
			for k := 0; k < 8; k++ {
				sum += tmp[base+k] * dctBasis[k][n]
			}
			data[base+n] = sum
		}
	}
}

// Decompress recovers a chunk's raw planar data from a DWA stream. DCT
// channels come back as approximations; RLE and unknown channels are exact.
func (c DWACodec) Decompress(data []byte, layout Layout) ([]byte, error) {
	if len(data) == 0 {
		return nil, nil
	}
	if len(data) < dwaHeaderSize+4 {
		return nil, fmt.Errorf("%w: dwa stream too short", errs.ErrCorruptData)
	}

	var header [dwaNumSlots]uint64
	for i := range header {
		header[i] = binary.LittleEndian.Uint64(data[i*8:])
	}
	if header[dwaSlotVersion] != dwaVersion {
		return nil, fmt.Errorf("%w: dwa version %d", errs.ErrCorruptData, header[dwaSlotVersion])
	}

	pos := dwaHeaderSize
	ruleSize := int(binary.LittleEndian.Uint32(data[pos:]))
	pos += 4 + ruleSize

	sections := [4]uint64{
		header[dwaSlotUnknownCompressedSize],
		header[dwaSlotAcCompressedSize],
		header[dwaSlotDcCompressedSize],
		header[dwaSlotRleCompressedSize],
	}
	var parts [4][]byte
	for i, size := range sections {
		end := pos + int(size)
		if end < pos || end > len(data) {
			return nil, fmt.Errorf("%w: dwa section past end", errs.ErrCorruptData)
		}
		parts[i] = data[pos:end]
		pos = end
	}
	unknownPart, acPart, dcPart, rlePart := parts[0], parts[1], parts[2], parts[3]

	// Fallback streams carry everything in the unknown section.
	if header[dwaSlotDcCount] == 0 && header[dwaSlotRleCompressedSize] == 0 {
		return zlibDecompress(unknownPart, layout.RawSize())
	}

	ensureDWATables()

	var (
		acData, dcData, rleData, unknownData []byte
		err                                  error
	)
	if len(acPart) > 0 {
		if acData, err = zlibDecompress(acPart, int(header[dwaSlotAcUncompressedSize])); err != nil {
			return nil, err
		}
	}
	if len(dcPart) > 0 {
		if dcData, err = zlibDecompress(dcPart, int(header[dwaSlotDcCount])*2); err != nil {
			return nil, err
		}
	}
	if len(rlePart) > 0 {
		if rleData, err = zlibDecompress(rlePart, int(header[dwaSlotRleUncompressedSize])); err != nil {
			return nil, err
		}
	}
	if len(unknownPart) > 0 {
		if unknownData, err = zlibDecompress(unknownPart, int(header[dwaSlotUnknownUncompressedSize])); err != nil {
			return nil, err
		}
	}

	// Undo DC differencing.
	dcValues := make([]uint16, len(dcData)/2)
	for i := range dcValues {
		dcValues[i] = binary.LittleEndian.Uint16(dcData[i*2:])
		if i > 0 {
			dcValues[i] += dcValues[i-1]
		}
	}

	numPixels := layout.Width * layout.Lines
	planes := make([][]uint16, len(layout.Channels))
	for i := range planes {
		planes[i] = make([]uint16, numPixels)
	}

	dcIdx := 0
	acPos := 0
	rlePos := 0
	unknownPos := 0
	for i, ch := range layout.Channels {
		switch classify(ch) {
		case schemeLossyDCT:
			if acPos, dcIdx, err = decodePlaneDCT(planes[i], layout.Width, layout.Lines,
				dcValues, acData, dcIdx, acPos); err != nil {
				return nil, err
			}
		case schemeRLE:
			if rlePos+4 > len(rleData) {
				return nil, fmt.Errorf("%w: dwa rle section truncated", errs.ErrCorruptData)
			}
			streamLen := int(binary.LittleEndian.Uint32(rleData[rlePos:]))
			rlePos += 4
			if rlePos+streamLen > len(rleData) {
				return nil, fmt.Errorf("%w: dwa rle stream truncated", errs.ErrCorruptData)
			}
			planeBytes, err := rleDecompress(rleData[rlePos:rlePos+streamLen], numPixels*2)
			if err != nil {
				return nil, err
			}
			rlePos += streamLen
			for j := range planes[i] {
				planes[i][j] = binary.LittleEndian.Uint16(planeBytes[j*2:])
			}
		default:
			if unknownPos+numPixels*2 > len(unknownData) {
				return nil, fmt.Errorf("%w: dwa unknown section truncated", errs.ErrCorruptData)
			}
			for j := range planes[i] {
				planes[i][j] = binary.LittleEndian.Uint16(unknownData[unknownPos+j*2:])
			}
			unknownPos += numPixels * 2
		}
	}

	return mergePlanes(planes, layout), nil
}

// decodePlaneDCT rebuilds one channel plane from the DC and AC streams.
func decodePlaneDCT(plane []uint16, width, lines int, dcValues []uint16, acData []byte, dcIdx, acPos int) (int, int, error) {
	blocksX := (width + 7) / 8
	blocksY := (lines + 7) / 8

	var block [64]float32
	for by := 0; by < blocksY; by++ {
		for bx := 0; bx < blocksX; bx++ {
			if dcIdx >= len(dcValues) {
				return 0, 0, fmt.Errorf("%w: dwa dc stream truncated", errs.ErrCorruptData)
			}

			block = [64]float32{}
			block[0] = float16.Frombits(dcValues[dcIdx]).Float32()
			dcIdx++

			var err error
			if acPos, err = decodeAC(&block, acData, acPos); err != nil {
				return 0, 0, err
			}

			dctInverse(&block)

			for y := 0; y < 8; y++ {
				py := by*8 + y
				if py >= lines {
					break
				}
				for x := 0; x < 8; x++ {
					px := bx*8 + x
					if px >= width {
						break
					}
					bits := float16.Fromfloat32(block[y*8+x]).Bits()
					plane[py*width+px] = toLinearTable[bits]
				}
			}
		}
	}

	return acPos, dcIdx, nil
}

// decodeAC reads one block's AC token stream into zigzag positions 1..63.
func decodeAC(block *[64]float32, acData []byte, acPos int) (int, error) {
	count := 0
	for {
		if acPos >= len(acData) {
			return 0, fmt.Errorf("%w: dwa ac stream truncated", errs.ErrCorruptData)
		}
		switch acData[acPos] {
		case acTokenEOB:
			return acPos + 1, nil
		case acTokenZeroRun:
			if acPos+1 >= len(acData) {
				return 0, fmt.Errorf("%w: dwa ac run truncated", errs.ErrCorruptData)
			}
			count += int(acData[acPos+1])
			acPos += 2
		case acTokenLiteral:
			if acPos+2 >= len(acData) {
				return 0, fmt.Errorf("%w: dwa ac literal truncated", errs.ErrCorruptData)
			}
			bits := uint16(acData[acPos+1]) | uint16(acData[acPos+2])<<8
			if count < acPerBlock {
				block[zigzag[count+1]] = float16.Frombits(bits).Float32()
			}
			count++
			acPos += 3
		default:
			return 0, fmt.Errorf("%w: dwa ac opcode 0x%02x", errs.ErrCorruptData, acData[acPos])
		}
		if count > acPerBlock {
			return 0, fmt.Errorf("%w: dwa ac overrun", errs.ErrCorruptData)
		}
	}
}

// splitPlanes deinterleaves a raw half chunk into one plane per channel.
func splitPlanes(raw []byte, layout Layout) [][]uint16 {
	planes := make([][]uint16, len(layout.Channels))
	for i := range planes {
		planes[i] = make([]uint16, layout.Width*layout.Lines)
	}

	pos := 0
	for y := 0; y < layout.Lines; y++ {
		for i := range layout.Channels {
			for x := 0; x < layout.Width; x++ {
				planes[i][y*layout.Width+x] = binary.LittleEndian.Uint16(raw[pos:])
				pos += 2
			}
		}
	}

	return planes
}

// mergePlanes reassembles channel planes into raw chunk layout.
func mergePlanes(planes [][]uint16, layout Layout) []byte {
	raw := make([]byte, layout.RawSize())

	pos := 0
	for y := 0; y < layout.Lines; y++ {
		for i := range layout.Channels {
			for x := 0; x < layout.Width; x++ {
				binary.LittleEndian.PutUint16(raw[pos:], planes[i][y*layout.Width+x])
				pos += 2
			}
		}
	}

	return raw
}

// halfPlaneBytes serializes a half plane as little-endian bytes.
func halfPlaneBytes(plane []uint16) []byte {
	out := make([]byte, len(plane)*2)
	for i, v := range plane {
		binary.LittleEndian.PutUint16(out[i*2:], v)
	}

	return out
}
