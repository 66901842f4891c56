package compress

import (
	"bytes"
	"fmt"
	"io"

	"github.com/klauspost/compress/zlib"

	"github.com/averral/exrmem/errs"
)

// ZipCodec implements the deflate chunk codec shared by CompressionZIPS and
// CompressionZIP (the two differ only in scanlines per chunk). Pipeline per
// the OpenEXR core: split even/odd bytes, delta predictor, then deflate.
type ZipCodec struct{}

var _ Codec = ZipCodec{}

// NewZipCodec creates the codec used by CompressionZIPS and CompressionZIP.
func NewZipCodec() ZipCodec {
	return ZipCodec{}
}

// Compress deflates one chunk of raw planar data.
func (ZipCodec) Compress(raw []byte, _ Layout) ([]byte, error) {
	if len(raw) == 0 {
		return nil, nil
	}

	tmp := interleaveSplit(raw)
	predictEncode(tmp)

	return zlibCompress(tmp)
}

// Decompress recovers a chunk's raw planar data.
func (ZipCodec) Decompress(data []byte, layout Layout) ([]byte, error) {
	if len(data) == 0 {
		return nil, nil
	}

	tmp, err := zlibDecompress(data, layout.RawSize())
	if err != nil {
		return nil, err
	}
	predictDecode(tmp)

	return interleaveMerge(tmp), nil
}

// zlibCompress deflates src into a newly allocated buffer.
func zlibCompress(src []byte) ([]byte, error) {
	var buf bytes.Buffer
	w := zlib.NewWriter(&buf)
	if _, err := w.Write(src); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}

	return buf.Bytes(), nil
}

// zlibDecompress inflates src into exactly expected bytes.
func zlibDecompress(src []byte, expected int) ([]byte, error) {
	r, err := zlib.NewReader(bytes.NewReader(src))
	if err != nil {
		return nil, fmt.Errorf("%w: %s", errs.ErrCorruptData, err)
	}
	defer r.Close()

	dst := make([]byte, expected)
	if _, err := io.ReadFull(r, dst); err != nil {
		return nil, fmt.Errorf("%w: short deflate stream: %s", errs.ErrCorruptData, err)
	}

	return dst, nil
}
