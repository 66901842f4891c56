package compress

import (
	"fmt"

	"github.com/averral/exrmem/errs"
)

const (
	minRunLength = 3
	maxRunLength = 127
)

// RLECodec implements the EXR run-length chunk codec: a byte delta
// predictor followed by run-length coding. Runs of at least three equal
// bytes are stored as (count-1, byte); shorter stretches are stored as a
// negative count followed by the literal bytes.
type RLECodec struct{}

var _ Codec = RLECodec{}

// NewRLECodec creates the codec used by CompressionRLE.
func NewRLECodec() RLECodec {
	return RLECodec{}
}

// Compress run-length encodes one chunk of raw planar data.
func (RLECodec) Compress(raw []byte, _ Layout) ([]byte, error) {
	if len(raw) == 0 {
		return nil, nil
	}

	tmp := make([]byte, len(raw))
	copy(tmp, raw)
	predictEncode(tmp)

	return rleCompress(tmp), nil
}

// Decompress recovers a chunk's raw planar data.
func (RLECodec) Decompress(data []byte, layout Layout) ([]byte, error) {
	if len(data) == 0 {
		return nil, nil
	}

	out, err := rleDecompress(data, layout.RawSize())
	if err != nil {
		return nil, err
	}
	predictDecode(out)

	return out, nil
}

// rleCompress run-length encodes src. The output is at worst one count byte
// per maxRunLength literals larger than the input; the container stores the
// result either way.
func rleCompress(src []byte) []byte {
	out := make([]byte, 0, len(src)+len(src)/maxRunLength+1)

	i := 0
	for i < len(src) {
		run := 1
		for i+run < len(src) && src[i+run] == src[i] && run-1 < maxRunLength {
			run++
		}

		if run >= minRunLength {
			out = append(out, byte(int8(run-1)), src[i])
			i += run
			continue
		}

		// Literal stretch: extend until a worthwhile run begins.
		lit := 1
		for i+lit < len(src) && lit < maxRunLength {
			if i+lit+2 < len(src) &&
				src[i+lit] == src[i+lit+1] && src[i+lit] == src[i+lit+2] {
				break
			}
			lit++
		}
		out = append(out, byte(int8(-lit)))
		out = append(out, src[i:i+lit]...)
		i += lit
	}

	return out
}

// rleDecompress decodes src into exactly expected bytes.
func rleDecompress(src []byte, expected int) ([]byte, error) {
	out := make([]byte, 0, expected)

	i := 0
	for i < len(src) {
		count := int(int8(src[i]))
		i++
		if count < 0 {
			n := -count
			if i+n > len(src) {
				return nil, fmt.Errorf("%w: rle literal past end", errs.ErrCorruptData)
			}
			out = append(out, src[i:i+n]...)
			i += n
		} else {
			if i >= len(src) {
				return nil, fmt.Errorf("%w: rle run past end", errs.ErrCorruptData)
			}
			for j := 0; j <= count; j++ {
				out = append(out, src[i])
			}
			i++
		}
		if len(out) > expected {
			return nil, fmt.Errorf("%w: rle output exceeds %d bytes", errs.ErrCorruptData, expected)
		}
	}

	if len(out) != expected {
		return nil, fmt.Errorf("%w: rle output %d bytes, want %d", errs.ErrCorruptData, len(out), expected)
	}

	return out, nil
}
