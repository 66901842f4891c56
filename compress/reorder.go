package compress

// The lossless codecs precondition chunk data the way the OpenEXR core
// does: ZIP splits bytes into even/odd halves so the two bytes of each half
// value group together, then both ZIP and RLE run a byte delta predictor so
// locally coherent pixel data turns into small, highly compressible deltas.

// interleaveSplit returns src reordered with even-indexed bytes in the first
// half and odd-indexed bytes in the second half.
func interleaveSplit(src []byte) []byte {
	dst := make([]byte, len(src))
	half := (len(src) + 1) / 2
	for i, b := range src {
		if i%2 == 0 {
			dst[i/2] = b
		} else {
			dst[half+i/2] = b
		}
	}

	return dst
}

// interleaveMerge reverses interleaveSplit.
func interleaveMerge(src []byte) []byte {
	dst := make([]byte, len(src))
	half := (len(src) + 1) / 2
	for i := 0; i < half; i++ {
		dst[i*2] = src[i]
	}
	for i := half; i < len(src); i++ {
		dst[(i-half)*2+1] = src[i]
	}

	return dst
}

// predictEncode replaces each byte after the first with the delta from its
// predecessor, offset by 128. Operates in place.
func predictEncode(data []byte) {
	prev := int(0)
	for i, b := range data {
		if i == 0 {
			prev = int(b)
			continue
		}
		data[i] = byte(int(b) - prev + 128)
		prev = int(b)
	}
}

// predictDecode reverses predictEncode in place.
func predictDecode(data []byte) {
	for i := 1; i < len(data); i++ {
		data[i] = byte(int(data[i-1]) + int(data[i]) - 128)
	}
}
