package compress

// NoOpCodec stores chunks uncompressed.
type NoOpCodec struct{}

var _ Codec = NoOpCodec{}

// NewNoOpCodec creates the pass-through codec used by CompressionNone.
func NewNoOpCodec() NoOpCodec {
	return NoOpCodec{}
}

// Compress returns the raw chunk unchanged.
func (NoOpCodec) Compress(raw []byte, _ Layout) ([]byte, error) {
	return raw, nil
}

// Decompress returns the stored payload unchanged.
func (NoOpCodec) Decompress(data []byte, _ Layout) ([]byte, error) {
	return data, nil
}
