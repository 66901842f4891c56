// Package pool provides pooled byte buffers for chunk staging. A chunk's
// raw planar data is rebuilt for every row-band; pooling the staging buffer
// keeps the per-chunk allocation out of the encode loop.
package pool

import "sync"

const (
	// ChunkBufferDefaultSize covers a 1024-wide RGBA half chunk of 8 lines
	// without growing.
	ChunkBufferDefaultSize = 64 * 1024

	// ChunkBufferMaxThreshold caps what the pool retains; larger buffers
	// (DWAB bands of wide images) are dropped instead of hoarded.
	ChunkBufferMaxThreshold = 8 * 1024 * 1024
)

// ByteBuffer is a length-tracked byte slice handed out by the pool.
type ByteBuffer struct {
	B []byte
}

// NewByteBuffer creates a ByteBuffer with the given initial capacity.
func NewByteBuffer(defaultSize int) *ByteBuffer {
	return &ByteBuffer{B: make([]byte, 0, defaultSize)}
}

// Bytes returns the underlying byte slice.
func (bb *ByteBuffer) Bytes() []byte {
	return bb.B
}

// Len returns the current length of the buffer.
func (bb *ByteBuffer) Len() int {
	return len(bb.B)
}

// Reset empties the buffer but retains its memory for reuse.
func (bb *ByteBuffer) Reset() {
	bb.B = bb.B[:0]
}

// Resize sets the buffer length to n, reallocating if the capacity is too
// small. The contents are unspecified after a reallocation.
func (bb *ByteBuffer) Resize(n int) {
	if n <= cap(bb.B) {
		bb.B = bb.B[:n]
		return
	}

	bb.B = make([]byte, n)
}

// ByteBufferPool pools ByteBuffers to minimize allocations. Buffers grown
// past maxThreshold are discarded on Put to prevent memory bloat.
type ByteBufferPool struct {
	pool         sync.Pool
	maxThreshold int
}

// NewByteBufferPool creates a pool handing out buffers of defaultSize
// capacity.
func NewByteBufferPool(defaultSize, maxThreshold int) *ByteBufferPool {
	return &ByteBufferPool{
		pool: sync.Pool{
			New: func() any {
				return NewByteBuffer(defaultSize)
			},
		},
		maxThreshold: maxThreshold,
	}
}

// Get retrieves a ByteBuffer from the pool.
func (p *ByteBufferPool) Get() *ByteBuffer {
	bb, _ := p.pool.Get().(*ByteBuffer)

	return bb
}

// Put returns a ByteBuffer to the pool for reuse.
func (p *ByteBufferPool) Put(bb *ByteBuffer) {
	if bb == nil {
		return
	}
	if p.maxThreshold > 0 && cap(bb.B) > p.maxThreshold {
		return
	}

	bb.Reset()
	p.pool.Put(bb)
}

var chunkPool = NewByteBufferPool(ChunkBufferDefaultSize, ChunkBufferMaxThreshold)

// GetChunkBuffer retrieves a staging buffer from the default chunk pool.
func GetChunkBuffer() *ByteBuffer {
	return chunkPool.Get()
}

// PutChunkBuffer returns a staging buffer to the default chunk pool.
func PutChunkBuffer(bb *ByteBuffer) {
	chunkPool.Put(bb)
}
