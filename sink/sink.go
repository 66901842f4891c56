// Package sink provides the growable in-memory byte sink that backs an
// encode. Encoded bytes arrive at arbitrary offsets (chunk payloads append
// while the chunk offset table is patched behind them), so the sink accepts
// writes anywhere within a monotonically growing buffer without knowing the
// final size in advance.
package sink

import (
	"fmt"
	"math"

	"github.com/averral/exrmem/errs"
)

// initialCapacity is the floor for the first allocation. Doubling from 64KiB
// keeps amortized append cost linear while avoiding tiny early reallocations.
const initialCapacity = 64 * 1024

// Sink is an owned byte buffer that grows geometrically as writes land.
//
// Sink is not safe for concurrent use; an encode issues strictly sequential
// writes from a single goroutine.
type Sink struct {
	data     []byte // len(data) == high-water mark of bytes written
	released bool
}

// New creates an empty sink. No memory is allocated until the first write.
func New() *Sink {
	return &Sink{}
}

// WriteAt copies p into the sink at offset off, growing the buffer if
// needed. Writes may arrive out of order or leave gaps; a gap reads back as
// zero bytes. It returns the number of bytes written.
func (s *Sink) WriteAt(p []byte, off int64) (int, error) {
	if s.released {
		return 0, errs.ErrSinkReleased
	}
	if off < 0 {
		return 0, fmt.Errorf("%w: negative offset %d", errs.ErrOffsetOverflow, off)
	}
	if len(p) == 0 {
		return 0, nil
	}

	need := off + int64(len(p))
	if need < off || need > math.MaxInt {
		return 0, fmt.Errorf("%w: offset %d + length %d", errs.ErrOffsetOverflow, off, len(p))
	}

	if err := s.grow(int(need)); err != nil {
		return 0, err
	}

	copy(s.data[off:], p)

	return len(p), nil
}

// grow ensures the buffer spans at least need bytes, doubling capacity until
// sufficient and falling back to the exact requirement if doubling cannot
// keep pace. The high-water mark only ever moves forward.
func (s *Sink) grow(need int) error {
	if need <= len(s.data) {
		return nil
	}
	if need <= cap(s.data) {
		s.data = s.data[:need]
		return nil
	}

	newCap := cap(s.data)
	if newCap == 0 {
		newCap = initialCapacity
	}
	for newCap < need {
		next := newCap * 2
		if next < newCap {
			newCap = need
			break
		}
		newCap = next
	}

	grown := make([]byte, need, newCap)
	copy(grown, s.data)
	s.data = grown

	return nil
}

// Size returns the high-water mark of bytes written.
func (s *Sink) Size() int64 {
	return int64(len(s.data))
}

// Bytes returns a view over the written bytes without copying. The view is
// invalidated by the next write or by Release.
func (s *Sink) Bytes() []byte {
	return s.data
}

// Snapshot returns a right-sized deep copy of the written bytes, suitable
// for handing to a caller after the sink itself is released.
func (s *Sink) Snapshot() []byte {
	out := make([]byte, len(s.data))
	copy(out, s.data)

	return out
}

// Release drops the internal buffer. Further writes fail with
// ErrSinkReleased. Release is idempotent.
func (s *Sink) Release() {
	s.data = nil
	s.released = true
}
