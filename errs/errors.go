// Package errs defines the sentinel errors shared across the exrmem
// packages. Call sites wrap them with fmt.Errorf("%w: ...") so callers can
// match with errors.Is while still seeing contextual detail.
package errs

import "errors"

var (
	// ErrInvalidArgument indicates a caller-supplied value that fails
	// validation before any resource is allocated.
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrOffsetOverflow indicates a sink write whose offset plus length does
	// not fit in the address-space-sized integer used for sizes.
	ErrOffsetOverflow = errors.New("sink offset overflow")

	// ErrSinkReleased indicates a write against a sink whose buffer has
	// already been released.
	ErrSinkReleased = errors.New("sink already released")

	// ErrHeaderNotWritten indicates a chunk operation attempted before the
	// container header was written.
	ErrHeaderNotWritten = errors.New("header not written")

	// ErrHeaderWritten indicates an attribute or channel change attempted
	// after the container header was frozen.
	ErrHeaderWritten = errors.New("header already written")

	// ErrPartExists indicates an attempt to add a second part to a
	// single-part container.
	ErrPartExists = errors.New("part already exists")

	// ErrInvalidPart indicates a part index that does not name an existing
	// part.
	ErrInvalidPart = errors.New("invalid part index")

	// ErrNoChannels indicates an encode attempted with no declared channels.
	ErrNoChannels = errors.New("no channels declared")

	// ErrChannelUnbound indicates an encode pipeline run with a coding
	// channel that was never bound to a pixel source.
	ErrChannelUnbound = errors.New("coding channel not bound")

	// ErrPipelineDestroyed indicates use of an encode pipeline after its
	// resources were released.
	ErrPipelineDestroyed = errors.New("encode pipeline destroyed")

	// ErrChunkOutOfRange indicates a chunk request for a scanline outside the
	// image data window.
	ErrChunkOutOfRange = errors.New("chunk start row out of range")

	// ErrIncompleteImage indicates a finalize attempted before every chunk of
	// the image was written.
	ErrIncompleteImage = errors.New("not all chunks written")

	// ErrCorruptData indicates compressed chunk data that cannot be decoded.
	ErrCorruptData = errors.New("corrupt compressed data")
)
