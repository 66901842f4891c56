// Package container writes the scanline EXR container: a header describing
// one image part, a chunk offset table, and one compressed chunk per
// row-band.
//
// The container never touches a file. All output goes through a single
// WriteFn callback carrying an absolute offset, so the stream can be
// assembled in any offset-addressable sink. Chunk payloads append to the
// end of the stream while each chunk's absolute position is patched back
// into the offset table reserved behind the header.
//
// A Writer is the per-encode output session. An EncodePipeline is the
// per-chunk encode session: it binds pixel sources to the declared
// channels, packs them into raw planar form, compresses with the selected
// codec and writes the chunk. Exactly one pipeline may be live at a time
// and it must be destroyed before the next is created.
package container
