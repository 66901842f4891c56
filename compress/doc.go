// Package compress implements the per-chunk codecs used by the scanline
// container: None, RLE, ZIPS/ZIP (deflate) and DWAA/DWAB (lossy DCT).
//
// Every codec consumes one chunk of raw planar data (for each scanline of
// the row-band, each channel in file order contributes Width little-endian
// half values) and produces the chunk payload stored in the stream.
// Codecs are symmetric: each Compressor is paired with a Decompressor so a
// compressed chunk can be verified without an external reader.
package compress
