// Package cdc implements the two content-defined chunking strategies named
// in spec §4.3: a sliding-window full-hash splitter (BBlob) and a classic
// Adler-style rolling checksum splitter (Bup). Both are deterministic
// functions of the byte stream and the active hash algorithm, grounded on
// bblob.c's write_bblob and bup-chunk.c's bup_chunk_next/rollsum routines
// respectively, and shaped in the style of the teacher's external
// github.com/restic/chunker package (a Chunker with a Next() method that
// yields one Chunk at a time) even though the split algorithm itself is not
// Rabin-polynomial based.
package cdc

// Chunk is one content-defined segment of the input stream.
type Chunk struct {
	// Start is the chunk's offset from the beginning of the stream.
	Start int64
	// Data holds the chunk's raw bytes. The slice is owned by the caller
	// and safe to retain past the next call to Next.
	Data []byte
}
