package cdc

import (
	"bytes"
	"io"

	"github.com/cdcstore/lop/internal/hashalgo"
)

const (
	// BBlobWindow is the size of the sliding window hashed at every
	// candidate split point.
	BBlobWindow = 64
	// ChunkGoal is the minimum chunk length the splitter targets before it
	// is even eligible to cut, except possibly the final chunk.
	ChunkGoal = 4096
	// splitMask is applied to the low 13 bits of the window hash's final
	// two bytes; a zero result is a split point.
	splitMask = 0x1fff
)

// BBlobChunker finds split points with a sliding 64-byte window hashed at
// every byte once at least BBlobWindow bytes have been seen: a split lands
// after position i when the accumulated chunk is at least ChunkGoal bytes
// and the low 13 bits of the window hash's last two bytes are zero (spec
// §4.3). The window rolls continuously across the whole stream — unlike
// BupChunker, it is not reset at chunk boundaries, exactly as
// bblob.c's write_bblob keeps a single win_len counter for the entire
// input.
type BBlobChunker struct {
	rd   io.Reader
	algo hashalgo.Algo

	window [BBlobWindow]byte
	wpos   int
	seen   int64 // total bytes fed into the window so far, never reset

	cur       bytes.Buffer
	chunkLen  int64
	pos       int64 // absolute stream position of the next byte to read
	chunkFrom int64

	scratch [32 * 1024]byte
	sbuf    []byte // unread bytes remaining in scratch
	eof     bool
	done    bool
}

// NewBBlobChunker returns a chunker reading from rd, hashing window
// contents with algo.
func NewBBlobChunker(rd io.Reader, algo hashalgo.Algo) *BBlobChunker {
	return &BBlobChunker{rd: rd, algo: algo}
}

func (c *BBlobChunker) fill() error {
	if len(c.sbuf) > 0 || c.eof {
		return nil
	}
	n, err := c.rd.Read(c.scratch[:])
	if n > 0 {
		c.sbuf = c.scratch[:n]
	}
	if err == io.EOF {
		c.eof = true
		return nil
	}
	return err
}

// Next returns the next chunk, or io.EOF once the stream is exhausted. The
// final chunk (the "tail" flushed at end-of-input) may be shorter than
// ChunkGoal.
func (c *BBlobChunker) Next() (*Chunk, error) {
	if c.done {
		return nil, io.EOF
	}

	for {
		if len(c.sbuf) == 0 {
			if err := c.fill(); err != nil {
				return nil, err
			}
			if len(c.sbuf) == 0 {
				// end of stream: flush whatever remains as the final chunk
				c.done = true
				if c.cur.Len() == 0 {
					return nil, io.EOF
				}
				data := append([]byte(nil), c.cur.Bytes()...)
				start := c.chunkFrom
				c.cur.Reset()
				return &Chunk{Start: start, Data: data}, nil
			}
		}

		b := c.sbuf[0]
		c.sbuf = c.sbuf[1:]

		c.window[int(c.seen%BBlobWindow)] = b
		c.seen++
		c.cur.WriteByte(b)
		c.chunkLen++
		c.pos++

		if c.seen >= BBlobWindow && c.chunkLen >= ChunkGoal {
			if c.isSplitPoint() {
				data := append([]byte(nil), c.cur.Bytes()...)
				start := c.chunkFrom
				c.cur.Reset()
				c.chunkLen = 0
				c.chunkFrom = c.pos
				return &Chunk{Start: start, Data: data}, nil
			}
		}
	}
}

// isSplitPoint hashes the window's raw backing array exactly as addressed
// by position-modulo-64 (not reordered into chronological byte order — the
// source hashes the ring buffer's storage layout directly) and tests the
// low 13 bits of its last two bytes.
func (c *BBlobChunker) isSplitPoint() bool {
	ctx := c.algo.NewCtx()
	ctx.Update(c.window[:])
	digest := ctx.Final()

	bits := uint16(digest[len(digest)-2])<<8 | uint16(digest[len(digest)-1])
	return bits&splitMask == 0
}
