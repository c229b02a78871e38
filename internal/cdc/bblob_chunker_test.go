package cdc_test

import (
	"bytes"
	"crypto/rand"
	"io"
	"testing"

	"github.com/cdcstore/lop/internal/cdc"
	"github.com/cdcstore/lop/internal/hashalgo"
	"github.com/cdcstore/lop/internal/lptest"
)

func collectBBlobChunks(t *testing.T, data []byte) []*cdc.Chunk {
	t.Helper()
	chunker := cdc.NewBBlobChunker(bytes.NewReader(data), hashalgo.SHA256)

	var chunks []*cdc.Chunk
	for {
		c, err := chunker.Next()
		if err == io.EOF {
			break
		}
		lptest.OK(t, err)
		chunks = append(chunks, c)
	}
	return chunks
}

func TestBBlobChunkerReconstructsInput(t *testing.T) {
	data := make([]byte, 200*1024)
	_, err := rand.Read(data)
	lptest.OK(t, err)

	chunks := collectBBlobChunks(t, data)
	lptest.Assert(t, len(chunks) > 0, "expected at least one chunk")

	var got []byte
	for _, c := range chunks {
		got = append(got, c.Data...)
	}
	lptest.Equals(t, data, got)
}

func TestBBlobChunkerBoundsExceptLast(t *testing.T) {
	data := make([]byte, 200*1024)
	_, err := rand.Read(data)
	lptest.OK(t, err)

	chunks := collectBBlobChunks(t, data)
	for i, c := range chunks {
		if i == len(chunks)-1 {
			continue
		}
		lptest.Assert(t, len(c.Data) >= cdc.ChunkGoal, "chunk %d too short: %d bytes", i, len(c.Data))
	}
}

func TestBBlobChunkerSmallInputIsOneChunk(t *testing.T) {
	data := bytes.Repeat([]byte{0xAA}, 100)
	chunks := collectBBlobChunks(t, data)
	lptest.Equals(t, 1, len(chunks))
	lptest.Equals(t, data, chunks[0].Data)
}

func TestBBlobChunkerEmptyInputYieldsNoChunks(t *testing.T) {
	chunks := collectBBlobChunks(t, nil)
	lptest.Equals(t, 0, len(chunks))
}

func TestBBlobChunkerDeterministic(t *testing.T) {
	data := make([]byte, 50*1024)
	_, err := rand.Read(data)
	lptest.OK(t, err)

	a := collectBBlobChunks(t, data)
	b := collectBBlobChunks(t, data)

	lptest.Equals(t, len(a), len(b))
	for i := range a {
		lptest.Equals(t, a[i].Data, b[i].Data)
	}
}
