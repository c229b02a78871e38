package assembly_test

import (
	"crypto/rand"
	"strings"
	"testing"

	"github.com/cdcstore/lop/internal/assembly"
	"github.com/cdcstore/lop/internal/hashalgo"
	"github.com/cdcstore/lop/internal/lptest"
	"github.com/cdcstore/lop/internal/objstore"
)

func TestWriteReadBlobTreeRoundTrip(t *testing.T) {
	store := newStore(t)
	data := make([]byte, 300*1024)
	_, err := rand.Read(data)
	lptest.OK(t, err)

	oid, err := assembly.WriteBlobTree(store, hashalgo.SHA256, data)
	lptest.OK(t, err)

	kind, payload, err := store.Fetch(oid)
	lptest.OK(t, err)
	lptest.Equals(t, objstore.BlobTree, kind)

	lines := strings.Split(strings.TrimRight(string(payload), "\n"), "\n")
	lptest.Assert(t, len(lines) > 0, "expected at least one manifest line")
	for _, line := range lines {
		lptest.Equals(t, hashalgo.SHA256.HexSZ, len(line))
	}

	got, err := assembly.ReadBlobTree(store, oid)
	lptest.OK(t, err)
	lptest.Equals(t, data, got)
}

func TestWriteReadBlobTreeSmall(t *testing.T) {
	store := newStore(t)
	data := []byte("tiny manifest payload")

	oid, err := assembly.WriteBlobTree(store, hashalgo.SHA256, data)
	lptest.OK(t, err)

	got, err := assembly.ReadBlobTree(store, oid)
	lptest.OK(t, err)
	lptest.Equals(t, data, got)
}

// buildNoHashSplitRun builds n bytes such that the rolling byte-hash used by
// WriteBlobTree's splitter never trips its mask, so the only thing that can
// end a chunk within the run is the max-chunk-length boundary.
func buildNoHashSplitRun(t *testing.T, n int) []byte {
	t.Helper()
	const mask = 0x1fff
	out := make([]byte, 0, n)
	var h uint32
	for len(out) < n {
		found := false
		for b := 0; b < 256; b++ {
			candidate := (h << 5) ^ uint32(b)
			if candidate&mask != mask {
				h = candidate
				out = append(out, byte(b))
				found = true
				break
			}
		}
		if !found {
			t.Fatal("could not find a non-splitting byte")
		}
	}
	return out
}

func TestWriteBlobTreeSplitsStrictlyAboveMaxChunk(t *testing.T) {
	store := newStore(t)
	data := buildNoHashSplitRun(t, 65538)

	oid, err := assembly.WriteBlobTree(store, hashalgo.SHA256, data)
	lptest.OK(t, err)

	_, payload, err := store.Fetch(oid)
	lptest.OK(t, err)

	lines := strings.Split(strings.TrimRight(string(payload), "\n"), "\n")
	lptest.Assert(t, len(lines) == 2, "expected the 65538-byte hash-split-free run to split into exactly 2 chunks, got %d", len(lines))

	firstOid, err := hashalgo.ParseHex(hashalgo.SHA256, lines[0])
	lptest.OK(t, err)
	_, firstChunk, err := store.Fetch(firstOid)
	lptest.OK(t, err)
	lptest.Equals(t, 65537, len(firstChunk))

	got, err := assembly.ReadBlobTree(store, oid)
	lptest.OK(t, err)
	lptest.Equals(t, data, got)
}

func TestReadBlobTreeRejectsWrongKind(t *testing.T) {
	store := newStore(t)
	oid, err := store.Store(objstore.Blob, []byte("plain blob"))
	lptest.OK(t, err)

	_, err = assembly.ReadBlobTree(store, oid)
	lptest.Assert(t, err != nil, "reading a Blob as BlobTree must fail")
}
