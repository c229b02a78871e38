package assembly

import (
	"bufio"
	"bytes"
	"strings"

	"github.com/cdcstore/lop/internal/hashalgo"
	"github.com/cdcstore/lop/internal/lerrors"
	"github.com/cdcstore/lop/internal/objstore"
)

// blobTreeMask and blobTreeMaxChunk set the rolling-byte-hash splitter's
// target chunk size, carried over from blob-tree.c's roll_hash /
// write_blob_tree_fd.
const (
	blobTreeMask     = 0x1fff
	blobTreeMaxChunk = 65536
)

// WriteBlobTree chunks data with the rolling byte-hash splitter used by the
// line-oriented manifest format (spec §4.4.2) and writes the chunks plus a
// manifest listing one hex oid per line, returning the manifest's oid.
func WriteBlobTree(store *objstore.LooseStore, algo hashalgo.Algo, data []byte) (hashalgo.OID, error) {
	var manifest bytes.Buffer

	var h uint32
	start := 0
	first := true
	writeLine := func(chunk []byte) error {
		oid, err := store.Store(objstore.Blob, chunk)
		if err != nil {
			return lerrors.Wrap(err, "blobtree: store chunk")
		}
		if !first {
			manifest.WriteByte('\n')
		}
		manifest.WriteString(oid.Hex())
		first = false
		return nil
	}

	for i, b := range data {
		h = (h << 5) ^ uint32(b)
		length := i - start + 1
		if (length >= 1 && h&blobTreeMask == blobTreeMask) || length > blobTreeMaxChunk {
			if err := writeLine(data[start : i+1]); err != nil {
				return hashalgo.OID{}, err
			}
			start = i + 1
			h = 0
		}
	}
	if start < len(data) {
		if err := writeLine(data[start:]); err != nil {
			return hashalgo.OID{}, err
		}
	}

	return store.Store(objstore.BlobTree, manifest.Bytes())
}

// ReadBlobTree reconstructs the original byte stream from a BlobTree
// manifest oid.
func ReadBlobTree(store *objstore.LooseStore, oid hashalgo.OID) ([]byte, error) {
	kind, payload, err := store.Fetch(oid)
	if err != nil {
		return nil, err
	}
	if kind != objstore.BlobTree {
		return nil, lerrors.NewKind(lerrors.CorruptType)
	}

	var out []byte
	scanner := bufio.NewScanner(bytes.NewReader(payload))
	scanner.Buffer(make([]byte, 0, 128), oid.Algo.HexSZ+2)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		chunkOid, err := hashalgo.ParseHex(oid.Algo, line)
		if err != nil {
			return nil, lerrors.Wrap(err, "blobtree: manifest line")
		}
		k, data, err := store.Fetch(chunkOid)
		if err != nil {
			return nil, err
		}
		if k != objstore.Blob {
			return nil, lerrors.NewKind(lerrors.CorruptType)
		}
		out = append(out, data...)
	}
	if err := scanner.Err(); err != nil {
		return nil, lerrors.Wrap(err, "blobtree: scan manifest")
	}

	return out, nil
}
