// Package assembly implements the three chunk-assembly formats named in spec
// §4.4: the recursive 64-ary BBlob fanout tree and the textual BlobTree and
// BupChunk manifests, adapted from original_source/bblob.c,
// original_source/blob-tree.c and original_source/bup-chunk.c.
package assembly

import (
	"bytes"
	"io"

	"github.com/cdcstore/lop/internal/cdc"
	"github.com/cdcstore/lop/internal/hashalgo"
	"github.com/cdcstore/lop/internal/lerrors"
	"github.com/cdcstore/lop/internal/objstore"
)

// Fanout is the number of child slots in each BBlob node (spec §3).
const Fanout = 64

// WriteBBlob chunks data with the BBlob sliding-window splitter and writes
// the resulting fanout tree, returning the root oid. An empty input
// produces a single all-null-slot root, treated as the empty stream per
// spec §9's open question.
func WriteBBlob(store *objstore.LooseStore, algo hashalgo.Algo, data []byte) (hashalgo.OID, error) {
	chunker := cdc.NewBBlobChunker(bytes.NewReader(data), algo)

	var leaves []hashalgo.OID
	for {
		chunk, err := chunker.Next()
		if err != nil {
			if err == io.EOF {
				break
			}
			return hashalgo.OID{}, lerrors.Wrap(err, "bblob: chunk input")
		}
		oid, err := store.Store(objstore.Blob, chunk.Data)
		if err != nil {
			return hashalgo.OID{}, lerrors.Wrap(err, "bblob: store leaf")
		}
		leaves = append(leaves, oid)
	}

	return writeBBlobTree(store, algo, leaves)
}

func writeBBlobTree(store *objstore.LooseStore, algo hashalgo.Algo, oids []hashalgo.OID) (hashalgo.OID, error) {
	rawsz := algo.RawSZ

	if len(oids) <= Fanout {
		buf := make([]byte, Fanout*rawsz)
		for i, o := range oids {
			copy(buf[i*rawsz:], o.Bytes)
		}
		return store.Store(objstore.BBlob, buf)
	}

	groups := (len(oids) + Fanout - 1) / Fanout
	tmp := make([]hashalgo.OID, groups)
	for i := 0; i < groups; i++ {
		lo := i * Fanout
		hi := lo + Fanout
		if hi > len(oids) {
			hi = len(oids)
		}
		oid, err := writeBBlobTree(store, algo, oids[lo:hi])
		if err != nil {
			return hashalgo.OID{}, err
		}
		tmp[i] = oid
	}

	return writeBBlobTree(store, algo, tmp)
}

// ReadBBlob reconstructs the original byte stream from a BBlob root (or a
// bare Blob, for a stream small enough to need no tree at all).
func ReadBBlob(store *objstore.LooseStore, oid hashalgo.OID) ([]byte, error) {
	kind, payload, err := store.Fetch(oid)
	if err != nil {
		return nil, err
	}

	switch kind {
	case objstore.Blob:
		return payload, nil
	case objstore.BBlob:
		return readBBlobNode(store, oid.Algo, payload)
	default:
		return nil, lerrors.NewKind(lerrors.CorruptType)
	}
}

func readBBlobNode(store *objstore.LooseStore, algo hashalgo.Algo, payload []byte) ([]byte, error) {
	rawsz := algo.RawSZ
	cnt := len(payload) / rawsz

	var out []byte
	for i := 0; i < cnt; i++ {
		child := hashalgo.OID{Algo: algo, Bytes: payload[i*rawsz : (i+1)*rawsz]}
		if child.IsNull() {
			continue
		}
		childBytes, err := ReadBBlob(store, child)
		if err != nil {
			return nil, err
		}
		out = append(out, childBytes...)
	}
	return out, nil
}

// SizeBBlob returns the reconstructed size of the stream rooted at oid
// without allocating a concatenation buffer.
func SizeBBlob(store *objstore.LooseStore, oid hashalgo.OID) (int64, error) {
	kind, payload, err := store.Fetch(oid)
	if err != nil {
		return 0, err
	}

	switch kind {
	case objstore.Blob:
		return int64(len(payload)), nil
	case objstore.BBlob:
		rawsz := oid.Algo.RawSZ
		cnt := len(payload) / rawsz
		var total int64
		for i := 0; i < cnt; i++ {
			child := hashalgo.OID{Algo: oid.Algo, Bytes: payload[i*rawsz : (i+1)*rawsz]}
			if child.IsNull() {
				continue
			}
			sz, err := SizeBBlob(store, child)
			if err != nil {
				return 0, err
			}
			total += sz
		}
		return total, nil
	default:
		return 0, lerrors.NewKind(lerrors.CorruptType)
	}
}
