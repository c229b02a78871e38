package assembly

import (
	"bytes"
	"io"
	"strings"

	"github.com/cdcstore/lop/internal/cdc"
	"github.com/cdcstore/lop/internal/hashalgo"
	"github.com/cdcstore/lop/internal/lerrors"
	"github.com/cdcstore/lop/internal/objstore"
)

// bupChunkMagic opens every BupChunk manifest. Per spec §3/§4.4.3/§9 this
// richer form — magic line plus a whole-stream oid line before the chunk
// oid list — is authoritative; it is a deliberate broadening of the legacy
// on-disk format bup-chunk.c wrote (no magic, no whole-stream oid), which
// new detectors must reject rather than accept.
const bupChunkMagic = "BUPCHUNK\n"

// WriteBupChunk chunks data with the bup rolling checksum and writes a
// manifest recording the whole stream's oid followed by one hex chunk oid
// per line, returning the manifest's oid. The manifest is itself stored as
// a plain Blob (spec §4.4.3: "dechunking dispatches on payload shape, not a
// distinct object kind").
func WriteBupChunk(store *objstore.LooseStore, algo hashalgo.Algo, data []byte) (hashalgo.OID, error) {
	whole := objstore.ComputeOID(algo, objstore.Blob, data)

	var buf bytes.Buffer
	buf.WriteString(bupChunkMagic)
	buf.WriteString(whole.Hex())
	buf.WriteByte('\n')

	chunker := cdc.NewBupChunker(bytes.NewReader(data))
	first := true
	for {
		chunk, err := chunker.Next()
		if err != nil {
			if err == io.EOF {
				break
			}
			return hashalgo.OID{}, lerrors.Wrap(err, "bupchunk: chunk input")
		}
		oid, err := store.Store(objstore.Blob, chunk.Data)
		if err != nil {
			return hashalgo.OID{}, lerrors.Wrap(err, "bupchunk: store chunk")
		}
		if !first {
			buf.WriteByte('\n')
		}
		buf.WriteString(oid.Hex())
		first = false
	}

	return store.Store(objstore.Blob, buf.Bytes())
}

// IsBupChunk reports whether payload has the exact grammar of a BupChunk
// manifest for algo: the magic line, a mandatory newline-terminated
// whole-stream oid, then zero or more hexsz-digit chunk oid lines separated
// by (but not trailed by) a newline. The chunk-list grammar check is
// carried over unchanged from bup-chunk.c's bup_is_chunk_list.
func IsBupChunk(payload []byte, algo hashalgo.Algo) bool {
	rest, ok := bytes.CutPrefix(payload, []byte(bupChunkMagic))
	if !ok {
		return false
	}

	hexsz := algo.HexSZ
	if len(rest) < hexsz+1 {
		return false
	}
	if !hashalgo.IsHex(string(rest[:hexsz])) {
		return false
	}
	if rest[hexsz] != '\n' {
		return false
	}

	return isHexLineList(rest[hexsz+1:], hexsz)
}

// isHexLineList reports whether buf is zero or more groups of exactly hexsz
// ASCII hex digits, each pair of groups separated by a single '\n' and no
// trailing '\n' after the last group.
func isHexLineList(buf []byte, hexsz int) bool {
	off := 0
	for off < len(buf) {
		if off+hexsz > len(buf) {
			return false
		}
		if !hashalgo.IsHex(string(buf[off : off+hexsz])) {
			return false
		}
		off += hexsz
		if off == len(buf) {
			break
		}
		if buf[off] != '\n' {
			return false
		}
		off++
	}
	return true
}

// reconstructBupChunk concatenates a manifest's chunks and verifies the
// result against the recorded whole-stream oid.
func reconstructBupChunk(store *objstore.LooseStore, algo hashalgo.Algo, payload []byte) ([]byte, error) {
	rest := payload[len(bupChunkMagic):]
	hexsz := algo.HexSZ

	whole, err := hashalgo.ParseHex(algo, string(rest[:hexsz]))
	if err != nil {
		return nil, lerrors.Wrap(err, "bupchunk: whole-stream oid")
	}

	chunkList := rest[hexsz+1:]

	var out []byte
	if len(chunkList) > 0 {
		for _, line := range strings.Split(string(chunkList), "\n") {
			chunkOid, err := hashalgo.ParseHex(algo, line)
			if err != nil {
				return nil, lerrors.Wrap(err, "bupchunk: chunk oid")
			}
			kind, data, err := store.Fetch(chunkOid)
			if err != nil {
				return nil, err
			}
			if kind != objstore.Blob {
				return nil, lerrors.NewKind(lerrors.CorruptType)
			}
			out = append(out, data...)
		}
	}

	got := objstore.ComputeOID(algo, objstore.Blob, out)
	if !got.Equal(whole) {
		return nil, lerrors.NewKind(lerrors.VerificationFailed)
	}

	return out, nil
}

// ReadBupChunk fetches oid and, if it is a BupChunk manifest, reconstructs
// and verifies the original stream.
func ReadBupChunk(store *objstore.LooseStore, oid hashalgo.OID) ([]byte, error) {
	kind, payload, err := store.Fetch(oid)
	if err != nil {
		return nil, err
	}
	if kind != objstore.Blob || !IsBupChunk(payload, oid.Algo) {
		return nil, lerrors.NewKind(lerrors.InvalidFormat)
	}
	return reconstructBupChunk(store, oid.Algo, payload)
}

// ForEachBupChunk walks a manifest's chunk oids in order, calling cb on
// each. A non-nil return from cb aborts the walk and is reported wrapped in
// a CallbackAborted error (spec §4.4.3).
func ForEachBupChunk(store *objstore.LooseStore, oid hashalgo.OID, cb func(hashalgo.OID) error) error {
	kind, payload, err := store.Fetch(oid)
	if err != nil {
		return err
	}
	if kind != objstore.Blob || !IsBupChunk(payload, oid.Algo) {
		return lerrors.NewKind(lerrors.InvalidFormat)
	}

	algo := oid.Algo
	hexsz := algo.HexSZ
	chunkList := payload[len(bupChunkMagic)+hexsz+1:]
	if len(chunkList) == 0 {
		return nil
	}

	for _, line := range strings.Split(string(chunkList), "\n") {
		chunkOid, err := hashalgo.ParseHex(algo, line)
		if err != nil {
			return lerrors.Wrap(err, "bupchunk: chunk oid")
		}
		if err := cb(chunkOid); err != nil {
			return lerrors.Newf(lerrors.CallbackAborted, "chunk %s: %v", chunkOid.Hex(), err)
		}
	}
	return nil
}
