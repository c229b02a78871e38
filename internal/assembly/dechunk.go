package assembly

import (
	"github.com/cdcstore/lop/internal/hashalgo"
	"github.com/cdcstore/lop/internal/objstore"
)

// MaybeDechunk implements the "maybe_dechunk" trigger (spec §4.4.4): a Blob
// payload that happens to have the exact BupChunk grammar is transparently
// reassembled and verified before the caller ever sees it as a manifest.
// Any other kind, or a Blob that merely fails to match the grammar, is left
// untouched. The second return reports whether the trigger fired at all,
// distinguishing "not a manifest" from "is a manifest, but reconstruction
// failed" — the caller must treat the two cases differently (the first
// falls through to ordinary Blob handling, the second is an error).
func MaybeDechunk(store *objstore.LooseStore, algo hashalgo.Algo, kind objstore.Kind, payload []byte) (data []byte, applicable bool, err error) {
	if kind != objstore.Blob {
		return nil, false, nil
	}
	if !IsBupChunk(payload, algo) {
		return nil, false, nil
	}

	data, err = reconstructBupChunk(store, algo, payload)
	return data, true, err
}
