// Package objstore implements the write-through loose object store and the
// alternate (remote) store registry (spec §4.1, §4.2).
package objstore

import (
	"fmt"

	"github.com/cdcstore/lop/internal/hashalgo"
)

// Kind tags an Object's payload interpretation (spec §3).
type Kind int

const (
	Blob Kind = iota
	Tree
	BlobTree
	BBlob
	Other
)

var kindNames = map[Kind]string{
	Blob:     "blob",
	Tree:     "tree",
	BlobTree: "blob-tree",
	BBlob:    "bblob",
	Other:    "other",
}

func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return "unknown"
}

// ParseKind resolves a Kind by its on-disk type name, the word that appears
// in an object's "<type> <length>\0" header.
func ParseKind(name string) (Kind, bool) {
	for k, n := range kindNames {
		if n == name {
			return k, true
		}
	}
	return Other, false
}

// Object is a tagged, opaque byte payload (spec §3). It is the in-memory
// result of reading a loose object.
type Object struct {
	Kind Kind
	Data []byte
}

// Header returns the "<kind-name> <length>\0" bytes hashed together with
// Data to produce the object's oid.
func Header(kind Kind, length int) []byte {
	return []byte(fmt.Sprintf("%s %d\x00", kind.String(), length))
}

// ComputeOID returns the content address of an object: the hash of its
// typed header concatenated with its payload, under algo.
func ComputeOID(algo hashalgo.Algo, kind Kind, data []byte) hashalgo.OID {
	ctx := algo.NewCtx()
	ctx.Update(Header(kind, len(data)))
	ctx.Update(data)
	return hashalgo.OID{Algo: algo, Bytes: ctx.Final()}
}
