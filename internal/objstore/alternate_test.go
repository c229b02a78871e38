package objstore_test

import (
	"path/filepath"
	"testing"

	"github.com/cdcstore/lop/internal/hashalgo"
	"github.com/cdcstore/lop/internal/lerrors"
	"github.com/cdcstore/lop/internal/lptest"
	"github.com/cdcstore/lop/internal/objstore"
)

func TestRegistryGetWritesAndCaches(t *testing.T) {
	root := t.TempDir()
	remotePath := filepath.Join(root, "remote")

	resolver := objstore.MapResolver{"origin": remotePath}
	reg, err := objstore.NewRegistry(resolver, hashalgo.SHA256)
	lptest.OK(t, err)

	a1, err := reg.Get("origin")
	lptest.OK(t, err)
	a2, err := reg.Get("origin")
	lptest.OK(t, err)
	lptest.Assert(t, a1 == a2, "repeated Get for the same remote must return the cached Alternate")

	data := []byte("offloaded payload")
	oid := objstore.ComputeOID(hashalgo.SHA256, objstore.Blob, data)

	result, err := a1.WriteBlob(oid, data)
	lptest.OK(t, err)
	lptest.Equals(t, objstore.Written, result)

	result, err = a1.WriteBlob(oid, data)
	lptest.OK(t, err)
	lptest.Equals(t, objstore.ExistsOK, result)
}

func TestRegistryUnknownRemote(t *testing.T) {
	reg, err := objstore.NewRegistry(objstore.MapResolver{}, hashalgo.SHA256)
	lptest.OK(t, err)

	_, err = reg.Get("nope")
	lptest.Assert(t, err != nil, "unknown remote must fail")
}

func TestRegistryIncompatibleHash(t *testing.T) {
	root := t.TempDir()
	remotePath := filepath.Join(root, "remote")

	// pre-create the remote store under sha1 so its config mismatches the
	// registry's primary algorithm
	_, err := objstore.Prepare(remotePath, hashalgo.SHA1)
	lptest.OK(t, err)

	reg, err := objstore.NewRegistry(objstore.MapResolver{"origin": remotePath}, hashalgo.SHA256)
	lptest.OK(t, err)

	_, err = reg.Get("origin")
	lptest.Assert(t, err != nil, "mismatched hash algorithm must fail")
	lptest.Assert(t, lerrors.Is(err, lerrors.NewKind(lerrors.IncompatibleHash)), "must report IncompatibleHash, got %v", err)
}

func TestWriteBlobOidMismatch(t *testing.T) {
	root := t.TempDir()
	store, err := objstore.Prepare(root, hashalgo.SHA256)
	lptest.OK(t, err)

	alt := &objstore.Alternate{Name: "origin", Store: store}

	wrongOid := objstore.ComputeOID(hashalgo.SHA256, objstore.Blob, []byte("something else"))
	_, err = alt.WriteBlob(wrongOid, []byte("actual data"))
	lptest.Assert(t, err != nil, "writing under a mismatched oid must fail")
	lptest.Assert(t, lerrors.Is(err, lerrors.NewKind(lerrors.OidMismatch)), "must report OidMismatch, got %v", err)
}
