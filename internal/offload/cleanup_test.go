package offload_test

import (
	"os"
	"testing"

	"github.com/cdcstore/lop/internal/config"
	"github.com/cdcstore/lop/internal/hashalgo"
	"github.com/cdcstore/lop/internal/lerrors"
	"github.com/cdcstore/lop/internal/lptest"
	"github.com/cdcstore/lop/internal/objstore"
	"github.com/cdcstore/lop/internal/offload"
)

func TestRemoveLocalDeletesLooseFile(t *testing.T) {
	store := newOffloadStore(t)
	oid, err := store.Store(objstore.Blob, []byte("to be removed"))
	lptest.OK(t, err)

	lptest.OK(t, offload.RemoveLocal([]*objstore.LooseStore{store}, oid))
	lptest.Assert(t, !store.Has(oid), "RemoveLocal must delete the loose copy")
}

func TestRemoveLocalForceFailSeam(t *testing.T) {
	store := newOffloadStore(t)
	oid, err := store.Store(objstore.Blob, []byte("protected by env seam"))
	lptest.OK(t, err)

	lptest.OK(t, os.Setenv(config.EnvForceRemoveFail, "1"))
	defer os.Unsetenv(config.EnvForceRemoveFail)

	err = offload.RemoveLocal([]*objstore.LooseStore{store}, oid)
	lptest.Assert(t, err != nil, "the force-remove-fail seam must cause RemoveLocal to fail")
	lptest.Assert(t, lerrors.Is(err, lerrors.NewKind(lerrors.ReadRemovedRace)), "expected ReadRemovedRace, got %v", err)
	lptest.Assert(t, store.Has(oid), "a forced failure must leave the blob in place")
}

func TestRemoveLocalForceDirWarnSeamStillRemoves(t *testing.T) {
	store := newOffloadStore(t)
	oid, err := store.Store(objstore.Blob, []byte("warn but succeed"))
	lptest.OK(t, err)

	lptest.OK(t, os.Setenv(config.EnvForceRemoveWarn, "1"))
	defer os.Unsetenv(config.EnvForceRemoveWarn)

	lptest.OK(t, offload.RemoveLocal([]*objstore.LooseStore{store}, oid))
	lptest.Assert(t, !store.Has(oid), "the force-dir-warn seam must still remove the loose file")
}

func TestRemoveLocalMissingIsSuccess(t *testing.T) {
	store := newOffloadStore(t)
	err := offload.RemoveLocal([]*objstore.LooseStore{store}, hashalgo.Null(hashalgo.SHA256))
	lptest.OK(t, err)
}

func TestRemoveLocalRemovesFromEveryChainedSource(t *testing.T) {
	first := newOffloadStore(t)
	second := newOffloadStore(t)

	data := []byte("duplicated across two local sources")
	oid, err := first.Store(objstore.Blob, data)
	lptest.OK(t, err)
	_, err = second.Store(objstore.Blob, data)
	lptest.OK(t, err)

	lptest.OK(t, offload.RemoveLocal([]*objstore.LooseStore{first, second}, oid))
	lptest.Assert(t, !first.Has(oid), "the first chained source must lose its copy")
	lptest.Assert(t, !second.Has(oid), "the second chained source must also lose its copy")
}

func TestRemoveLocalContinuesPastMissingSourceInChain(t *testing.T) {
	first := newOffloadStore(t)
	second := newOffloadStore(t)

	data := []byte("only present on the second source")
	oid, err := second.Store(objstore.Blob, data)
	lptest.OK(t, err)

	lptest.OK(t, offload.RemoveLocal([]*objstore.LooseStore{first, second}, oid))
	lptest.Assert(t, !second.Has(oid), "a source later in the chain must still be cleaned up")
}
