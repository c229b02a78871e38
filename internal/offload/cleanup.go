package offload

import (
	"github.com/cdcstore/lop/internal/config"
	"github.com/cdcstore/lop/internal/debug"
	"github.com/cdcstore/lop/internal/hashalgo"
	"github.com/cdcstore/lop/internal/lerrors"
	"github.com/cdcstore/lop/internal/objstore"
)

// RemoveLocal deletes oid's loose copy from every local source in stores, in
// order (spec §4.7, mirroring lop_remove_local_blob's loop over
// repo->objects->sources). A missing file is success and removal continues
// on to the next source; any other failure is fatal and stops the loop
// immediately, reported with ReadRemovedRace, the kind name the spec assigns
// to "unlink failed with anything but ENOENT" (§7). Directory-removal
// failures downgrade to a debug-log warning rather than failing the step.
//
// The GIT_TEST_LOP_FORCE_REMOVE_FAIL and GIT_TEST_LOP_FORCE_REMOVE_ERROR
// seams both force the very first unlink to fail before any source is even
// touched; the source distinguishes them only by which error message prefix
// callers expect, which this facade folds into a single ReadRemovedRace
// return.
func RemoveLocal(stores []*objstore.LooseStore, oid hashalgo.OID) error {
	if config.EnvBool(config.EnvForceRemoveFail, false) || config.EnvBool(config.EnvForceRemoveError, false) {
		return lerrors.Newf(lerrors.ReadRemovedRace, "failed to remove blob %s from local store", oid)
	}

	forceDirWarn := config.EnvBool(config.EnvForceRemoveWarn, false)
	for _, store := range stores {
		if store == nil {
			continue
		}
		if err := store.Remove(oid); err != nil {
			return err
		}
		if forceDirWarn {
			// unlink already happened above; this only simulates the
			// shard-directory rmdir failing, which is a warning, not a
			// failure of the step.
			debug.Log("warning: failed to remove directory for %s", oid)
		}
	}

	return nil
}
