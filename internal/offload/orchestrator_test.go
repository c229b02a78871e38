package offload_test

import (
	"testing"

	"github.com/cdcstore/lop/internal/hashalgo"
	"github.com/cdcstore/lop/internal/lptest"
	"github.com/cdcstore/lop/internal/objstore"
	"github.com/cdcstore/lop/internal/offload"
)

type recordingTracer struct {
	events []map[string]string
}

func (r *recordingTracer) Event(category string, fields map[string]string) {
	tagged := map[string]string{"category": category}
	for k, v := range fields {
		tagged[k] = v
	}
	r.events = append(r.events, tagged)
}

func newOffloadStore(t *testing.T) *objstore.LooseStore {
	t.Helper()
	store, err := objstore.Prepare(t.TempDir(), hashalgo.SHA256)
	lptest.OK(t, err)
	return store
}

func newOffloadRegistry(t *testing.T, primary hashalgo.Algo, remote, remotePath string) *objstore.Registry {
	t.Helper()
	reg, err := objstore.NewRegistry(objstore.MapResolver{remote: remotePath}, primary)
	lptest.OK(t, err)
	return reg
}

func TestStartReturnsNoneWhenDisabled(t *testing.T) {
	_, ok := offload.Start(false, nil, nil, nil, nil)
	lptest.Assert(t, !ok, "a disabled orchestrator must not start")
}

func TestStartReturnsNoneWithNoRoutes(t *testing.T) {
	_, ok := offload.Start(true, nil, nil, nil, nil)
	lptest.Assert(t, !ok, "an orchestrator with no compiled routes must not start")
}

func TestHandleBlobHappyPath(t *testing.T) {
	local := newOffloadStore(t)
	reg := newOffloadRegistry(t, hashalgo.SHA256, "origin", t.TempDir())

	promisors := []offload.PromisorInfo{
		{Name: "origin", Enabled: true, HasFilter: true, Filter: offload.FilterSpec{Choice: offload.FilterBlobLimit, BlobLimitValue: 1024}},
	}

	ctx, ok := offload.Start(true, promisors, []*objstore.LooseStore{local}, reg, nil)
	lptest.Assert(t, ok, "orchestrator must start with one eligible route")

	small := []byte("small, stays local")
	smallOid, err := local.Store(objstore.Blob, small)
	lptest.OK(t, err)

	large := make([]byte, 2048)
	for i := range large {
		large[i] = byte(i)
	}
	largeOid, err := local.Store(objstore.Blob, large)
	lptest.OK(t, err)

	lptest.OK(t, ctx.HandleBlob(offload.BlobInfo{OID: smallOid, Size: int64(len(small))}))
	lptest.Assert(t, local.Has(smallOid), "the small blob must not be offloaded")

	lptest.OK(t, ctx.HandleBlob(offload.BlobInfo{OID: largeOid, Size: int64(len(large))}))
	lptest.Assert(t, !local.Has(largeOid), "the large blob must be removed from local storage")

	alt, err := reg.Get("origin")
	lptest.OK(t, err)
	lptest.Assert(t, alt.Store.Has(largeOid), "the large blob must now exist on the remote")

	lptest.Assert(t, !ctx.HadError(), "a fully successful run must not carry a sticky error")
	ctx.Finish()
}

func TestHandleBlobNoMatchIsNoop(t *testing.T) {
	local := newOffloadStore(t)
	reg := newOffloadRegistry(t, hashalgo.SHA256, "origin", t.TempDir())

	promisors := []offload.PromisorInfo{
		{Name: "origin", Enabled: true, HasFilter: true, Filter: offload.FilterSpec{Choice: offload.FilterBlobLimit, BlobLimitValue: 4096}},
	}
	ctx, ok := offload.Start(true, promisors, []*objstore.LooseStore{local}, reg, nil)
	lptest.Assert(t, ok, "orchestrator must start")

	data := []byte("below the threshold")
	oid, err := local.Store(objstore.Blob, data)
	lptest.OK(t, err)

	lptest.OK(t, ctx.HandleBlob(offload.BlobInfo{OID: oid, Size: int64(len(data))}))
	lptest.Assert(t, local.Has(oid), "an unmatched blob must remain local")
	lptest.Assert(t, !ctx.HadError(), "a no-op match must not set a sticky error")
}

func TestRunPushAbortsOnReadFailure(t *testing.T) {
	local := newOffloadStore(t)
	reg := newOffloadRegistry(t, hashalgo.SHA256, "origin", t.TempDir())

	promisors := []offload.PromisorInfo{
		{Name: "origin", Enabled: true, HasFilter: true, Filter: offload.FilterSpec{Choice: offload.FilterBlobNone}},
	}
	ctx, ok := offload.Start(true, promisors, []*objstore.LooseStore{local}, reg, nil)
	lptest.Assert(t, ok, "orchestrator must start")

	unreadable := hashalgo.OID{Algo: hashalgo.SHA256, Bytes: make([]byte, hashalgo.SHA256.RawSZ)}
	unreadable.Bytes[0] = 1 // never stored locally: Fetch must fail

	err := offload.RunPush(ctx, []offload.BlobInfo{{OID: unreadable, Size: 10}})
	lptest.Assert(t, err != nil, "a push that fails to read a matched blob must abort")
}

func TestFinishEmitsPerRemoteStats(t *testing.T) {
	local := newOffloadStore(t)
	reg := newOffloadRegistry(t, hashalgo.SHA256, "origin", t.TempDir())

	promisors := []offload.PromisorInfo{
		{Name: "origin", Enabled: true, HasFilter: true, Filter: offload.FilterSpec{Choice: offload.FilterBlobNone}},
	}
	tracer := &recordingTracer{}
	ctx, ok := offload.Start(true, promisors, []*objstore.LooseStore{local}, reg, tracer)
	lptest.Assert(t, ok, "orchestrator must start")

	data := []byte("offload me")
	oid, err := local.Store(objstore.Blob, data)
	lptest.OK(t, err)
	lptest.OK(t, ctx.HandleBlob(offload.BlobInfo{OID: oid, Size: int64(len(data))}))

	ctx.Finish()

	var sawFinish bool
	for _, e := range tracer.events {
		if e["category"] == "lop/offload" {
			sawFinish = true
			lptest.Equals(t, "origin", e["remote"])
			lptest.Equals(t, "1", e["blob-count"])
		}
	}
	lptest.Assert(t, sawFinish, "Finish must emit a lop/offload trace record")
}
