package offload

import (
	"fmt"
	"strings"

	"github.com/cenkalti/backoff/v4"

	"github.com/cdcstore/lop/internal/config"
	"github.com/cdcstore/lop/internal/hashalgo"
	"github.com/cdcstore/lop/internal/lerrors"
	"github.com/cdcstore/lop/internal/objstore"
)

// Stats accumulates per-remote counters, reported at Finish.
type Stats struct {
	BlobCount  uint64
	TotalBytes uint64
}

// Tracer receives the trace records the orchestrator emits, generalized
// from the C source's trace2_data_string/intmax calls into an explicit
// sink the caller supplies (spec §9: prefer explicit collaborators over
// ambient global tracing).
type Tracer interface {
	Event(category string, fields map[string]string)
}

// NopTracer discards every event.
type NopTracer struct{}

func (NopTracer) Event(string, map[string]string) {}

// Context is a single push's offload run: the compiled policy, the chain of
// local object-store sources it reads from and cleans up, the remote
// registry it writes to, and the accumulated stats and sticky error
// (spec §4.6). localStores mirrors repo->objects->sources: blobs are read
// from the first (primary) source and, once offloaded, removed from every
// source in the chain.
type Context struct {
	policy      *Policy
	localStores []*objstore.LooseStore
	registry    *objstore.Registry
	tracer      Tracer

	stats    map[string]*Stats
	errBuf   strings.Builder
	hadError bool
}

// Start builds a push's offload context. It returns ok=false (and a nil
// Context) if the orchestrator should not run at all: offload disabled, or
// no eligible routes compiled (spec §4.6 "Start"). localStores is the
// repository's chain of local object-store sources, primary source first;
// passing a single store is the common case of a repository with no
// alternates of its own.
func Start(enabled bool, promisors []PromisorInfo, localStores []*objstore.LooseStore, registry *objstore.Registry, tracer Tracer) (*Context, bool) {
	if !enabled {
		return nil, false
	}

	policy := &Policy{Enabled: true}
	ReloadRoutes(policy, promisors)
	if len(policy.Routes) == 0 {
		return nil, false
	}

	if tracer == nil {
		tracer = NopTracer{}
	}

	return &Context{
		policy:      policy,
		localStores: localStores,
		registry:    registry,
		tracer:      tracer,
		stats:       make(map[string]*Stats),
	}, true
}

func (c *Context) fail(format string, args ...interface{}) {
	if c.errBuf.Len() > 0 {
		c.errBuf.WriteByte('\n')
	}
	c.errBuf.WriteString(fmt.Sprintf(format, args...))
	c.hadError = true
}

// HadError reports whether any per-blob step has recorded a sticky error.
func (c *Context) HadError() bool {
	return c.hadError
}

// Err returns the accumulated human-readable error message.
func (c *Context) Err() string {
	return c.errBuf.String()
}

func (c *Context) statsFor(remote string) *Stats {
	s, ok := c.stats[remote]
	if !ok {
		s = &Stats{}
		c.stats[remote] = s
	}
	return s
}

// HandleBlob runs the per-blob callback (spec §4.6): match, read, type
// check, write to the matched remote, remove the local copy, record stats.
// A nil return means no match (no-op success), an object that is not a Blob
// (ignored), or a fully completed offload; any other return is also recorded
// as this context's sticky error, and the caller's enumeration loop should
// stop.
func (c *Context) HandleBlob(blob BlobInfo) error {
	remote, ok := MatchBlob(c.policy, blob)
	if !ok {
		return nil
	}

	if config.EnvBool(config.EnvForceReadFail, false) {
		c.fail("unable to read blob %s", blob.OID)
		return lerrors.NewKind(lerrors.IoError)
	}

	kind, data, err := c.localStores[0].Fetch(blob.OID)
	if err != nil {
		c.fail("unable to read blob %s", blob.OID)
		return lerrors.Wrap(err, "offload: read blob")
	}

	if config.EnvBool(config.EnvForceNonBlob, false) {
		kind = objstore.Tree
	}
	if kind != objstore.Blob {
		return nil
	}

	alt, err := c.registry.Get(remote)
	if err != nil {
		c.fail("%v", err)
		return err
	}

	if err := writeBlobWithRetry(alt, blob.OID, data); err != nil {
		c.fail("%v", err)
		return err
	}

	if err := RemoveLocal(c.localStores, blob.OID); err != nil {
		c.fail("%v", err)
		return err
	}

	c.record(remote, blob)
	return nil
}

// writeBlobWithRetry wraps the remote write (spec §4.6 step 5) with the same
// bounded exponential backoff the loose store uses around its own disk I/O,
// since a remote alternate is just as likely to see transient ENOSPC/EIO.
func writeBlobWithRetry(alt *objstore.Alternate, oid hashalgo.OID, data []byte) error {
	b := backoff.WithMaxRetries(backoff.NewExponentialBackOff(), 3)
	return backoff.Retry(func() error {
		_, err := alt.WriteBlob(oid, data)
		return err
	}, b)
}

func (c *Context) record(remote string, blob BlobInfo) {
	s := c.statsFor(remote)
	s.BlobCount++
	s.TotalBytes += uint64(blob.Size)

	fields := map[string]string{
		"remote": remote,
		"size":   fmt.Sprint(blob.Size),
	}
	if blob.Path != "" {
		fields["path"] = blob.Path
	}
	c.tracer.Event("lop/match", fields)
}

// Finish emits per-remote trace records and releases the context. Call this
// only when HadError is false.
func (c *Context) Finish() {
	for remote, s := range c.stats {
		c.tracer.Event("lop/offload", map[string]string{
			"remote":      remote,
			"blob-count":  fmt.Sprint(s.BlobCount),
			"total-bytes": fmt.Sprint(s.TotalBytes),
		})
	}
	c.stats = nil
}

// Abort releases the context without emitting stats.
func (c *Context) Abort() {
	c.stats = nil
}

// RunPush is the push-level wrapper (spec §4.6 "Push-level wrapper"): it
// feeds every blob from blobs through HandleBlob, stopping at the first
// failure or sticky error, and finishing or aborting accordingly. Dedup
// against already-reachable oids is the enumerator's responsibility (spec
// §9: "any mechanism that yields (oid, optional path, type, size) for the
// exact set reachable(new) \ reachable(old) is acceptable").
func RunPush(c *Context, blobs []BlobInfo) error {
	for _, blob := range blobs {
		if err := c.HandleBlob(blob); err != nil {
			c.Abort()
			return lerrors.Wrap(err, "offload push aborted")
		}
		if c.HadError() {
			c.Abort()
			return lerrors.Newf(lerrors.PolicyError, "offload push aborted: %s", c.Err())
		}
	}

	if c.HadError() {
		c.Abort()
		return lerrors.Newf(lerrors.PolicyError, "offload push aborted: %s", c.Err())
	}

	c.Finish()
	return nil
}
