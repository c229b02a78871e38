package objstore

import (
	"strings"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/cdcstore/lop/internal/hashalgo"
	"github.com/cdcstore/lop/internal/lerrors"
)

// RemoteResolver looks up a configured remote's first URL, the external
// collaborator the spec calls "the repository's remote registry" (§4.2).
// This module consumes it rather than designing it.
type RemoteResolver interface {
	RemoteURL(name string) (string, bool)
}

// MapResolver is a RemoteResolver backed by a plain map, used by tests and
// simple callers.
type MapResolver map[string]string

func (m MapResolver) RemoteURL(name string) (string, bool) {
	u, ok := m[name]
	return u, ok
}

// Alternate is an external object store addressable by remote name: a
// nested LooseStore rooted at the path resolved from that remote's URL
// (spec §4.2).
type Alternate struct {
	Name  string
	Store *LooseStore
}

// WriteResult reports how Alternate.WriteBlob handled the write.
type WriteResult int

const (
	Written WriteResult = iota
	ExistsOK
)

// Registry caches Alternates by remote name for the process lifetime,
// generalized from promisor-odb.c's lop_odb_cache singleton linked list into
// an explicitly passed, explicitly bounded registry (spec §9: "re-architect
// global singletons as explicitly passed registries constructed at the start
// of a push, released at its end").
type Registry struct {
	resolver RemoteResolver
	primary  hashalgo.Algo

	mu    sync.Mutex
	cache *lru.Cache[string, *Alternate]
}

// registryCacheSize bounds how many remote alternates stay warm across a
// single push; a push touching more distinct offload remotes than this will
// simply re-resolve the least-recently-used one.
const registryCacheSize = 64

// NewRegistry builds a registry that resolves remotes through resolver and
// checks alternates for hash-algorithm compatibility against primary.
func NewRegistry(resolver RemoteResolver, primary hashalgo.Algo) (*Registry, error) {
	cache, err := lru.New[string, *Alternate](registryCacheSize)
	if err != nil {
		return nil, lerrors.Wrap(err, "alternate registry: init cache")
	}
	return &Registry{resolver: resolver, primary: primary, cache: cache}, nil
}

// parseFileURL accepts "file://path", "file:/abs-path", an absolute
// filesystem path, or any string that simply doesn't look like a URL at
// all (no "scheme:" prefix) — the fourth case is carried over from
// promisor-odb.c's lop_parse_file_url, which falls back to treating a bare
// non-URL string as a path rather than rejecting it (spec §9 supplement).
func parseFileURL(url string) (string, bool) {
	if rest, ok := strings.CutPrefix(url, "file://"); ok {
		return rest, true
	}
	if rest, ok := strings.CutPrefix(url, "file:"); ok {
		if strings.HasPrefix(rest, "/") {
			return rest, true
		}
		return "", false
	}
	if isAbsolutePath(url) {
		return url, true
	}
	if !looksLikeURL(url) {
		return url, true
	}
	return "", false
}

func isAbsolutePath(s string) bool {
	if strings.HasPrefix(s, "/") {
		return true
	}
	// drive-letter paths, e.g. "C:\foo" or "C:/foo"
	if len(s) >= 3 && isASCIILetter(s[0]) && s[1] == ':' && (s[2] == '\\' || s[2] == '/') {
		return true
	}
	return false
}

func isASCIILetter(b byte) bool {
	return (b >= 'a' && b <= 'z') || (b >= 'A' && b <= 'Z')
}

func looksLikeURL(s string) bool {
	i := strings.IndexByte(s, ':')
	if i <= 0 {
		return false
	}
	// a single letter before ':' is a Windows drive, not a scheme
	if i == 1 && isASCIILetter(s[0]) {
		return false
	}
	for _, c := range s[:i] {
		if !(c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c >= '0' && c <= '9' || c == '+' || c == '-' || c == '.') {
			return false
		}
	}
	return true
}

// Get resolves remote by name, constructing and caching an Alternate the
// first time it is seen, and verifying its hash algorithm matches primary.
func (r *Registry) Get(remote string) (*Alternate, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if a, ok := r.cache.Get(remote); ok {
		return a, nil
	}

	url, ok := r.resolver.RemoteURL(remote)
	if !ok {
		return nil, lerrors.Newf(lerrors.PolicyError, "unknown remote %q", remote)
	}

	path, ok := parseFileURL(url)
	if !ok {
		return nil, lerrors.NewKind(lerrors.UnsupportedURL)
	}

	store, err := Prepare(path, r.primary)
	if err != nil {
		return nil, err
	}

	a := &Alternate{Name: remote, Store: store}
	r.cache.Add(remote, a)
	return a, nil
}

// WriteBlob writes data to the alternate's store under the given oid. If
// the object already exists there, it returns ExistsOK without re-writing.
// Otherwise it writes and asserts the returned oid matches the caller's.
func (a *Alternate) WriteBlob(oid hashalgo.OID, data []byte) (WriteResult, error) {
	if a.Store.Has(oid) {
		return ExistsOK, nil
	}

	written, err := a.Store.Store(Blob, data)
	if err != nil {
		return 0, lerrors.Wrapf(err, "write blob to remote %q", a.Name)
	}
	if !written.Equal(oid) {
		return 0, lerrors.NewKind(lerrors.OidMismatch)
	}

	return Written, nil
}
