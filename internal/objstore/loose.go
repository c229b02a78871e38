package objstore

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/cenkalti/backoff/v4"
	"github.com/klauspost/compress/zlib"

	"github.com/cdcstore/lop/internal/config"
	"github.com/cdcstore/lop/internal/debug"
	"github.com/cdcstore/lop/internal/hashalgo"
	"github.com/cdcstore/lop/internal/lerrors"
)

// DefaultCompressionLevel is the engine-wide zlib level applied to every
// loose object payload, matching the teacher's zlib_compression_level knob.
const DefaultCompressionLevel = zlib.DefaultCompression

// LooseStore is a write-through loose-object store: one file per object,
// sharded by the first two hex characters of its oid, deflated with zlib,
// published via a temp-file-then-rename (spec §4.1). It is adapted from
// restic's internal/backend/local/local.go (Create/open/Save), generalized
// from a repository backend that stores arbitrary byte handles to one that
// stores typed, content-addressed objects the way git-style simple-odb.c
// does.
type LooseStore struct {
	algo             hashalgo.Algo
	root             string
	objectsDir       string
	compressionLevel int

	mu          sync.Mutex
	existsCache map[string]bool
}

// Prepare creates <path>/objects, <path>/objects/info and
// <path>/objects/pack (idempotently) and canonicalizes path via an
// absolute-real-path resolution, mirroring simple_odb_prepare.
func Prepare(path string, algo hashalgo.Algo) (*LooseStore, error) {
	if path == "" {
		return nil, lerrors.Newf(lerrors.IoError, "loose store: missing object directory path")
	}

	if err := mkdirAll(path, 0777); err != nil {
		return nil, lerrors.Wrap(err, "loose store: create root")
	}

	real, err := filepath.Abs(path)
	if err != nil {
		return nil, lerrors.Wrap(err, "loose store: canonicalize root")
	}
	real, err = filepath.EvalSymlinks(real)
	if err != nil {
		return nil, lerrors.Wrap(err, "loose store: canonicalize root")
	}

	objectsDir := filepath.Join(real, "objects")
	for _, dir := range []string{objectsDir, filepath.Join(objectsDir, "info"), filepath.Join(objectsDir, "pack")} {
		if err := mkdirAll(dir, 0777); err != nil {
			return nil, lerrors.Wrap(err, "loose store: create "+dir)
		}
	}

	if err := checkOrRecordAlgo(objectsDir, algo); err != nil {
		return nil, err
	}

	debug.Log("loose store prepared at %v", real)

	return &LooseStore{
		algo:             algo,
		root:             real,
		objectsDir:       objectsDir,
		compressionLevel: DefaultCompressionLevel,
		existsCache:      make(map[string]bool),
	}, nil
}

func mkdirAll(path string, perm os.FileMode) error {
	if err := os.MkdirAll(path, perm); err != nil {
		return err
	}
	// os.MkdirAll leaves existing directories' modes untouched; mirror
	// make_dir's explicit mkdir-with-mode for the leaf so a pre-existing
	// directory created by something else doesn't leave the wrong mode.
	return os.Chmod(path, perm&^umask())
}

// algoMarkerFile records which hash algorithm a store's oids are computed
// under, the way a repository's on-disk config records its configured hash
// algorithm. Prepare consults it so two processes opening the same store
// path with different algorithms fail loudly instead of silently computing
// incompatible oids.
const algoMarkerFile = "algorithm"

func checkOrRecordAlgo(objectsDir string, algo hashalgo.Algo) error {
	infoPath := filepath.Join(objectsDir, "info", algoMarkerFile)

	existing, err := os.ReadFile(infoPath)
	if err != nil {
		if !os.IsNotExist(err) {
			return lerrors.Wrap(err, "loose store: read algorithm marker")
		}
		if err := os.WriteFile(infoPath, []byte(algo.Name+"\n"), 0644); err != nil {
			return lerrors.Wrap(err, "loose store: write algorithm marker")
		}
		return nil
	}

	recorded := strings.TrimSpace(string(existing))
	if recorded != algo.Name {
		return lerrors.NewKind(lerrors.IncompatibleHash)
	}
	return nil
}

func umask() os.FileMode {
	// best-effort: Go has no portable umask getter without changing process
	// state, so we rely on MkdirAll/OpenFile already applying it and only
	// normalize the leaf directory above.
	return 0
}

// Root returns the canonicalized store root (the directory containing
// objects/).
func (s *LooseStore) Root() string {
	return s.root
}

// Algo returns the hash algorithm this store's oids are computed under.
func (s *LooseStore) Algo() hashalgo.Algo {
	return s.algo
}

// LoosePath returns the on-disk path of oid, regardless of whether it
// exists: <root>/objects/<hex[0:2]>/<hex[2:]>.
func (s *LooseStore) LoosePath(oid hashalgo.OID) string {
	hex := oid.Hex()
	return filepath.Join(s.objectsDir, hex[:2], hex[2:])
}

// Has reports whether oid is already present as a loose object.
func (s *LooseStore) Has(oid hashalgo.OID) bool {
	hex := oid.Hex()

	s.mu.Lock()
	if v, ok := s.existsCache[hex]; ok {
		s.mu.Unlock()
		return v
	}
	s.mu.Unlock()

	_, err := os.Stat(s.LoosePath(oid))
	exists := err == nil

	s.mu.Lock()
	s.existsCache[hex] = exists
	s.mu.Unlock()

	return exists
}

// ClearLooseCache invalidates the existence cache. Callers must call this
// after any local unlink (spec §4.7, §5) so a subsequent Has/Store does not
// answer from stale state.
func (s *LooseStore) ClearLooseCache() {
	s.mu.Lock()
	s.existsCache = make(map[string]bool)
	s.mu.Unlock()
}

// Store computes oid = H("<kind> <len>\0" + data) under the store's
// algorithm, deflates the typed payload, and atomically publishes it via a
// mkstemp-then-rename. If the target already exists the write is skipped
// and success is returned (idempotent). On any I/O failure the temp file is
// removed.
func (s *LooseStore) Store(kind Kind, data []byte) (hashalgo.OID, error) {
	oid := ComputeOID(s.algo, kind, data)

	if s.Has(oid) {
		debug.Log("store(%s %s): already present", kind, oid)
		return oid, nil
	}

	if config.EnvBool(config.EnvForceReadOnly, false) {
		return hashalgo.OID{}, lerrors.Newf(lerrors.IoError, "store(%s %s): remote is read-only", kind, oid)
	}

	shardDir := filepath.Join(s.objectsDir, oid.Hex()[:2])
	if err := mkdirAll(shardDir, 0777); err != nil {
		return hashalgo.OID{}, lerrors.Wrap(err, "loose store: create shard dir")
	}

	finalPath := s.LoosePath(oid)

	err := s.writeWithRetry(shardDir, finalPath, kind, data)
	if err != nil {
		return hashalgo.OID{}, err
	}

	s.mu.Lock()
	s.existsCache[oid.Hex()] = true
	s.mu.Unlock()

	debug.Log("store(%s %s): wrote %d bytes", kind, oid, len(data))
	return oid, nil
}

func (s *LooseStore) writeWithRetry(shardDir, finalPath string, kind Kind, data []byte) error {
	op := func() error {
		return s.writeOnce(shardDir, finalPath, kind, data)
	}

	b := backoff.WithMaxRetries(backoff.NewExponentialBackOff(), 3)
	return backoff.Retry(op, b)
}

func (s *LooseStore) writeOnce(shardDir, finalPath string, kind Kind, data []byte) error {
	tmp, err := os.CreateTemp(shardDir, ".tmp-obj-")
	if err != nil {
		if os.IsNotExist(lerrors.Cause(err)) {
			return err // retriable: shard dir briefly missing under concurrent callers
		}
		return backoff.Permanent(lerrors.Wrap(err, "loose store: create temp file"))
	}
	tmpName := tmp.Name()

	removeTemp := func() {
		_ = os.Remove(tmpName)
	}

	zw, err := zlib.NewWriterLevel(tmp, s.compressionLevel)
	if err != nil {
		_ = tmp.Close()
		removeTemp()
		return backoff.Permanent(lerrors.Wrap(err, "loose store: init deflate"))
	}

	if _, err := zw.Write(Header(kind, len(data))); err != nil {
		_ = zw.Close()
		_ = tmp.Close()
		removeTemp()
		return classifyWriteErr(err)
	}
	if _, err := zw.Write(data); err != nil {
		_ = zw.Close()
		_ = tmp.Close()
		removeTemp()
		return classifyWriteErr(err)
	}
	if err := zw.Close(); err != nil {
		_ = tmp.Close()
		removeTemp()
		return classifyWriteErr(err)
	}
	if err := tmp.Close(); err != nil {
		removeTemp()
		return classifyWriteErr(err)
	}

	if err := os.Rename(tmpName, finalPath); err != nil {
		removeTemp()
		if os.IsExist(err) {
			return nil
		}
		return backoff.Permanent(lerrors.Wrap(err, "loose store: publish object"))
	}

	_ = os.Chmod(finalPath, 0444)
	return nil
}

// classifyWriteErr marks out-of-space and permission failures permanent so
// the retry loop does not waste time on errors that will not clear up,
// mirroring the teacher's backoff.Permanent use around Save for ENOSPC.
func classifyWriteErr(err error) error {
	msg := err.Error()
	if strings.Contains(msg, "no space") || os.IsPermission(err) {
		return backoff.Permanent(lerrors.Wrap(err, "loose store: write object"))
	}
	return lerrors.Wrap(err, "loose store: write object")
}

// Fetch reads and inflates the loose object at oid and parses its typed
// header, returning the kind and payload.
func (s *LooseStore) Fetch(oid hashalgo.OID) (Kind, []byte, error) {
	f, err := os.Open(s.LoosePath(oid))
	if err != nil {
		if os.IsNotExist(err) {
			return Other, nil, lerrors.Newf(lerrors.IoError, "object %s not found", oid)
		}
		return Other, nil, lerrors.Wrap(err, "loose store: open object")
	}
	defer f.Close()

	zr, err := zlib.NewReader(f)
	if err != nil {
		return Other, nil, lerrors.Newf(lerrors.CorruptType, "object %s: inflate: %v", oid, err)
	}
	defer zr.Close()

	raw, err := io.ReadAll(zr)
	if err != nil {
		return Other, nil, lerrors.Newf(lerrors.CorruptType, "object %s: inflate: %v", oid, err)
	}

	kind, payload, err := splitHeader(raw)
	if err != nil {
		return Other, nil, lerrors.Newf(lerrors.CorruptType, "object %s: %v", oid, err)
	}

	return kind, payload, nil
}

func splitHeader(raw []byte) (Kind, []byte, error) {
	nul := -1
	for i, b := range raw {
		if b == 0 {
			nul = i
			break
		}
	}
	if nul < 0 {
		return Other, nil, fmt.Errorf("missing header terminator")
	}

	header := string(raw[:nul])
	sp := strings.IndexByte(header, ' ')
	if sp < 0 {
		return Other, nil, fmt.Errorf("malformed header %q", header)
	}

	kind, ok := ParseKind(header[:sp])
	if !ok {
		return Other, nil, fmt.Errorf("unknown object type %q", header[:sp])
	}

	payload := raw[nul+1:]
	declared := header[sp+1:]
	if fmt.Sprint(len(payload)) != declared {
		return Other, nil, fmt.Errorf("length mismatch: header says %s, payload is %d bytes", declared, len(payload))
	}

	return kind, payload, nil
}

// Remove deletes the loose file for oid. A missing file (ENOENT) is treated
// as success. Any other error is fatal (spec §4.7 step 2). On success the
// existence cache is invalidated and the shard directory is opportunistically
// removed if now empty; ENOENT/ENOTEMPTY on the rmdir are ignored, anything
// else downgrades to a warning rather than failing the step.
func (s *LooseStore) Remove(oid hashalgo.OID) error {
	path := s.LoosePath(oid)
	err := os.Remove(path)
	if err != nil && !os.IsNotExist(err) {
		return lerrors.NewKind(lerrors.ReadRemovedRace)
	}

	s.ClearLooseCache()

	shardDir := filepath.Dir(path)
	if rerr := os.Remove(shardDir); rerr != nil {
		if !os.IsNotExist(rerr) && !isDirNotEmpty(rerr) {
			debug.Log("warning: failed to remove directory %v: %v", shardDir, rerr)
		}
	}

	return nil
}

func isDirNotEmpty(err error) bool {
	return strings.Contains(err.Error(), "directory not empty") || strings.Contains(err.Error(), "not empty")
}
