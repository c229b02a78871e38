// Package hashalgo is the hash & oid facade (spec §2, §3): a thin
// abstraction over a content hash algorithm exposing raw and hex sizes and
// streaming init/update/final, so the rest of the module never imports
// crypto/sha1 or crypto/sha256 directly. Algorithm registration is the one
// place this module reaches for the standard library instead of a
// third-party multihash library: no example repo in the retrieval pack
// supplies a struct-valued rawsz/hexsz/init-update-final facade over a
// swappable algorithm (opencontainers/go-digest, the closest candidate,
// models a single fixed digest string instead), and the spec explicitly
// scopes "hash-algorithm registry" out as a consumed, not designed,
// collaborator.
package hashalgo

import (
	"crypto/sha1"
	"crypto/sha256"
	"encoding/hex"
	"hash"

	"github.com/cdcstore/lop/internal/lerrors"
)

// Algo names a content hash algorithm by the size of its raw digest, the
// way a git-style object store keys its hash functions.
type Algo struct {
	Name  string
	RawSZ int // rawsz: digest length in bytes
	HexSZ int // hexsz: digest length in hex characters, always 2*RawSZ
	newFn func() hash.Hash
}

// NewCtx starts a new streaming hash context for this algorithm.
func (a Algo) NewCtx() Ctx {
	return Ctx{h: a.newFn(), algo: a}
}

// Sum computes the full digest of data in one call.
func (a Algo) Sum(data []byte) []byte {
	c := a.NewCtx()
	c.Update(data)
	return c.Final()
}

// Ctx is a streaming hash context: init happens in Algo.NewCtx, Update may
// be called any number of times, Final consumes the context.
type Ctx struct {
	h    hash.Hash
	algo Algo
}

func (c *Ctx) Update(p []byte) {
	c.h.Write(p)
}

func (c *Ctx) Final() []byte {
	return c.h.Sum(nil)
}

var (
	SHA1   = Algo{Name: "sha1", RawSZ: 20, HexSZ: 40, newFn: sha1.New}
	SHA256 = Algo{Name: "sha256", RawSZ: 32, HexSZ: 64, newFn: sha256.New}
)

var registry = map[string]Algo{
	SHA1.Name:   SHA1,
	SHA256.Name: SHA256,
}

// Lookup resolves an algorithm by name.
func Lookup(name string) (Algo, bool) {
	a, ok := registry[name]
	return a, ok
}

// OID is a fixed-width content-address: the hash of a typed object header
// plus its payload (spec §3). The zero value is the null oid, the sentinel
// meaning "absent child" in a BBlob slot.
type OID struct {
	Algo  Algo
	Bytes []byte
}

// Null returns the all-zero sentinel oid for algo.
func Null(algo Algo) OID {
	return OID{Algo: algo, Bytes: make([]byte, algo.RawSZ)}
}

// IsNull reports whether id is the all-zero sentinel.
func (id OID) IsNull() bool {
	if len(id.Bytes) == 0 {
		return true
	}
	for _, b := range id.Bytes {
		if b != 0 {
			return false
		}
	}
	return true
}

// Equal compares two oids by raw bytes.
func (id OID) Equal(other OID) bool {
	if len(id.Bytes) != len(other.Bytes) {
		return false
	}
	for i := range id.Bytes {
		if id.Bytes[i] != other.Bytes[i] {
			return false
		}
	}
	return true
}

// Hex returns the lower-case hex form, 2*rawsz characters long.
func (id OID) Hex() string {
	return hex.EncodeToString(id.Bytes)
}

func (id OID) String() string {
	return id.Hex()
}

// ParseHex decodes a hex oid string for algo, validating its length against
// algo.HexSZ.
func ParseHex(algo Algo, s string) (OID, error) {
	if len(s) != algo.HexSZ {
		return OID{}, lerrors.Newf(lerrors.InvalidFormat, "oid %q has length %d, expected %d", s, len(s), algo.HexSZ)
	}
	b, err := hex.DecodeString(s)
	if err != nil {
		return OID{}, lerrors.Newf(lerrors.InvalidFormat, "oid %q is not valid hex: %v", s, err)
	}
	return OID{Algo: algo, Bytes: b}, nil
}

// IsHex reports whether s is non-empty and every byte in it is an ASCII hex
// digit, used by the bupchunk detector's strict grammar check.
func IsHex(s string) bool {
	for _, c := range []byte(s) {
		switch {
		case c >= '0' && c <= '9':
		case c >= 'a' && c <= 'f':
		case c >= 'A' && c <= 'F':
		default:
			return false
		}
	}
	return len(s) > 0
}
