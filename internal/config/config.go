// Package config models the handful of config keys and environment
// overrides the large-blob subsystem reads (spec §6). Reading the actual
// repository config file is an external collaborator this module consumes,
// not designs (spec §1); Source is the shape that collaborator must satisfy.
package config

import "os"

// Source resolves a boolean config key, e.g. "receive.lop.enable" or
// "remote.origin.promisor". ok is false if the key is unset.
type Source interface {
	Bool(key string) (value bool, ok bool)
	String(key string) (value string, ok bool)
}

// MapSource is a Source backed by an in-memory map, used by tests and by
// callers that have already parsed a config file into key/value pairs.
type MapSource struct {
	Bools   map[string]bool
	Strings map[string]string
}

func (m MapSource) Bool(key string) (bool, bool) {
	v, ok := m.Bools[key]
	return v, ok
}

func (m MapSource) String(key string) (string, bool) {
	v, ok := m.Strings[key]
	return v, ok
}

// Keys used by the offload and chunking subsystems.
const (
	KeyReceiveLopEnable = "receive.lop.enable"
	KeyBupChunking      = "bup.chunking"
)

// PromisorKey returns the per-remote config key that marks remote as
// offload-eligible.
func PromisorKey(remote string) string {
	return "remote." + remote + ".promisor"
}

// EnvOverride wraps a Source so that a single key's value can be forced by an
// environment variable, irrespective of what the underlying source reports.
// GIT_BUP_CHUNKING over bup.chunking is the motivating case (spec §6): when
// the variable is set, its value wins; otherwise Bool falls through to Source.
type EnvOverride struct {
	Source Source
	Env    string
	Key    string
}

func (o EnvOverride) Bool(key string) (bool, bool) {
	if key == o.Key {
		if _, ok := os.LookupEnv(o.Env); ok {
			return EnvBool(o.Env, false), true
		}
	}
	return o.Source.Bool(key)
}

func (o EnvOverride) String(key string) (string, bool) {
	return o.Source.String(key)
}

// BupChunkingEnabled reports whether bup-chunking is active for new blob
// writes: the GIT_BUP_CHUNKING environment variable, when set, forces the
// behavior on or off irrespective of the config key (spec §6); otherwise
// bup.chunking from src is consulted.
func BupChunkingEnabled(src Source) bool {
	v, ok := EnvOverride{Source: src, Env: "GIT_BUP_CHUNKING", Key: KeyBupChunking}.Bool(KeyBupChunking)
	return ok && v
}

// ReceiveLopEnabled reports whether the offload orchestrator should run at
// all for this push.
func ReceiveLopEnabled(src Source) bool {
	v, ok := src.Bool(KeyReceiveLopEnable)
	return ok && v
}

// PromisorEnabled reports whether remote is configured as a promisor, either
// via remote.<name>.promisor or because it is the repository's configured
// partial-clone remote.
func PromisorEnabled(src Source, remote, partialCloneRemote string) bool {
	if v, ok := src.Bool(PromisorKey(remote)); ok {
		return v
	}
	return partialCloneRemote != "" && partialCloneRemote == remote
}

// Test-seam environment variables (spec §4.7, §6) that inject deterministic
// failures: the read and non-blob seams are read by the offload
// orchestrator's per-blob step, the remove seams by its cleanup step, and the
// read-only seam by the loose store's Store.
const (
	EnvForceReadFail    = "GIT_TEST_LOP_FORCE_READ_FAIL"
	EnvForceNonBlob     = "GIT_TEST_LOP_FORCE_NON_BLOB"
	EnvForceRemoveFail  = "GIT_TEST_LOP_FORCE_REMOVE_FAIL"
	EnvForceRemoveError = "GIT_TEST_LOP_FORCE_REMOVE_ERROR"
	EnvForceRemoveWarn  = "GIT_TEST_LOP_FORCE_REMOVE_DIR_WARN"
	EnvForceReadOnly    = "GIT_TEST_LOP_FORCE_READONLY"
)

// EnvBool returns def when the named environment variable is unset, false
// when it is set to "", "0", "false" or "no", and true for any other value,
// mirroring git's git_env_bool semantics closely enough for the test seams
// that consult it.
func EnvBool(name string, def bool) bool {
	v, ok := os.LookupEnv(name)
	if !ok {
		return def
	}
	switch v {
	case "", "0", "false", "no":
		return false
	default:
		return true
	}
}
