// Package lerrors is the error facade used throughout the module. It
// re-exports github.com/pkg/errors so call sites get Wrap/Cause semantics
// without importing the upstream package directly, and adds the sentinel
// error kinds named in the large-blob subsystem design.
package lerrors

import (
	"errors"

	pkgerrors "github.com/pkg/errors"
)

var (
	New    = pkgerrors.New
	Errorf = pkgerrors.Errorf
	Wrap   = pkgerrors.Wrap
	Wrapf  = pkgerrors.Wrapf
	Cause  = pkgerrors.Cause

	Is = errors.Is
	As = errors.As
)

// Kind classifies a failure the way the offload orchestrator and assembly
// readers report it, independent of the wrapped error chain that got us
// there.
type Kind int

const (
	_ Kind = iota
	IoError
	CorruptType
	InvalidFormat
	VerificationFailed
	OidMismatch
	IncompatibleHash
	UnsupportedURL
	PolicyError
	CallbackAborted
	ReadRemovedRace
)

func (k Kind) String() string {
	switch k {
	case IoError:
		return "io-error"
	case CorruptType:
		return "corrupt-type"
	case InvalidFormat:
		return "invalid-format"
	case VerificationFailed:
		return "verification-failed"
	case OidMismatch:
		return "oid-mismatch"
	case IncompatibleHash:
		return "incompatible-hash"
	case UnsupportedURL:
		return "unsupported-url"
	case PolicyError:
		return "policy-error"
	case CallbackAborted:
		return "callback-aborted"
	case ReadRemovedRace:
		return "read-removed-race"
	default:
		return "unknown"
	}
}

// Error is a kinded error: components compare against its Kind with Is,
// rather than string-matching a message.
type Error struct {
	Kind Kind
	msg  string
}

func (e *Error) Error() string {
	if e.msg == "" {
		return e.Kind.String()
	}
	return e.Kind.String() + ": " + e.msg
}

// Is reports whether target is an *Error with the same Kind, so that
// errors.Is(err, lerrors.NewKind(CorruptType)) style checks work across
// wrapping.
func (e *Error) Is(target error) bool {
	var other *Error
	if !errors.As(target, &other) {
		return false
	}
	return other.Kind == e.Kind
}

// NewKind constructs a bare kinded error with no message. It serves both as
// the comparison target for errors.Is and as a return value where the kind
// alone says enough; Newf builds one that also carries a message.
func NewKind(k Kind) *Error {
	return &Error{Kind: k}
}

// Newf builds a new kinded error with a formatted message.
func Newf(k Kind, format string, args ...interface{}) error {
	return &Error{Kind: k, msg: pkgerrors.Errorf(format, args...).Error()}
}
