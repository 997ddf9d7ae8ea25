// Package vaulterr defines the error kinds shared across the storage
// engine: a flat sentinel-per-condition style, each wrapped with operation
// context the way the rest of this codebase wraps errors.
package vaulterr

import (
	"errors"
	"fmt"
)

// Kind identifies which of the engine's error conditions occurred.
type Kind int

const (
	// KindStorageUnavailable means the backing folder could not be
	// selected or created.
	KindStorageUnavailable Kind = iota
	// KindNotFound means a path or version is absent.
	KindNotFound
	// KindDecodeError means the envelope was malformed: bad headers, bad
	// JSON, or a missing payload part.
	KindDecodeError
	// KindCryptoError means authenticated decryption failed (bad MAC or
	// wrong key).
	KindCryptoError
	// KindIntegrityError means the path recorded inside a fetched message
	// disagreed with the path the caller requested.
	KindIntegrityError
	// KindWriteRejected means append returned a non-OK result; the
	// pending write remains buffered for retry.
	KindWriteRejected
	// KindVersionConflict means a caller asked for a specific version not
	// present in the path's version set.
	KindVersionConflict
)

func (k Kind) String() string {
	switch k {
	case KindStorageUnavailable:
		return "storage_unavailable"
	case KindNotFound:
		return "not_found"
	case KindDecodeError:
		return "decode_error"
	case KindCryptoError:
		return "crypto_error"
	case KindIntegrityError:
		return "integrity_error"
	case KindWriteRejected:
		return "write_rejected"
	case KindVersionConflict:
		return "version_conflict"
	default:
		return "unknown"
	}
}

// Sentinel errors for use with errors.Is. Error wraps one of these via %w
// alongside operation context.
var (
	ErrStorageUnavailable = errors.New("storage unavailable")
	ErrNotFound           = errors.New("not found")
	ErrDecodeError        = errors.New("decode error")
	ErrCryptoError        = errors.New("crypto error")
	ErrIntegrityError     = errors.New("integrity error")
	ErrWriteRejected      = errors.New("write rejected")
	ErrVersionConflict    = errors.New("version conflict")
)

func sentinelFor(k Kind) error {
	switch k {
	case KindStorageUnavailable:
		return ErrStorageUnavailable
	case KindNotFound:
		return ErrNotFound
	case KindDecodeError:
		return ErrDecodeError
	case KindCryptoError:
		return ErrCryptoError
	case KindIntegrityError:
		return ErrIntegrityError
	case KindWriteRejected:
		return ErrWriteRejected
	case KindVersionConflict:
		return ErrVersionConflict
	default:
		return errors.New("unknown error")
	}
}

// Error is the engine's wrapped error type: a Kind, the operation that
// produced it, and an optional underlying cause.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Op, e.Kind)
}

func (e *Error) Unwrap() []error {
	return []error{sentinelFor(e.Kind), e.Err}
}

// New builds an *Error for op/kind without an underlying cause.
func New(op string, kind Kind) *Error {
	return &Error{Op: op, Kind: kind}
}

// Wrap builds an *Error for op/kind wrapping err. Returns nil if err is nil.
func Wrap(op string, kind Kind, err error) *Error {
	if err == nil {
		return nil
	}
	return &Error{Op: op, Kind: kind, Err: err}
}

// Is reports whether err is (or wraps) the given Kind.
func Is(err error, kind Kind) bool {
	return errors.Is(err, sentinelFor(kind))
}
