// Package xerr defines the error kinds surfaced by the XET object engine
//: format errors, integrity errors, constraint errors, transport
// errors, authorization errors, and key-expiry. Each kind is a distinct type
// so callers can discriminate with errors.As instead of string matching.
package xerr

import (
	"fmt"

	"github.com/pkg/errors"
)

// FormatError reports a malformed binary object: bad magic, unknown ident,
// unsupported version, truncated region, or an out-of-bounds length field.
// Format errors are fatal for the object and are never retried.
type FormatError struct {
	Object string // "xorb", "shard", etc.
	Reason string
	cause  error
}

func (e *FormatError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: format error: %s: %v", e.Object, e.Reason, e.cause)
	}
	return fmt.Sprintf("%s: format error: %s", e.Object, e.Reason)
}

func (e *FormatError) Unwrap() error { return e.cause }

// NewFormat builds a FormatError, attaching a stack trace via pkg/errors so
// callers that log with %+v see where validation failed.
func NewFormat(object, reason string) error {
	return errors.WithStack(&FormatError{Object: object, Reason: reason})
}

// WrapFormat wraps an underlying error (e.g. a short read) as a FormatError.
func WrapFormat(object, reason string, cause error) error {
	return errors.WithStack(&FormatError{Object: object, Reason: reason, cause: cause})
}

// IntegrityError reports a computed hash disagreeing with a stored one —
// chunk, xorb, or file hash mismatch. Fatal for the object.
type IntegrityError struct {
	Object   string
	Expected string
	Actual   string
}

func (e *IntegrityError) Error() string {
	return fmt.Sprintf("%s: integrity error: expected %s, got %s", e.Object, e.Expected, e.Actual)
}

func NewIntegrity(object, expected, actual string) error {
	return errors.WithStack(&IntegrityError{Object: object, Expected: expected, Actual: actual})
}

// ConstraintError reports a violated size/count constraint: an oversize
// chunk, a xorb over its chunk or byte budget, a duplicate chunk, or
// out-of-range term indices. Fatal for the operation.
type ConstraintError struct {
	Constraint string
	Detail     string
}

func (e *ConstraintError) Error() string {
	return fmt.Sprintf("constraint violated (%s): %s", e.Constraint, e.Detail)
}

func NewConstraint(constraint, detail string) error {
	return errors.WithStack(&ConstraintError{Constraint: constraint, Detail: detail})
}

// TransportError reports a timeout, 5xx, or other transient network
// condition. The transport layer retries these with exponential backoff;
// the core only classifies and surfaces them.
type TransportError struct {
	Op     string
	Status int
	cause  error
}

func (e *TransportError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("transport error during %s: status %d", e.Op, e.Status)
	}
	return fmt.Sprintf("transport error during %s: %v", e.Op, e.cause)
}

func (e *TransportError) Unwrap() error { return e.cause }

// Retryable reports whether the condition is ordinarily safe to retry
// (timeouts and 5xx are; 4xx other than 429 are not).
func (e *TransportError) Retryable() bool {
	if e.Status == 0 {
		return true
	}
	return e.Status >= 500 || e.Status == 429
}

func NewTransport(op string, status int, cause error) error {
	return errors.WithStack(&TransportError{Op: op, Status: status, cause: cause})
}

// AuthorizationError reports a 401/403. Surfaced to the caller, never
// retried automatically.
type AuthorizationError struct {
	Op     string
	Status int
}

func (e *AuthorizationError) Error() string {
	return fmt.Sprintf("authorization error during %s: status %d", e.Op, e.Status)
}

func NewAuthorization(op string, status int) error {
	return errors.WithStack(&AuthorizationError{Op: op, Status: status})
}

// KeyExpiryError reports that a shard's chunk_hash_key has expired
// (now >= shard_key_expiry). Callers must evict the cached shard and
// re-query rather than trust its lookup tables.
type KeyExpiryError struct {
	ShardID string
	Expiry  uint64
	Now     uint64
}

func (e *KeyExpiryError) Error() string {
	return fmt.Sprintf("shard %s: chunk_hash_key expired at %d (now %d)", e.ShardID, e.Expiry, e.Now)
}

func NewKeyExpiry(shardID string, expiry, now uint64) error {
	return errors.WithStack(&KeyExpiryError{ShardID: shardID, Expiry: expiry, Now: now})
}

// PanicIfTrue panics with msg if cond holds. Reserved for programmer-error
// invariants that can never legitimately fail given correct calling code,
// never for attacker- or network-controlled input, which must return an
// error instead.
func PanicIfTrue(cond bool, msg string) {
	if cond {
		panic(msg)
	}
}

// PanicIfFalse panics with msg unless cond holds.
func PanicIfFalse(cond bool, msg string) {
	if !cond {
		panic(msg)
	}
}
