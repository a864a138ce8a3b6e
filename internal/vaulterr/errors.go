// Package vaulterr defines the structured errors returned by the chunked
// transfer layer. Every failure carries a Kind so callers can decide between
// retrying, cleaning up, or surfacing the error to a user.
package vaulterr

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Kind classifies a transfer failure.
type Kind uint8

const (
	// KindUnknown is reported for errors that did not originate in this module.
	KindUnknown Kind = iota
	// InvalidInput means the caller passed malformed arguments.
	InvalidInput
	// IOError means a local filesystem operation failed.
	IOError
	// RemoteTransient means a single remote call failed on network or rate limits.
	RemoteTransient
	// RemoteRejected means the remote store refused the payload.
	RemoteRejected
	// RemoteNotFound means a reference id is unknown to the remote store.
	RemoteNotFound
	// Integrity means reassembled bytes do not match the manifest.
	Integrity
	// Canceled means the operation stopped between chunks on cancellation or timeout.
	Canceled
)

var kindNames = map[Kind]string{
	KindUnknown:     "unknown",
	InvalidInput:    "invalid_input",
	IOError:         "io_error",
	RemoteTransient: "remote_transient",
	RemoteRejected:  "remote_rejected",
	RemoteNotFound:  "remote_not_found",
	Integrity:       "integrity",
	Canceled:        "canceled",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("kind(%d)", uint8(k))
}

// Error lets a bare Kind be used as a target for errors.Is.
func (k Kind) Error() string {
	return k.String()
}

// Error is a transfer failure with enough context for the caller to act on it.
type Error struct {
	Kind Kind
	// Op names the operation that failed, e.g. "upload" or "fetch".
	Op string
	// Chunk is the zero-based chunk index, or -1 when the failure is not chunk specific.
	Chunk int
	// Completed is the number of chunks that finished before the failure.
	Completed int
	// RetryAfter is a server supplied delay hint for transient failures.
	RetryAfter time.Duration
	Err        error
}

func (e *Error) Error() string {
	var b strings.Builder
	if e.Op != "" {
		b.WriteString(e.Op)
		b.WriteString(": ")
	}
	b.WriteString(e.Kind.String())
	if e.Chunk >= 0 {
		fmt.Fprintf(&b, " (chunk %d, %d completed)", e.Chunk, e.Completed)
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches a bare Kind, so errors.Is(err, vaulterr.RemoteNotFound) works.
func (e *Error) Is(target error) bool {
	k, ok := target.(Kind)
	return ok && k == e.Kind
}

// New returns an Error that is not tied to a chunk.
func New(kind Kind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Chunk: -1, Err: err}
}

// Errorf is New with a formatted cause.
func Errorf(kind Kind, op, format string, args ...interface{}) *Error {
	return New(kind, op, fmt.Errorf(format, args...))
}

// ForChunk attaches chunk position information to err. If err already is an
// *Error its kind is preserved; otherwise fallback is used.
func ForChunk(err error, fallback Kind, op string, chunk, completed int) *Error {
	var ve *Error
	if errors.As(err, &ve) {
		return &Error{
			Kind:       ve.Kind,
			Op:         op,
			Chunk:      chunk,
			Completed:  completed,
			RetryAfter: ve.RetryAfter,
			Err:        err,
		}
	}
	return &Error{Kind: fallback, Op: op, Chunk: chunk, Completed: completed, Err: err}
}

// KindOf reports the kind of the outermost *Error in err's chain.
func KindOf(err error) Kind {
	var ve *Error
	if errors.As(err, &ve) {
		return ve.Kind
	}
	return KindUnknown
}

// IsRetryable reports whether err may succeed if the same remote call is repeated.
func IsRetryable(err error) bool {
	return err != nil && errors.Is(err, RemoteTransient)
}

// RetryAfterOf returns the first retry hint found in err's chain.
func RetryAfterOf(err error) time.Duration {
	for err != nil {
		var ve *Error
		if !errors.As(err, &ve) {
			return 0
		}
		if ve.RetryAfter > 0 {
			return ve.RetryAfter
		}
		err = ve.Err
	}
	return 0
}

// CompletedOf returns how many chunks had finished when err was produced.
func CompletedOf(err error) int {
	var ve *Error
	if errors.As(err, &ve) {
		return ve.Completed
	}
	return 0
}
