// Shelfwise - Bookstore Recommendation Tracking and Serving Engine
// Copyright 2026 Shelfwise Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/shelfwise/shelfwise

// Package recerr defines the engine's error taxonomy. Services wrap failures
// with a kind; the API boundary maps kinds to HTTP status codes. Timeouts on
// bounded-wait delivery are deliberately not part of the taxonomy: a long
// poll expiring is a defined outcome, not an error.
package recerr

import (
	"errors"
	"fmt"
)

// Kind classifies an engine error.
type Kind uint8

const (
	// KindInternal is the zero kind for unclassified failures.
	KindInternal Kind = iota

	// KindValidation marks caller input errors. Not retriable without
	// fixing the input.
	KindValidation

	// KindConflict marks duplicate writes (impression ID reuse). The
	// caller should treat the record as already logged.
	KindConflict

	// KindNotFound marks references to records that do not exist
	// (feedback against an unlogged impression).
	KindNotFound

	// KindUpstream marks external collaborator failures (trainer exit,
	// catalog unreachable). Retriable by caller policy.
	KindUpstream
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindConflict:
		return "conflict"
	case KindNotFound:
		return "not_found"
	case KindUpstream:
		return "upstream"
	default:
		return "internal"
	}
}

// Error pairs a kind with an underlying error.
type Error struct {
	kind Kind
	err  error
}

func (e *Error) Error() string { return e.err.Error() }

func (e *Error) Unwrap() error { return e.err }

// Kind returns the error's classification.
func (e *Error) Kind() Kind { return e.kind }

// New creates a classified error from a message.
func New(kind Kind, msg string) error {
	return &Error{kind: kind, err: errors.New(msg)}
}

// Newf creates a classified error from a format string.
func Newf(kind Kind, format string, args ...interface{}) error {
	return &Error{kind: kind, err: fmt.Errorf(format, args...)}
}

// Wrap classifies an existing error, preserving it for errors.Is/As.
// Returns nil when err is nil.
func Wrap(kind Kind, err error) error {
	if err == nil {
		return nil
	}
	return &Error{kind: kind, err: err}
}

// KindOf extracts the kind from an error chain. Unclassified errors report
// KindInternal.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.kind
	}
	return KindInternal
}

// IsKind reports whether the error chain carries the given kind.
func IsKind(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}
