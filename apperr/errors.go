package apperr

import (
	"errors"
	"fmt"
)

// Kind classifies failures so the HTTP layer can map them to responses
// without inspecting error strings.
type Kind int

const (
	KindValidation Kind = iota + 1
	KindNotFound
	KindTransientStore
	KindDataConflict
)

// Error carries a kind, a caller-facing message and an optional wrapped cause.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Validation reports a malformed record, chunk or intent. Never retried.
func Validation(format string, args ...interface{}) error {
	return &Error{Kind: KindValidation, Message: fmt.Sprintf(format, args...)}
}

// NotFound reports an unknown or expired session, or a missing entity.
func NotFound(format string, args ...interface{}) error {
	return &Error{Kind: KindNotFound, Message: fmt.Sprintf(format, args...)}
}

// TransientStore wraps a storage timeout or unavailability. Retryable.
func TransientStore(msg string, err error) error {
	return &Error{Kind: KindTransientStore, Message: msg, Err: err}
}

// DataConflict reports contradictory data for the same identity, such as a
// chunk index resubmitted with different content. Exact duplicates are not
// conflicts; the dedupe policy resolves those silently.
func DataConflict(format string, args ...interface{}) error {
	return &Error{Kind: KindDataConflict, Message: fmt.Sprintf(format, args...)}
}

// KindOf extracts the kind from err, or 0 if err is not an *Error.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return 0
}

func IsValidation(err error) bool { return KindOf(err) == KindValidation }
func IsNotFound(err error) bool   { return KindOf(err) == KindNotFound }
func IsTransient(err error) bool  { return KindOf(err) == KindTransientStore }
func IsConflict(err error) bool   { return KindOf(err) == KindDataConflict }
