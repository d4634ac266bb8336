package domain

import (
	"errors"
	"fmt"
)

// Kind classifies a failure at the tool-call boundary.
type Kind string

const (
	// KindValidation means the caller supplied bad arguments.
	KindValidation Kind = "ValidationError"
	// KindOutOfRange means a line bound fell outside the document.
	KindOutOfRange Kind = "OutOfRange"
	// KindStorageUnavailable means the object store or ledger backend failed.
	KindStorageUnavailable Kind = "StorageUnavailable"
	// KindCompileFailed means the source was saved but did not compile.
	KindCompileFailed Kind = "CompileFailed"
	// KindNotFound means an unknown session, version or reference.
	KindNotFound Kind = "NotFound"
	// KindCorrupted means a stored version failed hash verification.
	KindCorrupted Kind = "Corrupted"
	// KindInternal is anything unclassified.
	KindInternal Kind = "Internal"
)

// Error is a classified error. Err, when set, is the underlying cause.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil && e.Message != "" {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches any *Error of the same kind, so errors.Is(err, &Error{Kind: k}) works.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Kind == e.Kind && t.Message == "" && t.Err == nil
}

// Errorf builds a classified error with a formatted message.
func Errorf(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap classifies err under kind. A nil err returns nil.
func Wrap(kind Kind, err error, message string) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Message: message, Err: err}
}

// KindOf returns the kind of the outermost classified error in the chain,
// or KindInternal when err carries no classification.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// MessageOf returns a human readable message without the kind prefix.
func MessageOf(err error) string {
	var e *Error
	if !errors.As(err, &e) {
		return err.Error()
	}
	switch {
	case e.Message != "" && e.Err != nil:
		return e.Message + ": " + e.Err.Error()
	case e.Message != "":
		return e.Message
	case e.Err != nil:
		return e.Err.Error()
	}
	return string(e.Kind)
}

// IsKind reports whether err is classified as kind.
func IsKind(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}
