package jobs

import (
	"errors"
	"fmt"
)

// ErrorKind tags pipeline failures so callers can branch on kind instead
// of inspecting message text.
type ErrorKind int

const (
	KindUnknown ErrorKind = iota
	KindValidation
	KindNotFound
	KindConflict
	KindFetch
	KindEmptyContent
	KindTranslation
	KindTimeout
	KindPersistence
	KindPublish
)

func (k ErrorKind) String() string {
	switch k {
	case KindValidation:
		return "Validation"
	case KindNotFound:
		return "NotFound"
	case KindConflict:
		return "Conflict"
	case KindFetch:
		return "Fetch"
	case KindEmptyContent:
		return "EmptyContent"
	case KindTranslation:
		return "Translation"
	case KindTimeout:
		return "Timeout"
	case KindPersistence:
		return "Persistence"
	case KindPublish:
		return "Publish"
	default:
		return "Unknown"
	}
}

// Error is a kind-tagged pipeline error, optionally wrapping a cause.
type Error struct {
	Kind    ErrorKind
	Message string
	Cause   error
}

func NewError(kind ErrorKind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

func Errorf(kind ErrorKind, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

func WrapError(kind ErrorKind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Cause: cause}
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// KindOf extracts the kind from err, or KindUnknown for untagged errors.
func KindOf(err error) ErrorKind {
	var tagged *Error
	if errors.As(err, &tagged) {
		return tagged.Kind
	}
	return KindUnknown
}

// IsKind reports whether err carries the given kind.
func IsKind(err error, kind ErrorKind) bool {
	return KindOf(err) == kind
}
