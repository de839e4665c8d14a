package pipeerr

import "fmt"

// Error is a structured pipeline error with a machine-readable kind, a
// human-readable message, and an optional wrapped cause.
type Error struct {
	kind    Kind
	message string
	cause   error
}

// New creates an Error without a cause.
func New(kind Kind, message string) *Error {
	return &Error{kind: kind, message: message}
}

// Wrap creates an Error that wraps a cause for logging/unwrapping.
func Wrap(kind Kind, message string, cause error) *Error {
	return &Error{kind: kind, message: message, cause: cause}
}

// Newf creates an Error with a formatted message.
func Newf(kind Kind, format string, args ...any) *Error {
	return &Error{kind: kind, message: fmt.Sprintf(format, args...)}
}

// Error implements the error interface. Includes the cause for log output.
func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.kind, e.message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.kind, e.message)
}

// Unwrap returns the wrapped cause for errors.Is/errors.As chaining.
func (e *Error) Unwrap() error { return e.cause }

// Kind returns the machine-readable classification.
func (e *Error) Kind() Kind { return e.kind }

// Message returns the human-readable message.
func (e *Error) Message() string { return e.message }
