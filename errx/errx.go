package errx

import (
	"errors"
	"fmt"
)

// Code represents standardized error codes for block storage operations
type Code string

const (
	// CodeInvalidState means the operation is not legal in the current
	// lifecycle state. Always a caller bug, never worth retrying.
	CodeInvalidState Code = "invalid_state"

	// CodeNotFound means the block id is unknown or unreachable.
	CodeNotFound Code = "not_found"

	// CodeAlreadyExists means an id collision on creation or a duplicate
	// repository initialization.
	CodeAlreadyExists Code = "already_exists"

	// CodeOutOfRange means a read past the end of a block.
	CodeOutOfRange Code = "out_of_range"

	// CodeIO means the underlying storage primitive failed. The caller may
	// retry the whole operation from scratch but must not assume partial
	// progress was preserved.
	CodeIO Code = "io_error"

	// CodeCorruptState means repository metadata was inconsistent on load.
	// Fatal to the manager instance.
	CodeCorruptState Code = "corrupt_state"
)

// Error is a standardized block storage error
type Error struct {
	Code    Code
	Message string
	Err     error
}

// Error implements the error interface
func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap exposes the underlying cause to errors.Is/errors.As chains
func (e *Error) Unwrap() error { return e.Err }

// New creates a new Error and returns it as error interface
func New(code Code, message string) error {
	return &Error{Code: code, Message: message}
}

// Newf is New with fmt.Sprintf formatting
func Newf(code Code, format string, args ...interface{}) error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap attaches a code and message to an underlying cause
func Wrap(code Code, message string, err error) error {
	return &Error{Code: code, Message: message, Err: err}
}

// Wrapf is Wrap with fmt.Sprintf formatting
func Wrapf(code Code, err error, format string, args ...interface{}) error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...), Err: err}
}

// CodeOf extracts the storage error code from err, unwrapping as needed.
// Returns the empty Code for nil and for foreign errors.
func CodeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

func hasCode(err error, code Code) bool {
	return CodeOf(err) == code
}

func IsInvalidState(err error) bool  { return hasCode(err, CodeInvalidState) }
func IsNotFound(err error) bool      { return hasCode(err, CodeNotFound) }
func IsAlreadyExists(err error) bool { return hasCode(err, CodeAlreadyExists) }
func IsOutOfRange(err error) bool    { return hasCode(err, CodeOutOfRange) }
func IsIO(err error) bool            { return hasCode(err, CodeIO) }
func IsCorruptState(err error) bool  { return hasCode(err, CodeCorruptState) }
