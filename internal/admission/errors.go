// Package admission defines sentinel errors and error codes.
package admission

import "errors"

// ErrInvalidInput indicates validation failures.
var ErrInvalidInput = errors.New("invalid input")

// ErrConflict indicates a duplicate rule registration.
var ErrConflict = errors.New("conflict")

// ErrNotFound indicates missing resources.
var ErrNotFound = errors.New("not found")

// ErrorCode classifies errors for transport mapping.
type ErrorCode string

const (
	CodeInvalidInput ErrorCode = "INVALID_INPUT"
	CodeConflict     ErrorCode = "CONFLICT"
	CodeNotFound     ErrorCode = "NOT_FOUND"
	CodeUnauthorized ErrorCode = "UNAUTHORIZED"
	CodeInternal     ErrorCode = "INTERNAL"
)

type codedError struct {
	code ErrorCode
	msg  string
	err  error
}

func (e *codedError) Error() string {
	if e == nil {
		return ""
	}
	if e.err != nil && e.msg != "" {
		return e.msg + ": " + e.err.Error()
	}
	if e.err != nil {
		return e.err.Error()
	}
	return e.msg
}

func (e *codedError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.err
}

// Wrap attaches an error code to an error.
func Wrap(code ErrorCode, msg string, err error) error {
	return &codedError{code: code, msg: msg, err: err}
}

// CodeOf extracts the error code from an error chain.
func CodeOf(err error) ErrorCode {
	if err == nil {
		return ""
	}
	var coded *codedError
	if errors.As(err, &coded) {
		return coded.code
	}
	switch {
	case errors.Is(err, ErrInvalidInput):
		return CodeInvalidInput
	case errors.Is(err, ErrConflict):
		return CodeConflict
	case errors.Is(err, ErrNotFound):
		return CodeNotFound
	default:
		return CodeInternal
	}
}
