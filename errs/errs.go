// errs/errs.go
package errs

import (
	"errors"
	"fmt"
)

// Code classifies an action failure so the connection layer can surface it to
// the client as a structured, displayable payload instead of dropping the
// worker.
type Code string

const (
	CodeValidation    Code = "VALIDATION"
	CodeConflict      Code = "CONFLICT"
	CodeForbidden     Code = "FORBIDDEN"
	CodeNotFound      Code = "NOT_FOUND"
	CodeCapacity      Code = "CAPACITY"
	CodeStateConflict Code = "STATE_CONFLICT"
)

// Error carries a taxonomy code and a user-displayable message.
type Error struct {
	Code    Code   `json:"code"`
	Message string `json:"message"`
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// E builds a classified error.
func E(code Code, format string, args ...interface{}) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// CodeOf extracts the taxonomy code from err, or "" when the error is not a
// classified action failure (store/broker unavailability stays unclassified
// and fails the operation closed).
func CodeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// IsCode reports whether err carries the given code.
func IsCode(err error, code Code) bool {
	return CodeOf(err) == code
}
