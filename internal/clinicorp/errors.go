package clinicorp

import (
	"errors"
	"fmt"
)

// Code identifies a proxy failure category. The set is closed: callers branch
// on these values programmatically.
type Code string

const (
	CodeConfigMissing      Code = "CONFIG_MISSING"
	CodeAuthRequired       Code = "AUTH_REQUIRED"
	CodeInvalidToken       Code = "INVALID_TOKEN"
	CodeMissingPath        Code = "MISSING_PATH"
	CodeMissingParameters  Code = "MISSING_PARAMETERS"
	CodeCredentialsMissing Code = "CREDENTIALS_MISSING"
	CodeUserIDRequired     Code = "USER_ID_REQUIRED"
	CodeRequestTimeout     Code = "REQUEST_TIMEOUT"
	CodeConnectionRefused  Code = "CONNECTION_REFUSED"
	CodeConnectionTimeout  Code = "CONNECTION_TIMEOUT"
	CodeRequestFailed      Code = "REQUEST_FAILED"
	CodeInvalidCodeLink    Code = "INVALID_CODE_LINK"
	CodeInternal           Code = "INTERNAL_ERROR"
)

// Error carries a human-readable message suitable for direct display plus the
// machine-readable code and an HTTP-equivalent status.
type Error struct {
	Code    Code
	Status  int
	Message string
	Details any
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// NewError builds a proxy error with the HTTP status it maps to.
func NewError(code Code, status int, message string) *Error {
	return &Error{Code: code, Status: status, Message: message}
}

// WithDetails attaches a diagnostic payload and returns the error for chaining.
func (e *Error) WithDetails(details any) *Error {
	e.Details = details
	return e
}

// AsProxyError unwraps err into *Error when possible.
func AsProxyError(err error) (*Error, bool) {
	var pe *Error
	if errors.As(err, &pe) {
		return pe, true
	}
	return nil, false
}
