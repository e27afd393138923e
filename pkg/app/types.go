package app

import (
	"errors"
	"fmt"

	"github.com/deploymenttheory/go-rawimage/internal/abort"
	"github.com/deploymenttheory/go-rawimage/internal/types"
)

// CommonError represents application-level errors
type CommonError struct {
	Code    string
	Message string
	Cause   error
}

func (e *CommonError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *CommonError) Unwrap() error {
	return e.Cause
}

// Common error codes
const (
	ErrCodeInvalidInput = "INVALID_INPUT"
	ErrCodeGeometry     = "GEOMETRY"
	ErrCodeDeviceAccess = "DEVICE_ACCESS"
	ErrCodeWriteFailed  = "WRITE_FAILED"
	ErrCodeUserAbort    = "USER_ABORT"
	ErrCodeDeclined     = "DECLINED"
)

// Process exit statuses
const (
	ExitOK       = 0
	ExitFailure  = 1
	ExitDeclined = 2
	ExitAborted  = abort.ExitCode
)

// NewError creates a new CommonError
func NewError(code, message string, cause error) *CommonError {
	return &CommonError{
		Code:    code,
		Message: message,
		Cause:   cause,
	}
}

// Code returns the application error code carried by err, or "" when err
// is not a CommonError.
func Code(err error) string {
	var ce *CommonError
	if errors.As(err, &ce) {
		return ce.Code
	}
	return ""
}

// ExitCode maps an error returned by a handler to a process exit status.
func ExitCode(err error) int {
	if err == nil {
		return ExitOK
	}
	switch Code(err) {
	case ErrCodeDeclined:
		return ExitDeclined
	case ErrCodeUserAbort:
		return ExitAborted
	}
	if errors.Is(err, types.ErrAborted) {
		return ExitAborted
	}
	return ExitFailure
}
