package errors

import (
	stderrors "errors"
	"fmt"

	"hypoforge/domain/core"
)

// AppError represents a structured application error
type AppError struct {
	Code    string
	Message string
	Cause   error
}

func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Cause
}

// New creates a new AppError
func New(code, message string) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
	}
}

// Wrap wraps an error with additional context
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	if appErr, ok := err.(*AppError); ok {
		return &AppError{
			Code:    appErr.Code,
			Message: message,
			Cause:   appErr,
		}
	}
	return &AppError{
		Code:    CodeInternalError,
		Message: message,
		Cause:   err,
	}
}

// Wrapf wraps an error with formatted additional context
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return Wrap(err, fmt.Sprintf(format, args...))
}

// GetCode returns the outermost AppError code in the chain, otherwise "UNKNOWN"
func GetCode(err error) string {
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr.Code
	}
	return "UNKNOWN"
}

// Predefined error codes
const (
	CodeConfigInvalid = "CONFIG_INVALID"
	CodeDatabaseError = "DATABASE_ERROR"
	CodeInternalError = "INTERNAL_ERROR"
	CodeStorageError  = "STORAGE_ERROR"
	CodeInvalidInput  = "INVALID_INPUT"

	// Run-halting pipeline errors
	CodeContractViolation   = "CONTRACT_VIOLATION"
	CodeStageFailed         = "STAGE_FAILED"
	CodeResumeUnsatisfiable = "RESUME_UNSATISFIABLE"
)

// Common error constructors
func ConfigInvalid(message string) *AppError {
	return New(CodeConfigInvalid, message)
}

func DatabaseError(message string) *AppError {
	return New(CodeDatabaseError, message)
}

func StorageError(op string, cause error) *AppError {
	return &AppError{
		Code:    CodeStorageError,
		Message: fmt.Sprintf("artifact store: %s", op),
		Cause:   cause,
	}
}

func InvalidInput(message string) *AppError {
	return New(CodeInvalidInput, message)
}

// StageError wraps a run-halting failure of stage. The code is derived from
// the domain sentinel in cause.
func StageError(stage string, cause error) *AppError {
	code := CodeInternalError
	switch {
	case stderrors.Is(cause, core.ErrContractViolation):
		code = CodeContractViolation
	case stderrors.Is(cause, core.ErrStageFailed):
		code = CodeStageFailed
	case stderrors.Is(cause, core.ErrResumeUnsatisfiable):
		code = CodeResumeUnsatisfiable
	}
	return &AppError{
		Code:    code,
		Message: fmt.Sprintf("stage %s", stage),
		Cause:   cause,
	}
}

// ResumeUnsatisfiable reports a resume target whose prerequisites never completed.
func ResumeUnsatisfiable(cause error) *AppError {
	return &AppError{
		Code:    CodeResumeUnsatisfiable,
		Message: "cannot resume run",
		Cause:   cause,
	}
}
