package core

import (
	"errors"
	"fmt"
)

// Domain errors - centralized error definitions
var (
	// Not found errors
	ErrNotFound         = errors.New("resource not found")
	ErrRunNotFound      = fmt.Errorf("%w: run", ErrNotFound)
	ErrArtifactNotFound = fmt.Errorf("%w: artifact", ErrNotFound)

	// Run-halting errors. Only these three stop a pipeline run.
	ErrContractViolation   = errors.New("stage contract violation")
	ErrStageFailed         = errors.New("stage failed")
	ErrResumeUnsatisfiable = errors.New("resume target unsatisfiable")

	// Configuration and manifest integrity
	ErrInvalidConfig    = errors.New("invalid configuration")
	ErrCorruptManifest  = errors.New("corrupt run manifest")
	ErrHashMismatch     = errors.New("hash mismatch")
	ErrNonDeterministic = errors.New("non-deterministic result")
)

// Error constructors with context
func NewNotFoundError(resource string, id string) error {
	return fmt.Errorf("%w: %s with id %s", ErrNotFound, resource, id)
}

func NewValidationError(field string, reason string) error {
	return fmt.Errorf("validation failed for %s: %s", field, reason)
}

// NewContractError reports a missing or malformed stage input or output.
func NewContractError(stage string, reason string) error {
	return fmt.Errorf("%w: stage %s: %s", ErrContractViolation, stage, reason)
}

// Error checking helpers
func IsNotFoundError(err error) bool {
	return errors.Is(err, ErrNotFound)
}

func IsContractViolation(err error) bool {
	return errors.Is(err, ErrContractViolation)
}

// IsFatal reports whether err is one of the conditions that halt a run.
func IsFatal(err error) bool {
	return errors.Is(err, ErrContractViolation) ||
		errors.Is(err, ErrStageFailed) ||
		errors.Is(err, ErrResumeUnsatisfiable)
}
