// Package persistence provides standardized error types for persistence operations.
package persistence

import (
	"errors"
	"fmt"
)

// Standard persistence error types that all implementations should use.
var (
	// ErrInvestigationNotFound indicates an investigation was not found by the given identifier.
	ErrInvestigationNotFound = errors.New("investigation not found")

	// ErrInvestigationAlreadyExists indicates an investigation with the same identifier already exists.
	ErrInvestigationAlreadyExists = errors.New("investigation already exists")

	// ErrInvalidInvestigationStatus indicates an invalid investigation status was provided.
	ErrInvalidInvestigationStatus = errors.New("invalid investigation status")
)

// InvestigationError wraps investigation-related errors with additional context.
type InvestigationError struct {
	Op              string // Operation being performed (e.g., "GetByID", "Save", "Delete")
	InvestigationID string
	Err             error
}

func (e *InvestigationError) Error() string {
	return fmt.Sprintf("%s operation failed for investigation %s: %v", e.Op, e.InvestigationID, e.Err)
}

func (e *InvestigationError) Unwrap() error {
	return e.Err
}

// Is implements error comparison for investigation errors.
func (e *InvestigationError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// NewInvestigationError creates a new investigation error with context.
func NewInvestigationError(op, investigationID string, err error) *InvestigationError {
	return &InvestigationError{
		Op:              op,
		InvestigationID: investigationID,
		Err:             err,
	}
}

// IsInvestigationNotFound checks if an error indicates an investigation was not found.
func IsInvestigationNotFound(err error) bool {
	return errors.Is(err, ErrInvestigationNotFound)
}
