package model

import (
	"errors"
	"fmt"
)

// ErrorCode represents a structured API error code.
type ErrorCode string

const (
	ErrValidation ErrorCode = "VALIDATION_ERROR"
	ErrNotFound   ErrorCode = "NOT_FOUND"
	ErrConflict   ErrorCode = "CONFLICT"
	ErrInternal   ErrorCode = "INTERNAL_ERROR"
)

// Error kinds raised by the decision engine. Callers match them with errors.Is.
var (
	// ErrConfigurationMissing means no engine config has been stored yet.
	ErrConfigurationMissing = errors.New("engine configuration missing")

	// ErrNoEligibleSlot means no enabled slot is active on the date with at
	// least one enabled allowed template.
	ErrNoEligibleSlot = errors.New("no eligible time slot")

	// ErrEmptyCandidateSet means selection was attempted over zero templates.
	ErrEmptyCandidateSet = errors.New("empty candidate set")

	// ErrPlanningSkipped wraps the reason a date was left unplanned.
	ErrPlanningSkipped = errors.New("planning skipped")

	// ErrGenerationSubmission wraps a failed content-generation request.
	ErrGenerationSubmission = errors.New("generation submission failed")

	// ErrUnknownPost means feedback arrived for a post with no performance record.
	ErrUnknownPost = errors.New("unknown post")

	// ErrDuplicateSchedule is returned by the store when an entry for the
	// same schedule date already exists.
	ErrDuplicateSchedule = errors.New("schedule entry already exists for date")

	// ErrScheduleConflict means a manual schedule collided with an existing entry
	// and the conflict policy refused it.
	ErrScheduleConflict = errors.New("schedule conflict")
)

// APIError is a structured error returned by the postpilot API.
type APIError struct {
	Code    ErrorCode    `json:"code"`
	Message string       `json:"message"`
	Details []FieldError `json:"details,omitempty"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// FieldError describes a validation error on a specific field.
type FieldError struct {
	Field   string `json:"field,omitempty"`
	Message string `json:"message"`
}

// NewValidationError creates an APIError with validation details.
func NewValidationError(msg string, details ...FieldError) *APIError {
	return &APIError{Code: ErrValidation, Message: msg, Details: details}
}

// NewNotFoundError creates a NOT_FOUND APIError.
func NewNotFoundError(resource, id string) *APIError {
	return &APIError{
		Code:    ErrNotFound,
		Message: fmt.Sprintf("%s '%s' not found", resource, id),
	}
}

// InvalidTransitionError is returned when a state transition is invalid.
type InvalidTransitionError struct {
	Entity string
	ID     string
	From   string
	To     string
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("invalid %s state transition: %s → %s (entity %s)", e.Entity, e.From, e.To, e.ID)
}
