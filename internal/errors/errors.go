// Package errors holds the error taxonomy shared by every satmon component.
//
// This file provides:
// - External error codes (stable, used in API error bodies)
// - Sentinel errors for all error conditions
// - Error category checking functions
// - ErrorToCode and ErrorToHTTPStatus mapping
// - Error constructors that carry field/value context
package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// ============================================================================
// External error codes - used in API error bodies
// ============================================================================

const (
	CodeUnknown           = "unknown"
	CodeNotFound          = "not_found"
	CodeDuplicateName     = "duplicate_name"
	CodeInvalidRange      = "invalid_range"
	CodeOutOfRange        = "out_of_range"
	CodeInvalidTransition = "invalid_transition"
	CodeSatelliteDisabled = "satellite_disabled"
	CodeSatellitePending  = "satellite_pending"
	CodeInvalidRequest    = "invalid_request"
	CodeInUse             = "in_use"
	CodeInternal          = "internal"
)

// ============================================================================
// Sentinel errors
// ============================================================================

var (
	// Not found errors
	ErrNotFound          = errors.New("not found")
	ErrSatelliteNotFound = errors.New("satellite not found")
	ErrUnitNotFound      = errors.New("unit not found")
	ErrParameterNotFound = errors.New("parameter not found")
	ErrSeriesNotFound    = errors.New("series not found")

	// Uniqueness
	ErrDuplicateName = errors.New("duplicate name")

	// Telemetry errors
	ErrInvalidRange = errors.New("invalid time range")
	ErrOutOfRange   = errors.New("value out of range")

	// State errors
	ErrInvalidTransition = errors.New("invalid state transition")
	ErrSatelliteDisabled = errors.New("satellite is disabled")
	ErrSatellitePending  = errors.New("satellite is not activated")
	ErrInUse             = errors.New("in use")

	// Validation errors
	ErrInvalidName          = errors.New("invalid name")
	ErrInvalidParameterType = errors.New("invalid parameter type")
	ErrInvalidConfig        = errors.New("invalid configuration")
	ErrMissingField         = errors.New("missing required field")

	// Internal errors
	ErrInternal = errors.New("internal error")
	ErrDatabase = errors.New("database error")
	ErrJournal  = errors.New("journal error")
)

// ============================================================================
// Helper functions for error checking
// ============================================================================

// Is is a convenience wrapper for errors.Is
var Is = errors.Is

// As is a convenience wrapper for errors.As
var As = errors.As

// New is a convenience wrapper for errors.New
var New = errors.New

// IsNotFound returns true if err is a not-found error at any hierarchy level.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound) ||
		errors.Is(err, ErrSatelliteNotFound) ||
		errors.Is(err, ErrUnitNotFound) ||
		errors.Is(err, ErrParameterNotFound) ||
		errors.Is(err, ErrSeriesNotFound)
}

// IsValidation returns true if err is a validation error.
func IsValidation(err error) bool {
	return errors.Is(err, ErrInvalidName) ||
		errors.Is(err, ErrInvalidParameterType) ||
		errors.Is(err, ErrInvalidConfig) ||
		errors.Is(err, ErrMissingField)
}

// IsStateError returns true if err is a lifecycle-related error.
func IsStateError(err error) bool {
	return errors.Is(err, ErrInvalidTransition) ||
		errors.Is(err, ErrSatelliteDisabled) ||
		errors.Is(err, ErrSatellitePending) ||
		errors.Is(err, ErrInUse)
}

// ============================================================================
// Error to external code mapping
// ============================================================================

// ErrorToCode maps an error to its stable external code.
func ErrorToCode(err error) string {
	if err == nil {
		return CodeUnknown
	}

	switch {
	case IsNotFound(err):
		return CodeNotFound
	case Is(err, ErrDuplicateName):
		return CodeDuplicateName
	case Is(err, ErrInvalidRange):
		return CodeInvalidRange
	case Is(err, ErrOutOfRange):
		return CodeOutOfRange
	case Is(err, ErrInvalidTransition):
		return CodeInvalidTransition
	case Is(err, ErrSatelliteDisabled):
		return CodeSatelliteDisabled
	case Is(err, ErrSatellitePending):
		return CodeSatellitePending
	case Is(err, ErrInUse):
		return CodeInUse
	case IsValidation(err):
		return CodeInvalidRequest
	default:
		return CodeInternal
	}
}

// ErrorToHTTPStatus maps an error to the HTTP status used by the API layer.
func ErrorToHTTPStatus(err error) int {
	switch ErrorToCode(err) {
	case CodeNotFound:
		return http.StatusNotFound
	case CodeDuplicateName, CodeInvalidTransition, CodeInUse, CodeSatellitePending:
		return http.StatusConflict
	case CodeSatelliteDisabled:
		return http.StatusLocked
	case CodeInvalidRange, CodeInvalidRequest:
		return http.StatusBadRequest
	case CodeOutOfRange:
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

// ============================================================================
// Error wrapping utilities
// ============================================================================

// Wrap wraps an error with additional context.
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

// ============================================================================
// Error constructors with context
// ============================================================================

// NewNotFound creates a not-found error for the given entity kind.
// kind selects the sentinel: "satellite", "unit", "parameter", "series".
func NewNotFound(kind, id string) error {
	sentinel := ErrNotFound
	switch kind {
	case "satellite":
		sentinel = ErrSatelliteNotFound
	case "unit":
		sentinel = ErrUnitNotFound
	case "parameter":
		sentinel = ErrParameterNotFound
	case "series":
		sentinel = ErrSeriesNotFound
	}
	return fmt.Errorf("%s '%s': %w", kind, id, sentinel)
}

// NewDuplicateName creates a uniqueness violation error within a parent scope.
func NewDuplicateName(kind, name, scope string) error {
	if scope == "" {
		return fmt.Errorf("%s name '%s': %w", kind, name, ErrDuplicateName)
	}
	return fmt.Errorf("%s name '%s' in %s: %w", kind, name, scope, ErrDuplicateName)
}

// NewOutOfRange creates an out-of-range error naming the offending value and
// the allowed range so callers can self-correct.
func NewOutOfRange(parameterID string, value, min, max float64) error {
	return fmt.Errorf("parameter '%s' value %g outside [%g, %g]: %w",
		parameterID, value, min, max, ErrOutOfRange)
}

// NewInvalidRange creates an invalid time range error.
func NewInvalidRange(reason string) error {
	return fmt.Errorf("%s: %w", reason, ErrInvalidRange)
}

// NewInvalidTransition creates a lifecycle transition error.
func NewInvalidTransition(kind, id, from, action string) error {
	return fmt.Errorf("%s '%s' is %s, cannot %s: %w", kind, id, from, action, ErrInvalidTransition)
}

// NewSatelliteDisabled creates an error for mutations under a disabled satellite.
func NewSatelliteDisabled(id string) error {
	return fmt.Errorf("satellite '%s': %w", id, ErrSatelliteDisabled)
}

// NewSatellitePending creates an error for telemetry sent to a satellite
// that has not been activated.
func NewSatellitePending(id string) error {
	return fmt.Errorf("satellite '%s': %w", id, ErrSatellitePending)
}

// NewValidation creates a validation error with context.
func NewValidation(field, reason string) error {
	return fmt.Errorf("invalid %s: %s: %w", field, reason, ErrInvalidConfig)
}

// NewMissingField creates a missing field error.
func NewMissingField(field string) error {
	return fmt.Errorf("%s: %w", field, ErrMissingField)
}

// NewInvalidValue creates an invalid value error.
func NewInvalidValue(field string, value interface{}, reason string) error {
	return fmt.Errorf("invalid %s '%v': %s: %w", field, value, reason, ErrInvalidConfig)
}

// ============================================================================
// Validation Errors Collection
// ============================================================================

// ValidationErrors collects multiple validation errors.
type ValidationErrors struct {
	Errors []error
}

// NewValidationErrors creates a new ValidationErrors collector.
func NewValidationErrors() *ValidationErrors {
	return &ValidationErrors{}
}

// Add adds an error to the collection.
func (v *ValidationErrors) Add(err error) {
	if err != nil {
		v.Errors = append(v.Errors, err)
	}
}

// AddField adds a field validation error.
func (v *ValidationErrors) AddField(field, reason string) {
	v.Errors = append(v.Errors, NewValidation(field, reason))
}

// AddMissing adds a missing field error.
func (v *ValidationErrors) AddMissing(field string) {
	v.Errors = append(v.Errors, NewMissingField(field))
}

// HasErrors returns true if there are any errors.
func (v *ValidationErrors) HasErrors() bool {
	return len(v.Errors) > 0
}

// Error implements the error interface.
func (v *ValidationErrors) Error() string {
	if len(v.Errors) == 0 {
		return ""
	}
	if len(v.Errors) == 1 {
		return v.Errors[0].Error()
	}

	msg := fmt.Sprintf("validation failed with %d errors:", len(v.Errors))
	for _, err := range v.Errors {
		msg += "\n  - " + err.Error()
	}
	return msg
}

// Err returns nil if no errors, otherwise returns the ValidationErrors.
func (v *ValidationErrors) Err() error {
	if len(v.Errors) == 0 {
		return nil
	}
	return v
}

// Unwrap returns the first error for errors.Is/As support.
func (v *ValidationErrors) Unwrap() error {
	if len(v.Errors) == 0 {
		return nil
	}
	return v.Errors[0]
}
