// Package errors provides custom error types for domain-specific errors.
package errors

import (
	"errors"
	"fmt"
)

// Standard sentinel errors
var (
	ErrInvalidEntryValue  = errors.New("invalid entry value")
	ErrInvalidOpinion     = errors.New("invalid opinion")
	ErrOutcomeUnavailable = errors.New("outcome unavailable")
	ErrPredictionNotFound = errors.New("prediction not found")
	ErrPredictionExists   = errors.New("prediction already recorded")
	ErrCorruptState       = errors.New("persisted state is corrupt")
	ErrConfigInvalid      = errors.New("invalid configuration")
	ErrDatabaseError      = errors.New("database error")
	ErrUnknownProducer    = errors.New("unknown producer")
	ErrInputValidation    = errors.New("input validation failed")
)

// Reason categories used in machine-readable failure reports.
const (
	CategoryValidation = "validation"
	CategoryFetch      = "fetch"
	CategoryStore      = "store"
	CategoryConfig     = "config"
	CategoryInternal   = "internal"
)

// ValidationError represents a validation error.
type ValidationError struct {
	Field   string
	Value   interface{}
	Message string
	Err     error
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error: %s (%v): %s", e.Field, e.Value, e.Message)
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}

// NewValidationError creates a new ValidationError.
func NewValidationError(field string, value interface{}, message string, err error) *ValidationError {
	return &ValidationError{
		Field:   field,
		Value:   value,
		Message: message,
		Err:     err,
	}
}

// DataError represents a failure to obtain market data for an instrument.
type DataError struct {
	Source     string
	Instrument string
	Message    string
	Err        error
}

func (e *DataError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("data error [%s] %s: %s: %v", e.Source, e.Instrument, e.Message, e.Err)
	}
	return fmt.Sprintf("data error [%s] %s: %s", e.Source, e.Instrument, e.Message)
}

func (e *DataError) Unwrap() error {
	return e.Err
}

// NewDataError creates a new DataError.
func NewDataError(source, instrument, message string, err error) *DataError {
	return &DataError{
		Source:     source,
		Instrument: instrument,
		Message:    message,
		Err:        err,
	}
}

// StoreError represents a persistence failure.
type StoreError struct {
	Backend   string
	Operation string
	Err       error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("store error [%s] %s: %v", e.Backend, e.Operation, e.Err)
}

func (e *StoreError) Unwrap() error {
	return e.Err
}

// NewStoreError creates a new StoreError.
func NewStoreError(backend, operation string, err error) *StoreError {
	return &StoreError{
		Backend:   backend,
		Operation: operation,
		Err:       err,
	}
}

// Reason is the structured form of a user-visible failure.
type Reason struct {
	Category string `json:"category"`
	Message  string `json:"message"`
}

// ReasonOf classifies err into a Reason.
func ReasonOf(err error) Reason {
	if err == nil {
		return Reason{}
	}

	var (
		validation *ValidationError
		data       *DataError
		store      *StoreError
	)
	switch {
	case errors.As(err, &validation), errors.Is(err, ErrInputValidation), errors.Is(err, ErrInvalidOpinion):
		return Reason{Category: CategoryValidation, Message: err.Error()}
	case errors.As(err, &data), errors.Is(err, ErrOutcomeUnavailable):
		return Reason{Category: CategoryFetch, Message: err.Error()}
	case errors.As(err, &store), errors.Is(err, ErrCorruptState), errors.Is(err, ErrDatabaseError),
		errors.Is(err, ErrPredictionExists), errors.Is(err, ErrPredictionNotFound):
		return Reason{Category: CategoryStore, Message: err.Error()}
	case errors.Is(err, ErrConfigInvalid):
		return Reason{Category: CategoryConfig, Message: err.Error()}
	}
	return Reason{Category: CategoryInternal, Message: err.Error()}
}

// Wrap wraps an error with additional context.
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

// Wrapf wraps an error with formatted context.
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), err)
}

// Is reports whether any error in err's chain matches target.
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As finds the first error in err's chain that matches target.
func As(err error, target interface{}) bool {
	return errors.As(err, target)
}
