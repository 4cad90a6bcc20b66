package common

import (
	"errors"
	"fmt"
)

// Attempt errors - use errors.Is() to check
var (
	ErrMissingInput = errors.New("no file uploaded")
	ErrExtraction   = errors.New("extraction failed")
	ErrUnhandled    = errors.New("unhandled processing error")

	ErrValidation = errors.New("validation error")
)

// Kind classifies an attempt failure for rendering.
type Kind string

const (
	KindNone         Kind = ""
	KindMissingInput Kind = "missing_input"
	KindValidation   Kind = "validation"
	KindExtraction   Kind = "extraction"
	KindUnhandled    Kind = "unhandled"
)

// MissingInputError is returned when an attempt is triggered without a file.
type MissingInputError struct {
	Reason string
}

func (e MissingInputError) Error() string {
	if e.Reason == "" {
		return ErrMissingInput.Error()
	}
	return fmt.Sprintf("%s: %s", ErrMissingInput.Error(), e.Reason)
}

func (e MissingInputError) Is(target error) bool {
	return target == ErrMissingInput
}

// ExtractionError wraps any failure of the hosted model call.
type ExtractionError struct {
	Provider string
	Err      error
}

func (e *ExtractionError) Error() string {
	if e.Provider == "" {
		return e.Err.Error()
	}
	return fmt.Sprintf("%s: %v", e.Provider, e.Err)
}

func (e *ExtractionError) Unwrap() error {
	return e.Err
}

func (e *ExtractionError) Is(target error) bool {
	return target == ErrExtraction
}

// UnhandledProcessingError is anything else that broke an attempt,
// including recovered panics.
type UnhandledProcessingError struct {
	Err error
}

func (e *UnhandledProcessingError) Error() string {
	return e.Err.Error()
}

func (e *UnhandledProcessingError) Unwrap() error {
	return e.Err
}

func (e *UnhandledProcessingError) Is(target error) bool {
	return target == ErrUnhandled
}

// ValidationError represents a validation error with field details
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// Is implements errors.Is for ValidationError
func (e ValidationError) Is(target error) bool {
	return target == ErrValidation
}

// WrapExtraction wraps a provider error as an extraction error.
// Errors that already are extraction errors are returned as is.
func WrapExtraction(provider string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrExtraction) {
		return err
	}
	return &ExtractionError{Provider: provider, Err: err}
}

// WrapUnhandled wraps an error as an unhandled processing error unless it
// already carries one of the known kinds.
func WrapUnhandled(err error) error {
	if err == nil {
		return nil
	}
	if KindOf(err) != KindUnhandled {
		return err
	}
	if errors.Is(err, ErrUnhandled) {
		return err
	}
	return &UnhandledProcessingError{Err: err}
}

// KindOf maps any error to one of the attempt failure kinds.
func KindOf(err error) Kind {
	switch {
	case err == nil:
		return KindNone
	case errors.Is(err, ErrMissingInput):
		return KindMissingInput
	case errors.Is(err, ErrValidation):
		return KindValidation
	case errors.Is(err, ErrExtraction):
		return KindExtraction
	default:
		return KindUnhandled
	}
}

// UserMessage renders an error as the inline message shown on the page.
func UserMessage(err error) string {
	switch KindOf(err) {
	case KindNone:
		return ""
	case KindMissingInput:
		return "Error processing file: " + err.Error()
	case KindValidation:
		return "Invalid upload: " + err.Error()
	case KindExtraction:
		return "Error with extraction: " + err.Error()
	default:
		return "Failed to process invoice: " + err.Error()
	}
}

// IsMissingInput checks if error is a missing input error
func IsMissingInput(err error) bool {
	return errors.Is(err, ErrMissingInput)
}

// IsExtraction checks if error is an extraction error
func IsExtraction(err error) bool {
	return errors.Is(err, ErrExtraction)
}
