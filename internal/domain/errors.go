package domain

import (
	"errors"
	"fmt"
)

// Domain errors surfaced by the store, manager and engine. Callers branch
// with errors.Is; wrapped variants carry context.

var (
	// ErrTemplateNotFound indicates the target template does not exist.
	ErrTemplateNotFound = errors.New("template not found")

	// ErrTemplateLimitExceeded indicates the creation quota is exhausted.
	ErrTemplateLimitExceeded = errors.New("template limit exceeded")

	// ErrScheduling indicates an illegal schedule configuration or a next
	// firing past the schedule's end date.
	ErrScheduling = errors.New("scheduling error")

	// ErrStorage indicates the durable backend failed after retries.
	ErrStorage = errors.New("storage error")

	// ErrInvalidData indicates a malformed template payload.
	ErrInvalidData = errors.New("invalid template data")

	// ErrInvalidName indicates a malformed template name.
	ErrInvalidName = errors.New("invalid template name")

	// ErrInvalidRequest indicates a malformed caller request.
	ErrInvalidRequest = errors.New("invalid request")
)

// ValidationError aggregates field-level validation failures. It unwraps to
// one of the invalid-input sentinels so callers can branch on the kind.
type ValidationError struct {
	Kind   error // ErrInvalidData, ErrInvalidName or ErrScheduling
	Fields []FieldError
}

// FieldError is a single validation failure.
type FieldError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if len(e.Fields) == 0 {
		return e.Kind.Error()
	}
	first := e.Fields[0]
	if len(e.Fields) == 1 {
		return fmt.Sprintf("%v: %s: %s", e.Kind, first.Field, first.Message)
	}
	return fmt.Sprintf("%v: %s: %s (and %d more)", e.Kind, first.Field, first.Message, len(e.Fields)-1)
}

func (e *ValidationError) Unwrap() error {
	return e.Kind
}
