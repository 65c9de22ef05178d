package ingest

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel kinds. Every typed error below matches exactly one of them with
// errors.Is, so callers can branch on the kind without knowing the details.
var (
	ErrInput            = errors.New("input error")
	ErrValidation       = errors.New("validation error")
	ErrBackendTransient = errors.New("backend transient error")
	ErrExhausted        = errors.New("embedding exhausted")
)

// InputError reports a document or request the pipeline cannot work with:
// unreadable or text-less PDFs, empty metadata, bad document ids.
type InputError struct {
	Reason string
	Err    error
}

func (e *InputError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Reason, e.Err)
	}
	return e.Reason
}

func (e *InputError) Unwrap() error        { return e.Err }
func (e *InputError) Is(target error) bool { return target == ErrInput }

// ValidationError reports data that violates an ingest invariant.
type ValidationError struct {
	Reason string
	// Missing lists required metadata fields that are empty, when that is
	// the cause.
	Missing []string
	Err     error
}

func (e *ValidationError) Error() string {
	msg := e.Reason
	if len(e.Missing) > 0 {
		msg += " [" + strings.Join(e.Missing, ", ") + "]"
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *ValidationError) Unwrap() error        { return e.Err }
func (e *ValidationError) Is(target error) bool { return target == ErrValidation }

// BackendTransientError wraps a failure of an external backend (vector
// store, state store, embedding endpoint) that may succeed on retry.
type BackendTransientError struct {
	Backend string
	Err     error
}

func (e *BackendTransientError) Error() string {
	return fmt.Sprintf("%s: %v", e.Backend, e.Err)
}

func (e *BackendTransientError) Unwrap() error        { return e.Err }
func (e *BackendTransientError) Is(target error) bool { return target == ErrBackendTransient }

// ExhaustionError is returned when every embedding alias and the child
// averaging fallback produced no vector.
type ExhaustionError struct {
	Tried []string
}

func (e *ExhaustionError) Error() string {
	return fmt.Sprintf("no embedding produced after trying [%s] and child averaging", strings.Join(e.Tried, ", "))
}

func (e *ExhaustionError) Is(target error) bool { return target == ErrExhausted }

// resultLabel maps an Ingest error onto the metrics result label.
func resultLabel(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrInput):
		return "input_error"
	case errors.Is(err, ErrValidation):
		return "validation_error"
	case errors.Is(err, ErrExhausted):
		return "exhausted"
	case errors.Is(err, ErrBackendTransient):
		return "backend_error"
	default:
		return "error"
	}
}
