package ir

import (
	"errors"
	"fmt"
)

// ValidationError reports a malformed block or expression.
//
// Validation errors are raised at construction time and always point at a
// producer bug: either the front end emitted bad IR, or a lowering pass built
// an invalid value.
type ValidationError struct {
	// Code is a stable identifier (E1xx).
	Code string

	// Field names the offending constructor argument, if any.
	Field string

	// Message is a human-readable description.
	Message string
}

// Validation error codes.
const (
	CodeUnsafeString      = "E101"
	CodeReservedName      = "E102"
	CodeEmptyCollection   = "E103"
	CodeInvalidOperator   = "E104"
	CodeInvalidLocation   = "E105"
	CodeInvalidType       = "E106"
	CodeInvalidArgument   = "E107"
	CodeInvalidDirection  = "E108"
	CodeInvalidDepth      = "E109"
	CodeInvalidVariable   = "E110"
	CodeUnsupportedValue  = "E111"
	CodeDuplicateLocation = "E112"
)

func (e *ValidationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("%s: %s: %s", e.Code, e.Field, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func validationErrorf(code, field, format string, args ...any) *ValidationError {
	return &ValidationError{Code: code, Field: field, Message: fmt.Sprintf(format, args...)}
}

// CompilationError reports a query whose semantics cannot be represented by
// the selected backend.
type CompilationError struct {
	Code    string
	Message string
}

// Compilation error codes.
const (
	CodeUnsupportedMetaField = "E201"
	CodeUnserializableValue  = "E202"
	CodeUnsupportedFeature   = "E203"
	CodeUnknownType          = "E204"
	CodeUnknownEdge          = "E205"
)

func (e *CompilationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// CompilationErrorf builds a CompilationError with a formatted message.
func CompilationErrorf(code, format string, args ...any) *CompilationError {
	return &CompilationError{Code: code, Message: fmt.Sprintf(format, args...)}
}

// CodeAssertion is the code carried by every AssertionError.
const CodeAssertion = "E300"

// AssertionError reports a violated internal invariant: the pipeline itself
// is defective and must not produce output.
type AssertionError struct {
	// Pass names the check or lowering step that detected the problem.
	Pass    string
	Message string
}

func (e *AssertionError) Error() string {
	if e.Pass != "" {
		return fmt.Sprintf("%s: %s: %s", CodeAssertion, e.Pass, e.Message)
	}
	return fmt.Sprintf("%s: %s", CodeAssertion, e.Message)
}

// Assertf builds an AssertionError for the named pass.
func Assertf(pass, format string, args ...any) *AssertionError {
	return &AssertionError{Pass: pass, Message: fmt.Sprintf(format, args...)}
}

// ErrNotImplemented marks a backend support gap, as opposed to an invalid query.
var ErrNotImplemented = errors.New("not implemented")

// NotImplementedf wraps ErrNotImplemented with context.
func NotImplementedf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrNotImplemented, fmt.Sprintf(format, args...))
}

// IsValidationError checks if err is a ValidationError.
func IsValidationError(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// IsCompilationError checks if err is a CompilationError.
func IsCompilationError(err error) bool {
	var ce *CompilationError
	return errors.As(err, &ce)
}

// IsAssertionError checks if err is an AssertionError.
func IsAssertionError(err error) bool {
	var ae *AssertionError
	return errors.As(err, &ae)
}

// IsNotImplemented checks if err marks an unsupported backend feature.
func IsNotImplemented(err error) bool {
	return errors.Is(err, ErrNotImplemented)
}
