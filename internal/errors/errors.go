package errors

import (
	"errors"
	"fmt"
)

// ErrorType represents the type of error
type ErrorType string

const (
	ErrTypeConfig     ErrorType = "CONFIG"
	ErrTypeMalformed  ErrorType = "MALFORMED_ROW"
	ErrTypeCast       ErrorType = "CAST"
	ErrTypeColumn     ErrorType = "UNKNOWN_COLUMN"
	ErrTypeEvaluation ErrorType = "EVALUATION"
	ErrTypeIndex      ErrorType = "INDEX"
)

// ErrDivideByZero marks the arithmetic error class. Evaluation errors
// wrapping it are fatal to the in-progress pull instead of being skipped.
var ErrDivideByZero = errors.New("division by zero")

// ConfigError reports invalid construction parameters. It is raised at
// construction time and never recovered.
type ConfigError struct {
	Message string
}

// Error implements the error interface
func (e *ConfigError) Error() string {
	return fmt.Sprintf("[%s] %s", ErrTypeConfig, e.Message)
}

// Configf creates a ConfigError from a format string
func Configf(format string, args ...interface{}) *ConfigError {
	return &ConfigError{Message: fmt.Sprintf(format, args...)}
}

// MalformedRowError reports an input row that cannot be processed: it is
// truncated or carries more fields than the declared columns.
type MalformedRowError struct {
	Line   int
	Fields int
	Want   int
	Reason string
}

// Error implements the error interface
func (e *MalformedRowError) Error() string {
	return fmt.Sprintf("[%s] %s at line %d (fields=%d, want=%d)",
		ErrTypeMalformed, e.Reason, e.Line, e.Fields, e.Want)
}

// CastError reports a value that cannot be coerced to the type inferred for
// its column.
type CastError struct {
	Column string
	Value  string
	Target string
	Cause  error
}

// Error implements the error interface
func (e *CastError) Error() string {
	return fmt.Sprintf("[%s] cannot cast %q to %s for column %q",
		ErrTypeCast, e.Value, e.Target, e.Column)
}

// Unwrap allows errors.Is and errors.As to work with CastError
func (e *CastError) Unwrap() error {
	return e.Cause
}

// UnknownColumnError reports a reference to a column that exists in neither
// the base row nor the derived registry.
type UnknownColumnError struct {
	Column string
}

// Error implements the error interface
func (e *UnknownColumnError) Error() string {
	return fmt.Sprintf("[%s] unknown column %q", ErrTypeColumn, e.Column)
}

// DuplicateColumnError reports a derived column registered under a name
// already taken by a base column.
type DuplicateColumnError struct {
	Column string
}

// Error implements the error interface
func (e *DuplicateColumnError) Error() string {
	return fmt.Sprintf("[%s] column %q already exists", ErrTypeColumn, e.Column)
}

// IndexError reports a relative offset resolving outside the buffer
type IndexError struct {
	Index  int
	Length int
}

// Error implements the error interface
func (e *IndexError) Error() string {
	return fmt.Sprintf("[%s] position %d outside buffer of length %d",
		ErrTypeIndex, e.Index, e.Length)
}

// EvaluationError reports a failure inside a derived-column function
type EvaluationError struct {
	Column string
	Cause  error
}

// Error implements the error interface
func (e *EvaluationError) Error() string {
	return fmt.Sprintf("[%s] derived column %q: %v", ErrTypeEvaluation, e.Column, e.Cause)
}

// Unwrap allows errors.Is and errors.As to work with EvaluationError
func (e *EvaluationError) Unwrap() error {
	return e.Cause
}

// NewEvaluationError creates an evaluation error for a derived column
func NewEvaluationError(column string, cause error) *EvaluationError {
	return &EvaluationError{Column: column, Cause: cause}
}

// IsArithmetic reports whether err belongs to the division-by-zero class
func IsArithmetic(err error) bool {
	return errors.Is(err, ErrDivideByZero)
}

// IsConfig reports whether err is a configuration error
func IsConfig(err error) bool {
	var ce *ConfigError
	return errors.As(err, &ce)
}
