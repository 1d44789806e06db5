package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound signals a missing collection.
	ErrNotFound = errors.New("not found")
	// ErrObjectNotFound signals a missing object.
	ErrObjectNotFound = errors.New("object not found")
	// ErrValidation signals a caller contract violation detected before any I/O.
	ErrValidation = errors.New("validation failed")
	// ErrExportCancelled signals a cooperatively cancelled export.
	// Callers branch on this to render a neutral cancelled state.
	ErrExportCancelled = errors.New("export cancelled")
	// ErrFilterTooDeep signals a filter group nested beyond the depth bound.
	ErrFilterTooDeep = errors.New("filter group too deep")
	// ErrIteratorDone signals an exhausted collection iterator.
	ErrIteratorDone = errors.New("iterator done")
	// ErrEmbeddingProvider signals an upstream embedding API failure.
	ErrEmbeddingProvider = errors.New("embedding provider error")
)

// UnknownOperatorError wraps ErrValidation with the offending filter operator.
type UnknownOperatorError struct {
	Operator string
}

func (e *UnknownOperatorError) Error() string {
	return fmt.Sprintf("unknown filter operator %q", e.Operator)
}

func (e *UnknownOperatorError) Unwrap() error { return ErrValidation }

// NewUnknownOperator creates an unknown-operator error.
func NewUnknownOperator(operator string) error {
	return &UnknownOperatorError{Operator: operator}
}

// FilterBuildError wraps a predicate builder failure with the offending property path.
type FilterBuildError struct {
	Path  string
	Cause error
}

func (e *FilterBuildError) Error() string {
	return fmt.Sprintf("failed to build filter for path %q: %v", e.Path, e.Cause)
}

func (e *FilterBuildError) Unwrap() error { return e.Cause }

// NewFilterBuildError creates a filter build error for a property path.
func NewFilterBuildError(path string, cause error) error {
	return &FilterBuildError{Path: path, Cause: cause}
}

// TimeoutError rewrites a transport timeout into an actionable message.
type TimeoutError struct {
	Collection string
	Cause      error
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf(
		"export of %q timed out. Suggestions: narrow the export with a filter, "+
			"disable includeVectors, or increase the request timeout",
		e.Collection,
	)
}

func (e *TimeoutError) Unwrap() error { return e.Cause }

// NewTimeout creates a timeout error for a collection operation.
func NewTimeout(collection string, cause error) error {
	return &TimeoutError{Collection: collection, Cause: cause}
}
