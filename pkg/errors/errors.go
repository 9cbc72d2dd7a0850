// Package errors defines the sentinel errors shared by the indexer and the
// searcher, and maps them to HTTP status codes.
package errors

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	ErrInvalidQuery     = errors.New("invalid query")
	ErrInvalidInput     = errors.New("invalid input")
	ErrCorruptBlock     = errors.New("corrupt block")
	ErrCorruptIndex     = errors.New("corrupt index file")
	ErrMissingIndexFile = errors.New("missing index file")
	ErrIO               = errors.New("i/o failure")
	ErrIndexNotLoaded   = errors.New("index not loaded")
	ErrTimeout          = errors.New("operation timed out")
)

type AppError struct {
	Err        error
	Message    string
	StatusCode int
}

func (e *AppError) Error() string {
	return fmt.Sprintf("%s: %s", e.Err.Error(), e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

func New(sentinel error, statusCode int, message string) *AppError {
	return &AppError{
		Err:        sentinel,
		Message:    message,
		StatusCode: statusCode,
	}
}

func Newf(sentinel error, statusCode int, format string, args ...any) *AppError {
	return &AppError{
		Err:        sentinel,
		Message:    fmt.Sprintf(format, args...),
		StatusCode: statusCode,
	}
}

// Wrap attaches a sentinel to an underlying cause so callers can match on
// either with errors.Is.
func Wrap(sentinel error, cause error, format string, args ...any) error {
	msg := fmt.Sprintf(format, args...)
	if cause == nil {
		return fmt.Errorf("%w: %s", sentinel, msg)
	}
	return fmt.Errorf("%w: %s: %w", sentinel, msg, cause)
}

// HTTPStatusCode prefers an AppError status, then the sentinel mapping.
func HTTPStatusCode(err error) int {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.StatusCode
	}

	switch {
	case errors.Is(err, ErrInvalidQuery), errors.Is(err, ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, ErrIndexNotLoaded), errors.Is(err, ErrMissingIndexFile), errors.Is(err, ErrTimeout):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
