// Package ai defines the error taxonomy shared by all capability
// providers (STT, LLM, TTS, VAD). Providers classify failures as
// recoverable (retry with backoff) or fatal (fail fast).
package ai

import "errors"

var (
	// ErrRecoverable indicates a temporary failure that may succeed if
	// retried: network timeout, rate limiting, transient service error.
	ErrRecoverable = errors.New("recoverable provider error")

	// ErrFatal indicates a permanent failure that will not succeed if
	// retried: invalid credentials, unsupported model, malformed request.
	ErrFatal = errors.New("fatal provider error")
)

// IsRecoverable reports whether err should be retried.
func IsRecoverable(err error) bool {
	return errors.Is(err, ErrRecoverable)
}

// IsFatal reports whether err should not be retried.
func IsFatal(err error) bool {
	return errors.Is(err, ErrFatal)
}

// ClassifiedError wraps an underlying provider error with its retry
// classification so errors.Is works against the sentinels above.
type ClassifiedError struct {
	Underlying error
	Retryable  bool
	Message    string
}

func (e *ClassifiedError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return e.Underlying.Error()
}

func (e *ClassifiedError) Unwrap() error {
	if e.Retryable {
		return ErrRecoverable
	}
	return ErrFatal
}

// Recoverable wraps err as a retryable provider error.
func Recoverable(err error, message string) error {
	return &ClassifiedError{Underlying: err, Retryable: true, Message: message}
}

// Fatal wraps err as a non-retryable provider error.
func Fatal(err error, message string) error {
	return &ClassifiedError{Underlying: err, Retryable: false, Message: message}
}
