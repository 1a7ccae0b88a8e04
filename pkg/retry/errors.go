package retry

import (
	"context"
	"errors"
)

// Common errors returned by Do.
var (
	// ErrRetryExhausted is returned when MaxAttempts consecutive attempts failed.
	ErrRetryExhausted = errors.New("retry attempts exhausted")
)

// Class tells Do whether an error may succeed on retry.
type Class string

const (
	// Retryable errors are retried after Delay.
	Retryable Class = "retryable"

	// Fatal errors abort immediately and are returned to the caller.
	Fatal Class = "fatal"
)

// Classifier maps an error to a Class.
type Classifier func(error) Class

// permanentError marks an error as fatal regardless of its type.
type permanentError struct {
	err error
}

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }
func (e *permanentError) Fatal() bool   { return true }

// Permanent wraps err so that DefaultClassifier treats it as fatal.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// fatalError is implemented by errors that know whether retrying is pointless.
type fatalError interface {
	Fatal() bool
}

// DefaultClassifier treats context errors and errors reporting Fatal() == true
// as fatal. Everything else is retryable.
func DefaultClassifier(err error) Class {
	if err == nil {
		return Retryable
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return Fatal
	}
	var f fatalError
	if errors.As(err, &f) && f.Fatal() {
		return Fatal
	}
	return Retryable
}
