package models

import (
	"errors"
	"fmt"
)

var (
	ErrUnreadableDocument = errors.New("unreadable document")
	ErrWrite              = errors.New("write failed")
	ErrNoContextFound     = errors.New("no context found")
	ErrNoSyllabusContext  = fmt.Errorf("topic not covered by syllabus: %w", ErrNoContextFound)
	ErrMalformedOutput    = errors.New("malformed model output")
	ErrImageUnreadable    = errors.New("image unreadable")
	ErrResourceCleanup    = errors.New("resource cleanup failed")
	ErrGeneration         = errors.New("generation failed")
)

// MalformedOutputError carries the raw model text that could not be parsed
type MalformedOutputError struct {
	Raw string
	Err error
}

func (e *MalformedOutputError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%v: %v", ErrMalformedOutput, e.Err)
	}
	return ErrMalformedOutput.Error()
}

func (e *MalformedOutputError) Is(target error) bool { return target == ErrMalformedOutput }

func (e *MalformedOutputError) Unwrap() error { return e.Err }

// RetryableError marks a transient failure that may succeed on retry
type RetryableError struct {
	Err error
}

func (e *RetryableError) Error() string { return "retryable: " + e.Err.Error() }

func (e *RetryableError) Unwrap() error { return e.Err }

// IsRetryable reports whether err is marked retryable
func IsRetryable(err error) bool {
	var re *RetryableError
	return errors.As(err, &re)
}
