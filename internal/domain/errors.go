package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrSessionNotFound is returned when a session key is absent or expired
	ErrSessionNotFound = errors.New("session not found")

	// ErrSessionPending is returned when a session is already processing a message
	ErrSessionPending = errors.New("session is pending")

	// ErrUserNotFound is returned by usage reports for an actor without records
	ErrUserNotFound = errors.New("user not found")

	// ErrEmptyCompletion is returned when a stream finishes without any text
	ErrEmptyCompletion = errors.New("empty completion")
)

// ProviderError wraps a failed completion call or a stream that errored mid-way
type ProviderError struct {
	Provider string
	Err      error
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("provider %s: %v", e.Provider, e.Err)
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}

// StoreError means the session or usage store could not be reached
type StoreError struct {
	Op  string
	Err error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("store unavailable (%s): %v", e.Op, e.Err)
}

func (e *StoreError) Unwrap() error {
	return e.Err
}

// PlatformError wraps a failed chat-surface call
type PlatformError struct {
	Op  string
	Err error
}

func (e *PlatformError) Error() string {
	return fmt.Sprintf("platform %s failed: %v", e.Op, e.Err)
}

func (e *PlatformError) Unwrap() error {
	return e.Err
}

// IsStoreUnavailable reports whether err came from an unreachable store
func IsStoreUnavailable(err error) bool {
	var se *StoreError
	return errors.As(err, &se)
}

// IsPlatformError reports whether err came from the chat surface
func IsPlatformError(err error) bool {
	var pe *PlatformError
	return errors.As(err, &pe)
}

// IsProviderError reports whether err came from the completion provider
func IsProviderError(err error) bool {
	var pe *ProviderError
	return errors.As(err, &pe)
}
