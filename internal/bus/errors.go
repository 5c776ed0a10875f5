package bus

import (
	"errors"
	"fmt"
)

// Sentinel errors for the message bus.
var (
	// ErrInvalidConfig matches every ConfigError.
	ErrInvalidConfig = errors.New("invalid bus configuration")

	// ErrInvalidListener is returned when a listener is nil or cannot be
	// compared for identity.
	ErrInvalidListener = errors.New("invalid listener")

	// ErrInvalidMessage is returned when a nil message is published.
	ErrInvalidMessage = errors.New("invalid message")

	// ErrNotRunning is returned by asynchronous publish before Start.
	ErrNotRunning = errors.New("message bus is not running")

	// ErrAlreadyRunning is returned when Start is called twice.
	ErrAlreadyRunning = errors.New("message bus is already running")

	// ErrBusClosed is returned once Shutdown has been called.
	ErrBusClosed = errors.New("message bus is shut down")

	// ErrRequestsAbandoned is combined into the Shutdown error when queued
	// requests were dropped because the shutdown context expired.
	ErrRequestsAbandoned = errors.New("queued requests abandoned")
)

// ConfigError reports one invalid configuration field.
type ConfigError struct {
	Field  string
	Reason string
}

// Error implements the error interface.
func (e *ConfigError) Error() string {
	return fmt.Sprintf("invalid bus configuration: %s %s", e.Field, e.Reason)
}

// Is allows errors.Is to match ConfigError with ErrInvalidConfig.
func (e *ConfigError) Is(target error) bool {
	return target == ErrInvalidConfig
}
