// Package voxerr defines the shared error taxonomy for the chatbot backend.
package voxerr

import (
	"errors"
	"fmt"
)

var (
	// ErrSessionNotInitialized indicates a conversation turn was attempted
	// before the MCP session was established. This is a sequencing error on
	// the caller's side, not a retryable runtime condition.
	ErrSessionNotInitialized = errors.New("session not initialized")

	// ErrInvalidConfig indicates a configuration error.
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrServerIncompatible indicates the MCP server does not implement the
	// required configuration interface.
	ErrServerIncompatible = errors.New("server incompatible")

	// ErrCompletion indicates a completion API failure.
	ErrCompletion = errors.New("completion request failed")
)

// ConfigError wraps configuration-related errors with the offending field.
type ConfigError struct {
	Field   string
	Message string
	Err     error
}

func (e *ConfigError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("configuration error in %s: %s: %v", e.Field, e.Message, e.Err)
	}
	return fmt.Sprintf("configuration error in %s: %s", e.Field, e.Message)
}

func (e *ConfigError) Unwrap() error {
	return ErrInvalidConfig
}

// ConnectionError wraps MCP server connection failures with the attempted command.
type ConnectionError struct {
	Command []string
	Message string
	Err     error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("connection error (%v): %s: %v", e.Command, e.Message, e.Err)
}

func (e *ConnectionError) Unwrap() error {
	return e.Err
}

// CompletionError wraps completion API failures with the request operation.
type CompletionError struct {
	Operation string
	Message   string
	Err       error
}

func (e *CompletionError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("completion error during %s: %s: %v", e.Operation, e.Message, e.Err)
	}
	return fmt.Sprintf("completion error during %s: %s", e.Operation, e.Message)
}

func (e *CompletionError) Unwrap() error {
	return ErrCompletion
}
