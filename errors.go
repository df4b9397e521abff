package main

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrSessionNotFound means no persisted snapshot exists (or only half
	// of one does). Recoverable by running the login flow.
	ErrSessionNotFound = errors.New("session data not found")

	// ErrDriverUnavailable means an operation needed a live browser
	// session and none was active.
	ErrDriverUnavailable = errors.New("no browser session active")

	// errWaitTimeout is returned by pollUntil when the condition never
	// held within the window.
	errWaitTimeout = errors.New("condition not met before timeout")
)

// ConfigError reports invalid or missing required configuration. Fatal,
// surfaced before any automation starts.
type ConfigError struct {
	Field  string
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("invalid config: %s: %s", e.Field, e.Reason)
}

// LoginTimeoutError means no successful authentication redirect was
// detected within the allotted window.
type LoginTimeoutError struct {
	Timeout time.Duration
}

func (e *LoginTimeoutError) Error() string {
	return fmt.Sprintf("login timeout (%s): did not detect redirect to the account page", e.Timeout)
}

// ElementNotFoundError means a required interactive control never became
// available. Fatal only for hard-fail steps.
type ElementNotFoundError struct {
	Step     string
	Selector string
	Attempts int
}

func (e *ElementNotFoundError) Error() string {
	if e.Attempts > 1 {
		return fmt.Sprintf("%s control not found after %d attempts (%s)", e.Step, e.Attempts, e.Selector)
	}
	return fmt.Sprintf("%s control not found (%s)", e.Step, e.Selector)
}
