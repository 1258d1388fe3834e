// Package errors provides structured error handling for Finora.
// It defines the session error taxonomy, exit codes, and helpers for
// adding context, details, and suggestions to errors.
//
//nolint:revive // Package name intentionally shadows stdlib for domain-specific error handling
package errors

import (
	"errors"
	"fmt"
	"sort"
)

// Exit codes used by the CLI.
const (
	ExitSuccess     = 0 // Successful execution
	ExitGeneral     = 1 // General/unknown error
	ExitInput       = 2 // Invalid input
	ExitAuth        = 3 // Authentication failed
	ExitNotFound    = 4 // Resource not found
	ExitRejected    = 5 // Rejected by the user or wallet
	ExitUnavailable = 6 // Network or provider unavailable
)

// FinoraError is the structured error type for Finora.
type FinoraError struct {
	Code       string            // Machine-readable error code
	Message    string            // Human-readable message
	Details    map[string]string // Additional context
	Suggestion string            // Actionable suggestion for user
	Cause      error             // Underlying error
	ExitCode   int               // Exit code for CLI
}

func (e *FinoraError) Error() string {
	msg := e.Message

	// Details are sorted for deterministic output
	if len(e.Details) > 0 {
		keys := make([]string, 0, len(e.Details))
		for k := range e.Details {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			msg = fmt.Sprintf("%s (%s: %s)", msg, k, e.Details[k])
		}
	}

	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", msg, e.Cause)
	}
	return msg
}

func (e *FinoraError) Unwrap() error {
	return e.Cause
}

// Is implements errors.Is for FinoraError. Two errors match when their codes match.
func (e *FinoraError) Is(target error) bool {
	var t *FinoraError
	if errors.As(target, &t) {
		return e.Code == t.Code
	}
	return false
}

// Session error taxonomy.
var (
	ErrProviderNotFound = &FinoraError{
		Code:     "PROVIDER_NOT_FOUND",
		Message:  "wallet not installed",
		ExitCode: ExitNotFound,
	}

	ErrUserRejected = &FinoraError{
		Code:     "USER_REJECTED",
		Message:  "request rejected by user",
		ExitCode: ExitRejected,
	}

	ErrChainUnknown = &FinoraError{
		Code:     "CHAIN_UNKNOWN",
		Message:  "chain not added to wallet",
		ExitCode: ExitUnavailable,
	}

	ErrSigningUnavailable = &FinoraError{
		Code:     "SIGNING_UNAVAILABLE",
		Message:  "no provider or client for signing",
		ExitCode: ExitAuth,
	}

	ErrAuthenticationFailed = &FinoraError{
		Code:     "AUTHENTICATION_FAILED",
		Message:  "authentication failed",
		ExitCode: ExitAuth,
	}

	ErrNetworkUnavailable = &FinoraError{
		Code:     "NETWORK_UNAVAILABLE",
		Message:  "network communication failed",
		ExitCode: ExitUnavailable,
	}

	ErrUnsupported = &FinoraError{
		Code:     "UNSUPPORTED",
		Message:  "currently not supported",
		ExitCode: ExitInput,
	}
)

// General errors.
var (
	ErrGeneral = &FinoraError{
		Code:     "GENERAL_ERROR",
		Message:  "an error occurred",
		ExitCode: ExitGeneral,
	}

	ErrInvalidInput = &FinoraError{
		Code:     "INVALID_INPUT",
		Message:  "invalid input",
		ExitCode: ExitInput,
	}

	ErrInvalidAddress = &FinoraError{
		Code:     "INVALID_ADDRESS",
		Message:  "invalid address format",
		ExitCode: ExitInput,
	}

	ErrNotFound = &FinoraError{
		Code:     "NOT_FOUND",
		Message:  "resource not found",
		ExitCode: ExitNotFound,
	}

	ErrConnectInProgress = &FinoraError{
		Code:     "CONNECT_IN_PROGRESS",
		Message:  "a wallet connection is already in progress",
		ExitCode: ExitInput,
	}

	ErrSessionReset = &FinoraError{
		Code:     "SESSION_RESET",
		Message:  "session was reset before the connection finished",
		ExitCode: ExitGeneral,
	}

	ErrNotConnected = &FinoraError{
		Code:     "NOT_CONNECTED",
		Message:  "no wallet provider attached",
		ExitCode: ExitInput,
	}

	ErrTokenNotFound = &FinoraError{
		Code:     "TOKEN_NOT_FOUND",
		Message:  "no persisted authentication token",
		ExitCode: ExitAuth,
	}

	ErrConfigNotFound = &FinoraError{
		Code:     "CONFIG_NOT_FOUND",
		Message:  "configuration file not found",
		ExitCode: ExitNotFound,
	}

	ErrConfigInvalid = &FinoraError{
		Code:     "CONFIG_INVALID",
		Message:  "configuration file is invalid",
		ExitCode: ExitInput,
	}

	ErrUnknownConfigKey = &FinoraError{
		Code:     "UNKNOWN_CONFIG_KEY",
		Message:  "unknown config key",
		ExitCode: ExitInput,
	}

	ErrInvalidEmail = &FinoraError{
		Code:     "INVALID_EMAIL",
		Message:  "please enter a valid email address",
		ExitCode: ExitInput,
	}

	ErrInvalidCode = &FinoraError{
		Code:     "INVALID_CODE",
		Message:  "invalid code, please try again",
		ExitCode: ExitAuth,
	}

	ErrCodeExpired = &FinoraError{
		Code:     "CODE_EXPIRED",
		Message:  "verification code expired",
		ExitCode: ExitAuth,
	}
)

// New creates a new FinoraError with the given code and message.
func New(code, message string) *FinoraError {
	return &FinoraError{
		Code:     code,
		Message:  message,
		ExitCode: ExitGeneral,
	}
}

// Wrap wraps an error with additional context.
func Wrap(err error, format string, args ...any) error {
	if err == nil {
		return nil
	}

	msg := fmt.Sprintf(format, args...)

	var fe *FinoraError
	if errors.As(err, &fe) {
		return &FinoraError{
			Code:       fe.Code,
			Message:    fmt.Sprintf("%s: %s", msg, fe.Message),
			Details:    fe.Details,
			Suggestion: fe.Suggestion,
			Cause:      err,
			ExitCode:   fe.ExitCode,
		}
	}

	return &FinoraError{
		Code:     "GENERAL_ERROR",
		Message:  msg,
		Cause:    err,
		ExitCode: ExitGeneral,
	}
}

// WithCause returns a copy of a sentinel error carrying cause as its underlying error.
func WithCause(sentinel *FinoraError, cause error) error {
	return &FinoraError{
		Code:       sentinel.Code,
		Message:    sentinel.Message,
		Details:    sentinel.Details,
		Suggestion: sentinel.Suggestion,
		Cause:      cause,
		ExitCode:   sentinel.ExitCode,
	}
}

// WithDetails adds details to an error.
func WithDetails(err error, details map[string]string) error {
	if err == nil {
		return nil
	}

	var fe *FinoraError
	if errors.As(err, &fe) {
		return &FinoraError{
			Code:       fe.Code,
			Message:    fe.Message,
			Details:    details,
			Suggestion: fe.Suggestion,
			Cause:      fe.Cause,
			ExitCode:   fe.ExitCode,
		}
	}

	return &FinoraError{
		Code:     "GENERAL_ERROR",
		Message:  err.Error(),
		Details:  details,
		Cause:    err,
		ExitCode: ExitGeneral,
	}
}

// WithSuggestion adds a suggestion to an error.
func WithSuggestion(err error, suggestion string) error {
	if err == nil {
		return nil
	}

	var fe *FinoraError
	if errors.As(err, &fe) {
		return &FinoraError{
			Code:       fe.Code,
			Message:    fe.Message,
			Details:    fe.Details,
			Suggestion: suggestion,
			Cause:      fe.Cause,
			ExitCode:   fe.ExitCode,
		}
	}

	return &FinoraError{
		Code:       "GENERAL_ERROR",
		Message:    err.Error(),
		Suggestion: suggestion,
		Cause:      err,
		ExitCode:   ExitGeneral,
	}
}

// ExitCode returns the appropriate exit code for an error.
func ExitCode(err error) int {
	if err == nil {
		return ExitSuccess
	}

	var fe *FinoraError
	if errors.As(err, &fe) {
		return fe.ExitCode
	}

	return ExitGeneral
}

// Code returns the error code for an error.
func Code(err error) string {
	var fe *FinoraError
	if errors.As(err, &fe) {
		return fe.Code
	}
	return "GENERAL_ERROR"
}

// Is wraps errors.Is for convenience.
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As wraps errors.As for convenience.
func As(err error, target any) bool {
	return errors.As(err, target)
}
