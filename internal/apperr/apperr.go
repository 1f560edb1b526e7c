// Package apperr defines the engine's error taxonomy. Every type works with
// errors.As so callers can branch on the failure class without string matching.
package apperr

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// ConnectionError means an IMAP or SMTP server was unreachable or refused the login.
type ConnectionError struct {
	Protocol string // "imap" or "smtp"
	Host     string
	Auth     bool // true when the server answered but rejected the credentials
	Err      error
}

func (e *ConnectionError) Error() string {
	if e.Auth {
		return fmt.Sprintf("%s authentication rejected by %s: %v", e.Protocol, e.Host, e.Err)
	}
	return fmt.Sprintf("%s connection to %s failed: %v", e.Protocol, e.Host, e.Err)
}

func (e *ConnectionError) Unwrap() error { return e.Err }

// ParseError marks a single malformed message. It never aborts a batch.
type ParseError struct {
	Ref string // IMAP UID or Message-ID of the offending message
	Err error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("malformed message %s: %v", e.Ref, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// ProviderError is one failed AI generation call.
type ProviderError struct {
	Provider string
	Model    string
	Outcome  string // timeout, rate_limited or error
	Err      error
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("%s (%s) %s: %v", e.Provider, e.Model, e.Outcome, e.Err)
}

func (e *ProviderError) Unwrap() error { return e.Err }

// DispatchError is a failed outbound send.
type DispatchError struct {
	Code      int // SMTP reply code or HTTP status, 0 when the failure was below the protocol
	Temporary bool
	Attempts  int
	Err       error
}

func (e *DispatchError) Error() string {
	if e.Code > 0 {
		return fmt.Sprintf("send failed after %d attempt(s) (code %d): %v", e.Attempts, e.Code, e.Err)
	}
	return fmt.Sprintf("send failed after %d attempt(s): %v", e.Attempts, e.Err)
}

func (e *DispatchError) Unwrap() error { return e.Err }

// ConfigError is a missing or invalid setting detected before any network call.
type ConfigError struct {
	Field   string
	Message string
}

func (e *ConfigError) Error() string {
	if e.Field == "" {
		return "invalid configuration: " + e.Message
	}
	return fmt.Sprintf("invalid configuration (%s): %s", e.Field, e.Message)
}

// NewConfigError builds a ConfigError
func NewConfigError(field, format string, args ...interface{}) *ConfigError {
	return &ConfigError{Field: field, Message: fmt.Sprintf(format, args...)}
}

// IsConnection reports whether err (or any error in its chain) is a ConnectionError.
func IsConnection(err error) bool {
	var target *ConnectionError
	return errors.As(err, &target)
}

// IsConfig reports whether err (or any error in its chain) is a ConfigError.
func IsConfig(err error) bool {
	var target *ConfigError
	return errors.As(err, &target)
}

// Describe turns an engine error into a short message an operator can act on.
// It backs the {success, message} bodies of the dashboard's test actions.
func Describe(err error) string {
	if err == nil {
		return "OK"
	}

	var connErr *ConnectionError
	var cfgErr *ConfigError
	var provErr *ProviderError
	var dispErr *DispatchError

	switch {
	case errors.As(err, &cfgErr):
		return cfgErr.Error()
	case errors.As(err, &connErr):
		if connErr.Auth {
			return fmt.Sprintf("Authentication rejected by %s: check the username and password", connErr.Host)
		}
		if errors.Is(connErr.Err, context.DeadlineExceeded) {
			return fmt.Sprintf("Timed out connecting to %s: check the host and port", connErr.Host)
		}
		return fmt.Sprintf("Could not reach %s: %v", connErr.Host, connErr.Err)
	case errors.As(err, &provErr):
		msg := provErr.Err.Error()
		if strings.Contains(strings.ToLower(msg), "model") && strings.Contains(strings.ToLower(msg), "not") {
			return fmt.Sprintf("Model %q not available on %s: %s", provErr.Model, provErr.Provider, msg)
		}
		switch provErr.Outcome {
		case "timeout":
			return fmt.Sprintf("%s did not answer in time", provErr.Provider)
		case "rate_limited":
			return fmt.Sprintf("%s rate limit reached, try again later", provErr.Provider)
		}
		return fmt.Sprintf("%s error: %s", provErr.Provider, msg)
	case errors.As(err, &dispErr):
		return dispErr.Error()
	}
	return err.Error()
}
