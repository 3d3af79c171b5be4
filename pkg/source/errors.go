package source

import (
	"errors"
	"fmt"
	"strings"
)

// ErrorType classifies record API failures.
type ErrorType string

const (
	ErrorTypeAuth      ErrorType = "auth"      // invalid credentials, permanent
	ErrorTypeBadQuery  ErrorType = "bad_query" // malformed descriptor, permanent
	ErrorTypeEndpoint  ErrorType = "endpoint"  // network/server trouble, usually transient
	ErrorTypeRateLimit ErrorType = "rate_limit"
	ErrorTypeUnknown   ErrorType = "unknown"
)

// Error is a structured record API error with classification.
type Error struct {
	Type       ErrorType
	Message    string
	Retryable  bool
	Cause      error
	StatusCode int
}

// Error implements the error interface.
func (e *Error) Error() string {
	var parts []string
	parts = append(parts, string(e.Type))
	if e.StatusCode > 0 {
		parts = append(parts, fmt.Sprintf("HTTP %d", e.StatusCode))
	}
	parts = append(parts, e.Message)

	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", strings.Join(parts, " "), e.Cause)
	}
	return strings.Join(parts, " ")
}

// Unwrap returns the underlying cause for errors.Is/As.
func (e *Error) Unwrap() error {
	return e.Cause
}

// IsRetryable implements the retry.RetryableError interface so the refresh
// executor can distinguish transient from permanent failures without
// importing this package's internals.
func (e *Error) IsRetryable() bool {
	return e.Retryable
}

// NewError creates a new structured record API error.
func NewError(errType ErrorType, message string, retryable bool, cause error) *Error {
	return &Error{
		Type:      errType,
		Message:   message,
		Retryable: retryable,
		Cause:     cause,
	}
}

// ClassifyStatus maps an HTTP status to a structured error.
func ClassifyStatus(statusCode int, body string) *Error {
	var e *Error
	switch {
	case statusCode == 401 || statusCode == 403:
		e = NewError(ErrorTypeAuth, "authentication failed", false, nil)
	case statusCode == 400 || statusCode == 422:
		e = NewError(ErrorTypeBadQuery, "record API rejected query descriptor", false, nil)
	case statusCode == 429:
		e = NewError(ErrorTypeRateLimit, "rate limited", true, nil)
	case statusCode >= 500:
		e = NewError(ErrorTypeEndpoint, "record API server error", true, nil)
	default:
		e = NewError(ErrorTypeUnknown, fmt.Sprintf("unexpected status: %s", strings.TrimSpace(body)), false, nil)
	}
	e.StatusCode = statusCode
	return e
}

// ClassifyError categorizes a transport-level error and returns a structured
// Error. Already-classified errors pass through unchanged.
func ClassifyError(err error) *Error {
	if err == nil {
		return nil
	}

	var srcErr *Error
	if errors.As(err, &srcErr) {
		return srcErr
	}

	lower := strings.ToLower(err.Error())

	if strings.Contains(lower, "timeout") ||
		strings.Contains(lower, "deadline exceeded") ||
		strings.Contains(lower, "connection refused") ||
		strings.Contains(lower, "connection reset") ||
		strings.Contains(lower, "no such host") {
		return NewError(ErrorTypeEndpoint, "record API unreachable", true, err)
	}

	return NewError(ErrorTypeUnknown, "record API error", false, err)
}

// IsRetryable returns true if the error is transient.
func IsRetryable(err error) bool {
	var srcErr *Error
	if errors.As(err, &srcErr) {
		return srcErr.Retryable
	}
	return false
}
