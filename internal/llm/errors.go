package llm

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"
)

// ErrorKind classifies a failed completion.
type ErrorKind string

const (
	KindRateLimited      ErrorKind = "rate_limited"
	KindTransientNetwork ErrorKind = "transient_network"
	KindAuth             ErrorKind = "auth_error"
	KindInvalidRequest   ErrorKind = "invalid_request"
	KindSchemaViolation  ErrorKind = "schema_violation"
)

// APIError is a single failed attempt against the completion service.
type APIError struct {
	Kind       ErrorKind
	StatusCode int
	Message    string
	// RetryAfter is the server-suggested wait, zero when absent.
	RetryAfter time.Duration
	Err        error
}

func (e *APIError) Error() string {
	msg := e.Message
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	}
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s (HTTP %d): %s", e.Kind, e.StatusCode, msg)
	}
	return fmt.Sprintf("%s: %s", e.Kind, msg)
}

func (e *APIError) Unwrap() error { return e.Err }

// Transient reports whether another attempt may succeed.
func (k ErrorKind) Transient() bool {
	switch k {
	case KindRateLimited, KindTransientNetwork, KindSchemaViolation:
		return true
	}
	return false
}

// IsTransient reports whether err is worth retrying.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Kind.Transient()
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	return errors.Is(err, context.DeadlineExceeded)
}

// KindForStatus maps an HTTP status code to an error kind.
func KindForStatus(status int) ErrorKind {
	switch {
	case status == http.StatusTooManyRequests:
		return KindRateLimited
	case status == http.StatusRequestTimeout, status >= 500:
		return KindTransientNetwork
	case status == http.StatusUnauthorized, status == http.StatusForbidden:
		return KindAuth
	default:
		return KindInvalidRequest
	}
}

// ExhaustedError is returned once every attempt failed transiently.
type ExhaustedError struct {
	Attempts int
	Last     error
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("retries exhausted after %d attempts: %v", e.Attempts, e.Last)
}

func (e *ExhaustedError) Unwrap() error { return e.Last }

// FatalError aborts the whole run.
type FatalError struct {
	Role Role
	Err  error
}

func (e *FatalError) Error() string {
	return fmt.Sprintf("fatal %s error: %v", e.Role, e.Err)
}

func (e *FatalError) Unwrap() error { return e.Err }

// IsFatal reports whether err must abort the run.
func IsFatal(err error) bool {
	var f *FatalError
	return errors.As(err, &f)
}
