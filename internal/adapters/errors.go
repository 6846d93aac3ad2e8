package adapters

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"syscall"
)

// ErrInvalidConfig indicates a step config the adapter cannot use.
var ErrInvalidConfig = errors.New("invalid adapter config")

// InvocationError classifies an adapter failure for the retry policy.
type InvocationError struct {
	Retryable  bool
	StatusCode int // upstream HTTP status, 0 when not applicable
	Err        error
}

func (e *InvocationError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("status %d: %v", e.StatusCode, e.Err)
	}
	return e.Err.Error()
}

func (e *InvocationError) Unwrap() error {
	return e.Err
}

// Transient marks err as retryable.
func Transient(err error) error {
	return &InvocationError{Retryable: true, Err: err}
}

// Permanent marks err as non-retryable.
func Permanent(err error) error {
	return &InvocationError{Err: err}
}

// invalidConfig builds a permanent ErrInvalidConfig error.
func invalidConfig(format string, args ...any) error {
	return Permanent(fmt.Errorf("%w: %s", ErrInvalidConfig, fmt.Sprintf(format, args...)))
}

// IsRetryable reports whether err may succeed when attempted again.
// Unclassified errors are retried only when they look like transient
// network failures.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	var inv *InvocationError
	if errors.As(err, &inv) {
		return inv.Retryable
	}
	return isTransientNetworkError(err)
}

// StatusError classifies a non-2xx HTTP response.
func StatusError(status int, body string) error {
	err := fmt.Errorf("upstream returned %s", http.StatusText(status))
	if body != "" {
		err = fmt.Errorf("upstream returned %s: %s", http.StatusText(status), body)
	}
	return &InvocationError{
		Retryable:  retryableStatus(status),
		StatusCode: status,
		Err:        err,
	}
}

func retryableStatus(status int) bool {
	switch {
	case status == http.StatusRequestTimeout, status == http.StatusTooManyRequests:
		return true
	case status >= 500:
		return status != http.StatusNotImplemented
	default:
		return false
	}
}

// classifyTransportError wraps an error returned by an HTTP client.
func classifyTransportError(err error) error {
	if isTransientNetworkError(err) {
		return Transient(err)
	}
	return Permanent(err)
}

func isTransientNetworkError(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	if errors.Is(err, syscall.ECONNREFUSED) || errors.Is(err, syscall.ECONNRESET) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
