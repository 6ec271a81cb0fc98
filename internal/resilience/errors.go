package resilience

import (
	"errors"
	"fmt"
	"net"
	"net/http"
	"syscall"
)

// TransientError marks a failure that may succeed on a later attempt
// against the same endpoint (5xx, 408, network timeouts).
type TransientError struct {
	Err        error
	StatusCode int
}

func (e *TransientError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("transient (status %d): %v", e.StatusCode, e.Err)
	}
	return e.Err.Error()
}

func (e *TransientError) Unwrap() error { return e.Err }

// NewTransientError wraps err as transient. statusCode may be 0.
func NewTransientError(err error, statusCode int) *TransientError {
	return &TransientError{Err: err, StatusCode: statusCode}
}

// QuotaError marks a rate-limit or capacity rejection tied to the
// credential that made the call (HTTP 429, provider overload 529).
// Retrying with the same credential after a pause may succeed; switching
// credentials usually does.
type QuotaError struct {
	Err        error
	StatusCode int
	Provider   string
}

func (e *QuotaError) Error() string {
	return fmt.Sprintf("%s quota exhausted (status %d): %v", e.Provider, e.StatusCode, e.Err)
}

func (e *QuotaError) Unwrap() error { return e.Err }

// NewQuotaError wraps err as a quota rejection from provider.
func NewQuotaError(provider string, statusCode int, err error) *QuotaError {
	return &QuotaError{Err: err, StatusCode: statusCode, Provider: provider}
}

// IsQuota reports whether err carries a QuotaError anywhere in its chain.
func IsQuota(err error) bool {
	var qe *QuotaError
	return errors.As(err, &qe)
}

// IsQuotaHTTPStatus reports whether a status code is a quota rejection.
func IsQuotaHTTPStatus(statusCode int) bool {
	return statusCode == http.StatusTooManyRequests || statusCode == 529
}

// IsTransient reports whether err is worth retrying against the same
// endpoint: an explicit TransientError, a network timeout, or a dropped
// connection.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}

	var te *TransientError
	if errors.As(err, &te) {
		return true
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	return errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.ECONNABORTED) ||
		errors.Is(err, syscall.EPIPE)
}

// IsTransientHTTPStatus reports whether an HTTP status is a retryable
// server-side condition. 429 is excluded; it is a quota signal.
func IsTransientHTTPStatus(statusCode int) bool {
	switch statusCode {
	case http.StatusRequestTimeout,
		http.StatusInternalServerError,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout:
		return true
	default:
		return false
	}
}

// ClassifyHTTPStatus wraps err according to statusCode: QuotaError for
// quota statuses, TransientError for retryable server statuses, err
// unchanged otherwise.
func ClassifyHTTPStatus(provider string, statusCode int, err error) error {
	switch {
	case IsQuotaHTTPStatus(statusCode):
		return NewQuotaError(provider, statusCode, err)
	case IsTransientHTTPStatus(statusCode):
		return NewTransientError(err, statusCode)
	default:
		return err
	}
}
