package congress

import (
	"errors"
	"fmt"
	"net/http"
)

// TransientError marks a failure worth retrying: a network error or a throttling/5xx status.
type TransientError struct {
	StatusCode int // zero for network-level failures
	Err        error
}

func (e *TransientError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("transient http status %d", e.StatusCode)
	}
	return fmt.Sprintf("transient network error: %v", e.Err)
}

func (e *TransientError) Unwrap() error { return e.Err }

// PermanentHTTPError is a non-retryable 4xx response.
type PermanentHTTPError struct {
	StatusCode int
	Endpoint   string
}

func (e *PermanentHTTPError) Error() string {
	return fmt.Sprintf("%s: http status %d", e.Endpoint, e.StatusCode)
}

// FetchError is the terminal failure returned once a request cannot be completed.
type FetchError struct {
	Endpoint string
	Attempts int
	Err      error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetch %s failed after %d attempt(s): %v", e.Endpoint, e.Attempts, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// IsTransient reports whether err should be retried.
func IsTransient(err error) bool {
	var te *TransientError
	return errors.As(err, &te)
}

func isTransientStatus(code int) bool {
	switch code {
	case http.StatusTooManyRequests,
		http.StatusInternalServerError,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout:
		return true
	default:
		return false
	}
}
