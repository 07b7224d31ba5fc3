package httpclient

import (
	"errors"
	"fmt"
)

var (
	// ErrRetriesExhausted is returned when every attempt ended in a retryable status.
	ErrRetriesExhausted = errors.New("httpclient: retries exhausted")
	// ErrNonRetryable is returned for responses and transport failures that are never retried.
	ErrNonRetryable = errors.New("httpclient: non-retryable failure")
)

// ResponseError describes a terminal request failure. It unwraps to one of
// ErrRetriesExhausted or ErrNonRetryable and, for transport failures, to the
// underlying cause.
type ResponseError struct {
	Method     string
	URL        string
	StatusCode int // zero for transport failures
	Attempts   int
	Body       string // truncated response body
	Kind       error
	Cause      error
}

func (e *ResponseError) Error() string {
	if e.StatusCode == 0 {
		return fmt.Sprintf("%s %s failed after %d attempt(s): %v", e.Method, e.URL, e.Attempts, e.Cause)
	}
	return fmt.Sprintf("%s %s: HTTP %d after %d attempt(s)", e.Method, e.URL, e.StatusCode, e.Attempts)
}

// Unwrap exposes both the failure kind and the transport cause.
func (e *ResponseError) Unwrap() []error {
	if e.Cause != nil {
		return []error{e.Kind, e.Cause}
	}
	return []error{e.Kind}
}

// StatusCode returns the HTTP status carried by err, or zero.
func StatusCode(err error) int {
	var re *ResponseError
	if errors.As(err, &re) {
		return re.StatusCode
	}
	return 0
}
