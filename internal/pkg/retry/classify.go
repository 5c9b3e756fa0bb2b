package retry

import (
	"context"
	"errors"
	"fmt"
	"net"
)

// Kind is the classification of a failed operation.
type Kind string

const (
	NetworkError    Kind = "NETWORK_ERROR"
	Timeout         Kind = "TIMEOUT"
	APIError4xx     Kind = "API_ERROR_4XX"
	APIError5xx     Kind = "API_ERROR_5XX"
	ValidationError Kind = "VALIDATION_ERROR"
)

// Retryable reports whether an error of this kind is worth retrying.
// 4xx and validation errors indicate a request that will never succeed.
func (k Kind) Retryable() bool {
	switch k {
	case APIError4xx, ValidationError:
		return false
	default:
		return true
	}
}

// HTTPError is a non-2xx response from a remote API. Adapters construct it
// so Classify can route on the status-code range.
type HTTPError struct {
	StatusCode int
	Body       string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("remote API error %d: %s", e.StatusCode, e.Body)
}

// InvalidError marks input that can never be accepted by the remote side.
type InvalidError struct {
	Reason string
}

func (e *InvalidError) Error() string { return "validation: " + e.Reason }

// Classify maps any error to its Kind. Total: every error gets a class,
// with transport errors defaulting to NetworkError.
func Classify(err error) Kind {
	var inv *InvalidError
	if errors.As(err, &inv) {
		return ValidationError
	}

	var httpErr *HTTPError
	if errors.As(err, &httpErr) {
		if httpErr.StatusCode >= 400 && httpErr.StatusCode < 500 {
			return APIError4xx
		}
		return APIError5xx
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return Timeout
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return Timeout
	}

	return NetworkError
}
