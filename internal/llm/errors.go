package llm

import (
	"errors"
	"fmt"
	"math/rand"
	"net"
	"strings"
	"time"
)

// HTTPError represents an HTTP error with status code.
type HTTPError struct {
	StatusCode int
	Message    string
	Err        error
}

func (e *HTTPError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return fmt.Sprintf("HTTP error: %d", e.StatusCode)
}

func (e *HTTPError) Unwrap() error {
	return e.Err
}

// IsRetryable reports whether the error should trigger a retry.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}

	var httpErr *HTTPError
	if errors.As(err, &httpErr) {
		switch httpErr.StatusCode {
		case 429, 500, 502, 503, 504:
			return true
		}
		return false
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}

	msg := strings.ToLower(err.Error())
	for _, pattern := range []string{
		"429", "500", "502", "503", "504",
		"connection refused",
		"connection reset",
		"no such host",
		"timeout",
		"eof",
		"unavailable",
		"resource_exhausted",
	} {
		if strings.Contains(msg, pattern) {
			return true
		}
	}
	return false
}

// IsCredentialError reports whether the error looks like a missing or
// rejected credential, so the host can be pointed at provider settings
// instead of shown a raw stack of wire errors.
func IsCredentialError(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	for _, pattern := range []string{
		"api key",
		"credential",
		"unauthorized",
		"401",
		"403",
		"permission denied",
	} {
		if strings.Contains(msg, pattern) {
			return true
		}
	}
	return false
}

// Backoff calculates exponential backoff with jitter.
func Backoff(baseDelay time.Duration, attempt int, maxDelay time.Duration) time.Duration {
	delay := baseDelay * time.Duration(1<<uint(attempt))
	if delay > maxDelay {
		delay = maxDelay
	}
	jitter := time.Duration(rand.Int63n(int64(delay / 4)))
	return delay + jitter
}
