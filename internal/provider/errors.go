package provider

import (
	"context"
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrRateLimited indicates every configured key was rate limited.
	ErrRateLimited = errors.New("all API keys are rate limited")

	// ErrUpstream indicates a non-retryable upstream failure, usually
	// misconfiguration (bad key, unknown model, malformed request).
	ErrUpstream = errors.New("AI service error")

	// ErrServiceUnavailable indicates a transient upstream failure.
	ErrServiceUnavailable = errors.New("AI service unavailable")

	// ErrCancelled indicates the caller went away before a reply arrived.
	ErrCancelled = errors.New("request cancelled")
)

// StatusError is a non-2xx reply from an LLM endpoint.
type StatusError struct {
	Code    int
	Message string
}

func (e *StatusError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("status %d", e.Code)
	}
	return fmt.Sprintf("status %d: %s", e.Code, e.Message)
}

// IsRateLimited reports whether err is a 429 reply.
func IsRateLimited(err error) bool {
	var se *StatusError
	return errors.As(err, &se) && se.Code == http.StatusTooManyRequests
}

// classify maps a single failed call onto the package error kinds.
// Rate limiting is handled by the caller before this.
func classify(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		return fmt.Errorf("%w: %v", ErrCancelled, ctx.Err())
	}
	if errors.Is(err, ErrUpstream) || errors.Is(err, ErrServiceUnavailable) {
		return err
	}

	var se *StatusError
	if !errors.As(err, &se) {
		// No reply at all: DNS, dial, TLS or a dropped connection.
		return fmt.Errorf("%w: %v", ErrServiceUnavailable, err)
	}
	switch {
	case se.Code == http.StatusServiceUnavailable:
		return fmt.Errorf("%w: %v", ErrServiceUnavailable, se)
	default:
		return fmt.Errorf("%w: %v", ErrUpstream, se)
	}
}
