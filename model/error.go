package model

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"
)

// ErrorKind classifies provider failures into the categories callers can act
// on.
type ErrorKind string

const (
	ErrAuthFailure     ErrorKind = "auth_failure"
	ErrRateLimited     ErrorKind = "rate_limited"
	ErrInvalidRequest  ErrorKind = "invalid_request"
	ErrUnavailable     ErrorKind = "unavailable"
	ErrContentFiltered ErrorKind = "content_filtered"
	ErrCanceled        ErrorKind = "canceled"
	ErrUnknown         ErrorKind = "unknown"
)

// ProviderError wraps a backend failure with its canonical classification.
type ProviderError struct {
	Provider   string
	Kind       ErrorKind
	RetryAfter time.Duration
	Err        error
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("%s: %s: %v", e.Provider, e.Kind, e.Err)
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}

// Retryable reports whether the failure is worth retrying and how long to
// wait first. A zero duration means retry at the caller's discretion.
func (e *ProviderError) Retryable() (bool, time.Duration) {
	switch e.Kind {
	case ErrRateLimited, ErrUnavailable:
		return true, e.RetryAfter
	}
	return false, 0
}

// classify wraps err as a ProviderError, honoring context cancellation and
// preserving an existing classification.
func classify(provider string, err error, kind ErrorKind) error {
	if err == nil {
		return nil
	}
	var existing *ProviderError
	if errors.As(err, &existing) {
		return err
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		kind = ErrCanceled
	}
	return &ProviderError{Provider: provider, Kind: kind, Err: err}
}

// kindFromStatus maps an HTTP status to a canonical error kind.
func kindFromStatus(status int) ErrorKind {
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return ErrAuthFailure
	case status == http.StatusTooManyRequests:
		return ErrRateLimited
	case status >= 400 && status < 500:
		return ErrInvalidRequest
	case status >= 500:
		return ErrUnavailable
	}
	return ErrUnknown
}

// retryAfterHeader parses a Retry-After header value in seconds.
func retryAfterHeader(h http.Header) time.Duration {
	if h == nil {
		return 0
	}
	raw := h.Get("Retry-After")
	if raw == "" {
		return 0
	}
	secs, err := strconv.ParseFloat(raw, 64)
	if err != nil || secs <= 0 {
		return 0
	}
	return time.Duration(secs * float64(time.Second))
}
