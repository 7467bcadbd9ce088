package crawler

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
)

// FailureKind classifies why an invocation or a page fetch failed.
type FailureKind string

// Failure kinds surfaced to callers.
const (
	FailureTimeout     FailureKind = "timeout"
	FailureForbidden   FailureKind = "forbidden"
	FailureRateLimited FailureKind = "rate_limited"
	FailureOther       FailureKind = "other"
	FailureConfig      FailureKind = "config"
	FailureParse       FailureKind = "parse"
	FailureCanceled    FailureKind = "canceled"
	FailurePersistence FailureKind = "persistence"
)

var (
	// ErrNotFound is returned by stores when a key or job does not exist.
	ErrNotFound = errors.New("not found")
	// ErrJobTerminal is returned when updating a job that already completed or failed.
	ErrJobTerminal = errors.New("job already in terminal state")
	// ErrQueueClosed is returned by Dequeue once a queue has been shut down.
	ErrQueueClosed = errors.New("queue closed")
)

// FetchError is a classified network failure for one URL.
type FetchError struct {
	Kind       FailureKind
	URL        string
	StatusCode int
	Err        error
}

// NewFetchError classifies err and statusCode into a FetchError.
func NewFetchError(url string, statusCode int, err error) *FetchError {
	return &FetchError{
		Kind:       classifyFetch(statusCode, err),
		URL:        url,
		StatusCode: statusCode,
		Err:        err,
	}
}

func (e *FetchError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("fetch %s: %s (status %d): %v", e.URL, e.Kind, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("fetch %s: %s: %v", e.URL, e.Kind, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

func classifyFetch(statusCode int, err error) FailureKind {
	switch statusCode {
	case http.StatusForbidden:
		return FailureForbidden
	case http.StatusTooManyRequests:
		return FailureRateLimited
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return FailureTimeout
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return FailureTimeout
	}
	return FailureOther
}

// ParseError marks a recoverable decode failure in page content.
type ParseError struct {
	Source string
	Err    error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse %s: %v", e.Source, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// ConfigError rejects an invocation before any fetch is made.
type ConfigError struct {
	Field  string
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// PersistenceError wraps a storage failure that aborted the upsert batch.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

// FailureKindOf maps err onto the failure taxonomy. Nil maps to "".
func FailureKindOf(err error) FailureKind {
	if err == nil {
		return ""
	}
	var fetchErr *FetchError
	if errors.As(err, &fetchErr) {
		return fetchErr.Kind
	}
	var cfgErr *ConfigError
	if errors.As(err, &cfgErr) {
		return FailureConfig
	}
	var parseErr *ParseError
	if errors.As(err, &parseErr) {
		return FailureParse
	}
	var persistErr *PersistenceError
	if errors.As(err, &persistErr) {
		return FailurePersistence
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return FailureTimeout
	}
	if errors.Is(err, context.Canceled) {
		return FailureCanceled
	}
	return FailureOther
}

// StatusCodeOf returns the HTTP status attached to err, if any.
func StatusCodeOf(err error) int {
	var fetchErr *FetchError
	if errors.As(err, &fetchErr) {
		return fetchErr.StatusCode
	}
	return 0
}
