// Package errors provides error classification for the sync engine.
//
// Every failure the engine sees falls into one of four categories that
// determine how it is handled:
//   - Categorization: decide whether a failure is worth retrying
//   - Retry: transient and server failures back off and try again
//   - Isolation: client failures stop one record, never the batch
//   - Abort: local store failures end the reconciliation pass
package errors

import (
	"context"
	"errors"
	"fmt"
	"net"
)

// Category represents how an error should be handled.
type Category int

const (
	// CategoryTransient indicates a transport-level failure.
	// Examples: connection refused, reset, timed-out attempt.
	CategoryTransient Category = iota

	// CategoryServer indicates the remote store failed or pushed back.
	// Examples: 5xx responses, rate limits, request timeouts.
	CategoryServer

	// CategoryClient indicates the request itself was rejected.
	// Examples: 404, validation failures, auth failures.
	CategoryClient

	// CategoryStore indicates the local store failed.
	// Fatal to the current reconciliation pass.
	CategoryStore
)

// String returns the category name.
func (c Category) String() string {
	switch c {
	case CategoryTransient:
		return "transient"
	case CategoryServer:
		return "server"
	case CategoryClient:
		return "client"
	case CategoryStore:
		return "store"
	default:
		return "unknown"
	}
}

// CategorizedError wraps an error with its category and context.
type CategorizedError struct {
	// Err is the underlying error.
	Err error

	// Category indicates how this error should be handled.
	Category Category

	// Attempts is the number of attempts that have been made.
	Attempts int

	// Context describes what operation was being attempted.
	Context string
}

// Error implements the error interface.
func (e *CategorizedError) Error() string {
	if e.Context != "" {
		return fmt.Sprintf("%s: %s (category: %s, attempts: %d)",
			e.Context, e.Err, e.Category, e.Attempts)
	}
	return fmt.Sprintf("%s (category: %s, attempts: %d)",
		e.Err, e.Category, e.Attempts)
}

// Unwrap returns the underlying error.
func (e *CategorizedError) Unwrap() error {
	return e.Err
}

// NewCategorized creates a new categorized error.
func NewCategorized(err error, category Category, context string) *CategorizedError {
	return &CategorizedError{
		Err:      err,
		Category: category,
		Context:  context,
	}
}

// Transient creates a transient error.
func Transient(err error, context string) *CategorizedError {
	return NewCategorized(err, CategoryTransient, context)
}

// Server creates a server error.
func Server(err error, context string) *CategorizedError {
	return NewCategorized(err, CategoryServer, context)
}

// Client creates a client error.
func Client(err error, context string) *CategorizedError {
	return NewCategorized(err, CategoryClient, context)
}

// Store creates a local-store error.
func Store(err error, context string) *CategorizedError {
	return NewCategorized(err, CategoryStore, context)
}

// Categorize determines how an error should be handled.
func Categorize(err error) Category {
	if err == nil {
		return CategoryClient // shouldn't happen, fail safe
	}

	// Check for already-categorized errors
	var catErr *CategorizedError
	if errors.As(err, &catErr) {
		return catErr.Category
	}

	// Check for local store errors
	var storeErr *StoreError
	if errors.As(err, &storeErr) {
		return CategoryStore
	}

	// Check for HTTP errors
	var httpErr *HTTPError
	if errors.As(err, &httpErr) {
		switch httpErr.StatusCode {
		case 408, 429, 503, 504:
			return CategoryServer
		default:
			if httpErr.StatusCode >= 500 {
				return CategoryServer
			}
			return CategoryClient
		}
	}

	// Check for timeout errors
	var timeoutErr *TimeoutError
	if errors.As(err, &timeoutErr) {
		return CategoryTransient
	}

	// Check for transport-level network errors
	var netErr net.Error
	if errors.As(err, &netErr) {
		return CategoryTransient
	}

	// An expired deadline is a timed-out attempt
	if errors.Is(err, context.DeadlineExceeded) {
		return CategoryTransient
	}

	// Unknown errors are terminal (fail safe)
	return CategoryClient
}

// IsRetryable reports whether the error should be retried.
// Transient transport failures and server-side failures are retryable;
// client and local-store failures are terminal.
func IsRetryable(err error) bool {
	cat := Categorize(err)
	return cat == CategoryTransient || cat == CategoryServer
}

// IsFatal reports whether the error aborts a reconciliation pass.
func IsFatal(err error) bool {
	return Categorize(err) == CategoryStore
}
