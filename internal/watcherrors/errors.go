// Package watcherrors provides the error taxonomy for the collection watcher.
// Every failure surfaced by the core falls into one of four categories, and
// containment policy is decided by category: transient errors are retried
// within a cycle, permanent errors skip the source for the cycle, persistence
// errors are retried on the next flush, and partial-data errors skip a single
// record.
package watcherrors

import (
	"errors"
	"fmt"
	"time"
)

// Category classifies a watcher error
type Category string

const (
	// CategoryTransient covers network failures, 5xx responses, and rate
	// limiting. Retried with backoff within the current cycle.
	CategoryTransient Category = "transient"
	// CategoryPermanent covers bad config, auth failures, and malformed
	// requests. Never retried; the source is skipped until the next tick.
	CategoryPermanent Category = "permanent"
	// CategoryPersistence covers durable store write failures. Logged and
	// retried on the next flush, never fatal to the poll loop.
	CategoryPersistence Category = "persistence"
	// CategoryPartialData covers a single malformed record within an
	// otherwise valid batch. The record is skipped, the batch continues.
	CategoryPartialData Category = "partial_data"
)

// WatchError is an error with a category and an optional provider context
type WatchError struct {
	Category Category
	Provider string
	Message  string
	Cause    error

	// RetryAfter carries a provider-supplied backoff hint (from a 429
	// Retry-After header). Zero when the provider gave no hint.
	RetryAfter time.Duration
}

// Error implements the error interface
func (e *WatchError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Category, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Category, e.Message)
}

// Unwrap returns the underlying cause
func (e *WatchError) Unwrap() error {
	return e.Cause
}

// NewTransient creates a transient (retryable) error
func NewTransient(provider, message string, cause error) *WatchError {
	return &WatchError{
		Category: CategoryTransient,
		Provider: provider,
		Message:  message,
		Cause:    cause,
	}
}

// NewRateLimited creates a transient error carrying a Retry-After hint
func NewRateLimited(provider string, retryAfter time.Duration) *WatchError {
	return &WatchError{
		Category:   CategoryTransient,
		Provider:   provider,
		Message:    "rate limited (429)",
		RetryAfter: retryAfter,
	}
}

// NewPermanent creates a permanent (non-retryable) error
func NewPermanent(provider, message string, cause error) *WatchError {
	return &WatchError{
		Category: CategoryPermanent,
		Provider: provider,
		Message:  message,
		Cause:    cause,
	}
}

// NewPersistence creates a durable store error
func NewPersistence(operation string, cause error) *WatchError {
	return &WatchError{
		Category: CategoryPersistence,
		Message:  fmt.Sprintf("durable store error during %s", operation),
		Cause:    cause,
	}
}

// NewPartialData creates a skipped-record error
func NewPartialData(provider, message string, cause error) *WatchError {
	return &WatchError{
		Category: CategoryPartialData,
		Provider: provider,
		Message:  message,
		Cause:    cause,
	}
}

// CategoryOf returns the category of err, or CategoryTransient for
// uncategorized errors so unknown failures stay retryable.
func CategoryOf(err error) Category {
	var we *WatchError
	if errors.As(err, &we) {
		return we.Category
	}
	return CategoryTransient
}

// IsTransient reports whether err should be retried within the cycle
func IsTransient(err error) bool {
	return err != nil && CategoryOf(err) == CategoryTransient
}

// IsPermanent reports whether err must not be retried
func IsPermanent(err error) bool {
	return err != nil && CategoryOf(err) == CategoryPermanent
}

// RetryAfterHint returns the provider-supplied backoff hint for err, if any
func RetryAfterHint(err error) (time.Duration, bool) {
	var we *WatchError
	if errors.As(err, &we) && we.RetryAfter > 0 {
		return we.RetryAfter, true
	}
	return 0, false
}
