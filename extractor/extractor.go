// Package extractor converts raw images into fixed-length feature vectors.
//
// The convolutional model itself is an external collaborator behind the
// Extractor interface; this package ships an HTTP client for a remote
// embedding service and a deterministic stub for tests. Preprocessing is a
// single shared code path (see Preprocess) so that ingestion-time and
// query-time pixels are always prepared identically - a silent mismatch
// would degrade result quality without ever raising an error.
package extractor

import (
	"context"
	"fmt"
	"time"
)

// Extractor converts an image to a fixed-dimension feature vector.
type Extractor interface {
	// Embed converts a raw image to a vector of Dimension() floats.
	Embed(ctx context.Context, image []byte) ([]float32, error)

	// Dimension returns the vector dimensionality.
	Dimension() int

	// Name identifies the extractor.
	Name() string
}

// ExtractionError indicates that feature extraction failed.
//
// Transient reports whether the failure was upstream unavailability
// (timeout, 5xx, rate limit) rather than a permanent input problem
// (malformed image, unsupported format). Transient failures have already
// been retried per the client's RetryPolicy before being surfaced.
//
// The original underlying error (if any) can be accessed via errors.Unwrap.
type ExtractionError struct {
	Message   string
	Transient bool
	cause     error
}

func (e *ExtractionError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("extraction failed: %s: %v", e.Message, e.cause)
	}

	return fmt.Sprintf("extraction failed: %s", e.Message)
}

func (e *ExtractionError) Unwrap() error { return e.cause }

// NewExtractionError creates an ExtractionError wrapping cause.
func NewExtractionError(message string, transient bool, cause error) *ExtractionError {
	return &ExtractionError{Message: message, Transient: transient, cause: cause}
}

// RetryPolicy controls how transient upstream failures are retried.
//
// The default retries once after a short fixed delay. Whether exponential
// backoff is warranted under sustained upstream failure is workload
// dependent, so the policy is configurable rather than hard-coded.
type RetryPolicy struct {
	// MaxRetries is the number of retries after the initial attempt.
	MaxRetries int

	// Delay is the wait before the first retry.
	Delay time.Duration

	// Backoff multiplies the delay after every retry. 1 keeps it flat.
	Backoff float64
}

// DefaultRetryPolicy retries once after a flat 250ms delay.
var DefaultRetryPolicy = RetryPolicy{
	MaxRetries: 1,
	Delay:      250 * time.Millisecond,
	Backoff:    1,
}

// wait sleeps for the delay of the given retry attempt (1-based),
// honoring context cancellation.
func (p RetryPolicy) wait(ctx context.Context, attempt int) error {
	delay := p.Delay
	for i := 1; i < attempt; i++ {
		delay = time.Duration(float64(delay) * p.Backoff)
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(delay):
		return nil
	}
}
