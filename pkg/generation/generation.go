// Package generation defines the text-generation driver interface and the
// retrying client wrapped around it. Concrete drivers live in the provider
// subpackages.
package generation

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrGeneration is the sentinel for generation failures surfaced to callers,
// whether immediate (malformed request) or after retries are exhausted.
var ErrGeneration = errors.New("generation failed")

// Request is a single generation call: a system instruction plus the
// assembled prompt text.
type Request struct {
	System string
	Prompt string
}

// Response is the completion returned by a generator.
type Response struct {
	Text             string
	Model            string
	PromptTokens     int
	CompletionTokens int
}

// Generator is the driver interface implemented by each provider. A single
// call makes exactly one attempt; retry policy belongs to the Client.
type Generator interface {
	Generate(ctx context.Context, req *Request) (*Response, error)
}

// RetryableError marks a transient provider failure. RetryAfter is non-zero
// when the provider asked for a specific backoff (rate limiting); the Client
// honors it and surfaces it as backpressure.
type RetryableError struct {
	Err        error
	RetryAfter time.Duration
}

func (e *RetryableError) Error() string {
	if e.RetryAfter > 0 {
		return fmt.Sprintf("transient generation failure (retry after %s): %v", e.RetryAfter, e.Err)
	}
	return fmt.Sprintf("transient generation failure: %v", e.Err)
}

func (e *RetryableError) Unwrap() error {
	return e.Err
}

// Retryable reports whether err should be retried, and the provider-requested
// delay if any.
func Retryable(err error) (time.Duration, bool) {
	var retryable *RetryableError
	if errors.As(err, &retryable) {
		return retryable.RetryAfter, true
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return 0, true
	}
	return 0, false
}
