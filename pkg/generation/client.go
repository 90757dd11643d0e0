package generation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
)

const (
	defaultMaxAttempts    = 3
	defaultBackoff        = 500 * time.Millisecond
	defaultAttemptTimeout = 30 * time.Second
)

// Config holds configuration for the retrying client.
type Config struct {
	// MaxAttempts bounds generation attempts (defaults to 3).
	MaxAttempts int

	// Backoff is the initial delay between attempts, doubled each retry
	// (defaults to 500ms). A provider-requested Retry-After overrides it
	// when longer.
	Backoff time.Duration

	// AttemptTimeout is the hard deadline applied to each attempt
	// (defaults to 30s).
	AttemptTimeout time.Duration
}

// Client wraps a Generator with bounded retries, exponential backoff, and a
// per-attempt timeout. Non-retryable failures surface immediately.
type Client struct {
	generator Generator
	config    Config
	logger    *zap.Logger
}

// NewClient creates a retrying client over the given generator.
func NewClient(generator Generator, config Config, logger *zap.Logger) *Client {
	if config.MaxAttempts <= 0 {
		config.MaxAttempts = defaultMaxAttempts
	}
	if config.Backoff <= 0 {
		config.Backoff = defaultBackoff
	}
	if config.AttemptTimeout <= 0 {
		config.AttemptTimeout = defaultAttemptTimeout
	}

	return &Client{
		generator: generator,
		config:    config,
		logger:    logger,
	}
}

// Generate runs the request through the underlying generator. Transient
// failures (rate limiting, network errors, attempt timeouts) are retried up
// to MaxAttempts; anything else is wrapped in ErrGeneration and returned at
// once. The final error keeps the provider failure in its chain so throttle
// signals stay visible to the caller.
func (c *Client) Generate(ctx context.Context, req *Request) (*Response, error) {
	var lastErr error
	backoff := c.config.Backoff

	for attempt := 1; attempt <= c.config.MaxAttempts; attempt++ {
		resp, err := c.attempt(ctx, req)
		if err == nil {
			return resp, nil
		}

		// The caller going away is not a provider fault.
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		retryAfter, ok := Retryable(err)
		if !ok {
			return nil, fmt.Errorf("%w: %w", ErrGeneration, err)
		}

		lastErr = err
		c.logger.Warn("generation attempt failed",
			zap.Int("attempt", attempt),
			zap.Int("max_attempts", c.config.MaxAttempts),
			zap.Duration("retry_after", retryAfter),
			zap.Error(err),
		)

		if attempt == c.config.MaxAttempts {
			break
		}

		wait := backoff
		if retryAfter > wait {
			wait = retryAfter
		}
		backoff *= 2

		select {
		case <-time.After(wait):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	return nil, fmt.Errorf("%w: %d attempts: %w", ErrGeneration, c.config.MaxAttempts, lastErr)
}

func (c *Client) attempt(ctx context.Context, req *Request) (*Response, error) {
	attemptCtx, cancel := context.WithTimeout(ctx, c.config.AttemptTimeout)
	defer cancel()

	resp, err := c.generator.Generate(attemptCtx, req)
	if err != nil && errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
		return nil, &RetryableError{Err: fmt.Errorf("attempt timed out after %s", c.config.AttemptTimeout)}
	}
	return resp, err
}
