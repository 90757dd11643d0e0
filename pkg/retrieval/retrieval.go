// Package retrieval implements the query side of the knowledge index: embed
// the query text, run the similarity search with bounded retries, and
// normalize the result ordering so equal scores are deterministic.
package retrieval

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/quorralabs/quorra/pkg/embeddings"
	"github.com/quorralabs/quorra/pkg/vector"
)

// ErrUnavailable is returned once retries against the vector index are
// exhausted. The orchestrator may degrade to history-only context instead of
// failing the request.
var ErrUnavailable = errors.New("retrieval unavailable")

const (
	defaultTopK        = 3
	defaultMaxAttempts = 3
	defaultBackoff     = 200 * time.Millisecond
)

// Config holds configuration for the retrieval client.
type Config struct {
	// TopK is the default number of chunks to retrieve (defaults to 3).
	TopK int

	// MaxAttempts bounds query attempts against the index (defaults to 3).
	MaxAttempts int

	// Backoff is the initial delay between attempts, doubled each retry
	// (defaults to 200ms).
	Backoff time.Duration
}

// Client queries the vector index for chunks relevant to a text query.
type Client struct {
	embedder embeddings.Embedder
	driver   vector.Driver
	config   Config
	logger   *zap.Logger
}

// NewClient creates a retrieval client over the given embedder and driver.
func NewClient(embedder embeddings.Embedder, driver vector.Driver, config Config, logger *zap.Logger) *Client {
	if config.TopK <= 0 {
		config.TopK = defaultTopK
	}
	if config.MaxAttempts <= 0 {
		config.MaxAttempts = defaultMaxAttempts
	}
	if config.Backoff <= 0 {
		config.Backoff = defaultBackoff
	}

	return &Client{
		embedder: embedder,
		driver:   driver,
		config:   config,
		logger:   logger,
	}
}

// Retrieve embeds the query and returns the topK most similar chunks,
// descending by score with ties broken by ascending chunk id. A topK of zero
// or less uses the configured default.
func (c *Client) Retrieve(ctx context.Context, query string, topK int) ([]vector.QueryResult, error) {
	if topK <= 0 {
		topK = c.config.TopK
	}

	embedding, err := c.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("%w: embedding query: %v", ErrUnavailable, err)
	}

	results, err := c.queryWithRetry(ctx, embedding, topK)
	if err != nil {
		return nil, err
	}

	// Drivers already rank by score; re-sort to pin down the tie order so
	// equal scores are deterministic across backends.
	sort.SliceStable(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].ID < results[j].ID
	})

	c.logger.Debug("retrieved chunks",
		zap.Int("count", len(results)),
		zap.Int("top_k", topK),
	)

	return results, nil
}

// queryWithRetry is an explicit bounded-attempt loop: transient index errors
// are retried with doubling backoff; exhaustion surfaces ErrUnavailable.
func (c *Client) queryWithRetry(ctx context.Context, embedding []float32, topK int) ([]vector.QueryResult, error) {
	var lastErr error
	backoff := c.config.Backoff

	for attempt := 1; attempt <= c.config.MaxAttempts; attempt++ {
		results, err := c.driver.Query(ctx, embedding, topK)
		if err == nil {
			return results, nil
		}

		lastErr = err
		c.logger.Warn("vector index query failed",
			zap.Int("attempt", attempt),
			zap.Int("max_attempts", c.config.MaxAttempts),
			zap.Error(err),
		)

		if attempt == c.config.MaxAttempts {
			break
		}

		select {
		case <-time.After(backoff):
			backoff *= 2
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	return nil, fmt.Errorf("%w: %v", ErrUnavailable, lastErr)
}
