// Package inmemory provides a brute-force cosine similarity implementation
// of vector.Driver for local development and tests.
package inmemory

import (
	"context"
	"math"
	"sort"
	"sync"

	"github.com/quorralabs/quorra/pkg/vector"
)

// Driver implements vector.Driver using an in-process map.
type Driver struct {
	mu     sync.RWMutex
	chunks map[string]vector.Chunk
}

// NewDriver creates a new in-memory vector driver.
func NewDriver() *Driver {
	return &Driver{
		chunks: make(map[string]vector.Chunk),
	}
}

// Add stores chunks, replacing any with the same ID.
func (d *Driver) Add(_ context.Context, chunks []vector.Chunk) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	for _, chunk := range chunks {
		d.chunks[chunk.ID] = chunk
	}

	return nil
}

// Query scores every stored chunk by cosine similarity and returns the topK.
func (d *Driver) Query(_ context.Context, embedding []float32, topK int) ([]vector.QueryResult, error) {
	if topK <= 0 {
		topK = 10
	}

	d.mu.RLock()
	defer d.mu.RUnlock()

	results := make([]vector.QueryResult, 0, len(d.chunks))
	for _, chunk := range d.chunks {
		score := cosine(embedding, chunk.Embedding)
		results = append(results, vector.QueryResult{Chunk: chunk, Score: score})
	}

	sort.Slice(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].ID < results[j].ID
	})

	if len(results) > topK {
		results = results[:topK]
	}

	return results, nil
}

// Close is a no-op for the in-memory driver.
func (d *Driver) Close() error {
	return nil
}

// cosine computes cosine similarity; mismatched or zero-length vectors score 0.
func cosine(a, b []float32) float32 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}

	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}

	if normA == 0 || normB == 0 {
		return 0
	}

	return float32(dot / (math.Sqrt(normA) * math.Sqrt(normB)))
}
