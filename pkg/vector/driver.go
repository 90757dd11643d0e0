// Package vector provides interfaces and implementations for the knowledge
// chunk index. Chunks are produced and embedded by the offline ingestion
// pipeline; the query path treats them as read-only and immutable.
package vector

import (
	"context"
	"fmt"
)

// SourceLocator identifies where a chunk came from in the source corpus.
type SourceLocator struct {
	// Document is the source document name or path.
	Document string `json:"document"`

	// Page is the 1-based page or section number, zero if unknown.
	Page int `json:"page,omitempty"`
}

// String renders the locator for citations, e.g. "algorithms.pdf p.12".
func (l SourceLocator) String() string {
	if l.Page <= 0 {
		return l.Document
	}
	return fmt.Sprintf("%s p.%d", l.Document, l.Page)
}

// Chunk is one immutable unit of the indexed corpus.
type Chunk struct {
	// ID is a unique identifier for the chunk.
	ID string `json:"id"`

	// Text is the chunk content.
	Text string `json:"text"`

	// Embedding is the vector representation, produced offline. Drivers
	// may omit it on query results.
	Embedding []float32 `json:"-"`

	// Source locates the chunk in the originating document.
	Source SourceLocator `json:"source"`

	// TokenCount is the chunk's size in generation-service token units,
	// computed at ingestion time. Zero means unknown.
	TokenCount int `json:"token_count,omitempty"`
}

// QueryResult is a chunk match with its similarity score.
type QueryResult struct {
	Chunk

	// Score is the similarity score (higher = more similar).
	Score float32 `json:"score"`
}

// Driver handles storage and retrieval of embedded chunks.
type Driver interface {
	// Add stores chunks with their embeddings. A chunk with an existing
	// ID is updated. Only the ingestion pipeline and tests write.
	Add(ctx context.Context, chunks []Chunk) error

	// Query finds the topK most similar chunks to the given embedding,
	// descending by score. Fewer results are returned if the index holds
	// fewer eligible chunks.
	Query(ctx context.Context, embedding []float32, topK int) ([]QueryResult, error)

	// Close releases any resources held by the driver.
	Close() error
}
