package driven

import (
	"context"

	"github.com/custodia-labs/docqa/internal/core/domain"
)

// SearchEngine provides lexical (BM25) search over chunk content.
// This is optional - when nil, hybrid retrieval falls back to vectors alone.
type SearchEngine interface {
	// ReplaceDocument atomically replaces the indexed chunks of one document.
	ReplaceDocument(ctx context.Context, document string, chunks []domain.Chunk) error

	// Search returns up to limit chunk IDs matching query and filter,
	// by descending score. A nil filter means unfiltered.
	Search(ctx context.Context, query string, limit int, filter *domain.Filter) ([]SearchHit, error)

	// Count returns the number of indexed chunks.
	Count(ctx context.Context) (int, error)

	// Close releases resources.
	Close() error
}

// SearchHit represents a lexical search result.
type SearchHit struct {
	// ChunkID identifies the matching chunk.
	ChunkID string

	// Score is the relevance score (higher = more relevant).
	Score float64
}
