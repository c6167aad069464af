package driven

import (
	"context"

	"github.com/custodia-labs/docqa/internal/core/domain"
)

// VectorStore persists chunk records with their embeddings and searches
// them by similarity.
//
// Writes become visible to readers only once complete: each
// ReplaceDocument call is applied atomically.
type VectorStore interface {
	// ReplaceDocument atomically replaces every record of one document
	// with records. document is the full document ID, not the file name.
	ReplaceDocument(ctx context.Context, document string, records []domain.IndexedRecord) error

	// Search returns up to k records most similar to query that satisfy
	// filter, ordered by descending similarity then insertion order.
	// A nil filter means unfiltered.
	Search(ctx context.Context, query []float32, k int, filter *domain.Filter) ([]VectorHit, error)

	// Get returns the records for the given IDs. Missing IDs are omitted.
	Get(ctx context.Context, ids []string) (map[string]domain.IndexedRecord, error)

	// Count returns the number of stored records.
	Count(ctx context.Context) (int, error)

	// EmbeddingSpace returns the space stored vectors belong to.
	// ok is false until one has been recorded.
	EmbeddingSpace(ctx context.Context) (space domain.EmbeddingSpace, ok bool, err error)

	// SetEmbeddingSpace records the space of the vectors being written.
	SetEmbeddingSpace(ctx context.Context, space domain.EmbeddingSpace) error

	// Close releases resources.
	Close() error
}

// VectorHit represents a vector search result.
type VectorHit struct {
	// ChunkID identifies the matching record.
	ChunkID string

	// Similarity is the cosine similarity (higher = more similar).
	Similarity float64

	// Seq is the record's insertion order.
	Seq int64
}
