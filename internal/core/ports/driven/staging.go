package driven

import (
	"context"

	"github.com/custodia-labs/docqa/internal/core/domain"
)

// StagingStore holds converted documents between ingestion and indexing.
type StagingStore interface {
	// Put stores a converted document with its metadata and returns its staged name.
	Put(ctx context.Context, doc *domain.Document) (string, error)

	// Get loads a staged document by name.
	Get(ctx context.Context, name string) (*domain.Document, error)

	// List returns the names of all staged documents, sorted.
	List(ctx context.Context) ([]string, error)

	// Dir returns the directory backing the store.
	Dir() string
}
