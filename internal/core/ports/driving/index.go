package driving

import (
	"context"

	"github.com/custodia-labs/docqa/internal/core/domain"
)

// IndexService embeds chunks and writes them to the stores.
type IndexService interface {
	// Index embeds and stores the given chunks. A chunk whose embedding
	// fails after retries is counted as failed; the rest are still indexed.
	Index(ctx context.Context, chunks []domain.Chunk) (domain.IndexReport, error)

	// IndexDocument chunks one document and indexes it, replacing any
	// earlier version of the same source.
	IndexDocument(ctx context.Context, doc *domain.Document) (domain.IndexReport, error)

	// IndexStaged indexes every staged document.
	IndexStaged(ctx context.Context) (domain.IndexReport, error)

	// IndexStagedDocument indexes one staged document by name.
	IndexStagedDocument(ctx context.Context, name string) (domain.IndexReport, error)
}
