package driving

import (
	"context"

	"github.com/custodia-labs/docqa/internal/core/domain"
)

// RetrievalService finds the chunks most relevant to a query.
type RetrievalService interface {
	// Retrieve returns at most opts.K chunks by descending relevance.
	// opts.K <= 0 is a *domain.UsageError.
	Retrieve(ctx context.Context, query string, opts domain.RetrieveOptions) (*domain.RetrievalResult, error)
}
