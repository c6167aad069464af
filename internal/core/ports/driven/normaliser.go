package driven

import (
	"context"

	"github.com/custodia-labs/docqa/internal/core/domain"
)

// Normaliser converts the raw bytes of one file into markdown text.
// Heading structure must survive as "#" markers so the chunker can
// split on it. Each normaliser handles specific file extensions.
type Normaliser interface {
	// SupportedExtensions returns the lower-case file extensions handled, with dot.
	SupportedExtensions() []string

	// Priority returns the selection priority (higher = preferred).
	// Format-specific normalisers return 50-89, fallbacks 1-9.
	Priority() int

	// Normalise converts a raw document.
	Normalise(ctx context.Context, raw *domain.RawDocument) (*domain.Document, error)
}
