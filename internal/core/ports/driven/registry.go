package driven

import (
	"context"

	"github.com/custodia-labs/docqa/internal/core/domain"
)

// NormaliserRegistry selects the appropriate normaliser for a document.
type NormaliserRegistry interface {
	// Normalise converts a raw document using the best matching normaliser.
	// Returns domain.ErrUnsupportedType when none matches.
	Normalise(ctx context.Context, raw *domain.RawDocument) (*domain.Document, error)

	// Register adds a normaliser to the registry.
	Register(normaliser Normaliser)

	// Supports reports whether a file with this name can be normalised.
	Supports(filename string) bool

	// SupportedExtensions returns all extensions that can be normalised.
	SupportedExtensions() []string
}
