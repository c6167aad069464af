package driving

import (
	"context"

	"github.com/custodia-labs/docqa/internal/core/domain"
)

// IngestOptions configures a conversion batch.
type IngestOptions struct {
	// SourceDir is the folder of original documents.
	SourceDir string

	// Include holds doublestar glob patterns relative to SourceDir.
	// Empty means every file with a supported extension.
	Include []string

	// DocType tags every converted document. Empty uses domain.DefaultDocType.
	DocType string
}

// IngestService converts source documents into staged markdown.
type IngestService interface {
	// Ingest converts every matching file. A file that fails conversion is
	// reported as a *domain.ConversionError and the batch continues.
	Ingest(ctx context.Context, opts IngestOptions) (*domain.IngestReport, error)
}
