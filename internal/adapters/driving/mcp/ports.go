package mcp

import (
	"context"

	"github.com/custodia-labs/docqa/internal/core/domain"
	"github.com/custodia-labs/docqa/internal/core/ports/driving"
)

// StagedDocuments reads converted documents awaiting or past indexing.
type StagedDocuments interface {
	List(ctx context.Context) ([]string, error)
	Get(ctx context.Context, name string) (*domain.Document, error)
}

// Ports aggregates everything the MCP server calls into.
type Ports struct {
	// Retrieval backs the retrieve tool.
	Retrieval driving.RetrievalService

	// Answers backs the ask tool. Without it only retrieval is offered.
	Answers driving.AnswerService

	// Staged exposes staged documents as resources. Optional.
	Staged StagedDocuments
}

// Validate ensures all required ports are set.
func (p *Ports) Validate() error {
	if p.Retrieval == nil {
		return ErrMissingRetrievalService
	}
	return nil
}
