// Package plaintext is the fallback normaliser for text files. Content
// passes through unchanged, so any "#" lines already present still split.
package plaintext

import (
	"context"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/custodia-labs/docqa/internal/core/domain"
	"github.com/custodia-labs/docqa/internal/core/ports/driven"
)

// Ensure Normaliser implements the interface.
var _ driven.Normaliser = (*Normaliser)(nil)

// Normaliser handles plain text documents.
type Normaliser struct{}

// New creates a new plain text normaliser.
func New() *Normaliser {
	return &Normaliser{}
}

// SupportedExtensions returns the extensions this normaliser handles.
func (n *Normaliser) SupportedExtensions() []string {
	return []string{".txt", ".text", ".rst", ".csv", ".log"}
}

// Priority returns the selection priority.
func (n *Normaliser) Priority() int {
	return 5 // Fallback normaliser
}

// Normalise returns the text as is. Binary content is rejected.
func (n *Normaliser) Normalise(_ context.Context, raw *domain.RawDocument) (*domain.Document, error) {
	if raw == nil {
		return nil, domain.ErrInvalidInput
	}
	if !utf8.Valid(raw.Content) {
		return nil, domain.ErrUnsupportedType
	}

	content := strings.ReplaceAll(string(raw.Content), "\r\n", "\n")

	meta := make(map[string]string, len(raw.Metadata)+1)
	for k, v := range raw.Metadata {
		meta[k] = v
	}
	meta[domain.MetaFormat] = "text"

	return &domain.Document{
		ID:       raw.URI,
		Title:    extractTitle(raw),
		Content:  strings.TrimSpace(content),
		Metadata: meta,
	}, nil
}

// extractTitle checks metadata for a title first, then falls back to the URI.
func extractTitle(raw *domain.RawDocument) string {
	if title := raw.Metadata["title"]; title != "" {
		return title
	}

	filename := filepath.Base(raw.URI)
	filename = strings.TrimSuffix(filename, filepath.Ext(filename))
	filename = strings.ReplaceAll(filename, "_", " ")
	filename = strings.ReplaceAll(filename, "-", " ")
	return filename
}
