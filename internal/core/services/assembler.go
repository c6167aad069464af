package services

import (
	"strings"

	"github.com/custodia-labs/docqa/internal/core/domain"
)

// contextSeparator goes between chunks in the assembled context.
const contextSeparator = "\n\n"

// AssembleContext joins chunk contents with a blank line, in the order
// given. It does not reorder, trim or deduplicate.
func AssembleContext(chunks []domain.Chunk) string {
	parts := make([]string, len(chunks))
	for i := range chunks {
		parts[i] = chunks[i].Content
	}
	return strings.Join(parts, contextSeparator)
}

// AssembleContextBounded is AssembleContext limited to maxChars bytes.
// Chunks are taken whole, in order, until the next one would not fit.
// maxChars <= 0 means no limit.
func AssembleContextBounded(chunks []domain.Chunk, maxChars int) (string, int) {
	if maxChars <= 0 {
		return AssembleContext(chunks), len(chunks)
	}

	size := 0
	n := 0
	for i := range chunks {
		add := len(chunks[i].Content)
		if i > 0 {
			add += len(contextSeparator)
		}
		if size+add > maxChars {
			break
		}
		size += add
		n++
	}
	return AssembleContext(chunks[:n]), n
}
