package chunker

import (
	"context"
	"strings"

	"github.com/custodia-labs/docqa/internal/core/domain"
	"github.com/custodia-labs/docqa/internal/core/ports/driven"
)

// Ensure Processor implements the interface.
var _ driven.PostProcessor = (*Processor)(nil)

// DefaultChunkSize is the default maximum number of characters per chunk.
const DefaultChunkSize = 4000

// DefaultChunkOverlap is the default number of overlapping characters.
// Zero keeps the pieces of a section concatenable back into the section.
const DefaultChunkOverlap = 0

// Processor breaks oversized chunks into pieces of at most chunkSize
// characters, preferring paragraph and then word boundaries. Pieces keep
// the header path of the chunk they came from.
type Processor struct {
	chunkSize int
	overlap   int
}

// Option configures the size processor.
type Option func(*Processor)

// WithChunkSize sets the chunk size in characters.
func WithChunkSize(size int) Option {
	return func(p *Processor) {
		if size > 0 {
			p.chunkSize = size
		}
	}
}

// WithOverlap sets the overlap between pieces in characters.
func WithOverlap(overlap int) Option {
	return func(p *Processor) {
		if overlap >= 0 {
			p.overlap = overlap
		}
	}
}

// New creates a size processor with the given options.
func New(opts ...Option) *Processor {
	p := &Processor{
		chunkSize: DefaultChunkSize,
		overlap:   DefaultChunkOverlap,
	}

	for _, opt := range opts {
		opt(p)
	}

	// Ensure overlap doesn't exceed chunk size
	if p.overlap >= p.chunkSize {
		p.overlap = p.chunkSize / 4
	}

	return p
}

// Name returns the processor name.
func (p *Processor) Name() string {
	return "size"
}

// Process splits oversized chunks. When it is first in the pipeline it
// treats the whole document as one chunk. Positions and IDs are
// renumbered across the output.
func (p *Processor) Process(_ context.Context, doc *domain.Document, chunks []domain.Chunk) ([]domain.Chunk, error) {
	if chunks == nil {
		whole := wholeDocument(doc)
		if whole.Content == "" {
			return nil, nil
		}
		chunks = []domain.Chunk{whole}
	}

	out := make([]domain.Chunk, 0, len(chunks))
	for _, c := range chunks {
		for _, piece := range p.split(c.Content) {
			next := c
			next.Content = piece
			next.Metadata = copyMeta(c.Metadata)
			out = append(out, next)
		}
	}

	for i := range out {
		if out[i].Document == "" && doc != nil {
			out[i].Document = doc.ID
		}
		out[i].Position = i
		out[i].ID = ChunkID(out[i].Document, i)
	}
	return out, nil
}

func (p *Processor) split(content string) []string {
	if len(content) <= p.chunkSize {
		return []string{content}
	}

	var pieces []string
	var cur strings.Builder
	for _, para := range strings.Split(content, "\n\n") {
		for _, part := range p.hardSplit(para) {
			if cur.Len() > 0 && cur.Len()+2+len(part) > p.chunkSize {
				pieces = append(pieces, cur.String())
				tail := overlapTail(cur.String(), p.overlap)
				cur.Reset()
				cur.WriteString(tail)
			}
			if cur.Len() > 0 {
				cur.WriteString("\n\n")
			}
			cur.WriteString(part)
		}
	}
	if strings.TrimSpace(cur.String()) != "" {
		pieces = append(pieces, cur.String())
	}
	return pieces
}

// hardSplit breaks a single paragraph longer than chunkSize at word boundaries.
func (p *Processor) hardSplit(para string) []string {
	if len(para) <= p.chunkSize {
		return []string{para}
	}

	var parts []string
	for len(para) > p.chunkSize {
		cut := strings.LastIndexAny(para[:p.chunkSize], " \n\t")
		if cut <= 0 {
			cut = p.chunkSize
			// Avoid cutting inside a multi-byte rune.
			for cut > 0 && !isRuneStart(para[cut]) {
				cut--
			}
		}
		parts = append(parts, strings.TrimSpace(para[:cut]))
		para = strings.TrimSpace(para[cut:])
	}
	if para != "" {
		parts = append(parts, para)
	}
	return parts
}

func overlapTail(s string, n int) string {
	if n <= 0 || n >= len(s) {
		return ""
	}
	start := len(s) - n
	for start < len(s) && !isRuneStart(s[start]) {
		start++
	}
	return strings.TrimLeft(s[start:], " \n\t")
}

func isRuneStart(b byte) bool {
	return b&0xC0 != 0x80
}

func wholeDocument(doc *domain.Document) domain.Chunk {
	source := doc.SourceName()
	return domain.Chunk{
		Document:   doc.ID,
		Content:    strings.TrimSpace(doc.Content),
		Source:     source,
		DocType:    doc.DocType,
		LastUpdate: doc.LastUpdate,
		Metadata:   copyMeta(doc.Metadata),
	}
}

func copyMeta(m map[string]string) map[string]string {
	if m == nil {
		return nil
	}
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
