// Package chunker cuts documents into retrievable chunks.
//
// The header splitter follows the markdown heading structure. The size
// splitter optionally breaks oversized chunks apart afterwards.
package chunker

import (
	"context"
	"sort"
	"strings"

	"github.com/custodia-labs/docqa/internal/core/domain"
	"github.com/custodia-labs/docqa/internal/core/ports/driven"
)

// Ensure HeaderSplitter implements the interface.
var _ driven.PostProcessor = (*HeaderSplitter)(nil)

// HeaderSplitter splits document content on boundary markers.
type HeaderSplitter struct {
	markers []domain.BoundaryMarker
}

// NewHeaderSplitter creates a splitter for the given markers, highest
// precedence first. With no markers the level-1/level-2 defaults apply.
func NewHeaderSplitter(markers []domain.BoundaryMarker) *HeaderSplitter {
	if len(markers) == 0 {
		markers = domain.DefaultBoundaryMarkers()
	}
	return &HeaderSplitter{markers: markers}
}

// Name returns the processor name.
func (s *HeaderSplitter) Name() string {
	return "headers"
}

// Process splits the document into chunks. Input chunks are ignored.
func (s *HeaderSplitter) Process(_ context.Context, doc *domain.Document, _ []domain.Chunk) ([]domain.Chunk, error) {
	return Split(doc, s.markers), nil
}

// Split cuts doc into chunks along markers.
//
// A line matching the marker at rank r closes the pending chunk, truncates
// the header path to depth r-1 and pushes the heading text at depth r.
// Other lines accumulate into the pending chunk. Whitespace-only chunks
// are dropped. A document without marker lines yields one chunk.
func Split(doc *domain.Document, markers []domain.BoundaryMarker) []domain.Chunk {
	if doc == nil {
		return nil
	}

	m := newMatcher(markers)
	st := &splitState{}

	inFence := false
	for _, line := range strings.Split(doc.Content, "\n") {
		trimmed := strings.TrimSpace(line)
		if isFence(trimmed) {
			inFence = !inFence
		}
		if !inFence {
			if rank, text, ok := m.match(trimmed); ok {
				st.flush()
				st.push(header{rank: rank, label: markers[rank-1].Label, text: text})
				continue
			}
		}
		st.lines = append(st.lines, strings.TrimRight(line, " \t\r"))
	}
	st.flush()

	source := doc.SourceName()
	chunks := make([]domain.Chunk, len(st.sections))
	for i, sec := range st.sections {
		chunks[i] = domain.Chunk{
			ID:         ChunkID(doc.ID, i),
			Document:   doc.ID,
			Content:    sec.content,
			Headers:    sec.path(),
			Source:     source,
			DocType:    doc.DocType,
			LastUpdate: doc.LastUpdate,
			Position:   i,
			Metadata:   sec.metadata(doc.Metadata),
		}
	}
	return chunks
}

type header struct {
	rank  int
	label string
	text  string
}

type section struct {
	content string
	headers []header
}

func (s section) path() []string {
	if len(s.headers) == 0 {
		return nil
	}
	out := make([]string, len(s.headers))
	for i, h := range s.headers {
		out[i] = h.text
	}
	return out
}

func (s section) metadata(docMeta map[string]string) map[string]string {
	meta := make(map[string]string, len(docMeta)+len(s.headers))
	for k, v := range docMeta {
		meta[k] = v
	}
	for _, h := range s.headers {
		meta[h.label] = h.text
	}
	return meta
}

// splitState is the header stack plus the pending chunk buffer.
type splitState struct {
	stack    []header
	lines    []string
	sections []section
}

// push truncates the stack below the header's rank and pushes it.
func (s *splitState) push(h header) {
	for len(s.stack) > 0 && s.stack[len(s.stack)-1].rank >= h.rank {
		s.pop()
	}
	s.stack = append(s.stack, h)
}

func (s *splitState) pop() {
	s.stack = s.stack[:len(s.stack)-1]
}

// flush emits the pending chunk if it holds any text and clears the buffer.
func (s *splitState) flush() {
	content := strings.TrimSpace(strings.Join(s.lines, "\n"))
	s.lines = s.lines[:0]
	if content == "" {
		return
	}
	headers := make([]header, len(s.stack))
	copy(headers, s.stack)
	s.sections = append(s.sections, section{content: content, headers: headers})
}

type matcher struct {
	// byLength holds marker indexes, longest marker first, so "##" is
	// tried before "#".
	byLength []int
	markers  []domain.BoundaryMarker
}

func newMatcher(markers []domain.BoundaryMarker) *matcher {
	idx := make([]int, len(markers))
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, b int) bool {
		return len(markers[idx[a]].Marker) > len(markers[idx[b]].Marker)
	})
	return &matcher{byLength: idx, markers: markers}
}

// match returns the 1-based rank and heading text of a marker line.
func (m *matcher) match(line string) (int, string, bool) {
	for _, i := range m.byLength {
		marker := m.markers[i].Marker
		if marker == "" || !strings.HasPrefix(line, marker) {
			continue
		}
		rest := line[len(marker):]
		if rest != "" && rest[0] != ' ' && rest[0] != '\t' {
			continue
		}
		return i + 1, strings.TrimSpace(rest), true
	}
	return 0, "", false
}

func isFence(line string) bool {
	return strings.HasPrefix(line, "```") || strings.HasPrefix(line, "~~~")
}
