// Package markdown normalises markdown files. Setext headings are
// rewritten as "#" markers; everything else passes through untouched.
package markdown

import (
	"bytes"
	"context"
	"path/filepath"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"

	"github.com/custodia-labs/docqa/internal/core/domain"
	"github.com/custodia-labs/docqa/internal/core/ports/driven"
)

// Ensure Normaliser implements the interface.
var _ driven.Normaliser = (*Normaliser)(nil)

// Normaliser handles Markdown documents.
type Normaliser struct {
	md goldmark.Markdown
}

// New creates a new Markdown normaliser.
func New() *Normaliser {
	return &Normaliser{md: goldmark.New()}
}

// SupportedExtensions returns the extensions this normaliser handles.
func (n *Normaliser) SupportedExtensions() []string {
	return []string{".md", ".markdown"}
}

// Priority returns the selection priority.
func (n *Normaliser) Priority() int {
	return 50
}

// Normalise parses the document and returns it with ATX headings only.
func (n *Normaliser) Normalise(ctx context.Context, raw *domain.RawDocument) (*domain.Document, error) {
	if raw == nil {
		return nil, domain.ErrInvalidInput
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	src := bytes.ReplaceAll(raw.Content, []byte("\r\n"), []byte("\n"))
	root := n.md.Parser().Parse(text.NewReader(src))

	content, title := rewriteHeadings(src, root)
	if title == "" {
		title = titleFromURI(raw.URI)
	}

	meta := copyMetadata(raw.Metadata)
	meta[domain.MetaFormat] = "markdown"

	return &domain.Document{
		ID:       raw.URI,
		Title:    title,
		Content:  strings.TrimSpace(content),
		Metadata: meta,
	}, nil
}

// rewriteHeadings replaces each top-level setext heading with its ATX form
// and returns the first level-1 heading text as the title.
func rewriteHeadings(src []byte, root ast.Node) (string, string) {
	var out strings.Builder
	var title string
	last := 0

	for node := root.FirstChild(); node != nil; node = node.NextSibling() {
		heading, ok := node.(*ast.Heading)
		if !ok || heading.Lines().Len() == 0 {
			continue
		}

		lines := heading.Lines()
		var parts []string
		for i := 0; i < lines.Len(); i++ {
			seg := lines.At(i)
			parts = append(parts, strings.TrimSpace(string(seg.Value(src))))
		}
		label := strings.Join(parts, " ")
		if title == "" && heading.Level == 1 {
			title = label
		}

		start := lineStart(src, lines.At(0).Start)
		if isATX(src[start:]) {
			continue
		}

		textEnd := lineEnd(src, lines.At(lines.Len()-1).Stop)
		underlineEnd := lineEnd(src, textEnd)
		if !isUnderline(src[textEnd:underlineEnd]) {
			continue
		}

		out.Write(src[last:start])
		out.WriteString(strings.Repeat("#", heading.Level))
		out.WriteByte(' ')
		out.WriteString(label)
		out.WriteByte('\n')
		last = underlineEnd
	}
	out.Write(src[last:])
	return out.String(), title
}

// lineStart returns the offset of the first byte of the line holding pos.
func lineStart(src []byte, pos int) int {
	if pos > len(src) {
		pos = len(src)
	}
	return bytes.LastIndexByte(src[:pos], '\n') + 1
}

// lineEnd returns the offset just past the newline ending the line that
// holds pos, or past a newline that ends right before pos.
func lineEnd(src []byte, pos int) int {
	if pos > 0 && pos <= len(src) && src[pos-1] == '\n' {
		return pos
	}
	if pos >= len(src) {
		return len(src)
	}
	i := bytes.IndexByte(src[pos:], '\n')
	if i < 0 {
		return len(src)
	}
	return pos + i + 1
}

func isATX(line []byte) bool {
	return bytes.HasPrefix(bytes.TrimLeft(line, " "), []byte("#"))
}

func isUnderline(line []byte) bool {
	trimmed := strings.TrimSpace(string(line))
	if trimmed == "" {
		return false
	}
	return strings.Trim(trimmed, "=") == "" || strings.Trim(trimmed, "-") == ""
}

func titleFromURI(uri string) string {
	filename := filepath.Base(uri)
	filename = strings.TrimSuffix(filename, filepath.Ext(filename))
	filename = strings.ReplaceAll(filename, "_", " ")
	filename = strings.ReplaceAll(filename, "-", " ")
	return filename
}

func copyMetadata(src map[string]string) map[string]string {
	dst := make(map[string]string, len(src)+1)
	for k, v := range src {
		dst[k] = v
	}
	return dst
}
