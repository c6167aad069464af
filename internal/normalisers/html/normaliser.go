// Package html normalises HTML pages into markdown. Heading tags become
// "#" markers; navigation chrome and scripts are dropped.
package html

import (
	"bytes"
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"golang.org/x/net/html"

	"github.com/custodia-labs/docqa/internal/core/domain"
	"github.com/custodia-labs/docqa/internal/core/ports/driven"
)

// Ensure Normaliser implements the interface.
var _ driven.Normaliser = (*Normaliser)(nil)

// Normaliser handles HTML documents.
type Normaliser struct{}

// New creates a new HTML normaliser.
func New() *Normaliser {
	return &Normaliser{}
}

// SupportedExtensions returns the extensions this normaliser handles.
func (n *Normaliser) SupportedExtensions() []string {
	return []string{".html", ".htm", ".xhtml"}
}

// Priority returns the selection priority.
func (n *Normaliser) Priority() int {
	return 50
}

// Normalise converts an HTML document to markdown.
func (n *Normaliser) Normalise(ctx context.Context, raw *domain.RawDocument) (*domain.Document, error) {
	if raw == nil {
		return nil, domain.ErrInvalidInput
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	root, err := html.Parse(bytes.NewReader(raw.Content))
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}

	title := findTitle(root)
	if title == "" {
		title = titleFromURI(raw.URI)
	}

	w := &writer{}
	if body := findElement(root, "body"); body != nil {
		w.walk(body)
	} else {
		w.walk(root)
	}

	meta := copyMetadata(raw.Metadata)
	meta[domain.MetaFormat] = "html"

	return &domain.Document{
		ID:       raw.URI,
		Title:    title,
		Content:  strings.Join(w.blocks, "\n\n"),
		Metadata: meta,
	}, nil
}

// writer collects markdown blocks in document order.
type writer struct {
	blocks []string
}

func (w *writer) add(block string) {
	if block != "" {
		w.blocks = append(w.blocks, block)
	}
}

func (w *writer) walk(n *html.Node) {
	if n.Type == html.TextNode {
		// Bare text directly inside a container such as <div>.
		w.add(collapse(n.Data))
		return
	}
	if n.Type == html.ElementNode {
		if level := headingLevel(n.Data); level > 0 {
			if text := textContent(n); text != "" {
				w.add(strings.Repeat("#", level) + " " + text)
			}
			return
		}

		switch n.Data {
		case "script", "style", "noscript", "nav", "footer", "header", "svg", "template":
			return
		case "p", "td", "th", "dt", "dd", "figcaption":
			w.add(textContent(n))
			return
		case "li":
			if text := textContent(n); text != "" {
				w.add("- " + text)
			}
			return
		case "blockquote":
			if text := textContent(n); text != "" {
				w.add("> " + text)
			}
			return
		case "pre":
			if text := rawText(n); strings.TrimSpace(text) != "" {
				w.add("```\n" + strings.Trim(text, "\n") + "\n```")
			}
			return
		}
	}

	for c := n.FirstChild; c != nil; c = c.NextSibling {
		w.walk(c)
	}
}

func headingLevel(tag string) int {
	if len(tag) == 2 && tag[0] == 'h' && tag[1] >= '1' && tag[1] <= '6' {
		return int(tag[1] - '0')
	}
	return 0
}

// textContent returns the whitespace-collapsed text below n.
func textContent(n *html.Node) string {
	return collapse(rawText(n))
}

func rawText(n *html.Node) string {
	var buf strings.Builder
	var extract func(*html.Node)
	extract = func(n *html.Node) {
		if n.Type == html.TextNode {
			buf.WriteString(n.Data)
		}
		if n.Type == html.ElementNode && n.Data == "br" {
			buf.WriteByte('\n')
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			extract(c)
		}
	}
	extract(n)
	return buf.String()
}

func collapse(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func findTitle(root *html.Node) string {
	if n := findElement(root, "title"); n != nil {
		return textContent(n)
	}
	return ""
}

func findElement(n *html.Node, tag string) *html.Node {
	if n.Type == html.ElementNode && n.Data == tag {
		return n
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if found := findElement(c, tag); found != nil {
			return found
		}
	}
	return nil
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
