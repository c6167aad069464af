package search

import (
	"context"
	"fmt"
	"sync"

	"github.com/custodia-labs/docqa/internal/core/domain"
	"github.com/custodia-labs/docqa/internal/core/ports/driven"
)

// Ensure Lazy implements the interface.
var _ driven.SearchEngine = (*Lazy)(nil)

// Lazy opens the index at path on first use, so commands that never
// touch lexical search never take the index file lock. A failed open is
// retried on the next call.
type Lazy struct {
	path string

	mu     sync.Mutex
	engine *Engine
	closed bool
}

// NewLazy returns an engine that opens path on first use.
func NewLazy(path string) *Lazy {
	return &Lazy{path: path}
}

func (l *Lazy) open() (*Engine, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return nil, fmt.Errorf("%w: index closed", domain.ErrSearchUnavailable)
	}
	if l.engine == nil {
		e, err := Open(l.path)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", domain.ErrSearchUnavailable, err)
		}
		l.engine = e
	}
	return l.engine, nil
}

// ReplaceDocument opens the index if needed and replaces the chunks of document.
func (l *Lazy) ReplaceDocument(ctx context.Context, document string, chunks []domain.Chunk) error {
	e, err := l.open()
	if err != nil {
		return err
	}
	return e.ReplaceDocument(ctx, document, chunks)
}

// Search opens the index if needed and searches it.
func (l *Lazy) Search(ctx context.Context, text string, limit int, filter *domain.Filter) ([]driven.SearchHit, error) {
	e, err := l.open()
	if err != nil {
		return nil, err
	}
	return e.Search(ctx, text, limit, filter)
}

// Count opens the index if needed and counts its chunks.
func (l *Lazy) Count(ctx context.Context) (int, error) {
	e, err := l.open()
	if err != nil {
		return 0, err
	}
	return e.Count(ctx)
}

// Close closes the index if it was ever opened.
func (l *Lazy) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.closed = true
	if l.engine == nil {
		return nil
	}
	return l.engine.Close()
}
