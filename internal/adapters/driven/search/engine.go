// Package search provides the bleve-backed lexical search engine.
package search

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/mapping"
	"github.com/blevesearch/bleve/v2/search/query"

	"github.com/custodia-labs/docqa/internal/core/domain"
	"github.com/custodia-labs/docqa/internal/core/ports/driven"
)

// Ensure Engine implements the interface.
var _ driven.SearchEngine = (*Engine)(nil)

// Indexed field names.
const (
	fieldContent    = "content"
	fieldHeaders    = "headers"
	fieldSource     = "source"
	fieldDocument   = "document"
	fieldDocType    = "doc_type"
	fieldLastUpdate = "last_update"
)

// headerBoost weights header matches below body matches.
const headerBoost = 0.5

// indexedChunk is the document shape stored in the bleve index.
type indexedChunk struct {
	Content    string  `json:"content"`
	Headers    string  `json:"headers"`
	Source     string  `json:"source"`
	Document   string  `json:"document"`
	DocType    string  `json:"doc_type"`
	LastUpdate float64 `json:"last_update"`
}

// Engine is a BM25 search engine over chunk content.
type Engine struct {
	index bleve.Index

	// writeMu serialises ReplaceDocument so the lookup of a document's
	// old IDs and the batch that replaces them see the same state.
	writeMu sync.Mutex
}

// Open opens the index at path, creating it if it does not exist.
func Open(path string) (*Engine, error) {
	if _, err := os.Stat(path); err == nil {
		index, err := bleve.Open(path)
		if err != nil {
			return nil, fmt.Errorf("opening search index: %w", err)
		}
		return &Engine{index: index}, nil
	}

	index, err := bleve.New(path, newMapping())
	if err != nil {
		return nil, fmt.Errorf("creating search index: %w", err)
	}
	return &Engine{index: index}, nil
}

// NewMemOnly creates an in-memory index.
func NewMemOnly() (*Engine, error) {
	index, err := bleve.NewMemOnly(newMapping())
	if err != nil {
		return nil, fmt.Errorf("creating search index: %w", err)
	}
	return &Engine{index: index}, nil
}

func newMapping() *mapping.IndexMappingImpl {
	text := bleve.NewTextFieldMapping()
	text.Store = false

	keyword := bleve.NewKeywordFieldMapping()
	keyword.Store = false

	numeric := bleve.NewNumericFieldMapping()
	numeric.Store = false

	doc := bleve.NewDocumentMapping()
	doc.AddFieldMappingsAt(fieldContent, text)
	doc.AddFieldMappingsAt(fieldHeaders, text)
	doc.AddFieldMappingsAt(fieldSource, keyword)
	doc.AddFieldMappingsAt(fieldDocument, keyword)
	doc.AddFieldMappingsAt(fieldDocType, keyword)
	doc.AddFieldMappingsAt(fieldLastUpdate, numeric)

	m := bleve.NewIndexMapping()
	m.DefaultMapping = doc
	return m
}

// ReplaceDocument replaces the indexed chunks of document in a single batch.
func (e *Engine) ReplaceDocument(ctx context.Context, document string, chunks []domain.Chunk) error {
	e.writeMu.Lock()
	defer e.writeMu.Unlock()

	old, err := e.documentIDs(ctx, document)
	if err != nil {
		return err
	}

	batch := e.index.NewBatch()
	for _, id := range old {
		batch.Delete(id)
	}
	for i := range chunks {
		c := &chunks[i]
		if err := batch.Index(c.ID, indexedChunk{
			Content:    c.Content,
			Headers:    strings.Join(c.Headers, " "),
			Source:     c.Source,
			Document:   document,
			DocType:    c.DocType,
			LastUpdate: float64(millis(c)),
		}); err != nil {
			return fmt.Errorf("adding chunk %s to batch: %w", c.ID, err)
		}
	}
	if batch.Size() == 0 {
		return nil
	}
	if err := e.index.Batch(batch); err != nil {
		return fmt.Errorf("indexing %s: %w", document, err)
	}
	return nil
}

// documentIDs returns the IDs currently indexed for document.
func (e *Engine) documentIDs(ctx context.Context, document string) ([]string, error) {
	total, err := e.index.DocCount()
	if err != nil {
		return nil, fmt.Errorf("counting documents: %w", err)
	}
	if total == 0 {
		return nil, nil
	}

	q := bleve.NewTermQuery(document)
	q.SetField(fieldDocument)
	req := bleve.NewSearchRequestOptions(q, int(total), 0, false)

	res, err := e.index.SearchInContext(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("listing chunks of %s: %w", document, err)
	}
	ids := make([]string, len(res.Hits))
	for i, hit := range res.Hits {
		ids[i] = hit.ID
	}
	return ids, nil
}

// Search returns chunk IDs matching text, best first.
func (e *Engine) Search(ctx context.Context, text string, limit int, filter *domain.Filter) ([]driven.SearchHit, error) {
	if limit <= 0 || strings.TrimSpace(text) == "" {
		return nil, nil
	}
	if filter != nil && len(filter.Predicates) == 0 {
		return nil, nil
	}

	q, err := buildQuery(text, filter)
	if err != nil {
		return nil, err
	}

	req := bleve.NewSearchRequestOptions(q, limit, 0, false)
	res, err := e.index.SearchInContext(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("searching: %w", err)
	}

	hits := make([]driven.SearchHit, len(res.Hits))
	for i, hit := range res.Hits {
		hits[i] = driven.SearchHit{ChunkID: hit.ID, Score: hit.Score}
	}
	return hits, nil
}

// Count returns the number of indexed chunks.
func (e *Engine) Count(_ context.Context) (int, error) {
	n, err := e.index.DocCount()
	if err != nil {
		return 0, fmt.Errorf("counting documents: %w", err)
	}
	return int(n), nil
}

// Close closes the index.
func (e *Engine) Close() error {
	return e.index.Close()
}

func buildQuery(text string, filter *domain.Filter) (query.Query, error) {
	content := bleve.NewMatchQuery(text)
	content.SetField(fieldContent)
	headers := bleve.NewMatchQuery(text)
	headers.SetField(fieldHeaders)
	headers.SetBoost(headerBoost)

	match := bleve.NewDisjunctionQuery(content, headers)
	if filter == nil {
		return match, nil
	}

	q := bleve.NewBooleanQuery()
	q.AddMust(match)
	for _, p := range filter.Predicates {
		pq, negate, err := predicateQuery(p)
		if err != nil {
			return nil, err
		}
		if negate {
			q.AddMustNot(pq)
		} else {
			q.AddMust(pq)
		}
	}
	return q, nil
}

var errUnsupportedPredicate = errors.New("unsupported predicate")

// predicateQuery translates p into a query. negate is set for "ne",
// which is expressed as a must-not clause around the equality query.
func predicateQuery(p domain.Predicate) (query.Query, bool, error) {
	switch p.Field {
	case domain.FieldDocType, domain.FieldSource:
		tq := bleve.NewTermQuery(p.Value)
		tq.SetField(string(p.Field))
		switch p.Op {
		case domain.OpEq:
			return tq, false, nil
		case domain.OpNe:
			return tq, true, nil
		}
	case domain.FieldLastUpdate:
		v := float64(p.Time.UnixMilli())
		yes, no := true, false
		var rq *query.NumericRangeQuery
		switch p.Op {
		case domain.OpEq, domain.OpNe:
			rq = bleve.NewNumericRangeInclusiveQuery(&v, &v, &yes, &yes)
		case domain.OpGt:
			rq = bleve.NewNumericRangeInclusiveQuery(&v, nil, &no, nil)
		case domain.OpGe:
			rq = bleve.NewNumericRangeInclusiveQuery(&v, nil, &yes, nil)
		case domain.OpLt:
			rq = bleve.NewNumericRangeInclusiveQuery(nil, &v, nil, &no)
		case domain.OpLe:
			rq = bleve.NewNumericRangeInclusiveQuery(nil, &v, nil, &yes)
		}
		if rq != nil {
			rq.SetField(fieldLastUpdate)
			return rq, p.Op == domain.OpNe, nil
		}
	}
	return nil, false, fmt.Errorf("%w: %s", errUnsupportedPredicate, p)
}

func millis(c *domain.Chunk) int64 {
	if c.LastUpdate.IsZero() {
		return 0
	}
	return c.LastUpdate.UnixMilli()
}
