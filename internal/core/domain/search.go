package domain

import (
	"fmt"
	"strings"
	"time"
)

// DefaultTopK is the number of chunks retrieved per question unless configured.
const DefaultTopK = 5

// SearchMode defines how retrieval combines different search methods.
type SearchMode string

// Available search modes.
const (
	// SearchModeHybrid blends vector similarity with lexical (BM25) match.
	SearchModeHybrid SearchMode = "hybrid"

	// SearchModeVector uses only vector similarity.
	SearchModeVector SearchMode = "vector"

	// SearchModeTextOnly uses only lexical search and never calls the embedder.
	SearchModeTextOnly SearchMode = "text_only"
)

// IsValid returns true if the search mode is recognised.
func (m SearchMode) IsValid() bool {
	switch m {
	case SearchModeHybrid, SearchModeVector, SearchModeTextOnly:
		return true
	default:
		return false
	}
}

// RequiresEmbedding returns true if this mode needs an embedding provider.
func (m SearchMode) RequiresEmbedding() bool {
	return m == SearchModeHybrid || m == SearchModeVector
}

// String returns the string representation.
func (m SearchMode) String() string {
	return string(m)
}

// Description returns a human-readable description of the mode.
func (m SearchMode) Description() string {
	switch m {
	case SearchModeHybrid:
		return "Hybrid (vector + keyword search)"
	case SearchModeVector:
		return "Vector (semantic similarity only)"
	case SearchModeTextOnly:
		return "Text Only (keyword search)"
	default:
		return unknownDescription
	}
}

// AllSearchModes returns all available search modes.
func AllSearchModes() []SearchMode {
	return []SearchMode{SearchModeHybrid, SearchModeVector, SearchModeTextOnly}
}

// RetrieveOptions configures a retrieval.
type RetrieveOptions struct {
	// K is the maximum number of chunks to return. Must be positive.
	K int

	// Filter restricts results by metadata. Nil means unfiltered.
	Filter *Filter

	// Mode selects the search method. Empty means the service default.
	Mode SearchMode
}

// ScoredChunk is one retrieved chunk with its relevance score.
type ScoredChunk struct {
	Chunk Chunk

	// Score is the relevance score, higher is better.
	Score float64

	// Seq is the insertion order of the chunk in the store.
	Seq int64
}

// RetrievalResult is the ranked output of a retrieval, most relevant first.
type RetrievalResult struct {
	// Query is the text that was searched.
	Query string

	// Items holds at most K chunks ordered by descending score.
	Items []ScoredChunk

	// Mode is the search mode that produced the result.
	Mode SearchMode

	// Degraded is set when one leg of a hybrid search failed and the
	// other leg's results were used alone.
	Degraded bool
}

// Chunks returns the retrieved chunks in rank order.
func (r *RetrievalResult) Chunks() []Chunk {
	if r == nil {
		return nil
	}
	chunks := make([]Chunk, len(r.Items))
	for i := range r.Items {
		chunks[i] = r.Items[i].Chunk
	}
	return chunks
}

// Len returns the number of retrieved chunks.
func (r *RetrievalResult) Len() int {
	if r == nil {
		return 0
	}
	return len(r.Items)
}

// FilterField names a filterable chunk attribute.
type FilterField string

// Filterable fields.
const (
	FieldDocType    FilterField = "doc_type"
	FieldSource     FilterField = "source"
	FieldLastUpdate FilterField = "last_update"
)

// FilterOp is a comparison operator, spelled as in OData filter expressions.
type FilterOp string

// Supported operators.
const (
	OpEq FilterOp = "eq"
	OpNe FilterOp = "ne"
	OpGt FilterOp = "gt"
	OpGe FilterOp = "ge"
	OpLt FilterOp = "lt"
	OpLe FilterOp = "le"
)

// IsRange reports whether the operator compares order rather than equality.
func (o FilterOp) IsRange() bool {
	switch o {
	case OpGt, OpGe, OpLt, OpLe:
		return true
	default:
		return false
	}
}

// Predicate is a single comparison over one field.
type Predicate struct {
	Field FilterField
	Op    FilterOp

	// Value is the comparand for string fields.
	Value string

	// Time is the comparand for last_update.
	Time time.Time
}

// Filter is a conjunction of predicates.
//
// A nil *Filter means "no filter". A non-nil Filter with no predicates
// matches nothing.
type Filter struct {
	Predicates []Predicate
}

// Matches reports whether the chunk satisfies every predicate.
func (f *Filter) Matches(c Chunk) bool {
	if f == nil {
		return true
	}
	if len(f.Predicates) == 0 {
		return false
	}
	for _, p := range f.Predicates {
		if !p.Matches(c) {
			return false
		}
	}
	return true
}

// Validate checks every predicate.
func (f *Filter) Validate() error {
	if f == nil {
		return nil
	}
	for _, p := range f.Predicates {
		if err := p.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// String renders the filter back into expression form.
func (f *Filter) String() string {
	if f == nil {
		return ""
	}
	parts := make([]string, len(f.Predicates))
	for i, p := range f.Predicates {
		parts[i] = p.String()
	}
	return strings.Join(parts, " and ")
}

// Validate checks that the field and operator combine sensibly.
func (p Predicate) Validate() error {
	switch p.Field {
	case FieldDocType, FieldSource:
		if p.Op != OpEq && p.Op != OpNe {
			return fmt.Errorf("%w: operator %q not supported on %s", ErrInvalidFilter, p.Op, p.Field)
		}
	case FieldLastUpdate:
		switch p.Op {
		case OpEq, OpNe, OpGt, OpGe, OpLt, OpLe:
		default:
			return fmt.Errorf("%w: unknown operator %q", ErrInvalidFilter, p.Op)
		}
		if p.Time.IsZero() {
			return fmt.Errorf("%w: last_update needs a timestamp", ErrInvalidFilter)
		}
	default:
		return fmt.Errorf("%w: unknown field %q", ErrInvalidFilter, p.Field)
	}
	return nil
}

// Matches reports whether the chunk satisfies the predicate.
func (p Predicate) Matches(c Chunk) bool {
	switch p.Field {
	case FieldDocType:
		return compareString(c.DocType, p.Op, p.Value)
	case FieldSource:
		return compareString(c.Source, p.Op, p.Value)
	case FieldLastUpdate:
		return compareTime(c.LastUpdate, p.Op, p.Time)
	default:
		return false
	}
}

// String renders the predicate in expression form.
func (p Predicate) String() string {
	if p.Field == FieldLastUpdate {
		return fmt.Sprintf("%s %s %s", p.Field, p.Op, p.Time.UTC().Format(time.RFC3339))
	}
	return fmt.Sprintf("%s %s '%s'", p.Field, p.Op, strings.ReplaceAll(p.Value, "'", "''"))
}

func compareString(actual string, op FilterOp, want string) bool {
	switch op {
	case OpEq:
		return actual == want
	case OpNe:
		return actual != want
	default:
		return false
	}
}

func compareTime(actual time.Time, op FilterOp, want time.Time) bool {
	switch op {
	case OpEq:
		return actual.Equal(want)
	case OpNe:
		return !actual.Equal(want)
	case OpGt:
		return actual.After(want)
	case OpGe:
		return !actual.Before(want)
	case OpLt:
		return actual.Before(want)
	case OpLe:
		return !actual.After(want)
	default:
		return false
	}
}

// NewPredicate builds a validated predicate, parsing value as a timestamp
// when the field is last_update.
func NewPredicate(field FilterField, op FilterOp, value string) (Predicate, error) {
	p := Predicate{Field: field, Op: op, Value: value}
	if field == FieldLastUpdate {
		t, err := ParseTimestamp(value)
		if err != nil {
			return Predicate{}, fmt.Errorf("%w: %w", ErrInvalidFilter, err)
		}
		p.Time = t
	}
	if err := p.Validate(); err != nil {
		return Predicate{}, err
	}
	return p, nil
}

// ParseTimestamp accepts RFC 3339 timestamps or plain dates.
func ParseTimestamp(value string) (time.Time, error) {
	for _, layout := range []string{time.RFC3339Nano, time.RFC3339, "2006-01-02T15:04:05", "2006-01-02"} {
		if t, err := time.Parse(layout, value); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid timestamp %q", value)
}

// ParseFilter parses an expression such as
//
//	doc_type eq 'contract' and last_update ge 2024-01-01
//
// An empty expression yields a nil filter.
func ParseFilter(expr string) (*Filter, error) {
	if strings.TrimSpace(expr) == "" {
		return nil, nil
	}

	toks, err := tokenizeFilter(expr)
	if err != nil {
		return nil, err
	}

	f := &Filter{}
	for i := 0; i < len(toks); {
		if len(toks)-i < 3 {
			return nil, fmt.Errorf("%w: incomplete predicate near %q", ErrInvalidFilter, toks[i].text)
		}
		if toks[i].quoted || toks[i+1].quoted {
			return nil, fmt.Errorf("%w: field and operator must not be quoted", ErrInvalidFilter)
		}
		p, err := NewPredicate(
			FilterField(strings.ToLower(toks[i].text)),
			FilterOp(strings.ToLower(toks[i+1].text)),
			toks[i+2].text,
		)
		if err != nil {
			return nil, err
		}
		f.Predicates = append(f.Predicates, p)
		i += 3

		if i < len(toks) {
			if toks[i].quoted || !strings.EqualFold(toks[i].text, "and") {
				return nil, fmt.Errorf("%w: expected 'and', got %q", ErrInvalidFilter, toks[i].text)
			}
			i++
			if i == len(toks) {
				return nil, fmt.Errorf("%w: dangling 'and'", ErrInvalidFilter)
			}
		}
	}
	return f, nil
}

type filterToken struct {
	text   string
	quoted bool
}

func tokenizeFilter(s string) ([]filterToken, error) {
	var toks []filterToken
	for i := 0; i < len(s); {
		switch c := s[i]; {
		case c == ' ' || c == '\t' || c == '\n':
			i++
		case c == '\'':
			var b strings.Builder
			closed := false
			i++
			for i < len(s) {
				if s[i] == '\'' {
					// '' is an escaped quote
					if i+1 < len(s) && s[i+1] == '\'' {
						b.WriteByte('\'')
						i += 2
						continue
					}
					i++
					closed = true
					break
				}
				b.WriteByte(s[i])
				i++
			}
			if !closed {
				return nil, fmt.Errorf("%w: unterminated quote", ErrInvalidFilter)
			}
			toks = append(toks, filterToken{text: b.String(), quoted: true})
		default:
			j := i
			for j < len(s) && s[j] != ' ' && s[j] != '\t' && s[j] != '\n' && s[j] != '\'' {
				j++
			}
			toks = append(toks, filterToken{text: s[i:j]})
			i = j
		}
	}
	return toks, nil
}
