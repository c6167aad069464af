package domain

import (
	"fmt"
	"path/filepath"
	"time"
)

// Metadata keys shared by documents and chunks.
const (
	MetaDocType      = "doc_type"
	MetaSource       = "source"
	MetaLastUpdate   = "last_update"
	MetaContractName = "contract_name"
	MetaFormat       = "format"
)

// DefaultDocType is assigned when ingestion has no better tag.
const DefaultDocType = "document"

// Document is the normalised markdown text of one source file.
// It is immutable once staged.
type Document struct {
	// ID is the caller-supplied identifier, usually the file path.
	ID string

	// Title is the human-readable title.
	Title string

	// Content is the full markdown text with heading markers preserved.
	Content string

	// DocType tags the kind of document (contract, policy, ...).
	DocType string

	// LastUpdate is when the underlying file last changed.
	LastUpdate time.Time

	// Metadata contains additional key-value pairs such as contract_name.
	Metadata map[string]string
}

// SourceName returns the base filename of the document identifier.
// It is the chunks' source field; Chunk.Document keeps the full ID.
func (d *Document) SourceName() string {
	if d.ID == "" {
		return ""
	}
	return filepath.Base(d.ID)
}

// Chunk is a retrievable unit: a contiguous span of a document's text
// together with the header breadcrumb that leads to it.
type Chunk struct {
	// ID is stable per (Document, Position).
	ID string

	// Document is the full identifier of the originating document, such
	// as "contracts/acme.pdf". Stores replace records per document.
	Document string

	// Content is the text of the span without header lines.
	Content string

	// Headers is the header path down to this span, outermost first.
	Headers []string

	// Source is the base filename of the originating document.
	Source string

	// DocType is copied from the document.
	DocType string

	// LastUpdate is copied from the document.
	LastUpdate time.Time

	// Position is the ordinal position within the document.
	Position int

	// Metadata holds header labels ("Header 1" -> "Intro") and document metadata.
	Metadata map[string]string
}

// IndexedRecord is a chunk plus its embedding as persisted in the vector store.
type IndexedRecord struct {
	Chunk

	// Embedding is the vector representation of Chunk.Content.
	Embedding []float32

	// Seq is the store-assigned insertion order, used to break score ties.
	Seq int64
}

// IndexReport summarises one indexing run.
type IndexReport struct {
	// Attempted is the number of chunks submitted.
	Attempted int

	// Indexed is the number of chunks written to the store.
	Indexed int

	// Failed is the number of chunks that could not be indexed.
	Failed int

	// Failures describes each failed chunk.
	Failures []IndexFailure

	// Warnings holds non-fatal problems such as a lexical index write failure.
	Warnings []string
}

// IndexFailure records why one chunk was not indexed.
type IndexFailure struct {
	ChunkID  string
	Source   string
	Position int
	Err      error
}

// Add merges another report into r.
func (r *IndexReport) Add(other IndexReport) {
	r.Attempted += other.Attempted
	r.Indexed += other.Indexed
	r.Failed += other.Failed
	r.Failures = append(r.Failures, other.Failures...)
	r.Warnings = append(r.Warnings, other.Warnings...)
}

// Partial reports whether some but not all chunks were indexed.
func (r IndexReport) Partial() bool {
	return r.Failed > 0 && r.Indexed > 0
}

// IngestReport summarises one ingestion (conversion) run.
type IngestReport struct {
	// Converted lists the staged document names.
	Converted []string

	// Failures holds one ConversionError per file that failed.
	Failures []error

	// Skipped lists files with no matching normaliser.
	Skipped []string
}

// EmbeddingSpace identifies the model and dimensionality stored vectors
// were produced with. Vectors from different spaces are not comparable.
type EmbeddingSpace struct {
	Model      string
	Dimensions int
}

// Compatible reports whether vectors from other can be compared with
// vectors from s. Zero fields are unknown and match anything.
func (s EmbeddingSpace) Compatible(other EmbeddingSpace) bool {
	if s.Model != "" && other.Model != "" && s.Model != other.Model {
		return false
	}
	return s.Dimensions == 0 || other.Dimensions == 0 || s.Dimensions == other.Dimensions
}

func (s EmbeddingSpace) String() string {
	return fmt.Sprintf("%s (%d dims)", s.Model, s.Dimensions)
}
