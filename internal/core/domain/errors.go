package domain

import (
	"errors"
	"fmt"
)

// Domain errors represent business logic failures.
// These are distinct from infrastructure errors.
var (
	// ErrNotFound indicates a requested entity does not exist.
	ErrNotFound = errors.New("not found")

	// ErrInvalidInput indicates malformed or invalid input.
	ErrInvalidInput = errors.New("invalid input")

	// ErrUnsupportedType indicates no normaliser handles a file type.
	ErrUnsupportedType = errors.New("unsupported type")

	// ErrInvalidFilter indicates a metadata filter could not be parsed or applied.
	ErrInvalidFilter = errors.New("invalid filter")

	// ErrLLMUnavailable indicates the LLM service is not configured.
	ErrLLMUnavailable = errors.New("LLM service unavailable")

	// ErrEmbeddingUnavailable indicates the embedding service is not configured.
	// Vector and hybrid retrieval are disabled without embeddings.
	ErrEmbeddingUnavailable = errors.New("embedding service unavailable")

	// ErrSearchUnavailable indicates the lexical search engine is not configured.
	ErrSearchUnavailable = errors.New("search engine unavailable")

	// ErrVectorStoreUnavailable indicates the vector store is not configured.
	ErrVectorStoreUnavailable = errors.New("vector store unavailable")

	// Pipeline error categories. Each typed error below unwraps to one of these.

	// ErrConversion marks a document-to-text failure.
	ErrConversion = errors.New("conversion failed")

	// ErrEmbedding marks an embedding call failure.
	ErrEmbedding = errors.New("embedding failed")

	// ErrRetrieval marks a vector store or filter failure.
	ErrRetrieval = errors.New("retrieval failed")

	// ErrGeneration marks a language model failure.
	ErrGeneration = errors.New("generation failed")

	// ErrUsage marks a request rejected before any external call.
	ErrUsage = errors.New("usage error")

	// Session errors.

	// ErrAnswerUnavailable is surfaced for a failed turn so that callers
	// never confuse failure with an empty answer.
	ErrAnswerUnavailable = errors.New("answer unavailable")

	// ErrTurnInProgress rejects a message sent while another is streaming.
	ErrTurnInProgress = errors.New("a turn is already in progress")

	// ErrSessionClosed indicates the session has ended.
	ErrSessionClosed = errors.New("session closed")

	// ErrStreamClosed indicates the answer stream was closed by the caller.
	ErrStreamClosed = errors.New("stream closed")
)

// ConversionError reports that one document could not be converted to text.
// Batches skip the document and continue.
type ConversionError struct {
	Source string
	Err    error
}

func (e *ConversionError) Error() string {
	return fmt.Sprintf("convert %s: %v", e.Source, e.Err)
}

func (e *ConversionError) Unwrap() []error {
	return []error{ErrConversion, e.Err}
}

// EmbeddingError reports an embedding call failure.
// Transient failures (rate limits, timeouts, 5xx) are worth retrying.
type EmbeddingError struct {
	Op        string
	Transient bool
	Err       error
}

func (e *EmbeddingError) Error() string {
	kind := "persistent"
	if e.Transient {
		kind = "transient"
	}
	return fmt.Sprintf("%s: %s embedding error: %v", e.Op, kind, e.Err)
}

func (e *EmbeddingError) Unwrap() []error {
	return []error{ErrEmbedding, e.Err}
}

// RetrievalError reports a store failure or an unusable filter.
type RetrievalError struct {
	Op  string
	Err error
}

func (e *RetrievalError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *RetrievalError) Unwrap() []error {
	return []error{ErrRetrieval, e.Err}
}

// GenerationError reports a model failure. Partial holds any text
// streamed before the failure; it is incomplete.
type GenerationError struct {
	Op      string
	Partial string
	Err     error
}

func (e *GenerationError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *GenerationError) Unwrap() []error {
	return []error{ErrGeneration, e.Err}
}

// UsageError rejects a request before any external call is made.
type UsageError struct {
	Msg string
}

func (e *UsageError) Error() string {
	return e.Msg
}

func (e *UsageError) Unwrap() error {
	return ErrUsage
}

// NewUsageError formats a UsageError.
func NewUsageError(format string, args ...any) *UsageError {
	return &UsageError{Msg: fmt.Sprintf(format, args...)}
}

// IsTransient reports whether err is an EmbeddingError worth retrying.
func IsTransient(err error) bool {
	var embedErr *EmbeddingError
	return errors.As(err, &embedErr) && embedErr.Transient
}
