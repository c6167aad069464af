// Package driven defines the interfaces that core calls OUT to infrastructure.
//
// These are the "driven" or "secondary" ports in hexagonal architecture.
// Core services depend on these interfaces, and infrastructure adapters
// implement them.
//
// # Required Interfaces
//
//   - VectorStore: Chunk records with embeddings, filterable by metadata
//   - EmbeddingService: Text to vector. Index and query must share one configuration.
//   - LLMService: Streaming chat completion
//   - Normaliser / NormaliserRegistry: Raw bytes to markdown text
//   - StagingStore: Converted documents awaiting indexing
//   - ConfigStore: Application configuration
//   - PromptStore: Answer prompt templates
//
// # Optional Interfaces
//
// These can be nil - the application degrades gracefully:
//
//   - SearchEngine: Lexical (BM25) search. Without it hybrid retrieval uses vectors alone.
//
// # Import Rules
//
//   - Can Import: domain package only
//   - Cannot Import: Any adapter or normaliser package
package driven
