// Package domain defines the core business entities for docqa.
//
// This package is part of the hexagonal architecture's innermost layer.
// It has NO external dependencies and defines the fundamental types:
//
//   - Document: Normalised text of one ingested file
//   - Chunk: A retrievable unit cut from a document along its headers
//   - IndexedRecord: A chunk with its embedding as held by the vector store
//   - Filter: Metadata predicates applied at retrieval time
//   - ConversationState: The turns of one chat session
//
// # Architectural Position
//
// Domain is at the centre of the hexagon. It may only import
// the Go standard library. All other packages depend on domain,
// never the reverse.
//
// # Import Rules
//
//   - Can Import: Standard library only
//   - Cannot Import: Any internal/ package, any external dependency
package domain
