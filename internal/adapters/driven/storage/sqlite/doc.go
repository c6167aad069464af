// Package sqlite provides the SQLite-backed vector store.
//
// This adapter uses modernc.org/sqlite, a pure Go SQLite implementation that
// requires no CGO. Each record row holds the chunk text, its embedding as a
// little-endian float32 blob, and the filterable columns doc_type, source
// and last_update. Metadata filters are pushed into the WHERE clause;
// similarity is computed in Go over the rows that pass.
//
// # Schema
//
// The schema is managed through versioned migrations embedded from the
// migrations/ directory.
//
// # Data Location
//
// By default, the database is stored at ~/.docqa/data/vectors.db
//
// # Thread Safety
//
// All operations are safe for concurrent use. SQLite runs in WAL mode, so
// searches proceed while a document is being replaced, and a replacement
// becomes visible only when its transaction commits.
package sqlite
