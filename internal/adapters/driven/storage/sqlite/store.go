package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	_ "modernc.org/sqlite" // SQLite driver

	"github.com/custodia-labs/docqa/internal/adapters/driven/storage/sqlite/migrations"
	"github.com/custodia-labs/docqa/internal/adapters/driven/storage/vecmath"
	"github.com/custodia-labs/docqa/internal/core/domain"
	"github.com/custodia-labs/docqa/internal/core/ports/driven"
)

// Ensure Store implements the interface.
var _ driven.VectorStore = (*Store)(nil)

// dbFile is the database filename inside the data directory.
const dbFile = "vectors.db"

// maxParams keeps IN lists under SQLite's bound-parameter limit.
const maxParams = 500

// recordColumns is the column list read by every record query.
const recordColumns = `seq, id, content, content_vector, headers, metadata,
	doc_type, source, document, last_update, position`

// index_meta keys describing the stored embedding space.
const (
	metaEmbeddingModel      = "embedding_model"
	metaEmbeddingDimensions = "embedding_dimensions"
)

// Store is a SQLite-backed vector store.
type Store struct {
	db   *sql.DB
	path string
}

// NewStore opens or creates the store in dataDir.
// If dataDir is empty, defaults to ~/.docqa/data.
func NewStore(dataDir string) (*Store, error) {
	if dataDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("getting home directory: %w", err)
		}
		dataDir = filepath.Join(home, ".docqa", "data")
	}

	if err := os.MkdirAll(dataDir, 0700); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}

	dbPath := filepath.Join(dataDir, dbFile)

	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	s := &Store{db: db, path: dbPath}
	if err := s.migrate(migrations.FS); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}
	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Path returns the database file path.
func (s *Store) Path() string {
	return s.path
}

// migrate applies every embedded NNN_name.up.sql newer than the recorded
// schema version, each in its own transaction.
func (s *Store) migrate(fsys fs.FS) error {
	if _, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)
	`); err != nil {
		return fmt.Errorf("creating schema_migrations table: %w", err)
	}

	var current int
	if err := s.db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_migrations").Scan(&current); err != nil {
		return fmt.Errorf("getting current version: %w", err)
	}

	entries, err := fs.ReadDir(fsys, ".")
	if err != nil {
		return fmt.Errorf("reading migrations directory: %w", err)
	}
	var upFiles []string
	for _, entry := range entries {
		if strings.HasSuffix(entry.Name(), ".up.sql") {
			upFiles = append(upFiles, entry.Name())
		}
	}
	sort.Strings(upFiles)

	for _, name := range upFiles {
		var version int
		if _, err := fmt.Sscanf(name, "%d_", &version); err != nil || version <= current {
			continue
		}
		content, err := fs.ReadFile(fsys, name)
		if err != nil {
			return fmt.Errorf("reading migration %s: %w", name, err)
		}
		if err := s.inTx(context.Background(), func(tx *sql.Tx) error {
			if _, err := tx.Exec(string(content)); err != nil {
				return err
			}
			_, err := tx.Exec("INSERT INTO schema_migrations (version) VALUES (?)", version)
			return err
		}); err != nil {
			return fmt.Errorf("executing migration %s: %w", name, err)
		}
	}
	return nil
}

// ReplaceDocument deletes every record of document and inserts records in
// one transaction.
func (s *Store) ReplaceDocument(ctx context.Context, document string, records []domain.IndexedRecord) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, "DELETE FROM records WHERE document = ?", document); err != nil {
			return fmt.Errorf("deleting records of %s: %w", document, err)
		}
		if len(records) == 0 {
			return nil
		}

		stmt, err := tx.PrepareContext(ctx, `
			INSERT INTO records (id, content, content_vector, headers, metadata,
				contract_name, doc_type, source, document, last_update, position)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(id) DO UPDATE SET
				content = excluded.content,
				content_vector = excluded.content_vector,
				headers = excluded.headers,
				metadata = excluded.metadata,
				contract_name = excluded.contract_name,
				doc_type = excluded.doc_type,
				source = excluded.source,
				document = excluded.document,
				last_update = excluded.last_update,
				position = excluded.position
		`)
		if err != nil {
			return fmt.Errorf("preparing statement: %w", err)
		}
		defer stmt.Close()

		for i := range records {
			rec := &records[i]
			headersJSON, err := json.Marshal(nonNilStrings(rec.Headers))
			if err != nil {
				return fmt.Errorf("marshalling headers: %w", err)
			}
			metaJSON, err := json.Marshal(nonNilMap(rec.Metadata))
			if err != nil {
				return fmt.Errorf("marshalling metadata: %w", err)
			}
			if _, err := stmt.ExecContext(ctx,
				rec.ID, rec.Content, vecmath.Encode(rec.Embedding), string(headersJSON), string(metaJSON),
				rec.Metadata[domain.MetaContractName], rec.DocType, rec.Source, document,
				toMillis(rec.LastUpdate), rec.Position,
			); err != nil {
				return fmt.Errorf("saving record %s: %w", rec.ID, err)
			}
		}
		return nil
	})
}

// Search ranks the records passing filter by cosine similarity to query.
func (s *Store) Search(
	ctx context.Context, query []float32, k int, filter *domain.Filter,
) ([]driven.VectorHit, error) {
	if k <= 0 {
		return nil, nil
	}
	where, args, ok := filterClause(filter)
	if !ok {
		return nil, nil
	}

	rows, err := s.db.QueryContext(ctx, "SELECT seq, id, content_vector FROM records"+where, args...)
	if err != nil {
		return nil, fmt.Errorf("querying records: %w", err)
	}
	defer rows.Close()

	var candidates []vecmath.Scored
	for rows.Next() {
		var (
			seq  int64
			id   string
			blob []byte
		)
		if err := rows.Scan(&seq, &id, &blob); err != nil {
			return nil, fmt.Errorf("scanning record: %w", err)
		}
		candidates = append(candidates, vecmath.Scored{
			ID:         id,
			Similarity: vecmath.Cosine(query, vecmath.Decode(blob)),
			Seq:        seq,
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating records: %w", err)
	}

	ranked := vecmath.Rank(candidates, k)
	hits := make([]driven.VectorHit, len(ranked))
	for i, c := range ranked {
		hits[i] = driven.VectorHit{ChunkID: c.ID, Similarity: c.Similarity, Seq: c.Seq}
	}
	return hits, nil
}

// Get loads the records for ids. Missing IDs are omitted.
func (s *Store) Get(ctx context.Context, ids []string) (map[string]domain.IndexedRecord, error) {
	out := make(map[string]domain.IndexedRecord, len(ids))
	for start := 0; start < len(ids); start += maxParams {
		end := min(start+maxParams, len(ids))
		batch := ids[start:end]

		args := make([]any, len(batch))
		for i, id := range batch {
			args[i] = id
		}
		query := "SELECT " + recordColumns + " FROM records WHERE id IN (" + placeholders(len(batch)) + ")"

		if err := s.scanRecords(ctx, query, args, out); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// Count returns the number of records.
func (s *Store) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM records").Scan(&n); err != nil {
		return 0, fmt.Errorf("counting records: %w", err)
	}
	return n, nil
}

// EmbeddingSpace reads the recorded embedding space from index_meta.
func (s *Store) EmbeddingSpace(ctx context.Context) (domain.EmbeddingSpace, bool, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT key, value FROM index_meta WHERE key IN (?, ?)",
		metaEmbeddingModel, metaEmbeddingDimensions)
	if err != nil {
		return domain.EmbeddingSpace{}, false, fmt.Errorf("reading index meta: %w", err)
	}
	defer rows.Close()

	var (
		space domain.EmbeddingSpace
		found bool
	)
	for rows.Next() {
		var key, value string
		if err := rows.Scan(&key, &value); err != nil {
			return domain.EmbeddingSpace{}, false, fmt.Errorf("scanning index meta: %w", err)
		}
		found = true
		switch key {
		case metaEmbeddingModel:
			space.Model = value
		case metaEmbeddingDimensions:
			if space.Dimensions, err = strconv.Atoi(value); err != nil {
				return domain.EmbeddingSpace{}, false, fmt.Errorf("parsing %s: %w", key, err)
			}
		}
	}
	if err := rows.Err(); err != nil {
		return domain.EmbeddingSpace{}, false, fmt.Errorf("iterating index meta: %w", err)
	}
	return space, found, nil
}

// SetEmbeddingSpace upserts the embedding space into index_meta.
func (s *Store) SetEmbeddingSpace(ctx context.Context, space domain.EmbeddingSpace) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		for key, value := range map[string]string{
			metaEmbeddingModel:      space.Model,
			metaEmbeddingDimensions: strconv.Itoa(space.Dimensions),
		} {
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO index_meta (key, value) VALUES (?, ?)
				ON CONFLICT(key) DO UPDATE SET value = excluded.value
			`, key, value); err != nil {
				return fmt.Errorf("saving %s: %w", key, err)
			}
		}
		return nil
	})
}

// Sources lists the distinct sources with their record counts.
func (s *Store) Sources(ctx context.Context) (map[string]int, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT source, COUNT(*) FROM records GROUP BY source")
	if err != nil {
		return nil, fmt.Errorf("listing sources: %w", err)
	}
	defer rows.Close()

	out := make(map[string]int)
	for rows.Next() {
		var source string
		var n int
		if err := rows.Scan(&source, &n); err != nil {
			return nil, fmt.Errorf("scanning source: %w", err)
		}
		out[source] = n
	}
	return out, rows.Err()
}

func (s *Store) scanRecords(ctx context.Context, query string, args []any, out map[string]domain.IndexedRecord) error {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("querying records: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return err
		}
		out[rec.ID] = rec
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterating records: %w", err)
	}
	return nil
}

func (s *Store) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}

func scanRecord(rows *sql.Rows) (domain.IndexedRecord, error) {
	var (
		rec         domain.IndexedRecord
		blob        []byte
		headersJSON string
		metaJSON    string
		lastUpdate  int64
	)
	if err := rows.Scan(&rec.Seq, &rec.ID, &rec.Content, &blob, &headersJSON, &metaJSON,
		&rec.DocType, &rec.Source, &rec.Document, &lastUpdate, &rec.Position); err != nil {
		return rec, fmt.Errorf("scanning record: %w", err)
	}
	rec.Embedding = vecmath.Decode(blob)
	rec.LastUpdate = fromMillis(lastUpdate)
	if err := json.Unmarshal([]byte(headersJSON), &rec.Headers); err != nil {
		return rec, fmt.Errorf("unmarshalling headers of %s: %w", rec.ID, err)
	}
	if len(rec.Headers) == 0 {
		rec.Headers = nil
	}
	if err := json.Unmarshal([]byte(metaJSON), &rec.Metadata); err != nil {
		return rec, fmt.Errorf("unmarshalling metadata of %s: %w", rec.ID, err)
	}
	return rec, nil
}

// filterClause renders filter as a WHERE clause. ok is false when the
// filter matches nothing, so no query is needed.
func filterClause(filter *domain.Filter) (string, []any, bool) {
	if filter == nil {
		return "", nil, true
	}
	if len(filter.Predicates) == 0 {
		return "", nil, false
	}

	conds := make([]string, 0, len(filter.Predicates))
	args := make([]any, 0, len(filter.Predicates))
	for _, p := range filter.Predicates {
		op, err := sqlOperator(p.Op)
		if err != nil {
			return "", nil, false
		}
		switch p.Field {
		case domain.FieldDocType:
			conds = append(conds, "doc_type "+op+" ?")
			args = append(args, p.Value)
		case domain.FieldSource:
			conds = append(conds, "source "+op+" ?")
			args = append(args, p.Value)
		case domain.FieldLastUpdate:
			conds = append(conds, "last_update "+op+" ?")
			args = append(args, toMillis(p.Time))
		default:
			return "", nil, false
		}
	}
	return " WHERE " + strings.Join(conds, " AND "), args, true
}

var errUnknownOperator = errors.New("unknown operator")

func sqlOperator(op domain.FilterOp) (string, error) {
	switch op {
	case domain.OpEq:
		return "=", nil
	case domain.OpNe:
		return "<>", nil
	case domain.OpGt:
		return ">", nil
	case domain.OpGe:
		return ">=", nil
	case domain.OpLt:
		return "<", nil
	case domain.OpLe:
		return "<=", nil
	default:
		return "", fmt.Errorf("%w: %s", errUnknownOperator, op)
	}
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}

func toMillis(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixMilli()
}

func fromMillis(ms int64) time.Time {
	if ms == 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms).UTC()
}

func nonNilStrings(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

func nonNilMap(m map[string]string) map[string]string {
	if m == nil {
		return map[string]string{}
	}
	return m
}
