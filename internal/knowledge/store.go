package knowledge

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"
	_ "modernc.org/sqlite"
)

// ErrDimensionMismatch is returned when a document's embedding does not match
// the dimensionality the store was opened with.
var ErrDimensionMismatch = errors.New("embedding dimension mismatch")

// Document is one unit of retrievable text with its embedding.
type Document struct {
	ID        string
	Text      string
	Embedding []float64
	Metadata  map[string]string
	CreatedAt time.Time
}

// Match pairs a document with its cosine similarity to a query.
type Match struct {
	Document   Document
	Similarity float64
}

// Store persists embedded knowledge documents in sqlite and answers
// nearest-neighbor queries by cosine similarity. The document set is small and
// mostly static, so every search reloads it from storage rather than
// maintaining an index.
type Store struct {
	db     *sql.DB
	dim    int
	logger *zap.Logger

	// writes are serialized; reads go straight to sqlite
	writeMu sync.Mutex
}

const schema = `
CREATE TABLE IF NOT EXISTS documents (
	id         TEXT PRIMARY KEY,
	body       TEXT NOT NULL,
	embedding  TEXT NOT NULL,
	metadata   TEXT NOT NULL DEFAULT '{}',
	created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);
`

// Open opens (creating if needed) the knowledge store at the given path.
// dim fixes the embedding dimensionality accepted by Add.
func Open(path string, dim int, logger *zap.Logger) (*Store, error) {
	if dim <= 0 {
		return nil, fmt.Errorf("embedding dimension must be positive, got %d", dim)
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open knowledge store: %w", err)
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("init knowledge schema: %w", err)
	}

	return &Store{db: db, dim: dim, logger: logger}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// Add stores a document. The embedding must match the store's dimensionality;
// the insert is atomic, so a document is never partially written.
func (s *Store) Add(ctx context.Context, doc Document) error {
	if doc.ID == "" {
		return errors.New("document id is required")
	}
	if len(doc.Embedding) != s.dim {
		return fmt.Errorf("%w: got %d, want %d", ErrDimensionMismatch, len(doc.Embedding), s.dim)
	}

	embedding, err := json.Marshal(doc.Embedding)
	if err != nil {
		return fmt.Errorf("encode embedding: %w", err)
	}

	metadata := doc.Metadata
	if metadata == nil {
		metadata = map[string]string{}
	}
	meta, err := json.Marshal(metadata)
	if err != nil {
		return fmt.Errorf("encode metadata: %w", err)
	}

	createdAt := doc.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	_, err = s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO documents (id, body, embedding, metadata, created_at) VALUES (?, ?, ?, ?, ?)`,
		doc.ID, doc.Text, string(embedding), string(meta), createdAt,
	)
	if err != nil {
		return fmt.Errorf("store document %q: %w", doc.ID, err)
	}

	s.logger.Debug("stored knowledge document", zap.String("id", doc.ID), zap.Int("dimension", s.dim))

	return nil
}

// Search returns up to limit documents ordered by descending cosine similarity
// to the query embedding. Ties keep insertion order. An empty store yields an
// empty result, not an error.
func (s *Store) Search(ctx context.Context, query []float64, limit int) ([]Match, error) {
	if len(query) != s.dim {
		return nil, fmt.Errorf("%w: got %d, want %d", ErrDimensionMismatch, len(query), s.dim)
	}

	docs, err := s.loadAll(ctx)
	if err != nil {
		return nil, err
	}

	matches := make([]Match, 0, len(docs))
	for _, doc := range docs {
		matches = append(matches, Match{
			Document:   doc,
			Similarity: Cosine(query, doc.Embedding),
		})
	}

	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].Similarity > matches[j].Similarity
	})

	if limit > 0 && len(matches) > limit {
		matches = matches[:limit]
	}

	return matches, nil
}

// Count returns the number of stored documents.
func (s *Store) Count(ctx context.Context) (int, error) {
	var count int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM documents`).Scan(&count); err != nil {
		return 0, fmt.Errorf("count documents: %w", err)
	}
	return count, nil
}

// loadAll returns every document in insertion order.
func (s *Store) loadAll(ctx context.Context) ([]Document, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, body, embedding, metadata, created_at FROM documents ORDER BY rowid`)
	if err != nil {
		return nil, fmt.Errorf("load documents: %w", err)
	}
	defer rows.Close()

	var docs []Document
	for rows.Next() {
		var (
			doc       Document
			embedding string
			metadata  string
		)
		if err := rows.Scan(&doc.ID, &doc.Text, &embedding, &metadata, &doc.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan document: %w", err)
		}

		if err := json.Unmarshal([]byte(embedding), &doc.Embedding); err != nil {
			return nil, fmt.Errorf("decode embedding for %q: %w", doc.ID, err)
		}
		if err := json.Unmarshal([]byte(metadata), &doc.Metadata); err != nil {
			return nil, fmt.Errorf("decode metadata for %q: %w", doc.ID, err)
		}

		// A row with a drifted dimension would poison every similarity
		// computation, so it is skipped rather than failing the search.
		if len(doc.Embedding) != s.dim {
			s.logger.Warn("skipping document with stale embedding dimension",
				zap.String("id", doc.ID),
				zap.Int("got", len(doc.Embedding)),
				zap.Int("want", s.dim),
			)
			continue
		}

		docs = append(docs, doc)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate documents: %w", err)
	}

	return docs, nil
}

// Cosine returns the cosine similarity dot(a,b) / (|a|*|b|). Vectors with zero
// magnitude score 0.
func Cosine(a, b []float64) float64 {
	if len(a) != len(b) {
		return 0
	}

	var dot, normA, normB float64
	for i := range a {
		dot += a[i] * b[i]
		normA += a[i] * a[i]
		normB += b[i] * b[i]
	}

	if normA == 0 || normB == 0 {
		return 0
	}

	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
