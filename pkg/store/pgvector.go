package store

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"
	"github.com/xhad/ask/internal/models"
	"github.com/xhad/ask/internal/types"
)

// ErrStorage marks a store call that failed after retry exhaustion, or an
// index state that could not be reconciled.
var ErrStorage = errors.New("vector store failure")

type Config struct {
	ConnString  string
	TableName   string
	BatchSize   int
	MaxAttempts int
	BaseDelay   time.Duration
}

// VectorStore adapts a pgvector-backed Postgres table to the pipeline's
// store contract. One table holds every document; the source column is
// the namespace and every query is scoped to exactly one namespace.
type VectorStore struct {
	config Config
	pool   *pgxpool.Pool
	dim    int
}

func NewWithConfig(config Config) (*VectorStore, error) {
	if config.TableName == "" {
		config.TableName = "chunks"
	}
	if config.BatchSize == 0 {
		config.BatchSize = 100
	}
	if config.MaxAttempts == 0 {
		config.MaxAttempts = 4
	}
	if config.BaseDelay == 0 {
		config.BaseDelay = 500 * time.Millisecond
	}

	pool, err := pgxpool.New(context.Background(), config.ConnString)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %v", err)
	}

	return &VectorStore{
		config: config,
		pool:   pool,
	}, nil
}

// VectorID is the deterministic per-chunk id: re-ingesting the same
// document overwrites the same rows instead of duplicating them.
func VectorID(namespace string, ordinal int) string {
	return fmt.Sprintf("%s-%06d", namespace, ordinal)
}

// EnsureIndex makes sure the table exists with the given embedding
// dimension. A table declared with a different dimension is dropped and
// recreated. That reconciliation is destructive and global: run it once
// at startup, never concurrently from multiple processes.
func (vs *VectorStore) EnsureIndex(ctx context.Context, dimension int) error {
	if dimension < 1 {
		return fmt.Errorf("%w: invalid dimension %d", ErrStorage, dimension)
	}

	if _, err := vs.pool.Exec(ctx, "CREATE EXTENSION IF NOT EXISTS vector"); err != nil {
		return fmt.Errorf("%w: failed to create vector extension: %v", ErrStorage, err)
	}

	existing, err := vs.existingDimension(ctx)
	if err != nil {
		return fmt.Errorf("%w: failed to inspect table: %v", ErrStorage, err)
	}

	if existing > 0 && existing != dimension {
		log.Printf("store: table %s has dimension %d, want %d; dropping and recreating",
			vs.config.TableName, existing, dimension)
		if _, err := vs.pool.Exec(ctx, fmt.Sprintf("DROP TABLE %s", vs.config.TableName)); err != nil {
			return fmt.Errorf("%w: failed to drop mismatched table: %v", ErrStorage, err)
		}
	}

	createTable := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			id TEXT PRIMARY KEY,
			source TEXT NOT NULL,
			content TEXT,
			chunk_index INTEGER,
			embedding vector(%d),
			metadata JSONB
		)`, vs.config.TableName, dimension)

	if _, err := vs.pool.Exec(ctx, createTable); err != nil {
		return fmt.Errorf("%w: failed to create table: %v", ErrStorage, err)
	}

	createVectorIndex := fmt.Sprintf(`
		CREATE INDEX IF NOT EXISTS %s_embedding_idx
		ON %s
		USING ivfflat (embedding vector_cosine_ops)
		WITH (lists = 100)`,
		vs.config.TableName, vs.config.TableName)

	if _, err := vs.pool.Exec(ctx, createVectorIndex); err != nil {
		return fmt.Errorf("%w: failed to create vector index: %v", ErrStorage, err)
	}

	createSourceIndex := fmt.Sprintf(`
		CREATE INDEX IF NOT EXISTS %s_source_idx ON %s (source)`,
		vs.config.TableName, vs.config.TableName)

	if _, err := vs.pool.Exec(ctx, createSourceIndex); err != nil {
		return fmt.Errorf("%w: failed to create source index: %v", ErrStorage, err)
	}

	vs.dim = dimension
	return nil
}

// existingDimension reads the declared dimension of the embedding
// column, or 0 if the table does not exist. pgvector stores the
// dimension as the column's type modifier.
func (vs *VectorStore) existingDimension(ctx context.Context) (int, error) {
	var dim *int
	err := vs.pool.QueryRow(ctx, `
		SELECT atttypmod
		FROM pg_attribute
		WHERE attrelid = to_regclass($1) AND attname = 'embedding'`,
		vs.config.TableName).Scan(&dim)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, nil
		}
		return 0, err
	}
	if dim == nil || *dim < 0 {
		return 0, nil
	}
	return *dim, nil
}

// Upsert writes vectors under their deterministic ids in the given
// namespace. Vectors whose dimension disagrees with the index are
// dropped, never stored. Each batch is retried on transient failure;
// batches are individually transactional, not the call as a whole.
func (vs *VectorStore) Upsert(ctx context.Context, vectors []models.Vector, namespace string) error {
	kept := make([]models.Vector, 0, len(vectors))
	for _, vec := range vectors {
		if vs.dim > 0 && len(vec.Embedding) != vs.dim {
			log.Printf("store: dropping vector %s: dimension %d, index wants %d",
				vec.ID, len(vec.Embedding), vs.dim)
			continue
		}
		kept = append(kept, vec)
	}

	for from := 0; from < len(kept); from += vs.config.BatchSize {
		to := from + vs.config.BatchSize
		if to > len(kept) {
			to = len(kept)
		}

		if err := vs.withRetry(ctx, func() error {
			return vs.upsertBatch(ctx, kept[from:to], namespace)
		}); err != nil {
			return err
		}
	}

	return nil
}

func (vs *VectorStore) upsertBatch(ctx context.Context, batch []models.Vector, namespace string) error {
	tx, err := vs.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %v", err)
	}
	defer tx.Rollback(ctx)

	stmt := fmt.Sprintf(`
		INSERT INTO %s (id, source, content, chunk_index, embedding, metadata)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO UPDATE SET
			content = EXCLUDED.content,
			chunk_index = EXCLUDED.chunk_index,
			embedding = EXCLUDED.embedding,
			metadata = EXCLUDED.metadata`,
		vs.config.TableName)

	for _, vec := range batch {
		metadata := map[string]interface{}{
			"text":        vec.Text,
			"chunk_index": vec.Ordinal,
			"source":      namespace,
		}

		_, err := tx.Exec(ctx, stmt,
			vec.ID,
			namespace,
			sanitizeUTF8(vec.Text),
			vec.Ordinal,
			pgvector.NewVector(vec.Embedding),
			metadata,
		)
		if err != nil {
			return fmt.Errorf("failed to insert vector %s: %v", vec.ID, err)
		}
	}

	return tx.Commit(ctx)
}

// Query returns the topK nearest rows in the namespace by cosine
// similarity. Matches are raw; shaping them into retrieval results is
// the caller's job.
func (vs *VectorStore) Query(ctx context.Context, embedding []float32, namespace string, filter map[string]string, topK int) ([]types.Match, error) {
	if topK <= 0 {
		topK = 5
	}

	query := fmt.Sprintf(`
		SELECT id, source, content, chunk_index, 1 - (embedding <=> $1) AS score
		FROM %s
		WHERE source = $2`,
		vs.config.TableName)

	args := []interface{}{pgvector.NewVector(embedding), namespace}
	for key, value := range filter {
		args = append(args, key, value)
		query += fmt.Sprintf(" AND metadata->>$%d = $%d", len(args)-1, len(args))
	}

	args = append(args, topK)
	query += fmt.Sprintf(" ORDER BY embedding <=> $1 LIMIT $%d", len(args))

	rows, err := vs.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%w: query failed: %v", ErrStorage, err)
	}
	defer rows.Close()

	var matches []types.Match
	for rows.Next() {
		var (
			id, source, content string
			chunkIndex          int
			score               float32
		)
		if err := rows.Scan(&id, &source, &content, &chunkIndex, &score); err != nil {
			return nil, fmt.Errorf("%w: failed to scan row: %v", ErrStorage, err)
		}
		matches = append(matches, types.Match{
			ID:    id,
			Score: score,
			Metadata: map[string]interface{}{
				"text":        content,
				"chunk_index": chunkIndex,
				"source":      source,
			},
		})
	}

	return matches, rows.Err()
}

// DeleteFrom removes rows in the namespace at chunk ordinals >=
// fromOrdinal. Re-ingestion uses it to clear stale trailing vectors when
// a document shrinks.
func (vs *VectorStore) DeleteFrom(ctx context.Context, namespace string, fromOrdinal int) error {
	stmt := fmt.Sprintf("DELETE FROM %s WHERE source = $1 AND chunk_index >= $2", vs.config.TableName)

	return vs.withRetry(ctx, func() error {
		_, err := vs.pool.Exec(ctx, stmt, namespace, fromOrdinal)
		return err
	})
}

// DeleteNamespace removes every vector belonging to one document.
func (vs *VectorStore) DeleteNamespace(ctx context.Context, namespace string) error {
	stmt := fmt.Sprintf("DELETE FROM %s WHERE source = $1", vs.config.TableName)

	return vs.withRetry(ctx, func() error {
		_, err := vs.pool.Exec(ctx, stmt, namespace)
		return err
	})
}

func (vs *VectorStore) Close() {
	if vs.pool != nil {
		vs.pool.Close()
	}
}

func (vs *VectorStore) withRetry(ctx context.Context, op func() error) error {
	var lastErr error

	for attempt := 0; attempt < vs.config.MaxAttempts; attempt++ {
		if attempt > 0 {
			delay := vs.config.BaseDelay << (attempt - 1)
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return ctx.Err()
			}
		}

		err := op()
		if err == nil {
			return nil
		}

		if !isTransient(err) {
			return fmt.Errorf("%w: %v", ErrStorage, err)
		}
		lastErr = err
	}

	return fmt.Errorf("%w after %d attempts: %v", ErrStorage, vs.config.MaxAttempts, lastErr)
}

func isTransient(err error) bool {
	msg := strings.ToLower(err.Error())
	for _, marker := range []string{
		"connection refused", "connection reset", "broken pipe",
		"timeout", "timed out", "deadlock",
		"too many connections", "cannot connect", "unexpected eof",
	} {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}

func sanitizeUTF8(s string) string {
	if !utf8.ValidString(s) {
		v := make([]rune, 0, len(s))
		for i, r := range s {
			if r == utf8.RuneError {
				_, size := utf8.DecodeRuneInString(s[i:])
				if size == 1 {
					continue
				}
			}
			v = append(v, r)
		}
		return string(v)
	}
	return s
}
