package store

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"

	"github.com/xhad/askdoc/internal/models"
	"github.com/xhad/askdoc/internal/types"
)

// PGVectorIndex stores one document in a scratch PostgreSQL table that is
// created by Build and dropped by Close.
type PGVectorIndex struct {
	mu     sync.RWMutex
	config VectorStoreConfig
	pool   *pgxpool.Pool
	table  string
	built  bool
	dim    int
	size   int
}

func NewPGVectorIndex(ctx context.Context, config VectorStoreConfig) (*PGVectorIndex, error) {
	if config.TableName == "" {
		config.TableName = "askdoc_chunks"
	}
	if config.BatchSize == 0 {
		config.BatchSize = 100
	}

	pool, err := pgxpool.New(ctx, config.ConnString)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:12]
	return &PGVectorIndex{
		config: config,
		pool:   pool,
		table:  pgx.Identifier{config.TableName + "_" + suffix}.Sanitize(),
	}, nil
}

func (vs *PGVectorIndex) Build(ctx context.Context, chunks []models.Chunk, vectors [][]float32) error {
	dim, err := validateBuild(chunks, vectors)
	if err != nil {
		return err
	}
	if dim == 0 {
		// vector(0) is not a valid column type
		dim = 1
	}

	vs.mu.Lock()
	defer vs.mu.Unlock()
	if vs.built {
		return errAlreadyBuilt
	}

	tx, err := vs.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, "CREATE EXTENSION IF NOT EXISTS vector"); err != nil {
		return fmt.Errorf("failed to create vector extension: %w", err)
	}

	createTable := fmt.Sprintf(`
		CREATE TABLE %s (
			id INTEGER PRIMARY KEY,
			chunk_index INTEGER NOT NULL,
			start_offset INTEGER NOT NULL,
			end_offset INTEGER NOT NULL,
			content TEXT NOT NULL,
			embedding vector(%d) NOT NULL
		)`, vs.table, dim)
	if _, err := tx.Exec(ctx, createTable); err != nil {
		return fmt.Errorf("failed to create table: %w", err)
	}

	stmt := fmt.Sprintf(`
		INSERT INTO %s (id, chunk_index, start_offset, end_offset, content, embedding)
		VALUES ($1, $2, $3, $4, $5, $6)`, vs.table)

	// Insert chunks in batches
	for i := 0; i < len(chunks); i += vs.config.BatchSize {
		end := i + vs.config.BatchSize
		if end > len(chunks) {
			end = len(chunks)
		}

		batch := &pgx.Batch{}
		for j := i; j < end; j++ {
			c := chunks[j]
			batch.Queue(stmt, j, c.Index, c.Start, c.End, sanitizeUTF8(c.Text), pgvector.NewVector(vectors[j]))
		}
		if err := tx.SendBatch(ctx, batch).Close(); err != nil {
			return fmt.Errorf("failed to insert chunks: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	vs.built = true
	vs.dim = dim
	vs.size = len(chunks)
	return nil
}

func (vs *PGVectorIndex) Retrieve(ctx context.Context, query []float32, k int) ([]models.ScoredChunk, error) {
	vs.mu.RLock()
	defer vs.mu.RUnlock()

	if !vs.built {
		return nil, types.ErrEmptyIndex
	}
	if err := validateQuery(query, vs.dim); err != nil {
		return nil, err
	}
	if k <= 0 || vs.size == 0 {
		return []models.ScoredChunk{}, nil
	}

	q := fmt.Sprintf(`
		SELECT chunk_index, start_offset, end_offset, content, 1 - (embedding <=> $1) AS score
		FROM %s
		ORDER BY embedding <=> $1, id
		LIMIT $2`, vs.table)

	rows, err := vs.pool.Query(ctx, q, pgvector.NewVector(query), k)
	if err != nil {
		return nil, fmt.Errorf("failed to query chunks: %w", err)
	}
	defer rows.Close()

	var hits []models.ScoredChunk
	for rows.Next() {
		var hit models.ScoredChunk
		var score float64
		if err := rows.Scan(&hit.Index, &hit.Start, &hit.End, &hit.Text, &score); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		hit.Score = float32(score)
		hits = append(hits, hit)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read rows: %w", err)
	}
	return hits, nil
}

func (vs *PGVectorIndex) Len() int {
	vs.mu.RLock()
	defer vs.mu.RUnlock()
	return vs.size
}

// Close drops the scratch table and releases the pool.
func (vs *PGVectorIndex) Close() error {
	vs.mu.Lock()
	defer vs.mu.Unlock()

	if vs.pool == nil {
		return nil
	}
	_, err := vs.pool.Exec(context.Background(), fmt.Sprintf("DROP TABLE IF EXISTS %s", vs.table))
	vs.pool.Close()
	vs.pool = nil
	vs.built = false
	vs.size = 0
	if err != nil {
		return fmt.Errorf("failed to drop table: %w", err)
	}
	return nil
}

// postgres rejects invalid UTF-8 in TEXT columns
func sanitizeUTF8(s string) string {
	if utf8.ValidString(s) {
		return s
	}
	return strings.ToValidUTF8(s, "")
}
