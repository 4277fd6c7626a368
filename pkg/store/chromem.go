package store

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sort"
	"strconv"
	"sync"

	"github.com/philippgille/chromem-go"

	"github.com/xhad/askdoc/internal/models"
	"github.com/xhad/askdoc/internal/types"
)

const chromemCollection = "askdoc"

// vectors are always supplied by the caller
func precomputedOnly(context.Context, string) ([]float32, error) {
	return nil, errors.New("chromem index expects precomputed embeddings")
}

// ChromemIndex keeps the document in an in-memory chromem-go collection.
type ChromemIndex struct {
	mu         sync.RWMutex
	db         *chromem.DB
	collection *chromem.Collection
	chunks     []models.Chunk
	dim        int
}

func NewChromemIndex() *ChromemIndex {
	return &ChromemIndex{}
}

func (c *ChromemIndex) Build(ctx context.Context, chunks []models.Chunk, vectors [][]float32) error {
	dim, err := validateBuild(chunks, vectors)
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.collection != nil {
		return errAlreadyBuilt
	}

	db := chromem.NewDB()
	collection, err := db.CreateCollection(chromemCollection, nil, precomputedOnly)
	if err != nil {
		return fmt.Errorf("failed to create collection: %w", err)
	}

	docs := make([]chromem.Document, len(chunks))
	for i, chunk := range chunks {
		docs[i] = chromem.Document{
			ID:        strconv.Itoa(i),
			Content:   chunk.Text,
			Embedding: append([]float32(nil), vectors[i]...),
			Metadata: map[string]string{
				"index": strconv.Itoa(chunk.Index),
				"start": strconv.Itoa(chunk.Start),
				"end":   strconv.Itoa(chunk.End),
			},
		}
	}
	if len(docs) > 0 {
		if err := collection.AddDocuments(ctx, docs, runtime.NumCPU()); err != nil {
			return fmt.Errorf("failed to add documents: %w", err)
		}
	}

	c.db = db
	c.collection = collection
	c.chunks = append([]models.Chunk(nil), chunks...)
	c.dim = dim
	return nil
}

func (c *ChromemIndex) Retrieve(ctx context.Context, query []float32, k int) ([]models.ScoredChunk, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.collection == nil {
		return nil, types.ErrEmptyIndex
	}
	if err := validateQuery(query, c.dim); err != nil {
		return nil, err
	}

	n := c.collection.Count()
	if k <= 0 || n == 0 {
		return []models.ScoredChunk{}, nil
	}

	// chromem ranks concurrently, so equal scores come back in any order.
	// Rank the whole collection and cut after a deterministic sort.
	results, err := c.collection.QueryEmbedding(ctx, append([]float32(nil), query...), n, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to query by similarity: %w", err)
	}

	hits := make([]models.ScoredChunk, 0, len(results))
	for _, r := range results {
		pos, err := strconv.Atoi(r.ID)
		if err != nil || pos < 0 || pos >= len(c.chunks) {
			return nil, fmt.Errorf("unknown document id %q in collection", r.ID)
		}
		hits = append(hits, models.ScoredChunk{Chunk: c.chunks[pos], Score: r.Similarity})
	}
	sort.SliceStable(hits, func(a, b int) bool {
		if hits[a].Score != hits[b].Score {
			return hits[a].Score > hits[b].Score
		}
		return hits[a].Index < hits[b].Index
	})
	if k < len(hits) {
		hits = hits[:k]
	}
	return hits, nil
}

func (c *ChromemIndex) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.chunks)
}

func (c *ChromemIndex) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.db != nil && c.collection != nil {
		if err := c.db.DeleteCollection(chromemCollection); err != nil {
			return fmt.Errorf("failed to drop collection: %w", err)
		}
	}
	c.db = nil
	c.collection = nil
	c.chunks = nil
	return nil
}
