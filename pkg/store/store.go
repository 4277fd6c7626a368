// Package store holds the vector index backends. Each index owns the chunk
// vectors of exactly one document and is built once.
package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/xhad/askdoc/internal/models"
	"github.com/xhad/askdoc/internal/types"
)

var errAlreadyBuilt = errors.New("index is already built")

type VectorStoreConfig struct {
	Backend    string // memory, chromem or pgvector
	ConnString string
	TableName  string
	BatchSize  int
}

// NewIndex returns an empty index for the configured backend.
func NewIndex(ctx context.Context, config VectorStoreConfig) (types.VectorIndex, error) {
	switch config.Backend {
	case "memory", "":
		return NewMemoryIndex(), nil
	case "chromem":
		return NewChromemIndex(), nil
	case "pgvector":
		idx, err := NewPGVectorIndex(ctx, config)
		if err != nil {
			return nil, err
		}
		return idx, nil
	default:
		return nil, fmt.Errorf("unknown vector store backend %q", config.Backend)
	}
}

func validateBuild(chunks []models.Chunk, vectors [][]float32) (int, error) {
	if len(chunks) != len(vectors) {
		return 0, fmt.Errorf("chunks and vectors length mismatch: %d != %d", len(chunks), len(vectors))
	}
	if len(vectors) == 0 {
		return 0, nil
	}
	dim := len(vectors[0])
	if dim == 0 {
		return 0, errors.New("vectors must not be empty")
	}
	for i, v := range vectors {
		if len(v) != dim {
			return 0, fmt.Errorf("vector %d dimension mismatch: %d != %d", i, len(v), dim)
		}
	}
	return dim, nil
}

func validateQuery(query []float32, dim int) error {
	if len(query) == 0 {
		return errors.New("query vector is empty")
	}
	if dim > 0 && len(query) != dim {
		return fmt.Errorf("query dimension mismatch: %d != %d", len(query), dim)
	}
	return nil
}
