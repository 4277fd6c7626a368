package types

import (
	"context"

	"github.com/xhad/askdoc/internal/models"
)

// Core interfaces
type Loader interface {
	Load(ctx context.Context, name string, data []byte) ([]models.PageSegment, error)
}

type Chunker interface {
	Split(pages []models.PageSegment) []models.Chunk
}

type Embedder interface {
	EmbedChunks(ctx context.Context, texts []string) ([][]float32, error)
	EmbedQuestion(ctx context.Context, text string) ([]float32, error)
}

// VectorIndex owns the chunk vectors of exactly one document.
type VectorIndex interface {
	Build(ctx context.Context, chunks []models.Chunk, vectors [][]float32) error
	Retrieve(ctx context.Context, query []float32, k int) ([]models.ScoredChunk, error)
	Len() int
	Close() error
}

type Synthesizer interface {
	Answer(ctx context.Context, question string, chunks []models.ScoredChunk) (string, error)
}
