package llm

import (
	"context"
	"fmt"

	"github.com/tmc/langchaingo/embeddings"

	"github.com/xhad/askdoc/internal/types"
)

type EmbedderConfig struct {
	BatchSize int
}

// Embedder turns chunks and questions into vectors with one embedding model.
type Embedder struct {
	config EmbedderConfig
	embed  embeddings.Embedder
}

func NewEmbedderWithConfig(client embeddings.EmbedderClient, config EmbedderConfig) (*Embedder, error) {
	if config.BatchSize <= 0 {
		config.BatchSize = 100
	}

	emb, err := embeddings.NewEmbedder(client, embeddings.WithBatchSize(config.BatchSize))
	if err != nil {
		return nil, fmt.Errorf("failed to create embedder: %w", err)
	}

	return &Embedder{
		config: config,
		embed:  emb,
	}, nil
}

// EmbedChunks embeds texts in batches and returns one vector per text.
func (e *Embedder) EmbedChunks(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	vectors, err := e.embed.EmbedDocuments(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", types.ErrEmbedding, err)
	}
	if len(vectors) != len(texts) {
		return nil, fmt.Errorf("%w: got %d vectors for %d chunks", types.ErrEmbedding, len(vectors), len(texts))
	}

	dim := len(vectors[0])
	for i, v := range vectors {
		if len(v) == 0 || len(v) != dim {
			return nil, fmt.Errorf("%w: vector %d has dimension %d, want %d", types.ErrEmbedding, i, len(v), dim)
		}
	}

	return vectors, nil
}

func (e *Embedder) EmbedQuestion(ctx context.Context, text string) ([]float32, error) {
	vector, err := e.embed.EmbedQuery(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", types.ErrEmbedding, err)
	}
	if len(vector) == 0 {
		return nil, fmt.Errorf("%w: empty query vector", types.ErrEmbedding)
	}
	return vector, nil
}
