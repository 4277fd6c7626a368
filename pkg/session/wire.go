package session

import (
	"context"

	"github.com/xhad/askdoc/internal/types"
	"github.com/xhad/askdoc/pkg/config"
	"github.com/xhad/askdoc/pkg/llm"
	"github.com/xhad/askdoc/pkg/loader"
	"github.com/xhad/askdoc/pkg/processor"
	"github.com/xhad/askdoc/pkg/store"
)

// NewFromConfig connects to the configured model provider and assembles a
// session around it.
func NewFromConfig(ctx context.Context, cfg *config.Config, apiKey string) (*Session, error) {
	provider, err := llm.NewProvider(ctx, llm.ProviderConfig{
		Provider:       cfg.LLM.Provider,
		APIKey:         apiKey,
		BaseURL:        cfg.LLM.BaseURL,
		Model:          cfg.LLM.Model,
		EmbeddingModel: cfg.LLM.EmbeddingModel,
	})
	if err != nil {
		return nil, err
	}
	return Assemble(cfg, provider)
}

// Assemble wires the pipeline components for cfg on top of provider.
func Assemble(cfg *config.Config, provider *llm.Provider) (*Session, error) {
	chunker, err := processor.NewWithConfig(processor.ProcessorConfig{
		ChunkSize:    cfg.Processor.ChunkSize,
		ChunkOverlap: cfg.Processor.ChunkOverlap,
	})
	if err != nil {
		return nil, err
	}

	embedder, err := llm.NewEmbedderWithConfig(provider.Embeddings, llm.EmbedderConfig{
		BatchSize: cfg.LLM.BatchSize,
	})
	if err != nil {
		return nil, err
	}

	chat, err := llm.NewWithConfig(provider.Chat, llm.ChatConfig{
		Temperature:     cfg.LLM.Temperature,
		MaxTokens:       cfg.LLM.MaxTokens,
		MaxContextChars: cfg.Retrieval.MaxContextChars,
	})
	if err != nil {
		return nil, err
	}

	storeConfig := store.VectorStoreConfig{
		Backend:    cfg.Index.Backend,
		ConnString: cfg.Index.DatabaseURL,
		TableName:  cfg.Index.TableName,
		BatchSize:  cfg.Index.BatchSize,
	}

	return New(Components{
		Loader: loader.NewWithConfig(loader.LoaderConfig{
			Password: cfg.Loader.Password,
			TempDir:  cfg.Loader.TempDir,
		}),
		Chunker:     chunker,
		Embedder:    embedder,
		Synthesizer: chat,
		NewIndex: func(ctx context.Context) (types.VectorIndex, error) {
			return store.NewIndex(ctx, storeConfig)
		},
	}, Config{TopK: cfg.Retrieval.TopK})
}
