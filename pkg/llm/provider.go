package llm

import (
	"context"
	"fmt"

	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/googleai"
	"github.com/tmc/langchaingo/llms/ollama"
	"github.com/tmc/langchaingo/llms/openai"
)

// ProviderConfig selects the hosted (or local) model backend.
type ProviderConfig struct {
	Provider       string // googleai, openai or ollama
	APIKey         string
	BaseURL        string
	Model          string
	EmbeddingModel string
}

// Provider bundles the chat model and the embedding client of one backend.
// Both come from the same provider so questions and chunks share a vector
// space.
type Provider struct {
	Chat       llms.Model
	Embeddings embeddings.EmbedderClient
}

func NewProvider(ctx context.Context, config ProviderConfig) (*Provider, error) {
	switch config.Provider {
	case "googleai", "":
		client, err := googleai.New(ctx,
			googleai.WithAPIKey(config.APIKey),
			googleai.WithDefaultModel(config.Model),
			googleai.WithDefaultEmbeddingModel(config.EmbeddingModel),
		)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize Google AI client: %w", err)
		}
		return &Provider{Chat: client, Embeddings: client}, nil

	case "openai":
		opts := []openai.Option{
			openai.WithToken(config.APIKey),
			openai.WithModel(config.Model),
			openai.WithEmbeddingModel(config.EmbeddingModel),
		}
		if config.BaseURL != "" {
			opts = append(opts, openai.WithBaseURL(config.BaseURL))
		}
		client, err := openai.New(opts...)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize OpenAI client: %w", err)
		}
		return &Provider{Chat: client, Embeddings: client}, nil

	case "ollama":
		chat, err := ollama.New(ollama.WithModel(config.Model),
			ollama.WithServerURL(config.BaseURL))
		if err != nil {
			return nil, fmt.Errorf("failed to initialize LLM: %w", err)
		}
		emb, err := ollama.New(ollama.WithModel(config.EmbeddingModel),
			ollama.WithServerURL(config.BaseURL))
		if err != nil {
			return nil, fmt.Errorf("failed to initialize embedding model: %w", err)
		}
		return &Provider{Chat: chat, Embeddings: emb}, nil

	default:
		return nil, fmt.Errorf("unknown provider %q", config.Provider)
	}
}
