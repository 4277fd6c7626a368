package testutil

import (
	"context"
	"hash/fnv"
	"math"
	"strings"
	"sync"
	"unicode"

	"github.com/tmc/langchaingo/llms"
)

const EmbeddingDim = 64

// EmbeddingClient satisfies langchaingo's embeddings.EmbedderClient with a
// bag-of-words hashing embedding, so texts sharing words land close together.
type EmbeddingClient struct {
	mu    sync.Mutex
	Err   error
	Calls int
	Texts []string
}

func (c *EmbeddingClient) CreateEmbedding(_ context.Context, texts []string) ([][]float32, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.Calls++
	c.Texts = append(c.Texts, texts...)
	if c.Err != nil {
		return nil, c.Err
	}

	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = HashEmbedding(t)
	}
	return out, nil
}

func (c *EmbeddingClient) CallCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.Calls
}

// HashEmbedding maps each lower-cased word into one of EmbeddingDim buckets
// and L2-normalizes the counts. A constant bias bucket keeps the vector
// non-zero for empty text.
func HashEmbedding(text string) []float32 {
	vec := make([]float32, EmbeddingDim)
	vec[0] = 0.01
	words := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	for _, w := range words {
		h := fnv.New32a()
		_, _ = h.Write([]byte(w))
		vec[1+int(h.Sum32()%uint32(EmbeddingDim-1))]++
	}

	var norm float64
	for _, v := range vec {
		norm += float64(v) * float64(v)
	}
	norm = math.Sqrt(norm)
	for i := range vec {
		vec[i] = float32(float64(vec[i]) / norm)
	}
	return vec
}

// ChatModel is an llms.Model that echoes the prompt back unless Response or
// Err is set.
type ChatModel struct {
	mu          sync.Mutex
	Response    *string
	Err         error
	Prompts     []string
	Temperature float64
	MaxTokens   int
}

func (m *ChatModel) GenerateContent(_ context.Context, messages []llms.MessageContent, options ...llms.CallOption) (*llms.ContentResponse, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	opts := llms.CallOptions{}
	for _, opt := range options {
		opt(&opts)
	}
	m.Temperature = opts.Temperature
	m.MaxTokens = opts.MaxTokens

	var prompt strings.Builder
	for _, msg := range messages {
		for _, part := range msg.Parts {
			if text, ok := part.(llms.TextContent); ok {
				prompt.WriteString(text.Text)
			}
		}
	}
	m.Prompts = append(m.Prompts, prompt.String())

	if m.Err != nil {
		return nil, m.Err
	}

	content := prompt.String()
	if m.Response != nil {
		content = *m.Response
	}
	return &llms.ContentResponse{
		Choices: []*llms.ContentChoice{{Content: content}},
	}, nil
}

func (m *ChatModel) Call(ctx context.Context, prompt string, options ...llms.CallOption) (string, error) {
	return llms.GenerateFromSinglePrompt(ctx, m, prompt, options...)
}

func (m *ChatModel) LastPrompt() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.Prompts) == 0 {
		return ""
	}
	return m.Prompts[len(m.Prompts)-1]
}

func StringPtr(s string) *string { return &s }
