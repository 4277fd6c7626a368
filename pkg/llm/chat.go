package llm

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/prompts"

	"github.com/xhad/askdoc/internal/models"
	"github.com/xhad/askdoc/internal/types"
)

// DefaultTemplate is the "stuff documents" question-answering prompt.
const DefaultTemplate = `Use the following pieces of context to answer the question at the end. If you don't know the answer, just say that you don't know, don't try to make up an answer.

{{.context}}

Question: {{.question}}
Helpful Answer:`

const contextSeparator = "\n\n"

// ChatConfig represents the configuration for a chat engine.
type ChatConfig struct {
	Temperature     float64
	MaxTokens       int
	MaxContextChars int
	Template        string
}

// ChatEngine is an engine that uses an LLM to answer a question from
// retrieved chunks.
type ChatEngine struct {
	config ChatConfig
	llm    llms.Model
	prompt prompts.PromptTemplate
}

// NewWithConfig creates a new ChatEngine with the given configuration.
func NewWithConfig(model llms.Model, config ChatConfig) (*ChatEngine, error) {
	if model == nil {
		return nil, fmt.Errorf("chat model is required")
	}
	if config.Temperature < 0 || config.Temperature > 2 {
		return nil, fmt.Errorf("temperature must be between 0 and 2")
	}
	if config.MaxTokens < 0 {
		return nil, fmt.Errorf("max tokens cannot be negative")
	} else if config.MaxTokens == 0 {
		config.MaxTokens = 2048
	}
	if config.MaxContextChars <= 0 {
		config.MaxContextChars = 12000
	}
	if config.Template == "" {
		config.Template = DefaultTemplate
	}

	return &ChatEngine{
		config: config,
		llm:    model,
		prompt: prompts.NewPromptTemplate(config.Template, []string{"context", "question"}),
	}, nil
}

// Answer generates a response based on the question and the retrieved
// chunks, most relevant first. The model output is returned as is.
func (ce *ChatEngine) Answer(ctx context.Context, question string, chunks []models.ScoredChunk) (string, error) {
	prompt, err := ce.Prompt(question, chunks)
	if err != nil {
		return "", err
	}

	content := []llms.MessageContent{
		llms.TextParts(llms.ChatMessageTypeHuman, prompt),
	}

	response, err := ce.llm.GenerateContent(ctx, content,
		llms.WithTemperature(ce.config.Temperature),
		llms.WithMaxTokens(ce.config.MaxTokens),
	)
	if err != nil {
		return "", fmt.Errorf("%w: %v", types.ErrGeneration, err)
	}
	if response == nil || len(response.Choices) == 0 || response.Choices[0] == nil {
		return "", fmt.Errorf("%w: no response from LLM", types.ErrGeneration)
	}

	text := response.Choices[0].Content
	if strings.TrimSpace(text) == "" {
		return "", fmt.Errorf("%w: empty completion", types.ErrGeneration)
	}
	return text, nil
}

// Prompt renders the template for question over the bounded context block.
func (ce *ChatEngine) Prompt(question string, chunks []models.ScoredChunk) (string, error) {
	prompt, err := ce.prompt.Format(map[string]any{
		"context":  ce.buildContext(chunks),
		"question": question,
	})
	if err != nil {
		return "", fmt.Errorf("%w: formatting prompt: %v", types.ErrGeneration, err)
	}
	return prompt, nil
}

// buildContext joins whole chunks while they fit in MaxContextChars. A first
// chunk that is larger than the budget on its own is truncated.
func (ce *ChatEngine) buildContext(chunks []models.ScoredChunk) string {
	var contextBuilder strings.Builder
	budget := ce.config.MaxContextChars

	for i, chunk := range chunks {
		sep := ""
		if i > 0 {
			sep = contextSeparator
		}
		need := utf8.RuneCountInString(sep) + utf8.RuneCountInString(chunk.Text)
		if need > budget {
			if i == 0 {
				contextBuilder.WriteString(string([]rune(chunk.Text)[:budget]))
			}
			break
		}
		contextBuilder.WriteString(sep)
		contextBuilder.WriteString(chunk.Text)
		budget -= need
	}

	return contextBuilder.String()
}
