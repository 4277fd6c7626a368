package llm_test

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xhad/askdoc/internal/models"
	"github.com/xhad/askdoc/internal/testutil"
	"github.com/xhad/askdoc/internal/types"
	"github.com/xhad/askdoc/pkg/llm"
)

func scored(texts ...string) []models.ScoredChunk {
	out := make([]models.ScoredChunk, len(texts))
	for i, t := range texts {
		out[i] = models.ScoredChunk{Chunk: models.Chunk{Index: i, Text: t}}
	}
	return out
}

func TestNewWithConfig(t *testing.T) {
	engine, err := llm.NewWithConfig(&testutil.ChatModel{}, llm.ChatConfig{Temperature: 0.3})
	assert.NoError(t, err)
	assert.NotNil(t, engine)

	_, err = llm.NewWithConfig(nil, llm.ChatConfig{})
	assert.Error(t, err)

	_, err = llm.NewWithConfig(&testutil.ChatModel{}, llm.ChatConfig{Temperature: 3})
	assert.Error(t, err)

	_, err = llm.NewWithConfig(&testutil.ChatModel{}, llm.ChatConfig{MaxTokens: -1})
	assert.Error(t, err)
}

func TestAnswer(t *testing.T) {
	model := &testutil.ChatModel{Response: testutil.StringPtr("Paris is the capital of France.")}
	engine, err := llm.NewWithConfig(model, llm.ChatConfig{Temperature: 0.3, MaxTokens: 512})
	require.NoError(t, err)

	answer, err := engine.Answer(context.Background(), "What is the capital of France?",
		scored("The capital of France is Paris.", "Bread needs flour."))
	require.NoError(t, err)
	assert.Equal(t, "Paris is the capital of France.", answer)

	prompt := model.LastPrompt()
	assert.True(t, strings.HasPrefix(prompt, "Use the following pieces of context"))
	assert.Contains(t, prompt, "The capital of France is Paris.\n\nBread needs flour.")
	assert.True(t, strings.HasSuffix(prompt, "Question: What is the capital of France?\nHelpful Answer:"))
	assert.Equal(t, 0.3, model.Temperature)
	assert.Equal(t, 512, model.MaxTokens)
}

func TestAnswer_ReturnsRawText(t *testing.T) {
	raw := "  **Paris**\n\n- see page 2  "
	engine, err := llm.NewWithConfig(&testutil.ChatModel{Response: &raw}, llm.ChatConfig{Temperature: 0.3})
	require.NoError(t, err)

	answer, err := engine.Answer(context.Background(), "q", scored("c"))
	require.NoError(t, err)
	assert.Equal(t, raw, answer)
}

func TestAnswer_Failures(t *testing.T) {
	tests := []struct {
		name  string
		model *testutil.ChatModel
	}{
		{name: "provider error", model: &testutil.ChatModel{Err: errors.New("401 unauthorized")}},
		{name: "empty completion", model: &testutil.ChatModel{Response: testutil.StringPtr("   ")}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			engine, err := llm.NewWithConfig(tt.model, llm.ChatConfig{Temperature: 0.3})
			require.NoError(t, err)

			_, err = engine.Answer(context.Background(), "q", scored("c"))
			require.Error(t, err)
			assert.True(t, errors.Is(err, types.ErrGeneration))
		})
	}
}

func TestPrompt_BoundedContext(t *testing.T) {
	engine, err := llm.NewWithConfig(&testutil.ChatModel{}, llm.ChatConfig{
		Temperature:     0.3,
		MaxContextChars: 25,
		Template:        "{{.context}}|{{.question}}",
	})
	require.NoError(t, err)

	// whole chunks only while they fit
	prompt, err := engine.Prompt("q", scored("0123456789", "abcdefghij", "KLMNOPQRST"))
	require.NoError(t, err)
	assert.Equal(t, "0123456789\n\nabcdefghij|q", prompt)

	// an oversized first chunk is truncated
	prompt, err = engine.Prompt("q", scored(strings.Repeat("x", 40)))
	require.NoError(t, err)
	assert.Equal(t, strings.Repeat("x", 25)+"|q", prompt)
}
