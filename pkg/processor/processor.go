package processor

import (
	"fmt"
	"strings"

	"github.com/xhad/askdoc/internal/models"
)

const pageSeparator = "\n"

type ProcessorConfig struct {
	ChunkSize    int
	ChunkOverlap int
}

// Processor splits page text into fixed-size, overlapping character windows.
type Processor struct {
	config ProcessorConfig
}

func NewWithConfig(config ProcessorConfig) (Processor, error) {
	if config.ChunkSize == 0 {
		config.ChunkSize = 1000
	}
	if config.ChunkSize < 0 {
		return Processor{}, fmt.Errorf("chunk size must be positive, got %d", config.ChunkSize)
	}
	if config.ChunkOverlap < 0 || config.ChunkOverlap >= config.ChunkSize {
		return Processor{}, fmt.Errorf("chunk overlap %d must be in [0, %d)", config.ChunkOverlap, config.ChunkSize)
	}

	return Processor{
		config: config,
	}, nil
}

func (p Processor) Config() ProcessorConfig {
	return p.config
}

// Split joins the page segments in order and windows the result.
func (p Processor) Split(pages []models.PageSegment) []models.Chunk {
	texts := make([]string, len(pages))
	for i, page := range pages {
		texts[i] = page.Text
	}
	return p.SplitText(strings.Join(texts, pageSeparator))
}

// SplitText slides a ChunkSize window over text, advancing by
// ChunkSize-ChunkOverlap runes. Every chunk but the last is exactly ChunkSize
// runes long and consecutive chunks share exactly ChunkOverlap runes. Text
// that is empty or only whitespace yields no chunks.
func (p Processor) SplitText(text string) []models.Chunk {
	if strings.TrimSpace(text) == "" {
		return nil
	}
	runes := []rune(text)

	step := p.config.ChunkSize - p.config.ChunkOverlap
	chunks := make([]models.Chunk, 0, len(runes)/step+1)

	for start := 0; ; start += step {
		end := start + p.config.ChunkSize
		if end > len(runes) {
			end = len(runes)
		}
		chunks = append(chunks, models.Chunk{
			Index: len(chunks),
			Text:  string(runes[start:end]),
			Start: start,
			End:   end,
		})
		if end == len(runes) {
			break
		}
	}

	return chunks
}
