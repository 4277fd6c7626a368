package models

import "time"

// PageSegment is the text extracted from a single PDF page.
type PageSegment struct {
	Number int
	Text   string
}

// Chunk is a window over the concatenated page text. Start and End are rune
// offsets into that text.
type Chunk struct {
	Index int
	Text  string
	Start int
	End   int
}

type ScoredChunk struct {
	Chunk
	Score float32
}

type Answer struct {
	Question string
	Text     string
	Sources  []ScoredChunk
	Elapsed  time.Duration
}
