// Package session runs the document pipeline for a single user: one
// document is processed once and then answers any number of questions.
package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/xhad/askdoc/internal/models"
	"github.com/xhad/askdoc/internal/types"
)

type State int

const (
	Idle State = iota
	Processing
	Ready
	Answering
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Processing:
		return "processing"
	case Ready:
		return "ready"
	case Answering:
		return "answering"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// IndexFactory returns a fresh, unbuilt index for each processed document.
type IndexFactory func(ctx context.Context) (types.VectorIndex, error)

type Components struct {
	Loader      types.Loader
	Chunker     types.Chunker
	Embedder    types.Embedder
	Synthesizer types.Synthesizer
	NewIndex    IndexFactory
}

type Config struct {
	TopK int
}

// Cache is the pipeline built from one document. Key is the uploaded file
// name; a later upload with the same name reuses it.
type Cache struct {
	Key     string
	BuildID string
	Index   types.VectorIndex
	Pages   int
	Chunks  int
	BuiltAt time.Time
}

func (c *Cache) Matches(name string) bool {
	return c != nil && c.Key == name
}

func (c *Cache) close() {
	if c == nil || c.Index == nil {
		return
	}
	if err := c.Index.Close(); err != nil {
		log.Warn().Err(err).Str("document", c.Key).Str("build_id", c.BuildID).Msg("failed to close index")
	}
}

type UploadResult struct {
	Name    string
	BuildID string
	Pages   int
	Chunks  int
	Cached  bool
	Elapsed time.Duration
}

type Status struct {
	State        State     `json:"state"`
	DocumentName string    `json:"document_name,omitempty"`
	BuildID      string    `json:"build_id,omitempty"`
	Chunks       int       `json:"chunks"`
	BuiltAt      time.Time `json:"built_at"`
	LastError    string    `json:"last_error,omitempty"`
}

// Session serializes uploads and questions. An operation that arrives while
// another is running fails with types.ErrBusy instead of waiting.
type Session struct {
	components Components
	config     Config

	op sync.Mutex // held for the duration of an operation

	mu        sync.RWMutex
	state     State
	pending   string
	cache     *Cache
	lastError string
}

func New(components Components, config Config) (*Session, error) {
	if components.Loader == nil || components.Chunker == nil || components.Embedder == nil ||
		components.Synthesizer == nil || components.NewIndex == nil {
		return nil, errors.New("session requires loader, chunker, embedder, synthesizer and index factory")
	}
	if config.TopK < 0 {
		return nil, fmt.Errorf("top k must not be negative, got %d", config.TopK)
	}
	if config.TopK == 0 {
		config.TopK = 4
	}

	return &Session{
		components: components,
		config:     config,
		state:      Idle,
	}, nil
}

// Upload processes the document unless it is the one already cached.
// On failure the session holds no pipeline at all.
func (s *Session) Upload(ctx context.Context, name string, data []byte) (UploadResult, error) {
	if !s.op.TryLock() {
		return UploadResult{}, types.ErrBusy
	}
	defer s.op.Unlock()

	start := time.Now()

	s.mu.Lock()
	if s.state == Ready && s.cache.Matches(name) {
		c := s.cache
		s.mu.Unlock()
		log.Debug().Str("document", name).Str("build_id", c.BuildID).Msg("reusing cached pipeline")
		return UploadResult{
			Name:    name,
			BuildID: c.BuildID,
			Pages:   c.Pages,
			Chunks:  c.Chunks,
			Cached:  true,
			Elapsed: time.Since(start),
		}, nil
	}
	prev := s.cache
	s.cache = nil
	s.state = Processing
	s.pending = name
	s.lastError = ""
	s.mu.Unlock()

	prev.close()

	c, err := s.build(ctx, name, data)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.pending = ""
	if err != nil {
		s.state = Idle
		s.lastError = err.Error()
		log.Error().Err(err).Str("document", name).Msg("failed to process document")
		return UploadResult{}, err
	}

	s.cache = c
	s.state = Ready
	elapsed := time.Since(start)
	log.Info().
		Str("document", name).
		Str("build_id", c.BuildID).
		Int("pages", c.Pages).
		Int("chunks", c.Chunks).
		Dur("elapsed", elapsed).
		Msg("document ready")

	return UploadResult{
		Name:    name,
		BuildID: c.BuildID,
		Pages:   c.Pages,
		Chunks:  c.Chunks,
		Elapsed: elapsed,
	}, nil
}

func (s *Session) build(ctx context.Context, name string, data []byte) (*Cache, error) {
	pages, err := s.components.Loader.Load(ctx, name, data)
	if err != nil {
		return nil, err
	}

	chunks := s.components.Chunker.Split(pages)
	if !hasText(chunks) {
		return nil, fmt.Errorf("%w: %s: no extractable text", types.ErrLoad, name)
	}

	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Text
	}
	vectors, err := s.components.Embedder.EmbedChunks(ctx, texts)
	if err != nil {
		return nil, err
	}

	index, err := s.components.NewIndex(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create index: %w", err)
	}
	if err := index.Build(ctx, chunks, vectors); err != nil {
		index.Close()
		return nil, fmt.Errorf("failed to build index: %w", err)
	}

	return &Cache{
		Key:     name,
		BuildID: uuid.NewString(),
		Index:   index,
		Pages:   len(pages),
		Chunks:  len(chunks),
		BuiltAt: time.Now(),
	}, nil
}

func hasText(chunks []models.Chunk) bool {
	for _, c := range chunks {
		if strings.TrimSpace(c.Text) != "" {
			return true
		}
	}
	return false
}

// Ask answers a question from the cached document. A failed question leaves
// the pipeline in place.
func (s *Session) Ask(ctx context.Context, question string) (models.Answer, error) {
	if !s.op.TryLock() {
		return models.Answer{}, types.ErrBusy
	}
	defer s.op.Unlock()

	s.mu.Lock()
	if s.state != Ready || s.cache == nil {
		s.mu.Unlock()
		return models.Answer{}, types.ErrNoDocument
	}
	question = strings.TrimSpace(question)
	if question == "" {
		s.mu.Unlock()
		return models.Answer{}, types.ErrEmptyQuestion
	}
	c := s.cache
	s.state = Answering
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.state = Ready
		s.mu.Unlock()
	}()

	start := time.Now()
	answer, err := s.answer(ctx, c, question)
	if err != nil {
		log.Error().Err(err).Str("document", c.Key).Msg("failed to answer question")
		return models.Answer{}, err
	}
	answer.Elapsed = time.Since(start)

	log.Info().
		Str("document", c.Key).
		Str("build_id", c.BuildID).
		Int("sources", len(answer.Sources)).
		Dur("elapsed", answer.Elapsed).
		Msg("answered question")
	return answer, nil
}

func (s *Session) answer(ctx context.Context, c *Cache, question string) (models.Answer, error) {
	query, err := s.components.Embedder.EmbedQuestion(ctx, question)
	if err != nil {
		return models.Answer{}, err
	}

	sources, err := c.Index.Retrieve(ctx, query, s.config.TopK)
	if err != nil {
		return models.Answer{}, fmt.Errorf("failed to retrieve chunks: %w", err)
	}

	text, err := s.components.Synthesizer.Answer(ctx, question, sources)
	if err != nil {
		return models.Answer{}, err
	}

	return models.Answer{
		Question: question,
		Text:     text,
		Sources:  sources,
	}, nil
}

// Reset discards the cached pipeline.
func (s *Session) Reset() error {
	if !s.op.TryLock() {
		return types.ErrBusy
	}
	defer s.op.Unlock()

	s.mu.Lock()
	prev := s.cache
	s.cache = nil
	s.state = Idle
	s.lastError = ""
	s.mu.Unlock()

	prev.close()
	return nil
}

func (s *Session) Status() Status {
	s.mu.RLock()
	defer s.mu.RUnlock()

	st := Status{
		State:        s.state,
		DocumentName: s.pending,
		LastError:    s.lastError,
	}
	if s.cache != nil {
		st.DocumentName = s.cache.Key
		st.BuildID = s.cache.BuildID
		st.Chunks = s.cache.Chunks
		st.BuiltAt = s.cache.BuiltAt
	}
	return st
}

// Close waits for any running operation and releases the index.
func (s *Session) Close() error {
	s.op.Lock()
	defer s.op.Unlock()

	s.mu.Lock()
	prev := s.cache
	s.cache = nil
	s.state = Idle
	s.mu.Unlock()

	if prev == nil || prev.Index == nil {
		return nil
	}
	return prev.Index.Close()
}
