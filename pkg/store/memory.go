package store

import (
	"context"
	"math"
	"sort"
	"sync"

	"github.com/xhad/askdoc/internal/models"
	"github.com/xhad/askdoc/internal/types"
)

// MemoryIndex is a brute-force cosine similarity scan over a slice.
type MemoryIndex struct {
	mu      sync.RWMutex
	built   bool
	dim     int
	chunks  []models.Chunk
	vectors [][]float32
	norms   []float64
}

func NewMemoryIndex() *MemoryIndex { return &MemoryIndex{} }

func (m *MemoryIndex) Build(_ context.Context, chunks []models.Chunk, vectors [][]float32) error {
	dim, err := validateBuild(chunks, vectors)
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.built {
		return errAlreadyBuilt
	}

	m.chunks = append([]models.Chunk(nil), chunks...)
	m.vectors = make([][]float32, len(vectors))
	m.norms = make([]float64, len(vectors))
	for i, v := range vectors {
		m.vectors[i] = append([]float32(nil), v...)
		m.norms[i] = norm(v)
	}
	m.dim = dim
	m.built = true
	return nil
}

func (m *MemoryIndex) Retrieve(_ context.Context, query []float32, k int) ([]models.ScoredChunk, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if !m.built {
		return nil, types.ErrEmptyIndex
	}
	if err := validateQuery(query, m.dim); err != nil {
		return nil, err
	}
	if k <= 0 || len(m.chunks) == 0 {
		return []models.ScoredChunk{}, nil
	}

	qn := norm(query)
	scores := make([]float64, len(m.vectors))
	for i, v := range m.vectors {
		scores[i] = cosine(v, m.norms[i], query, qn)
	}

	idxs := make([]int, len(scores))
	for i := range idxs {
		idxs[i] = i
	}
	// stable: equal scores keep insertion order
	sort.SliceStable(idxs, func(a, b int) bool { return scores[idxs[a]] > scores[idxs[b]] })

	if k > len(idxs) {
		k = len(idxs)
	}
	results := make([]models.ScoredChunk, 0, k)
	for _, j := range idxs[:k] {
		results = append(results, models.ScoredChunk{Chunk: m.chunks[j], Score: float32(scores[j])})
	}
	return results, nil
}

func (m *MemoryIndex) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.chunks)
}

func (m *MemoryIndex) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.built = false
	m.chunks = nil
	m.vectors = nil
	m.norms = nil
	return nil
}

func norm(v []float32) float64 {
	sum := 0.0
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	return math.Sqrt(sum)
}

func cosine(a []float32, an float64, b []float32, bn float64) float64 {
	if an == 0 || bn == 0 {
		return 0
	}
	dot := 0.0
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
	}
	return dot / (an * bn)
}
