package store_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xhad/askdoc/internal/models"
	"github.com/xhad/askdoc/internal/testutil"
	"github.com/xhad/askdoc/internal/types"
	"github.com/xhad/askdoc/pkg/store"
)

var backends = []struct {
	name string
	new  func() types.VectorIndex
}{
	{name: "memory", new: func() types.VectorIndex { return store.NewMemoryIndex() }},
	{name: "chromem", new: func() types.VectorIndex { return store.NewChromemIndex() }},
}

func buildCorpus(texts ...string) ([]models.Chunk, [][]float32) {
	chunks := make([]models.Chunk, len(texts))
	vectors := make([][]float32, len(texts))
	for i, text := range texts {
		chunks[i] = models.Chunk{Index: i, Text: text}
		vectors[i] = testutil.HashEmbedding(text)
	}
	return chunks, vectors
}

func TestRetrieve(t *testing.T) {
	chunks, vectors := buildCorpus(
		"bread needs flour water and yeast",
		"the capital of france is paris",
		"rivers flow into the sea",
		"paris hosts the louvre museum",
		"cats sleep most of the day",
	)
	query := testutil.HashEmbedding("what is the capital of france")

	for _, b := range backends {
		t.Run(b.name, func(t *testing.T) {
			ctx := context.Background()
			idx := b.new()
			defer idx.Close()

			require.NoError(t, idx.Build(ctx, chunks, vectors))
			assert.Equal(t, len(chunks), idx.Len())

			for _, k := range []int{1, 2, 4, 5, 10} {
				hits, err := idx.Retrieve(ctx, query, k)
				require.NoError(t, err)
				assert.Len(t, hits, min(k, len(chunks)))
				assert.Equal(t, "the capital of france is paris", hits[0].Text)
				for i, hit := range hits {
					assert.Equal(t, chunks[hit.Index], hit.Chunk)
					if i > 0 {
						assert.GreaterOrEqual(t, hits[i-1].Score, hit.Score)
					}
				}
			}

			hits, err := idx.Retrieve(ctx, query, 0)
			require.NoError(t, err)
			assert.Empty(t, hits)
		})
	}
}

func TestRetrieve_StableTies(t *testing.T) {
	chunks, vectors := buildCorpus("same words", "same words", "same words", "other")

	for _, b := range backends {
		t.Run(b.name, func(t *testing.T) {
			ctx := context.Background()
			idx := b.new()
			defer idx.Close()
			require.NoError(t, idx.Build(ctx, chunks, vectors))

			hits, err := idx.Retrieve(ctx, testutil.HashEmbedding("same words"), 3)
			require.NoError(t, err)
			require.Len(t, hits, 3)
			assert.Equal(t, []int{0, 1, 2}, []int{hits[0].Index, hits[1].Index, hits[2].Index})
		})
	}
}

func TestRetrieve_MoreTiesThanK(t *testing.T) {
	texts := make([]string, 40)
	for i := range texts {
		texts[i] = "page footer"
	}
	chunks, vectors := buildCorpus(texts...)
	query := testutil.HashEmbedding("page footer")

	for _, b := range backends {
		t.Run(b.name, func(t *testing.T) {
			ctx := context.Background()
			for run := 0; run < 20; run++ {
				idx := b.new()
				require.NoError(t, idx.Build(ctx, chunks, vectors))

				hits, err := idx.Retrieve(ctx, query, 4)
				require.NoError(t, err)
				require.Len(t, hits, 4)

				got := make([]int, len(hits))
				for i, hit := range hits {
					got[i] = hit.Index
				}
				assert.Equal(t, []int{0, 1, 2, 3}, got, "run %d", run)
				require.NoError(t, idx.Close())
			}
		})
	}
}

func TestRetrieve_Errors(t *testing.T) {
	chunks, vectors := buildCorpus("alpha", "beta")

	for _, b := range backends {
		t.Run(b.name, func(t *testing.T) {
			ctx := context.Background()
			idx := b.new()

			_, err := idx.Retrieve(ctx, testutil.HashEmbedding("alpha"), 2)
			assert.True(t, errors.Is(err, types.ErrEmptyIndex))

			err = idx.Build(ctx, chunks, vectors[:1])
			assert.Error(t, err)

			require.NoError(t, idx.Build(ctx, chunks, vectors))
			assert.Error(t, idx.Build(ctx, chunks, vectors), "an index is built once")

			_, err = idx.Retrieve(ctx, []float32{1, 2, 3}, 2)
			assert.Error(t, err, "query dimension must match")

			require.NoError(t, idx.Close())
			assert.Equal(t, 0, idx.Len())
			_, err = idx.Retrieve(ctx, testutil.HashEmbedding("alpha"), 2)
			assert.True(t, errors.Is(err, types.ErrEmptyIndex))
		})
	}
}

func TestBuild_CopiesVectors(t *testing.T) {
	chunks, vectors := buildCorpus("alpha beta", "gamma delta")
	query := testutil.HashEmbedding("alpha beta")

	for _, b := range backends {
		t.Run(b.name, func(t *testing.T) {
			ctx := context.Background()
			idx := b.new()
			defer idx.Close()

			local := [][]float32{append([]float32(nil), vectors[0]...), append([]float32(nil), vectors[1]...)}
			require.NoError(t, idx.Build(ctx, chunks, local))
			for i := range local[0] {
				local[0][i] = 0
			}

			hits, err := idx.Retrieve(ctx, query, 1)
			require.NoError(t, err)
			require.Len(t, hits, 1)
			assert.Equal(t, 0, hits[0].Index)
			assert.InDelta(t, 1.0, hits[0].Score, 1e-4)
		})
	}
}

func TestNewIndex(t *testing.T) {
	ctx := context.Background()

	idx, err := store.NewIndex(ctx, store.VectorStoreConfig{})
	require.NoError(t, err)
	assert.IsType(t, &store.MemoryIndex{}, idx)

	idx, err = store.NewIndex(ctx, store.VectorStoreConfig{Backend: "chromem"})
	require.NoError(t, err)
	assert.IsType(t, &store.ChromemIndex{}, idx)

	_, err = store.NewIndex(ctx, store.VectorStoreConfig{Backend: "faiss"})
	assert.Error(t, err)
}
