package llm_test

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xhad/tutor/internal/models"
	"github.com/xhad/tutor/pkg/llm"
)

// fakeClient returns vectors derived from text length so results are checkable.
type fakeClient struct {
	dim   int
	calls atomic.Int32
	err   error
}

func (f *fakeClient) CreateEmbedding(ctx context.Context, texts []string) ([][]float32, error) {
	f.calls.Add(1)
	if f.err != nil {
		return nil, f.err
	}
	out := make([][]float32, len(texts))
	for i, t := range texts {
		v := make([]float32, f.dim)
		v[0] = float32(len(t))
		out[i] = v
	}
	return out, nil
}

func TestNewEmbedderWithConfig(t *testing.T) {
	emb, err := llm.NewEmbedderWithConfig(llm.EmbedderConfig{
		Model:   "nomic-embed-text:latest",
		BaseURL: "http://localhost:11434",
	})
	require.NoError(t, err)
	assert.Equal(t, 768, emb.Dimension())
	assert.Equal(t, "ollama:nomic-embed-text:latest", emb.Name())

	_, err = llm.NewEmbedderWithConfig(llm.EmbedderConfig{Provider: "carrier-pigeon"})
	assert.ErrorIs(t, err, models.ErrInvalidConfig)
}

func TestEmbedder_BatchMatchesSingle(t *testing.T) {
	client := &fakeClient{dim: 4}
	emb, err := llm.WrapEmbedder(llm.EmbedderConfig{Provider: "fake", Dimension: 4, BatchSize: 1}, client)
	require.NoError(t, err)

	ctx := context.Background()
	batch, err := emb.EmbedBatch(ctx, []string{"force", "acceleration"})
	require.NoError(t, err)

	one, err := emb.Embed(ctx, "force")
	require.NoError(t, err)
	two, err := emb.Embed(ctx, "acceleration")
	require.NoError(t, err)

	assert.Equal(t, [][]float32{one, two}, batch)
}

func TestEmbedder_Errors(t *testing.T) {
	ctx := context.Background()

	t.Run("blank input", func(t *testing.T) {
		emb, err := llm.WrapEmbedder(llm.EmbedderConfig{Dimension: 4}, &fakeClient{dim: 4})
		require.NoError(t, err)
		_, err = emb.Embed(ctx, "   ")
		assert.ErrorIs(t, err, models.ErrEmptyInput)
		_, err = emb.EmbedBatch(ctx, nil)
		assert.ErrorIs(t, err, models.ErrEmptyInput)
	})

	t.Run("backend down", func(t *testing.T) {
		emb, err := llm.WrapEmbedder(llm.EmbedderConfig{Dimension: 4}, &fakeClient{dim: 4, err: errors.New("connection refused")})
		require.NoError(t, err)
		_, err = emb.Embed(ctx, "hello")
		assert.ErrorIs(t, err, models.ErrEmbeddingUnavailable)
	})

	t.Run("deadline", func(t *testing.T) {
		emb, err := llm.WrapEmbedder(llm.EmbedderConfig{Dimension: 4}, &fakeClient{dim: 4, err: context.DeadlineExceeded})
		require.NoError(t, err)
		_, err = emb.Embed(ctx, "hello")
		assert.ErrorIs(t, err, models.ErrTimeout)
	})

	t.Run("wrong dimension", func(t *testing.T) {
		emb, err := llm.WrapEmbedder(llm.EmbedderConfig{Dimension: 8}, &fakeClient{dim: 4})
		require.NoError(t, err)
		_, err = emb.Embed(ctx, "hello")
		assert.ErrorIs(t, err, models.ErrDimensionMismatch)
	})
}

func TestEmbedder_Cache(t *testing.T) {
	client := &fakeClient{dim: 2}
	emb, err := llm.WrapEmbedder(llm.EmbedderConfig{Dimension: 2, CacheSize: 16}, client)
	require.NoError(t, err)

	ctx := context.Background()
	first, err := emb.Embed(ctx, "momentum")
	require.NoError(t, err)
	first[0] = -1 // callers may mutate what they get back

	second, err := emb.Embed(ctx, "momentum")
	require.NoError(t, err)
	assert.Equal(t, float32(8), second[0])
	assert.Equal(t, int32(1), client.calls.Load())

	batch, err := emb.EmbedBatch(ctx, []string{"momentum", "mass", "mass"})
	require.NoError(t, err)
	assert.Equal(t, float32(4), batch[1][0])
	assert.Equal(t, batch[1], batch[2])
	assert.Equal(t, int32(2), client.calls.Load())
}

func TestHashEmbedder(t *testing.T) {
	ctx := context.Background()
	h := llm.NewHashEmbedder(0)
	assert.Equal(t, 384, h.Dimension())

	batch, err := h.EmbedBatch(ctx, []string{"Newton's second law", "F=ma"})
	require.NoError(t, err)
	one, err := h.Embed(ctx, "Newton's second law")
	require.NoError(t, err)
	two, err := h.Embed(ctx, "F=ma")
	require.NoError(t, err)
	assert.InDeltaSlice(t, one, batch[0], 1e-6)
	assert.InDeltaSlice(t, two, batch[1], 1e-6)

	var norm float64
	for _, x := range one {
		norm += float64(x * x)
	}
	assert.InDelta(t, 1.0, norm, 1e-5)

	_, err = h.Embed(ctx, "")
	assert.ErrorIs(t, err, models.ErrEmptyInput)

	stop, err := h.Embed(ctx, "the of and")
	require.NoError(t, err)
	assert.NotEqual(t, make([]float32, 384), stop)

	_, err = h.Embed(ctx, "?!? -- ...")
	assert.ErrorIs(t, err, models.ErrEmptyInput)
	_, err = h.EmbedBatch(ctx, []string{"momentum", "..."})
	assert.ErrorIs(t, err, models.ErrEmptyInput)
}
