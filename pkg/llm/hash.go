package llm

import (
	"context"
	"fmt"
	"hash/fnv"
	"math"

	"github.com/xhad/tutor/internal/models"
	"github.com/xhad/tutor/pkg/chunker"
)

// HashEmbedder is a deterministic local embedder using feature hashing over
// content words. It needs no model server and suits development and tests.
type HashEmbedder struct {
	dim int
}

func NewHashEmbedder(dim int) *HashEmbedder {
	if dim <= 0 {
		dim = 384
	}
	return &HashEmbedder{dim: dim}
}

func (h *HashEmbedder) Dimension() int { return h.dim }

func (h *HashEmbedder) Name() string { return ProviderHash }

func (h *HashEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if err := checkInput([]string{text}); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, models.Classify(err, models.ErrEmbeddingUnavailable)
	}
	return h.vector(text)
}

func (h *HashEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if err := checkInput(texts); err != nil {
		return nil, err
	}
	out := make([][]float32, len(texts))
	for i, t := range texts {
		if err := ctx.Err(); err != nil {
			return nil, models.Classify(err, models.ErrEmbeddingUnavailable)
		}
		v, err := h.vector(t)
		if err != nil {
			return nil, fmt.Errorf("text %d: %w", i, err)
		}
		out[i] = v
	}
	return out, nil
}

// vector fails for text without letters or digits, which would otherwise
// hash to the zero vector and give undefined cosine scores.
func (h *HashEmbedder) vector(text string) ([]float32, error) {
	tokens := chunker.Tokenize(text)
	content := tokens[:0:0]
	for _, tok := range tokens {
		if !chunker.IsStopword(tok) {
			content = append(content, tok)
		}
	}
	// a text made only of stopwords still gets a direction
	if len(content) == 0 {
		content = tokens
	}
	if len(content) == 0 {
		return nil, fmt.Errorf("%w: text has no words", models.ErrEmptyInput)
	}

	v := make([]float32, h.dim)
	for _, tok := range content {
		f := fnv.New32a()
		f.Write([]byte(tok))
		v[f.Sum32()%uint32(h.dim)]++
	}

	var norm float64
	for _, x := range v {
		norm += float64(x) * float64(x)
	}
	inv := float32(1 / math.Sqrt(norm))
	for i := range v {
		v[i] *= inv
	}
	return v, nil
}
