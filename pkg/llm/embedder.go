package llm

import (
	"context"
	"fmt"
	"strings"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/llms/ollama"
	"github.com/tmc/langchaingo/llms/openai"
	"github.com/xhad/tutor/internal/models"
)

const (
	ProviderOllama = "ollama"
	ProviderOpenAI = "openai"
	ProviderHash   = "hash"
)

// EmbedderConfig represents the configuration for an embedding backend.
type EmbedderConfig struct {
	Provider  string
	Model     string
	BaseURL   string // Ollama server URL or OpenAI-compatible endpoint
	APIKey    string
	Dimension int
	BatchSize int
	CacheSize int
}

// Embedder maps text to vectors through a langchaingo embedding client.
type Embedder struct {
	config  EmbedderConfig
	impl    embeddings.Embedder
	cacheMu sync.Mutex
	cache   *lru.Cache[string, []float32]
}

func NewEmbedderWithConfig(config EmbedderConfig) (*Embedder, error) {
	if config.Provider == "" {
		config.Provider = ProviderOllama
	}

	var (
		client embeddings.EmbedderClient
		err    error
	)
	switch config.Provider {
	case ProviderOllama:
		if config.Model == "" {
			config.Model = "nomic-embed-text:latest" // Default Ollama model
		}
		if config.BaseURL == "" {
			config.BaseURL = "http://localhost:11434" // Default Ollama URL
		}
		if config.Dimension == 0 {
			config.Dimension = 768
		}
		client, err = ollama.New(ollama.WithModel(config.Model), ollama.WithServerURL(config.BaseURL))
	case ProviderOpenAI:
		if config.Model == "" {
			config.Model = "text-embedding-3-small"
		}
		if config.Dimension == 0 {
			config.Dimension = 1536
		}
		opts := []openai.Option{openai.WithEmbeddingModel(config.Model)}
		if config.APIKey != "" {
			opts = append(opts, openai.WithToken(config.APIKey))
		}
		if config.BaseURL != "" {
			opts = append(opts, openai.WithBaseURL(config.BaseURL))
		}
		client, err = openai.New(opts...)
	default:
		return nil, fmt.Errorf("%w: unknown embedding provider %q", models.ErrInvalidConfig, config.Provider)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to initialize embedder: %w", err)
	}

	return WrapEmbedder(config, client)
}

// WrapEmbedder builds an Embedder around an existing embedding client.
func WrapEmbedder(config EmbedderConfig, client embeddings.EmbedderClient) (*Embedder, error) {
	if config.Dimension <= 0 {
		return nil, fmt.Errorf("%w: embedder dimension must be positive", models.ErrInvalidConfig)
	}
	if config.BatchSize <= 0 {
		config.BatchSize = 32
	}

	impl, err := embeddings.NewEmbedder(client,
		embeddings.WithBatchSize(config.BatchSize),
		embeddings.WithStripNewLines(false))
	if err != nil {
		return nil, fmt.Errorf("failed to initialize embedder: %w", err)
	}

	e := &Embedder{config: config, impl: impl}
	if config.CacheSize > 0 {
		if err := e.EnableCache(config.CacheSize); err != nil {
			return nil, err
		}
	}
	return e, nil
}

func (e *Embedder) Dimension() int { return e.config.Dimension }

func (e *Embedder) Name() string { return e.config.Provider + ":" + e.config.Model }

// EnableCache keeps up to size recent vectors keyed by exact text.
func (e *Embedder) EnableCache(size int) error {
	cache, err := lru.New[string, []float32](size)
	if err != nil {
		return fmt.Errorf("init embedding cache: %w", err)
	}
	e.cacheMu.Lock()
	e.cache = cache
	e.cacheMu.Unlock()
	return nil
}

func (e *Embedder) Embed(ctx context.Context, text string) ([]float32, error) {
	vectors, err := e.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

// EmbedBatch embeds texts in backend-sized batches. Single-text calls go
// through the same path so both forms return identical vectors.
func (e *Embedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if err := checkInput(texts); err != nil {
		return nil, err
	}

	results := make([][]float32, len(texts))
	missing := make(map[string][]int)
	var order []string
	for i, text := range texts {
		if v, ok := e.lookup(text); ok {
			results[i] = v
			continue
		}
		if _, seen := missing[text]; !seen {
			order = append(order, text)
		}
		missing[text] = append(missing[text], i)
	}
	if len(order) == 0 {
		return results, nil
	}

	vectors, err := e.impl.EmbedDocuments(ctx, order)
	if err != nil {
		return nil, models.Classify(fmt.Errorf("embed %d texts with %s: %w", len(order), e.Name(), err), models.ErrEmbeddingUnavailable)
	}
	if len(vectors) != len(order) {
		return nil, fmt.Errorf("%w: %s returned %d vectors for %d texts", models.ErrEmbeddingUnavailable, e.Name(), len(vectors), len(order))
	}

	for j, v := range vectors {
		if len(v) != e.config.Dimension {
			return nil, fmt.Errorf("%w: %s returned %d dimensions, expected %d", models.ErrDimensionMismatch, e.Name(), len(v), e.config.Dimension)
		}
		e.store(order[j], v)
		for _, i := range missing[order[j]] {
			results[i] = clone(v)
		}
	}
	return results, nil
}

func (e *Embedder) lookup(text string) ([]float32, bool) {
	e.cacheMu.Lock()
	cache := e.cache
	e.cacheMu.Unlock()
	if cache == nil {
		return nil, false
	}
	v, ok := cache.Get(text)
	if !ok {
		return nil, false
	}
	return clone(v), true
}

func (e *Embedder) store(text string, v []float32) {
	e.cacheMu.Lock()
	cache := e.cache
	e.cacheMu.Unlock()
	if cache != nil {
		cache.Add(text, clone(v))
	}
}

func checkInput(texts []string) error {
	if len(texts) == 0 {
		return fmt.Errorf("%w: no texts to embed", models.ErrEmptyInput)
	}
	for i, t := range texts {
		if strings.TrimSpace(t) == "" {
			return fmt.Errorf("%w: text %d is blank", models.ErrEmptyInput, i)
		}
	}
	return nil
}

func clone(v []float32) []float32 {
	out := make([]float32, len(v))
	copy(out, v)
	return out
}
