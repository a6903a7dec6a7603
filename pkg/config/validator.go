package config

import (
	"fmt"
	"net/url"
	"strings"

	"go.uber.org/zap/zapcore"

	"github.com/xhad/tutor/pkg/llm"
	"github.com/xhad/tutor/pkg/store"
	"github.com/xhad/tutor/pkg/synth"
)

type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func (c *Config) Validate() []ValidationError {
	var errors []ValidationError
	add := func(field, msg string) {
		errors = append(errors, ValidationError{Field: field, Message: msg})
	}

	// Embedder
	switch c.Embedder.Provider {
	case llm.ProviderHash, llm.ProviderOllama:
	case llm.ProviderOpenAI:
		if c.Embedder.APIKey == "" {
			add("embedder.api_key", "api_key is required for the openai provider")
		}
	default:
		add("embedder.provider", fmt.Sprintf("unknown provider %q", c.Embedder.Provider))
	}
	if !validURL(c.Embedder.BaseURL) {
		add("embedder.base_url", "invalid base URL")
	}
	if c.Embedder.Dimension < 0 {
		add("embedder.dimension", "dimension cannot be negative")
	}
	if c.Embedder.BatchSize < 1 {
		add("embedder.batch_size", "batch_size must be positive")
	}
	if c.Embedder.CacheSize < 0 {
		add("embedder.cache_size", "cache_size cannot be negative")
	}

	// Generator
	switch c.Generator.Provider {
	case llm.ProviderExtractive, llm.ProviderOllama:
	case llm.ProviderOpenAI:
		if c.Generator.APIKey == "" {
			add("generator.api_key", "api_key is required for the openai provider")
		}
	default:
		add("generator.provider", fmt.Sprintf("unknown provider %q", c.Generator.Provider))
	}
	if !validURL(c.Generator.BaseURL) {
		add("generator.base_url", "invalid base URL")
	}
	if c.Generator.MaxTokens < 1 || c.Generator.MaxTokens > 4096 {
		add("generator.max_tokens", "max_tokens must be between 1 and 4096")
	}
	if c.Generator.Temperature < 0 || c.Generator.Temperature > 2 {
		add("generator.temperature", "temperature must be between 0 and 2")
	}

	// Index
	switch c.Index.Backend {
	case store.BackendMemory:
	case store.BackendPGVector:
		if c.Index.URL == "" {
			add("index.url", "url is required for the pgvector backend")
		}
	case store.BackendQdrant:
		if c.Index.URL == "" || !validURL(c.Index.URL) {
			add("index.url", "a valid url is required for the qdrant backend")
		}
	default:
		add("index.backend", fmt.Sprintf("unknown backend %q", c.Index.Backend))
	}
	if c.Index.Lists < 0 {
		add("index.lists", "lists cannot be negative")
	}
	if c.Index.Probes < 0 {
		add("index.probes", "probes cannot be negative")
	}

	// Chunker
	if c.Chunker.ChunkSize < 1 {
		add("chunker.chunk_size", "chunk_size must be positive")
	}
	if c.Chunker.ChunkOverlap < 0 || c.Chunker.ChunkOverlap >= c.Chunker.ChunkSize {
		add("chunker.chunk_overlap", "chunk_overlap must be non-negative and less than chunk_size")
	}
	if c.Chunker.MinChunkLength < 0 {
		add("chunker.min_chunk_length", "min_chunk_length cannot be negative")
	}

	// Ingest
	if c.Ingest.Concurrency < 1 {
		add("ingest.concurrency", "concurrency must be positive")
	}
	if c.Ingest.DocumentConcurrency < 0 {
		add("ingest.document_concurrency", "document_concurrency cannot be negative")
	}
	if c.Ingest.BatchSize < 1 {
		add("ingest.batch_size", "batch_size must be positive")
	}
	if c.Ingest.EmbedTimeout <= 0 {
		add("ingest.embed_timeout", "embed_timeout must be positive")
	}
	if c.Ingest.RateLimit < 0 {
		add("ingest.rate_limit", "rate_limit cannot be negative")
	}

	// Scraper
	if c.Scraper.MaxDepth < 1 {
		add("scraper.max_depth", "max_depth must be positive")
	}
	if c.Scraper.RateLimit <= 0 {
		add("scraper.rate_limit", "rate_limit must be positive")
	}
	for _, ext := range c.Scraper.AllowedExtensions {
		if !strings.HasPrefix(ext, ".") && ext != "" && ext != "/" {
			add("scraper.allowed_extensions", fmt.Sprintf("invalid extension format: %s", ext))
		}
	}

	// Retrieval
	if c.Retrieval.TopK < 1 {
		add("retrieval.top_k", "top_k must be positive")
	}
	if c.Retrieval.MinRelevance < -1 || c.Retrieval.MinRelevance > 1 {
		add("retrieval.min_relevance", "min_relevance must be between -1 and 1")
	}
	if c.Retrieval.CacheTTL < 0 {
		add("retrieval.cache_ttl", "cache_ttl cannot be negative")
	}

	// Synthesis
	switch synth.FollowUpMode(c.Synthesis.FollowUps) {
	case synth.FollowUpsLLM, synth.FollowUpsHeuristic, synth.FollowUpsOff:
	default:
		add("synthesis.follow_ups", "follow_ups must be one of llm, heuristic, off")
	}
	if c.Synthesis.MaxContextChars < 1 {
		add("synthesis.max_context_chars", "max_context_chars must be positive")
	}
	if c.Synthesis.MaxFollowUps < 0 {
		add("synthesis.max_follow_ups", "max_follow_ups cannot be negative")
	}

	if c.Answer.Timeout <= 0 {
		add("answer.timeout", "timeout must be positive")
	}

	if c.Retry.Attempts < 1 {
		add("retry.attempts", "attempts must be positive")
	}

	if _, err := zapcore.ParseLevel(c.Log.Level); err != nil {
		add("log.level", fmt.Sprintf("unknown level %q", c.Log.Level))
	}
	if c.Log.Format != "json" && c.Log.Format != "console" {
		add("log.format", "format must be json or console")
	}

	return errors
}

// validURL accepts an empty value; defaults are filled in by the backends.
func validURL(s string) bool {
	if s == "" {
		return true
	}
	u, err := url.ParseRequestURI(s)
	return err == nil && u.Scheme != "" && u.Host != ""
}
