package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"

	"github.com/xhad/tutor/pkg/chunker"
	"github.com/xhad/tutor/pkg/ingest"
	"github.com/xhad/tutor/pkg/llm"
	"github.com/xhad/tutor/pkg/retrieval"
	"github.com/xhad/tutor/pkg/retry"
	"github.com/xhad/tutor/pkg/source"
	"github.com/xhad/tutor/pkg/store"
	"github.com/xhad/tutor/pkg/synth"
	"github.com/xhad/tutor/pkg/tutor"
)

// EnvPrefix namespaces environment overrides, e.g. TUTOR_EMBEDDER_MODEL.
const EnvPrefix = "TUTOR_"

type Config struct {
	Embedder struct {
		Provider  string `yaml:"provider" env:"PROVIDER"`
		Model     string `yaml:"model" env:"MODEL"`
		BaseURL   string `yaml:"base_url" env:"BASE_URL"`
		APIKey    string `yaml:"api_key" env:"API_KEY"`
		Dimension int    `yaml:"dimension" env:"DIMENSION"`
		BatchSize int    `yaml:"batch_size" env:"BATCH_SIZE"`
		CacheSize int    `yaml:"cache_size" env:"CACHE_SIZE"`
	} `yaml:"embedder" envPrefix:"EMBEDDER_"`

	Generator struct {
		Provider    string  `yaml:"provider" env:"PROVIDER"`
		Model       string  `yaml:"model" env:"MODEL"`
		BaseURL     string  `yaml:"base_url" env:"BASE_URL"`
		APIKey      string  `yaml:"api_key" env:"API_KEY"`
		MaxTokens   int     `yaml:"max_tokens" env:"MAX_TOKENS"`
		Temperature float64 `yaml:"temperature" env:"TEMPERATURE"`
	} `yaml:"generator" envPrefix:"GENERATOR_"`

	Index struct {
		Backend    string        `yaml:"backend" env:"BACKEND"`
		URL        string        `yaml:"url" env:"URL"`
		APIKey     string        `yaml:"api_key" env:"API_KEY"`
		TableName  string        `yaml:"table_name" env:"TABLE_NAME"`
		Collection string        `yaml:"collection" env:"COLLECTION"`
		Lists      int           `yaml:"lists" env:"LISTS"`
		Probes     int           `yaml:"probes" env:"PROBES"`
		Timeout    time.Duration `yaml:"timeout" env:"TIMEOUT"`
	} `yaml:"index" envPrefix:"INDEX_"`

	Chunker struct {
		ChunkSize      int      `yaml:"chunk_size" env:"CHUNK_SIZE"`
		ChunkOverlap   int      `yaml:"chunk_overlap" env:"CHUNK_OVERLAP"`
		MinChunkLength int      `yaml:"min_chunk_length" env:"MIN_CHUNK_LENGTH"`
		Stopwords      []string `yaml:"stopwords" env:"STOPWORDS"`
	} `yaml:"chunker" envPrefix:"CHUNKER_"`

	Ingest struct {
		Concurrency         int           `yaml:"concurrency" env:"CONCURRENCY"`
		DocumentConcurrency int           `yaml:"document_concurrency" env:"DOCUMENT_CONCURRENCY"`
		BatchSize           int           `yaml:"batch_size" env:"BATCH_SIZE"`
		EmbedTimeout        time.Duration `yaml:"embed_timeout" env:"EMBED_TIMEOUT"`
		RateLimit           float64       `yaml:"rate_limit" env:"RATE_LIMIT"`
	} `yaml:"ingest" envPrefix:"INGEST_"`

	Scraper struct {
		MaxDepth          int      `yaml:"max_depth" env:"MAX_DEPTH"`
		RateLimit         float64  `yaml:"rate_limit" env:"RATE_LIMIT"`
		IgnorePatterns    []string `yaml:"ignore_patterns" env:"IGNORE_PATTERNS"`
		AllowedExtensions []string `yaml:"allowed_extensions" env:"ALLOWED_EXTENSIONS"`
		Selectors         []string `yaml:"selectors" env:"SELECTORS"`
	} `yaml:"scraper" envPrefix:"SCRAPER_"`

	Retrieval struct {
		TopK         int           `yaml:"top_k" env:"TOP_K"`
		MinRelevance float64       `yaml:"min_relevance" env:"MIN_RELEVANCE"`
		CacheTTL     time.Duration `yaml:"cache_ttl" env:"CACHE_TTL"`
	} `yaml:"retrieval" envPrefix:"RETRIEVAL_"`

	Synthesis struct {
		MaxContextChars int    `yaml:"max_context_chars" env:"MAX_CONTEXT_CHARS"`
		FollowUps       string `yaml:"follow_ups" env:"FOLLOW_UPS"`
		MaxFollowUps    int    `yaml:"max_follow_ups" env:"MAX_FOLLOW_UPS"`
		NoAnswerText    string `yaml:"no_answer_text" env:"NO_ANSWER_TEXT"`
	} `yaml:"synthesis" envPrefix:"SYNTHESIS_"`

	Answer struct {
		Timeout time.Duration `yaml:"timeout" env:"TIMEOUT"`
	} `yaml:"answer" envPrefix:"ANSWER_"`

	Retry retry.RetryConfig `yaml:"retry" envPrefix:"RETRY_"`

	Log struct {
		Level  string `yaml:"level" env:"LEVEL"`
		Format string `yaml:"format" env:"FORMAT"`
	} `yaml:"log" envPrefix:"LOG_"`
}

// LoadConfig reads the YAML file at path, or the first one found in the
// default locations, then applies environment overrides and defaults.
func LoadConfig(path string) (*Config, error) {
	// If no path provided, try default locations
	if path == "" {
		locations := []string{
			"config.yaml",
			"config.yml",
			filepath.Join(os.Getenv("HOME"), ".config/tutor/config.yaml"),
			"/etc/tutor/config.yaml",
		}

		for _, loc := range locations {
			if _, err := os.Stat(loc); err == nil {
				path = loc
				break
			}
		}
	}

	config := defaultConfig()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &config); err != nil {
			return nil, fmt.Errorf("error parsing config file: %w", err)
		}
	}

	mergeWithEnv(&config)
	if err := env.ParseWithOptions(&config, env.Options{Prefix: EnvPrefix}); err != nil {
		return nil, fmt.Errorf("error parsing environment: %w", err)
	}

	applyDefaults(&config)

	return &config, nil
}

// defaultConfig presets the settings for which zero is a meaningful value,
// so the file and environment can still set them to zero.
func defaultConfig() Config {
	var config Config
	config.Generator.Temperature = 0.7
	config.Chunker.ChunkOverlap = 200
	config.Retrieval.MinRelevance = 0.1
	return config
}

func applyDefaults(config *Config) {
	if config.Embedder.Provider == "" {
		config.Embedder.Provider = llm.ProviderHash
	}
	if config.Embedder.BatchSize == 0 {
		config.Embedder.BatchSize = 32
	}

	if config.Generator.Provider == "" {
		config.Generator.Provider = llm.ProviderExtractive
	}
	if config.Generator.MaxTokens == 0 {
		config.Generator.MaxTokens = 2000
	}

	if config.Index.Backend == "" {
		config.Index.Backend = store.BackendMemory
		if config.Index.URL != "" {
			config.Index.Backend = store.BackendPGVector
		}
	}
	if config.Index.TableName == "" {
		config.Index.TableName = "course_chunks"
	}
	if config.Index.Collection == "" {
		config.Index.Collection = "course_chunks"
	}

	if config.Chunker.ChunkSize == 0 {
		config.Chunker.ChunkSize = 1000
	}

	if config.Ingest.Concurrency == 0 {
		config.Ingest.Concurrency = 4
	}
	if config.Ingest.BatchSize == 0 {
		config.Ingest.BatchSize = 16
	}
	if config.Ingest.EmbedTimeout == 0 {
		config.Ingest.EmbedTimeout = 30 * time.Second
	}

	if config.Scraper.MaxDepth == 0 {
		config.Scraper.MaxDepth = 3
	}
	if config.Scraper.RateLimit == 0 {
		config.Scraper.RateLimit = 2.0
	}
	if len(config.Scraper.AllowedExtensions) == 0 {
		config.Scraper.AllowedExtensions = []string{".html", ".htm", "/", ""}
	}

	if config.Retrieval.TopK == 0 {
		config.Retrieval.TopK = 3
	}
	if config.Retrieval.CacheTTL == 0 {
		config.Retrieval.CacheTTL = 5 * time.Minute
	}

	if config.Synthesis.MaxContextChars == 0 {
		config.Synthesis.MaxContextChars = synth.DefaultMaxContextChars
	}
	if config.Synthesis.FollowUps == "" {
		config.Synthesis.FollowUps = string(synth.FollowUpsHeuristic)
	}
	if config.Synthesis.MaxFollowUps == 0 {
		config.Synthesis.MaxFollowUps = synth.DefaultMaxFollowUps
	}

	if config.Answer.Timeout == 0 {
		config.Answer.Timeout = 10 * time.Second
	}

	defaults := retry.DefaultRetryConfig()
	if config.Retry.Attempts == 0 {
		config.Retry.Attempts = defaults.Attempts
	}
	if config.Retry.Delay == 0 {
		config.Retry.Delay = defaults.Delay
	}
	if config.Retry.MaxDelay == 0 {
		config.Retry.MaxDelay = defaults.MaxDelay
	}

	if config.Log.Level == "" {
		config.Log.Level = "info"
	}
	if config.Log.Format == "" {
		config.Log.Format = "console"
	}
}

// mergeWithEnv honours the unprefixed variables shared with other tools.
func mergeWithEnv(config *Config) {
	if baseURL := os.Getenv("OLLAMA_BASE_URL"); baseURL != "" {
		config.Embedder.BaseURL = baseURL
		config.Generator.BaseURL = baseURL
	}
	if dbURL := os.Getenv("DATABASE_URL"); dbURL != "" {
		config.Index.URL = dbURL
	}
	if key := os.Getenv("OPENAI_API_KEY"); key != "" {
		if config.Embedder.APIKey == "" {
			config.Embedder.APIKey = key
		}
		if config.Generator.APIKey == "" {
			config.Generator.APIKey = key
		}
	}
}

func (c *Config) EmbedderConfig() llm.EmbedderConfig {
	return llm.EmbedderConfig{
		Provider:  c.Embedder.Provider,
		Model:     c.Embedder.Model,
		BaseURL:   c.Embedder.BaseURL,
		APIKey:    c.Embedder.APIKey,
		Dimension: c.Embedder.Dimension,
		BatchSize: c.Embedder.BatchSize,
		CacheSize: c.Embedder.CacheSize,
	}
}

func (c *Config) ChatConfig() llm.ChatConfig {
	return llm.ChatConfig{
		Provider:    c.Generator.Provider,
		Model:       c.Generator.Model,
		BaseURL:     c.Generator.BaseURL,
		APIKey:      c.Generator.APIKey,
		MaxTokens:   c.Generator.MaxTokens,
		Temperature: c.Generator.Temperature,
	}
}

// StoreConfig configures the index for vectors of the given dimension.
func (c *Config) StoreConfig(dim int) store.Config {
	return store.Config{
		Backend:   c.Index.Backend,
		Dimension: dim,
		PGVector: store.PGVectorConfig{
			ConnString: c.Index.URL,
			TableName:  c.Index.TableName,
			Lists:      c.Index.Lists,
			Probes:     c.Index.Probes,
		},
		Qdrant: store.QdrantConfig{
			URL:        c.Index.URL,
			APIKey:     c.Index.APIKey,
			Collection: c.Index.Collection,
			Timeout:    c.Index.Timeout,
		},
	}
}

func (c *Config) ChunkerConfig() chunker.Config {
	return chunker.Config{
		ChunkSize:       c.Chunker.ChunkSize,
		ChunkOverlap:    c.Chunker.ChunkOverlap,
		MinChunkLength:  c.Chunker.MinChunkLength,
		CustomStopwords: c.Chunker.Stopwords,
	}
}

func (c *Config) IngestConfig() ingest.Config {
	return ingest.Config{
		Concurrency:         c.Ingest.Concurrency,
		DocumentConcurrency: c.Ingest.DocumentConcurrency,
		BatchSize:           c.Ingest.BatchSize,
		EmbedTimeout:        c.Ingest.EmbedTimeout,
		RateLimit:           c.Ingest.RateLimit,
	}
}

func (c *Config) ScraperConfig(baseURL, lang string) source.ScraperConfig {
	return source.ScraperConfig{
		BaseURL:           baseURL,
		MaxDepth:          c.Scraper.MaxDepth,
		RateLimit:         c.Scraper.RateLimit,
		IgnorePatterns:    c.Scraper.IgnorePatterns,
		AllowedExtensions: c.Scraper.AllowedExtensions,
		Selectors:         c.Scraper.Selectors,
		Language:          lang,
	}
}

func (c *Config) RetrievalConfig() retrieval.Config {
	return retrieval.Config{
		TopK:         c.Retrieval.TopK,
		MinRelevance: c.Retrieval.MinRelevance,
		CacheTTL:     c.Retrieval.CacheTTL,
	}
}

func (c *Config) SynthesisConfig() synth.Config {
	return synth.Config{
		MaxContextChars: c.Synthesis.MaxContextChars,
		FollowUps:       synth.FollowUpMode(c.Synthesis.FollowUps),
		MaxFollowUps:    c.Synthesis.MaxFollowUps,
		NoAnswerText:    c.Synthesis.NoAnswerText,
	}
}

func (c *Config) TutorConfig() tutor.Config {
	return tutor.Config{
		TopK:          c.Retrieval.TopK,
		AnswerTimeout: c.Answer.Timeout,
	}
}
