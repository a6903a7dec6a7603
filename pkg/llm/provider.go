package llm

import (
	"github.com/xhad/tutor/internal/types"
)

const ProviderExtractive = "extractive"

// NewEmbedder returns the configured embedding backend. The hash provider
// needs no server.
func NewEmbedder(config EmbedderConfig) (types.Embedder, error) {
	if config.Provider == ProviderHash {
		return NewHashEmbedder(config.Dimension), nil
	}
	return NewEmbedderWithConfig(config)
}

// NewGenerator returns the configured generation backend.
func NewGenerator(config ChatConfig) (types.Generator, error) {
	if config.Provider == ProviderExtractive {
		return ExtractiveGenerator{}, nil
	}
	return NewWithConfig(config)
}
