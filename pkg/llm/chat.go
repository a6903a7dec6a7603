package llm

import (
	"context"
	"fmt"
	"strings"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/ollama"
	"github.com/tmc/langchaingo/llms/openai"
	"github.com/xhad/tutor/internal/models"
)

// ChatConfig represents the configuration for a chat engine.
type ChatConfig struct {
	Provider        string
	Model           string
	Temperature     float64
	MaxTokens       int
	ContextTemplate string
	BaseURL         string // Ollama server URL or OpenAI-compatible endpoint
	APIKey          string
}

// ChatEngine is an engine that uses an LLM to generate grounded answers.
type ChatEngine struct {
	config ChatConfig
	llm    llms.Model
}

// NewWithConfig creates a new ChatEngine with the given configuration.
func NewWithConfig(config ChatConfig) (*ChatEngine, error) {
	if config.Provider == "" {
		config.Provider = ProviderOllama
	}

	var (
		model llms.Model
		err   error
	)
	switch config.Provider {
	case ProviderOllama:
		if config.Model == "" {
			config.Model = "mistral" // Default Ollama model
		}
		if config.BaseURL == "" {
			config.BaseURL = "http://localhost:11434" // Default Ollama URL
		}
		model, err = ollama.New(ollama.WithModel(config.Model), ollama.WithServerURL(config.BaseURL))
	case ProviderOpenAI:
		if config.Model == "" {
			config.Model = "gpt-4o-mini"
		}
		opts := []openai.Option{openai.WithModel(config.Model)}
		if config.APIKey != "" {
			opts = append(opts, openai.WithToken(config.APIKey))
		}
		if config.BaseURL != "" {
			opts = append(opts, openai.WithBaseURL(config.BaseURL))
		}
		model, err = openai.New(opts...)
	default:
		return nil, fmt.Errorf("%w: unknown generation provider %q", models.ErrInvalidConfig, config.Provider)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to initialize LLM: %w", err)
	}

	return NewWithModel(config, model)
}

// NewWithModel creates a ChatEngine around an existing langchaingo model.
func NewWithModel(config ChatConfig, model llms.Model) (*ChatEngine, error) {
	if config.Temperature < 0 || config.Temperature > 2 {
		return nil, fmt.Errorf("%w: temperature must be between 0 and 2", models.ErrInvalidConfig)
	}
	if config.MaxTokens < 0 {
		return nil, fmt.Errorf("%w: max tokens cannot be negative", models.ErrInvalidConfig)
	} else if config.MaxTokens == 0 {
		config.MaxTokens = 2000
	}
	if config.ContextTemplate == "" {
		config.ContextTemplate = "Course excerpts:\n%s\n\nQuestion: %s"
	}

	return &ChatEngine{
		config: config,
		llm:    model,
	}, nil
}

// Generate makes one model call for the prompt. The system message is the
// caller's; none is sent when prompt.System is empty.
func (ce *ChatEngine) Generate(ctx context.Context, prompt models.Prompt) (string, error) {
	human := prompt.Question
	if prompt.Context != "" {
		human = fmt.Sprintf(ce.config.ContextTemplate, prompt.Context, prompt.Question)
	}

	var content []llms.MessageContent
	if prompt.System != "" {
		content = append(content, llms.TextParts(llms.ChatMessageTypeSystem, prompt.System))
	}
	content = append(content, llms.TextParts(llms.ChatMessageTypeHuman, human))

	response, err := ce.llm.GenerateContent(ctx, content,
		llms.WithTemperature(ce.config.Temperature),
		llms.WithMaxTokens(ce.config.MaxTokens))
	if err != nil {
		return "", models.Classify(fmt.Errorf("chat error: %w", err), models.ErrGenerationUnavailable)
	}

	if response == nil || len(response.Choices) == 0 || response.Choices[0] == nil {
		return "", fmt.Errorf("%w: no response from LLM", models.ErrGenerationUnavailable)
	}
	text := strings.TrimSpace(response.Choices[0].Content)
	if text == "" {
		return "", fmt.Errorf("%w: empty completion", models.ErrGenerationUnavailable)
	}

	return text, nil
}
