package llm_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tmc/langchaingo/llms"
	"github.com/xhad/tutor/internal/models"
	"github.com/xhad/tutor/pkg/llm"
)

type fakeModel struct {
	reply    string
	err      error
	messages []llms.MessageContent
	options  llms.CallOptions
}

func (f *fakeModel) GenerateContent(ctx context.Context, messages []llms.MessageContent, options ...llms.CallOption) (*llms.ContentResponse, error) {
	f.messages = messages
	for _, o := range options {
		o(&f.options)
	}
	if f.err != nil {
		return nil, f.err
	}
	return &llms.ContentResponse{Choices: []*llms.ContentChoice{{Content: f.reply}}}, nil
}

func (f *fakeModel) Call(ctx context.Context, prompt string, options ...llms.CallOption) (string, error) {
	return llms.GenerateFromSinglePrompt(ctx, f, prompt, options...)
}

func TestNewWithConfig(t *testing.T) {
	config := llm.ChatConfig{
		Model:           "testmodel",
		Temperature:     0.5,
		MaxTokens:       1000,
		ContextTemplate: "Test context template %s %s",
		BaseURL:         "http://localhost:1234",
	}
	engine, err := llm.NewWithConfig(config)
	assert.NoError(t, err)
	assert.NotNil(t, engine)

	config.Temperature = 3
	_, err = llm.NewWithConfig(config)
	assert.ErrorIs(t, err, models.ErrInvalidConfig)
}

func TestChatEngine_Generate(t *testing.T) {
	model := &fakeModel{reply: "  Force equals mass times acceleration [1].  "}
	engine, err := llm.NewWithModel(llm.ChatConfig{Temperature: 0.2, MaxTokens: 300}, model)
	require.NoError(t, err)

	out, err := engine.Generate(context.Background(), models.Prompt{
		System:   "You are a physics tutor.",
		Question: "What is F=ma?",
		Context:  "[1] Newton's second law states F=ma.",
	})
	require.NoError(t, err)
	assert.Equal(t, "Force equals mass times acceleration [1].", out)

	require.Len(t, model.messages, 2)
	assert.Equal(t, llms.ChatMessageTypeSystem, model.messages[0].Role)
	assert.Equal(t, "You are a physics tutor.", model.messages[0].Parts[0].(llms.TextContent).Text)
	human := model.messages[1].Parts[0].(llms.TextContent).Text
	assert.Contains(t, human, "Newton's second law")
	assert.Contains(t, human, "Question: What is F=ma?")
	assert.Equal(t, 300, model.options.MaxTokens)
	assert.Equal(t, 0.2, model.options.Temperature)
}

func TestChatEngine_GenerateWithoutSystem(t *testing.T) {
	model := &fakeModel{reply: "Momentum is mass times velocity."}
	engine, err := llm.NewWithModel(llm.ChatConfig{}, model)
	require.NoError(t, err)

	_, err = engine.Generate(context.Background(), models.Prompt{Question: "What is momentum?"})
	require.NoError(t, err)

	require.Len(t, model.messages, 1)
	assert.Equal(t, llms.ChatMessageTypeHuman, model.messages[0].Role)
	assert.Equal(t, "What is momentum?", model.messages[0].Parts[0].(llms.TextContent).Text)
}

func TestChatEngine_GenerateErrors(t *testing.T) {
	ctx := context.Background()

	down, err := llm.NewWithModel(llm.ChatConfig{}, &fakeModel{err: errors.New("dial tcp: refused")})
	require.NoError(t, err)
	_, err = down.Generate(ctx, models.Prompt{Question: "q"})
	assert.ErrorIs(t, err, models.ErrGenerationUnavailable)

	slow, err := llm.NewWithModel(llm.ChatConfig{}, &fakeModel{err: context.DeadlineExceeded})
	require.NoError(t, err)
	_, err = slow.Generate(ctx, models.Prompt{Question: "q"})
	assert.ErrorIs(t, err, models.ErrTimeout)

	empty, err := llm.NewWithModel(llm.ChatConfig{}, &fakeModel{reply: "   "})
	require.NoError(t, err)
	_, err = empty.Generate(ctx, models.Prompt{Question: "q"})
	assert.ErrorIs(t, err, models.ErrGenerationUnavailable)
}

func TestExtractiveGenerator(t *testing.T) {
	g := llm.ExtractiveGenerator{MaxChars: 10}
	out, err := g.Generate(context.Background(), models.Prompt{Passages: []string{"Newton's   second law states F=ma."}})
	require.NoError(t, err)
	assert.Equal(t, "Based on the course material, here is what I found [1]: Newton's s...", out)

	_, err = g.Generate(context.Background(), models.Prompt{})
	assert.ErrorIs(t, err, models.ErrEmptyInput)
}
