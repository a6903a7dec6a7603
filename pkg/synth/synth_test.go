package synth

import (
	"context"
	"errors"
	"math"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xhad/tutor/internal/models"
)

type fakeGenerator struct {
	mu       sync.Mutex
	answer   string
	followUp string
	err      error
	prompts  []models.Prompt
}

func (f *fakeGenerator) Generate(ctx context.Context, p models.Prompt) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.prompts = append(f.prompts, p)
	if p.System == followUpSystem {
		if f.followUp == "" {
			return "", models.ErrGenerationUnavailable
		}
		return f.followUp, nil
	}
	return f.answer, f.err
}

func context3() models.RetrievedContext {
	return models.RetrievedContext{
		CourseID: "physics",
		Question: "What is F=ma?",
		K:        3,
		Entries: []models.ContextEntry{
			{ChunkID: "c1", CourseID: "physics", Score: 0.8, Text: "Newton's second law states F=ma.", SourceRef: "newton.mp4", Topic: "force",
				Time: &models.TimeRange{Start: 12, End: 40}},
			{ChunkID: "c2", CourseID: "physics", Score: 0.5, Text: "Momentum is mass times velocity.", SourceRef: "momentum.mp4", Topic: "momentum"},
			{ChunkID: "c3", CourseID: "physics", Score: 0.3, Text: "Friction opposes motion.", SourceRef: "friction.mp4", Topic: "friction"},
		},
	}
}

func TestSynthesize_CitedSources(t *testing.T) {
	gen := &fakeGenerator{answer: "Force equals mass times acceleration [1]. Compare momentum [2]."}
	s, err := New(Config{}, gen)
	require.NoError(t, err)

	a, err := s.Synthesize(context.Background(), "What is F=ma?", context3())
	require.NoError(t, err)

	require.Len(t, gen.prompts, 1)
	p := gen.prompts[0]
	assert.Equal(t, DefaultSystemTemplate, p.System)
	assert.Equal(t, "What is F=ma?", p.Question)
	assert.Contains(t, p.Context, "[1] (source: newton.mp4, topic: force, 00:12-00:40)")
	assert.Contains(t, p.Context, "[3] (source: friction.mp4, topic: friction)")
	assert.Len(t, p.Passages, 3)

	require.Len(t, a.Sources, 2)
	assert.Equal(t, "c1", a.Sources[0].ChunkID)
	assert.Equal(t, "c2", a.Sources[1].ChunkID)
	assert.Equal(t, &models.TimeRange{Start: 12, End: 40}, a.Sources[0].Time)
	assert.InDelta(t, 0.8, a.Confidence, 1e-9)
	assert.Equal(t, []string{
		"What else does the course say about friction?",
		"Can you give an example of force?",
		"How does momentum relate to other topics in the course?",
	}, a.FollowUps)
}

func TestSynthesize_NoCitationsUsesAllEntries(t *testing.T) {
	gen := &fakeGenerator{answer: "Force equals mass times acceleration."}
	s, err := New(Config{FollowUps: FollowUpsOff}, gen)
	require.NoError(t, err)

	a, err := s.Synthesize(context.Background(), "What is F=ma?", context3())
	require.NoError(t, err)
	assert.Len(t, a.Sources, 3)
	assert.Empty(t, a.FollowUps)
}

func TestSynthesize_EmptyContext(t *testing.T) {
	gen := &fakeGenerator{answer: "made up"}
	s, err := New(Config{}, gen)
	require.NoError(t, err)

	a, err := s.Synthesize(context.Background(), "What is F=ma?", models.RetrievedContext{CourseID: "empty", K: 3})
	require.NoError(t, err)
	assert.Equal(t, DefaultNoAnswerText, a.Text)
	assert.Zero(t, a.Confidence)
	assert.Empty(t, a.Sources)
	assert.Empty(t, gen.prompts, "no model call without context")
}

func TestSynthesize_GenerationFailureKeepsSources(t *testing.T) {
	gen := &fakeGenerator{err: errors.New("connection refused")}
	s, err := New(Config{}, gen)
	require.NoError(t, err)

	_, err = s.Synthesize(context.Background(), "What is F=ma?", context3())
	require.Error(t, err)
	assert.ErrorIs(t, err, models.ErrGenerationUnavailable)

	var genErr *models.GenerationError
	require.ErrorAs(t, err, &genErr)
	assert.Len(t, genErr.Sources, 3)
}

func TestSynthesize_ContextCap(t *testing.T) {
	gen := &fakeGenerator{answer: "See the first excerpt for details."}
	s, err := New(Config{MaxContextChars: 80, FollowUps: FollowUpsOff}, gen)
	require.NoError(t, err)

	a, err := s.Synthesize(context.Background(), "What is F=ma?", context3())
	require.NoError(t, err)
	p := gen.prompts[0]
	assert.LessOrEqual(t, len([]rune(p.Context)), 80)
	assert.Len(t, p.Passages, 1)
	require.Len(t, a.Sources, 1)
	assert.Equal(t, "c1", a.Sources[0].ChunkID)
}

func TestSynthesize_LLMFollowUps(t *testing.T) {
	gen := &fakeGenerator{
		answer:   "Force equals mass times acceleration [1].",
		followUp: "1. What is inertia?\n2) How is force measured?\n\n- What is momentum?\n4. Extra question?",
	}
	s, err := New(Config{FollowUps: FollowUpsLLM}, gen)
	require.NoError(t, err)

	a, err := s.Synthesize(context.Background(), "What is F=ma?", context3())
	require.NoError(t, err)
	assert.Equal(t, []string{"What is inertia?", "How is force measured?", "What is momentum?"}, a.FollowUps)

	require.Len(t, gen.prompts, 2)
	assert.Contains(t, gen.prompts[1].Question, "Force equals mass times acceleration [1].")
	assert.Contains(t, gen.prompts[1].Context, "momentum.mp4")
	assert.NotContains(t, gen.prompts[1].Context, "newton.mp4")
}

func TestSynthesize_LLMFollowUpFailureIgnored(t *testing.T) {
	gen := &fakeGenerator{answer: "Force equals mass times acceleration [1]."}
	s, err := New(Config{FollowUps: FollowUpsLLM}, gen)
	require.NoError(t, err)

	a, err := s.Synthesize(context.Background(), "What is F=ma?", context3())
	require.NoError(t, err)
	assert.Empty(t, a.FollowUps)
	assert.NotEmpty(t, a.Text)
}

func TestNew_InvalidConfig(t *testing.T) {
	_, err := New(Config{}, nil)
	assert.ErrorIs(t, err, models.ErrInvalidConfig)
	_, err = New(Config{FollowUps: "sometimes"}, &fakeGenerator{})
	assert.ErrorIs(t, err, models.ErrInvalidConfig)
	_, err = New(Config{MaxContextChars: -1}, &fakeGenerator{})
	assert.ErrorIs(t, err, models.ErrInvalidConfig)
}

func TestConfidence(t *testing.T) {
	const long = "Force equals mass times acceleration."

	assert.Zero(t, Confidence(0.9, 0, 3, long))
	assert.InDelta(t, 0.9, Confidence(0.9, 3, 3, long), 1e-9)
	assert.InDelta(t, 0.9*(0.6+0.4/3), Confidence(0.9, 1, 3, long), 1e-9)
	assert.InDelta(t, 0.9*0.8, Confidence(0.9, 3, 3, "The excerpts do not contain the answer."), 1e-9)
	assert.InDelta(t, 0.9*0.9, Confidence(0.9, 3, 3, "F = ma."), 1e-9)
	assert.InDelta(t, 1.0, Confidence(1.7, 5, 3, long), 1e-9)
	assert.Zero(t, Confidence(-0.2, 3, 3, long))
	assert.Zero(t, Confidence(math.NaN(), 1, 3, long))
	assert.InDelta(t, 1.0, Confidence(math.Inf(1), 3, 3, long), 1e-9)

	// strictly increasing in the top score
	prev := -1.0
	for top := 0.0; top <= 1.0; top += 0.05 {
		c := Confidence(top, 2, 3, long)
		assert.Greater(t, c, prev)
		prev = c
	}
	assert.Equal(t, Confidence(0.42, 2, 3, long), Confidence(0.42, 2, 3, long))
}

func TestCitations(t *testing.T) {
	assert.Equal(t, []int{1, 3}, citations("see [3] and [1], again [3], not [7] or [0]", 3))
	assert.Empty(t, citations("no citations here", 3))
}

func TestPreview(t *testing.T) {
	assert.Equal(t, "short text", preview("short \n text"))
	p := preview(strings.Repeat("word ", 100))
	assert.Len(t, []rune(p), previewLength)
	assert.True(t, strings.HasSuffix(p, "..."))
}

func TestParseFollowUps(t *testing.T) {
	assert.Equal(t, []string{"First?", "Second?"}, parseFollowUps("* First?\n\n• Second?\n", 3))
	assert.Equal(t, []string{"One?"}, parseFollowUps("1. One?\n2. Two?", 1))
}

func TestHeuristicFollowUps(t *testing.T) {
	got := heuristicFollowUps(nil, []models.ContextEntry{{ChunkID: "a", Topic: "force"}}, 3)
	assert.Equal(t, []string{
		"What else does the course say about force?",
		genericFollowUps[0],
		genericFollowUps[1],
	}, got)
}
