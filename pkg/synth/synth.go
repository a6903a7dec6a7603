package synth

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/grpc-ecosystem/go-grpc-middleware/logging/zap/ctxzap"
	"go.uber.org/zap"

	"github.com/xhad/tutor/internal/models"
	"github.com/xhad/tutor/internal/types"
)

type FollowUpMode string

const (
	FollowUpsLLM       FollowUpMode = "llm"
	FollowUpsHeuristic FollowUpMode = "heuristic"
	FollowUpsOff       FollowUpMode = "off"
)

const (
	DefaultMaxContextChars = 6000
	DefaultMaxFollowUps    = 3
	DefaultNoAnswerText    = "I couldn't find information about this in the course material. Try rephrasing the question or ask your instructor."
	DefaultSystemTemplate  = "You are an AI tutor helping students understand course material. Answer only from the numbered course excerpts and cite them as [n]. If the excerpts do not contain enough information, say so honestly."

	previewLength = 150
)

// Config controls prompt assembly and post-processing.
type Config struct {
	// MaxContextChars caps the rendered context. Entries past the cap are not used.
	MaxContextChars int
	FollowUps       FollowUpMode
	MaxFollowUps    int
	// NoAnswerText is returned without a model call when nothing was retrieved.
	NoAnswerText   string
	SystemTemplate string
}

// Synthesizer turns a retrieved context into a grounded answer.
type Synthesizer struct {
	config    Config
	generator types.Generator
}

func New(config Config, gen types.Generator) (*Synthesizer, error) {
	if gen == nil {
		return nil, fmt.Errorf("%w: synthesizer needs a generator", models.ErrInvalidConfig)
	}
	if config.MaxContextChars < 0 || config.MaxFollowUps < 0 {
		return nil, fmt.Errorf("%w: synthesis limits cannot be negative", models.ErrInvalidConfig)
	}
	if config.MaxContextChars == 0 {
		config.MaxContextChars = DefaultMaxContextChars
	}
	if config.MaxFollowUps == 0 {
		config.MaxFollowUps = DefaultMaxFollowUps
	}
	switch config.FollowUps {
	case "":
		config.FollowUps = FollowUpsHeuristic
	case FollowUpsLLM, FollowUpsHeuristic, FollowUpsOff:
	default:
		return nil, fmt.Errorf("%w: unknown follow-up mode %q", models.ErrInvalidConfig, config.FollowUps)
	}
	if config.NoAnswerText == "" {
		config.NoAnswerText = DefaultNoAnswerText
	}
	if config.SystemTemplate == "" {
		config.SystemTemplate = DefaultSystemTemplate
	}
	return &Synthesizer{config: config, generator: gen}, nil
}

func (s *Synthesizer) Config() Config { return s.config }

// Synthesize makes one generation call for the question over rc. An empty
// context yields NoAnswerText with confidence 0 and no model call. When
// generation fails the returned *models.GenerationError holds the sources.
func (s *Synthesizer) Synthesize(ctx context.Context, question string, rc models.RetrievedContext) (models.Answer, error) {
	if strings.TrimSpace(question) == "" {
		return models.Answer{}, fmt.Errorf("%w: question is blank", models.ErrEmptyInput)
	}
	if rc.Empty() {
		return models.Answer{Text: s.config.NoAnswerText, Sources: []models.Source{}}, nil
	}

	used, prompt := s.prompt(question, rc)

	text, err := s.generator.Generate(ctx, prompt)
	if err != nil {
		err = models.Classify(err, models.ErrGenerationUnavailable)
		ctxzap.Warn(ctx, "answer generation failed", zap.Int("sources", len(used)), zap.Error(err))
		return models.Answer{}, &models.GenerationError{Sources: sources(used, nil), Err: err}
	}
	text = strings.TrimSpace(text)

	cited := citations(text, len(used))
	answer := models.Answer{
		Text:       text,
		Sources:    sources(used, cited),
		Confidence: Confidence(rc.TopScore(), len(rc.Entries), rc.K, text),
	}

	switch s.config.FollowUps {
	case FollowUpsLLM:
		answer.FollowUps = s.generatedFollowUps(ctx, question, text, unused(rc.Entries, used, cited))
	case FollowUpsHeuristic:
		answer.FollowUps = heuristicFollowUps(unused(rc.Entries, used, cited), citedEntries(used, cited), s.config.MaxFollowUps)
	}
	return answer, nil
}

// prompt renders entries in score order until MaxContextChars is reached.
// The first entry is always used, cut to the cap if needed.
func (s *Synthesizer) prompt(question string, rc models.RetrievedContext) ([]models.ContextEntry, models.Prompt) {
	var (
		used     []models.ContextEntry
		blocks   []string
		passages []string
		size     int
	)
	for i, e := range rc.Entries {
		block := models.FormatEntry(i+1, e)
		n := len([]rune(block))
		if i > 0 {
			n += 2
		}
		if size+n > s.config.MaxContextChars {
			if i > 0 {
				break
			}
			block = string([]rune(block)[:s.config.MaxContextChars])
			n = s.config.MaxContextChars
		}
		size += n
		used = append(used, e)
		blocks = append(blocks, block)
		passages = append(passages, e.Text)
	}

	return used, models.Prompt{
		System:   s.config.SystemTemplate,
		Question: question,
		Context:  strings.Join(blocks, "\n\n"),
		Passages: passages,
	}
}

var citationRe = regexp.MustCompile(`\[(\d+)\]`)

// citations returns the 1-based entry numbers cited in text, ascending.
func citations(text string, n int) []int {
	seen := make(map[int]bool)
	var out []int
	for _, m := range citationRe.FindAllStringSubmatch(text, -1) {
		i, err := strconv.Atoi(m[1])
		if err != nil || i < 1 || i > n || seen[i] {
			continue
		}
		seen[i] = true
		out = append(out, i)
	}
	sort.Ints(out)
	return out
}

// sources lists the cited entries, or every used entry when none is cited.
func sources(used []models.ContextEntry, cited []int) []models.Source {
	entries := citedEntries(used, cited)
	if len(entries) == 0 {
		entries = used
	}
	out := make([]models.Source, 0, len(entries))
	for _, e := range entries {
		out = append(out, models.Source{
			ChunkID:   e.ChunkID,
			SourceRef: e.SourceRef,
			Score:     e.Score,
			Topic:     e.Topic,
			Preview:   preview(e.Text),
			Time:      e.Time,
		})
	}
	return out
}

func citedEntries(used []models.ContextEntry, cited []int) []models.ContextEntry {
	out := make([]models.ContextEntry, 0, len(cited))
	for _, i := range cited {
		out = append(out, used[i-1])
	}
	return out
}

// unused returns retrieved entries that were left out of the prompt or not
// cited by the answer. With no citations every prompt entry counts as used.
func unused(all, used []models.ContextEntry, cited []int) []models.ContextEntry {
	taken := make(map[string]bool)
	if len(cited) == 0 {
		for _, e := range used {
			taken[e.ChunkID] = true
		}
	}
	for _, i := range cited {
		taken[used[i-1].ChunkID] = true
	}
	var out []models.ContextEntry
	for _, e := range all {
		if !taken[e.ChunkID] {
			out = append(out, e)
		}
	}
	return out
}

func preview(text string) string {
	text = strings.Join(strings.Fields(text), " ")
	r := []rune(text)
	if len(r) <= previewLength {
		return text
	}
	return string(r[:previewLength-3]) + "..."
}
