package synth

import (
	"context"
	"fmt"
	"strings"

	"github.com/grpc-ecosystem/go-grpc-middleware/logging/zap/ctxzap"
	"go.uber.org/zap"

	"github.com/xhad/tutor/internal/models"
)

const followUpSystem = "You suggest follow-up questions a student might ask next. Reply with one question per line and nothing else."

var genericFollowUps = []string{
	"Can you provide more details about this topic?",
	"What are some practical examples of this concept?",
	"How does this relate to other topics in the course?",
}

var topicTemplates = []string{
	"What else does the course say about %s?",
	"Can you give an example of %s?",
	"How does %s relate to other topics in the course?",
}

// generatedFollowUps asks the generator for questions. Failures are logged
// and yield no follow-ups.
func (s *Synthesizer) generatedFollowUps(ctx context.Context, question, answer string, rest []models.ContextEntry) []string {
	blocks := make([]string, 0, len(rest))
	for i, e := range rest {
		blocks = append(blocks, models.FormatEntry(i+1, e))
	}
	prompt := models.Prompt{
		System: followUpSystem,
		Question: fmt.Sprintf("Based on the question '%s' and this answer: '%s', suggest %d related follow-up questions a student might ask.",
			question, answer, s.config.MaxFollowUps),
		Context: strings.Join(blocks, "\n\n"),
	}
	for _, e := range rest {
		prompt.Passages = append(prompt.Passages, e.Text)
	}

	text, err := s.generator.Generate(ctx, prompt)
	if err != nil {
		ctxzap.Warn(ctx, "follow-up generation failed", zap.Error(err))
		return nil
	}
	return parseFollowUps(text, s.config.MaxFollowUps)
}

// parseFollowUps takes one question per non-empty line, dropping list
// numbering and bullets.
func parseFollowUps(text string, limit int) []string {
	var out []string
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		line = strings.TrimLeft(line, "0123456789.)-*•# \t")
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		out = append(out, line)
		if len(out) == limit {
			break
		}
	}
	return out
}

// heuristicFollowUps builds questions from the topics of unused entries
// first, then cited ones, padding with generic questions.
func heuristicFollowUps(rest, cited []models.ContextEntry, limit int) []string {
	seen := make(map[string]bool)
	var out []string
	for _, e := range append(append([]models.ContextEntry(nil), rest...), cited...) {
		if len(out) == limit {
			return out
		}
		if e.Topic == "" || seen[e.Topic] {
			continue
		}
		seen[e.Topic] = true
		out = append(out, fmt.Sprintf(topicTemplates[len(out)%len(topicTemplates)], e.Topic))
	}
	for _, q := range genericFollowUps {
		if len(out) == limit {
			break
		}
		out = append(out, q)
	}
	return out
}
