package llm

import (
	"context"
	"fmt"
	"strings"

	"github.com/xhad/tutor/internal/models"
)

// ExtractiveGenerator answers with the best passage verbatim. It is the
// offline fallback when no model server is configured.
type ExtractiveGenerator struct {
	MaxChars int
}

func (g ExtractiveGenerator) Generate(ctx context.Context, prompt models.Prompt) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", models.Classify(err, models.ErrGenerationUnavailable)
	}
	if len(prompt.Passages) == 0 {
		return "", fmt.Errorf("%w: no passages to answer from", models.ErrEmptyInput)
	}

	limit := g.MaxChars
	if limit <= 0 {
		limit = 500
	}
	passage := strings.Join(strings.Fields(prompt.Passages[0]), " ")
	if r := []rune(passage); len(r) > limit {
		passage = string(r[:limit]) + "..."
	}

	return fmt.Sprintf("Based on the course material, here is what I found [1]: %s", passage), nil
}
