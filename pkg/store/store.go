package store

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/xhad/tutor/internal/models"
	"github.com/xhad/tutor/internal/types"
)

const (
	BackendMemory   = "memory"
	BackendPGVector = "pgvector"
	BackendQdrant   = "qdrant"
)

// Config selects and configures a vector index backend.
type Config struct {
	Backend   string
	Dimension int
	PGVector  PGVectorConfig
	Qdrant    QdrantConfig
}

// New opens the configured backend. Dimension overrides the per-backend setting.
func New(ctx context.Context, config Config) (types.VectorIndex, error) {
	if config.Dimension <= 0 {
		return nil, fmt.Errorf("%w: index dimension must be positive", models.ErrInvalidConfig)
	}

	switch strings.ToLower(config.Backend) {
	case "", BackendMemory:
		return NewMemory(config.Dimension), nil
	case BackendPGVector:
		config.PGVector.VectorDim = config.Dimension
		return NewPGVector(ctx, config.PGVector)
	case BackendQdrant:
		config.Qdrant.VectorDim = config.Dimension
		return NewQdrant(ctx, config.Qdrant)
	default:
		return nil, fmt.Errorf("%w: unknown index backend %q", models.ErrInvalidConfig, config.Backend)
	}
}

// validateEntries rejects the whole batch if any entry is malformed, so a
// failed upsert never writes a partial batch.
func validateEntries(dim int, entries []models.IndexEntry) error {
	for i, e := range entries {
		if e.ID == "" {
			return fmt.Errorf("%w: entry %d has no id", models.ErrEmptyInput, i)
		}
		if e.Payload.CourseID == "" {
			return fmt.Errorf("%w: entry %s has no course", models.ErrInvalidCourse, e.ID)
		}
		if len(e.Vector) != dim {
			return fmt.Errorf("%w: entry %s has %d dimensions, index expects %d", models.ErrDimensionMismatch, e.ID, len(e.Vector), dim)
		}
	}
	return nil
}

func validateQuery(dim int, courseID models.CourseID, vector []float32) error {
	if courseID == "" {
		return models.ErrInvalidCourse
	}
	if len(vector) != dim {
		return fmt.Errorf("%w: query has %d dimensions, index expects %d", models.ErrDimensionMismatch, len(vector), dim)
	}
	return nil
}

func cosine(a, b []float32) float64 {
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

// sortMatches orders by descending score with id as the tiebreaker.
func sortMatches(matches []models.Match) {
	sort.SliceStable(matches, func(i, j int) bool {
		if matches[i].Score != matches[j].Score {
			return matches[i].Score > matches[j].Score
		}
		return matches[i].ID < matches[j].ID
	})
}

func stamp(p models.Payload) models.Payload {
	if p.IngestedAt.IsZero() {
		p.IngestedAt = time.Now().UTC()
	}
	return p
}
