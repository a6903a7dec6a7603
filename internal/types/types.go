package types

import (
	"context"

	"github.com/xhad/tutor/internal/models"
)

// Embedder maps text to fixed-dimension vectors. EmbedBatch must return the
// same vectors as element-wise Embed calls.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	Dimension() int
	Name() string
}

// VectorIndex stores (id, vector, payload) entries scoped by course.
type VectorIndex interface {
	// Upsert replaces entries by id and returns how many were written.
	// A batch containing a vector of the wrong dimension writes nothing.
	Upsert(ctx context.Context, entries []models.IndexEntry) (int, error)
	// Query filters to courseID before truncating to k.
	Query(ctx context.Context, courseID models.CourseID, vector []float32, k int) ([]models.Match, error)
	Delete(ctx context.Context, courseID models.CourseID) error
	DeleteIDs(ctx context.Context, courseID models.CourseID, ids []string) error
	Count(ctx context.Context, courseID models.CourseID) (int, error)
	Dimension() int
	Close()
}

// Generator turns a grounded prompt into completion text.
type Generator interface {
	Generate(ctx context.Context, prompt models.Prompt) (string, error)
}

// DocumentSource yields transcripts ready for ingestion.
type DocumentSource interface {
	Load(ctx context.Context, courseID models.CourseID) ([]models.SourceDocument, error)
}
