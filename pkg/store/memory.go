package store

import (
	"context"
	"sync"

	"github.com/xhad/tutor/internal/models"
)

// Memory is an in-process index with exact cosine search.
type Memory struct {
	mu      sync.RWMutex
	dim     int
	entries map[string]models.IndexEntry
}

func NewMemory(dim int) *Memory {
	return &Memory{
		dim:     dim,
		entries: make(map[string]models.IndexEntry),
	}
}

func (m *Memory) Dimension() int { return m.dim }

func (m *Memory) Upsert(ctx context.Context, entries []models.IndexEntry) (int, error) {
	if err := validateEntries(m.dim, entries); err != nil {
		return 0, err
	}
	if err := ctx.Err(); err != nil {
		return 0, models.Classify(err, models.ErrIndexUnavailable)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	for _, e := range entries {
		vec := make([]float32, len(e.Vector))
		copy(vec, e.Vector)
		m.entries[e.ID] = models.IndexEntry{ID: e.ID, Vector: vec, Payload: stamp(e.Payload)}
	}
	return len(entries), nil
}

func (m *Memory) Query(ctx context.Context, courseID models.CourseID, vector []float32, k int) ([]models.Match, error) {
	if err := validateQuery(m.dim, courseID, vector); err != nil {
		return nil, err
	}
	if k <= 0 {
		return nil, nil
	}
	if err := ctx.Err(); err != nil {
		return nil, models.Classify(err, models.ErrIndexUnavailable)
	}

	m.mu.RLock()
	matches := make([]models.Match, 0, k)
	for _, e := range m.entries {
		if e.Payload.CourseID != courseID {
			continue
		}
		matches = append(matches, models.Match{ID: e.ID, Score: cosine(vector, e.Vector), Payload: e.Payload})
	}
	m.mu.RUnlock()

	sortMatches(matches)
	if len(matches) > k {
		matches = matches[:k]
	}
	return matches, nil
}

func (m *Memory) Delete(ctx context.Context, courseID models.CourseID) error {
	if courseID == "" {
		return models.ErrInvalidCourse
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, e := range m.entries {
		if e.Payload.CourseID == courseID {
			delete(m.entries, id)
		}
	}
	return nil
}

func (m *Memory) DeleteIDs(ctx context.Context, courseID models.CourseID, ids []string) error {
	if courseID == "" {
		return models.ErrInvalidCourse
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, id := range ids {
		if e, ok := m.entries[id]; ok && e.Payload.CourseID == courseID {
			delete(m.entries, id)
		}
	}
	return nil
}

func (m *Memory) Count(ctx context.Context, courseID models.CourseID) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	n := 0
	for _, e := range m.entries {
		if e.Payload.CourseID == courseID {
			n++
		}
	}
	return n, nil
}

func (m *Memory) Close() {}
