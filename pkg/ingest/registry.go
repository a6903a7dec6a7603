package ingest

import (
	"sort"
	"sync"
	"time"

	"github.com/xhad/tutor/internal/models"
)

// Registry tracks per-course knowledge base state and, per source, the
// chunk ids its last successful ingestion wrote.
type Registry struct {
	mu      sync.RWMutex
	courses map[models.CourseID]*courseState
}

type courseState struct {
	kb      models.KnowledgeBase
	sources map[string][]string
}

func NewRegistry() *Registry {
	return &Registry{courses: make(map[models.CourseID]*courseState)}
}

// Status returns a snapshot of the course state.
func (r *Registry) Status(courseID models.CourseID) models.KnowledgeBase {
	r.mu.RLock()
	defer r.mu.RUnlock()
	st, ok := r.courses[courseID]
	if !ok {
		return models.KnowledgeBase{CourseID: courseID, Status: models.StatusEmpty}
	}
	return st.kb
}

// Courses lists known course ids in order.
func (r *Registry) Courses() []models.CourseID {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]models.CourseID, 0, len(r.courses))
	for id := range r.courses {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Sources returns the chunk ids recorded for a source.
func (r *Registry) Sources(courseID models.CourseID, sourceID string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	st, ok := r.courses[courseID]
	if !ok {
		return nil
	}
	return append([]string(nil), st.sources[sourceID]...)
}

func (r *Registry) state(courseID models.CourseID) *courseState {
	st, ok := r.courses[courseID]
	if !ok {
		st = &courseState{
			kb:      models.KnowledgeBase{CourseID: courseID, Status: models.StatusEmpty},
			sources: make(map[string][]string),
		}
		r.courses[courseID] = st
	}
	return st
}

func (r *Registry) begin(courseID models.CourseID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.state(courseID).kb.Status = models.StatusIngesting
}

func (r *Registry) reset(courseID models.CourseID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	st := r.state(courseID)
	st.sources = make(map[string][]string)
	st.kb.Documents, st.kb.Chunks = 0, 0
}

func (r *Registry) setSource(courseID models.CourseID, sourceID string, ids []string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	st := r.state(courseID)
	if len(ids) == 0 {
		delete(st.sources, sourceID)
		return
	}
	st.sources[sourceID] = ids
}

func (r *Registry) finish(courseID models.CourseID, report models.IngestionReport, err error, at time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	st := r.state(courseID)

	st.kb.Documents = len(st.sources)
	st.kb.Chunks = 0
	for _, ids := range st.sources {
		st.kb.Chunks += len(ids)
	}
	st.kb.LastIngestedAt = at
	st.kb.LastError = ""

	switch {
	case err != nil:
		st.kb.Status = models.StatusFailed
		st.kb.LastError = err.Error()
	case len(report.Errors) > 0 && len(report.Errors) == report.Documents:
		st.kb.Status = models.StatusFailed
		st.kb.LastError = report.Errors[0].Error()
	case len(report.Errors) > 0:
		st.kb.Status = models.StatusPartial
		st.kb.LastError = report.Errors[0].Error()
	case st.kb.Chunks == 0:
		st.kb.Status = models.StatusEmpty
	default:
		st.kb.Status = models.StatusReady
	}
}
