package retrieval

import (
	"context"
	"fmt"
	"math"
	"strings"
	"sync"
	"time"

	"github.com/grpc-ecosystem/go-grpc-middleware/logging/zap/ctxzap"
	gocache "github.com/patrickmn/go-cache"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/xhad/tutor/internal/models"
	"github.com/xhad/tutor/internal/types"
	"github.com/xhad/tutor/pkg/metrics"
)

type Config struct {
	TopK int
	// MinRelevance drops matches scoring below it.
	MinRelevance float64
	// CacheTTL enables the query cache when positive.
	CacheTTL time.Duration
}

type Engine struct {
	config   Config
	embedder types.Embedder
	index    types.VectorIndex
	metrics  *metrics.Metrics

	cache *gocache.Cache
	group singleflight.Group
	mu    sync.Mutex
	gens  map[models.CourseID]uint64
}

type Option func(*Engine)

func WithMetrics(m *metrics.Metrics) Option {
	return func(e *Engine) { e.metrics = m }
}

func New(config Config, emb types.Embedder, idx types.VectorIndex, opts ...Option) *Engine {
	if config.TopK <= 0 {
		config.TopK = 3
	}
	e := &Engine{
		config:   config,
		embedder: emb,
		index:    idx,
		gens:     make(map[models.CourseID]uint64),
	}
	if config.CacheTTL > 0 {
		e.cache = gocache.New(config.CacheTTL, 2*config.CacheTTL)
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Retrieve returns up to k context entries for the question, best first.
// A sparse or empty course yields a short or empty context, not an error.
func (e *Engine) Retrieve(ctx context.Context, courseID models.CourseID, question string, k int) (models.RetrievedContext, error) {
	if courseID == "" {
		return models.RetrievedContext{}, models.ErrInvalidCourse
	}
	if strings.TrimSpace(question) == "" {
		return models.RetrievedContext{}, fmt.Errorf("%w: question is blank", models.ErrEmptyInput)
	}
	if k <= 0 {
		k = e.config.TopK
	}

	if e.cache == nil {
		return e.retrieve(ctx, courseID, question, k)
	}

	key := e.cacheKey(courseID, question, k)
	if v, ok := e.cache.Get(key); ok {
		e.metrics.CacheLookup(true)
		rc := v.(models.RetrievedContext)
		rc.Question = question
		rc.Entries = append([]models.ContextEntry(nil), rc.Entries...)
		return rc, nil
	}
	e.metrics.CacheLookup(false)

	// one fill per key; callers keep their own deadline while waiting
	ch := e.group.DoChan(key, func() (any, error) {
		fctx := context.WithoutCancel(ctx)
		if deadline, ok := ctx.Deadline(); ok {
			var cancel context.CancelFunc
			fctx, cancel = context.WithDeadline(fctx, deadline)
			defer cancel()
		}
		rc, err := e.retrieve(fctx, courseID, question, k)
		if err != nil {
			return nil, err
		}
		e.cache.SetDefault(key, rc)
		return rc, nil
	})
	select {
	case res := <-ch:
		if res.Err != nil {
			return models.RetrievedContext{}, res.Err
		}
		rc := res.Val.(models.RetrievedContext)
		rc.Question = question
		rc.Entries = append([]models.ContextEntry(nil), rc.Entries...)
		return rc, nil
	case <-ctx.Done():
		return models.RetrievedContext{}, models.Classify(ctx.Err(), models.ErrTimeout)
	}
}

func (e *Engine) retrieve(ctx context.Context, courseID models.CourseID, question string, k int) (models.RetrievedContext, error) {
	rc := models.RetrievedContext{CourseID: courseID, Question: question, K: k}

	vector, err := e.embedder.Embed(ctx, question)
	if err != nil {
		return rc, models.Classify(fmt.Errorf("embed question: %w", err), models.ErrEmbeddingUnavailable)
	}

	matches, err := e.index.Query(ctx, courseID, vector, k)
	if err != nil {
		return rc, models.Classify(fmt.Errorf("query index: %w", err), models.ErrIndexUnavailable)
	}

	blocks := make([]string, 0, len(matches))
	for _, m := range matches {
		if m.Payload.CourseID != courseID {
			ctxzap.Warn(ctx, "index returned entry from another course",
				zap.String("chunk_id", m.ID), zap.String("entry_course", string(m.Payload.CourseID)))
			continue
		}
		if math.IsNaN(m.Score) || math.IsInf(m.Score, 0) || m.Score < e.config.MinRelevance {
			continue
		}
		entry := models.ContextEntry{
			ChunkID:   m.ID,
			CourseID:  courseID,
			Score:     m.Score,
			Text:      m.Payload.Text,
			SourceRef: m.Payload.SourceRef,
			Topic:     m.Payload.Topic,
			Time:      m.Payload.Time,
		}
		rc.Entries = append(rc.Entries, entry)
		blocks = append(blocks, models.FormatEntry(len(rc.Entries), entry))
		if len(rc.Entries) == k {
			break
		}
	}
	rc.Text = strings.Join(blocks, "\n\n")

	e.metrics.ObserveTopScore(rc.TopScore())
	ctxzap.Debug(ctx, "retrieval finished",
		zap.Int("matches", len(matches)),
		zap.Int("entries", len(rc.Entries)),
		zap.Float64("top_score", rc.TopScore()))
	return rc, nil
}

// InvalidateCourse drops cached contexts of a course. Fills already in
// flight are stored under the old generation and never read again.
func (e *Engine) InvalidateCourse(courseID models.CourseID) {
	if e.cache == nil {
		return
	}
	e.mu.Lock()
	gen := e.gens[courseID]
	e.gens[courseID] = gen + 1
	e.mu.Unlock()

	prefix := string(courseID) + "\x00"
	for key := range e.cache.Items() {
		if strings.HasPrefix(key, prefix) {
			e.cache.Delete(key)
		}
	}
}

func (e *Engine) cacheKey(courseID models.CourseID, question string, k int) string {
	e.mu.Lock()
	gen := e.gens[courseID]
	e.mu.Unlock()
	return fmt.Sprintf("%s\x00%d\x00%d\x00%s", courseID, gen, k, Normalize(question))
}

// Normalize lowercases a question, collapses whitespace and trims trailing
// punctuation so trivially different phrasings share a cache entry.
func Normalize(question string) string {
	q := strings.ToLower(strings.Join(strings.Fields(question), " "))
	return strings.TrimRight(q, "?!. ")
}
