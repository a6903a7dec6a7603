package ingest

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/grpc-ecosystem/go-grpc-middleware/logging/zap/ctxzap"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"

	"github.com/xhad/tutor/internal/models"
	"github.com/xhad/tutor/internal/types"
	"github.com/xhad/tutor/pkg/chunker"
	"github.com/xhad/tutor/pkg/logger"
	"github.com/xhad/tutor/pkg/metrics"
)

// ErrDuplicateSource rejects a document whose source id already appeared
// earlier in the same Ingest call.
var ErrDuplicateSource = errors.New("duplicate source id")

type Config struct {
	// Concurrency caps in-flight embedding calls across all documents.
	Concurrency         int
	DocumentConcurrency int
	BatchSize           int
	EmbedTimeout        time.Duration
	// RateLimit caps embedding calls per second. 0 disables it.
	RateLimit float64
}

type Options struct {
	// Replace deletes everything indexed for the course before ingesting.
	Replace bool
}

type Pipeline struct {
	config   Config
	chunker  *chunker.Chunker
	embedder types.Embedder
	index    types.VectorIndex
	registry *Registry
	metrics  *metrics.Metrics
	sem      *semaphore.Weighted
	limiter  *rate.Limiter
	now      func() time.Time
	progress func(doc models.SourceDocument, err error)
}

type Option func(*Pipeline)

func WithRegistry(r *Registry) Option {
	return func(p *Pipeline) { p.registry = r }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(p *Pipeline) { p.metrics = m }
}

func WithClock(now func() time.Time) Option {
	return func(p *Pipeline) { p.now = now }
}

// WithProgress registers a callback run once per finished document, with
// the document's error if it failed. Calls are serialized.
func WithProgress(fn func(doc models.SourceDocument, err error)) Option {
	return func(p *Pipeline) { p.progress = fn }
}

func New(config Config, ch *chunker.Chunker, emb types.Embedder, idx types.VectorIndex, opts ...Option) (*Pipeline, error) {
	if config.Concurrency <= 0 {
		config.Concurrency = 4
	}
	if config.DocumentConcurrency <= 0 {
		config.DocumentConcurrency = config.Concurrency
	}
	if config.BatchSize <= 0 {
		config.BatchSize = 16
	}
	if config.EmbedTimeout <= 0 {
		config.EmbedTimeout = 30 * time.Second
	}
	if emb.Dimension() != idx.Dimension() {
		return nil, fmt.Errorf("%w: embedder %s produces %d dimensions, index expects %d",
			models.ErrDimensionMismatch, emb.Name(), emb.Dimension(), idx.Dimension())
	}

	p := &Pipeline{
		config:   config,
		chunker:  ch,
		embedder: emb,
		index:    idx,
		registry: NewRegistry(),
		sem:      semaphore.NewWeighted(int64(config.Concurrency)),
		now:      time.Now,
	}
	if config.RateLimit > 0 {
		p.limiter = rate.NewLimiter(rate.Limit(config.RateLimit), config.Concurrency)
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

func (p *Pipeline) Registry() *Registry { return p.registry }

type docResult struct {
	written int
	skipped int
	stale   int
}

// Ingest chunks, embeds and indexes documents for one course. A document
// that fails is reported in the result and leaves nothing of its new
// content in the index; the others continue. Dimension mismatches and
// cancellation of ctx abort the whole call.
func (p *Pipeline) Ingest(ctx context.Context, courseID models.CourseID, docs []models.SourceDocument, opts Options) (models.IngestionReport, error) {
	start := p.now()
	report := models.IngestionReport{CourseID: courseID, Documents: len(docs)}
	if courseID == "" {
		return report, models.ErrInvalidCourse
	}

	ctx = logger.WithCourse(logger.WithAction(ctx, "ingest"), string(courseID))
	ctxzap.Info(ctx, "ingestion started", zap.Int("documents", len(docs)), zap.Bool("replace", opts.Replace))
	p.registry.begin(courseID)

	if opts.Replace {
		if err := p.index.Delete(ctx, courseID); err != nil {
			err = models.Classify(fmt.Errorf("clear course: %w", err), models.ErrIndexUnavailable)
			p.registry.finish(courseID, report, err, p.now())
			return report, err
		}
		p.registry.reset(courseID)
	}

	var (
		mu     sync.Mutex
		failed = make(map[int]models.DocumentError)
	)
	firstSeen := make(map[string]int, len(docs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.config.DocumentConcurrency)
	for i, doc := range docs {
		if id := sourceID(doc); id != "" {
			if first, dup := firstSeen[id]; dup {
				err := fmt.Errorf("%w: %q already given at position %d", ErrDuplicateSource, id, first)
				mu.Lock()
				failed[i] = models.DocumentError{SourceID: id, OriginRef: doc.OriginRef, Err: err}
				if p.progress != nil {
					p.progress(doc, err)
				}
				mu.Unlock()
				ctxzap.Warn(ctx, "duplicate document skipped", zap.String("source_id", id), zap.Int("position", i))
				continue
			}
			firstSeen[id] = i
		}

		g.Go(func() error {
			res, err := p.ingestDocument(gctx, courseID, doc)

			mu.Lock()
			defer mu.Unlock()
			if p.progress != nil {
				p.progress(doc, err)
			}
			report.ChunksWritten += res.written
			report.Skipped += res.skipped
			report.Stale += res.stale
			if err == nil {
				return nil
			}
			if errors.Is(err, models.ErrDimensionMismatch) {
				return err
			}
			failed[i] = models.DocumentError{SourceID: doc.ID, OriginRef: doc.OriginRef, Err: err}
			ctxzap.Warn(ctx, "document ingestion failed",
				zap.String("source_id", doc.ID), zap.String("origin", doc.OriginRef), zap.Error(err))
			return nil
		})
	}
	err := g.Wait()
	if err == nil && ctx.Err() != nil {
		err = models.Classify(ctx.Err(), models.ErrTimeout)
	}

	keys := make([]int, 0, len(failed))
	for i := range failed {
		keys = append(keys, i)
	}
	sort.Ints(keys)
	for _, i := range keys {
		report.Errors = append(report.Errors, failed[i])
	}
	report.Duration = p.now().Sub(start)

	p.registry.finish(courseID, report, err, p.now())
	p.metrics.RecordIngest(report.ChunksWritten, report.Skipped, len(report.Errors))

	if err != nil {
		ctxzap.Error(ctx, "ingestion aborted", zap.Error(err))
		return report, err
	}
	ctxzap.Info(ctx, "ingestion finished",
		zap.Int("chunks_written", report.ChunksWritten),
		zap.Int("skipped", report.Skipped),
		zap.Int("stale_removed", report.Stale),
		zap.Int("errors", len(report.Errors)),
		zap.Duration("duration", report.Duration))
	return report, nil
}

// sourceID is the document's explicit id, else one derived from its origin.
func sourceID(doc models.SourceDocument) string {
	if doc.ID != "" || doc.OriginRef == "" {
		return doc.ID
	}
	return chunker.SourceID(doc.OriginRef)
}

func (p *Pipeline) ingestDocument(ctx context.Context, courseID models.CourseID, doc models.SourceDocument) (docResult, error) {
	var res docResult

	if doc.CourseID != "" && doc.CourseID != courseID {
		return res, fmt.Errorf("%w: document belongs to %q", models.ErrInvalidCourse, doc.CourseID)
	}
	doc.CourseID = courseID
	if doc.ID = sourceID(doc); doc.ID == "" {
		return res, fmt.Errorf("%w: document has neither id nor origin", models.ErrEmptyInput)
	}
	if doc.IngestedAt.IsZero() {
		doc.IngestedAt = p.now().UTC()
	}

	chunks, skipped, err := p.chunker.Split(doc)
	if err != nil {
		return res, err
	}
	res.skipped = skipped

	vectors := make([][]float32, len(chunks))
	g, gctx := errgroup.WithContext(ctx)
	for lo := 0; lo < len(chunks); lo += p.config.BatchSize {
		hi := min(lo+p.config.BatchSize, len(chunks))
		g.Go(func() error {
			texts := make([]string, hi-lo)
			for i := range texts {
				texts[i] = chunks[lo+i].Text
			}
			vecs, err := p.embed(gctx, texts)
			if err != nil {
				return err
			}
			copy(vectors[lo:hi], vecs)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return res, err
	}

	entries := make([]models.IndexEntry, len(chunks))
	ids := make([]string, len(chunks))
	for i, c := range chunks {
		ids[i] = c.ID
		entries[i] = models.IndexEntry{
			ID:     c.ID,
			Vector: vectors[i],
			Payload: models.Payload{
				CourseID:   courseID,
				SourceID:   doc.ID,
				SourceRef:  doc.OriginRef,
				Text:       c.Text,
				Language:   doc.Language,
				Topic:      c.Topic,
				ChunkIndex: c.Index,
				Start:      c.Start,
				End:        c.End,
				PrevID:     c.PrevID,
				NextID:     c.NextID,
				Time:       c.Time,
				IngestedAt: doc.IngestedAt,
			},
		}
	}

	if len(entries) > 0 {
		n, err := p.index.Upsert(ctx, entries)
		if err != nil {
			return res, models.Classify(err, models.ErrIndexUnavailable)
		}
		res.written = n
	}

	stale := difference(p.registry.Sources(courseID, doc.ID), ids)
	if len(stale) > 0 {
		if err := p.index.DeleteIDs(ctx, courseID, stale); err != nil {
			// keep the stale ids recorded so the next ingestion retries them
			ctxzap.Warn(ctx, "failed to remove superseded chunks",
				zap.String("source_id", doc.ID), zap.Int("stale", len(stale)), zap.Error(err))
			ids = append(ids, stale...)
		} else {
			res.stale = len(stale)
		}
	}
	p.registry.setSource(courseID, doc.ID, ids)

	return res, nil
}

// embed makes one bounded, rate limited embedding call with its own timeout.
func (p *Pipeline) embed(ctx context.Context, texts []string) ([][]float32, error) {
	if err := p.sem.Acquire(ctx, 1); err != nil {
		return nil, models.Classify(err, models.ErrTimeout)
	}
	defer p.sem.Release(1)

	if p.limiter != nil {
		if err := p.limiter.Wait(ctx); err != nil {
			return nil, models.Classify(err, models.ErrTimeout)
		}
	}

	cctx, cancel := context.WithTimeout(ctx, p.config.EmbedTimeout)
	defer cancel()

	start := time.Now()
	vectors, err := p.embedder.EmbedBatch(cctx, texts)
	p.metrics.ObserveEmbed(time.Since(start))
	if err != nil {
		if cctx.Err() == context.DeadlineExceeded {
			return nil, fmt.Errorf("%w: embedding %d chunks exceeded %s: %w", models.ErrTimeout, len(texts), p.config.EmbedTimeout, err)
		}
		return nil, models.Classify(err, models.ErrEmbeddingUnavailable)
	}
	if len(vectors) != len(texts) {
		return nil, fmt.Errorf("%w: got %d vectors for %d chunks", models.ErrEmbeddingUnavailable, len(vectors), len(texts))
	}
	for _, v := range vectors {
		if len(v) != p.index.Dimension() {
			return nil, fmt.Errorf("%w: embedding has %d dimensions, index expects %d", models.ErrDimensionMismatch, len(v), p.index.Dimension())
		}
	}
	return vectors, nil
}

func difference(prev, next []string) []string {
	if len(prev) == 0 {
		return nil
	}
	keep := make(map[string]struct{}, len(next))
	for _, id := range next {
		keep[id] = struct{}{}
	}
	var out []string
	for _, id := range prev {
		if _, ok := keep[id]; !ok {
			out = append(out, id)
		}
	}
	return out
}
