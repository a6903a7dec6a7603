package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/grpc-ecosystem/go-grpc-middleware/logging/zap/ctxzap"
	"go.uber.org/zap"

	"github.com/xhad/tutor/internal/models"
	"github.com/xhad/tutor/internal/types"
	"github.com/xhad/tutor/pkg/chunker"
	cfgPkg "github.com/xhad/tutor/pkg/config"
	"github.com/xhad/tutor/pkg/ingest"
	"github.com/xhad/tutor/pkg/llm"
	"github.com/xhad/tutor/pkg/metrics"
	"github.com/xhad/tutor/pkg/retrieval"
	"github.com/xhad/tutor/pkg/retry"
	"github.com/xhad/tutor/pkg/source"
	"github.com/xhad/tutor/pkg/store"
	"github.com/xhad/tutor/pkg/synth"
	"github.com/xhad/tutor/pkg/tutor"
)

// app holds what the commands share once setup has run.
type app struct {
	cfg      *cfgPkg.Config
	index    types.VectorIndex
	service  *tutor.Service
	progress func(doc models.SourceDocument, err error)
	closers  []func()
}

func (a *app) onShutdown(fn func()) { a.closers = append(a.closers, fn) }

func (a *app) shutdown() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}

func (a *app) build(ctx context.Context, cfg *cfgPkg.Config, m *metrics.Metrics) error {
	a.cfg = cfg

	emb, err := llm.NewEmbedder(cfg.EmbedderConfig())
	if err != nil {
		return fmt.Errorf("failed to initialize embedder: %w", err)
	}
	gen, err := llm.NewGenerator(cfg.ChatConfig())
	if err != nil {
		return fmt.Errorf("failed to initialize generator: %w", err)
	}

	index, err := store.New(ctx, cfg.StoreConfig(emb.Dimension()))
	if err != nil {
		return fmt.Errorf("failed to initialize vector index: %w", err)
	}
	a.index = index
	a.onShutdown(index.Close)

	ch, err := chunker.NewWithConfig(cfg.ChunkerConfig())
	if err != nil {
		return err
	}
	pipeline, err := ingest.New(cfg.IngestConfig(), ch, emb, index,
		ingest.WithMetrics(m),
		ingest.WithProgress(func(doc models.SourceDocument, err error) {
			if a.progress != nil {
				a.progress(doc, err)
			}
		}))
	if err != nil {
		return err
	}
	sy, err := synth.New(cfg.SynthesisConfig(), gen)
	if err != nil {
		return err
	}
	engine := retrieval.New(cfg.RetrievalConfig(), emb, index, retrieval.WithMetrics(m))

	a.service = tutor.New(cfg.TutorConfig(), pipeline, engine, sy, tutor.WithMetrics(m))
	ctxzap.Debug(ctx, "tutor ready",
		zap.String("embedder", emb.Name()),
		zap.Int("dimension", emb.Dimension()),
		zap.String("index", cfg.Index.Backend),
		zap.String("generator", cfg.Generator.Provider))
	return nil
}

// load collects documents from local paths and transcript sites.
func (a *app) load(ctx context.Context, courseID models.CourseID, lang string, refs []string, onPage func(string)) ([]models.SourceDocument, error) {
	var (
		docs  []models.SourceDocument
		files []string
	)
	for _, ref := range refs {
		if !strings.HasPrefix(ref, "http://") && !strings.HasPrefix(ref, "https://") {
			files = append(files, ref)
			continue
		}
		sc := a.cfg.ScraperConfig(ref, lang)
		sc.OnProgress = onPage
		scraper, err := source.NewScraper(sc)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize scraper: %w", err)
		}
		pages, err := scraper.Load(ctx, courseID)
		if err != nil {
			return nil, fmt.Errorf("failed to scrape %s: %w", ref, err)
		}
		docs = append(docs, pages...)
	}

	if len(files) > 0 {
		loaded, err := source.Files{Paths: files, Language: lang}.Load(ctx, courseID)
		if err != nil {
			return nil, err
		}
		docs = append(docs, loaded...)
	}
	return docs, nil
}

// ingest runs the pipeline with caller-side retries. Stable chunk ids make
// a repeated call replace rather than duplicate entries.
func (a *app) ingest(ctx context.Context, courseID models.CourseID, docs []models.SourceDocument, replace bool) (models.IngestionReport, error) {
	return retry.Do(ctx, a.cfg.Retry, func() (models.IngestionReport, error) {
		return a.service.Ingest(ctx, courseID, docs, ingest.Options{Replace: replace})
	})
}

func (a *app) answer(ctx context.Context, q models.Query) (models.Answer, error) {
	return retry.Do(ctx, a.cfg.Retry, func() (models.Answer, error) {
		return a.service.Answer(ctx, q)
	})
}
