package tutor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/grpc-ecosystem/go-grpc-middleware/logging/zap/ctxzap"
	"go.uber.org/zap"

	"github.com/xhad/tutor/internal/models"
	"github.com/xhad/tutor/pkg/ingest"
	"github.com/xhad/tutor/pkg/logger"
	"github.com/xhad/tutor/pkg/metrics"
	"github.com/xhad/tutor/pkg/retrieval"
	"github.com/xhad/tutor/pkg/synth"
)

const (
	OutcomeAnswered  = "answered"
	OutcomeNoContext = "no_context"
	OutcomeError     = "error"
	OutcomeTimeout   = "timeout"
)

type Config struct {
	TopK int
	// AnswerTimeout bounds embed, search and synthesis of one question.
	AnswerTimeout time.Duration
}

// Service is the entry point for callers: ingest course material, answer
// questions about it and report knowledge base status.
type Service struct {
	config    Config
	pipeline  *ingest.Pipeline
	retriever *retrieval.Engine
	synth     *synth.Synthesizer
	metrics   *metrics.Metrics
	now       func() time.Time
}

type Option func(*Service)

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func New(config Config, p *ingest.Pipeline, r *retrieval.Engine, sy *synth.Synthesizer, opts ...Option) *Service {
	if config.TopK <= 0 {
		config.TopK = 3
	}
	if config.AnswerTimeout <= 0 {
		config.AnswerTimeout = 10 * time.Second
	}
	s := &Service{
		config:    config,
		pipeline:  p,
		retriever: r,
		synth:     sy,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Ingest indexes docs for a course and drops cached answers for it. It is
// safe to retry: chunk ids are stable, so a repeated call replaces entries.
func (s *Service) Ingest(ctx context.Context, courseID models.CourseID, docs []models.SourceDocument, opts ingest.Options) (models.IngestionReport, error) {
	report, err := s.pipeline.Ingest(ctx, courseID, docs, opts)
	s.retriever.InvalidateCourse(courseID)
	return report, err
}

// Answer embeds the question, searches the course and synthesizes an answer
// within AnswerTimeout. Any stage running out of time yields ErrTimeout.
func (s *Service) Answer(ctx context.Context, q models.Query) (models.Answer, error) {
	start := s.now()
	ctx = logger.WithCourse(logger.WithAction(ctx, "answer"), string(q.CourseID))
	if q.RequesterID != "" {
		ctx = logger.AddFields(ctx, zap.String("requester_id", q.RequesterID))
	}

	ctx, cancel := context.WithTimeout(ctx, s.config.AnswerTimeout)
	defer cancel()

	rc, err := s.retriever.Retrieve(ctx, q.CourseID, q.Question, s.config.TopK)
	if err != nil {
		return models.Answer{}, s.fail(ctx, start, fmt.Errorf("retrieve: %w", err))
	}
	answer, err := s.synth.Synthesize(ctx, q.Question, rc)
	if err == nil && ctx.Err() != nil {
		err = ctx.Err()
	}
	if err != nil {
		return models.Answer{}, s.fail(ctx, start, fmt.Errorf("synthesize: %w", err))
	}

	answer.Latency = s.now().Sub(start)
	outcome := OutcomeAnswered
	if rc.Empty() {
		outcome = OutcomeNoContext
	}
	s.metrics.RecordQuery(outcome, answer.Latency)
	ctxzap.Info(ctx, "question answered",
		zap.String("outcome", outcome),
		zap.Int("sources", len(answer.Sources)),
		zap.Float64("confidence", answer.Confidence),
		zap.Duration("latency", answer.Latency))
	return answer, nil
}

func (s *Service) fail(ctx context.Context, start time.Time, err error) error {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) && !errors.Is(err, models.ErrTimeout) {
		err = fmt.Errorf("%w: answer exceeded %s: %w", models.ErrTimeout, s.config.AnswerTimeout, err)
	}

	outcome := OutcomeError
	if errors.Is(err, models.ErrTimeout) {
		outcome = OutcomeTimeout
	}
	s.metrics.RecordQuery(outcome, s.now().Sub(start))
	ctxzap.Error(ctx, "answer failed", zap.String("outcome", outcome), zap.Error(err))
	return err
}

func (s *Service) Status(courseID models.CourseID) models.KnowledgeBase {
	return s.pipeline.Registry().Status(courseID)
}

func (s *Service) Courses() []models.CourseID {
	return s.pipeline.Registry().Courses()
}
