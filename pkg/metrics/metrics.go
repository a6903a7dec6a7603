package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "tutor"

// Metrics groups the pipeline collectors. A nil *Metrics records nothing.
type Metrics struct {
	ChunksWritten  prometheus.Counter
	ChunksSkipped  prometheus.Counter
	DocumentErrors prometheus.Counter
	EmbedDuration  prometheus.Histogram
	Queries        *prometheus.CounterVec
	AnswerDuration prometheus.Histogram
	TopScore       prometheus.Histogram
	CacheLookups   *prometheus.CounterVec
}

// New creates the collectors and registers them on reg when it is not nil.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		ChunksWritten: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "chunks_written_total",
			Help: "Index entries written by ingestion.",
		}),
		ChunksSkipped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "chunks_skipped_total",
			Help: "Blank or too short chunks skipped by ingestion.",
		}),
		DocumentErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "document_errors_total",
			Help: "Documents that failed ingestion.",
		}),
		EmbedDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace, Name: "embed_batch_duration_seconds",
			Help:    "Latency of embedding batch calls.",
			Buckets: prometheus.DefBuckets,
		}),
		Queries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "queries_total",
			Help: "Answered queries by outcome.",
		}, []string{"outcome"}),
		AnswerDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace, Name: "answer_duration_seconds",
			Help:    "End-to-end answer latency.",
			Buckets: prometheus.DefBuckets,
		}),
		TopScore: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace, Name: "retrieval_top_score",
			Help:    "Best relevance score per retrieval.",
			Buckets: prometheus.LinearBuckets(0, 0.1, 11),
		}),
		CacheLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "query_cache_lookups_total",
			Help: "Query cache lookups by result.",
		}, []string{"result"}),
	}

	if reg != nil {
		reg.MustRegister(m.ChunksWritten, m.ChunksSkipped, m.DocumentErrors, m.EmbedDuration,
			m.Queries, m.AnswerDuration, m.TopScore, m.CacheLookups)
	}
	return m
}

func (m *Metrics) RecordIngest(written, skipped, failed int) {
	if m == nil {
		return
	}
	m.ChunksWritten.Add(float64(written))
	m.ChunksSkipped.Add(float64(skipped))
	m.DocumentErrors.Add(float64(failed))
}

func (m *Metrics) ObserveEmbed(d time.Duration) {
	if m == nil {
		return
	}
	m.EmbedDuration.Observe(d.Seconds())
}

// RecordQuery counts an answer with outcome answered, no_context or error.
func (m *Metrics) RecordQuery(outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.Queries.WithLabelValues(outcome).Inc()
	m.AnswerDuration.Observe(d.Seconds())
}

func (m *Metrics) ObserveTopScore(score float64) {
	if m == nil {
		return
	}
	m.TopScore.Observe(score)
}

func (m *Metrics) CacheLookup(hit bool) {
	if m == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	m.CacheLookups.WithLabelValues(result).Inc()
}
