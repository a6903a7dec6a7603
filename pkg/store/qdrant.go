package store

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/xhad/tutor/internal/models"
)

type QdrantConfig struct {
	URL        string
	APIKey     string
	Collection string
	VectorDim  int
	Timeout    time.Duration
}

// Qdrant delegates storage and search to a Qdrant server over REST.
// Point ids must be UUIDs; chunk ids already are.
type Qdrant struct {
	config QdrantConfig
	client *resty.Client
}

type qdrantPoint struct {
	ID      string         `json:"id"`
	Vector  []float32      `json:"vector,omitempty"`
	Payload models.Payload `json:"payload"`
}

type qdrantScored struct {
	ID      string         `json:"id"`
	Score   float64        `json:"score"`
	Payload models.Payload `json:"payload"`
}

type qdrantCondition struct {
	Key   string         `json:"key,omitempty"`
	Match map[string]any `json:"match,omitempty"`
	HasID []string       `json:"has_id,omitempty"`
}

type qdrantFilter struct {
	Must []qdrantCondition `json:"must"`
}

func NewQdrant(ctx context.Context, config QdrantConfig) (*Qdrant, error) {
	if config.URL == "" {
		config.URL = "http://localhost:6333"
	}
	if config.Collection == "" {
		config.Collection = "course_chunks"
	}
	if config.Timeout == 0 {
		config.Timeout = 15 * time.Second
	}
	if config.VectorDim <= 0 {
		return nil, fmt.Errorf("%w: vector dimension must be positive", models.ErrInvalidConfig)
	}

	client := resty.New().
		SetBaseURL(config.URL).
		SetTimeout(config.Timeout).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json").
		SetPathParam("collection", config.Collection)
	if config.APIKey != "" {
		client.SetHeader("api-key", config.APIKey)
	}

	q := &Qdrant{config: config, client: client}
	if err := q.ensureCollection(ctx); err != nil {
		return nil, err
	}
	return q, nil
}

func (q *Qdrant) ensureCollection(ctx context.Context) error {
	resp, err := q.client.R().SetContext(ctx).Get("/collections/{collection}")
	if err != nil {
		return q.fail("get collection", err)
	}
	if resp.StatusCode() == http.StatusOK {
		return nil
	}
	if resp.StatusCode() != http.StatusNotFound {
		return q.status("get collection", resp)
	}

	create := map[string]any{
		"vectors": map[string]any{"size": q.config.VectorDim, "distance": "Cosine"},
	}
	if err := q.do(ctx, http.MethodPut, "/collections/{collection}", create, nil); err != nil {
		return err
	}

	index := map[string]any{"field_name": "course_id", "field_schema": "keyword"}
	return q.do(ctx, http.MethodPut, "/collections/{collection}/index?wait=true", index, nil)
}

func (q *Qdrant) Dimension() int { return q.config.VectorDim }

func (q *Qdrant) Upsert(ctx context.Context, entries []models.IndexEntry) (int, error) {
	if err := validateEntries(q.config.VectorDim, entries); err != nil {
		return 0, err
	}
	if len(entries) == 0 {
		return 0, nil
	}

	points := make([]qdrantPoint, len(entries))
	for i, e := range entries {
		points[i] = qdrantPoint{ID: e.ID, Vector: e.Vector, Payload: stamp(e.Payload)}
	}
	if err := q.do(ctx, http.MethodPut, "/collections/{collection}/points?wait=true", map[string]any{"points": points}, nil); err != nil {
		return 0, err
	}
	return len(entries), nil
}

func (q *Qdrant) Query(ctx context.Context, courseID models.CourseID, vector []float32, k int) ([]models.Match, error) {
	if err := validateQuery(q.config.VectorDim, courseID, vector); err != nil {
		return nil, err
	}
	if k <= 0 {
		return nil, nil
	}

	body := map[string]any{
		"vector":       vector,
		"limit":        k,
		"with_payload": true,
		"filter":       courseFilter(courseID),
	}
	var result struct {
		Result []qdrantScored `json:"result"`
	}
	if err := q.do(ctx, http.MethodPost, "/collections/{collection}/points/search", body, &result); err != nil {
		return nil, err
	}

	matches := make([]models.Match, 0, len(result.Result))
	for _, r := range result.Result {
		if r.Payload.CourseID != courseID {
			continue
		}
		matches = append(matches, models.Match{ID: r.ID, Score: r.Score, Payload: r.Payload})
	}
	sortMatches(matches)
	return matches, nil
}

func (q *Qdrant) Delete(ctx context.Context, courseID models.CourseID) error {
	if courseID == "" {
		return models.ErrInvalidCourse
	}
	body := map[string]any{"filter": courseFilter(courseID)}
	return q.do(ctx, http.MethodPost, "/collections/{collection}/points/delete?wait=true", body, nil)
}

func (q *Qdrant) DeleteIDs(ctx context.Context, courseID models.CourseID, ids []string) error {
	if courseID == "" {
		return models.ErrInvalidCourse
	}
	if len(ids) == 0 {
		return nil
	}
	filter := courseFilter(courseID)
	filter.Must = append(filter.Must, qdrantCondition{HasID: ids})
	return q.do(ctx, http.MethodPost, "/collections/{collection}/points/delete?wait=true", map[string]any{"filter": filter}, nil)
}

func (q *Qdrant) Count(ctx context.Context, courseID models.CourseID) (int, error) {
	var result struct {
		Result struct {
			Count int `json:"count"`
		} `json:"result"`
	}
	body := map[string]any{"filter": courseFilter(courseID), "exact": true}
	if err := q.do(ctx, http.MethodPost, "/collections/{collection}/points/count", body, &result); err != nil {
		return 0, err
	}
	return result.Result.Count, nil
}

func (q *Qdrant) Close() {}

func courseFilter(courseID models.CourseID) qdrantFilter {
	return qdrantFilter{Must: []qdrantCondition{{
		Key:   "course_id",
		Match: map[string]any{"value": string(courseID)},
	}}}
}

func (q *Qdrant) do(ctx context.Context, method, path string, body, result any) error {
	req := q.client.R().SetContext(ctx).SetBody(body)
	if result != nil {
		req.SetResult(result)
	}

	resp, err := req.Execute(method, path)
	if err != nil {
		return q.fail(method+" "+path, err)
	}
	if resp.IsError() {
		return q.status(method+" "+path, resp)
	}
	return nil
}

func (q *Qdrant) fail(op string, err error) error {
	return models.Classify(fmt.Errorf("qdrant %s: %w", op, err), models.ErrIndexUnavailable)
}

func (q *Qdrant) status(op string, resp *resty.Response) error {
	return fmt.Errorf("%w: qdrant %s: status %d: %s", models.ErrIndexUnavailable, op, resp.StatusCode(), resp.String())
}
