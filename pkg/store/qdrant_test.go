package store_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xhad/tutor/internal/models"
	"github.com/xhad/tutor/pkg/store"
)

type fakeQdrant struct {
	mu       sync.Mutex
	exists   bool
	requests []string
	bodies   map[string]map[string]any
}

func (f *fakeQdrant) handler(t *testing.T) http.Handler {
	mux := http.NewServeMux()
	record := func(r *http.Request) map[string]any {
		f.mu.Lock()
		defer f.mu.Unlock()
		f.requests = append(f.requests, r.Method+" "+r.URL.Path)
		var body map[string]any
		_ = json.NewDecoder(r.Body).Decode(&body)
		f.bodies[r.Method+" "+r.URL.Path] = body
		return body
	}

	mux.HandleFunc("/collections/chunks", func(w http.ResponseWriter, r *http.Request) {
		record(r)
		if r.Method == http.MethodGet && !f.exists {
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(`{"status":{"error":"Not found"}}`))
			return
		}
		f.exists = true
		_, _ = w.Write([]byte(`{"result":true,"status":"ok"}`))
	})
	mux.HandleFunc("/collections/chunks/index", func(w http.ResponseWriter, r *http.Request) {
		record(r)
		_, _ = w.Write([]byte(`{"result":{"status":"completed"},"status":"ok"}`))
	})
	mux.HandleFunc("/collections/chunks/points", func(w http.ResponseWriter, r *http.Request) {
		record(r)
		_, _ = w.Write([]byte(`{"result":{"status":"completed"},"status":"ok"}`))
	})
	mux.HandleFunc("/collections/chunks/points/search", func(w http.ResponseWriter, r *http.Request) {
		record(r)
		_, _ = w.Write([]byte(`{"result":[
			{"id":"p2","score":0.4,"payload":{"course_id":"physics","text":"second","source_ref":"b.mp4"}},
			{"id":"p1","score":0.9,"payload":{"course_id":"physics","text":"first","source_ref":"a.mp4"}},
			{"id":"x1","score":0.95,"payload":{"course_id":"chemistry","text":"stray","source_ref":"c.mp4"}}
		],"status":"ok"}`))
	})
	mux.HandleFunc("/collections/chunks/points/delete", func(w http.ResponseWriter, r *http.Request) {
		record(r)
		_, _ = w.Write([]byte(`{"result":{"status":"completed"},"status":"ok"}`))
	})
	mux.HandleFunc("/collections/chunks/points/count", func(w http.ResponseWriter, r *http.Request) {
		record(r)
		_, _ = w.Write([]byte(`{"result":{"count":7},"status":"ok"}`))
	})
	return mux
}

func newQdrant(t *testing.T) (*store.Qdrant, *fakeQdrant) {
	t.Helper()
	fake := &fakeQdrant{bodies: make(map[string]map[string]any)}
	srv := httptest.NewServer(fake.handler(t))
	t.Cleanup(srv.Close)

	q, err := store.NewQdrant(context.Background(), store.QdrantConfig{URL: srv.URL, Collection: "chunks", VectorDim: 2})
	require.NoError(t, err)
	return q, fake
}

func TestQdrant_CreatesCollection(t *testing.T) {
	_, fake := newQdrant(t)

	assert.Equal(t, []string{
		"GET /collections/chunks",
		"PUT /collections/chunks",
		"PUT /collections/chunks/index",
	}, fake.requests)
	vectors := fake.bodies["PUT /collections/chunks"]["vectors"].(map[string]any)
	assert.Equal(t, "Cosine", vectors["distance"])
	assert.Equal(t, float64(2), vectors["size"])
}

func TestQdrant_UpsertAndQuery(t *testing.T) {
	q, fake := newQdrant(t)
	ctx := context.Background()

	n, err := q.Upsert(ctx, []models.IndexEntry{entry("p1", "physics", 1, 0)})
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	points := fake.bodies["PUT /collections/chunks/points"]["points"].([]any)
	payload := points[0].(map[string]any)["payload"].(map[string]any)
	assert.Equal(t, "physics", payload["course_id"])

	matches, err := q.Query(ctx, "physics", []float32{1, 0}, 3)
	require.NoError(t, err)
	require.Len(t, matches, 2, "entries of another course are dropped")
	assert.Equal(t, "p1", matches[0].ID)
	assert.Equal(t, "first", matches[0].Payload.Text)

	search := fake.bodies["POST /collections/chunks/points/search"]
	must := search["filter"].(map[string]any)["must"].([]any)
	cond := must[0].(map[string]any)
	assert.Equal(t, "course_id", cond["key"])
	assert.Equal(t, "physics", cond["match"].(map[string]any)["value"])
	assert.Equal(t, float64(3), search["limit"])

	_, err = q.Upsert(ctx, []models.IndexEntry{entry("p3", "physics", 1, 0, 0)})
	assert.ErrorIs(t, err, models.ErrDimensionMismatch)
}

func TestQdrant_DeleteAndCount(t *testing.T) {
	q, fake := newQdrant(t)
	ctx := context.Background()

	require.NoError(t, q.DeleteIDs(ctx, "physics", []string{"p1"}))
	must := fake.bodies["POST /collections/chunks/points/delete"]["filter"].(map[string]any)["must"].([]any)
	require.Len(t, must, 2)
	assert.Equal(t, []any{"p1"}, must[1].(map[string]any)["has_id"])

	require.NoError(t, q.Delete(ctx, "physics"))
	n, err := q.Count(ctx, "physics")
	require.NoError(t, err)
	assert.Equal(t, 7, n)
	assert.Equal(t, true, fake.bodies["POST /collections/chunks/points/count"]["exact"])
}

func TestQdrant_Unavailable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	_, err := store.NewQdrant(context.Background(), store.QdrantConfig{URL: srv.URL, Collection: "chunks", VectorDim: 2})
	assert.ErrorIs(t, err, models.ErrIndexUnavailable)

	srv.Close()
	_, err = store.NewQdrant(context.Background(), store.QdrantConfig{URL: srv.URL, Collection: "chunks", VectorDim: 2})
	assert.ErrorIs(t, err, models.ErrIndexUnavailable)
}
