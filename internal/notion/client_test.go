package notion

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"crosspost/internal/article"
	"crosspost/pkg/logx"
)

type fakeNotion struct {
	mu      sync.Mutex
	queries []map[string]any
	patches map[string]map[string]any
}

func (f *fakeNotion) handler(t *testing.T) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /v1/databases/db1/query", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Notion-Version") != DefaultVersion || r.Header.Get("Authorization") != "Bearer key" {
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"object":"error","status":401,"code":"unauthorized","message":"API token is invalid."}`))
			return
		}
		var in map[string]any
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&in))
		f.mu.Lock()
		f.queries = append(f.queries, in)
		f.mu.Unlock()

		if in["start_cursor"] == nil {
			_, _ = w.Write([]byte(`{"results":[
				{"id":"p1","properties":{"Title":{"type":"title","title":[{"plain_text":"First "},{"plain_text":"post"}]},"URL":{"type":"url","url":"https://a.example"}}},
				{"id":"p2","properties":{"Title":{"type":"title","title":[]},"URL":{"type":"url","url":"https://b.example"}}}
			],"has_more":true,"next_cursor":"c2"}`))
			return
		}
		_, _ = w.Write([]byte(`{"results":[
			{"id":"p3","properties":{"Title":{"type":"rich_text","rich_text":[{"plain_text":"Third"}]},"URL":{"type":"url","url":"https://c.example"}}},
			{"id":"p4","properties":{"Title":{"type":"title","title":[{"plain_text":"No url"}]},"URL":{"type":"url","url":null}}}
		],"has_more":false,"next_cursor":null}`))
	})
	mux.HandleFunc("PATCH /v1/pages/{id}", func(w http.ResponseWriter, r *http.Request) {
		var in map[string]any
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&in))
		f.mu.Lock()
		f.patches[r.PathValue("id")] = in
		f.mu.Unlock()
		if r.PathValue("id") == "missing" {
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(`{"object":"error","status":404,"code":"object_not_found","message":"Could not find page"}`))
			return
		}
		_, _ = w.Write([]byte(`{"object":"page"}`))
	})
	return mux
}

func (f *fakeNotion) query(i int) map[string]any {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.queries[i]
}

func (f *fakeNotion) queryCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.queries)
}

func (f *fakeNotion) patch(id string) map[string]any {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.patches[id]
}

func newTestClient(t *testing.T, key string) (*Client, *fakeNotion) {
	t.Helper()
	f := &fakeNotion{patches: map[string]map[string]any{}}
	srv := httptest.NewServer(f.handler(t))
	t.Cleanup(srv.Close)
	c, err := New(Config{APIKey: key, DatabaseID: "db1", BaseURL: srv.URL + "/v1"}, logx.Nop())
	require.NoError(t, err)
	return c, f
}

func TestGetUnpostedArticlesPaginatesAndFilters(t *testing.T) {
	t.Parallel()
	c, f := newTestClient(t, "key")

	got, err := c.GetUnpostedArticles(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []article.Article{
		{ID: "p1", Title: "First post", URL: "https://a.example"},
		{ID: "p3", Title: "Third", URL: "https://c.example"},
	}, got)

	require.Equal(t, 2, f.queryCount())
	q := f.query(0)
	assert.EqualValues(t, 100, q["page_size"])
	filter := q["filter"].(map[string]any)
	assert.Equal(t, "Posted", filter["property"])
	assert.Equal(t, map[string]any{"equals": false}, filter["checkbox"])
	sorts := q["sorts"].([]any)
	assert.Equal(t, map[string]any{"timestamp": "created_time", "direction": "ascending"}, sorts[0])
	assert.Equal(t, "c2", f.query(1)["start_cursor"])
}

func TestMarkAndSummary(t *testing.T) {
	t.Parallel()
	c, f := newTestClient(t, "key")

	require.NoError(t, c.MarkArticleAsPosted(context.Background(), "p1"))
	props := f.patch("p1")["properties"].(map[string]any)
	assert.Equal(t, map[string]any{"checkbox": true}, props["Posted"])

	long := strings.Repeat("あ", 2500)
	require.NoError(t, c.UpdateArticleSummary(context.Background(), "p3", long))
	props = f.patch("p3")["properties"].(map[string]any)
	chunks := props["AISummary"].(map[string]any)["rich_text"].([]any)
	assert.Len(t, chunks, 2)
}

func TestAPIError(t *testing.T) {
	t.Parallel()
	c, _ := newTestClient(t, "key")
	err := c.MarkArticleAsPosted(context.Background(), "missing")
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusNotFound, apiErr.Status)
	assert.Equal(t, "object_not_found", apiErr.Code)

	bad, _ := newTestClient(t, "wrong")
	_, err = bad.GetUnpostedArticles(context.Background())
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, "unauthorized", apiErr.Code)
}

func TestNewRequiresConfig(t *testing.T) {
	t.Parallel()
	_, err := New(Config{APIKey: "k"}, logx.Nop())
	assert.ErrorIs(t, err, ErrNotConfigured)
}
