package bluesky

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"crosspost/internal/article"
)

func TestDetectLinksUsesByteOffsets(t *testing.T) {
	t.Parallel()
	text := "🔖 日本語 https://example.com/a?b=1"
	facets := DetectLinks(text)
	require.Len(t, facets, 1)

	f := facets[0]
	// The bookmark is 4 bytes, each kanji 3 bytes.
	assert.Equal(t, 4+1+9+1, f.Index.ByteStart)
	assert.Equal(t, len(text), f.Index.ByteEnd)
	assert.Equal(t, "https://example.com/a?b=1", text[f.Index.ByteStart:f.Index.ByteEnd])
	assert.Equal(t, "https://example.com/a?b=1", f.Features[0].URI)
	assert.Equal(t, "app.bsky.richtext.facet#link", f.Features[0].Type)
}

func TestDetectLinksTrimsPunctuation(t *testing.T) {
	t.Parallel()
	facets := DetectLinks("see http://a.example/x. and https://b.example")
	require.Len(t, facets, 2)
	assert.Equal(t, "http://a.example/x", facets[0].Features[0].URI)
	assert.Equal(t, "https://b.example", facets[1].Features[0].URI)
	assert.Nil(t, DetectLinks("no links here"))
}

func fakePDS(t *testing.T, record *map[string]any) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/xrpc/com.atproto.server.createSession", func(w http.ResponseWriter, r *http.Request) {
		var in map[string]string
		_ = json.NewDecoder(r.Body).Decode(&in)
		if in["password"] != "app-pass" {
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"error":"AuthenticationRequired","message":"Invalid identifier or password"}`))
			return
		}
		_, _ = w.Write([]byte(`{"accessJwt":"tok","did":"did:plc:abc","handle":"me.bsky.social"}`))
	})
	mux.HandleFunc("/xrpc/com.atproto.repo.createRecord", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer tok" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		_ = json.NewDecoder(r.Body).Decode(record)
		_, _ = w.Write([]byte(`{"uri":"at://did:plc:abc/app.bsky.feed.post/1","cid":"c"}`))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestPostArticle(t *testing.T) {
	t.Parallel()
	var got map[string]any
	srv := fakePDS(t, &got)
	fixed := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)

	p, err := New(context.Background(), Config{Service: srv.URL, Identifier: "me", Password: "app-pass", Now: func() time.Time { return fixed }})
	require.NoError(t, err)
	assert.Equal(t, "bluesky", p.Name())
	assert.Equal(t, "me.bsky.social", p.Handle())

	err = p.PostArticle(context.Background(), article.Article{ID: "1", Title: "Hi", URL: "https://x.example"})
	require.NoError(t, err)

	assert.Equal(t, "did:plc:abc", got["repo"])
	assert.Equal(t, "app.bsky.feed.post", got["collection"])
	rec := got["record"].(map[string]any)
	assert.Equal(t, "🔖 Hi https://x.example", rec["text"])
	assert.Equal(t, "2025-01-02T03:04:05Z", rec["createdAt"])
	assert.Len(t, rec["facets"], 1)
}

func TestLoginFailure(t *testing.T) {
	t.Parallel()
	srv := fakePDS(t, new(map[string]any))
	_, err := New(context.Background(), Config{Service: srv.URL, Identifier: "me", Password: "wrong"})
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusUnauthorized, apiErr.Status)
	assert.Contains(t, err.Error(), "Invalid identifier or password")

	_, err = New(context.Background(), Config{Service: srv.URL})
	assert.ErrorIs(t, err, ErrMissingCredentials)
}
