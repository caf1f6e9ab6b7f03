package telegram

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	tele "gopkg.in/telebot.v4"

	"crosspost/internal/article"
)

func TestParseChat(t *testing.T) {
	t.Parallel()
	r, err := ParseChat("-1001234")
	require.NoError(t, err)
	assert.Equal(t, tele.ChatID(-1001234), r)

	r, err = ParseChat("mychannel")
	require.NoError(t, err)
	assert.Equal(t, "@mychannel", r.Recipient())

	r, err = ParseChat(" @other ")
	require.NoError(t, err)
	assert.Equal(t, "@other", r.Recipient())

	_, err = ParseChat("")
	assert.ErrorIs(t, err, ErrMissingCredentials)
}

func TestPostArticleSendsComposedText(t *testing.T) {
	t.Parallel()
	var (
		mu   sync.Mutex
		path string
		body map[string]any
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		path = r.URL.Path
		_ = json.NewDecoder(r.Body).Decode(&body)
		mu.Unlock()
		_, _ = w.Write([]byte(`{"ok":true,"result":{"message_id":7,"date":0,"chat":{"id":-1001,"type":"channel"},"text":"x"}}`))
	}))
	defer srv.Close()

	p, err := New(Config{Token: "123:abc", Chat: "-1001", APIURL: srv.URL})
	require.NoError(t, err)
	assert.Equal(t, "telegram", p.Name())

	err = p.PostArticle(context.Background(), article.Article{ID: "1", Title: "T", URL: "https://u"})
	require.NoError(t, err)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, "/bot123:abc/sendMessage", path)
	assert.Equal(t, "🔖 T https://u", body["text"])
}

func TestPostArticleAPIError(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"ok":false,"error_code":400,"description":"Bad Request: chat not found"}`))
	}))
	defer srv.Close()

	p, err := New(Config{Token: "123:abc", Chat: "@nowhere", APIURL: srv.URL})
	require.NoError(t, err)
	err = p.PostArticle(context.Background(), article.Article{ID: "1", Title: "T", URL: "https://u"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "chat not found")
}

func TestNewRequiresToken(t *testing.T) {
	t.Parallel()
	_, err := New(Config{Chat: "1"})
	assert.ErrorIs(t, err, ErrMissingCredentials)
}

func TestSendTextDisablesPreview(t *testing.T) {
	t.Parallel()
	var (
		mu   sync.Mutex
		body map[string]any
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		_ = json.NewDecoder(r.Body).Decode(&body)
		mu.Unlock()
		_, _ = w.Write([]byte(`{"ok":true,"result":{"message_id":8,"date":0,"chat":{"id":42,"type":"private"},"text":"x"}}`))
	}))
	defer srv.Close()

	p, err := New(Config{Token: "123:abc", Chat: "42", ThreadID: 5, APIURL: srv.URL})
	require.NoError(t, err)
	require.NoError(t, p.SendText(context.Background(), "run failed"))

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, "run failed", body["text"])
	// telebot encodes every parameter as a string.
	assert.Equal(t, "true", fmt.Sprint(body["disable_web_page_preview"]))
	assert.Equal(t, "5", fmt.Sprint(body["message_thread_id"]))
}
