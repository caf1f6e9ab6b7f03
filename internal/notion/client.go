// Package notion reads the article list from a Notion database and writes the
// posted flag and generated summaries back to its pages.
package notion

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"crosspost/internal/article"
	"crosspost/pkg/logx"
)

const (
	DefaultBaseURL = "https://api.notion.com/v1"
	DefaultVersion = "2022-06-28"

	pageSize        = 100
	maxRichTextRune = 2000
	maxErrorBody    = 64 << 10
)

var ErrNotConfigured = errors.New("notion: api key and database id are required")

type Config struct {
	APIKey     string
	DatabaseID string
	BaseURL    string
	Version    string
	Timeout    time.Duration

	// Property names in the database.
	TitleProperty   string
	URLProperty     string
	PostedProperty  string
	SummaryProperty string

	HTTPClient *http.Client
}

func (c *Config) defaults() {
	if c.BaseURL == "" {
		c.BaseURL = DefaultBaseURL
	}
	c.BaseURL = strings.TrimRight(c.BaseURL, "/")
	if c.Version == "" {
		c.Version = DefaultVersion
	}
	if c.Timeout <= 0 {
		c.Timeout = 20 * time.Second
	}
	if c.TitleProperty == "" {
		c.TitleProperty = "Title"
	}
	if c.URLProperty == "" {
		c.URLProperty = "URL"
	}
	if c.PostedProperty == "" {
		c.PostedProperty = "Posted"
	}
	if c.SummaryProperty == "" {
		c.SummaryProperty = "AISummary"
	}
}

// APIError is a non-2xx Notion response.
type APIError struct {
	Status  int
	Code    string
	Message string
}

func (e *APIError) Error() string {
	if e.Code == "" && e.Message == "" {
		return fmt.Sprintf("notion: status %d", e.Status)
	}
	return fmt.Sprintf("notion: status %d: %s: %s", e.Status, e.Code, e.Message)
}

// Client implements article.Source and article.Summarizable.
type Client struct {
	cfg Config
	hc  *http.Client
	log logx.Logger
}

var (
	_ article.Source       = (*Client)(nil)
	_ article.Summarizable = (*Client)(nil)
)

func New(cfg Config, log logx.Logger) (*Client, error) {
	if strings.TrimSpace(cfg.APIKey) == "" || strings.TrimSpace(cfg.DatabaseID) == "" {
		return nil, ErrNotConfigured
	}
	cfg.defaults()
	hc := cfg.HTTPClient
	if hc == nil {
		hc = &http.Client{Timeout: cfg.Timeout}
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Client{cfg: cfg, hc: hc, log: log.With(logx.String("comp", "notion"))}, nil
}

type queryRequest struct {
	Filter      any    `json:"filter"`
	Sorts       []any  `json:"sorts"`
	PageSize    int    `json:"page_size"`
	StartCursor string `json:"start_cursor,omitempty"`
}

type queryResponse struct {
	Results    []page  `json:"results"`
	HasMore    bool    `json:"has_more"`
	NextCursor *string `json:"next_cursor"`
}

type page struct {
	ID         string              `json:"id"`
	Properties map[string]property `json:"properties"`
}

type property struct {
	Type     string     `json:"type"`
	Title    []richText `json:"title"`
	RichText []richText `json:"rich_text"`
	URL      *string    `json:"url"`
}

type richText struct {
	PlainText string `json:"plain_text"`
}

// GetUnpostedArticles returns every page whose posted checkbox is false,
// oldest first. Pages without a title or URL are skipped.
func (c *Client) GetUnpostedArticles(ctx context.Context) ([]article.Article, error) {
	req := queryRequest{
		Filter: map[string]any{
			"property": c.cfg.PostedProperty,
			"checkbox": map[string]bool{"equals": false},
		},
		Sorts:    []any{map[string]string{"timestamp": "created_time", "direction": "ascending"}},
		PageSize: pageSize,
	}

	var out []article.Article
	for {
		var resp queryResponse
		if err := c.do(ctx, http.MethodPost, "/databases/"+c.cfg.DatabaseID+"/query", req, &resp); err != nil {
			return nil, err
		}
		for _, p := range resp.Results {
			a, ok := c.toArticle(p)
			if !ok {
				c.log.Warn("page skipped: missing title or url", logx.String("page", p.ID))
				continue
			}
			out = append(out, a)
		}
		if !resp.HasMore || resp.NextCursor == nil || *resp.NextCursor == "" {
			break
		}
		req.StartCursor = *resp.NextCursor
	}
	c.log.Debug("unposted articles fetched", logx.Int("count", len(out)))
	return out, nil
}

func (c *Client) toArticle(p page) (article.Article, bool) {
	a := article.Article{ID: p.ID}
	if prop, ok := p.Properties[c.cfg.TitleProperty]; ok {
		parts := prop.Title
		if prop.Type == "rich_text" {
			parts = prop.RichText
		}
		var b strings.Builder
		for _, rt := range parts {
			b.WriteString(rt.PlainText)
		}
		a.Title = strings.TrimSpace(b.String())
	}
	if prop, ok := p.Properties[c.cfg.URLProperty]; ok && prop.URL != nil {
		a.URL = strings.TrimSpace(*prop.URL)
	}
	return a, a.Valid()
}

func (c *Client) MarkArticleAsPosted(ctx context.Context, id string) error {
	body := map[string]any{
		"properties": map[string]any{
			c.cfg.PostedProperty: map[string]bool{"checkbox": true},
		},
	}
	return c.do(ctx, http.MethodPatch, "/pages/"+id, body, nil)
}

// UpdateArticleSummary stores summary in the summary rich_text property.
func (c *Client) UpdateArticleSummary(ctx context.Context, id, summary string) error {
	body := map[string]any{
		"properties": map[string]any{
			c.cfg.SummaryProperty: map[string]any{"rich_text": richTextChunks(summary)},
		},
	}
	return c.do(ctx, http.MethodPatch, "/pages/"+id, body, nil)
}

// richTextChunks splits s into text objects within Notion's per-object limit.
func richTextChunks(s string) []map[string]any {
	runes := []rune(s)
	chunks := make([]map[string]any, 0, len(runes)/maxRichTextRune+1)
	for len(runes) > 0 {
		n := len(runes)
		if n > maxRichTextRune {
			n = maxRichTextRune
		}
		chunks = append(chunks, map[string]any{
			"type": "text",
			"text": map[string]string{"content": string(runes[:n])},
		})
		runes = runes[n:]
	}
	return chunks
}

func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		raw, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(raw)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.cfg.BaseURL+path, body)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	req.Header.Set("Notion-Version", c.cfg.Version)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.hc.Do(req)
	if err != nil {
		return fmt.Errorf("notion %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := &APIError{Status: resp.StatusCode}
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		var eb struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		}
		if json.Unmarshal(raw, &eb) == nil {
			apiErr.Code, apiErr.Message = eb.Code, eb.Message
		}
		return apiErr
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("notion %s %s: decode: %w", method, path, err)
	}
	return nil
}
