// Package summary produces short article summaries with an LLM.
//
// The article page is fetched and converted to Markdown first; when the page
// cannot be read the model is given the URL alone.
package summary

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	md "github.com/JohannesKaufmann/html-to-markdown"
	"github.com/aktagon/llmkit/anthropic"
	"github.com/aktagon/llmkit/anthropic/types"

	"crosspost/internal/article"
	"crosspost/pkg/logx"
)

const (
	DefaultModel           = "claude-3-5-haiku-latest"
	DefaultMaxTokens       = 512
	DefaultLanguage        = "Japanese"
	DefaultContentMaxChars = 12000
	defaultMaxBody         = 2 << 20
)

var (
	ErrDisabled      = errors.New("summary: api key not configured")
	ErrEmptyResponse = errors.New("summary: empty response")
)

type Config struct {
	APIKey          string
	Model           string
	MaxTokens       int
	Temperature     float64
	Language        string
	ContentMaxChars int
	FetchTimeout    time.Duration
}

// PromptFunc sends one system/user prompt pair and returns the reply text.
type PromptFunc func(ctx context.Context, system, user string) (string, error)

type Service struct {
	cfg    Config
	hc     *http.Client
	conv   *md.Converter
	prompt PromptFunc
	log    logx.Logger
}

type Option func(*Service)

// WithPrompt replaces the Anthropic call, used by tests.
func WithPrompt(fn PromptFunc) Option { return func(s *Service) { s.prompt = fn } }

func WithHTTPClient(hc *http.Client) Option { return func(s *Service) { s.hc = hc } }

func New(cfg Config, log logx.Logger, opts ...Option) (*Service, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, ErrDisabled
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = DefaultMaxTokens
	}
	if cfg.Language == "" {
		cfg.Language = DefaultLanguage
	}
	if cfg.ContentMaxChars <= 0 {
		cfg.ContentMaxChars = DefaultContentMaxChars
	}
	if cfg.FetchTimeout <= 0 {
		cfg.FetchTimeout = 15 * time.Second
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	s := &Service{
		cfg:  cfg,
		hc:   &http.Client{Timeout: cfg.FetchTimeout},
		conv: md.NewConverter("", true, nil),
		log:  log.With(logx.String("comp", "summary")),
	}
	s.prompt = s.anthropicPrompt
	for _, o := range opts {
		o(s)
	}
	return s, nil
}

// Summarize returns a summary of at most three lines in the configured language.
func (s *Service) Summarize(ctx context.Context, a article.Article) (string, error) {
	content, err := s.fetchMarkdown(ctx, a.URL)
	if err != nil {
		s.log.Debug("article fetch failed; summarizing from url", logx.String("article", a.ID), logx.Err(err))
		content = ""
	}

	system := fmt.Sprintf("Summarize the article in %s in three lines or fewer. Reply with the summary only.", s.cfg.Language)
	user := "URL: " + a.URL + "\nTitle: " + a.Title
	if content != "" {
		user += "\n\nContent:\n" + truncate(content, s.cfg.ContentMaxChars)
	}

	text, err := s.prompt(ctx, system, user)
	if err != nil {
		return "", fmt.Errorf("summary: %w", err)
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return "", ErrEmptyResponse
	}
	return text, nil
}

func (s *Service) fetchMarkdown(ctx context.Context, url string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("User-Agent", "crosspost/1.0")
	resp, err := s.hc.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", fmt.Errorf("fetch %s: status %d", url, resp.StatusCode)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, defaultMaxBody))
	if err != nil {
		return "", fmt.Errorf("read body: %w", err)
	}
	markdown, err := s.conv.ConvertString(string(body))
	if err != nil {
		return "", fmt.Errorf("convert html: %w", err)
	}
	return strings.TrimSpace(markdown), nil
}

// anthropicPrompt has no context support in the client library; ctx is
// honored by abandoning the call.
func (s *Service) anthropicPrompt(ctx context.Context, system, user string) (string, error) {
	type result struct {
		text string
		err  error
	}
	done := make(chan result, 1)
	go func() {
		settings := types.RequestSettings{
			Model:       s.cfg.Model,
			MaxTokens:   s.cfg.MaxTokens,
			Temperature: s.cfg.Temperature,
		}
		resp, err := anthropic.PromptWithSettings(system, user, "", s.cfg.APIKey, settings)
		if err != nil {
			done <- result{err: err}
			return
		}
		if len(resp.Content) == 0 {
			done <- result{err: ErrEmptyResponse}
			return
		}
		done <- result{text: resp.Content[0].Text}
	}()
	select {
	case r := <-done:
		return r.text, r.err
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
