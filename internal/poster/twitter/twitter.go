// Package twitter posts articles to X (Twitter) with the v2 tweets endpoint
// and OAuth 1.0a user-context signing.
package twitter

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"crosspost/internal/article"
)

const (
	Name            = "twitter"
	DefaultEndpoint = "https://api.twitter.com/2/tweets"
	maxErrorBody    = 64 << 10
)

var ErrMissingCredentials = errors.New("twitter: consumer key/secret and access token/secret are required")

type Config struct {
	Credentials
	Endpoint   string
	HTTPClient *http.Client
}

// APIError is a non-2xx response of the tweets endpoint.
type APIError struct {
	Status int
	Title  string
	Detail string
}

func (e *APIError) Error() string {
	msg := e.Detail
	if msg == "" {
		msg = e.Title
	}
	if msg == "" {
		msg = http.StatusText(e.Status)
	}
	return fmt.Sprintf("twitter: status %d: %s", e.Status, msg)
}

type Poster struct {
	endpoint string
	hc       *http.Client
	signer   Signer
}

func New(cfg Config) (*Poster, error) {
	if !cfg.Credentials.complete() {
		return nil, ErrMissingCredentials
	}
	if cfg.Endpoint == "" {
		cfg.Endpoint = DefaultEndpoint
	}
	hc := cfg.HTTPClient
	if hc == nil {
		hc = &http.Client{Timeout: 20 * time.Second}
	}
	return &Poster{endpoint: cfg.Endpoint, hc: hc, signer: Signer{Creds: cfg.Credentials}}, nil
}

func (p *Poster) Name() string { return Name }

func (p *Poster) PostArticle(ctx context.Context, a article.Article) error {
	body, err := json.Marshal(map[string]string{"text": article.BuildText(a)})
	if err != nil {
		return err
	}
	auth, err := p.signer.Authorization(http.MethodPost, p.endpoint, nil)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", auth)
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.hc.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := &APIError{Status: resp.StatusCode}
		var eb struct {
			Title  string `json:"title"`
			Detail string `json:"detail"`
		}
		if json.Unmarshal(raw, &eb) == nil {
			apiErr.Title, apiErr.Detail = eb.Title, eb.Detail
		}
		return apiErr
	}
	return nil
}
