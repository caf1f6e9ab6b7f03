// Package bluesky posts articles to a Bluesky account over XRPC.
//
// The session is created once in New; PostArticle reuses its access token.
package bluesky

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strings"
	"time"

	"crosspost/internal/article"
)

const (
	Name           = "bluesky"
	DefaultService = "https://bsky.social"

	postCollection = "app.bsky.feed.post"
	linkFeature    = "app.bsky.richtext.facet#link"
	maxErrorBody   = 64 << 10
)

var ErrMissingCredentials = errors.New("bluesky: identifier and password are required")

type Config struct {
	Service    string
	Identifier string
	Password   string
	HTTPClient *http.Client
	Now        func() time.Time
}

// APIError is a non-2xx XRPC response.
type APIError struct {
	Method  string
	Status  int
	Code    string
	Message string
}

func (e *APIError) Error() string {
	msg := e.Message
	if msg == "" {
		msg = e.Code
	}
	if msg == "" {
		msg = http.StatusText(e.Status)
	}
	return fmt.Sprintf("bluesky %s: status %d: %s", e.Method, e.Status, msg)
}

type session struct {
	AccessJwt string `json:"accessJwt"`
	DID       string `json:"did"`
	Handle    string `json:"handle"`
}

type Poster struct {
	cfg  Config
	hc   *http.Client
	sess session
}

// New logs in and returns a ready poster.
func New(ctx context.Context, cfg Config) (*Poster, error) {
	if strings.TrimSpace(cfg.Identifier) == "" || cfg.Password == "" {
		return nil, ErrMissingCredentials
	}
	if cfg.Service == "" {
		cfg.Service = DefaultService
	}
	cfg.Service = strings.TrimRight(cfg.Service, "/")
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	hc := cfg.HTTPClient
	if hc == nil {
		hc = &http.Client{Timeout: 20 * time.Second}
	}
	p := &Poster{cfg: cfg, hc: hc}

	in := map[string]string{"identifier": cfg.Identifier, "password": cfg.Password}
	if err := p.xrpc(ctx, "com.atproto.server.createSession", "", in, &p.sess); err != nil {
		return nil, fmt.Errorf("bluesky login: %w", err)
	}
	if p.sess.AccessJwt == "" || p.sess.DID == "" {
		return nil, errors.New("bluesky login: empty session")
	}
	return p, nil
}

func (p *Poster) Name() string { return Name }

// Handle returns the account handle of the session.
func (p *Poster) Handle() string { return p.sess.Handle }

func (p *Poster) PostArticle(ctx context.Context, a article.Article) error {
	text := article.BuildText(a)
	record := postRecord{
		Type:      postCollection,
		Text:      text,
		CreatedAt: p.cfg.Now().UTC().Format(time.RFC3339Nano),
		Facets:    DetectLinks(text),
	}
	in := createRecordInput{Repo: p.sess.DID, Collection: postCollection, Record: record}
	var out struct {
		URI string `json:"uri"`
		CID string `json:"cid"`
	}
	return p.xrpc(ctx, "com.atproto.repo.createRecord", p.sess.AccessJwt, in, &out)
}

func (p *Poster) xrpc(ctx context.Context, method, token string, in, out any) error {
	body, err := json.Marshal(in)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.cfg.Service+"/xrpc/"+method, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := p.hc.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := &APIError{Method: method, Status: resp.StatusCode}
		var xe struct {
			Error   string `json:"error"`
			Message string `json:"message"`
		}
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		if json.Unmarshal(raw, &xe) == nil {
			apiErr.Code, apiErr.Message = xe.Error, xe.Message
		}
		return apiErr
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("bluesky %s: decode: %w", method, err)
	}
	return nil
}

type createRecordInput struct {
	Repo       string     `json:"repo"`
	Collection string     `json:"collection"`
	Record     postRecord `json:"record"`
}

type postRecord struct {
	Type      string  `json:"$type"`
	Text      string  `json:"text"`
	CreatedAt string  `json:"createdAt"`
	Facets    []Facet `json:"facets,omitempty"`
}

type Facet struct {
	Index    ByteSlice `json:"index"`
	Features []Feature `json:"features"`
}

// ByteSlice addresses text by UTF-8 byte offsets, end exclusive.
type ByteSlice struct {
	ByteStart int `json:"byteStart"`
	ByteEnd   int `json:"byteEnd"`
}

type Feature struct {
	Type string `json:"$type"`
	URI  string `json:"uri"`
}

var linkPattern = regexp.MustCompile(`https?://[^\s]+`)

// DetectLinks returns a link facet for every http(s) URL in text.
func DetectLinks(text string) []Facet {
	locs := linkPattern.FindAllStringIndex(text, -1)
	if len(locs) == 0 {
		return nil
	}
	facets := make([]Facet, 0, len(locs))
	for _, loc := range locs {
		start, end := loc[0], loc[1]
		// Trailing sentence punctuation is not part of the link.
		for end > start && strings.ContainsRune(".,;:!?)]'\"", rune(text[end-1])) {
			end--
		}
		facets = append(facets, Facet{
			Index:    ByteSlice{ByteStart: start, ByteEnd: end},
			Features: []Feature{{Type: linkFeature, URI: text[start:end]}},
		})
	}
	return facets
}
