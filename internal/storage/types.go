package storage

import (
	"errors"
	"time"
)

var (
	ErrDisabled = errors.New("storage disabled")
	ErrClosed   = errors.New("storage closed")
)

// Config configures storage.
//
// Driver values:
//   - "file": JSON Lines journals next to Path
//   - "sqlite": SQLite database at Path
//
// If Driver is empty or "none", storage is disabled.
type Config struct {
	Driver      string
	Path        string
	BusyTimeout time.Duration // sqlite only; 0 means default
}

// PostRecord marks one article as delivered to one destination.
type PostRecord struct {
	ArticleID   string    `json:"article_id"`
	Destination string    `json:"destination"`
	PostedAt    time.Time `json:"posted_at"`
}

func postKey(articleID, destination string) string {
	return articleID + "|" + destination
}

// RunRecord summarizes a finished run.
type RunRecord struct {
	RunID     string    `json:"run_id"`
	Trigger   string    `json:"trigger"`
	StartedAt time.Time `json:"started_at"`
	TookMS    int64     `json:"took_ms"`
	Articles  int       `json:"articles"`
	Posted    int       `json:"posted"`
	Failed    int       `json:"failed"`
	Error     string    `json:"error,omitempty"`
}
