package fanout

import (
	"context"
	"fmt"
	"time"

	"crosspost/internal/article"
)

// Status labels an outcome in logs and metrics.
type Status string

const (
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
	// StatusSkipped is a success recorded by an earlier run in the ledger.
	StatusSkipped Status = "skipped"
)

// PostOutcome is the result of one (article, destination) attempt.
type PostOutcome struct {
	Destination string
	Status      Status
	Err         error
	Elapsed     time.Duration
}

// Succeeded is true for posted and for ledger-skipped outcomes.
func (o PostOutcome) Succeeded() bool { return o.Status != StatusFailed }

// ArticleResult aggregates the outcomes of one article.
type ArticleResult struct {
	Article  article.Article
	Posted   bool
	Outcomes []PostOutcome
	// MarkErr is set when the posted flag could not be persisted.
	MarkErr error
}

// Failures returns the failed outcomes.
func (r ArticleResult) Failures() []PostOutcome {
	var out []PostOutcome
	for _, o := range r.Outcomes {
		if !o.Succeeded() {
			out = append(out, o)
		}
	}
	return out
}

// PostError wraps a destination failure with the article it concerned.
type PostError struct {
	Destination string
	ArticleID   string
	Err         error
}

func (e *PostError) Error() string {
	return fmt.Sprintf("post %s to %s: %v", e.ArticleID, e.Destination, e.Err)
}

func (e *PostError) Unwrap() error { return e.Err }

// Marker persists the posted flag on the source.
type Marker interface {
	MarkArticleAsPosted(ctx context.Context, id string) error
}

// Ledger remembers which (article, destination) pairs already went out.
type Ledger interface {
	HasPost(ctx context.Context, articleID, destination string) (bool, error)
	PutPost(ctx context.Context, articleID, destination string, at time.Time) error
}

// Observer receives one call per settled outcome.
type Observer interface {
	ObservePost(destination string, status Status, elapsed time.Duration)
}
