// Package fanout publishes articles to every destination of a run and
// decides which articles count as posted.
//
// Each article is offered to all posters concurrently. The article is posted
// when at least one destination succeeded; only then is the posted flag
// persisted. Articles are handled one after another in input order.
package fanout

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"time"

	"golang.org/x/sync/errgroup"

	"crosspost/internal/article"
	"crosspost/internal/poster"
	"crosspost/pkg/logx"
)

const DefaultPosterTimeout = 30 * time.Second

// ErrPanic marks outcomes of posters that panicked.
var ErrPanic = errors.New("poster panicked")

type Options struct {
	Marker Marker
	// Ledger is optional; nil disables duplicate protection.
	Ledger   Ledger
	Observer Observer
	Log      logx.Logger

	// PosterTimeout bounds a single PostArticle call. Zero means the default.
	PosterTimeout time.Duration

	Now func() time.Time
}

type Orchestrator struct {
	opts Options
	log  logx.Logger
}

func New(opts Options) *Orchestrator {
	if opts.PosterTimeout <= 0 {
		opts.PosterTimeout = DefaultPosterTimeout
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	log := opts.Log
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Orchestrator{opts: opts, log: log.With(logx.String("comp", "fanout"))}
}

// Run posts articles to posters and returns one result per handled article,
// in input order. It never returns early because of a poster failure.
func (o *Orchestrator) Run(ctx context.Context, articles []article.Article, posters poster.Set) []ArticleResult {
	results := make([]ArticleResult, 0, len(articles))
	if posters.Empty() {
		o.log.Warn("no destinations; nothing posted", logx.Int("articles", len(articles)))
		for _, a := range articles {
			results = append(results, ArticleResult{Article: a})
		}
		return results
	}

	for i, a := range articles {
		if err := ctx.Err(); err != nil {
			o.log.Warn("run cancelled", logx.Int("remaining", len(articles)-i), logx.Err(err))
			for _, rest := range articles[i:] {
				results = append(results, ArticleResult{Article: rest})
			}
			break
		}
		results = append(results, o.processArticle(ctx, a, posters))
	}
	return results
}

func (o *Orchestrator) processArticle(ctx context.Context, a article.Article, posters poster.Set) ArticleResult {
	log := o.log.With(logx.String("article", a.ID))
	outcomes := make([]PostOutcome, posters.Len())

	var g errgroup.Group
	for i := 0; i < posters.Len(); i++ {
		p := posters.At(i)
		g.Go(func() error {
			outcomes[i] = o.attempt(ctx, a, p)
			return nil
		})
	}
	_ = g.Wait()

	res := ArticleResult{Article: a, Outcomes: outcomes}
	for _, oc := range outcomes {
		switch oc.Status {
		case StatusFailed:
			log.Warn("post failed", logx.String("destination", oc.Destination), logx.Err(oc.Err))
		case StatusSkipped:
			log.Info("already posted; skipped", logx.String("destination", oc.Destination))
			res.Posted = true
		default:
			log.Debug("posted", logx.String("destination", oc.Destination), logx.Duration("took", oc.Elapsed))
			res.Posted = true
		}
		if o.opts.Observer != nil {
			o.opts.Observer.ObservePost(oc.Destination, oc.Status, oc.Elapsed)
		}
	}

	if !res.Posted {
		log.Warn("article not posted to any destination", logx.Int("destinations", len(outcomes)))
		return res
	}

	if o.opts.Marker != nil {
		if err := o.opts.Marker.MarkArticleAsPosted(ctx, a.ID); err != nil {
			res.MarkErr = err
			log.Error("mark as posted failed", logx.Err(err))
			return res
		}
	}
	log.Info("article posted", logx.String("title", a.Title))
	return res
}

// attempt performs one poster call. Ledger hits short-circuit as skipped,
// errors and panics become failed outcomes and successes are recorded.
func (o *Orchestrator) attempt(ctx context.Context, a article.Article, p poster.Poster) PostOutcome {
	name := p.Name()
	oc := PostOutcome{Destination: name}

	if o.opts.Ledger != nil {
		done, err := o.opts.Ledger.HasPost(ctx, a.ID, name)
		if err != nil {
			o.log.Warn("ledger lookup failed", logx.String("article", a.ID), logx.String("destination", name), logx.Err(err))
		} else if done {
			oc.Status = StatusSkipped
			return oc
		}
	}

	start := time.Now()
	err := o.call(ctx, a, p)
	oc.Elapsed = time.Since(start)
	if err != nil {
		oc.Status = StatusFailed
		oc.Err = &PostError{Destination: name, ArticleID: a.ID, Err: err}
		return oc
	}
	oc.Status = StatusSucceeded

	if o.opts.Ledger != nil {
		if err := o.opts.Ledger.PutPost(ctx, a.ID, name, o.opts.Now()); err != nil {
			o.log.Warn("ledger write failed", logx.String("article", a.ID), logx.String("destination", name), logx.Err(err))
		}
	}
	return oc
}

// call runs PostArticle under the per-poster timeout. A poster that ignores
// its context is abandoned once the deadline passes.
func (o *Orchestrator) call(ctx context.Context, a article.Article, p poster.Poster) error {
	cctx, cancel := context.WithTimeout(ctx, o.opts.PosterTimeout)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				o.log.Error("poster panic", logx.String("destination", p.Name()), logx.Any("panic", r), logx.String("stack", string(debug.Stack())))
				done <- fmt.Errorf("%w: %v", ErrPanic, r)
			}
		}()
		done <- p.PostArticle(cctx, a)
	}()

	select {
	case err := <-done:
		return err
	case <-cctx.Done():
		select {
		case err := <-done:
			return err
		default:
		}
		return fmt.Errorf("%s: %w", p.Name(), cctx.Err())
	}
}
