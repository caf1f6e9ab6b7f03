// Package runner executes one cross-posting run: read the unposted articles,
// optionally summarize them, publish through the fan-out orchestrator and
// record the outcome.
//
// Runs are serialized. Every trigger (schedule, webhook, manual endpoint,
// CLI) goes through Runner.Run.
package runner

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"crosspost/internal/article"
	"crosspost/internal/config"
	"crosspost/internal/eventbus"
	"crosspost/internal/fanout"
	"crosspost/internal/metrics"
	"crosspost/internal/notion"
	"crosspost/internal/storage"
	"crosspost/internal/summary"
	"crosspost/pkg/logx"
)

var (
	ErrNoDestinations      = errors.New("no destinations configured")
	ErrSourceNotConfigured = errors.New("article source not configured")
	ErrSourceRead          = errors.New("read unposted articles")
	ErrRunInProgress       = errors.New("run already in progress")
)

type Trigger string

const (
	TriggerSchedule Trigger = "schedule"
	TriggerWebhook  Trigger = "webhook"
	TriggerManual   Trigger = "manual"
	TriggerCLI      Trigger = "cli"
)

// Summarizer produces the text stored as an article's AI summary.
type Summarizer interface {
	Summarize(ctx context.Context, a article.Article) (string, error)
}

type SourceFactory func(cfg *config.Config, log logx.Logger) (article.Source, error)

// SummarizerFactory returns nil when summaries are disabled.
type SummarizerFactory func(cfg *config.Config, log logx.Logger) (Summarizer, error)

type Options struct {
	// Config returns the current configuration; it is read once per run.
	Config func() *config.Config

	Store   storage.Store
	Bus     eventbus.Bus
	Metrics *metrics.Metrics
	Log     logx.Logger

	NewSource     SourceFactory
	NewPosters    PosterFactory
	NewSummarizer SummarizerFactory
}

type Runner struct {
	mu   sync.Mutex
	opts Options
	log  logx.Logger

	lastMu sync.RWMutex
	last   *Report
}

func New(opts Options) *Runner {
	if opts.NewSource == nil {
		opts.NewSource = NotionSource
	}
	if opts.NewPosters == nil {
		opts.NewPosters = BuildPosters
	}
	if opts.NewSummarizer == nil {
		opts.NewSummarizer = AnthropicSummarizer
	}
	log := opts.Log
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Runner{opts: opts, log: log.With(logx.String("comp", "runner"))}
}

// Run performs one run. It returns ErrRunInProgress without doing anything
// when another run holds the lock. Per-destination failures never surface
// as an error; they are counted in the report.
func (r *Runner) Run(ctx context.Context, trigger Trigger) (Report, error) {
	if !r.mu.TryLock() {
		r.opts.Metrics.RecordRun(string(trigger), "busy", 0, 0, 0, 0)
		r.log.Info("run skipped; another run in progress", logx.String("trigger", string(trigger)))
		return Report{}, ErrRunInProgress
	}
	defer r.mu.Unlock()
	r.opts.Metrics.SetRunning(true)
	defer r.opts.Metrics.SetRunning(false)

	rep := Report{RunID: uuid.NewString(), Trigger: trigger, StartedAt: time.Now()}
	log := r.log.With(logx.String("run_id", rep.RunID), logx.String("trigger", string(trigger)))
	r.publish(eventbus.RunStarted, rep)
	log.Info("run started")

	err := r.run(ctx, log, &rep)
	rep.Took = time.Since(rep.StartedAt)
	if err != nil {
		rep.Err = err.Error()
	}
	r.finish(ctx, log, rep, err)
	return rep, err
}

func (r *Runner) run(ctx context.Context, log logx.Logger, rep *Report) error {
	cfg := r.currentConfig()

	posters, configured := r.opts.NewPosters(ctx, cfg, log)
	if configured == 0 {
		return ErrNoDestinations
	}
	rep.Destinations = posters.Names()

	src, err := r.opts.NewSource(cfg, log)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrSourceNotConfigured, err)
	}

	articles, err := src.GetUnpostedArticles(ctx)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrSourceRead, err)
	}
	if limit := cfg.Run.MaxArticlesPerRun; limit > 0 && len(articles) > limit {
		log.Info("article cap reached", logx.Int("cap", limit), logx.Int("deferred", len(articles)-limit))
		articles = articles[:limit]
	}
	if len(articles) == 0 {
		log.Info("no unposted articles")
		return nil
	}

	r.summarize(ctx, log, cfg, src, articles)

	orch := fanout.New(fanout.Options{
		Marker:        src,
		Ledger:        r.ledger(),
		Observer:      r.observer(),
		Log:           log,
		PosterTimeout: config.DurationOr(cfg.Run.PosterTimeout, fanout.DefaultPosterTimeout),
	})
	rep.add(orch.Run(ctx, articles, posters))
	return nil
}

// summarize stores an AI summary for each article when both a summarizer
// and a summary-capable source are available. Failures only log.
func (r *Runner) summarize(ctx context.Context, log logx.Logger, cfg *config.Config, src article.Source, articles []article.Article) {
	store, ok := src.(article.Summarizable)
	if !ok {
		return
	}
	sum, err := r.opts.NewSummarizer(cfg, log)
	if err != nil {
		log.Warn("summarizer unavailable", logx.Err(err))
		return
	}
	if sum == nil {
		return
	}
	for _, a := range articles {
		if ctx.Err() != nil {
			return
		}
		text, err := sum.Summarize(ctx, a)
		if err != nil {
			log.Warn("summary failed", logx.String("article", a.ID), logx.Err(err))
			continue
		}
		if err := store.UpdateArticleSummary(ctx, a.ID, text); err != nil {
			log.Warn("summary not saved", logx.String("article", a.ID), logx.Err(err))
		}
	}
}

func (r *Runner) finish(ctx context.Context, log logx.Logger, rep Report, err error) {
	result := "ok"
	if err != nil {
		result = "error"
		log.Error("run failed", logx.Err(err), logx.Duration("took", rep.Took))
	} else {
		log.Info("run finished",
			logx.Int("articles", rep.Articles),
			logx.Int("posted", rep.Posted),
			logx.Int("unposted", rep.Unposted),
			logx.Int("mark_failed", rep.MarkFailed),
			logx.Strings("destinations", rep.Destinations),
			logx.Duration("took", rep.Took),
		)
	}
	// Metric results are disjoint; mark failures are not also counted as posted.
	r.opts.Metrics.RecordRun(string(rep.Trigger), result, rep.Took, rep.Posted-rep.MarkFailed, rep.Unposted, rep.MarkFailed)

	if r.opts.Store != nil {
		// Recorded even when the run context is already cancelled.
		sctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		if serr := r.opts.Store.AppendRun(sctx, rep.Record()); serr != nil {
			log.Warn("run history not saved", logx.Err(serr))
		}
		cancel()
	}

	r.lastMu.Lock()
	r.last = &rep
	r.lastMu.Unlock()
	r.publish(eventbus.RunFinished, rep)
}

// Last returns the most recent finished run, if any.
func (r *Runner) Last() (Report, bool) {
	r.lastMu.RLock()
	defer r.lastMu.RUnlock()
	if r.last == nil {
		return Report{}, false
	}
	return *r.last, true
}

func (r *Runner) currentConfig() *config.Config {
	if r.opts.Config != nil {
		if cfg := r.opts.Config(); cfg != nil {
			return cfg
		}
	}
	return &config.Config{}
}

func (r *Runner) ledger() fanout.Ledger {
	if r.opts.Store == nil {
		return nil
	}
	return r.opts.Store
}

func (r *Runner) observer() fanout.Observer {
	if r.opts.Metrics == nil {
		return nil
	}
	return r.opts.Metrics
}

func (r *Runner) publish(kind string, rep Report) {
	if r.opts.Bus == nil {
		return
	}
	rep.Results = nil
	r.opts.Bus.Publish(eventbus.Event{Type: kind, Data: rep})
}

// NotionSource is the default SourceFactory.
func NotionSource(cfg *config.Config, log logx.Logger) (article.Source, error) {
	c := cfg.Notion
	return notion.New(notion.Config{
		APIKey:          c.APIKey,
		DatabaseID:      c.DatabaseID,
		BaseURL:         strings.TrimSpace(c.BaseURL),
		Timeout:         config.DurationOr(c.Timeout, 30*time.Second),
		TitleProperty:   c.TitleProperty,
		URLProperty:     c.URLProperty,
		PostedProperty:  c.PostedProperty,
		SummaryProperty: c.SummaryProperty,
	}, log)
}

// AnthropicSummarizer is the default SummarizerFactory.
func AnthropicSummarizer(cfg *config.Config, log logx.Logger) (Summarizer, error) {
	c := cfg.Summary
	if !c.Enabled {
		return nil, nil
	}
	s, err := summary.New(summary.Config{
		APIKey:          c.APIKey,
		Model:           c.Model,
		MaxTokens:       c.MaxTokens,
		Temperature:     c.Temperature,
		Language:        c.Language,
		ContentMaxChars: c.ContentMaxChars,
		FetchTimeout:    config.DurationOr(c.FetchTimeout, 0),
	}, log)
	if err != nil {
		return nil, err
	}
	return s, nil
}
