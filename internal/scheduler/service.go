package scheduler

import (
	"context"
	"errors"
	"math/rand"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"crosspost/pkg/logx"
)

type Config struct {
	Enabled  bool
	Spec     string
	Timezone string // IANA TZ, e.g. "Asia/Tokyo"
	// Timeout bounds one triggered job; 0 means no limit beyond the service context.
	Timeout time.Duration
	// StartupSpread delays the first interval activation by a random jitter.
	StartupSpread bool
}

// Job is invoked on every activation.
type Job func(ctx context.Context) error

// ErrSkipped can be returned by a Job to report a benign skip (e.g. overlap).
var ErrSkipped = errors.New("scheduled run skipped")

type Service struct {
	mu sync.Mutex

	log logx.Logger
	cfg Config
	job Job
	rng *rand.Rand

	c       *cron.Cron
	loc     *time.Location
	entry   cron.EntryID
	baseCtx context.Context
	cancel  context.CancelFunc
}

func New(cfg Config, job Job, log logx.Logger) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Service{
		cfg: cfg,
		job: job,
		log: log.With(logx.String("comp", "scheduler")),
		rng: rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// Start begins triggering. It is a no-op when already started; a disabled
// service starts idle and can be enabled later through Apply.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.baseCtx != nil {
		return nil
	}
	s.baseCtx, s.cancel = context.WithCancel(ctx)
	return s.startLocked()
}

func (s *Service) startLocked() error {
	if !s.cfg.Enabled {
		s.log.Info("scheduler disabled")
		return nil
	}
	ps, err := ParseSchedule(s.cfg.Spec)
	if err != nil {
		return err
	}
	s.loc = s.loadLocationLocked()
	s.c = cron.New(
		cron.WithParser(cronParser),
		cron.WithLocation(s.loc),
		cron.WithChain(cron.Recover(cronLogger{s.log}), cron.SkipIfStillRunning(cronLogger{s.log})),
	)

	job := cron.FuncJob(s.fire)
	if ps.Kind == SpecInterval && s.cfg.StartupSpread {
		sched, jitter := intervalWithSpread(ps.Every, time.Now().In(s.loc), s.rng)
		s.entry = s.c.Schedule(sched, job)
		s.log.Debug("startup spread applied", logx.Duration("jitter", jitter))
	} else {
		s.entry, err = s.c.AddJob(ps.CronSpec(), job)
		if err != nil {
			s.c = nil
			return err
		}
	}
	s.c.Start()
	s.log.Info("scheduler started",
		logx.String("spec", ps.CronSpec()),
		logx.String("kind", ps.Kind.String()),
		logx.String("tz", s.loc.String()),
		logx.Time("next", s.c.Entry(s.entry).Next),
	)
	return nil
}

func (s *Service) fire() {
	s.mu.Lock()
	base := s.baseCtx
	timeout := s.cfg.Timeout
	s.mu.Unlock()
	if base == nil {
		base = context.Background()
	}
	ctx := base
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(base, timeout)
		defer cancel()
	}

	start := time.Now()
	err := s.job(ctx)
	switch {
	case err == nil:
		s.log.Debug("scheduled run done", logx.Duration("took", time.Since(start)))
	case errors.Is(err, ErrSkipped):
		s.log.Info("scheduled run skipped", logx.Err(err))
	default:
		s.log.Error("scheduled run failed", logx.Err(err), logx.Duration("took", time.Since(start)))
	}
}

// Apply swaps the config; the cron instance is rebuilt when the spec,
// timezone or enabled flag changed.
func (s *Service) Apply(cfg Config) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	old := s.cfg
	s.cfg = cfg
	if s.baseCtx == nil {
		return nil
	}
	if old.Enabled == cfg.Enabled &&
		strings.TrimSpace(old.Spec) == strings.TrimSpace(cfg.Spec) &&
		strings.TrimSpace(old.Timezone) == strings.TrimSpace(cfg.Timezone) &&
		old.StartupSpread == cfg.StartupSpread {
		return nil
	}
	s.stopCronLocked()
	if err := s.startLocked(); err != nil {
		s.log.Error("scheduler restart failed", logx.Err(err))
		return err
	}
	return nil
}

// Next reports the next activation, zero when not scheduled.
func (s *Service) Next() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.c == nil {
		return time.Time{}
	}
	return s.c.Entry(s.entry).Next
}

// Stop stops triggering and waits for a running job up to ctx.
func (s *Service) Stop(ctx context.Context) {
	s.mu.Lock()
	c := s.c
	s.c = nil
	if s.cancel != nil {
		s.cancel()
	}
	s.baseCtx = nil
	s.mu.Unlock()

	if c == nil {
		return
	}
	select {
	case <-c.Stop().Done():
	case <-ctx.Done():
	}
	s.log.Info("scheduler stopped")
}

func (s *Service) stopCronLocked() {
	if s.c == nil {
		return
	}
	// Running jobs finish on their own; do not wait while holding the lock.
	s.c.Stop()
	s.c = nil
}

func (s *Service) loadLocationLocked() *time.Location {
	tz := strings.TrimSpace(s.cfg.Timezone)
	if tz == "" {
		return time.Local
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		s.log.Warn("invalid timezone; falling back to Local", logx.String("tz", tz), logx.Err(err))
		return time.Local
	}
	return loc
}

// cronLogger routes robfig/cron's internal logging into logx.
type cronLogger struct{ log logx.Logger }

func (l cronLogger) Info(msg string, kv ...any) {
	l.log.Debug("cron: "+msg, logx.Any("kv", kv))
}

func (l cronLogger) Error(err error, msg string, kv ...any) {
	l.log.Error("cron: "+msg, logx.Err(err), logx.Any("kv", kv))
}
