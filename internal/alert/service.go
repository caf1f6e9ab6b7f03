package alert

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"math/rand"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"crosspost/internal/eventbus"
	"crosspost/internal/runner"
	"crosspost/internal/runtime/supervisor"
	"crosspost/pkg/logx"
)

var (
	ErrDisabled  = errors.New("alerts disabled")
	ErrQueueFull = errors.New("alert queue full")
	ErrStopped   = errors.New("alert service stopped")
)

type job struct {
	text string
	key  string
}

// Service is safe for concurrent use.
type Service struct {
	mu sync.Mutex

	log    logx.Logger
	bus    eventbus.Bus
	sender Sender

	cfg     Config
	limiter *rate.Limiter

	accepting bool
	sendWG    sync.WaitGroup
	queue     chan job
	drained   chan struct{}
	sup       *supervisor.Supervisor

	dmu   sync.Mutex
	dedup map[string]time.Time

	hmu     sync.Mutex
	history []HistoryItem
}

func New(cfg Config, sender Sender, log logx.Logger, bus eventbus.Bus) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	s := &Service{
		log:   log.With(logx.String("comp", "alert")),
		bus:   bus,
		dedup: map[string]time.Time{},
	}
	s.Apply(cfg, sender)
	return s
}

func (s *Service) Enabled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cfg.Enabled && s.sender != nil
}

// Apply swaps config and sender. Enabling or disabling a running service
// is the caller's job (Start/Stop).
func (s *Service) Apply(cfg Config, sender Sender) {
	cfg = cfg.withDefaults()
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cfg = cfg
	s.sender = sender
	burst := max(1, int(cfg.RatePerSec))
	s.limiter = rate.NewLimiter(rate.Limit(cfg.RatePerSec), burst)
}

// Start launches the worker and the run listener. It is a no-op when
// already running or disabled.
func (s *Service) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.queue != nil || !s.cfg.Enabled || s.sender == nil {
		return
	}
	q := make(chan job, s.cfg.QueueSize)
	drained := make(chan struct{})
	s.queue, s.drained = q, drained
	s.accepting = true
	s.sup = supervisor.New(ctx,
		supervisor.WithLogger(s.log),
		// Alerts are best-effort and must not take the app down.
		supervisor.WithCancelOnError(false),
	)
	s.sup.GoRestart("alert.worker", func(c context.Context) error {
		if s.workerLoop(c, q) {
			close(drained)
		}
		return nil
	})
	if s.bus != nil {
		events, unsub := s.bus.Subscribe(16)
		s.sup.Go("alert.runs", func(c context.Context) error {
			defer unsub()
			s.watchRuns(c, events)
			return nil
		})
	}
	s.log.Info("alerts enabled")
}

// Stop stops intake and drains queued alerts until ctx is done.
func (s *Service) Stop(ctx context.Context) {
	s.mu.Lock()
	q, drained, sup := s.queue, s.drained, s.sup
	if q == nil {
		s.mu.Unlock()
		return
	}
	s.accepting = false
	s.queue, s.drained, s.sup = nil, nil, nil
	s.mu.Unlock()

	go func() {
		// In-flight Notify calls finish before the queue closes.
		s.sendWG.Wait()
		close(q)
	}()
	select {
	case <-drained:
	case <-sup.Context().Done():
	case <-ctx.Done():
	}
	_ = sup.Stop(ctx)
	s.log.Info("alerts stopped")
}

// Notify queues a. Duplicates inside the dedup window are dropped silently.
func (s *Service) Notify(ctx context.Context, a Alert) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	if !s.cfg.Enabled {
		s.mu.Unlock()
		return ErrDisabled
	}
	if !s.accepting || s.queue == nil {
		s.mu.Unlock()
		return ErrStopped
	}
	q := s.queue
	window, maxEntries := s.cfg.DedupWindow, s.cfg.DedupMaxEntries
	s.sendWG.Add(1)
	s.mu.Unlock()
	defer s.sendWG.Done()

	text := strings.TrimSpace(a.Text)
	if text == "" {
		return nil
	}
	key := a.Key
	if key == "" {
		key = dedupKey(a.Level, text)
	}
	if window > 0 && !s.dedupAllow(key, window, maxEntries) {
		s.log.Debug("alert deduplicated", logx.String("key", key))
		return nil
	}

	select {
	case q <- job{text: a.Level.prefix() + text, key: key}:
		return nil
	default:
		s.log.Warn("alert dropped", logx.Err(ErrQueueFull))
		return ErrQueueFull
	}
}

// Snapshot returns recent alerts, oldest first.
func (s *Service) Snapshot() []HistoryItem {
	s.hmu.Lock()
	defer s.hmu.Unlock()
	return append([]HistoryItem(nil), s.history...)
}

func (s *Service) appendHistory(item HistoryItem) {
	s.hmu.Lock()
	s.history = append(s.history, item)
	if len(s.history) > 100 {
		s.history = s.history[len(s.history)-100:]
	}
	s.hmu.Unlock()
}

func (s *Service) watchRuns(ctx context.Context, events <-chan eventbus.Event) {
	for {
		select {
		case <-ctx.Done():
			return
		case e, ok := <-events:
			if !ok {
				return
			}
			if e.Type != eventbus.RunFinished {
				continue
			}
			rep, ok := e.Data.(runner.Report)
			if !ok {
				continue
			}
			s.mu.Lock()
			onUnposted := s.cfg.OnUnposted
			s.mu.Unlock()
			if a, ok := FromReport(rep, onUnposted); ok {
				if err := s.Notify(ctx, a); err != nil && !errors.Is(err, ErrStopped) {
					s.log.Warn("run alert not queued", logx.String("run_id", rep.RunID), logx.Err(err))
				}
			}
		}
	}
}

// workerLoop reports true once q is closed and empty.
func (s *Service) workerLoop(ctx context.Context, q <-chan job) bool {
	for {
		select {
		case <-ctx.Done():
			return false
		case j, ok := <-q:
			if !ok {
				return true
			}
			s.sendWithRetry(ctx, j)
		}
	}
}

func (s *Service) sendWithRetry(ctx context.Context, j job) {
	s.mu.Lock()
	cfg, lim, sender := s.cfg, s.limiter, s.sender
	s.mu.Unlock()
	if sender == nil {
		return
	}

	attempts := 1 + cfg.RetryMax
	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if err := lim.Wait(ctx); err != nil {
			return
		}
		callCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		err := sender.SendText(callCtx, j.text)
		cancel()
		if err == nil {
			s.appendHistory(HistoryItem{At: time.Now(), Text: j.text})
			return
		}
		lastErr = err
		s.log.Debug("alert send failed", logx.Err(err), logx.Int("attempt", attempt), logx.Int("max", attempts))
		if attempt == attempts {
			break
		}
		t := time.NewTimer(retryDelay(cfg, attempt))
		select {
		case <-t.C:
		case <-ctx.Done():
			t.Stop()
			return
		}
	}
	s.appendHistory(HistoryItem{At: time.Now(), Text: j.text, Err: lastErr.Error()})
	s.log.Warn("alert not delivered", logx.String("key", j.key), logx.Err(lastErr), logx.Int("attempts", attempts))
}

func dedupKey(l Level, text string) string {
	h := fnv.New64a()
	_, _ = fmt.Fprintf(h, "%d|%s", l, text)
	return fmt.Sprintf("%x", h.Sum64())
}

func (s *Service) dedupAllow(key string, window time.Duration, maxEntries int) bool {
	now := time.Now()
	s.dmu.Lock()
	defer s.dmu.Unlock()
	if until, ok := s.dedup[key]; ok && now.Before(until) {
		return false
	}
	s.dedup[key] = now.Add(window)

	for k, until := range s.dedup {
		if !now.Before(until) {
			delete(s.dedup, k)
		}
	}
	// Evict the soonest-expiring entries past the cap.
	for len(s.dedup) > maxEntries {
		var (
			oldest  string
			oldestT time.Time
		)
		for k, t := range s.dedup {
			if oldest == "" || t.Before(oldestT) {
				oldest, oldestT = k, t
			}
		}
		delete(s.dedup, oldest)
	}
	return true
}

// retryDelay is the wait before attempt+1: base * 2^(attempt-1), capped,
// with 0.7..1.3 jitter.
func retryDelay(cfg Config, attempt int) time.Duration {
	d := cfg.RetryBase
	for i := 1; i < attempt && d < cfg.RetryMaxDelay; i++ {
		d *= 2
	}
	d = min(d, cfg.RetryMaxDelay)
	j := 0.7 + rand.Float64()*0.6
	return min(time.Duration(float64(d)*j), cfg.RetryMaxDelay)
}
