// Package server exposes the HTTP surface: health check, Notion webhook,
// manual trigger, Prometheus metrics, run history and optional pprof.
//
// The listener runs under a supervisor restart loop so a failed bind or a
// crashed serve loop heals on its own. Reconfigure swaps settings at runtime
// and restarts the listener only when the routing or socket changed.
package server

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"crosspost/internal/metrics"
	"crosspost/internal/runner"
	"crosspost/internal/runtime/supervisor"
	"crosspost/internal/storage"
	"crosspost/pkg/logx"
)

const (
	DefaultAddr        = ":8080"
	DefaultWebhookPath = "/notion-webhook"
	DefaultBodyLimit   = "1M"
)

// Runner is the part of runner.Runner the handlers need.
type Runner interface {
	Run(ctx context.Context, trigger runner.Trigger) (runner.Report, error)
}

// History lists recent runs for /status.
type History interface {
	RecentRuns(ctx context.Context, limit int) ([]storage.RunRecord, error)
}

type Config struct {
	Addr          string
	WebhookPath   string
	WebhookSecret string
	ManualTrigger bool
	ManualToken   string
	Pprof         bool
	BodyLimit     string
	RatePerSec    float64
	Burst         int

	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
}

func (c Config) withDefaults() Config {
	if strings.TrimSpace(c.Addr) == "" {
		c.Addr = DefaultAddr
	}
	c.WebhookPath = strings.TrimSpace(c.WebhookPath)
	if c.WebhookPath == "" {
		c.WebhookPath = DefaultWebhookPath
	}
	if !strings.HasPrefix(c.WebhookPath, "/") {
		c.WebhookPath = "/" + c.WebhookPath
	}
	if strings.TrimSpace(c.BodyLimit) == "" {
		c.BodyLimit = DefaultBodyLimit
	}
	if c.ReadTimeout <= 0 {
		c.ReadTimeout = 15 * time.Second
	}
	if c.ShutdownTimeout <= 0 {
		c.ShutdownTimeout = 10 * time.Second
	}
	// WriteTimeout stays 0 by default: a webhook response waits for the run.
	return c
}

// needsRestart reports whether moving from a to b requires a new listener
// or a rebuilt router. Secrets and the manual switch are read per request.
func needsRestart(a, b Config) bool {
	return a.Addr != b.Addr ||
		a.WebhookPath != b.WebhookPath ||
		a.Pprof != b.Pprof ||
		a.BodyLimit != b.BodyLimit ||
		a.RatePerSec != b.RatePerSec ||
		a.Burst != b.Burst ||
		a.ReadTimeout != b.ReadTimeout ||
		a.WriteTimeout != b.WriteTimeout
}

type Options struct {
	Runner  Runner
	History History
	Metrics *metrics.Metrics
	Log     logx.Logger
}

type Server struct {
	opts Options
	log  logx.Logger
	cfg  atomic.Pointer[Config]

	mu       sync.Mutex
	baseCtx  context.Context
	sup      *supervisor.Supervisor
	srv      *http.Server
	addr     net.Addr
	ready    chan struct{}
	stopping bool
}

func New(cfg Config, opts Options) *Server {
	log := opts.Log
	if log.IsZero() {
		log = logx.Nop()
	}
	s := &Server{opts: opts, log: log.With(logx.String("comp", "http")), ready: make(chan struct{})}
	c := cfg.withDefaults()
	s.cfg.Store(&c)
	return s
}

func (s *Server) current() Config { return *s.cfg.Load() }

// Start launches the supervised listener. It is a no-op when running.
func (s *Server) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sup != nil {
		return
	}
	s.baseCtx = ctx
	s.stopping = false
	s.sup = supervisor.New(ctx,
		supervisor.WithLogger(s.log),
		supervisor.WithCancelOnError(false),
	)
	s.sup.GoRestart("http.serve", s.serveOnce, supervisor.WithRestartBackoff(500*time.Millisecond, 10*time.Second))
}

// Ready is closed once the first listener is bound.
func (s *Server) Ready() <-chan struct{} { return s.ready }

// Addr is the bound address, nil before the first bind.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addr
}

// Stop shuts the listener down gracefully, bounded by ctx.
func (s *Server) Stop(ctx context.Context) error {
	s.mu.Lock()
	sup, srv := s.sup, s.srv
	s.sup, s.srv = nil, nil
	s.stopping = true
	s.mu.Unlock()
	if sup == nil {
		return nil
	}
	if srv != nil {
		if err := srv.Shutdown(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.Warn("http shutdown incomplete", logx.Err(err))
			_ = srv.Close()
		}
	}
	err := sup.Stop(ctx)
	s.log.Info("http stopped")
	return err
}

// Reconfigure applies cfg. The listener restarts only when needed.
func (s *Server) Reconfigure(ctx context.Context, cfg Config) error {
	next := cfg.withDefaults()
	prev := s.cfg.Swap(&next)
	if prev == nil || !needsRestart(*prev, next) {
		return nil
	}
	s.mu.Lock()
	running := s.sup != nil
	base := s.baseCtx
	s.mu.Unlock()
	if !running {
		return nil
	}
	s.log.Info("http settings changed; restarting listener", logx.String("addr", next.Addr))
	if err := s.Stop(ctx); err != nil {
		return err
	}
	s.Start(base)
	return nil
}

func (s *Server) serveOnce(ctx context.Context) error {
	cfg := s.current()
	if cfg.ManualTrigger && strings.TrimSpace(cfg.ManualToken) == "" && !isLoopbackAddr(cfg.Addr) {
		s.log.Warn("manual trigger enabled without token on a public address", logx.String("addr", cfg.Addr))
	}

	ln, err := net.Listen("tcp", cfg.Addr)
	if err != nil {
		s.log.Error("http listen failed", logx.String("addr", cfg.Addr), logx.Err(err))
		if ctx.Err() != nil {
			return context.Canceled
		}
		return err
	}

	srv := &http.Server{
		Handler:           s.router(cfg),
		ReadHeaderTimeout: cfg.ReadTimeout,
		ReadTimeout:       cfg.ReadTimeout,
		WriteTimeout:      cfg.WriteTimeout,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	s.mu.Lock()
	if s.stopping {
		s.mu.Unlock()
		_ = ln.Close()
		return context.Canceled
	}
	s.srv = srv
	s.addr = ln.Addr()
	select {
	case <-s.ready:
	default:
		close(s.ready)
	}
	s.mu.Unlock()

	go func() {
		<-ctx.Done()
		sctx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		_ = srv.Shutdown(sctx)
		cancel()
	}()

	s.log.Info("http listening",
		logx.String("addr", ln.Addr().String()),
		logx.String("webhook_path", cfg.WebhookPath),
		logx.Bool("manual_trigger", cfg.ManualTrigger),
		logx.Bool("pprof", cfg.Pprof),
	)
	err = srv.Serve(ln)

	s.mu.Lock()
	stopping := s.stopping
	if s.srv == srv {
		s.srv = nil
	}
	s.mu.Unlock()

	if stopping || ctx.Err() != nil {
		return context.Canceled
	}
	if err == nil || errors.Is(err, http.ErrServerClosed) {
		return errors.New("http server exited unexpectedly")
	}
	return err
}

// Handler returns the router for the current settings, without a listener.
func (s *Server) Handler() http.Handler { return s.router(s.current()) }

func (s *Server) runContext(req *http.Request) context.Context {
	s.mu.Lock()
	base := s.baseCtx
	s.mu.Unlock()
	if base != nil {
		return base
	}
	// A disconnecting client must not abort a run halfway.
	return context.WithoutCancel(req.Context())
}

func isLoopbackAddr(addr string) bool {
	h, _, err := net.SplitHostPort(addr)
	if err != nil || strings.TrimSpace(h) == "" {
		return false
	}
	if strings.EqualFold(h, "localhost") {
		return true
	}
	ip := net.ParseIP(h)
	return ip != nil && ip.IsLoopback()
}
