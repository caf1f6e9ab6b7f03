package server

import (
	"crypto/subtle"
	"errors"
	"io"
	"net/http"
	hpprof "net/http/pprof"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"golang.org/x/time/rate"

	"crosspost/internal/runner"
	"crosspost/internal/webhook"
	"crosspost/pkg/logx"
)

// Response bodies Notion and operators see.
const (
	msgHandshake      = "Verification token received. Check logs for the token value."
	msgBadSignature   = "Invalid webhook signature"
	msgWebhookOK      = "Webhook received successfully!"
	msgRunInProgress  = "run already in progress"
	msgWebhookFailed  = "Error in webhook handler: "
	msgManualDisabled = "manual trigger disabled"
)

func (s *Server) router(cfg Config) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.Recover())
	e.Use(s.requestLogger())

	limited := []echo.MiddlewareFunc{}
	if cfg.RatePerSec > 0 {
		burst := cfg.Burst
		if burst <= 0 {
			burst = max(1, int(cfg.RatePerSec))
		}
		limited = append(limited, middleware.RateLimiterWithConfig(middleware.RateLimiterConfig{
			Store: middleware.NewRateLimiterMemoryStoreWithConfig(middleware.RateLimiterMemoryStoreConfig{
				Rate:      rate.Limit(cfg.RatePerSec),
				Burst:     burst,
				ExpiresIn: 3 * time.Minute,
			}),
			DenyHandler: func(c echo.Context, _ string, _ error) error {
				return c.String(http.StatusTooManyRequests, "rate limit exceeded")
			},
		}))
	}

	e.GET("/health-check", s.handleHealth)
	e.GET("/metrics", s.handleMetrics)
	e.GET("/status", s.handleStatus)

	manual := append([]echo.MiddlewareFunc{}, limited...)
	e.Match([]string{http.MethodGet, http.MethodPost}, "/run-scheduled", s.handleManual, manual...)

	hook := append([]echo.MiddlewareFunc{middleware.BodyLimit(cfg.BodyLimit)}, limited...)
	e.POST(cfg.WebhookPath, s.handleWebhook, hook...)

	if cfg.Pprof {
		g := e.Group("/debug/pprof", s.requireToken)
		g.GET("/cmdline", echo.WrapHandler(http.HandlerFunc(hpprof.Cmdline)))
		g.GET("/profile", echo.WrapHandler(http.HandlerFunc(hpprof.Profile)))
		g.Match([]string{http.MethodGet, http.MethodPost}, "/symbol", echo.WrapHandler(http.HandlerFunc(hpprof.Symbol)))
		g.GET("/trace", echo.WrapHandler(http.HandlerFunc(hpprof.Trace)))
		g.GET("/*", echo.WrapHandler(http.HandlerFunc(hpprof.Index)))
	}
	return e
}

func (s *Server) requestLogger() echo.MiddlewareFunc {
	return middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogMethod:   true,
		LogURIPath:  true,
		LogStatus:   true,
		LogLatency:  true,
		LogRemoteIP: true,
		LogError:    true,
		HandleError: true,
		Skipper: func(c echo.Context) bool {
			p := c.Path()
			return p == "/health-check" || p == "/metrics"
		},
		LogValuesFunc: func(_ echo.Context, v middleware.RequestLoggerValues) error {
			fields := []logx.Field{
				logx.String("method", v.Method),
				logx.String("path", v.URIPath),
				logx.Int("status", v.Status),
				logx.Duration("latency", v.Latency),
				logx.String("remote", v.RemoteIP),
			}
			switch {
			case v.Error != nil:
				s.log.Warn("http request", append(fields, logx.Err(v.Error))...)
			case v.Status >= 500:
				s.log.Warn("http request", fields...)
			default:
				s.log.Debug("http request", fields...)
			}
			return nil
		},
	})
}

func (s *Server) handleHealth(c echo.Context) error {
	return c.String(http.StatusOK, "OK")
}

func (s *Server) handleMetrics(c echo.Context) error {
	if s.opts.Metrics == nil {
		return c.String(http.StatusNotFound, "metrics disabled")
	}
	s.opts.Metrics.Handler().ServeHTTP(c.Response(), c.Request())
	return nil
}

// handleStatus lists recent runs from storage; without storage the list is
// empty.
func (s *Server) handleStatus(c echo.Context) error {
	type status struct {
		Time time.Time `json:"time"`
		Runs any       `json:"runs"`
	}
	if s.opts.History == nil {
		return c.JSON(http.StatusOK, status{Time: time.Now(), Runs: []any{}})
	}
	limit := 20
	if v, err := strconv.Atoi(c.QueryParam("limit")); err == nil && v > 0 && v <= 500 {
		limit = v
	}
	runs, err := s.opts.History.RecentRuns(c.Request().Context(), limit)
	if err != nil {
		return c.String(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, status{Time: time.Now(), Runs: runs})
}

func (s *Server) handleManual(c echo.Context) error {
	cfg := s.current()
	if !cfg.ManualTrigger {
		return c.String(http.StatusForbidden, msgManualDisabled)
	}
	if !bearerMatches(c.Request(), cfg.ManualToken) {
		c.Response().Header().Set("WWW-Authenticate", "Bearer")
		return c.String(http.StatusUnauthorized, "unauthorized")
	}
	rep, err := s.opts.Runner.Run(s.runContext(c.Request()), runner.TriggerManual)
	switch {
	case errors.Is(err, runner.ErrRunInProgress):
		return c.String(http.StatusConflict, msgRunInProgress)
	case err != nil:
		return c.String(http.StatusInternalServerError, err.Error())
	}
	return c.String(http.StatusOK, rep.Summary())
}

func (s *Server) handleWebhook(c echo.Context) error {
	body, err := io.ReadAll(c.Request().Body)
	if err != nil {
		return err
	}

	if token, ok := webhook.ExtractVerificationToken(body); ok {
		// The operator copies this value into server.webhook_secret.
		s.log.Warn("notion verification token received", logx.String("verification_token", token))
		s.opts.Metrics.RecordWebhook("handshake")
		return c.String(http.StatusOK, msgHandshake)
	}

	cfg := s.current()
	sig := c.Request().Header.Get(webhook.SignatureHeader)
	if strings.TrimSpace(cfg.WebhookSecret) == "" {
		s.log.Error("webhook rejected: server.webhook_secret is not configured")
		s.opts.Metrics.RecordWebhook("rejected")
		return c.String(http.StatusUnauthorized, msgBadSignature)
	}
	if !webhook.Verify(cfg.WebhookSecret, sig, body) {
		s.log.Warn("webhook signature mismatch", logx.String("signature", webhook.MaskSignature(sig)))
		s.opts.Metrics.RecordWebhook("rejected")
		return c.String(http.StatusUnauthorized, msgBadSignature)
	}

	_, err = s.opts.Runner.Run(s.runContext(c.Request()), runner.TriggerWebhook)
	switch {
	case errors.Is(err, runner.ErrRunInProgress):
		s.opts.Metrics.RecordWebhook("busy")
		return c.String(http.StatusOK, msgRunInProgress)
	case err != nil:
		s.opts.Metrics.RecordWebhook("error")
		return c.String(http.StatusInternalServerError, msgWebhookFailed+err.Error())
	}
	s.opts.Metrics.RecordWebhook("verified")
	return c.String(http.StatusOK, msgWebhookOK)
}

// requireToken guards pprof with the manual token when one is set.
func (s *Server) requireToken(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		if !bearerMatches(c.Request(), s.current().ManualToken) {
			c.Response().Header().Set("WWW-Authenticate", "Bearer")
			return c.String(http.StatusUnauthorized, "unauthorized")
		}
		return next(c)
	}
}

// bearerMatches accepts "Authorization: Bearer <token>" or ?token=<token>.
// An empty token disables the check.
func bearerMatches(r *http.Request, token string) bool {
	want := strings.TrimSpace(token)
	if want == "" {
		return true
	}
	got := r.URL.Query().Get("token")
	if ah := r.Header.Get("Authorization"); got == "" && strings.HasPrefix(ah, "Bearer ") {
		got = strings.TrimSpace(strings.TrimPrefix(ah, "Bearer "))
	}
	return got != "" && subtle.ConstantTimeCompare([]byte(got), []byte(want)) == 1
}
