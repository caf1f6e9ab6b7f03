// Package app wires configuration, logging, storage, metrics, the runner,
// the scheduler and the HTTP server into one long-running process.
package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"

	"crosspost/internal/alert"
	"crosspost/internal/config"
	"crosspost/internal/eventbus"
	"crosspost/internal/metrics"
	"crosspost/internal/runner"
	"crosspost/internal/runtime/supervisor"
	"crosspost/internal/scheduler"
	"crosspost/internal/server"
	"crosspost/internal/storage"
	"crosspost/pkg/logx"
)

type Options struct {
	ConfigPath string
	// EnvFiles are loaded into the environment before the config is parsed.
	// Missing files are ignored.
	EnvFiles []string
}

type App struct {
	cfgm *config.ConfigManager
	logs *logx.Service
	log  logx.Logger

	bus     *eventbus.MemBus
	store   storage.Store
	metrics *metrics.Metrics
	runner  *runner.Runner
	sched   *scheduler.Service
	http    *server.Server
	alerts  *alert.Service

	sup *supervisor.Supervisor
}

func New(opts Options) (*App, error) {
	if err := config.LoadDotEnv(opts.EnvFiles...); err != nil {
		return nil, err
	}
	cfgm := config.NewConfigManager(opts.ConfigPath)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, err
	}

	logs, log := logx.New(mapLoggingConfig(cfg))
	cfgm.SetLogger(log.With(logx.String("comp", "config")))

	store, err := storage.Open(mapStorageConfig(cfg), log)
	if err != nil {
		_ = logs.Close()
		return nil, fmt.Errorf("open storage: %w", err)
	}

	a := &App{
		cfgm:    cfgm,
		logs:    logs,
		log:     log,
		bus:     eventbus.New(),
		store:   store,
		metrics: metrics.New(),
	}
	a.runner = runner.New(runner.Options{
		Config:  cfgm.Get,
		Store:   store,
		Bus:     a.bus,
		Metrics: a.metrics,
		Log:     log,
	})
	a.alerts = alert.New(mapAlertConfig(cfg), alertSender(cfg, log), log, a.bus)
	a.sched = scheduler.New(mapSchedulerConfig(cfg), a.scheduledRun, log)
	a.http = server.New(mapServerConfig(cfg), server.Options{
		Runner:  a.runner,
		History: store,
		Metrics: a.metrics,
		Log:     log,
	})

	if dests := cfg.Destinations(); len(dests) == 0 {
		log.Warn("no destination has a complete credential set; runs will fail until one is configured")
	} else {
		log.Info("destinations configured", logx.Strings("destinations", dests))
	}
	return a, nil
}

func (a *App) Runner() *runner.Runner { return a.runner }

func (a *App) Logger() logx.Logger { return a.log }

func (a *App) Config() *config.Config { return a.cfgm.Get() }

// scheduledRun adapts a runner call to the scheduler job contract.
func (a *App) scheduledRun(ctx context.Context) error {
	_, err := a.runner.Run(ctx, runner.TriggerSchedule)
	if errors.Is(err, runner.ErrRunInProgress) {
		return fmt.Errorf("%w: %w", scheduler.ErrSkipped, err)
	}
	return err
}

// Done is closed when the app's run context ends (stop or fatal error).
func (a *App) Done() <-chan struct{} {
	if a.sup == nil {
		return nil
	}
	return a.sup.Context().Done()
}

// Err returns the first fatal error observed by the supervisor (if any).
func (a *App) Err() error {
	if a.sup == nil {
		return nil
	}
	return a.sup.Err()
}

func (a *App) Start(ctx context.Context) error {
	a.sup = supervisor.New(ctx, supervisor.WithLogger(a.log), supervisor.WithCancelOnError(true))
	runCtx := a.sup.Context()

	a.alerts.Start(runCtx)
	if err := a.sched.Start(runCtx); err != nil {
		return fmt.Errorf("start scheduler: %w", err)
	}
	a.http.Start(runCtx)

	if a.log.Enabled(logx.LevelDebug) {
		events, unsub := a.bus.Subscribe(64)
		a.sup.Go("eventbus.log", func(c context.Context) error {
			defer unsub()
			for {
				select {
				case <-c.Done():
					return nil
				case e, ok := <-events:
					if !ok {
						return nil
					}
					a.log.Debug("event", logx.String("type", e.Type), logx.Time("time", e.Time))
				}
			}
		})
	}

	sub := a.cfgm.Subscribe(4)
	a.sup.Go("config.reload", func(c context.Context) error {
		defer a.cfgm.Unsubscribe(sub)
		last := a.cfgm.Get()
		for {
			select {
			case <-c.Done():
				return nil
			case next, ok := <-sub:
				if !ok {
					return nil
				}
				a.applyConfig(c, last, next)
				last = next
			}
		}
	})
	a.sup.Go("config.watch", a.cfgm.Watch)

	a.sup.Go("systemd.watchdog", func(c context.Context) error {
		return watchdogLoop(c, a.log.With(logx.String("comp", "systemd")), a.httpReady)
	})

	select {
	case <-a.http.Ready():
	case <-time.After(5 * time.Second):
		a.log.Warn("http server not ready yet; continuing")
	case <-runCtx.Done():
		return a.sup.Err()
	}
	sdNotify(a.log, daemon.SdNotifyReady)

	fields := []logx.Field{logx.Bool("scheduler", a.cfgm.Get().Scheduler.Enabled)}
	if next := a.sched.Next(); !next.IsZero() {
		fields = append(fields, logx.Time("next_run", next))
	}
	if addr := a.http.Addr(); addr != nil {
		fields = append(fields, logx.String("addr", addr.String()))
	}
	a.log.Info("app started", fields...)
	return nil
}

func (a *App) httpReady() bool {
	select {
	case <-a.http.Ready():
		return true
	default:
		return false
	}
}

// applyConfig fans a committed reload out to the live components.
func (a *App) applyConfig(ctx context.Context, prev, next *config.Config) {
	sections, attrs := config.SummarizeConfigChange(prev, next)
	if len(sections) == 0 {
		a.log.Info("config reloaded (no changes)")
		return
	}
	sdNotify(a.log, daemon.SdNotifyReloading)
	defer sdNotify(a.log, daemon.SdNotifyReady)

	a.logs.Apply(mapLoggingConfig(next))

	if err := a.sched.Apply(mapSchedulerConfig(next)); err != nil {
		a.log.Warn("scheduler config not applied", logx.Err(err))
	}
	if err := a.http.Reconfigure(ctx, mapServerConfig(next)); err != nil {
		a.log.Warn("http config not applied", logx.Err(err))
	}
	a.alerts.Apply(mapAlertConfig(next), alertSender(next, a.log))
	if a.alerts.Enabled() {
		a.alerts.Start(ctx)
	} else {
		stopCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
		a.alerts.Stop(stopCtx)
		cancel()
	}
	for _, s := range sections {
		if s == "storage" {
			a.log.Warn("storage config changed; restart required for changes to take effect")
		}
	}

	a.bus.Publish(eventbus.Event{Type: eventbus.ConfigReloaded, Data: sections})
	fields := append([]logx.Field{logx.String("changed", strings.Join(sections, ","))}, attrs...)
	a.log.Info("config reloaded", fields...)
}

// Stop shuts components down in reverse dependency order. Each step is
// bounded so one stuck component cannot stall the whole stop.
func (a *App) Stop(ctx context.Context, reason StopReason) error {
	a.log.Info("stopping", logx.String("reason", string(reason)))
	if a.sup != nil {
		sdNotify(a.log, daemon.SdNotifyStopping)
	}

	step := func(name string, limit time.Duration, fn func(context.Context) error) {
		start := time.Now()
		stepCtx, cancel := context.WithTimeout(ctx, limit)
		defer cancel()

		done := make(chan error, 1)
		go func() {
			defer func() {
				if r := recover(); r != nil {
					done <- fmt.Errorf("panic in stop step %s: %v", name, r)
				}
			}()
			done <- fn(stepCtx)
		}()

		select {
		case err := <-done:
			if err != nil && !errors.Is(err, context.Canceled) {
				a.log.Warn("stop step error", logx.String("name", name), logx.Err(err))
			}
			a.log.Debug("stop step end", logx.String("name", name), logx.Duration("took", time.Since(start)))
		case <-stepCtx.Done():
			a.log.Warn("stop step deadline reached (continuing)",
				logx.String("name", name),
				logx.Duration("elapsed", time.Since(start)),
			)
		}
	}

	if a.sup != nil {
		step("scheduler", 5*time.Second, func(c context.Context) error { a.sched.Stop(c); return nil })
		step("http", 10*time.Second, a.http.Stop)
		step("alerts", 3*time.Second, func(c context.Context) error { a.alerts.Stop(c); return nil })
		step("supervisor", 3*time.Second, a.sup.Stop)
	}
	step("storage", 2*time.Second, func(context.Context) error {
		if a.store != nil {
			return a.store.Close()
		}
		return nil
	})

	a.log.Info("stopped")
	if a.logs != nil {
		_ = a.logs.Close()
	}
	return nil
}
