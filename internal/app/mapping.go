package app

import (
	"strings"
	"time"

	"crosspost/internal/alert"
	"crosspost/internal/config"
	"crosspost/internal/poster/telegram"
	"crosspost/internal/scheduler"
	"crosspost/internal/server"
	"crosspost/internal/storage"
	"crosspost/pkg/logx"
)

// Config values are validated before they reach these mappers, so parse
// errors fall back to defaults instead of surfacing.

func mapLoggingConfig(cfg *config.Config) logx.Config {
	lc := logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		Format:  cfg.Logging.Format,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
	}
	// A daemon with no sink at all is impossible to debug.
	if !lc.Console && !lc.File.Enabled {
		lc.Console = true
	}
	return lc
}

func mapStorageConfig(cfg *config.Config) storage.Config {
	if cfg == nil || cfg.Storage == nil {
		return storage.Config{}
	}
	sc := cfg.Storage
	driver := strings.ToLower(strings.TrimSpace(sc.Driver))
	if driver == "" || driver == "none" {
		return storage.Config{}
	}
	return storage.Config{
		Driver:      driver,
		Path:        strings.TrimSpace(sc.Path),
		BusyTimeout: config.DurationOr(sc.BusyTimeout, time.Second),
	}
}

func mapSchedulerConfig(cfg *config.Config) scheduler.Config {
	sc := cfg.Scheduler
	return scheduler.Config{
		Enabled:       sc.Enabled,
		Spec:          sc.Schedule,
		Timezone:      sc.Timezone,
		Timeout:       config.DurationOr(sc.Timeout, 0),
		StartupSpread: sc.StartupSpread,
	}
}

func mapServerConfig(cfg *config.Config) server.Config {
	sc := cfg.Server
	return server.Config{
		Addr:            sc.Addr,
		WebhookPath:     sc.WebhookPath,
		WebhookSecret:   sc.WebhookSecret,
		ManualTrigger:   sc.ManualTrigger,
		ManualToken:     sc.ManualToken,
		Pprof:           sc.Pprof,
		BodyLimit:       sc.BodyLimit,
		RatePerSec:      sc.RatePerSec,
		Burst:           sc.Burst,
		ReadTimeout:     config.DurationOr(sc.ReadTimeout, 0),
		WriteTimeout:    config.DurationOr(sc.WriteTimeout, 0),
		ShutdownTimeout: config.DurationOr(sc.ShutdownTimeout, 0),
	}
}

func mapAlertConfig(cfg *config.Config) alert.Config {
	ac := cfg.Alert
	window := 30 * time.Minute
	if strings.TrimSpace(ac.DedupWindow) != "" {
		window, _ = config.ParseDurationField("alert.dedup_window", ac.DedupWindow)
	}
	return alert.Config{
		Enabled:     ac.Enabled,
		OnUnposted:  ac.OnUnposted,
		RatePerSec:  ac.RatePerSec,
		RetryMax:    ac.RetryMax,
		DedupWindow: window,
	}
}

// alertSender builds the Telegram sender for alerts, nil when disabled or
// misconfigured.
func alertSender(cfg *config.Config, log logx.Logger) alert.Sender {
	if !cfg.Alert.Enabled {
		return nil
	}
	p, err := telegram.New(telegram.Config{
		Token:    cfg.AlertBotToken(),
		Chat:     cfg.Alert.Chat,
		ThreadID: cfg.Alert.ThreadID,
		APIURL:   strings.TrimSpace(cfg.Telegram.APIURL),
	})
	if err != nil {
		log.Warn("alert sender not available", logx.Err(err))
		return nil
	}
	return p
}
