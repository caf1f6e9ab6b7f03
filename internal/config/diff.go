package config

import (
	"reflect"
	"sort"
	"strings"

	"crosspost/pkg/logx"
)

// SummarizeConfigChange returns the sorted list of changed sections and safe
// structured fields for logging. Secrets are reported only as *_set flags.
func SummarizeConfigChange(oldCfg, newCfg *Config) ([]string, []logx.Field) {
	if oldCfg == nil {
		oldCfg = &Config{}
	}
	if newCfg == nil {
		newCfg = &Config{}
	}

	changed := make([]string, 0, 8)
	attrs := make([]logx.Field, 0, 24)

	if !reflect.DeepEqual(oldCfg.Logging, newCfg.Logging) {
		changed = append(changed, "logging")
		attrs = append(attrs,
			logx.String("logging.level", newCfg.Logging.Level),
			logx.Bool("logging.console", newCfg.Logging.Console),
			logx.String("logging.format", newCfg.Logging.Format),
			logx.Bool("logging.file", newCfg.Logging.File.Enabled),
		)
	}

	ns := newCfg.Server
	if oldCfg.Server != ns {
		changed = append(changed, "server")
		attrs = append(attrs,
			logx.String("server.addr", ns.Addr),
			logx.Bool("server.manual_trigger", ns.ManualTrigger),
			logx.Bool("server.pprof", ns.Pprof),
			logx.Bool("server.webhook_secret_set", set(ns.WebhookSecret)),
			logx.Bool("server.manual_token_set", set(ns.ManualToken)),
		)
	}

	if oldCfg.Scheduler != newCfg.Scheduler {
		changed = append(changed, "scheduler")
		attrs = append(attrs,
			logx.Bool("scheduler.enabled", newCfg.Scheduler.Enabled),
			logx.String("scheduler.schedule", strings.TrimSpace(newCfg.Scheduler.Schedule)),
			logx.String("scheduler.timezone", strings.TrimSpace(newCfg.Scheduler.Timezone)),
		)
	}

	var oStore, nStore StorageConfig
	if oldCfg.Storage != nil {
		oStore = *oldCfg.Storage
	}
	if newCfg.Storage != nil {
		nStore = *newCfg.Storage
	}
	if oStore != nStore {
		changed = append(changed, "storage")
		attrs = append(attrs,
			logx.String("storage.driver", strings.TrimSpace(nStore.Driver)),
			logx.Bool("storage.path_set", set(nStore.Path)),
		)
	}

	if oldCfg.Run != newCfg.Run {
		changed = append(changed, "run")
		attrs = append(attrs,
			logx.String("run.poster_timeout", newCfg.Run.PosterTimeout),
			logx.Int("run.max_articles_per_run", newCfg.Run.MaxArticlesPerRun),
			logx.Any("run.rate_per_sec", newCfg.Run.RatePerSec),
		)
	}

	if oldCfg.Notion != newCfg.Notion {
		changed = append(changed, "notion")
		attrs = append(attrs, logx.Bool("notion.configured", newCfg.Notion.HasCredentials()))
	}

	// Destinations: any credential change counts; only presence is logged.
	for _, d := range []struct {
		name     string
		old, new any
		ok       bool
	}{
		{"bluesky", oldCfg.Bluesky, newCfg.Bluesky, newCfg.Bluesky.HasCredentials()},
		{"twitter", oldCfg.Twitter, newCfg.Twitter, newCfg.Twitter.HasCredentials()},
		{"telegram", oldCfg.Telegram, newCfg.Telegram, newCfg.Telegram.HasCredentials()},
	} {
		if d.old != d.new {
			changed = append(changed, d.name)
			attrs = append(attrs, logx.Bool(d.name+".configured", d.ok))
		}
	}

	if oldCfg.Summary != newCfg.Summary {
		changed = append(changed, "summary")
		attrs = append(attrs,
			logx.Bool("summary.enabled", newCfg.Summary.Enabled),
			logx.String("summary.model", newCfg.Summary.Model),
			logx.Bool("summary.api_key_set", set(newCfg.Summary.APIKey)),
		)
	}

	if oldCfg.Alert != newCfg.Alert {
		changed = append(changed, "alert")
		attrs = append(attrs,
			logx.Bool("alert.enabled", newCfg.Alert.Enabled),
			logx.Bool("alert.token_set", set(newCfg.Alert.Token)),
			logx.Bool("alert.chat_set", set(newCfg.Alert.Chat)),
		)
	}

	sort.Strings(changed)
	if len(changed) > 0 {
		attrs = append(attrs, logx.Strings("destinations", newCfg.Destinations()))
	}
	return changed, attrs
}

func set(s string) bool { return strings.TrimSpace(s) != "" }
