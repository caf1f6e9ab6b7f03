package config

import (
	"errors"
	"fmt"
	"net"
	"reflect"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"

	"crosspost/internal/scheduler"
)

var (
	validateOnce sync.Once
	validate     *validator.Validate
)

func structValidator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
		// Report JSON paths ("scheduler.schedule") rather than Go field names.
		validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
			name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
			if name == "-" {
				return ""
			}
			return name
		})
	})
	return validate
}

// Validate checks field constraints and the values that need parsing
// (durations, timezone, schedule). The first problem is returned as
// "config: <path>: <reason>".
func Validate(cfg *Config) error {
	if cfg == nil {
		return errors.New("config: nil config")
	}
	if err := structValidator().Struct(cfg); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			fe := verrs[0]
			return fmt.Errorf("config: %s: %s", fieldPath(fe.Namespace()), describe(fe))
		}
		return fmt.Errorf("config: %w", err)
	}

	durations := []struct {
		path string
		raw  string
	}{
		{"server.read_timeout", cfg.Server.ReadTimeout},
		{"server.write_timeout", cfg.Server.WriteTimeout},
		{"server.shutdown_timeout", cfg.Server.ShutdownTimeout},
		{"scheduler.timeout", cfg.Scheduler.Timeout},
		{"run.poster_timeout", cfg.Run.PosterTimeout},
		{"notion.timeout", cfg.Notion.Timeout},
		{"summary.fetch_timeout", cfg.Summary.FetchTimeout},
		{"alert.dedup_window", cfg.Alert.DedupWindow},
	}
	if cfg.Storage != nil {
		durations = append(durations, struct {
			path string
			raw  string
		}{"storage.busy_timeout", cfg.Storage.BusyTimeout})
	}
	for _, d := range durations {
		if _, err := ParseDurationField(d.path, d.raw); err != nil {
			return fmt.Errorf("config: %w", err)
		}
	}

	if tz := strings.TrimSpace(cfg.Scheduler.Timezone); tz != "" {
		if _, err := time.LoadLocation(tz); err != nil {
			return fmt.Errorf("config: scheduler.timezone: %w", err)
		}
	}
	if cfg.Scheduler.Enabled {
		if _, err := scheduler.ParseSchedule(cfg.Scheduler.Schedule); err != nil {
			return fmt.Errorf("config: scheduler.schedule: %w", err)
		}
	}
	if s := cfg.Storage; s != nil {
		drv := strings.ToLower(strings.TrimSpace(s.Driver))
		if drv != "" && drv != "none" && strings.TrimSpace(s.Path) == "" {
			return fmt.Errorf("config: storage.path: required for driver %q", drv)
		}
	}
	if cfg.Summary.Enabled && strings.TrimSpace(cfg.Summary.APIKey) == "" {
		return errors.New("config: summary.api_key: required when summary is enabled")
	}
	if cfg.Alert.Enabled && cfg.AlertBotToken() == "" {
		return errors.New("config: alert.token: required when alert is enabled and telegram.token is empty")
	}
	if cfg.Server.ManualTrigger && strings.TrimSpace(cfg.Server.ManualToken) == "" && !isLoopback(cfg.Server.Addr) {
		return errors.New("config: server.manual_token: required when manual_trigger is enabled on a non-loopback address")
	}
	return nil
}

// fieldPath drops the root struct name from a validator namespace.
func fieldPath(ns string) string {
	if i := strings.IndexByte(ns, '.'); i >= 0 {
		return ns[i+1:]
	}
	return ns
}

func describe(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required", "required_if":
		return "is required"
	case "oneof":
		return fmt.Sprintf("must be one of [%s]", fe.Param())
	case "url":
		return "must be a valid URL"
	case "gte":
		return "must be >= " + fe.Param()
	case "lte":
		return "must be <= " + fe.Param()
	default:
		return fmt.Sprintf("failed %q validation", fe.Tag())
	}
}

// isLoopback reports whether a host:port address binds to loopback only.
// An empty host means every interface.
func isLoopback(addr string) bool {
	h, _, err := net.SplitHostPort(strings.TrimSpace(addr))
	if err != nil || h == "" {
		return false
	}
	if strings.EqualFold(h, "localhost") {
		return true
	}
	ip := net.ParseIP(h)
	return ip != nil && ip.IsLoopback()
}

func notBlank(vals ...string) bool {
	for _, v := range vals {
		if strings.TrimSpace(v) == "" {
			return false
		}
	}
	return true
}
