package config

import "strings"

// Config is the whole process configuration. Every section is optional in the
// file; missing values fall back to defaults or to the conventional
// environment variables (see applyEnvFallbacks).
type Config struct {
	Logging   LoggingConfig   `json:"logging"`
	Server    ServerConfig    `json:"server"`
	Scheduler SchedulerConfig `json:"scheduler"`
	Storage   *StorageConfig  `json:"storage,omitempty"`
	Run       RunConfig       `json:"run"`

	Notion   NotionConfig   `json:"notion"`
	Bluesky  BlueskyConfig  `json:"bluesky"`
	Twitter  TwitterConfig  `json:"twitter"`
	Telegram TelegramConfig `json:"telegram"`
	Summary  SummaryConfig  `json:"summary"`

	Alert AlertConfig `json:"alert"`
}

type LoggingConfig struct {
	Level   string      `json:"level" validate:"omitempty,oneof=trace debug info warn warning error"`
	Console bool        `json:"console"`
	Format  string      `json:"format" validate:"omitempty,oneof=console json"`
	File    LoggingFile `json:"file"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path" validate:"required_if=Enabled true"`
}

// ServerConfig controls the HTTP surface.
//
// All durations are Go duration strings (e.g. "500ms", "10s").
type ServerConfig struct {
	Addr        string `json:"addr,omitempty"`         // default ":8080"
	WebhookPath string `json:"webhook_path,omitempty"` // default "/notion-webhook"
	// WebhookSecret is the Notion verification token used as the HMAC key.
	// Never logged.
	WebhookSecret string `json:"webhook_secret,omitempty"`

	// ManualTrigger enables /run-scheduled. ManualToken, when set, is required
	// as a bearer token on that endpoint.
	ManualTrigger bool   `json:"manual_trigger"`
	ManualToken   string `json:"manual_token,omitempty"`

	Pprof bool `json:"pprof"`

	// BodyLimit uses echo's size syntax ("1M", "512K").
	BodyLimit  string  `json:"body_limit,omitempty"`
	RatePerSec float64 `json:"rate_per_sec,omitempty" validate:"gte=0"`
	Burst      int     `json:"burst,omitempty" validate:"gte=0"`

	ReadTimeout     string `json:"read_timeout,omitempty"`
	WriteTimeout    string `json:"write_timeout,omitempty"`
	ShutdownTimeout string `json:"shutdown_timeout,omitempty"`
}

// SchedulerConfig controls the periodic run trigger.
//
// Schedule accepts cron ("*/30 * * * *"), descriptors ("@hourly"), Go
// durations ("55m"), HH:MM intervals ("00:30") and "daily:HH:MM".
type SchedulerConfig struct {
	Enabled       bool   `json:"enabled"`
	Schedule      string `json:"schedule,omitempty" validate:"required_if=Enabled true"`
	Timezone      string `json:"timezone,omitempty"`
	Timeout       string `json:"timeout,omitempty"`
	StartupSpread bool   `json:"startup_spread,omitempty"`
}

// StorageConfig controls the optional ledger and run history.
//
// Example:
//
//	"storage": { "driver": "sqlite", "path": "./data/crosspost.db" }
type StorageConfig struct {
	Driver      string `json:"driver" validate:"omitempty,oneof=none file sqlite"`
	Path        string `json:"path"`
	BusyTimeout string `json:"busy_timeout,omitempty"` // sqlite only
}

type RunConfig struct {
	// PosterTimeout bounds a single destination call.
	PosterTimeout string `json:"poster_timeout,omitempty"`
	// MaxArticlesPerRun caps a run; 0 processes every unposted article.
	MaxArticlesPerRun int `json:"max_articles_per_run,omitempty" validate:"gte=0"`
	// RatePerSec throttles calls per destination; 0 disables throttling.
	RatePerSec float64 `json:"rate_per_sec,omitempty" validate:"gte=0"`
}

type NotionConfig struct {
	APIKey     string `json:"api_key,omitempty"`
	DatabaseID string `json:"database_id,omitempty"`
	BaseURL    string `json:"base_url,omitempty" validate:"omitempty,url"`
	Timeout    string `json:"timeout,omitempty"`

	TitleProperty   string `json:"title_property,omitempty"`
	URLProperty     string `json:"url_property,omitempty"`
	PostedProperty  string `json:"posted_property,omitempty"`
	SummaryProperty string `json:"summary_property,omitempty"`
}

type BlueskyConfig struct {
	Service    string `json:"service,omitempty" validate:"omitempty,url"`
	Identifier string `json:"identifier,omitempty"`
	Password   string `json:"password,omitempty"`
}

type TwitterConfig struct {
	ConsumerKey    string `json:"consumer_key,omitempty"`
	ConsumerSecret string `json:"consumer_secret,omitempty"`
	AccessToken    string `json:"access_token,omitempty"`
	AccessSecret   string `json:"access_secret,omitempty"`
	Endpoint       string `json:"endpoint,omitempty" validate:"omitempty,url"`
}

type TelegramConfig struct {
	Token    string `json:"token,omitempty"`
	Chat     string `json:"chat,omitempty"`
	ThreadID int    `json:"thread_id,omitempty" validate:"gte=0"`
	APIURL   string `json:"api_url,omitempty" validate:"omitempty,url"`
}

// SummaryConfig enables the optional AI summary written back to Notion.
type SummaryConfig struct {
	Enabled         bool    `json:"enabled"`
	APIKey          string  `json:"api_key,omitempty"`
	Model           string  `json:"model,omitempty"`
	MaxTokens       int     `json:"max_tokens,omitempty" validate:"gte=0"`
	Temperature     float64 `json:"temperature,omitempty" validate:"gte=0,lte=1"`
	Language        string  `json:"language,omitempty"`
	ContentMaxChars int     `json:"content_max_chars,omitempty" validate:"gte=0"`
	FetchTimeout    string  `json:"fetch_timeout,omitempty"`
}

// AlertConfig sends operator alerts for failed runs to a Telegram chat.
// Token falls back to telegram.token.
type AlertConfig struct {
	Enabled    bool    `json:"enabled"`
	Token      string  `json:"token,omitempty"`
	Chat       string  `json:"chat,omitempty" validate:"required_if=Enabled true"`
	ThreadID   int     `json:"thread_id,omitempty" validate:"gte=0"`
	OnUnposted bool    `json:"on_unposted,omitempty"`
	RatePerSec float64 `json:"rate_per_sec,omitempty" validate:"gte=0"`
	RetryMax   int     `json:"retry_max,omitempty" validate:"gte=0,lte=10"`
	// DedupWindow suppresses a repeated alert; default "30m", "0s" disables.
	DedupWindow string `json:"dedup_window,omitempty"`
}

// AlertBotToken is the token alerts are sent with.
func (c *Config) AlertBotToken() string {
	if t := strings.TrimSpace(c.Alert.Token); t != "" {
		return t
	}
	return strings.TrimSpace(c.Telegram.Token)
}

// HasCredentials reports whether the full Bluesky credential set is present.
func (c BlueskyConfig) HasCredentials() bool {
	return notBlank(c.Identifier, c.Password)
}

// HasCredentials reports whether all four OAuth 1.0a values are present.
func (c TwitterConfig) HasCredentials() bool {
	return notBlank(c.ConsumerKey, c.ConsumerSecret, c.AccessToken, c.AccessSecret)
}

func (c TelegramConfig) HasCredentials() bool {
	return notBlank(c.Token, c.Chat)
}

func (c NotionConfig) HasCredentials() bool {
	return notBlank(c.APIKey, c.DatabaseID)
}

// Destinations lists the destination names with a complete credential set,
// in fixed order.
func (c *Config) Destinations() []string {
	if c == nil {
		return nil
	}
	out := make([]string, 0, 3)
	if c.Bluesky.HasCredentials() {
		out = append(out, "bluesky")
	}
	if c.Twitter.HasCredentials() {
		out = append(out, "twitter")
	}
	if c.Telegram.HasCredentials() {
		out = append(out, "telegram")
	}
	return out
}
