package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func envMap(m map[string]string) func(string) (string, bool) {
	return func(k string) (string, bool) {
		v, ok := m[k]
		return v, ok
	}
}

func writeFile(t *testing.T, name, body string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(p, []byte(body), 0o600))
	return p
}

func TestParseYAMLExpandsEnv(t *testing.T) {
	t.Parallel()
	p := writeFile(t, "crosspost.yaml", `
logging:
  level: debug
  console: true
scheduler:
  enabled: true
  schedule: "*/30 * * * *"
  timezone: UTC
run:
  poster_timeout: 20s
  max_articles_per_run: 5
notion:
  api_key: ${NOTION_KEY}
  database_id: "db-${DB_SUFFIX:-default}"
bluesky:
  identifier: me.bsky.social
  password: ${BSKY_PASS}
`)
	m := NewConfigManager(p)
	m.SetEnvLookup(envMap(map[string]string{"NOTION_KEY": "secret_abc", "BSKY_PASS": `pa"ss`}))

	cfg, err := m.Load()
	require.NoError(t, err)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, "secret_abc", cfg.Notion.APIKey)
	assert.Equal(t, "db-default", cfg.Notion.DatabaseID)
	assert.Equal(t, `pa"ss`, cfg.Bluesky.Password)
	assert.Equal(t, 5, cfg.Run.MaxArticlesPerRun)
	assert.Same(t, cfg, m.Get())
	assert.Equal(t, []string{"bluesky"}, cfg.Destinations())
}

func TestParseRejectsUnknownFieldsAndTrailingData(t *testing.T) {
	t.Parallel()
	_, err := NewConfigManager(writeFile(t, "c.json", `{"notion":{"apikey":"x"}}`)).Parse()
	require.Error(t, err)

	_, err = NewConfigManager(writeFile(t, "c.json", `{} {}`)).Parse()
	require.Error(t, err)
}

func TestEnvFallbacksFillOnlyEmptyFields(t *testing.T) {
	t.Parallel()
	p := writeFile(t, "c.json", `{"twitter":{"consumer_key":"from-file"}}`)
	m := NewConfigManager(p)
	m.SetEnvLookup(envMap(map[string]string{
		"TWITTER_CONSUMER_KEY":      "from-env",
		"TWITTER_CONSUMER_SECRET":   "cs",
		"TWITTER_ACCESS_TOKEN":      "at",
		"TWITTER_ACCESS_SECRET":     "as",
		"NOTION_VERIFICATION_TOKEN": "whsec",
	}))
	cfg, err := m.Parse()
	require.NoError(t, err)
	assert.Equal(t, "from-file", cfg.Twitter.ConsumerKey)
	assert.Equal(t, "cs", cfg.Twitter.ConsumerSecret)
	assert.Equal(t, "whsec", cfg.Server.WebhookSecret)
	assert.True(t, cfg.Twitter.HasCredentials())
}

func TestEmptyPathUsesEnvironmentOnly(t *testing.T) {
	t.Parallel()
	m := NewConfigManager("")
	m.SetEnvLookup(envMap(map[string]string{"TELEGRAM_BOT_TOKEN": "123:abc", "TELEGRAM_CHAT_ID": "@news"}))
	cfg, err := m.Load()
	require.NoError(t, err)
	assert.Equal(t, []string{"telegram"}, cfg.Destinations())
}

func TestHasCredentialsRequiresFullSet(t *testing.T) {
	t.Parallel()
	assert.False(t, BlueskyConfig{Identifier: "me"}.HasCredentials())
	assert.True(t, BlueskyConfig{Identifier: "me", Password: "pw"}.HasCredentials())
	assert.False(t, TwitterConfig{ConsumerKey: "a", ConsumerSecret: "b", AccessToken: "c"}.HasCredentials())
	assert.False(t, TelegramConfig{Token: "t", Chat: "  "}.HasCredentials())
	assert.True(t, NotionConfig{APIKey: "k", DatabaseID: "d"}.HasCredentials())
	assert.Empty(t, (&Config{}).Destinations())
}

func TestValidate(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name    string
		cfg     Config
		wantErr string
	}{
		{name: "zero config is valid", cfg: Config{}},
		{
			name:    "bad log level",
			cfg:     Config{Logging: LoggingConfig{Level: "loud"}},
			wantErr: "config: logging.level: must be one of",
		},
		{
			name:    "bad log format",
			cfg:     Config{Logging: LoggingConfig{Format: "logfmt"}},
			wantErr: "config: logging.format: must be one of [console json]",
		},
		{
			name:    "scheduler enabled without schedule",
			cfg:     Config{Scheduler: SchedulerConfig{Enabled: true}},
			wantErr: "config: scheduler.schedule",
		},
		{
			name:    "invalid schedule",
			cfg:     Config{Scheduler: SchedulerConfig{Enabled: true, Schedule: "sometimes"}},
			wantErr: "config: scheduler.schedule",
		},
		{
			name: "daily schedule",
			cfg:  Config{Scheduler: SchedulerConfig{Enabled: true, Schedule: "daily:07:30", Timezone: "UTC"}},
		},
		{
			name:    "bad timezone",
			cfg:     Config{Scheduler: SchedulerConfig{Timezone: "Mars/Olympus"}},
			wantErr: "config: scheduler.timezone",
		},
		{
			name:    "bad duration",
			cfg:     Config{Run: RunConfig{PosterTimeout: "soon"}},
			wantErr: "config: run.poster_timeout: invalid duration",
		},
		{
			name:    "negative max articles",
			cfg:     Config{Run: RunConfig{MaxArticlesPerRun: -1}},
			wantErr: "config: run.max_articles_per_run: must be >= 0",
		},
		{
			name:    "storage driver unknown",
			cfg:     Config{Storage: &StorageConfig{Driver: "redis", Path: "x"}},
			wantErr: "config: storage.driver",
		},
		{
			name:    "storage path missing",
			cfg:     Config{Storage: &StorageConfig{Driver: "file"}},
			wantErr: "config: storage.path",
		},
		{
			name:    "summary without key",
			cfg:     Config{Summary: SummaryConfig{Enabled: true}},
			wantErr: "config: summary.api_key",
		},
		{
			name:    "manual trigger exposed without token",
			cfg:     Config{Server: ServerConfig{Addr: ":8080", ManualTrigger: true}},
			wantErr: "config: server.manual_token",
		},
		{
			name:    "alert without chat",
			cfg:     Config{Alert: AlertConfig{Enabled: true, Token: "t"}},
			wantErr: "config: alert.chat: is required",
		},
		{
			name:    "alert without any token",
			cfg:     Config{Alert: AlertConfig{Enabled: true, Chat: "42"}},
			wantErr: "config: alert.token",
		},
		{
			name: "alert borrows telegram token",
			cfg: Config{
				Telegram: TelegramConfig{Token: "123:abc"},
				Alert:    AlertConfig{Enabled: true, Chat: "42", DedupWindow: "1h"},
			},
		},
		{
			name: "manual trigger on loopback",
			cfg:  Config{Server: ServerConfig{Addr: "127.0.0.1:8080", ManualTrigger: true}},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			err := Validate(&tt.cfg)
			if tt.wantErr == "" {
				require.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestSummarizeConfigChangeHidesSecrets(t *testing.T) {
	t.Parallel()
	oldCfg := &Config{Bluesky: BlueskyConfig{Identifier: "me", Password: "old-secret"}}
	newCfg := &Config{
		Bluesky:   BlueskyConfig{Identifier: "me", Password: "new-secret"},
		Scheduler: SchedulerConfig{Enabled: true, Schedule: "1h"},
	}
	changed, attrs := SummarizeConfigChange(oldCfg, newCfg)
	assert.Equal(t, []string{"bluesky", "scheduler"}, changed)
	assert.NotEmpty(t, attrs)

	changed, attrs = SummarizeConfigChange(newCfg, newCfg)
	assert.Empty(t, changed)
	assert.Empty(t, attrs)
}

func TestWatchPublishesValidReloads(t *testing.T) {
	t.Parallel()
	p := writeFile(t, "c.json", `{"run":{"max_articles_per_run":1}}`)
	m := NewConfigManager(p)
	_, err := m.Load()
	require.NoError(t, err)

	ch := m.Subscribe(1)
	defer m.Unsubscribe(ch)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = m.Watch(ctx)
	}()
	// Give the watcher a moment to register the directory.
	time.Sleep(100 * time.Millisecond)

	// Invalid content is rejected and never published.
	require.NoError(t, os.WriteFile(p, []byte(`{"run":{"max_articles_per_run":-3}}`), 0o600))
	time.Sleep(600 * time.Millisecond)
	assert.Equal(t, 1, m.Get().Run.MaxArticlesPerRun)

	require.NoError(t, os.WriteFile(p, []byte(`{"run":{"max_articles_per_run":7}}`), 0o600))
	select {
	case cfg := <-ch:
		assert.Equal(t, 7, cfg.Run.MaxArticlesPerRun)
	case <-time.After(3 * time.Second):
		t.Fatal("reload not published")
	}
	assert.Equal(t, 7, m.Get().Run.MaxArticlesPerRun)

	cancel()
	<-done
}

func TestDurationOr(t *testing.T) {
	t.Parallel()
	assert.Equal(t, 5*time.Second, DurationOr("", 5*time.Second))
	assert.Equal(t, 5*time.Second, DurationOr("nope", 5*time.Second))
	assert.Equal(t, time.Minute, DurationOr("1m", 5*time.Second))
}
