package config

import (
	"encoding/json"
	"errors"
	"io/fs"
	"os"
	"regexp"
	"strings"

	"github.com/joho/godotenv"
)

// LoadDotEnv loads KEY=VALUE pairs from the given files into the process
// environment without overriding variables that are already set. Missing
// files are ignored.
func LoadDotEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, p := range paths {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		if err := godotenv.Load(p); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return err
		}
	}
	return nil
}

// ${NAME} or ${NAME:-default}
var reEnvRef = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)(?::-([^}]*))?\}`)

func expandString(s string, lookup func(string) (string, bool)) string {
	if !strings.Contains(s, "${") {
		return s
	}
	return reEnvRef.ReplaceAllStringFunc(s, func(ref string) string {
		m := reEnvRef.FindStringSubmatch(ref)
		if v, ok := lookup(m[1]); ok && v != "" {
			return v
		}
		return m[2]
	})
}

// expandEnvJSON expands ${VAR} references inside JSON string values only, so
// a value containing quotes cannot break the document structure.
func expandEnvJSON(jb []byte, lookup func(string) (string, bool)) ([]byte, error) {
	if !reEnvRef.Match(jb) {
		return jb, nil
	}
	var v any
	if err := json.Unmarshal(jb, &v); err != nil {
		return nil, err
	}
	return json.Marshal(expandTree(v, lookup))
}

func expandTree(in any, lookup func(string) (string, bool)) any {
	switch x := in.(type) {
	case string:
		return expandString(x, lookup)
	case map[string]any:
		for k, v := range x {
			x[k] = expandTree(v, lookup)
		}
		return x
	case []any:
		for i := range x {
			x[i] = expandTree(x[i], lookup)
		}
		return x
	default:
		return in
	}
}

// applyEnvFallbacks fills empty credential fields from the conventional
// environment variables.
func applyEnvFallbacks(cfg *Config, lookup func(string) (string, bool)) {
	if cfg == nil {
		return
	}
	fallbacks := []struct {
		env string
		dst *string
	}{
		{"NOTION_API_KEY", &cfg.Notion.APIKey},
		{"NOTION_DATABASE_ID", &cfg.Notion.DatabaseID},
		{"NOTION_VERIFICATION_TOKEN", &cfg.Server.WebhookSecret},
		{"BLUESKY_SERVICE", &cfg.Bluesky.Service},
		{"BLUESKY_IDENTIFIER", &cfg.Bluesky.Identifier},
		{"BLUESKY_PASSWORD", &cfg.Bluesky.Password},
		{"TWITTER_CONSUMER_KEY", &cfg.Twitter.ConsumerKey},
		{"TWITTER_CONSUMER_SECRET", &cfg.Twitter.ConsumerSecret},
		{"TWITTER_ACCESS_TOKEN", &cfg.Twitter.AccessToken},
		{"TWITTER_ACCESS_SECRET", &cfg.Twitter.AccessSecret},
		{"TELEGRAM_BOT_TOKEN", &cfg.Telegram.Token},
		{"TELEGRAM_CHAT_ID", &cfg.Telegram.Chat},
		{"ANTHROPIC_API_KEY", &cfg.Summary.APIKey},
		{"ALERT_TELEGRAM_CHAT_ID", &cfg.Alert.Chat},
	}
	for _, f := range fallbacks {
		if strings.TrimSpace(*f.dst) != "" {
			continue
		}
		if v, ok := lookup(f.env); ok {
			*f.dst = strings.TrimSpace(v)
		}
	}
}

func osLookup(key string) (string, bool) { return os.LookupEnv(key) }
