package runner

import (
	"context"

	"crosspost/internal/config"
	"crosspost/internal/poster"
	"crosspost/internal/poster/bluesky"
	"crosspost/internal/poster/telegram"
	"crosspost/internal/poster/twitter"
	"crosspost/pkg/logx"
)

// PosterFactory builds the destinations of one run. configured is the number
// of destinations that had a full credential set, whether or not their
// construction succeeded.
type PosterFactory func(ctx context.Context, cfg *config.Config, log logx.Logger) (set poster.Set, configured int)

// BuildPosters constructs every destination with complete credentials.
// Construction failures (for example a rejected Bluesky login) exclude that
// destination and are logged.
func BuildPosters(ctx context.Context, cfg *config.Config, log logx.Logger) (poster.Set, int) {
	if log.IsZero() {
		log = logx.Nop()
	}
	b := poster.NewSetBuilder()
	configured := 0
	rps := cfg.Run.RatePerSec

	add := func(name string, p poster.Poster, err error) {
		if err != nil {
			log.Warn("destination excluded", logx.String("destination", name), logx.Err(err))
			return
		}
		b.Add(poster.WithRateLimit(p, rps))
	}

	if c := cfg.Bluesky; c.HasCredentials() {
		configured++
		p, err := bluesky.New(ctx, bluesky.Config{Service: c.Service, Identifier: c.Identifier, Password: c.Password})
		if err == nil {
			log.Debug("bluesky session established", logx.String("handle", p.Handle()))
		}
		add(bluesky.Name, p, err)
	}
	if c := cfg.Twitter; c.HasCredentials() {
		configured++
		p, err := twitter.New(twitter.Config{
			Credentials: twitter.Credentials{
				ConsumerKey:    c.ConsumerKey,
				ConsumerSecret: c.ConsumerSecret,
				AccessToken:    c.AccessToken,
				AccessSecret:   c.AccessSecret,
			},
			Endpoint: c.Endpoint,
		})
		add(twitter.Name, p, err)
	}
	if c := cfg.Telegram; c.HasCredentials() {
		configured++
		p, err := telegram.New(telegram.Config{Token: c.Token, Chat: c.Chat, ThreadID: c.ThreadID, APIURL: c.APIURL})
		add(telegram.Name, p, err)
	}
	return b.Build(), configured
}
