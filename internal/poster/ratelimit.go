package poster

import (
	"context"
	"fmt"

	"golang.org/x/time/rate"

	"crosspost/internal/article"
)

type limited struct {
	next    Poster
	limiter *rate.Limiter
}

// WithRateLimit throttles calls to p with a token bucket (burst = rps).
// rps <= 0 returns p unchanged.
func WithRateLimit(p Poster, rps float64) Poster {
	if p == nil || rps <= 0 {
		return p
	}
	burst := int(rps)
	if burst < 1 {
		burst = 1
	}
	return &limited{next: p, limiter: rate.NewLimiter(rate.Limit(rps), burst)}
}

func (l *limited) Name() string { return l.next.Name() }

func (l *limited) PostArticle(ctx context.Context, a article.Article) error {
	if err := l.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("%s: rate limit wait: %w", l.next.Name(), err)
	}
	return l.next.PostArticle(ctx, a)
}

// Unwrap exposes the throttled poster.
func (l *limited) Unwrap() Poster { return l.next }
