package poster

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"crosspost/internal/article"
)

func TestSetBuilderIsImmutable(t *testing.T) {
	t.Parallel()
	b := NewSetBuilder().
		Add(Func{ID: "bluesky"}).
		Add(nil).
		Add(Func{ID: "twitter"}).
		Add(Func{ID: "bluesky"})
	set := b.Build()

	require.Equal(t, 2, set.Len())
	assert.Equal(t, []string{"bluesky", "twitter"}, set.Names())

	// Mutating the builder or the returned slice must not leak into the set.
	b.Add(Func{ID: "telegram"})
	all := set.All()
	all[0] = Func{ID: "mutated"}
	assert.Equal(t, []string{"bluesky", "twitter"}, set.Names())
}

func TestEmptySet(t *testing.T) {
	t.Parallel()
	var set Set
	assert.True(t, set.Empty())
	assert.Empty(t, set.Names())
	assert.True(t, NewSetBuilder().Build().Empty())
}

func TestWithRateLimitHonoursContext(t *testing.T) {
	t.Parallel()
	calls := 0
	p := WithRateLimit(Func{ID: "slow", Post: func(context.Context, article.Article) error {
		calls++
		return nil
	}}, 1)
	require.Equal(t, "slow", p.Name())

	// First call consumes the burst.
	require.NoError(t, p.PostArticle(context.Background(), article.Article{ID: "a"}))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := p.PostArticle(ctx, article.Article{ID: "b"})
	require.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestWithRateLimitDisabled(t *testing.T) {
	t.Parallel()
	base := Func{ID: "x"}
	assert.Equal(t, Poster(base), WithRateLimit(base, 0))
}
