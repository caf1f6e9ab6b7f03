// Package article holds the unit of content crosspost reads from the source
// list and publishes to destinations.
package article

import (
	"context"
	"strings"
)

// Article is one item of the source list.
//
// ID is assigned by the source and stays stable across runs.
// Articles with an empty Title or URL never leave the source.
type Article struct {
	ID    string
	Title string
	URL   string
}

// Valid reports whether the article carries everything a destination needs.
func (a Article) Valid() bool {
	return strings.TrimSpace(a.ID) != "" && strings.TrimSpace(a.Title) != "" && strings.TrimSpace(a.URL) != ""
}

// BookmarkMarker prefixes every composed post.
const BookmarkMarker = "🔖"

// BuildText composes the message shared by every destination:
// marker, title, a space, then the URL.
func BuildText(a Article) string {
	return BookmarkMarker + " " + a.Title + " " + a.URL
}

// Source lists articles that still need posting and records the posted flag.
type Source interface {
	// GetUnpostedArticles returns unposted articles, oldest first.
	GetUnpostedArticles(ctx context.Context) ([]Article, error)
	MarkArticleAsPosted(ctx context.Context, id string) error
}

// Summarizable is implemented by sources that can store a generated summary.
type Summarizable interface {
	UpdateArticleSummary(ctx context.Context, id, summary string) error
}
