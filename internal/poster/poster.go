// Package poster defines the destination capability used by the fan-out
// orchestrator and the immutable set of destinations assembled for one run.
//
// Concrete destinations live in subpackages (bluesky, twitter, telegram).
// Anything that needs a session (login) establishes it in its constructor, so
// a Poster handed to the orchestrator is ready to post.
package poster

import (
	"context"

	"crosspost/internal/article"
)

// Poster publishes one article to one social network.
type Poster interface {
	// Name identifies the destination in logs, metrics and the posted ledger.
	Name() string
	PostArticle(ctx context.Context, a article.Article) error
}

// Func adapts a function to the Poster interface. Tests use it for stubs.
type Func struct {
	ID   string
	Post func(ctx context.Context, a article.Article) error
}

func (f Func) Name() string { return f.ID }

func (f Func) PostArticle(ctx context.Context, a article.Article) error {
	if f.Post == nil {
		return nil
	}
	return f.Post(ctx, a)
}

// Set is an ordered, read-only collection of posters for one run.
// The zero value is an empty set.
type Set struct {
	items []Poster
}

func (s Set) Len() int { return len(s.items) }

func (s Set) Empty() bool { return len(s.items) == 0 }

// At returns the i-th poster.
func (s Set) At(i int) Poster { return s.items[i] }

// All returns a copy so callers cannot mutate the set.
func (s Set) All() []Poster {
	return append([]Poster(nil), s.items...)
}

func (s Set) Names() []string {
	out := make([]string, 0, len(s.items))
	for _, p := range s.items {
		out = append(out, p.Name())
	}
	return out
}

// SetBuilder accumulates posters before a run and freezes them with Build.
type SetBuilder struct {
	items []Poster
	seen  map[string]struct{}
}

func NewSetBuilder() *SetBuilder {
	return &SetBuilder{seen: map[string]struct{}{}}
}

// Add appends p. Nil posters and duplicate names are ignored.
func (b *SetBuilder) Add(p Poster) *SetBuilder {
	if p == nil {
		return b
	}
	if _, dup := b.seen[p.Name()]; dup {
		return b
	}
	b.seen[p.Name()] = struct{}{}
	b.items = append(b.items, p)
	return b
}

func (b *SetBuilder) Build() Set {
	return Set{items: append([]Poster(nil), b.items...)}
}

// NewSet is shorthand for building a set from a fixed list.
func NewSet(ps ...Poster) Set {
	b := NewSetBuilder()
	for _, p := range ps {
		b.Add(p)
	}
	return b.Build()
}
