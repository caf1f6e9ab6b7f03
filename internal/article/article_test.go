package article

import "testing"

func TestBuildText(t *testing.T) {
	t.Parallel()
	a := Article{ID: "a1", Title: "Go 1.24 released", URL: "https://go.dev/blog/go1.24"}
	got := BuildText(a)
	want := "🔖 Go 1.24 released https://go.dev/blog/go1.24"
	if got != want {
		t.Fatalf("BuildText = %q, want %q", got, want)
	}
}

func TestValid(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		a    Article
		want bool
	}{
		{name: "complete", a: Article{ID: "1", Title: "T", URL: "https://x"}, want: true},
		{name: "no title", a: Article{ID: "1", Title: " ", URL: "https://x"}},
		{name: "no url", a: Article{ID: "1", Title: "T"}},
		{name: "no id", a: Article{Title: "T", URL: "https://x"}},
	}
	for _, tt := range tests {
		if got := tt.a.Valid(); got != tt.want {
			t.Fatalf("%s: Valid() = %v, want %v", tt.name, got, tt.want)
		}
	}
}
