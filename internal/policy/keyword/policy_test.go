// Package keyword includes tests for the keyword-overlap relevance policy.
package keyword

import "testing"

func TestRelevant(t *testing.T) {
	t.Parallel()

	p := New()
	tests := []struct {
		name    string
		query   string
		title   string
		snippet string
		want    bool
	}{
		{
			name:  "token in title",
			query: "weather", title: "Weather forecast for Berlin", snippet: "",
			want: true,
		},
		{
			name:  "token in snippet only",
			query: "weather", title: "Today's outlook", snippet: "Sunny weather expected all week.",
			want: true,
		},
		{
			name:  "no overlap",
			query: "weather", title: "Unrelated Product", snippet: "Buy now",
			want: false,
		},
		{
			name:  "case insensitive",
			query: "GoLang", title: "GOLANG tutorials", snippet: "",
			want: true,
		},
		{
			name:  "any single token suffices",
			query: "rust compiler internals", title: "The Compiler Book", snippet: "",
			want: true,
		},
		{
			name:  "token as substring matches",
			query: "cat", title: "Product catalog", snippet: "",
			want: true,
		},
		{
			name:  "empty query filters nothing",
			query: "   ", title: "Anything", snippet: "",
			want: true,
		},
		{
			name:  "empty entry fields",
			query: "weather", title: "", snippet: "",
			want: false,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := p.Relevant(tt.query, tt.title, tt.snippet); got != tt.want {
				t.Errorf("Relevant(%q, %q, %q) = %v, want %v", tt.query, tt.title, tt.snippet, got, tt.want)
			}
		})
	}
}
