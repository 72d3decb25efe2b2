// Package keyword implements the default relevance policy: keyword overlap
// between the query and a listing entry.
package keyword

import "strings"

// Policy accepts an entry when at least one whitespace-split token of the
// query appears, case-insensitively, in the entry's title or snippet. It is
// a deliberately loose gate against wholly unrelated listings (ads, provider
// boilerplate), not a ranking function.
type Policy struct{}

// New creates a new Policy.
func New() *Policy {
	return &Policy{}
}

// Relevant reports whether the entry shares a token with the query. A query
// with no tokens filters nothing.
func (Policy) Relevant(query, title, snippet string) bool {
	tokens := strings.Fields(strings.ToLower(query))
	if len(tokens) == 0 {
		return true
	}
	title = strings.ToLower(title)
	snippet = strings.ToLower(snippet)
	for _, tok := range tokens {
		if strings.Contains(title, tok) || strings.Contains(snippet, tok) {
			return true
		}
	}
	return false
}
