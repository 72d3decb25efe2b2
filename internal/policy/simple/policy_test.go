// Package simple includes tests for the permissive policy implementation.
package simple

import "testing"

// TestPolicyRelevant ensures the permissive policy keeps every entry.
func TestPolicyRelevant(t *testing.T) {
	t.Parallel()

	p := New()
	if !p.Relevant("weather", "Unrelated Product", "Buy now") {
		t.Fatal("expected Relevant to return true for unrelated entries")
	}
	if !p.Relevant("", "", "") {
		t.Fatal("expected Relevant to return true for empty inputs")
	}
}
