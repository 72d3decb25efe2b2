// Package simple contains the permissive relevance policy.
package simple

// Policy accepts every listing entry. It is the escape hatch for operators
// who would rather keep marginal results than trust the keyword heuristic.
type Policy struct{}

// New creates a new Policy.
func New() *Policy {
	return &Policy{}
}

// Relevant always returns true.
func (Policy) Relevant(_ string, _ string, _ string) bool {
	return true
}
