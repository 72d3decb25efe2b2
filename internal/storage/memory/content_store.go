// Package memory stores page content in-memory for development and tests.
package memory

import (
	"context"
	"fmt"
	"sync"
)

type entry struct {
	query string
	text  string
}

// ContentStore keeps extracted page text in a map keyed by record id.
type ContentStore struct {
	mu      sync.RWMutex
	entries map[string]entry
}

// NewContentStore creates a new in-memory content store.
func NewContentStore() *ContentStore {
	return &ContentStore{
		entries: make(map[string]entry),
	}
}

// Store persists the text for a record, replacing any previous entry.
func (s *ContentStore) Store(_ context.Context, recordID, query, text string) error {
	if recordID == "" {
		return fmt.Errorf("record id is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[recordID] = entry{query: query, text: text}
	return nil
}

// Text returns the stored text for a record id, if present.
func (s *ContentStore) Text(recordID string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.entries[recordID]
	return e.text, ok
}

// Query returns the query a record was harvested for, if present.
func (s *ContentStore) Query(recordID string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.entries[recordID]
	return e.query, ok
}

// Len reports how many records have content stored.
func (s *ContentStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// Close is a no-op for the in-memory store.
func (s *ContentStore) Close() error {
	return nil
}
