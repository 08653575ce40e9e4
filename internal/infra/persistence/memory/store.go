// Package memory provides an in-process mirror used by tests and the
// "memory" mirror driver.
package memory

import (
	"context"
	"sync"

	"capplan/internal/infra/persistence/snapshot"
	"capplan/pkg/capacity"
)

// Store keeps the last pushed buckets.
type Store struct {
	mu      sync.RWMutex
	buckets []snapshot.Bucket
	pushes  int
}

// New returns an empty mirror.
func New() *Store { return &Store{} }

// Driver names the mirror backend.
func (s *Store) Driver() string { return "memory" }

// Push replaces the mirrored document.
func (s *Store) Push(_ context.Context, doc capacity.Document) error {
	buckets, err := snapshot.Buckets(doc)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.buckets = buckets
	s.pushes++
	return nil
}

// Pull returns a copy of the mirrored document.
func (s *Store) Pull(context.Context) (capacity.Document, error) {
	s.mu.RLock()
	buckets := append([]snapshot.Bucket(nil), s.buckets...)
	s.mu.RUnlock()
	return snapshot.Assemble(buckets)
}

// Pushes reports how many pushes succeeded.
func (s *Store) Pushes() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.pushes
}

// Close is a no-op.
func (s *Store) Close() error { return nil }
