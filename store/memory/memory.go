// Package memory provides a map-backed Store for tests and session-scoped
// persistence.
package memory

import (
	"context"
	"sync"
	"time"
)

type record struct {
	value     []byte
	expiresAt time.Time // zero means no expiry
}

// Store keeps records in process memory. The zero value is not usable; call
// New.
type Store struct {
	mu      sync.RWMutex
	records map[string]record
}

func New() *Store {
	return &Store{records: make(map[string]record)}
}

func (s *Store) Get(_ context.Context, key string) ([]byte, bool, error) {
	s.mu.RLock()
	rec, ok := s.records[key]
	s.mu.RUnlock()
	if !ok {
		return nil, false, nil
	}
	if !rec.expiresAt.IsZero() && time.Now().After(rec.expiresAt) {
		s.mu.Lock()
		delete(s.records, key)
		s.mu.Unlock()
		return nil, false, nil
	}
	// Copy so callers cannot mutate stored bytes.
	out := make([]byte, len(rec.value))
	copy(out, rec.value)
	return out, true, nil
}

func (s *Store) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	rec := record{value: make([]byte, len(value))}
	copy(rec.value, value)
	if ttl > 0 {
		rec.expiresAt = time.Now().Add(ttl)
	}
	s.mu.Lock()
	s.records[key] = rec
	s.mu.Unlock()
	return nil
}

func (s *Store) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	delete(s.records, key)
	s.mu.Unlock()
	return nil
}

func (s *Store) Close() error {
	s.mu.Lock()
	s.records = make(map[string]record)
	s.mu.Unlock()
	return nil
}

// Len returns the number of live records (expired ones included until read).
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}
