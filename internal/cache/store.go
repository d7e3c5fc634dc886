// Package cache implements the per-display cache plugins for result sets
// and rendered output, over a shared bounded store.
package cache

import (
	"fmt"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/mitchellh/copystructure"
)

// DefaultSize is the store capacity when none is configured.
const DefaultSize = 1024

type entry struct {
	value   any
	expires time.Time
}

// Store is a bounded LRU of deep-copied values with optional expiry.
// Values are copied on the way in and on the way out, so callers may keep
// mutating what they stored or fetched.
type Store struct {
	mu  sync.Mutex
	lru *lru.Cache[string, entry]
	now func() time.Time
}

func NewStore(size int) (*Store, error) {
	if size <= 0 {
		size = DefaultSize
	}
	c, err := lru.New[string, entry](size)
	if err != nil {
		return nil, fmt.Errorf("new cache store: %w", err)
	}
	return &Store{lru: c, now: time.Now}, nil
}

// Get returns a copy of the value under key.
func (s *Store) Get(key string) (any, bool) {
	s.mu.Lock()
	e, ok := s.lru.Get(key)
	if ok && !e.expires.IsZero() && !s.now().Before(e.expires) {
		s.lru.Remove(key)
		ok = false
	}
	s.mu.Unlock()
	if !ok {
		return nil, false
	}
	v, err := copystructure.Copy(e.value)
	if err != nil {
		return nil, false
	}
	return v, true
}

// Set stores a copy of v. A zero ttl never expires.
func (s *Store) Set(key string, v any, ttl time.Duration) error {
	c, err := copystructure.Copy(v)
	if err != nil {
		return fmt.Errorf("copy cache value: %w", err)
	}
	e := entry{value: c}
	if ttl > 0 {
		e.expires = s.now().Add(ttl)
	}
	s.mu.Lock()
	s.lru.Add(key, e)
	s.mu.Unlock()
	return nil
}

func (s *Store) Remove(key string) {
	s.mu.Lock()
	s.lru.Remove(key)
	s.mu.Unlock()
}

func (s *Store) Purge() {
	s.mu.Lock()
	s.lru.Purge()
	s.mu.Unlock()
}

func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lru.Len()
}
