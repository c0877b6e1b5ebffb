package store

import (
	"context"
	"sync"
	"time"
)

type memoryEntry struct {
	v   []byte
	exp time.Time // zero => no TTL
}

// Memory is an in-process Store backed by a mutex-guarded map. Expiry is
// lazy: expired entries are dropped on the next Get. Intended for tests and
// single-process use; reach for ristretto/bigcache/redis otherwise.
type Memory struct {
	mu sync.Mutex
	m  map[string]memoryEntry
}

var _ Store = (*Memory)(nil)

func NewMemory() *Memory {
	return &Memory{m: make(map[string]memoryEntry)}
}

func (s *Memory) Get(_ context.Context, key string) ([]byte, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.m[key]
	if !ok {
		return nil, false, nil
	}
	if !e.exp.IsZero() && time.Now().After(e.exp) {
		delete(s.m, key)
		return nil, false, nil
	}
	return e.v, true, nil
}

func (s *Memory) Set(_ context.Context, key string, value []byte, _ int64, ttl time.Duration) (bool, error) {
	var exp time.Time
	if ttl > 0 {
		exp = time.Now().Add(ttl)
	}
	// copy keeps the store transparent even if the caller reuses the buffer
	v := append([]byte(nil), value...)
	s.mu.Lock()
	s.m[key] = memoryEntry{v: v, exp: exp}
	s.mu.Unlock()
	return true, nil
}

func (s *Memory) Del(_ context.Context, key string) error {
	s.mu.Lock()
	delete(s.m, key)
	s.mu.Unlock()
	return nil
}

func (s *Memory) Close(context.Context) error { return nil }

// Len reports live (possibly expired, not yet swept) entries.
func (s *Memory) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.m)
}
