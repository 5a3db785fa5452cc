package dedup

import (
	"context"
	"sync"

	"github.com/user/deskhand/internal/types"
)

// Set records claimed keys. Implementations are safe for concurrent use.
type Set interface {
	// Claim marks key as seen and reports whether it was new.
	Claim(ctx context.Context, key types.DedupKey) (bool, error)
	// Release forgets key so a later Claim succeeds again.
	Release(ctx context.Context, key types.DedupKey) error
	Contains(ctx context.Context, key types.DedupKey) (bool, error)
	Len(ctx context.Context) (int, error)
	Close() error
}

// MemorySet lives for the lifetime of the process.
type MemorySet struct {
	mu   sync.Mutex
	keys map[types.DedupKey]struct{}
}

var _ Set = (*MemorySet)(nil)

func NewMemorySet() *MemorySet {
	return &MemorySet{keys: make(map[types.DedupKey]struct{})}
}

func (s *MemorySet) Claim(_ context.Context, key types.DedupKey) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.keys[key]; ok {
		return false, nil
	}
	s.keys[key] = struct{}{}
	return true, nil
}

func (s *MemorySet) Release(_ context.Context, key types.DedupKey) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.keys, key)
	return nil
}

func (s *MemorySet) Contains(_ context.Context, key types.DedupKey) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.keys[key]
	return ok, nil
}

func (s *MemorySet) Len(context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.keys), nil
}

func (s *MemorySet) Close() error { return nil }
