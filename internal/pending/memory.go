package pending

import (
	"context"
	"sync"
)

// MemoryProvider keeps pending entries in process memory.
type MemoryProvider struct {
	mu     sync.Mutex
	scopes map[string]map[Key]string
}

func NewMemoryProvider() *MemoryProvider {
	return &MemoryProvider{scopes: make(map[string]map[Key]string)}
}

func (p *MemoryProvider) For(scope string) Store {
	return &memoryStore{provider: p, scope: scope}
}

type memoryStore struct {
	provider *MemoryProvider
	scope    string
}

// NewMemoryStore returns a standalone store, handy for single-flow tests.
func NewMemoryStore() Store {
	return NewMemoryProvider().For("default")
}

func (s *memoryStore) Put(_ context.Context, key Key, value string) error {
	if err := validKey(key); err != nil {
		return err
	}
	p := s.provider
	p.mu.Lock()
	defer p.mu.Unlock()
	entries, ok := p.scopes[s.scope]
	if !ok {
		entries = make(map[Key]string)
		p.scopes[s.scope] = entries
	}
	entries[key] = value
	return nil
}

func (s *memoryStore) Get(_ context.Context, key Key) (string, error) {
	if err := validKey(key); err != nil {
		return "", err
	}
	p := s.provider
	p.mu.Lock()
	defer p.mu.Unlock()
	value, ok := p.scopes[s.scope][key]
	if !ok {
		return "", ErrNotFound
	}
	return value, nil
}

func (s *memoryStore) Remove(_ context.Context, key Key) error {
	if err := validKey(key); err != nil {
		return err
	}
	p := s.provider
	p.mu.Lock()
	defer p.mu.Unlock()
	if entries, ok := p.scopes[s.scope]; ok {
		delete(entries, key)
		if len(entries) == 0 {
			delete(p.scopes, s.scope)
		}
	}
	return nil
}
