package rule

import (
	"errors"
	"fmt"
	"sync"
	"time"
)

// ErrNotFound is returned when a rule ID does not exist for the tenant.
var ErrNotFound = errors.New("rule not found")

// Store persists rules keyed by (tenantID, id). Implementations must be safe
// for concurrent use: the HTTP handlers, the event bus, and the worker pool
// all touch the store.
type Store interface {
	Add(r *Rule) error
	Get(tenantID, id string) (*Rule, error)
	Update(r *Rule) error
	Delete(tenantID, id string) error
	List(tenantID string) ([]*Rule, error)
	// ListAll returns every rule across tenants (index rebuild, scheduler sync).
	ListAll() ([]*Rule, error)
	// ApplyMetadata mutates a rule's execution aggregates in place. Only the
	// metrics path calls this; CRUD updates leave metadata untouched.
	ApplyMetadata(tenantID, id string, apply func(*Metadata)) error
}

// MemoryStore is the default in-process Store.
type MemoryStore struct {
	mu    sync.RWMutex
	rules map[string]*Rule // key: tenantID + "/" + id
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{rules: make(map[string]*Rule)}
}

func storeKey(tenantID, id string) string { return tenantID + "/" + id }

func (s *MemoryStore) Add(r *Rule) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := storeKey(r.TenantID, r.ID)
	if _, exists := s.rules[key]; exists {
		return fmt.Errorf("rule %s already exists", r.ID)
	}
	now := time.Now()
	r.CreatedAt = now
	r.UpdatedAt = now
	s.rules[key] = r.Clone()
	return nil
}

func (s *MemoryStore) Get(tenantID, id string) (*Rule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, exists := s.rules[storeKey(tenantID, id)]
	if !exists {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return r.Clone(), nil
}

func (s *MemoryStore) Update(r *Rule) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := storeKey(r.TenantID, r.ID)
	existing, exists := s.rules[key]
	if !exists {
		return fmt.Errorf("%w: %s", ErrNotFound, r.ID)
	}
	r.CreatedAt = existing.CreatedAt
	r.UpdatedAt = time.Now()
	// Execution aggregates survive CRUD updates; only the metrics path
	// rewrites them via ApplyMetadata.
	r.Metadata = existing.Metadata
	s.rules[key] = r.Clone()
	return nil
}

func (s *MemoryStore) Delete(tenantID, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := storeKey(tenantID, id)
	if _, exists := s.rules[key]; !exists {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	delete(s.rules, key)
	return nil
}

func (s *MemoryStore) List(tenantID string) ([]*Rule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*Rule
	for _, r := range s.rules {
		if r.TenantID == tenantID {
			out = append(out, r.Clone())
		}
	}
	return out, nil
}

func (s *MemoryStore) ListAll() ([]*Rule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*Rule, 0, len(s.rules))
	for _, r := range s.rules {
		out = append(out, r.Clone())
	}
	return out, nil
}

func (s *MemoryStore) ApplyMetadata(tenantID, id string, apply func(*Metadata)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, exists := s.rules[storeKey(tenantID, id)]
	if !exists {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	apply(&r.Metadata)
	return nil
}
