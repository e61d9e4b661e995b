package kv

import (
	"context"
	"sync"
)

// MemoryStore keeps every namespace in process memory. It is the default backend for local
// development and tests.
type MemoryStore struct {
	mu         sync.Mutex
	namespaces map[string]map[string]string
	quota      int
}

// MemoryOption customises a MemoryStore.
type MemoryOption func(*MemoryStore)

// WithQuota limits each namespace to bytes of key plus value data. Zero disables the limit.
func WithQuota(bytes int) MemoryOption {
	return func(s *MemoryStore) {
		if bytes > 0 {
			s.quota = bytes
		}
	}
}

// NewMemoryStore constructs an empty memory-backed store.
func NewMemoryStore(opts ...MemoryOption) *MemoryStore {
	store := &MemoryStore{namespaces: make(map[string]map[string]string)}
	for _, opt := range opts {
		if opt != nil {
			opt(store)
		}
	}
	return store
}

// Get implements Store.
func (s *MemoryStore) Get(ctx context.Context, namespace, key string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if err := validate("get", namespace, key); err != nil {
		return "", err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	value, ok := s.namespaces[namespace][key]
	if !ok {
		return "", notFoundError("get", namespace, key)
	}
	return value, nil
}

// Set implements Store. A write that would push the namespace over its quota leaves the
// previous value untouched.
func (s *MemoryStore) Set(ctx context.Context, namespace, key, value string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := validate("set", namespace, key); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	values := s.namespaces[namespace]
	if s.quota > 0 {
		used := usage(values)
		if previous, ok := values[key]; ok {
			used -= len(key) + len(previous)
		}
		if used+len(key)+len(value) > s.quota {
			return quotaError("set", namespace, key, nil)
		}
	}

	if values == nil {
		values = make(map[string]string)
		s.namespaces[namespace] = values
	}
	values[key] = value
	return nil
}

// Delete implements Store. Deleting a missing key is not an error.
func (s *MemoryStore) Delete(ctx context.Context, namespace, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := validate("delete", namespace, key); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	values := s.namespaces[namespace]
	delete(values, key)
	if len(values) == 0 {
		delete(s.namespaces, namespace)
	}
	return nil
}

// Usage returns the bytes currently held by namespace.
func (s *MemoryStore) Usage(namespace string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return usage(s.namespaces[namespace])
}

func usage(values map[string]string) int {
	total := 0
	for k, v := range values {
		total += len(k) + len(v)
	}
	return total
}
