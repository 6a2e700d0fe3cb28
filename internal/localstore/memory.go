package localstore

import (
	"encoding/json"
	"sync"

	"sheetcart/internal/model"
)

// MemoryStore implements Store on an in-process map. Used by tests and by
// ephemeral sessions that opt out of durable persistence.
//
// It round-trips the cart through JSON like the SQLite store does, so the
// same corrupt-data and empty-is-absent semantics apply.
type MemoryStore struct {
	mu sync.Mutex
	kv map[string]string
}

// NewMemory creates an empty in-memory store.
func NewMemory() *MemoryStore {
	return &MemoryStore{kv: make(map[string]string)}
}

// Seed writes a raw value for a key, bypassing serialization.
// Test hook for simulating corrupt persisted data.
func (s *MemoryStore) Seed(key, value string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.kv[key] = value
}

// SeedCart writes a raw value under the cart key. Test hook.
func (s *MemoryStore) SeedCart(raw string) { s.Seed(keyCart, raw) }

// HasCart reports whether a cart value is persisted. Test hook for
// asserting the empty-is-absent invariant.
func (s *MemoryStore) HasCart() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.kv[keyCart]
	return ok
}

func (s *MemoryStore) LoadCart() (model.Cart, error) {
	s.mu.Lock()
	raw, ok := s.kv[keyCart]
	s.mu.Unlock()
	if !ok {
		return model.Cart{}, nil
	}

	var cart model.Cart
	if err := json.Unmarshal([]byte(raw), &cart); err != nil {
		return model.Cart{}, nil
	}
	return cart, nil
}

func (s *MemoryStore) SaveCart(cart model.Cart) error {
	if cart.IsEmpty() {
		return s.RemoveCart()
	}
	raw, err := json.Marshal(cart)
	if err != nil {
		return model.NewStorageError("save", err)
	}
	s.mu.Lock()
	s.kv[keyCart] = string(raw)
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) RemoveCart() error {
	s.mu.Lock()
	delete(s.kv, keyCart)
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) Token() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.kv[keyToken], nil
}

func (s *MemoryStore) SetToken(token string) error {
	s.mu.Lock()
	s.kv[keyToken] = token
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) DeleteToken() error {
	s.mu.Lock()
	delete(s.kv, keyToken)
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) Close() error { return nil }
