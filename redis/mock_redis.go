package redis

import (
	"context"
	"sync"
	"time"
)

type mockItem struct {
	value      string
	expiration time.Time
}

// mockRedis is an in-memory Cache for tests: single process, TTL-aware,
// no external server needed.
type mockRedis struct {
	mu     sync.Mutex
	lookup map[string]mockItem
}

// NewMockClient returns a new Redis mock client.
func NewMockClient() Cache {
	return &mockRedis{
		lookup: make(map[string]mockItem),
	}
}

func (m *mockRedis) Set(ctx context.Context, key string, value string, expiration time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	var exp time.Time
	if expiration > 0 {
		exp = time.Now().Add(expiration)
	}
	m.lookup[key] = mockItem{value: value, expiration: exp}
	return nil
}

func (m *mockRedis) Get(ctx context.Context, key string) (bool, string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	it, ok := m.lookup[key]
	if !ok {
		return false, "", nil
	}
	if !it.expiration.IsZero() && time.Now().After(it.expiration) {
		delete(m.lookup, key)
		return false, "", nil
	}
	return true, it.value, nil
}

func (m *mockRedis) GetEx(ctx context.Context, key string, expiration time.Duration) (bool, string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	it, ok := m.lookup[key]
	if !ok {
		return false, "", nil
	}
	if !it.expiration.IsZero() && time.Now().After(it.expiration) {
		delete(m.lookup, key)
		return false, "", nil
	}
	if expiration > 0 {
		it.expiration = time.Now().Add(expiration)
		m.lookup[key] = it
	}
	return true, it.value, nil
}

func (m *mockRedis) Delete(ctx context.Context, keys []string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r := true
	for _, k := range keys {
		if _, ok := m.lookup[k]; !ok {
			r = false
			continue
		}
		delete(m.lookup, k)
	}
	return r, nil
}

func (m *mockRedis) Ping(ctx context.Context) error {
	return nil
}
